package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

type userRepository struct {
	db *userTable
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query(tenantID string) []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		if tenantID == "" || u.TenantID == tenantID {
			users = append(users, *u)
		}
	}
	return users
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.table {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.table[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.table {
		if usr.Email == email {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(
	_ context.Context,
	tenantID string,
	filter user.QueryFilter,
	page core.PageParams,
) ([]user.User, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	users := make([]user.User, 0)
	for _, usr := range repo.query(tenantID) {
		if search != "" && !contains(&usr.FullName, search) && !contains(&usr.Email, search) {
			continue
		}
		if filter.Role != "" && usr.Role != filter.Role {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, usr)
	}

	sortBy(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] }, func(i, j int) bool {
		a, b := users[i], users[j]
		switch page.SortBy {
		case "full_name":
			return a.FullName < b.FullName
		case "email":
			return a.Email < b.Email
		case "role":
			return a.Role < b.Role
		case "last_login":
			return a.LastLogin != nil && (b.LastLogin == nil || a.LastLogin.Before(*b.LastLogin))
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}, page)

	from, to := paginate(len(users), page)
	return users[from:to], len(users), nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) SetLastLogin(_ context.Context, id string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.table[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.LastLogin = &at
	return nil
}

func (repo *userRepository) ProfileIDsByRoles(_ context.Context, tenantID string, roles ...string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var ids []string
	for _, usr := range repo.query(tenantID) {
		if usr.IsActive && core.StringIn(usr.Role, roles) {
			ids = append(ids, usr.ID)
		}
	}
	return ids, nil
}
