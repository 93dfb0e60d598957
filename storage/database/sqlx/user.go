package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

const userColumns = `id, tenant_id, email, full_name, phone, role, is_active, password_hash, last_login, created_at, updated_at`

type userRepository struct {
	exec core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{exec: exec}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO profiles (`+userColumns+`)
		VALUES (:id, :tenant_id, :email, :full_name, :phone, :role, :is_active, :password_hash, :last_login, :created_at, :updated_at)`,
		usr)
	if err = mapWriteErr(err, "inserting user"); err != nil {
		if appErr, ok := core.AsAppError(err); ok && appErr.Code == core.CodeConflict {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) getBy(ctx context.Context, field string, value interface{}) (user.User, error) {
	var usr user.User
	err := repo.exec.GetContext(ctx, &usr, `SELECT `+userColumns+` FROM profiles WHERE `+field+` = $1 AND deleted_at IS NULL`, value)
	return usr, trapNoRows(err, user.ErrNotFound, "selecting user")
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getBy(ctx, "id", id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getBy(ctx, "lower(email)", core.CleanString(email, true /* lower */))
}

func (repo *userRepository) FilterUsers(ctx context.Context, tenantID string, filter user.QueryFilter, p core.PageParams) ([]user.User, int, error) {
	w := newWhere("tenant_id = ? AND deleted_at IS NULL", tenantID).
		andIf(filter.Search != "", "(full_name ILIKE ? OR email ILIKE ?)", like(filter.Search), like(filter.Search)).
		andIf(filter.Role != "", "role = ?", filter.Role)
	if filter.IsActive != nil {
		w.and("is_active = ?", *filter.IsActive)
	}
	if p.SortBy == "" {
		p.SortBy = "created_at"
	}

	users := make([]user.User, 0)
	total, err := page(ctx, repo.exec, &users, userColumns, "profiles", w, p, "")
	if err != nil {
		return nil, 0, errors.Wrap(err, "filtering users")
	}
	return users, total, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE profiles
		SET full_name = :full_name, phone = :phone, role = :role, is_active = :is_active,
			password_hash = :password_hash, updated_at = :updated_at
		WHERE id = :id AND deleted_at IS NULL`,
		usr)
	if err != nil {
		return user.User{}, mapWriteErr(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := repo.exec.ExecContext(ctx, `UPDATE profiles SET last_login = $1 WHERE id = $2`, at, id)
	return errors.Wrap(err, "setting last login")
}

func (repo *userRepository) ProfileIDsByRoles(ctx context.Context, tenantID string, roles ...string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.exec.SelectContext(ctx, &ids, `
		SELECT id FROM profiles
		WHERE tenant_id = $1 AND role = ANY($2) AND is_active AND deleted_at IS NULL
		ORDER BY created_at`,
		tenantID, pq.Array(roles))
	return ids, errors.Wrap(err, "selecting profiles by role")
}
