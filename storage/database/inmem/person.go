package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
)

type personRepository struct {
	db *personTable
}

func NewPersonRepository(db *DB) person.Repository {
	return &personRepository{db: db.person}
}

func (repo *personRepository) FilterPeople(
	_ context.Context,
	tenantID string,
	filter person.QueryFilter,
	page core.PageParams,
) ([]person.Person, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	people := make([]person.Person, 0)
	for _, p := range repo.db.table {
		switch {
		case p.TenantID != tenantID:
			continue
		case search != "" && !contains(&p.FullName, search) && !contains(p.Email, search):
			continue
		case filter.DefaultRole != "" && (p.DefaultRole == nil || *p.DefaultRole != filter.DefaultRole):
			continue
		case filter.IsInternal != nil && p.IsInternal != *filter.IsInternal:
			continue
		case filter.IsActive != nil && p.IsActive != *filter.IsActive:
			continue
		}
		people = append(people, *p)
	}

	sortBy(len(people), func(i, j int) { people[i], people[j] = people[j], people[i] }, func(i, j int) bool {
		a, b := people[i], people[j]
		switch page.SortBy {
		case "full_name":
			return a.FullName < b.FullName
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}, page)

	from, to := paginate(len(people), page)
	return people[from:to], len(people), nil
}

func (repo *personRepository) GetPerson(_ context.Context, tenantID, id string) (person.Person, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.table[id]; ok && p.TenantID == tenantID {
		return *p, nil
	}
	return person.Person{}, person.ErrNotFound
}

func (repo *personRepository) CreatePerson(_ context.Context, p person.Person) (person.Person, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *personRepository) UpdatePerson(_ context.Context, p person.Person) (person.Person, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.table[p.ID]; !ok || orig.TenantID != p.TenantID {
		return person.Person{}, person.ErrNotFound
	}
	repo.db.table[p.ID] = &p
	return p, nil
}

func (repo *personRepository) DeletePerson(_ context.Context, tenantID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if p, ok := repo.db.table[id]; !ok || p.TenantID != tenantID {
		return person.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
