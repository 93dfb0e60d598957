package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/tenant"
)

var errSlugExists = core.Conflict("Registro duplicado").WithDetails(map[string]interface{}{"constraint": "tenants_slug_key"})

type tenantRepository struct {
	db *tenantTable
}

func NewTenantRepository(db *DB) tenant.Repository {
	return &tenantRepository{db: db.tenant}
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.table {
		if existing.Slug == t.Slug {
			return tenant.Tenant{}, errSlugExists
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	repo.db.table[t.ID] = &t
	return t, nil
}

func (repo *tenantRepository) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.table[id]; ok {
		return *t, nil
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) GetTenantBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.table {
		if t.Slug == slug {
			return *t, nil
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) UpdateSettings(_ context.Context, id string, settings tenant.Settings) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.table[id]
	if !ok {
		return tenant.ErrNotFound
	}
	t.Settings = settings
	return nil
}

func (repo *tenantRepository) SetSecret(_ context.Context, tenantID, name, value string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.secrets[tenantID+"/"+name] = value
	return nil
}

func (repo *tenantRepository) GetSecret(_ context.Context, tenantID, name string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if v, ok := repo.db.secrets[tenantID+"/"+name]; ok {
		return v, nil
	}
	return "", tenant.ErrNotFound
}
