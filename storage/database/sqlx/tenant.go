package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/tenant"
)

const tenantColumns = `id, name, slug, settings, created_at, updated_at`

type tenantRepository struct {
	exec core.DBExecutor
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(exec core.DBExecutor) tenant.Repository {
	return &tenantRepository{exec: exec}
}

func (repo *tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (:id, :name, :slug, :settings, :created_at, :updated_at)`,
		t)
	if err != nil {
		return tenant.Tenant{}, mapWriteErr(err, "inserting tenant")
	}
	return t, nil
}

func (repo *tenantRepository) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := repo.exec.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return t, trapNoRows(err, tenant.ErrNotFound, "selecting tenant")
}

func (repo *tenantRepository) GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	var t tenant.Tenant
	err := repo.exec.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug)
	return t, trapNoRows(err, tenant.ErrNotFound, "selecting tenant by slug")
}

func (repo *tenantRepository) UpdateSettings(ctx context.Context, id string, settings tenant.Settings) error {
	res, err := repo.exec.ExecContext(ctx,
		`UPDATE tenants SET settings = $1, updated_at = $2 WHERE id = $3`, settings, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "updating tenant settings")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrNotFound
	}
	return nil
}

func (repo *tenantRepository) SetSecret(ctx context.Context, tenantID, name, value string) error {
	_, err := repo.exec.ExecContext(ctx, `
		INSERT INTO tenant_secrets (tenant_id, name, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id, name) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		tenantID, name, value)
	return mapWriteErr(err, "upserting tenant secret")
}

func (repo *tenantRepository) GetSecret(ctx context.Context, tenantID, name string) (string, error) {
	var value string
	err := repo.exec.GetContext(ctx, &value,
		`SELECT value FROM tenant_secrets WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	return value, trapNoRows(err, tenant.ErrNotFound, "selecting tenant secret")
}
