package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/client"
)

const (
	companyColumns = `name, trading_name, cnpj, address, city, state, cep, website, notes`
	companyValues  = `:name, :trading_name, :cnpj, :address, :city, :state, :cep, :website, :notes`
	companySet     = `name = :name, trading_name = :trading_name, cnpj = :cnpj, address = :address, city = :city,
		state = :state, cep = :cep, website = :website, notes = :notes`

	clientColumns  = `id, tenant_id, ` + companyColumns + `, segment, is_active, created_at, updated_at`
	agencyColumns  = `id, tenant_id, ` + companyColumns + `, is_active, created_at, updated_at`
	contactColumns = `id, tenant_id, client_id, agency_id, name, email, phone, role, is_primary, created_at, updated_at`
)

type clientRepository struct {
	exec core.DBExecutor
}

var _ client.Repository = (*clientRepository)(nil) // interface compliance check

func NewClientRepository(exec core.DBExecutor) client.Repository {
	return &clientRepository{exec: exec}
}

func companyWhere(tenantID string, filter client.QueryFilter) *where {
	w := newWhere("tenant_id = ? AND deleted_at IS NULL", tenantID)
	if s := filter.Search; s != "" {
		w.and("(name ILIKE ? OR trading_name ILIKE ? OR cnpj ILIKE ?)", like(s), like(s), like(s))
	}
	if filter.IsActive != nil {
		w.and("is_active = ?", *filter.IsActive)
	}
	return w
}

func (repo *clientRepository) FilterClients(ctx context.Context, tenantID string, filter client.QueryFilter, p core.PageParams) ([]client.Client, int, error) {
	w := companyWhere(tenantID, filter).andIf(filter.Segment != "", "segment = ?", filter.Segment)
	clients := make([]client.Client, 0)
	total, err := page(ctx, repo.exec, &clients, clientColumns, "clients", w, p, "")
	return clients, total, errors.Wrap(err, "filtering clients")
}

func (repo *clientRepository) GetClient(ctx context.Context, tenantID, id string) (client.Client, error) {
	var c client.Client
	err := repo.exec.GetContext(ctx, &c,
		`SELECT `+clientColumns+` FROM clients WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	return c, trapNoRows(err, client.ErrNotFound, "selecting client")
}

func (repo *clientRepository) CreateClient(ctx context.Context, c client.Client) (client.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:id, :tenant_id, `+companyValues+`, :segment, :is_active, :created_at, :updated_at)`,
		c)
	if err != nil {
		return client.Client{}, mapWriteErr(err, "inserting client")
	}
	return c, nil
}

func (repo *clientRepository) UpdateClient(ctx context.Context, c client.Client) (client.Client, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE clients SET `+companySet+`, segment = :segment, is_active = :is_active, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id AND deleted_at IS NULL`,
		c)
	if err != nil {
		return client.Client{}, mapWriteErr(err, "updating client")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return client.Client{}, client.ErrNotFound
	}
	return c, nil
}

func (repo *clientRepository) DeleteClient(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, repo.exec, "clients", tenantID, id, time.Now().UTC(), client.ErrNotFound)
}

func (repo *clientRepository) FilterAgencies(ctx context.Context, tenantID string, filter client.QueryFilter, p core.PageParams) ([]client.Agency, int, error) {
	agencies := make([]client.Agency, 0)
	total, err := page(ctx, repo.exec, &agencies, agencyColumns, "agencies", companyWhere(tenantID, filter), p, "")
	return agencies, total, errors.Wrap(err, "filtering agencies")
}

func (repo *clientRepository) GetAgency(ctx context.Context, tenantID, id string) (client.Agency, error) {
	var a client.Agency
	err := repo.exec.GetContext(ctx, &a,
		`SELECT `+agencyColumns+` FROM agencies WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	return a, trapNoRows(err, client.ErrAgencyNotFound, "selecting agency")
}

func (repo *clientRepository) CreateAgency(ctx context.Context, a client.Agency) (client.Agency, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO agencies (`+agencyColumns+`)
		VALUES (:id, :tenant_id, `+companyValues+`, :is_active, :created_at, :updated_at)`,
		a)
	if err != nil {
		return client.Agency{}, mapWriteErr(err, "inserting agency")
	}
	return a, nil
}

func (repo *clientRepository) UpdateAgency(ctx context.Context, a client.Agency) (client.Agency, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE agencies SET `+companySet+`, is_active = :is_active, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id AND deleted_at IS NULL`,
		a)
	if err != nil {
		return client.Agency{}, mapWriteErr(err, "updating agency")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return client.Agency{}, client.ErrAgencyNotFound
	}
	return a, nil
}

func (repo *clientRepository) DeleteAgency(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, repo.exec, "agencies", tenantID, id, time.Now().UTC(), client.ErrAgencyNotFound)
}

func (repo *clientRepository) ListContacts(ctx context.Context, tenantID string, filter client.ContactFilter) ([]client.Contact, error) {
	w := newWhere("tenant_id = ? AND deleted_at IS NULL", tenantID).
		andIf(filter.ClientID != "", "client_id = ?", filter.ClientID).
		andIf(filter.AgencyID != "", "agency_id = ?", filter.AgencyID)

	contacts := make([]client.Contact, 0)
	q := repo.exec.Rebind(`SELECT ` + contactColumns + ` FROM contacts WHERE ` + w.String() + ` ORDER BY is_primary DESC, name`)
	err := repo.exec.SelectContext(ctx, &contacts, q, w.args...)
	return contacts, errors.Wrap(err, "selecting contacts")
}

func (repo *clientRepository) GetContact(ctx context.Context, tenantID, id string) (client.Contact, error) {
	var c client.Contact
	err := repo.exec.GetContext(ctx, &c,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	return c, trapNoRows(err, client.ErrContactNotFound, "selecting contact")
}

func (repo *clientRepository) CreateContact(ctx context.Context, c client.Contact) (client.Contact, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (:id, :tenant_id, :client_id, :agency_id, :name, :email, :phone, :role, :is_primary, :created_at, :updated_at)`,
		c)
	if err != nil {
		return client.Contact{}, mapWriteErr(err, "inserting contact")
	}
	return c, nil
}

func (repo *clientRepository) UpdateContact(ctx context.Context, c client.Contact) (client.Contact, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE contacts
		SET name = :name, email = :email, phone = :phone, role = :role, is_primary = :is_primary, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id AND deleted_at IS NULL`,
		c)
	if err != nil {
		return client.Contact{}, mapWriteErr(err, "updating contact")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return client.Contact{}, client.ErrContactNotFound
	}
	return c, nil
}

func (repo *clientRepository) DeleteContact(ctx context.Context, tenantID, id string) error {
	return softDelete(ctx, repo.exec, "contacts", tenantID, id, time.Now().UTC(), client.ErrContactNotFound)
}
