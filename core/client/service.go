package client

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var (
	ErrNotFound        = core.NotFound("Cliente nao encontrado")
	ErrAgencyNotFound  = core.NotFound("Agencia nao encontrada")
	ErrContactNotFound = core.NotFound("Contato nao encontrado")
)

type (
	Repository interface {
		// FilterClients matches QueryFilter.Search case-insensitively on name, trading_name or cnpj.
		FilterClients(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Client, int, error)
		GetClient(ctx context.Context, tenantID, id string) (Client, error)
		CreateClient(ctx context.Context, c Client) (Client, error)
		UpdateClient(ctx context.Context, c Client) (Client, error)
		DeleteClient(ctx context.Context, tenantID, id string) error

		FilterAgencies(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Agency, int, error)
		GetAgency(ctx context.Context, tenantID, id string) (Agency, error)
		CreateAgency(ctx context.Context, a Agency) (Agency, error)
		UpdateAgency(ctx context.Context, a Agency) (Agency, error)
		DeleteAgency(ctx context.Context, tenantID, id string) error

		ListContacts(ctx context.Context, tenantID string, filter ContactFilter) ([]Contact, error)
		GetContact(ctx context.Context, tenantID, id string) (Contact, error)
		CreateContact(ctx context.Context, c Contact) (Contact, error)
		UpdateContact(ctx context.Context, c Contact) (Contact, error)
		DeleteContact(ctx context.Context, tenantID, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Client, int, error) {
	filter.Clean()
	return svc.repo.FilterClients(ctx, tenantID, filter, page)
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Client, error) {
	return svc.repo.GetClient(ctx, tenantID, id)
}

func (svc *Service) Create(ctx context.Context, tenantID string, data ClientData) (Client, error) {
	now := time.Now().UTC()
	c := Client{TenantID: tenantID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	data.apply(&c)
	created, err := svc.repo.CreateClient(ctx, c)
	return created, errors.Wrap(err, "creating client")
}

func (svc *Service) Update(ctx context.Context, tenantID, id string, data ClientData) (Client, error) {
	c, err := svc.repo.GetClient(ctx, tenantID, id)
	if err != nil {
		return Client{}, err
	}
	data.apply(&c)
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClient(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeleteClient(ctx, tenantID, id)
}

func (svc *Service) QueryAgencies(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Agency, int, error) {
	filter.Clean()
	filter.Segment = ""
	return svc.repo.FilterAgencies(ctx, tenantID, filter, page)
}

func (svc *Service) GetAgency(ctx context.Context, tenantID, id string) (Agency, error) {
	return svc.repo.GetAgency(ctx, tenantID, id)
}

func (svc *Service) CreateAgency(ctx context.Context, tenantID string, data AgencyData) (Agency, error) {
	now := time.Now().UTC()
	a := Agency{TenantID: tenantID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	data.apply(&a)
	created, err := svc.repo.CreateAgency(ctx, a)
	return created, errors.Wrap(err, "creating agency")
}

func (svc *Service) UpdateAgency(ctx context.Context, tenantID, id string, data AgencyData) (Agency, error) {
	a, err := svc.repo.GetAgency(ctx, tenantID, id)
	if err != nil {
		return Agency{}, err
	}
	data.apply(&a)
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAgency(ctx, a)
}

func (svc *Service) DeleteAgency(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeleteAgency(ctx, tenantID, id)
}

func (svc *Service) ListContacts(ctx context.Context, tenantID string, filter ContactFilter) ([]Contact, error) {
	return svc.repo.ListContacts(ctx, tenantID, filter)
}

func (svc *Service) GetContact(ctx context.Context, tenantID, id string) (Contact, error) {
	return svc.repo.GetContact(ctx, tenantID, id)
}

// CreateContact attaches a contact to an existing client or agency of the tenant.
func (svc *Service) CreateContact(ctx context.Context, tenantID string, data ContactData) (Contact, error) {
	if id := core.StrVal(data.ClientID); id != "" {
		if _, err := svc.repo.GetClient(ctx, tenantID, id); err != nil {
			return Contact{}, err
		}
	}
	if id := core.StrVal(data.AgencyID); id != "" {
		if _, err := svc.repo.GetAgency(ctx, tenantID, id); err != nil {
			return Contact{}, err
		}
	}

	now := time.Now().UTC()
	c := Contact{
		TenantID:  tenantID,
		ClientID:  core.NilIfBlank(data.ClientID),
		AgencyID:  core.NilIfBlank(data.AgencyID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	data.apply(&c)
	created, err := svc.repo.CreateContact(ctx, c)
	return created, errors.Wrap(err, "creating contact")
}

func (svc *Service) UpdateContact(ctx context.Context, tenantID, id string, data ContactData) (Contact, error) {
	c, err := svc.repo.GetContact(ctx, tenantID, id)
	if err != nil {
		return Contact{}, err
	}
	data.apply(&c)
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateContact(ctx, c)
}

func (svc *Service) DeleteContact(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeleteContact(ctx, tenantID, id)
}
