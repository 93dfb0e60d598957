package person

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var ErrNotFound = core.NotFound("Pessoa nao encontrada")

type (
	Repository interface {
		// FilterPeople matches QueryFilter.Search case-insensitively on full_name or email.
		FilterPeople(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Person, int, error)
		GetPerson(ctx context.Context, tenantID, id string) (Person, error)
		CreatePerson(ctx context.Context, p Person) (Person, error)
		UpdatePerson(ctx context.Context, p Person) (Person, error)
		DeletePerson(ctx context.Context, tenantID, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Person, int, error) {
	filter.Clean()
	return svc.repo.FilterPeople(ctx, tenantID, filter, page)
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Person, error) {
	return svc.repo.GetPerson(ctx, tenantID, id)
}

func (svc *Service) Create(ctx context.Context, tenantID string, data PersonData) (Person, error) {
	now := time.Now().UTC()
	p := Person{TenantID: tenantID, IsActive: true, CreatedAt: now, UpdatedAt: now}
	data.apply(&p)
	created, err := svc.repo.CreatePerson(ctx, p)
	return created, errors.Wrap(err, "creating person")
}

func (svc *Service) Update(ctx context.Context, tenantID, id string, data PersonData) (Person, error) {
	p, err := svc.repo.GetPerson(ctx, tenantID, id)
	if err != nil {
		return Person{}, err
	}
	data.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePerson(ctx, p)
}

func (svc *Service) Delete(ctx context.Context, tenantID, id string) error {
	return svc.repo.DeletePerson(ctx, tenantID, id)
}
