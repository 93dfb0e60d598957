package allocation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var (
	ErrNotFound       = core.NotFound("Alocacao nao encontrada")
	ErrJobNotFound    = core.NotFound("Job nao encontrado")
	ErrPersonNotFound = core.NotFound("Pessoa nao encontrada")
)

type (
	Repository interface {
		// ListAllocations orders by allocation_start and joins person and job summaries.
		ListAllocations(ctx context.Context, tenantID string, filter RangeFilter) ([]Allocation, error)
		// ActiveInRange returns the allocations of jobs neither cancelled nor paused intersecting the range,
		// ordered by people_id then allocation_start.
		ActiveInRange(ctx context.Context, tenantID, from, to string) ([]Allocation, error)
		// Overlapping returns the allocations of a person on active jobs intersecting the range.
		Overlapping(ctx context.Context, tenantID, peopleID, from, to, excludeID string) ([]Allocation, error)
		GetAllocation(ctx context.Context, tenantID, id string) (Allocation, error)
		CreateAllocation(ctx context.Context, a Allocation) (Allocation, error)
		UpdateAllocation(ctx context.Context, a Allocation) (Allocation, error)
		DeleteAllocation(ctx context.Context, tenantID, id string, at time.Time) error

		JobExists(ctx context.Context, tenantID, id string) (bool, error)
		PersonExists(ctx context.Context, tenantID, id string) (bool, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) List(ctx context.Context, tenantID string, filter RangeFilter) ([]Allocation, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	allocs, err := svc.repo.ListAllocations(ctx, tenantID, filter)
	return allocs, errors.Wrap(err, "listing allocations")
}

// Conflicts lists the double bookings intersecting [from, to].
func (svc *Service) Conflicts(ctx context.Context, tenantID, from, to string) ([]PersonConflict, error) {
	if err := (RangeFilter{From: from, To: to}).Validate(); err != nil {
		return nil, err
	}
	allocs, err := svc.repo.ActiveInRange(ctx, tenantID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "listing active allocations")
	}
	return PairwiseConflicts(allocs), nil
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, na NewAllocation) (Allocation, []Warning, error) {
	ok, err := svc.repo.JobExists(ctx, actor.TenantID, na.JobID)
	if err != nil {
		return Allocation{}, nil, errors.Wrap(err, "checking job")
	}
	if !ok {
		return Allocation{}, nil, ErrJobNotFound
	}
	if ok, err = svc.repo.PersonExists(ctx, actor.TenantID, na.PeopleID); err != nil {
		return Allocation{}, nil, errors.Wrap(err, "checking person")
	}
	if !ok {
		return Allocation{}, nil, ErrPersonNotFound
	}

	now := time.Now().UTC()
	a, err := svc.repo.CreateAllocation(ctx, Allocation{
		TenantID:        actor.TenantID,
		JobID:           na.JobID,
		PeopleID:        na.PeopleID,
		JobTeamID:       core.NilIfBlank(na.JobTeamID),
		AllocationStart: na.AllocationStart,
		AllocationEnd:   na.AllocationEnd,
		Notes:           core.NilIfBlank(na.Notes),
		CreatedBy:       &actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return Allocation{}, nil, errors.Wrap(err, "creating allocation")
	}
	return a, svc.detect(ctx, a), nil
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ua UpdateAllocation) (Allocation, []Warning, error) {
	a, err := svc.repo.GetAllocation(ctx, actor.TenantID, id)
	if err != nil {
		return Allocation{}, nil, err
	}
	ua.apply(&a)
	if err := checkRange(a.AllocationStart, a.AllocationEnd); err != nil {
		return Allocation{}, nil, err
	}
	a.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateAllocation(ctx, a)
	if err != nil {
		return Allocation{}, nil, errors.Wrap(err, "updating allocation")
	}
	return updated, svc.detect(ctx, updated), nil
}

func (svc *Service) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := svc.repo.GetAllocation(ctx, tenantID, id); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteAllocation(ctx, tenantID, id, time.Now().UTC()), "deleting allocation")
}

// detect returns the conflicts of `a` with the other bookings of the same person.
// Detection failures are logged and yield no warnings.
func (svc *Service) detect(ctx context.Context, a Allocation) []Warning {
	overlapping, err := svc.repo.Overlapping(ctx, a.TenantID, a.PeopleID, a.AllocationStart, a.AllocationEnd, a.ID)
	if err != nil {
		svc.logger.Warn("detecting allocation conflicts", errors.Wrap(err, "detecting allocation conflicts"), a.ID)
		return nil
	}
	return Warnings(overlapping, a.AllocationStart, a.AllocationEnd)
}
