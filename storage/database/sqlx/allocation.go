package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/allocation"
)

var (
	allocationCols = []string{
		"id", "tenant_id", "job_id", "people_id", "job_team_id", "allocation_start", "allocation_end", "notes",
		"created_by", "created_at", "updated_at",
	}
	allocationSelect = selectList("al", allocationCols, set("allocation_start", "allocation_end"), nil) +
		`, p.full_name AS person_name, j.code AS job_code, j.title AS job_title, j.status AS job_status`
)

const allocationFrom = `allocations al
	JOIN people p ON p.id = al.people_id AND p.tenant_id = al.tenant_id
	JOIN jobs j ON j.id = al.job_id AND j.tenant_id = al.tenant_id`

type allocationRow struct {
	allocation.Allocation
	PersonName string `db:"person_name"`
	JobCode    string `db:"job_code"`
	JobTitle   string `db:"job_title"`
	JobStatus  string `db:"job_status"`
}

func (r allocationRow) toAllocation() allocation.Allocation {
	a := r.Allocation
	a.Person = &allocation.PersonRef{ID: a.PeopleID, FullName: r.PersonName}
	a.Job = &allocation.JobRef{ID: a.JobID, Code: r.JobCode, Title: r.JobTitle, Status: r.JobStatus}
	return a
}

type allocationRepository struct {
	exec core.DBExecutor
}

var _ allocation.Repository = (*allocationRepository)(nil) // interface compliance check

func NewAllocationRepository(exec core.DBExecutor) allocation.Repository {
	return &allocationRepository{exec: exec}
}

func (repo *allocationRepository) selectAllocations(ctx context.Context, w *where, order string) ([]allocation.Allocation, error) {
	var rows []allocationRow
	q := repo.exec.Rebind(`SELECT ` + allocationSelect + ` FROM ` + allocationFrom + ` WHERE ` + w.String() + ` ORDER BY ` + order)
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting allocations")
	}
	out := make([]allocation.Allocation, len(rows))
	for i, r := range rows {
		out[i] = r.toAllocation()
	}
	return out, nil
}

// intersecting selects the live allocations overlapping [from, to].
func intersecting(tenantID, from, to string) *where {
	return newWhere("al.tenant_id = ? AND al.deleted_at IS NULL AND j.deleted_at IS NULL", tenantID).
		and("al.allocation_start <= ? AND al.allocation_end >= ?", to, from)
}

func (repo *allocationRepository) ListAllocations(ctx context.Context, tenantID string, f allocation.RangeFilter) ([]allocation.Allocation, error) {
	w := newWhere("al.tenant_id = ? AND al.deleted_at IS NULL", tenantID).
		andIf(f.From != "", "al.allocation_end >= ?", f.From).
		andIf(f.To != "", "al.allocation_start <= ?", f.To).
		andIf(f.PeopleID != "", "al.people_id = ?", f.PeopleID).
		andIf(f.JobID != "", "al.job_id = ?", f.JobID)
	return repo.selectAllocations(ctx, w, "al.allocation_start, al.created_at")
}

func (repo *allocationRepository) ActiveInRange(ctx context.Context, tenantID, from, to string) ([]allocation.Allocation, error) {
	w := intersecting(tenantID, from, to).and("j.status <> ALL(?)", pq.Array(core.InactiveJobStatuses))
	return repo.selectAllocations(ctx, w, "al.people_id, al.allocation_start")
}

func (repo *allocationRepository) Overlapping(ctx context.Context, tenantID, peopleID, from, to, excludeID string) ([]allocation.Allocation, error) {
	w := intersecting(tenantID, from, to).
		and("al.people_id = ?", peopleID).
		and("j.status <> ALL(?)", pq.Array(core.InactiveJobStatuses)).
		andIf(excludeID != "", "al.id <> ?", excludeID)
	return repo.selectAllocations(ctx, w, "al.allocation_start")
}

func (repo *allocationRepository) GetAllocation(ctx context.Context, tenantID, id string) (allocation.Allocation, error) {
	var row allocationRow
	err := repo.exec.GetContext(ctx, &row, `
		SELECT `+allocationSelect+` FROM `+allocationFrom+`
		WHERE al.tenant_id = $1 AND al.id = $2 AND al.deleted_at IS NULL`,
		tenantID, id)
	if err != nil {
		return allocation.Allocation{}, trapNoRows(err, allocation.ErrNotFound, "selecting allocation")
	}
	return row.toAllocation(), nil
}

func (repo *allocationRepository) CreateAllocation(ctx context.Context, a allocation.Allocation) (allocation.Allocation, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("allocations", allocationCols), a); err != nil {
		return allocation.Allocation{}, mapWriteErr(err, "inserting allocation")
	}
	return repo.GetAllocation(ctx, a.TenantID, a.ID)
}

func (repo *allocationRepository) UpdateAllocation(ctx context.Context, a allocation.Allocation) (allocation.Allocation, error) {
	q := updateSQL("allocations", allocationCols, "job_id", "people_id", "created_by")
	if err := namedUpdate(ctx, repo.exec, q, a, allocation.ErrNotFound, "updating allocation"); err != nil {
		return allocation.Allocation{}, err
	}
	return repo.GetAllocation(ctx, a.TenantID, a.ID)
}

func (repo *allocationRepository) DeleteAllocation(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "allocations", tenantID, id, at, allocation.ErrNotFound)
}

func (repo *allocationRepository) JobExists(ctx context.Context, tenantID, id string) (bool, error) {
	return exists(ctx, repo.exec, "jobs", tenantID, id)
}

func (repo *allocationRepository) PersonExists(ctx context.Context, tenantID, id string) (bool, error) {
	return exists(ctx, repo.exec, "people", tenantID, id)
}
