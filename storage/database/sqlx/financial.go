package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/financial"
)

var (
	costItemCols = []string{
		"id", "tenant_id", "job_id", "item_number", "sub_item_number", "service_description", "sort_order",
		"period_month", "unit_value", "quantity", "overtime_hours", "overtime_rate", "total_value", "overtime_value",
		"total_with_overtime", "payment_condition", "payment_due_date", "payment_method", "actual_paid_value",
		"vendor_name", "vendor_email", "vendor_pix", "notes", "item_status", "status_note", "payment_status",
		"payment_date", "payment_proof_url", "paid_at", "created_by", "created_at", "updated_at",
	}
	costItemSelect = selectList("", costItemCols, set("period_month", "payment_due_date", "payment_date"), nil)
)

type financialRepository struct {
	exec core.DBExecutor
}

var _ financial.Repository = (*financialRepository)(nil) // interface compliance check

func NewFinancialRepository(exec core.DBExecutor) financial.Repository {
	return &financialRepository{exec: exec}
}

// scope selects the live items of a tenant matching the job, period and search filters.
func (repo *financialRepository) scope(tenantID string, f financial.QueryFilter) *where {
	w := newWhere("tenant_id = ? AND deleted_at IS NULL", tenantID).
		andIf(f.JobID != "", "job_id = ?", f.JobID).
		andIf(f.PeriodMonthFrom != "", "period_month >= ?", f.PeriodMonthFrom).
		andIf(f.PeriodMonthTo != "", "period_month <= ?", f.PeriodMonthTo)
	if s := f.Search; s != "" {
		w.and("(service_description ILIKE ? OR vendor_name ILIKE ?)", like(s), like(s))
	}
	return w
}

func (repo *financialRepository) FilterItems(ctx context.Context, tenantID string, f financial.QueryFilter, p core.PageParams) ([]financial.CostItem, int, error) {
	w := repo.scope(tenantID, f).
		andIf(f.ItemStatus != "", "item_status = ?", f.ItemStatus).
		andIf(f.PaymentStatus != "", "payment_status = ?", f.PaymentStatus)

	items := make([]financial.CostItem, 0)
	total, err := page(ctx, repo.exec, &items, costItemSelect, "cost_items", w, p, "")
	return items, total, errors.Wrap(err, "filtering cost items")
}

func (repo *financialRepository) SummarizeItems(ctx context.Context, tenantID string, f financial.QueryFilter) (financial.Summary, error) {
	w := repo.scope(tenantID, f)
	var items []financial.CostItem
	q := repo.exec.Rebind(`SELECT ` + costItemSelect + ` FROM cost_items WHERE ` + w.String())
	if err := repo.exec.SelectContext(ctx, &items, q, w.args...); err != nil {
		return financial.Summary{}, errors.Wrap(err, "selecting cost items to summarize")
	}
	return financial.Summarize(items), nil
}

func (repo *financialRepository) GetItem(ctx context.Context, tenantID, id string) (financial.CostItem, error) {
	var ci financial.CostItem
	err := repo.exec.GetContext(ctx, &ci,
		`SELECT `+costItemSelect+` FROM cost_items WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, id)
	return ci, trapNoRows(err, financial.ErrNotFound, "selecting cost item")
}

func (repo *financialRepository) GetItems(ctx context.Context, tenantID string, ids []string) ([]financial.CostItem, error) {
	items := make([]financial.CostItem, 0, len(ids))
	err := repo.exec.SelectContext(ctx, &items, `
		SELECT `+costItemSelect+` FROM cost_items
		WHERE tenant_id = $1 AND id = ANY($2) AND deleted_at IS NULL
		ORDER BY item_number, sub_item_number`,
		tenantID, pq.Array(ids))
	return items, errors.Wrap(err, "selecting cost items")
}

func (repo *financialRepository) CreateItem(ctx context.Context, ci financial.CostItem) (financial.CostItem, error) {
	if ci.ID == "" {
		ci.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("cost_items", costItemCols), ci); err != nil {
		return financial.CostItem{}, mapWriteErr(err, "inserting cost item")
	}
	return ci, nil
}

func (repo *financialRepository) CreateItems(ctx context.Context, items []financial.CostItem) ([]financial.CostItem, error) {
	q := insertSQL("cost_items", costItemCols)
	err := inTx(ctx, repo.exec, func(exec core.DBExecutor) error {
		for i := range items {
			if items[i].ID == "" {
				items[i].ID = uuid.NewString()
			}
			if _, err := exec.NamedExecContext(ctx, q, items[i]); err != nil {
				return mapWriteErr(err, "inserting cost items")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (repo *financialRepository) UpdateItem(ctx context.Context, ci financial.CostItem) (financial.CostItem, error) {
	q := updateSQL("cost_items", costItemCols, "created_by")
	return ci, namedUpdate(ctx, repo.exec, q, ci, financial.ErrNotFound, "updating cost item")
}

func (repo *financialRepository) DeleteItem(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "cost_items", tenantID, id, at, financial.ErrNotFound)
}

func (repo *financialRepository) MarkPaid(ctx context.Context, tenantID string, ids []string, pb financial.PayBatch) error {
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE cost_items
		SET payment_status = $1, item_status = $1, payment_date = $2, payment_method = $3,
			payment_proof_url = COALESCE($4, payment_proof_url),
			actual_paid_value = COALESCE($5, total_with_overtime),
			paid_at = now(), updated_at = now()
		WHERE tenant_id = $6 AND id = ANY($7) AND deleted_at IS NULL`,
		financial.PaymentPago, pb.PaymentDate, pb.PaymentMethod, pb.PaymentProofURL, pb.ActualPaidValue,
		tenantID, pq.Array(ids))
	return errors.Wrap(err, "marking cost items paid")
}

func (repo *financialRepository) JobBudget(ctx context.Context, tenantID, jobID string) (financial.JobBudget, error) {
	var jb financial.JobBudget
	err := repo.exec.GetContext(ctx, &jb, `
		SELECT id, code, title, job_type, budget_mode, closed_value FROM jobs
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`,
		tenantID, jobID)
	return jb, trapNoRows(err, financial.ErrJobNotFound, "selecting job budget")
}

func (repo *financialRepository) JobItems(ctx context.Context, tenantID, jobID string) ([]financial.CostItem, error) {
	items := make([]financial.CostItem, 0)
	err := repo.exec.SelectContext(ctx, &items, `
		SELECT `+costItemSelect+` FROM cost_items
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL
		ORDER BY item_number, sub_item_number, sort_order`,
		tenantID, jobID)
	return items, errors.Wrap(err, "selecting job cost items")
}

func (repo *financialRepository) TenantItems(ctx context.Context, tenantID string) ([]financial.CostItem, error) {
	items := make([]financial.CostItem, 0)
	err := repo.exec.SelectContext(ctx, &items, `
		SELECT `+costItemSelect+` FROM cost_items
		WHERE tenant_id = $1 AND item_status <> $2 AND deleted_at IS NULL`,
		tenantID, financial.StatusCancelado)
	return items, errors.Wrap(err, "selecting tenant cost items")
}

func (repo *financialRepository) SetBudgetMode(ctx context.Context, tenantID, jobID, mode string) (time.Time, error) {
	var updatedAt time.Time
	err := repo.exec.GetContext(ctx, &updatedAt, `
		UPDATE jobs SET budget_mode = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3 AND deleted_at IS NULL
		RETURNING updated_at`,
		mode, tenantID, jobID)
	return updatedAt, trapNoRows(err, financial.ErrJobNotFound, "updating budget mode")
}

func (repo *financialRepository) SimilarJobs(ctx context.Context, tenantID, jobType, jobID string, excluded []string, limit int) ([]financial.ReferenceJob, error) {
	jobs := make([]financial.ReferenceJob, 0)
	err := repo.exec.SelectContext(ctx, &jobs, `
		SELECT j.id, j.code, j.title, j.status, j.job_type, j.closed_value, j.created_at,
			count(ci.id) AS cost_items_count,
			COALESCE(sum(ci.total_with_overtime), 0) AS total_estimated,
			COALESCE(sum(COALESCE(ci.actual_paid_value, ci.total_with_overtime)) FILTER (WHERE ci.payment_status = $5), 0) AS total_paid
		FROM jobs j
		LEFT JOIN cost_items ci ON ci.job_id = j.id AND ci.tenant_id = j.tenant_id AND ci.deleted_at IS NULL
		WHERE j.tenant_id = $1 AND j.job_type = $2 AND j.id <> $3 AND j.status <> ALL($4) AND j.deleted_at IS NULL
		GROUP BY j.id
		ORDER BY j.created_at DESC
		LIMIT $6`,
		tenantID, jobType, jobID, pq.Array(excluded), financial.PaymentPago, limit)
	return jobs, errors.Wrap(err, "selecting similar jobs")
}

func (repo *financialRepository) CheckRefs(ctx context.Context, tenantID string, refs ...core.TenantRef) error {
	return checkRefs(ctx, repo.exec, tenantID, refs)
}
