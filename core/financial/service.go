package financial

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	// DivergenceThreshold is the relative gap between paid and budgeted values that raises an alert.
	DivergenceThreshold = 0.05

	// UndoPayWindow is how long after a payment non managers may undo it.
	UndoPayWindow = 48 * time.Hour

	overdueLookbackDays  = 7
	calendarLookheadDays = 30
)

var (
	ErrNotFound    = core.NotFound("Item de custo nao encontrado")
	ErrJobNotFound = core.NotFound("Job nao encontrado")
)

type (
	Repository interface {
		FilterItems(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]CostItem, int, error)
		// SummarizeItems ignores the status filters and pagination.
		SummarizeItems(ctx context.Context, tenantID string, filter QueryFilter) (Summary, error)
		GetItem(ctx context.Context, tenantID, id string) (CostItem, error)
		// GetItems returns the items found among `ids`.
		GetItems(ctx context.Context, tenantID string, ids []string) ([]CostItem, error)
		CreateItem(ctx context.Context, ci CostItem) (CostItem, error)
		// CreateItems inserts every item in one transaction.
		CreateItems(ctx context.Context, items []CostItem) ([]CostItem, error)
		UpdateItem(ctx context.Context, ci CostItem) (CostItem, error)
		DeleteItem(ctx context.Context, tenantID, id string, at time.Time) error
		// MarkPaid sets the payment fields of every item in one statement.
		MarkPaid(ctx context.Context, tenantID string, ids []string, pb PayBatch) error

		JobBudget(ctx context.Context, tenantID, jobID string) (JobBudget, error)
		// JobItems returns every live item of a job ordered by item_number, sub_item_number and sort_order.
		JobItems(ctx context.Context, tenantID, jobID string) ([]CostItem, error)
		// TenantItems returns the live, non cancelled items of a tenant.
		TenantItems(ctx context.Context, tenantID string) ([]CostItem, error)
		SetBudgetMode(ctx context.Context, tenantID, jobID, mode string) (time.Time, error)
		// SimilarJobs lists the latest jobs of `jobType` other than `jobID`, with their cost totals.
		SimilarJobs(ctx context.Context, tenantID, jobType, jobID string, excludedStatuses []string, limit int) ([]ReferenceJob, error)

		// CheckRefs fails with a 400 naming the first ref that is not a live row of the tenant.
		CheckRefs(ctx context.Context, tenantID string, refs ...core.TenantRef) error
	}

	// HistoryRecorder appends entries to a job history.
	HistoryRecorder interface {
		Record(ctx context.Context, actor core.Actor, jobID, eventType string, before, after core.JSONMap, desc string)
	}

	Service struct {
		repo    Repository
		history HistoryRecorder
	}
)

const eventFinancialUpdate = "financial_update"

func NewService(repo Repository, history HistoryRecorder) *Service {
	return &Service{repo: repo, history: history}
}

// Query lists cost items and summarizes every item matching the scope of `filter`.
func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]CostItem, int, Summary, error) {
	items, total, err := svc.repo.FilterItems(ctx, tenantID, filter, page)
	if err != nil {
		return nil, 0, Summary{}, errors.Wrap(err, "filtering cost items")
	}
	summary, err := svc.repo.SummarizeItems(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, Summary{}, errors.Wrap(err, "summarizing cost items")
	}
	return items, total, summary, nil
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (CostItem, error) {
	return svc.repo.GetItem(ctx, tenantID, id)
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, data CostItemData) (CostItem, error) {
	now := time.Now().UTC()
	ci := CostItem{
		TenantID:      actor.TenantID,
		Quantity:      1,
		ItemStatus:    StatusOrcado,
		PaymentStatus: PaymentPendente,
		CreatedBy:     &actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	data.apply(&ci)
	if err := svc.repo.CheckRefs(ctx, actor.TenantID, itemRefs(ci)...); err != nil {
		return CostItem{}, err
	}

	created, err := svc.repo.CreateItem(ctx, ci)
	if err != nil {
		return CostItem{}, errors.Wrap(err, "creating cost item")
	}
	if created.JobID != nil {
		svc.history.Record(ctx, actor, *created.JobID, eventFinancialUpdate, nil,
			core.JSONMap{"cost_item_id": created.ID, "total_with_overtime": created.TotalWithOvertime},
			fmt.Sprintf("Item de custo adicionado: %s", created.ServiceDescription))
	}
	return created, nil
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, data CostItemData) (CostItem, error) {
	ci, err := svc.repo.GetItem(ctx, actor.TenantID, id)
	if err != nil {
		return CostItem{}, err
	}
	if data.ItemStatus != nil && !CanTransition(ci.ItemStatus, *data.ItemStatus) {
		return CostItem{}, core.BusinessRule(fmt.Sprintf("Transicao de status invalida: %s -> %s", ci.ItemStatus, *data.ItemStatus)).
			WithDetails(map[string]interface{}{"current_status": ci.ItemStatus, "target_status": *data.ItemStatus})
	}

	before := snapshot(ci)
	data.apply(&ci)
	ci.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateItem(ctx, ci)
	if err != nil {
		return CostItem{}, errors.Wrap(err, "updating cost item")
	}
	if updated.JobID != nil {
		svc.history.Record(ctx, actor, *updated.JobID, eventFinancialUpdate, before, snapshot(updated),
			fmt.Sprintf("Item de custo atualizado: %s", before["service_description"]))
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	ci, err := svc.repo.GetItem(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeleteItem(ctx, actor.TenantID, id, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "deleting cost item")
	}
	if ci.JobID != nil {
		svc.history.Record(ctx, actor, *ci.JobID, eventFinancialUpdate, snapshot(ci), nil,
			fmt.Sprintf("Item de custo removido: %s", ci.ServiceDescription))
	}
	return nil
}

func itemRefs(ci CostItem) []core.TenantRef {
	return core.OptionalRefs(core.TenantRef{Field: "job_id", Table: "jobs", ID: core.StrVal(ci.JobID)})
}

// CreateBatch creates items sharing the same job_id in one transaction.
func (svc *Service) CreateBatch(ctx context.Context, actor core.Actor, bc BatchCreate) ([]CostItem, error) {
	now := time.Now().UTC()
	items := make([]CostItem, 0, len(bc.Items))
	for _, data := range bc.Items {
		ci := CostItem{
			TenantID:      actor.TenantID,
			Quantity:      1,
			ItemStatus:    StatusOrcado,
			PaymentStatus: PaymentPendente,
			CreatedBy:     &actor.UserID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		data.apply(&ci)
		items = append(items, ci)
	}
	if err := svc.repo.CheckRefs(ctx, actor.TenantID, itemRefs(items[0])...); err != nil {
		return nil, err
	}

	created, err := svc.repo.CreateItems(ctx, items)
	if err != nil {
		return nil, errors.Wrap(err, "creating cost items")
	}
	if jobID := created[0].JobID; jobID != nil {
		var total float64
		for _, ci := range created {
			total += ci.TotalWithOvertime
		}
		svc.history.Record(ctx, actor, *jobID, eventFinancialUpdate, nil,
			core.JSONMap{"items_created": len(created), "total_with_overtime": core.Round(total, 2)},
			fmt.Sprintf("%d itens de custo adicionados em lote", len(created)))
	}
	return created, nil
}

// CopyToJob copies an item into another job of the tenant as a new, unpaid budget line.
func (svc *Service) CopyToJob(ctx context.Context, actor core.Actor, id string, cj CopyToJob) (CostItem, error) {
	ci, err := svc.repo.GetItem(ctx, actor.TenantID, id)
	if err != nil {
		return CostItem{}, err
	}
	if _, err := svc.repo.JobBudget(ctx, actor.TenantID, cj.TargetJobID); err != nil {
		if errors.Cause(err) == ErrJobNotFound {
			return CostItem{}, core.NotFound("Job destino nao encontrado")
		}
		return CostItem{}, err
	}

	created, err := svc.repo.CreateItem(ctx, ci.copyTo(cj.TargetJobID, actor.UserID, time.Now().UTC()))
	if err != nil {
		return CostItem{}, errors.Wrap(err, "copying cost item")
	}
	svc.history.Record(ctx, actor, cj.TargetJobID, eventFinancialUpdate, nil,
		core.JSONMap{"cost_item_id": created.ID, "copied_from": ci.ID},
		fmt.Sprintf("Item de custo copiado: %s", created.ServiceDescription))
	return created, nil
}

func snapshot(ci CostItem) core.JSONMap {
	return core.JSONMap{
		"id":                  ci.ID,
		"item_number":         ci.ItemNumber,
		"sub_item_number":     ci.SubItemNumber,
		"service_description": ci.ServiceDescription,
		"item_status":         ci.ItemStatus,
		"total_with_overtime": ci.TotalWithOvertime,
	}
}

// Pay registers the payment of a batch of items. Every item must exist and none may be paid already.
func (svc *Service) Pay(ctx context.Context, actor core.Actor, pb PayBatch) (PayResult, error) {
	ids := dedupe(pb.CostItemIDs)
	items, err := svc.repo.GetItems(ctx, actor.TenantID, ids)
	if err != nil {
		return PayResult{}, errors.Wrap(err, "loading cost items")
	}

	if len(items) != len(ids) {
		found := make(map[string]bool, len(items))
		for _, ci := range items {
			found[ci.ID] = true
		}
		missing := []string{}
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return PayResult{}, core.NotFound("Itens de custo nao encontrados ou sem permissao").
			WithDetails(map[string]interface{}{"missing_ids": missing})
	}

	paid := []string{}
	var total float64
	for _, ci := range items {
		if ci.PaymentStatus == PaymentPago {
			paid = append(paid, ci.ID)
		}
		total += ci.TotalWithOvertime
	}
	if len(paid) > 0 {
		return PayResult{}, core.Conflict("Um ou mais itens ja possuem pagamento registrado").
			WithDetails(map[string]interface{}{"already_paid_ids": paid})
	}

	// an actual paid value only makes sense for a single item
	if len(ids) != 1 {
		pb.ActualPaidValue = nil
	}
	if err := svc.repo.MarkPaid(ctx, actor.TenantID, ids, pb); err != nil {
		return PayResult{}, errors.Wrap(err, "registering payments")
	}

	for _, ci := range items {
		if ci.JobID == nil {
			continue
		}
		svc.history.Record(ctx, actor, *ci.JobID, eventFinancialUpdate, nil, core.JSONMap{
			"cost_item_id":   ci.ID,
			"payment_status": PaymentPago,
			"payment_date":   pb.PaymentDate,
			"payment_method": pb.PaymentMethod,
		}, fmt.Sprintf("Pagamento registrado para: %s", ci.ServiceDescription))
	}
	return PayResult{ItemsPaid: len(items), TotalPaid: core.Round(total, 2), PaymentDate: pb.PaymentDate}, nil
}

// UndoPay reverts the payment of an item. Non managers may only do it within UndoPayWindow.
func (svc *Service) UndoPay(ctx context.Context, actor core.Actor, id string) (CostItem, error) {
	ci, err := svc.repo.GetItem(ctx, actor.TenantID, id)
	if err != nil {
		return CostItem{}, err
	}
	if ci.PaymentStatus != PaymentPago {
		return CostItem{}, core.BusinessRule("Item de custo nao possui pagamento registrado")
	}
	now := core.NowFunc().UTC()
	if !core.StringIn(actor.Role, core.ManagerRoles) {
		if paidAt, ok := ci.paidAt(); ok && now.Sub(paidAt) > UndoPayWindow {
			return CostItem{}, core.BusinessRule("Prazo de 48 horas para desfazer pagamento expirado. Contate um administrador.")
		}
	}

	before := core.JSONMap{"payment_status": ci.PaymentStatus, "payment_date": ci.PaymentDate, "item_status": ci.ItemStatus}
	ci.PaymentStatus = PaymentPendente
	ci.PaymentDate = nil
	ci.PaymentMethod = nil
	ci.PaymentProofURL = nil
	ci.ActualPaidValue = nil
	ci.PaidAt = nil
	if ci.ItemStatus == StatusPago {
		ci.ItemStatus = StatusOrcado
	}
	ci.UpdatedAt = now

	updated, err := svc.repo.UpdateItem(ctx, ci)
	if err != nil {
		return CostItem{}, errors.Wrap(err, "undoing payment")
	}
	if updated.JobID != nil {
		svc.history.Record(ctx, actor, *updated.JobID, eventFinancialUpdate, before,
			core.JSONMap{"payment_status": updated.PaymentStatus, "item_status": updated.ItemStatus},
			fmt.Sprintf("Pagamento desfeito para: %s", updated.ServiceDescription))
	}
	return updated, nil
}

// paidAt is when the payment was registered, or the start of the payment date for items paid
// before registration times were kept.
func (ci CostItem) paidAt() (time.Time, bool) {
	if ci.PaidAt != nil {
		return *ci.PaidAt, true
	}
	if ci.PaymentDate != nil {
		if d, err := time.Parse(core.DateLayout, *ci.PaymentDate); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// BatchPreview totals the items a batch payment would cover. Unknown ids are reported, not rejected.
func (svc *Service) BatchPreview(ctx context.Context, tenantID string, ids []string) (BatchPreview, error) {
	ids = dedupe(ids)
	items, err := svc.repo.GetItems(ctx, tenantID, ids)
	if err != nil {
		return BatchPreview{}, errors.Wrap(err, "loading cost items")
	}
	return BuildBatchPreview(ids, items), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// JobDashboard computes the financial position of a job.
func (svc *Service) JobDashboard(ctx context.Context, tenantID, jobID string) (Dashboard, error) {
	job, err := svc.repo.JobBudget(ctx, tenantID, jobID)
	if err != nil {
		return Dashboard{}, err
	}
	items, err := svc.repo.JobItems(ctx, tenantID, jobID)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "loading job cost items")
	}
	return BuildDashboard(job, items, core.NowFunc().UTC()), nil
}

// TenantDashboard consolidates the financial position of the whole tenant.
func (svc *Service) TenantDashboard(ctx context.Context, tenantID string) (TenantDashboard, error) {
	items, err := svc.repo.TenantItems(ctx, tenantID)
	if err != nil {
		return TenantDashboard{}, errors.Wrap(err, "loading tenant cost items")
	}
	return BuildTenantDashboard(items, core.NowFunc().UTC()), nil
}

// BuildDashboard aggregates the non cancelled `items` of a job.
func BuildDashboard(job JobBudget, items []CostItem, now time.Time) Dashboard {
	today := now.Format(core.DateLayout)
	calendarFrom := now.AddDate(0, 0, -overdueLookbackDays).Format(core.DateLayout)
	calendarTo := now.AddDate(0, 0, calendarLookheadDays).Format(core.DateLayout)

	d := Dashboard{
		Job:             job,
		ByCategory:      []CategoryTotal{},
		PaymentCalendar: []CostItem{},
		OverdueItems:    []CostItem{},
		Alerts:          []Alert{},
	}
	categories := make(map[int]*CategoryTotal)
	divergent := false

	for _, ci := range items {
		if ci.ItemStatus == StatusCancelado {
			continue
		}
		d.Summary.TotalEstimated += ci.TotalWithOvertime

		cat, ok := categories[ci.ItemNumber]
		if !ok {
			cat = &CategoryTotal{ItemNumber: ci.ItemNumber}
			categories[ci.ItemNumber] = cat
		}
		if ci.SubItemNumber == 0 || cat.Description == "" {
			cat.Description = ci.ServiceDescription
		}
		cat.Estimated += ci.TotalWithOvertime
		cat.Items++

		if ci.PaymentStatus == PaymentPago {
			d.Summary.TotalPaid += ci.PaidValue()
			cat.Paid += ci.PaidValue()
			if !divergent && ci.ActualPaidValue != nil && ci.TotalWithOvertime > 0 {
				diff := math.Abs(*ci.ActualPaidValue-ci.TotalWithOvertime) / ci.TotalWithOvertime
				if diff > DivergenceThreshold {
					divergent = true
					d.Alerts = append(d.Alerts, Alert{
						Type:       "value_divergence",
						CostItemID: ci.ID,
						Message:    fmt.Sprintf("Divergencia de valor detectada: valor pago difere %d%% do orcado", int(math.Round(diff*100))),
						Severity:   "low",
					})
				}
			}
			continue
		}

		if due := ci.PaymentDueDate; due != nil {
			if *due >= calendarFrom && *due <= calendarTo {
				d.PaymentCalendar = append(d.PaymentCalendar, ci)
			}
			if *due < today {
				d.OverdueItems = append(d.OverdueItems, ci)
				d.Alerts = append(d.Alerts, Alert{
					Type:       "overdue",
					CostItemID: ci.ID,
					Message:    fmt.Sprintf("Pagamento vencido: %s (venceu em %s)", ci.ServiceDescription, *due),
					Severity:   "high",
				})
			}
		}
	}

	s := &d.Summary
	if job.ClosedValue != nil {
		s.BudgetValue = *job.ClosedValue
	}
	s.TotalEstimated = core.Round(s.TotalEstimated, 2)
	s.TotalPaid = core.Round(s.TotalPaid, 2)
	s.TotalPending = core.Round(s.TotalEstimated-s.TotalPaid, 2)
	s.Balance = core.Round(s.BudgetValue-s.TotalEstimated, 2)
	if s.BudgetValue > 0 {
		s.MarginPct = core.Round(s.Balance/s.BudgetValue*100, 2)
	}
	if s.BudgetValue > 0 && s.TotalEstimated > s.BudgetValue {
		d.Alerts = append(d.Alerts, Alert{
			Type:     "value_divergence",
			Message:  fmt.Sprintf("Custo estimado (R$ %.2f) excede o valor fechado (R$ %.2f)", s.TotalEstimated, s.BudgetValue),
			Severity: "high",
		})
	}

	for _, cat := range categories {
		cat.Estimated = core.Round(cat.Estimated, 2)
		cat.Paid = core.Round(cat.Paid, 2)
		d.ByCategory = append(d.ByCategory, *cat)
	}
	sort.Slice(d.ByCategory, func(i, j int) bool { return d.ByCategory[i].ItemNumber < d.ByCategory[j].ItemNumber })
	sort.SliceStable(d.OverdueItems, func(i, j int) bool {
		return *d.OverdueItems[i].PaymentDueDate < *d.OverdueItems[j].PaymentDueDate
	})
	return d
}
