package financial

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// Item statuses.
const (
	StatusOrcado       = "orcado"
	StatusAguardandoNF = "aguardando_nf"
	StatusNFPedida     = "nf_pedida"
	StatusNFRecebida   = "nf_recebida"
	StatusNFAprovada   = "nf_aprovada"
	StatusPago         = "pago"
	StatusCancelado    = "cancelado"

	PaymentPendente = "pendente"
	PaymentPago     = "pago"
)

// SortFields are the sortable list columns; lists default to item_number ASC.
var SortFields = []string{"item_number", "sub_item_number", "created_at", "payment_due_date", "total_with_overtime", "sort_order"}

// transitions lists the item statuses reachable from each status. Cancelled items can only be reactivated.
var transitions = map[string][]string{
	StatusOrcado:       {StatusAguardandoNF, StatusNFPedida, StatusNFRecebida, StatusNFAprovada, StatusPago, StatusCancelado},
	StatusAguardandoNF: {StatusOrcado, StatusNFPedida, StatusNFRecebida, StatusNFAprovada, StatusPago, StatusCancelado},
	StatusNFPedida:     {StatusOrcado, StatusAguardandoNF, StatusNFRecebida, StatusNFAprovada, StatusPago, StatusCancelado},
	StatusNFRecebida:   {StatusOrcado, StatusAguardandoNF, StatusNFAprovada, StatusPago, StatusCancelado},
	StatusNFAprovada:   {StatusOrcado, StatusPago, StatusCancelado},
	StatusPago:         {StatusCancelado},
	StatusCancelado:    {StatusOrcado},
}

// CanTransition reports whether an item may move from `from` to `to`.
func CanTransition(from, to string) bool {
	return from == to || core.StringIn(to, transitions[from])
}

// CostItem is a budget line of a job, or a fixed monthly cost when JobID is nil.
type CostItem struct {
	ID                 string     `json:"id" db:"id"`
	TenantID           string     `json:"tenant_id" db:"tenant_id"`
	JobID              *string    `json:"job_id" db:"job_id"`
	ItemNumber         int        `json:"item_number" db:"item_number"`
	SubItemNumber      int        `json:"sub_item_number" db:"sub_item_number"`
	ServiceDescription string     `json:"service_description" db:"service_description"`
	SortOrder          int        `json:"sort_order" db:"sort_order"`
	PeriodMonth        *string    `json:"period_month" db:"period_month"`
	UnitValue          *float64   `json:"unit_value" db:"unit_value"`
	Quantity           int        `json:"quantity" db:"quantity"`
	OvertimeHours      *float64   `json:"overtime_hours" db:"overtime_hours"`
	OvertimeRate       *float64   `json:"overtime_rate" db:"overtime_rate"`
	TotalValue         float64    `json:"total_value" db:"total_value"`
	OvertimeValue      float64    `json:"overtime_value" db:"overtime_value"`
	TotalWithOvertime  float64    `json:"total_with_overtime" db:"total_with_overtime"`
	PaymentCondition   *string    `json:"payment_condition" db:"payment_condition"`
	PaymentDueDate     *string    `json:"payment_due_date" db:"payment_due_date"`
	PaymentMethod      *string    `json:"payment_method" db:"payment_method"`
	ActualPaidValue    *float64   `json:"actual_paid_value" db:"actual_paid_value"`
	VendorName         *string    `json:"vendor_name" db:"vendor_name"`
	VendorEmail        *string    `json:"vendor_email" db:"vendor_email"`
	VendorPix          *string    `json:"vendor_pix" db:"vendor_pix"`
	Notes              *string    `json:"notes" db:"notes"`
	ItemStatus         string     `json:"item_status" db:"item_status"`
	StatusNote         *string    `json:"status_note" db:"status_note"`
	PaymentStatus      string     `json:"payment_status" db:"payment_status"`
	PaymentDate        *string    `json:"payment_date" db:"payment_date"`
	PaymentProofURL    *string    `json:"payment_proof_url" db:"payment_proof_url"`
	PaidAt             *time.Time `json:"paid_at" db:"paid_at"`
	CreatedBy          *string    `json:"created_by" db:"created_by"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// computeTotals sets total_value (unit value × quantity), the overtime value and their sum.
func (ci *CostItem) computeTotals() {
	var unit, hours, rate float64
	if ci.UnitValue != nil {
		unit = *ci.UnitValue
	}
	if ci.OvertimeHours != nil {
		hours = *ci.OvertimeHours
	}
	if ci.OvertimeRate != nil {
		rate = *ci.OvertimeRate
	}
	ci.TotalValue = core.Round(unit*float64(ci.Quantity), 2)
	ci.OvertimeValue = core.Round(hours*rate, 2)
	ci.TotalWithOvertime = core.Round(ci.TotalValue+ci.OvertimeValue, 2)
}

// PaidValue is the amount actually paid, defaulting to the budgeted total.
func (ci CostItem) PaidValue() float64 {
	if ci.ActualPaidValue != nil {
		return *ci.ActualPaidValue
	}
	return ci.TotalWithOvertime
}

// CostItemData creates or updates a cost item. Nil fields are left untouched on updates.
type CostItemData struct {
	JobID              *string  `json:"job_id" validate:"omitempty,uuid"`
	ItemNumber         *int     `json:"item_number" validate:"omitempty,min=1,max=99"`
	SubItemNumber      *int     `json:"sub_item_number" validate:"omitempty,min=0"`
	ServiceDescription *string  `json:"service_description" validate:"omitempty,min=1,max=500"`
	SortOrder          *int     `json:"sort_order"`
	PeriodMonth        *string  `json:"period_month" validate:"omitempty,date"`
	UnitValue          *float64 `json:"unit_value" validate:"omitempty,min=0"`
	Quantity           *int     `json:"quantity" validate:"omitempty,min=0"`
	OvertimeHours      *float64 `json:"overtime_hours" validate:"omitempty,min=0"`
	OvertimeRate       *float64 `json:"overtime_rate" validate:"omitempty,min=0"`
	PaymentCondition   *string  `json:"payment_condition" validate:"omitempty,paymentcondition"`
	PaymentDueDate     *string  `json:"payment_due_date" validate:"omitempty,date"`
	PaymentMethod      *string  `json:"payment_method" validate:"omitempty,paymentmethod"`
	ActualPaidValue    *float64 `json:"actual_paid_value" validate:"omitempty,min=0"`
	VendorName         *string  `json:"vendor_name" validate:"omitempty,max=300"`
	VendorEmail        *string  `json:"vendor_email" validate:"omitempty,email"`
	VendorPix          *string  `json:"vendor_pix" validate:"omitempty,max=200"`
	Notes              *string  `json:"notes"`
	ItemStatus         *string  `json:"item_status" validate:"omitempty,costitemstatus"`
	StatusNote         *string  `json:"status_note"`
}

func (cd *CostItemData) Validate(validate *validator.Validate, creating bool) error {
	if cd.ServiceDescription != nil {
		desc := core.CleanString(*cd.ServiceDescription)
		cd.ServiceDescription = &desc
	}
	if creating {
		if cd.ItemNumber == nil {
			return core.NewFieldError("item_number", "item_number e obrigatorio")
		}
		if core.StrVal(cd.ServiceDescription) == "" {
			return core.NewFieldError("service_description", "service_description e obrigatorio")
		}
		if core.StrVal(cd.JobID) == "" && core.StrVal(cd.PeriodMonth) == "" {
			return core.BadRequest("Custo fixo (sem job_id) requer period_month")
		}
	} else {
		if cd.JobID != nil {
			return core.BadRequest("Campo 'job_id' nao pode ser atualizado")
		}
		if *cd == (CostItemData{}) {
			return core.BadRequest("Nenhum campo para atualizar")
		}
	}
	return validate.Struct(cd)
}

func (cd CostItemData) apply(ci *CostItem) {
	core.Patch(&ci.JobID, cd.JobID)
	if cd.ItemNumber != nil {
		ci.ItemNumber = *cd.ItemNumber
	}
	if cd.SubItemNumber != nil {
		ci.SubItemNumber = *cd.SubItemNumber
	}
	if cd.ServiceDescription != nil && *cd.ServiceDescription != "" {
		ci.ServiceDescription = *cd.ServiceDescription
	}
	if cd.SortOrder != nil {
		ci.SortOrder = *cd.SortOrder
	}
	if cd.Quantity != nil {
		ci.Quantity = *cd.Quantity
	}
	for dst, src := range map[**float64]*float64{
		&ci.UnitValue:       cd.UnitValue,
		&ci.OvertimeHours:   cd.OvertimeHours,
		&ci.OvertimeRate:    cd.OvertimeRate,
		&ci.ActualPaidValue: cd.ActualPaidValue,
	} {
		if src != nil {
			*dst = src
		}
	}
	core.Patch(&ci.PeriodMonth, cd.PeriodMonth)
	core.Patch(&ci.PaymentCondition, cd.PaymentCondition)
	core.Patch(&ci.PaymentDueDate, cd.PaymentDueDate)
	core.Patch(&ci.PaymentMethod, cd.PaymentMethod)
	core.Patch(&ci.VendorName, cd.VendorName)
	core.Patch(&ci.VendorEmail, cd.VendorEmail)
	core.Patch(&ci.VendorPix, cd.VendorPix)
	core.Patch(&ci.Notes, cd.Notes)
	core.Patch(&ci.StatusNote, cd.StatusNote)
	if cd.ItemStatus != nil {
		ci.ItemStatus = *cd.ItemStatus
	}
	ci.computeTotals()
}

type QueryFilter struct {
	JobID           string
	PeriodMonthFrom string
	PeriodMonthTo   string
	ItemStatus      string
	PaymentStatus   string
	Search          string
}

// Summary aggregates the items matching a QueryFilter, regardless of pagination.
type Summary struct {
	ByStatus      map[string]int `json:"by_status"`
	TotalBudgeted float64        `json:"total_budgeted"`
	TotalPaid     float64        `json:"total_paid"`
}

// Summarize aggregates `items` the way the list endpoint reports them.
func Summarize(items []CostItem) Summary {
	s := Summary{ByStatus: make(map[string]int)}
	for _, ci := range items {
		s.ByStatus[ci.ItemStatus]++
		s.TotalBudgeted += ci.TotalWithOvertime
		if ci.PaymentStatus == PaymentPago {
			s.TotalPaid += ci.PaidValue()
		}
	}
	s.TotalBudgeted = core.Round(s.TotalBudgeted, 2)
	s.TotalPaid = core.Round(s.TotalPaid, 2)
	return s
}

type PayBatch struct {
	CostItemIDs     []string `json:"cost_item_ids" validate:"required,min=1,max=100,dive,uuid"`
	PaymentDate     string   `json:"payment_date" validate:"required,date"`
	PaymentMethod   string   `json:"payment_method" validate:"required,paymentmethod"`
	PaymentProofURL *string  `json:"payment_proof_url" validate:"omitempty,url"`
	ActualPaidValue *float64 `json:"actual_paid_value" validate:"omitempty,min=0"`
}

func (pb *PayBatch) Validate(validate *validator.Validate) error { return validate.Struct(pb) }

// MaxPreviewItems bounds batch previews and batch payments.
const MaxPreviewItems = 100

// ParseCostItemIDs splits a comma separated list of cost item ids, dropping blanks.
func ParseCostItemIDs(validate *validator.Validate, raw string) ([]string, error) {
	ids := []string{}
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	switch {
	case strings.TrimSpace(raw) == "":
		return nil, core.BadRequest("Parametro cost_item_ids e obrigatorio")
	case len(ids) == 0:
		return nil, core.BadRequest("Nenhum ID valido fornecido")
	case len(ids) > MaxPreviewItems:
		return nil, core.BadRequest(fmt.Sprintf("Maximo de %d itens por preview", MaxPreviewItems))
	}
	invalid := []string{}
	for _, id := range ids {
		if validate.Var(id, "uuid") != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return nil, core.BadRequest("IDs invalidos fornecidos").WithDetails(map[string]interface{}{"invalid_ids": invalid})
	}
	return ids, nil
}

type VendorTotal struct {
	VendorName string  `json:"vendor_name"`
	ItemsCount int     `json:"items_count"`
	Total      float64 `json:"total"`
}

// BatchPreview shows what a batch payment would cover before it is registered.
type BatchPreview struct {
	Items         []CostItem    `json:"items"`
	Total         float64       `json:"total"`
	ItemsCount    int           `json:"items_count"`
	VendorSummary []VendorTotal `json:"vendor_summary"`
	NotFoundIDs   []string      `json:"not_found_ids"`
}

// BuildBatchPreview totals `items` and groups them by vendor name, in first seen order.
// Items without a vendor are listed on their own.
func BuildBatchPreview(ids []string, items []CostItem) BatchPreview {
	bp := BatchPreview{Items: items, ItemsCount: len(items), VendorSummary: []VendorTotal{}, NotFoundIDs: []string{}}
	if bp.Items == nil {
		bp.Items = []CostItem{}
	}
	found := make(map[string]bool, len(items))
	vendors := make(map[string]int)
	for _, ci := range items {
		found[ci.ID] = true
		bp.Total += ci.TotalWithOvertime

		key, name := "item:"+ci.ID, "Sem fornecedor"
		if v := core.StrVal(ci.VendorName); v != "" {
			key, name = "vendor:"+v, v
		}
		i, ok := vendors[key]
		if !ok {
			i = len(bp.VendorSummary)
			vendors[key] = i
			bp.VendorSummary = append(bp.VendorSummary, VendorTotal{VendorName: name})
		}
		bp.VendorSummary[i].ItemsCount++
		bp.VendorSummary[i].Total = core.Round(bp.VendorSummary[i].Total+ci.TotalWithOvertime, 2)
	}
	bp.Total = core.Round(bp.Total, 2)
	for _, id := range ids {
		if !found[id] {
			bp.NotFoundIDs = append(bp.NotFoundIDs, id)
		}
	}
	return bp
}

type PayResult struct {
	ItemsPaid   int     `json:"items_paid"`
	TotalPaid   float64 `json:"total_paid"`
	PaymentDate string  `json:"payment_date"`
}

// JobBudget is the part of a job the financial views need.
type JobBudget struct {
	ID          string   `json:"id" db:"id"`
	Code        string   `json:"code" db:"code"`
	Title       string   `json:"title" db:"title"`
	JobType     string   `json:"job_type" db:"job_type"`
	BudgetMode  string   `json:"budget_mode" db:"budget_mode"`
	ClosedValue *float64 `json:"closed_value" db:"closed_value"`
}

type DashboardSummary struct {
	BudgetValue    float64 `json:"budget_value"`
	TotalEstimated float64 `json:"total_estimated"`
	TotalPaid      float64 `json:"total_paid"`
	TotalPending   float64 `json:"total_pending"`
	Balance        float64 `json:"balance"`
	MarginPct      float64 `json:"margin_pct"`
}

type CategoryTotal struct {
	ItemNumber  int     `json:"item_number"`
	Description string  `json:"description"`
	Estimated   float64 `json:"estimated"`
	Paid        float64 `json:"paid"`
	Items       int     `json:"items"`
}

type Alert struct {
	Type       string `json:"type"`
	CostItemID string `json:"cost_item_id,omitempty"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

type Dashboard struct {
	Job             JobBudget        `json:"job"`
	Summary         DashboardSummary `json:"summary"`
	ByCategory      []CategoryTotal  `json:"by_category"`
	PaymentCalendar []CostItem       `json:"payment_calendar"`
	OverdueItems    []CostItem       `json:"overdue_items"`
	Alerts          []Alert          `json:"alerts"`
}
