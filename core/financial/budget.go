package financial

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/report"
)

// Budget modes. Bottom up budgets sum their items; top down budgets start from the closed value.
const (
	BudgetBottomUp = "bottom_up"
	BudgetTopDown  = "top_down"
)

const (
	// MaxBatchItems bounds a batch creation.
	MaxBatchItems = 200
	// referenceJobsLimit is the number of similar jobs listed as budget references.
	referenceJobsLimit = 10
)

// referenceExcludedStatuses are the job statuses without useful cost data.
var referenceExcludedStatuses = []string{core.JobStatusBriefingRecebido, core.JobStatusCancelado}

// BatchCreate creates several items of the same job, or several fixed costs, at once.
type BatchCreate struct {
	Items []CostItemData `json:"items"`
}

func (bc *BatchCreate) Validate(validate *validator.Validate) error {
	if n := len(bc.Items); n == 0 || n > MaxBatchItems {
		return core.NewFieldError("items", fmt.Sprintf("items deve ter entre 1 e %d itens", MaxBatchItems))
	}
	jobID := core.StrVal(bc.Items[0].JobID)
	for i := range bc.Items {
		if err := bc.Items[i].Validate(validate, true); err != nil {
			return err
		}
		if core.StrVal(bc.Items[i].JobID) != jobID {
			return core.BadRequest("Todos os itens do batch devem ter o mesmo job_id (ou todos nulos)")
		}
	}
	return nil
}

type CopyToJob struct {
	TargetJobID string `json:"target_job_id" validate:"required,uuid"`
}

func (cj *CopyToJob) Validate(validate *validator.Validate) error { return validate.Struct(cj) }

// copyTo returns a pending, unpaid copy of `ci` for another job.
func (ci CostItem) copyTo(jobID, userID string, now time.Time) CostItem {
	cp := ci
	cp.ID = ""
	cp.JobID = &jobID
	cp.ItemStatus = StatusOrcado
	cp.StatusNote = nil
	cp.PaymentStatus = PaymentPendente
	cp.PaymentDate = nil
	cp.PaymentProofURL = nil
	cp.ActualPaidValue = nil
	cp.PaidAt = nil
	cp.CreatedBy = &userID
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.computeTotals()
	return cp
}

type BudgetModeData struct {
	BudgetMode string `json:"budget_mode" validate:"required,oneof=bottom_up top_down"`
}

func (bm *BudgetModeData) Validate(validate *validator.Validate) error { return validate.Struct(bm) }

type BudgetModeResult struct {
	JobID      string    `json:"job_id"`
	BudgetMode string    `json:"budget_mode"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BudgetCategory struct {
	ItemNumber    int     `json:"item_number"`
	ItemName      string  `json:"item_name"`
	TotalBudgeted float64 `json:"total_budgeted"`
	TotalPaid     float64 `json:"total_paid"`
	ItemsTotal    int     `json:"items_total"`
	ItemsPaid     int     `json:"items_paid"`
	PctPaid       float64 `json:"pct_paid"`
}

// BudgetSummary compares the items of a job with its closed value, per category.
type BudgetSummary struct {
	BudgetMode     string           `json:"budget_mode"`
	BudgetValue    float64          `json:"budget_value"`
	TotalEstimated float64          `json:"total_estimated"`
	TotalPaid      float64          `json:"total_paid"`
	Balance        float64          `json:"balance"`
	MarginGross    float64          `json:"margin_gross"`
	MarginPct      float64          `json:"margin_pct"`
	ByCategory     []BudgetCategory `json:"by_category"`
}

// BuildBudgetSummary aggregates the non cancelled `items` of a job. A category is named after
// its header item (sub_item_number 0).
func BuildBudgetSummary(job JobBudget, items []CostItem) BudgetSummary {
	s := BudgetSummary{BudgetMode: job.BudgetMode, ByCategory: []BudgetCategory{}}
	if s.BudgetMode == "" {
		s.BudgetMode = BudgetBottomUp
	}
	if job.ClosedValue != nil {
		s.BudgetValue = *job.ClosedValue
	}

	categories := make(map[int]*BudgetCategory)
	for _, ci := range items {
		if ci.ItemStatus == StatusCancelado {
			continue
		}
		cat, ok := categories[ci.ItemNumber]
		if !ok {
			cat = &BudgetCategory{ItemNumber: ci.ItemNumber, ItemName: "Item " + strconv.Itoa(ci.ItemNumber)}
			categories[ci.ItemNumber] = cat
		}
		if ci.SubItemNumber == 0 {
			cat.ItemName = ci.ServiceDescription
		}
		cat.TotalBudgeted += ci.TotalWithOvertime
		cat.ItemsTotal++
		s.TotalEstimated += ci.TotalWithOvertime
		if ci.PaymentStatus == PaymentPago {
			cat.TotalPaid += ci.PaidValue()
			cat.ItemsPaid++
			s.TotalPaid += ci.PaidValue()
		}
	}

	for _, cat := range categories {
		cat.TotalBudgeted = core.Round(cat.TotalBudgeted, 2)
		cat.TotalPaid = core.Round(cat.TotalPaid, 2)
		if cat.TotalBudgeted > 0 {
			cat.PctPaid = core.Round(cat.TotalPaid/cat.TotalBudgeted*100, 2)
		}
		s.ByCategory = append(s.ByCategory, *cat)
	}
	sort.Slice(s.ByCategory, func(i, j int) bool { return s.ByCategory[i].ItemNumber < s.ByCategory[j].ItemNumber })

	s.TotalEstimated = core.Round(s.TotalEstimated, 2)
	s.TotalPaid = core.Round(s.TotalPaid, 2)
	s.Balance = core.Round(s.TotalEstimated-s.TotalPaid, 2)
	s.MarginGross = core.Round(s.BudgetValue-s.TotalEstimated, 2)
	if s.BudgetValue > 0 {
		s.MarginPct = core.Round(s.MarginGross/s.BudgetValue*100, 2)
	}
	return s
}

// Category is a budget section of the standard template.
type Category struct {
	ItemNumber int
	Name       string
}

var (
	baseCategories = []Category{
		{1, "Desenvolvimento e roteiro"},
		{2, "Pre-producao"},
		{3, "Equipe de direcao"},
		{4, "Equipe de producao"},
		{5, "Equipe de camera e luz"},
		{6, "Equipamentos"},
		{7, "Elenco"},
		{8, "Direcao de arte e figurino"},
		{9, "Locacoes e estudio"},
		{10, "Transporte e alimentacao"},
		{11, "Pos-producao"},
		{12, "Som e trilha"},
		{13, "Despesas gerais"},
	}

	// categoryOverrides renames sections for the job types that budget them differently.
	categoryOverrides = map[string]map[int]string{
		"fotografia":         {5: "Equipe de fotografia", 11: "Tratamento de imagem"},
		"evento_livestream":  {9: "Espaco e estrutura", 11: "Transmissao"},
		"motion_graphics":    {5: "Animacao", 6: "Licencas e software"},
		"conteudo_digital":   {11: "Edicao e versoes"},
		"filme_publicitario": {13: "Despesas gerais e seguros"},
	}
)

// TemplateFor returns the standard budget sections of a job type.
func TemplateFor(jobType string) []Category {
	out := make([]Category, len(baseCategories))
	copy(out, baseCategories)
	for i, c := range out {
		if name, ok := categoryOverrides[jobType][c.ItemNumber]; ok {
			out[i].Name = name
		}
	}
	return out
}

// missingHeaders builds a header item for every template section the job has no header for.
func missingHeaders(job JobBudget, existing []CostItem, tenantID, userID string, now time.Time) []CostItem {
	has := make(map[int]bool)
	for _, ci := range existing {
		if ci.SubItemNumber == 0 {
			has[ci.ItemNumber] = true
		}
	}
	headers := []CostItem{}
	for _, c := range TemplateFor(job.JobType) {
		if has[c.ItemNumber] {
			continue
		}
		jobID := job.ID
		ci := CostItem{
			TenantID:           tenantID,
			JobID:              &jobID,
			ItemNumber:         c.ItemNumber,
			ServiceDescription: c.Name,
			SortOrder:          c.ItemNumber,
			Quantity:           1,
			ItemStatus:         StatusOrcado,
			PaymentStatus:      PaymentPendente,
			CreatedBy:          &userID,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		ci.computeTotals()
		headers = append(headers, ci)
	}
	return headers
}

type TemplateResult struct {
	Created int        `json:"created"`
	Items   []CostItem `json:"items"`
	Message string     `json:"message,omitempty"`
}

// ReferenceJob is a similar job whose costs can guide a new budget.
type ReferenceJob struct {
	ID             string    `json:"id" db:"id"`
	Code           string    `json:"code" db:"code"`
	Title          string    `json:"title" db:"title"`
	Status         string    `json:"status" db:"status"`
	JobType        string    `json:"job_type" db:"job_type"`
	ClosedValue    *float64  `json:"closed_value" db:"closed_value"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	CostItemsCount int       `json:"cost_items_count" db:"cost_items_count"`
	TotalEstimated float64   `json:"total_estimated" db:"total_estimated"`
	TotalPaid      float64   `json:"total_paid" db:"total_paid"`
}

type References struct {
	JobType       string         `json:"job_type"`
	ReferenceJobs []ReferenceJob `json:"reference_jobs"`
}

// Export is a rendered CSV file.
type Export struct {
	Filename string
	Content  []byte
}

var (
	exportHeader = []string{
		"Item", "Sub-Item", "Descricao", "Fornecedor", "Valor Unit.", "Qtd", "Total", "HE Horas", "HE Taxa",
		"HE Valor", "Total+HE", "Condicao Pgto", "Vencimento", "Status", "Status Pgto", "Valor Pago", "Data Pgto",
	}

	paymentConditionLabels = map[string]string{
		"a_vista": "A vista", "cnf_30": "CNF 30", "cnf_40": "CNF 40", "cnf_45": "CNF 45",
		"cnf_60": "CNF 60", "cnf_90": "CNF 90", "snf_30": "SNF 30",
	}
	itemStatusLabels = map[string]string{
		StatusOrcado: "Orcado", StatusAguardandoNF: "Aguardando NF", StatusNFPedida: "NF Pedida",
		StatusNFRecebida: "NF Recebida", StatusNFAprovada: "NF Aprovada", StatusPago: "Pago", StatusCancelado: "Cancelado",
	}
	paymentStatusLabels = map[string]string{PaymentPendente: "Pendente", PaymentPago: "Pago"}

	unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// brl renders a value with two decimals and a decimal comma. Nil renders empty.
func brl(v *float64) string {
	if v == nil {
		return ""
	}
	return strings.Replace(strconv.FormatFloat(*v, 'f', 2, 64), ".", ",", 1)
}

func label(labels map[string]string, v string) string {
	if l, ok := labels[v]; ok {
		return l
	}
	return v
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// BuildExport renders every item of a job as a CSV spreadsheet named after the job code.
func BuildExport(job JobBudget, items []CostItem, now time.Time) (Export, error) {
	records := make([][]string, 0, len(items))
	for _, ci := range items {
		total, overtime, withOvertime := ci.TotalValue, ci.OvertimeValue, ci.TotalWithOvertime
		records = append(records, []string{
			strconv.Itoa(ci.ItemNumber),
			strconv.Itoa(ci.SubItemNumber),
			ci.ServiceDescription,
			core.StrVal(ci.VendorName),
			brl(ci.UnitValue),
			strconv.Itoa(ci.Quantity),
			brl(&total),
			optional(ci.OvertimeHours),
			brl(ci.OvertimeRate),
			brl(&overtime),
			brl(&withOvertime),
			label(paymentConditionLabels, core.StrVal(ci.PaymentCondition)),
			core.StrVal(ci.PaymentDueDate),
			label(itemStatusLabels, ci.ItemStatus),
			label(paymentStatusLabels, ci.PaymentStatus),
			brl(ci.ActualPaidValue),
			core.StrVal(ci.PaymentDate),
		})
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, exportHeader, records); err != nil {
		return Export{}, err
	}
	code := job.Code
	if code == "" {
		code = job.ID
	}
	return Export{
		Filename: fmt.Sprintf("custos_%s_%s.csv", unsafeFilename.ReplaceAllString(code, "_"), now.Format("20060102")),
		Content:  buf.Bytes(),
	}, nil
}
