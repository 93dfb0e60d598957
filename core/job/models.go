package job

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/ellahos/ellahos/core"
)

// SortFields are the sortable list columns.
var SortFields = []string{
	"created_at", "updated_at", "expected_delivery_date", "title", "index_number", "closed_value",
	"margin_percentage", "health_score", "priority", "status",
}

// ApprovalType is stored as interna | externa_cliente and exposed as internal | external.
type ApprovalType string

const (
	ApprovalInternal ApprovalType = "interna"
	ApprovalExternal ApprovalType = "externa_cliente"
)

func approvalTypeFromAPI(s string) ApprovalType {
	if s == "external" {
		return ApprovalExternal
	}
	return ApprovalInternal
}

func (a ApprovalType) API() string {
	switch a {
	case ApprovalInternal:
		return "internal"
	case ApprovalExternal:
		return "external"
	}
	return string(a)
}

func (a ApprovalType) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.API())
}

// Ref is the id/name summary of a related row.
type Ref struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Job struct {
	ID          string `json:"id" db:"id"`
	TenantID    string `json:"tenant_id" db:"tenant_id"`
	IndexNumber int    `json:"index_number" db:"index_number"`
	Code        string `json:"job_code" db:"code"`
	JobAba      string `json:"job_aba" db:"job_aba"`
	Title       string `json:"title" db:"title"`

	ClientID             string         `json:"client_id" db:"client_id"`
	AgencyID             *string        `json:"agency_id" db:"agency_id"`
	ContactID            *string        `json:"contact_id" db:"contact_id"`
	Brand                *string        `json:"brand" db:"brand"`
	Format               *string        `json:"format" db:"format"`
	JobType              string         `json:"job_type" db:"job_type"`
	Segment              *string        `json:"segment" db:"segment"`
	TotalDurationSeconds *int           `json:"total_duration_seconds" db:"total_duration_seconds"`
	Status               string         `json:"status" db:"status"`
	SubStatus            *string        `json:"sub_status" db:"sub_status"`
	Priority             string         `json:"priority" db:"priority"`
	Tags                 pq.StringArray `json:"tags" db:"tags"`

	BriefingText   *string `json:"briefing_text" db:"briefing_text"`
	ReferencesText *string `json:"references_text" db:"references_text"`
	Notes          *string `json:"notes" db:"notes"`
	InternalNotes  *string `json:"internal_notes" db:"internal_notes"`

	ExpectedStartDate    *string `json:"expected_start_date" db:"expected_start_date"`
	ExpectedDeliveryDate *string `json:"expected_delivery_date" db:"expected_delivery_date"`
	ActualStartDate      *string `json:"actual_start_date" db:"actual_start_date"`
	ActualDeliveryDate   *string `json:"actual_delivery_date" db:"actual_delivery_date"`

	ClosedValue      *float64 `json:"closed_value" db:"closed_value"`
	ProductionCost   *float64 `json:"production_cost" db:"production_cost"`
	OtherCosts       *float64 `json:"other_costs" db:"other_costs"`
	TaxPercentage    float64  `json:"tax_percentage" db:"tax_percentage"`
	MarginPercentage *float64 `json:"margin_percentage" db:"margin_percentage"`
	HealthScore      int      `json:"health_score" db:"health_score"`
	PaymentTerms     *string  `json:"payment_terms" db:"payment_terms"`
	Currency         string   `json:"currency" db:"currency"`

	MediaType             *string      `json:"media_type" db:"media_type"`
	ComplexityLevel       *string      `json:"complexity_level" db:"complexity_level"`
	PONumber              *string      `json:"po_number" db:"po_number"`
	CommercialResponsible *string      `json:"commercial_responsible" db:"commercial_responsible"`
	CustomFields          core.JSONMap `json:"custom_fields" db:"custom_fields"`

	DriveFolderURL     *string `json:"drive_folder_url" db:"drive_folder_url"`
	ProductionSheetURL *string `json:"production_sheet_url" db:"production_sheet_url"`
	BudgetLetterURL    *string `json:"budget_letter_url" db:"budget_letter_url"`
	ScheduleURL        *string `json:"schedule_url" db:"schedule_url"`
	ScriptURL          *string `json:"script_url" db:"script_url"`
	FinalDeliveryURL   *string `json:"final_delivery_url" db:"final_delivery_url"`

	HasContractedAudio   bool `json:"has_contracted_audio" db:"has_contracted_audio"`
	HasMockupScenography bool `json:"has_mockup_scenography" db:"has_mockup_scenography"`
	HasComputerGraphics  bool `json:"has_computer_graphics" db:"has_computer_graphics"`

	ApprovalType        *ApprovalType `json:"approval_type" db:"approval_type"`
	ApprovalDate        *string       `json:"approval_date" db:"approval_date"`
	ApprovalDocumentURL *string       `json:"approval_document_url" db:"approval_document_url"`
	ApprovedByName      *string       `json:"approved_by_name" db:"approved_by_name"`
	ApprovedAt          *time.Time    `json:"approved_at" db:"approved_at"`

	CancellationReason *string    `json:"cancellation_reason" db:"cancellation_reason"`
	CancelledAt        *time.Time `json:"cancelled_at" db:"cancelled_at"`
	IsArchived         bool       `json:"is_archived" db:"is_archived"`
	ArchivedAt         *time.Time `json:"archived_at" db:"archived_at"`

	ParentJobID *string `json:"parent_job_id" db:"parent_job_id"`
	IsParentJob bool    `json:"is_parent_job" db:"is_parent_job"`

	StatusUpdatedAt *time.Time `json:"status_updated_at" db:"status_updated_at"`
	StatusUpdatedBy *string    `json:"status_updated_by" db:"status_updated_by"`
	CreatedBy       *string    `json:"created_by" db:"created_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`

	// joined on lists and details
	Client *Ref `json:"clients,omitempty" db:"client"`
	Agency *Ref `json:"agencies,omitempty" db:"agency"`
}

// SubJob is the summary of a child job.
type SubJob struct {
	ID          string `json:"id" db:"id"`
	Code        string `json:"job_code" db:"code"`
	Title       string `json:"title" db:"title"`
	Status      string `json:"status" db:"status"`
	HealthScore int    `json:"health_score" db:"health_score"`
}

// Detail is a job with the relations requested through `include`.
type Detail struct {
	Job
	Team          []TeamMember   `json:"team,omitempty"`
	Deliverables  []Deliverable  `json:"deliverables,omitempty"`
	ShootingDates []ShootingDate `json:"shooting_dates,omitempty"`
	History       []History      `json:"history,omitempty"`
	SubJobs       []SubJob       `json:"sub_jobs,omitempty"`
}

// Includes lists the relations GetDetail may load.
type Includes struct {
	Team, Deliverables, ShootingDates, History bool
}

type NewJob struct {
	Title                 string                 `json:"title" validate:"required,max=500"`
	ClientID              string                 `json:"client_id" validate:"required,uuid"`
	JobType               string                 `json:"job_type" validate:"required,projecttype"`
	AgencyID              *string                `json:"agency_id" validate:"omitempty,uuid"`
	ContactID             *string                `json:"contact_id" validate:"omitempty,uuid"`
	Brand                 *string                `json:"brand" validate:"omitempty,max=200"`
	Format                *string                `json:"format" validate:"omitempty,max=100"`
	Segment               *string                `json:"segment" validate:"omitempty,segment"`
	TotalDurationSeconds  *int                   `json:"total_duration_seconds" validate:"omitempty,gt=0"`
	Tags                  []string               `json:"tags"`
	Priority              string                 `json:"priority" validate:"omitempty,priority"`
	BriefingText          *string                `json:"briefing_text"`
	ReferencesText        *string                `json:"references_text"`
	Notes                 *string                `json:"notes"`
	InternalNotes         *string                `json:"internal_notes"`
	ExpectedStartDate     *string                `json:"expected_start_date" validate:"omitempty,date"`
	ExpectedDeliveryDate  *string                `json:"expected_delivery_date" validate:"omitempty,date"`
	ClosedValue           *float64               `json:"closed_value" validate:"omitempty,min=0"`
	ProductionCost        *float64               `json:"production_cost" validate:"omitempty,min=0"`
	OtherCosts            *float64               `json:"other_costs" validate:"omitempty,min=0"`
	TaxPercentage         *float64               `json:"tax_percentage" validate:"omitempty,min=0,max=100"`
	ParentJobID           *string                `json:"parent_job_id" validate:"omitempty,uuid"`
	MediaType             *string                `json:"media_type" validate:"omitempty,max=100"`
	ComplexityLevel       *string                `json:"complexity_level" validate:"omitempty,max=50"`
	PONumber              *string                `json:"po_number" validate:"omitempty,max=100"`
	CommercialResponsible *string                `json:"commercial_responsible" validate:"omitempty,max=200"`
	CustomFields          map[string]interface{} `json:"custom_fields"`
}

func (nj *NewJob) Validate(validate *validator.Validate) error {
	nj.Title = core.CleanString(nj.Title)
	if nj.Priority == "" {
		nj.Priority = "media"
	}
	return validate.Struct(nj)
}

func (nj NewJob) build(tenantID, userID string, now time.Time) Job {
	j := Job{
		TenantID:              tenantID,
		Title:                 nj.Title,
		ClientID:              nj.ClientID,
		AgencyID:              core.NilIfBlank(nj.AgencyID),
		ContactID:             core.NilIfBlank(nj.ContactID),
		Brand:                 core.NilIfBlank(nj.Brand),
		Format:                core.NilIfBlank(nj.Format),
		JobType:               nj.JobType,
		Segment:               core.NilIfBlank(nj.Segment),
		TotalDurationSeconds:  nj.TotalDurationSeconds,
		Status:                core.JobStatusBriefingRecebido,
		Priority:              nj.Priority,
		Tags:                  append(pq.StringArray{}, nj.Tags...),
		BriefingText:          core.NilIfBlank(nj.BriefingText),
		ReferencesText:        core.NilIfBlank(nj.ReferencesText),
		Notes:                 core.NilIfBlank(nj.Notes),
		InternalNotes:         core.NilIfBlank(nj.InternalNotes),
		ExpectedStartDate:     core.NilIfBlank(nj.ExpectedStartDate),
		ExpectedDeliveryDate:  core.NilIfBlank(nj.ExpectedDeliveryDate),
		ClosedValue:           nj.ClosedValue,
		ProductionCost:        nj.ProductionCost,
		OtherCosts:            nj.OtherCosts,
		Currency:              "BRL",
		ParentJobID:           core.NilIfBlank(nj.ParentJobID),
		MediaType:             core.NilIfBlank(nj.MediaType),
		ComplexityLevel:       core.NilIfBlank(nj.ComplexityLevel),
		PONumber:              core.NilIfBlank(nj.PONumber),
		CommercialResponsible: core.NilIfBlank(nj.CommercialResponsible),
		CustomFields:          core.JSONMap(nj.CustomFields),
		CreatedBy:             &userID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if nj.TaxPercentage != nil {
		j.TaxPercentage = *nj.TaxPercentage
	}
	if j.CustomFields == nil {
		j.CustomFields = core.JSONMap{}
	}
	return j
}

// UpdateJob is a partial job update. Every field is matched by its json name with a Job field.
// Blank strings clear nullable text fields.
type UpdateJob struct {
	Title                 *string                 `json:"title" validate:"omitempty,min=1,max=500"`
	ClientID              *string                 `json:"client_id" validate:"omitempty,uuid"`
	AgencyID              *string                 `json:"agency_id" validate:"omitempty,uuid"`
	ContactID             *string                 `json:"contact_id" validate:"omitempty,uuid"`
	Brand                 *string                 `json:"brand" validate:"omitempty,max=200"`
	JobType               *string                 `json:"job_type" validate:"omitempty,projecttype"`
	Format                *string                 `json:"format" validate:"omitempty,max=100"`
	Segment               *string                 `json:"segment" validate:"omitempty,segment"`
	TotalDurationSeconds  *int                    `json:"total_duration_seconds" validate:"omitempty,gt=0"`
	Tags                  *[]string               `json:"tags"`
	Priority              *string                 `json:"priority" validate:"omitempty,priority"`
	BriefingText          *string                 `json:"briefing_text"`
	ReferencesText        *string                 `json:"references_text"`
	Notes                 *string                 `json:"notes"`
	InternalNotes         *string                 `json:"internal_notes"`
	ExpectedStartDate     *string                 `json:"expected_start_date" validate:"omitempty,date"`
	ExpectedDeliveryDate  *string                 `json:"expected_delivery_date" validate:"omitempty,date"`
	ActualStartDate       *string                 `json:"actual_start_date" validate:"omitempty,date"`
	ActualDeliveryDate    *string                 `json:"actual_delivery_date" validate:"omitempty,date"`
	ClosedValue           *float64                `json:"closed_value" validate:"omitempty,min=0"`
	ProductionCost        *float64                `json:"production_cost" validate:"omitempty,min=0"`
	OtherCosts            *float64                `json:"other_costs" validate:"omitempty,min=0"`
	TaxPercentage         *float64                `json:"tax_percentage" validate:"omitempty,min=0,max=100"`
	PaymentTerms          *string                 `json:"payment_terms"`
	Currency              *string                 `json:"currency" validate:"omitempty,len=3"`
	MediaType             *string                 `json:"media_type" validate:"omitempty,max=100"`
	ComplexityLevel       *string                 `json:"complexity_level" validate:"omitempty,max=50"`
	PONumber              *string                 `json:"po_number" validate:"omitempty,max=100"`
	CommercialResponsible *string                 `json:"commercial_responsible" validate:"omitempty,max=200"`
	CustomFields          *map[string]interface{} `json:"custom_fields"`
	DriveFolderURL        *string                 `json:"drive_folder_url" validate:"omitempty,url"`
	ProductionSheetURL    *string                 `json:"production_sheet_url" validate:"omitempty,url"`
	BudgetLetterURL       *string                 `json:"budget_letter_url" validate:"omitempty,url"`
	ScheduleURL           *string                 `json:"schedule_url" validate:"omitempty,url"`
	ScriptURL             *string                 `json:"script_url" validate:"omitempty,url"`
	FinalDeliveryURL      *string                 `json:"final_delivery_url" validate:"omitempty,url"`
	SubStatus             *string                 `json:"sub_status" validate:"omitempty,posprodstatus"`
	IsArchived            *bool                   `json:"is_archived"`
	HasContractedAudio    *bool                   `json:"has_contracted_audio"`
	HasMockupScenography  *bool                   `json:"has_mockup_scenography"`
	HasComputerGraphics   *bool                   `json:"has_computer_graphics"`
}

func (uj *UpdateJob) Validate(validate *validator.Validate) error {
	if uj.Title != nil {
		title := core.CleanString(*uj.Title)
		uj.Title = &title
		if title == "" {
			return core.NewFieldError("title", "title nao pode ser vazio")
		}
	}
	if isZeroPatch(uj) {
		return core.BadRequest("Pelo menos um campo deve ser enviado para atualizacao")
	}
	return validate.Struct(uj)
}

type UpdateStatus struct {
	Status             string  `json:"status" validate:"required,jobstatus"`
	SubStatus          *string `json:"sub_status" validate:"omitempty,posprodstatus"`
	CancellationReason *string `json:"cancellation_reason"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.CancellationReason = core.NilIfBlank(us.CancellationReason)
	return validate.Struct(us)
}

// StatusResult is returned by UpdateStatus.
type StatusResult struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	SubStatus       *string    `json:"sub_status,omitempty"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
	StatusUpdatedBy *string    `json:"status_updated_by,omitempty"`
	Message         string     `json:"message,omitempty"`
}

type Approve struct {
	ApprovalType        string  `json:"approval_type" validate:"required,oneof=internal external"`
	ApprovalDate        string  `json:"approval_date" validate:"required,date"`
	ClosedValue         float64 `json:"closed_value" validate:"required,gt=0"`
	ApprovalDocumentURL *string `json:"approval_document_url" validate:"omitempty,url"`
}

func (a *Approve) Validate(validate *validator.Validate) error { return validate.Struct(a) }

// ApprovalResult is returned by Approve.
type ApprovalResult struct {
	ID                  string  `json:"id"`
	Status              string  `json:"status"`
	ApprovalType        string  `json:"approval_type"`
	ApprovedByName      *string `json:"approved_by_name"`
	ApprovalDate        *string `json:"approval_date"`
	ClosedValue         float64 `json:"closed_value"`
	ApprovalDocumentURL *string `json:"approval_document_url"`
}

// Deleted is returned by soft deletes.
type Deleted struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

type QueryFilter struct {
	Statuses       []string
	ClientID       string
	AgencyID       string
	JobType        string
	Priority       string
	Segment        string
	IsArchived     bool
	Search         string
	Tags           []string
	DateFrom       string
	DateTo         string
	MarginMin      *float64
	MarginMax      *float64
	HealthScoreMin *int
	HealthScoreMax *int
	ParentJobID    string
}
