package job

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// History event types.
const (
	EventStatusChange    = "status_change"
	EventFieldUpdate     = "field_update"
	EventTeamChange      = "team_change"
	EventComment         = "comment"
	EventFileUpload      = "file_upload"
	EventApproval        = "approval"
	EventFinancialUpdate = "financial_update"
)

type TeamMember struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"-" db:"tenant_id"`
	JobID          string    `json:"job_id" db:"job_id"`
	PersonID       string    `json:"person_id" db:"person_id"`
	PersonName     *string   `json:"person_name" db:"person_name"`
	ProfileID      *string   `json:"-" db:"profile_id"`
	Role           string    `json:"role" db:"role"`
	Fee            *float64  `json:"fee" db:"fee"`
	HiringStatus   string    `json:"hiring_status" db:"hiring_status"`
	IsLeadProducer bool      `json:"is_lead_producer" db:"is_lead_producer"`
	Notes          *string   `json:"notes" db:"notes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TeamMemberData adds or updates a team member. PersonID and Role are required when adding.
type TeamMemberData struct {
	PersonID       *string  `json:"person_id" validate:"omitempty,uuid"`
	Role           *string  `json:"role" validate:"omitempty,teamrole"`
	Fee            *float64 `json:"fee" validate:"omitempty,min=0"`
	HiringStatus   *string  `json:"hiring_status" validate:"omitempty,hiringstatus"`
	IsLeadProducer *bool    `json:"is_lead_producer"`
	Notes          *string  `json:"notes" validate:"omitempty,max=2000"`
}

func (td *TeamMemberData) Validate(validate *validator.Validate, creating bool) error {
	if creating {
		if core.StrVal(td.PersonID) == "" {
			return core.NewFieldError("person_id", "person_id e obrigatorio")
		}
		if core.StrVal(td.Role) == "" {
			return core.NewFieldError("role", "role e obrigatorio")
		}
	} else if td.PersonID != nil {
		return core.NewFieldError("person_id", "person_id nao pode ser alterado")
	} else if *td == (TeamMemberData{}) {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(td)
}

func (td TeamMemberData) apply(m *TeamMember) {
	if td.PersonID != nil {
		m.PersonID = *td.PersonID
	}
	if td.Role != nil {
		m.Role = *td.Role
	}
	if td.Fee != nil {
		m.Fee = td.Fee
	}
	if td.HiringStatus != nil {
		m.HiringStatus = *td.HiringStatus
	}
	if td.IsLeadProducer != nil {
		m.IsLeadProducer = *td.IsLeadProducer
	}
	core.Patch(&m.Notes, td.Notes)
}

// Warning is a non-blocking issue returned next to a successful write.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScheduleConflict is another active job sharing shooting dates with a person's job.
type ScheduleConflict struct {
	JobID    string `json:"job_id" db:"job_id"`
	JobTitle string `json:"job_title" db:"job_title"`
}

type Deliverable struct {
	ID              string    `json:"id" db:"id"`
	TenantID        string    `json:"-" db:"tenant_id"`
	JobID           string    `json:"job_id" db:"job_id"`
	Description     string    `json:"description" db:"description"`
	Format          *string   `json:"format" db:"format"`
	Resolution      *string   `json:"resolution" db:"resolution"`
	DurationSeconds *int      `json:"duration_seconds" db:"duration_seconds"`
	Status          string    `json:"status" db:"status"`
	Version         int       `json:"version" db:"version"`
	DeliveryDate    *string   `json:"delivery_date" db:"delivery_date"`
	FileURL         *string   `json:"file_url" db:"file_url"`
	ReviewURL       *string   `json:"review_url" db:"review_url"`
	DisplayOrder    int       `json:"display_order" db:"display_order"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type DeliverableData struct {
	Description     *string `json:"description" validate:"omitempty,max=1000"`
	Format          *string `json:"format" validate:"omitempty,max=50"`
	Resolution      *string `json:"resolution" validate:"omitempty,max=50"`
	DurationSeconds *int    `json:"duration_seconds" validate:"omitempty,gt=0"`
	Status          *string `json:"status" validate:"omitempty,deliverablestatus"`
	Version         *int    `json:"version" validate:"omitempty,gt=0"`
	DeliveryDate    *string `json:"delivery_date" validate:"omitempty,date"`
	FileURL         *string `json:"file_url" validate:"omitempty,url"`
	ReviewURL       *string `json:"review_url" validate:"omitempty,url"`
	DisplayOrder    *int    `json:"display_order" validate:"omitempty,min=0"`
}

func (dd *DeliverableData) Validate(validate *validator.Validate, creating bool) error {
	if dd.Description != nil {
		desc := core.CleanString(*dd.Description)
		dd.Description = &desc
	}
	if creating && core.StrVal(dd.Description) == "" {
		return core.NewFieldError("description", "description e obrigatorio")
	}
	if !creating && *dd == (DeliverableData{}) {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(dd)
}

func (dd DeliverableData) apply(d *Deliverable) {
	if dd.Description != nil && *dd.Description != "" {
		d.Description = *dd.Description
	}
	core.Patch(&d.Format, dd.Format)
	core.Patch(&d.Resolution, dd.Resolution)
	core.Patch(&d.DeliveryDate, dd.DeliveryDate)
	core.Patch(&d.FileURL, dd.FileURL)
	core.Patch(&d.ReviewURL, dd.ReviewURL)
	if dd.DurationSeconds != nil {
		d.DurationSeconds = dd.DurationSeconds
	}
	if dd.Status != nil {
		d.Status = *dd.Status
	}
	if dd.Version != nil {
		d.Version = *dd.Version
	}
	if dd.DisplayOrder != nil {
		d.DisplayOrder = *dd.DisplayOrder
	}
}

type ShootingDate struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"-" db:"tenant_id"`
	JobID        string    `json:"job_id" db:"job_id"`
	ShootingDate string    `json:"shooting_date" db:"shooting_date"`
	Description  *string   `json:"description" db:"description"`
	Location     *string   `json:"location" db:"location"`
	StartTime    *string   `json:"start_time" db:"start_time"`
	EndTime      *string   `json:"end_time" db:"end_time"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type ShootingDateData struct {
	ShootingDate *string `json:"shooting_date" validate:"omitempty,date"`
	Description  *string `json:"description" validate:"omitempty,max=500"`
	Location     *string `json:"location" validate:"omitempty,max=500"`
	StartTime    *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime      *string `json:"end_time" validate:"omitempty,datetime=15:04"`
}

func (sd *ShootingDateData) Validate(validate *validator.Validate, creating bool) error {
	if creating && core.StrVal(sd.ShootingDate) == "" {
		return core.NewFieldError("shooting_date", "shooting_date e obrigatorio")
	}
	if !creating && *sd == (ShootingDateData{}) {
		return core.BadRequest("Nenhum campo para atualizar")
	}
	return validate.Struct(sd)
}

func (sd ShootingDateData) apply(d *ShootingDate) {
	if sd.ShootingDate != nil && *sd.ShootingDate != "" {
		d.ShootingDate = *sd.ShootingDate
	}
	core.Patch(&d.Description, sd.Description)
	core.Patch(&d.Location, sd.Location)
	core.Patch(&d.StartTime, sd.StartTime)
	core.Patch(&d.EndTime, sd.EndTime)
}

// History is an append-only record of what happened to a job.
type History struct {
	ID          string       `json:"id" db:"id"`
	TenantID    string       `json:"-" db:"tenant_id"`
	JobID       string       `json:"job_id" db:"job_id"`
	EventType   string       `json:"event_type" db:"event_type"`
	UserID      *string      `json:"user_id" db:"user_id"`
	UserName    *string      `json:"user_name" db:"user_name"`
	DataBefore  core.JSONMap `json:"previous_data" db:"data_before"`
	DataAfter   core.JSONMap `json:"new_data" db:"data_after"`
	Description string       `json:"description" db:"description"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

type HistoryFilter struct {
	EventTypes []string
}
