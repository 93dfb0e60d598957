package allocation

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

type PersonRef struct {
	ID       string `json:"id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
}

type JobRef struct {
	ID     string `json:"id" db:"id"`
	Code   string `json:"code" db:"code"`
	Title  string `json:"title" db:"title"`
	Status string `json:"status" db:"status"`
}

// Allocation books a person on a job for an inclusive date range.
type Allocation struct {
	ID              string     `json:"id" db:"id"`
	TenantID        string     `json:"tenant_id" db:"tenant_id"`
	JobID           string     `json:"job_id" db:"job_id"`
	PeopleID        string     `json:"people_id" db:"people_id"`
	JobTeamID       *string    `json:"job_team_id" db:"job_team_id"`
	AllocationStart string     `json:"allocation_start" db:"allocation_start"`
	AllocationEnd   string     `json:"allocation_end" db:"allocation_end"`
	Notes           *string    `json:"notes" db:"notes"`
	CreatedBy       *string    `json:"created_by" db:"created_by"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	Person          *PersonRef `json:"people,omitempty" db:"person"`
	Job             *JobRef    `json:"jobs,omitempty" db:"job"`
}

// Overlaps reports whether the allocation intersects [start, end]. Dates are YYYY-MM-DD and compare lexically.
func (a Allocation) Overlaps(start, end string) bool {
	return a.AllocationStart <= end && a.AllocationEnd >= start
}

type NewAllocation struct {
	JobID           string  `json:"job_id" validate:"required,uuid"`
	PeopleID        string  `json:"people_id" validate:"required,uuid"`
	JobTeamID       *string `json:"job_team_id" validate:"omitempty,uuid"`
	AllocationStart string  `json:"allocation_start" validate:"required,date"`
	AllocationEnd   string  `json:"allocation_end" validate:"required,date"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
}

func (na *NewAllocation) Validate(validate *validator.Validate) error {
	if err := validate.Struct(na); err != nil {
		return err
	}
	return checkRange(na.AllocationStart, na.AllocationEnd)
}

type UpdateAllocation struct {
	AllocationStart *string `json:"allocation_start" validate:"omitempty,date"`
	AllocationEnd   *string `json:"allocation_end" validate:"omitempty,date"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
	JobTeamID       *string `json:"job_team_id" validate:"omitempty,uuid"`
}

func (ua *UpdateAllocation) Validate(validate *validator.Validate) error {
	if *ua == (UpdateAllocation{}) {
		return core.BadRequest("Pelo menos um campo deve ser enviado")
	}
	return validate.Struct(ua)
}

func (ua UpdateAllocation) apply(a *Allocation) {
	if ua.AllocationStart != nil {
		a.AllocationStart = *ua.AllocationStart
	}
	if ua.AllocationEnd != nil {
		a.AllocationEnd = *ua.AllocationEnd
	}
	core.Patch(&a.Notes, ua.Notes)
	core.Patch(&a.JobTeamID, ua.JobTeamID)
}

func checkRange(start, end string) error {
	if end < start {
		return core.BadRequest("allocation_end deve ser >= allocation_start")
	}
	return nil
}

// RangeFilter selects the allocations intersecting [From, To].
type RangeFilter struct {
	From     string
	To       string
	PeopleID string
	JobID    string
}

func (rf RangeFilter) Validate() error {
	if rf.JobID != "" {
		return nil
	}
	if rf.From == "" || rf.To == "" {
		return core.BadRequest("Parametros from e to sao obrigatorios")
	}
	if _, err := core.ParseDate(rf.From); err != nil {
		return core.NewFieldError("from", "from deve ser YYYY-MM-DD")
	}
	if _, err := core.ParseDate(rf.To); err != nil {
		return core.NewFieldError("to", "to deve ser YYYY-MM-DD")
	}
	return nil
}

type ConflictDetails struct {
	PersonName          string `json:"person_name"`
	ConflictingJobCode  string `json:"conflicting_job_code"`
	ConflictingJobTitle string `json:"conflicting_job_title"`
	OverlapStart        string `json:"overlap_start"`
	OverlapEnd          string `json:"overlap_end"`
}

// Warning flags a double booking. Conflicts never block a write.
type Warning struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details ConflictDetails `json:"details"`
}

type ConflictEntry struct {
	AllocationID    string `json:"allocation_id"`
	JobID           string `json:"job_id"`
	JobCode         string `json:"job_code"`
	JobTitle        string `json:"job_title"`
	AllocationStart string `json:"allocation_start"`
	AllocationEnd   string `json:"allocation_end"`
}

// PersonConflict is a pair of overlapping allocations of the same person.
type PersonConflict struct {
	PersonID     string          `json:"person_id"`
	PersonName   string          `json:"person_name"`
	Allocations  []ConflictEntry `json:"allocations"`
	OverlapStart string          `json:"overlap_start"`
	OverlapEnd   string          `json:"overlap_end"`
}
