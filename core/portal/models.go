package portal

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// Message directions.
const (
	ClientToProducer = "client_to_producer"
	ProducerToClient = "producer_to_client"
)

// PublicEventTypes are the job history events shown on the portal timeline.
var PublicEventTypes = []string{"status_change", "approval", "file_upload"}

// Permissions are the portal sections a session exposes.
type Permissions struct {
	Timeline  bool `json:"timeline"`
	Documents bool `json:"documents"`
	Approvals bool `json:"approvals"`
	Messages  bool `json:"messages"`
}

var AllPermissions = Permissions{Timeline: true, Documents: true, Approvals: true, Messages: true}

func (p *Permissions) Scan(src interface{}) error {
	*p = AllPermissions
	return core.ScanJSON(src, p)
}

func (p Permissions) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// UnmarshalJSON defaults missing sections to true.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	type plain Permissions
	v := plain(AllPermissions)
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Permissions(v)
	return nil
}

type JobRef struct {
	ID     string `json:"id" db:"id"`
	Code   string `json:"code" db:"code"`
	Title  string `json:"title" db:"title"`
	Status string `json:"status" db:"status"`
}

type ContactRef struct {
	ID    *string `json:"id" db:"id"`
	Name  *string `json:"name" db:"name"`
	Email *string `json:"email" db:"email"`
	Phone *string `json:"phone" db:"phone"`
}

type Session struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"-" db:"tenant_id"`
	JobID          string      `json:"job_id" db:"job_id"`
	ContactID      *string     `json:"contact_id" db:"contact_id"`
	Token          string      `json:"token" db:"token"`
	Label          string      `json:"label" db:"label"`
	Permissions    Permissions `json:"permissions" db:"permissions"`
	IsActive       bool        `json:"is_active" db:"is_active"`
	LastAccessedAt *time.Time  `json:"last_accessed_at" db:"last_accessed_at"`
	ExpiresAt      *time.Time  `json:"expires_at" db:"expires_at"`
	CreatedBy      *string     `json:"created_by" db:"created_by"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
	PortalURL      string      `json:"portal_url" db:"-"`

	Job     *JobRef     `json:"jobs,omitempty" db:"job"`
	Contact *ContactRef `json:"contacts,omitempty" db:"contact"`
}

func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

type NewSession struct {
	JobID       string       `json:"job_id" validate:"required,uuid"`
	ContactID   *string      `json:"contact_id" validate:"omitempty,uuid"`
	Label       string       `json:"label" validate:"required,max=500"`
	Permissions *Permissions `json:"permissions"`
	ExpiresAt   *time.Time   `json:"expires_at"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Label = core.CleanString(ns.Label)
	return validate.Struct(ns)
}

// OptionalTime tells an explicit null apart from an absent field.
type OptionalTime struct {
	Set  bool
	Time *time.Time
}

func (ot *OptionalTime) UnmarshalJSON(data []byte) error {
	ot.Set = true
	if bytes.Equal(data, []byte("null")) {
		ot.Time = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return core.NewFieldError("expires_at", "expires_at deve ser ISO 8601 valido")
	}
	ot.Time = &t
	return nil
}

type UpdateSession struct {
	Label       *string      `json:"label" validate:"omitempty,min=1,max=500"`
	IsActive    *bool        `json:"is_active"`
	Permissions *Permissions `json:"permissions"`
	ExpiresAt   OptionalTime `json:"expires_at"`
}

func (us *UpdateSession) Validate(validate *validator.Validate) error {
	if us.Label != nil {
		label := core.CleanString(*us.Label)
		us.Label = &label
	}
	if us.Label == nil && us.IsActive == nil && us.Permissions == nil && !us.ExpiresAt.Set {
		return core.BadRequest("Pelo menos um campo deve ser enviado para atualizacao")
	}
	return validate.Struct(us)
}

func (us UpdateSession) apply(s *Session) {
	if us.Label != nil {
		s.Label = *us.Label
	}
	if us.IsActive != nil {
		s.IsActive = *us.IsActive
	}
	if us.Permissions != nil {
		s.Permissions = *us.Permissions
	}
	if us.ExpiresAt.Set {
		s.ExpiresAt = us.ExpiresAt.Time
	}
}

type Attachment struct {
	Name string `json:"name" validate:"required,max=500"`
	URL  string `json:"url" validate:"required,url"`
	Size *int   `json:"size,omitempty" validate:"omitempty,gt=0"`
}

// Attachments is a jsonb array column.
type Attachments []Attachment

func (a *Attachments) Scan(src interface{}) error {
	*a = Attachments{}
	return core.ScanJSON(src, a)
}

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

type Message struct {
	ID             string      `json:"id" db:"id"`
	TenantID       string      `json:"-" db:"tenant_id"`
	SessionID      string      `json:"session_id" db:"session_id"`
	JobID          string      `json:"job_id" db:"job_id"`
	Direction      string      `json:"direction" db:"direction"`
	SenderName     string      `json:"sender_name" db:"sender_name"`
	SenderUserID   *string     `json:"sender_user_id" db:"sender_user_id"`
	Content        string      `json:"content" db:"content"`
	Attachments    Attachments `json:"attachments" db:"attachments"`
	IdempotencyKey *string     `json:"-" db:"idempotency_key"`
	ReadAt         *time.Time  `json:"read_at" db:"read_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

type NewMessage struct {
	SenderName     string       `json:"sender_name" validate:"required,max=200"`
	Content        string       `json:"content" validate:"required,max=10000"`
	Attachments    []Attachment `json:"attachments" validate:"max=10,dive"`
	IdempotencyKey *string      `json:"idempotency_key" validate:"omitempty,max=200"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.SenderName = core.CleanString(nm.SenderName)
	nm.Content = core.CleanString(nm.Content)
	return validate.Struct(nm)
}

type MessagePage struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"session_id"`
	JobID     string    `json:"job_id"`
}

type Deleted struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// Public data

type PublicSession struct {
	ID          string      `json:"id"`
	Label       string      `json:"label"`
	Permissions Permissions `json:"permissions"`
	ExpiresAt   *time.Time  `json:"expires_at"`
}

type PublicJob struct {
	ID           string    `json:"id" db:"id"`
	Code         string    `json:"code" db:"code"`
	JobAba       *string   `json:"job_aba" db:"job_aba"`
	Title        string    `json:"title" db:"title"`
	Status       string    `json:"status" db:"status"`
	ProjectType  string    `json:"project_type" db:"project_type"`
	ClientName   *string   `json:"client_name" db:"client_name"`
	AgencyName   *string   `json:"agency_name" db:"agency_name"`
	DeliveryDate *string   `json:"delivery_date" db:"delivery_date"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type TimelineEvent struct {
	ID          string    `json:"id" db:"id"`
	EventType   string    `json:"event_type" db:"event_type"`
	Description *string   `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Document struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	FileURL   string    `json:"file_url" db:"file_url"`
	FileType  *string   `json:"file_type" db:"file_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type ApprovalSummary struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	Description   *string   `json:"description" db:"description"`
	ApprovalType  string    `json:"approval_type" db:"approval_type"`
	Status        string    `json:"status" db:"status"`
	FileURL       *string   `json:"file_url" db:"file_url"`
	Token         *string   `json:"token" db:"token"`
	CreatedByName *string   `json:"created_by_name" db:"created_by_name"`
	ExpiresAt     time.Time `json:"-" db:"expires_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// PublicData is everything a portal link shows. Sections the session does not expose are empty.
type PublicData struct {
	Session   PublicSession     `json:"session"`
	Job       PublicJob         `json:"job"`
	Timeline  []TimelineEvent   `json:"timeline"`
	Documents []Document        `json:"documents"`
	Approvals []ApprovalSummary `json:"approvals"`
	Messages  []Message         `json:"messages"`
}
