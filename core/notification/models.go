package notification

import (
	"database/sql/driver"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"

	"github.com/ellahos/ellahos/core"
)

// Notification types.
const (
	TypeJobApproved             = "job_approved"
	TypeStatusChanged           = "status_changed"
	TypeTeamAdded               = "team_added"
	TypeDeadlineApproaching     = "deadline_approaching"
	TypeMarginAlert             = "margin_alert"
	TypeDeliverableOverdue      = "deliverable_overdue"
	TypeShootingDateApproaching = "shooting_date_approaching"
	TypeIntegrationFailed       = "integration_failed"
	TypePortalMessageReceived   = "portal_message_received"
	TypeApprovalResponded       = "approval_responded"
	TypeApprovalRequested       = "approval_requested"
)

// Priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var (
	Types = []string{
		TypeJobApproved, TypeStatusChanged, TypeTeamAdded, TypeDeadlineApproaching, TypeMarginAlert,
		TypeDeliverableOverdue, TypeShootingDateApproaching, TypeIntegrationFailed, TypePortalMessageReceived,
		TypeApprovalResponded, TypeApprovalRequested,
	}
	Priorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
)

type Notification struct {
	ID        string       `json:"id" db:"id"`
	TenantID  string       `json:"tenant_id" db:"tenant_id"`
	UserID    string       `json:"user_id" db:"user_id"`
	Type      string       `json:"type" db:"type"`
	Priority  string       `json:"priority" db:"priority"`
	Title     string       `json:"title" db:"title"`
	Body      string       `json:"body" db:"body"`
	Metadata  core.JSONMap `json:"metadata" db:"metadata"`
	ActionURL *string      `json:"action_url" db:"action_url"`
	JobID     *string      `json:"job_id" db:"job_id"`
	ReadAt    *time.Time   `json:"read_at" db:"read_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// NewNotification is the content shared by every recipient of a notification.
type NewNotification struct {
	Type      string
	Priority  string // defaults to normal
	Title     string
	Body      string
	Metadata  core.JSONMap
	ActionURL *string
	JobID     *string
}

func (nn NewNotification) build(tenantID, userID string, now time.Time) Notification {
	priority := nn.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return Notification{
		TenantID:  tenantID,
		UserID:    userID,
		Type:      nn.Type,
		Priority:  priority,
		Title:     nn.Title,
		Body:      nn.Body,
		Metadata:  nn.Metadata,
		ActionURL: nn.ActionURL,
		JobID:     nn.JobID,
		CreatedAt: now,
	}
}

// QueryFilter holds the list filters.
type QueryFilter struct {
	Type       string
	UnreadOnly bool
	JobID      string
}

// Channels are the delivery channels a user opted into.
type Channels struct {
	InApp    bool `json:"in_app"`
	WhatsApp bool `json:"whatsapp"`
}

var defaultChannels = Channels{InApp: true, WhatsApp: false}

func (c *Channels) Scan(src interface{}) error {
	*c = defaultChannels
	return core.ScanJSON(src, c)
}

func (c Channels) Value() (driver.Value, error) {
	return core.JSONMap{"in_app": c.InApp, "whatsapp": c.WhatsApp}.Value()
}

type Preferences struct {
	ID          string         `json:"id" db:"id"`
	TenantID    string         `json:"tenant_id" db:"tenant_id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Preferences Channels       `json:"preferences" db:"preferences"`
	MutedTypes  pq.StringArray `json:"muted_types" db:"muted_types"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

func defaultPreferences(tenantID, userID string) Preferences {
	return Preferences{TenantID: tenantID, UserID: userID, Preferences: defaultChannels, MutedTypes: pq.StringArray{}}
}

// Accepts reports whether an in-app notification of type `typ` should be delivered.
func (p Preferences) Accepts(typ string) bool {
	if !p.Preferences.InApp {
		return false
	}
	return !core.StringIn(typ, p.MutedTypes)
}

type UpdatePreferences struct {
	Preferences *struct {
		InApp    *bool `json:"in_app"`
		WhatsApp *bool `json:"whatsapp"`
	} `json:"preferences"`
	MutedTypes *[]string `json:"muted_types" validate:"omitempty,dive,required"`
}

func (up *UpdatePreferences) Validate(validate *validator.Validate) error {
	if up.Preferences == nil && up.MutedTypes == nil {
		return core.BadRequest("Informe ao menos um campo para atualizar: preferences ou muted_types")
	}
	return validate.Struct(up)
}

func (up UpdatePreferences) apply(p *Preferences) {
	if up.Preferences != nil {
		if up.Preferences.InApp != nil {
			p.Preferences.InApp = *up.Preferences.InApp
		}
		if up.Preferences.WhatsApp != nil {
			p.Preferences.WhatsApp = *up.Preferences.WhatsApp
		}
	}
	if up.MutedTypes != nil {
		p.MutedTypes = append(pq.StringArray{}, *up.MutedTypes...)
	}
}
