package integration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// Event types.
const (
	EventWhatsAppSend = "whatsapp_send"
	EventN8nWebhook   = "n8n_webhook"
)

// Event statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// n8n workflows.
const (
	WorkflowJobApproved  = "wf-job-approved"
	WorkflowMarginAlert  = "wf-margin-alert"
	WorkflowStatusChange = "wf-status-change"
)

// WhatsApp message statuses.
const (
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

var (
	EventTypes      = []string{EventWhatsAppSend, EventN8nWebhook}
	EventStatuses   = []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	MessageStatuses = []string{MessageSent, MessageDelivered, MessageRead, MessageFailed}
)

type Event struct {
	ID             string       `json:"id" db:"id"`
	TenantID       string       `json:"tenant_id" db:"tenant_id"`
	EventType      string       `json:"event_type" db:"event_type"`
	Payload        core.JSONMap `json:"payload" db:"payload"`
	Status         string       `json:"status" db:"status"`
	Attempts       int          `json:"attempts" db:"attempts"`
	LockedAt       *time.Time   `json:"-" db:"locked_at"`
	NextRetryAt    *time.Time   `json:"next_retry_at,omitempty" db:"next_retry_at"`
	ProcessedAt    *time.Time   `json:"processed_at" db:"processed_at"`
	ErrorMessage   *string      `json:"error_message" db:"error_message"`
	Result         core.JSONMap `json:"result" db:"result"`
	IdempotencyKey *string      `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// NewEvent is a queue entry waiting to be enqueued.
type NewEvent struct {
	EventType      string
	Payload        core.JSONMap
	IdempotencyKey string // optional
}

type LogFilter struct {
	EventType string
	Status    string
}

// BatchResult summarises a processor run.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

type WhatsAppMessage struct {
	ID                string     `json:"id" db:"id"`
	TenantID          string     `json:"-" db:"tenant_id"`
	JobID             *string    `json:"job_id" db:"job_id"`
	Phone             string     `json:"phone" db:"phone"`
	RecipientName     *string    `json:"recipient_name" db:"recipient_name"`
	Message           string     `json:"message" db:"message"`
	Status            string     `json:"status" db:"status"`
	Provider          string     `json:"provider" db:"provider"`
	ExternalMessageID *string    `json:"external_message_id" db:"external_message_id"`
	SentAt            *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// SendResult is returned by a manual or queued WhatsApp send.
type SendResult struct {
	Phone             string  `json:"phone"`
	Template          string  `json:"template"`
	ExternalMessageID *string `json:"external_message_id"`
	Status            string  `json:"status"`
}

type SendManual struct {
	JobID         *string                `json:"job_id" validate:"omitempty,uuid"`
	Phone         string                 `json:"phone" validate:"required,min=10"`
	RecipientName *string                `json:"recipient_name"`
	Template      string                 `json:"template" validate:"required"`
	Data          map[string]interface{} `json:"data"`
}

func (sm *SendManual) Validate(validate *validator.Validate) error {
	sm.Phone = core.CleanString(sm.Phone)
	sm.Template = core.CleanString(sm.Template)
	return validate.Struct(sm)
}

// StatusUpdate is the body of the WhatsApp delivery-status webhook.
type StatusUpdate struct {
	ExternalMessageID string `json:"external_message_id"`
	Status            string `json:"status"`
}

func (su StatusUpdate) Validate() error {
	if su.ExternalMessageID == "" {
		return core.BadRequest(`Campo "external_message_id" obrigatorio`)
	}
	if !core.StringIn(su.Status, MessageStatuses) {
		return core.BadRequest("Status invalido. Validos: sent, delivered, read, failed")
	}
	return nil
}

// StatusUpdateResult tells whether the webhook matched a stored message.
type StatusUpdateResult struct {
	Matched bool   `json:"matched"`
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
}
