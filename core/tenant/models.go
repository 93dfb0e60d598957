package tenant

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// Integration names.
const (
	IntegrationWhatsApp = "whatsapp"
	IntegrationN8n      = "n8n"
)

// Secret names, stored per tenant.
const (
	SecretWhatsAppAPIKey  = "whatsapp_api_key"
	SecretN8nWebhookToken = "n8n_webhook_secret"
)

var Integrations = []string{IntegrationWhatsApp, IntegrationN8n}

type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Settings  Settings  `json:"settings" db:"settings"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Settings is the tenant JSONB settings document.
// Missing keys decode to their defaults.
type Settings struct {
	Integrations IntegrationSettings `json:"integrations"`
}

type IntegrationSettings struct {
	WhatsApp WhatsAppSettings `json:"whatsapp"`
	N8n      N8nSettings      `json:"n8n"`
}

type WhatsAppSettings struct {
	Enabled      bool    `json:"enabled"`
	Configured   bool    `json:"configured"`
	Provider     *string `json:"provider"`
	InstanceURL  *string `json:"instance_url"`
	InstanceName *string `json:"instance_name"`
	HasAPIKey    bool    `json:"has_api_key"`
}

func (s WhatsAppSettings) isConfigured() bool {
	return s.HasAPIKey && core.StrVal(s.InstanceURL) != "" && core.StrVal(s.InstanceName) != ""
}

type N8nWebhooks struct {
	JobApproved  *string `json:"job_approved"`
	MarginAlert  *string `json:"margin_alert"`
	StatusChange *string `json:"status_change"`
}

// ByKey maps a workflow key (job_approved, margin_alert, status_change) to its URL.
func (w N8nWebhooks) ByKey(key string) string {
	switch key {
	case "job_approved":
		return core.StrVal(w.JobApproved)
	case "margin_alert":
		return core.StrVal(w.MarginAlert)
	case "status_change":
		return core.StrVal(w.StatusChange)
	}
	return ""
}

// First returns the first configured webhook.
func (w N8nWebhooks) First() (name, url string) {
	for _, key := range []string{"job_approved", "margin_alert", "status_change"} {
		if u := w.ByKey(key); u != "" {
			return key, u
		}
	}
	return "", ""
}

type N8nSettings struct {
	Enabled    bool        `json:"enabled"`
	Configured bool        `json:"configured"`
	Webhooks   N8nWebhooks `json:"webhooks"`
	HasSecret  bool        `json:"has_secret"`
}

func (s N8nSettings) isConfigured() bool {
	_, u := s.Webhooks.First()
	return u != ""
}

// UpdateWhatsApp is a partial update of the WhatsApp integration.
type UpdateWhatsApp struct {
	Enabled      *bool   `json:"enabled"`
	Provider     *string `json:"provider" validate:"omitempty,oneof=evolution zapi"`
	InstanceURL  *string `json:"instance_url" validate:"omitempty,url"`
	InstanceName *string `json:"instance_name" validate:"omitempty,max=100"`
	APIKey       *string `json:"api_key" validate:"omitempty,min=1"`
}

func (u *UpdateWhatsApp) Validate(validate *validator.Validate) error {
	if u.InstanceURL != nil {
		*u.InstanceURL = core.CleanString(*u.InstanceURL)
	}
	if u.InstanceName != nil {
		*u.InstanceName = core.CleanString(*u.InstanceName)
	}
	return validate.Struct(u)
}

type UpdateN8nWebhooks struct {
	JobApproved  *string `json:"job_approved" validate:"omitempty,url"`
	MarginAlert  *string `json:"margin_alert" validate:"omitempty,url"`
	StatusChange *string `json:"status_change" validate:"omitempty,url"`
}

// UpdateN8n is a partial update of the n8n integration.
type UpdateN8n struct {
	Enabled       *bool              `json:"enabled"`
	Webhooks      *UpdateN8nWebhooks `json:"webhooks"`
	WebhookSecret *string            `json:"webhook_secret" validate:"omitempty,min=8"`
}

func (u *UpdateN8n) Validate(validate *validator.Validate) error {
	return validate.Struct(u)
}

// TestResult is returned by connection tests; failures are not errors.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
}

func (s *Settings) Scan(src interface{}) error {
	return core.ScanJSON(src, s)
}

func (s Settings) Value() (driver.Value, error) {
	return json.Marshal(s)
}
