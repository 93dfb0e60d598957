package tenant

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var ErrNotFound = core.NotFound("Tenant nao encontrado")

type (
	Repository interface {
		CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
		GetTenant(ctx context.Context, id string) (Tenant, error)
		GetTenantBySlug(ctx context.Context, slug string) (Tenant, error)
		UpdateSettings(ctx context.Context, id string, settings Settings) error
		// SetSecret upserts an encrypted secret.
		SetSecret(ctx context.Context, tenantID, name, value string) error
		// GetSecret returns ErrNotFound when the secret is not set.
		GetSecret(ctx context.Context, tenantID, name string) (string, error)
	}

	// Cipher encrypts secrets at rest.
	Cipher interface {
		Encrypt(plaintext string) (string, error)
		Decrypt(encoded string) (string, error)
	}

	// WhatsAppProbe reads the connection state of a WhatsApp instance.
	WhatsAppProbe interface {
		ConnectionState(ctx context.Context, instanceURL, instanceName, apiKey string) (string, error)
	}

	// WebhookProbe posts a test payload and returns the response status code.
	WebhookProbe interface {
		Ping(ctx context.Context, url string, payload map[string]interface{}) (int, error)
	}

	Service struct {
		repo     Repository
		cipher   Cipher
		waProbe  WhatsAppProbe
		hookProb WebhookProbe
	}
)

func NewService(repo Repository, cipher Cipher, waProbe WhatsAppProbe, hookProbe WebhookProbe) *Service {
	return &Service{repo: repo, cipher: cipher, waProbe: waProbe, hookProb: hookProbe}
}

func (svc *Service) Create(ctx context.Context, name, slug string) (Tenant, error) {
	now := time.Now().UTC()
	return svc.repo.CreateTenant(ctx, Tenant{
		Name:      core.CleanString(name),
		Slug:      core.CleanString(slug, true /* lower */),
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Tenant, error) {
	return svc.repo.GetTenant(ctx, id)
}

func (svc *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	return svc.repo.GetTenantBySlug(ctx, core.CleanString(slug, true /* lower */))
}

// GetIntegrations returns the saved integrations merged over their defaults.
func (svc *Service) GetIntegrations(ctx context.Context, tenantID string) (IntegrationSettings, error) {
	t, err := svc.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return IntegrationSettings{}, err
	}
	return t.Settings.Integrations, nil
}

func (svc *Service) UpdateWhatsApp(ctx context.Context, tenantID string, data UpdateWhatsApp) (WhatsAppSettings, error) {
	t, err := svc.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return WhatsAppSettings{}, err
	}

	wa := t.Settings.Integrations.WhatsApp
	if data.Enabled != nil {
		wa.Enabled = *data.Enabled
	}
	if data.Provider != nil {
		wa.Provider = data.Provider
	}
	if data.InstanceURL != nil {
		wa.InstanceURL = data.InstanceURL
	}
	if data.InstanceName != nil {
		wa.InstanceName = data.InstanceName
	}
	if data.APIKey != nil {
		if err = svc.setSecret(ctx, tenantID, SecretWhatsAppAPIKey, *data.APIKey); err != nil {
			return WhatsAppSettings{}, err
		}
		wa.HasAPIKey = true
	}
	wa.Configured = wa.isConfigured()

	t.Settings.Integrations.WhatsApp = wa
	if err = svc.repo.UpdateSettings(ctx, tenantID, t.Settings); err != nil {
		return WhatsAppSettings{}, errors.Wrap(err, "updating tenant settings")
	}
	return wa, nil
}

func (svc *Service) UpdateN8n(ctx context.Context, tenantID string, data UpdateN8n) (N8nSettings, error) {
	t, err := svc.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return N8nSettings{}, err
	}

	n8n := t.Settings.Integrations.N8n
	if data.Enabled != nil {
		n8n.Enabled = *data.Enabled
	}
	if hooks := data.Webhooks; hooks != nil {
		if hooks.JobApproved != nil {
			n8n.Webhooks.JobApproved = hooks.JobApproved
		}
		if hooks.MarginAlert != nil {
			n8n.Webhooks.MarginAlert = hooks.MarginAlert
		}
		if hooks.StatusChange != nil {
			n8n.Webhooks.StatusChange = hooks.StatusChange
		}
	}
	if data.WebhookSecret != nil {
		if err = svc.setSecret(ctx, tenantID, SecretN8nWebhookToken, *data.WebhookSecret); err != nil {
			return N8nSettings{}, err
		}
		n8n.HasSecret = true
	}
	n8n.Configured = n8n.isConfigured()

	t.Settings.Integrations.N8n = n8n
	if err = svc.repo.UpdateSettings(ctx, tenantID, t.Settings); err != nil {
		return N8nSettings{}, errors.Wrap(err, "updating tenant settings")
	}
	return n8n, nil
}

func (svc *Service) setSecret(ctx context.Context, tenantID, name, value string) error {
	enc, err := svc.cipher.Encrypt(value)
	if err != nil {
		return errors.Wrap(err, "encrypting secret")
	}
	return errors.Wrap(svc.repo.SetSecret(ctx, tenantID, name, enc), "saving secret")
}

// Secret returns the decrypted secret, or "" when it is not set.
func (svc *Service) Secret(ctx context.Context, tenantID, name string) (string, error) {
	enc, err := svc.repo.GetSecret(ctx, tenantID, name)
	if err != nil {
		if core.IsNotFound(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "reading secret")
	}
	val, err := svc.cipher.Decrypt(enc)
	return val, errors.Wrap(err, "decrypting secret")
}

// TestIntegration checks the connection of an integration with the saved settings.
func (svc *Service) TestIntegration(ctx context.Context, tenantID, name string) (TestResult, error) {
	settings, err := svc.GetIntegrations(ctx, tenantID)
	if err != nil {
		return TestResult{}, err
	}

	switch name {
	case IntegrationWhatsApp:
		return svc.testWhatsApp(ctx, tenantID, settings.WhatsApp)
	case IntegrationN8n:
		return svc.testN8n(ctx, settings.N8n), nil
	default:
		return TestResult{}, core.BadRequest(fmt.Sprintf("Integracao %q invalida", name))
	}
}

func (svc *Service) testWhatsApp(ctx context.Context, tenantID string, wa WhatsAppSettings) (TestResult, error) {
	if core.StrVal(wa.InstanceURL) == "" {
		return TestResult{Message: "URL da instancia nao configurada."}, nil
	}
	if core.StrVal(wa.InstanceName) == "" {
		return TestResult{Message: "Nome da instancia nao configurado."}, nil
	}
	apiKey, err := svc.Secret(ctx, tenantID, SecretWhatsAppAPIKey)
	if err != nil {
		return TestResult{}, err
	}
	if apiKey == "" {
		return TestResult{Message: "API Key nao configurada."}, nil
	}

	state, err := svc.waProbe.ConnectionState(ctx, *wa.InstanceURL, *wa.InstanceName, apiKey)
	if err != nil {
		return TestResult{Message: "Erro ao conectar com a instancia. Verifique a URL e API Key."}, nil
	}
	if state == "open" || state == "connected" {
		return TestResult{Success: true, Message: "WhatsApp conectado!", State: state}, nil
	}
	return TestResult{
		Message: fmt.Sprintf("WhatsApp status: %s. Verifique o QR Code na Evolution API.", state),
		State:   state,
	}, nil
}

func (svc *Service) testN8n(ctx context.Context, n8n N8nSettings) TestResult {
	name, url := n8n.Webhooks.First()
	if url == "" {
		return TestResult{Message: "Nenhuma URL de webhook configurada."}
	}
	status, err := svc.hookProb.Ping(ctx, url, map[string]interface{}{
		"test":         true,
		"source":       "ellahos",
		"webhook_name": name,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return TestResult{Message: fmt.Sprintf("Erro ao conectar com webhook %q. Verifique a URL.", name)}
	}
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		return TestResult{Success: true, Message: fmt.Sprintf("Webhook %q respondeu com sucesso!", name)}
	}
	return TestResult{Message: fmt.Sprintf("Webhook %q retornou HTTP %d", name, status)}
}
