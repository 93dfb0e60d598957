package tenant

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type memRepo struct {
	tenants map[string]Tenant
	secrets map[string]string
}

func newMemRepo(t Tenant) *memRepo {
	return &memRepo{tenants: map[string]Tenant{t.ID: t}, secrets: make(map[string]string)}
}

func (r *memRepo) CreateTenant(_ context.Context, t Tenant) (Tenant, error) {
	t.ID = "tenant-" + t.Slug
	r.tenants[t.ID] = t
	return t, nil
}

func (r *memRepo) GetTenant(_ context.Context, id string) (Tenant, error) {
	if t, ok := r.tenants[id]; ok {
		return t, nil
	}
	return Tenant{}, ErrNotFound
}

func (r *memRepo) GetTenantBySlug(_ context.Context, slug string) (Tenant, error) {
	for _, t := range r.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return Tenant{}, ErrNotFound
}

func (r *memRepo) UpdateSettings(_ context.Context, id string, settings Settings) error {
	t := r.tenants[id]
	t.Settings = settings
	r.tenants[id] = t
	return nil
}

func (r *memRepo) SetSecret(_ context.Context, tenantID, name, value string) error {
	r.secrets[tenantID+"_"+name] = value
	return nil
}

func (r *memRepo) GetSecret(_ context.Context, tenantID, name string) (string, error) {
	if v, ok := r.secrets[tenantID+"_"+name]; ok {
		return v, nil
	}
	return "", core.NotFound("secret")
}

type prefixCipher struct{}

func (prefixCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }
func (prefixCipher) Decrypt(s string) (string, error) { return s[len("enc:"):], nil }

type fakeProbe struct {
	state  string
	status int
	err    error
	pinged string
}

func (p *fakeProbe) ConnectionState(context.Context, string, string, string) (string, error) {
	return p.state, p.err
}

func (p *fakeProbe) Ping(_ context.Context, url string, _ map[string]interface{}) (int, error) {
	p.pinged = url
	return p.status, p.err
}

func TestService_GetIntegrationsDefaults(t *testing.T) {
	repo := newMemRepo(Tenant{ID: "t1", Slug: "ellah"})
	svc := NewService(repo, prefixCipher{}, &fakeProbe{}, &fakeProbe{})

	got, err := svc.GetIntegrations(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, got.WhatsApp.Enabled)
	assert.False(t, got.WhatsApp.Configured)
	assert.Nil(t, got.WhatsApp.Provider)
	assert.False(t, got.N8n.Configured)

	_, err = svc.GetIntegrations(context.Background(), "nope")
	assert.Equal(t, ErrNotFound, err)
}

func TestService_UpdateWhatsApp(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo(Tenant{ID: "t1", Slug: "ellah"})
	svc := NewService(repo, prefixCipher{}, &fakeProbe{}, &fakeProbe{})

	enabled := true
	wa, err := svc.UpdateWhatsApp(ctx, "t1", UpdateWhatsApp{Enabled: &enabled, InstanceURL: core.StrPtr("https://evo.ellah.com")})
	require.NoError(t, err)
	assert.True(t, wa.Enabled)
	assert.False(t, wa.Configured)

	wa, err = svc.UpdateWhatsApp(ctx, "t1", UpdateWhatsApp{InstanceName: core.StrPtr("ellah"), APIKey: core.StrPtr("k3y")})
	require.NoError(t, err)
	assert.True(t, wa.Configured)
	assert.True(t, wa.HasAPIKey)
	assert.Equal(t, "https://evo.ellah.com", core.StrVal(wa.InstanceURL), "previous fields are kept")

	assert.Equal(t, "enc:k3y", repo.secrets["t1_"+SecretWhatsAppAPIKey])
	key, err := svc.Secret(ctx, "t1", SecretWhatsAppAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "k3y", key)

	key, err = svc.Secret(ctx, "t1", SecretN8nWebhookToken)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestService_TestIntegration(t *testing.T) {
	ctx := context.Background()

	t.Run("whatsapp not configured", func(t *testing.T) {
		svc := NewService(newMemRepo(Tenant{ID: "t1"}), prefixCipher{}, &fakeProbe{}, &fakeProbe{})
		res, err := svc.TestIntegration(ctx, "t1", IntegrationWhatsApp)
		require.NoError(t, err)
		assert.Equal(t, TestResult{Message: "URL da instancia nao configurada."}, res)
	})

	t.Run("whatsapp states", func(t *testing.T) {
		repo := newMemRepo(Tenant{ID: "t1"})
		probe := &fakeProbe{state: "open"}
		svc := NewService(repo, prefixCipher{}, probe, &fakeProbe{})
		_, err := svc.UpdateWhatsApp(ctx, "t1", UpdateWhatsApp{
			InstanceURL: core.StrPtr("https://evo"), InstanceName: core.StrPtr("i"), APIKey: core.StrPtr("k"),
		})
		require.NoError(t, err)

		res, err := svc.TestIntegration(ctx, "t1", IntegrationWhatsApp)
		require.NoError(t, err)
		assert.True(t, res.Success)

		probe.state = "close"
		res, _ = svc.TestIntegration(ctx, "t1", IntegrationWhatsApp)
		assert.False(t, res.Success)
		assert.Equal(t, "WhatsApp status: close. Verifique o QR Code na Evolution API.", res.Message)

		probe.err = errors.New("dial tcp")
		res, _ = svc.TestIntegration(ctx, "t1", IntegrationWhatsApp)
		assert.Equal(t, "Erro ao conectar com a instancia. Verifique a URL e API Key.", res.Message)
	})

	t.Run("n8n", func(t *testing.T) {
		repo := newMemRepo(Tenant{ID: "t1"})
		hook := &fakeProbe{status: http.StatusOK}
		svc := NewService(repo, prefixCipher{}, &fakeProbe{}, hook)

		res, _ := svc.TestIntegration(ctx, "t1", IntegrationN8n)
		assert.Equal(t, "Nenhuma URL de webhook configurada.", res.Message)

		n8n, err := svc.UpdateN8n(ctx, "t1", UpdateN8n{Webhooks: &UpdateN8nWebhooks{MarginAlert: core.StrPtr("https://n8n/margin")}})
		require.NoError(t, err)
		assert.True(t, n8n.Configured)

		res, _ = svc.TestIntegration(ctx, "t1", IntegrationN8n)
		assert.True(t, res.Success)
		assert.Equal(t, "https://n8n/margin", hook.pinged)

		hook.status = http.StatusBadGateway
		res, _ = svc.TestIntegration(ctx, "t1", IntegrationN8n)
		assert.Equal(t, `Webhook "margin_alert" retornou HTTP 502`, res.Message)
	})

	t.Run("unknown", func(t *testing.T) {
		svc := NewService(newMemRepo(Tenant{ID: "t1"}), prefixCipher{}, &fakeProbe{}, &fakeProbe{})
		_, err := svc.TestIntegration(ctx, "t1", "google_drive")
		appErr, ok := core.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, core.CodeValidation, appErr.Code)
	})
}
