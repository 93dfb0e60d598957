package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/ellahos/ellahos/core"
)

func Test_integrationApi_secrets(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{
			name: "processor without secret", method: http.MethodPost, path: "/v1/integration-processor",
			wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "processor with a wrong secret", method: http.MethodPost, path: "/v1/integration-processor",
			headers: map[string]string{headerCronSecret: "guess"}, wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "processor ignores bearer tokens", method: http.MethodPost, path: "/v1/integration-processor",
			token: "cron-secret", wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "webhook with a wrong secret", method: http.MethodPost, path: "/v1/whatsapp/webhook",
			headers: map[string]string{headerWebhookSecret: "guess"}, wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "send requires a login", method: http.MethodPost, path: "/v1/whatsapp/send",
			wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_secretMiddleware(t *testing.T) {
	ok := func(ctx echo.Context) error { return ctx.NoContent(http.StatusNoContent) }

	tests := []struct {
		name     string
		header   string
		secret   string
		required bool
		given    string
		wantErr  error
	}{
		{name: "match", header: headerCronSecret, secret: "s3cr3t", required: true, given: "s3cr3t"},
		{name: "mismatch", header: headerCronSecret, secret: "s3cr3t", required: true, given: "s3cr3", wantErr: errUnauthorized},
		{name: "required but unset", header: headerCronSecret, required: true, given: "", wantErr: errUnauthorized},
		{name: "optional and unset", header: headerWebhookSecret, given: "anything"},
		{name: "webhook mismatch", header: headerWebhookSecret, secret: "s3cr3t", given: "nope", wantErr: errBadWebhookSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.given != "" {
				req.Header.Set(tt.header, tt.given)
			}
			rec := httptest.NewRecorder()

			err := secretMiddleware(tt.header, tt.secret, tt.required)(ok)(e.NewContext(req, rec))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}
