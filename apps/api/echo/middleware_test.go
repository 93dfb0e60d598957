package echoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

func Test_actorMiddleware(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, tenantA, "admin@ellahos.com", core.RoleAdmin, true)
	orphan := app.createUser(t, "", "orphan@ellahos.com", core.RoleAdmin, true)
	gone := admin
	gone.ID = "33333333-3333-3333-3333-333333333333"

	adminToken := app.token(t, admin)

	// deactivating the profile applies to tokens already issued
	fired := app.createUser(t, tenantA, "fired@ellahos.com", core.RoleAdmin, true)
	firedToken := app.token(t, fired)
	fired.IsActive = false
	_, err := app.usrRepo.UpdateUser(context.Background(), fired)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "no token", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized},
		{name: "user without tenant", path: "/v1/users/me", token: app.token(t, orphan), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
		{name: "unknown user", path: "/v1/users/me", token: app.token(t, gone), wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized},
		{name: "deactivated after login", path: "/v1/users/me", token: firedToken, wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
		{name: "ok", path: "/v1/users/me", token: adminToken, wantCode: http.StatusOK},
	}
	runHTTPTests(t, app, tests)
}

func Test_roleMiddleware(t *testing.T) {
	app := setup(t)
	ceo := app.createUser(t, tenantA, "ceo@ellahos.com", core.RoleCEO, true)
	director := app.createUser(t, tenantA, "dir@ellahos.com", core.RoleDiretor, true)
	finance := app.createUser(t, tenantA, "fin@ellahos.com", core.RoleFinanceiro, true)
	producer := app.createUser(t, tenantA, "pe@ellahos.com", core.RoleProdutorExecutivo, true)

	tests := []httpTest{
		{name: "manager lists users", path: "/v1/users", token: app.token(t, ceo), wantCode: http.StatusOK},
		{name: "director cannot list users", path: "/v1/users", token: app.token(t, director), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
		{
			name: "director cannot read tenant settings", path: "/v1/tenant-settings/integrations",
			token: app.token(t, director), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
		{
			name: "director cannot pay", method: http.MethodPost, path: "/v1/payment-manager/pay",
			token: app.token(t, director), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
		{
			name: "director cannot read cost items", path: "/v1/cost-items?job_id=abc",
			token: app.token(t, director), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
		{
			name: "finance cannot change budget mode", method: http.MethodPatch, path: "/v1/cost-items/budget-mode/abc",
			token: app.token(t, finance), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
		{
			name: "director cannot undo payments", method: http.MethodPost, path: "/v1/payment-manager/undo-pay/abc",
			token: app.token(t, director), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
		{
			name: "producer cannot read tenant dashboard", path: "/v1/financial-dashboard/tenant",
			token: app.token(t, producer), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
	}
	runHTTPTests(t, app, tests)
}

func Test_ipLimiter(t *testing.T) {
	l := newIPLimiter(1)
	assert.Equal(t, 10, l.burst)

	for i := 0; i < l.burst; i++ {
		assert.True(t, l.allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "limits are per ip")

	assert.Equal(t, 5, newIPLimiter(0.1).burst)
	assert.Equal(t, 1.0, float64(newIPLimiter(0).limit))
}

func Test_ipLimiter_middleware(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = newAppHTTPErrorHandler(nil, nil, func() {})
	l := newIPLimiter(1)
	e.GET("/public/:token", func(ctx echo.Context) error {
		return ctx.NoContent(http.StatusNoContent)
	}, l.middleware())

	var codes []int
	for i := 0; i < l.burst+1; i++ {
		req := httptest.NewRequest(http.MethodGet, "/public/abc", nil)
		req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusNoContent, codes[0])
	assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])
}

func Test_chain(t *testing.T) {
	noop := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	base := make([]echo.MiddlewareFunc, 1, 4)
	base[0] = noop

	a := chain(base, noop)
	b := chain(base, noop, noop)
	assert.Len(t, a, 2)
	assert.Len(t, b, 3)
	assert.Len(t, base, 1)
	a[1] = nil
	assert.NotNil(t, b[1])
}
