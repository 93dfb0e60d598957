package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

func Test_authApi_login(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "ana@ellahos.com", core.RoleAdmin, true)
	app.createUser(t, tenantA, "off@ellahos.com", core.RoleDiretor, false)

	body := func(email, pwd string) []byte {
		return marshalObj(t, loginRequest{Email: email, Password: pwd})
	}

	tests := []httpTest{
		{name: "missing body", method: http.MethodPost, path: "/v1/auth/login", wantCode: http.StatusBadRequest, wantErr: core.CodeValidation},
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/auth/login", body: body("ana", "x"),
			wantCode: http.StatusBadRequest, wantErr: core.CodeValidation,
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/auth/login", body: body("who@ellahos.com", "Sup3r-Secret!"),
			wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/auth/login", body: body("ana@ellahos.com", "nope"),
			wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/v1/auth/login", body: body("off@ellahos.com", "Sup3r-Secret!"),
			wantCode: http.StatusForbidden, wantErr: core.CodeForbidden,
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		rec := app.do(t, httpTest{method: http.MethodPost, path: "/v1/auth/login", body: body(" ANA@ellahos.com ", "Sup3r-Secret!")})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Data loginResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, usr.ID, res.Data.User.ID)
		assert.NotNil(t, res.Data.User.LastLogin)

		claims := new(Claims)
		_, err := jwt.ParseWithClaims(res.Data.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(app.conf.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, usr.ID, claims.Subject)
		assert.Equal(t, tenantA, claims.TenantID)
		assert.Equal(t, core.RoleAdmin, claims.Role)
		assert.Equal(t, claims.IssuedAt, claims.OrigIssuedAt)
	})
}

func Test_authApi_refreshToken(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "ana@ellahos.com", core.RoleCEO, true)

	expiredOrig := time.Now().Add(-app.conf.Server.JWTRefreshExpirationDelta - time.Hour).Unix()
	staleToken, err := GenerateToken(app.conf, NewClaims(app.conf, usr, expiredOrig))
	require.NoError(t, err)

	expired := NewClaims(app.conf, usr)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(app.conf, expired)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/auth/token-refresh", wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized},
		{name: "garbage token", method: http.MethodPost, path: "/v1/auth/token-refresh", token: "abc.def.ghi", wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized},
		{name: "expired token", method: http.MethodPost, path: "/v1/auth/token-refresh", token: expiredToken, wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized},
		{name: "refresh window over", method: http.MethodPost, path: "/v1/auth/token-refresh", token: staleToken, wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
	}
	runHTTPTests(t, app, tests)

	t.Run("keeps the original issue time", func(t *testing.T) {
		orig := time.Now().Add(-time.Hour).Unix()
		token, err := GenerateToken(app.conf, NewClaims(app.conf, usr, orig))
		require.NoError(t, err)

		rec := app.do(t, httpTest{method: http.MethodPost, path: "/v1/auth/token-refresh", token: token})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Data tokenResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

		claims := new(Claims)
		_, err = jwt.ParseWithClaims(res.Data.Token, claims, func(*jwt.Token) (interface{}, error) {
			return []byte(app.conf.SecretKey), nil
		})
		require.NoError(t, err)
		assert.Equal(t, orig, claims.OrigIssuedAt)
	})
}

func Test_authApi_requestPasswordReset(t *testing.T) {
	app := setup(t)
	app.createUser(t, tenantA, "ana@ellahos.com", core.RoleCEO, true)

	tests := []httpTest{
		{
			name: "known email", method: http.MethodPost, path: "/v1/auth/password-reset",
			body: []byte(`{"email":"ana@ellahos.com"}`), wantCode: http.StatusOK,
		},
		{
			name: "unknown email answers the same", method: http.MethodPost, path: "/v1/auth/password-reset",
			body: []byte(`{"email":"nobody@ellahos.com"}`), wantCode: http.StatusOK,
		},
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/auth/password-reset",
			body: []byte(`{"email":"nobody"}`), wantCode: http.StatusBadRequest, wantErr: core.CodeValidation,
		},
	}
	runHTTPTests(t, app, tests)
}
