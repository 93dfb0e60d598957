package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

func emails(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Email)
	}
	return out
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, tenantA, "admin@ellahos.com", core.RoleAdmin, true)
	app.createUser(t, tenantA, "coord@ellahos.com", core.RoleCoordenador, true)
	app.createUser(t, tenantA, "free@ellahos.com", core.RoleFreelancer, false)
	app.createUser(t, tenantB, "other@agency.com", core.RoleAdmin, true)
	token := app.token(t, admin)

	tests := []struct {
		name       string
		query      string
		wantEmails []string
	}{
		{name: "whole tenant", query: "?sort_by=email&sort_order=asc", wantEmails: []string{"admin@ellahos.com", "coord@ellahos.com", "free@ellahos.com"}},
		{name: "by role", query: "?role=COORDENADOR", wantEmails: []string{"coord@ellahos.com"}},
		{name: "inactive only", query: "?is_active=false", wantEmails: []string{"free@ellahos.com"}},
		{name: "search", query: "?search=free", wantEmails: []string{"free@ellahos.com"}},
		{name: "nothing matches", query: "?search=agency", wantEmails: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, httpTest{path: "/v1/users" + tt.query, token: token})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var res struct {
				Data []user.User `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantEmails, emails(res.Data))
		})
	}
}

func Test_userApi_manage(t *testing.T) {
	app := setup(t)
	admin := app.createUser(t, tenantA, "admin@ellahos.com", core.RoleAdmin, true)
	coord := app.createUser(t, tenantA, "coord@ellahos.com", core.RoleCoordenador, true)
	foreign := app.createUser(t, tenantB, "other@agency.com", core.RoleAdmin, true)
	token := app.token(t, admin)

	newUser := func(email, pwd string) []byte {
		return marshalObj(t, map[string]string{
			"full_name": "Nova Pessoa", "email": email, "role": core.RoleDiretor,
			"password": pwd, "password_confirm": pwd,
		})
	}

	tests := []httpTest{
		{name: "create", method: http.MethodPost, path: "/v1/users", token: token, body: newUser("nova@ellahos.com", "Vx9#kLm2qW"), wantCode: http.StatusCreated},
		{name: "duplicate email", method: http.MethodPost, path: "/v1/users", token: token, body: newUser("NOVA@ellahos.com", "Vx9#kLm2qW"), wantCode: http.StatusConflict, wantErr: core.CodeConflict},
		{name: "weak password", method: http.MethodPost, path: "/v1/users", token: token, body: newUser("weak@ellahos.com", "12345678"), wantCode: http.StatusBadRequest, wantErr: core.CodeValidation},
		{name: "retrieve", path: "/v1/users/" + coord.ID, token: token, wantCode: http.StatusOK},
		{name: "other tenant is hidden", path: "/v1/users/" + foreign.ID, token: token, wantCode: http.StatusNotFound, wantErr: core.CodeNotFound},
		{
			name: "deactivate someone else", method: http.MethodPatch, path: "/v1/users/" + coord.ID, token: token,
			body: []byte(`{"is_active": false}`), wantCode: http.StatusOK,
		},
		{
			name: "cannot demote yourself", method: http.MethodPatch, path: "/v1/users/" + admin.ID, token: token,
			body: []byte(`{"role": "freelancer"}`), wantCode: http.StatusUnprocessableEntity, wantErr: core.CodeBusinessRule,
		},
		{
			name: "unknown role", method: http.MethodPatch, path: "/v1/users/" + coord.ID, token: token,
			body: []byte(`{"role": "intern"}`), wantCode: http.StatusBadRequest, wantErr: core.CodeValidation,
		},
	}
	runHTTPTests(t, app, tests)

	refreshed, err := app.usrRepo.GetUserByID(context.Background(), coord.ID)
	require.NoError(t, err)
	assert.False(t, refreshed.IsActive)
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "free@ellahos.com", core.RoleFreelancer, true)
	token := app.token(t, usr)

	rec := app.do(t, httpTest{path: "/v1/users/me", token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Data user.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, usr.ID, res.Data.ID)
	assert.NotContains(t, rec.Body.String(), "password")

	tests := []httpTest{
		{name: "rename", method: http.MethodPatch, path: "/v1/users/me", token: token, body: []byte(`{"full_name": " Ana Freela "}`), wantCode: http.StatusOK},
		{name: "cannot change own role", method: http.MethodPatch, path: "/v1/users/me", token: token, body: []byte(`{"role": "admin"}`), wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
		{name: "listing needs a manager", path: "/v1/users", token: token, wantCode: http.StatusForbidden, wantErr: core.CodeForbidden},
	}
	runHTTPTests(t, app, tests)

	refreshed, err := app.usrRepo.GetUserByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Freela", refreshed.FullName)
	assert.Equal(t, core.RoleFreelancer, refreshed.Role)
}
