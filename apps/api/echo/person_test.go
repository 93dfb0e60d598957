package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
	testutil "github.com/ellahos/ellahos/tests"
)

type personPage struct {
	Data []person.Person `json:"data"`
	Meta core.PageMeta   `json:"meta"`
}

func names(people []person.Person) []string {
	out := make([]string, 0, len(people))
	for _, p := range people {
		out = append(out, p.FullName)
	}
	return out
}

func Test_personApi_query(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "coord@ellahos.com", core.RoleCoordenador, true)
	token := app.token(t, usr)

	for i, name := range []string{"Carla", "Ana", "Bruno", "Duda", "Eva"} {
		testutil.CreatePerson(t, app.personRepo, tenantA, name, testEpoch.Add(time.Duration(i)*time.Hour))
	}
	testutil.CreatePerson(t, app.personRepo, tenantB, "Other tenant", testEpoch)

	tests := []struct {
		name      string
		query     string
		wantNames []string
		wantMeta  core.PageMeta
	}{
		{
			name:      "defaults to full_name desc",
			wantNames: []string{"Eva", "Duda", "Carla", "Bruno", "Ana"},
			wantMeta:  core.PageMeta{Total: 5, Page: 1, PerPage: core.DefaultPerPage, TotalPages: 1},
		},
		{
			name:      "ascending",
			query:     "?sort_order=asc",
			wantNames: []string{"Ana", "Bruno", "Carla", "Duda", "Eva"},
			wantMeta:  core.PageMeta{Total: 5, Page: 1, PerPage: core.DefaultPerPage, TotalPages: 1},
		},
		{
			name:      "second page",
			query:     "?sort_order=asc&per_page=2&page=2",
			wantNames: []string{"Carla", "Duda"},
			wantMeta:  core.PageMeta{Total: 5, Page: 2, PerPage: 2, TotalPages: 3},
		},
		{
			name:      "past the last page",
			query:     "?per_page=2&page=9",
			wantNames: []string{},
			wantMeta:  core.PageMeta{Total: 5, Page: 9, PerPage: 2, TotalPages: 3},
		},
		{
			name:      "sort by created_at",
			query:     "?sort_by=created_at&sort_order=asc",
			wantNames: []string{"Carla", "Ana", "Bruno", "Duda", "Eva"},
			wantMeta:  core.PageMeta{Total: 5, Page: 1, PerPage: core.DefaultPerPage, TotalPages: 1},
		},
		{
			name:      "unknown sort falls back",
			query:     "?sort_by=cpf&sort_order=asc&per_page=900",
			wantNames: []string{"Ana", "Bruno", "Carla", "Duda", "Eva"},
			wantMeta:  core.PageMeta{Total: 5, Page: 1, PerPage: core.MaxPerPage, TotalPages: 1},
		},
		{
			name:      "search",
			query:     "?search=RU",
			wantNames: []string{"Bruno"},
			wantMeta:  core.PageMeta{Total: 1, Page: 1, PerPage: core.DefaultPerPage, TotalPages: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(t, httpTest{path: "/v1/people" + tt.query, token: token})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var res personPage
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantNames, names(res.Data))
			assert.Equal(t, tt.wantMeta, res.Meta)
		})
	}
}

func Test_personApi_crud(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "coord@ellahos.com", core.RoleCoordenador, true)
	token := app.token(t, usr)
	foreign := testutil.CreatePerson(t, app.personRepo, tenantB, "Other tenant", testEpoch)

	rec := app.do(t, httpTest{
		method: http.MethodPost, path: "/v1/people", token: token,
		body: []byte(`{"full_name": "  Joana Lima ", "email": "JOANA@Mail.com", "is_internal": true}`),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data person.Person `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	p := created.Data
	assert.Equal(t, "Joana Lima", p.FullName)
	assert.Equal(t, "joana@mail.com", core.StrVal(p.Email))
	assert.True(t, p.IsInternal)
	assert.True(t, p.IsActive)
	assert.Equal(t, tenantA, p.TenantID)

	tests := []httpTest{
		{name: "create requires a name", method: http.MethodPost, path: "/v1/people", token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest, wantErr: core.CodeValidation},
		{name: "retrieve", path: "/v1/people/" + p.ID, token: token, wantCode: http.StatusOK},
		{name: "other tenant is hidden", path: "/v1/people/" + foreign.ID, token: token, wantCode: http.StatusNotFound, wantErr: core.CodeNotFound},
		{name: "empty update", method: http.MethodPatch, path: "/v1/people/" + p.ID, token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest, wantErr: core.CodeValidation},
		{name: "update", method: http.MethodPatch, path: "/v1/people/" + p.ID, token: token, body: []byte(`{"default_rate": 1500}`), wantCode: http.StatusOK},
		{name: "delete other tenant", method: http.MethodDelete, path: "/v1/people/" + foreign.ID, token: token, wantCode: http.StatusNotFound, wantErr: core.CodeNotFound},
		{name: "delete", method: http.MethodDelete, path: "/v1/people/" + p.ID, token: token, wantCode: http.StatusOK},
		{name: "deleted is gone", path: "/v1/people/" + p.ID, token: token, wantCode: http.StatusNotFound, wantErr: core.CodeNotFound},
	}
	runHTTPTests(t, app, tests)
}
