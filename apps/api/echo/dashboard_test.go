package echoapi

import (
	"net/http"
	"testing"

	"github.com/ellahos/ellahos/core"
)

func Test_dashboardApi_readOnly(t *testing.T) {
	app := setup(t)
	usr := app.createUser(t, tenantA, "ceo@ellahos.com", core.RoleCEO, true)
	token := app.token(t, usr)

	var tests []httpTest
	for _, path := range []string{"kpis", "pipeline", "alerts", "activity", "revenue"} {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
			tests = append(tests, httpTest{
				name:     method + " " + path,
				method:   method,
				path:     "/v1/dashboard/" + path,
				token:    token,
				wantCode: http.StatusMethodNotAllowed,
				wantErr:  core.CodeMethodNotAllowed,
			})
		}
	}
	tests = append(tests, httpTest{
		name: "auth first", method: http.MethodPost, path: "/v1/dashboard/kpis",
		wantCode: http.StatusUnauthorized, wantErr: core.CodeUnauthorized,
	})
	runHTTPTests(t, app, tests)
}
