package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/person"
	"github.com/ellahos/ellahos/core/user"
	emailsvc "github.com/ellahos/ellahos/services/email"
	logsvc "github.com/ellahos/ellahos/services/logger"
	inmemdb "github.com/ellahos/ellahos/storage/database/inmem"
	testutil "github.com/ellahos/ellahos/tests"
)

const (
	tenantA = "11111111-1111-1111-1111-111111111111"
	tenantB = "22222222-2222-2222-2222-222222222222"
)

type testApp struct {
	Server
	conf       *core.Config
	db         *inmemdb.DB
	usrRepo    user.Repository
	personRepo person.Repository
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("TEST : "), conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	personRepo := inmemdb.NewPersonRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	srv := NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        user.NewServiceMock(usrRepo, mailSvc, conf),
		PersonSvc:      person.NewService(personRepo),
	})
	return &testApp{Server: srv, conf: conf, db: db, usrRepo: usrRepo, personRepo: personRepo}
}

func (app *testApp) createUser(t *testing.T, tenantID, email, role string, isActive bool) user.User {
	return testutil.CreateUser(t, app.usrRepo, tenantID, "User "+role, email, "Sup3r-Secret!", role, isActive)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, NewClaims(app.conf, usr))
	require.NoError(t, err)
	return token
}

func (app *testApp) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	for k, v := range tt.headers {
		req.Header.Set(k, v)
	}
	app.ServeHTTP(rec, req)
	return rec
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	headers  map[string]string
	wantCode int
	wantErr  string // error code of the envelope, if any
}

func newAuthRequest(method, path, token string, data []byte) (*http.Request, *httptest.ResponseRecorder) {
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	var res errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res.Error
}

func checkCodeAndError(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantErr != "" {
		assert.Equal(t, tt.wantErr, decodeError(t, rec).Code)
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndError(t, tt, app.do(t, tt))
		})
	}
}

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
