package approval

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

const token = "3f0b6a52-8a6e-4c59-9d4f-0a1b2c3d4e5f"

type memRepo struct {
	Repository

	reqs    map[string]Request
	logs    []Log
	jobs    map[string]JobRef
	profile *string
}

func newMemRepo() *memRepo {
	return &memRepo{
		reqs: make(map[string]Request),
		jobs: map[string]JobRef{"j1": {ID: "j1", Code: "042", Title: "Campanha Verao"}},
	}
}

func (r *memRepo) GetJob(_ context.Context, _, id string) (JobRef, error) {
	if j, ok := r.jobs[id]; ok {
		return j, nil
	}
	return JobRef{}, ErrJobNotFound
}

func (r *memRepo) PersonProfileID(context.Context, string, string) (*string, error) {
	return r.profile, nil
}

func (r *memRepo) CreateRequest(_ context.Context, req Request) (Request, error) {
	req.ID = "a" + req.ApprovalType
	r.reqs[req.ID] = req
	return req, nil
}

func (r *memRepo) GetRequest(_ context.Context, tenantID, id string) (Request, error) {
	if req, ok := r.reqs[id]; ok && req.TenantID == tenantID {
		job := r.jobs[req.JobID]
		req.Job = &job
		return req, nil
	}
	return Request{}, ErrNotFound
}

func (r *memRepo) GetByToken(_ context.Context, tok string) (Request, error) {
	for _, req := range r.reqs {
		if req.Token == tok {
			job := r.jobs[req.JobID]
			req.Job = &job
			return req, nil
		}
	}
	return Request{}, ErrNotFound
}

func (r *memRepo) UpdateRequest(_ context.Context, req Request) (Request, error) {
	req.Job = nil
	r.reqs[req.ID] = req
	return req, nil
}

func (r *memRepo) InsertLog(_ context.Context, l Log) error {
	r.logs = append(r.logs, l)
	return nil
}

func (r *memRepo) CountLogsSince(_ context.Context, id string, since time.Time) (int, error) {
	n := 0
	for _, l := range r.logs {
		if l.ApprovalRequestID == id && !l.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) actions() []string {
	out := make([]string, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

type sentNotification struct {
	userID string
	nn     notification.NewNotification
}

type recordingNotifier struct {
	sent []sentNotification
}

func (n *recordingNotifier) NotifyUser(_ context.Context, _, userID string, nn notification.NewNotification) {
	n.sent = append(n.sent, sentNotification{userID, nn})
}

type recordingEnqueuer struct {
	keys     []string
	payloads []core.JSONMap
}

func (e *recordingEnqueuer) EnqueueWhatsApp(_ context.Context, _ string, payload core.JSONMap, key string) (string, error) {
	e.keys = append(e.keys, key)
	e.payloads = append(e.payloads, payload)
	return "e1", nil
}

type recordingMailer struct {
	messages []*core.EmailMessage
}

func (m *recordingMailer) SendMessages(msgs ...*core.EmailMessage) {
	m.messages = append(m.messages, msgs...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	repo     *memRepo
	notifier *recordingNotifier
	events   *recordingEnqueuer
	mailer   *recordingMailer
	svc      *Service
}

func newFixture() fixture {
	f := fixture{
		repo:     newMemRepo(),
		notifier: &recordingNotifier{},
		events:   &recordingEnqueuer{},
		mailer:   &recordingMailer{},
	}
	f.svc = NewService(f.repo, f.notifier, f.events, f.mailer, &core.Config{SiteURL: "https://app.ellahos.com"}, nopLogger{})
	return f
}

func (f fixture) seed(status string, expiresIn time.Duration) Request {
	r := Request{
		ID:           "r1",
		TenantID:     "t1",
		JobID:        "j1",
		ApprovalType: TypeCorte,
		Title:        "Corte final",
		ApproverType: ApproverExternal,
		Token:        token,
		Status:       status,
		ExpiresAt:    time.Now().Add(expiresIn),
		CreatedBy:    "creator",
	}
	f.repo.reqs[r.ID] = r
	return r
}

var actor = core.Actor{UserID: "u1", TenantID: "t1", Role: core.RoleAtendimento}

func TestNewRequest_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	id := "7f1c3a9e-1b2c-4d5e-8f90-123456789abc"

	tests := []struct {
		name    string
		data    NewRequest
		wantErr bool
	}{
		{"external", NewRequest{JobID: id, ApprovalType: TypeCorte, Title: "x", ApproverType: ApproverExternal, ApproverEmail: core.StrPtr("Cli@Acme.com")}, false},
		{"external without email", NewRequest{JobID: id, ApprovalType: TypeCorte, Title: "x", ApproverType: ApproverExternal}, true},
		{"internal without person", NewRequest{JobID: id, ApprovalType: TypeCorte, Title: "x", ApproverType: ApproverInternal, ApproverEmail: core.StrPtr("a@b.co")}, true},
		{"bad type", NewRequest{JobID: id, ApprovalType: "roteiro", Title: "x", ApproverType: ApproverInternal, ApproverPeopleID: &id}, true},
		{"file on drive", NewRequest{JobID: id, ApprovalType: TypeCorte, Title: "x", ApproverType: ApproverInternal, ApproverPeopleID: &id, FileURL: core.StrPtr("https://drive.google.com/file/d/1")}, false},
		{"file elsewhere", NewRequest{JobID: id, ApprovalType: TypeCorte, Title: "x", ApproverType: ApproverInternal, ApproverPeopleID: &id, FileURL: core.StrPtr("https://evil.com/f.mp4")}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.data.Validate(validate)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllowedFileURL(t *testing.T) {
	assert.True(t, AllowedFileURL("https://abc.supabase.co/storage/v1/x.pdf"))
	assert.True(t, AllowedFileURL("https://docs.google.com/document/d/1"))
	assert.True(t, AllowedFileURL("http://localhost:3000/f.mp4"))
	assert.False(t, AllowedFileURL("https://notsupabase.co/x"))
	assert.False(t, AllowedFileURL("drive.google.com/x"))
}

func TestService_CreateExternal(t *testing.T) {
	f := newFixture()
	before := time.Now().UTC()

	r, err := f.svc.Create(context.Background(), actor, NewRequest{
		JobID:         "j1",
		ApprovalType:  TypeOrcamentoDetalhado,
		Title:         "Orcamento v2",
		ApproverType:  ApproverExternal,
		ApproverEmail: core.StrPtr("cliente@acme.com"),
		ApproverPhone: core.StrPtr("11987654321"),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.NotEmpty(t, r.Token)
	assert.WithinDuration(t, before.AddDate(0, 0, 7), r.ExpiresAt, time.Minute)

	require.Equal(t, []string{"approval-created-aorcamento_detalhado"}, f.events.keys)
	assert.Equal(t, "https://app.ellahos.com/approve/"+r.Token, f.events.payloads[0]["approval_url"])
	assert.Equal(t, "042", f.events.payloads[0]["job_code"])
	assert.Equal(t, "cliente@acme.com", f.events.payloads[0]["recipient_name"])

	require.Len(t, f.mailer.messages, 1)
	assert.Equal(t, "approval_request", f.mailer.messages[0].TemplateName)
	assert.Equal(t, []string{ActionCreated, ActionSent, ActionSent}, f.repo.actions())
	assert.Empty(t, f.notifier.sent)

	_, err = f.svc.Create(context.Background(), actor, NewRequest{JobID: "j9", ApprovalType: TypeCorte})
	assert.Equal(t, ErrJobNotFound, err)
}

func TestService_CreateInternal(t *testing.T) {
	f := newFixture()
	f.repo.profile = core.StrPtr("p-profile")
	people := "person1"

	r, err := f.svc.Create(context.Background(), actor, NewRequest{
		JobID:            "j1",
		ApprovalType:     TypeBriefing,
		Title:            "Briefing",
		ApproverType:     ApproverInternal,
		ApproverPeopleID: &people,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), r.ExpiresAt, time.Minute)
	assert.Empty(t, f.events.keys)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "p-profile", f.notifier.sent[0].userID)
	assert.Equal(t, notification.TypeApprovalRequested, f.notifier.sent[0].nn.Type)
	assert.Equal(t, "Aprovacao de briefing para o job 042 - Campanha Verao", f.notifier.sent[0].nn.Body)
}

func TestService_Decide(t *testing.T) {
	f := newFixture()
	f.seed(StatusPending, time.Hour)

	r, err := f.svc.RejectInternal(context.Background(), actor, "r1", Decision{Comment: core.StrPtr("Trocar trilha")})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r.Status)
	assert.Equal(t, "Trocar trilha", core.StrVal(r.RejectionReason))
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "creator", f.notifier.sent[0].userID)
	assert.Equal(t, "A aprovacao de corte para o job 042 foi rejeitada. Motivo: Trocar trilha", f.notifier.sent[0].nn.Body)

	_, err = f.svc.ApproveInternal(context.Background(), actor, "r1", Decision{})
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	assert.Equal(t, "Aprovacao ja foi rejected", appErr.Message)

	_, err = f.svc.ApproveInternal(context.Background(), core.Actor{TenantID: "t2"}, "r1", Decision{})
	assert.Equal(t, ErrNotFound, err)
}

func TestService_DecideBySelfDoesNotNotify(t *testing.T) {
	f := newFixture()
	f.seed(StatusPending, time.Hour)

	r, err := f.svc.ApproveInternal(context.Background(), core.Actor{UserID: "creator", TenantID: "t1"}, "r1", Decision{})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, r.Status)
	assert.NotNil(t, r.ApprovedAt)
	assert.Empty(t, f.notifier.sent)
}

func TestDecision_Validate(t *testing.T) {
	validate := validator.New()
	assert.Error(t, (&Decision{Comment: core.StrPtr("  ")}).Validate(validate, true))
	assert.NoError(t, (&Decision{}).Validate(validate, false))
	assert.NoError(t, (&Decision{Comment: core.StrPtr("ok")}).Validate(validate, true))
}

func TestService_Resend(t *testing.T) {
	f := newFixture()
	r := f.seed(StatusPending, time.Hour)
	ctx := context.Background()

	_, err := f.svc.Resend(ctx, actor, "not-a-uuid")
	assert.Equal(t, ErrNotFound, err)

	delete(f.repo.reqs, r.ID)
	r.ID = token
	f.repo.reqs[r.ID] = r
	_, err = f.svc.Resend(ctx, actor, token)
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Aprovador nao possui telefone cadastrado", appErr.Message)

	r.ApproverPhone = core.StrPtr("11987654321")
	f.repo.reqs[r.ID] = r
	res, err := f.svc.Resend(ctx, actor, token)
	require.NoError(t, err)
	assert.Equal(t, ResendResult{ID: token, Resent: true}, res)
	require.Len(t, f.events.keys, 1)
	assert.Contains(t, f.events.keys[0], "approval-resend-"+token+"-")
	assert.Equal(t, []string{ActionResent}, f.repo.actions())
}

func TestService_GetByToken(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		expiresIn   time.Duration
		wantStatus  string
		wantMessage string
	}{
		{"pending", StatusPending, time.Hour, StatusPending, ""},
		{"expired", StatusPending, -time.Hour, StatusExpired, "Este link de aprovacao expirou. Entre em contato com a producao para solicitar um novo link."},
		{"approved", StatusApproved, time.Hour, StatusApproved, "Esta aprovacao ja foi aprovada."},
		{"rejected", StatusRejected, time.Hour, StatusRejected, "Esta aprovacao ja foi rejeitada."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.seed(tc.status, tc.expiresIn)

			view, err := f.svc.GetByToken(context.Background(), token)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, view.Status)
			assert.Equal(t, tc.wantMessage, view.Message)
			if tc.wantMessage == "" {
				assert.Equal(t, "Campanha Verao", view.JobTitle)
				assert.NotNil(t, view.ExpiresAt)
			} else {
				assert.Empty(t, view.Title)
			}
		})
	}

	f := newFixture()
	_, err := f.svc.GetByToken(context.Background(), "abc")
	assert.Equal(t, ErrInvalidToken, err)
	_, err = f.svc.GetByToken(context.Background(), token)
	assert.Equal(t, ErrNotFound, err)
}

func TestService_Respond(t *testing.T) {
	const origin = "https://app.ellahos.com"
	approve := Response{Action: ActionApproved}

	tests := []struct {
		name      string
		status    string
		expiresIn time.Duration
		origin    string
		logs      int
		resp      Response
		wantCode  int
	}{
		{"bad origin", StatusPending, time.Hour, "https://evil.com", 0, approve, http.StatusForbidden},
		{"expired", StatusPending, -time.Hour, origin, 0, approve, http.StatusGone},
		{"already answered", StatusApproved, time.Hour, origin, 0, approve, http.StatusConflict},
		{"rate limited", StatusPending, time.Hour, origin, MaxResponsesPerHour, approve, http.StatusTooManyRequests},
		{"rejection without comment", StatusPending, time.Hour, "http://localhost:3000", 0, Response{Action: ActionRejected}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.seed(tc.status, tc.expiresIn)
			for i := 0; i < tc.logs; i++ {
				f.repo.logs = append(f.repo.logs, Log{ApprovalRequestID: "r1", CreatedAt: time.Now()})
			}

			_, err := f.svc.Respond(context.Background(), token, tc.origin, "1.2.3.4", tc.resp)
			require.Error(t, err)
			if tc.wantCode == 0 {
				_, isAppErr := core.AsAppError(err)
				assert.False(t, isAppErr, "expected a validation error")
				return
			}
			appErr, ok := core.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantCode, appErr.Status)
		})
	}

	t.Run("rejected", func(t *testing.T) {
		f := newFixture()
		f.seed(StatusPending, time.Hour)

		res, err := f.svc.Respond(context.Background(), token, origin, "", Response{Action: ActionRejected, Comment: core.StrPtr("Logo errado")})
		require.NoError(t, err)
		assert.Equal(t, RespondResult{Status: StatusRejected, Message: "Rejeicao registrada com sucesso."}, res)

		r := f.repo.reqs["r1"]
		assert.Equal(t, StatusRejected, r.Status)
		assert.Equal(t, "unknown", core.StrVal(r.ApprovedIP))
		assert.Equal(t, []string{ActionRejected}, f.repo.actions())
		require.Len(t, f.notifier.sent, 1)
		assert.Equal(t, notification.PriorityHigh, f.notifier.sent[0].nn.Priority)
		assert.Equal(t, "A aprovacao de corte para o job 042 foi rejeitada pelo cliente. Motivo: Logo errado", f.notifier.sent[0].nn.Body)
	})
}
