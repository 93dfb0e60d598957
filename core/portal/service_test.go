package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

const (
	sessionID = "5d8f1e2a-3b4c-4d5e-9f60-718293a4b5c6"
	token     = "0c9e8d7f-6a5b-4c3d-8e2f-1a0b9c8d7e6f"
)

type memRepo struct {
	Repository

	sessions map[string]Session
	messages []Message
	touched  []string
	read     []string
	keys     map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]Session), keys: make(map[string]bool)}
}

func (r *memRepo) GetJob(_ context.Context, _, id string) (JobRef, error) {
	if id == "j1" {
		return JobRef{ID: "j1", Code: "007", Title: "Filme", Status: "pre_producao"}, nil
	}
	return JobRef{}, ErrJobNotFound
}

func (r *memRepo) ContactExists(_ context.Context, _, id string) (bool, error) {
	return id == "c1", nil
}

func (r *memRepo) CreateSession(_ context.Context, s Session) (Session, error) {
	for _, existing := range r.sessions {
		if existing.JobID == s.JobID && core.StrVal(existing.ContactID) == core.StrVal(s.ContactID) {
			return Session{}, core.Conflict("duplicate")
		}
	}
	s.ID = sessionID
	r.sessions[s.ID] = s
	return s, nil
}

func (r *memRepo) GetSession(_ context.Context, tenantID, id string) (Session, error) {
	if s, ok := r.sessions[id]; ok && s.TenantID == tenantID {
		return s, nil
	}
	return Session{}, ErrNotFound
}

func (r *memRepo) GetSessionByToken(_ context.Context, tok string) (Session, error) {
	for _, s := range r.sessions {
		if s.Token == tok {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *memRepo) UpdateSession(_ context.Context, s Session) (Session, error) {
	r.sessions[s.ID] = s
	return s, nil
}

func (r *memRepo) TouchSession(_ context.Context, id string, _ time.Time) error {
	r.touched = append(r.touched, id)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, _, sid, _ string, limit int) ([]Message, error) {
	var out []Message
	for _, m := range r.messages {
		if m.SessionID == sid && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) MarkMessagesRead(_ context.Context, _ string, ids []string, _ time.Time) error {
	r.read = append(r.read, ids...)
	return nil
}

func (r *memRepo) CreateMessage(_ context.Context, m Message) (Message, error) {
	if r.keys[*m.IdempotencyKey] {
		return Message{}, core.Conflict("duplicate")
	}
	r.keys[*m.IdempotencyKey] = true
	m.ID = "m" + m.Content
	r.messages = append(r.messages, m)
	return m, nil
}

func (r *memRepo) CountClientMessagesSince(_ context.Context, sid string, since time.Time) (int, error) {
	n := 0
	for _, m := range r.messages {
		if m.SessionID == sid && m.Direction == ClientToProducer && !m.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) PublicJob(context.Context, string, string) (PublicJob, error) {
	return PublicJob{ID: "j1", Code: "007", Title: "Filme"}, nil
}

func (r *memRepo) Timeline(context.Context, string, string, []string, int) ([]TimelineEvent, error) {
	return []TimelineEvent{{ID: "h1", EventType: "status_change"}}, nil
}

func (r *memRepo) Documents(context.Context, string, string) ([]Document, error) {
	return []Document{{ID: "d1", Name: "Filme 30s", FileURL: "https://drive.google.com/x"}}, nil
}

func (r *memRepo) Approvals(context.Context, string, string) ([]ApprovalSummary, error) {
	return []ApprovalSummary{
		{ID: "a1", Status: "pending", Token: core.StrPtr("t-open"), ExpiresAt: time.Now().Add(time.Hour)},
		{ID: "a2", Status: "pending", Token: core.StrPtr("t-late"), ExpiresAt: time.Now().Add(-time.Hour)},
		{ID: "a3", Status: "approved", Token: core.StrPtr("t-done"), ExpiresAt: time.Now().Add(time.Hour)},
	}, nil
}

type recordingNotifier struct {
	sent []notification.NewNotification
}

func (n *recordingNotifier) NotifyJobTeam(_ context.Context, _, _ string, nn notification.NewNotification) int {
	n.sent = append(n.sent, nn)
	return 1
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var actor = core.Actor{UserID: "u1", TenantID: "t1", Role: core.RoleAtendimento}

func newService() (*Service, *memRepo, *recordingNotifier) {
	repo := newMemRepo()
	notifier := &recordingNotifier{}
	return NewService(repo, notifier, &core.Config{SiteURL: "https://ellahos.com"}, nopLogger{}), repo, notifier
}

func seedSession(repo *memRepo, mutate ...func(*Session)) Session {
	s := Session{ID: sessionID, TenantID: "t1", JobID: "j1", Token: token, Label: "Cliente", Permissions: AllPermissions, IsActive: true}
	for _, fn := range mutate {
		fn(&s)
	}
	repo.sessions[s.ID] = s
	return s
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	appErr, ok := core.AsAppError(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	assert.Equal(t, status, appErr.Status)
}

func TestPermissions_UnmarshalJSON(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`{"messages": false}`), &p))
	assert.Equal(t, Permissions{Timeline: true, Documents: true, Approvals: true, Messages: false}, p)
}

func TestUpdateSession_Validate(t *testing.T) {
	validate := validator.New()

	var empty UpdateSession
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.Error(t, empty.Validate(validate))

	var clear UpdateSession
	require.NoError(t, json.Unmarshal([]byte(`{"expires_at": null}`), &clear))
	assert.NoError(t, clear.Validate(validate))
	assert.True(t, clear.ExpiresAt.Set)
	assert.Nil(t, clear.ExpiresAt.Time)

	var bad UpdateSession
	assert.Error(t, json.Unmarshal([]byte(`{"expires_at": "tomorrow"}`), &bad))
}

func TestService_CreateSession(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	s, err := svc.CreateSession(ctx, actor, NewSession{JobID: "j1", ContactID: core.StrPtr("c1"), Label: "Agencia"})
	require.NoError(t, err)
	assert.Equal(t, AllPermissions, s.Permissions)
	assert.True(t, s.IsActive)
	assert.Equal(t, "https://ellahos.com/portal/"+s.Token, s.PortalURL)
	assert.Equal(t, "007", s.Job.Code)

	_, err = svc.CreateSession(ctx, actor, NewSession{JobID: "j1", ContactID: core.StrPtr("c1"), Label: "Agencia"})
	assertStatus(t, err, http.StatusConflict)

	_, err = svc.CreateSession(ctx, actor, NewSession{JobID: "j1", ContactID: core.StrPtr("c9"), Label: "x"})
	assert.Equal(t, ErrContactNotFound, err)
	_, err = svc.CreateSession(ctx, actor, NewSession{JobID: "j9", Label: "x"})
	assert.Equal(t, ErrJobNotFound, err)
}

func TestService_UpdateAndDeleteSession(t *testing.T) {
	svc, repo, _ := newService()
	seedSession(repo)
	ctx := context.Background()

	off := false
	s, err := svc.UpdateSession(ctx, "t1", sessionID, UpdateSession{IsActive: &off, Label: core.StrPtr("Novo")})
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Equal(t, "Novo", s.Label)

	_, err = svc.UpdateSession(ctx, "t1", "bad-id", UpdateSession{IsActive: &off})
	assert.Equal(t, ErrInvalidID, err)
	_, err = svc.UpdateSession(ctx, "t2", sessionID, UpdateSession{IsActive: &off})
	assert.Equal(t, ErrNotFound, err)
}

func TestService_GetByToken(t *testing.T) {
	svc, repo, _ := newService()
	seedSession(repo, func(s *Session) { s.Permissions.Documents = false })
	repo.messages = []Message{{ID: "m1", SessionID: sessionID, Direction: ClientToProducer}}

	data, err := svc.GetByToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Filme", data.Job.Title)
	assert.Len(t, data.Timeline, 1)
	assert.Empty(t, data.Documents, "documents are hidden by the session permissions")
	assert.Len(t, data.Messages, 1)
	require.Len(t, data.Approvals, 3)
	assert.Equal(t, "t-open", core.StrVal(data.Approvals[0].Token))
	assert.Equal(t, "expired", data.Approvals[1].Status)
	assert.Nil(t, data.Approvals[1].Token)
	assert.Nil(t, data.Approvals[2].Token)
	assert.Equal(t, []string{sessionID}, repo.touched)
}

func TestService_GetByTokenErrors(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()

	_, err := svc.GetByToken(ctx, "nope")
	assert.Equal(t, ErrInvalidToken, err)
	_, err = svc.GetByToken(ctx, token)
	assert.Equal(t, ErrPortalNotFound, err)

	past := time.Now().Add(-time.Minute)
	seedSession(repo, func(s *Session) { s.ExpiresAt = &past })
	_, err = svc.GetByToken(ctx, token)
	assertStatus(t, err, http.StatusGone)

	seedSession(repo, func(s *Session) { s.IsActive = false })
	_, err = svc.GetByToken(ctx, token)
	assert.Equal(t, ErrPortalNotFound, err)
}

func TestService_SendMessage(t *testing.T) {
	svc, repo, notifier := newService()
	seedSession(repo)
	ctx := context.Background()
	content := strings.Repeat("a", 250)

	m, dup, err := svc.SendMessage(ctx, token, NewMessage{SenderName: "Ana", Content: content, IdempotencyKey: core.StrPtr("k1")})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.False(t, dup)
	assert.Equal(t, ClientToProducer, m.Direction)
	assert.Nil(t, m.SenderUserID)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notification.TypePortalMessageReceived, notifier.sent[0].Type)
	assert.Equal(t, "Nova mensagem do cliente: Ana", notifier.sent[0].Title)
	assert.Len(t, notifier.sent[0].Body, 200)
	assert.True(t, strings.HasSuffix(notifier.sent[0].Body, "..."))

	m, dup, err = svc.SendMessage(ctx, token, NewMessage{SenderName: "Ana", Content: "again", IdempotencyKey: core.StrPtr("k1")})
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.True(t, dup)
	assert.Len(t, notifier.sent, 1)
}

func TestService_SendMessageRules(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	tests := []struct {
		name     string
		mutate   func(*Session)
		prior    int
		wantCode int
	}{
		{"inactive", func(s *Session) { s.IsActive = false }, 0, http.StatusForbidden},
		{"expired", func(s *Session) { s.ExpiresAt = &past }, 0, http.StatusGone},
		{"messages disabled", func(s *Session) { s.Permissions.Messages = false }, 0, http.StatusForbidden},
		{"rate limited", func(*Session) {}, MaxClientMessagesPerHour, http.StatusTooManyRequests},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newService()
			seedSession(repo, tc.mutate)
			for i := 0; i < tc.prior; i++ {
				repo.messages = append(repo.messages, Message{SessionID: sessionID, Direction: ClientToProducer, CreatedAt: time.Now()})
			}
			_, _, err := svc.SendMessage(context.Background(), token, NewMessage{SenderName: "Ana", Content: "oi"})
			assertStatus(t, err, tc.wantCode)
		})
	}
}

func TestService_ReplyAndListMessages(t *testing.T) {
	svc, repo, _ := newService()
	seedSession(repo)
	ctx := context.Background()
	repo.messages = []Message{
		{ID: "m1", SessionID: sessionID, Direction: ClientToProducer},
		{ID: "m2", SessionID: sessionID, Direction: ProducerToClient},
	}

	m, err := svc.Reply(ctx, actor, sessionID, NewMessage{SenderName: "Produtora", Content: "ok"})
	require.NoError(t, err)
	assert.Equal(t, ProducerToClient, m.Direction)
	assert.Equal(t, "u1", core.StrVal(m.SenderUserID))

	page, err := svc.ListMessages(ctx, "t1", sessionID, "", 500)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)
	assert.Equal(t, "j1", page.JobID)
	assert.Equal(t, []string{"m1"}, repo.read)
	assert.NotNil(t, page.Messages[0].ReadAt)

	_, err = svc.ListMessages(ctx, "t1", sessionID, "bad", 10)
	assertStatus(t, err, http.StatusBadRequest)

	seedSession(repo, func(s *Session) { s.IsActive = false })
	_, err = svc.Reply(ctx, actor, sessionID, NewMessage{SenderName: "Produtora", Content: "ok"})
	assertStatus(t, err, http.StatusConflict)
}
