package notification

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type memRepo struct {
	Repository

	notifications []Notification
	prefs         map[string]Preferences
	team          []string
	byRole        []string
}

func newMemRepo() *memRepo {
	return &memRepo{prefs: make(map[string]Preferences)}
}

func (r *memRepo) CreateNotifications(_ context.Context, ns []Notification) ([]Notification, error) {
	for i := range ns {
		ns[i].ID = ns[i].UserID + "-" + ns[i].Type
		r.notifications = append(r.notifications, ns[i])
	}
	return ns, nil
}

func (r *memRepo) MarkRead(_ context.Context, _, userID, id string, at time.Time) (Notification, error) {
	for i, n := range r.notifications {
		if n.ID == id && n.UserID == userID {
			r.notifications[i].ReadAt = &at
			return r.notifications[i], nil
		}
	}
	return Notification{}, ErrNotFound
}

func (r *memRepo) GetPreferences(_ context.Context, _, userID string) (Preferences, error) {
	if p, ok := r.prefs[userID]; ok {
		return p, nil
	}
	return Preferences{}, core.NotFound("preferences")
}

func (r *memRepo) UpsertPreferences(_ context.Context, p Preferences) (Preferences, error) {
	r.prefs[p.UserID] = p
	return p, nil
}

func (r *memRepo) PreferencesFor(_ context.Context, _ string, userIDs []string) (map[string]Preferences, error) {
	out := make(map[string]Preferences)
	for _, id := range userIDs {
		if p, ok := r.prefs[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *memRepo) JobTeamProfileIDs(context.Context, string, string) ([]string, error) {
	return r.team, nil
}

func (r *memRepo) ProfileIDsByRoles(context.Context, string, ...string) ([]string, error) {
	return r.byRole, nil
}

type recordingPublisher struct {
	users []string
}

func (p *recordingPublisher) Publish(userID, _ string, _ interface{}) {
	p.users = append(p.users, userID)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestService_Notify(t *testing.T) {
	repo := newMemRepo()
	repo.prefs["muted"] = Preferences{UserID: "muted", Preferences: defaultChannels, MutedTypes: []string{TypeStatusChanged}}
	repo.prefs["off"] = Preferences{UserID: "off", Preferences: Channels{InApp: false}}
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, nopLogger{})

	n, err := svc.Notify(context.Background(), "t1", []string{"u1", "muted", "off", "u1", ""}, NewNotification{
		Type:  TypeStatusChanged,
		Title: "Status alterado",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, repo.notifications, 1)
	assert.Equal(t, "u1", repo.notifications[0].UserID)
	assert.Equal(t, PriorityNormal, repo.notifications[0].Priority)
	assert.Equal(t, []string{"u1"}, pub.users)
}

func TestService_NotifyJobTeam(t *testing.T) {
	repo := newMemRepo()
	repo.team = []string{"a", "b"}
	svc := NewService(repo, nil, nopLogger{})

	n := svc.NotifyJobTeam(context.Background(), "t1", "job-1", NewNotification{Type: TypeTeamAdded, Priority: PriorityHigh})
	assert.Equal(t, 2, n)
	for _, notif := range repo.notifications {
		assert.Equal(t, "job-1", core.StrVal(notif.JobID))
		assert.Equal(t, PriorityHigh, notif.Priority)
	}

	repo.team = nil
	assert.Zero(t, svc.NotifyJobTeam(context.Background(), "t1", "job-2", NewNotification{Type: TypeTeamAdded}))
}

func TestService_MarkRead(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nopLogger{})
	actor := core.Actor{UserID: "u1", TenantID: "t1"}
	require.NoError(t, svc.Create(context.Background(), "t1", "u1", NewNotification{Type: TypeMarginAlert}))

	n, err := svc.MarkRead(context.Background(), actor, "u1-"+TypeMarginAlert)
	require.NoError(t, err)
	assert.NotNil(t, n.ReadAt)

	_, err = svc.MarkRead(context.Background(), core.Actor{UserID: "u2", TenantID: "t1"}, "u1-"+TypeMarginAlert)
	assert.True(t, core.IsNotFound(err))
}

func TestService_Preferences(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nopLogger{})
	actor := core.Actor{UserID: "u1", TenantID: "t1"}

	p, err := svc.GetPreferences(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, p.Preferences.InApp)
	assert.False(t, p.Preferences.WhatsApp)
	assert.Empty(t, p.MutedTypes)

	whatsapp := true
	up := UpdatePreferences{}
	up.Preferences = &struct {
		InApp    *bool `json:"in_app"`
		WhatsApp *bool `json:"whatsapp"`
	}{WhatsApp: &whatsapp}
	p, err = svc.UpdatePreferences(context.Background(), actor, up)
	require.NoError(t, err)
	assert.True(t, p.Preferences.InApp, "untouched fields are kept")
	assert.True(t, p.Preferences.WhatsApp)

	muted := []string{TypeMarginAlert}
	p, err = svc.UpdatePreferences(context.Background(), actor, UpdatePreferences{MutedTypes: &muted})
	require.NoError(t, err)
	assert.Equal(t, []string{TypeMarginAlert}, []string(p.MutedTypes))
	assert.True(t, p.Preferences.WhatsApp)
}

func TestUpdatePreferences_Validate(t *testing.T) {
	err := (&UpdatePreferences{}).Validate(validator.New())
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, core.CodeValidation, appErr.Code)
}
