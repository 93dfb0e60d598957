package notification

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var ErrNotFound = core.NotFound("Notificacao nao encontrada ou sem permissao de acesso")

type (
	Repository interface {
		// CreateNotifications inserts all notifications in one statement.
		CreateNotifications(ctx context.Context, ns []Notification) ([]Notification, error)
		// ListNotifications orders by created_at DESC.
		ListNotifications(ctx context.Context, tenantID, userID string, filter QueryFilter, page core.PageParams) ([]Notification, int, error)
		CountUnread(ctx context.Context, tenantID, userID string) (int, error)
		MarkRead(ctx context.Context, tenantID, userID, id string, at time.Time) (Notification, error)
		MarkAllRead(ctx context.Context, tenantID, userID string, at time.Time) (int, error)

		// GetPreferences returns ErrNotFound when the user never saved preferences.
		GetPreferences(ctx context.Context, tenantID, userID string) (Preferences, error)
		// UpsertPreferences inserts or replaces the (tenant_id, user_id) row.
		UpsertPreferences(ctx context.Context, p Preferences) (Preferences, error)
		// PreferencesFor returns the saved preferences of `userIDs`, keyed by user id.
		PreferencesFor(ctx context.Context, tenantID string, userIDs []string) (map[string]Preferences, error)

		// JobTeamProfileIDs returns the profiles linked to the active team members of a job.
		JobTeamProfileIDs(ctx context.Context, tenantID, jobID string) ([]string, error)
		ProfileIDsByRoles(ctx context.Context, tenantID string, roles ...string) ([]string, error)
	}

	// Publisher pushes created notifications to connected clients.
	Publisher interface {
		Publish(userID string, event string, payload interface{})
	}

	Service struct {
		repo      Repository
		publisher Publisher
		logger    core.Logger
	}
)

// EventCreated is the realtime event name of a new notification.
const EventCreated = "notification.created"

func NewService(repo Repository, publisher Publisher, logger core.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: logger}
}

// Notify creates one notification per recipient, skipping users whose preferences reject it.
// It returns the number of notifications created.
func (svc *Service) Notify(ctx context.Context, tenantID string, userIDs []string, nn NewNotification) (int, error) {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return 0, nil
	}

	prefs, err := svc.repo.PreferencesFor(ctx, tenantID, userIDs)
	if err != nil {
		return 0, errors.Wrap(err, "loading notification preferences")
	}

	now := time.Now().UTC()
	var batch []Notification
	for _, id := range userIDs {
		if p, ok := prefs[id]; ok && !p.Accepts(nn.Type) {
			continue
		}
		batch = append(batch, nn.build(tenantID, id, now))
	}
	if len(batch) == 0 {
		return 0, nil
	}

	created, err := svc.repo.CreateNotifications(ctx, batch)
	if err != nil {
		return 0, errors.Wrap(err, "creating notifications")
	}
	if svc.publisher != nil {
		for _, n := range created {
			svc.publisher.Publish(n.UserID, EventCreated, n)
		}
	}
	return len(created), nil
}

func (svc *Service) Create(ctx context.Context, tenantID, userID string, nn NewNotification) error {
	_, err := svc.Notify(ctx, tenantID, []string{userID}, nn)
	return err
}

// NotifyJobTeam notifies every team member of a job that has a linked profile.
// Failures are logged, never returned: a notification must not fail the operation that triggered it.
func (svc *Service) NotifyJobTeam(ctx context.Context, tenantID, jobID string, nn NewNotification) int {
	ids, err := svc.repo.JobTeamProfileIDs(ctx, tenantID, jobID)
	if err != nil {
		svc.logger.Error("loading job team", errors.Wrap(err, "loading job team"), jobID)
		return 0
	}
	if nn.JobID == nil {
		nn.JobID = &jobID
	}
	n, err := svc.Notify(ctx, tenantID, ids, nn)
	if err != nil {
		svc.logger.Error("notifying job team", err, jobID)
		return 0
	}
	return n
}

// NotifyRoles notifies every active profile holding one of `roles`. Failures are logged.
func (svc *Service) NotifyRoles(ctx context.Context, tenantID string, roles []string, nn NewNotification) int {
	ids, err := svc.repo.ProfileIDsByRoles(ctx, tenantID, roles...)
	if err != nil {
		svc.logger.Error("loading profiles by role", errors.Wrap(err, "loading profiles by role"), roles)
		return 0
	}
	n, err := svc.Notify(ctx, tenantID, ids, nn)
	if err != nil {
		svc.logger.Error("notifying roles", err, roles)
		return 0
	}
	return n
}

// NotifyUser is the fire-and-forget variant of Create.
func (svc *Service) NotifyUser(ctx context.Context, tenantID, userID string, nn NewNotification) {
	if userID == "" {
		return
	}
	if err := svc.Create(ctx, tenantID, userID, nn); err != nil {
		svc.logger.Error("notifying user", err, userID)
	}
}

func (svc *Service) List(ctx context.Context, actor core.Actor, filter QueryFilter, page core.PageParams) ([]Notification, int, error) {
	return svc.repo.ListNotifications(ctx, actor.TenantID, actor.UserID, filter, page)
}

func (svc *Service) UnreadCount(ctx context.Context, actor core.Actor) (int, error) {
	return svc.repo.CountUnread(ctx, actor.TenantID, actor.UserID)
}

func (svc *Service) MarkRead(ctx context.Context, actor core.Actor, id string) (Notification, error) {
	return svc.repo.MarkRead(ctx, actor.TenantID, actor.UserID, id, time.Now().UTC())
}

func (svc *Service) MarkAllRead(ctx context.Context, actor core.Actor) (int, error) {
	return svc.repo.MarkAllRead(ctx, actor.TenantID, actor.UserID, time.Now().UTC())
}

// GetPreferences returns the saved preferences, creating the defaults on first access.
func (svc *Service) GetPreferences(ctx context.Context, actor core.Actor) (Preferences, error) {
	p, err := svc.repo.GetPreferences(ctx, actor.TenantID, actor.UserID)
	if err == nil {
		return p, nil
	}
	if !core.IsNotFound(err) {
		return Preferences{}, errors.Wrap(err, "getting notification preferences")
	}
	return svc.repo.UpsertPreferences(ctx, defaultPreferences(actor.TenantID, actor.UserID))
}

// UpdatePreferences merges `up` over the current preferences.
func (svc *Service) UpdatePreferences(ctx context.Context, actor core.Actor, up UpdatePreferences) (Preferences, error) {
	p, err := svc.repo.GetPreferences(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		if !core.IsNotFound(err) {
			return Preferences{}, errors.Wrap(err, "getting notification preferences")
		}
		p = defaultPreferences(actor.TenantID, actor.UserID)
	}
	up.apply(&p)
	return svc.repo.UpsertPreferences(ctx, p)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
