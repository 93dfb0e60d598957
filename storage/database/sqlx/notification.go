package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

var (
	notificationCols = []string{
		"id", "tenant_id", "user_id", "type", "priority", "title", "body", "metadata", "action_url", "job_id",
		"read_at", "created_at",
	}
	notificationSelect = selectList("", notificationCols, nil, nil)
	preferenceCols     = []string{"id", "tenant_id", "user_id", "preferences", "muted_types", "created_at", "updated_at"}
)

type notificationRepository struct {
	exec core.DBExecutor
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) notification.Repository {
	return &notificationRepository{exec: exec}
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns []notification.Notification) ([]notification.Notification, error) {
	if len(ns) == 0 {
		return ns, nil
	}
	for i := range ns {
		if ns[i].ID == "" {
			ns[i].ID = uuid.NewString()
		}
		if ns[i].Metadata == nil {
			ns[i].Metadata = core.JSONMap{}
		}
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("notifications", notificationCols), ns); err != nil {
		return nil, mapWriteErr(err, "inserting notifications")
	}
	return ns, nil
}

func (repo *notificationRepository) ListNotifications(ctx context.Context, tenantID, userID string, f notification.QueryFilter, p core.PageParams) ([]notification.Notification, int, error) {
	w := newWhere("tenant_id = ? AND user_id = ?", tenantID, userID).
		andIf(f.Type != "", "type = ?", f.Type).
		andIf(f.UnreadOnly, "read_at IS NULL").
		andIf(f.JobID != "", "job_id = ?", f.JobID)
	p.SortBy, p.SortOrder = "created_at", "desc"

	ns := make([]notification.Notification, 0)
	total, err := page(ctx, repo.exec, &ns, notificationSelect, "notifications", w, p, "")
	return ns, total, errors.Wrap(err, "selecting notifications")
}

func (repo *notificationRepository) CountUnread(ctx context.Context, tenantID, userID string) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n,
		`SELECT count(*) FROM notifications WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`, tenantID, userID)
	return n, errors.Wrap(err, "counting unread notifications")
}

func (repo *notificationRepository) MarkRead(ctx context.Context, tenantID, userID, id string, at time.Time) (notification.Notification, error) {
	var n notification.Notification
	err := repo.exec.GetContext(ctx, &n, `
		UPDATE notifications SET read_at = COALESCE(read_at, $1)
		WHERE tenant_id = $2 AND user_id = $3 AND id = $4
		RETURNING `+notificationSelect,
		at, tenantID, userID, id)
	return n, trapNoRows(err, notification.ErrNotFound, "marking notification read")
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, tenantID, userID string, at time.Time) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE notifications SET read_at = $1
		WHERE tenant_id = $2 AND user_id = $3 AND read_at IS NULL`,
		at, tenantID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting notifications marked read")
}

func (repo *notificationRepository) GetPreferences(ctx context.Context, tenantID, userID string) (notification.Preferences, error) {
	var p notification.Preferences
	err := repo.exec.GetContext(ctx, &p, `
		SELECT id, tenant_id, user_id, preferences, muted_types, created_at, updated_at
		FROM notification_preferences WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID)
	return p, trapNoRows(err, notification.ErrNotFound, "selecting notification preferences")
}

func (repo *notificationRepository) UpsertPreferences(ctx context.Context, p notification.Preferences) (notification.Preferences, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.MutedTypes == nil {
		p.MutedTypes = pq.StringArray{}
	}
	q := insertSQL("notification_preferences", preferenceCols) + `
		ON CONFLICT (tenant_id, user_id) DO UPDATE
		SET preferences = EXCLUDED.preferences, muted_types = EXCLUDED.muted_types, updated_at = EXCLUDED.updated_at`
	if _, err := repo.exec.NamedExecContext(ctx, q, p); err != nil {
		return notification.Preferences{}, mapWriteErr(err, "upserting notification preferences")
	}
	return repo.GetPreferences(ctx, p.TenantID, p.UserID)
}

func (repo *notificationRepository) PreferencesFor(ctx context.Context, tenantID string, userIDs []string) (map[string]notification.Preferences, error) {
	var prefs []notification.Preferences
	err := repo.exec.SelectContext(ctx, &prefs, `
		SELECT id, tenant_id, user_id, preferences, muted_types, created_at, updated_at
		FROM notification_preferences WHERE tenant_id = $1 AND user_id = ANY($2)`,
		tenantID, pq.Array(userIDs))
	if err != nil {
		return nil, errors.Wrap(err, "selecting notification preferences")
	}
	out := make(map[string]notification.Preferences, len(prefs))
	for _, p := range prefs {
		out[p.UserID] = p
	}
	return out, nil
}

func (repo *notificationRepository) JobTeamProfileIDs(ctx context.Context, tenantID, jobID string) ([]string, error) {
	ids := make([]string, 0)
	err := repo.exec.SelectContext(ctx, &ids, `
		SELECT DISTINCT p.profile_id FROM job_team t
		JOIN people p ON p.id = t.person_id AND p.tenant_id = t.tenant_id
		WHERE t.tenant_id = $1 AND t.job_id = $2 AND t.deleted_at IS NULL AND p.profile_id IS NOT NULL`,
		tenantID, jobID)
	return ids, errors.Wrap(err, "selecting job team profiles")
}

func (repo *notificationRepository) ProfileIDsByRoles(ctx context.Context, tenantID string, roles ...string) ([]string, error) {
	return NewUserRepository(repo.exec).ProfileIDsByRoles(ctx, tenantID, roles...)
}
