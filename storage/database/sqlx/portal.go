package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/approval"
	"github.com/ellahos/ellahos/core/portal"
)

var (
	sessionCols = []string{
		"id", "tenant_id", "job_id", "contact_id", "token", "label", "permissions", "is_active", "last_accessed_at",
		"expires_at", "created_by", "created_at", "updated_at",
	}
	sessionSelect = selectList("s", sessionCols, nil, nil) +
		`, j.id AS "job.id", j.code AS "job.code", j.title AS "job.title", j.status AS "job.status",
		ct.name AS contact_name, ct.email AS contact_email, ct.phone AS contact_phone`

	messageCols = []string{
		"id", "tenant_id", "session_id", "job_id", "direction", "sender_name", "sender_user_id", "content",
		"attachments", "idempotency_key", "read_at", "created_at",
	}
	messageSelect = selectList("", messageCols, nil, nil)
)

const sessionFrom = `portal_sessions s
	JOIN jobs j ON j.id = s.job_id AND j.tenant_id = s.tenant_id
	LEFT JOIN contacts ct ON ct.id = s.contact_id AND ct.tenant_id = s.tenant_id`

type sessionRow struct {
	portal.Session
	ContactName  *string `db:"contact_name"`
	ContactEmail *string `db:"contact_email"`
	ContactPhone *string `db:"contact_phone"`
}

func (r sessionRow) toSession() portal.Session {
	s := r.Session
	if s.ContactID != nil {
		s.Contact = &portal.ContactRef{ID: s.ContactID, Name: r.ContactName, Email: r.ContactEmail, Phone: r.ContactPhone}
	}
	return s
}

type portalRepository struct {
	exec core.DBExecutor
}

var _ portal.Repository = (*portalRepository)(nil) // interface compliance check

func NewPortalRepository(exec core.DBExecutor) portal.Repository {
	return &portalRepository{exec: exec}
}

func (repo *portalRepository) getSession(ctx context.Context, cond string, args ...interface{}) (portal.Session, error) {
	var row sessionRow
	err := repo.exec.GetContext(ctx, &row, repo.exec.Rebind(`
		SELECT `+sessionSelect+` FROM `+sessionFrom+`
		WHERE s.deleted_at IS NULL AND `+cond), args...)
	if err != nil {
		return portal.Session{}, trapNoRows(err, portal.ErrNotFound, "selecting portal session")
	}
	return row.toSession(), nil
}

func (repo *portalRepository) ListSessions(ctx context.Context, tenantID, jobID string) ([]portal.Session, error) {
	w := newWhere("s.tenant_id = ? AND s.deleted_at IS NULL", tenantID).andIf(jobID != "", "s.job_id = ?", jobID)
	var rows []sessionRow
	q := repo.exec.Rebind(`SELECT ` + sessionSelect + ` FROM ` + sessionFrom + ` WHERE ` + w.String() + ` ORDER BY s.created_at DESC`)
	if err := repo.exec.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting portal sessions")
	}
	sessions := make([]portal.Session, len(rows))
	for i, r := range rows {
		sessions[i] = r.toSession()
	}
	return sessions, nil
}

func (repo *portalRepository) GetSession(ctx context.Context, tenantID, id string) (portal.Session, error) {
	return repo.getSession(ctx, "s.tenant_id = ? AND s.id = ?", tenantID, id)
}

func (repo *portalRepository) GetSessionByToken(ctx context.Context, token string) (portal.Session, error) {
	return repo.getSession(ctx, "s.token = ?", token)
}

func (repo *portalRepository) CreateSession(ctx context.Context, s portal.Session) (portal.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("portal_sessions", sessionCols), s); err != nil {
		return portal.Session{}, mapWriteErr(err, "inserting portal session")
	}
	return repo.GetSession(ctx, s.TenantID, s.ID)
}

func (repo *portalRepository) UpdateSession(ctx context.Context, s portal.Session) (portal.Session, error) {
	q := updateSQL("portal_sessions", sessionCols, "job_id", "contact_id", "token", "created_by", "last_accessed_at")
	if err := namedUpdate(ctx, repo.exec, q, s, portal.ErrNotFound, "updating portal session"); err != nil {
		return portal.Session{}, err
	}
	return repo.GetSession(ctx, s.TenantID, s.ID)
}

func (repo *portalRepository) DeleteSession(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "portal_sessions", tenantID, id, at, portal.ErrNotFound)
}

func (repo *portalRepository) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := repo.exec.ExecContext(ctx, `UPDATE portal_sessions SET last_accessed_at = $1 WHERE id = $2`, at, id)
	return errors.Wrap(err, "touching portal session")
}

func (repo *portalRepository) GetJob(ctx context.Context, tenantID, jobID string) (portal.JobRef, error) {
	var j portal.JobRef
	err := repo.exec.GetContext(ctx, &j,
		`SELECT id, code, title, status FROM jobs WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, jobID)
	return j, trapNoRows(err, portal.ErrJobNotFound, "selecting portal job")
}

func (repo *portalRepository) ContactExists(ctx context.Context, tenantID, contactID string) (bool, error) {
	return exists(ctx, repo.exec, "contacts", tenantID, contactID)
}

func (repo *portalRepository) ListMessages(ctx context.Context, tenantID, sessionID, beforeID string, limit int) ([]portal.Message, error) {
	w := newWhere("tenant_id = ? AND session_id = ?", tenantID, sessionID).
		andIf(beforeID != "", "created_at < (SELECT created_at FROM portal_messages WHERE id = ?)", beforeID)

	msgs := make([]portal.Message, 0)
	q := repo.exec.Rebind(`
		SELECT * FROM (
			SELECT ` + messageSelect + ` FROM portal_messages WHERE ` + w.String() + `
			ORDER BY created_at DESC LIMIT ?
		) recent
		ORDER BY created_at`)
	err := repo.exec.SelectContext(ctx, &msgs, q, append(w.args, limit)...)
	return msgs, errors.Wrap(err, "selecting portal messages")
}

func (repo *portalRepository) MarkMessagesRead(ctx context.Context, tenantID string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE portal_messages SET read_at = $1
		WHERE tenant_id = $2 AND id = ANY($3) AND read_at IS NULL`,
		at, tenantID, pq.Array(ids))
	return errors.Wrap(err, "marking portal messages read")
}

func (repo *portalRepository) CreateMessage(ctx context.Context, m portal.Message) (portal.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Attachments == nil {
		m.Attachments = portal.Attachments{}
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("portal_messages", messageCols), m); err != nil {
		return portal.Message{}, mapWriteErr(err, "inserting portal message")
	}
	return m, nil
}

func (repo *portalRepository) CountClientMessagesSince(ctx context.Context, sessionID string, since time.Time) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, `
		SELECT count(*) FROM portal_messages
		WHERE session_id = $1 AND direction = $2 AND created_at >= $3`,
		sessionID, portal.ClientToProducer, since)
	return n, errors.Wrap(err, "counting portal messages")
}

func (repo *portalRepository) PublicJob(ctx context.Context, tenantID, jobID string) (portal.PublicJob, error) {
	var j portal.PublicJob
	err := repo.exec.GetContext(ctx, &j, `
		SELECT j.id, j.code, j.job_aba, j.title, j.status, j.job_type AS project_type,
			c.name AS client_name, a.name AS agency_name,
			to_char(j.expected_delivery_date, 'YYYY-MM-DD') AS delivery_date, j.updated_at
		FROM `+jobFrom+`
		WHERE j.tenant_id = $1 AND j.id = $2 AND j.deleted_at IS NULL`,
		tenantID, jobID)
	return j, trapNoRows(err, portal.ErrJobNotFound, "selecting public job")
}

func (repo *portalRepository) Timeline(ctx context.Context, tenantID, jobID string, eventTypes []string, limit int) ([]portal.TimelineEvent, error) {
	events := make([]portal.TimelineEvent, 0)
	err := repo.exec.SelectContext(ctx, &events, `
		SELECT id, event_type, description, created_at FROM job_history
		WHERE tenant_id = $1 AND job_id = $2 AND event_type = ANY($3)
		ORDER BY created_at DESC LIMIT $4`,
		tenantID, jobID, pq.Array(eventTypes), limit)
	return events, errors.Wrap(err, "selecting portal timeline")
}

func (repo *portalRepository) Documents(ctx context.Context, tenantID, jobID string) ([]portal.Document, error) {
	docs := make([]portal.Document, 0)
	err := repo.exec.SelectContext(ctx, &docs, `
		SELECT id, description AS name, COALESCE(file_url, review_url) AS file_url, format AS file_type, created_at
		FROM job_deliverables
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL AND (file_url IS NOT NULL OR review_url IS NOT NULL)
		ORDER BY display_order, created_at`,
		tenantID, jobID)
	return docs, errors.Wrap(err, "selecting portal documents")
}

func (repo *portalRepository) Approvals(ctx context.Context, tenantID, jobID string) ([]portal.ApprovalSummary, error) {
	approvals := make([]portal.ApprovalSummary, 0)
	err := repo.exec.SelectContext(ctx, &approvals, `
		SELECT r.id, r.title, r.description, r.approval_type, r.status, r.file_url, r.token,
			p.full_name AS created_by_name, r.expires_at, r.created_at, r.updated_at
		FROM approval_requests r
		LEFT JOIN profiles p ON p.id = r.created_by AND p.tenant_id = r.tenant_id
		WHERE r.tenant_id = $1 AND r.job_id = $2 AND r.approver_type = $3 AND r.deleted_at IS NULL
		ORDER BY r.created_at DESC`,
		tenantID, jobID, approval.ApproverExternal)
	return approvals, errors.Wrap(err, "selecting portal approvals")
}
