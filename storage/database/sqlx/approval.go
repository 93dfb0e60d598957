package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/approval"
)

var (
	approvalCols = []string{
		"id", "tenant_id", "job_id", "approval_type", "title", "description", "file_url", "approver_type",
		"approver_email", "approver_phone", "approver_people_id", "token", "status", "expires_at", "approved_at",
		"approved_ip", "rejection_reason", "created_by", "created_at", "updated_at",
	}
	approvalSelect = selectList("r", approvalCols, nil, nil) + `, j.id AS "job.id", j.code AS "job.code", j.title AS "job.title"`
	approvalLogCols = []string{
		"id", "tenant_id", "approval_request_id", "action", "actor_type", "actor_id", "actor_name", "actor_ip",
		"comment", "metadata", "created_at",
	}
)

const approvalFrom = `approval_requests r JOIN jobs j ON j.id = r.job_id AND j.tenant_id = r.tenant_id`

type approvalRepository struct {
	exec core.DBExecutor
}

var _ approval.Repository = (*approvalRepository)(nil) // interface compliance check

func NewApprovalRepository(exec core.DBExecutor) approval.Repository {
	return &approvalRepository{exec: exec}
}

func (repo *approvalRepository) ListByJob(ctx context.Context, tenantID, jobID string) ([]approval.Request, error) {
	reqs := make([]approval.Request, 0)
	err := repo.exec.SelectContext(ctx, &reqs, `
		SELECT `+approvalSelect+` FROM `+approvalFrom+`
		WHERE r.tenant_id = $1 AND r.job_id = $2 AND r.deleted_at IS NULL
		ORDER BY r.created_at DESC`,
		tenantID, jobID)
	return reqs, errors.Wrap(err, "selecting approval requests")
}

func (repo *approvalRepository) ListPending(ctx context.Context, tenantID string, now time.Time) ([]approval.Request, error) {
	reqs := make([]approval.Request, 0)
	err := repo.exec.SelectContext(ctx, &reqs, `
		SELECT `+approvalSelect+` FROM `+approvalFrom+`
		WHERE r.tenant_id = $1 AND r.status = $2 AND r.expires_at > $3 AND r.deleted_at IS NULL
		ORDER BY r.expires_at`,
		tenantID, approval.StatusPending, now)
	return reqs, errors.Wrap(err, "selecting pending approval requests")
}

func (repo *approvalRepository) GetRequest(ctx context.Context, tenantID, id string) (approval.Request, error) {
	var r approval.Request
	err := repo.exec.GetContext(ctx, &r, `
		SELECT `+approvalSelect+` FROM `+approvalFrom+`
		WHERE r.tenant_id = $1 AND r.id = $2 AND r.deleted_at IS NULL`,
		tenantID, id)
	return r, trapNoRows(err, approval.ErrNotFound, "selecting approval request")
}

func (repo *approvalRepository) GetByToken(ctx context.Context, token string) (approval.Request, error) {
	var r approval.Request
	err := repo.exec.GetContext(ctx, &r, `
		SELECT `+approvalSelect+` FROM `+approvalFrom+`
		WHERE r.token = $1 AND r.deleted_at IS NULL`,
		token)
	return r, trapNoRows(err, approval.ErrInvalidToken, "selecting approval request by token")
}

func (repo *approvalRepository) CreateRequest(ctx context.Context, r approval.Request) (approval.Request, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("approval_requests", approvalCols), r); err != nil {
		return approval.Request{}, mapWriteErr(err, "inserting approval request")
	}
	return repo.GetRequest(ctx, r.TenantID, r.ID)
}

func (repo *approvalRepository) UpdateRequest(ctx context.Context, r approval.Request) (approval.Request, error) {
	q := updateSQL("approval_requests", approvalCols, "job_id", "token", "created_by")
	return r, namedUpdate(ctx, repo.exec, q, r, approval.ErrNotFound, "updating approval request")
}

func (repo *approvalRepository) InsertLog(ctx context.Context, l approval.Log) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Metadata == nil {
		l.Metadata = core.JSONMap{}
	}
	_, err := repo.exec.NamedExecContext(ctx, insertSQL("approval_logs", approvalLogCols), l)
	return mapWriteErr(err, "inserting approval log")
}

func (repo *approvalRepository) ListLogs(ctx context.Context, tenantID, requestID string) ([]approval.Log, error) {
	logs := make([]approval.Log, 0)
	err := repo.exec.SelectContext(ctx, &logs, `
		SELECT l.id, l.tenant_id, l.approval_request_id, l.action, l.actor_type, l.actor_id,
			COALESCE(l.actor_name, p.full_name) AS actor_name, l.actor_ip, l.comment, l.metadata, l.created_at
		FROM approval_logs l
		LEFT JOIN profiles p ON p.id = l.actor_id AND p.tenant_id = l.tenant_id
		WHERE l.tenant_id = $1 AND l.approval_request_id = $2
		ORDER BY l.created_at`,
		tenantID, requestID)
	return logs, errors.Wrap(err, "selecting approval logs")
}

func (repo *approvalRepository) CountLogsSince(ctx context.Context, requestID string, since time.Time) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n,
		`SELECT count(*) FROM approval_logs WHERE approval_request_id = $1 AND created_at >= $2`, requestID, since)
	return n, errors.Wrap(err, "counting approval logs")
}

func (repo *approvalRepository) GetJob(ctx context.Context, tenantID, jobID string) (approval.JobRef, error) {
	var j approval.JobRef
	err := repo.exec.GetContext(ctx, &j,
		`SELECT id, code, title FROM jobs WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, jobID)
	return j, trapNoRows(err, approval.ErrJobNotFound, "selecting approval job")
}

func (repo *approvalRepository) PersonProfileID(ctx context.Context, tenantID, peopleID string) (*string, error) {
	var id *string
	err := repo.exec.GetContext(ctx, &id,
		`SELECT profile_id FROM people WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL`, tenantID, peopleID)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	}
	return id, errors.Wrap(err, "selecting person profile")
}
