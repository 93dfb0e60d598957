package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/ai"
)

var (
	errEstimateNotFound = core.NotFound("Estimativa nao encontrada")

	estimateCols = []string{
		"id", "tenant_id", "job_id", "requested_by", "input_hash", "override_context", "suggested_total", "breakdown",
		"confidence", "reasoning", "similar_jobs", "warnings", "model_used", "input_tokens", "output_tokens",
		"duration_ms", "was_applied", "created_at",
	}
	estimateSelect = selectList("", estimateCols, nil, nil)

	conversationCols = []string{
		"id", "tenant_id", "user_id", "title", "job_id", "model_used", "message_count", "total_input_tokens",
		"total_output_tokens", "last_message_at", "created_at",
	}
	conversationSelect = selectList("", conversationCols, nil, nil)

	conversationMessageCols = []string{
		"id", "tenant_id", "conversation_id", "role", "content", "sources", "model_used", "input_tokens",
		"output_tokens", "duration_ms", "created_at",
	}
	conversationMessageSelect = selectList("", conversationMessageCols, nil, nil)
)

// aiRepository serves the context, usage, estimate and conversation queries of the AI features.
type aiRepository struct {
	exec core.DBExecutor
}

var _ ai.Repository = (*aiRepository)(nil) // interface compliance check

func NewAIRepository(exec core.DBExecutor) ai.Repository {
	return &aiRepository{exec: exec}
}

// context

func (repo *aiRepository) Job(ctx context.Context, tenantID, jobID string) (ai.JobInfo, error) {
	var j ai.JobInfo
	err := repo.exec.GetContext(ctx, &j, `
		SELECT j.id, j.code, j.title, j.job_type, j.segment, j.complexity_level, j.status, j.priority,
			j.briefing_text, j.tags, j.media_type,
			to_char(j.expected_delivery_date, 'YYYY-MM-DD') AS expected_delivery_date,
			to_char(j.actual_delivery_date, 'YYYY-MM-DD') AS actual_delivery_date,
			j.closed_value, j.production_cost, j.margin_percentage, j.drive_folder_url, c.name AS client_name
		FROM jobs j
		LEFT JOIN clients c ON c.id = j.client_id AND c.tenant_id = j.tenant_id
		WHERE j.tenant_id = $1 AND j.id = $2 AND j.deleted_at IS NULL`,
		tenantID, jobID)
	return j, trapNoRows(err, ai.ErrJobNotFound, "selecting ai job")
}

func (repo *aiRepository) Team(ctx context.Context, tenantID, jobID string) ([]ai.TeamMember, error) {
	team := make([]ai.TeamMember, 0)
	err := repo.exec.SelectContext(ctx, &team, `
		SELECT p.full_name AS person_name, t.role, t.fee AS rate, t.hiring_status
		FROM job_team t JOIN people p ON p.id = t.person_id AND p.tenant_id = t.tenant_id
		WHERE t.tenant_id = $1 AND t.job_id = $2 AND t.deleted_at IS NULL
		ORDER BY t.created_at`,
		tenantID, jobID)
	return team, errors.Wrap(err, "selecting ai team")
}

func (repo *aiRepository) Deliverables(ctx context.Context, tenantID, jobID string) ([]ai.DeliverableInfo, error) {
	items := make([]ai.DeliverableInfo, 0)
	err := repo.exec.SelectContext(ctx, &items, `
		SELECT description, status, format FROM job_deliverables
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL
		ORDER BY display_order`,
		tenantID, jobID)
	return items, errors.Wrap(err, "selecting ai deliverables")
}

func (repo *aiRepository) ShootingDates(ctx context.Context, tenantID, jobID string) ([]ai.ShootingInfo, error) {
	dates := make([]ai.ShootingInfo, 0)
	err := repo.exec.SelectContext(ctx, &dates, `
		SELECT to_char(shooting_date, 'YYYY-MM-DD') AS shooting_date, location FROM job_shooting_dates
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL
		ORDER BY shooting_date`,
		tenantID, jobID)
	return dates, errors.Wrap(err, "selecting ai shooting dates")
}

func (repo *aiRepository) RecentHistory(ctx context.Context, tenantID, jobID string, limit int) ([]ai.HistoryInfo, error) {
	history := make([]ai.HistoryInfo, 0)
	err := repo.exec.SelectContext(ctx, &history, `
		SELECT event_type, description, created_at FROM job_history
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY created_at DESC LIMIT $3`,
		tenantID, jobID, limit)
	return history, errors.Wrap(err, "selecting ai history")
}

func (repo *aiRepository) FinishedJobs(ctx context.Context, tenantID, excludeJobID string, limit int) ([]ai.SimilarJob, error) {
	jobs := make([]ai.SimilarJob, 0)
	err := repo.exec.SelectContext(ctx, &jobs, `
		SELECT j.id, j.title, j.code, j.job_type, j.segment, j.complexity_level, j.closed_value,
			j.production_cost, j.margin_percentage, j.created_at,
			(SELECT count(*) FROM job_deliverables d WHERE d.job_id = j.id AND d.tenant_id = j.tenant_id AND d.deleted_at IS NULL) AS deliverables_count,
			(SELECT count(*) FROM job_team t WHERE t.job_id = j.id AND t.tenant_id = j.tenant_id AND t.deleted_at IS NULL) AS team_size
		FROM jobs j
		WHERE j.tenant_id = $1 AND j.id <> $2 AND j.deleted_at IS NULL
			AND j.status = ANY($3) AND j.closed_value IS NOT NULL
		ORDER BY j.created_at DESC
		LIMIT $4`,
		tenantID, excludeJobID, pq.Array([]string{core.JobStatusEntregue, core.JobStatusFinalizado}), limit)
	return jobs, errors.Wrap(err, "selecting finished jobs")
}

func (repo *aiRepository) TenantMetrics(ctx context.Context, tenantID string) (ai.TenantMetrics, error) {
	var m ai.TenantMetrics
	err := repo.exec.GetContext(ctx, &m, `
		SELECT
			count(*) AS total_jobs,
			count(*) FILTER (WHERE status <> ALL($2)) AS active_jobs,
			avg(margin_percentage) FILTER (WHERE margin_percentage IS NOT NULL) AS avg_margin,
			sum(closed_value) AS total_revenue,
			(SELECT count(*) FROM people WHERE tenant_id = $1 AND is_active AND deleted_at IS NULL) AS team_size
		FROM jobs WHERE tenant_id = $1 AND deleted_at IS NULL`,
		tenantID, pq.Array(core.ClosedJobStatuses))
	if err != nil {
		return ai.TenantMetrics{}, errors.Wrap(err, "selecting tenant metrics")
	}

	m.TopProjectTypes = make([]ai.TypeCount, 0)
	err = repo.exec.SelectContext(ctx, &m.TopProjectTypes, `
		SELECT job_type AS type, count(*) AS count FROM jobs
		WHERE tenant_id = $1 AND deleted_at IS NULL
		GROUP BY job_type ORDER BY count DESC LIMIT 5`,
		tenantID)
	if err != nil {
		return ai.TenantMetrics{}, errors.Wrap(err, "selecting top project types")
	}

	m.TopClients = make([]ai.ClientCount, 0)
	err = repo.exec.SelectContext(ctx, &m.TopClients, `
		SELECT c.name, count(j.id) AS jobs_count FROM clients c
		JOIN jobs j ON j.client_id = c.id AND j.tenant_id = c.tenant_id AND j.deleted_at IS NULL
		WHERE c.tenant_id = $1 AND c.deleted_at IS NULL
		GROUP BY c.id, c.name ORDER BY jobs_count DESC LIMIT 5`,
		tenantID)
	return m, errors.Wrap(err, "selecting top clients")
}

func (repo *aiRepository) TenantName(ctx context.Context, tenantID string) (string, error) {
	var name string
	err := repo.exec.GetContext(ctx, &name, `SELECT name FROM tenants WHERE id = $1`, tenantID)
	return name, trapNoRows(err, core.NotFound("Tenant nao encontrado"), "selecting tenant name")
}

func (repo *aiRepository) RolePeople(ctx context.Context, tenantID, role string) ([]ai.RolePerson, error) {
	people := make([]ai.RolePerson, 0)
	err := repo.exec.SelectContext(ctx, &people, `
		SELECT p.id, p.full_name, p.default_role, p.default_rate, p.is_internal FROM people p
		WHERE p.tenant_id = $1 AND p.is_active AND p.deleted_at IS NULL
			AND (p.default_role = $2 OR EXISTS (
				SELECT 1 FROM job_team t WHERE t.person_id = p.id AND t.tenant_id = p.tenant_id AND t.role = $2 AND t.deleted_at IS NULL
			))
		ORDER BY p.full_name`,
		tenantID, role)
	return people, errors.Wrap(err, "selecting role people")
}

func (repo *aiRepository) TeamEntries(ctx context.Context, tenantID string, personIDs []string) ([]ai.TeamEntry, error) {
	entries := make([]ai.TeamEntry, 0)
	err := repo.exec.SelectContext(ctx, &entries, `
		SELECT t.person_id, t.job_id, j.job_type, j.health_score, t.created_at
		FROM job_team t JOIN jobs j ON j.id = t.job_id AND j.tenant_id = t.tenant_id AND j.deleted_at IS NULL
		WHERE t.tenant_id = $1 AND t.person_id = ANY($2) AND t.deleted_at IS NULL
		ORDER BY t.created_at DESC`,
		tenantID, pq.Array(personIDs))
	return entries, errors.Wrap(err, "selecting team entries")
}

func (repo *aiRepository) Overlaps(ctx context.Context, tenantID string, personIDs []string, start, end string) ([]ai.Overlap, error) {
	overlaps := make([]ai.Overlap, 0)
	err := repo.exec.SelectContext(ctx, &overlaps, `
		SELECT al.people_id, j.code AS job_code, j.title AS job_title,
			to_char(al.allocation_start, 'YYYY-MM-DD') AS allocation_start,
			to_char(al.allocation_end, 'YYYY-MM-DD') AS allocation_end
		FROM allocations al JOIN jobs j ON j.id = al.job_id AND j.tenant_id = al.tenant_id AND j.deleted_at IS NULL
		WHERE al.tenant_id = $1 AND al.people_id = ANY($2) AND al.deleted_at IS NULL
			AND al.allocation_start <= $4 AND al.allocation_end >= $3
			AND j.status <> ALL($5)
		ORDER BY al.allocation_start`,
		tenantID, pq.Array(personIDs), start, end, pq.Array(core.InactiveJobStatuses))
	return overlaps, errors.Wrap(err, "selecting allocation overlaps")
}

// usage

func (repo *aiRepository) CountUserRequestsSince(ctx context.Context, tenantID, userID string, since time.Time) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n,
		`SELECT count(*) FROM ai_usage_logs WHERE tenant_id = $1 AND user_id = $2 AND created_at >= $3`,
		tenantID, userID, since)
	return n, errors.Wrap(err, "counting user ai requests")
}

func (repo *aiRepository) CountTenantRequestsSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n,
		`SELECT count(*) FROM ai_usage_logs WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since)
	return n, errors.Wrap(err, "counting tenant ai requests")
}

func (repo *aiRepository) SumTenantTokensSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, `
		SELECT COALESCE(sum(input_tokens + output_tokens), 0) FROM ai_usage_logs
		WHERE tenant_id = $1 AND created_at >= $2`,
		tenantID, since)
	return n, errors.Wrap(err, "summing tenant ai tokens")
}

func (repo *aiRepository) InsertUsage(ctx context.Context, ul ai.UsageLog) error {
	metadata := ul.Metadata
	if metadata == nil {
		metadata = core.JSONMap{}
	}
	_, err := repo.exec.ExecContext(ctx, `
		INSERT INTO ai_usage_logs (id, tenant_id, user_id, feature, model_used, input_tokens, output_tokens,
			estimated_cost_usd, duration_ms, status, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())`,
		uuid.NewString(), ul.TenantID, ul.UserID, ul.Feature, ul.Model, ul.InputTokens, ul.OutputTokens,
		ul.EstimatedCostUSD, ul.DurationMs, ul.Status, ul.ErrorMessage, metadata)
	return mapWriteErr(err, "inserting ai usage")
}

func (repo *aiRepository) ListUsage(ctx context.Context, tenantID, feature, jobID string, limit int) ([]ai.UsageEntry, error) {
	entries := make([]ai.UsageEntry, 0)
	err := repo.exec.SelectContext(ctx, &entries, `
		SELECT id, user_id, model_used, input_tokens, output_tokens, duration_ms, status, metadata, created_at
		FROM ai_usage_logs
		WHERE tenant_id = $1 AND feature = $2 AND metadata->>'job_id' = $3
		ORDER BY created_at DESC LIMIT $4`,
		tenantID, feature, jobID, limit)
	return entries, errors.Wrap(err, "selecting ai usage")
}

// estimates

func (repo *aiRepository) FindEstimate(ctx context.Context, tenantID, hash string, since time.Time) (ai.Estimate, error) {
	var e ai.Estimate
	err := repo.exec.GetContext(ctx, &e, `
		SELECT `+estimateSelect+` FROM ai_budget_estimates
		WHERE tenant_id = $1 AND input_hash = $2 AND created_at > $3
		ORDER BY created_at DESC LIMIT 1`,
		tenantID, hash, since)
	return e, trapNoRows(err, errEstimateNotFound, "selecting cached estimate")
}

func (repo *aiRepository) CreateEstimate(ctx context.Context, e ai.Estimate) (ai.Estimate, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OverrideContext == nil {
		e.OverrideContext = core.JSONMap{}
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("ai_budget_estimates", estimateCols), e); err != nil {
		return ai.Estimate{}, mapWriteErr(err, "inserting estimate")
	}
	return e, nil
}

func (repo *aiRepository) ListEstimates(ctx context.Context, tenantID, jobID string, limit int) ([]ai.Estimate, error) {
	estimates := make([]ai.Estimate, 0)
	err := repo.exec.SelectContext(ctx, &estimates, `
		SELECT `+estimateSelect+` FROM ai_budget_estimates
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY created_at DESC LIMIT $3`,
		tenantID, jobID, limit)
	return estimates, errors.Wrap(err, "selecting estimates")
}

// conversations

func (repo *aiRepository) ListConversations(ctx context.Context, tenantID, userID string, limit int) ([]ai.Conversation, error) {
	convs := make([]ai.Conversation, 0)
	err := repo.exec.SelectContext(ctx, &convs, `
		SELECT `+conversationSelect+` FROM ai_conversations
		WHERE tenant_id = $1 AND user_id = $2 AND deleted_at IS NULL
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $3`,
		tenantID, userID, limit)
	return convs, errors.Wrap(err, "selecting conversations")
}

func (repo *aiRepository) GetConversation(ctx context.Context, tenantID, userID, id string) (ai.Conversation, error) {
	var c ai.Conversation
	err := repo.exec.GetContext(ctx, &c, `
		SELECT `+conversationSelect+` FROM ai_conversations
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3 AND deleted_at IS NULL`,
		tenantID, userID, id)
	return c, trapNoRows(err, ai.ErrConversationNotFound, "selecting conversation")
}

func (repo *aiRepository) CreateConversation(ctx context.Context, c ai.Conversation) (ai.Conversation, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("ai_conversations", conversationCols), c); err != nil {
		return ai.Conversation{}, mapWriteErr(err, "inserting conversation")
	}
	return c, nil
}

func (repo *aiRepository) RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]ai.ConversationMessage, error) {
	msgs := make([]ai.ConversationMessage, 0)
	err := repo.exec.SelectContext(ctx, &msgs, `
		SELECT * FROM (
			SELECT `+conversationMessageSelect+` FROM ai_conversation_messages
			WHERE tenant_id = $1 AND conversation_id = $2
			ORDER BY created_at DESC LIMIT $3
		) recent
		ORDER BY created_at`,
		tenantID, conversationID, limit)
	return msgs, errors.Wrap(err, "selecting recent conversation messages")
}

func (repo *aiRepository) ListMessages(ctx context.Context, tenantID, conversationID string) ([]ai.ConversationMessage, error) {
	msgs := make([]ai.ConversationMessage, 0)
	err := repo.exec.SelectContext(ctx, &msgs, `
		SELECT `+conversationMessageSelect+` FROM ai_conversation_messages
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY created_at`,
		tenantID, conversationID)
	return msgs, errors.Wrap(err, "selecting conversation messages")
}

func (repo *aiRepository) InsertMessage(ctx context.Context, m ai.ConversationMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if len(m.Sources) == 0 {
		m.Sources = []byte("[]")
	}
	_, err := repo.exec.NamedExecContext(ctx, insertSQL("ai_conversation_messages", conversationMessageCols), m)
	return mapWriteErr(err, "inserting conversation message")
}

func (repo *aiRepository) RecordExchange(ctx context.Context, tenantID, conversationID, model string, inputTokens, outputTokens int, at time.Time) error {
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE ai_conversations
		SET message_count = message_count + 2, total_input_tokens = total_input_tokens + $1,
			total_output_tokens = total_output_tokens + $2, model_used = $3, last_message_at = $4
		WHERE tenant_id = $5 AND id = $6`,
		inputTokens, outputTokens, model, at, tenantID, conversationID)
	return errors.Wrap(err, "recording conversation exchange")
}

func (repo *aiRepository) DeleteConversation(ctx context.Context, tenantID, userID, id string, at time.Time) (bool, error) {
	res, err := repo.exec.ExecContext(ctx, `
		UPDATE ai_conversations SET deleted_at = $1
		WHERE tenant_id = $2 AND user_id = $3 AND id = $4 AND deleted_at IS NULL`,
		at, tenantID, userID, id)
	if err != nil {
		return false, errors.Wrap(err, "soft deleting conversation")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
