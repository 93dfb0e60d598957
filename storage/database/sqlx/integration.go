package sqlxrepos

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
)

// staleLock is how long a processing event stays locked before another processor may retry it.
const staleLock = 5 * time.Minute

var (
	eventCols = []string{
		"id", "tenant_id", "event_type", "payload", "status", "attempts", "locked_at", "next_retry_at",
		"processed_at", "error_message", "result", "idempotency_key", "created_at",
	}
	eventSelect = selectList("", eventCols, nil, nil)

	whatsappCols = []string{
		"id", "tenant_id", "job_id", "phone", "recipient_name", "message", "status", "provider",
		"external_message_id", "sent_at", "created_at",
	}
	whatsappSelect = selectList("", whatsappCols, nil, nil)
)

type integrationRepository struct {
	exec core.DBExecutor
}

var _ integration.Repository = (*integrationRepository)(nil) // interface compliance check

func NewIntegrationRepository(exec core.DBExecutor) integration.Repository {
	return &integrationRepository{exec: exec}
}

func (repo *integrationRepository) InsertEvent(ctx context.Context, e integration.Event) (integration.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Payload == nil {
		e.Payload = core.JSONMap{}
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("integration_events", eventCols), e); err != nil {
		return integration.Event{}, mapWriteErr(err, "inserting integration event")
	}
	return e, nil
}

func (repo *integrationRepository) GetEventIDByKey(ctx context.Context, key string) (string, error) {
	var id string
	err := repo.exec.GetContext(ctx, &id, `SELECT id FROM integration_events WHERE idempotency_key = $1`, key)
	return id, trapNoRows(err, core.NotFound("Evento nao encontrado"), "selecting event by idempotency key")
}

func (repo *integrationRepository) LockEvents(ctx context.Context, batchSize int) ([]integration.Event, error) {
	events := make([]integration.Event, 0, batchSize)
	err := repo.exec.SelectContext(ctx, &events, `
		UPDATE integration_events SET status = $1, locked_at = now(), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM integration_events
			WHERE (status = $2 AND (next_retry_at IS NULL OR next_retry_at <= now()))
				OR (status = $1 AND locked_at < now() - $3 * interval '1 second')
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventSelect,
		integration.StatusProcessing, integration.StatusPending, staleLock.Seconds(), batchSize)
	return events, errors.Wrap(err, "locking integration events")
}

func (repo *integrationRepository) CompleteEvent(ctx context.Context, id string, result core.JSONMap) error {
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE integration_events
		SET status = $1, result = $2, processed_at = now(), locked_at = NULL, error_message = NULL
		WHERE id = $3`,
		integration.StatusCompleted, result, id)
	return errors.Wrap(err, "completing integration event")
}

func (repo *integrationRepository) FailEvent(ctx context.Context, id, msg string) error {
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE integration_events
		SET status = $1, error_message = $2, processed_at = now(), locked_at = NULL
		WHERE id = $3`,
		integration.StatusFailed, msg, id)
	return errors.Wrap(err, "failing integration event")
}

func (repo *integrationRepository) ScheduleRetry(ctx context.Context, id, msg string, next time.Time) error {
	_, err := repo.exec.ExecContext(ctx, `
		UPDATE integration_events
		SET status = $1, error_message = $2, next_retry_at = $3, locked_at = NULL
		WHERE id = $4`,
		integration.StatusPending, msg, next, id)
	return errors.Wrap(err, "scheduling integration event retry")
}

func (repo *integrationRepository) ListEvents(ctx context.Context, tenantID string, f integration.LogFilter, p core.PageParams) ([]integration.Event, int, error) {
	w := newWhere("tenant_id = ?", tenantID).
		andIf(f.EventType != "", "event_type = ?", f.EventType).
		andIf(f.Status != "", "status = ?", f.Status)
	p.SortBy, p.SortOrder = "created_at", "desc"

	events := make([]integration.Event, 0)
	total, err := page(ctx, repo.exec, &events, eventSelect, "integration_events", w, p, "")
	return events, total, errors.Wrap(err, "selecting integration events")
}

func (repo *integrationRepository) CreateWhatsAppMessage(ctx context.Context, m integration.WhatsAppMessage) (integration.WhatsAppMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("whatsapp_messages", whatsappCols), m); err != nil {
		return integration.WhatsAppMessage{}, mapWriteErr(err, "inserting whatsapp message")
	}
	return m, nil
}

func (repo *integrationRepository) ListWhatsAppMessages(ctx context.Context, tenantID, jobID string, p core.PageParams) ([]integration.WhatsAppMessage, int, error) {
	w := newWhere("tenant_id = ?", tenantID).andIf(jobID != "", "job_id = ?", jobID)
	p.SortBy, p.SortOrder = "created_at", "desc"

	msgs := make([]integration.WhatsAppMessage, 0)
	total, err := page(ctx, repo.exec, &msgs, whatsappSelect, "whatsapp_messages", w, p, "")
	return msgs, total, errors.Wrap(err, "selecting whatsapp messages")
}

func (repo *integrationRepository) UpdateWhatsAppStatus(ctx context.Context, externalID, status string) (integration.WhatsAppMessage, error) {
	var m integration.WhatsAppMessage
	err := repo.exec.GetContext(ctx, &m, `
		UPDATE whatsapp_messages SET status = $1
		WHERE external_message_id = $2
		RETURNING `+whatsappSelect,
		status, externalID)
	return m, trapNoRows(err, core.NotFound("Mensagem nao encontrada"), "updating whatsapp message status")
}

func (repo *integrationRepository) JobExists(ctx context.Context, tenantID, jobID string) (bool, error) {
	return exists(ctx, repo.exec, "jobs", tenantID, jobID)
}

func (repo *integrationRepository) ManagerEmails(ctx context.Context, tenantID string) ([]mail.Address, error) {
	var rows []struct {
		Name  string `db:"full_name"`
		Email string `db:"email"`
	}
	err := repo.exec.SelectContext(ctx, &rows, `
		SELECT full_name, email FROM profiles
		WHERE tenant_id = $1 AND role = ANY($2) AND is_active AND deleted_at IS NULL
		ORDER BY full_name`,
		tenantID, pq.Array(core.ManagerRoles))
	if err != nil {
		return nil, errors.Wrap(err, "selecting manager emails")
	}
	to := make([]mail.Address, len(rows))
	for i, r := range rows {
		to[i] = mail.Address{Name: r.Name, Address: r.Email}
	}
	return to, nil
}
