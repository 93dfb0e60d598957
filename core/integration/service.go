package integration

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
	"github.com/ellahos/ellahos/core/tenant"
)

const (
	// MaxAttempts is the number of tries before an event is marked failed.
	MaxAttempts = 7

	DefaultBatchSize = 20
	MaxBatchSize     = 50
)

// BackoffDelays are the retry delays indexed by attempt; the last one repeats.
var BackoffDelays = []time.Duration{
	0, time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 4 * time.Hour,
}

var ErrJobNotFound = core.NotFound("Job nao encontrado")

type (
	Repository interface {
		// InsertEvent returns a CONFLICT AppError when the idempotency key is taken.
		InsertEvent(ctx context.Context, e Event) (Event, error)
		GetEventIDByKey(ctx context.Context, key string) (string, error)
		// LockEvents atomically moves due pending events to processing, increments their attempts
		// and returns them. Events locked for more than 5 minutes are eligible again.
		LockEvents(ctx context.Context, batchSize int) ([]Event, error)
		CompleteEvent(ctx context.Context, id string, result core.JSONMap) error
		FailEvent(ctx context.Context, id, msg string) error
		ScheduleRetry(ctx context.Context, id, msg string, next time.Time) error
		ListEvents(ctx context.Context, tenantID string, filter LogFilter, page core.PageParams) ([]Event, int, error)

		CreateWhatsAppMessage(ctx context.Context, m WhatsAppMessage) (WhatsAppMessage, error)
		ListWhatsAppMessages(ctx context.Context, tenantID, jobID string, page core.PageParams) ([]WhatsAppMessage, int, error)
		// UpdateWhatsAppStatus returns a NOT_FOUND AppError when no message matches.
		UpdateWhatsAppStatus(ctx context.Context, externalID, status string) (WhatsAppMessage, error)

		JobExists(ctx context.Context, tenantID, jobID string) (bool, error)
		ManagerEmails(ctx context.Context, tenantID string) ([]mail.Address, error)
	}

	// Settings exposes the tenant integration settings and decrypted secrets.
	Settings interface {
		GetIntegrations(ctx context.Context, tenantID string) (tenant.IntegrationSettings, error)
		Secret(ctx context.Context, tenantID, name string) (string, error)
	}

	// WhatsAppSender sends a text through the Evolution API.
	WhatsAppSender interface {
		SendText(ctx context.Context, instanceURL, instanceName, apiKey, phone, text string) (externalID *string, err error)
	}

	// WebhookPoster posts a JSON payload and returns the status code and the (truncated) response body.
	WebhookPoster interface {
		PostJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) (int, string, error)
	}

	Notifier interface {
		NotifyRoles(ctx context.Context, tenantID string, roles []string, nn notification.NewNotification) int
	}

	Service struct {
		repo     Repository
		settings Settings
		whatsapp WhatsAppSender
		webhooks WebhookPoster
		notifier Notifier
		mailSvc  core.EmailService
		logger   core.Logger
		jitter   func() float64 // [0, 1)
	}
)

func NewService(
	repo Repository, settings Settings, whatsapp WhatsAppSender, webhooks WebhookPoster, notifier Notifier,
	mailSvc core.EmailService, logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		settings: settings,
		whatsapp: whatsapp,
		webhooks: webhooks,
		notifier: notifier,
		mailSvc:  mailSvc,
		logger:   logger,
		jitter:   rand.Float64,
	}
}

// NextRetry returns when an event that failed `attempts` times should run again, with +/-20% jitter.
func NextRetry(attempts int, now time.Time, jitter float64) time.Time {
	idx := attempts
	if idx >= len(BackoffDelays) {
		idx = len(BackoffDelays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	secs := BackoffDelays[idx].Seconds() * (0.8 + jitter*0.4)
	return now.Add(time.Duration(math.Round(secs)) * time.Second)
}

// Enqueue adds an event to the queue. An event with an already used idempotency key is not
// enqueued twice: the id of the existing one is returned.
func (svc *Service) Enqueue(ctx context.Context, tenantID string, ne NewEvent) (string, error) {
	e := Event{
		TenantID:  tenantID,
		EventType: ne.EventType,
		Payload:   ne.Payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if e.Payload == nil {
		e.Payload = core.JSONMap{}
	}
	if ne.IdempotencyKey != "" {
		e.IdempotencyKey = &ne.IdempotencyKey
	}

	created, err := svc.repo.InsertEvent(ctx, e)
	if err == nil {
		svc.logger.Info(fmt.Sprintf("integration event %q enqueued with id %s", ne.EventType, created.ID))
		return created.ID, nil
	}
	if appErr, ok := core.AsAppError(err); ok && appErr.Code == core.CodeConflict && e.IdempotencyKey != nil {
		id, err := svc.repo.GetEventIDByKey(ctx, ne.IdempotencyKey)
		return id, errors.Wrap(err, "getting event by idempotency key")
	}
	return "", errors.Wrap(err, "enqueueing integration event")
}

// EnqueueWorkflow enqueues an n8n workflow trigger.
func (svc *Service) EnqueueWorkflow(ctx context.Context, tenantID, workflow string, payload core.JSONMap, key string) (string, error) {
	p := core.JSONMap{"workflow": workflow}
	for k, v := range payload {
		p[k] = v
	}
	return svc.Enqueue(ctx, tenantID, NewEvent{EventType: EventN8nWebhook, Payload: p, IdempotencyKey: key})
}

// EnqueueWhatsApp enqueues a templated WhatsApp message. `payload` carries phone, template and template data.
func (svc *Service) EnqueueWhatsApp(ctx context.Context, tenantID string, payload core.JSONMap, key string) (string, error) {
	return svc.Enqueue(ctx, tenantID, NewEvent{EventType: EventWhatsAppSend, Payload: payload, IdempotencyKey: key})
}

// ProcessBatch locks the next due events and runs them sequentially.
func (svc *Service) ProcessBatch(ctx context.Context, batchSize int) (BatchResult, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	events, err := svc.repo.LockEvents(ctx, batchSize)
	if err != nil {
		return BatchResult{}, errors.Wrap(err, "locking integration events")
	}

	res := BatchResult{Total: len(events)}
	for _, e := range events {
		result, err := svc.process(ctx, e)
		if err == nil {
			if err = svc.repo.CompleteEvent(ctx, e.ID, result); err != nil {
				svc.logger.Error("completing integration event", errors.Wrap(err, "completing integration event"), e.ID)
			}
			res.Processed++
			continue
		}

		res.Failed++
		msg := err.Error()
		svc.logger.Warn(fmt.Sprintf("integration event %s failed (attempt %d): %s", e.ID, e.Attempts, msg))
		if e.Attempts >= MaxAttempts {
			if err = svc.repo.FailEvent(ctx, e.ID, msg); err != nil {
				svc.logger.Error("failing integration event", errors.Wrap(err, "failing integration event"), e.ID)
			}
			svc.alertFailure(ctx, e, msg)
			continue
		}
		next := NextRetry(e.Attempts, time.Now().UTC(), svc.jitter())
		if err = svc.repo.ScheduleRetry(ctx, e.ID, msg, next); err != nil {
			svc.logger.Error("scheduling integration retry", errors.Wrap(err, "scheduling integration retry"), e.ID)
		}
	}
	return res, nil
}

func (svc *Service) process(ctx context.Context, e Event) (core.JSONMap, error) {
	switch e.EventType {
	case EventWhatsAppSend:
		return svc.processWhatsApp(ctx, e)
	case EventN8nWebhook:
		return svc.processN8n(ctx, e)
	default:
		return core.JSONMap{"skipped": true, "reason": "Tipo desconhecido: " + e.EventType}, nil
	}
}

func (svc *Service) processWhatsApp(ctx context.Context, e Event) (core.JSONMap, error) {
	conf, err := svc.settings.GetIntegrations(ctx, e.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "reading tenant settings")
	}
	wa := conf.WhatsApp
	if !wa.Enabled {
		return core.JSONMap{"skipped": true, "reason": "WhatsApp desabilitado"}, nil
	}
	if core.StrVal(wa.InstanceURL) == "" || core.StrVal(wa.InstanceName) == "" {
		return nil, errors.New("WhatsApp: instance_url ou instance_name nao configurados")
	}
	apiKey, err := svc.settings.Secret(ctx, e.TenantID, tenant.SecretWhatsAppAPIKey)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, errors.New("WhatsApp: API key nao encontrada")
	}

	phone := payloadString(e.Payload, "phone")
	template := payloadString(e.Payload, "template")
	if phone == "" {
		return nil, errors.New(`WhatsApp: campo "phone" ausente no payload`)
	}
	if template == "" {
		return nil, errors.New(`WhatsApp: campo "template" ausente no payload`)
	}

	msg := WhatsAppMessage{
		TenantID:      e.TenantID,
		JobID:         optString(payloadString(e.Payload, "job_id")),
		Phone:         phone,
		RecipientName: optString(payloadString(e.Payload, "recipient_name")),
		Message:       BuildMessage(template, e.Payload),
	}
	res, sendErr := svc.send(ctx, wa, apiKey, msg, template)
	if sendErr != nil {
		return nil, sendErr
	}
	return core.JSONMap{
		"phone":               res.Phone,
		"template":            res.Template,
		"external_message_id": res.ExternalMessageID,
		"status":              res.Status,
	}, nil
}

// send delivers `msg` and records it whatever the outcome. The returned error is the send error.
func (svc *Service) send(ctx context.Context, wa tenant.WhatsAppSettings, apiKey string, msg WhatsAppMessage, template string) (SendResult, error) {
	extID, sendErr := svc.whatsapp.SendText(ctx, *wa.InstanceURL, *wa.InstanceName, apiKey, msg.Phone, msg.Message)

	msg.Provider = core.StrVal(wa.Provider)
	if msg.Provider == "" {
		msg.Provider = "evolution"
	}
	msg.CreatedAt = time.Now().UTC()
	msg.Status = MessageSent
	if sendErr != nil {
		msg.Status = MessageFailed
	} else {
		msg.ExternalMessageID = extID
		msg.SentAt = &msg.CreatedAt
	}
	if _, err := svc.repo.CreateWhatsAppMessage(ctx, msg); err != nil {
		svc.logger.Error("recording whatsapp message", errors.Wrap(err, "recording whatsapp message"), msg.TenantID)
	}

	return SendResult{
		Phone:             msg.Phone,
		Template:          template,
		ExternalMessageID: msg.ExternalMessageID,
		Status:            msg.Status,
	}, sendErr
}

func (svc *Service) processN8n(ctx context.Context, e Event) (core.JSONMap, error) {
	workflow := payloadString(e.Payload, "workflow")
	if workflow == "" {
		return nil, errors.New(`n8n_webhook: campo "workflow" ausente no payload`)
	}
	conf, err := svc.settings.GetIntegrations(ctx, e.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "reading tenant settings")
	}
	if !conf.N8n.Enabled {
		return core.JSONMap{"skipped": true, "reason": "n8n desabilitado"}, nil
	}

	key := WebhookKey(workflow)
	url := conf.N8n.Webhooks.ByKey(key)
	if url == "" {
		return nil, errors.Errorf("Webhook URL nao configurada para workflow: %s (chave: %s)", workflow, key)
	}

	headers := map[string]string{}
	secret, err := svc.settings.Secret(ctx, e.TenantID, tenant.SecretN8nWebhookToken)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		headers["X-Webhook-Secret"] = secret
	}

	body := core.JSONMap{}
	for k, v := range e.Payload {
		body[k] = v
	}
	body["tenant_id"] = e.TenantID
	body["event_id"] = e.ID
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	status, respBody, err := svc.webhooks.PostJSON(ctx, url, headers, body)
	if err != nil {
		return nil, errors.Wrapf(err, "n8n webhook %s", key)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, errors.Errorf("n8n webhook %s retornou HTTP %d: %s", key, status, core.Truncate(respBody, 300))
	}
	return core.JSONMap{"webhook_key": key, "http_status": status}, nil
}

// alertFailure tells the tenant managers that an event failed permanently.
func (svc *Service) alertFailure(ctx context.Context, e Event, errMsg string) {
	jobID := payloadString(e.Payload, "job_id")
	actionURL := "/settings/integrations"
	if jobID != "" {
		actionURL = "/jobs/" + jobID
	}
	svc.notifier.NotifyRoles(ctx, e.TenantID, core.ManagerRoles, notification.NewNotification{
		Type:      notification.TypeIntegrationFailed,
		Priority:  notification.PriorityUrgent,
		Title:     "Falha de integracao: " + e.EventType,
		Body:      core.Truncate(errMsg, 300),
		Metadata:  core.JSONMap{"event_id": e.ID, "event_type": e.EventType},
		ActionURL: &actionURL,
		JobID:     optString(jobID),
	})

	to, err := svc.repo.ManagerEmails(ctx, e.TenantID)
	if err != nil {
		svc.logger.Error("loading manager emails", errors.Wrap(err, "loading manager emails"), e.TenantID)
		return
	}
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      "Falha de integracao: " + e.EventType,
		TemplateName: "integration_failed",
		TemplateData: map[string]interface{}{
			"EventType": e.EventType,
			"EventID":   e.ID,
			"Attempts":  e.Attempts,
			"Error":     errMsg,
		},
	})
}

func (svc *Service) ListLogs(ctx context.Context, tenantID string, filter LogFilter, page core.PageParams) ([]Event, int, error) {
	return svc.repo.ListEvents(ctx, tenantID, filter, page)
}

// SendManual sends a WhatsApp message right away. Only managers may send manually.
func (svc *Service) SendManual(ctx context.Context, actor core.Actor, data SendManual) (SendResult, error) {
	if !actor.HasAnyRole(core.ManagerRoles...) {
		return SendResult{}, core.Forbidden("Apenas admin/ceo podem enviar mensagens manuais")
	}

	conf, err := svc.settings.GetIntegrations(ctx, actor.TenantID)
	if err != nil {
		return SendResult{}, err
	}
	wa := conf.WhatsApp
	if !wa.Enabled {
		return SendResult{}, core.BusinessRule("WhatsApp nao esta habilitado para este tenant")
	}
	if core.StrVal(wa.InstanceURL) == "" || core.StrVal(wa.InstanceName) == "" {
		return SendResult{}, core.BusinessRule("WhatsApp: instance_url ou instance_name nao configurados")
	}
	apiKey, err := svc.settings.Secret(ctx, actor.TenantID, tenant.SecretWhatsAppAPIKey)
	if err != nil {
		return SendResult{}, err
	}
	if apiKey == "" {
		return SendResult{}, core.BusinessRule("API key do WhatsApp nao encontrada")
	}

	msg := WhatsAppMessage{
		TenantID:      actor.TenantID,
		JobID:         data.JobID,
		Phone:         data.Phone,
		RecipientName: data.RecipientName,
		Message:       BuildMessage(data.Template, data.Data),
	}
	res, sendErr := svc.send(ctx, wa, apiKey, msg, data.Template)
	if sendErr != nil {
		return SendResult{}, core.NewAppError(core.CodeInternal, "Falha ao enviar: "+sendErr.Error(), http.StatusInternalServerError)
	}
	return res, nil
}

func (svc *Service) ListMessages(ctx context.Context, tenantID, jobID string, page core.PageParams) ([]WhatsAppMessage, int, error) {
	ok, err := svc.repo.JobExists(ctx, tenantID, jobID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "checking job")
	}
	if !ok {
		return nil, 0, ErrJobNotFound
	}
	return svc.repo.ListWhatsAppMessages(ctx, tenantID, jobID, page)
}

// UpdateMessageStatus applies a delivery-status callback. Unknown messages are not an error.
func (svc *Service) UpdateMessageStatus(ctx context.Context, su StatusUpdate) (StatusUpdateResult, error) {
	if err := su.Validate(); err != nil {
		return StatusUpdateResult{}, err
	}
	msg, err := svc.repo.UpdateWhatsAppStatus(ctx, su.ExternalMessageID, su.Status)
	if err != nil {
		if core.IsNotFound(err) {
			svc.logger.Warn("whatsapp message not found: external_message_id=" + su.ExternalMessageID)
			return StatusUpdateResult{Matched: false}, nil
		}
		return StatusUpdateResult{}, errors.Wrap(err, "updating whatsapp message status")
	}
	return StatusUpdateResult{Matched: true, ID: msg.ID, Status: su.Status}, nil
}

func payloadString(p core.JSONMap, key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
