package approval

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

// MaxResponsesPerHour caps the log entries a request may receive per hour through its public link.
const MaxResponsesPerHour = 5

var (
	ErrNotFound     = core.NotFound("Solicitacao de aprovacao nao encontrada")
	ErrJobNotFound  = core.NotFound("Job nao encontrado")
	ErrInvalidToken = core.NotFound("Token invalido")
	ErrOrigin       = core.Forbidden("Origem nao autorizada")
)

type (
	Repository interface {
		// ListByJob orders by created_at DESC.
		ListByJob(ctx context.Context, tenantID, jobID string) ([]Request, error)
		// ListPending returns the pending requests expiring after `now`, soonest first.
		ListPending(ctx context.Context, tenantID string, now time.Time) ([]Request, error)
		GetRequest(ctx context.Context, tenantID, id string) (Request, error)
		// GetByToken looks a request up across tenants.
		GetByToken(ctx context.Context, token string) (Request, error)
		CreateRequest(ctx context.Context, r Request) (Request, error)
		UpdateRequest(ctx context.Context, r Request) (Request, error)

		InsertLog(ctx context.Context, l Log) error
		// ListLogs orders by created_at ASC and joins the actor name.
		ListLogs(ctx context.Context, tenantID, requestID string) ([]Log, error)
		CountLogsSince(ctx context.Context, requestID string, since time.Time) (int, error)

		GetJob(ctx context.Context, tenantID, jobID string) (JobRef, error)
		// PersonProfileID returns the profile linked to a person, if any.
		PersonProfileID(ctx context.Context, tenantID, peopleID string) (*string, error)
	}

	Notifier interface {
		NotifyUser(ctx context.Context, tenantID, userID string, nn notification.NewNotification)
	}

	Enqueuer interface {
		EnqueueWhatsApp(ctx context.Context, tenantID string, payload core.JSONMap, key string) (string, error)
	}

	Service struct {
		repo     Repository
		notifier Notifier
		events   Enqueuer
		mailSvc  core.EmailService
		siteURL  string
		logger   core.Logger
	}
)

func NewService(repo Repository, notifier Notifier, events Enqueuer, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		events:   events,
		mailSvc:  mailSvc,
		siteURL:  conf.SiteURL,
		logger:   logger,
	}
}

func (svc *Service) ListByJob(ctx context.Context, tenantID, jobID string) ([]Request, error) {
	if jobID == "" {
		return nil, core.NewFieldError("job_id", "job_id e obrigatorio")
	}
	reqs, err := svc.repo.ListByJob(ctx, tenantID, jobID)
	return reqs, errors.Wrap(err, "listing approvals")
}

func (svc *Service) ListPending(ctx context.Context, tenantID string) ([]Request, error) {
	reqs, err := svc.repo.ListPending(ctx, tenantID, core.NowFunc().UTC())
	return reqs, errors.Wrap(err, "listing pending approvals")
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nr NewRequest) (Request, error) {
	job, err := svc.repo.GetJob(ctx, actor.TenantID, nr.JobID)
	if err != nil {
		return Request{}, err
	}

	now := core.NowFunc().UTC()
	r, err := svc.repo.CreateRequest(ctx, Request{
		TenantID:         actor.TenantID,
		JobID:            nr.JobID,
		ApprovalType:     nr.ApprovalType,
		Title:            nr.Title,
		Description:      core.NilIfBlank(nr.Description),
		FileURL:          core.NilIfBlank(nr.FileURL),
		ApproverType:     nr.ApproverType,
		ApproverEmail:    core.NilIfBlank(nr.ApproverEmail),
		ApproverPhone:    core.NilIfBlank(nr.ApproverPhone),
		ApproverPeopleID: core.NilIfBlank(nr.ApproverPeopleID),
		Token:            uuid.New().String(),
		Status:           StatusPending,
		ExpiresAt:        now.AddDate(0, 0, ExpiryDays[nr.ApprovalType]),
		CreatedBy:        actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return Request{}, errors.Wrap(err, "creating approval request")
	}
	r.Job = &job

	svc.log(ctx, Log{
		TenantID:          actor.TenantID,
		ApprovalRequestID: r.ID,
		Action:            ActionCreated,
		ActorType:         ActorUser,
		ActorID:           &actor.UserID,
		Metadata:          core.JSONMap{"approval_type": r.ApprovalType, "approver_type": r.ApproverType},
	})

	if r.ApproverType == ApproverInternal && r.ApproverPeopleID != nil {
		profileID, err := svc.repo.PersonProfileID(ctx, actor.TenantID, *r.ApproverPeopleID)
		if err != nil {
			svc.logger.Warn("loading approver profile", errors.Wrap(err, "loading approver profile"), actor)
		} else if profileID != nil {
			svc.notifier.NotifyUser(ctx, actor.TenantID, *profileID, notification.NewNotification{
				Type:      notification.TypeApprovalRequested,
				Priority:  notification.PriorityHigh,
				Title:     fmt.Sprintf("Nova aprovacao: %s", r.Title),
				Body:      fmt.Sprintf("Aprovacao de %s para o job %s - %s", r.ApprovalType, job.Code, job.Title),
				JobID:     &r.JobID,
				ActionURL: actionURL(r.JobID),
			})
		}
	}

	if r.ApproverType == ApproverExternal {
		if r.ApproverPhone != nil {
			svc.sendWhatsApp(ctx, actor, r, fmt.Sprintf("approval-created-%s", r.ID), ActorSystem)
		}
		if r.ApproverEmail != nil {
			svc.sendEmail(ctx, r)
		}
	}
	return r, nil
}

func (svc *Service) Logs(ctx context.Context, tenantID, id string) ([]Log, error) {
	if _, err := svc.repo.GetRequest(ctx, tenantID, id); err != nil {
		return nil, err
	}
	logs, err := svc.repo.ListLogs(ctx, tenantID, id)
	return logs, errors.Wrap(err, "listing approval logs")
}

// Resend enqueues the WhatsApp message of a pending external request again.
func (svc *Service) Resend(ctx context.Context, actor core.Actor, id string) (ResendResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return ResendResult{}, ErrNotFound
	}
	r, err := svc.repo.GetRequest(ctx, actor.TenantID, id)
	if err != nil {
		return ResendResult{}, err
	}
	switch {
	case r.Status != StatusPending:
		return ResendResult{}, core.BusinessRule("Somente aprovacoes pendentes podem ser reenviadas")
	case r.ApproverType != ApproverExternal:
		return ResendResult{}, core.BusinessRule("Reenvio somente disponivel para aprovadores externos")
	case r.ApproverPhone == nil:
		return ResendResult{}, core.BusinessRule("Aprovador nao possui telefone cadastrado")
	}

	key := fmt.Sprintf("approval-resend-%s-%d", r.ID, core.NowFunc().UnixNano()/int64(time.Millisecond))
	svc.sendWhatsApp(ctx, actor, r, key, ActorUser)
	return ResendResult{ID: r.ID, Resent: true}, nil
}

// ApproveInternal and RejectInternal let a user decide on a pending request.
func (svc *Service) ApproveInternal(ctx context.Context, actor core.Actor, id string, d Decision) (Request, error) {
	return svc.decide(ctx, actor, id, ActionApproved, d.Comment)
}

func (svc *Service) RejectInternal(ctx context.Context, actor core.Actor, id string, d Decision) (Request, error) {
	return svc.decide(ctx, actor, id, ActionRejected, d.Comment)
}

func (svc *Service) decide(ctx context.Context, actor core.Actor, id, action string, comment *string) (Request, error) {
	r, err := svc.repo.GetRequest(ctx, actor.TenantID, id)
	if err != nil {
		return Request{}, err
	}
	if r.Status != StatusPending {
		return Request{}, core.BusinessRule(fmt.Sprintf("Aprovacao ja foi %s", r.Status))
	}

	now := core.NowFunc().UTC()
	r.Status = action
	r.UpdatedAt = now
	if action == ActionApproved {
		r.ApprovedAt = &now
	} else {
		r.RejectionReason = comment
	}
	job := r.Job
	if r, err = svc.repo.UpdateRequest(ctx, r); err != nil {
		return Request{}, errors.Wrap(err, "updating approval request")
	}
	r.Job = job

	svc.log(ctx, Log{
		TenantID:          actor.TenantID,
		ApprovalRequestID: r.ID,
		Action:            action,
		ActorType:         ActorUser,
		ActorID:           &actor.UserID,
		Comment:           comment,
	})

	if r.CreatedBy != actor.UserID {
		nn := notification.NewNotification{
			Type:      notification.TypeApprovalResponded,
			Priority:  notification.PriorityNormal,
			Title:     fmt.Sprintf("Aprovacao aprovada: %s", r.Title),
			Body:      fmt.Sprintf("A aprovacao de %s para o job %s foi aprovada internamente", r.ApprovalType, r.jobCode()),
			JobID:     &r.JobID,
			ActionURL: actionURL(r.JobID),
		}
		if action == ActionRejected {
			nn.Priority = notification.PriorityHigh
			nn.Title = fmt.Sprintf("Aprovacao rejeitada: %s", r.Title)
			nn.Body = fmt.Sprintf("A aprovacao de %s para o job %s foi rejeitada. Motivo: %s",
				r.ApprovalType, r.jobCode(), core.StrVal(comment))
		}
		svc.notifier.NotifyUser(ctx, actor.TenantID, r.CreatedBy, nn)
	}
	return r, nil
}

// GetByToken returns the public view of a request.
func (svc *Service) GetByToken(ctx context.Context, token string) (PublicView, error) {
	r, err := svc.byToken(ctx, token)
	if err != nil {
		return PublicView{}, err
	}

	if r.Expired(core.NowFunc()) {
		return PublicView{
			ID:      r.ID,
			Status:  StatusExpired,
			Message: "Este link de aprovacao expirou. Entre em contato com a producao para solicitar um novo link.",
		}, nil
	}
	if r.Status != StatusPending {
		msg := "Esta aprovacao nao esta mais disponivel."
		switch r.Status {
		case StatusApproved:
			msg = "Esta aprovacao ja foi aprovada."
		case StatusRejected:
			msg = "Esta aprovacao ja foi rejeitada."
		}
		return PublicView{ID: r.ID, Status: r.Status, Message: msg}, nil
	}

	expiresAt := r.ExpiresAt
	return PublicView{
		ID:           r.ID,
		ApprovalType: r.ApprovalType,
		Title:        r.Title,
		Description:  r.Description,
		FileURL:      r.FileURL,
		Status:       r.Status,
		ExpiresAt:    &expiresAt,
		JobTitle:     r.jobTitle(),
	}, nil
}

// Respond records the answer of an external approver. Only requests coming from the site
// (or localhost) are accepted.
func (svc *Service) Respond(ctx context.Context, token, origin, clientIP string, resp Response) (RespondResult, error) {
	if _, err := uuid.Parse(token); err != nil {
		return RespondResult{}, ErrInvalidToken
	}
	if !svc.allowedOrigin(origin) {
		svc.logger.Warn(fmt.Sprintf("approval response from rejected origin %q", origin))
		return RespondResult{}, ErrOrigin
	}

	r, err := svc.byToken(ctx, token)
	if err != nil {
		return RespondResult{}, err
	}
	now := core.NowFunc().UTC()
	if r.Expired(now) {
		return RespondResult{}, core.BusinessRule("Este link de aprovacao expirou", http.StatusGone)
	}
	if r.Status != StatusPending {
		return RespondResult{}, core.BusinessRule(fmt.Sprintf("Esta aprovacao ja foi %s", r.Status), http.StatusConflict)
	}

	count, err := svc.repo.CountLogsSince(ctx, r.ID, now.Add(-time.Hour))
	if err != nil {
		return RespondResult{}, errors.Wrap(err, "counting approval logs")
	}
	if count >= MaxResponsesPerHour {
		svc.logger.Warn(fmt.Sprintf("approval %s rate limited after %d attempts", r.ID, count))
		return RespondResult{}, core.BusinessRule("Muitas tentativas. Tente novamente em 1 hora.", http.StatusTooManyRequests)
	}

	if err := resp.Validate(); err != nil {
		return RespondResult{}, err
	}
	if clientIP == "" {
		clientIP = "unknown"
	}

	r.Status = resp.Action
	r.ApprovedIP = &clientIP
	r.UpdatedAt = now
	if resp.Action == ActionApproved {
		r.ApprovedAt = &now
	} else {
		r.RejectionReason = resp.Comment
	}
	if _, err := svc.repo.UpdateRequest(ctx, r); err != nil {
		return RespondResult{}, errors.Wrap(err, "updating approval request")
	}

	svc.log(ctx, Log{
		TenantID:          r.TenantID,
		ApprovalRequestID: r.ID,
		Action:            resp.Action,
		ActorType:         ActorExternal,
		ActorIP:           &clientIP,
		Comment:           core.NilIfBlank(resp.Comment),
	})

	label, priority := "aprovada", notification.PriorityNormal
	if resp.Action == ActionRejected {
		label, priority = "rejeitada", notification.PriorityHigh
	}
	body := fmt.Sprintf("A aprovacao de %s para o job %s foi %s pelo cliente", r.ApprovalType, r.jobCode(), label)
	if c := core.StrVal(resp.Comment); c != "" {
		body += ". Motivo: " + c
	}
	svc.notifier.NotifyUser(ctx, r.TenantID, r.CreatedBy, notification.NewNotification{
		Type:      notification.TypeApprovalResponded,
		Priority:  priority,
		Title:     fmt.Sprintf("Aprovacao %s: %s", label, r.Title),
		Body:      body,
		JobID:     &r.JobID,
		ActionURL: actionURL(r.JobID),
	})

	msg := "Aprovacao registrada com sucesso!"
	if resp.Action == ActionRejected {
		msg = "Rejeicao registrada com sucesso."
	}
	return RespondResult{Status: resp.Action, Message: msg}, nil
}

func (svc *Service) byToken(ctx context.Context, token string) (Request, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Request{}, ErrInvalidToken
	}
	return svc.repo.GetByToken(ctx, token)
}

func (svc *Service) allowedOrigin(origin string) bool {
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	return svc.siteURL != "" && origin == svc.siteURL
}

// ApprovalURL is the public link of a request.
func (svc *Service) ApprovalURL(r Request) string {
	return fmt.Sprintf("%s/approve/%s", svc.siteURL, r.Token)
}

func (svc *Service) sendWhatsApp(ctx context.Context, actor core.Actor, r Request, key, actorType string) {
	recipient := core.StrVal(r.ApproverEmail)
	if recipient == "" {
		recipient = "Cliente"
	}
	_, err := svc.events.EnqueueWhatsApp(ctx, actor.TenantID, core.JSONMap{
		"phone":          *r.ApproverPhone,
		"recipient_name": recipient,
		"template":       "approval_request",
		"job_id":         r.JobID,
		"job_code":       r.jobCode(),
		"job_title":      r.jobTitle(),
		"approval_type":  r.ApprovalType,
		"approval_title": r.Title,
		"approval_url":   svc.ApprovalURL(r),
	}, key)
	if err != nil {
		svc.logger.Error("enqueueing approval whatsapp", errors.Wrap(err, "enqueueing approval whatsapp"), actor)
		return
	}

	l := Log{
		TenantID:          actor.TenantID,
		ApprovalRequestID: r.ID,
		Action:            ActionSent,
		ActorType:         actorType,
		Metadata:          core.JSONMap{"channel": "whatsapp", "phone": *r.ApproverPhone},
	}
	if actorType == ActorUser {
		l.Action = ActionResent
		l.ActorID = &actor.UserID
	}
	svc.log(ctx, l)
}

func (svc *Service) sendEmail(ctx context.Context, r Request) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: *r.ApproverEmail}},
		Subject:      fmt.Sprintf("Aprovacao solicitada: %s", r.Title),
		TemplateName: "approval_request",
		TemplateData: map[string]string{
			"RecipientName": *r.ApproverEmail,
			"ApprovalType":  r.ApprovalType,
			"JobCode":       r.jobCode(),
			"JobTitle":      r.jobTitle(),
			"Title":         r.Title,
			"ApprovalURL":   svc.ApprovalURL(r),
			"ExpiresAt":     r.ExpiresAt.Format("02/01/2006"),
		},
	}
	svc.mailSvc.SendMessages(msg)
	svc.log(ctx, Log{
		TenantID:          r.TenantID,
		ApprovalRequestID: r.ID,
		Action:            ActionSent,
		ActorType:         ActorSystem,
		Metadata:          core.JSONMap{"channel": "email", "email": *r.ApproverEmail},
	})
}

// log appends an audit entry; failures are logged only.
func (svc *Service) log(ctx context.Context, l Log) {
	l.CreatedAt = core.NowFunc().UTC()
	if err := svc.repo.InsertLog(ctx, l); err != nil {
		svc.logger.Error("inserting approval log", errors.Wrap(err, "inserting approval log"))
	}
}

func actionURL(jobID string) *string {
	u := fmt.Sprintf("/jobs/%s?tab=aprovacoes", jobID)
	return &u
}
