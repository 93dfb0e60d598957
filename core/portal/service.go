package portal

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

const (
	// MaxClientMessagesPerHour caps the messages a portal link can send.
	MaxClientMessagesPerHour = 20
	// TimelineLimit is the number of history events a portal shows.
	TimelineLimit = 50

	DefaultMessageLimit = 50
	MaxMessageLimit     = 100

	expiredMsg = "Este link de acesso expirou. Entre em contato com a producao para solicitar um novo link."
)

var (
	ErrNotFound        = core.NotFound("Sessao nao encontrada")
	ErrPortalNotFound  = core.NotFound("Portal nao encontrado ou inativo")
	ErrInvalidToken    = core.NotFound("Token invalido")
	ErrJobNotFound     = core.NotFound("Job nao encontrado")
	ErrContactNotFound = core.NotFound("Contato nao encontrado")
	ErrInvalidID       = core.BadRequest("ID de sessao invalido")
	ErrExpired         = core.BusinessRule(expiredMsg, 410)
)

type (
	Repository interface {
		// ListSessions orders by created_at DESC and joins the job and contact summaries.
		ListSessions(ctx context.Context, tenantID, jobID string) ([]Session, error)
		GetSession(ctx context.Context, tenantID, id string) (Session, error)
		// GetSessionByToken looks a session up across tenants.
		GetSessionByToken(ctx context.Context, token string) (Session, error)
		// CreateSession returns a CONFLICT AppError when the job already has an active session for the contact.
		CreateSession(ctx context.Context, s Session) (Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		DeleteSession(ctx context.Context, tenantID, id string, at time.Time) error
		TouchSession(ctx context.Context, id string, at time.Time) error

		GetJob(ctx context.Context, tenantID, jobID string) (JobRef, error)
		ContactExists(ctx context.Context, tenantID, contactID string) (bool, error)

		// ListMessages orders by created_at ASC; beforeID, when set, keeps only older messages.
		ListMessages(ctx context.Context, tenantID, sessionID, beforeID string, limit int) ([]Message, error)
		MarkMessagesRead(ctx context.Context, tenantID string, ids []string, at time.Time) error
		// CreateMessage returns a CONFLICT AppError when the idempotency key is taken.
		CreateMessage(ctx context.Context, m Message) (Message, error)
		CountClientMessagesSince(ctx context.Context, sessionID string, since time.Time) (int, error)

		PublicJob(ctx context.Context, tenantID, jobID string) (PublicJob, error)
		Timeline(ctx context.Context, tenantID, jobID string, eventTypes []string, limit int) ([]TimelineEvent, error)
		// Documents lists the deliverables that carry a file or review link.
		Documents(ctx context.Context, tenantID, jobID string) ([]Document, error)
		Approvals(ctx context.Context, tenantID, jobID string) ([]ApprovalSummary, error)
	}

	Notifier interface {
		NotifyJobTeam(ctx context.Context, tenantID, jobID string, nn notification.NewNotification) int
	}

	Service struct {
		repo     Repository
		notifier Notifier
		siteURL  string
		logger   core.Logger
	}
)

func NewService(repo Repository, notifier Notifier, conf *core.Config, logger core.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, siteURL: conf.SiteURL, logger: logger}
}

func (svc *Service) withURL(s Session) Session {
	s.PortalURL = fmt.Sprintf("%s/portal/%s", svc.siteURL, s.Token)
	if s.Contact != nil && s.Contact.ID == nil {
		s.Contact = nil
	}
	return s
}

func (svc *Service) ListSessions(ctx context.Context, tenantID, jobID string) ([]Session, error) {
	if jobID != "" && !isUUID(jobID) {
		return nil, core.BadRequest("job_id deve ser um UUID valido")
	}
	sessions, err := svc.repo.ListSessions(ctx, tenantID, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "listing portal sessions")
	}
	for i := range sessions {
		sessions[i] = svc.withURL(sessions[i])
	}
	return sessions, nil
}

func (svc *Service) CreateSession(ctx context.Context, actor core.Actor, ns NewSession) (Session, error) {
	job, err := svc.repo.GetJob(ctx, actor.TenantID, ns.JobID)
	if err != nil {
		return Session{}, err
	}
	if ns.ContactID != nil && *ns.ContactID != "" {
		ok, err := svc.repo.ContactExists(ctx, actor.TenantID, *ns.ContactID)
		if err != nil {
			return Session{}, errors.Wrap(err, "checking contact")
		}
		if !ok {
			return Session{}, ErrContactNotFound
		}
	}

	perms := AllPermissions
	if ns.Permissions != nil {
		perms = *ns.Permissions
	}
	now := core.NowFunc().UTC()
	s, err := svc.repo.CreateSession(ctx, Session{
		TenantID:    actor.TenantID,
		JobID:       ns.JobID,
		ContactID:   core.NilIfBlank(ns.ContactID),
		Token:       uuid.New().String(),
		Label:       ns.Label,
		Permissions: perms,
		IsActive:    true,
		ExpiresAt:   ns.ExpiresAt,
		CreatedBy:   &actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if appErr, ok := core.AsAppError(err); ok && appErr.Code == core.CodeConflict {
			return Session{}, core.Conflict("Ja existe uma sessao ativa para este job e contato. " +
				"Desative a sessao existente antes de criar uma nova.")
		}
		return Session{}, errors.Wrap(err, "creating portal session")
	}
	s.Job = &job
	svc.logger.Info(fmt.Sprintf("portal session %s created for job %s", s.ID, s.JobID))
	return svc.withURL(s), nil
}

func (svc *Service) UpdateSession(ctx context.Context, tenantID, id string, us UpdateSession) (Session, error) {
	s, err := svc.session(ctx, tenantID, id)
	if err != nil {
		return Session{}, err
	}
	us.apply(&s)
	s.UpdatedAt = core.NowFunc().UTC()

	updated, err := svc.repo.UpdateSession(ctx, s)
	if err != nil {
		return Session{}, errors.Wrap(err, "updating portal session")
	}
	return svc.withURL(updated), nil
}

// DeleteSession invalidates the session token; its messages are kept.
func (svc *Service) DeleteSession(ctx context.Context, tenantID, id string) (Deleted, error) {
	if _, err := svc.session(ctx, tenantID, id); err != nil {
		return Deleted{}, err
	}
	if err := svc.repo.DeleteSession(ctx, tenantID, id, core.NowFunc().UTC()); err != nil {
		return Deleted{}, errors.Wrap(err, "deleting portal session")
	}
	return Deleted{ID: id, Deleted: true}, nil
}

// ListMessages returns a page of the session conversation and marks the client messages as read.
func (svc *Service) ListMessages(ctx context.Context, tenantID, id, beforeID string, limit int) (MessagePage, error) {
	s, err := svc.session(ctx, tenantID, id)
	if err != nil {
		return MessagePage{}, err
	}
	if beforeID != "" && !isUUID(beforeID) {
		return MessagePage{}, core.BadRequest("before_id deve ser um UUID valido")
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}

	msgs, err := svc.repo.ListMessages(ctx, tenantID, s.ID, beforeID, limit)
	if err != nil {
		return MessagePage{}, errors.Wrap(err, "listing portal messages")
	}

	now := core.NowFunc().UTC()
	var unread []string
	for i, m := range msgs {
		if m.Direction == ClientToProducer && m.ReadAt == nil {
			unread = append(unread, m.ID)
			msgs[i].ReadAt = &now
		}
	}
	if len(unread) > 0 {
		if err := svc.repo.MarkMessagesRead(ctx, tenantID, unread, now); err != nil {
			svc.logger.Warn("marking portal messages read", errors.Wrap(err, "marking portal messages read"))
		}
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return MessagePage{Messages: msgs, SessionID: s.ID, JobID: s.JobID}, nil
}

// Reply posts a producer message. Expired sessions accept replies; deactivated ones do not.
func (svc *Service) Reply(ctx context.Context, actor core.Actor, id string, nm NewMessage) (Message, error) {
	s, err := svc.session(ctx, actor.TenantID, id)
	if err != nil {
		return Message{}, err
	}
	if !s.IsActive {
		return Message{}, core.BusinessRule("Sessao esta desativada. Reative a sessao antes de responder.", 409)
	}
	if !s.Permissions.Messages {
		return Message{}, core.Forbidden("Mensagens nao estao habilitadas nesta sessao")
	}

	now := core.NowFunc().UTC()
	key := fmt.Sprintf("producer-reply-%s-%s-%d", s.ID, actor.UserID, now.UnixNano()/int64(time.Millisecond))
	m, err := svc.repo.CreateMessage(ctx, Message{
		TenantID:       actor.TenantID,
		SessionID:      s.ID,
		JobID:          s.JobID,
		Direction:      ProducerToClient,
		SenderName:     nm.SenderName,
		SenderUserID:   &actor.UserID,
		Content:        nm.Content,
		Attachments:    nm.Attachments,
		IdempotencyKey: &key,
		CreatedAt:      now,
	})
	return m, errors.Wrap(err, "creating portal reply")
}

// GetByToken composes the public view of a portal link and records the access.
func (svc *Service) GetByToken(ctx context.Context, token string) (PublicData, error) {
	s, err := svc.byToken(ctx, token)
	if err != nil {
		return PublicData{}, err
	}
	now := core.NowFunc().UTC()
	if !s.IsActive {
		return PublicData{}, ErrPortalNotFound
	}
	if s.Expired(now) {
		return PublicData{}, ErrExpired
	}

	job, err := svc.repo.PublicJob(ctx, s.TenantID, s.JobID)
	if err != nil {
		return PublicData{}, errors.Wrap(err, "loading portal job")
	}
	data := PublicData{
		Session:   PublicSession{ID: s.ID, Label: s.Label, Permissions: s.Permissions, ExpiresAt: s.ExpiresAt},
		Job:       job,
		Timeline:  []TimelineEvent{},
		Documents: []Document{},
		Approvals: []ApprovalSummary{},
		Messages:  []Message{},
	}

	if s.Permissions.Timeline {
		if data.Timeline, err = svc.repo.Timeline(ctx, s.TenantID, s.JobID, PublicEventTypes, TimelineLimit); err != nil {
			return PublicData{}, errors.Wrap(err, "loading portal timeline")
		}
	}
	if s.Permissions.Documents {
		if data.Documents, err = svc.repo.Documents(ctx, s.TenantID, s.JobID); err != nil {
			return PublicData{}, errors.Wrap(err, "loading portal documents")
		}
	}
	if s.Permissions.Approvals {
		if data.Approvals, err = svc.repo.Approvals(ctx, s.TenantID, s.JobID); err != nil {
			return PublicData{}, errors.Wrap(err, "loading portal approvals")
		}
		for i, a := range data.Approvals {
			// only open requests keep a usable link
			if a.Status == "pending" && a.ExpiresAt.Before(now) {
				data.Approvals[i].Status = "expired"
			}
			if data.Approvals[i].Status != "pending" {
				data.Approvals[i].Token = nil
			}
		}
	}
	if s.Permissions.Messages {
		if data.Messages, err = svc.repo.ListMessages(ctx, s.TenantID, s.ID, "", MaxMessageLimit); err != nil {
			return PublicData{}, errors.Wrap(err, "loading portal messages")
		}
	}

	if err := svc.repo.TouchSession(ctx, s.ID, now); err != nil {
		svc.logger.Warn("touching portal session", errors.Wrap(err, "touching portal session"))
	}
	return data, nil
}

// SendMessage posts a client message through a portal link. A message whose idempotency key
// was already used is not stored twice: `duplicate` is true and no message is returned.
func (svc *Service) SendMessage(ctx context.Context, token string, nm NewMessage) (msg *Message, duplicate bool, err error) {
	s, err := svc.byToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	now := core.NowFunc().UTC()
	switch {
	case !s.IsActive:
		return nil, false, core.Forbidden("Este link de acesso esta desativado")
	case s.Expired(now):
		return nil, false, ErrExpired
	case !s.Permissions.Messages:
		return nil, false, core.Forbidden("Mensagens nao estao habilitadas neste portal")
	}

	count, err := svc.repo.CountClientMessagesSince(ctx, s.ID, now.Add(-time.Hour))
	if err != nil {
		return nil, false, errors.Wrap(err, "counting portal messages")
	}
	if count >= MaxClientMessagesPerHour {
		svc.logger.Warn(fmt.Sprintf("portal session %s rate limited: %d messages in the last hour", s.ID, count))
		return nil, false, core.BusinessRule(fmt.Sprintf(
			"Limite de %d mensagens por hora atingido. Aguarde antes de enviar mais mensagens.", MaxClientMessagesPerHour), 429)
	}

	key := core.StrVal(nm.IdempotencyKey)
	if key == "" {
		key = fmt.Sprintf("%s-%d-%s", s.ID, now.UnixNano()/int64(time.Millisecond), strconv.FormatInt(rand.Int63(), 36))
	}
	m, err := svc.repo.CreateMessage(ctx, Message{
		TenantID:       s.TenantID,
		SessionID:      s.ID,
		JobID:          s.JobID,
		Direction:      ClientToProducer,
		SenderName:     nm.SenderName,
		Content:        nm.Content,
		Attachments:    nm.Attachments,
		IdempotencyKey: &key,
		CreatedAt:      now,
	})
	if err != nil {
		if appErr, ok := core.AsAppError(err); ok && appErr.Code == core.CodeConflict {
			svc.logger.Info(fmt.Sprintf("duplicate portal message ignored (idempotency key %s)", key))
			return nil, true, nil
		}
		return nil, false, errors.Wrap(err, "creating portal message")
	}

	actionURL := fmt.Sprintf("/jobs/%s?tab=portal", s.JobID)
	svc.notifier.NotifyJobTeam(ctx, s.TenantID, s.JobID, notification.NewNotification{
		Type:      notification.TypePortalMessageReceived,
		Priority:  notification.PriorityNormal,
		Title:     fmt.Sprintf("Nova mensagem do cliente: %s", nm.SenderName),
		Body:      core.Ellipsis(nm.Content, 200),
		JobID:     &s.JobID,
		ActionURL: &actionURL,
	})
	return &m, false, nil
}

func (svc *Service) session(ctx context.Context, tenantID, id string) (Session, error) {
	if !isUUID(id) {
		return Session{}, ErrInvalidID
	}
	return svc.repo.GetSession(ctx, tenantID, id)
}

// byToken returns the active session of a token.
func (svc *Service) byToken(ctx context.Context, token string) (Session, error) {
	if !isUUID(token) {
		return Session{}, ErrInvalidToken
	}
	s, err := svc.repo.GetSessionByToken(ctx, token)
	if err != nil {
		if core.IsNotFound(err) {
			return Session{}, ErrPortalNotFound
		}
		return Session{}, errors.Wrap(err, "loading portal session")
	}
	return s, nil
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
