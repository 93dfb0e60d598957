package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	copilotTemperature     = 0.7
	copilotHaikuMaxTokens  = 1000
	copilotSonnetMaxTokens = 3000
	maxMessageLength       = 2000
	maxTitleLength         = 50
	conversationsLimit     = 50
	defaultTenantName      = "Ellah Filmes"
)

// copilotFinancialRoles may see money in copilot answers.
var copilotFinancialRoles = []string{core.RoleAdmin, core.RoleCEO, core.RoleProdutorExecutivo}

type chatTurn struct {
	conversationID string
	message        string
	jobID          *string
	request        CompletionRequest
}

func (t chatTurn) meta(messageID string) core.JSONMap {
	m := core.JSONMap{
		"conversation_id":     t.conversationID,
		"prompt_version":      PromptVersion,
		"escalated_to_sonnet": t.request.Model == ModelSonnet,
		"job_id":              nil,
	}
	if t.jobID != nil {
		m["job_id"] = *t.jobID
	}
	if messageID != "" {
		m["message_id"] = messageID
	}
	return m
}

func validateChat(req *ChatRequest) error {
	if req.Message == "" {
		return core.BadRequest(`Campo "message" e obrigatorio (string)`)
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return core.BadRequest(`Campo "message" nao pode ser vazio`)
	}
	if n := utf8.RuneCountInString(req.Message); n > maxMessageLength {
		return core.BadRequest(fmt.Sprintf("Mensagem excede o limite de %d caracteres (%d)", maxMessageLength, n))
	}
	return nil
}

// prepareChat checks the limits, picks the model, loads or opens the conversation and builds the
// prompt. Context that fails to load is left out of the prompt.
func (svc *Service) prepareChat(ctx context.Context, actor core.Actor, req ChatRequest) (chatTurn, error) {
	if err := validateChat(&req); err != nil {
		return chatTurn{}, err
	}
	if err := svc.limiter.Check(ctx, actor.TenantID, actor.UserID, FeatureCopilot); err != nil {
		return chatTurn{}, err
	}

	turn := chatTurn{message: req.Message}
	if req.Context != nil {
		turn.jobID = req.Context.JobID
	}

	model, maxTokens := ModelHaiku, copilotHaikuMaxTokens
	if shouldEscalate(req.Message) {
		model, maxTokens = ModelSonnet, copilotSonnetMaxTokens
	}
	svc.logger.Debug("copilot model selected", map[string]interface{}{"model": model})

	var history []Message
	if req.ConversationID != nil && *req.ConversationID != "" {
		conv, err := svc.repo.GetConversation(ctx, actor.TenantID, actor.UserID, *req.ConversationID)
		if err != nil {
			if core.IsNotFound(err) {
				return chatTurn{}, ErrConversationNotFound
			}
			return chatTurn{}, errors.Wrap(err, "loading conversation")
		}
		turn.conversationID = conv.ID

		msgs, err := svc.repo.RecentMessages(ctx, actor.TenantID, conv.ID, historyLimit)
		if err != nil {
			svc.logger.Error("loading conversation history", err)
		}
		for _, m := range msgs {
			history = append(history, Message{Role: m.Role, Content: m.Content})
		}
	} else {
		conv, err := svc.repo.CreateConversation(ctx, Conversation{
			TenantID: actor.TenantID,
			UserID:   actor.UserID,
			Title:    core.Truncate(req.Message, maxTitleLength),
			JobID:    turn.jobID,
			Model:    model,
		})
		if err != nil {
			return chatTurn{}, errors.Wrap(err, "creating conversation")
		}
		turn.conversationID = conv.ID
	}

	canSeeFinancials := actor.HasAnyRole(copilotFinancialRoles...)

	var jc *JobContext
	if turn.jobID != nil && *turn.jobID != "" {
		loaded, err := svc.builder.JobContext(ctx, actor.TenantID, *turn.jobID, canSeeFinancials)
		if err != nil {
			svc.logger.Warn("loading copilot job context", err)
		} else {
			jc = &loaded
		}
	}

	var metrics *TenantMetrics
	if m, err := svc.builder.TenantMetrics(ctx, actor.TenantID); err != nil {
		svc.logger.Warn("loading copilot tenant metrics", err)
	} else {
		metrics = &m
	}

	tenantName, err := svc.repo.TenantName(ctx, actor.TenantID)
	if err != nil || tenantName == "" {
		if err != nil {
			svc.logger.Warn("loading tenant name", err)
		}
		tenantName = defaultTenantName
	}

	var page string
	if req.Context != nil {
		page = core.StrVal(req.Context.Page)
	}

	turn.request = CompletionRequest{
		Model:       model,
		System:      copilotSystemPrompt(tenantName, canSeeFinancials, copilotDynamicContext(metrics, jc, page)),
		Messages:    append(history, Message{Role: "user", Content: req.Message}),
		MaxTokens:   maxTokens,
		Temperature: copilotTemperature,
	}
	return turn, nil
}

// persist stores the exchange and bumps the conversation counters. Failures are logged only:
// the answer has already reached the user.
func (svc *Service) persist(ctx context.Context, actor core.Actor, turn chatTurn, messageID string, resp Completion, elapsed time.Duration) {
	if err := svc.repo.InsertMessage(ctx, ConversationMessage{
		TenantID:       actor.TenantID,
		ConversationID: turn.conversationID,
		Role:           "user",
		Content:        turn.message,
	}); err != nil {
		svc.logger.Error("storing user message", err)
	}

	model := turn.request.Model
	in, out, ms := resp.InputTokens, resp.OutputTokens, elapsed.Milliseconds()
	if err := svc.repo.InsertMessage(ctx, ConversationMessage{
		ID:             messageID,
		TenantID:       actor.TenantID,
		ConversationID: turn.conversationID,
		Role:           "assistant",
		Content:        resp.Content,
		Model:          &model,
		InputTokens:    &in,
		OutputTokens:   &out,
		DurationMs:     &ms,
	}); err != nil {
		svc.logger.Error("storing assistant message", err)
	}

	if err := svc.repo.RecordExchange(ctx, actor.TenantID, turn.conversationID, model, in, out, core.NowFunc()); err != nil {
		svc.logger.Error("updating conversation counters", err)
	}
}

// Chat answers a copilot message, streaming the answer through `emit`: a `start` event carrying
// the conversation and message ids, then `delta` events, then `done`.
func (svc *Service) Chat(ctx context.Context, actor core.Actor, req ChatRequest, emit func(StreamEvent) error) error {
	turn, err := svc.prepareChat(ctx, actor, req)
	if err != nil {
		return err
	}

	messageID := uuid.NewString()
	start := time.Now()
	resp, err := svc.client.Stream(ctx, turn.request, func(ev StreamEvent) error {
		if ev.Event == "start" {
			return emit(StreamEvent{Event: "start", Data: map[string]string{
				"conversation_id": turn.conversationID,
				"message_id":      messageID,
			}})
		}
		return emit(ev)
	})
	elapsed := time.Since(start)

	// The client may be gone by now; the exchange is stored regardless.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		status := UsageError
		if appErr, ok := core.AsAppError(err); ok && appErr.Status == http.StatusGatewayTimeout {
			status = UsageTimeout
		}
		msg := err.Error()
		svc.limiter.Record(bg, UsageLog{
			TenantID:     actor.TenantID,
			UserID:       actor.UserID,
			Feature:      FeatureCopilot,
			Model:        turn.request.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			DurationMs:   elapsed.Milliseconds(),
			Status:       status,
			ErrorMessage: &msg,
			Metadata:     turn.meta(messageID),
		})
		return err
	}

	svc.logger.Debug("copilot stream finished", map[string]interface{}{
		"model":       turn.request.Model,
		"input":       resp.InputTokens,
		"output":      resp.OutputTokens,
		"duration_ms": elapsed.Milliseconds(),
	})
	svc.persist(bg, actor, turn, messageID, resp, elapsed)
	svc.record(bg, actor, FeatureCopilot, resp, turn.request.Model, elapsed, turn.meta(messageID), nil)
	return nil
}

// ChatSync answers a copilot message in one piece.
func (svc *Service) ChatSync(ctx context.Context, actor core.Actor, req ChatRequest) (ChatResult, error) {
	turn, err := svc.prepareChat(ctx, actor, req)
	if err != nil {
		return ChatResult{}, err
	}

	resp, elapsed, err := svc.call(ctx, actor, FeatureCopilot, turn.request, turn.meta(""))
	if err != nil {
		return ChatResult{}, err
	}

	messageID := uuid.NewString()
	svc.persist(ctx, actor, turn, messageID, resp, elapsed)
	svc.record(ctx, actor, FeatureCopilot, resp, turn.request.Model, elapsed, turn.meta(messageID), nil)

	return ChatResult{
		ConversationID: turn.conversationID,
		MessageID:      messageID,
		Response:       resp.Content,
		Sources:        []interface{}{},
		TokensUsed:     tokensOf(resp),
	}, nil
}

func (svc *Service) ListConversations(ctx context.Context, actor core.Actor) ([]Conversation, error) {
	convs, err := svc.repo.ListConversations(ctx, actor.TenantID, actor.UserID, conversationsLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing conversations")
	}
	if convs == nil {
		convs = []Conversation{}
	}
	return convs, nil
}

// GetConversation returns a conversation of the user with all its messages, oldest first.
func (svc *Service) GetConversation(ctx context.Context, actor core.Actor, id string) (ConversationDetail, error) {
	conv, err := svc.repo.GetConversation(ctx, actor.TenantID, actor.UserID, id)
	if err != nil {
		if core.IsNotFound(err) {
			return ConversationDetail{}, ErrConversationNotFound
		}
		return ConversationDetail{}, errors.Wrap(err, "loading conversation")
	}
	msgs, err := svc.repo.ListMessages(ctx, actor.TenantID, conv.ID)
	if err != nil {
		return ConversationDetail{}, errors.Wrap(err, "listing messages")
	}
	if msgs == nil {
		msgs = []ConversationMessage{}
	}
	return ConversationDetail{Conversation: conv, Messages: msgs}, nil
}

// DeleteConversation soft deletes a conversation of the user.
func (svc *Service) DeleteConversation(ctx context.Context, actor core.Actor, id string) error {
	deleted, err := svc.repo.DeleteConversation(ctx, actor.TenantID, actor.UserID, id, core.NowFunc())
	if err != nil {
		return errors.Wrap(err, "deleting conversation")
	}
	if !deleted {
		return ErrConversationNotFound
	}
	return nil
}
