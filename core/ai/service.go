package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	defaultTemperature = 0.3
	historyLimit       = 20
)

var (
	ErrJobNotFound          = core.NotFound("Job nao encontrado")
	ErrConversationNotFound = core.NotFound("Conversa nao encontrada")
	errUnexpectedFormat     = core.NewAppError(core.CodeInternal, "A IA retornou uma resposta em formato inesperado. Tente novamente.", http.StatusBadGateway)

	jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

type (
	// Client talks to the language model.
	Client interface {
		Complete(ctx context.Context, req CompletionRequest) (Completion, error)
		// Stream emits `start`, `delta` and `done` events as the answer arrives and returns the
		// whole answer once the model stops.
		Stream(ctx context.Context, req CompletionRequest, emit func(StreamEvent) error) (Completion, error)
	}

	EstimateRepository interface {
		// FindEstimate returns the newest estimate of `hash` created after `since`.
		FindEstimate(ctx context.Context, tenantID, hash string, since time.Time) (Estimate, error)
		CreateEstimate(ctx context.Context, e Estimate) (Estimate, error)
		// ListEstimates orders by created_at DESC.
		ListEstimates(ctx context.Context, tenantID, jobID string, limit int) ([]Estimate, error)
	}

	ConversationRepository interface {
		// ListConversations orders by last_message_at DESC NULLS LAST, created_at DESC.
		ListConversations(ctx context.Context, tenantID, userID string, limit int) ([]Conversation, error)
		GetConversation(ctx context.Context, tenantID, userID, id string) (Conversation, error)
		CreateConversation(ctx context.Context, c Conversation) (Conversation, error)
		// RecentMessages returns the last `limit` messages in chronological order.
		RecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]ConversationMessage, error)
		ListMessages(ctx context.Context, tenantID, conversationID string) ([]ConversationMessage, error)
		InsertMessage(ctx context.Context, m ConversationMessage) error
		// RecordExchange adds two messages and the tokens spent to the conversation counters.
		RecordExchange(ctx context.Context, tenantID, conversationID, model string, inputTokens, outputTokens int, at time.Time) error
		DeleteConversation(ctx context.Context, tenantID, userID, id string, at time.Time) (bool, error)
	}

	Repository interface {
		ContextRepository
		UsageRepository
		EstimateRepository
		ConversationRepository
	}

	Service struct {
		repo    Repository
		client  Client
		limiter *Limiter
		builder *ContextBuilder
		logger  core.Logger
	}
)

func NewService(repo Repository, client Client, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		client:  client,
		limiter: NewLimiter(repo, logger),
		builder: NewContextBuilder(repo, logger),
		logger:  logger,
	}
}

// Usage returns the current consumption against the limits.
func (svc *Service) Usage(ctx context.Context, actor core.Actor) (UsageSummary, error) {
	return svc.limiter.Usage(ctx, actor.TenantID, actor.UserID)
}

// call runs a batch completion and records a failed call in the usage log.
func (svc *Service) call(ctx context.Context, actor core.Actor, feature string, req CompletionRequest, meta core.JSONMap) (Completion, time.Duration, error) {
	start := time.Now()
	resp, err := svc.client.Complete(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		status := UsageError
		if appErr, ok := core.AsAppError(err); ok && appErr.Status == http.StatusGatewayTimeout {
			status = UsageTimeout
		}
		msg := err.Error()
		svc.limiter.Record(ctx, UsageLog{
			TenantID:     actor.TenantID,
			UserID:       actor.UserID,
			Feature:      feature,
			Model:        req.Model,
			DurationMs:   elapsed.Milliseconds(),
			Status:       status,
			ErrorMessage: &msg,
			Metadata:     meta,
		})
		return Completion{}, elapsed, err
	}
	return resp, elapsed, nil
}

// record logs a completed call. A non-nil `failure` marks it as an error.
func (svc *Service) record(ctx context.Context, actor core.Actor, feature string, resp Completion, model string, elapsed time.Duration, meta core.JSONMap, failure error) {
	ul := UsageLog{
		TenantID:         actor.TenantID,
		UserID:           actor.UserID,
		Feature:          feature,
		Model:            model,
		InputTokens:      resp.InputTokens,
		OutputTokens:     resp.OutputTokens,
		EstimatedCostUSD: EstimateCost(model, resp.InputTokens, resp.OutputTokens),
		DurationMs:       elapsed.Milliseconds(),
		Status:           UsageSuccess,
		Metadata:         meta,
	}
	if failure != nil {
		msg := "Falha ao parsear JSON da resposta Claude: " + failure.Error()
		ul.Status = UsageError
		ul.ErrorMessage = &msg
	}
	svc.limiter.Record(ctx, ul)
}

// decodeAnswer decodes the JSON object of an answer, which may be wrapped in prose.
func decodeAnswer(content string, dst interface{}) error {
	if err := json.Unmarshal([]byte(content), dst); err == nil {
		return nil
	}
	match := jsonObjectRe.FindString(content)
	if match == "" {
		return errors.New("nenhum JSON encontrado na resposta")
	}
	return errors.Wrap(json.Unmarshal([]byte(match), dst), "decoding answer")
}

func tokensOf(c Completion) TokensUsed {
	return TokensUsed{Input: c.InputTokens, Output: c.OutputTokens}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
