package ai

import (
	"context"
	"net/http"
	"time"

	"github.com/ellahos/ellahos/core"
)

const limiterUnavailableMsg = "Servico de rate limiting temporariamente indisponivel. Tente novamente em instantes."

// UsageRepository stores the usage log the limiter counts on.
type UsageRepository interface {
	CountUserRequestsSince(ctx context.Context, tenantID, userID string, since time.Time) (int, error)
	CountTenantRequestsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	SumTenantTokensSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	InsertUsage(ctx context.Context, ul UsageLog) error
	// ListUsage returns the newest entries of a feature for a job.
	ListUsage(ctx context.Context, tenantID, feature, jobID string, limit int) ([]UsageEntry, error)
}

// Limiter enforces the per user and per tenant usage limits. It fails closed: when usage cannot be
// counted, requests are refused.
type Limiter struct {
	repo   UsageRepository
	limits Limits
	logger core.Logger
}

func NewLimiter(repo UsageRepository, logger core.Logger) *Limiter {
	return &Limiter{repo: repo, limits: DefaultLimits, logger: logger}
}

func (l *Limiter) unavailable(err error, query string) error {
	l.logger.Error("counting ai usage", err, map[string]interface{}{"query": query})
	return core.NewAppError(core.CodeInternal, limiterUnavailableMsg, http.StatusServiceUnavailable, map[string]interface{}{
		"reason": "db_query_failed",
		"query":  query,
	})
}

func exceeded(msg, limitType string, current, max int) error {
	return core.BusinessRule(msg, http.StatusTooManyRequests).WithDetails(map[string]interface{}{
		"limit_type": limitType,
		"current":    current,
		"max":        max,
	})
}

// Check returns a 429 error when any limit is reached.
func (l *Limiter) Check(ctx context.Context, tenantID, userID, feature string) error {
	now := core.NowFunc()
	hourAgo := now.Add(-time.Hour)

	userRequests, err := l.repo.CountUserRequestsSince(ctx, tenantID, userID, hourAgo)
	if err != nil {
		return l.unavailable(err, "user_requests_last_hour")
	}
	if userRequests >= l.limits.MaxRequestsPerHourUser {
		l.logger.Warn("ai request blocked", map[string]interface{}{"tenant_id": tenantID, "user_id": userID, "feature": feature, "reason": "user_hourly"})
		return exceeded("Limite de requisicoes por hora atingido. Tente novamente em alguns minutos.",
			"user_hourly", userRequests, l.limits.MaxRequestsPerHourUser)
	}

	tenantRequests, err := l.repo.CountTenantRequestsSince(ctx, tenantID, hourAgo)
	if err != nil {
		return l.unavailable(err, "tenant_requests_last_hour")
	}
	if tenantRequests >= l.limits.MaxRequestsPerHourTenant {
		l.logger.Warn("ai request blocked", map[string]interface{}{"tenant_id": tenantID, "user_id": userID, "feature": feature, "reason": "tenant_hourly"})
		return exceeded("Limite de requisicoes da empresa por hora atingido. Tente novamente em alguns minutos.",
			"tenant_hourly", tenantRequests, l.limits.MaxRequestsPerHourTenant)
	}

	tokens, err := l.repo.SumTenantTokensSince(ctx, tenantID, now.Add(-24*time.Hour))
	if err != nil {
		return l.unavailable(err, "tenant_tokens_today")
	}
	if tokens >= l.limits.MaxTokensPerDayTenant {
		l.logger.Warn("ai request blocked", map[string]interface{}{"tenant_id": tenantID, "user_id": userID, "feature": feature, "reason": "tenant_daily_tokens"})
		return exceeded("Limite diario de tokens de IA atingido. O limite sera renovado em algumas horas.",
			"tenant_daily_tokens", tokens, l.limits.MaxTokensPerDayTenant)
	}
	return nil
}

// Usage summarizes the current consumption of a tenant and, when `userID` is set, of the user.
func (l *Limiter) Usage(ctx context.Context, tenantID, userID string) (UsageSummary, error) {
	now := core.NowFunc()
	summary := UsageSummary{Limits: l.limits}

	var err error
	if userID != "" {
		if summary.UserRequestsLastHour, err = l.repo.CountUserRequestsSince(ctx, tenantID, userID, now.Add(-time.Hour)); err != nil {
			return UsageSummary{}, l.unavailable(err, "user_requests_last_hour")
		}
	}
	if summary.TenantRequestsLastHour, err = l.repo.CountTenantRequestsSince(ctx, tenantID, now.Add(-time.Hour)); err != nil {
		return UsageSummary{}, l.unavailable(err, "tenant_requests_last_hour")
	}
	if summary.TenantTokensToday, err = l.repo.SumTenantTokensSince(ctx, tenantID, now.Add(-24*time.Hour)); err != nil {
		return UsageSummary{}, l.unavailable(err, "tenant_tokens_today")
	}
	return summary, nil
}

// Record stores a usage entry. Failures are logged only.
func (l *Limiter) Record(ctx context.Context, ul UsageLog) {
	if err := l.repo.InsertUsage(ctx, ul); err != nil {
		l.logger.Warn("recording ai usage", err, map[string]interface{}{"tenant_id": ul.TenantID, "feature": ul.Feature})
		return
	}
	l.logger.Debug("ai usage recorded", map[string]interface{}{
		"tenant_id": ul.TenantID,
		"feature":   ul.Feature,
		"tokens":    ul.InputTokens + ul.OutputTokens,
	})
}
