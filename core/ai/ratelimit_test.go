package ai

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

func TestLimiter_Check(t *testing.T) {
	freezeTime(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		usage      int
		tokens     int
		countErr   error
		limits     Limits
		wantStatus int
		wantType   string
	}{
		{"under limits", 2, 1000, nil, DefaultLimits, 0, ""},
		{"user hourly", 3, 0, nil, Limits{MaxRequestsPerHourUser: 3, MaxRequestsPerHourTenant: 10, MaxTokensPerDayTenant: 10}, http.StatusTooManyRequests, "user_hourly"},
		{"tenant hourly", 3, 0, nil, Limits{MaxRequestsPerHourUser: 10, MaxRequestsPerHourTenant: 3, MaxTokensPerDayTenant: 10}, http.StatusTooManyRequests, "tenant_hourly"},
		{"daily tokens", 0, 500000, nil, DefaultLimits, http.StatusTooManyRequests, "tenant_daily_tokens"},
		{"fails closed", 0, 0, errors.New("connection refused"), DefaultLimits, http.StatusServiceUnavailable, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.usage = make([]UsageLog, tc.usage)
			repo.tokens = tc.tokens
			repo.countErr = tc.countErr
			l := NewLimiter(repo, nopLogger{})
			l.limits = tc.limits

			err := l.Check(ctx, "t1", "u1", FeatureCopilot)
			if tc.wantStatus == 0 {
				require.NoError(t, err)
				return
			}
			appErr, ok := core.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tc.wantStatus, appErr.Status)
			if tc.wantType != "" {
				assert.Equal(t, core.CodeBusinessRule, appErr.Code)
				assert.Equal(t, tc.wantType, appErr.Details["limit_type"])
			} else {
				assert.Equal(t, "db_query_failed", appErr.Details["reason"])
			}
		})
	}
}

func TestLimiter_Usage(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	repo.usage = make([]UsageLog, 4)
	repo.tokens = 1234
	l := NewLimiter(repo, nopLogger{})

	summary, err := l.Usage(context.Background(), "t1", "")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.UserRequestsLastHour)
	assert.Equal(t, 4, summary.TenantRequestsLastHour)
	assert.Equal(t, 1234, summary.TenantTokensToday)
	assert.Equal(t, DefaultLimits, summary.Limits)

	summary, err = l.Usage(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.UserRequestsLastHour)
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.0105, EstimateCost(ModelSonnet, 1000, 500), 1e-9)
	assert.InDelta(t, 0.0028, EstimateCost(ModelHaiku, 1000, 500), 1e-9)
	assert.Zero(t, EstimateCost("unknown", 1000, 500))
}
