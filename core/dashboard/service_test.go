package dashboard

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type fakeRepo struct {
	Repository

	args []int
}

func (r *fakeRepo) Alerts(_ context.Context, _ string, limit int) ([]Alert, error) {
	r.args = []int{limit}
	return nil, nil
}

func (r *fakeRepo) Activity(_ context.Context, _ string, hours, limit int) ([]ActivityEvent, error) {
	r.args = []int{hours, limit}
	return []ActivityEvent{{ID: "h1", EventType: "status_change"}}, nil
}

func (r *fakeRepo) Revenue(_ context.Context, _ string, months int) ([]RevenueMonth, error) {
	r.args = []int{months}
	return nil, nil
}

func TestIntParam(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 20, false},
		{"1", 1, false},
		{"100", 100, false},
		{"12abc", 12, false},
		{"0", 0, true},
		{"101", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := intParam("limit", tc.raw, 20, 100)
			if tc.wantErr {
				appErr, ok := core.AsAppError(err)
				require.True(t, ok)
				assert.Equal(t, http.StatusBadRequest, appErr.Status)
				assert.Equal(t, "Parametro limit deve ser um inteiro entre 1 e 100", appErr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestService_Defaults(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	alerts, err := svc.Alerts(ctx, "t1", Query{})
	require.NoError(t, err)
	assert.NotNil(t, alerts)
	assert.Equal(t, []int{20}, repo.args)

	events, err := svc.Activity(ctx, "t1", Query{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, []int{48, 30}, repo.args)

	rows, err := svc.Revenue(ctx, "t1", Query{Months: "6"})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Equal(t, []int{6}, repo.args)
}

func TestService_InvalidParams(t *testing.T) {
	svc := NewService(&fakeRepo{})
	ctx := context.Background()

	_, err := svc.Activity(ctx, "t1", Query{Hours: "721"})
	appErr, ok := core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Parametro hours deve ser um inteiro entre 1 e 720", appErr.Message)

	_, err = svc.Activity(ctx, "t1", Query{Limit: "201"})
	appErr, ok = core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Parametro limit deve ser um inteiro entre 1 e 200", appErr.Message)

	_, err = svc.Revenue(ctx, "t1", Query{Months: "25"})
	appErr, ok = core.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Parametro months deve ser um inteiro entre 1 e 24", appErr.Message)
}
