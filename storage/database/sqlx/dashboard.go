package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/dashboard"
)

type dashboardRepository struct {
	exec core.DBExecutor
}

var _ dashboard.Repository = (*dashboardRepository)(nil) // interface compliance check

func NewDashboardRepository(exec core.DBExecutor) dashboard.Repository {
	return &dashboardRepository{exec: exec}
}

func (repo *dashboardRepository) Kpis(ctx context.Context, tenantID string) (dashboard.Kpis, error) {
	var k dashboard.Kpis
	err := repo.exec.GetContext(ctx, &k, `SELECT * FROM get_dashboard_kpis($1)`, tenantID)
	return k, errors.Wrap(err, "selecting dashboard kpis")
}

func (repo *dashboardRepository) Pipeline(ctx context.Context, tenantID string) ([]dashboard.PipelineItem, error) {
	items := make([]dashboard.PipelineItem, 0)
	err := repo.exec.SelectContext(ctx, &items, `SELECT * FROM get_pipeline_summary($1)`, tenantID)
	return items, errors.Wrap(err, "selecting pipeline summary")
}

func (repo *dashboardRepository) Alerts(ctx context.Context, tenantID string, limit int) ([]dashboard.Alert, error) {
	alerts := make([]dashboard.Alert, 0)
	err := repo.exec.SelectContext(ctx, &alerts, `SELECT * FROM get_alerts($1, $2)`, tenantID, limit)
	return alerts, errors.Wrap(err, "selecting dashboard alerts")
}

func (repo *dashboardRepository) Activity(ctx context.Context, tenantID string, hours, limit int) ([]dashboard.ActivityEvent, error) {
	events := make([]dashboard.ActivityEvent, 0)
	err := repo.exec.SelectContext(ctx, &events, `SELECT * FROM get_recent_activity($1, $2, $3)`, tenantID, hours, limit)
	return events, errors.Wrap(err, "selecting recent activity")
}

func (repo *dashboardRepository) Revenue(ctx context.Context, tenantID string, months int) ([]dashboard.RevenueMonth, error) {
	rows := make([]dashboard.RevenueMonth, 0)
	err := repo.exec.SelectContext(ctx, &rows, `SELECT * FROM get_revenue_by_month($1, $2)`, tenantID, months)
	return rows, errors.Wrap(err, "selecting revenue by month")
}
