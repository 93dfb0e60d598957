package sqlxrepos

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/report"
)

// reportRepository runs the report SQL functions, each returning a json document.
type reportRepository struct {
	exec core.DBExecutor
}

var _ report.Repository = (*reportRepository)(nil) // interface compliance check

func NewReportRepository(exec core.DBExecutor) report.Repository {
	return &reportRepository{exec: exec}
}

func (repo *reportRepository) run(ctx context.Context, q string, args ...interface{}) (json.RawMessage, error) {
	var raw []byte
	if err := repo.exec.GetContext(ctx, &raw, q, args...); err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func (repo *reportRepository) FinancialMonthly(ctx context.Context, tenantID, start, end string) (json.RawMessage, error) {
	res, err := repo.run(ctx, `SELECT get_report_financial_monthly($1, $2::date, $3::date)`, tenantID, start, end)
	return res, errors.Wrap(err, "running financial report")
}

func (repo *reportRepository) Performance(ctx context.Context, tenantID, start, end, groupBy string) (json.RawMessage, error) {
	res, err := repo.run(ctx, `SELECT get_report_performance($1, $2::date, $3::date, $4)`, tenantID, start, end, groupBy)
	return res, errors.Wrap(err, "running performance report")
}

func (repo *reportRepository) TeamUtilization(ctx context.Context, tenantID, start, end string) (json.RawMessage, error) {
	res, err := repo.run(ctx, `SELECT get_report_team_utilization($1, $2::date, $3::date)`, tenantID, start, end)
	return res, errors.Wrap(err, "running team utilization report")
}
