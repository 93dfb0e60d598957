package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

type (
	// Repository runs the report functions of the database. Results are returned as raw JSON.
	Repository interface {
		FinancialMonthly(ctx context.Context, tenantID, start, end string) (json.RawMessage, error)
		Performance(ctx context.Context, tenantID, start, end, groupBy string) (json.RawMessage, error)
		TeamUtilization(ctx context.Context, tenantID, start, end string) (json.RawMessage, error)
	}

	// Archiver stores generated files and returns their key.
	Archiver interface {
		Upload(ctx context.Context, key string, content []byte) (string, error)
	}

	Service struct {
		repo     Repository
		archiver Archiver // optional
		logger   core.Logger
	}
)

// NewService returns a report service. `archiver` may be nil, in which case exports are not stored.
func NewService(repo Repository, archiver Archiver, logger core.Logger) *Service {
	return &Service{repo: repo, archiver: archiver, logger: logger}
}

func (svc *Service) Financial(ctx context.Context, tenantID string, params Params) (Report, error) {
	return svc.run(ctx, tenantID, TypeFinancialMonthly, params)
}

func (svc *Service) Performance(ctx context.Context, tenantID string, params Params) (Report, error) {
	return svc.run(ctx, tenantID, TypePerformance, params)
}

func (svc *Service) Team(ctx context.Context, tenantID string, params Params) (Report, error) {
	return svc.run(ctx, tenantID, TypeTeamUtilization, params)
}

func (svc *Service) run(ctx context.Context, tenantID, reportType string, params Params) (Report, error) {
	if err := params.resolve(reportType, core.NowFunc(), false); err != nil {
		return Report{}, err
	}
	return svc.query(ctx, tenantID, reportType, params)
}

func (svc *Service) query(ctx context.Context, tenantID, reportType string, params Params) (Report, error) {
	var (
		result json.RawMessage
		err    error
	)
	switch reportType {
	case TypeFinancialMonthly:
		result, err = svc.repo.FinancialMonthly(ctx, tenantID, params.StartDate, params.EndDate)
	case TypePerformance:
		result, err = svc.repo.Performance(ctx, tenantID, params.StartDate, params.EndDate, params.GroupBy)
	case TypeTeamUtilization:
		result, err = svc.repo.TeamUtilization(ctx, tenantID, params.StartDate, params.EndDate)
	default:
		return Report{}, invalidType()
	}
	if err != nil {
		return Report{}, errors.Wrapf(err, "running %s report", reportType)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return Report{ReportType: reportType, Parameters: params, Result: result}, nil
}

// Export runs a report and renders it as CSV. When an archiver is configured the file is
// stored under `reports/<tenant>/`; archive failures are logged and do not fail the export.
func (svc *Service) Export(ctx context.Context, tenantID string, req ExportRequest) (Export, error) {
	conf, ok := exportConfig[req.ReportType]
	if !ok {
		return Export{}, invalidType()
	}

	params := req.Parameters
	if err := params.resolve(req.ReportType, core.NowFunc(), true); err != nil {
		return Export{}, err
	}

	rep, err := svc.query(ctx, tenantID, req.ReportType, params)
	if err != nil {
		return Export{}, err
	}
	rows, err := extractRows(req.ReportType, rep.Result)
	if err != nil {
		return Export{}, errors.Wrap(err, "decoding report rows")
	}

	content, err := generateCSV(rows, conf.columns)
	if err != nil {
		return Export{}, errors.Wrap(err, "rendering report csv")
	}
	exp := Export{
		Filename: fmt.Sprintf("relatorio-%s-%s.csv", conf.label, core.NowFunc().Format("2006-01")),
		Content:  content,
		Rows:     len(rows),
	}

	if svc.archiver != nil {
		key := fmt.Sprintf("reports/%s/%d-%s", tenantID, core.NowFunc().UnixNano(), exp.Filename)
		if exp.ArchiveKey, err = svc.archiver.Upload(ctx, key, exp.Content); err != nil {
			svc.logger.Warn("archiving report export", err, map[string]interface{}{"tenant_id": tenantID, "key": key})
			exp.ArchiveKey = ""
		}
	}
	return exp, nil
}

func invalidType() error {
	return core.BadRequest("report_type invalido. Valores aceitos: financial_monthly, performance, team_utilization")
}
