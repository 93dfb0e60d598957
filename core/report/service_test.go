package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

type fakeRepo struct {
	result json.RawMessage
	calls  []string
}

func (r *fakeRepo) FinancialMonthly(_ context.Context, _, start, end string) (json.RawMessage, error) {
	r.calls = append(r.calls, "financial:"+start+":"+end)
	return r.result, nil
}

func (r *fakeRepo) Performance(_ context.Context, _, start, end, groupBy string) (json.RawMessage, error) {
	r.calls = append(r.calls, "performance:"+start+":"+end+":"+groupBy)
	return r.result, nil
}

func (r *fakeRepo) TeamUtilization(_ context.Context, _, start, end string) (json.RawMessage, error) {
	r.calls = append(r.calls, "team:"+start+":"+end)
	return r.result, nil
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) Upload(_ context.Context, key string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.keys = append(a.keys, key)
	return key, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func freezeTime(t *testing.T) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { core.NowFunc = orig })
}

func TestService_Defaults(t *testing.T) {
	freezeTime(t)
	repo := &fakeRepo{result: json.RawMessage(`{"summary":{}}`)}
	svc := NewService(repo, nil, nopLogger{})
	ctx := context.Background()

	rep, err := svc.Financial(ctx, "t1", Params{})
	require.NoError(t, err)
	assert.Equal(t, TypeFinancialMonthly, rep.ReportType)
	assert.Equal(t, Params{StartDate: "2026-01-01", EndDate: "2026-03-15"}, rep.Parameters)

	rep, err = svc.Performance(ctx, "t1", Params{})
	require.NoError(t, err)
	assert.Equal(t, Params{StartDate: "2025-03-15", EndDate: "2026-03-15", GroupBy: "director"}, rep.Parameters)

	_, err = svc.Team(ctx, "t1", Params{GroupBy: "client"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"financial:2026-01-01:2026-03-15",
		"performance:2025-03-15:2026-03-15:director",
		"team:2025-12-15:2026-03-15",
	}, repo.calls)
}

func TestService_InvalidParams(t *testing.T) {
	freezeTime(t)
	svc := NewService(&fakeRepo{}, nil, nopLogger{})

	tests := []struct {
		name    string
		run     func() error
		wantMsg string
	}{
		{
			name: "bad date",
			run: func() error {
				_, err := svc.Financial(context.Background(), "t1", Params{StartDate: "01/01/2026"})
				return err
			},
			wantMsg: "Datas devem estar no formato YYYY-MM-DD",
		},
		{
			name: "start after end",
			run: func() error {
				_, err := svc.Team(context.Background(), "t1", Params{StartDate: "2026-03-01", EndDate: "2026-02-01"})
				return err
			},
			wantMsg: "start_date deve ser anterior a end_date",
		},
		{
			name: "period too long",
			run: func() error {
				_, err := svc.Financial(context.Background(), "t1", Params{StartDate: "2023-01-01", EndDate: "2026-01-01"})
				return err
			},
			wantMsg: "Periodo maximo permitido e de 24 meses",
		},
		{
			name: "bad group_by",
			run: func() error {
				_, err := svc.Performance(context.Background(), "t1", Params{GroupBy: "month"})
				return err
			},
			wantMsg: "group_by invalido. Valores aceitos: director, project_type, client, segment",
		},
		{
			name: "export period too long",
			run: func() error {
				_, err := svc.Export(context.Background(), "t1", ExportRequest{
					ReportType: TypeTeamUtilization,
					Parameters: Params{StartDate: "2023-01-01", EndDate: "2026-01-01"},
				})
				return err
			},
			wantMsg: "Periodo maximo para export e de 24 meses",
		},
		{
			name: "export type",
			run: func() error {
				_, err := svc.Export(context.Background(), "t1", ExportRequest{ReportType: "kpis"})
				return err
			},
			wantMsg: "report_type invalido. Valores aceitos: financial_monthly, performance, team_utilization",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			appErr, ok := core.AsAppError(err)
			require.True(t, ok, err)
			assert.Equal(t, http.StatusBadRequest, appErr.Status)
			assert.Equal(t, tc.wantMsg, appErr.Message)
		})
	}
}

func TestService_ExportFinancial(t *testing.T) {
	freezeTime(t)
	repo := &fakeRepo{result: json.RawMessage(`{
		"summary": {"total_revenue": 1500},
		"by_month": [
			{"month": "2026-01", "revenue": 1000.5, "expenses": 200, "balance": 800.5, "job_count": 2},
			{"month": "2026-02", "revenue": 499.999, "expenses": null, "balance": "x", "job_count": 1}
		]
	}`)}
	archiver := &fakeArchiver{}
	svc := NewService(repo, archiver, nopLogger{})

	exp, err := svc.Export(context.Background(), "t1", ExportRequest{ReportType: TypeFinancialMonthly})
	require.NoError(t, err)

	assert.Equal(t, "relatorio-financeiro-2026-03.csv", exp.Filename)
	assert.Equal(t, 2, exp.Rows)
	want := "\uFEFF" +
		"Mes,Receita (R$),Despesas (R$),Saldo (R$),Jobs\r\n" +
		"2026-01,\"1000,50\",\"200,00\",\"800,50\",2\r\n" +
		"2026-02,\"500,00\",\"0,00\",\"0,00\",1\r\n"
	assert.Equal(t, want, string(exp.Content))
	require.Len(t, archiver.keys, 1)
	assert.Equal(t, archiver.keys[0], exp.ArchiveKey)
	assert.True(t, strings.HasPrefix(exp.ArchiveKey, "reports/t1/"))
}

func TestService_ExportEmptyAndArchiveFailure(t *testing.T) {
	freezeTime(t)
	svc := NewService(&fakeRepo{result: json.RawMessage(`[]`)}, &fakeArchiver{err: errors.New("s3 down")}, nopLogger{})

	exp, err := svc.Export(context.Background(), "t1", ExportRequest{ReportType: TypeTeamUtilization})
	require.NoError(t, err)
	assert.Equal(t, "relatorio-equipe-2026-03.csv", exp.Filename)
	assert.Equal(t, "\uFEFFNome,Tipo,Qtd Jobs,Dias Alocados,Utilizacao (%),Conflitos\r\n", string(exp.Content))
	assert.Empty(t, exp.ArchiveKey)
}

func TestGenerateCSV_Quoting(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "\r\n"},
		{"plain", "plain\r\n"},
		{"a,b", "\"a,b\"\r\n"},
		{`say "hi"`, "\"say \"\"hi\"\"\"\r\n"},
		{"two\nlines", "\"two\r\nlines\"\r\n"},
		{json.Number("42"), "42\r\n"},
	}
	for _, tc := range tests {
		out, err := generateCSV([]map[string]interface{}{{"month": tc.in}}, financialColumns[:1])
		require.NoError(t, err)
		assert.Equal(t, "\uFEFFMes\r\n"+tc.want, string(out))
	}
}

func TestExtractRows_Performance(t *testing.T) {
	rows, err := extractRows(TypePerformance, json.RawMessage(`[{"group_label":"Ana","job_count":3},"junk"]`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", rows[0]["group_label"])

	out, err := generateCSV(rows, performanceColumns)
	require.NoError(t, err)
	assert.Contains(t, string(out), "Ana,3,\"0,00\",,,,\r\n")
}
