package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{500, "500"},
		{47500, "47.500"},
		{1234.5, "1.234,5"},
		{1234567.891, "1.234.567,89"},
		{-2500.25, "-2.500,25"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatBRL(tc.in))
	}
}

func TestShouldEscalate(t *testing.T) {
	assert.True(t, shouldEscalate("Qual a MARGEM media?"))
	assert.True(t, shouldEscalate("faça uma análise do mes"))
	assert.True(t, shouldEscalate("quem e o melhor editor?"))
	assert.False(t, shouldEscalate("qual o status do job 042?"))
}

func TestSimilarJobsTable(t *testing.T) {
	assert.Contains(t, similarJobsTable(nil), `Defina confidence como "low"`)

	v, m := 47500.0, 32.46
	seg := "varejo"
	table := similarJobsTable([]SimilarJob{{
		Code: "031", ProjectType: "filme_publicitario", ClientSegment: &seg, ClosedValue: &v, MarginPercentage: &m,
		DeliverablesCount: 3, TeamSize: 7, SimilarityScore: 82.5, CreatedAt: time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, table, "(1 mais relevantes)")
	assert.Contains(t, table, "| 1 | 031 | filme_publicitario | varejo | - | R$ 47.500 | N/A | 32.5% | 3 | 7 | 82.5% | 2025-11-02 |")
}

func TestCopilotDynamicContext(t *testing.T) {
	assert.Contains(t, copilotDynamicContext(nil, nil, ""), "Nenhum contexto especifico disponivel")

	margin := 31.26
	ctx := copilotDynamicContext(&TenantMetrics{TotalJobs: 12, ActiveJobs: 4, TeamSize: 9, AvgMargin: &margin}, nil, "/jobs")
	assert.Contains(t, ctx, "- Total de jobs: 12")
	assert.Contains(t, ctx, "- Margem media: 31.3%")
	assert.Contains(t, ctx, "Pagina atual do usuario: /jobs")
	assert.NotContains(t, ctx, "Receita total")
}
