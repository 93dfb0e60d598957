package ai

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

func TestRankSimilar(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	seg, other, high := "varejo", "bancos", "alta"
	target := JobInfo{ProjectType: "filme_publicitario", ClientSegment: &seg, ComplexityLevel: &high}

	jobs := []SimilarJob{
		{JobID: "old-same", ProjectType: "filme_publicitario", ClientSegment: &seg, ComplexityLevel: &high, CreatedAt: now.AddDate(-2, 0, 0)},
		{JobID: "new-other", ProjectType: "documentario", ClientSegment: &other, CreatedAt: now},
		{JobID: "half-year", ProjectType: "filme_publicitario", CreatedAt: now.Add(-time.Duration(365.25 * 12 * float64(time.Hour)))},
	}
	ranked := rankSimilar(target, jobs, now, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "old-same", ranked[0].JobID)
	assert.Equal(t, 85.0, ranked[0].SimilarityScore)
	assert.Equal(t, "half-year", ranked[1].JobID)
	assert.Equal(t, 47.5, ranked[1].SimilarityScore)
}

func TestBuildCandidates(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	role := "editor"
	h80, h91 := 80, 91
	people := []RolePerson{
		{ID: "p1", FullName: "Bia", DefaultRole: &role},
		{ID: "p2", FullName: "Caio"},
		{ID: "p3", FullName: "Duda"},
	}
	entries := []TeamEntry{
		{PersonID: "p1", JobType: "documentario", HealthScore: &h80, CreatedAt: now.AddDate(0, -2, 0)},
		{PersonID: "p1", JobType: "filme_publicitario", HealthScore: &h91, CreatedAt: now.AddDate(0, -1, 0)},
		{PersonID: "p1", JobType: "filme_publicitario", CreatedAt: now.AddDate(0, -3, 0)},
		{PersonID: "p3", JobType: "filme_publicitario", CreatedAt: now},
	}
	overlaps := []Overlap{{PersonID: "p1", JobCode: "050", JobTitle: "Outro", Start: "2026-03-01", End: "2026-04-30"}}

	got := buildCandidates(people, entries, overlaps, "montador", "filme_publicitario", "2026-03-10", "2026-03-20")

	require.Len(t, got, 3)
	assert.Equal(t, []string{"p3", "p2", "p1"}, []string{got[0].PersonID, got[1].PersonID, got[2].PersonID})

	p1 := got[2]
	assert.Equal(t, "editor", p1.DefaultRole)
	assert.Equal(t, 3, p1.TotalJobs)
	assert.Equal(t, 2, p1.JobsSameType)
	require.NotNil(t, p1.AvgHealthScore)
	assert.Equal(t, 85.5, *p1.AvgHealthScore)
	assert.Equal(t, now.AddDate(0, -1, 0), *p1.LastJobDate)
	assert.Equal(t, []Conflict{{JobCode: "050", JobTitle: "Outro", OverlapStart: "2026-03-10", OverlapEnd: "2026-03-20"}}, p1.Conflicts)

	assert.Equal(t, "montador", got[1].DefaultRole)
	assert.Nil(t, got[1].AvgHealthScore)
	assert.NotNil(t, got[1].Conflicts)
}

func TestContextBuilder_HidesFinancials(t *testing.T) {
	repo := newMemRepo()
	v := 1000.0
	job := repo.jobs[jobID]
	job.ClosedValue, job.MarginPercentage = &v, &v
	repo.jobs[jobID] = job
	b := NewContextBuilder(repo, nopLogger{})

	jc, err := b.JobContext(context.Background(), "t1", jobID, false)
	require.NoError(t, err)
	assert.Nil(t, jc.Job.ClosedValue)
	assert.Nil(t, jc.Job.MarginPercentage)
	require.Len(t, jc.Team, 1)
	assert.Nil(t, jc.Team[0].Rate)
	assert.Empty(t, jc.ShootingDates)

	jc, err = b.JobContext(context.Background(), "t1", jobID, true)
	require.NoError(t, err)
	assert.Equal(t, &v, jc.Job.ClosedValue)
	assert.NotNil(t, jc.Team[0].Rate)

	_, err = b.JobContext(context.Background(), "t1", "missing", true)
	assert.True(t, core.IsNotFound(err))
}

func TestTruncateContext(t *testing.T) {
	assert.Equal(t, "curto", TruncateContext("curto", 100))

	text := strings.Repeat("palavra ", 50)
	got := TruncateContext(text, 100)
	assert.True(t, strings.HasSuffix(got, truncationSuffix))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100)
	body := strings.TrimSuffix(got, truncationSuffix)
	assert.True(t, strings.HasSuffix(body, "palavra"), body)
}

func TestSanitizeUserInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"empty", "", 10, ""},
		{"markup", `<script>alert("x")</script>`, 100, "&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;"},
		{"control chars", "a\x00b\x07c\td\ne\x7f", 100, "abc\td\ne"},
		{"truncates runes", "ação sem fim", 4, "ação"},
		{"ampersand and quote", "P&D 'novo'", 100, "P&amp;D &#39;novo&#39;"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeUserInput(tc.in, tc.max))
		})
	}
}
