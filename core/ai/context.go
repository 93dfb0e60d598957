package ai

import (
	"context"
	"html"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ellahos/ellahos/core"
)

const (
	recentHistoryLimit   = 20
	similarCandidatePool = 200
	defaultContextChars  = 8000
	truncationSuffix     = "\n\n[... contexto truncado por limite de tokens]"
)

type (
	// ContextRepository reads the tenant data the prompts are built from.
	ContextRepository interface {
		// Job returns the job with its client name. Internal notes are never selected.
		Job(ctx context.Context, tenantID, jobID string) (JobInfo, error)
		Team(ctx context.Context, tenantID, jobID string) ([]TeamMember, error)
		Deliverables(ctx context.Context, tenantID, jobID string) ([]DeliverableInfo, error)
		ShootingDates(ctx context.Context, tenantID, jobID string) ([]ShootingInfo, error)
		RecentHistory(ctx context.Context, tenantID, jobID string, limit int) ([]HistoryInfo, error)

		// FinishedJobs returns delivered or finalized jobs with a closed value, newest first.
		FinishedJobs(ctx context.Context, tenantID, excludeJobID string, limit int) ([]SimilarJob, error)
		TenantMetrics(ctx context.Context, tenantID string) (TenantMetrics, error)
		TenantName(ctx context.Context, tenantID string) (string, error)

		// RolePeople returns the active people whose default role is `role` or who served in it.
		RolePeople(ctx context.Context, tenantID, role string) ([]RolePerson, error)
		TeamEntries(ctx context.Context, tenantID string, personIDs []string) ([]TeamEntry, error)
		// Overlaps returns the allocations of `personIDs` crossing [start, end] on jobs neither
		// cancelled nor paused.
		Overlaps(ctx context.Context, tenantID string, personIDs []string, start, end string) ([]Overlap, error)
	}

	RolePerson struct {
		ID          string   `db:"id"`
		FullName    string   `db:"full_name"`
		DefaultRole *string  `db:"default_role"`
		DefaultRate *float64 `db:"default_rate"`
		IsInternal  bool     `db:"is_internal"`
	}

	TeamEntry struct {
		PersonID    string    `db:"person_id"`
		JobID       string    `db:"job_id"`
		JobType     string    `db:"job_type"`
		HealthScore *int      `db:"health_score"`
		CreatedAt   time.Time `db:"created_at"`
	}

	Overlap struct {
		PersonID string `db:"people_id"`
		JobCode  string `db:"job_code"`
		JobTitle string `db:"job_title"`
		Start    string `db:"allocation_start"`
		End      string `db:"allocation_end"`
	}

	// ContextBuilder assembles prompt contexts.
	ContextBuilder struct {
		repo   ContextRepository
		logger core.Logger
	}
)

func NewContextBuilder(repo ContextRepository, logger core.Logger) *ContextBuilder {
	return &ContextBuilder{repo: repo, logger: logger}
}

// JobContext loads a job and its related records concurrently. Financial values are cleared unless
// `includeFinancials` is set. Failures of the related records are logged and leave them empty.
func (b *ContextBuilder) JobContext(ctx context.Context, tenantID, jobID string, includeFinancials bool) (JobContext, error) {
	var jc JobContext

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		job, err := b.repo.Job(gctx, tenantID, jobID)
		if err != nil {
			return err
		}
		jc.Job = job
		return nil
	})
	g.Go(func() error {
		team, err := b.repo.Team(gctx, tenantID, jobID)
		if err != nil {
			b.logger.Error("loading job team for ai context", err)
		}
		jc.Team = team
		return nil
	})
	g.Go(func() error {
		deliverables, err := b.repo.Deliverables(gctx, tenantID, jobID)
		if err != nil {
			b.logger.Error("loading deliverables for ai context", err)
		}
		jc.Deliverables = deliverables
		return nil
	})
	g.Go(func() error {
		dates, err := b.repo.ShootingDates(gctx, tenantID, jobID)
		if err != nil {
			b.logger.Error("loading shooting dates for ai context", err)
		}
		jc.ShootingDates = dates
		return nil
	})
	g.Go(func() error {
		history, err := b.repo.RecentHistory(gctx, tenantID, jobID, recentHistoryLimit)
		if err != nil {
			b.logger.Error("loading job history for ai context", err)
		}
		jc.RecentHistory = history
		return nil
	})
	if err := g.Wait(); err != nil {
		if core.IsNotFound(err) {
			return JobContext{}, ErrJobNotFound
		}
		return JobContext{}, errors.Wrap(err, "loading job context")
	}

	if !includeFinancials {
		jc.Job.ClosedValue = nil
		jc.Job.ProductionCost = nil
		jc.Job.MarginPercentage = nil
		for i := range jc.Team {
			jc.Team[i].Rate = nil
		}
	}
	return jc, nil
}

// SimilarJobs scores the finished jobs of the tenant against `target` and returns the best `limit`.
func (b *ContextBuilder) SimilarJobs(ctx context.Context, tenantID string, target JobInfo, limit int) ([]SimilarJob, error) {
	jobs, err := b.repo.FinishedJobs(ctx, tenantID, target.ID, similarCandidatePool)
	if err != nil {
		return nil, errors.Wrap(err, "loading finished jobs")
	}
	return rankSimilar(target, jobs, core.NowFunc(), limit), nil
}

// rankSimilar scores jobs: +40 same project type, +25 same segment, +20 same complexity and up to
// +15 for recency (linear over one year).
func rankSimilar(target JobInfo, jobs []SimilarJob, now time.Time, limit int) []SimilarJob {
	const year = 365.25 * 24 * time.Hour

	for i := range jobs {
		j := &jobs[i]
		score := 0.0
		if j.ProjectType == target.ProjectType {
			score += 40
		}
		if sameNonNil(j.ClientSegment, target.ClientSegment) {
			score += 25
		}
		if sameNonNil(j.ComplexityLevel, target.ComplexityLevel) {
			score += 20
		}
		recency := math.Max(0, 1-float64(now.Sub(j.CreatedAt))/float64(year))
		score += 15 * recency
		j.SimilarityScore = core.Round(score, 1)
	}

	sort.SliceStable(jobs, func(a, b int) bool { return jobs[a].SimilarityScore > jobs[b].SimilarityScore })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

func sameNonNil(a, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}

func (b *ContextBuilder) TenantMetrics(ctx context.Context, tenantID string) (TenantMetrics, error) {
	m, err := b.repo.TenantMetrics(ctx, tenantID)
	return m, errors.Wrap(err, "loading tenant metrics")
}

// Candidates returns the people fit for `role`, available ones first, then by experience.
// Conflicts are only computed when both dates are set.
func (b *ContextBuilder) Candidates(ctx context.Context, tenantID, role string, start, end *string, projectType string) ([]Candidate, error) {
	people, err := b.repo.RolePeople(ctx, tenantID, role)
	if err != nil {
		return nil, errors.Wrap(err, "loading role people")
	}
	if len(people) == 0 {
		return []Candidate{}, nil
	}

	ids := make([]string, len(people))
	for i, p := range people {
		ids[i] = p.ID
	}

	var (
		entries  []TeamEntry
		overlaps []Overlap
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entries, err = b.repo.TeamEntries(gctx, tenantID, ids)
		return errors.Wrap(err, "loading team entries")
	})
	if start != nil && end != nil {
		g.Go(func() error {
			var err error
			overlaps, err = b.repo.Overlaps(gctx, tenantID, ids, *start, *end)
			return errors.Wrap(err, "loading allocation overlaps")
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var s, e string
	if start != nil && end != nil {
		s, e = *start, *end
	}
	return buildCandidates(people, entries, overlaps, role, projectType, s, e), nil
}

func buildCandidates(people []RolePerson, entries []TeamEntry, overlaps []Overlap, role, projectType, start, end string) []Candidate {
	byPerson := make(map[string][]TeamEntry)
	for _, te := range entries {
		byPerson[te.PersonID] = append(byPerson[te.PersonID], te)
	}
	conflicts := make(map[string][]Conflict)
	for _, o := range overlaps {
		c := Conflict{JobCode: o.JobCode, JobTitle: o.JobTitle, OverlapStart: o.Start, OverlapEnd: o.End}
		if start > c.OverlapStart {
			c.OverlapStart = start
		}
		if end != "" && end < c.OverlapEnd {
			c.OverlapEnd = end
		}
		conflicts[o.PersonID] = append(conflicts[o.PersonID], c)
	}

	candidates := make([]Candidate, 0, len(people))
	for _, p := range people {
		c := Candidate{
			PersonID:    p.ID,
			FullName:    p.FullName,
			DefaultRole: role,
			DefaultRate: p.DefaultRate,
			IsInternal:  p.IsInternal,
			Conflicts:   conflicts[p.ID],
		}
		if p.DefaultRole != nil && *p.DefaultRole != "" {
			c.DefaultRole = *p.DefaultRole
		}
		if c.Conflicts == nil {
			c.Conflicts = []Conflict{}
		}

		var healthSum, healthCount int
		for _, te := range byPerson[p.ID] {
			c.TotalJobs++
			if projectType != "" && te.JobType == projectType {
				c.JobsSameType++
			}
			if te.HealthScore != nil {
				healthSum += *te.HealthScore
				healthCount++
			}
			if c.LastJobDate == nil || te.CreatedAt.After(*c.LastJobDate) {
				at := te.CreatedAt
				c.LastJobDate = &at
			}
		}
		if healthCount > 0 {
			avg := core.Round(float64(healthSum)/float64(healthCount), 2)
			c.AvgHealthScore = &avg
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := len(candidates[i].Conflicts) == 0, len(candidates[j].Conflicts) == 0
		if ci != cj {
			return ci
		}
		return candidates[i].TotalJobs > candidates[j].TotalJobs
	})
	return candidates
}

// TruncateContext cuts `text` to at most `maxChars` characters, preferring a word boundary, and
// marks the cut.
func TruncateContext(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultContextChars
	}
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	cut := maxChars - utf8.RuneCountInString(truncationSuffix)
	if cut <= 0 {
		return strings.TrimSpace(truncationSuffix)
	}
	runes := []rune(text)[:cut]
	truncated := string(runes)
	if i := strings.LastIndex(truncated, " "); i >= 0 && utf8.RuneCountInString(truncated[:i]) > cut/2 {
		truncated = truncated[:i]
	}
	return truncated + truncationSuffix
}

// SanitizeUserInput prepares user text for embedding in a prompt: truncated to `maxLen`
// characters, control characters removed (tab and line breaks kept) and markup escaped.
func SanitizeUserInput(input string, maxLen int) string {
	if input == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	if runes := []rune(input); len(runes) > maxLen {
		input = string(runes[:maxLen])
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, input)
	return html.EscapeString(cleaned)
}
