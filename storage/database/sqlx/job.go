package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/job"
)

var (
	jobCols = []string{
		"id", "tenant_id", "index_number", "code", "job_aba", "title", "client_id", "agency_id", "contact_id", "brand",
		"format", "job_type", "segment", "total_duration_seconds", "status", "sub_status", "priority", "tags",
		"briefing_text", "references_text", "notes", "internal_notes", "expected_start_date", "expected_delivery_date",
		"actual_start_date", "actual_delivery_date", "closed_value", "production_cost", "other_costs", "tax_percentage",
		"margin_percentage", "health_score", "payment_terms", "currency", "media_type", "complexity_level", "po_number",
		"commercial_responsible", "custom_fields", "drive_folder_url", "production_sheet_url", "budget_letter_url",
		"schedule_url", "script_url", "final_delivery_url", "has_contracted_audio", "has_mockup_scenography",
		"has_computer_graphics", "approval_type", "approval_date", "approval_document_url", "approved_by_name",
		"approved_at", "cancellation_reason", "cancelled_at", "is_archived", "archived_at", "parent_job_id",
		"is_parent_job", "status_updated_at", "status_updated_by", "created_by", "created_at", "updated_at",
	}
	jobDates = set("expected_start_date", "expected_delivery_date", "actual_start_date", "actual_delivery_date", "approval_date")

	jobSelect = selectList("j", jobCols, jobDates, nil) + `, c.name AS client_name, a.name AS agency_name`
	jobFrom   = `jobs j
		LEFT JOIN clients c ON c.id = j.client_id AND c.tenant_id = j.tenant_id
		LEFT JOIN agencies a ON a.id = j.agency_id AND a.tenant_id = j.tenant_id`

	teamCols   = []string{"id", "tenant_id", "job_id", "person_id", "role", "fee", "hiring_status", "is_lead_producer", "notes", "created_at", "updated_at"}
	teamSelect = selectList("t", teamCols, nil, nil) + `, p.full_name AS person_name, p.profile_id`

	deliverableCols = []string{
		"id", "tenant_id", "job_id", "description", "format", "resolution", "duration_seconds", "status", "version",
		"delivery_date", "file_url", "review_url", "display_order", "created_at", "updated_at",
	}
	deliverableSelect = selectList("", deliverableCols, set("delivery_date"), nil)

	shootingCols   = []string{"id", "tenant_id", "job_id", "shooting_date", "description", "location", "start_time", "end_time", "created_at", "updated_at"}
	shootingSelect = selectList("", shootingCols, set("shooting_date"), set("start_time", "end_time"))

	historyCols = []string{"id", "tenant_id", "job_id", "event_type", "user_id", "data_before", "data_after", "description", "created_at"}
)

// jobRow carries the joined client and agency names.
type jobRow struct {
	job.Job
	ClientName *string `db:"client_name"`
	AgencyName *string `db:"agency_name"`
}

func (r jobRow) toJob() job.Job {
	j := r.Job
	if r.ClientName != nil {
		j.Client = &job.Ref{ID: j.ClientID, Name: *r.ClientName}
	}
	if r.AgencyName != nil && j.AgencyID != nil {
		j.Agency = &job.Ref{ID: *j.AgencyID, Name: *r.AgencyName}
	}
	return j
}

type jobRepository struct {
	exec core.DBExecutor
}

var _ job.Repository = (*jobRepository)(nil) // interface compliance check

func NewJobRepository(exec core.DBExecutor) job.Repository {
	return &jobRepository{exec: exec}
}

func (repo *jobRepository) FilterJobs(ctx context.Context, tenantID string, f job.QueryFilter, p core.PageParams) ([]job.Job, int, error) {
	w := newWhere("j.tenant_id = ? AND j.deleted_at IS NULL AND j.is_archived = ?", tenantID, f.IsArchived).
		andIf(len(f.Statuses) > 0, "j.status = ANY(?)", pq.Array(f.Statuses)).
		andIf(f.ClientID != "", "j.client_id = ?", f.ClientID).
		andIf(f.AgencyID != "", "j.agency_id = ?", f.AgencyID).
		andIf(f.JobType != "", "j.job_type = ?", f.JobType).
		andIf(f.Priority != "", "j.priority = ?", f.Priority).
		andIf(f.Segment != "", "j.segment = ?", f.Segment).
		andIf(f.ParentJobID != "", "j.parent_job_id = ?", f.ParentJobID).
		andIf(len(f.Tags) > 0, "j.tags && ?", pq.Array(f.Tags)).
		andIf(f.DateFrom != "", "j.expected_delivery_date >= ?", f.DateFrom).
		andIf(f.DateTo != "", "j.expected_delivery_date <= ?", f.DateTo)
	if s := f.Search; s != "" {
		w.and("(j.title ILIKE ? OR j.code ILIKE ? OR j.brand ILIKE ?)", like(s), like(s), like(s))
	}
	if f.MarginMin != nil {
		w.and("j.margin_percentage >= ?", *f.MarginMin)
	}
	if f.MarginMax != nil {
		w.and("j.margin_percentage <= ?", *f.MarginMax)
	}
	if f.HealthScoreMin != nil {
		w.and("j.health_score >= ?", *f.HealthScoreMin)
	}
	if f.HealthScoreMax != nil {
		w.and("j.health_score <= ?", *f.HealthScoreMax)
	}

	var rows []jobRow
	total, err := page(ctx, repo.exec, &rows, jobSelect, jobFrom, w, p, "j")
	if err != nil {
		return nil, 0, errors.Wrap(err, "filtering jobs")
	}
	jobs := make([]job.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, total, nil
}

func (repo *jobRepository) GetJob(ctx context.Context, tenantID, id string) (job.Job, error) {
	var row jobRow
	err := repo.exec.GetContext(ctx, &row,
		`SELECT `+jobSelect+` FROM `+jobFrom+` WHERE j.tenant_id = $1 AND j.id = $2 AND j.deleted_at IS NULL`, tenantID, id)
	if err != nil {
		return job.Job{}, trapNoRows(err, job.ErrNotFound, "selecting job")
	}
	return row.toJob(), nil
}

func (repo *jobRepository) CreateJob(ctx context.Context, j job.Job) (job.Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	err := inTx(ctx, repo.exec, func(exec core.DBExecutor) error {
		err := exec.GetContext(ctx, &j.IndexNumber, `
			INSERT INTO job_counters (tenant_id, last_index) VALUES ($1, 1)
			ON CONFLICT (tenant_id) DO UPDATE SET last_index = job_counters.last_index + 1
			RETURNING last_index`,
			j.TenantID)
		if err != nil {
			return errors.Wrap(err, "incrementing job counter")
		}
		j.Code = fmt.Sprintf("%03d", j.IndexNumber)
		j.JobAba = j.Code + "_" + slugify(j.Title, 50)

		if _, err = exec.NamedExecContext(ctx, insertSQL("jobs", jobCols), j); err != nil {
			return mapWriteErr(err, "inserting job")
		}
		if j.ParentJobID != nil {
			_, err = exec.ExecContext(ctx,
				`UPDATE jobs SET is_parent_job = true WHERE tenant_id = $1 AND id = $2`, j.TenantID, *j.ParentJobID)
			return errors.Wrap(err, "flagging parent job")
		}
		return nil
	})
	if err != nil {
		return job.Job{}, err
	}
	return repo.GetJob(ctx, j.TenantID, j.ID)
}

func (repo *jobRepository) UpdateJob(ctx context.Context, j job.Job) (job.Job, error) {
	q := updateSQL("jobs", jobCols, "index_number", "code", "job_aba", "created_by", "parent_job_id", "is_parent_job")
	if err := namedUpdate(ctx, repo.exec, q, j, job.ErrNotFound, "updating job"); err != nil {
		return job.Job{}, err
	}
	return repo.GetJob(ctx, j.TenantID, j.ID)
}

func (repo *jobRepository) DeleteJob(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "jobs", tenantID, id, at, job.ErrNotFound)
}

func (repo *jobRepository) SetHealthScore(ctx context.Context, tenantID, id string, score int) error {
	_, err := repo.exec.ExecContext(ctx,
		`UPDATE jobs SET health_score = $1 WHERE tenant_id = $2 AND id = $3`, score, tenantID, id)
	return errors.Wrap(err, "setting health score")
}

func (repo *jobRepository) CountActiveSubJobs(ctx context.Context, tenantID, parentID string) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, `
		SELECT count(*) FROM jobs
		WHERE tenant_id = $1 AND parent_job_id = $2 AND deleted_at IS NULL AND status <> ALL($3)`,
		tenantID, parentID, pq.Array([]string{core.JobStatusFinalizado, core.JobStatusCancelado}))
	return n, errors.Wrap(err, "counting active sub-jobs")
}

func (repo *jobRepository) ListSubJobs(ctx context.Context, tenantID, parentID string) ([]job.SubJob, error) {
	subs := make([]job.SubJob, 0)
	err := repo.exec.SelectContext(ctx, &subs, `
		SELECT id, code, title, status, health_score FROM jobs
		WHERE tenant_id = $1 AND parent_job_id = $2 AND deleted_at IS NULL
		ORDER BY index_number`,
		tenantID, parentID)
	return subs, errors.Wrap(err, "selecting sub-jobs")
}

// team

const teamFrom = `job_team t JOIN people p ON p.id = t.person_id AND p.tenant_id = t.tenant_id`

func (repo *jobRepository) ListTeam(ctx context.Context, tenantID, jobID string) ([]job.TeamMember, error) {
	team := make([]job.TeamMember, 0)
	err := repo.exec.SelectContext(ctx, &team, `
		SELECT `+teamSelect+` FROM `+teamFrom+`
		WHERE t.tenant_id = $1 AND t.job_id = $2 AND t.deleted_at IS NULL
		ORDER BY t.is_lead_producer DESC, t.created_at`,
		tenantID, jobID)
	return team, errors.Wrap(err, "selecting team")
}

func (repo *jobRepository) CountTeam(ctx context.Context, tenantID, jobID string) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n,
		`SELECT count(*) FROM job_team WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL`, tenantID, jobID)
	return n, errors.Wrap(err, "counting team")
}

func (repo *jobRepository) GetTeamMember(ctx context.Context, tenantID, jobID, id string) (job.TeamMember, error) {
	var m job.TeamMember
	err := repo.exec.GetContext(ctx, &m, `
		SELECT `+teamSelect+` FROM `+teamFrom+`
		WHERE t.tenant_id = $1 AND t.job_id = $2 AND t.id = $3 AND t.deleted_at IS NULL`,
		tenantID, jobID, id)
	return m, trapNoRows(err, job.ErrMemberNotFound, "selecting team member")
}

func (repo *jobRepository) AddTeamMember(ctx context.Context, m job.TeamMember) (job.TeamMember, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("job_team", teamCols), m); err != nil {
		return job.TeamMember{}, mapWriteErr(err, "inserting team member")
	}
	return repo.GetTeamMember(ctx, m.TenantID, m.JobID, m.ID)
}

func (repo *jobRepository) UpdateTeamMember(ctx context.Context, m job.TeamMember) (job.TeamMember, error) {
	q := updateSQL("job_team", teamCols, "job_id", "person_id")
	if err := namedUpdate(ctx, repo.exec, q, m, job.ErrMemberNotFound, "updating team member"); err != nil {
		return job.TeamMember{}, err
	}
	return repo.GetTeamMember(ctx, m.TenantID, m.JobID, m.ID)
}

func (repo *jobRepository) RemoveTeamMember(ctx context.Context, tenantID, id string, at time.Time) error {
	return inTx(ctx, repo.exec, func(exec core.DBExecutor) error {
		if err := softDelete(ctx, exec, "job_team", tenantID, id, at, job.ErrMemberNotFound); err != nil {
			return err
		}
		_, err := exec.ExecContext(ctx, `
			UPDATE allocations SET deleted_at = $1, updated_at = $1
			WHERE tenant_id = $2 AND job_team_id = $3 AND deleted_at IS NULL`,
			at, tenantID, id)
		return errors.Wrap(err, "soft deleting member allocations")
	})
}

func (repo *jobRepository) ScheduleConflicts(ctx context.Context, tenantID, jobID, personID string) ([]job.ScheduleConflict, error) {
	conflicts := make([]job.ScheduleConflict, 0)
	err := repo.exec.SelectContext(ctx, &conflicts, `
		SELECT DISTINCT j.id AS job_id, j.title AS job_title
		FROM job_team t
		JOIN jobs j ON j.id = t.job_id AND j.tenant_id = t.tenant_id AND j.deleted_at IS NULL
		JOIN job_shooting_dates sd ON sd.job_id = j.id AND sd.tenant_id = j.tenant_id AND sd.deleted_at IS NULL
		WHERE t.tenant_id = $1 AND t.person_id = $3 AND t.deleted_at IS NULL AND j.id <> $2
			AND j.status <> ALL($4)
			AND sd.shooting_date IN (
				SELECT shooting_date FROM job_shooting_dates WHERE job_id = $2 AND deleted_at IS NULL
			)
		ORDER BY j.title`,
		tenantID, jobID, personID, pq.Array([]string{core.JobStatusCancelado, core.JobStatusFinalizado}))
	return conflicts, errors.Wrap(err, "selecting schedule conflicts")
}

// deliverables

func (repo *jobRepository) ListDeliverables(ctx context.Context, tenantID, jobID string) ([]job.Deliverable, error) {
	items := make([]job.Deliverable, 0)
	err := repo.exec.SelectContext(ctx, &items, `
		SELECT `+deliverableSelect+` FROM job_deliverables
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL
		ORDER BY display_order, created_at`,
		tenantID, jobID)
	return items, errors.Wrap(err, "selecting deliverables")
}

func (repo *jobRepository) CountDeliverablesByStatus(ctx context.Context, tenantID, jobID, status string) (int, error) {
	var n int
	err := repo.exec.GetContext(ctx, &n, `
		SELECT count(*) FROM job_deliverables
		WHERE tenant_id = $1 AND job_id = $2 AND status = $3 AND deleted_at IS NULL`,
		tenantID, jobID, status)
	return n, errors.Wrap(err, "counting deliverables")
}

func (repo *jobRepository) GetDeliverable(ctx context.Context, tenantID, jobID, id string) (job.Deliverable, error) {
	var d job.Deliverable
	err := repo.exec.GetContext(ctx, &d, `
		SELECT `+deliverableSelect+` FROM job_deliverables
		WHERE tenant_id = $1 AND job_id = $2 AND id = $3 AND deleted_at IS NULL`,
		tenantID, jobID, id)
	return d, trapNoRows(err, job.ErrDeliverableNotFound, "selecting deliverable")
}

func (repo *jobRepository) CreateDeliverable(ctx context.Context, d job.Deliverable) (job.Deliverable, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("job_deliverables", deliverableCols), d); err != nil {
		return job.Deliverable{}, mapWriteErr(err, "inserting deliverable")
	}
	return d, nil
}

func (repo *jobRepository) UpdateDeliverable(ctx context.Context, d job.Deliverable) (job.Deliverable, error) {
	q := updateSQL("job_deliverables", deliverableCols, "job_id")
	return d, namedUpdate(ctx, repo.exec, q, d, job.ErrDeliverableNotFound, "updating deliverable")
}

func (repo *jobRepository) DeleteDeliverable(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "job_deliverables", tenantID, id, at, job.ErrDeliverableNotFound)
}

// shooting dates

func (repo *jobRepository) ListShootingDates(ctx context.Context, tenantID, jobID string) ([]job.ShootingDate, error) {
	dates := make([]job.ShootingDate, 0)
	err := repo.exec.SelectContext(ctx, &dates, `
		SELECT `+shootingSelect+` FROM job_shooting_dates
		WHERE tenant_id = $1 AND job_id = $2 AND deleted_at IS NULL
		ORDER BY shooting_date, start_time NULLS LAST`,
		tenantID, jobID)
	return dates, errors.Wrap(err, "selecting shooting dates")
}

func (repo *jobRepository) GetShootingDate(ctx context.Context, tenantID, jobID, id string) (job.ShootingDate, error) {
	var d job.ShootingDate
	err := repo.exec.GetContext(ctx, &d, `
		SELECT `+shootingSelect+` FROM job_shooting_dates
		WHERE tenant_id = $1 AND job_id = $2 AND id = $3 AND deleted_at IS NULL`,
		tenantID, jobID, id)
	return d, trapNoRows(err, job.ErrShootingDateNotFound, "selecting shooting date")
}

func (repo *jobRepository) CreateShootingDate(ctx context.Context, d job.ShootingDate) (job.ShootingDate, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if _, err := repo.exec.NamedExecContext(ctx, insertSQL("job_shooting_dates", shootingCols), d); err != nil {
		return job.ShootingDate{}, mapWriteErr(err, "inserting shooting date")
	}
	return d, nil
}

func (repo *jobRepository) UpdateShootingDate(ctx context.Context, d job.ShootingDate) (job.ShootingDate, error) {
	q := updateSQL("job_shooting_dates", shootingCols, "job_id")
	return d, namedUpdate(ctx, repo.exec, q, d, job.ErrShootingDateNotFound, "updating shooting date")
}

func (repo *jobRepository) DeleteShootingDate(ctx context.Context, tenantID, id string, at time.Time) error {
	return softDelete(ctx, repo.exec, "job_shooting_dates", tenantID, id, at, job.ErrShootingDateNotFound)
}

// history

func (repo *jobRepository) InsertHistory(ctx context.Context, h job.History) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err := repo.exec.NamedExecContext(ctx, insertSQL("job_history", historyCols), h)
	return mapWriteErr(err, "inserting job history")
}

func (repo *jobRepository) ListHistory(ctx context.Context, tenantID, jobID string, f job.HistoryFilter, p core.PageParams) ([]job.History, int, error) {
	w := newWhere("h.tenant_id = ? AND h.job_id = ?", tenantID, jobID).
		andIf(len(f.EventTypes) > 0, "h.event_type = ANY(?)", pq.Array(f.EventTypes))
	if p.SortBy == "" {
		p.SortBy, p.SortOrder = "created_at", "desc"
	}

	history := make([]job.History, 0)
	total, err := page(ctx, repo.exec, &history, selectList("h", historyCols, nil, nil)+", u.full_name AS user_name",
		"job_history h LEFT JOIN profiles u ON u.id = h.user_id AND u.tenant_id = h.tenant_id", w, p, "h")
	return history, total, errors.Wrap(err, "selecting job history")
}

var accents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a", "é", "e", "ê", "e", "è", "e", "í", "i", "î", "i",
	"ó", "o", "ô", "o", "õ", "o", "ö", "o", "ú", "u", "ü", "u", "ç", "c", "ñ", "n",
)

// slugify lowercases s, strips accents and joins its alphanumeric runs with underscores.
func slugify(s string, max int) string {
	s = accents.Replace(strings.ToLower(s))
	var b strings.Builder
	sep := false
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	out := b.String()
	if len(out) > max {
		out = strings.TrimRight(out[:max], "_")
	}
	return out
}

func (repo *jobRepository) CheckRefs(ctx context.Context, tenantID string, refs ...core.TenantRef) error {
	return checkRefs(ctx, repo.exec, tenantID, refs)
}
