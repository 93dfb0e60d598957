package job

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/notification"
)

var (
	ErrNotFound             = core.NotFound("Job nao encontrado")
	ErrMemberNotFound       = core.NotFound("Membro nao encontrado neste job")
	ErrDeliverableNotFound  = core.NotFound("Entregavel nao encontrado")
	ErrShootingDateNotFound = core.NotFound("Diaria de filmagem nao encontrada")
)

type (
	// Repository methods returning a single row return the package's not-found errors.
	// Write methods return CONFLICT AppErrors on unique violations and VALIDATION_ERROR AppErrors
	// on foreign key violations.
	Repository interface {
		FilterJobs(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Job, int, error)
		// GetJob joins the client and agency summaries.
		GetJob(ctx context.Context, tenantID, id string) (Job, error)
		// CreateJob assigns index_number, code and job_aba, and flags the parent job as is_parent_job.
		CreateJob(ctx context.Context, j Job) (Job, error)
		UpdateJob(ctx context.Context, j Job) (Job, error)
		DeleteJob(ctx context.Context, tenantID, id string, at time.Time) error
		SetHealthScore(ctx context.Context, tenantID, id string, score int) error
		// CountActiveSubJobs counts the non deleted children that are not finished or cancelled.
		CountActiveSubJobs(ctx context.Context, tenantID, parentID string) (int, error)
		// ListSubJobs orders by index_number.
		ListSubJobs(ctx context.Context, tenantID, parentID string) ([]SubJob, error)

		ListTeam(ctx context.Context, tenantID, jobID string) ([]TeamMember, error)
		CountTeam(ctx context.Context, tenantID, jobID string) (int, error)
		GetTeamMember(ctx context.Context, tenantID, jobID, id string) (TeamMember, error)
		AddTeamMember(ctx context.Context, m TeamMember) (TeamMember, error)
		UpdateTeamMember(ctx context.Context, m TeamMember) (TeamMember, error)
		// RemoveTeamMember soft deletes the member and the allocations created for it.
		RemoveTeamMember(ctx context.Context, tenantID, id string, at time.Time) error
		// ScheduleConflicts lists the other active jobs of a person sharing a shooting date with `jobID`.
		ScheduleConflicts(ctx context.Context, tenantID, jobID, personID string) ([]ScheduleConflict, error)

		// ListDeliverables orders by display_order.
		ListDeliverables(ctx context.Context, tenantID, jobID string) ([]Deliverable, error)
		CountDeliverablesByStatus(ctx context.Context, tenantID, jobID, status string) (int, error)
		GetDeliverable(ctx context.Context, tenantID, jobID, id string) (Deliverable, error)
		CreateDeliverable(ctx context.Context, d Deliverable) (Deliverable, error)
		UpdateDeliverable(ctx context.Context, d Deliverable) (Deliverable, error)
		DeleteDeliverable(ctx context.Context, tenantID, id string, at time.Time) error

		// ListShootingDates orders by shooting_date.
		ListShootingDates(ctx context.Context, tenantID, jobID string) ([]ShootingDate, error)
		GetShootingDate(ctx context.Context, tenantID, jobID, id string) (ShootingDate, error)
		CreateShootingDate(ctx context.Context, d ShootingDate) (ShootingDate, error)
		UpdateShootingDate(ctx context.Context, d ShootingDate) (ShootingDate, error)
		DeleteShootingDate(ctx context.Context, tenantID, id string, at time.Time) error

		// CheckRefs fails with a 400 naming the first ref that is not a live row of the tenant.
		CheckRefs(ctx context.Context, tenantID string, refs ...core.TenantRef) error

		InsertHistory(ctx context.Context, h History) error
		// ListHistory orders by created_at DESC.
		ListHistory(ctx context.Context, tenantID, jobID string, filter HistoryFilter, page core.PageParams) ([]History, int, error)
	}

	Notifier interface {
		NotifyJobTeam(ctx context.Context, tenantID, jobID string, nn notification.NewNotification) int
		NotifyUser(ctx context.Context, tenantID, userID string, nn notification.NewNotification)
	}

	// Enqueuer queues outbound integration events.
	Enqueuer interface {
		EnqueueWorkflow(ctx context.Context, tenantID, workflow string, payload core.JSONMap, key string) (string, error)
	}

	Service struct {
		repo     Repository
		notifier Notifier
		events   Enqueuer
		logger   core.Logger
	}
)

func NewService(repo Repository, notifier Notifier, events Enqueuer, logger core.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, events: events, logger: logger}
}

func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter, page core.PageParams) ([]Job, int, error) {
	jobs, total, err := svc.repo.FilterJobs(ctx, tenantID, filter, page)
	return jobs, total, errors.Wrap(err, "filtering jobs")
}

func (svc *Service) Get(ctx context.Context, tenantID, id string) (Job, error) {
	return svc.repo.GetJob(ctx, tenantID, id)
}

// GetDetail returns a job with its sub-jobs and the relations requested in `inc`.
func (svc *Service) GetDetail(ctx context.Context, tenantID, id string, inc Includes) (Detail, error) {
	j, err := svc.repo.GetJob(ctx, tenantID, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Job: j}

	if inc.Team {
		if d.Team, err = svc.repo.ListTeam(ctx, tenantID, id); err != nil {
			return Detail{}, errors.Wrap(err, "listing team")
		}
	}
	if inc.Deliverables {
		if d.Deliverables, err = svc.repo.ListDeliverables(ctx, tenantID, id); err != nil {
			return Detail{}, errors.Wrap(err, "listing deliverables")
		}
	}
	if inc.ShootingDates {
		if d.ShootingDates, err = svc.repo.ListShootingDates(ctx, tenantID, id); err != nil {
			return Detail{}, errors.Wrap(err, "listing shooting dates")
		}
	}
	if inc.History {
		page := core.PageParams{Page: 1, PerPage: 20, SortBy: "created_at", SortOrder: "desc"}
		if d.History, _, err = svc.repo.ListHistory(ctx, tenantID, id, HistoryFilter{}, page); err != nil {
			return Detail{}, errors.Wrap(err, "listing history")
		}
	}
	if j.IsParentJob {
		if d.SubJobs, err = svc.repo.ListSubJobs(ctx, tenantID, id); err != nil {
			return Detail{}, errors.Wrap(err, "listing sub-jobs")
		}
	}
	return d, nil
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, nj NewJob) (Job, error) {
	j := nj.build(actor.TenantID, actor.UserID, time.Now().UTC())
	j.MarginPercentage = j.ComputeMargin()
	j.HealthScore = j.ComputeHealthScore(0, core.NowFunc())
	if err := svc.repo.CheckRefs(ctx, actor.TenantID, core.OptionalRefs(j.refs()...)...); err != nil {
		return Job{}, err
	}

	created, err := svc.repo.CreateJob(ctx, j)
	if err != nil {
		return Job{}, remapWriteErr(err,
			"Job com este codigo ja existe",
			"Referencia invalida: verifique client_id, agency_id ou parent_job_id",
		)
	}

	svc.record(ctx, actor, created.ID, EventStatusChange, nil, core.JSONMap{"status": created.Status},
		fmt.Sprintf("Job %q criado com status %s", created.Title, created.Status))
	return created, nil
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, uj UpdateJob) (Job, error) {
	j, err := svc.repo.GetJob(ctx, actor.TenantID, id)
	if err != nil {
		return Job{}, err
	}
	oldMargin := j.MarginPercentage

	changes := applyPatch(&j, uj)
	if len(changes) == 0 {
		return j, nil
	}
	if err := svc.repo.CheckRefs(ctx, actor.TenantID, changedRefs(j, changes)...); err != nil {
		return Job{}, err
	}
	now := time.Now().UTC()
	if uj.IsArchived != nil {
		if j.IsArchived {
			j.ArchivedAt = &now
		} else {
			j.ArchivedAt = nil
		}
	}
	if err := svc.refreshDerived(ctx, &j); err != nil {
		return Job{}, err
	}
	j.UpdatedAt = now

	updated, err := svc.repo.UpdateJob(ctx, j)
	if err != nil {
		return Job{}, remapWriteErr(err, "Job com este codigo ja existe", "Referencia invalida: verifique client_id ou agency_id")
	}

	before, after := changeMaps(changes)
	svc.record(ctx, actor, id, EventFieldUpdate, before, after, describeChanges(changes))

	if isMarginDrop(oldMargin, updated.MarginPercentage) {
		svc.alertMargin(ctx, actor, updated)
	}
	return updated, nil
}

// refs lists the rows of other tables the job points at.
func (j Job) refs() []core.TenantRef {
	return []core.TenantRef{
		{Field: "client_id", Table: "clients", ID: j.ClientID},
		{Field: "agency_id", Table: "agencies", ID: core.StrVal(j.AgencyID)},
		{Field: "contact_id", Table: "contacts", ID: core.StrVal(j.ContactID)},
		{Field: "parent_job_id", Table: "jobs", ID: core.StrVal(j.ParentJobID)},
	}
}

// changedRefs keeps the set refs of `j` whose field is among `changes`.
func changedRefs(j Job, changes []change) []core.TenantRef {
	changed := make(map[string]bool, len(changes))
	for _, c := range changes {
		changed[c.Field] = true
	}
	var out []core.TenantRef
	for _, r := range core.OptionalRefs(j.refs()...) {
		if changed[r.Field] {
			out = append(out, r)
		}
	}
	return out
}

func isMarginDrop(old, cur *float64) bool {
	return cur != nil && *cur < MarginAlertThreshold && (old == nil || *old >= MarginAlertThreshold)
}

func (svc *Service) alertMargin(ctx context.Context, actor core.Actor, j Job) {
	margin := *j.MarginPercentage
	payload := core.JSONMap{
		"job_id":            j.ID,
		"job_code":          j.Code,
		"job_title":         j.Title,
		"margin_percentage": margin,
		"closed_value":      j.ClosedValue,
		"production_cost":   j.ProductionCost,
	}
	key := fmt.Sprintf("wf-margin:%s:%s", j.ID, core.Today())
	svc.enqueue(ctx, actor.TenantID, integration.WorkflowMarginAlert, payload, key)

	svc.notifier.NotifyJobTeam(ctx, actor.TenantID, j.ID, notification.NewNotification{
		Type:      notification.TypeMarginAlert,
		Priority:  notification.PriorityHigh,
		Title:     fmt.Sprintf("Margem baixa: %s", j.Code),
		Body:      fmt.Sprintf("A margem do job %q caiu para %s%%", j.Title, strconv.FormatFloat(margin, 'f', -1, 64)),
		Metadata:  core.JSONMap{"margin_percentage": margin},
		ActionURL: actionURL(j.ID),
	})
}

// Delete soft deletes a job. Parents with active sub-jobs cannot be deleted.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) (Deleted, error) {
	j, err := svc.repo.GetJob(ctx, actor.TenantID, id)
	if err != nil {
		return Deleted{}, err
	}
	if j.IsParentJob {
		n, err := svc.repo.CountActiveSubJobs(ctx, actor.TenantID, id)
		if err != nil {
			return Deleted{}, errors.Wrap(err, "counting sub-jobs")
		}
		if n > 0 {
			return Deleted{}, core.Conflict(fmt.Sprintf("Nao e possivel excluir: existem %d sub-jobs ativos", n))
		}
	}

	now := time.Now().UTC()
	if err := svc.repo.DeleteJob(ctx, actor.TenantID, id, now); err != nil {
		return Deleted{}, errors.Wrap(err, "deleting job")
	}
	svc.record(ctx, actor, id, EventStatusChange, core.JSONMap{"status": j.Status}, core.JSONMap{"deleted_at": now},
		fmt.Sprintf("Job %q excluido (soft delete)", j.Title))
	return Deleted{ID: id, DeletedAt: now}, nil
}

// UpdateStatus moves a job through the pipeline, enforcing the prerequisites of each status.
func (svc *Service) UpdateStatus(ctx context.Context, actor core.Actor, id string, us UpdateStatus) (StatusResult, error) {
	j, err := svc.repo.GetJob(ctx, actor.TenantID, id)
	if err != nil {
		return StatusResult{}, err
	}
	old := j.Status
	if us.Status == old && us.SubStatus == nil {
		return StatusResult{ID: id, Status: old, Message: "Status inalterado"}, nil
	}
	if err := checkTransition(ctx, svc.repo, j, us); err != nil {
		return StatusResult{}, err
	}

	now := time.Now().UTC()
	j.Status = us.Status
	if us.Status == core.JobStatusPosProducao {
		if us.SubStatus != nil {
			j.SubStatus = us.SubStatus
		}
	} else {
		j.SubStatus = nil
	}
	if us.Status == core.JobStatusCancelado {
		j.CancellationReason = us.CancellationReason
		j.CancelledAt = &now
	}
	j.StatusUpdatedAt = &now
	j.StatusUpdatedBy = &actor.UserID
	if err := svc.refreshDerived(ctx, &j); err != nil {
		return StatusResult{}, err
	}
	j.UpdatedAt = now

	updated, err := svc.repo.UpdateJob(ctx, j)
	if err != nil {
		return StatusResult{}, errors.Wrap(err, "updating job status")
	}

	if old != us.Status {
		svc.record(ctx, actor, id, EventStatusChange, core.JSONMap{"status": old}, core.JSONMap{"status": us.Status},
			fmt.Sprintf("Status alterado de %s para %s", old, us.Status))

		svc.notifier.NotifyJobTeam(ctx, actor.TenantID, id, notification.NewNotification{
			Type:      notification.TypeStatusChanged,
			Title:     fmt.Sprintf("Status alterado: %s", us.Status),
			Body:      fmt.Sprintf("O job mudou de %q para %q", old, us.Status),
			Metadata:  core.JSONMap{"old_status": old, "new_status": us.Status},
			ActionURL: actionURL(id),
		})
		svc.enqueue(ctx, actor.TenantID, integration.WorkflowStatusChange, core.JSONMap{
			"job_id":     id,
			"old_status": old,
			"new_status": us.Status,
			"changed_by": actor.Email,
		}, fmt.Sprintf("wf-status:%s:%s:%s", id, old, us.Status))
	}

	return StatusResult{
		ID:              updated.ID,
		Status:          updated.Status,
		SubStatus:       updated.SubStatus,
		StatusUpdatedAt: updated.StatusUpdatedAt,
		StatusUpdatedBy: updated.StatusUpdatedBy,
	}, nil
}

type deliverableCounter interface {
	CountDeliverablesByStatus(ctx context.Context, tenantID, jobID, status string) (int, error)
}

func checkTransition(ctx context.Context, repo deliverableCounter, j Job, us UpdateStatus) error {
	switch us.Status {
	case core.JobStatusAprovadoSelecaoDiretor:
		if j.ApprovalDate == nil || j.ClosedValue == nil {
			return core.BusinessRule("Para aprovar o job, approval_date e closed_value devem estar preenchidos")
		}
	case core.JobStatusCancelado:
		if us.CancellationReason == nil {
			return core.BusinessRule("Motivo de cancelamento e obrigatorio")
		}
	case core.JobStatusFinalizado:
		if j.ActualDeliveryDate == nil {
			return core.BusinessRule("Data de entrega real (actual_delivery_date) deve estar preenchida para finalizar")
		}
	case core.JobStatusEntregue:
		n, err := repo.CountDeliverablesByStatus(ctx, j.TenantID, j.ID, "entregue")
		if err != nil {
			return errors.Wrap(err, "counting delivered deliverables")
		}
		if n == 0 {
			return core.BusinessRule(`Pelo menos 1 entregavel deve ter status "entregue"`)
		}
	case core.JobStatusPausado:
		if j.Status == core.JobStatusFinalizado || j.Status == core.JobStatusCancelado {
			return core.BusinessRule(fmt.Sprintf("Nao e possivel pausar um job com status %q", j.Status))
		}
	}
	return nil
}

// Approve records the commercial approval of a job.
func (svc *Service) Approve(ctx context.Context, actor core.Actor, id string, a Approve) (ApprovalResult, error) {
	j, err := svc.repo.GetJob(ctx, actor.TenantID, id)
	if err != nil {
		return ApprovalResult{}, err
	}
	if j.Status == core.JobStatusCancelado || j.Status == core.JobStatusFinalizado {
		return ApprovalResult{}, core.BusinessRule(fmt.Sprintf("Nao e possivel aprovar um job com status %q", j.Status))
	}

	now := time.Now().UTC()
	old := j.Status
	at := approvalTypeFromAPI(a.ApprovalType)
	j.Status = core.JobStatusAprovadoSelecaoDiretor
	j.ApprovalType = &at
	j.ApprovalDate = &a.ApprovalDate
	j.ClosedValue = &a.ClosedValue
	j.ApprovalDocumentURL = core.NilIfBlank(a.ApprovalDocumentURL)
	j.ApprovedByName = &actor.Email
	j.ApprovedAt = &now
	j.StatusUpdatedAt = &now
	j.StatusUpdatedBy = &actor.UserID
	if err := svc.refreshDerived(ctx, &j); err != nil {
		return ApprovalResult{}, err
	}
	j.UpdatedAt = now

	updated, err := svc.repo.UpdateJob(ctx, j)
	if err != nil {
		return ApprovalResult{}, errors.Wrap(err, "approving job")
	}

	value := strconv.FormatFloat(a.ClosedValue, 'f', 2, 64)
	svc.record(ctx, actor, id, EventApproval,
		core.JSONMap{"status": old},
		core.JSONMap{"status": updated.Status, "approval_type": a.ApprovalType, "closed_value": a.ClosedValue},
		fmt.Sprintf("Job %q aprovado (%s) com valor R$ %s", updated.Title, a.ApprovalType, value))

	svc.notifier.NotifyJobTeam(ctx, actor.TenantID, id, notification.NewNotification{
		Type:      notification.TypeJobApproved,
		Priority:  notification.PriorityHigh,
		Title:     fmt.Sprintf("Job aprovado: %s", updated.Code),
		Body:      fmt.Sprintf("O job %q foi aprovado com valor R$ %s", updated.Title, value),
		Metadata:  core.JSONMap{"closed_value": a.ClosedValue, "approval_type": a.ApprovalType},
		ActionURL: actionURL(id),
	})
	svc.enqueue(ctx, actor.TenantID, integration.WorkflowJobApproved, core.JSONMap{
		"job_id":        id,
		"job_code":      updated.Code,
		"job_title":     updated.Title,
		"closed_value":  a.ClosedValue,
		"approval_type": a.ApprovalType,
		"approved_by":   actor.Email,
	}, fmt.Sprintf("wf-approved:%s", id))

	return ApprovalResult{
		ID:                  updated.ID,
		Status:              updated.Status,
		ApprovalType:        a.ApprovalType,
		ApprovedByName:      updated.ApprovedByName,
		ApprovalDate:        updated.ApprovalDate,
		ClosedValue:         a.ClosedValue,
		ApprovalDocumentURL: updated.ApprovalDocumentURL,
	}, nil
}

func (svc *Service) ListHistory(ctx context.Context, tenantID, jobID string, filter HistoryFilter, page core.PageParams) ([]History, int, error) {
	if _, err := svc.repo.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, 0, err
	}
	return svc.repo.ListHistory(ctx, tenantID, jobID, filter, page)
}

// refreshDerived recomputes the margin and the health score of `j`.
func (svc *Service) refreshDerived(ctx context.Context, j *Job) error {
	n, err := svc.repo.CountTeam(ctx, j.TenantID, j.ID)
	if err != nil {
		return errors.Wrap(err, "counting team")
	}
	j.MarginPercentage = j.ComputeMargin()
	j.HealthScore = j.ComputeHealthScore(n, core.NowFunc())
	return nil
}

// refreshHealth stores the health score of a job after its team changed. Failures are logged.
func (svc *Service) refreshHealth(ctx context.Context, tenantID, jobID string) {
	j, err := svc.repo.GetJob(ctx, tenantID, jobID)
	if err == nil {
		err = svc.refreshDerived(ctx, &j)
	}
	if err == nil {
		err = svc.repo.SetHealthScore(ctx, tenantID, jobID, j.HealthScore)
	}
	if err != nil {
		svc.logger.Error("refreshing health score", errors.Wrap(err, "refreshing health score"), jobID)
	}
}

// record appends a history entry. Failures are logged: history must not fail the change it describes.
func (svc *Service) record(ctx context.Context, actor core.Actor, jobID, eventType string, before, after core.JSONMap, desc string) {
	h := History{
		TenantID:    actor.TenantID,
		JobID:       jobID,
		EventType:   eventType,
		DataBefore:  before,
		DataAfter:   after,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
	if actor.UserID != "" {
		h.UserID = &actor.UserID
	}
	if err := svc.repo.InsertHistory(ctx, h); err != nil {
		svc.logger.Error("recording job history", errors.Wrap(err, "recording job history"), actor)
	}
}

func (svc *Service) enqueue(ctx context.Context, tenantID, workflow string, payload core.JSONMap, key string) {
	if _, err := svc.events.EnqueueWorkflow(ctx, tenantID, workflow, payload, key); err != nil {
		svc.logger.Error("enqueuing workflow", errors.Wrap(err, "enqueuing "+workflow), tenantID)
	}
}

func actionURL(jobID string) *string {
	url := "/jobs/" + jobID
	return &url
}

// remapWriteErr replaces the generic constraint violation messages of the repository.
func remapWriteErr(err error, conflictMsg, refMsg string) error {
	if appErr, ok := core.AsAppError(err); ok {
		switch appErr.Code {
		case core.CodeConflict:
			return core.Conflict(conflictMsg)
		case core.CodeValidation:
			return core.BadRequest(refMsg)
		}
	}
	return err
}

// Record appends a history entry on behalf of the modules acting on a job.
func (svc *Service) Record(ctx context.Context, actor core.Actor, jobID, eventType string, before, after core.JSONMap, desc string) {
	svc.record(ctx, actor, jobID, eventType, before, after, desc)
}
