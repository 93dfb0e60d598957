package job

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/notification"
)

func (svc *Service) ListTeam(ctx context.Context, tenantID, jobID string) ([]TeamMember, error) {
	if _, err := svc.repo.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return svc.repo.ListTeam(ctx, tenantID, jobID)
}

// AddTeamMember staffs a person on a job. Shooting date clashes with other jobs are returned as warnings.
func (svc *Service) AddTeamMember(ctx context.Context, actor core.Actor, jobID string, data TeamMemberData) (TeamMember, []Warning, error) {
	j, err := svc.repo.GetJob(ctx, actor.TenantID, jobID)
	if err != nil {
		return TeamMember{}, nil, err
	}

	now := time.Now().UTC()
	m := TeamMember{TenantID: actor.TenantID, JobID: jobID, HiringStatus: "orcado", CreatedAt: now, UpdatedAt: now}
	data.apply(&m)
	if err := svc.repo.CheckRefs(ctx, actor.TenantID, m.personRef()); err != nil {
		return TeamMember{}, nil, err
	}
	m, err = svc.repo.AddTeamMember(ctx, m)
	if err != nil {
		return TeamMember{}, nil, remapWriteErr(err, "Esta pessoa ja tem esta funcao neste job", "person_id invalido")
	}

	conflicts, err := svc.repo.ScheduleConflicts(ctx, actor.TenantID, jobID, m.PersonID)
	if err != nil {
		svc.logger.Warn("checking schedule conflicts", errors.Wrap(err, "checking schedule conflicts"), actor)
	}
	warnings := make([]Warning, 0, len(conflicts))
	for _, c := range conflicts {
		warnings = append(warnings, Warning{
			Code:    "SCHEDULE_CONFLICT",
			Message: fmt.Sprintf("%s esta alocado em %q em data(s) conflitante(s)", memberName(m), c.JobTitle),
		})
	}

	svc.record(ctx, actor, jobID, EventTeamChange, nil,
		core.JSONMap{"person_id": m.PersonID, "role": m.Role, "fee": m.Fee},
		fmt.Sprintf("%s adicionado como %s", memberName(m), m.Role))

	if m.ProfileID != nil {
		svc.notifier.NotifyUser(ctx, actor.TenantID, *m.ProfileID, notification.NewNotification{
			Type:      notification.TypeTeamAdded,
			Title:     fmt.Sprintf("Voce foi adicionado ao job %s", j.Code),
			Body:      fmt.Sprintf("Funcao: %s no job %q", m.Role, j.Title),
			Metadata:  core.JSONMap{"role": m.Role},
			ActionURL: actionURL(jobID),
			JobID:     &jobID,
		})
	}
	svc.refreshHealth(ctx, actor.TenantID, jobID)
	return m, warnings, nil
}

func (svc *Service) UpdateTeamMember(ctx context.Context, actor core.Actor, jobID, id string, data TeamMemberData) (TeamMember, error) {
	m, err := svc.repo.GetTeamMember(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return TeamMember{}, err
	}
	before := core.JSONMap{"role": m.Role, "fee": m.Fee, "hiring_status": m.HiringStatus}
	data.apply(&m)
	if data.PersonID != nil {
		if err := svc.repo.CheckRefs(ctx, actor.TenantID, m.personRef()); err != nil {
			return TeamMember{}, err
		}
	}
	m.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateTeamMember(ctx, m)
	if err != nil {
		return TeamMember{}, remapWriteErr(err, "Esta pessoa ja tem esta funcao neste job", "person_id invalido")
	}
	svc.record(ctx, actor, jobID, EventTeamChange, before,
		core.JSONMap{"role": updated.Role, "fee": updated.Fee, "hiring_status": updated.HiringStatus},
		fmt.Sprintf("Dados de %s atualizados", memberName(updated)))
	return updated, nil
}

func (svc *Service) RemoveTeamMember(ctx context.Context, actor core.Actor, jobID, id string) (Deleted, error) {
	m, err := svc.repo.GetTeamMember(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return Deleted{}, err
	}
	now := time.Now().UTC()
	if err := svc.repo.RemoveTeamMember(ctx, actor.TenantID, id, now); err != nil {
		return Deleted{}, errors.Wrap(err, "removing team member")
	}
	svc.record(ctx, actor, jobID, EventTeamChange, core.JSONMap{"person_id": m.PersonID, "role": m.Role}, nil,
		fmt.Sprintf("%s (%s) removido da equipe", memberName(m), m.Role))
	svc.refreshHealth(ctx, actor.TenantID, jobID)
	return Deleted{ID: id, DeletedAt: now}, nil
}

func (m TeamMember) personRef() core.TenantRef {
	return core.TenantRef{Field: "person_id", Table: "people", ID: m.PersonID}
}

func memberName(m TeamMember) string {
	if m.PersonName != nil {
		return *m.PersonName
	}
	return m.PersonID
}

func (svc *Service) ListDeliverables(ctx context.Context, tenantID, jobID string) ([]Deliverable, error) {
	if _, err := svc.repo.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return svc.repo.ListDeliverables(ctx, tenantID, jobID)
}

func (svc *Service) CreateDeliverable(ctx context.Context, actor core.Actor, jobID string, data DeliverableData) (Deliverable, error) {
	if _, err := svc.repo.GetJob(ctx, actor.TenantID, jobID); err != nil {
		return Deliverable{}, err
	}
	now := time.Now().UTC()
	d := Deliverable{TenantID: actor.TenantID, JobID: jobID, Status: "pendente", Version: 1, CreatedAt: now, UpdatedAt: now}
	data.apply(&d)
	markDelivered(&d)

	created, err := svc.repo.CreateDeliverable(ctx, d)
	if err != nil {
		return Deliverable{}, errors.Wrap(err, "creating deliverable")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate, nil, core.JSONMap{"deliverable_id": created.ID},
		fmt.Sprintf("Entregavel %q adicionado", created.Description))
	return created, nil
}

func (svc *Service) UpdateDeliverable(ctx context.Context, actor core.Actor, jobID, id string, data DeliverableData) (Deliverable, error) {
	d, err := svc.repo.GetDeliverable(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return Deliverable{}, err
	}
	oldStatus := d.Status
	data.apply(&d)
	markDelivered(&d)
	d.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateDeliverable(ctx, d)
	if err != nil {
		return Deliverable{}, errors.Wrap(err, "updating deliverable")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate,
		core.JSONMap{"deliverable_id": id, "status": oldStatus},
		core.JSONMap{"deliverable_id": id, "status": updated.Status},
		fmt.Sprintf("Entregavel %q atualizado", updated.Description))
	return updated, nil
}

// markDelivered stamps today's date on deliverables marked as delivered without a date.
func markDelivered(d *Deliverable) {
	if d.Status == "entregue" && d.DeliveryDate == nil {
		today := core.Today()
		d.DeliveryDate = &today
	}
}

func (svc *Service) DeleteDeliverable(ctx context.Context, actor core.Actor, jobID, id string) (Deleted, error) {
	d, err := svc.repo.GetDeliverable(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return Deleted{}, err
	}
	now := time.Now().UTC()
	if err := svc.repo.DeleteDeliverable(ctx, actor.TenantID, id, now); err != nil {
		return Deleted{}, errors.Wrap(err, "deleting deliverable")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate, core.JSONMap{"deliverable_id": id}, nil,
		fmt.Sprintf("Entregavel %q removido", d.Description))
	return Deleted{ID: id, DeletedAt: now}, nil
}

func (svc *Service) ListShootingDates(ctx context.Context, tenantID, jobID string) ([]ShootingDate, error) {
	if _, err := svc.repo.GetJob(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return svc.repo.ListShootingDates(ctx, tenantID, jobID)
}

func (svc *Service) CreateShootingDate(ctx context.Context, actor core.Actor, jobID string, data ShootingDateData) (ShootingDate, error) {
	if _, err := svc.repo.GetJob(ctx, actor.TenantID, jobID); err != nil {
		return ShootingDate{}, err
	}
	now := time.Now().UTC()
	d := ShootingDate{TenantID: actor.TenantID, JobID: jobID, CreatedAt: now, UpdatedAt: now}
	data.apply(&d)
	if err := checkTimes(d); err != nil {
		return ShootingDate{}, err
	}

	created, err := svc.repo.CreateShootingDate(ctx, d)
	if err != nil {
		return ShootingDate{}, errors.Wrap(err, "creating shooting date")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate, nil, core.JSONMap{"shooting_date": created.ShootingDate},
		fmt.Sprintf("Diaria de filmagem %s adicionada", created.ShootingDate))
	return created, nil
}

func (svc *Service) UpdateShootingDate(ctx context.Context, actor core.Actor, jobID, id string, data ShootingDateData) (ShootingDate, error) {
	d, err := svc.repo.GetShootingDate(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return ShootingDate{}, err
	}
	before := d.ShootingDate
	data.apply(&d)
	if err := checkTimes(d); err != nil {
		return ShootingDate{}, err
	}
	d.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdateShootingDate(ctx, d)
	if err != nil {
		return ShootingDate{}, errors.Wrap(err, "updating shooting date")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate,
		core.JSONMap{"shooting_date": before}, core.JSONMap{"shooting_date": updated.ShootingDate},
		fmt.Sprintf("Diaria de filmagem %s atualizada", updated.ShootingDate))
	return updated, nil
}

func (svc *Service) DeleteShootingDate(ctx context.Context, actor core.Actor, jobID, id string) (Deleted, error) {
	d, err := svc.repo.GetShootingDate(ctx, actor.TenantID, jobID, id)
	if err != nil {
		return Deleted{}, err
	}
	now := time.Now().UTC()
	if err := svc.repo.DeleteShootingDate(ctx, actor.TenantID, id, now); err != nil {
		return Deleted{}, errors.Wrap(err, "deleting shooting date")
	}
	svc.record(ctx, actor, jobID, EventFieldUpdate, core.JSONMap{"shooting_date": d.ShootingDate}, nil,
		fmt.Sprintf("Diaria de filmagem %s removida", d.ShootingDate))
	return Deleted{ID: id, DeletedAt: now}, nil
}

// checkTimes rejects shooting dates ending before they start. HH:MM strings compare lexically.
func checkTimes(d ShootingDate) error {
	if d.StartTime != nil && d.EndTime != nil && *d.EndTime < *d.StartTime {
		return core.NewFieldError("end_time", "end_time deve ser posterior a start_time")
	}
	return nil
}
