package financial

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

func (svc *Service) BudgetSummary(ctx context.Context, tenantID, jobID string) (BudgetSummary, error) {
	job, err := svc.repo.JobBudget(ctx, tenantID, jobID)
	if err != nil {
		return BudgetSummary{}, err
	}
	items, err := svc.repo.JobItems(ctx, tenantID, jobID)
	if err != nil {
		return BudgetSummary{}, errors.Wrap(err, "loading job cost items")
	}
	return BuildBudgetSummary(job, items), nil
}

func (svc *Service) SetBudgetMode(ctx context.Context, actor core.Actor, jobID string, bm BudgetModeData) (BudgetModeResult, error) {
	job, err := svc.repo.JobBudget(ctx, actor.TenantID, jobID)
	if err != nil {
		return BudgetModeResult{}, err
	}
	updatedAt, err := svc.repo.SetBudgetMode(ctx, actor.TenantID, jobID, bm.BudgetMode)
	if err != nil {
		return BudgetModeResult{}, errors.Wrap(err, "setting budget mode")
	}
	if job.BudgetMode != bm.BudgetMode {
		svc.history.Record(ctx, actor, jobID, eventFinancialUpdate,
			core.JSONMap{"budget_mode": job.BudgetMode}, core.JSONMap{"budget_mode": bm.BudgetMode},
			fmt.Sprintf("Modo de orcamento alterado: %s -> %s", job.BudgetMode, bm.BudgetMode))
	}
	return BudgetModeResult{JobID: jobID, BudgetMode: bm.BudgetMode, UpdatedAt: updatedAt}, nil
}

// ApplyTemplate creates the header item of every standard section the job does not have yet.
func (svc *Service) ApplyTemplate(ctx context.Context, actor core.Actor, jobID string) (TemplateResult, error) {
	job, err := svc.repo.JobBudget(ctx, actor.TenantID, jobID)
	if err != nil {
		return TemplateResult{}, err
	}
	existing, err := svc.repo.JobItems(ctx, actor.TenantID, jobID)
	if err != nil {
		return TemplateResult{}, errors.Wrap(err, "loading job cost items")
	}

	headers := missingHeaders(job, existing, actor.TenantID, actor.UserID, core.NowFunc().UTC())
	if len(headers) == 0 {
		return TemplateResult{Items: []CostItem{}, Message: "Todas as categorias ja estao presentes no job"}, nil
	}
	created, err := svc.repo.CreateItems(ctx, headers)
	if err != nil {
		return TemplateResult{}, errors.Wrap(err, "creating template headers")
	}
	svc.history.Record(ctx, actor, jobID, eventFinancialUpdate, nil, core.JSONMap{"items_created": len(created)},
		fmt.Sprintf("Template de orcamento aplicado: %d categorias criadas", len(created)))
	return TemplateResult{Created: len(created), Items: created}, nil
}

// ReferenceJobs lists recent jobs of the same type with their cost totals.
func (svc *Service) ReferenceJobs(ctx context.Context, tenantID, jobID string) (References, error) {
	job, err := svc.repo.JobBudget(ctx, tenantID, jobID)
	if err != nil {
		return References{}, err
	}
	jobs, err := svc.repo.SimilarJobs(ctx, tenantID, job.JobType, jobID, referenceExcludedStatuses, referenceJobsLimit)
	if err != nil {
		return References{}, errors.Wrap(err, "selecting reference jobs")
	}
	return References{JobType: job.JobType, ReferenceJobs: jobs}, nil
}

func (svc *Service) Export(ctx context.Context, tenantID, jobID string) (Export, error) {
	job, err := svc.repo.JobBudget(ctx, tenantID, jobID)
	if err != nil {
		return Export{}, err
	}
	items, err := svc.repo.JobItems(ctx, tenantID, jobID)
	if err != nil {
		return Export{}, errors.Wrap(err, "loading job cost items")
	}
	exp, err := BuildExport(job, items, core.NowFunc())
	return exp, errors.Wrap(err, "rendering cost items csv")
}
