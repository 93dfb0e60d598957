package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	budgetMaxTokens    = 2000
	budgetSimilarJobs  = 10
	estimateCacheTTL   = 24 * time.Hour
	estimateHistoryMax = 20
)

var errInvalidBudget = core.NewAppError(core.CodeInternal, "Resposta da IA sem orcamento valido. Tente novamente.", http.StatusBadGateway)

type budgetAnswer struct {
	SuggestedBudget *struct {
		Total                 interface{}        `json:"total"`
		Breakdown             map[string]float64 `json:"breakdown"`
		Confidence            string             `json:"confidence"`
		ConfidenceExplanation string             `json:"confidence_explanation"`
	} `json:"suggested_budget"`
	Reasoning string   `json:"reasoning"`
	Warnings  []string `json:"warnings"`
}

// estimateHash identifies identical estimate inputs.
func estimateHash(jobID string, override *BudgetOverride) string {
	if override == nil {
		override = &BudgetOverride{}
	}
	payload, _ := json.Marshal(struct {
		JobID    string          `json:"job_id"`
		Override *BudgetOverride `json:"override"`
	}{jobID, override})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func normalizeConfidence(c string) string {
	switch c {
	case "high", "medium", "low":
		return c
	}
	return "medium"
}

func refsOf(jobs []SimilarJob) []SimilarJobRef {
	refs := make([]SimilarJobRef, len(jobs))
	for i, j := range jobs {
		refs[i] = SimilarJobRef{
			JobID:            j.JobID,
			Title:            j.Title,
			Code:             j.Code,
			ClosedValue:      j.ClosedValue,
			ProductionCost:   j.ProductionCost,
			MarginPercentage: j.MarginPercentage,
			SimilarityScore:  j.SimilarityScore,
		}
	}
	return refs
}

// EstimateBudget suggests a budget for a job from the tenant's finished jobs. Identical requests
// within a day are answered from the stored estimate.
func (svc *Service) EstimateBudget(ctx context.Context, actor core.Actor, req EstimateRequest) (EstimateResult, error) {
	if req.JobID == "" || !isUUID(req.JobID) {
		return EstimateResult{}, core.BadRequest("job_id e obrigatorio (UUID)")
	}
	if err := svc.limiter.Check(ctx, actor.TenantID, actor.UserID, FeatureBudgetEstimate); err != nil {
		return EstimateResult{}, err
	}

	hash := estimateHash(req.JobID, req.OverrideContext)
	cached, err := svc.repo.FindEstimate(ctx, actor.TenantID, hash, core.NowFunc().Add(-estimateCacheTTL))
	switch {
	case err == nil:
		svc.logger.Debug("budget estimate cache hit", map[string]interface{}{"estimate_id": cached.ID})
		id := cached.ID
		explanation := strings.SplitN(cached.Reasoning, "\n", 2)[0]
		return EstimateResult{
			EstimateID: &id,
			JobID:      cached.JobID,
			SuggestedBudget: SuggestedBudget{
				Total:                 cached.SuggestedTotal,
				Breakdown:             cached.Breakdown,
				Confidence:            cached.Confidence,
				ConfidenceExplanation: explanation,
			},
			SimilarJobs: cached.SimilarJobs,
			Reasoning:   cached.Reasoning,
			Warnings:    cached.Warnings,
			TokensUsed:  TokensUsed{Input: cached.InputTokens, Output: cached.OutputTokens},
			Cached:      true,
		}, nil
	case !core.IsNotFound(err):
		return EstimateResult{}, errors.Wrap(err, "looking up cached estimate")
	}

	jc, err := svc.builder.JobContext(ctx, actor.TenantID, req.JobID, true)
	if err != nil {
		return EstimateResult{}, err
	}
	similar, err := svc.builder.SimilarJobs(ctx, actor.TenantID, jc.Job, budgetSimilarJobs)
	if err != nil {
		return EstimateResult{}, err
	}

	meta := core.JSONMap{"job_id": req.JobID, "prompt_version": PromptVersion}
	completion := CompletionRequest{
		Model:       ModelSonnet,
		System:      budgetSystemPrompt,
		Messages:    []Message{{Role: "user", Content: budgetUserPrompt(jc, similar, req.OverrideContext)}},
		MaxTokens:   budgetMaxTokens,
		Temperature: defaultTemperature,
	}
	resp, elapsed, err := svc.call(ctx, actor, FeatureBudgetEstimate, completion, meta)
	if err != nil {
		return EstimateResult{}, err
	}

	var answer budgetAnswer
	if err := decodeAnswer(resp.Content, &answer); err != nil {
		svc.logger.Error("parsing budget estimate answer", err)
		svc.record(ctx, actor, FeatureBudgetEstimate, resp, ModelSonnet, elapsed, meta, err)
		return EstimateResult{}, errUnexpectedFormat
	}
	if answer.SuggestedBudget == nil {
		return EstimateResult{}, errInvalidBudget
	}
	total, ok := answer.SuggestedBudget.Total.(float64)
	if !ok {
		return EstimateResult{}, errInvalidBudget
	}
	confidence := normalizeConfidence(answer.SuggestedBudget.Confidence)
	if answer.Warnings == nil {
		answer.Warnings = []string{}
	}
	refs := refsOf(similar)

	var override core.JSONMap
	if req.OverrideContext != nil {
		raw, _ := json.Marshal(req.OverrideContext)
		_ = json.Unmarshal(raw, &override)
	}

	var estimateID *string
	stored, err := svc.repo.CreateEstimate(ctx, Estimate{
		TenantID:        actor.TenantID,
		JobID:           req.JobID,
		RequestedBy:     actor.UserID,
		InputHash:       hash,
		OverrideContext: override,
		SuggestedTotal:  total,
		Breakdown:       answer.SuggestedBudget.Breakdown,
		Confidence:      confidence,
		Reasoning:       answer.Reasoning,
		SimilarJobs:     refs,
		Warnings:        answer.Warnings,
		Model:           ModelSonnet,
		InputTokens:     resp.InputTokens,
		OutputTokens:    resp.OutputTokens,
		DurationMs:      elapsed.Milliseconds(),
	})
	if err != nil {
		svc.logger.Error("storing budget estimate", err)
	} else {
		estimateID = &stored.ID
		meta["estimate_id"] = stored.ID
	}
	svc.record(ctx, actor, FeatureBudgetEstimate, resp, ModelSonnet, elapsed, meta, nil)

	return EstimateResult{
		EstimateID: estimateID,
		JobID:      req.JobID,
		SuggestedBudget: SuggestedBudget{
			Total:                 total,
			Breakdown:             answer.SuggestedBudget.Breakdown,
			Confidence:            confidence,
			ConfidenceExplanation: answer.SuggestedBudget.ConfidenceExplanation,
		},
		SimilarJobs: refs,
		Reasoning:   answer.Reasoning,
		Warnings:    answer.Warnings,
		TokensUsed:  tokensOf(resp),
	}, nil
}

// EstimateHistory lists the newest estimates of a job.
func (svc *Service) EstimateHistory(ctx context.Context, tenantID, jobID string) ([]Estimate, error) {
	if jobID == "" {
		return nil, core.BadRequest("Parametro job_id e obrigatorio")
	}
	estimates, err := svc.repo.ListEstimates(ctx, tenantID, jobID, estimateHistoryMax)
	if err != nil {
		return nil, errors.Wrap(err, "listing estimates")
	}
	if estimates == nil {
		estimates = []Estimate{}
	}
	for i := range estimates {
		estimates[i].fill()
	}
	return estimates, nil
}
