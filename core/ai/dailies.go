package ai

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	dailiesMaxTokens  = 1500
	maxDailiesEntries = 30
	maxDailyField     = 500
)

var (
	progressStatuses = []string{"on_track", "at_risk", "behind", "ahead"}
	riskSeverities   = []string{"high", "medium", "low"}
)

func validateDailies(req AnalyzeRequest) error {
	if req.JobID == "" {
		return core.BadRequest("job_id e obrigatorio (UUID)")
	}
	switch n := len(req.DailiesData); {
	case req.DailiesData == nil:
		return core.BadRequest("dailies_data e obrigatorio (array)")
	case n == 0:
		return core.BadRequest("dailies_data deve ter ao menos 1 item")
	case n > maxDailiesEntries:
		return core.BadRequest("dailies_data nao pode ter mais de 30 entradas")
	}
	for i, e := range req.DailiesData {
		if e.ShootingDate == "" {
			return core.BadRequest(fmt.Sprintf("dailies_data[%d].shooting_date e obrigatorio (string YYYY-MM-DD)", i))
		}
		for _, f := range []struct {
			name  string
			value *string
		}{
			{"notes", e.Notes},
			{"weather_notes", e.WeatherNotes},
			{"equipment_issues", e.EquipmentIssues},
			{"talent_notes", e.TalentNotes},
			{"extra_costs", e.ExtraCosts},
			{"general_observations", e.GeneralObservations},
		} {
			if f.value != nil && utf8.RuneCountInString(*f.value) > maxDailyField {
				return core.BadRequest(fmt.Sprintf("Campo %s excede 500 caracteres", f.name))
			}
		}
	}
	return nil
}

// parseAnalysis requires a summary and a progress assessment; unknown statuses fall back to
// at_risk and risks without a description are dropped.
func parseAnalysis(content string) (Analysis, error) {
	var raw struct {
		Summary            interface{} `json:"summary"`
		ProgressAssessment *struct {
			Status               interface{} `json:"status"`
			Explanation          interface{} `json:"explanation"`
			CompletionPercentage interface{} `json:"completion_percentage"`
		} `json:"progress_assessment"`
		Risks           []interface{} `json:"risks"`
		Recommendations []interface{} `json:"recommendations"`
	}
	if err := decodeAnswer(content, &raw); err != nil {
		return Analysis{}, err
	}
	summary, _ := raw.Summary.(string)
	if summary == "" {
		return Analysis{}, errors.New(`campo "summary" ausente ou invalido na resposta da IA`)
	}
	if raw.ProgressAssessment == nil {
		return Analysis{}, errors.New(`campo "progress_assessment" ausente na resposta da IA`)
	}

	pa := raw.ProgressAssessment
	status, _ := pa.Status.(string)
	if !core.StringIn(status, progressStatuses) {
		status = "at_risk"
	}
	explanation, _ := pa.Explanation.(string)
	completion, _ := pa.CompletionPercentage.(float64)

	a := Analysis{
		Summary: summary,
		ProgressAssessment: ProgressAssessment{
			Status:               status,
			Explanation:          explanation,
			CompletionPercentage: math.Min(100, math.Max(0, completion)),
		},
		Risks:           []Risk{},
		Recommendations: []string{},
	}
	for _, item := range raw.Risks {
		r, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		risk := Risk{}
		risk.Severity, _ = r["severity"].(string)
		risk.Description, _ = r["description"].(string)
		risk.Recommendation, _ = r["recommendation"].(string)
		if !core.StringIn(risk.Severity, riskSeverities) {
			risk.Severity = "medium"
		}
		if risk.Description == "" {
			continue
		}
		a.Risks = append(a.Risks, risk)
	}
	for _, item := range raw.Recommendations {
		if s, ok := item.(string); ok && s != "" {
			a.Recommendations = append(a.Recommendations, s)
		}
	}
	return a, nil
}

// AnalyzeDailies assesses the progress of a shoot from the reported dailies.
func (svc *Service) AnalyzeDailies(ctx context.Context, actor core.Actor, req AnalyzeRequest) (Analysis, error) {
	if err := validateDailies(req); err != nil {
		return Analysis{}, err
	}
	if err := svc.limiter.Check(ctx, actor.TenantID, actor.UserID, FeatureDailiesAnalysis); err != nil {
		return Analysis{}, err
	}

	jc, err := svc.builder.JobContext(ctx, actor.TenantID, req.JobID, false)
	if err != nil {
		return Analysis{}, err
	}

	meta := core.JSONMap{"job_id": req.JobID, "prompt_version": PromptVersion}
	resp, elapsed, err := svc.call(ctx, actor, FeatureDailiesAnalysis, CompletionRequest{
		Model:       ModelHaiku,
		System:      dailiesSystemPrompt,
		Messages:    []Message{{Role: "user", Content: dailiesUserPrompt(jc, req.DailiesData, req.DeliverablesStatus)}},
		MaxTokens:   dailiesMaxTokens,
		Temperature: defaultTemperature,
	}, meta)
	if err != nil {
		return Analysis{}, err
	}

	analysis, err := parseAnalysis(resp.Content)
	if err != nil {
		svc.logger.Error("parsing dailies analysis answer", err)
		svc.record(ctx, actor, FeatureDailiesAnalysis, resp, ModelHaiku, elapsed, meta, err)
		return Analysis{}, errUnexpectedFormat
	}

	analysis.AnalysisID = uuid.NewString()
	analysis.JobID = req.JobID
	analysis.TokensUsed = tokensOf(resp)

	meta["analysis_id"] = analysis.AnalysisID
	meta["dailies_count"] = len(req.DailiesData)
	meta["include_deliverables"] = req.DeliverablesStatus
	svc.record(ctx, actor, FeatureDailiesAnalysis, resp, ModelHaiku, elapsed, meta, nil)
	return analysis, nil
}

// DailiesHistory lists the newest analyses run for a job.
func (svc *Service) DailiesHistory(ctx context.Context, tenantID, jobID string) ([]UsageEntry, error) {
	if jobID == "" {
		return nil, core.BadRequest("Parametro job_id e obrigatorio")
	}
	entries, err := svc.repo.ListUsage(ctx, tenantID, FeatureDailiesAnalysis, jobID, historyLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing dailies analyses")
	}
	if entries == nil {
		entries = []UsageEntry{}
	}
	for i := range entries {
		e := &entries[i]
		e.JobID = jobID
		if id, ok := e.Metadata["job_id"].(string); ok && id != "" {
			e.JobID = id
		}
		e.TokensUsed = TokensUsed{Input: e.InputTokens, Output: e.OutputTokens}
	}
	return entries, nil
}
