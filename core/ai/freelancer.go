package ai

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	matchMaxTokens    = 2000
	defaultMatchLimit = 5
	maxMatchLimit     = 10
)

type rankedCandidate struct {
	PersonID     string
	MatchScore   int
	MatchReasons []string
}

type matchAnswer struct {
	RankedCandidates []rankedCandidate
	Reasoning        string
}

// parseMatchAnswer keeps the candidates the model was given, clamps their scores to [0, 100] and
// fills missing reasons.
func parseMatchAnswer(content string, known map[string]Candidate) (matchAnswer, error) {
	var raw struct {
		RankedCandidates *[]map[string]interface{} `json:"ranked_candidates"`
		Reasoning        interface{}               `json:"reasoning"`
	}
	if err := decodeAnswer(content, &raw); err != nil {
		return matchAnswer{}, err
	}
	if raw.RankedCandidates == nil {
		return matchAnswer{}, errors.New(`campo "ranked_candidates" ausente ou nao e um array`)
	}
	reasoning, ok := raw.Reasoning.(string)
	if !ok || reasoning == "" {
		return matchAnswer{}, errors.New(`campo "reasoning" ausente ou invalido`)
	}

	answer := matchAnswer{Reasoning: reasoning, RankedCandidates: []rankedCandidate{}}
	for _, item := range *raw.RankedCandidates {
		id, _ := item["person_id"].(string)
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			continue
		}
		score, _ := item["match_score"].(float64)
		score = math.Min(100, math.Max(0, math.Round(score)))

		var reasons []string
		if list, ok := item["match_reasons"].([]interface{}); ok {
			for _, r := range list {
				if s, ok := r.(string); ok && s != "" {
					reasons = append(reasons, s)
				}
			}
		}
		if len(reasons) == 0 {
			reasons = []string{"Candidato avaliado pela IA"}
		}
		answer.RankedCandidates = append(answer.RankedCandidates, rankedCandidate{
			PersonID:     id,
			MatchScore:   int(score),
			MatchReasons: reasons,
		})
	}
	return answer, nil
}

func validateMatch(req *MatchRequest) (int, error) {
	if req.JobID == "" {
		return 0, core.BadRequest("job_id e obrigatorio (UUID)")
	}
	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		return 0, core.BadRequest("role e obrigatorio (string)")
	}
	if req.MaxRate != nil && *req.MaxRate <= 0 {
		return 0, core.BadRequest("max_rate deve ser um numero positivo")
	}
	limit := defaultMatchLimit
	if req.Limit != nil {
		if *req.Limit < 1 {
			return 0, core.BadRequest("limit deve ser inteiro entre 1 e 10")
		}
		limit = *req.Limit
		if limit > maxMatchLimit {
			limit = maxMatchLimit
		}
	}
	return limit, nil
}

// MatchFreelancers ranks the people of the tenant fit for a role on a job. Availability is checked
// against the preferred period when one is given.
func (svc *Service) MatchFreelancers(ctx context.Context, actor core.Actor, req MatchRequest) (MatchResult, error) {
	limit, err := validateMatch(&req)
	if err != nil {
		return MatchResult{}, err
	}
	if err := svc.limiter.Check(ctx, actor.TenantID, actor.UserID, FeatureFreelancerMatch); err != nil {
		return MatchResult{}, err
	}

	jc, err := svc.builder.JobContext(ctx, actor.TenantID, req.JobID, false)
	if err != nil {
		return MatchResult{}, err
	}
	candidates, err := svc.builder.Candidates(ctx, actor.TenantID, req.Role, req.PreferredStart, req.PreferredEnd, jc.Job.ProjectType)
	if err != nil {
		return MatchResult{}, err
	}
	svc.logger.Debug("freelancer candidates loaded", map[string]interface{}{"role": req.Role, "count": len(candidates)})

	if len(candidates) == 0 {
		return MatchResult{
			Suggestions: []Suggestion{},
			Reasoning:   fmt.Sprintf("Nenhum freelancer encontrado para a funcao %q neste tenant.", req.Role),
		}, nil
	}

	meta := core.JSONMap{
		"job_id":            req.JobID,
		"role":              req.Role,
		"prompt_version":    PromptVersion,
		"candidates_count":  len(candidates),
		"suggestions_count": 0,
	}
	resp, elapsed, err := svc.call(ctx, actor, FeatureFreelancerMatch, CompletionRequest{
		Model:       ModelSonnet,
		System:      freelancerSystemPrompt,
		Messages:    []Message{{Role: "user", Content: freelancerUserPrompt(jc.Job, req, candidates)}},
		MaxTokens:   matchMaxTokens,
		Temperature: defaultTemperature,
	}, meta)
	if err != nil {
		return MatchResult{}, err
	}

	known := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		known[c.PersonID] = c
	}
	answer, err := parseMatchAnswer(resp.Content, known)
	if err != nil {
		svc.logger.Error("parsing freelancer match answer", err)
		svc.record(ctx, actor, FeatureFreelancerMatch, resp, ModelSonnet, elapsed, meta, err)
		return MatchResult{}, errUnexpectedFormat
	}

	suggestions := make([]Suggestion, 0, len(answer.RankedCandidates))
	for _, rc := range answer.RankedCandidates {
		c := known[rc.PersonID]
		suggestions = append(suggestions, Suggestion{
			PersonID:     c.PersonID,
			FullName:     c.FullName,
			DefaultRole:  c.DefaultRole,
			DefaultRate:  c.DefaultRate,
			IsInternal:   c.IsInternal,
			MatchScore:   rc.MatchScore,
			MatchReasons: rc.MatchReasons,
			Availability: Availability{IsAvailable: len(c.Conflicts) == 0, Conflicts: c.Conflicts},
			PastPerformance: PastPerformance{
				TotalJobs:         c.TotalJobs,
				JobsWithSameType:  c.JobsSameType,
				AvgJobHealthScore: c.AvgHealthScore,
				LastJobDate:       c.LastJobDate,
			},
		})
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}

	meta["suggestions_count"] = len(suggestions)
	svc.record(ctx, actor, FeatureFreelancerMatch, resp, ModelSonnet, elapsed, meta, nil)

	return MatchResult{
		Suggestions: suggestions,
		Reasoning:   answer.Reasoning,
		TokensUsed:  tokensOf(resp),
	}, nil
}
