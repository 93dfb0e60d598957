package ai

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

const jobID = "6f1c2d3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"

var actor = core.Actor{UserID: "u1", TenantID: "t1", Role: core.RoleCoordenador}

type memRepo struct {
	Repository

	mu        sync.Mutex
	jobs      map[string]JobInfo
	finished  []SimilarJob
	people    []RolePerson
	entries   []TeamEntry
	overlaps  []Overlap
	usage     []UsageLog
	tokens    int
	countErr  error
	estimates []Estimate
	convs     map[string]Conversation
	messages  []ConversationMessage
	exchanges int
}

func newMemRepo() *memRepo {
	segment := "varejo"
	return &memRepo{
		jobs: map[string]JobInfo{jobID: {
			ID: jobID, Code: "042", Title: "Campanha Verao", ProjectType: "filme_publicitario",
			ClientSegment: &segment, Status: "pre_producao", Priority: "alta",
		}},
		convs: make(map[string]Conversation),
	}
}

func (r *memRepo) Job(_ context.Context, _, id string) (JobInfo, error) {
	if j, ok := r.jobs[id]; ok {
		return j, nil
	}
	return JobInfo{}, core.NotFound("job")
}

func (r *memRepo) Team(context.Context, string, string) ([]TeamMember, error) {
	rate := 1500.0
	return []TeamMember{{PersonName: "Ana", Role: "diretor", Rate: &rate}}, nil
}

func (r *memRepo) Deliverables(context.Context, string, string) ([]DeliverableInfo, error) {
	return []DeliverableInfo{{Description: "Filme 30s", Status: "pendente"}}, nil
}

func (r *memRepo) ShootingDates(context.Context, string, string) ([]ShootingInfo, error) {
	return nil, errors.New("boom")
}

func (r *memRepo) RecentHistory(context.Context, string, string, int) ([]HistoryInfo, error) {
	return nil, nil
}

func (r *memRepo) FinishedJobs(context.Context, string, string, int) ([]SimilarJob, error) {
	return append([]SimilarJob(nil), r.finished...), nil
}

func (r *memRepo) TenantMetrics(context.Context, string) (TenantMetrics, error) {
	return TenantMetrics{TotalJobs: 10, ActiveJobs: 3, TeamSize: 8}, nil
}

func (r *memRepo) TenantName(context.Context, string) (string, error) {
	return "", nil
}

func (r *memRepo) RolePeople(context.Context, string, string) ([]RolePerson, error) {
	return r.people, nil
}

func (r *memRepo) TeamEntries(context.Context, string, []string) ([]TeamEntry, error) {
	return r.entries, nil
}

func (r *memRepo) Overlaps(context.Context, string, []string, string, string) ([]Overlap, error) {
	return r.overlaps, nil
}

func (r *memRepo) CountUserRequestsSince(context.Context, string, string, time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.usage), r.countErr
}

func (r *memRepo) CountTenantRequestsSince(context.Context, string, time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.usage), r.countErr
}

func (r *memRepo) SumTenantTokensSince(context.Context, string, time.Time) (int, error) {
	return r.tokens, r.countErr
}

func (r *memRepo) InsertUsage(_ context.Context, ul UsageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, ul)
	return nil
}

func (r *memRepo) ListUsage(_ context.Context, _, feature, job string, _ int) ([]UsageEntry, error) {
	var out []UsageEntry
	for i, ul := range r.usage {
		if ul.Feature == feature && ul.Metadata["job_id"] == job {
			out = append(out, UsageEntry{ID: string(rune('a' + i)), InputTokens: ul.InputTokens, OutputTokens: ul.OutputTokens, Metadata: ul.Metadata})
		}
	}
	return out, nil
}

func (r *memRepo) FindEstimate(_ context.Context, _, hash string, since time.Time) (Estimate, error) {
	for _, e := range r.estimates {
		if e.InputHash == hash && e.CreatedAt.After(since) {
			return e, nil
		}
	}
	return Estimate{}, core.NotFound("estimate")
}

func (r *memRepo) CreateEstimate(_ context.Context, e Estimate) (Estimate, error) {
	e.ID = "e1"
	e.CreatedAt = core.NowFunc()
	r.estimates = append(r.estimates, e)
	return e, nil
}

func (r *memRepo) ListEstimates(context.Context, string, string, int) ([]Estimate, error) {
	return r.estimates, nil
}

func (r *memRepo) GetConversation(_ context.Context, _, userID, id string) (Conversation, error) {
	if c, ok := r.convs[id]; ok && c.UserID == userID {
		return c, nil
	}
	return Conversation{}, core.NotFound("conversation")
}

func (r *memRepo) CreateConversation(_ context.Context, c Conversation) (Conversation, error) {
	c.ID = "c1"
	r.convs[c.ID] = c
	return c, nil
}

func (r *memRepo) RecentMessages(_ context.Context, _, convID string, _ int) ([]ConversationMessage, error) {
	return r.ListMessages(context.Background(), "", convID)
}

func (r *memRepo) ListMessages(_ context.Context, _, convID string) ([]ConversationMessage, error) {
	var out []ConversationMessage
	for _, m := range r.messages {
		if m.ConversationID == convID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) InsertMessage(_ context.Context, m ConversationMessage) error {
	r.messages = append(r.messages, m)
	return nil
}

func (r *memRepo) RecordExchange(context.Context, string, string, string, int, int, time.Time) error {
	r.exchanges++
	return nil
}

func (r *memRepo) DeleteConversation(_ context.Context, _, userID, id string, _ time.Time) (bool, error) {
	if c, ok := r.convs[id]; ok && c.UserID == userID {
		delete(r.convs, id)
		return true, nil
	}
	return false, nil
}

type fakeClient struct {
	content string
	err     error
	reqs    []CompletionRequest
}

func (c *fakeClient) Complete(_ context.Context, req CompletionRequest) (Completion, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return Completion{}, c.err
	}
	return Completion{Content: c.content, InputTokens: 100, OutputTokens: 50, Model: req.Model}, nil
}

func (c *fakeClient) Stream(_ context.Context, req CompletionRequest, emit func(StreamEvent) error) (Completion, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return Completion{}, c.err
	}
	_ = emit(StreamEvent{Event: "start", Data: map[string]interface{}{}})
	for _, word := range strings.SplitAfter(c.content, " ") {
		_ = emit(StreamEvent{Event: "delta", Data: map[string]string{"text": word}})
	}
	_ = emit(StreamEvent{Event: "done", Data: map[string]interface{}{"tokens_used": TokensUsed{Input: 100, Output: 50}}})
	return Completion{Content: c.content, InputTokens: 100, OutputTokens: 50}, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func freezeTime(t *testing.T) {
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { core.NowFunc = orig })
}

func requireAppError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	appErr, ok := core.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, status, appErr.Status)
	if msg != "" {
		assert.Equal(t, msg, appErr.Message)
	}
}

const budgetAnswerText = `Segue a estimativa:
{"suggested_budget":{"total":47500,"breakdown":{"production":30000,"post_production":17500},"confidence":"very high","confidence_explanation":"Poucos jobs"},"reasoning":"Base em 1 job.\nSegundo paragrafo.","warnings":["Tipo raro"]}
Fim.`

func TestService_EstimateBudget(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	repo.finished = []SimilarJob{{JobID: "j9", Code: "031", ProjectType: "filme_publicitario", CreatedAt: core.NowFunc()}}
	client := &fakeClient{content: budgetAnswerText}
	svc := NewService(repo, client, nopLogger{})
	ctx := context.Background()

	res, err := svc.EstimateBudget(ctx, actor, EstimateRequest{JobID: jobID})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.NotNil(t, res.EstimateID)
	assert.Equal(t, "e1", *res.EstimateID)
	assert.Equal(t, 47500.0, res.SuggestedBudget.Total)
	assert.Equal(t, "medium", res.SuggestedBudget.Confidence)
	assert.Equal(t, []string{"Tipo raro"}, res.Warnings)
	require.Len(t, res.SimilarJobs, 1)
	assert.Equal(t, 55.0, res.SimilarJobs[0].SimilarityScore)
	assert.Equal(t, TokensUsed{Input: 100, Output: 50}, res.TokensUsed)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, ModelSonnet, client.reqs[0].Model)
	assert.Equal(t, 2000, client.reqs[0].MaxTokens)
	assert.Contains(t, client.reqs[0].Messages[0].Content, "Campanha Verao (042)")
	assert.Contains(t, client.reqs[0].Messages[0].Content, "R$ 1.500")

	require.Len(t, repo.usage, 1)
	assert.Equal(t, UsageSuccess, repo.usage[0].Status)
	assert.Equal(t, "e1", repo.usage[0].Metadata["estimate_id"])

	cached, err := svc.EstimateBudget(ctx, actor, EstimateRequest{JobID: jobID})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, "Base em 1 job.", cached.SuggestedBudget.ConfidenceExplanation)
	assert.Len(t, client.reqs, 1)

	history, err := svc.EstimateHistory(ctx, "t1", jobID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 47500.0, history[0].Budget.Total)
}

func TestService_EstimateBudgetErrors(t *testing.T) {
	freezeTime(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		req        EstimateRequest
		client     *fakeClient
		wantStatus int
		wantMsg    string
		wantUsage  string
	}{
		{"invalid job id", EstimateRequest{JobID: "42"}, &fakeClient{}, http.StatusBadRequest, "job_id e obrigatorio (UUID)", ""},
		{"unknown job", EstimateRequest{JobID: "00000000-0000-4000-8000-000000000000"}, &fakeClient{}, http.StatusNotFound, "Job nao encontrado", ""},
		{"no json", EstimateRequest{JobID: jobID}, &fakeClient{content: "desculpe"}, http.StatusBadGateway,
			"A IA retornou uma resposta em formato inesperado. Tente novamente.", UsageError},
		{"total not a number", EstimateRequest{JobID: jobID}, &fakeClient{content: `{"suggested_budget":{"total":"muito"}}`}, http.StatusBadGateway,
			"Resposta da IA sem orcamento valido. Tente novamente.", ""},
		{"timeout", EstimateRequest{JobID: jobID}, &fakeClient{err: core.NewAppError(core.CodeInternal, "Claude API timeout apos 30000ms", http.StatusGatewayTimeout)},
			http.StatusGatewayTimeout, "", UsageTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := NewService(repo, tc.client, nopLogger{})
			_, err := svc.EstimateBudget(ctx, actor, tc.req)
			requireAppError(t, err, tc.wantStatus, tc.wantMsg)
			if tc.wantUsage != "" {
				require.Len(t, repo.usage, 1)
				assert.Equal(t, tc.wantUsage, repo.usage[0].Status)
				assert.NotNil(t, repo.usage[0].ErrorMessage)
			}
		})
	}
}

func TestService_EstimateHistoryRequiresJob(t *testing.T) {
	svc := NewService(newMemRepo(), &fakeClient{}, nopLogger{})
	_, err := svc.EstimateHistory(context.Background(), "t1", "")
	requireAppError(t, err, http.StatusBadRequest, "Parametro job_id e obrigatorio")
}

func TestValidateMatch(t *testing.T) {
	intp := func(i int) *int { return &i }
	neg := -1.0
	tests := []struct {
		name      string
		req       MatchRequest
		wantLimit int
		wantMsg   string
	}{
		{"defaults", MatchRequest{JobID: jobID, Role: " editor "}, 5, ""},
		{"capped", MatchRequest{JobID: jobID, Role: "editor", Limit: intp(50)}, 10, ""},
		{"missing job", MatchRequest{Role: "editor"}, 0, "job_id e obrigatorio (UUID)"},
		{"blank role", MatchRequest{JobID: jobID, Role: "  "}, 0, "role e obrigatorio (string)"},
		{"negative rate", MatchRequest{JobID: jobID, Role: "editor", MaxRate: &neg}, 0, "max_rate deve ser um numero positivo"},
		{"zero limit", MatchRequest{JobID: jobID, Role: "editor", Limit: intp(0)}, 0, "limit deve ser inteiro entre 1 e 10"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			limit, err := validateMatch(&tc.req)
			if tc.wantMsg != "" {
				requireAppError(t, err, http.StatusBadRequest, tc.wantMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, "editor", tc.req.Role)
		})
	}
}

func TestService_MatchFreelancers(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	repo.people = []RolePerson{{ID: "p1", FullName: "Bia"}, {ID: "p2", FullName: "Caio"}}
	repo.entries = []TeamEntry{{PersonID: "p2", JobType: "filme_publicitario", CreatedAt: core.NowFunc()}}
	client := &fakeClient{content: `{"ranked_candidates":[
		{"person_id":"p2","match_score":150,"match_reasons":[]},
		{"person_id":"ghost","match_score":90,"match_reasons":["x"]},
		{"person_id":"p1","match_score":61.6,"match_reasons":["Disponivel no periodo"]}
	],"reasoning":"Pool pequeno."}`}
	svc := NewService(repo, client, nopLogger{})
	limit := 1

	res, err := svc.MatchFreelancers(context.Background(), actor, MatchRequest{JobID: jobID, Role: "editor", Limit: &limit})
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	s := res.Suggestions[0]
	assert.Equal(t, "p2", s.PersonID)
	assert.Equal(t, 100, s.MatchScore)
	assert.Equal(t, []string{"Candidato avaliado pela IA"}, s.MatchReasons)
	assert.True(t, s.Availability.IsAvailable)
	assert.Equal(t, 1, s.PastPerformance.JobsWithSameType)
	assert.Equal(t, "Pool pequeno.", res.Reasoning)

	require.Len(t, client.reqs, 1)
	assert.Contains(t, client.reqs[0].Messages[0].Content, "| 1 | p2 | Caio |")
	require.Len(t, repo.usage, 1)
	assert.Equal(t, 1, repo.usage[0].Metadata["suggestions_count"])
}

func TestService_MatchFreelancersWithoutCandidates(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(newMemRepo(), client, nopLogger{})

	res, err := svc.MatchFreelancers(context.Background(), actor, MatchRequest{JobID: jobID, Role: "gaffer"})
	require.NoError(t, err)
	assert.Empty(t, res.Suggestions)
	assert.NotNil(t, res.Suggestions)
	assert.Equal(t, `Nenhum freelancer encontrado para a funcao "gaffer" neste tenant.`, res.Reasoning)
	assert.Empty(t, client.reqs)
}

func TestParseMatchAnswer_Invalid(t *testing.T) {
	_, err := parseMatchAnswer(`{"reasoning":"x"}`, nil)
	assert.Error(t, err)
	_, err = parseMatchAnswer(`{"ranked_candidates":[]}`, nil)
	assert.Error(t, err)
}

func TestValidateDailies(t *testing.T) {
	long := strings.Repeat("a", 501)
	many := make([]DailyEntry, 31)
	for i := range many {
		many[i].ShootingDate = "2026-03-01"
	}
	tests := []struct {
		name    string
		req     AnalyzeRequest
		wantMsg string
	}{
		{"missing data", AnalyzeRequest{JobID: jobID}, "dailies_data e obrigatorio (array)"},
		{"empty data", AnalyzeRequest{JobID: jobID, DailiesData: []DailyEntry{}}, "dailies_data deve ter ao menos 1 item"},
		{"too many", AnalyzeRequest{JobID: jobID, DailiesData: many}, "dailies_data nao pode ter mais de 30 entradas"},
		{"missing date", AnalyzeRequest{JobID: jobID, DailiesData: []DailyEntry{{ShootingDate: "2026-03-01"}, {}}},
			"dailies_data[1].shooting_date e obrigatorio (string YYYY-MM-DD)"},
		{"long field", AnalyzeRequest{JobID: jobID, DailiesData: []DailyEntry{{ShootingDate: "2026-03-01", TalentNotes: &long}}},
			"Campo talent_notes excede 500 caracteres"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			requireAppError(t, validateDailies(tc.req), http.StatusBadRequest, tc.wantMsg)
		})
	}
}

func TestService_AnalyzeDailies(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	client := &fakeClient{content: `{"summary":"Duas diarias concluidas.","progress_assessment":{"status":"great","explanation":"ok","completion_percentage":140},
		"risks":[{"severity":"critical","description":"Chuva prevista"},{"severity":"low"}],"recommendations":["Reservar gerador",""]}`}
	svc := NewService(repo, client, nopLogger{})
	planned, done := 10, 7

	a, err := svc.AnalyzeDailies(context.Background(), actor, AnalyzeRequest{
		JobID:       jobID,
		DailiesData: []DailyEntry{{ShootingDate: "2026-03-10", ScenesPlanned: &planned, ScenesCompleted: &done}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.AnalysisID)
	assert.Equal(t, "at_risk", a.ProgressAssessment.Status)
	assert.Equal(t, 100.0, a.ProgressAssessment.CompletionPercentage)
	assert.Equal(t, []Risk{{Severity: "medium", Description: "Chuva prevista"}}, a.Risks)
	assert.Equal(t, []string{"Reservar gerador"}, a.Recommendations)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, ModelHaiku, client.reqs[0].Model)
	assert.Contains(t, client.reqs[0].Messages[0].Content, "Percentual de conclusao baseado em cenas: 70%")
	assert.NotContains(t, client.reqs[0].Messages[0].Content, "Entregaveis do job")

	history, err := svc.DailiesHistory(context.Background(), "t1", jobID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, jobID, history[0].JobID)
	assert.Equal(t, a.AnalysisID, history[0].Metadata["analysis_id"])
}

func TestValidateChat(t *testing.T) {
	tests := []struct {
		msg     string
		wantMsg string
	}{
		{"", `Campo "message" e obrigatorio (string)`},
		{"   ", `Campo "message" nao pode ser vazio`},
		{strings.Repeat("é", 2001), "Mensagem excede o limite de 2000 caracteres (2001)"},
	}
	for _, tc := range tests {
		req := ChatRequest{Message: tc.msg}
		requireAppError(t, validateChat(&req), http.StatusBadRequest, tc.wantMsg)
	}

	req := ChatRequest{Message: "  oi  "}
	require.NoError(t, validateChat(&req))
	assert.Equal(t, "oi", req.Message)
}

func TestService_Chat(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	client := &fakeClient{content: "O job esta em pre producao."}
	svc := NewService(repo, client, nopLogger{})

	var events []StreamEvent
	err := svc.Chat(context.Background(), actor, ChatRequest{
		Message: "Qual a margem do job?",
		Context: &ChatContext{JobID: core.StrPtr(jobID)},
	}, func(ev StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	require.True(t, len(events) >= 3)
	assert.Equal(t, "start", events[0].Event)
	start := events[0].Data.(map[string]string)
	assert.Equal(t, "c1", start["conversation_id"])
	assert.NotEmpty(t, start["message_id"])
	assert.Equal(t, "delta", events[1].Event)
	assert.Equal(t, "done", events[len(events)-1].Event)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, ModelSonnet, client.reqs[0].Model)
	assert.Equal(t, 3000, client.reqs[0].MaxTokens)
	assert.Contains(t, client.reqs[0].System, "ELLA, a assistente de producao inteligente da Ellah Filmes")
	assert.Contains(t, client.reqs[0].System, "NAO exponha dados financeiros")

	assert.Equal(t, "Qual a margem do job?", repo.convs["c1"].Title)
	require.Len(t, repo.messages, 2)
	assert.Equal(t, "assistant", repo.messages[1].Role)
	assert.Equal(t, start["message_id"], repo.messages[1].ID)
	assert.Equal(t, "O job esta em pre producao.", repo.messages[1].Content)
	assert.Equal(t, 1, repo.exchanges)
	require.Len(t, repo.usage, 1)
	assert.Equal(t, true, repo.usage[0].Metadata["escalated_to_sonnet"])
}

func TestService_ChatSync(t *testing.T) {
	freezeTime(t)
	repo := newMemRepo()
	repo.convs["c9"] = Conversation{ID: "c9", UserID: "u1"}
	repo.messages = []ConversationMessage{
		{ConversationID: "c9", Role: "user", Content: "oi"},
		{ConversationID: "c9", Role: "assistant", Content: "Ola!"},
	}
	client := &fakeClient{content: "Tudo certo."}
	svc := NewService(repo, client, nopLogger{})
	ctx := context.Background()

	res, err := svc.ChatSync(ctx, actor, ChatRequest{ConversationID: core.StrPtr("c9"), Message: "status?"})
	require.NoError(t, err)
	assert.Equal(t, "c9", res.ConversationID)
	assert.Equal(t, "Tudo certo.", res.Response)
	assert.NotNil(t, res.Sources)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, ModelHaiku, client.reqs[0].Model)
	assert.Equal(t, []Message{{"user", "oi"}, {"assistant", "Ola!"}, {"user", "status?"}}, client.reqs[0].Messages)

	_, err = svc.ChatSync(ctx, actor, ChatRequest{ConversationID: core.StrPtr("nope"), Message: "oi"})
	requireAppError(t, err, http.StatusNotFound, "Conversa nao encontrada")
}

func TestService_Conversations(t *testing.T) {
	repo := newMemRepo()
	repo.convs["c9"] = Conversation{ID: "c9", UserID: "u1"}
	svc := NewService(repo, &fakeClient{}, nopLogger{})
	ctx := context.Background()

	detail, err := svc.GetConversation(ctx, actor, "c9")
	require.NoError(t, err)
	assert.NotNil(t, detail.Messages)

	_, err = svc.GetConversation(ctx, core.Actor{UserID: "u2", TenantID: "t1"}, "c9")
	requireAppError(t, err, http.StatusNotFound, "Conversa nao encontrada")

	require.NoError(t, svc.DeleteConversation(ctx, actor, "c9"))
	requireAppError(t, svc.DeleteConversation(ctx, actor, "c9"), http.StatusNotFound, "Conversa nao encontrada")
}
