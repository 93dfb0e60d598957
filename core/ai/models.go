package ai

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/ellahos/ellahos/core"
)

// Models.
const (
	ModelSonnet = "claude-sonnet-4-20250514"
	ModelHaiku  = "claude-haiku-4-20250514"
)

// Features, as recorded in the usage log.
const (
	FeatureBudgetEstimate  = "budget_estimate"
	FeatureCopilot         = "copilot"
	FeatureDailiesAnalysis = "dailies_analysis"
	FeatureFreelancerMatch = "freelancer_match"
)

// Usage statuses.
const (
	UsageSuccess = "success"
	UsageError   = "error"
	UsageTimeout = "timeout"
)

type price struct{ input, output float64 }

// pricing is in USD per million tokens.
var pricing = map[string]price{
	ModelSonnet: {input: 3.0, output: 15.0},
	ModelHaiku:  {input: 0.8, output: 4.0},
}

// EstimateCost returns the USD cost of a call.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p := pricing[model]
	return float64(inputTokens)/1e6*p.input + float64(outputTokens)/1e6*p.output
}

// Claude API

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
	StopReason   string
	Model        string
}

type TokensUsed struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// StreamEvent is one event of a streamed answer: `start`, `delta` or `done`.
type StreamEvent struct {
	Event string
	Data  interface{}
}

// Usage

type UsageLog struct {
	TenantID         string
	UserID           string
	Feature          string
	Model            string
	InputTokens      int
	OutputTokens     int
	EstimatedCostUSD float64
	DurationMs       int64
	Status           string
	ErrorMessage     *string
	Metadata         core.JSONMap
}

type Limits struct {
	MaxRequestsPerHourUser   int `json:"max_requests_per_hour_user"`
	MaxRequestsPerHourTenant int `json:"max_requests_per_hour_tenant"`
	MaxTokensPerDayTenant    int `json:"max_tokens_per_day_tenant"`
}

var DefaultLimits = Limits{
	MaxRequestsPerHourUser:   60,
	MaxRequestsPerHourTenant: 500,
	MaxTokensPerDayTenant:    500000,
}

type UsageSummary struct {
	UserRequestsLastHour   int    `json:"user_requests_last_hour"`
	TenantRequestsLastHour int    `json:"tenant_requests_last_hour"`
	TenantTokensToday      int    `json:"tenant_tokens_today"`
	Limits                 Limits `json:"limits"`
}

// Context

type SimilarJob struct {
	JobID             string   `json:"job_id" db:"id"`
	Title             string   `json:"title" db:"title"`
	Code              string   `json:"code" db:"code"`
	ProjectType       string   `json:"project_type" db:"job_type"`
	ClientSegment     *string  `json:"client_segment" db:"segment"`
	ComplexityLevel   *string  `json:"complexity_level" db:"complexity_level"`
	ClosedValue       *float64 `json:"closed_value" db:"closed_value"`
	ProductionCost    *float64 `json:"production_cost" db:"production_cost"`
	MarginPercentage  *float64 `json:"margin_percentage" db:"margin_percentage"`
	DeliverablesCount int      `json:"deliverables_count" db:"deliverables_count"`
	TeamSize          int      `json:"team_size" db:"team_size"`
	// SimilarityScore is in [0, 100].
	SimilarityScore float64   `json:"similarity_score" db:"-"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type JobInfo struct {
	ID                   string         `json:"id" db:"id"`
	Code                 string         `json:"code" db:"code"`
	Title                string         `json:"title" db:"title"`
	ProjectType          string         `json:"project_type" db:"job_type"`
	ClientSegment        *string        `json:"client_segment" db:"segment"`
	ComplexityLevel      *string        `json:"complexity_level" db:"complexity_level"`
	Status               string         `json:"status" db:"status"`
	Priority             string         `json:"priority" db:"priority"`
	BriefingText         *string        `json:"briefing_text" db:"briefing_text"`
	Tags                 pq.StringArray `json:"tags" db:"tags"`
	MediaType            *string        `json:"media_type" db:"media_type"`
	ExpectedDeliveryDate *string        `json:"expected_delivery_date" db:"expected_delivery_date"`
	ActualDeliveryDate   *string        `json:"actual_delivery_date" db:"actual_delivery_date"`
	ClosedValue          *float64       `json:"closed_value" db:"closed_value"`
	ProductionCost       *float64       `json:"production_cost" db:"production_cost"`
	MarginPercentage     *float64       `json:"margin_percentage" db:"margin_percentage"`
	DriveFolderURL       *string        `json:"drive_folder_url" db:"drive_folder_url"`
	ClientName           *string        `json:"client_name" db:"client_name"`
}

type TeamMember struct {
	PersonName   string   `json:"person_name" db:"person_name"`
	Role         string   `json:"role" db:"role"`
	Rate         *float64 `json:"rate" db:"rate"`
	HiringStatus string   `json:"hiring_status" db:"hiring_status"`
}

type DeliverableInfo struct {
	Description string  `json:"description" db:"description"`
	Status      string  `json:"status" db:"status"`
	Format      *string `json:"format" db:"format"`
}

type ShootingInfo struct {
	Date     string  `json:"date" db:"shooting_date"`
	Location *string `json:"location" db:"location"`
}

type HistoryInfo struct {
	EventType   string    `json:"event_type" db:"event_type"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// JobContext is everything known about a job that may be shown to the model. Internal notes are
// never part of it.
type JobContext struct {
	Job           JobInfo           `json:"job"`
	Team          []TeamMember      `json:"team"`
	Deliverables  []DeliverableInfo `json:"deliverables"`
	ShootingDates []ShootingInfo    `json:"shooting_dates"`
	RecentHistory []HistoryInfo     `json:"recent_history"`
}

type TypeCount struct {
	Type  string `json:"type" db:"type"`
	Count int    `json:"count" db:"count"`
}

type ClientCount struct {
	Name      string `json:"name" db:"name"`
	JobsCount int    `json:"jobs_count" db:"jobs_count"`
}

type TenantMetrics struct {
	TotalJobs       int           `json:"total_jobs" db:"total_jobs"`
	ActiveJobs      int           `json:"active_jobs" db:"active_jobs"`
	AvgMargin       *float64      `json:"avg_margin" db:"avg_margin"`
	TotalRevenue    *float64      `json:"total_revenue" db:"total_revenue"`
	TeamSize        int           `json:"team_size" db:"team_size"`
	TopProjectTypes []TypeCount   `json:"top_project_types" db:"-"`
	TopClients      []ClientCount `json:"top_clients" db:"-"`
}

type Conflict struct {
	JobCode      string `json:"job_code"`
	JobTitle     string `json:"job_title"`
	OverlapStart string `json:"overlap_start"`
	OverlapEnd   string `json:"overlap_end"`
}

type Candidate struct {
	PersonID       string     `json:"person_id"`
	FullName       string     `json:"full_name"`
	DefaultRole    string     `json:"default_role"`
	DefaultRate    *float64   `json:"default_rate"`
	IsInternal     bool       `json:"is_internal"`
	TotalJobs      int        `json:"total_jobs"`
	JobsSameType   int        `json:"jobs_same_type"`
	AvgHealthScore *float64   `json:"avg_health_score"`
	LastJobDate    *time.Time `json:"last_job_date"`
	Conflicts      []Conflict `json:"conflicts"`
}

// Budget estimate

type BudgetOverride struct {
	AdditionalRequirements *string  `json:"additional_requirements,omitempty"`
	ReferenceJobs          []string `json:"reference_jobs,omitempty"`
	BudgetCeiling          *float64 `json:"budget_ceiling,omitempty"`
}

type EstimateRequest struct {
	JobID           string          `json:"job_id"`
	OverrideContext *BudgetOverride `json:"override_context"`
}

type SuggestedBudget struct {
	Total                 float64            `json:"total"`
	Breakdown             map[string]float64 `json:"breakdown"`
	Confidence            string             `json:"confidence"`
	ConfidenceExplanation string             `json:"confidence_explanation,omitempty"`
}

type SimilarJobRef struct {
	JobID            string   `json:"job_id"`
	Title            string   `json:"title"`
	Code             string   `json:"code"`
	ClosedValue      *float64 `json:"closed_value"`
	ProductionCost   *float64 `json:"production_cost"`
	MarginPercentage *float64 `json:"margin_percentage"`
	SimilarityScore  float64  `json:"similarity_score"`
}

// Estimate is a stored budget estimate.
type Estimate struct {
	ID              string         `json:"estimate_id" db:"id"`
	TenantID        string         `json:"-" db:"tenant_id"`
	JobID           string         `json:"job_id" db:"job_id"`
	RequestedBy     string         `json:"requested_by" db:"requested_by"`
	InputHash       string         `json:"-" db:"input_hash"`
	OverrideContext core.JSONMap   `json:"-" db:"override_context"`
	SuggestedTotal  float64        `json:"-" db:"suggested_total"`
	Breakdown       Breakdown      `json:"-" db:"breakdown"`
	Confidence      string         `json:"-" db:"confidence"`
	Reasoning       string         `json:"reasoning" db:"reasoning"`
	SimilarJobs     SimilarJobRefs `json:"similar_jobs" db:"similar_jobs"`
	Warnings        Strings        `json:"warnings" db:"warnings"`
	Model           string         `json:"model_used" db:"model_used"`
	InputTokens     int            `json:"-" db:"input_tokens"`
	OutputTokens    int            `json:"-" db:"output_tokens"`
	DurationMs      int64          `json:"-" db:"duration_ms"`
	WasApplied      bool           `json:"was_applied" db:"was_applied"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`

	// Filled for responses.
	Budget     SuggestedBudget `json:"suggested_budget" db:"-"`
	TokensUsed TokensUsed      `json:"tokens_used" db:"-"`
}

// fill sets the response fields from the stored columns.
func (e *Estimate) fill() {
	e.Budget = SuggestedBudget{Total: e.SuggestedTotal, Breakdown: e.Breakdown, Confidence: e.Confidence}
	e.TokensUsed = TokensUsed{Input: e.InputTokens, Output: e.OutputTokens}
}

type EstimateResult struct {
	EstimateID      *string         `json:"estimate_id"`
	JobID           string          `json:"job_id"`
	SuggestedBudget SuggestedBudget `json:"suggested_budget"`
	SimilarJobs     []SimilarJobRef `json:"similar_jobs"`
	Reasoning       string          `json:"reasoning"`
	Warnings        []string        `json:"warnings"`
	TokensUsed      TokensUsed      `json:"tokens_used"`
	Cached          bool            `json:"cached"`
}

// Freelancer match

type MatchRequest struct {
	JobID          string   `json:"job_id"`
	Role           string   `json:"role"`
	Requirements   *string  `json:"requirements" validate:"omitempty,max=2000"`
	MaxRate        *float64 `json:"max_rate"`
	PreferredStart *string  `json:"preferred_start" validate:"omitempty,date"`
	PreferredEnd   *string  `json:"preferred_end" validate:"omitempty,date"`
	Limit          *int     `json:"limit"`
}

type Availability struct {
	IsAvailable bool       `json:"is_available"`
	Conflicts   []Conflict `json:"conflicts"`
}

type PastPerformance struct {
	TotalJobs         int        `json:"total_jobs"`
	JobsWithSameType  int        `json:"jobs_with_same_type"`
	AvgJobHealthScore *float64   `json:"avg_job_health_score"`
	LastJobDate       *time.Time `json:"last_job_date"`
}

type Suggestion struct {
	PersonID        string          `json:"person_id"`
	FullName        string          `json:"full_name"`
	DefaultRole     string          `json:"default_role"`
	DefaultRate     *float64        `json:"default_rate"`
	IsInternal      bool            `json:"is_internal"`
	MatchScore      int             `json:"match_score"`
	MatchReasons    []string        `json:"match_reasons"`
	Availability    Availability    `json:"availability"`
	PastPerformance PastPerformance `json:"past_performance"`
}

type MatchResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	Reasoning   string       `json:"reasoning"`
	TokensUsed  TokensUsed   `json:"tokens_used"`
}

// Dailies analysis

type DailyEntry struct {
	ShootingDate        string  `json:"shooting_date"`
	Notes               *string `json:"notes,omitempty"`
	ScenesPlanned       *int    `json:"scenes_planned,omitempty"`
	ScenesCompleted     *int    `json:"scenes_completed,omitempty"`
	WeatherNotes        *string `json:"weather_notes,omitempty"`
	EquipmentIssues     *string `json:"equipment_issues,omitempty"`
	TalentNotes         *string `json:"talent_notes,omitempty"`
	ExtraCosts          *string `json:"extra_costs,omitempty"`
	GeneralObservations *string `json:"general_observations,omitempty"`
}

type AnalyzeRequest struct {
	JobID              string       `json:"job_id"`
	DailiesData        []DailyEntry `json:"dailies_data"`
	DeliverablesStatus bool         `json:"deliverables_status"`
}

type ProgressAssessment struct {
	Status               string  `json:"status"`
	Explanation          string  `json:"explanation"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

type Risk struct {
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

type Analysis struct {
	AnalysisID         string             `json:"analysis_id"`
	JobID              string             `json:"job_id"`
	Summary            string             `json:"summary"`
	ProgressAssessment ProgressAssessment `json:"progress_assessment"`
	Risks              []Risk             `json:"risks"`
	Recommendations    []string           `json:"recommendations"`
	TokensUsed         TokensUsed         `json:"tokens_used"`
}

// UsageEntry is a usage log row, as listed by the analysis history.
type UsageEntry struct {
	ID           string       `json:"id" db:"id"`
	JobID        string       `json:"job_id" db:"-"`
	RequestedBy  string       `json:"requested_by" db:"user_id"`
	Model        string       `json:"model_used" db:"model_used"`
	InputTokens  int          `json:"-" db:"input_tokens"`
	OutputTokens int          `json:"-" db:"output_tokens"`
	TokensUsed   TokensUsed   `json:"tokens_used" db:"-"`
	DurationMs   int64        `json:"duration_ms" db:"duration_ms"`
	Status       string       `json:"status" db:"status"`
	Metadata     core.JSONMap `json:"metadata" db:"metadata"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// Copilot

type ChatContext struct {
	JobID *string `json:"job_id" validate:"omitempty,uuid"`
	Page  *string `json:"page" validate:"omitempty,max=200"`
}

type ChatRequest struct {
	ConversationID *string      `json:"conversation_id" validate:"omitempty,uuid"`
	Message        string       `json:"message"`
	Context        *ChatContext `json:"context"`
}

type Conversation struct {
	ID                string     `json:"id" db:"id"`
	TenantID          string     `json:"-" db:"tenant_id"`
	UserID            string     `json:"-" db:"user_id"`
	Title             string     `json:"title" db:"title"`
	JobID             *string    `json:"job_id" db:"job_id"`
	Model             string     `json:"model_used" db:"model_used"`
	MessageCount      int        `json:"message_count" db:"message_count"`
	TotalInputTokens  int        `json:"-" db:"total_input_tokens"`
	TotalOutputTokens int        `json:"-" db:"total_output_tokens"`
	LastMessageAt     *time.Time `json:"last_message_at" db:"last_message_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

type ConversationMessage struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"-" db:"tenant_id"`
	ConversationID string          `json:"-" db:"conversation_id"`
	Role           string          `json:"role" db:"role"`
	Content        string          `json:"content" db:"content"`
	Sources        json.RawMessage `json:"sources" db:"sources"`
	Model          *string         `json:"model_used" db:"model_used"`
	InputTokens    *int            `json:"input_tokens" db:"input_tokens"`
	OutputTokens   *int            `json:"output_tokens" db:"output_tokens"`
	DurationMs     *int64          `json:"duration_ms" db:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

type ConversationDetail struct {
	Conversation Conversation          `json:"conversation"`
	Messages     []ConversationMessage `json:"messages"`
}

type ChatResult struct {
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	Response       string        `json:"response"`
	Sources        []interface{} `json:"sources"`
	TokensUsed     TokensUsed    `json:"tokens_used"`
}
