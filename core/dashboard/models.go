package dashboard

// Alert types.
const (
	AlertMargin         = "margin_alert"
	AlertOverdue        = "overdue_deliverable"
	AlertLowHealth      = "low_health_score"
	AlertApprovalExpiry = "approval_expiring"
)

type Kpis struct {
	ActiveJobs          int     `json:"active_jobs" db:"active_jobs"`
	TotalJobsMonth      int     `json:"total_jobs_month" db:"total_jobs_month"`
	TotalRevenue        float64 `json:"total_revenue" db:"total_revenue"`
	RevenueMonth        float64 `json:"revenue_month" db:"revenue_month"`
	AvgMargin           float64 `json:"avg_margin" db:"avg_margin"`
	AvgHealthScore      float64 `json:"avg_health_score" db:"avg_health_score"`
	PendingApprovals    int     `json:"pending_approvals" db:"pending_approvals"`
	OverdueDeliverables int     `json:"overdue_deliverables" db:"overdue_deliverables"`
	TeamAllocated       int     `json:"team_allocated" db:"team_allocated"`
}

type PipelineItem struct {
	Status     string  `json:"status" db:"status"`
	Count      int     `json:"count" db:"count"`
	TotalValue float64 `json:"total_value" db:"total_value"`
}

type Alert struct {
	AlertType   string   `json:"alert_type" db:"alert_type"`
	Severity    string   `json:"severity" db:"severity"`
	Title       string   `json:"title" db:"title"`
	Description string   `json:"description" db:"description"`
	JobID       *string  `json:"job_id" db:"job_id"`
	JobCode     *string  `json:"job_code" db:"job_code"`
	AlertDate   *string  `json:"alert_date" db:"alert_date"`
	MetricValue *float64 `json:"metric_value" db:"metric_value"`
}

type ActivityEvent struct {
	ID          string  `json:"id" db:"id"`
	EventType   string  `json:"event_type" db:"event_type"`
	Description string  `json:"description" db:"description"`
	CreatedAt   string  `json:"created_at" db:"created_at"`
	UserID      *string `json:"user_id" db:"user_id"`
	UserName    *string `json:"user_name" db:"user_name"`
	JobID       *string `json:"job_id" db:"job_id"`
	JobCode     *string `json:"job_code" db:"job_code"`
	JobTitle    *string `json:"job_title" db:"job_title"`
}

type RevenueMonth struct {
	Month    string  `json:"month" db:"month"`
	JobCount int     `json:"job_count" db:"job_count"`
	Revenue  float64 `json:"revenue" db:"revenue"`
	Cost     float64 `json:"cost" db:"cost"`
	Profit   float64 `json:"profit" db:"profit"`
}

// Query holds the raw query string parameters; blanks take the defaults.
type Query struct {
	Limit  string `query:"limit"`
	Hours  string `query:"hours"`
	Months string `query:"months"`
}
