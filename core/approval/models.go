package approval

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ellahos/ellahos/core"
)

// Approval types.
const (
	TypeBriefing           = "briefing"
	TypeOrcamentoDetalhado = "orcamento_detalhado"
	TypeCorte              = "corte"
	TypeFinalizacao        = "finalizacao"
	TypeEntrega            = "entrega"
)

// Request statuses, log actions and approver kinds.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusExpired  = "expired"

	ActionCreated  = "created"
	ActionSent     = "sent"
	ActionResent   = "resent"
	ActionApproved = "approved"
	ActionRejected = "rejected"

	ApproverExternal = "external"
	ApproverInternal = "internal"

	ActorUser     = "user"
	ActorSystem   = "system"
	ActorExternal = "external"
)

// ExpiryDays is the lifetime of an approval link per approval type.
var ExpiryDays = map[string]int{
	TypeBriefing:           30,
	TypeOrcamentoDetalhado: 7,
	TypeCorte:              14,
	TypeFinalizacao:        14,
	TypeEntrega:            7,
}

// allowedFileHosts are the domains (and their subdomains) approval files may be served from.
var allowedFileHosts = []string{"supabase.co", "drive.google.com", "docs.google.com"}

type JobRef struct {
	ID    string `json:"id" db:"id"`
	Code  string `json:"code" db:"code"`
	Title string `json:"title" db:"title"`
}

type Request struct {
	ID               string     `json:"id" db:"id"`
	TenantID         string     `json:"tenant_id" db:"tenant_id"`
	JobID            string     `json:"job_id" db:"job_id"`
	ApprovalType     string     `json:"approval_type" db:"approval_type"`
	Title            string     `json:"title" db:"title"`
	Description      *string    `json:"description" db:"description"`
	FileURL          *string    `json:"file_url" db:"file_url"`
	ApproverType     string     `json:"approver_type" db:"approver_type"`
	ApproverEmail    *string    `json:"approver_email" db:"approver_email"`
	ApproverPhone    *string    `json:"approver_phone" db:"approver_phone"`
	ApproverPeopleID *string    `json:"approver_people_id" db:"approver_people_id"`
	Token            string     `json:"token" db:"token"`
	Status           string     `json:"status" db:"status"`
	ExpiresAt        time.Time  `json:"expires_at" db:"expires_at"`
	ApprovedAt       *time.Time `json:"approved_at" db:"approved_at"`
	ApprovedIP       *string    `json:"approved_ip" db:"approved_ip"`
	RejectionReason  *string    `json:"rejection_reason" db:"rejection_reason"`
	CreatedBy        string     `json:"created_by" db:"created_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`

	Job *JobRef `json:"jobs,omitempty" db:"job"`
}

func (r Request) Expired(now time.Time) bool { return r.ExpiresAt.Before(now) }

func (r Request) jobCode() string {
	if r.Job == nil {
		return ""
	}
	return r.Job.Code
}

func (r Request) jobTitle() string {
	if r.Job == nil {
		return ""
	}
	return r.Job.Title
}

type Log struct {
	ID                string       `json:"id" db:"id"`
	TenantID          string       `json:"tenant_id" db:"tenant_id"`
	ApprovalRequestID string       `json:"approval_request_id" db:"approval_request_id"`
	Action            string       `json:"action" db:"action"`
	ActorType         string       `json:"actor_type" db:"actor_type"`
	ActorID           *string      `json:"actor_id" db:"actor_id"`
	ActorName         *string      `json:"actor_name" db:"actor_name"`
	ActorIP           *string      `json:"actor_ip" db:"actor_ip"`
	Comment           *string      `json:"comment" db:"comment"`
	Metadata          core.JSONMap `json:"metadata" db:"metadata"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

type NewRequest struct {
	JobID            string  `json:"job_id" validate:"required,uuid"`
	ApprovalType     string  `json:"approval_type" validate:"required,oneof=briefing orcamento_detalhado corte finalizacao entrega"`
	Title            string  `json:"title" validate:"required,max=500"`
	Description      *string `json:"description" validate:"omitempty,max=5000"`
	FileURL          *string `json:"file_url" validate:"omitempty,url,max=2000"`
	ApproverType     string  `json:"approver_type" validate:"required,oneof=external internal"`
	ApproverEmail    *string `json:"approver_email" validate:"omitempty,email"`
	ApproverPhone    *string `json:"approver_phone" validate:"omitempty,min=10,max=20"`
	ApproverPeopleID *string `json:"approver_people_id" validate:"omitempty,uuid"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	if nr.ApproverEmail != nil {
		email := core.CleanString(*nr.ApproverEmail, true)
		nr.ApproverEmail = &email
	}
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if nr.FileURL != nil && *nr.FileURL != "" && !AllowedFileURL(*nr.FileURL) {
		return core.NewFieldError("file_url",
			"URL do arquivo deve ser de um dominio autorizado (supabase.co, drive.google.com, docs.google.com)")
	}
	if (nr.ApproverType == ApproverExternal && core.StrVal(nr.ApproverEmail) == "") ||
		(nr.ApproverType == ApproverInternal && core.StrVal(nr.ApproverPeopleID) == "") {
		return core.BadRequest("Aprovador externo requer email, interno requer people_id")
	}
	return nil
}

// AllowedFileURL reports whether `raw` points to localhost or to an allowed file host.
func AllowedFileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	for _, d := range allowedFileHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Decision approves or rejects a request.
type Decision struct {
	Comment *string `json:"comment" validate:"omitempty,max=5000"`
}

func (d *Decision) Validate(validate *validator.Validate, rejecting bool) error {
	if d.Comment != nil {
		c := core.CleanString(*d.Comment)
		d.Comment = &c
	}
	if rejecting && core.StrVal(d.Comment) == "" {
		return core.NewFieldError("comment", "Comentario obrigatorio para rejeicao")
	}
	return validate.Struct(d)
}

// Response is the answer of an external approver.
type Response struct {
	Action  string  `json:"action"`
	Comment *string `json:"comment"`
}

func (r *Response) Validate() error {
	if r.Action != ActionApproved && r.Action != ActionRejected {
		return core.NewFieldError("action", `Acao deve ser "approved" ou "rejected"`)
	}
	if r.Comment != nil {
		c := core.CleanString(*r.Comment)
		r.Comment = &c
		if len(c) > 5000 {
			return core.NewFieldError("comment", "comment deve ter no maximo 5000 caracteres")
		}
	}
	if r.Action == ActionRejected && core.StrVal(r.Comment) == "" {
		return core.NewFieldError("comment", "Comentario obrigatorio para rejeicao")
	}
	return nil
}

// PublicView is what an approval link shows. Answered and expired requests only carry a message.
type PublicView struct {
	ID           string     `json:"id"`
	ApprovalType string     `json:"approval_type,omitempty"`
	Title        string     `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	FileURL      *string    `json:"file_url,omitempty"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	JobTitle     string     `json:"job_title,omitempty"`
	Message      string     `json:"message,omitempty"`
}

type RespondResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ResendResult struct {
	ID     string `json:"id"`
	Resent bool   `json:"resent"`
}
