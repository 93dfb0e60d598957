package integration

import (
	"fmt"
	"regexp"
	"strings"
)

// WhatsApp templates.
const (
	TemplateApprovalRequest         = "approval_request"
	TemplatePaymentApproaching      = "payment_approaching"
	TemplateShootingDateApproaching = "shooting_date_approaching"
	TemplateDeliverableOverdue      = "deliverable_overdue"
	TemplateStatusChanged           = "status_changed"
)

var (
	whatsAppTemplates = map[string]string{
		TemplateApprovalRequest: "*Aprovacao pendente* \U0001F4CB\nOla {recipient_name}!\nJob: {job_code} - {job_title}\n" +
			"{approval_title}\nAcesse para aprovar: {approval_url}",
		TemplatePaymentApproaching:      "*Pagamento em {days_until_due} dia(s)* \U0001F4B0\nJob: {job_code}\nR$ {amount}\nVence: {due_date}",
		TemplateShootingDateApproaching: "*Diaria em 3 dias* \U0001F3AC\nJob: {job_code}\nData: {shooting_date}\nLocal: {location}",
		TemplateDeliverableOverdue: "*Entregavel atrasado* ⚠️\nJob: {job_code}\n{deliverable}\n" +
			"Atrasado {days_overdue} dia(s) (prazo: {delivery_date})",
		TemplateStatusChanged: "*Status atualizado* \U0001F504\nJob: {job_code} - {job_title}\n{old_status} -> {new_status}",
	}

	placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
	nonDigitRe    = regexp.MustCompile(`\D`)
)

// BuildMessage renders a named template, or `template` itself when it is not a known name.
// Placeholders without data are kept verbatim.
func BuildMessage(template string, data map[string]interface{}) string {
	raw, ok := whatsAppTemplates[template]
	if !ok {
		raw = template
	}
	return placeholderRe.ReplaceAllStringFunc(raw, func(match string) string {
		key := strings.Trim(match, "{}")
		if val, ok := data[key]; ok && val != nil {
			return fmt.Sprint(val)
		}
		return match
	})
}

// SanitizePhone keeps digits only and adds the Brazilian country code when it is missing.
func SanitizePhone(phone string) string {
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 {
		return digits
	}
	return "55" + digits
}

// WebhookKey maps a workflow name to its tenant webhook key: "wf-job-approved" -> "job_approved".
func WebhookKey(workflow string) string {
	return strings.ReplaceAll(strings.TrimPrefix(workflow, "wf-"), "-", "_")
}
