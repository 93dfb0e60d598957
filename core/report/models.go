package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ellahos/ellahos/core"
)

// Report types.
const (
	TypeFinancialMonthly = "financial_monthly"
	TypePerformance      = "performance"
	TypeTeamUtilization  = "team_utilization"

	// MaxPeriodMonths bounds the range a report may cover.
	MaxPeriodMonths = 24
)

var (
	Types    = []string{TypeFinancialMonthly, TypePerformance, TypeTeamUtilization}
	GroupBys = []string{"director", "project_type", "client", "segment"}
)

// Params are the query parameters shared by every report.
type Params struct {
	StartDate string `json:"start_date" query:"start_date"`
	EndDate   string `json:"end_date" query:"end_date"`
	GroupBy   string `json:"group_by,omitempty" query:"group_by"`
}

// resolve fills the default range of `reportType` and validates the result.
func (p *Params) resolve(reportType string, now time.Time, export bool) error {
	now = now.UTC()
	if p.EndDate == "" {
		p.EndDate = now.Format(core.DateLayout)
	}
	if p.StartDate == "" {
		switch reportType {
		case TypeFinancialMonthly:
			p.StartDate = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC).Format(core.DateLayout)
		case TypePerformance:
			p.StartDate = now.AddDate(0, -12, 0).Format(core.DateLayout)
		default:
			p.StartDate = now.AddDate(0, -3, 0).Format(core.DateLayout)
		}
	}

	start, errStart := core.ParseDate(p.StartDate)
	end, errEnd := core.ParseDate(p.EndDate)
	if errStart != nil || errEnd != nil {
		return core.BadRequest("Datas devem estar no formato YYYY-MM-DD")
	}
	if start.After(end) {
		return core.BadRequest("start_date deve ser anterior a end_date")
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if months > MaxPeriodMonths {
		if export {
			return core.BadRequest(fmt.Sprintf("Periodo maximo para export e de %d meses", MaxPeriodMonths))
		}
		return core.BadRequest(fmt.Sprintf("Periodo maximo permitido e de %d meses", MaxPeriodMonths))
	}

	if reportType == TypePerformance {
		if p.GroupBy == "" {
			p.GroupBy = "director"
		}
		if !core.StringIn(p.GroupBy, GroupBys) {
			return core.BadRequest("group_by invalido. Valores aceitos: director, project_type, client, segment")
		}
	} else {
		p.GroupBy = ""
	}
	return nil
}

type Report struct {
	ReportType string          `json:"report_type"`
	Parameters Params          `json:"parameters"`
	Result     json.RawMessage `json:"result"`
}

type ExportRequest struct {
	ReportType string `json:"report_type"`
	Parameters Params `json:"parameters"`
}

// Export is a generated CSV file.
type Export struct {
	Filename   string
	Content    []byte
	Rows       int
	ArchiveKey string // set when the file was archived
}
