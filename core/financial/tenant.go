package financial

import (
	"fmt"
	"sort"
	"time"

	"github.com/ellahos/ellahos/core"
)

const upcomingDays = 30

type TenantTotals struct {
	TotalBudgeted       float64 `json:"total_budgeted"`
	TotalPaid           float64 `json:"total_paid"`
	TotalOverdue        float64 `json:"total_overdue"`
	TotalPending        float64 `json:"total_pending"`
	JobsCount           int     `json:"jobs_count"`
	ItemsPendingPayment int     `json:"items_pending_payment"`
}

// WeekTotal sums the pending payments due in a Monday to Sunday week.
type WeekTotal struct {
	WeekLabel  string  `json:"week_label"`
	WeekStart  string  `json:"week_start"`
	WeekEnd    string  `json:"week_end"`
	Total      float64 `json:"total"`
	ItemsCount int     `json:"items_count"`
}

type UpcomingPayments struct {
	Total  float64     `json:"total"`
	ByWeek []WeekTotal `json:"by_week"`
}

// TenantDashboard consolidates the cost items of every job and fixed cost of a tenant.
type TenantDashboard struct {
	Totals   TenantTotals     `json:"totals"`
	Upcoming UpcomingPayments `json:"upcoming_payments_30d"`
}

// BuildTenantDashboard aggregates the non cancelled `items` of a tenant. Pending items due
// from today to 30 days ahead are grouped by week.
func BuildTenantDashboard(items []CostItem, now time.Time) TenantDashboard {
	today := now.Format(core.DateLayout)
	until := now.AddDate(0, 0, upcomingDays).Format(core.DateLayout)

	d := TenantDashboard{Upcoming: UpcomingPayments{ByWeek: []WeekTotal{}}}
	t := &d.Totals
	jobs := make(map[string]bool)
	weeks := make(map[string]*WeekTotal)

	for _, ci := range items {
		if ci.ItemStatus == StatusCancelado {
			continue
		}
		t.TotalBudgeted += ci.TotalWithOvertime
		if ci.JobID != nil {
			jobs[*ci.JobID] = true
		}
		if ci.PaymentStatus == PaymentPago {
			t.TotalPaid += ci.PaidValue()
			continue
		}

		due := core.StrVal(ci.PaymentDueDate)
		switch {
		case due == "":
		case due < today:
			t.TotalOverdue += ci.TotalWithOvertime
		case due <= until:
			t.ItemsPendingPayment++
			d.Upcoming.Total += ci.TotalWithOvertime
			if w := weekOf(due); w != nil {
				if cur, ok := weeks[w.WeekStart]; ok {
					w = cur
				} else {
					weeks[w.WeekStart] = w
				}
				w.Total += ci.TotalWithOvertime
				w.ItemsCount++
			}
		}
	}

	t.TotalBudgeted = core.Round(t.TotalBudgeted, 2)
	t.TotalPaid = core.Round(t.TotalPaid, 2)
	t.TotalOverdue = core.Round(t.TotalOverdue, 2)
	t.TotalPending = core.Round(t.TotalBudgeted-t.TotalPaid, 2)
	t.JobsCount = len(jobs)
	d.Upcoming.Total = core.Round(d.Upcoming.Total, 2)

	for _, w := range weeks {
		w.Total = core.Round(w.Total, 2)
		d.Upcoming.ByWeek = append(d.Upcoming.ByWeek, *w)
	}
	sort.Slice(d.Upcoming.ByWeek, func(i, j int) bool { return d.Upcoming.ByWeek[i].WeekStart < d.Upcoming.ByWeek[j].WeekStart })
	return d
}

// weekOf returns the empty week holding `date`, labelled "DD/MM a DD/MM".
func weekOf(date string) *WeekTotal {
	day, err := time.Parse(core.DateLayout, date)
	if err != nil {
		return nil
	}
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)
	return &WeekTotal{
		WeekLabel: fmt.Sprintf("%s a %s", start.Format("02/01"), end.Format("02/01")),
		WeekStart: start.Format(core.DateLayout),
		WeekEnd:   end.Format(core.DateLayout),
	}
}
