package job

import (
	"time"

	"github.com/ellahos/ellahos/core"
)

// MarginAlertThreshold is the margin percentage under which a margin alert is raised.
const MarginAlertThreshold = 15.0

// TaxValue returns the taxes owed on the closed value.
func (j Job) TaxValue() float64 {
	if j.ClosedValue == nil {
		return 0
	}
	return core.Round(*j.ClosedValue*j.TaxPercentage/100, 2)
}

// GrossProfit is the closed value minus costs and taxes.
func (j Job) GrossProfit() *float64 {
	if j.ClosedValue == nil {
		return nil
	}
	gp := core.Round(*j.ClosedValue-deref(j.ProductionCost)-deref(j.OtherCosts)-j.TaxValue(), 2)
	return &gp
}

// ComputeMargin returns the margin percentage, nil while the job has no closed value.
func (j Job) ComputeMargin() *float64 {
	if j.ClosedValue == nil || *j.ClosedValue <= 0 {
		return nil
	}
	m := core.Round(*j.GrossProfit() / *j.ClosedValue * 100, 2)
	return &m
}

// ComputeHealthScore rates from 0 to 100 how well a job is set up: planned dates, a closed value,
// the production documents and a staffed team. Overdue jobs lose 30 points.
func (j Job) ComputeHealthScore(teamSize int, now time.Time) int {
	score := 0
	if j.ExpectedStartDate != nil {
		score += 10
	}
	if j.ExpectedDeliveryDate != nil {
		score += 20
	}
	if j.ClosedValue != nil && *j.ClosedValue > 0 {
		score += 20
	}
	for _, url := range []*string{j.DriveFolderURL, j.BudgetLetterURL, j.ScriptURL} {
		if url != nil {
			score += 10
		}
	}
	if teamSize > 0 {
		score += 20
	}

	if j.isOverdue(now) {
		score -= 30
	}
	if score < 0 {
		return 0
	}
	return score
}

func (j Job) isOverdue(now time.Time) bool {
	if j.ExpectedDeliveryDate == nil || core.StringIn(j.Status, core.ClosedJobStatuses) {
		return false
	}
	due, err := core.ParseDate(*j.ExpectedDeliveryDate)
	return err == nil && due.Before(now.Truncate(24*time.Hour))
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
