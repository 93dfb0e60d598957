package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

const (
	defaultAlertsLimit   = 20
	maxAlertsLimit       = 100
	defaultActivityHours = 48
	maxActivityHours     = 720
	defaultActivityLimit = 30
	maxActivityLimit     = 200
	defaultRevenueMonths = 12
	maxRevenueMonths     = 24
)

type (
	// Repository runs the dashboard functions of the database.
	Repository interface {
		Kpis(ctx context.Context, tenantID string) (Kpis, error)
		Pipeline(ctx context.Context, tenantID string) ([]PipelineItem, error)
		// Alerts returns the most urgent alerts first.
		Alerts(ctx context.Context, tenantID string, limit int) ([]Alert, error)
		// Activity returns the newest events first.
		Activity(ctx context.Context, tenantID string, hours, limit int) ([]ActivityEvent, error)
		// Revenue returns one row per month, oldest first.
		Revenue(ctx context.Context, tenantID string, months int) ([]RevenueMonth, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Kpis(ctx context.Context, tenantID string) (Kpis, error) {
	kpis, err := svc.repo.Kpis(ctx, tenantID)
	return kpis, errors.Wrap(err, "loading kpis")
}

func (svc *Service) Pipeline(ctx context.Context, tenantID string) ([]PipelineItem, error) {
	items, err := svc.repo.Pipeline(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "loading pipeline")
	}
	if items == nil {
		items = []PipelineItem{}
	}
	return items, nil
}

func (svc *Service) Alerts(ctx context.Context, tenantID string, q Query) ([]Alert, error) {
	limit, err := intParam("limit", q.Limit, defaultAlertsLimit, maxAlertsLimit)
	if err != nil {
		return nil, err
	}
	alerts, err := svc.repo.Alerts(ctx, tenantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "loading alerts")
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return alerts, nil
}

func (svc *Service) Activity(ctx context.Context, tenantID string, q Query) ([]ActivityEvent, error) {
	hours, err := intParam("hours", q.Hours, defaultActivityHours, maxActivityHours)
	if err != nil {
		return nil, err
	}
	limit, err := intParam("limit", q.Limit, defaultActivityLimit, maxActivityLimit)
	if err != nil {
		return nil, err
	}
	events, err := svc.repo.Activity(ctx, tenantID, hours, limit)
	if err != nil {
		return nil, errors.Wrap(err, "loading activity")
	}
	if events == nil {
		events = []ActivityEvent{}
	}
	return events, nil
}

func (svc *Service) Revenue(ctx context.Context, tenantID string, q Query) ([]RevenueMonth, error) {
	months, err := intParam("months", q.Months, defaultRevenueMonths, maxRevenueMonths)
	if err != nil {
		return nil, err
	}
	rows, err := svc.repo.Revenue(ctx, tenantID, months)
	if err != nil {
		return nil, errors.Wrap(err, "loading revenue")
	}
	if rows == nil {
		rows = []RevenueMonth{}
	}
	return rows, nil
}

// intParam parses an integer query parameter in [1, max]. Leading digits are accepted ("12abc" is 12).
func intParam(name, raw string, def, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	end := 0
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		end = 1
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 1 || n > max {
		return 0, core.BadRequest(fmt.Sprintf("Parametro %s deve ser um inteiro entre 1 e %d", name, max))
	}
	return n, nil
}
