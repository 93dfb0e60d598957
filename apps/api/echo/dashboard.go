package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core/dashboard"
)

type dashboardApi struct {
	svc *dashboard.Service
}

func registerDashboardAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *dashboard.Service) {
	api := dashboardApi{svc: svc}

	dg := g.Group("/dashboard", authed...)
	routes := map[string]echo.HandlerFunc{
		"/kpis":     api.kpis,
		"/pipeline": api.pipeline,
		"/alerts":   api.alerts,
		"/activity": api.activity,
		"/revenue":  api.revenue,
	}
	readOnly := []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	for path, h := range routes {
		dg.GET(path, h)
		dg.Match(readOnly, path, methodNotAllowed)
	}
}

func dashboardQuery(ctx echo.Context) dashboard.Query {
	return dashboard.Query{
		Limit:  ctx.QueryParam("limit"),
		Hours:  ctx.QueryParam("hours"),
		Months: ctx.QueryParam("months"),
	}
}

func (api *dashboardApi) kpis(ctx echo.Context) error {
	kpis, err := api.svc.Kpis(ctx.Request().Context(), mustActor(ctx).TenantID)
	if err != nil {
		return errors.Wrap(err, "loading kpis")
	}
	return respond(ctx, http.StatusOK, kpis)
}

func (api *dashboardApi) pipeline(ctx echo.Context) error {
	items, err := api.svc.Pipeline(ctx.Request().Context(), mustActor(ctx).TenantID)
	if err != nil {
		return errors.Wrap(err, "loading pipeline")
	}
	return respond(ctx, http.StatusOK, items)
}

func (api *dashboardApi) alerts(ctx echo.Context) error {
	alerts, err := api.svc.Alerts(ctx.Request().Context(), mustActor(ctx).TenantID, dashboardQuery(ctx))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, alerts)
}

func (api *dashboardApi) activity(ctx echo.Context) error {
	events, err := api.svc.Activity(ctx.Request().Context(), mustActor(ctx).TenantID, dashboardQuery(ctx))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, events)
}

func (api *dashboardApi) revenue(ctx echo.Context) error {
	months, err := api.svc.Revenue(ctx.Request().Context(), mustActor(ctx).TenantID, dashboardQuery(ctx))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, months)
}
