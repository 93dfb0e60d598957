package echoapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ellahos/ellahos/core/report"
)

type reportApi struct {
	svc *report.Service
}

func registerReportAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *report.Service) {
	api := reportApi{svc: svc}

	rg := g.Group("/reports", authed...)
	rg.GET("/financial", api.run(svc.Financial))
	rg.GET("/performance", api.run(svc.Performance))
	rg.GET("/team", api.run(svc.Team))
	rg.POST("/export", api.export)
}

func reportParams(ctx echo.Context) report.Params {
	return report.Params{
		StartDate: ctx.QueryParam("start_date"),
		EndDate:   ctx.QueryParam("end_date"),
		GroupBy:   ctx.QueryParam("group_by"),
	}
}

func (api *reportApi) run(fn func(ctx context.Context, tenantID string, params report.Params) (report.Report, error)) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		rep, err := fn(ctx.Request().Context(), mustActor(ctx).TenantID, reportParams(ctx))
		if err != nil {
			return err
		}
		return respond(ctx, http.StatusOK, rep)
	}
}

func (api *reportApi) export(ctx echo.Context) error {
	var data report.ExportRequest
	if err := bind(ctx, &data, "ExportRequest"); err != nil {
		return err
	}
	exp, err := api.svc.Export(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}

	h := ctx.Response().Header()
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exp.Filename))
	if exp.ArchiveKey != "" {
		h.Set("X-Archive-Key", exp.ArchiveKey)
	}
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", exp.Content)
}
