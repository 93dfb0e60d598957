package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/financial"
)

type costItemsResponse struct {
	Data    []financial.CostItem `json:"data"`
	Meta    core.PageMeta        `json:"meta"`
	Summary financial.Summary    `json:"summary"`
}

type financialApi struct {
	svc      *financial.Service
	validate *validator.Validate
}

func registerFinancialAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *financial.Service, validate *validator.Validate) {
	api := financialApi{svc: svc, validate: validate}

	budgetOnly := roleMiddleware(core.BudgetRoles...)

	cg := g.Group("/cost-items", chain(authed, roleMiddleware(core.FinancialRoles...))...)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.POST("/batch", api.createBatch)
	cg.GET("/budget-summary/:job_id", api.budgetSummary)
	cg.PATCH("/budget-mode/:job_id", api.budgetMode, budgetOnly)
	cg.POST("/apply-template/:job_id", api.applyTemplate, budgetOnly)
	cg.GET("/reference-jobs/:job_id", api.referenceJobs, budgetOnly)
	cg.GET("/export/:job_id", api.export)
	cg.GET("/:id", api.retrieve)
	cg.PATCH("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.POST("/:id/copy-to-job", api.copyToJob)

	pg := g.Group("/payment-manager", chain(authed, roleMiddleware(core.PaymentRoles...))...)
	pg.POST("/pay", api.pay)
	pg.POST("/undo-pay/:id", api.undoPay)
	pg.GET("/batch-preview", api.batchPreview)

	dg := g.Group("/financial-dashboard", chain(authed, roleMiddleware(core.FinancialRoles...))...)
	dg.GET("/job/:id", api.jobDashboard)
	dg.GET("/tenant", api.tenantDashboard, roleMiddleware(core.PaymentRoles...))
}

func (api *financialApi) query(ctx echo.Context) error {
	filter := financial.QueryFilter{
		JobID:           ctx.QueryParam("job_id"),
		PeriodMonthFrom: ctx.QueryParam("period_month_from"),
		PeriodMonthTo:   ctx.QueryParam("period_month_to"),
		ItemStatus:      ctx.QueryParam("item_status"),
		PaymentStatus:   ctx.QueryParam("payment_status"),
		Search:          core.CleanString(ctx.QueryParam("search")),
	}
	page := pageParams(ctx, financial.SortFields, "item_number")
	if ctx.QueryParam("sort_order") == "" {
		page.SortOrder = "asc"
	}

	items, total, summary, err := api.svc.Query(ctx.Request().Context(), mustActor(ctx).TenantID, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying cost items")
	}
	return ctx.JSON(http.StatusOK, costItemsResponse{Data: items, Meta: core.NewPageMeta(total, page), Summary: summary})
}

func (api *financialApi) create(ctx echo.Context) error {
	var data financial.CostItemData
	if err := bind(ctx, &data, "CostItemData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	ci, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, ci)
}

func (api *financialApi) retrieve(ctx echo.Context) error {
	ci, err := api.svc.Get(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, ci)
}

func (api *financialApi) update(ctx echo.Context) error {
	var data financial.CostItemData
	if err := bind(ctx, &data, "CostItemData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	ci, err := api.svc.Update(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, ci)
}

func (api *financialApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.Delete(ctx.Request().Context(), mustActor(ctx), id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (api *financialApi) pay(ctx echo.Context) error {
	var data financial.PayBatch
	if err := bind(ctx, &data, "PayBatch"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.Pay(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *financialApi) jobDashboard(ctx echo.Context) error {
	d, err := api.svc.JobDashboard(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

func (api *financialApi) createBatch(ctx echo.Context) error {
	var data financial.BatchCreate
	if err := bind(ctx, &data, "BatchCreate"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	items, err := api.svc.CreateBatch(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, items)
}

func (api *financialApi) copyToJob(ctx echo.Context) error {
	var data financial.CopyToJob
	if err := bind(ctx, &data, "CopyToJob"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	ci, err := api.svc.CopyToJob(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, ci)
}

func (api *financialApi) budgetSummary(ctx echo.Context) error {
	s, err := api.svc.BudgetSummary(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, s)
}

func (api *financialApi) budgetMode(ctx echo.Context) error {
	var data financial.BudgetModeData
	if err := bind(ctx, &data, "BudgetModeData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.SetBudgetMode(ctx.Request().Context(), mustActor(ctx), ctx.Param("job_id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *financialApi) applyTemplate(ctx echo.Context) error {
	res, err := api.svc.ApplyTemplate(ctx.Request().Context(), mustActor(ctx), ctx.Param("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, res)
}

func (api *financialApi) referenceJobs(ctx echo.Context) error {
	refs, err := api.svc.ReferenceJobs(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, refs)
}

func (api *financialApi) export(ctx echo.Context) error {
	exp, err := api.svc.Export(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("job_id"))
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exp.Filename))
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", exp.Content)
}

func (api *financialApi) undoPay(ctx echo.Context) error {
	ci, err := api.svc.UndoPay(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, ci)
}

func (api *financialApi) batchPreview(ctx echo.Context) error {
	ids, err := financial.ParseCostItemIDs(api.validate, ctx.QueryParam("cost_item_ids"))
	if err != nil {
		return err
	}
	bp, err := api.svc.BatchPreview(ctx.Request().Context(), mustActor(ctx).TenantID, ids)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, bp)
}

func (api *financialApi) tenantDashboard(ctx echo.Context) error {
	d, err := api.svc.TenantDashboard(ctx.Request().Context(), mustActor(ctx).TenantID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}
