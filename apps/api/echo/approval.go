package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/approval"
)

type approvalApi struct {
	svc      *approval.Service
	validate *validator.Validate
}

func registerApprovalAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	public echo.MiddlewareFunc,
	svc *approval.Service,
	validate *validator.Validate,
) {
	api := approvalApi{svc: svc, validate: validate}

	// token-scoped endpoints
	pg := g.Group("/approvals/public", public)
	pg.GET("/:token", api.publicView)
	pg.POST("/:token/respond", api.respond)

	ag := g.Group("/approvals", authed...)
	ag.GET("", api.listByJob)
	ag.POST("", api.create)
	ag.GET("/pending", api.pending)
	ag.GET("/:id/logs", api.logs)
	ag.POST("/:id/resend", api.resend)
	ag.POST("/:id/approve", api.approve)
	ag.POST("/:id/reject", api.reject)
}

func (api *approvalApi) listByJob(ctx echo.Context) error {
	jobID := ctx.QueryParam("job_id")
	if jobID == "" {
		return core.NewFieldError("job_id", "job_id e obrigatorio")
	}
	reqs, err := api.svc.ListByJob(ctx.Request().Context(), mustActor(ctx).TenantID, jobID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, reqs)
}

func (api *approvalApi) pending(ctx echo.Context) error {
	reqs, err := api.svc.ListPending(ctx.Request().Context(), mustActor(ctx).TenantID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, reqs)
}

func (api *approvalApi) create(ctx echo.Context) error {
	var data approval.NewRequest
	if err := bind(ctx, &data, "NewRequest"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	r, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, r)
}

func (api *approvalApi) logs(ctx echo.Context) error {
	logs, err := api.svc.Logs(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, logs)
}

func (api *approvalApi) resend(ctx echo.Context) error {
	res, err := api.svc.Resend(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *approvalApi) approve(ctx echo.Context) error {
	return api.decide(ctx, false)
}

func (api *approvalApi) reject(ctx echo.Context) error {
	return api.decide(ctx, true)
}

func (api *approvalApi) decide(ctx echo.Context, rejecting bool) error {
	var data approval.Decision
	if err := bind(ctx, &data, "Decision"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, rejecting); err != nil {
		return err
	}

	var r approval.Request
	var err error
	if rejecting {
		r, err = api.svc.RejectInternal(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	} else {
		r, err = api.svc.ApproveInternal(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	}
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, r)
}

// Public

func (api *approvalApi) publicView(ctx echo.Context) error {
	view, err := api.svc.GetByToken(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, view)
}

func (api *approvalApi) respond(ctx echo.Context) error {
	var data approval.Response
	if err := bind(ctx, &data, "Response"); err != nil {
		return err
	}
	req := ctx.Request()
	res, err := api.svc.Respond(req.Context(), ctx.Param("token"), req.Header.Get(echo.HeaderOrigin), ctx.RealIP(), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}
