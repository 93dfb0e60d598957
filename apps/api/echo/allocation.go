package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ellahos/ellahos/core/allocation"
)

type allocationApi struct {
	svc      *allocation.Service
	validate *validator.Validate
}

func registerAllocationAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *allocation.Service, validate *validator.Validate) {
	api := allocationApi{svc: svc, validate: validate}

	ag := g.Group("/allocations", authed...)
	ag.GET("", api.list)
	ag.POST("", api.create)
	ag.GET("/conflicts", api.conflicts)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
}

func (api *allocationApi) list(ctx echo.Context) error {
	filter := allocation.RangeFilter{
		From:     ctx.QueryParam("from"),
		To:       ctx.QueryParam("to"),
		PeopleID: ctx.QueryParam("people_id"),
		JobID:    ctx.QueryParam("job_id"),
	}
	allocs, err := api.svc.List(ctx.Request().Context(), mustActor(ctx).TenantID, filter)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, allocs)
}

func (api *allocationApi) conflicts(ctx echo.Context) error {
	conflicts, err := api.svc.Conflicts(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.QueryParam("from"), ctx.QueryParam("to"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, conflicts)
}

func (api *allocationApi) create(ctx echo.Context) error {
	var data allocation.NewAllocation
	if err := bind(ctx, &data, "NewAllocation"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, warnings, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respondWarned(ctx, http.StatusCreated, a, warnings, len(warnings))
}

func (api *allocationApi) update(ctx echo.Context) error {
	var data allocation.UpdateAllocation
	if err := bind(ctx, &data, "UpdateAllocation"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	a, warnings, err := api.svc.Update(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respondWarned(ctx, http.StatusOK, a, warnings, len(warnings))
}

func (api *allocationApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.Delete(ctx.Request().Context(), mustActor(ctx).TenantID, id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}
