package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core/person"
)

type personApi struct {
	svc      *person.Service
	validate *validator.Validate
}

func registerPersonAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *person.Service, validate *validator.Validate) {
	api := personApi{svc: svc, validate: validate}

	pg := g.Group("/people", authed...)
	pg.GET("", api.query)
	pg.POST("", api.create)
	pg.GET("/:id", api.retrieve)
	pg.PATCH("/:id", api.update)
	pg.DELETE("/:id", api.destroy)
}

func (api *personApi) query(ctx echo.Context) error {
	filter := person.QueryFilter{
		Search:      ctx.QueryParam("search"),
		DefaultRole: ctx.QueryParam("default_role"),
		IsInternal:  queryBool(ctx, "is_internal"),
		IsActive:    queryBool(ctx, "is_active"),
	}
	page := pageParams(ctx, person.SortFields, "full_name")

	people, total, err := api.svc.Query(ctx.Request().Context(), mustActor(ctx).TenantID, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying people")
	}
	return respondPage(ctx, people, total, page)
}

func (api *personApi) create(ctx echo.Context) error {
	var data person.PersonData
	if err := bind(ctx, &data, "PersonData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	p, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, p)
}

func (api *personApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, p)
}

func (api *personApi) update(ctx echo.Context) error {
	var data person.PersonData
	if err := bind(ctx, &data, "PersonData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, p)
}

func (api *personApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.Delete(ctx.Request().Context(), mustActor(ctx).TenantID, id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}
