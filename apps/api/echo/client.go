package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core/client"
)

type clientApi struct {
	svc      *client.Service
	validate *validator.Validate
}

func registerClientAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *client.Service, validate *validator.Validate) {
	api := clientApi{svc: svc, validate: validate}

	cg := g.Group("/clients", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create)
	cg.GET("/:id", api.retrieve)
	cg.PATCH("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.GET("/:id/contacts", api.clientContacts)

	ag := g.Group("/agencies", authed...)
	ag.GET("", api.queryAgencies)
	ag.POST("", api.createAgency)
	ag.GET("/:id", api.retrieveAgency)
	ag.PATCH("/:id", api.updateAgency)
	ag.DELETE("/:id", api.destroyAgency)

	kg := g.Group("/contacts", authed...)
	kg.GET("", api.contacts)
	kg.POST("", api.createContact)
	kg.GET("/:id", api.retrieveContact)
	kg.PATCH("/:id", api.updateContact)
	kg.DELETE("/:id", api.destroyContact)
}

func clientFilter(ctx echo.Context) client.QueryFilter {
	return client.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Segment:  ctx.QueryParam("segment"),
		IsActive: queryBool(ctx, "is_active"),
	}
}

// Clients

func (api *clientApi) query(ctx echo.Context) error {
	page := pageParams(ctx, client.SortFields, "name")
	clients, total, err := api.svc.Query(ctx.Request().Context(), mustActor(ctx).TenantID, clientFilter(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying clients")
	}
	return respondPage(ctx, clients, total, page)
}

func (api *clientApi) create(ctx echo.Context) error {
	var data client.ClientData
	if err := bind(ctx, &data, "ClientData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	c, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, c)
}

func (api *clientApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, c)
}

func (api *clientApi) update(ctx echo.Context) error {
	var data client.ClientData
	if err := bind(ctx, &data, "ClientData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	c, err := api.svc.Update(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, c)
}

func (api *clientApi) destroy(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.Delete(ctx.Request().Context(), mustActor(ctx).TenantID, id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}

func (api *clientApi) clientContacts(ctx echo.Context) error {
	filter := client.ContactFilter{ClientID: ctx.Param("id")}
	contacts, err := api.svc.ListContacts(ctx.Request().Context(), mustActor(ctx).TenantID, filter)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, contacts)
}

// Agencies

func (api *clientApi) queryAgencies(ctx echo.Context) error {
	page := pageParams(ctx, client.SortFields, "name")
	agencies, total, err := api.svc.QueryAgencies(ctx.Request().Context(), mustActor(ctx).TenantID, clientFilter(ctx), page)
	if err != nil {
		return errors.Wrap(err, "querying agencies")
	}
	return respondPage(ctx, agencies, total, page)
}

func (api *clientApi) createAgency(ctx echo.Context) error {
	var data client.AgencyData
	if err := bind(ctx, &data, "AgencyData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	a, err := api.svc.CreateAgency(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, a)
}

func (api *clientApi) retrieveAgency(ctx echo.Context) error {
	a, err := api.svc.GetAgency(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, a)
}

func (api *clientApi) updateAgency(ctx echo.Context) error {
	var data client.AgencyData
	if err := bind(ctx, &data, "AgencyData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	a, err := api.svc.UpdateAgency(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, a)
}

func (api *clientApi) destroyAgency(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteAgency(ctx.Request().Context(), mustActor(ctx).TenantID, id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}

// Contacts

func (api *clientApi) contacts(ctx echo.Context) error {
	filter := client.ContactFilter{ClientID: ctx.QueryParam("client_id"), AgencyID: ctx.QueryParam("agency_id")}
	contacts, err := api.svc.ListContacts(ctx.Request().Context(), mustActor(ctx).TenantID, filter)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, contacts)
}

func (api *clientApi) createContact(ctx echo.Context) error {
	var data client.ContactData
	if err := bind(ctx, &data, "ContactData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	c, err := api.svc.CreateContact(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, c)
}

func (api *clientApi) retrieveContact(ctx echo.Context) error {
	c, err := api.svc.GetContact(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, c)
}

func (api *clientApi) updateContact(ctx echo.Context) error {
	var data client.ContactData
	if err := bind(ctx, &data, "ContactData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	c, err := api.svc.UpdateContact(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, c)
}

func (api *clientApi) destroyContact(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteContact(ctx.Request().Context(), mustActor(ctx).TenantID, id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}
