package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
	"github.com/ellahos/ellahos/core/tenant"
)

type tenantApi struct {
	svc      *tenant.Service
	events   *integration.Service
	validate *validator.Validate
}

func registerTenantAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	svc *tenant.Service,
	events *integration.Service,
	validate *validator.Validate,
) {
	api := tenantApi{svc: svc, events: events, validate: validate}

	tg := g.Group("/tenant-settings", chain(authed, roleMiddleware(core.ManagerRoles...))...)
	tg.GET("/integrations", api.integrations)
	tg.PATCH("/integrations/:name", api.updateIntegration)
	tg.POST("/integrations/:name/test", api.testIntegration)
	tg.GET("/integration-logs", api.logs)
}

func (api *tenantApi) integrations(ctx echo.Context) error {
	settings, err := api.svc.GetIntegrations(ctx.Request().Context(), mustActor(ctx).TenantID)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, settings)
}

func (api *tenantApi) updateIntegration(ctx echo.Context) error {
	tenantID := mustActor(ctx).TenantID
	name := ctx.Param("name")

	switch name {
	case tenant.IntegrationWhatsApp:
		var data tenant.UpdateWhatsApp
		if err := bind(ctx, &data, "UpdateWhatsApp"); err != nil {
			return err
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		wa, err := api.svc.UpdateWhatsApp(ctx.Request().Context(), tenantID, data)
		if err != nil {
			return errors.Wrap(err, "updating whatsapp settings")
		}
		return respond(ctx, http.StatusOK, echo.Map{"integration": name, "settings": wa})
	case tenant.IntegrationN8n:
		var data tenant.UpdateN8n
		if err := bind(ctx, &data, "UpdateN8n"); err != nil {
			return err
		}
		if err := data.Validate(api.validate); err != nil {
			return err
		}
		n8n, err := api.svc.UpdateN8n(ctx.Request().Context(), tenantID, data)
		if err != nil {
			return errors.Wrap(err, "updating n8n settings")
		}
		return respond(ctx, http.StatusOK, echo.Map{"integration": name, "settings": n8n})
	}
	return core.BadRequest(fmt.Sprintf("Integracao %q invalida", name))
}

func (api *tenantApi) testIntegration(ctx echo.Context) error {
	res, err := api.svc.TestIntegration(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("name"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *tenantApi) logs(ctx echo.Context) error {
	filter := integration.LogFilter{EventType: ctx.QueryParam("event_type"), Status: ctx.QueryParam("status")}
	page := pageParams(ctx, nil, "created_at")

	events, total, err := api.events.ListLogs(ctx.Request().Context(), mustActor(ctx).TenantID, filter, page)
	if err != nil {
		return errors.Wrap(err, "listing integration logs")
	}
	return respondPage(ctx, events, total, page)
}
