package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/ellahos/ellahos/core/portal"
)

type portalApi struct {
	svc      *portal.Service
	validate *validator.Validate
}

func registerPortalAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	public echo.MiddlewareFunc,
	svc *portal.Service,
	validate *validator.Validate,
) {
	api := portalApi{svc: svc, validate: validate}

	pg := g.Group("/client-portal")

	sg := pg.Group("/sessions", authed...)
	sg.GET("", api.sessions)
	sg.POST("", api.createSession)
	sg.PATCH("/:id", api.updateSession)
	sg.DELETE("/:id", api.deleteSession)
	sg.GET("/:id/messages", api.messages)
	sg.POST("/:id/messages", api.reply)

	// token-scoped endpoints
	tg := pg.Group("/public", public)
	tg.GET("/:token", api.publicData)
	tg.POST("/:token/message", api.sendMessage)
}

func (api *portalApi) sessions(ctx echo.Context) error {
	sessions, err := api.svc.ListSessions(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.QueryParam("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, sessions)
}

func (api *portalApi) createSession(ctx echo.Context) error {
	var data portal.NewSession
	if err := bind(ctx, &data, "NewSession"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	s, err := api.svc.CreateSession(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, s)
}

func (api *portalApi) updateSession(ctx echo.Context) error {
	var data portal.UpdateSession
	if err := bind(ctx, &data, "UpdateSession"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	s, err := api.svc.UpdateSession(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, s)
}

func (api *portalApi) deleteSession(ctx echo.Context) error {
	d, err := api.svc.DeleteSession(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

func (api *portalApi) messages(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit")) // out of range values fall back to the default
	page, err := api.svc.ListMessages(
		ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), ctx.QueryParam("before_id"), limit,
	)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, page)
}

func (api *portalApi) reply(ctx echo.Context) error {
	var data portal.NewMessage
	if err := bind(ctx, &data, "NewMessage"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	msg, err := api.svc.Reply(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, msg)
}

// Public

func (api *portalApi) publicData(ctx echo.Context) error {
	data, err := api.svc.GetByToken(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, data)
}

func (api *portalApi) sendMessage(ctx echo.Context) error {
	var data portal.NewMessage
	if err := bind(ctx, &data, "NewMessage"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	msg, duplicate, err := api.svc.SendMessage(ctx.Request().Context(), ctx.Param("token"), data)
	if err != nil {
		return err
	}
	if duplicate {
		return respond(ctx, http.StatusOK, echo.Map{"message": "Mensagem ja registrada anteriormente."})
	}
	return respond(ctx, http.StatusCreated, msg)
}
