package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core/notification"
	"github.com/ellahos/ellahos/core/user"
	"github.com/ellahos/ellahos/services/realtime"
)

type notificationApi struct {
	svc      *notification.Service
	hub      *realtime.Hub
	validate *validator.Validate
}

func registerNotificationAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	auth *authenticator,
	svc *notification.Service,
	userSvc *user.Service,
	hub *realtime.Hub,
	validate *validator.Validate,
) {
	api := notificationApi{svc: svc, hub: hub, validate: validate}

	// websocket upgrades carry the token in the query string
	g.GET("/notifications/ws", api.stream, middleware.JWTWithConfig(auth.wsConfig()), actorMiddleware(userSvc))

	ng := g.Group("/notifications", authed...)
	ng.GET("", api.list)
	ng.GET("/unread-count", api.unreadCount)
	ng.GET("/preferences", api.preferences)
	ng.PATCH("/preferences", api.updatePreferences)
	ng.POST("/mark-all-read", api.markAllRead)
	ng.PATCH("/:id/read", api.markRead)
}

func (api *notificationApi) list(ctx echo.Context) error {
	filter := notification.QueryFilter{
		Type:       ctx.QueryParam("type"),
		UnreadOnly: ctx.QueryParam("unread_only") == "true",
		JobID:      ctx.QueryParam("job_id"),
	}
	page := pageParams(ctx, nil, "created_at")

	ns, total, err := api.svc.List(ctx.Request().Context(), mustActor(ctx), filter, page)
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return respondPage(ctx, ns, total, page)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	n, err := api.svc.UnreadCount(ctx.Request().Context(), mustActor(ctx))
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return respond(ctx, http.StatusOK, echo.Map{"unread_count": n})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	n, err := api.svc.MarkRead(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), mustActor(ctx))
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return respond(ctx, http.StatusOK, echo.Map{"updated_count": n})
}

func (api *notificationApi) preferences(ctx echo.Context) error {
	p, err := api.svc.GetPreferences(ctx.Request().Context(), mustActor(ctx))
	if err != nil {
		return errors.Wrap(err, "getting notification preferences")
	}
	return respond(ctx, http.StatusOK, p)
}

func (api *notificationApi) updatePreferences(ctx echo.Context) error {
	var data notification.UpdatePreferences
	if err := bind(ctx, &data, "UpdatePreferences"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	p, err := api.svc.UpdatePreferences(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return errors.Wrap(err, "updating notification preferences")
	}
	return respond(ctx, http.StatusOK, p)
}

// stream keeps a websocket open; created notifications are pushed by the hub.
func (api *notificationApi) stream(ctx echo.Context) error {
	return api.hub.Serve(ctx.Response(), ctx.Request(), mustActor(ctx).UserID)
}
