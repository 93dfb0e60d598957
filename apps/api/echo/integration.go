package echoapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/integration"
)

const (
	headerCronSecret    = "X-Cron-Secret"
	headerWebhookSecret = "X-Webhook-Secret"
)

var errBadWebhookSecret = core.NewAppError(core.CodeUnauthorized, "Webhook secret invalido", http.StatusUnauthorized)

type processorRequest struct {
	BatchSize int `json:"batch_size"`
}

type integrationApi struct {
	conf     *core.Config
	svc      *integration.Service
	validate *validator.Validate
}

func registerIntegrationAPI(
	g *echo.Group,
	authed []echo.MiddlewareFunc,
	conf *core.Config,
	svc *integration.Service,
	validate *validator.Validate,
) {
	api := integrationApi{conf: conf, svc: svc, validate: validate}

	// called by the scheduler, authenticated by a shared secret
	g.POST("/integration-processor", api.process, secretMiddleware(headerCronSecret, conf.Integrations.CronSecret, true))

	wg := g.Group("/whatsapp")
	wg.POST("/webhook", api.statusWebhook, secretMiddleware(headerWebhookSecret, conf.Integrations.WhatsAppWebhookSecret, false))

	ag := wg.Group("", authed...)
	ag.POST("/send", api.sendManual)
	ag.GET("/:jobId/messages", api.messages)
}

// secretMiddleware compares a header with `secret`. An empty secret rejects every call when required,
// and accepts every call otherwise.
func secretMiddleware(header, secret string, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if secret == "" {
				if required {
					return errUnauthorized
				}
				return next(ctx)
			}
			given := ctx.Request().Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
				if header == headerWebhookSecret {
					return errBadWebhookSecret
				}
				return errUnauthorized
			}
			return next(ctx)
		}
	}
}

func (api *integrationApi) process(ctx echo.Context) error {
	var data processorRequest
	// an empty or malformed body means the default batch size
	_ = ctx.Bind(&data)

	res, err := api.svc.ProcessBatch(ctx.Request().Context(), data.BatchSize)
	if err != nil {
		return errors.Wrap(err, "processing integration events")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *integrationApi) statusWebhook(ctx echo.Context) error {
	var data integration.StatusUpdate
	if err := bind(ctx, &data, "StatusUpdate"); err != nil {
		return err
	}
	res, err := api.svc.UpdateMessageStatus(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *integrationApi) sendManual(ctx echo.Context) error {
	var data integration.SendManual
	if err := bind(ctx, &data, "SendManual"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.SendManual(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *integrationApi) messages(ctx echo.Context) error {
	page := pageParams(ctx, nil, "created_at")
	msgs, total, err := api.svc.ListMessages(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("jobId"), page)
	if err != nil {
		return err
	}
	return respondPage(ctx, msgs, total, page)
}
