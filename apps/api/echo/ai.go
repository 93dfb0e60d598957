package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/ai"
)

type aiApi struct {
	svc    *ai.Service
	logger core.Logger
}

func registerAIAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *ai.Service, logger core.Logger) {
	api := aiApi{svc: svc, logger: logger}

	ag := g.Group("/ai", authed...)
	ag.GET("/usage", api.usage)

	ag.POST("/budget-estimate/generate", api.estimate)
	ag.GET("/budget-estimate/history", api.estimateHistory)

	ag.POST("/freelancer-match/suggest", api.match)

	ag.POST("/dailies-analysis/analyze", api.analyze)
	ag.GET("/dailies-analysis/history", api.dailiesHistory)

	cg := ag.Group("/copilot")
	cg.POST("/chat", api.chat)
	cg.POST("/chat-sync", api.chatSync)
	cg.GET("/conversations", api.conversations)
	cg.GET("/conversations/:id", api.conversation)
	cg.DELETE("/conversations/:id", api.deleteConversation)
}

func (api *aiApi) usage(ctx echo.Context) error {
	summary, err := api.svc.Usage(ctx.Request().Context(), mustActor(ctx))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, summary)
}

func (api *aiApi) estimate(ctx echo.Context) error {
	var data ai.EstimateRequest
	if err := bind(ctx, &data, "EstimateRequest"); err != nil {
		return err
	}
	res, err := api.svc.EstimateBudget(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *aiApi) estimateHistory(ctx echo.Context) error {
	estimates, err := api.svc.EstimateHistory(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.QueryParam("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, estimates)
}

func (api *aiApi) match(ctx echo.Context) error {
	var data ai.MatchRequest
	if err := bind(ctx, &data, "MatchRequest"); err != nil {
		return err
	}
	res, err := api.svc.MatchFreelancers(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *aiApi) analyze(ctx echo.Context) error {
	var data ai.AnalyzeRequest
	if err := bind(ctx, &data, "AnalyzeRequest"); err != nil {
		return err
	}
	res, err := api.svc.AnalyzeDailies(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *aiApi) dailiesHistory(ctx echo.Context) error {
	entries, err := api.svc.DailiesHistory(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.QueryParam("job_id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, entries)
}

// Copilot

// sseWriter writes the stream headers lazily so that errors raised before the first event still get the JSON
// error envelope.
type sseWriter struct {
	res     *echo.Response
	started bool
}

func (w *sseWriter) emit(ev ai.StreamEvent) error {
	if !w.started {
		h := w.res.Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.res.WriteHeader(http.StatusOK)
		w.started = true
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return errors.Wrap(err, "encoding stream event")
	}
	if _, err := fmt.Fprintf(w.res, "event: %s\ndata: %s\n\n", ev.Event, data); err != nil {
		return errors.Wrap(err, "writing stream event")
	}
	w.res.Flush()
	return nil
}

func (api *aiApi) chat(ctx echo.Context) error {
	var data ai.ChatRequest
	if err := bind(ctx, &data, "ChatRequest"); err != nil {
		return err
	}

	w := &sseWriter{res: ctx.Response()}
	err := api.svc.Chat(ctx.Request().Context(), mustActor(ctx), data, w.emit)
	if err == nil || !w.started {
		return err
	}

	// the status line is gone already: report the failure in-band
	api.logger.Error("copilot stream failed", err, mustActor(ctx))
	body := errorBody{Code: core.CodeInternal, Message: errInternal}
	if appErr, ok := core.AsAppError(err); ok {
		body = errorBody{Code: appErr.Code, Message: appErr.Message}
	}
	_ = w.emit(ai.StreamEvent{Event: "error", Data: body})
	return nil
}

func (api *aiApi) chatSync(ctx echo.Context) error {
	var data ai.ChatRequest
	if err := bind(ctx, &data, "ChatRequest"); err != nil {
		return err
	}
	res, err := api.svc.ChatSync(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *aiApi) conversations(ctx echo.Context) error {
	convs, err := api.svc.ListConversations(ctx.Request().Context(), mustActor(ctx))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, convs)
}

func (api *aiApi) conversation(ctx echo.Context) error {
	detail, err := api.svc.GetConversation(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, detail)
}

func (api *aiApi) deleteConversation(ctx echo.Context) error {
	id := ctx.Param("id")
	if err := api.svc.DeleteConversation(ctx.Request().Context(), mustActor(ctx), id); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, deleted{ID: id, Deleted: true})
}
