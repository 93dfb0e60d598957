package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/job"
)

type jobApi struct {
	svc      *job.Service
	validate *validator.Validate
}

func registerJobAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *job.Service, validate *validator.Validate) {
	api := jobApi{svc: svc, validate: validate}

	jg := g.Group("/jobs", authed...)
	jg.GET("", api.query)
	jg.POST("", api.create)

	// detail endpoints
	dg := jg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.DELETE("", api.destroy)
	dg.PATCH("/status", api.updateStatus)
	dg.POST("/approve", api.approve)
	dg.GET("/history", api.history)

	dg.GET("/team", api.team)
	dg.POST("/team", api.addTeamMember)
	dg.PATCH("/team/:memberId", api.updateTeamMember)
	dg.DELETE("/team/:memberId", api.removeTeamMember)

	dg.GET("/deliverables", api.deliverables)
	dg.POST("/deliverables", api.createDeliverable)
	dg.PATCH("/deliverables/:deliverableId", api.updateDeliverable)
	dg.DELETE("/deliverables/:deliverableId", api.deleteDeliverable)

	dg.GET("/shooting-dates", api.shootingDates)
	dg.POST("/shooting-dates", api.createShootingDate)
	dg.PATCH("/shooting-dates/:dateId", api.updateShootingDate)
	dg.DELETE("/shooting-dates/:dateId", api.deleteShootingDate)
}

func jobFilter(ctx echo.Context) (job.QueryFilter, error) {
	filter := job.QueryFilter{
		Statuses:    queryList(ctx, "status"),
		ClientID:    ctx.QueryParam("client_id"),
		AgencyID:    ctx.QueryParam("agency_id"),
		JobType:     ctx.QueryParam("job_type"),
		Priority:    ctx.QueryParam("priority"),
		Segment:     ctx.QueryParam("segment"),
		Search:      core.CleanString(ctx.QueryParam("search")),
		Tags:        queryList(ctx, "tags"),
		DateFrom:    ctx.QueryParam("date_from"),
		DateTo:      ctx.QueryParam("date_to"),
		ParentJobID: ctx.QueryParam("parent_job_id"),
	}
	if archived := queryBool(ctx, "is_archived"); archived != nil {
		filter.IsArchived = *archived
	}

	var err error
	if filter.MarginMin, err = queryFloat(ctx, "margin_min"); err != nil {
		return filter, err
	}
	if filter.MarginMax, err = queryFloat(ctx, "margin_max"); err != nil {
		return filter, err
	}
	if filter.HealthScoreMin, err = queryInt(ctx, "health_score_min"); err != nil {
		return filter, err
	}
	if filter.HealthScoreMax, err = queryInt(ctx, "health_score_max"); err != nil {
		return filter, err
	}
	for _, d := range []struct{ name, val string }{{"date_from", filter.DateFrom}, {"date_to", filter.DateTo}} {
		if d.val == "" {
			continue
		}
		if _, err := core.ParseDate(d.val); err != nil {
			return filter, core.NewFieldError(d.name, d.name+" deve estar no formato YYYY-MM-DD")
		}
	}
	return filter, nil
}

func (api *jobApi) query(ctx echo.Context) error {
	filter, err := jobFilter(ctx)
	if err != nil {
		return err
	}
	page := pageParams(ctx, job.SortFields, "created_at")

	jobs, total, err := api.svc.Query(ctx.Request().Context(), mustActor(ctx).TenantID, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying jobs")
	}
	return respondPage(ctx, jobs, total, page)
}

func (api *jobApi) create(ctx echo.Context) error {
	var data job.NewJob
	if err := bind(ctx, &data, "NewJob"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	j, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, j)
}

// retrieve loads the relations listed in `include` (comma separated).
func (api *jobApi) retrieve(ctx echo.Context) error {
	var inc job.Includes
	for _, rel := range queryList(ctx, "include") {
		switch strings.ToLower(rel) {
		case "team":
			inc.Team = true
		case "deliverables":
			inc.Deliverables = true
		case "shooting_dates":
			inc.ShootingDates = true
		case "history":
			inc.History = true
		}
	}

	d, err := api.svc.GetDetail(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), inc)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

func (api *jobApi) update(ctx echo.Context) error {
	var data job.UpdateJob
	if err := bind(ctx, &data, "UpdateJob"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	j, err := api.svc.Update(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, j)
}

func (api *jobApi) destroy(ctx echo.Context) error {
	d, err := api.svc.Delete(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

func (api *jobApi) updateStatus(ctx echo.Context) error {
	var data job.UpdateStatus
	if err := bind(ctx, &data, "UpdateStatus"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.UpdateStatus(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *jobApi) approve(ctx echo.Context) error {
	var data job.Approve
	if err := bind(ctx, &data, "Approve"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	res, err := api.svc.Approve(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, res)
}

func (api *jobApi) history(ctx echo.Context) error {
	filter := job.HistoryFilter{EventTypes: queryList(ctx, "event_type")}
	for _, t := range filter.EventTypes {
		if !core.StringIn(t, core.HistoryEventTypes) {
			return core.NewFieldError("event_type", "event_type possui um valor invalido")
		}
	}
	page := pageParams(ctx, []string{"created_at"}, "created_at")

	entries, total, err := api.svc.ListHistory(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"), filter, page)
	if err != nil {
		return err
	}
	return respondPage(ctx, entries, total, page)
}

// Team

func (api *jobApi) team(ctx echo.Context) error {
	members, err := api.svc.ListTeam(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, members)
}

func (api *jobApi) addTeamMember(ctx echo.Context) error {
	var data job.TeamMemberData
	if err := bind(ctx, &data, "TeamMemberData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	member, warnings, err := api.svc.AddTeamMember(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respondWarned(ctx, http.StatusCreated, member, warnings, len(warnings))
}

func (api *jobApi) updateTeamMember(ctx echo.Context) error {
	var data job.TeamMemberData
	if err := bind(ctx, &data, "TeamMemberData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	member, err := api.svc.UpdateTeamMember(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("memberId"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, member)
}

func (api *jobApi) removeTeamMember(ctx echo.Context) error {
	d, err := api.svc.RemoveTeamMember(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("memberId"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

// Deliverables

func (api *jobApi) deliverables(ctx echo.Context) error {
	items, err := api.svc.ListDeliverables(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, items)
}

func (api *jobApi) createDeliverable(ctx echo.Context) error {
	var data job.DeliverableData
	if err := bind(ctx, &data, "DeliverableData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	d, err := api.svc.CreateDeliverable(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, d)
}

func (api *jobApi) updateDeliverable(ctx echo.Context) error {
	var data job.DeliverableData
	if err := bind(ctx, &data, "DeliverableData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	d, err := api.svc.UpdateDeliverable(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("deliverableId"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

func (api *jobApi) deleteDeliverable(ctx echo.Context) error {
	d, err := api.svc.DeleteDeliverable(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("deliverableId"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}

// Shooting dates

func (api *jobApi) shootingDates(ctx echo.Context) error {
	dates, err := api.svc.ListShootingDates(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, dates)
}

func (api *jobApi) createShootingDate(ctx echo.Context) error {
	var data job.ShootingDateData
	if err := bind(ctx, &data, "ShootingDateData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, true); err != nil {
		return err
	}
	sd, err := api.svc.CreateShootingDate(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, sd)
}

func (api *jobApi) updateShootingDate(ctx echo.Context) error {
	var data job.ShootingDateData
	if err := bind(ctx, &data, "ShootingDateData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, false); err != nil {
		return err
	}
	sd, err := api.svc.UpdateShootingDate(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("dateId"), data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, sd)
}

func (api *jobApi) deleteShootingDate(ctx echo.Context) error {
	d, err := api.svc.DeleteShootingDate(ctx.Request().Context(), mustActor(ctx), ctx.Param("id"), ctx.Param("dateId"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, d)
}
