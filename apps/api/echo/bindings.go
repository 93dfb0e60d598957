package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

type (
	dataResponse struct {
		Data interface{} `json:"data"`
	}

	pageResponse struct {
		Data interface{}   `json:"data"`
		Meta core.PageMeta `json:"meta"`
	}

	deleted struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}

	warningsResponse struct {
		Data     interface{} `json:"data"`
		Warnings interface{} `json:"warnings,omitempty"`
	}
)

func respond(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, dataResponse{Data: data})
}

func respondPage(ctx echo.Context, data interface{}, total int, page core.PageParams) error {
	return ctx.JSON(http.StatusOK, pageResponse{Data: data, Meta: core.NewPageMeta(total, page)})
}

// respondWarned adds `warnings` only when there are some.
func respondWarned(ctx echo.Context, code int, data interface{}, warnings interface{}, n int) error {
	if n == 0 {
		warnings = nil
	}
	return ctx.JSON(code, warningsResponse{Data: data, Warnings: warnings})
}

// bind decodes the JSON body; name is used in the wrapping error.
func bind(ctx echo.Context, dst interface{}, name string) error {
	if err := ctx.Bind(dst); err != nil {
		return errors.Wrap(err, "binding to "+name)
	}
	return nil
}

func pageParams(ctx echo.Context, allowed []string, defaultSort string) core.PageParams {
	return core.ParsePageParams(
		ctx.QueryParam("page"), ctx.QueryParam("per_page"),
		ctx.QueryParam("sort_by"), ctx.QueryParam("sort_order"),
		allowed, defaultSort,
	)
}

// queryBool returns nil unless the param is exactly "true" or "false".
func queryBool(ctx echo.Context, name string) *bool {
	switch ctx.QueryParam(name) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func queryFloat(ctx echo.Context, name string) (*float64, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, core.NewFieldError(name, name+" deve ser numerico")
	}
	return &v, nil
}

func queryInt(ctx echo.Context, name string) (*int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, core.NewFieldError(name, name+" deve ser um numero inteiro")
	}
	return &v, nil
}

// queryList splits a comma separated param, dropping blanks.
func queryList(ctx echo.Context, name string) []string {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
