package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

var (
	errUnauthorized   = core.NewAppError(core.CodeUnauthorized, "Token de autenticacao ausente ou invalido", http.StatusUnauthorized)
	errRefreshExpired = core.Forbidden("O prazo de renovacao do token expirou")
	errNoTenant       = core.Forbidden("Usuario sem tenant associado")
	errForbidden      = core.Forbidden("Permissao insuficiente para esta operacao")
	errNotAllowed     = core.NewAppError(core.CodeMethodNotAllowed, "Metodo nao permitido", http.StatusMethodNotAllowed)
	errBadBody        = core.BadRequest("Corpo da requisicao invalido")
	errInternal       = "Erro interno do servidor"
)

type (
	errorBody struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	}

	errorResponse struct {
		Error errorBody `json:"error"`
	}
)

func issues(flds []core.FieldError) map[string]interface{} {
	return map[string]interface{}{"issues": flds}
}

// httpError maps an echo.HTTPError raised by routing, binding or the JWT middleware.
func httpError(herr *echo.HTTPError) errorBody {
	if herr == middleware.ErrJWTMissing {
		return errorBody{Code: core.CodeUnauthorized, Message: errUnauthorized.Message}
	}
	if herr.Internal != nil {
		if inner, ok := herr.Internal.(*echo.HTTPError); ok {
			herr = inner
		}
	}
	switch herr.Code {
	case http.StatusUnauthorized:
		return errorBody{Code: core.CodeUnauthorized, Message: errUnauthorized.Message}
	case http.StatusForbidden:
		return errorBody{Code: core.CodeForbidden, Message: errForbidden.Message}
	case http.StatusNotFound:
		return errorBody{Code: core.CodeNotFound, Message: "Rota nao encontrada"}
	case http.StatusMethodNotAllowed:
		return errorBody{Code: core.CodeMethodNotAllowed, Message: errNotAllowed.Message}
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge:
		return errorBody{Code: core.CodeValidation, Message: errBadBody.Message}
	}
	msg, ok := herr.Message.(string)
	if !ok {
		msg = http.StatusText(herr.Code)
	}
	return errorBody{Code: core.CodeInternal, Message: msg}
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var body errorBody

		cause := errors.Cause(err)
		if herr, ok := cause.(*echo.HTTPError); ok {
			// custom json.Unmarshalers report field errors through the binder
			if vErr, ok := herr.Internal.(*core.ValidationError); ok {
				cause = vErr
			}
		}

		switch origErr := cause.(type) {
		case *core.AppError:
			code = origErr.Status
			body = errorBody{Code: origErr.Code, Message: origErr.Message, Details: origErr.Details}
		case *echo.HTTPError:
			code = origErr.Code
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
			} else if inner, ok := origErr.Internal.(*echo.HTTPError); ok {
				code = inner.Code
			}
			if code == http.StatusUnsupportedMediaType {
				code = http.StatusBadRequest
			}
			body = httpError(origErr)
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			body = errorBody{
				Code:    core.CodeValidation,
				Message: "Dados invalidos",
				Details: issues(core.FieldErrors(origErr, translator)),
			}
		case *core.ValidationError:
			code = http.StatusBadRequest
			body = errorBody{Code: core.CodeValidation, Message: origErr.Error()}
			if len(origErr.Fields) > 0 {
				body.Details = issues(origErr.Fields)
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			body = errorBody{Code: core.CodeInternal, Message: errInternal}
			if ctx.Echo().Debug {
				body.Message = err.Error()
			}

			if actor, ok := contextActor(ctx); ok {
				logger.Error(errInternal, errors.Wrap(err, ctx.Path()), actor)
			} else {
				logger.Error(errInternal, errors.Wrap(err, ctx.Path()))
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, errorResponse{Error: body})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
