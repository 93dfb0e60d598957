package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
	"github.com/ellahos/ellahos/core/user"
)

var userSortFields = []string{"full_name", "email", "role", "created_at", "last_login"}

type (
	loginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	resetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	loginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}
)

type authApi struct {
	auth     *authenticator
	svc      *user.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, authed []echo.MiddlewareFunc, auth *authenticator, svc *user.Service, validate *validator.Validate) {
	api := authApi{auth: auth, svc: svc, validate: validate}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/password-reset", api.requestPasswordReset)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, authed...)
}

func (api *authApi) login(ctx echo.Context) error {
	var data loginRequest
	if err := bind(ctx, &data, "loginRequest"); err != nil {
		return err
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	token, usr, err := api.auth.login(ctx, api.svc, data.Email, data.Password)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, loginResponse{Token: token, User: usr})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, tokenResponse{Token: token})
}

// requestPasswordReset always answers 200 so that emails cannot be enumerated.
func (api *authApi) requestPasswordReset(ctx echo.Context) error {
	var data resetRequest
	if err := bind(ctx, &data, "resetRequest"); err != nil {
		return err
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil && !core.IsNotFound(err) {
		return errors.Wrap(err, "requesting password reset")
	}
	return respond(ctx, http.StatusOK, echo.Map{
		"message": "Se o email estiver cadastrado, enviaremos um link de redefinicao de senha.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := bind(ctx, &data, "ResetUserPassword"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, echo.Map{"message": "Senha redefinida com sucesso"})
}

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *user.Service, validate *validator.Validate) {
	api := userApi{svc: svc, validate: validate}

	ug := g.Group("/users", authed...)
	ug.GET("/me", api.me)
	ug.PATCH("/me", api.updateMe)

	mg := ug.Group("", roleMiddleware(core.ManagerRoles...))
	mg.GET("", api.query)
	mg.POST("", api.create)
	mg.GET("/:id", api.retrieve)
	mg.PATCH("/:id", api.update)
}

func (api *userApi) me(ctx echo.Context) error {
	return respond(ctx, http.StatusOK, contextUser(ctx))
}

// updateMe lets any profile edit its own name, phone and password.
func (api *userApi) updateMe(ctx echo.Context) error {
	usr := contextUser(ctx)

	var data user.UpdateUser
	if err := bind(ctx, &data, "UpdateUser"); err != nil {
		return err
	}
	if data.Role != nil || data.IsActive != nil {
		return errForbidden
	}
	return api.save(ctx, usr, data)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Role:     ctx.QueryParam("role"),
		IsActive: queryBool(ctx, "is_active"),
	}
	page := pageParams(ctx, userSortFields, "created_at")

	users, total, err := api.svc.Query(ctx.Request().Context(), mustActor(ctx).TenantID, filter, page)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return respondPage(ctx, users, total, page)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := bind(ctx, &data, "NewUser"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), mustActor(ctx).TenantID, data)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, usr)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetInTenant(ctx.Request().Context(), mustActor(ctx).TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	actor := mustActor(ctx)
	usr, err := api.svc.GetInTenant(ctx.Request().Context(), actor.TenantID, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := bind(ctx, &data, "UpdateUser"); err != nil {
		return err
	}
	// a manager cannot lock themselves out
	if usr.ID == actor.UserID && (data.Role != nil || data.IsActive != nil) {
		return core.BusinessRule("Nao e possivel alterar o proprio papel ou status")
	}
	return api.save(ctx, usr, data)
}

func (api *userApi) save(ctx echo.Context, usr user.User, data user.UpdateUser) error {
	if err := data.Validate(usr, api.validate); err != nil {
		return err
	}
	updated, err := api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return respond(ctx, http.StatusOK, updated)
}
