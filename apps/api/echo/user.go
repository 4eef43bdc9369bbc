package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/user"
)

type userApi struct {
	svc        user.Service
	auth       *jwtAuth
	validate   *validator.Validate
	translator ut.Translator
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *jwtAuth, deps *Deps) {
	api := userApi{
		svc:        deps.UserSvc,
		auth:       auth,
		validate:   deps.Validate,
		translator: deps.Translator,
	}
	admin := roleMiddleware(api.svc, user.RoleAdmin)

	// auth
	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.GET("/me", api.me, jwt, roleMiddleware(api.svc))

	g.GET("/roles", api.queryRoles, jwt, admin)
	g.PUT("/advisors/me/availability", api.setAvailability, jwt, roleMiddleware(api.svc, user.RoleAdvisor))

	// one set of endpoints per collection
	for _, role := range user.Roles {
		role := role.Value
		cg := g.Group("/"+collectionOf(role), jwt)

		if role == user.RoleAdvisor {
			cg.GET("", api.query(role), roleMiddleware(api.svc, user.RoleAdmin, user.RoleStudent, user.RoleSchool))
		} else {
			cg.GET("", api.query(role), admin)
		}
		cg.POST("", api.create(role), admin)

		dg := cg.Group("/:id", admin, objectMiddleware(api.svc, role))
		dg.GET("", api.retrieve)
		dg.PUT("", api.update)
		dg.DELETE("", api.destroy)
	}
}

func collectionOf(role string) string {
	for _, r := range user.Roles {
		if r.Value == role {
			return r.Collection
		}
	}
	return role
}

// objectMiddleware loads the account of the `:id` path param. Accounts of another role are not found.
func objectMiddleware(svc user.Service, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if usr.Role != role {
				return errHttpNotFound
			}
			ctx.Set("object", usr)
			return next(ctx)
		}
	}
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	token, usr, err := api.auth.login(ctx, api.svc, data.Username, data.Password)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) me(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, contextUser(ctx))
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) query(role string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		filter := new(user.QueryFilter)
		if err := ctx.Bind(filter); err != nil {
			return ctx.JSON(http.StatusOK, []user.User{})
		}
		filter.Role = role
		orderings, err := bindOrderings(ctx, user.OrderFields)
		if err != nil {
			return err
		}

		users, err := api.svc.Query(ctx.Request().Context(), *filter, orderings)
		if err != nil {
			return errors.Wrap(err, "querying users")
		}
		if users == nil {
			users = []user.User{}
		}
		return ctx.JSON(http.StatusOK, users)
	}
}

func (api *userApi) create(role string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data user.NewUser
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewUser")
		}
		data.Role = role
		if err := data.Validate(api.validate); err != nil {
			return err
		}

		usr, err := api.svc.Create(ctx.Request().Context(), data)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		return ctx.JSON(http.StatusCreated, usr)
	}
}

func (api *userApi) retrieve(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ctx.Get("object"))
}

func (api *userApi) update(ctx echo.Context) error {
	usr := ctx.Get("object").(user.User)

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(usr, api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr := ctx.Get("object").(user.User)

	// admins cannot delete themselves
	if usr.ID == contextUser(ctx).ID {
		return errHttpForbidden
	}
	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) setAvailability(ctx echo.Context) error {
	var data AvailabilityRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AvailabilityRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.SetAvailability(ctx.Request().Context(), contextUser(ctx).ID, data.Status)
	if err != nil {
		return errors.Wrap(err, "setting availability")
	}
	ctx.Set(contextUserKey, usr)
	return ctx.JSON(http.StatusOK, usr)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	AvailabilityRequest struct {
		Status string `json:"status" validate:"required,oneof=active inactive"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (ar *AvailabilityRequest) Validate(validate *validator.Validate) error {
	ar.Status = core.CleanString(ar.Status, true /* lower */)
	return validate.Struct(ar)
}
