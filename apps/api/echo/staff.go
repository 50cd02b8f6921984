package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

type staffApi struct {
	conf       *core.Config
	svc        *staff.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerStaffAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := staffApi{
		conf:       deps.Conf,
		svc:        deps.StaffSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}
	admin := adminMiddleware(api.svc)

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.me)
	ag.POST("/register", api.create, admin)
	ag.GET("", api.query, admin)
	ag.GET("/roles", api.queryRoles, admin)
	ag.GET("/:id", api.retrieve, admin)
	ag.PUT("/:id", api.update, admin)
}

// Handlers

func (api *staffApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}

	claims, err := authenticate(ctx.Request().Context(), api.conf, data.Username, data.Password, api.svc)
	if err != nil {
		return err
	}
	token, err := GenerateToken(api.conf, claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *staffApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *staffApi) me(ctx echo.Context) error {
	stf, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stf)
}

func (api *staffApi) create(ctx echo.Context) error {
	var data staff.NewStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStaff")
	}
	stf, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, stf)
}

func (api *staffApi) query(ctx echo.Context) error {
	filter := new(staff.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []staff.Staff{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		if core.IsValidationError(err) {
			return err
		}
		return errors.Wrap(err, "querying staff")
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *staffApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, staff.Roles)
}

func (api *staffApi) retrieve(ctx echo.Context) error {
	stf, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stf)
}

func (api *staffApi) update(ctx echo.Context) error {
	var data staff.UpdateStaff
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStaff")
	}

	// Say No to Suicide! an admin cannot deactivate themselves
	ctxStf, err := getContextStaff(ctx, api.svc)
	if err != nil {
		return err
	}
	if ctxStf.ID == ctx.Param("id") && data.IsActive != nil && !*data.IsActive {
		return errHttpForbidden
	}

	stf, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stf)
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate, translator ut.Translator) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	if err := validate.Struct(lr); err != nil {
		return core.TranslateValidationErrors(err, translator)
	}
	return nil
}
