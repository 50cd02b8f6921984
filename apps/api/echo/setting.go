package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
)

type settingApi struct {
	svc      *setting.Service
	staffSvc *staff.Service
}

func registerSettingAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := settingApi{svc: deps.SettingSvc, staffSvc: deps.StaffSvc}

	sg := g.Group("/settings", jwt)
	sg.GET("/edit-window", api.editWindow)
	sg.PUT("/edit-window", api.setEditWindow, adminMiddleware(api.staffSvc))
}

func (api *settingApi) editWindow(ctx echo.Context) error {
	minutes, err := api.svc.EditWindowMinutes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reading edit window")
	}
	return ctx.JSON(http.StatusOK, EditWindow{Minutes: minutes})
}

func (api *settingApi) setEditWindow(ctx echo.Context) error {
	var data EditWindow
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditWindow")
	}
	actor, err := contextActor(ctx, api.staffSvc, staff.RoleAdmin)
	if err != nil {
		return err
	}
	if err := api.svc.SetEditWindowMinutes(ctx.Request().Context(), actor, data.Minutes); err != nil {
		if core.IsValidationError(err) || errors.Cause(err) == setting.ErrPermissionDenied {
			return err
		}
		return errors.Wrap(err, "storing edit window")
	}
	return ctx.JSON(http.StatusOK, data)
}

type EditWindow struct {
	Minutes int `json:"minutes"`
}
