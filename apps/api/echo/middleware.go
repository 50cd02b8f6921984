package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/staff"
)

// adminMiddleware lets through active staff holding the admin role.
func adminMiddleware(svc *staff.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if !core.StringInSlice(staff.RoleAdmin, claims.Roles) {
				return errHttpForbidden
			}
			stf, err := getContextStaff(ctx, svc)
			if err != nil {
				return err
			}
			if !stf.IsActive || !stf.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
