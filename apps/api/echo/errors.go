package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/heures/core"
	"github.com/trezcool/heures/core/session"
	"github.com/trezcool/heures/core/setting"
	"github.com/trezcool/heures/core/staff"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "staff not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errRoleRequired         = echo.NewHTTPError(http.StatusBadRequest, "role is required")
)

// domainStatus maps workflow errors to an HTTP status code.
func domainStatus(err error) (int, bool) {
	switch err {
	case session.ErrNotFound, session.ErrAttachmentNotFound, staff.ErrNotFound:
		return http.StatusNotFound, true
	case session.ErrPermissionDenied, session.ErrEditWindowExpired, setting.ErrPermissionDenied, staff.ErrRoleNotHeld:
		return http.StatusForbidden, true
	case session.ErrAttachmentsUnverified, session.ErrMissingConversion:
		return http.StatusUnprocessableEntity, true
	case session.ErrInvalidConversion:
		return http.StatusBadRequest, true
	case session.ErrAttachmentArchived, session.ErrConflict:
		return http.StatusConflict, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := domainStatus(cause); ok {
			code = status
			message = err.Error()
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if len(origErr.Fields) > 0 {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *session.StorageError:
				code = http.StatusServiceUnavailable
				message = http.StatusText(code)
				// already reported by the session engine
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(code)
				message = msg

				var actor staff.Actor
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					actor.ID = claims.Subject
				}
				logger.Error(msg, errors.Wrap(err, msg), actor)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
