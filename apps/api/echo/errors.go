package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/kanban"
	"github.com/trezcool/nexus/core/notification"
	"github.com/trezcool/nexus/core/request"
	"github.com/trezcool/nexus/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")

	// domainErrors maps the domain errors to their HTTP status. The error text is the response message.
	domainErrors = map[error]int{
		user.ErrNotFound:             http.StatusNotFound,
		request.ErrNotFound:          http.StatusNotFound,
		kanban.ErrNotFound:           http.StatusNotFound,
		notification.ErrNotFound:     http.StatusNotFound,
		request.ErrForbidden:         http.StatusForbidden,
		kanban.ErrForbidden:          http.StatusForbidden,
		request.ErrInvalidTransition: http.StatusConflict,

		user.ErrUsernameExists:         http.StatusBadRequest,
		user.ErrCodeExists:             http.StatusBadRequest,
		user.ErrLastAdmin:              http.StatusBadRequest,
		user.ErrNotAdvisor:             http.StatusBadRequest,
		request.ErrInvalidType:         http.StatusBadRequest,
		request.ErrInitNotApproved:     http.StatusBadRequest,
		request.ErrDesignationRequired: http.StatusBadRequest,
		request.ErrAdvisorRequired:     http.StatusBadRequest,
		request.ErrAdvisorUnavailable:  http.StatusBadRequest,
		request.ErrTopicRequired:       http.StatusBadRequest,
		request.ErrObservationRequired: http.StatusBadRequest,
		kanban.ErrStudentNotAdvised:    http.StatusBadRequest,
		notification.ErrInvalidType:    http.StatusBadRequest,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
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
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if status, ok := domainErrors[origErr]; ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			fields := map[string]interface{}{
				"method": ctx.Request().Method,
				"path":   ctx.Path(),
			}
			if id, ok := ctxutil.RequestID(ctx.Request().Context()); ok {
				fields["request_id"] = id
			}
			args := []interface{}{errors.Wrap(err, msg), fields}
			if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
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
