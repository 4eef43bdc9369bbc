package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/core/ctxutil"
	"github.com/trezcool/nexus/core/user"
)

// roleMiddleware lets through the authenticated users having one of roles (any role when empty).
// The user is loaded into the context for the handlers.
func roleMiddleware(svc user.Service, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if len(roles) == 0 {
				return next(ctx)
			}
			for _, role := range roles {
				if usr.Role == role {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func contextUser(ctx echo.Context) user.User {
	usr, _ := ctx.Get(contextUserKey).(user.User)
	return usr
}

// requestContext exposes the X-Request-ID to the handlers' context.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if id := ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := ctx.Request()
			ctx.SetRequest(req.WithContext(ctxutil.WithRequestID(req.Context(), id)))
		}
		return next(ctx)
	}
}

func requestLogger(logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			req, res := ctx.Request(), ctx.Response()
			fields := map[string]interface{}{
				"method":     req.Method,
				"uri":        req.RequestURI,
				"status":     res.Status,
				"latency":    time.Since(start).String(),
				"remote_ip":  ctx.RealIP(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			}
			if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
				logger.Info("request", fields, usr)
			} else {
				logger.Info("request", fields)
			}
			return nil
		}
	}
}
