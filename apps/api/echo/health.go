package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/nexus/core"
	"github.com/trezcool/nexus/services/metrics"
	"github.com/trezcool/nexus/storage/database"
)

func registerHealthAPI(e *echo.Echo, db core.Pinger) {
	e.GET("/healthz", healthCheck(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// healthCheck answers 503 when the database does not answer the ping.
func healthCheck(db core.Pinger) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := database.StatusCheck(ctx.Request().Context(), db)
		metrics.ObserveDBPing(time.Since(start))
		if err != nil {
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "db not ready"})
		}
		return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}
