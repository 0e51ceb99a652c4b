package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth reports basic liveness for the service.
func HandleHealth(c echo.Context) error {
	return c.String(stdhttp.StatusOK, "ok")
}

// HandleReady reports whether the service can reach its database.
func HandleReady(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			return writeError(c, stdhttp.StatusServiceUnavailable, "database_unavailable", "database unavailable")
		}
		return c.String(stdhttp.StatusOK, "ok")
	}
}
