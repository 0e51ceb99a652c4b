package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// NewServer wires the routes the process serves: health checks and the
// distributor's loan notifications.
func NewServer(loans LoanUpdater, db Pinger, logger zerolog.Logger) *echo.Echo {
	log := logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Use(middleware.Recover())
	e.Use(RequestLogger(log))

	e.GET("/health", HandleHealth)
	if db != nil {
		e.GET("/ready", HandleReady(db))
	}
	e.POST("/odl/notify/:loan_id", HandleNotify(loans, log))
	return e
}
