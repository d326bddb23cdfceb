package server

import (
	"github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiRoutes := e.Group("/api", middleware.APIKeyMiddleware)

	// Resolution routes
	apiRoutes.POST("/resolve", routes.ResolveHandler)
	apiRoutes.POST("/resolve/batch", routes.ResolveBatchHandler)

	// Extraction routes
	apiRoutes.POST("/extract", routes.ExtractHandler)
}
