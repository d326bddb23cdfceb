package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/resolver"
)

// App holds the shared, request independent dependencies of the handlers.
type App struct {
	Resolver  *resolver.Resolver
	Extractor ai.ExtractionClient
	Gatherer  prometheus.Gatherer
	APIKey    string
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
