package routes

import (
	"net/http"

	"github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/labstack/echo/v4"
)

// ResolveHandler resolves a single mention
func ResolveHandler(c echo.Context) error {
	type resolveBody struct {
		Text     string `json:"text"`
		Category string `json:"category" validate:"required"`
		Trace    bool   `json:"trace"`
	}

	type resolveResponse struct {
		Message  string                 `json:"message"`
		Resolved bool                   `json:"resolved"`
		Entity   *common.ResolvedEntity `json:"entity,omitempty"`
		Trace    []resolver.TraceEvent  `json:"trace,omitempty"`
	}

	data := new(resolveBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveResponse{
			Message: "Invalid request body",
		})
	}

	category, err := common.ParseCategory(data.Category)
	if err != nil {
		return c.JSON(http.StatusBadRequest, resolveResponse{
			Message: "Unsupported category",
		})
	}

	ctx := c.Request().Context()
	var trace *resolver.ResolutionTrace
	if data.Trace {
		trace = resolver.NewResolutionTrace()
		ctx = resolver.ContextWithTracer(ctx, trace)
	}

	r := c.(*middleware.AppContext).App.Resolver
	entity, ok := r.Resolve(ctx, data.Text, category)

	res := resolveResponse{
		Message:  "Entity resolved",
		Resolved: ok,
		Entity:   entity,
		Trace:    trace.Events(),
	}
	if !ok {
		res.Message = "Entity could not be resolved"
	}
	return c.JSON(http.StatusOK, res)
}
