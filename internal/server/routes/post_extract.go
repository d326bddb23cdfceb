package routes

import (
	"net/http"

	"github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ExtractHandler extracts candidates from a message and resolves them
func ExtractHandler(c echo.Context) error {
	type extractResponse struct {
		Message    string                  `json:"message"`
		Candidates []common.Candidate      `json:"candidates"`
		Resolved   []common.ResolvedEntity `json:"resolved"`
		Unresolved []common.Candidate      `json:"unresolved"`
	}

	data := new(ai.ExtractionRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	if app.Extractor == nil {
		return c.JSON(http.StatusServiceUnavailable, extractResponse{
			Message: "Extraction is not configured",
		})
	}

	ctx := c.Request().Context()
	candidates, err := app.Extractor.ExtractCandidates(ctx, *data)
	if err != nil {
		logger.Error("[Server][Extract] Failed to extract candidates", "err", err)
		return c.JSON(http.StatusBadGateway, extractResponse{
			Message: "Extraction failed",
		})
	}

	resolved, unresolved := app.Resolver.ResolveBatch(ctx, candidates)

	return c.JSON(http.StatusOK, extractResponse{
		Message:    "Message processed",
		Candidates: candidates,
		Resolved:   resolved,
		Unresolved: unresolved,
	})
}
