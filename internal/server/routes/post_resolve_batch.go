package routes

import (
	"net/http"

	"github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type candidateBody struct {
	Text     string `json:"text"`
	Category string `json:"category" validate:"required"`
}

// parseCandidates converts request candidates. Blank texts are kept so they
// come back as unresolved.
func parseCandidates(in []candidateBody) ([]common.Candidate, error) {
	out := make([]common.Candidate, 0, len(in))
	for _, c := range in {
		category, err := common.ParseCategory(c.Category)
		if err != nil {
			return nil, err
		}
		out = append(out, common.Candidate{Text: c.Text, Category: category})
	}
	return out, nil
}

// ResolveBatchHandler resolves a list of mentions in input order
func ResolveBatchHandler(c echo.Context) error {
	type resolveBatchBody struct {
		Candidates []candidateBody `json:"candidates" validate:"required,dive"`
		Workers    int             `json:"workers" validate:"gte=0,lte=64"`
		Memoize    bool            `json:"memoize"`
	}

	type resolveBatchResponse struct {
		Message    string                  `json:"message"`
		BatchID    string                  `json:"batch_id,omitempty"`
		Resolved   []common.ResolvedEntity `json:"resolved"`
		Unresolved []common.Candidate      `json:"unresolved"`
	}

	data := new(resolveBatchBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveBatchResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolveBatchResponse{
			Message: "Invalid request body",
		})
	}

	candidates, err := parseCandidates(data.Candidates)
	if err != nil {
		return c.JSON(http.StatusBadRequest, resolveBatchResponse{
			Message: "Unsupported category",
		})
	}

	batchID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, resolveBatchResponse{
			Message: "Internal server error",
		})
	}

	opts := []resolver.BatchOption{resolver.WithBatchID(batchID)}
	if data.Workers > 0 {
		opts = append(opts, resolver.WithWorkers(data.Workers))
	}
	if data.Memoize {
		opts = append(opts, resolver.WithMemoization(true))
	}

	r := c.(*middleware.AppContext).App.Resolver
	resolved, unresolved := r.ResolveBatch(c.Request().Context(), candidates, opts...)

	return c.JSON(http.StatusOK, resolveBatchResponse{
		Message:    "Batch resolved",
		BatchID:    batchID,
		Resolved:   resolved,
		Unresolved: unresolved,
	})
}
