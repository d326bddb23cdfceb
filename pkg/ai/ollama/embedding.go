package ollama

import (
	"context"
	"strings"

	"github.com/medkg/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model on Ollama.
//
// Blank input returns ai.ErrEmptyEmbedding without calling the server.
func (c *OllamaClient) GenerateEmbedding(
	ctx context.Context,
	input []byte,
) ([]float32, error) {
	text := strings.TrimSpace(string(input))
	if text == "" {
		return nil, ai.ErrEmptyEmbedding
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	truncate := true
	req := &api.EmbedRequest{
		Model:    c.embeddingModel,
		Input:    text,
		Truncate: &truncate,
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	res, err := c.Client.Embed(rCtx, req)
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	if len(res.Embeddings) == 0 || len(res.Embeddings[0]) == 0 {
		return nil, ai.ErrEmptyEmbedding
	}

	return fitDimensions(res.Embeddings[0], c.embeddingDim), nil
}

// fitDimensions truncates or zero-pads v to dim. A dim of zero keeps the
// model's native length.
func fitDimensions(v []float32, dim int) []float32 {
	if dim <= 0 {
		dim = len(v)
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}
