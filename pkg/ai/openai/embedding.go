package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/pkoukk/tiktoken-go"
)

// GenerateEmbedding creates a vector embedding for the given input text
// using the configured embedding model.
//
// Blank input returns ai.ErrEmptyEmbedding without calling the API. Inputs
// longer than the model's token limit are truncated.
func (c *OpenAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	text := strings.TrimSpace(string(input))
	if text == "" {
		return nil, ai.ErrEmptyEmbedding
	}
	if c.EmbeddingClient == nil {
		return nil, fmt.Errorf("openai embedding client is not configured")
	}

	if truncated, err := truncateTokens(text, c.maxEmbeddingTokens); err == nil {
		text = truncated
	} else {
		logger.Debug("[AI][OpenAI] Tokenizer unavailable, sending input untruncated", "err", err)
	}

	rCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: c.embeddingModel,
	}
	if c.embeddingDim > 0 {
		body.Dimensions = openai.Int(int64(c.embeddingDim))
	}

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	start := time.Now()
	response, err := c.EmbeddingClient.Embeddings.New(rCtx, body)
	if err != nil {
		return nil, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) == 0 {
		return nil, ai.ErrEmptyEmbedding
	}

	return fitDimensions(response.Data[0].Embedding, c.embeddingDim), nil
}

// fitDimensions converts v to float32 and truncates or zero-pads it to dim.
// A dim of zero keeps the model's native length.
func fitDimensions(v []float64, dim int) []float32 {
	if dim <= 0 {
		dim = len(v)
	}
	out := make([]float32, dim)
	for i := 0; i < dim && i < len(v); i++ {
		out[i] = float32(v[i])
	}
	return out
}

func truncateTokens(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return text, nil
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return "", err
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return enc.Decode(tokens[:maxTokens]), nil
}
