package openai

import (
	"math"
	"sync"
	"time"

	"github.com/medkg/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const defaultMaxEmbeddingTokens = 8191

// OpenAIClient talks to an OpenAI compatible API. It keeps separate clients
// for embeddings and chat so both can point at different deployments.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	embeddingModel     string
	extractionModel    string
	embeddingDim       int
	maxEmbeddingTokens int
	timeout            time.Duration

	chatURL string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewOpenAIClientParams configures NewOpenAIClient.
//
// EmbeddingDim, if set, is requested from the API and enforced on the result
// by truncating or padding. MaxEmbeddingTokens bounds the input length and
// defaults to 8191. Timeout applies to every request and defaults to one
// minute.
type NewOpenAIClientParams struct {
	EmbeddingModel     string
	ExtractionModel    string
	EmbeddingDim       int
	MaxEmbeddingTokens int

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

// NewOpenAIClient creates an OpenAIClient from params.
//
// Example:
//
//	client := openai.NewOpenAIClient(openai.NewOpenAIClientParams{
//		EmbeddingModel:  "text-embedding-3-small",
//		ExtractionModel: "gpt-4o-mini",
//		EmbeddingKey:    os.Getenv("OPENAI_API_KEY"),
//		ChatKey:         os.Getenv("OPENAI_API_KEY"),
//	})
func NewOpenAIClient(params NewOpenAIClientParams) *OpenAIClient {
	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	maxTokens := params.MaxEmbeddingTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxEmbeddingTokens
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &OpenAIClient{
		embeddingModel:     params.EmbeddingModel,
		extractionModel:    params.ExtractionModel,
		embeddingDim:       params.EmbeddingDim,
		maxEmbeddingTokens: maxTokens,
		timeout:            timeout,

		chatURL: params.ChatURL,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}

// ResetMetrics clears all accumulated token and timing metrics to zero.
func (c *OpenAIClient) ResetMetrics() {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = ai.ModelMetrics{}
}

// GetMetrics returns the accumulated token usage and timing metrics since the last reset.
func (c *OpenAIClient) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *OpenAIClient) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()

	c.metrics.InputTokens += m.InputTokens
	c.metrics.OutputTokens += m.OutputTokens
	c.metrics.TotalTokens += m.TotalTokens
	c.metrics.DurationMs += m.DurationMs

	if c.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(c.metrics.TotalTokens) * 1000.0) / float64(c.metrics.DurationMs)
		c.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}
