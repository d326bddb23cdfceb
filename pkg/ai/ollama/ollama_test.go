package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/medkg/backend/pkg/ai"
)

func TestGenerateEmbedding(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "nomic-embed-text",
			"embeddings":        [][]float32{{0.1, 0.2, 0.3}},
			"prompt_eval_count": 3,
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(NewOllamaClientParams{
		EmbeddingModel: "nomic-embed-text",
		EmbeddingDim:   4,
		BaseURL:        srv.URL,
		ApiKey:         "secret",
	})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}

	vec, err := c.GenerateEmbedding(context.Background(), []byte("fatigue"))
	if err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	want := []float32{0.1, 0.2, 0.3, 0}
	if len(vec) != len(want) {
		t.Fatalf("got len %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("index %d: got %v, want %v", i, vec[i], want[i])
		}
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
	if m := c.GetMetrics(); m.InputTokens != 3 {
		t.Fatalf("expected metrics to count prompt tokens, got %+v", m)
	}
}

func TestGenerateEmbeddingEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(NewOllamaClientParams{EmbeddingModel: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	if _, err := c.GenerateEmbedding(context.Background(), []byte("x")); !errors.Is(err, ai.ErrEmptyEmbedding) {
		t.Fatalf("expected ErrEmptyEmbedding, got %v", err)
	}
	if _, err := c.GenerateEmbedding(context.Background(), nil); !errors.Is(err, ai.ErrEmptyEmbedding) {
		t.Fatalf("expected ErrEmptyEmbedding for nil input, got %v", err)
	}
}

func TestGenerateCompletionWithFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["format"]; !ok {
			t.Errorf("expected a format schema in the request")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3",
			"message": map[string]any{"role": "assistant", "content": `{"name": "Zinc",}`},
			"done":    true,
		})
	}))
	defer srv.Close()

	c, err := NewOllamaClient(NewOllamaClientParams{ExtractionModel: "llama3", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := c.GenerateCompletionWithFormat(context.Background(), "n", "d", "prompt", &out); err != nil {
		t.Fatalf("GenerateCompletionWithFormat: %v", err)
	}
	if out.Name != "Zinc" {
		t.Fatalf("got %q, want Zinc", out.Name)
	}
}
