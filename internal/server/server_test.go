package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mid "github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/resolver"
	"github.com/medkg/backend/pkg/store"

	"github.com/prometheus/client_golang/prometheus"
)

// graph answers direct lookups for a fixed set of names.
func graph(names map[string]string) store.Store {
	return store.StoreFunc(func(ctx context.Context, tmpl store.QueryTemplate, params store.Params) ([]store.Record, error) {
		if tmpl.Kind != store.KindDirect {
			return nil, nil
		}
		name, ok := names[strings.ToLower(params.SearchTerm)]
		if !ok {
			return nil, nil
		}
		return []store.Record{{Name: name, NodeType: tmpl.Label, Score: 1}}, nil
	})
}

type fakeExtractor struct {
	candidates []common.Candidate
	err        error
}

func (f fakeExtractor) ExtractCandidates(ctx context.Context, req ai.ExtractionRequest) ([]common.Candidate, error) {
	return f.candidates, f.err
}

func newTestApp(t *testing.T) *mid.App {
	t.Helper()
	r, err := resolver.NewResolver(resolver.NewResolverParams{
		Store:  graph(map[string]string{"tylenol": "Acetaminophen", "zinc": "Zinc"}),
		Config: resolver.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return &mid.App{Resolver: r}
}

func do(t *testing.T, app *mid.App, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := New(app, "")
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestResolveHandler(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantCode     int
		wantResolved bool
		wantName     string
	}{
		{"direct hit", `{"text":"Tylenol","category":"MEDICATION"}`, http.StatusOK, true, "Acetaminophen"},
		{"lower case category", `{"text":"zinc","category":"nutrient"}`, http.StatusOK, true, "Zinc"},
		{"miss", `{"text":"xyzzy","category":"SYMPTOM"}`, http.StatusOK, false, ""},
		{"whitespace text", `{"text":"   ","category":"SYMPTOM"}`, http.StatusOK, false, ""},
		{"empty text", `{"text":"","category":"SYMPTOM"}`, http.StatusOK, false, ""},
		{"missing text", `{"category":"SYMPTOM"}`, http.StatusOK, false, ""},
		{"missing category", `{"text":"tylenol"}`, http.StatusBadRequest, false, ""},
		{"unknown category", `{"text":"tylenol","category":"FOOD"}`, http.StatusBadRequest, false, ""},
		{"malformed", `{"text":`, http.StatusBadRequest, false, ""},
	}

	app := newTestApp(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, app, http.MethodPost, "/api/resolve", tt.body, nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}

			var res struct {
				Resolved bool                   `json:"resolved"`
				Entity   *common.ResolvedEntity `json:"entity"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.Resolved != tt.wantResolved {
				t.Fatalf("expected resolved=%v, got %v", tt.wantResolved, res.Resolved)
			}
			if tt.wantResolved && (res.Entity == nil || res.Entity.ResolvedName != tt.wantName) {
				t.Fatalf("expected %q, got %+v", tt.wantName, res.Entity)
			}
		})
	}
}

func TestResolveHandlerTrace(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodPost, "/api/resolve", `{"text":"tylenol","category":"MEDICATION","trace":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var res struct {
		Trace []resolver.TraceEvent `json:"trace"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Trace) != 2 {
		t.Fatalf("expected attempt and outcome events, got %+v", res.Trace)
	}
	if res.Trace[0].Kind != resolver.TraceEventStrategyAttempt || res.Trace[1].Kind != resolver.TraceEventResolved {
		t.Fatalf("unexpected trace kinds %+v", res.Trace)
	}
}

func TestResolveBatchHandler(t *testing.T) {
	body := `{"candidates":[
		{"text":"tylenol","category":"MEDICATION"},
		{"text":"xyzzy","category":"SYMPTOM"},
		{"text":"zinc","category":"NUTRIENT"},
		{"text":"","category":"NUTRIENT"}
	],"workers":2}`

	rec := do(t, newTestApp(t), http.MethodPost, "/api/resolve/batch", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		BatchID    string                  `json:"batch_id"`
		Resolved   []common.ResolvedEntity `json:"resolved"`
		Unresolved []common.Candidate      `json:"unresolved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BatchID == "" {
		t.Fatal("expected batch id")
	}
	if len(res.Resolved) != 2 || res.Resolved[0].ResolvedName != "Acetaminophen" || res.Resolved[1].ResolvedName != "Zinc" {
		t.Fatalf("unexpected resolved %+v", res.Resolved)
	}
	if len(res.Unresolved) != 2 || res.Unresolved[0].Text != "xyzzy" || res.Unresolved[1].Text != "" {
		t.Fatalf("unexpected unresolved %+v", res.Unresolved)
	}
}

func TestResolveBatchHandlerEmpty(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodPost, "/api/resolve/batch", `{"candidates":[]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"resolved":[]`) || !strings.Contains(rec.Body.String(), `"unresolved":[]`) {
		t.Fatalf("expected empty lists, got %s", rec.Body.String())
	}
}

func TestResolveBatchHandlerRejectsUnknownCategory(t *testing.T) {
	rec := do(t, newTestApp(t), http.MethodPost, "/api/resolve/batch", `{"candidates":[{"text":"x","category":"FOOD"}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestExtractHandler(t *testing.T) {
	app := newTestApp(t)

	rec := do(t, app, http.MethodPost, "/api/extract", `{"message":"I take tylenol"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without extractor, got %d", rec.Code)
	}

	app.Extractor = fakeExtractor{candidates: []common.Candidate{
		{Text: "tylenol", Category: common.CategoryMedication},
		{Text: "fatigue", Category: common.CategorySymptom},
	}}
	rec = do(t, app, http.MethodPost, "/api/extract", `{"message":"I take tylenol and feel fatigue"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Candidates []common.Candidate      `json:"candidates"`
		Resolved   []common.ResolvedEntity `json:"resolved"`
		Unresolved []common.Candidate      `json:"unresolved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Candidates) != 2 || len(res.Resolved) != 1 || len(res.Unresolved) != 1 {
		t.Fatalf("unexpected response %+v", res)
	}

	rec = do(t, app, http.MethodPost, "/api/extract", `{"message":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty message, got %d", rec.Code)
	}

	app.Extractor = fakeExtractor{err: errors.New("model unavailable")}
	rec = do(t, app, http.MethodPost, "/api/extract", `{"message":"hi"}`, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 on extraction failure, got %d", rec.Code)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	app := newTestApp(t)
	app.APIKey = "secret"
	body := `{"text":"tylenol","category":"MEDICATION"}`

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		if rec := do(t, app, http.MethodPost, "/api/resolve", body, tt.header); rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
	}

	if rec := do(t, app, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health must not require a key, got %d", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	app := newTestApp(t)
	if rec := do(t, app, http.MethodGet, "/metrics", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected no metrics route without a gatherer, got %d", rec.Code)
	}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "medkg_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	app.Gatherer = reg

	rec := do(t, app, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "medkg_test_total 1") {
		t.Fatalf("unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}
}
