package resolver

import (
	"fmt"
	"time"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/store"
)

// AcceptPolicy decides whether the best record of a strategy is taken.
type AcceptPolicy int

const (
	// AcceptAlways takes the best record whatever its score.
	AcceptAlways AcceptPolicy = iota
	// AcceptAboveThreshold takes the best record only if its score is
	// strictly greater than the strategy threshold.
	AcceptAboveThreshold
)

// Strategy is one step of a resolution cascade.
type Strategy struct {
	Method    common.MatchMethod
	Template  store.QueryTemplate
	Accept    AcceptPolicy
	Threshold float64
	TopK      int
}

// NeedsEmbedding reports whether the strategy queries a vector index.
func (s Strategy) NeedsEmbedding() bool {
	return s.Template.Kind == store.KindVector
}

func (s Strategy) accepts(score float64) bool {
	if s.Accept == AcceptAlways {
		return true
	}
	return score > s.Threshold
}

func (s Strategy) validate() error {
	if err := s.Template.Validate(); err != nil {
		return err
	}
	if s.Accept == AcceptAboveThreshold && s.Threshold < 0 {
		return fmt.Errorf("strategy %s: negative threshold", s.Template.Name)
	}
	if s.NeedsEmbedding() && s.TopK <= 0 {
		return fmt.Errorf("strategy %s: top_k must be positive", s.Template.Name)
	}
	return nil
}

// CategoryConfig holds the tunables of one category's cascade.
type CategoryConfig struct {
	FullTextThreshold  float64
	EmbeddingThreshold float64
	EmbeddingsEnabled  bool
	TopK               int
}

// Config parameterises a Resolver. Missing categories fall back to
// DefaultConfig.
type Config struct {
	Categories  map[common.EntityCategory]CategoryConfig
	CallTimeout time.Duration
	Workers     int
	Memoize     bool
}

const (
	DefaultCallTimeout = 8 * time.Second
	DefaultTopK        = 3
)

// DefaultConfig returns the stock thresholds. Embedding search is enabled for
// medications and symptoms only.
func DefaultConfig() Config {
	return Config{
		Categories: map[common.EntityCategory]CategoryConfig{
			common.CategoryMedication: {
				FullTextThreshold:  0.5,
				EmbeddingThreshold: 0.95,
				EmbeddingsEnabled:  true,
				TopK:               DefaultTopK,
			},
			common.CategoryNutrient: {
				FullTextThreshold:  0.5,
				EmbeddingThreshold: 0.85,
				TopK:               DefaultTopK,
			},
			common.CategorySymptom: {
				FullTextThreshold:  0.5,
				EmbeddingThreshold: 0.75,
				EmbeddingsEnabled:  true,
				TopK:               DefaultTopK,
			},
			common.CategoryDrugClass: {
				FullTextThreshold: 0.5,
				TopK:              DefaultTopK,
			},
		},
		CallTimeout: DefaultCallTimeout,
		Workers:     1,
	}
}

// BuildCascade returns the ordered strategies for category:
// direct, then full-text, then embeddings if enabled.
func BuildCascade(category common.EntityCategory, cfg CategoryConfig) []Strategy {
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	cascade := []Strategy{
		{
			Method:   common.MatchDirect,
			Template: store.DirectTemplate(category),
			Accept:   AcceptAlways,
		},
		{
			Method:    common.MatchFullText,
			Template:  store.FullTextTemplate(category),
			Accept:    AcceptAboveThreshold,
			Threshold: cfg.FullTextThreshold,
		},
	}

	if cfg.EmbeddingsEnabled {
		vector := store.VectorTemplate(category)
		vector.Limit = topK
		cascade = append(cascade, Strategy{
			Method:    common.MatchEmbeddings,
			Template:  vector,
			Accept:    AcceptAboveThreshold,
			Threshold: cfg.EmbeddingThreshold,
			TopK:      topK,
		})
	}
	return cascade
}

// BuildCascades builds one cascade per supported category.
func BuildCascades(cfg Config) map[common.EntityCategory][]Strategy {
	defaults := DefaultConfig()
	out := make(map[common.EntityCategory][]Strategy, len(common.Categories))
	for _, c := range common.Categories {
		cc, ok := cfg.Categories[c]
		if !ok {
			cc = defaults.Categories[c]
		}
		out[c] = BuildCascade(c, cc)
	}
	return out
}
