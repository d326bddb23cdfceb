package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"
)

// ExtractionRequest is a user message plus the entities mentioned earlier in
// the conversation.
type ExtractionRequest struct {
	Message                string   `json:"message" validate:"required"`
	AccumulatedMedications []string `json:"accumulated_medications,omitempty"`
	AccumulatedNutrients   []string `json:"accumulated_nutrients,omitempty"`
	AccumulatedSymptoms    []string `json:"accumulated_symptoms,omitempty"`
}

// ExtractionClient turns free text into resolution candidates.
type ExtractionClient interface {
	ExtractCandidates(ctx context.Context, req ExtractionRequest) ([]common.Candidate, error)
}

type extractedEntity struct {
	Text       string  `json:"text" jsonschema:"description=The entity as written in the message"`
	Type       string  `json:"type" jsonschema:"enum=MEDICATION,enum=NUTRIENT,enum=SYMPTOM,enum=DRUG_CLASS"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
}

type extractionResponse struct {
	Entities []extractedEntity `json:"entities"`
}

// Extractor implements ExtractionClient on top of any CompletionClient using
// structured output.
type Extractor struct {
	client        CompletionClient
	minConfidence float64
	opts          []GenerateOption
}

type ExtractorOption func(*Extractor)

// WithMinConfidence drops entities the model is less sure about than min.
func WithMinConfidence(min float64) ExtractorOption {
	return func(e *Extractor) {
		e.minConfidence = min
	}
}

// WithGenerateOptions passes opts to every completion request.
func WithGenerateOptions(opts ...GenerateOption) ExtractorOption {
	return func(e *Extractor) {
		e.opts = append(e.opts, opts...)
	}
}

func NewExtractor(client CompletionClient, opts ...ExtractorOption) *Extractor {
	e := &Extractor{client: client}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

// ExtractCandidates asks the model for the entities in req.Message. Entities
// with an unknown type or blank text are dropped. Duplicates are kept.
func (e *Extractor) ExtractCandidates(ctx context.Context, req ExtractionRequest) ([]common.Candidate, error) {
	if strings.TrimSpace(req.Message) == "" {
		return []common.Candidate{}, nil
	}

	prompt := fmt.Sprintf(
		extractionPromptTemplate,
		req.Message,
		joinOrNone(req.AccumulatedMedications),
		joinOrNone(req.AccumulatedNutrients),
		joinOrNone(req.AccumulatedSymptoms),
	)

	opts := append([]GenerateOption{WithSystemPrompts(ExtractionSystemPrompt)}, e.opts...)

	var res extractionResponse
	if err := e.client.GenerateCompletionWithFormat(
		ctx,
		"entity_extraction",
		"Medical entities mentioned in a user message",
		prompt,
		&res,
		opts...,
	); err != nil {
		return nil, fmt.Errorf("failed to extract entities: %w", err)
	}

	out := make([]common.Candidate, 0, len(res.Entities))
	for _, ent := range res.Entities {
		category, err := common.ParseCategory(ent.Type)
		if err != nil {
			logger.Debug("[AI][Extract] Dropping entity with unknown type", "text", ent.Text, "type", ent.Type)
			continue
		}
		if ent.Confidence < e.minConfidence {
			continue
		}
		c := common.NewCandidate(ent.Text, category)
		if c.Text == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
