package common

import (
	"fmt"
	"strings"
)

// EntityCategory is the closed set of entity kinds that can be resolved
// against the knowledge graph. The category decides which strategies and
// which graph indexes are used.
type EntityCategory string

const (
	CategoryMedication EntityCategory = "MEDICATION"
	CategoryNutrient   EntityCategory = "NUTRIENT"
	CategorySymptom    EntityCategory = "SYMPTOM"
	CategoryDrugClass  EntityCategory = "DRUG_CLASS"
)

// Categories lists every supported category in a stable order.
var Categories = []EntityCategory{
	CategoryMedication,
	CategoryNutrient,
	CategorySymptom,
	CategoryDrugClass,
}

// Valid reports whether c is one of the supported categories.
func (c EntityCategory) Valid() bool {
	switch c {
	case CategoryMedication, CategoryNutrient, CategorySymptom, CategoryDrugClass:
		return true
	}
	return false
}

func (c EntityCategory) String() string {
	return string(c)
}

// ParseCategory converts an external category string into an EntityCategory.
// Matching is case-insensitive and tolerates "drug class" / "drug-class".
// Unknown values are a caller error.
func ParseCategory(s string) (EntityCategory, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	c := EntityCategory(norm)
	if !c.Valid() {
		return "", fmt.Errorf("unsupported entity category %q", s)
	}
	return c, nil
}

// MatchMethod records which strategy of the resolution cascade produced a match.
type MatchMethod string

const (
	MatchDirect     MatchMethod = "direct"
	MatchFullText   MatchMethod = "fulltext"
	MatchEmbeddings MatchMethod = "embeddings"
)

// Candidate is an unresolved mention awaiting graph lookup.
type Candidate struct {
	Text     string         `json:"text"`
	Category EntityCategory `json:"category"`
}

// NewCandidate builds a Candidate with surrounding whitespace removed from text.
func NewCandidate(text string, category EntityCategory) Candidate {
	return Candidate{
		Text:     strings.TrimSpace(text),
		Category: category,
	}
}

// ResolvedEntity is a candidate that has been mapped to a canonical node of
// the knowledge graph.
//
// MatchScore semantics depend on MatchMethod: direct matches always carry 1.0,
// full-text matches carry the index relevance score and embedding matches the
// cosine similarity. Scores of different methods are not comparable.
type ResolvedEntity struct {
	OriginalText string      `json:"original_text"`
	ResolvedName string      `json:"resolved_name"`
	NodeType     string      `json:"node_type"`
	MatchScore   float64     `json:"match_score"`
	MatchMethod  MatchMethod `json:"match_method"`
}
