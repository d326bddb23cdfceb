package store

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/medkg/backend/pkg/common"
)

// QueryKind selects which lookup primitive a template runs.
type QueryKind string

const (
	KindDirect   QueryKind = "direct"
	KindFullText QueryKind = "fulltext"
	KindVector   QueryKind = "vector"
)

const (
	ScoreFieldScore      = "score"
	ScoreFieldSimilarity = "similarity"

	DefaultLimit = 3
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QueryTemplate describes a prebuilt, parameterised lookup against one node
// label. Identifiers are interpolated into the backend query text, so they
// are validated before use; user input only ever travels in Params.
type QueryTemplate struct {
	Name        string
	Kind        QueryKind
	Label       string
	NameField   string
	AliasFields []string
	Index       string
	ScoreField  string
	Limit       int
}

// Validate checks that every identifier in t is safe to interpolate.
func (t QueryTemplate) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("query template has no name")
	}

	idents := []string{t.Label}
	switch t.Kind {
	case KindDirect:
		idents = append(idents, t.NameField)
		idents = append(idents, t.AliasFields...)
	case KindFullText, KindVector:
		idents = append(idents, t.Index)
	default:
		return fmt.Errorf("query template %s: unknown kind %q", t.Name, t.Kind)
	}

	for _, id := range idents {
		if !identifierPattern.MatchString(id) {
			return fmt.Errorf("query template %s: invalid identifier %q", t.Name, id)
		}
	}

	if t.ScoreField != ScoreFieldScore && t.ScoreField != ScoreFieldSimilarity {
		return fmt.Errorf("query template %s: invalid score field %q", t.Name, t.ScoreField)
	}
	if t.Limit < 0 {
		return fmt.Errorf("query template %s: negative limit", t.Name)
	}
	return nil
}

// SearchFields returns the name field followed by all alias fields.
func (t QueryTemplate) SearchFields() []string {
	out := make([]string, 0, 1+len(t.AliasFields))
	if t.NameField != "" {
		out = append(out, t.NameField)
	}
	for _, f := range t.AliasFields {
		if f == "" || slices.Contains(out, f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// EffectiveLimit returns the row limit, falling back to DefaultLimit.
func (t QueryTemplate) EffectiveLimit() int {
	if t.Limit <= 0 {
		return DefaultLimit
	}
	return t.Limit
}

// LabelFor returns the graph node label used for category.
func LabelFor(category common.EntityCategory) string {
	switch category {
	case common.CategoryMedication:
		return "Medicament"
	case common.CategoryNutrient:
		return "Nutrient"
	case common.CategorySymptom:
		return "Symptom"
	case common.CategoryDrugClass:
		return "PharmacologicClass"
	}
	return ""
}

// DirectTemplate returns the substring lookup for category.
func DirectTemplate(category common.EntityCategory) QueryTemplate {
	t := QueryTemplate{
		Name:       "direct_" + strings.ToLower(category.String()),
		Kind:       KindDirect,
		Label:      LabelFor(category),
		NameField:  "name",
		ScoreField: ScoreFieldScore,
		Limit:      DefaultLimit,
	}
	switch category {
	case common.CategoryMedication:
		t.AliasFields = []string{"brand_names", "synonyms"}
	case common.CategoryNutrient:
		t.AliasFields = []string{"synonyms"}
	case common.CategoryDrugClass:
		t.NameField = "pharmacologic_class"
	}
	return t
}

// FullTextTemplate returns the full-text index lookup for category.
func FullTextTemplate(category common.EntityCategory) QueryTemplate {
	indexes := map[common.EntityCategory]string{
		common.CategoryMedication: "medicament_full_search",
		common.CategoryNutrient:   "nutrient_full_search",
		common.CategorySymptom:    "symptom_full_search",
		common.CategoryDrugClass:  "pharmacologic_class_full_search",
	}
	return QueryTemplate{
		Name:       "fulltext_" + strings.ToLower(category.String()),
		Kind:       KindFullText,
		Label:      LabelFor(category),
		NameField:  DirectTemplate(category).NameField,
		Index:      indexes[category],
		ScoreField: ScoreFieldScore,
		Limit:      DefaultLimit,
	}
}

// VectorTemplate returns the vector index lookup for category.
func VectorTemplate(category common.EntityCategory) QueryTemplate {
	index := strings.ToLower(LabelFor(category)) + "_embeddings_index"
	return QueryTemplate{
		Name:       "vector_" + strings.ToLower(category.String()),
		Kind:       KindVector,
		Label:      LabelFor(category),
		NameField:  DirectTemplate(category).NameField,
		Index:      index,
		ScoreField: ScoreFieldSimilarity,
		Limit:      DefaultLimit,
	}
}

var writeKeywordPattern = regexp.MustCompile(
	`(?i)\b(CREATE|DELETE|DETACH|SET|MERGE|REMOVE|DROP|INSERT|UPDATE|ALTER|TRUNCATE|GRANT|REVOKE|COPY)\b`,
)

// CheckReadOnly rejects statements containing write keywords. Backends call
// it on the final query text before sending it.
func CheckReadOnly(query string) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("empty query")
	}
	if kw := writeKeywordPattern.FindString(query); kw != "" {
		return fmt.Errorf("%w: forbidden keyword %q", ErrSecurityBlock, strings.ToUpper(kw))
	}
	return nil
}
