package store

import (
	"errors"
	"slices"
	"testing"

	"github.com/medkg/backend/pkg/common"
)

func TestDefaultTemplatesValidate(t *testing.T) {
	for _, c := range common.Categories {
		for _, tmpl := range []QueryTemplate{DirectTemplate(c), FullTextTemplate(c), VectorTemplate(c)} {
			if err := tmpl.Validate(); err != nil {
				t.Fatalf("%s: %v", tmpl.Name, err)
			}
		}
	}
}

func TestDirectTemplateSearchFields(t *testing.T) {
	tests := []struct {
		category common.EntityCategory
		want     []string
	}{
		{common.CategoryMedication, []string{"name", "brand_names", "synonyms"}},
		{common.CategoryNutrient, []string{"name", "synonyms"}},
		{common.CategorySymptom, []string{"name"}},
		{common.CategoryDrugClass, []string{"pharmacologic_class"}},
	}
	for _, tt := range tests {
		got := DirectTemplate(tt.category).SearchFields()
		if !slices.Equal(got, tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestIndexNames(t *testing.T) {
	if got := FullTextTemplate(common.CategoryDrugClass).Index; got != "pharmacologic_class_full_search" {
		t.Fatalf("unexpected drug class index %q", got)
	}
	if got := VectorTemplate(common.CategoryMedication).Index; got != "medicament_embeddings_index" {
		t.Fatalf("unexpected medication vector index %q", got)
	}
	if got := VectorTemplate(common.CategorySymptom).Index; got != "symptom_embeddings_index" {
		t.Fatalf("unexpected symptom vector index %q", got)
	}
	if got := VectorTemplate(common.CategorySymptom).ScoreField; got != ScoreFieldSimilarity {
		t.Fatalf("vector templates must report similarity, got %q", got)
	}
}

func TestValidateRejectsInjection(t *testing.T) {
	tmpl := DirectTemplate(common.CategoryMedication)
	tmpl.AliasFields = []string{"synonyms) DETACH DELETE m //"}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected invalid alias field to be rejected")
	}

	tmpl = FullTextTemplate(common.CategoryNutrient)
	tmpl.Index = "nutrient-full"
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected invalid index name to be rejected")
	}

	tmpl = FullTextTemplate(common.CategoryNutrient)
	tmpl.ScoreField = "rank"
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected unknown score field to be rejected")
	}
}

func TestEffectiveLimit(t *testing.T) {
	if got := (QueryTemplate{}).EffectiveLimit(); got != DefaultLimit {
		t.Fatalf("got %d, want %d", got, DefaultLimit)
	}
	if got := (QueryTemplate{Limit: 7}).EffectiveLimit(); got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		blocked bool
	}{
		{name: "match", query: "MATCH (n:Nutrient) RETURN n.name AS name LIMIT 3"},
		{name: "settings column is not SET", query: "SELECT settings FROM graph_nodes"},
		{name: "offset is not SET", query: "SELECT name FROM graph_nodes OFFSET 3"},
		{name: "create", query: "CREATE (n:Nutrient {name: 'x'})", blocked: true},
		{name: "lower case detach delete", query: "match (n) detach delete n", blocked: true},
		{name: "sql update", query: "UPDATE graph_nodes SET name = 'x'", blocked: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query)
			if tt.blocked {
				if !errors.Is(err, ErrSecurityBlock) {
					t.Fatalf("expected ErrSecurityBlock, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
	if err := CheckReadOnly("  "); err == nil {
		t.Fatal("expected empty query to be rejected")
	}
}
