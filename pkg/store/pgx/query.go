package pgx

import (
	"fmt"
	"strings"

	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/store"

	"github.com/pgvector/pgvector-go"
)

// fullTextWeights are the ts_rank_cd label weights in {D, C, B, A} order.
// Names carry weight A and aliases weight B, so a one-word cover scores the
// weight of its label and a multi-word cover over adjacent name words scores
// 1.0. Ranks are not normalised, which keeps them on the scale the
// fulltext thresholds are configured in.
var fullTextWeights = [4]float64{0.1, 0.2, 0.75, 1.0}

var fullTextRank = fmt.Sprintf(
	"ts_rank_cd('{%g, %g, %g, %g}'::float4[], search_tsv, q)",
	fullTextWeights[0], fullTextWeights[1], fullTextWeights[2], fullTextWeights[3],
)

// buildSQL renders tmpl for the graph_nodes table. Every query selects
// (name, score, label) in that order.
//
// The primary name is the name column unless the template names another
// property, which is then read from properties. Alias fields are JSON arrays
// in properties.
func buildSQL(tmpl store.QueryTemplate, params store.Params) (string, []any, error) {
	if err := tmpl.Validate(); err != nil {
		return "", nil, err
	}

	nameExpr := nameExpression(tmpl.NameField)
	var (
		b    strings.Builder
		args []any
	)

	switch tmpl.Kind {
	case store.KindDirect:
		term := util.NormalizeSearchTerm(params.SearchTerm)
		if term == "" {
			return "", nil, fmt.Errorf("%s: empty search term", tmpl.Name)
		}
		args = []any{tmpl.Label, term, tmpl.EffectiveLimit()}

		fmt.Fprintf(&b, "SELECT %s AS name, 1.0::float8 AS score, label\nFROM graph_nodes\nWHERE label = $1\n  AND (", nameExpr)
		for i, f := range tmpl.SearchFields() {
			if i > 0 {
				b.WriteString("\n    OR ")
			}
			if f == tmpl.NameField {
				fmt.Fprintf(&b, "strpos(lower(%s), lower($2)) > 0", nameExpr)
				continue
			}
			fmt.Fprintf(&b,
				"EXISTS (SELECT 1 FROM jsonb_array_elements_text(coalesce(properties->'%s', '[]'::jsonb)) AS alias WHERE strpos(lower(alias), lower($2)) > 0)",
				f,
			)
		}
		b.WriteString(")\nORDER BY id\nLIMIT $3")

	case store.KindFullText:
		term := util.NormalizeSearchTerm(params.SearchTerm)
		if term == "" {
			return "", nil, fmt.Errorf("%s: empty search term", tmpl.Name)
		}
		args = []any{tmpl.Label, term, params.SimilarityThreshold, tmpl.EffectiveLimit()}

		fmt.Fprintf(&b, "SELECT %s AS name, %s::float8 AS score, label\n", nameExpr, fullTextRank)
		b.WriteString("FROM graph_nodes, websearch_to_tsquery('simple', $2) AS q\n")
		fmt.Fprintf(&b, "WHERE label = $1\n  AND search_tsv @@ q\n  AND %s > $3\n", fullTextRank)
		b.WriteString("ORDER BY score DESC\nLIMIT $4")

	case store.KindVector:
		if len(params.Embedding) == 0 {
			return "", nil, fmt.Errorf("%s: empty embedding", tmpl.Name)
		}
		topK := params.TopK
		if topK <= 0 {
			topK = tmpl.EffectiveLimit()
		}
		args = []any{tmpl.Label, pgvector.NewVector(params.Embedding), params.SimilarityThreshold, topK}

		fmt.Fprintf(&b, "SELECT %s AS name, (1 - (embedding <=> $2))::float8 AS score, label\n", nameExpr)
		b.WriteString("FROM graph_nodes\n")
		b.WriteString("WHERE label = $1\n  AND embedding IS NOT NULL\n  AND 1 - (embedding <=> $2) > $3\n")
		b.WriteString("ORDER BY embedding <=> $2\nLIMIT $4")
	}

	query := b.String()
	if err := store.CheckReadOnly(query); err != nil {
		return "", nil, err
	}
	return query, args, nil
}

func nameExpression(field string) string {
	if field == "" || field == "name" {
		return "name"
	}
	return fmt.Sprintf("coalesce(properties->>'%s', name)", field)
}
