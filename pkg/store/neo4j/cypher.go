package neo4j

import (
	"fmt"
	"strings"

	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/store"
)

var luceneEscaper = strings.NewReplacer(
	`\`, `\\`,
	`+`, `\+`,
	`-`, `\-`,
	`&`, `\&`,
	`|`, `\|`,
	`!`, `\!`,
	`(`, `\(`,
	`)`, `\)`,
	`{`, `\{`,
	`}`, `\}`,
	`[`, `\[`,
	`]`, `\]`,
	`^`, `\^`,
	`"`, `\"`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
	`/`, `\/`,
)

// escapeLucene makes user text safe to pass to a full-text index query.
// Special characters are backslash escaped. The query parser only treats
// upper case AND, OR and NOT as operators, so those words are lower cased;
// the index analyzer lower cases terms anyway.
func escapeLucene(s string) string {
	words := strings.Fields(luceneEscaper.Replace(s))
	for i, w := range words {
		switch w {
		case "AND", "OR", "NOT":
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}

// buildCypher renders tmpl. Labels and properties come from the validated
// template; everything user supplied is passed as a parameter.
func buildCypher(tmpl store.QueryTemplate, params store.Params) (string, map[string]any, error) {
	if err := tmpl.Validate(); err != nil {
		return "", nil, err
	}

	args := map[string]any{
		"node_type": tmpl.Label,
		"limit":     int64(tmpl.EffectiveLimit()),
	}

	var b strings.Builder
	switch tmpl.Kind {
	case store.KindDirect:
		term := util.NormalizeSearchTerm(params.SearchTerm)
		if term == "" {
			return "", nil, fmt.Errorf("%s: empty search term", tmpl.Name)
		}
		args["search_term"] = term

		fields := tmpl.SearchFields()
		fmt.Fprintf(&b, "MATCH (n:%s)\nWHERE ", tmpl.Label)
		for i, f := range fields {
			if i > 0 {
				b.WriteString("\n   OR ")
			}
			if f == tmpl.NameField {
				fmt.Fprintf(&b, "toLower(n.%s) CONTAINS toLower($search_term)", f)
				continue
			}
			fmt.Fprintf(&b, "ANY(alias IN coalesce(n.%s, []) WHERE toLower(alias) CONTAINS toLower($search_term))", f)
		}
		fmt.Fprintf(&b, "\nRETURN n.%s AS name, 1.0 AS score, $node_type AS node_type\nLIMIT $limit", tmpl.NameField)

	case store.KindFullText:
		term := util.NormalizeSearchTerm(params.SearchTerm)
		if term == "" {
			return "", nil, fmt.Errorf("%s: empty search term", tmpl.Name)
		}
		args["index"] = tmpl.Index
		args["search_term"] = escapeLucene(term)
		args["min_score"] = params.SimilarityThreshold

		b.WriteString("CALL db.index.fulltext.queryNodes($index, $search_term)\nYIELD node, score\n")
		b.WriteString("WHERE score > $min_score\n")
		fmt.Fprintf(&b, "RETURN node.%s AS name, score, $node_type AS node_type\n", tmpl.NameField)
		b.WriteString("ORDER BY score DESC\nLIMIT $limit")

	case store.KindVector:
		if len(params.Embedding) == 0 {
			return "", nil, fmt.Errorf("%s: empty embedding", tmpl.Name)
		}
		topK := params.TopK
		if topK <= 0 {
			topK = tmpl.EffectiveLimit()
		}
		vec := make([]float64, len(params.Embedding))
		for i, v := range params.Embedding {
			vec[i] = float64(v)
		}
		args["index"] = tmpl.Index
		args["top_k"] = int64(topK)
		args["embedding_vector"] = vec
		args["similarity_threshold"] = params.SimilarityThreshold
		args["limit"] = int64(topK)

		b.WriteString("CALL db.index.vector.queryNodes($index, $top_k, $embedding_vector)\nYIELD node, score\n")
		b.WriteString("WHERE score > $similarity_threshold\n")
		fmt.Fprintf(&b, "RETURN node.%s AS name, score AS similarity, $node_type AS node_type\n", tmpl.NameField)
		b.WriteString("ORDER BY similarity DESC\nLIMIT $limit")
	}

	query := b.String()
	if err := store.CheckReadOnly(query); err != nil {
		return "", nil, err
	}
	return query, args, nil
}
