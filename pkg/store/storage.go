package store

import (
	"context"
	"errors"
)

var (
	// ErrSecurityBlock is returned when the backend rejects a statement because
	// the session is read-only or lacks privileges.
	ErrSecurityBlock = errors.New("graph store rejected the query: read-only access")
	// ErrUnparseableRecord is returned when a result row lacks the fields a
	// template promises.
	ErrUnparseableRecord = errors.New("graph store returned an unparseable record")
)

// Record is a single scored node returned by a lookup. Score holds the
// template's score field: 1.0 for direct matches, the relevance score for
// full-text search and the cosine similarity for vector search.
type Record struct {
	Name     string
	NodeType string
	Score    float64
}

// Params are the runtime parameters of a lookup. Only the fields the
// template's kind needs are read.
type Params struct {
	SearchTerm          string
	Embedding           []float32
	TopK                int
	SimilarityThreshold float64
}

// Store is a read-only property graph exposing the three lookup primitives
// used by entity resolution. Implementations must be safe for concurrent use
// and must never mutate the graph.
type Store interface {
	RunReadQuery(ctx context.Context, tmpl QueryTemplate, params Params) ([]Record, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, tmpl QueryTemplate, params Params) ([]Record, error)

func (f StoreFunc) RunReadQuery(ctx context.Context, tmpl QueryTemplate, params Params) ([]Record, error) {
	return f(ctx, tmpl, params)
}
