package resolver

import (
	"context"
	"sync"

	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type batchOptions struct {
	workers int
	memoize bool
	batchID string
}

type BatchOption func(*batchOptions)

// WithWorkers resolves up to n candidates concurrently.
func WithWorkers(n int) BatchOption {
	return func(o *batchOptions) {
		o.workers = n
	}
}

// WithMemoization reuses the result of an identical (text, category) pair
// within the same batch.
func WithMemoization(enabled bool) BatchOption {
	return func(o *batchOptions) {
		o.memoize = enabled
	}
}

// WithBatchID sets the identifier logged for the batch.
func WithBatchID(id string) BatchOption {
	return func(o *batchOptions) {
		o.batchID = id
	}
}

type outcome struct {
	entity *common.ResolvedEntity
	ok     bool
}

// ResolveBatch resolves every candidate independently and partitions the
// results. Both output slices keep the input order and duplicates are
// resolved once per occurrence.
func (r *Resolver) ResolveBatch(
	ctx context.Context,
	candidates []common.Candidate,
	opts ...BatchOption,
) ([]common.ResolvedEntity, []common.Candidate) {
	o := batchOptions{
		workers: r.workers,
		memoize: r.memoize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.batchID == "" {
		if id, err := gonanoid.New(); err == nil {
			o.batchID = id
		}
	}

	resolve := r.Resolve
	if o.memoize {
		resolve = newMemo(r.Resolve).resolve
	}

	outcomes := make([]outcome, len(candidates))
	if o.workers <= 1 || len(candidates) <= 1 {
		for i, c := range candidates {
			e, ok := resolve(ctx, c.Text, c.Category)
			outcomes[i] = outcome{entity: e, ok: ok}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.workers)
		for i, c := range candidates {
			g.Go(func() error {
				e, ok := resolve(ctx, c.Text, c.Category)
				outcomes[i] = outcome{entity: e, ok: ok}
				return nil
			})
		}
		_ = g.Wait()
	}

	resolved := make([]common.ResolvedEntity, 0, len(candidates))
	unresolved := make([]common.Candidate, 0)
	for i, out := range outcomes {
		if out.ok && out.entity != nil {
			e := *out.entity
			e.OriginalText = candidates[i].Text
			resolved = append(resolved, e)
			continue
		}
		unresolved = append(unresolved, candidates[i])
	}

	logger.Info(
		"[Resolver][Batch] Resolved batch",
		"batch_id", o.batchID,
		"candidates", len(candidates),
		"resolved", len(resolved),
		"unresolved", len(unresolved),
		"workers", o.workers,
	)
	return resolved, unresolved
}

type resolveFunc func(ctx context.Context, text string, category common.EntityCategory) (*common.ResolvedEntity, bool)

// memo caches outcomes for one batch. Concurrent lookups of the same key
// share a single resolution.
type memo struct {
	fn    resolveFunc
	group singleflight.Group

	mu    sync.Mutex
	cache map[string]outcome
}

func newMemo(fn resolveFunc) *memo {
	return &memo{fn: fn, cache: make(map[string]outcome)}
}

func (m *memo) resolve(ctx context.Context, text string, category common.EntityCategory) (*common.ResolvedEntity, bool) {
	key := string(category) + "\x00" + text

	m.mu.Lock()
	if out, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return out.entity, out.ok
	}
	m.mu.Unlock()

	v, _, _ := m.group.Do(key, func() (any, error) {
		e, ok := m.fn(ctx, text, category)
		out := outcome{entity: e, ok: ok}
		m.mu.Lock()
		m.cache[key] = out
		m.mu.Unlock()
		return out, nil
	})
	out := v.(outcome)
	return out.entity, out.ok
}
