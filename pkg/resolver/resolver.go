package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medkg/backend/pkg/ai"
	"github.com/medkg/backend/pkg/common"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/store"
)

// Resolver maps free-text mentions to canonical graph nodes by running a
// per-category cascade of lookup strategies. The first strategy whose best
// record is accepted wins.
//
// A Resolver holds no per-call state and is safe for concurrent use as long
// as its Store and EmbeddingClient are.
type Resolver struct {
	store       store.Store
	embedder    ai.EmbeddingClient
	cascades    map[common.EntityCategory][]Strategy
	callTimeout time.Duration
	workers     int
	memoize     bool
	tracer      Tracer
}

// NewResolverParams configures NewResolver. Embedder may be nil, in which
// case embedding strategies always yield nothing.
type NewResolverParams struct {
	Store    store.Store
	Embedder ai.EmbeddingClient
	Config   Config
}

type ResolverOption func(*Resolver)

// WithTracer sets the tracer that receives events of every resolution.
func WithTracer(t Tracer) ResolverOption {
	return func(r *Resolver) {
		r.tracer = t
	}
}

// WithCascade replaces the cascade used for category.
func WithCascade(category common.EntityCategory, strategies ...Strategy) ResolverOption {
	return func(r *Resolver) {
		r.cascades[category] = strategies
	}
}

func NewResolver(params NewResolverParams, opts ...ResolverOption) (*Resolver, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("resolver needs a graph store")
	}

	timeout := params.Config.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	workers := params.Config.Workers
	if workers <= 0 {
		workers = 1
	}

	r := &Resolver{
		store:       params.Store,
		embedder:    params.Embedder,
		cascades:    BuildCascades(params.Config),
		callTimeout: timeout,
		workers:     workers,
		memoize:     params.Config.Memoize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}

	for category, cascade := range r.cascades {
		for _, s := range cascade {
			if err := s.validate(); err != nil {
				return nil, fmt.Errorf("invalid cascade for %s: %w", category, err)
			}
		}
	}
	return r, nil
}

// Cascade returns a copy of the strategies used for category.
func (r *Resolver) Cascade(category common.EntityCategory) []Strategy {
	cascade := r.cascades[category]
	out := make([]Strategy, len(cascade))
	copy(out, cascade)
	return out
}

// Resolve maps text of the given category to a graph node.
//
// It returns false when text is blank, the category is unsupported or no
// strategy accepted a record. Dependency failures never escape: they are
// logged and the failing strategy is skipped.
func (r *Resolver) Resolve(
	ctx context.Context,
	text string,
	category common.EntityCategory,
) (*common.ResolvedEntity, bool) {
	tracer := r.tracerFor(ctx)

	term := strings.TrimSpace(text)
	if term == "" {
		logger.Warn("[Resolver] Skipping empty entity text", "category", category)
		return nil, false
	}

	cascade, ok := r.cascades[category]
	if !ok || len(cascade) == 0 {
		logger.Warn("[Resolver] Unsupported entity category", "text", text, "category", category)
		return nil, false
	}

	var (
		embedding []float32
		embedded  bool
	)

	for _, s := range cascade {
		if ctx.Err() != nil {
			break
		}

		params := store.Params{SearchTerm: term}
		if s.NeedsEmbedding() {
			if !embedded {
				embedding = r.embed(ctx, term, category, tracer)
				embedded = true
			}
			if embedding == nil {
				continue
			}
			params.Embedding = embedding
			params.TopK = s.TopK
			params.SimilarityThreshold = s.Threshold
		} else if s.Accept == AcceptAboveThreshold {
			params.SimilarityThreshold = s.Threshold
		}

		entity := r.runStrategy(ctx, s, text, category, params, tracer)
		if entity != nil {
			RecordOutcome(tracer, text, category, entity)
			logger.Debug(
				"[Resolver] Resolved entity",
				"text", text,
				"category", category,
				"resolved_name", entity.ResolvedName,
				"method", entity.MatchMethod,
				"score", entity.MatchScore,
			)
			return entity, true
		}
	}

	RecordOutcome(tracer, text, category, nil)
	logger.Warn("[Resolver] Could not resolve entity", "text", text, "category", category)
	return nil, false
}

func (r *Resolver) runStrategy(
	ctx context.Context,
	s Strategy,
	text string,
	category common.EntityCategory,
	params store.Params,
	tracer Tracer,
) *common.ResolvedEntity {
	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	records, err := r.store.RunReadQuery(cctx, s.Template, params)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		r.logStrategyError(s, text, category, err, tracer)
		return nil
	}

	best, ok := bestRecord(records)
	if !ok {
		RecordAttempt(tracer, text, category, s.Method, len(records), 0, false, duration)
		return nil
	}

	accepted := s.accepts(best.Score)
	RecordAttempt(tracer, text, category, s.Method, len(records), best.Score, accepted, duration)
	if !accepted {
		return nil
	}

	score := best.Score
	if s.Accept == AcceptAlways {
		score = 1.0
	}
	return &common.ResolvedEntity{
		OriginalText: text,
		ResolvedName: best.Name,
		NodeType:     best.NodeType,
		MatchScore:   max(score, 0),
		MatchMethod:  s.Method,
	}
}

func (r *Resolver) embed(
	ctx context.Context,
	term string,
	category common.EntityCategory,
	tracer Tracer,
) []float32 {
	if r.embedder == nil {
		RecordEmbeddingFailure(tracer, term, category, errors.New("no embedding client configured"))
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	vec, err := r.embedder.GenerateEmbedding(cctx, []byte(term))
	if err == nil && ai.IsZeroVector(vec) {
		err = ai.ErrEmptyEmbedding
	}
	if err != nil {
		logger.Error("[Resolver] Failed to embed entity text", "text", term, "category", category, "err", err)
		RecordEmbeddingFailure(tracer, term, category, err)
		return nil
	}
	return vec
}

func (r *Resolver) logStrategyError(
	s Strategy,
	text string,
	category common.EntityCategory,
	err error,
	tracer Tracer,
) {
	switch {
	case errors.Is(err, store.ErrSecurityBlock):
		logger.Error(
			"[Resolver] Security block: graph store refused read query",
			"text", text,
			"category", category,
			"method", s.Method,
			"template", s.Template.Name,
			"err", err,
		)
		RecordStrategyError(tracer, text, category, s.Method, ErrorClassSecurityBlock, err)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Error(
			"[Resolver] Graph store query timed out",
			"text", text,
			"category", category,
			"method", s.Method,
			"timeout", r.callTimeout,
		)
		RecordStrategyError(tracer, text, category, s.Method, ErrorClassTimeout, err)
	default:
		logger.Error(
			"[Resolver] Graph store query failed",
			"text", text,
			"category", category,
			"method", s.Method,
			"err", err,
		)
		RecordStrategyError(tracer, text, category, s.Method, ErrorClassDependency, err)
	}
}

func (r *Resolver) tracerFor(ctx context.Context) Tracer {
	fromCtx := tracerFromContext(ctx)
	switch {
	case fromCtx == nil:
		return r.tracer
	case r.tracer == nil:
		return fromCtx
	}
	return MultiTracer{r.tracer, fromCtx}
}

// bestRecord picks the highest scoring record with a name. Ties keep the
// earliest record.
func bestRecord(records []store.Record) (store.Record, bool) {
	var (
		best  store.Record
		found bool
	)
	for _, rec := range records {
		if rec.Name == "" {
			continue
		}
		if !found || rec.Score > best.Score {
			best = rec
			found = true
		}
	}
	return best, found
}
