package resolver

import (
	"context"
	"sync"

	"github.com/medkg/backend/pkg/common"
)

type TraceEventKind string

const (
	TraceEventStrategyAttempt  TraceEventKind = "strategy_attempt"
	TraceEventStrategyError    TraceEventKind = "strategy_error"
	TraceEventEmbeddingFailure TraceEventKind = "embedding_failure"
	TraceEventResolved         TraceEventKind = "resolved"
	TraceEventUnresolved       TraceEventKind = "unresolved"
)

// ErrorClass groups strategy failures for tracing.
type ErrorClass string

const (
	ErrorClassDependency    ErrorClass = "dependency"
	ErrorClassTimeout       ErrorClass = "timeout"
	ErrorClassSecurityBlock ErrorClass = "security_block"
)

// TraceEvent is an extensible event envelope for resolution tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`

	Text     string                `json:"text"`
	Category common.EntityCategory `json:"category"`
	Method   common.MatchMethod    `json:"method,omitempty"`

	Records    int     `json:"records,omitempty"`
	BestScore  float64 `json:"best_score,omitempty"`
	Accepted   bool    `json:"accepted,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	ErrorClass ErrorClass `json:"error_class,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Tracer is a sink for resolution tracing events.
// Implementations must be safe for concurrent use.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

type tracerKey struct{}

// ContextWithTracer attaches t to ctx. Events of calls made with the returned
// context go to t in addition to the resolver's own tracer.
func ContextWithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

func tracerFromContext(ctx context.Context) Tracer {
	t, _ := ctx.Value(tracerKey{}).(Tracer)
	return t
}

func RecordAttempt(t Tracer, text string, category common.EntityCategory, method common.MatchMethod, records int, best float64, accepted bool, durationMs int64) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{
		Kind:       TraceEventStrategyAttempt,
		Text:       text,
		Category:   category,
		Method:     method,
		Records:    records,
		BestScore:  best,
		Accepted:   accepted,
		DurationMs: durationMs,
	})
}

func RecordStrategyError(t Tracer, text string, category common.EntityCategory, method common.MatchMethod, class ErrorClass, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{
		Kind:       TraceEventStrategyError,
		Text:       text,
		Category:   category,
		Method:     method,
		ErrorClass: class,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

func RecordEmbeddingFailure(t Tracer, text string, category common.EntityCategory, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{
		Kind:     TraceEventEmbeddingFailure,
		Text:     text,
		Category: category,
		Method:   common.MatchEmbeddings,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

func RecordOutcome(t Tracer, text string, category common.EntityCategory, entity *common.ResolvedEntity) {
	if t == nil {
		return
	}
	if entity == nil {
		t.Record(TraceEvent{Kind: TraceEventUnresolved, Text: text, Category: category})
		return
	}
	t.Record(TraceEvent{
		Kind:      TraceEventResolved,
		Text:      text,
		Category:  category,
		Method:    entity.MatchMethod,
		BestScore: entity.MatchScore,
		Accepted:  true,
	})
}

// ResolutionTrace collects every event of one or more resolutions, e.g. to
// explain a single API response.
//
// ResolutionTrace is safe for concurrent use.
type ResolutionTrace struct {
	mu     sync.Mutex
	events []TraceEvent
}

func NewResolutionTrace() *ResolutionTrace {
	return &ResolutionTrace{}
}

func (t *ResolutionTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

// Events returns a copy of the recorded events in recording order.
func (t *ResolutionTrace) Events() []TraceEvent {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (t *ResolutionTrace) Kinds() []TraceEventKind {
	events := t.Events()
	out := make([]TraceEventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
