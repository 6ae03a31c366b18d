package metrics

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// Tracer starts spans around engine work. One tracer is shared by every
// call of an engine, so implementations must be safe for concurrent use.
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder)
}

// SpanEnder finishes a span. A non-nil error marks the span failed; opts
// set attributes only known once the work is done, overriding those given
// at start.
type SpanEnder func(err error, opts ...SpanOption)

// SpanOption sets attributes on a span.
type SpanOption func(attrs map[string]any)

// Span names.
const (
	SpanEncrypt      = "sevenlayer.encrypt"
	SpanDecrypt      = "sevenlayer.decrypt"
	SpanKeySchedule  = "sevenlayer.keysched.derive"
	SpanLayerEncrypt = "sevenlayer.layer.encrypt"
	SpanLayerDecrypt = "sevenlayer.layer.decrypt"
	SpanEnvelopeSeal = "sevenlayer.envelope.seal"
	SpanEnvelopeOpen = "sevenlayer.envelope.open"
)

// Attribute keys.
const (
	AttrOperationID = "sevenlayer.op_id"
	AttrDirection   = "sevenlayer.direction"
	AttrProfile     = "sevenlayer.profile"
	AttrLayer       = "sevenlayer.layer"
	AttrLayerID     = "sevenlayer.layer_id"
	AttrInputBytes  = "sevenlayer.input_bytes"
	AttrErrorKind   = "sevenlayer.error_kind"
)

// WithAttributes copies attrs onto the span.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(dst map[string]any) {
		maps.Copy(dst, attrs)
	}
}

// WithCall tags a span with the engine call it belongs to. Empty values are
// left out.
func WithCall(opID string, dir Direction, profile string) SpanOption {
	return func(dst map[string]any) {
		if opID != "" {
			dst[AttrOperationID] = opID
		}
		if dir != "" {
			dst[AttrDirection] = string(dir)
		}
		if profile != "" {
			dst[AttrProfile] = profile
		}
	}
}

// WithLayer tags a span with the layer it covers.
func WithLayer(id constants.LayerID) SpanOption {
	return func(dst map[string]any) {
		dst[AttrLayer] = id.String()
		dst[AttrLayerID] = int(id)
	}
}

// WithInputBytes records the size of the span's input.
func WithInputBytes(n int) SpanOption {
	return func(dst map[string]any) {
		dst[AttrInputBytes] = n
	}
}

func spanAttributes(opts []SpanOption) map[string]any {
	attrs := make(map[string]any, len(opts)+1)
	for _, opt := range opts {
		opt(attrs)
	}
	return attrs
}

// NoOpTracer discards all spans.
type NoOpTracer struct{}

// StartSpan returns ctx unchanged.
func (NoOpTracer) StartSpan(ctx context.Context, _ string, _ ...SpanOption) (context.Context, SpanEnder) {
	return ctx, func(error, ...SpanOption) {}
}

// RecordedSpan is a finished span kept by SimpleTracer.
type RecordedSpan struct {
	Name       string
	TraceID    string
	SpanID     string
	ParentID   string
	Start      time.Time
	Duration   time.Duration
	Attributes map[string]any
	Err        error
	ErrorKind  string
}

// Failed reports whether the span ended with an error.
func (s RecordedSpan) Failed() bool { return s.Err != nil }

// SimpleTracer keeps finished spans in memory, in the order they end.
//
// A root span that carries an operation id uses it as its trace id, so all
// spans of one engine call can be pulled out with Trace.
type SimpleTracer struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// NewSimpleTracer returns an empty in-memory tracer.
func NewSimpleTracer() *SimpleTracer {
	return &SimpleTracer{}
}

type activeSpanKey struct{}

// activeSpan is what a child span needs from its parent.
type activeSpan struct {
	traceID string
	spanID  string
}

// StartSpan starts a span as a child of the span in ctx, if any.
func (t *SimpleTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	span := RecordedSpan{
		Name:       name,
		SpanID:     uuid.NewString(),
		Start:      time.Now(),
		Attributes: spanAttributes(opts),
	}
	switch parent, ok := ctx.Value(activeSpanKey{}).(activeSpan); {
	case ok:
		span.TraceID, span.ParentID = parent.traceID, parent.spanID
	case span.Attributes[AttrOperationID] != nil:
		span.TraceID, _ = span.Attributes[AttrOperationID].(string)
	}
	if span.TraceID == "" {
		span.TraceID = uuid.NewString()
	}

	ctx = context.WithValue(ctx, activeSpanKey{}, activeSpan{traceID: span.TraceID, spanID: span.SpanID})
	var once sync.Once
	return ctx, func(err error, opts ...SpanOption) {
		once.Do(func() {
			span.Duration = time.Since(span.Start)
			for _, opt := range opts {
				opt(span.Attributes)
			}
			if err != nil {
				span.Err = err
				span.ErrorKind = qerrors.Kind(err)
			}
			t.mu.Lock()
			t.spans = append(t.spans, span)
			t.mu.Unlock()
		})
	}
}

// filter returns a copy of the spans keep accepts.
func (t *SimpleTracer) filter(keep func(*RecordedSpan) bool) []RecordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []RecordedSpan
	for i := range t.spans {
		if keep(&t.spans[i]) {
			out = append(out, t.spans[i])
		}
	}
	return out
}

// Spans returns every finished span.
func (t *SimpleTracer) Spans() []RecordedSpan {
	return t.filter(func(*RecordedSpan) bool { return true })
}

// SpansNamed returns the finished spans called name.
func (t *SimpleTracer) SpansNamed(name string) []RecordedSpan {
	return t.filter(func(s *RecordedSpan) bool { return s.Name == name })
}

// Trace returns the finished spans of one trace, such as all spans of the
// engine call with operation id traceID.
func (t *SimpleTracer) Trace(traceID string) []RecordedSpan {
	return t.filter(func(s *RecordedSpan) bool { return s.TraceID == traceID })
}

// Reset drops all finished spans.
func (t *SimpleTracer) Reset() {
	t.mu.Lock()
	t.spans = nil
	t.mu.Unlock()
}

// tracerBox lets atomic.Pointer hold an interface value.
type tracerBox struct{ Tracer }

var globalTracer atomic.Pointer[tracerBox]

// SetTracer replaces the tracer used by StartSpan and by observers built
// without one. nil restores the no-op tracer.
func SetTracer(t Tracer) {
	if t == nil {
		t = NoOpTracer{}
	}
	globalTracer.Store(&tracerBox{t})
}

// GetTracer returns the process-wide tracer.
func GetTracer() Tracer {
	if b := globalTracer.Load(); b != nil {
		return b.Tracer
	}
	return NoOpTracer{}
}

// StartSpan starts a span on the process-wide tracer.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return GetTracer().StartSpan(ctx, name, opts...)
}
