//go:build otel

package metrics

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// OTelTracer sends engine spans to the globally registered OpenTelemetry
// tracer provider.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns a tracer named after the instrumentation scope,
// "sevenlayer" when empty.
func NewOTelTracer(scope string) *OTelTracer {
	if scope == "" {
		scope = "sevenlayer"
	}
	return &OTelTracer{tracer: otel.Tracer(scope)}
}

// StartSpan starts an internal span. Failed spans carry the error kind as
// an attribute so integrity failures can be told apart from bad input.
func (t *OTelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(keyValues(spanAttributes(opts))...))

	return ctx, func(err error, opts ...SpanOption) {
		if len(opts) > 0 {
			span.SetAttributes(keyValues(spanAttributes(opts))...)
		}
		if err != nil {
			span.SetAttributes(attribute.String(AttrErrorKind, qerrors.Kind(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return true }

// keyValues converts span attributes in key order.
func keyValues(attrs map[string]any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		switch v := attrs[k].(type) {
		case string:
			kvs = append(kvs, attribute.String(k, v))
		case int:
			kvs = append(kvs, attribute.Int(k, v))
		case int64:
			kvs = append(kvs, attribute.Int64(k, v))
		case float64:
			kvs = append(kvs, attribute.Float64(k, v))
		case bool:
			kvs = append(kvs, attribute.Bool(k, v))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return kvs
}
