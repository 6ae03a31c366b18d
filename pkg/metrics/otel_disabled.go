//go:build !otel

package metrics

// OTelTracer stands in for the OpenTelemetry adapter in builds without
// -tags otel. It drops every span.
type OTelTracer struct {
	NoOpTracer
}

// NewOTelTracer returns the stand-in; the scope is ignored.
func NewOTelTracer(string) *OTelTracer { return &OTelTracer{} }

// OTelEnabled reports whether the binary was built with -tags otel.
func OTelEnabled() bool { return false }
