package engine

import (
	"github.com/sara-star-quant/sevenlayer/pkg/instrument"
	"github.com/sara-star-quant/sevenlayer/pkg/layer"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

type config struct {
	logger          *metrics.Logger
	collector       *metrics.Collector
	tracer          metrics.Tracer
	hook            instrument.Hook
	clock           layer.Clock
	enforceTTL      bool
	autoReconfigure bool
}

func defaultConfig() config {
	return config{autoReconfigure: true}
}

// Option configures an Engine.
type Option func(*config)

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *metrics.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithCollector sets the metrics collector. Defaults to a collector owned by
// the engine, so Stats reflects only this engine's calls.
func WithCollector(col *metrics.Collector) Option {
	return func(c *config) {
		c.collector = col
	}
}

// WithTracer sets the tracer. Defaults to the global tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(c *config) {
		c.tracer = t
	}
}

// WithHook installs an instrumentation hook. Without one no per-layer
// previews or digests are computed.
func WithHook(h instrument.Hook) Option {
	return func(c *config) {
		c.hook = h
	}
}

// WithClock sets the time source for header and layer timestamps.
func WithClock(clock layer.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithTokenTTL enables layer 2 token expiry according to the packet's
// profile. Disabled by default so that stored packets stay readable.
func WithTokenTTL(enforce bool) Option {
	return func(c *config) {
		c.enforceTTL = enforce
	}
}

// WithAutoReconfigure controls whether Decrypt switches the active profile
// to the one named in a packet. When disabled the packet's profile is used
// for that call only. Enabled by default.
func WithAutoReconfigure(enabled bool) Option {
	return func(c *config) {
		c.autoReconfigure = enabled
	}
}
