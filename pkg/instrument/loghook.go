package instrument

import (
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

// LoggerHook writes events to a metrics.Logger: layer events at debug,
// completed operations at info and failures at warn.
type LoggerHook struct {
	logger   *metrics.Logger
	previews bool
}

var _ Hook = (*LoggerHook)(nil)

// LoggerHookOption configures a LoggerHook.
type LoggerHookOption func(*LoggerHook)

// WithPreviews includes hex previews of intermediate buffers in layer
// entries. The first layer's input is plaintext, so leave this off outside
// local debugging.
func WithPreviews(enabled bool) LoggerHookOption {
	return func(h *LoggerHook) {
		h.previews = enabled
	}
}

// NewLoggerHook creates a hook logging through l, or the global logger
// when l is nil.
func NewLoggerHook(l *metrics.Logger, opts ...LoggerHookOption) *LoggerHook {
	if l == nil {
		l = metrics.GetLogger()
	}
	h := &LoggerHook{logger: l.Named("instrument")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnLayer implements Hook.
func (h *LoggerHook) OnLayer(ev LayerEvent) {
	if !h.logger.Enabled(metrics.LevelDebug) {
		return
	}
	fields := metrics.Fields{
		"op_id":         ev.OperationID,
		"direction":     string(ev.Direction),
		"layer":         int(ev.Layer),
		"layer_name":    ev.Name,
		"input_bytes":   ev.InputSize,
		"output_bytes":  ev.OutputSize,
		"input_sha256":  ev.InputDigest,
		"output_sha256": ev.OutputDigest,
		"duration":      ev.Duration.String(),
	}
	if h.previews {
		fields["input_hex"] = ev.InputPreview
		fields["output_hex"] = ev.OutputPreview
	}
	h.logger.Debug("layer processed", fields)
}

// OnOperation implements Hook.
func (h *LoggerHook) OnOperation(ev OperationEvent) {
	fields := metrics.Fields{
		"op_id":        ev.ID,
		"direction":    string(ev.Direction),
		"profile":      ev.Profile,
		"input_bytes":  ev.InputSize,
		"output_bytes": ev.OutputSize,
		"duration":     ev.Duration.String(),
	}
	if ev.Err != nil {
		fields["kind"] = qerrors.Kind(ev.Err)
		fields["error"] = ev.Err.Error()
		h.logger.Warn("operation failed", fields)
		return
	}
	h.logger.Info("operation complete", fields)
}
