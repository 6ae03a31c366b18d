package metrics

import (
	"context"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// Observer ties the collector, tracer and logger together for engine calls.
// One observer is shared by all calls of an engine and is safe for
// concurrent use.
type Observer struct {
	collector *Collector
	tracer    Tracer
	logger    *Logger
}

// ObserverConfig configures an observer. Nil fields fall back to the
// package globals.
type ObserverConfig struct {
	Collector *Collector
	Tracer    Tracer
	Logger    *Logger
}

// NewObserver creates a new observer.
func NewObserver(cfg ObserverConfig) *Observer {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = GetTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}

	return &Observer{
		collector: cfg.Collector,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.Named("engine"),
	}
}

// CallDone completes an observed call. profile is the profile the call
// actually ran under, which for a decrypt is only known once the packet
// header is read; empty keeps the one passed to OnCall. out is the number
// of bytes produced.
type CallDone func(profile string, out int, err error)

// OnCall starts observing a whole encrypt or decrypt call over in bytes.
func (o *Observer) OnCall(ctx context.Context, dir Direction, opID, profile string, in int) (context.Context, CallDone) {
	spanName := SpanEncrypt
	if dir == DirectionDecrypt {
		spanName = SpanDecrypt
	}

	start := time.Now()
	ctx, endSpan := o.tracer.StartSpan(ctx, spanName, WithCall(opID, dir, profile), WithInputBytes(in))

	return ctx, func(ran string, out int, err error) {
		duration := time.Since(start)
		var endOpts []SpanOption
		if ran != "" && ran != profile {
			endOpts = append(endOpts, WithCall("", "", ran))
			profile = ran
		}

		if err != nil {
			kind := qerrors.Kind(err)
			o.collector.RecordFailure(dir, kind)
			o.logger.ForCall(opID, dir).Warn(string(dir)+" failed", Fields{
				"profile":  profile,
				"kind":     kind,
				"error":    err.Error(),
				"duration": duration.String(),
			})
		} else if dir == DirectionDecrypt {
			o.collector.RecordDecrypt(in, out, duration)
		} else {
			o.collector.RecordEncrypt(in, out, duration)
		}

		endSpan(err, endOpts...)
	}
}

// OnLayer starts observing one layer of a call.
func (o *Observer) OnLayer(ctx context.Context, dir Direction, id constants.LayerID) func(error) {
	spanName := SpanLayerEncrypt
	if dir == DirectionDecrypt {
		spanName = SpanLayerDecrypt
	}

	start := time.Now()
	_, endSpan := o.tracer.StartSpan(ctx, spanName, WithCall("", dir, ""), WithLayer(id))

	return func(err error) {
		duration := time.Since(start)
		o.collector.RecordLayerLatency(id, dir, duration)

		if o.logger.Enabled(LevelDebug) {
			o.logger.Debug("layer finished", Fields{
				"layer":     id.String(),
				"direction": string(dir),
				"duration":  duration.String(),
			})
		}
		endSpan(err)
	}
}

// OnProfileSwitch records a change of the active security profile.
func (o *Observer) OnProfileSwitch(from, to, reason string) {
	o.collector.RecordProfileSwitch()
	o.logger.Info("security profile changed", Fields{
		"from":   from,
		"to":     to,
		"reason": reason,
	})
}

// StartSpan starts a span on the observer's tracer.
func (o *Observer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanEnder) {
	return o.tracer.StartSpan(ctx, name, opts...)
}

// Collector returns the observer's collector.
func (o *Observer) Collector() *Collector {
	return o.collector
}

// Logger returns the observer's logger for custom logging.
func (o *Observer) Logger() *Logger {
	return o.logger
}
