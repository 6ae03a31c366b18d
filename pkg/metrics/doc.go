// Package metrics carries the engine's observability: counters and
// latency histograms, spans, structured logs and an HTTP server exposing
// them. None of it is needed for encryption to work; the engine reaches
// all of it through an Observer.
//
// # Collector
//
// A Collector counts calls, bytes and failures by error kind, and keeps
// microsecond latency histograms per call and per layer and direction:
//
//	collector := metrics.NewCollector(metrics.Labels{"instance": "node-1"})
//	e, _ := engine.New("BALANCED", engine.WithCollector(collector))
//
//	snap := collector.Snapshot()
//	p99 := snap.Layers[constants.LayerAuthenticatedCore-1].Encrypt.P99
//
// # Tracing
//
// Every engine call opens one span, with a child per layer and one for the
// key schedule. SimpleTracer keeps spans in memory and files them under the
// call's operation id:
//
//	tracer := metrics.NewSimpleTracer()
//	e, _ := engine.New("BALANCED", engine.WithTracer(tracer))
//	...
//	spans := tracer.Trace(opID)
//
// Build with -tags otel to send spans to the global OpenTelemetry provider
// through NewOTelTracer. Envelope calls are traced on the process-wide
// tracer set with SetTracer.
//
// # Logging
//
//	logger := metrics.NewLogger(
//		metrics.WithFormat(metrics.FormatJSON),
//		metrics.WithFields(metrics.Fields{"service": "sevenlayer"}),
//	)
//
// Keys, nonces and plaintext must never be passed as fields.
//
// # Server
//
//	server := metrics.NewServer(metrics.ServerConfig{
//		Collector:        collector,
//		Version:          version.String(),
//		EnablePrometheus: true,
//		EnableHealth:     true,
//		EnableStats:      true,
//	})
//	server.AddHealthCheck("self_test", metrics.SelfTestCheck(crypto.POSTPassed))
//	server.AddHealthCheck("integrity", metrics.IntegrityCheck(collector, 0.05))
//	go server.ListenAndServe(":9090")
//
// A check reports degraded by wrapping its error with Degraded; any other
// error is unhealthy.
package metrics
