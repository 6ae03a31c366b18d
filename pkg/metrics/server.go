package metrics

import (
	"net/http"
	"time"
)

// Server exposes a collector over HTTP:
//
//	/metrics  Prometheus text format
//	/health   full health response
//	/healthz  liveness
//	/readyz   readiness
//	/stats    JSON counters and per-layer latency
type Server struct {
	mux       *http.ServeMux
	collector *Collector
	health    *HealthCheck
}

// ServerConfig selects the endpoints a Server mounts.
type ServerConfig struct {
	Collector        *Collector // defaults to Global()
	Version          string
	Namespace        string // Prometheus prefix, defaults to "sevenlayer"
	EnablePrometheus bool
	EnableHealth     bool
	EnableStats      bool
}

// NewServer builds the mux for cfg.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Collector == nil {
		cfg.Collector = Global()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "sevenlayer"
	}

	s := &Server{mux: http.NewServeMux(), collector: cfg.Collector}
	if cfg.EnablePrometheus {
		s.mux.Handle("GET /metrics", NewPrometheusExporter(cfg.Collector, cfg.Namespace).Handler())
	}
	if cfg.EnableHealth {
		s.health = NewHealthCheck(cfg.Collector, cfg.Version)
		s.mux.Handle("GET /health", s.health.Handler())
		s.mux.Handle("GET /healthz", s.health.LivenessHandler())
		s.mux.Handle("GET /readyz", s.health.ReadinessHandler())
	}
	if cfg.EnableStats {
		s.mux.HandleFunc("GET /stats", s.serveStats)
	}
	return s
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// AddHealthCheck registers a check. It is a no-op without EnableHealth.
func (s *Server) AddHealthCheck(name string, check CheckFunc) {
	if s.health != nil {
		s.health.AddCheck(name, check)
	}
}

// ListenAndServe serves on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return srv.ListenAndServe()
}

// StatsResponse is the body of the /stats endpoint. Latencies are in
// microseconds.
type StatsResponse struct {
	Uptime          string           `json:"uptime"`
	Labels          Labels           `json:"labels,omitempty"`
	Encryptions     uint64           `json:"encryptions"`
	Decryptions     uint64           `json:"decryptions"`
	Failures        FailureCounts    `json:"failures"`
	ProfileSwitches uint64           `json:"profile_switches"`
	PlaintextBytes  uint64           `json:"plaintext_bytes"`
	CiphertextBytes uint64           `json:"ciphertext_bytes"`
	Encrypt         HistogramSummary `json:"encrypt_latency_us"`
	Decrypt         HistogramSummary `json:"decrypt_latency_us"`
	Layers          []LayerLatency   `json:"layers"`
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.collector.Snapshot()
	writeJSON(w, http.StatusOK, StatsResponse{
		Uptime:          snap.Uptime.Round(time.Millisecond).String(),
		Labels:          snap.Labels,
		Encryptions:     snap.Encryptions,
		Decryptions:     snap.Decryptions,
		Failures:        snap.Failures,
		ProfileSwitches: snap.ProfileSwitches,
		PlaintextBytes:  snap.PlaintextBytes,
		CiphertextBytes: snap.CiphertextBytes,
		Encrypt:         snap.EncryptLatency,
		Decrypt:         snap.DecryptLatency,
		Layers:          snap.Layers,
	})
}
