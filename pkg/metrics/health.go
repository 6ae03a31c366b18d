package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthStatus is the state of one check or of the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// severity orders statuses from best to worst.
func (s HealthStatus) severity() int {
	switch s {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckFunc probes one concern. nil means healthy, an error wrapped with
// Degraded means degraded, and any other error means unhealthy.
type CheckFunc func(ctx context.Context) error

type degradedError struct{ err error }

func (d degradedError) Error() string { return d.err.Error() }
func (d degradedError) Unwrap() error { return d.err }

// Degraded marks err as a warning rather than a failure.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return degradedError{err}
}

func statusOf(err error) HealthStatus {
	var d degradedError
	switch {
	case err == nil:
		return HealthStatusHealthy
	case errors.As(err, &d):
		return HealthStatusDegraded
	default:
		return HealthStatusUnhealthy
	}
}

// HealthResponse is the body of the /health endpoint.
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Metrics   *HealthMetrics         `json:"metrics,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// HealthMetrics summarizes engine traffic in the health response.
type HealthMetrics struct {
	Encryptions       uint64  `json:"encryptions"`
	Decryptions       uint64  `json:"decryptions"`
	Failures          uint64  `json:"failures"`
	IntegrityFailures uint64  `json:"integrity_failures"`
	ProfileSwitches   uint64  `json:"profile_switches"`
	ErrorRate         float64 `json:"error_rate,omitempty"`
}

const (
	// degradedErrorRate is the share of failed calls above which the
	// process reports degraded.
	degradedErrorRate = 0.01

	checkTimeout = 2 * time.Second
)

// HealthCheck runs named checks for a process embedding the engine. With a
// collector it also reports degraded once too many calls fail.
type HealthCheck struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	collector *Collector
	started   time.Time
	version   string
}

// NewHealthCheck returns a health check over collector, which may be nil.
func NewHealthCheck(collector *Collector, version string) *HealthCheck {
	h := &HealthCheck{
		checks:    make(map[string]CheckFunc),
		collector: collector,
		started:   time.Now(),
		version:   version,
	}
	if collector != nil {
		h.checks["error_rate"] = ErrorRateCheck(collector, degradedErrorRate)
	}
	return h
}

// AddCheck registers check under name, replacing any check of that name.
func (h *HealthCheck) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	h.checks[name] = check
	h.mu.Unlock()
}

// RemoveCheck unregisters a check.
func (h *HealthCheck) RemoveCheck(name string) {
	h.mu.Lock()
	delete(h.checks, name)
	h.mu.Unlock()
}

// Check runs every registered check and folds the results. The overall
// status is the worst status of any check.
func (h *HealthCheck) Check(ctx context.Context) HealthResponse {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	h.mu.RUnlock()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for name, check := range checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		start := time.Now()
		err := check(cctx)
		cancel()

		res := CheckResult{Status: statusOf(err), Latency: time.Since(start).String()}
		if err != nil {
			res.Message = err.Error()
		}
		if res.Status.severity() > resp.Status.severity() {
			resp.Status = res.Status
		}
		resp.Checks[name] = res
	}

	if h.collector != nil {
		snap := h.collector.Snapshot()
		resp.Metrics = &HealthMetrics{
			Encryptions:       snap.Encryptions,
			Decryptions:       snap.Decryptions,
			Failures:          snap.Failures.Total(),
			IntegrityFailures: snap.Failures.Integrity,
			ProfileSwitches:   snap.ProfileSwitches,
			ErrorRate:         snap.ErrorRate(),
		}
	}
	return resp
}

// Handler serves the full health response. Unhealthy answers with 503,
// degraded still answers with 200.
func (h *HealthCheck) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		code := http.StatusOK
		if resp.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// LivenessHandler answers 200 while the process runs.
func (h *HealthCheck) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadinessHandler answers 200 unless a check is unhealthy.
func (h *HealthCheck) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := h.Check(r.Context())
		ready := resp.Status != HealthStatusUnhealthy
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": resp.Status, "ready": ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Checks ---

// SelfTestCheck fails while the cryptographic self tests report failure.
// passed is typically crypto.POSTPassed.
func SelfTestCheck(passed func() bool) CheckFunc {
	return func(context.Context) error {
		if !passed() {
			return errors.New("cryptographic self tests failed")
		}
		return nil
	}
}

// ErrorRateCheck is degraded while more than maxRate of the collector's
// calls have failed.
func ErrorRateCheck(c *Collector, maxRate float64) CheckFunc {
	return func(context.Context) error {
		if rate := c.Snapshot().ErrorRate(); rate > maxRate {
			return Degraded(fmt.Errorf("error rate %.4f above %.4f", rate, maxRate))
		}
		return nil
	}
}

// IntegrityCheck is degraded while more than maxRate of decrypt attempts
// failed authentication, which points at tampering or a key mix-up.
func IntegrityCheck(c *Collector, maxRate float64) CheckFunc {
	return func(context.Context) error {
		snap := c.Snapshot()
		attempts := snap.Decryptions + snap.DecryptErrors
		if attempts == 0 {
			return nil
		}
		if rate := float64(snap.Failures.Integrity) / float64(attempts); rate > maxRate {
			return Degraded(fmt.Errorf("%d of %d decryptions failed integrity", snap.Failures.Integrity, attempts))
		}
		return nil
	}
}

// MemoryCheck is degraded once the Go heap exceeds maxHeap bytes.
func MemoryCheck(maxHeap uint64) CheckFunc {
	return func(context.Context) error {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > maxHeap {
			return Degraded(fmt.Errorf("heap %d bytes exceeds %d", ms.HeapAlloc, maxHeap))
		}
		return nil
	}
}
