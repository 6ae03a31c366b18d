package metrics

import (
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// PrometheusExporter renders a collector in the Prometheus text exposition
// format. Every series name is prefixed with namespace and an underscore.
type PrometheusExporter struct {
	collector *Collector
	namespace string
}

// NewPrometheusExporter returns an exporter for c.
func NewPrometheusExporter(c *Collector, namespace string) *PrometheusExporter {
	return &PrometheusExporter{collector: c, namespace: namespace}
}

// Handler serves WriteMetrics over HTTP.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		e.WriteMetrics(w)
	})
}

// WriteMetrics writes one snapshot of the collector to w.
func (e *PrometheusExporter) WriteMetrics(w io.Writer) {
	snap := e.collector.Snapshot()
	pw := &promWriter{w: w, ns: e.namespace, labels: formatLabels(snap.Labels)}

	pw.counter("encryptions_total", "Total successful encryptions", snap.Encryptions)
	pw.counter("decryptions_total", "Total successful decryptions", snap.Decryptions)
	pw.counter("encrypt_errors_total", "Total failed encryptions", snap.EncryptErrors)
	pw.counter("decrypt_errors_total", "Total failed decryptions", snap.DecryptErrors)

	pw.header("failures_total", "Total failed calls by error kind", "counter")
	for _, kind := range []string{FailureValidation, FailureFormat, FailureIntegrity, FailureProfile, FailureInternal} {
		pw.sample("failures_total", pw.with("kind", kind), float64(snap.Failures.ByKind(kind)))
	}

	pw.counter("profile_switches_total", "Total changes of the active security profile", snap.ProfileSwitches)
	pw.counter("plaintext_bytes_total", "Total plaintext bytes processed", snap.PlaintextBytes)
	pw.counter("ciphertext_bytes_total", "Total packet bytes processed", snap.CiphertextBytes)

	pw.header("uptime_seconds", "Time since the collector was created or reset", "gauge")
	pw.sample("uptime_seconds", pw.labels, snap.Uptime.Seconds())

	pw.header("encrypt_duration_microseconds", "Encryption duration in microseconds", "histogram")
	pw.histogram("encrypt_duration_microseconds", pw.labels, snap.EncryptLatency)
	pw.header("decrypt_duration_microseconds", "Decryption duration in microseconds", "histogram")
	pw.histogram("decrypt_duration_microseconds", pw.labels, snap.DecryptLatency)

	const layerSeries = "layer_duration_microseconds"
	pw.header(layerSeries, "Per-layer duration in microseconds", "histogram")
	for _, l := range snap.Layers {
		base := pw.with("layer", l.Layer)
		pw.histogram(layerSeries, joinLabels(base, "direction", string(DirectionEncrypt)), l.Encrypt)
		pw.histogram(layerSeries, joinLabels(base, "direction", string(DirectionDecrypt)), l.Decrypt)
	}
}

// promWriter writes series that share a namespace and base labels.
type promWriter struct {
	w      io.Writer
	ns     string
	labels string
}

func (p *promWriter) header(name, help, typ string) {
	fmt.Fprintf(p.w, "# HELP %s_%s %s\n# TYPE %s_%s %s\n", p.ns, name, help, p.ns, name, typ)
}

func (p *promWriter) counter(name, help string, v uint64) {
	p.header(name, help, "counter")
	p.sample(name, p.labels, float64(v))
}

func (p *promWriter) sample(name, labels string, v float64) {
	if labels == "" {
		fmt.Fprintf(p.w, "%s_%s %g\n", p.ns, name, v)
		return
	}
	fmt.Fprintf(p.w, "%s_%s{%s} %g\n", p.ns, name, labels, v)
}

func (p *promWriter) histogram(name, labels string, h HistogramSummary) {
	for _, b := range h.Buckets {
		le := "+Inf"
		if !math.IsInf(b.UpperBound, 1) {
			le = strconv.FormatFloat(b.UpperBound, 'g', -1, 64)
		}
		p.sample(name+"_bucket", joinLabels(labels, "le", le), float64(b.Count))
	}
	p.sample(name+"_sum", labels, h.Sum)
	p.sample(name+"_count", labels, float64(h.Count))
}

// with returns the base labels plus one pair.
func (p *promWriter) with(key, value string) string {
	return joinLabels(p.labels, key, value)
}

// joinLabels appends key="value" to a formatted label list.
func joinLabels(labels, key, value string) string {
	pair := key + `="` + escapeLabelValue(value) + `"`
	if labels == "" {
		return pair
	}
	return labels + "," + pair
}

// formatLabels renders labels sorted by key.
func formatLabels(labels Labels) string {
	var out string
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		out = joinLabels(out, k, labels[k])
	}
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabelValue(s string) string {
	return labelEscaper.Replace(s)
}
