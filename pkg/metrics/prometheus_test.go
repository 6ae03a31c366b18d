package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
)

func render(c *Collector, ns string) string {
	var buf bytes.Buffer
	NewPrometheusExporter(c, ns).WriteMetrics(&buf)
	return buf.String()
}

func assertLines(t *testing.T, out string, want ...string) {
	t.Helper()
	lines := strings.Split(out, "\n")
	for _, w := range want {
		found := false
		for _, l := range lines {
			if l == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing line %q", w)
		}
	}
}

func TestPrometheusCounters(t *testing.T) {
	c := NewCollector(Labels{"instance": "node-1"})
	c.RecordEncrypt(55, 420, 80*time.Millisecond)
	c.RecordEncrypt(45, 410, 70*time.Millisecond)
	c.RecordProfileSwitch()

	assertLines(t, render(c, "sevenlayer"),
		"# HELP sevenlayer_encryptions_total Total successful encryptions",
		"# TYPE sevenlayer_encryptions_total counter",
		`sevenlayer_encryptions_total{instance="node-1"} 2`,
		`sevenlayer_decryptions_total{instance="node-1"} 0`,
		`sevenlayer_plaintext_bytes_total{instance="node-1"} 100`,
		`sevenlayer_ciphertext_bytes_total{instance="node-1"} 830`,
		`sevenlayer_profile_switches_total{instance="node-1"} 1`,
		"# TYPE sevenlayer_uptime_seconds gauge",
	)
}

func TestPrometheusFailures(t *testing.T) {
	c := NewCollector(Labels{"instance": "a"})
	c.RecordFailure(DirectionDecrypt, FailureIntegrity)
	c.RecordFailure(DirectionDecrypt, FailureIntegrity)
	c.RecordFailure(DirectionEncrypt, FailureValidation)

	assertLines(t, render(c, "t"),
		`t_failures_total{instance="a",kind="integrity"} 2`,
		`t_failures_total{instance="a",kind="validation"} 1`,
		`t_failures_total{instance="a",kind="format"} 0`,
		`t_decrypt_errors_total{instance="a"} 2`,
		`t_encrypt_errors_total{instance="a"} 1`,
	)
}

func TestPrometheusHistograms(t *testing.T) {
	c := NewCollector(nil)
	c.RecordEncrypt(10, 200, 50*time.Millisecond)
	c.RecordEncrypt(10, 200, 150*time.Millisecond)
	c.RecordLayerLatency(constants.LayerNoiseEmbedder, DirectionDecrypt, 30*time.Microsecond)

	out := render(c, "t")
	assertLines(t, out,
		"t_encrypt_duration_microseconds_sum 200000",
		"t_encrypt_duration_microseconds_count 2",
		`t_encrypt_duration_microseconds_bucket{le="+Inf"} 2`,
		`t_decrypt_duration_microseconds_bucket{le="+Inf"} 0`,
		`t_layer_duration_microseconds_count{layer="noise-embedder",direction="decrypt"} 1`,
		`t_layer_duration_microseconds_bucket{layer="noise-embedder",direction="decrypt",le="50"} 1`,
		`t_layer_duration_microseconds_count{layer="noise-embedder",direction="encrypt"} 0`,
	)
	if n := strings.Count(out, "# TYPE t_layer_duration_microseconds histogram"); n != 1 {
		t.Errorf("layer histogram TYPE written %d times", n)
	}
	if n := strings.Count(out, "t_layer_duration_microseconds_count{"); n != 2*constants.LayerCount {
		t.Errorf("layer series = %d, want one per layer and direction", n)
	}
}

func TestPrometheusLabels(t *testing.T) {
	c := NewCollector(Labels{
		"path":    "/api/v1",
		"message": `hello "world"`,
		"newline": "line1\nline2",
	})
	assertLines(t, render(c, "t"),
		`t_encryptions_total{message="hello \"world\"",newline="line1\nline2",path="/api/v1"} 0`,
	)

	// No labels, no braces.
	assertLines(t, render(NewCollector(nil), "t"), "t_encryptions_total 0")
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordDecrypt(420, 55, time.Millisecond)

	w := httptest.NewRecorder()
	NewPrometheusExporter(c, "t").Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	assertLines(t, w.Body.String(), "t_decryptions_total 1")
}
