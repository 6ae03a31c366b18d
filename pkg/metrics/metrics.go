package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
)

// Direction distinguishes encrypt from decrypt in counters and spans.
type Direction string

// Directions of an engine call.
const (
	DirectionEncrypt Direction = "encrypt"
	DirectionDecrypt Direction = "decrypt"
)

// Failure kinds, matching the labels returned by errors.Kind.
const (
	FailureValidation = "validation"
	FailureFormat     = "format"
	FailureIntegrity  = "integrity"
	FailureProfile    = "profile"
	FailureInternal   = "internal"
)

// Collector aggregates counters and latency histograms of engine calls.
// It is safe for concurrent use.
type Collector struct {
	// Call counters
	encryptions     atomic.Uint64
	decryptions     atomic.Uint64
	encryptErrors   atomic.Uint64
	decryptErrors   atomic.Uint64
	profileSwitches atomic.Uint64

	// Failure counters by error kind
	validationFailures atomic.Uint64
	formatFailures     atomic.Uint64
	integrityFailures  atomic.Uint64
	profileFailures    atomic.Uint64
	internalFailures   atomic.Uint64

	// Volume
	plaintextBytes  atomic.Uint64
	ciphertextBytes atomic.Uint64

	// Latency histograms (microseconds)
	encryptLatency *Histogram
	decryptLatency *Histogram
	layerEncrypt   [constants.LayerCount]*Histogram
	layerDecrypt   [constants.LayerCount]*Histogram

	createdAt atomic.Int64

	// Labels for this collector instance
	labels Labels
}

// Labels represents key-value pairs for metric labeling.
type Labels map[string]string

// NewCollector creates a new metrics collector.
func NewCollector(labels Labels) *Collector {
	if labels == nil {
		labels = make(Labels)
	}

	c := &Collector{
		encryptLatency: NewHistogram(LatencyBuckets),
		decryptLatency: NewHistogram(LatencyBuckets),
		labels:         labels,
	}
	for i := range c.layerEncrypt {
		c.layerEncrypt[i] = NewHistogram(LayerLatencyBuckets)
		c.layerDecrypt[i] = NewHistogram(LayerLatencyBuckets)
	}
	c.createdAt.Store(time.Now().UnixNano())
	return c
}

// Default bucket configurations for histograms.
var (
	// LatencyBuckets for whole encrypt/decrypt calls (microseconds). The key
	// derivation of layer 2 dominates, so the range reaches into seconds.
	LatencyBuckets = []float64{1000, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000}

	// LayerLatencyBuckets for a single layer (microseconds).
	LayerLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 10000, 100000}
)

// --- Call Metrics ---

// RecordEncrypt records a successful encryption of plaintext bytes into a
// packet of packet bytes.
func (c *Collector) RecordEncrypt(plaintext, packet int, d time.Duration) {
	c.encryptions.Add(1)
	c.plaintextBytes.Add(uint64(plaintext))
	c.ciphertextBytes.Add(uint64(packet))
	c.encryptLatency.ObserveDuration(d)
}

// RecordDecrypt records a successful decryption of a packet.
func (c *Collector) RecordDecrypt(packet, plaintext int, d time.Duration) {
	c.decryptions.Add(1)
	c.plaintextBytes.Add(uint64(plaintext))
	c.ciphertextBytes.Add(uint64(packet))
	c.decryptLatency.ObserveDuration(d)
}

// RecordFailure records a failed call. kind is one of the Failure* labels;
// unknown kinds count as internal.
func (c *Collector) RecordFailure(dir Direction, kind string) {
	if dir == DirectionDecrypt {
		c.decryptErrors.Add(1)
	} else {
		c.encryptErrors.Add(1)
	}

	switch kind {
	case FailureValidation:
		c.validationFailures.Add(1)
	case FailureFormat:
		c.formatFailures.Add(1)
	case FailureIntegrity:
		c.integrityFailures.Add(1)
	case FailureProfile:
		c.profileFailures.Add(1)
	default:
		c.internalFailures.Add(1)
	}
}

// RecordProfileSwitch counts a change of the active security profile.
func (c *Collector) RecordProfileSwitch() {
	c.profileSwitches.Add(1)
}

// RecordLayerLatency records the duration of one layer within a call.
// Unknown layers are ignored.
func (c *Collector) RecordLayerLatency(id constants.LayerID, dir Direction, d time.Duration) {
	if !id.IsValid() {
		return
	}
	h := c.layerEncrypt[id-1]
	if dir == DirectionDecrypt {
		h = c.layerDecrypt[id-1]
	}
	h.ObserveDuration(d)
}

// --- Snapshot ---

// FailureCounts breaks failed calls down by error kind.
type FailureCounts struct {
	Validation uint64 `json:"validation"`
	Format     uint64 `json:"format"`
	Integrity  uint64 `json:"integrity"`
	Profile    uint64 `json:"profile"`
	Internal   uint64 `json:"internal"`
}

// Total returns the number of failed calls.
func (f FailureCounts) Total() uint64 {
	return f.Validation + f.Format + f.Integrity + f.Profile + f.Internal
}

// ByKind returns the count for one Failure* label. Unknown labels read as
// internal, the same way RecordFailure files them.
func (f FailureCounts) ByKind(kind string) uint64 {
	switch kind {
	case FailureValidation:
		return f.Validation
	case FailureFormat:
		return f.Format
	case FailureIntegrity:
		return f.Integrity
	case FailureProfile:
		return f.Profile
	default:
		return f.Internal
	}
}

// LayerLatency holds the latency summaries of one layer.
type LayerLatency struct {
	Layer   string           `json:"layer"`
	Encrypt HistogramSummary `json:"encrypt"`
	Decrypt HistogramSummary `json:"decrypt"`
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	// Timestamp of the snapshot
	Timestamp time.Time

	// Uptime since collector creation or the last reset
	Uptime time.Duration

	// Call metrics
	Encryptions     uint64
	Decryptions     uint64
	EncryptErrors   uint64
	DecryptErrors   uint64
	ProfileSwitches uint64
	Failures        FailureCounts

	// Volume
	PlaintextBytes  uint64
	CiphertextBytes uint64

	// Histogram summaries
	EncryptLatency HistogramSummary
	DecryptLatency HistogramSummary
	Layers         []LayerLatency

	// Labels
	Labels Labels
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	layers := make([]LayerLatency, constants.LayerCount)
	for i := range layers {
		layers[i] = LayerLatency{
			Layer:   constants.LayerID(i + 1).String(),
			Encrypt: c.layerEncrypt[i].Summary(),
			Decrypt: c.layerDecrypt[i].Summary(),
		}
	}

	return Snapshot{
		Timestamp:       time.Now(),
		Uptime:          time.Since(time.Unix(0, c.createdAt.Load())),
		Encryptions:     c.encryptions.Load(),
		Decryptions:     c.decryptions.Load(),
		EncryptErrors:   c.encryptErrors.Load(),
		DecryptErrors:   c.decryptErrors.Load(),
		ProfileSwitches: c.profileSwitches.Load(),
		Failures: FailureCounts{
			Validation: c.validationFailures.Load(),
			Format:     c.formatFailures.Load(),
			Integrity:  c.integrityFailures.Load(),
			Profile:    c.profileFailures.Load(),
			Internal:   c.internalFailures.Load(),
		},
		PlaintextBytes:  c.plaintextBytes.Load(),
		CiphertextBytes: c.ciphertextBytes.Load(),
		EncryptLatency:  c.encryptLatency.Summary(),
		DecryptLatency:  c.decryptLatency.Summary(),
		Layers:          layers,
		Labels:          c.labels,
	}
}

// ErrorRate returns failed calls over all calls, or 0 before any call.
func (s Snapshot) ErrorRate() float64 {
	failed := s.EncryptErrors + s.DecryptErrors
	total := s.Encryptions + s.Decryptions + failed
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

// Reset clears all metrics (useful for testing).
func (c *Collector) Reset() {
	c.encryptions.Store(0)
	c.decryptions.Store(0)
	c.encryptErrors.Store(0)
	c.decryptErrors.Store(0)
	c.profileSwitches.Store(0)
	c.validationFailures.Store(0)
	c.formatFailures.Store(0)
	c.integrityFailures.Store(0)
	c.profileFailures.Store(0)
	c.internalFailures.Store(0)
	c.plaintextBytes.Store(0)
	c.ciphertextBytes.Store(0)
	c.encryptLatency.Reset()
	c.decryptLatency.Reset()
	for i := range c.layerEncrypt {
		c.layerEncrypt[i].Reset()
		c.layerDecrypt[i].Reset()
	}
	c.createdAt.Store(time.Now().UnixNano())
}

// --- Global Collector ---

var (
	globalCollector     atomic.Pointer[Collector]
	globalCollectorOnce sync.Once
)

// Global returns the global metrics collector.
// Creates one with default settings if not already initialized.
func Global() *Collector {
	globalCollectorOnce.Do(func() {
		globalCollector.CompareAndSwap(nil, NewCollector(Labels{"instance": "default"}))
	})
	return globalCollector.Load()
}

// SetGlobal sets the global metrics collector.
func SetGlobal(c *Collector) {
	globalCollectorOnce.Do(func() {})
	globalCollector.Store(c)
}
