package metrics

import (
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

// Histogram counts observations into buckets with inclusive upper bounds,
// plus one unbounded overflow bucket. It is safe for concurrent use.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // len(bounds)+1, last is overflow
	n      uint64
	sum    float64
	lo, hi float64
}

// NewHistogram returns a histogram over the given upper bounds. The bounds
// are sorted and deduplicated.
func NewHistogram(bounds []float64) *Histogram {
	b := slices.Compact(slices.Sorted(slices.Values(bounds)))
	return &Histogram{bounds: b, counts: make([]uint64, len(b)+1)}
}

// Observe adds one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.counts[sort.SearchFloat64s(h.bounds, v)]++
	if h.n == 0 || v < h.lo {
		h.lo = v
	}
	if h.n == 0 || v > h.hi {
		h.hi = v
	}
	h.n++
	h.sum += v
}

// ObserveDuration adds d in microseconds, the unit of every latency
// histogram in this package.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(float64(d) / float64(time.Microsecond))
}

// Reset drops all observations.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.counts)
	h.n, h.sum, h.lo, h.hi = 0, 0, 0, 0
}

// BucketCount is one cumulative bucket: Count observations were <= UpperBound.
type BucketCount struct {
	UpperBound float64 `json:"le"`
	Count      uint64  `json:"count"`
}

// HistogramSummary is a point-in-time copy of a histogram.
type HistogramSummary struct {
	Count   uint64        `json:"count"`
	Sum     float64       `json:"sum"`
	Min     float64       `json:"min"`
	Max     float64       `json:"max"`
	Mean    float64       `json:"mean"`
	P50     float64       `json:"p50"`
	P90     float64       `json:"p90"`
	P99     float64       `json:"p99"`
	Buckets []BucketCount `json:"-"` // last bound is +Inf
}

// Summary returns the cumulative buckets and estimated percentiles.
func (h *Histogram) Summary() HistogramSummary {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := HistogramSummary{Buckets: make([]BucketCount, 0, len(h.counts))}
	var cum uint64
	for i, c := range h.counts {
		cum += c
		bound := math.Inf(1)
		if i < len(h.bounds) {
			bound = h.bounds[i]
		}
		s.Buckets = append(s.Buckets, BucketCount{UpperBound: bound, Count: cum})
	}
	if h.n == 0 {
		return s
	}
	s.Count, s.Sum, s.Min, s.Max = h.n, h.sum, h.lo, h.hi
	s.Mean = h.sum / float64(h.n)
	s.P50 = s.Quantile(0.50)
	s.P90 = s.Quantile(0.90)
	s.P99 = s.Quantile(0.99)
	return s
}

// Quantile estimates the q-quantile (0 <= q <= 1) by interpolating inside
// the bucket that holds it. The first bucket starts at Min and the
// overflow bucket ends at Max. The result is clamped to [Min, Max].
func (s HistogramSummary) Quantile(q float64) float64 {
	if s.Count == 0 {
		return 0
	}
	rank := q * float64(s.Count)

	var prev uint64
	for i, b := range s.Buckets {
		in := b.Count - prev
		if in == 0 || float64(b.Count) < rank {
			prev = b.Count
			continue
		}

		lower := s.Min
		if i > 0 {
			lower = max(s.Buckets[i-1].UpperBound, s.Min)
		}
		upper := min(b.UpperBound, s.Max)
		v := lower + (rank-float64(prev))/float64(in)*(upper-lower)
		return min(max(v, s.Min), s.Max)
	}
	return s.Max
}
