package metrics

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram([]float64{100, 10, 50, 10})
	for v := 1; v <= 100; v++ {
		h.Observe(float64(v))
	}
	h.Observe(1000)

	s := h.Summary()
	want := []BucketCount{{10, 10}, {50, 50}, {100, 100}, {math.Inf(1), 101}}
	if len(s.Buckets) != len(want) {
		t.Fatalf("buckets = %v", s.Buckets)
	}
	for i, b := range want {
		if s.Buckets[i] != b {
			t.Errorf("bucket %d = %+v, want %+v", i, s.Buckets[i], b)
		}
	}
	if s.Count != 101 || s.Min != 1 || s.Max != 1000 || s.Sum != 6050 {
		t.Errorf("summary = %+v", s)
	}
	if math.Abs(s.Mean-6050.0/101) > 1e-9 {
		t.Errorf("mean = %v", s.Mean)
	}
}

func TestHistogramBoundIsInclusive(t *testing.T) {
	h := NewHistogram([]float64{5})
	h.Observe(5)
	if got := h.Summary().Buckets[0].Count; got != 1 {
		t.Errorf("value on the bound landed outside it: %d", got)
	}
}

func TestHistogramQuantiles(t *testing.T) {
	h := NewHistogram([]float64{10, 50, 100})
	for v := 1; v <= 100; v++ {
		h.Observe(float64(v))
	}
	s := h.Summary()

	tests := []struct {
		q, want float64
	}{
		{0, 1},
		{0.5, 50},
		{0.9, 90},
		{0.99, 99},
		{1, 100},
	}
	for _, tt := range tests {
		if got := s.Quantile(tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
	if math.Abs(s.P50-50) > 1e-9 || math.Abs(s.P90-90) > 1e-9 || math.Abs(s.P99-99) > 1e-9 {
		t.Errorf("percentile fields = %v %v %v", s.P50, s.P90, s.P99)
	}
}

func TestHistogramQuantileClamped(t *testing.T) {
	// All observations fall in the overflow bucket, so the estimate must
	// stay within what was actually seen.
	h := NewHistogram([]float64{1, 2})
	h.Observe(9000)
	h.Observe(9000)

	s := h.Summary()
	for _, q := range []float64{0.5, 0.99} {
		if got := s.Quantile(q); got != 9000 {
			t.Errorf("Quantile(%v) = %v, want 9000", q, got)
		}
	}

	// A single small value must not be reported above itself.
	h = NewHistogram([]float64{1000})
	h.Observe(3)
	if got := h.Summary().P50; got != 3 {
		t.Errorf("P50 = %v, want 3", got)
	}
}

func TestHistogramEmpty(t *testing.T) {
	s := NewHistogram(LayerLatencyBuckets).Summary()
	if s.Count != 0 || s.Quantile(0.5) != 0 || s.Mean != 0 {
		t.Errorf("empty summary = %+v", s)
	}
	if len(s.Buckets) != len(LayerLatencyBuckets)+1 {
		t.Errorf("empty histogram should still list its buckets, got %d", len(s.Buckets))
	}
	for _, b := range s.Buckets {
		if b.Count != 0 {
			t.Errorf("bucket %v = %d", b.UpperBound, b.Count)
		}
	}
}

func TestHistogramObserveDuration(t *testing.T) {
	h := NewHistogram(LatencyBuckets)
	h.ObserveDuration(2500 * time.Microsecond)
	h.ObserveDuration(1500 * time.Nanosecond)

	s := h.Summary()
	if s.Max != 2500 || s.Min != 1.5 {
		t.Errorf("durations should be recorded in microseconds: min=%v max=%v", s.Min, s.Max)
	}
}

func TestHistogramReset(t *testing.T) {
	h := NewHistogram([]float64{10})
	h.Observe(-4)
	h.Observe(40)
	h.Reset()
	h.Observe(7)

	s := h.Summary()
	if s.Count != 1 || s.Min != 7 || s.Max != 7 || s.Sum != 7 {
		t.Errorf("reset left state behind: %+v", s)
	}
	if s.Buckets[1].Count != 1 {
		t.Errorf("overflow bucket after reset = %d", s.Buckets[1].Count)
	}
}

func TestHistogramConcurrency(t *testing.T) {
	h := NewHistogram(LayerLatencyBuckets)
	const workers, perWorker = 10, 1000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h.Observe(float64(i % 300))
			}
		}()
	}
	wg.Wait()

	s := h.Summary()
	if s.Count != workers*perWorker {
		t.Errorf("count = %d", s.Count)
	}
	if last := s.Buckets[len(s.Buckets)-1]; last.Count != s.Count {
		t.Errorf("+Inf bucket = %d, count = %d", last.Count, s.Count)
	}
}
