package instrument

import (
	"slices"
	"sync"

	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

// Recorder is a Hook that keeps every event in memory.
// It is meant for tests and diagnostics tooling.
type Recorder struct {
	mu         sync.Mutex
	operations []OperationEvent
	layers     []LayerEvent
}

var _ Hook = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnLayer implements Hook.
func (r *Recorder) OnLayer(ev LayerEvent) {
	r.mu.Lock()
	r.layers = append(r.layers, ev)
	r.mu.Unlock()
}

// OnOperation implements Hook.
func (r *Recorder) OnOperation(ev OperationEvent) {
	r.mu.Lock()
	r.operations = append(r.operations, ev)
	r.mu.Unlock()
}

// Operations returns a copy of the recorded operation events.
func (r *Recorder) Operations() []OperationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.operations)
}

// Layers returns a copy of all recorded layer events.
func (r *Recorder) Layers() []LayerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.layers)
}

// LayersFor returns the layer events of one operation in the order they
// were reported.
func (r *Recorder) LayersFor(opID string) []LayerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LayerEvent
	for _, ev := range r.layers {
		if ev.OperationID == opID {
			out = append(out, ev)
		}
	}
	return out
}

// Stats summarises the recorded operations.
type Stats struct {
	Operations  int
	Encryptions int
	Decryptions int
	Errors      int
	LayerEvents int
}

// Stats counts the recorded events.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Operations: len(r.operations), LayerEvents: len(r.layers)}
	for _, op := range r.operations {
		switch {
		case op.Failed():
			s.Errors++
		case op.Direction == metrics.DirectionDecrypt:
			s.Decryptions++
		default:
			s.Encryptions++
		}
	}
	return s
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = nil
	r.layers = nil
}
