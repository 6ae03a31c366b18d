// Package instrument defines the optional per-call diagnostics hook of the
// engine.
//
// A Hook receives one LayerEvent per layer and one OperationEvent per call.
// Events carry sizes, timings, truncated hex previews and SHA-256 prefixes of
// the intermediate buffers, never keys. The engine only builds events when a
// hook is installed, and its results never depend on the hook.
package instrument

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

// Hook receives diagnostics of engine calls.
// Implementations must be safe for concurrent use; callbacks run on the
// caller's goroutine and should return quickly.
type Hook interface {
	// OnLayer is called after each layer of a call.
	OnLayer(ev LayerEvent)

	// OnOperation is called once when a call completes or fails.
	OnOperation(ev OperationEvent)
}

// OperationEvent describes one encrypt or decrypt call.
type OperationEvent struct {
	ID         string
	Direction  metrics.Direction
	Profile    string
	InputSize  int
	OutputSize int
	Duration   time.Duration
	Err        error
}

// Failed reports whether the call returned an error.
func (e OperationEvent) Failed() bool {
	return e.Err != nil
}

// LayerEvent describes one layer within a call.
type LayerEvent struct {
	OperationID   string
	Direction     metrics.Direction
	Layer         constants.LayerID
	Name          string
	InputSize     int
	OutputSize    int
	InputPreview  string
	OutputPreview string
	InputDigest   string
	OutputDigest  string
	Duration      time.Duration
}

// NewLayerEvent builds a LayerEvent from the buffers a layer consumed and
// produced.
func NewLayerEvent(opID string, dir metrics.Direction, id constants.LayerID, name string, in, out []byte, d time.Duration) LayerEvent {
	return LayerEvent{
		OperationID:   opID,
		Direction:     dir,
		Layer:         id,
		Name:          name,
		InputSize:     len(in),
		OutputSize:    len(out),
		InputPreview:  Preview(in),
		OutputPreview: Preview(out),
		InputDigest:   Digest(in),
		OutputDigest:  Digest(out),
		Duration:      d,
	}
}

// Preview returns the hex encoding of b, shortened to its first and last
// 32 characters around "..." when longer than 64 characters.
func Preview(b []byte) string {
	const half = constants.PreviewHexChars / 2
	if 2*len(b) <= constants.PreviewHexChars {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:half/2]) + "..." + hex.EncodeToString(b[len(b)-half/2:])
}

// Digest returns the first 16 hex characters of SHA-256(b).
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:constants.DigestPrefixChars]
}

// NewOperationID returns a fresh random operation identifier.
func NewOperationID() string {
	return uuid.NewString()
}

// Nop is a Hook that ignores every event.
type Nop struct{}

var _ Hook = Nop{}

// OnLayer implements Hook.
func (Nop) OnLayer(LayerEvent) {}

// OnOperation implements Hook.
func (Nop) OnOperation(OperationEvent) {}

// multi fans events out to several hooks.
type multi []Hook

// Multi returns a Hook that forwards every event to each non-nil hook in
// order. It returns nil when no hook remains.
func Multi(hooks ...Hook) Hook {
	var m multi
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if inner, ok := h.(multi); ok {
			m = append(m, inner...)
			continue
		}
		m = append(m, h)
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

func (m multi) OnLayer(ev LayerEvent) {
	for _, h := range m {
		h.OnLayer(ev)
	}
}

func (m multi) OnOperation(ev OperationEvent) {
	for _, h := range m {
		h.OnOperation(ev)
	}
}
