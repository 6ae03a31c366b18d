package engine

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
	"github.com/sara-star-quant/sevenlayer/pkg/instrument"
	"github.com/sara-star-quant/sevenlayer/pkg/keysched"
	"github.com/sara-star-quant/sevenlayer/pkg/layer"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

// Engine runs the seven layers over a packet. It is safe for concurrent use:
// only the active profile is shared between calls, and layers are built per
// call from that immutable value.
type Engine struct {
	mu      sync.RWMutex
	profile Profile

	cfg      config
	observer *metrics.Observer
}

// New creates an engine with the named built-in profile active.
func New(profileName string, opts ...Option) (*Engine, error) {
	p, ok := LookupProfile(profileName)
	if !ok {
		return nil, qerrors.NewValidationError("engine.New", "profile", qerrors.ErrUnknownProfile)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.collector == nil {
		cfg.collector = metrics.NewCollector(nil)
	}

	return &Engine{
		profile: p,
		cfg:     cfg,
		observer: metrics.NewObserver(metrics.ObserverConfig{
			Collector: cfg.collector,
			Tracer:    cfg.tracer,
			Logger:    cfg.logger,
		}),
	}, nil
}

// Profile returns the active profile.
func (e *Engine) Profile() Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile
}

// SetProfile makes the named built-in profile active.
func (e *Engine) SetProfile(name string) error {
	p, ok := LookupProfile(name)
	if !ok {
		return qerrors.NewValidationError("engine.SetProfile", "profile", qerrors.ErrUnknownProfile)
	}
	e.switchProfile(p, "requested")
	return nil
}

func (e *Engine) switchProfile(p Profile, reason string) {
	e.mu.Lock()
	prev := e.profile
	e.profile = p
	e.mu.Unlock()

	if prev.Name != p.Name {
		e.observer.OnProfileSwitch(prev.Name, p.Name, reason)
	}
}

func (e *Engine) now() time.Time {
	if e.cfg.clock != nil {
		return e.cfg.clock()
	}
	return time.Now()
}

// Encrypt encrypts plaintext under the active profile. A nil nonce is
// replaced by a fresh random one; a caller-supplied nonce must never be
// reused with the same master key.
func (e *Engine) Encrypt(ctx context.Context, plaintext, masterKey, nonce []byte) ([]byte, error) {
	return e.encrypt(ctx, e.Profile(), plaintext, masterKey, nonce)
}

// EncryptWithProfile encrypts plaintext under the named built-in profile
// without changing the active one.
func (e *Engine) EncryptWithProfile(ctx context.Context, plaintext, masterKey, nonce []byte, profileName string) ([]byte, error) {
	p, ok := LookupProfile(profileName)
	if !ok {
		return nil, qerrors.NewValidationError("engine.Encrypt", "profile", qerrors.ErrUnknownProfile)
	}
	return e.encrypt(ctx, p, plaintext, masterKey, nonce)
}

func (e *Engine) encrypt(ctx context.Context, p Profile, plaintext, masterKey, nonce []byte) (packet []byte, err error) {
	opID := instrument.NewOperationID()
	start := time.Now()
	ctx, done := e.observer.OnCall(ctx, metrics.DirectionEncrypt, opID, p.Name, len(plaintext))
	defer func() {
		done(p.Name, len(packet), err)
		e.emitOperation(opID, metrics.DirectionEncrypt, p.Name, len(plaintext), len(packet), start, err)
	}()

	if len(plaintext) == 0 {
		return nil, qerrors.NewValidationError("engine.Encrypt", "plaintext", qerrors.ErrEmptyInput)
	}
	if len(masterKey) != constants.MasterKeySize {
		return nil, qerrors.NewValidationError("engine.Encrypt", "masterKey", qerrors.ErrInvalidKeySize)
	}
	if nonce == nil {
		if nonce, err = GenerateNonce(); err != nil {
			return nil, err
		}
	}

	header, err := EncodeHeader(&Header{
		Version:   constants.Version,
		Profile:   p.Name,
		Timestamp: e.now(),
		Nonce:     nonce,
	})
	if err != nil {
		return nil, err
	}

	sched, err := e.schedule(ctx, masterKey, nonce)
	if err != nil {
		return nil, err
	}
	defer sched.Zeroize()

	stages, err := layer.Stages(p.Params(e.cfg.clock, e.cfg.enforceTTL))
	if err != nil {
		return nil, err
	}

	data := plaintext
	for _, l := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := sched.Key(l.ID())
		data, err = e.runLayer(ctx, metrics.DirectionEncrypt, opID, l, data, func(in []byte) ([]byte, error) {
			if binder, ok := l.(layer.AssociatedDataBinder); ok {
				return binder.EncryptWithAD(in, key, sched.LayerNonce(), header)
			}
			return l.Encrypt(in, key, sched.LayerNonce())
		})
		if err != nil {
			return nil, err
		}
	}

	return append(header, data...), nil
}

// Decrypt authenticates and decrypts a packet. The profile is read from the
// packet header; with auto-reconfiguration enabled a successful call makes
// it the active profile. No plaintext is returned on any failure.
func (e *Engine) Decrypt(ctx context.Context, packet, masterKey []byte) (plaintext []byte, err error) {
	opID := instrument.NewOperationID()
	start := time.Now()
	active := e.Profile().Name
	// Labelled with the active profile until the header names the real one.
	profile := active
	ctx, done := e.observer.OnCall(ctx, metrics.DirectionDecrypt, opID, active, len(packet))
	defer func() {
		done(profile, len(plaintext), err)
		e.emitOperation(opID, metrics.DirectionDecrypt, profile, len(packet), len(plaintext), start, err)
	}()

	if len(packet) == 0 {
		return nil, qerrors.NewValidationError("engine.Decrypt", "packet", qerrors.ErrEmptyInput)
	}
	if len(masterKey) != constants.MasterKeySize {
		return nil, qerrors.NewValidationError("engine.Decrypt", "masterKey", qerrors.ErrInvalidKeySize)
	}

	h, n, err := DecodeHeader(packet)
	if err != nil {
		return nil, err
	}
	p, ok := LookupProfile(h.Profile)
	if !ok {
		return nil, qerrors.NewFormatError("engine.header.profile", qerrors.ErrUnknownProfile)
	}
	profile = p.Name
	if n == len(packet) {
		return nil, qerrors.NewFormatError("engine.Decrypt", qerrors.ErrTruncated)
	}
	header := packet[:n]

	sched, err := e.schedule(ctx, masterKey, h.Nonce)
	if err != nil {
		return nil, err
	}
	defer sched.Zeroize()

	stages, err := layer.Stages(p.Params(e.cfg.clock, e.cfg.enforceTTL))
	if err != nil {
		return nil, err
	}

	data := packet[n:]
	for i := len(stages) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l := stages[i]
		key := sched.Key(l.ID())
		data, err = e.runLayer(ctx, metrics.DirectionDecrypt, opID, l, data, func(in []byte) ([]byte, error) {
			return decryptLayer(l, in, key, sched.LayerNonce(), header)
		})
		if err != nil {
			return nil, err
		}
	}

	if e.cfg.autoReconfigure && p.Name != active {
		e.switchProfile(p, "packet header")
	}
	return data, nil
}

// decryptLayer dispatches on the capabilities of l.
func decryptLayer(l layer.Layer, data, key, nonce, header []byte) ([]byte, error) {
	if binder, ok := l.(layer.AssociatedDataBinder); ok {
		return binder.DecryptWithAD(data, key, header)
	}
	switch s := l.(type) {
	case layer.NeedsSharedNonce:
		return s.Decrypt(data, key, nonce)
	case layer.SelfContainedFraming:
		return s.Decrypt(data, key)
	default:
		return nil, qerrors.NewCryptoError("engine.Decrypt", qerrors.ErrInvalidParameter)
	}
}

func (e *Engine) schedule(ctx context.Context, masterKey, nonce []byte) (*keysched.Schedule, error) {
	_, end := e.observer.StartSpan(ctx, metrics.SpanKeySchedule)
	sched, err := keysched.Derive(masterKey, nonce)
	end(err)
	return sched, err
}

func (e *Engine) runLayer(ctx context.Context, dir metrics.Direction, opID string, l layer.Layer, in []byte, fn func([]byte) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	end := e.observer.OnLayer(ctx, dir, l.ID())
	out, err := fn(in)
	end(err)

	if err == nil && e.cfg.hook != nil {
		e.cfg.hook.OnLayer(instrument.NewLayerEvent(opID, dir, l.ID(), l.Name(), in, out, time.Since(start)))
	}
	return out, err
}

func (e *Engine) emitOperation(opID string, dir metrics.Direction, profile string, in, out int, start time.Time, err error) {
	if e.cfg.hook == nil {
		return
	}
	e.cfg.hook.OnOperation(instrument.OperationEvent{
		ID:         opID,
		Direction:  dir,
		Profile:    profile,
		InputSize:  in,
		OutputSize: out,
		Duration:   time.Since(start),
		Err:        err,
	})
}

// PackageInfo describes a packet without decrypting it.
type PackageInfo struct {
	Version            string        `json:"version"`
	Profile            string        `json:"profile"`
	ProfileDescription string        `json:"profile_description"`
	Timestamp          time.Time     `json:"timestamp"`
	Age                time.Duration `json:"age"`
	Nonce              string        `json:"nonce"`
	HeaderSize         int           `json:"header_size"`
	EncryptedSize      int           `json:"encrypted_size"`
	TotalSize          int           `json:"total_size"`
}

// AgeHours returns the packet age in hours.
func (i *PackageInfo) AgeHours() float64 {
	return i.Age.Hours()
}

// Info parses the system header of a packet. Nothing is authenticated.
func (e *Engine) Info(packet []byte) (*PackageInfo, error) {
	h, n, err := DecodeHeader(packet)
	if err != nil {
		return nil, err
	}
	p, ok := LookupProfile(h.Profile)
	if !ok {
		return nil, qerrors.NewFormatError("engine.header.profile", qerrors.ErrUnknownProfile)
	}

	return &PackageInfo{
		Version:            h.Version,
		Profile:            p.Name,
		ProfileDescription: p.Description,
		Timestamp:          h.Timestamp,
		Age:                e.now().Sub(h.Timestamp),
		Nonce:              hex.EncodeToString(h.Nonce),
		HeaderSize:         n,
		EncryptedSize:      len(packet) - n,
		TotalSize:          len(packet),
	}, nil
}

// Stats returns the engine's call counters and latency summaries.
func (e *Engine) Stats() metrics.Snapshot {
	return e.observer.Collector().Snapshot()
}

// ResetStats clears the engine's counters.
func (e *Engine) ResetStats() {
	e.observer.Collector().Reset()
}

// GenerateMasterKey returns a random 64-byte master key.
func GenerateMasterKey() ([]byte, error) {
	return randomWithHealthCheck(constants.MasterKeySize)
}

// GenerateNonce returns a random 32-byte operation nonce.
func GenerateNonce() ([]byte, error) {
	return randomWithHealthCheck(constants.NonceSize)
}

func randomWithHealthCheck(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := crypto.SecureRandomWithCST(b); err != nil {
		return nil, err
	}
	return b, nil
}
