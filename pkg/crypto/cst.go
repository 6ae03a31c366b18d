// Conditional self tests.
//
// Unlike the power-on tests in post.go, these run alongside normal
// operation: a pairwise consistency check on every key pair generated for
// master-key agreement, and a periodic health check of the random source
// that feeds master keys and nonces.

package crypto

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrSelfTestFailed is wrapped by every conditional self-test failure.
var ErrSelfTestFailed = errors.New("crypto: conditional self test failed")

// CSTConfig configures the conditional self tests.
type CSTConfig struct {
	// PairwiseTest checks every generated key pair before it is returned.
	PairwiseTest bool

	// RNGHealthCheck samples the random source every RNGHealthCheckInterval
	// calls of SecureRandomWithCST.
	RNGHealthCheck         bool
	RNGHealthCheckInterval uint64

	// FailHard panics on a failed test instead of returning an error.
	FailHard bool
}

// DefaultCSTConfig enables both tests. Key generation is rare enough that
// the pairwise check is always affordable.
func DefaultCSTConfig() CSTConfig {
	return CSTConfig{
		PairwiseTest:           true,
		RNGHealthCheck:         true,
		RNGHealthCheckInterval: 1000,
	}
}

var (
	cstConfig    atomic.Pointer[CSTConfig]
	rngCallCount atomic.Uint64
)

// SetCSTConfig replaces the active configuration.
func SetCSTConfig(cfg CSTConfig) {
	if cfg.RNGHealthCheckInterval == 0 {
		cfg.RNGHealthCheckInterval = DefaultCSTConfig().RNGHealthCheckInterval
	}
	cstConfig.Store(&cfg)
}

// GetCSTConfig returns the active configuration.
func GetCSTConfig() CSTConfig {
	if cfg := cstConfig.Load(); cfg != nil {
		return *cfg
	}
	return DefaultCSTConfig()
}

// CSTResult is the outcome of one conditional self test.
type CSTResult struct {
	Passed bool
	Error  error
}

func cstFail(format string, args ...interface{}) *CSTResult {
	return &CSTResult{Error: fmt.Errorf("%w: "+format, append([]interface{}{ErrSelfTestFailed}, args...)...)}
}

func cstPass() *CSTResult {
	return &CSTResult{Passed: true}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// PairwiseConsistencyTestX25519 agrees on a secret with a throwaway peer in
// both directions and compares the results.
func PairwiseConsistencyTestX25519(kp *X25519KeyPair) *CSTResult {
	if kp == nil || kp.PrivateKey == nil || kp.PublicKey == nil {
		return cstFail("X25519: incomplete key pair")
	}

	peer, err := GenerateX25519KeyPair()
	if err != nil {
		return cstFail("X25519: peer generation: %v", err)
	}
	ours, err := X25519(kp.PrivateKey, peer.PublicKey)
	if err != nil {
		return cstFail("X25519: %v", err)
	}
	theirs, err := X25519(peer.PrivateKey, kp.PublicKey)
	if err != nil {
		return cstFail("X25519: %v", err)
	}
	defer ZeroizeMultiple(ours, theirs)

	if !ConstantTimeCompare(ours, theirs) {
		return cstFail("X25519: shared secrets differ")
	}
	if allZero(ours) {
		return cstFail("X25519: all-zero shared secret")
	}
	return cstPass()
}

// PairwiseConsistencyTestMLKEM encapsulates to the pair and decapsulates
// the result.
func PairwiseConsistencyTestMLKEM(kp *MLKEMKeyPair) *CSTResult {
	if kp == nil || kp.EncapsulationKey == nil || kp.DecapsulationKey == nil {
		return cstFail("ML-KEM: incomplete key pair")
	}

	ct, sent, err := MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return cstFail("ML-KEM: encapsulate: %v", err)
	}
	got, err := MLKEMDecapsulate(kp.DecapsulationKey, ct)
	if err != nil {
		return cstFail("ML-KEM: decapsulate: %v", err)
	}
	defer ZeroizeMultiple(sent, got)

	if !ConstantTimeCompare(sent, got) {
		return cstFail("ML-KEM: shared secrets differ")
	}
	if allZero(sent) {
		return cstFail("ML-KEM: all-zero shared secret")
	}
	return cstPass()
}

// RNGHealthCheck draws two 32-byte samples and rejects all-zero, constant
// or repeated output.
func RNGHealthCheck() *CSTResult {
	var a, b [32]byte
	if err := SecureRandom(a[:]); err != nil {
		return cstFail("RNG: %v", err)
	}
	if err := SecureRandom(b[:]); err != nil {
		return cstFail("RNG: %v", err)
	}

	for _, s := range [][]byte{a[:], b[:]} {
		if allZero(s) {
			return cstFail("RNG: all-zero sample")
		}
		if bytes.Count(s, s[:1]) == len(s) {
			return cstFail("RNG: constant sample")
		}
	}
	if a == b {
		return cstFail("RNG: repeated sample")
	}
	return cstPass()
}

func enforce(r *CSTResult) error {
	if r.Passed {
		return nil
	}
	if GetCSTConfig().FailHard {
		panic(r.Error.Error())
	}
	return r.Error
}

// GenerateX25519KeyPairWithCST generates an X25519 key pair and, when
// enabled, runs the pairwise consistency test on it.
func GenerateX25519KeyPairWithCST() (*X25519KeyPair, error) {
	kp, err := GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	if GetCSTConfig().PairwiseTest {
		if err := enforce(PairwiseConsistencyTestX25519(kp)); err != nil {
			return nil, err
		}
	}
	return kp, nil
}

// GenerateMLKEMKeyPairWithCST generates an ML-KEM-1024 key pair and, when
// enabled, runs the pairwise consistency test on it.
func GenerateMLKEMKeyPairWithCST() (*MLKEMKeyPair, error) {
	kp, err := GenerateMLKEMKeyPair()
	if err != nil {
		return nil, err
	}
	if GetCSTConfig().PairwiseTest {
		if err := enforce(PairwiseConsistencyTestMLKEM(kp)); err != nil {
			return nil, err
		}
	}
	return kp, nil
}

// SecureRandomWithCST fills b from the CSPRNG and runs the periodic RNG
// health check.
func SecureRandomWithCST(b []byte) error {
	if err := SecureRandom(b); err != nil {
		return err
	}

	cfg := GetCSTConfig()
	if !cfg.RNGHealthCheck {
		return nil
	}
	if n := rngCallCount.Add(1); n%cfg.RNGHealthCheckInterval == 1 {
		return enforce(RNGHealthCheck())
	}
	return nil
}
