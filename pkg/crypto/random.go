// Package crypto holds the primitives beneath the seven layers and the key
// agreement: randomness, X25519, ML-KEM-1024, the hash and KDF helpers, the
// Crypto Source Tracker and the power-on self tests.
//
// Layers and key agreement call these wrappers instead of the primitive
// constructors, so size checks and error kinds are the same everywhere.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// Reader is the randomness source for keys, seeds and nonces. It is the
// operating system CSPRNG.
var Reader io.Reader = rand.Reader

// SecureRandom fills b from Reader. An error means the system CSPRNG
// failed and nothing keyed from b may be used.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(Reader, b); err != nil {
		return qerrors.NewCryptoError("crypto.random", err)
	}
	return nil
}

// SecureRandomBytes returns n fresh random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandomBytes is SecureRandomBytes for tests and tools; it
// panics on a CSPRNG failure.
func MustSecureRandomBytes(n int) []byte {
	b, err := SecureRandomBytes(n)
	if err != nil {
		panic(err)
	}
	return b
}

// ConstantTimeCompare reports whether a and b are equal without leaking
// where they differ. Different lengths compare unequal.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// XORBytes writes a XOR b into dst for len(a) bytes and returns that
// prefix of dst. b may be longer than a.
func XORBytes(dst, a, b []byte) []byte {
	n := subtle.XORBytes(dst, a, b[:len(a)])
	return dst[:n]
}

// Zeroize clears b. Copies the runtime or the caller made are untouched.
func Zeroize(b []byte) {
	clear(b)
}

// ZeroizeMultiple clears every buffer.
func ZeroizeMultiple(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
