// Key derivation helpers shared by the layers, the key scheduler and key agreement.
//
// Two families live here. The SHA-256 family (SHA256Concat, HMACSHA256,
// PBKDF2SHA256) carries the wire-compatible derivations of the seven layers,
// whose exact byte layout is fixed by existing packets. The SHA-3 family
// (DeriveKey, DeriveKeyMultiple, TranscriptHash) backs the hybrid KEM
// combiner and frames every field with its length.

package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// maxDerivedLength bounds every variable-length derivation (1 MB).
const maxDerivedLength = 1 << 20

// SHA256Concat returns SHA-256 over the concatenation of parts.
func SHA256Concat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HMACSHA256 returns HMAC-SHA256(key, parts[0] || parts[1] || ...).
func HMACSHA256(key []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

// VerifyHMACSHA256 recomputes the MAC over parts and compares the first
// len(tag) bytes in constant time. Tags shorter than 16 bytes are rejected.
func VerifyHMACSHA256(key, tag []byte, parts ...[]byte) bool {
	if len(tag) < 16 || len(tag) > sha256.Size {
		return false
	}
	return hmac.Equal(HMACSHA256(key, parts...)[:len(tag)], tag)
}

// PBKDF2SHA256 derives keyLen bytes with PBKDF2-HMAC-SHA256.
func PBKDF2SHA256(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	return pbkdf2Derive("PBKDF2SHA256", sha256.New, password, salt, iterations, keyLen)
}

// PBKDF2SHA512 derives keyLen bytes with PBKDF2-HMAC-SHA512.
func PBKDF2SHA512(password, salt []byte, iterations, keyLen int) ([]byte, error) {
	return pbkdf2Derive("PBKDF2SHA512", sha512.New, password, salt, iterations, keyLen)
}

func pbkdf2Derive(op string, h func() hash.Hash, password, salt []byte, iterations, keyLen int) ([]byte, error) {
	if iterations <= 0 {
		return nil, qerrors.NewCryptoError(op, qerrors.ErrInvalidParameter)
	}
	if keyLen <= 0 || keyLen > maxDerivedLength {
		return nil, qerrors.NewCryptoError(op, qerrors.ErrInvalidKeySize)
	}
	return pbkdf2.Key(password, salt, iterations, keyLen, h), nil
}

// HKDFSHA256 expands secret into keyLen bytes with HKDF-SHA256 (RFC 5869).
func HKDFSHA256(secret, salt, info []byte, keyLen int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, qerrors.NewCryptoError("HKDFSHA256", qerrors.ErrInvalidKeySize)
	}
	if keyLen <= 0 || keyLen > 255*sha256.Size {
		return nil, qerrors.NewCryptoError("HKDFSHA256", qerrors.ErrInvalidKeySize)
	}
	out := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, qerrors.NewCryptoError("HKDFSHA256", err)
	}
	return out, nil
}

// framer writes length-prefixed fields into a hash. Every prefix is a
// 4-byte big-endian length.
type framer struct {
	w   io.Writer
	buf [4]byte
}

func (f *framer) count(n int) {
	binary.BigEndian.PutUint32(f.buf[:], uint32(n))
	f.w.Write(f.buf[:])
}

func (f *framer) field(b []byte) {
	f.count(len(b))
	f.w.Write(b)
}

func shakeOutput(op string, outputLen int, frame func(*framer)) ([]byte, error) {
	if outputLen <= 0 || outputLen > maxDerivedLength {
		return nil, qerrors.NewCryptoError(op, qerrors.ErrInvalidKeySize)
	}
	h := sha3.NewShake256()
	frame(&framer{w: h})
	out := make([]byte, outputLen)
	_, _ = h.Read(out)
	return out, nil
}

// DeriveKey returns SHAKE-256(BE32(len(domain)) || domain ||
// BE32(len(input)) || input) truncated to outputLen bytes.
func DeriveKey(domain string, input []byte, outputLen int) ([]byte, error) {
	return shakeOutput("DeriveKey", outputLen, func(f *framer) {
		f.field([]byte(domain))
		f.field(input)
	})
}

// DeriveKeyMultiple is DeriveKey over several inputs, with the input count
// framed after the domain. The hybrid KEM combines the X25519 secret, the
// ML-KEM secret and the transcript hash this way.
func DeriveKeyMultiple(domain string, inputs [][]byte, outputLen int) ([]byte, error) {
	return shakeOutput("DeriveKeyMultiple", outputLen, func(f *framer) {
		f.field([]byte(domain))
		f.count(len(inputs))
		for _, in := range inputs {
			f.field(in)
		}
	})
}

// TranscriptHash is SHA3-256 over the component count and each
// length-prefixed component, so reordering components changes it.
func TranscriptHash(components ...[]byte) []byte {
	h := sha3.New256()
	f := &framer{w: h}
	f.count(len(components))
	for _, c := range components {
		f.field(c)
	}
	return h.Sum(nil)
}
