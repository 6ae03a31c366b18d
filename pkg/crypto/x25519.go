package crypto

import (
	"crypto/ecdh"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// X25519KeyPair is the classical half of a hybrid key pair (RFC 7748).
type X25519KeyPair struct {
	PublicKey  *ecdh.PublicKey
	PrivateKey *ecdh.PrivateKey
}

func newX25519KeyPair(sk *ecdh.PrivateKey) *X25519KeyPair {
	return &X25519KeyPair{PublicKey: sk.PublicKey(), PrivateKey: sk}
}

// GenerateX25519KeyPair draws a fresh key pair from Reader.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	sk, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("x25519.generate", err)
	}
	return newX25519KeyPair(sk), nil
}

// NewX25519KeyPairFromBytes rebuilds a key pair from its 32-byte scalar.
func NewX25519KeyPairFromBytes(scalar []byte) (*X25519KeyPair, error) {
	if len(scalar) != constants.X25519PrivateKeySize {
		return nil, qerrors.NewCryptoError("x25519.from-bytes", qerrors.ErrInvalidKeySize)
	}
	sk, err := ecdh.X25519().NewPrivateKey(scalar)
	if err != nil {
		return nil, qerrors.NewCryptoError("x25519.from-bytes", err)
	}
	return newX25519KeyPair(sk), nil
}

// ParseX25519PublicKey reads a 32-byte peer key. Low-order points parse
// but are rejected by X25519.
func ParseX25519PublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != constants.X25519PublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	pk, err := ecdh.X25519().NewPublicKey(data)
	if err != nil {
		return nil, qerrors.NewCryptoError("x25519.parse", err)
	}
	return pk, nil
}

// X25519 returns the raw 32-byte shared secret of sk and peer. It is only
// ever used as KDF input, never as a key.
func X25519(sk *ecdh.PrivateKey, peer *ecdh.PublicKey) ([]byte, error) {
	switch {
	case sk == nil:
		return nil, qerrors.ErrInvalidPrivateKey
	case peer == nil:
		return nil, qerrors.ErrInvalidPublicKey
	}
	secret, err := sk.ECDH(peer)
	if err != nil {
		return nil, qerrors.NewCryptoError("x25519.ecdh", err)
	}
	return secret, nil
}

// PublicKeyBytes returns the 32-byte encoded public key.
func (kp *X25519KeyPair) PublicKeyBytes() []byte {
	return kp.PublicKey.Bytes()
}

// Zeroize drops the pair's keys. crypto/ecdh keeps the scalar private, so
// this releases references rather than overwriting memory.
func (kp *X25519KeyPair) Zeroize() {
	kp.PublicKey, kp.PrivateKey = nil, nil
}
