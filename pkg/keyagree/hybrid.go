// Hybrid master-key agreement.
//
// Key generation:
//
//	(sk_x, pk_x) <- X25519.KeyGen()
//	(sk_m, pk_m) <- ML-KEM-1024.KeyGen()
//	pk = pk_x || pk_m
//
// Encapsulation:
//
//	(ct_m, K_m)  <- ML-KEM-1024.Encaps(pk_m)
//	(esk, epk)   <- X25519.KeyGen()
//	K_x          <- X25519(esk, pk_x)
//	ct           =  epk || ct_m
//	transcript   <- SHA3-256(pk_x, pk_m, epk, ct_m)
//	master key   <- SHAKE-256("7LAYER-HYBRID-v1-MasterKey", K_x, K_m, transcript)[:64]
//
// Decapsulation recomputes K_x with sk_x and K_m with sk_m and derives the
// same 64 bytes. The master key stays secret as long as either X25519 or
// ML-KEM-1024 holds.

package keyagree

import (
	"crypto/ecdh"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// KeyPair is a hybrid X25519 + ML-KEM-1024 key pair. The public half
// survives Zeroize.
type KeyPair struct {
	pub       PublicKey
	classical *ecdh.PrivateKey
	pq        *crypto.MLKEMPrivateKey
}

// PublicKey is the encapsulation half of a KeyPair.
type PublicKey struct {
	x25519 *ecdh.PublicKey
	mlkem  *crypto.MLKEMPublicKey
}

// Ciphertext carries the ephemeral X25519 key and the ML-KEM ciphertext.
type Ciphertext struct {
	ephemeral []byte
	mlkem     []byte
}

// GenerateKeyPair generates a hybrid key pair. Both halves pass the
// pairwise consistency test before they are returned, unless it has been
// disabled with crypto.SetCSTConfig.
func GenerateKeyPair() (*KeyPair, error) {
	const op = "keyagree.GenerateKeyPair"
	x, err := crypto.GenerateX25519KeyPairWithCST()
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	m, err := crypto.GenerateMLKEMKeyPairWithCST()
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	return &KeyPair{
		pub:       PublicKey{x25519: x.PublicKey, mlkem: m.EncapsulationKey},
		classical: x.PrivateKey,
		pq:        m.DecapsulationKey,
	}, nil
}

// PublicKey returns the public component of the key pair.
func (kp *KeyPair) PublicKey() *PublicKey {
	pub := kp.pub
	return &pub
}

// Zeroize drops the private key material.
func (kp *KeyPair) Zeroize() {
	kp.classical, kp.pq = nil, nil
}

// Encapsulate creates a fresh master key for the holder of pk.
func Encapsulate(pk *PublicKey) (*Ciphertext, []byte, error) {
	const op = "keyagree.Encapsulate"
	if pk == nil || pk.x25519 == nil || pk.mlkem == nil {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}

	eph, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, nil, qerrors.NewCryptoError(op, err)
	}
	defer eph.Zeroize()

	kx, err := crypto.X25519(eph.PrivateKey, pk.x25519)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError(op, err)
	}
	defer crypto.Zeroize(kx)

	ctm, km, err := crypto.MLKEMEncapsulate(pk.mlkem)
	if err != nil {
		return nil, nil, qerrors.NewCryptoError(op, err)
	}
	defer crypto.Zeroize(km)

	ct := &Ciphertext{ephemeral: eph.PublicKeyBytes(), mlkem: ctm}
	mk, err := combine(kx, km, pk, ct)
	if err != nil {
		return nil, nil, err
	}
	return ct, mk, nil
}

// Decapsulate recovers the master key from ct. An ML-KEM ciphertext that was
// tampered with yields a different key rather than an error; the mismatch
// surfaces when the engine fails to authenticate a packet.
func Decapsulate(ct *Ciphertext, kp *KeyPair) ([]byte, error) {
	const op = "keyagree.Decapsulate"
	if ct == nil || len(ct.ephemeral) != constants.X25519PublicKeySize || len(ct.mlkem) != constants.MLKEMCiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}
	if kp == nil || kp.classical == nil || kp.pq == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}

	epk, err := crypto.ParseX25519PublicKey(ct.ephemeral)
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	kx, err := crypto.X25519(kp.classical, epk)
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	defer crypto.Zeroize(kx)

	km, err := crypto.MLKEMDecapsulate(kp.pq, ct.mlkem)
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	defer crypto.Zeroize(km)

	return combine(kx, km, &kp.pub, ct)
}

func combine(kx, km []byte, pk *PublicKey, ct *Ciphertext) ([]byte, error) {
	transcript := crypto.TranscriptHash(pk.x25519.Bytes(), pk.mlkem.Bytes(), ct.ephemeral, ct.mlkem)
	return crypto.DeriveKeyMultiple(constants.DomainSeparatorHybrid,
		[][]byte{kx, km, transcript}, constants.MasterKeySize)
}

// Bytes encodes the public key as x25519 (32) || ml-kem (1568).
func (pk *PublicKey) Bytes() []byte {
	out := make([]byte, constants.HybridPublicKeySize)
	copy(out, pk.x25519.Bytes())
	copy(out[constants.X25519PublicKeySize:], pk.mlkem.Bytes())
	return out
}

// ParsePublicKey decodes a public key produced by PublicKey.Bytes.
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) != constants.HybridPublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	x, err := crypto.ParseX25519PublicKey(data[:constants.X25519PublicKeySize])
	if err != nil {
		return nil, err
	}
	m, err := crypto.ParseMLKEMPublicKey(data[constants.X25519PublicKeySize:])
	if err != nil {
		return nil, err
	}
	return &PublicKey{x25519: x, mlkem: m}, nil
}

// Bytes encodes the ciphertext as ephemeral (32) || ml-kem (1568).
func (ct *Ciphertext) Bytes() []byte {
	out := make([]byte, constants.HybridCiphertextSize)
	copy(out, ct.ephemeral)
	copy(out[constants.X25519PublicKeySize:], ct.mlkem)
	return out
}

// ParseCiphertext decodes a ciphertext produced by Ciphertext.Bytes. The
// result does not alias data.
func ParseCiphertext(data []byte) (*Ciphertext, error) {
	if len(data) != constants.HybridCiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}
	ct := &Ciphertext{
		ephemeral: make([]byte, constants.X25519PublicKeySize),
		mlkem:     make([]byte, constants.MLKEMCiphertextSize),
	}
	copy(ct.ephemeral, data)
	copy(ct.mlkem, data[constants.X25519PublicKeySize:])
	return ct, nil
}
