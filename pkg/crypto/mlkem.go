package crypto

import (
	"bytes"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// MLKEMPublicKey is an ML-KEM-1024 (FIPS 203) encapsulation key, the
// post-quantum half of a hybrid public key.
type MLKEMPublicKey struct {
	key *mlkem1024.PublicKey
}

// MLKEMPrivateKey is an ML-KEM-1024 decapsulation key.
type MLKEMPrivateKey struct {
	key *mlkem1024.PrivateKey
}

// MLKEMKeyPair holds both halves of an ML-KEM-1024 key.
type MLKEMKeyPair struct {
	EncapsulationKey *MLKEMPublicKey
	DecapsulationKey *MLKEMPrivateKey
}

func generateMLKEM(op string, rand io.Reader) (*MLKEMKeyPair, error) {
	pk, sk, err := mlkem1024.GenerateKeyPair(rand)
	if err != nil {
		return nil, qerrors.NewCryptoError(op, err)
	}
	return &MLKEMKeyPair{
		EncapsulationKey: &MLKEMPublicKey{key: pk},
		DecapsulationKey: &MLKEMPrivateKey{key: sk},
	}, nil
}

// GenerateMLKEMKeyPair draws a fresh key pair from Reader.
func GenerateMLKEMKeyPair() (*MLKEMKeyPair, error) {
	return generateMLKEM("mlkem.generate", Reader)
}

// NewMLKEMKeyPairFromSeed derives a key pair from a 64-byte seed (d || z).
// The same seed always gives the same pair.
func NewMLKEMKeyPairFromSeed(seed []byte) (*MLKEMKeyPair, error) {
	if len(seed) != mlkem1024.KeySeedSize {
		return nil, qerrors.NewCryptoError("mlkem.from-seed", qerrors.ErrInvalidKeySize)
	}
	return generateMLKEM("mlkem.from-seed", bytes.NewReader(seed))
}

// ParseMLKEMPublicKey unpacks a 1568-byte encapsulation key.
func ParseMLKEMPublicKey(data []byte) (*MLKEMPublicKey, error) {
	if len(data) != constants.MLKEMPublicKeySize {
		return nil, qerrors.ErrInvalidPublicKey
	}
	var pk mlkem1024.PublicKey
	if err := pk.Unpack(data); err != nil {
		return nil, qerrors.NewCryptoError("mlkem.parse", err)
	}
	return &MLKEMPublicKey{key: &pk}, nil
}

// Bytes packs the encapsulation key; nil for an empty key.
func (pk *MLKEMPublicKey) Bytes() []byte {
	if pk == nil || pk.key == nil {
		return nil
	}
	out := make([]byte, mlkem1024.PublicKeySize)
	pk.key.Pack(out)
	return out
}

// PublicKeyBytes packs the pair's encapsulation key.
func (kp *MLKEMKeyPair) PublicKeyBytes() []byte {
	return kp.EncapsulationKey.Bytes()
}

// MLKEMEncapsulate returns a 1568-byte ciphertext to ek and the 32-byte
// secret it carries.
func MLKEMEncapsulate(ek *MLKEMPublicKey) (ciphertext, secret []byte, err error) {
	if ek == nil || ek.key == nil {
		return nil, nil, qerrors.ErrInvalidPublicKey
	}
	seed, err := SecureRandomBytes(mlkem1024.EncapsulationSeedSize)
	if err != nil {
		return nil, nil, err
	}
	defer Zeroize(seed)

	ciphertext = make([]byte, mlkem1024.CiphertextSize)
	secret = make([]byte, mlkem1024.SharedKeySize)
	ek.key.EncapsulateTo(ciphertext, secret, seed)
	return ciphertext, secret, nil
}

// MLKEMDecapsulate recovers the secret from a ciphertext. A well-sized but
// corrupted ciphertext yields an unrelated pseudorandom secret rather than
// an error (implicit rejection); the mismatch surfaces when the derived key
// fails to authenticate.
func MLKEMDecapsulate(dk *MLKEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if dk == nil || dk.key == nil {
		return nil, qerrors.ErrInvalidPrivateKey
	}
	if len(ciphertext) != constants.MLKEMCiphertextSize {
		return nil, qerrors.ErrInvalidCiphertext
	}
	secret := make([]byte, mlkem1024.SharedKeySize)
	dk.key.DecapsulateTo(secret, ciphertext)
	return secret, nil
}

// Zeroize drops the pair's keys. CIRCL keeps its key buffers private, so
// this releases references rather than overwriting memory.
func (kp *MLKEMKeyPair) Zeroize() {
	kp.EncapsulationKey, kp.DecapsulationKey = nil, nil
}
