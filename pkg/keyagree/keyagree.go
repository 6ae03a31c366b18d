// Package keyagree supplies 64-byte master keys for the seven-layer engine.
//
// The engine never invents keys; it takes whatever 64 bytes the caller
// hands it. This package gathers the ways a master key is usually obtained:
//
//   - FromParticipants derives a deterministic key for a pair of chat
//     participants, independent of argument order.
//   - FromPassword stretches a passphrase with PBKDF2.
//   - FromSharedSecret expands an existing secret with HKDF.
//   - The hybrid KEM (GenerateKeyPair, Encapsulate, Decapsulate) agrees on a
//     fresh key between two parties using X25519 and ML-KEM-1024.
//
// Fingerprint gives a short, non-secret handle for a key, suitable for
// display and for the envelope's key_fingerprint field.
package keyagree

import (
	"encoding/hex"
	"sort"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

const fingerprintDomain = "7LAYER-FINGERPRINT"

// FromParticipants derives the master key shared by two participants.
// Swapping a and b yields the same key.
func FromParticipants(a, b string) ([]byte, error) {
	if a == "" {
		return nil, qerrors.NewValidationError("keyagree.participants", "a", qerrors.ErrEmptyInput)
	}
	if b == "" {
		return nil, qerrors.NewValidationError("keyagree.participants", "b", qerrors.ErrEmptyInput)
	}

	ids := []string{a, b}
	sort.Strings(ids)
	material := []byte(constants.ParticipantLabel + ":" + ids[0] + ":" + ids[1])
	defer crypto.Zeroize(material)

	return crypto.PBKDF2SHA512(material, []byte(constants.ParticipantSalt),
		constants.KeyAgreeIterations, constants.MasterKeySize)
}

// FromPassword stretches a passphrase into a master key.
func FromPassword(password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, qerrors.NewValidationError("keyagree.password", "password", qerrors.ErrEmptyInput)
	}
	return crypto.PBKDF2SHA256(password, []byte(constants.PasswordSalt),
		constants.KeyAgreeIterations, constants.MasterKeySize)
}

// FromSharedSecret expands secret into a master key. info binds the key to
// a context such as a conversation id and may be empty.
func FromSharedSecret(secret, info []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, qerrors.NewValidationError("keyagree.shared", "secret", qerrors.ErrEmptyInput)
	}
	return crypto.HKDFSHA256(secret, []byte(constants.DomainSeparatorShared), info, constants.MasterKeySize)
}

// Fingerprint returns 16 hex characters identifying masterKey.
func Fingerprint(masterKey []byte) string {
	sum := crypto.SHA256Concat([]byte(fingerprintDomain), masterKey)
	return hex.EncodeToString(sum)[:constants.DigestPrefixChars]
}
