// Package keysched derives the seven layer keys of one encrypt or decrypt
// operation from a 64-byte master key and a 32-byte operation nonce.
//
// For layer i (1..7):
//
//	context      = "7LAYER_KEY_L" || decimal(i) || nonce || masterKey[0:16]
//	intermediate = SHA-256(masterKey || context || LE32(i))
//	LayerKey[i]  = SHA-256(intermediate || reverse(context) || nonce[i-1 : i+15])
//
// A Schedule lives for a single operation and should be zeroized when the
// operation completes.
package keysched

import (
	"encoding/binary"
	"slices"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// Schedule holds the derived keys of one operation.
type Schedule struct {
	keys  [constants.LayerCount][]byte
	nonce []byte
}

// Derive validates the inputs and computes all seven layer keys.
func Derive(masterKey, nonce []byte) (*Schedule, error) {
	if len(masterKey) != constants.MasterKeySize {
		return nil, qerrors.NewValidationError("keysched.Derive", "masterKey", qerrors.ErrInvalidKeySize)
	}
	if len(nonce) != constants.NonceSize {
		return nil, qerrors.NewValidationError("keysched.Derive", "nonce", qerrors.ErrInvalidNonceSize)
	}

	s := &Schedule{nonce: slices.Clone(nonce)}
	for id := constants.LayerSubstitution; id <= constants.LayerIntegrityTag; id++ {
		s.keys[id-1] = deriveLayerKey(masterKey, nonce, id)
	}
	return s, nil
}

// DeriveLayer computes the key of a single layer.
func DeriveLayer(masterKey, nonce []byte, id constants.LayerID) ([]byte, error) {
	if !id.IsValid() {
		return nil, qerrors.NewValidationError("keysched.DeriveLayer", "layer", qerrors.ErrInvalidParameter)
	}
	s, err := Derive(masterKey, nonce)
	if err != nil {
		return nil, err
	}
	defer s.Zeroize()
	return slices.Clone(s.Key(id)), nil
}

func deriveLayerKey(masterKey, nonce []byte, id constants.LayerID) []byte {
	label := id.KeyContextLabel()
	context := make([]byte, 0, len(label)+len(nonce)+constants.MasterKeyContextSize)
	context = append(context, label...)
	context = append(context, nonce...)
	context = append(context, masterKey[:constants.MasterKeyContextSize]...)

	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(id))
	intermediate := crypto.SHA256Concat(masterKey, context, idx[:])

	reversed := slices.Clone(context)
	slices.Reverse(reversed)

	start := int(id) - 1
	key := crypto.SHA256Concat(intermediate, reversed, nonce[start:start+constants.LayerNonceSize])

	crypto.ZeroizeMultiple(intermediate, context, reversed)
	return key
}

// Key returns the key of layer id, or nil for an unknown layer.
// The slice is owned by the schedule.
func (s *Schedule) Key(id constants.LayerID) []byte {
	if !id.IsValid() {
		return nil
	}
	return s.keys[id-1]
}

// LayerNonce returns the nonce prefix every layer receives.
func (s *Schedule) LayerNonce() []byte {
	return s.nonce[:constants.LayerNonceSize]
}

// Nonce returns the full operation nonce.
func (s *Schedule) Nonce() []byte {
	return s.nonce
}

// Zeroize erases every derived key.
func (s *Schedule) Zeroize() {
	for i := range s.keys {
		crypto.Zeroize(s.keys[i])
	}
	crypto.Zeroize(s.nonce)
}
