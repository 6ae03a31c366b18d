// Package layer implements the seven independently keyed transformation
// stages of the engine.
//
// Every stage is a stateless value: all tables, keystreams and permutations
// are derived inside a call and discarded when it returns, so one instance
// may be shared by concurrent callers. Stages differ in what they need to
// reverse themselves, which is expressed by the capability interfaces below
// rather than by the stage's position in the pipeline:
//
//	Layer                 every stage: Encrypt(data, key, nonce)
//	NeedsSharedNonce      Decrypt(data, key, nonce)   stages 1, 3, 5, 6
//	SelfContainedFraming  Decrypt(data, key)          stages 2, 4, 7
//	AssociatedDataBinder  EncryptWithAD/DecryptWithAD stage 7
//
// Integers inside stage framings are little-endian unless noted otherwise.
package layer

import (
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// Layer is a single reversible stage.
type Layer interface {
	// ID returns the stage's position in encryption order.
	ID() constants.LayerID

	// Name returns a short human-readable name.
	Name() string

	// Encrypt transforms data under key and the per-layer nonce.
	Encrypt(data, key, nonce []byte) ([]byte, error)
}

// NeedsSharedNonce is implemented by stages that need the operation nonce
// again to reverse themselves.
type NeedsSharedNonce interface {
	Layer
	Decrypt(data, key, nonce []byte) ([]byte, error)
}

// SelfContainedFraming is implemented by stages whose framing carries all
// per-call material needed for reversal.
type SelfContainedFraming interface {
	Layer
	Decrypt(data, key []byte) ([]byte, error)
}

// AssociatedDataBinder is implemented by stages that can authenticate bytes
// they do not carry, such as the system header in front of the packet.
type AssociatedDataBinder interface {
	EncryptWithAD(data, key, nonce, ad []byte) ([]byte, error)
	DecryptWithAD(data, key, ad []byte) ([]byte, error)
}

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Stages returns one instance of every stage for the given parameters, in
// encryption order.
func Stages(p Params) ([]Layer, error) {
	perm, err := NewBlockPermutation(p.MaxRounds)
	if err != nil {
		return nil, err
	}
	noise, err := NewNoiseEmbedder(p.MaxNoiseRatio)
	if err != nil {
		return nil, err
	}
	tag, err := NewIntegrityTag(p.TagSize, p.Clock)
	if err != nil {
		return nil, err
	}
	return []Layer{
		NewSubstitution(),
		NewAuthenticatedCore(p.Clock, p.TokenTTL),
		NewStreamCipher(),
		NewChaosStream(),
		perm,
		noise,
		tag,
	}, nil
}

// Params carries the profile-dependent settings of the stages.
type Params struct {
	MaxRounds     int           // upper bound of permutation rounds
	MaxNoiseRatio float64       // upper bound of the noise ratio
	TagSize       int           // integrity tag length, 16 or 32
	TokenTTL      time.Duration // zero disables token expiry
	Clock         Clock
}

// DefaultParams returns the strongest settings of every stage.
func DefaultParams() Params {
	return Params{
		MaxRounds:     constants.MaxPermutationRounds,
		MaxNoiseRatio: constants.MaxNoiseRatio,
		TagSize:       constants.FullTagSize,
	}
}

func op(id constants.LayerID, action string) string {
	return "layer." + id.String() + "." + action
}

// checkEncrypt validates the common encrypt preconditions.
func checkEncrypt(id constants.LayerID, data, key, nonce []byte) error {
	name := op(id, "encrypt")
	if len(key) < constants.MinLayerKeySize {
		return qerrors.NewValidationError(name, "key", qerrors.ErrInvalidKeySize)
	}
	if len(nonce) < constants.LayerNonceSize {
		return qerrors.NewValidationError(name, "nonce", qerrors.ErrInvalidNonceSize)
	}
	if len(data) == 0 {
		return qerrors.NewValidationError(name, "data", qerrors.ErrEmptyInput)
	}
	return nil
}

// checkDecrypt validates the common decrypt preconditions. A nil nonce is
// skipped for stages that do not take one.
func checkDecrypt(id constants.LayerID, data, key, nonce []byte, needNonce bool) error {
	name := op(id, "decrypt")
	if len(key) < constants.MinLayerKeySize {
		return qerrors.NewValidationError(name, "key", qerrors.ErrInvalidKeySize)
	}
	if needNonce && len(nonce) < constants.LayerNonceSize {
		return qerrors.NewValidationError(name, "nonce", qerrors.ErrInvalidNonceSize)
	}
	if len(data) == 0 {
		return qerrors.NewValidationError(name, "data", qerrors.ErrEmptyInput)
	}
	return nil
}

func formatErr(id constants.LayerID, err error) error {
	return qerrors.NewFormatError(op(id, "decrypt"), err)
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
