// Package errors defines the error taxonomy of the seven-layer engine.
//
// Four kinds of failure are distinguished: ValidationError for bad caller
// input, FormatError for malformed framing, IntegrityError for failed
// authentication and ProfileMismatch for packets written by an unsupported
// engine version. Messages never include key material or plaintext.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller input
var (
	// ErrEmptyInput indicates an empty plaintext or ciphertext
	ErrEmptyInput = errors.New("sevenlayer: empty input")

	// ErrInvalidKeySize indicates that a key has an incorrect size
	ErrInvalidKeySize = errors.New("sevenlayer: invalid key size")

	// ErrInvalidNonceSize indicates that a nonce has an incorrect size
	ErrInvalidNonceSize = errors.New("sevenlayer: invalid nonce size")

	// ErrInputTooLarge indicates an input whose framing cannot be represented
	ErrInputTooLarge = errors.New("sevenlayer: input too large for framing")

	// ErrInvalidParameter indicates an out-of-range configuration value
	ErrInvalidParameter = errors.New("sevenlayer: invalid parameter")
)

// Sentinel errors for framing
var (
	// ErrTruncated indicates data ended before a declared field
	ErrTruncated = errors.New("format: truncated data")

	// ErrBadMagic indicates the packet does not start with the engine magic
	ErrBadMagic = errors.New("format: magic header mismatch")

	// ErrLengthMismatch indicates a length prefix disagrees with the data
	ErrLengthMismatch = errors.New("format: length mismatch")

	// ErrInvalidRounds indicates an out-of-range permutation round count
	ErrInvalidRounds = errors.New("format: invalid round count")

	// ErrInvalidPermutation indicates recorded indices are not a permutation
	ErrInvalidPermutation = errors.New("format: invalid permutation")

	// ErrInvalidIV indicates an IV of the wrong length
	ErrInvalidIV = errors.New("format: invalid IV length")

	// ErrTagSizeMismatch indicates the packet tag size differs from the profile
	ErrTagSizeMismatch = errors.New("format: tag size mismatch")

	// ErrUnknownProfile indicates a profile name the engine does not know
	ErrUnknownProfile = errors.New("format: unknown profile")

	// ErrInvalidEncoding indicates a malformed base64 or padding block
	ErrInvalidEncoding = errors.New("format: invalid encoding")
)

// Sentinel errors for authentication
var (
	// ErrAuthenticationFailed indicates a tag or HMAC verification failure
	ErrAuthenticationFailed = errors.New("integrity: authentication failed")

	// ErrTokenExpired indicates a token older than the enforced TTL
	ErrTokenExpired = errors.New("integrity: token expired")

	// ErrTokenFromFuture indicates a token stamped beyond the allowed clock skew
	ErrTokenFromFuture = errors.New("integrity: token timestamp in the future")
)

// Sentinel errors for version handling
var (
	// ErrUnsupportedVersion indicates a packet written by another engine version
	ErrUnsupportedVersion = errors.New("profile: unsupported version")
)

// Sentinel errors for key agreement and storage
var (
	// ErrInvalidPublicKey indicates that a public key is invalid
	ErrInvalidPublicKey = errors.New("keyagree: invalid public key")

	// ErrInvalidPrivateKey indicates that a private key is invalid
	ErrInvalidPrivateKey = errors.New("keyagree: invalid private key")

	// ErrInvalidCiphertext indicates a malformed KEM ciphertext
	ErrInvalidCiphertext = errors.New("keyagree: invalid ciphertext")

	// ErrTooManyShardsLost indicates an envelope cannot be reassembled
	ErrTooManyShardsLost = errors.New("envelope: too many shards lost")
)

// ValidationError reports undersized or empty keys, nonces or plaintext.
type ValidationError struct {
	Op    string // Operation that rejected the input
	Field string // Offending parameter
	Err   error  // Underlying error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError
func NewValidationError(op, field string, err error) *ValidationError {
	return &ValidationError{Op: op, Field: field, Err: err}
}

// FormatError reports malformed framing.
type FormatError struct {
	Op  string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// NewFormatError creates a new FormatError
func NewFormatError(op string, err error) *FormatError {
	return &FormatError{Op: op, Err: err}
}

// IntegrityError reports a failed tag or token verification.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError creates a new IntegrityError
func NewIntegrityError(op string, err error) *IntegrityError {
	return &IntegrityError{Op: op, Err: err}
}

// ProfileMismatch reports a packet version this engine cannot read.
type ProfileMismatch struct {
	Got  string // Version found in the packet
	Want string // Version this engine writes
}

func (e *ProfileMismatch) Error() string {
	return fmt.Sprintf("%v: packet %q, engine %q", ErrUnsupportedVersion, e.Got, e.Want)
}

func (e *ProfileMismatch) Unwrap() error {
	return ErrUnsupportedVersion
}

// CryptoError wraps a primitive failure with additional context
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsFormat reports whether err is or wraps a FormatError.
func IsFormat(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsIntegrity reports whether err is or wraps an IntegrityError.
func IsIntegrity(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsProfileMismatch reports whether err is or wraps a ProfileMismatch.
func IsProfileMismatch(err error) bool {
	var target *ProfileMismatch
	return errors.As(err, &target)
}

// Kind returns a short label for the error class, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsValidation(err):
		return "validation"
	case IsFormat(err):
		return "format"
	case IsIntegrity(err):
		return "integrity"
	case IsProfileMismatch(err):
		return "profile"
	default:
		return "internal"
	}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
