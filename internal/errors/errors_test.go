package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestValidationError tests ValidationError formatting and unwrapping.
func TestValidationError(t *testing.T) {
	err := NewValidationError("layer.substitution.encrypt", "key", ErrInvalidKeySize)

	if !strings.Contains(err.Error(), "layer.substitution.encrypt") {
		t.Errorf("Error() missing op: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "key") {
		t.Errorf("Error() missing field: %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidKeySize) {
		t.Error("ValidationError should unwrap to ErrInvalidKeySize")
	}

	noField := NewValidationError("engine.encrypt", "", ErrEmptyInput)
	if got := noField.Error(); got != "engine.encrypt: sevenlayer: empty input" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFormatAndIntegrityErrors(t *testing.T) {
	ferr := NewFormatError("header.decode", ErrBadMagic)
	if !errors.Is(ferr, ErrBadMagic) {
		t.Error("FormatError should unwrap to ErrBadMagic")
	}
	if !strings.Contains(ferr.Error(), "magic") {
		t.Errorf("Error() = %q", ferr.Error())
	}

	ierr := NewIntegrityError("layer.integrity.decrypt", ErrAuthenticationFailed)
	if !errors.Is(ierr, ErrAuthenticationFailed) {
		t.Error("IntegrityError should unwrap to ErrAuthenticationFailed")
	}
}

func TestProfileMismatch(t *testing.T) {
	err := &ProfileMismatch{Got: "2.0", Want: "1.0"}

	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Error("ProfileMismatch should match ErrUnsupportedVersion")
	}
	msg := err.Error()
	if !strings.Contains(msg, "2.0") || !strings.Contains(msg, "1.0") {
		t.Errorf("Error() missing versions: %q", msg)
	}
}

// TestClassifiers tests the Is* helpers and Kind through wrapping.
func TestClassifiers(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"validation", NewValidationError("op", "nonce", ErrInvalidNonceSize), "validation"},
		{"format", NewFormatError("op", ErrTruncated), "format"},
		{"integrity", NewIntegrityError("op", ErrTokenExpired), "integrity"},
		{"profile", &ProfileMismatch{Got: "0.9", Want: "1.0"}, "profile"},
		{"crypto", NewCryptoError("op", errors.New("boom")), "internal"},
		{"nil", nil, "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := tt.err
			if wrapped != nil {
				wrapped = fmt.Errorf("outer: %w", tt.err)
			}
			if got := Kind(wrapped); got != tt.kind {
				t.Errorf("Kind() = %q, want %q", got, tt.kind)
			}
			if IsValidation(wrapped) != (tt.kind == "validation") {
				t.Error("IsValidation mismatch")
			}
			if IsFormat(wrapped) != (tt.kind == "format") {
				t.Error("IsFormat mismatch")
			}
			if IsIntegrity(wrapped) != (tt.kind == "integrity") {
				t.Error("IsIntegrity mismatch")
			}
			if IsProfileMismatch(wrapped) != (tt.kind == "profile") {
				t.Error("IsProfileMismatch mismatch")
			}
		})
	}
}

// TestCryptoError tests the CryptoError type.
func TestCryptoError(t *testing.T) {
	baseErr := errors.New("base")
	cerr := NewCryptoError("aes-ctr", baseErr)

	if got := cerr.Error(); got != "aes-ctr: base" {
		t.Errorf("Error() = %q, want %q", got, "aes-ctr: base")
	}
	if !errors.Is(cerr, baseErr) {
		t.Error("CryptoError should unwrap to base error")
	}

	var target *CryptoError
	if !As(fmt.Errorf("wrap: %w", cerr), &target) {
		t.Fatal("As() should find CryptoError")
	}
	if target.Op != "aes-ctr" {
		t.Errorf("As() extracted Op = %q", target.Op)
	}
}

// TestSentinelErrors tests all sentinel error definitions.
func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrEmptyInput, ErrInvalidKeySize, ErrInvalidNonceSize, ErrInputTooLarge,
		ErrInvalidParameter, ErrTruncated, ErrBadMagic, ErrLengthMismatch,
		ErrInvalidRounds, ErrInvalidPermutation, ErrInvalidIV, ErrTagSizeMismatch,
		ErrUnknownProfile, ErrInvalidEncoding, ErrAuthenticationFailed,
		ErrTokenExpired, ErrTokenFromFuture, ErrUnsupportedVersion,
		ErrInvalidPublicKey, ErrInvalidPrivateKey, ErrInvalidCiphertext,
		ErrTooManyShardsLost,
	}

	seen := make(map[string]bool)
	for _, err := range sentinels {
		if err == nil || err.Error() == "" {
			t.Fatalf("sentinel is nil or empty: %v", err)
		}
		if seen[err.Error()] {
			t.Errorf("duplicate sentinel message %q", err.Error())
		}
		seen[err.Error()] = true
	}
}

// TestNilErrorHandling tests handling of nil errors.
func TestNilErrorHandling(t *testing.T) {
	if Is(nil, ErrInvalidKeySize) {
		t.Error("Is(nil, target) should return false")
	}
	var target *CryptoError
	if As(nil, &target) {
		t.Error("As(nil, target) should return false")
	}
	if IsIntegrity(nil) {
		t.Error("IsIntegrity(nil) should return false")
	}
}
