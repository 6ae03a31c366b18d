package keyagree_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	return b
}

func TestFromParticipants(t *testing.T) {
	want := mustHex(t, "d09d9e350a0b7c40ab6437fd0bb2047826c2c6bc675f69f9a9221e44edbd5b9b"+
		"03e5881ddf163c8ec2c734f16cc2ce8e2eda51140b86792126e445a520bc32cc")

	ab, err := keyagree.FromParticipants("alice", "bob")
	if err != nil {
		t.Fatalf("FromParticipants failed: %v", err)
	}
	if !bytes.Equal(ab, want) {
		t.Errorf("key = %x\nwant  %x", ab, want)
	}

	ba, err := keyagree.FromParticipants("bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ab, ba) {
		t.Error("participant order changed the key")
	}

	other, err := keyagree.FromParticipants("alice", "carol")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(ab, other) {
		t.Error("different participants produced the same key")
	}
}

func TestFromPassword(t *testing.T) {
	want := mustHex(t, "1532514f1a654ade8a51c2583041625b617dfb7d9373c20a9218cb4ba2a205af"+
		"a52c3be7d6613b1c088cd0ba4907707ee800e17b0fad745fdac0d58303ec8ad6")

	got, err := keyagree.FromPassword([]byte("correct horse"))
	if err != nil {
		t.Fatalf("FromPassword failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("key = %x\nwant  %x", got, want)
	}
}

func TestFromSharedSecret(t *testing.T) {
	secret := make([]byte, 32)
	for i := range secret {
		secret[i] = byte(i)
	}

	tests := []struct {
		info string
		want string
	}{
		{"", "3cef6483954d9e0f3526df21e5cc262e88c5c103583e06bdc4cb081726084ce4" +
			"26db4765cc25880b63cedcd73ab653bd6b551094bdb1d9db4226e77444cc7a1c"},
		{"chat-42", "62ebe2b5e29474d8ea240743ccd260f20133713695b1e7a7cfbd3cd7c4e59cba" +
			"e6f0f88979aeeab02115eb5c57bff53edba497dff70e9d02d7465902df59714b"},
	}
	for _, tt := range tests {
		got, err := keyagree.FromSharedSecret(secret, []byte(tt.info))
		if err != nil {
			t.Fatalf("FromSharedSecret(%q) failed: %v", tt.info, err)
		}
		if hex.EncodeToString(got) != tt.want {
			t.Errorf("info %q: key = %x", tt.info, got)
		}
	}
}

func TestSuppliersRejectEmptyInput(t *testing.T) {
	tests := []struct {
		name string
		fn   func() ([]byte, error)
	}{
		{"participant a", func() ([]byte, error) { return keyagree.FromParticipants("", "bob") }},
		{"participant b", func() ([]byte, error) { return keyagree.FromParticipants("alice", "") }},
		{"password", func() ([]byte, error) { return keyagree.FromPassword(nil) }},
		{"shared secret", func() ([]byte, error) { return keyagree.FromSharedSecret(nil, []byte("x")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := tt.fn()
			if !qerrors.IsValidation(err) || !qerrors.Is(err, qerrors.ErrEmptyInput) {
				t.Errorf("error = %v, want ValidationError(ErrEmptyInput)", err)
			}
			if key != nil {
				t.Error("key returned alongside error")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	zero := make([]byte, constants.MasterKeySize)
	if got := keyagree.Fingerprint(zero); got != "c53b90b6334d55e4" {
		t.Errorf("Fingerprint = %s", got)
	}

	other := make([]byte, constants.MasterKeySize)
	other[63] = 1
	if keyagree.Fingerprint(other) == keyagree.Fingerprint(zero) {
		t.Error("fingerprints collide")
	}
	if len(keyagree.Fingerprint(nil)) != constants.DigestPrefixChars {
		t.Error("fingerprint length")
	}
}
