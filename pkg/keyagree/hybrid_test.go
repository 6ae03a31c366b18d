package keyagree_test

import (
	"bytes"
	"testing"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
)

func TestHybridRoundTrip(t *testing.T) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	ct, sent, err := keyagree.Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatalf("Encapsulate failed: %v", err)
	}
	if len(sent) != constants.MasterKeySize {
		t.Fatalf("master key size = %d, want %d", len(sent), constants.MasterKeySize)
	}

	got, err := keyagree.Decapsulate(ct, kp)
	if err != nil {
		t.Fatalf("Decapsulate failed: %v", err)
	}
	if !bytes.Equal(sent, got) {
		t.Error("master keys differ")
	}

	ct2, sent2, err := keyagree.Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(sent, sent2) || bytes.Equal(ct.Bytes(), ct2.Bytes()) {
		t.Error("encapsulation is not randomized")
	}
}

func TestHybridWireFormat(t *testing.T) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	pkBytes := kp.PublicKey().Bytes()
	if len(pkBytes) != constants.HybridPublicKeySize {
		t.Fatalf("public key size = %d", len(pkBytes))
	}
	pk, err := keyagree.ParsePublicKey(pkBytes)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if !bytes.Equal(pk.Bytes(), pkBytes) {
		t.Error("public key round trip mismatch")
	}

	ct, sent, err := keyagree.Encapsulate(pk)
	if err != nil {
		t.Fatal(err)
	}
	ctBytes := ct.Bytes()
	if len(ctBytes) != constants.HybridCiphertextSize {
		t.Fatalf("ciphertext size = %d", len(ctBytes))
	}
	parsed, err := keyagree.ParseCiphertext(ctBytes)
	if err != nil {
		t.Fatalf("ParseCiphertext failed: %v", err)
	}

	ctBytes[0] ^= 0xFF
	got, err := keyagree.Decapsulate(parsed, kp)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, sent) {
		t.Error("parsed ciphertext aliases its input or decodes wrongly")
	}
}

func TestHybridTamperedCiphertext(t *testing.T) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	ct, sent, err := keyagree.Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	raw := ct.Bytes()
	raw[len(raw)-1] ^= 0x01
	tampered, err := keyagree.ParseCiphertext(raw)
	if err != nil {
		t.Fatal(err)
	}

	// Implicit rejection: no error, but a different key.
	got, err := keyagree.Decapsulate(tampered, kp)
	if err != nil {
		t.Fatalf("Decapsulate failed: %v", err)
	}
	if bytes.Equal(got, sent) {
		t.Error("tampered ciphertext produced the original key")
	}
}

func TestHybridWrongRecipient(t *testing.T) {
	alice, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	bob, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	ct, sent, err := keyagree.Encapsulate(alice.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	got, err := keyagree.Decapsulate(ct, bob)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(got, sent) {
		t.Error("wrong recipient recovered the key")
	}
}

func TestHybridInvalidInputs(t *testing.T) {
	if _, _, err := keyagree.Encapsulate(nil); !qerrors.Is(err, qerrors.ErrInvalidPublicKey) {
		t.Errorf("Encapsulate(nil) error = %v", err)
	}
	if _, err := keyagree.ParsePublicKey(make([]byte, 10)); !qerrors.Is(err, qerrors.ErrInvalidPublicKey) {
		t.Errorf("ParsePublicKey error = %v", err)
	}
	if _, err := keyagree.ParseCiphertext(make([]byte, 10)); !qerrors.Is(err, qerrors.ErrInvalidCiphertext) {
		t.Errorf("ParseCiphertext error = %v", err)
	}

	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	ct, _, err := keyagree.Encapsulate(kp.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := keyagree.Decapsulate(nil, kp); !qerrors.Is(err, qerrors.ErrInvalidCiphertext) {
		t.Errorf("Decapsulate(nil ct) error = %v", err)
	}

	kp.Zeroize()
	if _, err := keyagree.Decapsulate(ct, kp); !qerrors.Is(err, qerrors.ErrInvalidPrivateKey) {
		t.Errorf("Decapsulate after Zeroize error = %v", err)
	}
}

func BenchmarkHybridEncapsulate(b *testing.B) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		b.Fatal(err)
	}
	pk := kp.PublicKey()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := keyagree.Encapsulate(pk); err != nil {
			b.Fatal(err)
		}
	}
}
