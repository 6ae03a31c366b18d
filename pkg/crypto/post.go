// Power-on self tests.
//
// POST runs once when the package is loaded and checks every primitive the
// layers depend on against published known answers: SHA-256 (FIPS 180-4),
// HMAC-SHA256 (RFC 4231), PBKDF2-HMAC-SHA256 (RFC 7914 vectors), AES-128-CBC
// and AES-256-CTR (SP 800-38A), SHAKE-256 and an ML-KEM-1024 round trip.
// Failures are recorded, not fatal; the health endpoint reports them.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
	"sync"
)

// POST KAT (Known Answer Test) values
var (
	postKATSHA256Expected = mustHex("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")

	// RFC 4231 test case 2
	postKATHMACKey      = []byte("Jefe")
	postKATHMACData     = []byte("what do ya want for nothing?")
	postKATHMACExpected = mustHex("5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843")

	postKATPBKDF2Expected = mustHex("120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b")

	// SP 800-38A F.2.1 and F.5.5, first block
	postKATBlockPlaintext = mustHex("6bc1bee22e409f96e93d7e117393172a")
	postKATCBCKey         = mustHex("2b7e151628aed2a6abf7158809cf4f3c")
	postKATCBCIV          = mustHex("000102030405060708090a0b0c0d0e0f")
	postKATCBCExpected    = mustHex("7649abac8119b246cee98e9b12e9197d")
	postKATCTRKey         = mustHex("603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	postKATCTRIV          = mustHex("f0f1f2f3f4f5f6f7f8f9fafbfcfdfeff")
	postKATCTRExpected    = mustHex("601ec313775789a5b7a7f504bbf3d228")

	postKATKDFInput    = mustHex("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	postKATKDFExpected = mustHex("f6cd6267523cd5717f431170c2501816d6b1439b1fe8f084cd028e892cff9b6a")

	postKATMLKEMSeed = mustHex(
		"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef" +
			"fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210")
)

// POSTDomain is the domain separator used in the SHAKE-256 self test
const POSTDomain = "POST-KAT-TEST"

// POSTResult contains the results of Power-On Self-Tests
type POSTResult struct {
	Passed       bool
	HashPassed   bool
	HMACPassed   bool
	PBKDF2Passed bool
	AESPassed    bool
	KDFPassed    bool
	MLKEMPassed  bool
	Errors       []string
}

var (
	postResult     *POSTResult
	postResultOnce sync.Once
)

// RunPOST executes the self tests and returns the cached result.
// Safe to call multiple times and from multiple goroutines.
func RunPOST() *POSTResult {
	postResultOnce.Do(func() {
		r := &POSTResult{Passed: true}
		check := func(name string, ok *bool, fn func() error) {
			if err := fn(); err != nil {
				r.Passed = false
				r.Errors = append(r.Errors, fmt.Sprintf("%s KAT failed: %v", name, err))
				return
			}
			*ok = true
		}

		check("SHA-256", &r.HashPassed, runSHA256KAT)
		check("HMAC-SHA256", &r.HMACPassed, runHMACKAT)
		check("PBKDF2", &r.PBKDF2Passed, runPBKDF2KAT)
		check("AES", &r.AESPassed, runAESKAT)
		check("SHAKE-256", &r.KDFPassed, runKDFKAT)
		check("ML-KEM", &r.MLKEMPassed, runMLKEMKAT)

		postResult = r
	})
	return postResult
}

// POSTRan reports whether POST has been executed
func POSTRan() bool {
	return postResult != nil
}

// POSTPassed reports whether POST has run and every test passed
func POSTPassed() bool {
	return postResult != nil && postResult.Passed
}

func runSHA256KAT() error {
	if got := SHA256Concat([]byte("a"), []byte("bc")); !bytes.Equal(got, postKATSHA256Expected) {
		return fmt.Errorf("digest mismatch: got %x", got)
	}
	return nil
}

func runHMACKAT() error {
	got := HMACSHA256(postKATHMACKey, postKATHMACData)
	if !bytes.Equal(got, postKATHMACExpected) {
		return fmt.Errorf("mac mismatch: got %x", got)
	}
	if !VerifyHMACSHA256(postKATHMACKey, got[:16], postKATHMACData) {
		return fmt.Errorf("truncated verify rejected a valid tag")
	}
	return nil
}

func runPBKDF2KAT() error {
	got, err := PBKDF2SHA256([]byte("password"), []byte("salt"), 1, 32)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, postKATPBKDF2Expected) {
		return fmt.Errorf("derived key mismatch: got %x", got)
	}
	return nil
}

func runAESKAT() error {
	block, err := aes.NewCipher(postKATCBCKey)
	if err != nil {
		return fmt.Errorf("NewCipher failed: %w", err)
	}
	out := make([]byte, len(postKATBlockPlaintext))
	cipher.NewCBCEncrypter(block, postKATCBCIV).CryptBlocks(out, postKATBlockPlaintext)
	if !bytes.Equal(out, postKATCBCExpected) {
		return fmt.Errorf("CBC encrypt mismatch: got %x", out)
	}
	cipher.NewCBCDecrypter(block, postKATCBCIV).CryptBlocks(out, out)
	if !bytes.Equal(out, postKATBlockPlaintext) {
		return fmt.Errorf("CBC decrypt mismatch: got %x", out)
	}

	block, err = aes.NewCipher(postKATCTRKey)
	if err != nil {
		return fmt.Errorf("NewCipher failed: %w", err)
	}
	cipher.NewCTR(block, postKATCTRIV).XORKeyStream(out, postKATBlockPlaintext)
	if !bytes.Equal(out, postKATCTRExpected) {
		return fmt.Errorf("CTR mismatch: got %x", out)
	}
	return nil
}

func runKDFKAT() error {
	output, err := DeriveKey(POSTDomain, postKATKDFInput, 32)
	if err != nil {
		return fmt.Errorf("DeriveKey failed: %w", err)
	}
	if !bytes.Equal(output, postKATKDFExpected) {
		return fmt.Errorf("KDF output mismatch: got %x, want %x", output, postKATKDFExpected)
	}
	return nil
}

// runMLKEMKAT checks encapsulation against decapsulation for a seeded key pair.
// Encapsulation is randomized, so a fixed ciphertext cannot be compared.
func runMLKEMKAT() error {
	kp, err := NewMLKEMKeyPairFromSeed(postKATMLKEMSeed)
	if err != nil {
		return fmt.Errorf("NewMLKEMKeyPairFromSeed failed: %w", err)
	}
	if n := len(kp.PublicKeyBytes()); n != 1568 {
		return fmt.Errorf("public key size mismatch: got %d, want 1568", n)
	}

	ciphertext, ss1, err := MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return fmt.Errorf("MLKEMEncapsulate failed: %w", err)
	}
	ss2, err := MLKEMDecapsulate(kp.DecapsulationKey, ciphertext)
	if err != nil {
		return fmt.Errorf("MLKEMDecapsulate failed: %w", err)
	}
	if !bytes.Equal(ss1, ss2) {
		return fmt.Errorf("shared secret mismatch after decapsulation")
	}
	return nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("crypto: bad KAT constant: " + err.Error())
	}
	return b
}

func init() {
	RunPOST()
}
