package layer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

func newPermutation(t *testing.T, maxRounds int) *BlockPermutation {
	t.Helper()
	p, err := NewBlockPermutation(maxRounds)
	if err != nil {
		t.Fatalf("NewBlockPermutation(%d) failed: %v", maxRounds, err)
	}
	return p
}

func TestBlockPermutationKnownAnswer(t *testing.T) {
	p := newPermutation(t, 16)
	key, nonce := seq(0, 32), seq(0, 16)

	ct, err := p.Encrypt(seq(0, 50), key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	// origLen=50, permLen=2+15*4*2, rounds=15, first round [2 1 3 0]
	assertEqualBytes(t, ct[:16], mustHex(t, "320000007a000f000200010003000000"))
	if len(ct) != 192 {
		t.Errorf("length = %d, want 192", len(ct))
	}
	sum := sha256.Sum256(ct)
	if got := hex.EncodeToString(sum[:]); got != "c7040e02d7d681c49370580396af2298ed859f004d79a71e5871b3932ebc8e2c" {
		t.Errorf("digest = %s", got)
	}

	// 101 blocks exercises the material wrap-around.
	ct, err = p.Encrypt(make([]byte, 1600), key, nonce)
	if err != nil {
		t.Fatal(err)
	}
	sum = sha256.Sum256(ct)
	if got := hex.EncodeToString(sum[:]); got != "c4389ee91e6d3129949c10a8a710e02b8cb949e24c208e31b0ec646b0e32b1ec" {
		t.Errorf("101-block digest = %s", got)
	}
}

func TestBlockPermutationRounds(t *testing.T) {
	key, nonce := seq(0, 32), seq(0, 16)
	tests := []struct{ max, want int }{{16, 15}, {8, 5}, {4, 3}}
	for _, tt := range tests {
		if got := newPermutation(t, tt.max).Rounds(key, nonce); got != tt.want {
			t.Errorf("Rounds(max %d) = %d, want %d", tt.max, got, tt.want)
		}
	}

	for i := 0; i < 50; i++ {
		r := newPermutation(t, 8).Rounds(crypto.MustSecureRandomBytes(32), crypto.MustSecureRandomBytes(16))
		if r < 3 || r > 8 {
			t.Fatalf("rounds %d outside [3, 8]", r)
		}
	}

	for _, bad := range []int{0, 2, 17} {
		if _, err := NewBlockPermutation(bad); !qerrors.IsValidation(err) {
			t.Errorf("NewBlockPermutation(%d) error = %v", bad, err)
		}
	}
}

func TestBlockPermutationRoundTrip(t *testing.T) {
	for _, max := range []int{4, 8, 16} {
		p := newPermutation(t, max)
		key := crypto.MustSecureRandomBytes(32)
		nonce := crypto.MustSecureRandomBytes(16)
		for _, n := range roundTripSizes {
			data := crypto.MustSecureRandomBytes(n)
			ct, err := p.Encrypt(data, key, nonce)
			if err != nil {
				t.Fatalf("Encrypt(%d) failed: %v", n, err)
			}
			pt, err := p.Decrypt(ct, key, nonce)
			if err != nil {
				t.Fatalf("Decrypt(%d) failed: %v", n, err)
			}
			assertEqualBytes(t, pt, data)
		}
	}
}

// TestBlockPermutationSingleBlock checks that one block is left in place.
func TestBlockPermutationSingleBlock(t *testing.T) {
	p := newPermutation(t, 16)
	data := []byte("fifteen bytes!!")
	ct, err := p.Encrypt(data, seq(0, 32), seq(0, 16))
	if err != nil {
		t.Fatal(err)
	}
	body := ct[len(ct)-16:]
	if !bytes.Equal(body[:15], data) || body[15] != 1 {
		t.Errorf("single block moved or mispadded: %x", body)
	}
}

func TestBlockPermutationTooLarge(t *testing.T) {
	p := newPermutation(t, 16)
	// 15 rounds × 2185 blocks × 2 > 65535
	_, err := p.Encrypt(make([]byte, 2184*16), seq(0, 32), seq(0, 16))
	if !qerrors.Is(err, qerrors.ErrInputTooLarge) || !qerrors.IsValidation(err) {
		t.Errorf("error = %v, want ValidationError(ErrInputTooLarge)", err)
	}
}

func TestBlockPermutationMalformed(t *testing.T) {
	p := newPermutation(t, 16)
	key, nonce := seq(0, 32), seq(0, 16)
	valid, err := p.Encrypt(seq(0, 50), key, nonce)
	if err != nil {
		t.Fatal(err)
	}

	mutate := func(f func(b []byte) []byte) []byte { return f(bytes.Clone(valid)) }
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", valid[:5], qerrors.ErrTruncated},
		{"perm overrun", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 0xFFFF); return b }), qerrors.ErrTruncated},
		{"ragged blocks", valid[:len(valid)-1], qerrors.ErrLengthMismatch},
		{"rounds too low", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[6:], 2); return b }), qerrors.ErrInvalidRounds},
		{"rounds too high", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[6:], 17); return b }), qerrors.ErrInvalidRounds},
		{"duplicate index", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[8:], 1); return b }), qerrors.ErrInvalidPermutation},
		{"index out of range", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[8:], 9); return b }), qerrors.ErrInvalidPermutation},
		{"origLen too large", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b, 64); return b }), qerrors.ErrLengthMismatch},
		{"origLen too small", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b, 40); return b }), qerrors.ErrLengthMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Decrypt(tt.data, key, nonce)
			if !qerrors.IsFormat(err) || !qerrors.Is(err, tt.want) {
				t.Errorf("error = %v, want FormatError(%v)", err, tt.want)
			}
		})
	}
}

func TestPermutationQuality(t *testing.T) {
	p := newPermutation(t, 16)
	r, err := p.PermutationQuality(16, seq(0, 32), seq(0, 16), 200)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r.AverageMovement-5.285) > 1e-9 || r.MaxMovement != 15 {
		t.Errorf("report = %+v", r)
	}
	if !r.Pass() {
		t.Errorf("movement %.3f not within 30%% of %.3f", r.AverageMovement, r.ExpectedMovement)
	}
	if _, err := p.PermutationQuality(1, seq(0, 32), seq(0, 16), 1); !qerrors.IsValidation(err) {
		t.Errorf("single block: error = %v", err)
	}
}
