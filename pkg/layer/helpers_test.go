package layer

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// seq returns n bytes counting up from start.
func seq(start byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// sizes used by the round-trip tests: single byte, both sides of a block
// boundary, and a few larger inputs.
var roundTripSizes = []int{1, 2, 15, 16, 17, 31, 32, 33, 63, 64, 65, 100, 255, 256, 1000, 4096}

func assertEqualBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		if len(got) > 64 || len(want) > 64 {
			t.Fatalf("bytes differ (len %d vs %d)", len(got), len(want))
		}
		t.Fatalf("got %x, want %x", got, want)
	}
}
