package layer

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"testing"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

func newNoise(t *testing.T, maxRatio float64) *NoiseEmbedder {
	t.Helper()
	e, err := NewNoiseEmbedder(maxRatio)
	if err != nil {
		t.Fatalf("NewNoiseEmbedder(%v) failed: %v", maxRatio, err)
	}
	return e
}

func TestNoiseKnownAnswer(t *testing.T) {
	key, nonce := seq(0, 32), seq(0, 16)
	repeated := bytes.Repeat(seq(0, 256), 8)

	tests := []struct {
		name     string
		maxRatio float64
		data     []byte
		length   int
		digest   string
	}{
		{"100 bytes", 0.5, seq(0, 100), 137, "3cd9a1029e4cb751adc53cda4ef6405a2f66f9b1f3d0ae3e693d7d5ff281ef3a"},
		{"single byte", 0.5, []byte{0x2a}, 23, "a172ed0a6051b2d1c0d54c0d5dc11ea85114d1541e7d34b5add5f85ad372cdae"},
		{"2048 bytes", 0.5, repeated, 2579, "df0c95714a5769620348f7d0943aea9fe67468db24e0b979d7e5da315c83eb2b"},
		{"balanced ratio", 0.3, seq(0, 100), 133, "7ab6098d486ed8c81063d668531fd611491d728d8508f98fb407ee27bd7b04e1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newNoise(t, tt.maxRatio).Encrypt(tt.data, key, nonce)
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != tt.length {
				t.Errorf("length = %d, want %d", len(out), tt.length)
			}
			sum := sha256.Sum256(out)
			if got := hex.EncodeToString(sum[:]); got != tt.digest {
				t.Errorf("digest = %s", got)
			}
		})
	}

	if r := newNoise(t, 0.5).Ratio(key, nonce); r != 0.17065238144031084 {
		t.Errorf("ratio = %v", r)
	}
	if r := newNoise(t, 0.3).Ratio(key, nonce); r != 0.13532619072015542 {
		t.Errorf("ratio(0.3) = %v", r)
	}
}

func TestNoiseMapLayout(t *testing.T) {
	out, err := newNoise(t, 0.5).Encrypt(seq(0, 100), seq(0, 32), seq(0, 16))
	if err != nil {
		t.Fatal(err)
	}
	m, noisy, err := ParseNoise(out)
	if err != nil {
		t.Fatal(err)
	}
	want := []Insertion{{5, 12}, {6, 5}}
	if m.OriginalLength != 100 || len(m.Chunks) != 2 || m.Chunks[0] != want[0] || m.Chunks[1] != want[1] {
		t.Fatalf("map = %+v", m)
	}
	if len(noisy) != 117 || m.TotalNoise() != 17 {
		t.Errorf("noisy length = %d, noise = %d", len(noisy), m.TotalNoise())
	}
	// The input survives around the chunks.
	assertEqualBytes(t, noisy[:5], seq(0, 5))
	assertEqualBytes(t, noisy[5+12:5+12+1], []byte{5})
	assertEqualBytes(t, noisy[5+12+1+5:], seq(6, 94))
}

func TestNoiseSingleByte(t *testing.T) {
	out, err := newNoise(t, 0.5).Encrypt([]byte{0x2a}, seq(0, 32), seq(0, 16))
	if err != nil {
		t.Fatal(err)
	}
	m, noisy, err := ParseNoise(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Chunks) != 1 || m.Chunks[0] != (Insertion{0, 8}) {
		t.Errorf("chunks = %+v, want [{0 8}]", m.Chunks)
	}
	if noisy[8] != 0x2a {
		t.Errorf("input byte not after the noise: %x", noisy)
	}
}

func TestNoiseRoundTrip(t *testing.T) {
	for _, max := range []float64{0.1, 0.3, 0.5} {
		e := newNoise(t, max)
		key := crypto.MustSecureRandomBytes(32)
		nonce := crypto.MustSecureRandomBytes(16)
		for _, n := range append(roundTripSizes, 20000) {
			data := crypto.MustSecureRandomBytes(n)
			ct, err := e.Encrypt(data, key, nonce)
			if err != nil {
				t.Fatalf("Encrypt(%d) failed: %v", n, err)
			}
			if len(ct) < n+8 {
				t.Errorf("Encrypt(%d) added fewer than 8 noise bytes", n)
			}
			pt, err := e.Decrypt(ct, key, nonce)
			if err != nil {
				t.Fatalf("Decrypt(%d, max %v) failed: %v", n, max, err)
			}
			assertEqualBytes(t, pt, data)
		}
	}
}

func TestNoiseRatioBounds(t *testing.T) {
	e := newNoise(t, 0.3)
	for i := 0; i < 200; i++ {
		r := e.Ratio(crypto.MustSecureRandomBytes(32), crypto.MustSecureRandomBytes(16))
		if r < 0.1 || r > 0.3 {
			t.Fatalf("ratio %v outside [0.1, 0.3]", r)
		}
	}
	for _, bad := range []float64{0, 0.09, 0.51, 1} {
		if _, err := NewNoiseEmbedder(bad); !qerrors.IsValidation(err) {
			t.Errorf("NewNoiseEmbedder(%v) error = %v", bad, err)
		}
	}
}

func TestNoiseStats(t *testing.T) {
	e := newNoise(t, 0.5)
	out, err := e.Encrypt(bytes.Repeat(seq(0, 256), 8), seq(0, 32), seq(0, 16))
	if err != nil {
		t.Fatal(err)
	}
	st, err := e.Stats(out)
	if err != nil {
		t.Fatal(err)
	}
	if st.OriginalLength != 2048 || st.TotalNoise != 349 || st.Insertions != 29 {
		t.Errorf("stats = %+v", st)
	}
	if st.NoisyLength != 2048+349 || st.Overhead != 2+6+29*6 {
		t.Errorf("lengths = %+v", st)
	}
}

func TestNoiseMalformed(t *testing.T) {
	e := newNoise(t, 0.5)
	key, nonce := seq(0, 32), seq(0, 16)
	valid, err := e.Encrypt(seq(0, 100), key, nonce)
	if err != nil {
		t.Fatal(err)
	}

	mutate := func(f func(b []byte)) []byte {
		b := bytes.Clone(valid)
		f(b)
		return b
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"one byte", valid[:1]},
		{"map overrun", mutate(func(b []byte) { binary.LittleEndian.PutUint16(b, 0xFFFF) })},
		{"map too short", mutate(func(b []byte) { binary.LittleEndian.PutUint16(b, 4) })},
		{"count mismatch", mutate(func(b []byte) { binary.LittleEndian.PutUint16(b[6:], 3) })},
		{"wrong original length", mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[2:], 99) })},
		{"original length past payload", mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[2:], 0xFFFFFFFF) })},
		{"chunk past end", mutate(func(b []byte) { binary.LittleEndian.PutUint16(b[18:], 0xFFFF) })},
		{"unsorted positions", mutate(func(b []byte) { binary.LittleEndian.PutUint32(b[8:], 50) })},
		{"truncated noisy data", valid[:len(valid)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Decrypt(tt.data, key, nonce); !qerrors.IsFormat(err) {
				t.Errorf("error = %v, want FormatError", err)
			}
		})
	}

	if _, err := e.Decrypt(valid, key, nonce[:8]); !qerrors.IsValidation(err) {
		t.Errorf("short nonce: error = %v", err)
	}
}
