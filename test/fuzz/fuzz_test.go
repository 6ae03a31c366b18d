// Package fuzz provides fuzz tests for the parsers that see untrusted input.
//
// Run fuzz tests with:
//
//	go test -fuzz=FuzzDecodeHeader -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzEngineDecrypt -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzParsePublicKey -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzEnvelopeParse -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzNoiseDecrypt -fuzztime=30s ./test/fuzz/
//
// Run all fuzz tests sequentially:
//
//	go test -fuzz=Fuzz -fuzztime=10s ./test/fuzz/
package fuzz

import (
	"bytes"
	"context"
	"testing"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
	"github.com/sara-star-quant/sevenlayer/pkg/engine"
	"github.com/sara-star-quant/sevenlayer/pkg/envelope"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
	"github.com/sara-star-quant/sevenlayer/pkg/layer"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

var (
	fuzzKey   = bytes.Repeat([]byte{0x42}, constants.MasterKeySize)
	fuzzNonce = bytes.Repeat([]byte{0x24}, constants.NonceSize)
)

func fuzzEngine(f *testing.F) *engine.Engine {
	e, err := engine.New(constants.ProfilePerformance,
		engine.WithLogger(metrics.NullLogger()),
		engine.WithTracer(metrics.NoOpTracer{}),
		engine.WithAutoReconfigure(false))
	if err != nil {
		f.Fatal(err)
	}
	return e
}

func samplePacket(f *testing.F, profile string) []byte {
	e := fuzzEngine(f)
	packet, err := e.EncryptWithProfile(context.Background(), []byte("fuzz seed message"), fuzzKey, fuzzNonce, profile)
	if err != nil {
		f.Fatal(err)
	}
	return packet
}

// FuzzDecodeHeader fuzzes the system header parser.
func FuzzDecodeHeader(f *testing.F) {
	f.Add(samplePacket(f, constants.ProfileMaximum))
	f.Add(samplePacket(f, constants.ProfilePerformance)[:engine.HeaderSize(constants.ProfilePerformance)])
	f.Add([]byte{})
	f.Add([]byte(constants.Magic))
	f.Add(append([]byte(constants.Magic), '1', '.', '0', 0xff))

	f.Fuzz(func(t *testing.T, data []byte) {
		h, n, err := engine.DecodeHeader(data)
		if err != nil {
			if h != nil {
				t.Error("header returned with error")
			}
			return
		}
		if n > len(data) {
			t.Fatalf("header length %d exceeds input %d", n, len(data))
		}
		if n != h.Size() {
			t.Errorf("header length %d, Size() = %d", n, h.Size())
		}
		if len(h.Nonce) != constants.NonceSize {
			t.Errorf("nonce length %d", len(h.Nonce))
		}

		// A parsed header must survive re-encoding.
		enc, err := engine.EncodeHeader(h)
		if err != nil {
			return
		}
		again, m, err := engine.DecodeHeader(enc)
		if err != nil || m != len(enc) || again.Profile != h.Profile || !bytes.Equal(again.Nonce, h.Nonce) {
			t.Errorf("re-encoded header does not round trip: %v", err)
		}
	})
}

// FuzzEngineDecrypt feeds arbitrary packets to the engine. Nothing may
// panic, no plaintext may come back with an error, and only the packets
// the engine itself produced may authenticate.
func FuzzEngineDecrypt(f *testing.F) {
	e := fuzzEngine(f)
	genuine := make(map[string]bool)
	for _, profile := range []string{constants.ProfilePerformance, constants.ProfileBalanced} {
		packet := samplePacket(f, profile)
		genuine[string(packet)] = true
		f.Add(packet)
		f.Add(packet[:len(packet)-1])
	}
	f.Add([]byte{})
	f.Add([]byte("7LAYER1.0"))

	ctx := context.Background()
	f.Fuzz(func(t *testing.T, data []byte) {
		pt, err := e.Decrypt(ctx, data, fuzzKey)
		if err != nil && pt != nil {
			t.Fatal("plaintext returned with error")
		}
		if err == nil && !genuine[string(data)] {
			t.Fatal("modified packet authenticated")
		}
	})
}

// FuzzParsePublicKey fuzzes the hybrid public key parser.
func FuzzParsePublicKey(f *testing.F) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		f.Fatal(err)
	}
	f.Add(kp.PublicKey().Bytes())
	f.Add([]byte{})
	f.Add(make([]byte, constants.HybridPublicKeySize-1))
	f.Add(make([]byte, constants.HybridPublicKeySize))
	f.Add(make([]byte, constants.HybridPublicKeySize+1))

	f.Fuzz(func(t *testing.T, data []byte) {
		pk, err := keyagree.ParsePublicKey(data)
		if err != nil {
			return
		}
		if !bytes.Equal(pk.Bytes(), data) {
			t.Error("public key does not re-encode to its input")
		}
	})
}

// FuzzParseCiphertext fuzzes the hybrid ciphertext parser and
// decapsulation. ML-KEM rejects implicitly, so any well-sized input yields
// some key.
func FuzzParseCiphertext(f *testing.F) {
	kp, err := keyagree.GenerateKeyPair()
	if err != nil {
		f.Fatal(err)
	}
	ct, _, err := keyagree.Encapsulate(kp.PublicKey())
	if err != nil {
		f.Fatal(err)
	}
	f.Add(ct.Bytes())
	f.Add([]byte{})
	f.Add(make([]byte, constants.HybridCiphertextSize-1))
	f.Add(make([]byte, constants.HybridCiphertextSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		parsed, err := keyagree.ParseCiphertext(data)
		if err != nil {
			return
		}
		if !bytes.Equal(parsed.Bytes(), data) {
			t.Error("ciphertext does not re-encode to its input")
		}
		mk, err := keyagree.Decapsulate(parsed, kp)
		if err == nil && len(mk) != constants.MasterKeySize {
			t.Errorf("master key length %d", len(mk))
		}
	})
}

// FuzzEnvelopeParse fuzzes the JSON document parser and the payload checks
// that run before any decryption.
func FuzzEnvelopeParse(f *testing.F) {
	doc, err := envelope.Seal(context.Background(), fuzzEngine(f), []byte("sealed"), fuzzKey)
	if err != nil {
		f.Fatal(err)
	}
	data, err := doc.Marshal()
	if err != nil {
		f.Fatal(err)
	}
	f.Add(data)
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"version":"7LAYER_v1.0","payload":"!!"}`))
	f.Add([]byte(`[`))

	f.Fuzz(func(t *testing.T, data []byte) {
		d, err := envelope.Parse(data)
		if err != nil {
			return
		}
		packet, err := d.Packet()
		if err != nil {
			return
		}
		if len(packet) != d.EncryptedSize {
			t.Errorf("packet length %d, document says %d", len(packet), d.EncryptedSize)
		}
	})
}

// FuzzShardRoundTrip checks that any payload survives losing up to the
// parity count of shards.
func FuzzShardRoundTrip(f *testing.F) {
	f.Add([]byte("a"), uint8(4), uint8(2), uint8(0b000011))
	f.Add(bytes.Repeat([]byte{0xAB}, 1000), uint8(10), uint8(4), uint8(0b1010))
	f.Add([]byte("short"), uint8(1), uint8(1), uint8(1))

	f.Fuzz(func(t *testing.T, data []byte, d, p, lose uint8) {
		if len(data) == 0 {
			return
		}
		dataShards, parityShards := int(d%16)+1, int(p%8)+1
		if dataShards > len(data) {
			dataShards = len(data)
		}
		set, err := envelope.Shard(data, dataShards, parityShards)
		if err != nil {
			t.Fatalf("Shard(%d, %d): %v", dataShards, parityShards, err)
		}

		lost := 0
		for i := 0; i < len(set.Shards) && lost < parityShards; i++ {
			if lose&(1<<(i%8)) != 0 {
				set.Shards[i] = nil
				lost++
			}
		}

		got, err := envelope.Reassemble(set)
		if err != nil {
			t.Fatalf("Reassemble with %d lost: %v", lost, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatal("reassembled payload differs")
		}
	})
}

// FuzzDecompress fuzzes the LZ4 frame reader under a size limit.
func FuzzDecompress(f *testing.F) {
	frame, err := envelope.Compress(bytes.Repeat([]byte("compressible "), 64), envelope.CompressionDefault)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(frame, uint16(1024))
	f.Add([]byte{0x04, 0x22, 0x4d, 0x18}, uint16(10))
	f.Add([]byte{}, uint16(0))

	f.Fuzz(func(t *testing.T, data []byte, limit uint16) {
		out, err := envelope.Decompress(data, int(limit))
		if err == nil && len(out) > int(limit) {
			t.Fatalf("output %d exceeds limit %d", len(out), limit)
		}
	})
}

func layerKey() []byte {
	return crypto.MustSecureRandomBytes(constants.LayerKeySize)
}

// FuzzNoiseDecrypt fuzzes the stage 6 noise map parser.
func FuzzNoiseDecrypt(f *testing.F) {
	noise, err := layer.NewNoiseEmbedder(constants.MaxNoiseRatio)
	if err != nil {
		f.Fatal(err)
	}
	key, nonce := layerKey(), fuzzNonce[:constants.LayerNonceSize]
	valid, err := noise.Encrypt(bytes.Repeat([]byte("n"), 200), key, nonce)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add([]byte{0, 0})
	f.Add([]byte{6, 0, 0xff, 0xff, 0xff, 0xff, 0, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		out, err := noise.Decrypt(data, key, nonce)
		if err != nil {
			return
		}
		if len(out) >= len(data) {
			t.Errorf("decrypted %d bytes from a %d byte frame", len(out), len(data))
		}
	})
}

// FuzzPermutationDecrypt fuzzes the stage 5 permutation table parser.
func FuzzPermutationDecrypt(f *testing.F) {
	perm, err := layer.NewBlockPermutation(constants.MaxPermutationRounds)
	if err != nil {
		f.Fatal(err)
	}
	key, nonce := layerKey(), fuzzNonce[:constants.LayerNonceSize]
	valid, err := perm.Encrypt(bytes.Repeat([]byte("p"), 100), key, nonce)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add(make([]byte, constants.PermutationHeaderSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		out, err := perm.Decrypt(data, key, nonce)
		if err == nil && len(out) > len(data) {
			t.Errorf("decrypted %d bytes from a %d byte frame", len(out), len(data))
		}
	})
}

// FuzzFramingParsers covers the self-describing framings of stages 2, 3, 4
// and 7. None of them may panic.
func FuzzFramingParsers(f *testing.F) {
	tag, err := layer.NewIntegrityTag(constants.FullTagSize, nil)
	if err != nil {
		f.Fatal(err)
	}
	chaos := layer.NewChaosStream()
	key, nonce := layerKey(), fuzzNonce[:constants.LayerNonceSize]

	for _, l := range []interface {
		Encrypt(data, key, nonce []byte) ([]byte, error)
	}{tag, chaos, layer.NewStreamCipher()} {
		seed, err := l.Encrypt([]byte("framing seed"), key, nonce)
		if err != nil {
			f.Fatal(err)
		}
		f.Add(seed)
	}
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = tag.Decrypt(data, key)
		_, _ = tag.Metadata(data)
		_, _ = chaos.Decrypt(data, key)
		_, _ = layer.ParseStreamHeader(data)
		_, _ = layer.InspectToken(data)
	})
}
