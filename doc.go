// Package sevenlayer provides a seven-layer symmetric encryption engine with
// selectable security profiles and quantum-resistant key agreement.
//
// Every message passes through seven independent stages, each keyed from a
// 64-byte master key and a fresh per-message nonce:
//
//  1. Byte-frequency mask (keyed substitution table)
//  2. Authenticated core (AES-128-CBC + HMAC-SHA256 token)
//  3. AES-256-CTR stream
//  4. Logistic-map chaos stream
//  5. Block permutation
//  6. Noise embedding
//  7. Integrity tag (HMAC-SHA256 over the system header and stage 6 output)
//
// The packet begins with a plaintext system header naming the profile, so a
// receiver decrypts any profile without prior configuration.
//
// # Quick Start
//
//	import "github.com/sara-star-quant/sevenlayer/pkg/engine"
//
//	e, _ := engine.New("BALANCED")
//	key, _ := engine.GenerateMasterKey()
//	packet, _ := e.Encrypt(ctx, []byte("Hello!"), key, nil)
//	plaintext, _ := e.Decrypt(ctx, packet, key)
//
// Master keys can also be agreed between two parties over hybrid
// X25519 + ML-KEM-1024:
//
//	import "github.com/sara-star-quant/sevenlayer/pkg/keyagree"
//
//	kp, _ := keyagree.GenerateKeyPair()
//	ct, senderKey, _ := keyagree.Encapsulate(kp.PublicKey())
//	receiverKey, _ := keyagree.Decapsulate(ct, kp)
//
// # Package Structure
//
//   - pkg/engine: Profiles, system header, Encrypt/Decrypt and packet inspection
//   - pkg/layer: The seven stages and their diagnostics
//   - pkg/keysched: Per-layer key derivation from the master key
//   - pkg/keyagree: Hybrid KEM, participant, password and shared-secret keys
//   - pkg/envelope: JSON storage documents, LZ4 compression, Reed-Solomon shards
//   - pkg/crypto: Primitives (ML-KEM, X25519, PBKDF2, HKDF) and self-tests
//   - pkg/metrics: Logging, metrics, tracing and the health/metrics server
//   - pkg/instrument: Per-layer visualization hooks
//   - cmd/sevenlayer: Command-line tool
//   - internal/constants: Wire format and security parameters
//   - internal/errors: Error kinds shared by all packages
//
// # Security Properties
//
//   - Layer keys are independent: each is derived with its own domain tag
//   - The system header is authenticated by stage 7 and bound into stage 2
//   - No plaintext is returned from a failed decryption
//   - Stage 2 optionally enforces a per-profile token lifetime
//
// # Testing
//
//	go test ./...                                     # All tests
//	go test -fuzz=FuzzEngineDecrypt ./test/fuzz/      # Fuzz tests
//	go test -run TestKAT ./pkg/...                    # Known Answer Tests
//	go test -bench=. ./test/benchmark                 # Benchmarks
//
// # Performance
//
// Stage 2 runs PBKDF2-HMAC-SHA256 with 100,000 iterations on each call, which
// dominates the cost of small messages. Use the bench command to measure:
//
//	sevenlayer bench -size 4KB -n 20
package sevenlayer
