// Package constants defines sizes, framing markers and context-separation labels
// for the seven-layer encryption engine.
//
// Every label below is part of the wire contract: changing one changes the
// derived keys and breaks decryption of existing packets.
package constants

import "strconv"

// Packet identification
const (
	// Magic prefixes every packet produced by the engine.
	Magic = "7LAYER"

	// Version is the engine version written into the system header.
	Version = "1.0"

	// VersionFieldSize is the fixed width of the version field (NUL padded).
	VersionFieldSize = 3

	// EnvelopeVersion identifies the storage envelope document format.
	EnvelopeVersion = "7LAYER_v1.0"
)

// Root secret and per-operation nonce
const (
	// MasterKeySize is the exact size of a master key in bytes.
	MasterKeySize = 64

	// NonceSize is the exact size of the per-operation nonce in bytes.
	NonceSize = 32

	// LayerNonceSize is the nonce prefix handed to each layer.
	LayerNonceSize = 16

	// LayerKeySize is the size of every derived layer key.
	LayerKeySize = 32

	// MinLayerKeySize is the smallest key a layer accepts.
	MinLayerKeySize = 32

	// MasterKeyContextSize is how much of the master key is bound into each
	// layer context string.
	MasterKeyContextSize = 16

	// TimestampSize is the width of every embedded timestamp.
	TimestampSize = 8
)

// System header layout: magic(6) || version(3) || profileLen(1) || profile || ts(8) || nonce(32)
const (
	// MinSystemHeaderSize is the header size for an empty profile name.
	MinSystemHeaderSize = len(Magic) + VersionFieldSize + 1 + TimestampSize + NonceSize

	// MaxProfileNameSize is bounded by the one-byte length prefix.
	MaxProfileNameSize = 255
)

// LayerID identifies one of the seven stages.
type LayerID int

// Layer identifiers in encryption order.
const (
	LayerSubstitution LayerID = iota + 1
	LayerAuthenticatedCore
	LayerStreamCipher
	LayerChaosStream
	LayerBlockPermutation
	LayerNoiseEmbedder
	LayerIntegrityTag
)

// LayerCount is the number of stages in the pipeline.
const LayerCount = 7

// String returns a short human-readable layer name.
func (id LayerID) String() string {
	switch id {
	case LayerSubstitution:
		return "substitution"
	case LayerAuthenticatedCore:
		return "authenticated-core"
	case LayerStreamCipher:
		return "stream-cipher"
	case LayerChaosStream:
		return "chaos-stream"
	case LayerBlockPermutation:
		return "block-permutation"
	case LayerNoiseEmbedder:
		return "noise-embedder"
	case LayerIntegrityTag:
		return "integrity-tag"
	default:
		return "unknown"
	}
}

// IsValid reports whether id names one of the seven layers.
func (id LayerID) IsValid() bool {
	return id >= LayerSubstitution && id <= LayerIntegrityTag
}

// KeyContextLabel returns the key-schedule label for a layer, e.g. "7LAYER_KEY_L3".
func (id LayerID) KeyContextLabel() string {
	return KeySchedulePrefix + strconv.Itoa(int(id))
}

// Key schedule
const (
	// KeySchedulePrefix starts every layer's key context.
	KeySchedulePrefix = "7LAYER_KEY_L"
)

// Layer 1: substitution mask
const (
	TagSubstitution = "BYTE_MASK_LAYER1"

	// SubstitutionTableSize is the number of entries in the byte table.
	SubstitutionTableSize = 256

	// SubstitutionRandomBytes drives the 255 swap decisions (4 bytes each).
	SubstitutionRandomBytes = SubstitutionTableSize * 4
)

// Layer 2: authenticated core
const (
	TagAuthenticatedCore  = "LAYER2_FERNET"
	AuthenticatedSaltTag  = "SALT"
	AuthenticatedIVTag    = "LAYER2_IV"
	AuthenticatedSaltSize = 16

	// AuthenticatedKDFIterations is the PBKDF2 iteration count for the core key.
	AuthenticatedKDFIterations = 100000

	// AuthenticatedKeySize splits into a 16-byte signing and 16-byte encryption key.
	AuthenticatedKeySize = 32

	// TokenVersion is the first byte of every token.
	TokenVersion byte = 0x80

	// TokenIVSize is the CBC IV width.
	TokenIVSize = 16

	// TokenMACSize is the HMAC-SHA256 width inside a token.
	TokenMACSize = 32

	// TokenMaxClockSkewSeconds bounds how far in the future a token may be stamped.
	TokenMaxClockSkewSeconds = 60
)

// Layer 3: stream cipher
const (
	TagStreamCipher = "LAYER3_AESCTR"
	StreamKeyTag    = "AES256_CTR_KEY"
	StreamIVTag     = "CTR_IV_GENERATION"

	// StreamIVSize is the counter block width (12-byte nonce + 4-byte counter seed).
	StreamIVSize = 16

	// StreamHeaderSize is ivLen(1) + iv(16) + ctLen(4).
	StreamHeaderSize = 1 + StreamIVSize + 4

	// StreamChunkSize is the default streaming chunk.
	StreamChunkSize = 8192
)

// Layer 4: chaos stream
const (
	TagChaosStream = "LAYER4_CHAOS"
	ChaosSeedTag   = "LOGISTIC_MAP_SEED"

	// ChaosParameter is the logistic map r, the largest double below 4.
	ChaosParameter = 3.9999999999999996

	// ChaosReseedInterval is the iteration count between state rehashes.
	ChaosReseedInterval = 1000000

	// ChaosSeedInfoSize is the nonce prefix stored in the framing.
	ChaosSeedInfoSize = 16

	// ChaosMinFrameSize is seedLen(1) + dataLen(4) + one byte.
	ChaosMinFrameSize = 6

	// ChaosChiSquareCritical is the 95% critical value for 255 degrees of freedom.
	ChaosChiSquareCritical = 293.25
)

// Layer 5: block permutation
const (
	TagBlockPermutation = "LAYER5_SWAPPER"
	PermutationTag      = "BLOCK_PERMUTATION"

	PermutationBlockSize = 16
	MinPermutationRounds = 3
	MaxPermutationRounds = 16

	// PermutationExtensionBlocks is the number of HMAC blocks appended to the
	// parameter hash to form the swap material.
	PermutationExtensionBlocks = 8

	// PermutationHeaderSize is origLen(4) + permLen(2).
	PermutationHeaderSize = 6
)

// Layer 6: noise embedder
const (
	TagNoiseEmbedder = "LAYER6_NOISE"
	NoisePatternTag  = "NOISE_PATTERN_GEN"
	NoiseSeedTag     = "PATTERN_SEED"
	NoiseDataTag     = "NOISE_DATA_GEN"

	MinNoiseRatio = 0.1
	MaxNoiseRatio = 0.5

	// NoiseBlockSize is the minimum chunk length; chunks are at most twice this.
	NoiseBlockSize = 8

	// NoisePatternBlockSize controls how many candidate positions are hashed.
	NoisePatternBlockSize = 64

	// NoiseMapHeaderSize is origLen(4) + count(2); each entry is pos(4) + len(2).
	NoiseMapHeaderSize = 6
	NoiseMapEntrySize  = 6
)

// Layer 7: integrity tag
const (
	TagIntegrity       = "LAYER7_INTEGRITY"
	IntegrityKeyTag    = "HMAC_INTEGRITY_KEY"
	IntegrityFinalTag  = "FINAL_ROUND"
	IntegrityVersion   = 0x01
	FullTagSize        = 32
	ShortTagSize       = 16
	MinIntegrityHeader = 11
)

// Security profile names
const (
	ProfileMaximum     = "MAXIMUM"
	ProfileBalanced    = "BALANCED"
	ProfilePerformance = "PERFORMANCE"
)

// Key agreement
const (
	ParticipantLabel      = "CRYPT_TALK_7LAYER"
	ParticipantSalt       = "CryptTalk7LayerSalt2024"
	PasswordSalt          = "7layer_salt"
	KeyAgreeIterations    = 100000
	DomainSeparatorHybrid = "7LAYER-HYBRID-v1-MasterKey"
	DomainSeparatorShared = "7LAYER-SHARED-v1-MasterKey"
)

// Hybrid KEM sizes (X25519 RFC 7748, ML-KEM-1024 FIPS 203)
const (
	X25519PublicKeySize    = 32
	X25519PrivateKeySize   = 32
	X25519SharedSecretSize = 32

	MLKEMPublicKeySize    = 1568
	MLKEMCiphertextSize   = 1568
	MLKEMSharedSecretSize = 32

	HybridPublicKeySize  = X25519PublicKeySize + MLKEMPublicKeySize
	HybridCiphertextSize = X25519PublicKeySize + MLKEMCiphertextSize

	TranscriptHashSize = 32
)

// Instrumentation
const (
	// PreviewHexChars caps the hex preview handed to instrumentation hooks.
	PreviewHexChars = 64

	// DigestPrefixChars is the SHA-256 hex prefix reported per buffer.
	DigestPrefixChars = 16
)
