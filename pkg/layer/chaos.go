package layer

import (
	"encoding/binary"
	"math"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// ChaosStream is stage 4: XOR with a keystream sampled from the logistic
// map x' = r·x·(1-x) at r just below 4.
//
//	[seedLen:1 = 16][seedInfo:16][dataLen:4][data XOR keystream]
//
// seedInfo is the per-layer nonce, which is all Decrypt needs besides the
// key.
//
// The map is evaluated in IEEE-754 double precision with no fused
// multiply-add, so keystreams are bit-identical across platforms.
type ChaosStream struct{}

// NewChaosStream returns stage 4.
func NewChaosStream() *ChaosStream { return &ChaosStream{} }

func (*ChaosStream) ID() constants.LayerID { return constants.LayerChaosStream }
func (*ChaosStream) Name() string          { return "Logistic Chaos" }

const (
	mantissaMask = 1<<53 - 1
	twoTo53      = 1 << 53
	chaosFloor   = 1e-15
)

// ChaosSeed derives the initial condition in (0, 1) for key and nonce.
func ChaosSeed(key, nonce []byte) float64 {
	h := crypto.HMACSHA256(key, []byte(constants.TagChaosStream), nonce, []byte(constants.ChaosSeedTag))
	x := float64(binary.LittleEndian.Uint64(h)&mantissaMask) / twoTo53
	switch x {
	case 0:
		x = 1.0 / twoTo53
	case 1:
		x = 1 - 1.0/twoTo53
	}
	return x
}

// Keystream returns n bytes of the logistic map started at x0. The state
// is rehashed every million iterations to stay off short cycles.
func Keystream(x0 float64, n int) []byte {
	out := make([]byte, n)
	x := x0
	var buf [16]byte
	for i := 0; i < n; i++ {
		if i > 0 && i%constants.ChaosReseedInterval == 0 {
			binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(x))
			binary.LittleEndian.PutUint64(buf[8:], uint64(i))
			h := crypto.SHA256Concat(buf[:])
			x = float64(binary.LittleEndian.Uint64(h)&mantissaMask) / twoTo53
			switch x {
			case 0:
				x = chaosFloor
			case 1:
				x = 1 - chaosFloor
			}
		}

		x = constants.ChaosParameter * x * (1 - x)
		if x <= 0 {
			x = chaosFloor
		} else if x >= 1 {
			x = 1 - chaosFloor
		}

		v := int(float64(x*255) + 0.5)
		if v > 255 {
			v = 255
		} else if v < 0 {
			v = 0
		}
		out[i] = byte(v)
	}
	return out
}

// Encrypt XORs data with the keystream for key and nonce.
func (c *ChaosStream) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(c.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, qerrors.NewValidationError(op(c.ID(), "encrypt"), "data", qerrors.ErrInputTooLarge)
	}

	seedInfo := nonce[:constants.ChaosSeedInfoSize]
	ks := Keystream(ChaosSeed(key, seedInfo), len(data))

	out := make([]byte, 1+len(seedInfo)+4+len(data))
	out[0] = byte(len(seedInfo))
	copy(out[1:], seedInfo)
	binary.LittleEndian.PutUint32(out[1+len(seedInfo):], uint32(len(data)))
	crypto.XORBytes(out[1+len(seedInfo)+4:], data, ks)
	crypto.Zeroize(ks)
	return out, nil
}

// Decrypt rebuilds the keystream from the seed info in the framing.
func (c *ChaosStream) Decrypt(data, key []byte) ([]byte, error) {
	if err := checkDecrypt(c.ID(), data, key, nil, false); err != nil {
		return nil, err
	}
	if len(data) < constants.ChaosMinFrameSize {
		return nil, formatErr(c.ID(), qerrors.ErrTruncated)
	}
	seedLen := int(data[0])
	start := 1 + seedLen + 4
	if len(data) < start {
		return nil, formatErr(c.ID(), qerrors.ErrTruncated)
	}
	seedInfo := data[1 : 1+seedLen]
	n := int(binary.LittleEndian.Uint32(data[1+seedLen:]))
	if n != len(data)-start {
		return nil, formatErr(c.ID(), qerrors.ErrLengthMismatch)
	}
	if n == 0 {
		return nil, formatErr(c.ID(), qerrors.ErrTruncated)
	}

	ks := Keystream(ChaosSeed(key, seedInfo), n)
	out := make([]byte, n)
	crypto.XORBytes(out, data[start:], ks)
	crypto.Zeroize(ks)
	return out, nil
}
