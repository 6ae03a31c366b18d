package envelope

import (
	"bytes"
	"errors"

	"github.com/klauspost/reedsolomon"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// ShardSet is a packet split into Reed-Solomon data and parity shards. Any
// DataShards of the shards are enough to rebuild the packet. A lost shard is
// represented by a nil entry.
//
// Parity only recovers missing shards. A shard that arrives corrupted is not
// detected here; the rebuilt packet then fails authentication in the engine.
type ShardSet struct {
	DataShards   int      `json:"data_shards"`
	ParityShards int      `json:"parity_shards"`
	Size         int      `json:"size"`
	Shards       [][]byte `json:"shards"`
}

func newEncoder(op string, dataShards, parityShards int) (reedsolomon.Encoder, error) {
	if dataShards <= 0 {
		return nil, qerrors.NewValidationError(op, "dataShards", qerrors.ErrInvalidParameter)
	}
	if parityShards <= 0 {
		return nil, qerrors.NewValidationError(op, "parityShards", qerrors.ErrInvalidParameter)
	}
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, qerrors.NewValidationError(op, "shards", err)
	}
	return enc, nil
}

// Shard splits packet into dataShards data shards plus parityShards parity
// shards. The shards do not alias packet.
func Shard(packet []byte, dataShards, parityShards int) (*ShardSet, error) {
	if len(packet) == 0 {
		return nil, qerrors.NewValidationError("envelope.shard", "packet", qerrors.ErrEmptyInput)
	}
	enc, err := newEncoder("envelope.shard", dataShards, parityShards)
	if err != nil {
		return nil, err
	}

	shards, err := enc.Split(bytes.Clone(packet))
	if err != nil {
		return nil, qerrors.NewCryptoError("envelope.shard", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, qerrors.NewCryptoError("envelope.shard", err)
	}

	return &ShardSet{
		DataShards:   dataShards,
		ParityShards: parityShards,
		Size:         len(packet),
		Shards:       shards,
	}, nil
}

// Lost reports how many shards are missing.
func (s *ShardSet) Lost() int {
	n := 0
	for _, sh := range s.Shards {
		if len(sh) == 0 {
			n++
		}
	}
	return n
}

// Reassemble rebuilds the packet from the surviving shards. The caller's
// shard slice is not modified.
func Reassemble(s *ShardSet) ([]byte, error) {
	if s == nil {
		return nil, qerrors.NewValidationError("envelope.reassemble", "shards", qerrors.ErrEmptyInput)
	}
	enc, err := newEncoder("envelope.reassemble", s.DataShards, s.ParityShards)
	if err != nil {
		return nil, err
	}
	if len(s.Shards) != s.DataShards+s.ParityShards {
		return nil, qerrors.NewFormatError("envelope.reassemble", qerrors.ErrLengthMismatch)
	}
	if s.Size <= 0 {
		return nil, qerrors.NewFormatError("envelope.reassemble", qerrors.ErrLengthMismatch)
	}

	shards := make([][]byte, len(s.Shards))
	for i, sh := range s.Shards {
		if len(sh) > 0 {
			shards[i] = sh
		}
	}

	if err := enc.ReconstructData(shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return nil, qerrors.NewFormatError("envelope.reassemble", qerrors.ErrTooManyShardsLost)
		}
		return nil, qerrors.NewFormatError("envelope.reassemble", err)
	}

	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, s.Size); err != nil {
		return nil, qerrors.NewFormatError("envelope.reassemble", err)
	}
	return buf.Bytes(), nil
}
