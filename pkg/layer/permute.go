package layer

import (
	"encoding/binary"
	"fmt"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// BlockPermutation is stage 5: several keyed Fisher-Yates shuffles of
// 16-byte blocks. Every round's permutation is recorded in the framing so
// the shuffle can be undone without replaying the key material.
//
//	[origLen:4][permLen:2][permInfo][permuted blocks]
//	permInfo = rounds:2 || rounds × nBlocks × index:2
type BlockPermutation struct {
	maxRounds int
}

// NewBlockPermutation returns stage 5 drawing between 3 and maxRounds rounds.
func NewBlockPermutation(maxRounds int) (*BlockPermutation, error) {
	if maxRounds < constants.MinPermutationRounds || maxRounds > constants.MaxPermutationRounds {
		return nil, qerrors.NewValidationError("layer.block-permutation.new", "maxRounds", qerrors.ErrInvalidParameter)
	}
	return &BlockPermutation{maxRounds: maxRounds}, nil
}

func (*BlockPermutation) ID() constants.LayerID { return constants.LayerBlockPermutation }
func (*BlockPermutation) Name() string          { return "Block Permutation" }

// MaxRounds returns the upper bound of rounds this stage draws.
func (p *BlockPermutation) MaxRounds() int { return p.maxRounds }

// swapMaterial returns the round count and the 288 bytes driving the swaps.
func (p *BlockPermutation) swapMaterial(key, nonce []byte) (int, []byte) {
	ctx := concat([]byte(constants.TagBlockPermutation), nonce, []byte(constants.PermutationTag))
	h := crypto.HMACSHA256(key, ctx)
	rounds := int(binary.LittleEndian.Uint32(h)%uint32(p.maxRounds-constants.MinPermutationRounds+1)) +
		constants.MinPermutationRounds

	material := make([]byte, 0, len(h)*(1+constants.PermutationExtensionBlocks))
	material = append(material, h...)
	var ctr [4]byte
	for i := 0; i < constants.PermutationExtensionBlocks; i++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(i))
		material = append(material, crypto.HMACSHA256(key, ctx, ctr[:])...)
	}
	return rounds, material
}

// Rounds returns how many rounds key and nonce select.
func (p *BlockPermutation) Rounds(key, nonce []byte) int {
	r, m := p.swapMaterial(key, nonce)
	crypto.Zeroize(m)
	return r
}

// shuffle permutes blocks in place for one round and returns, for every
// position, the index the block there had before the round.
func shuffle(blocks [][]byte, material []byte, round int) []int {
	n := len(blocks)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if n <= 1 {
		return idx
	}
	off := (round * n * 4) % len(material)
	for i := n - 1; i > 0; i-- {
		if off+4 > len(material) {
			off = 0
		}
		j := int(binary.LittleEndian.Uint32(material[off:]) % uint32(i+1))
		off += 4
		blocks[i], blocks[j] = blocks[j], blocks[i]
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// Encrypt pads data to whole blocks and shuffles them.
func (p *BlockPermutation) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(p.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, qerrors.NewValidationError(op(p.ID(), "encrypt"), "data", qerrors.ErrInputTooLarge)
	}

	rounds, material := p.swapMaterial(key, nonce)
	defer crypto.Zeroize(material)

	padded := pkcs7Pad(data, constants.PermutationBlockSize)
	n := len(padded) / constants.PermutationBlockSize

	permLen := 2 + rounds*n*2
	if permLen > 0xFFFF {
		return nil, qerrors.NewValidationError(op(p.ID(), "encrypt"), "data",
			fmt.Errorf("%w: %d blocks need %d bytes of permutation info", qerrors.ErrInputTooLarge, n, permLen))
	}

	blocks := splitBlocks(padded)
	out := make([]byte, 0, constants.PermutationHeaderSize+permLen+len(padded))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = binary.LittleEndian.AppendUint16(out, uint16(permLen))
	out = binary.LittleEndian.AppendUint16(out, uint16(rounds))
	for r := 0; r < rounds; r++ {
		for _, i := range shuffle(blocks, material, r) {
			out = binary.LittleEndian.AppendUint16(out, uint16(i))
		}
	}
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out, nil
}

// Decrypt undoes the recorded rounds in reverse order. The key and nonce
// are validated but not otherwise needed.
func (p *BlockPermutation) Decrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkDecrypt(p.ID(), data, key, nonce, true); err != nil {
		return nil, err
	}
	if len(data) < constants.PermutationHeaderSize {
		return nil, formatErr(p.ID(), qerrors.ErrTruncated)
	}

	origLen := int(binary.LittleEndian.Uint32(data))
	permLen := int(binary.LittleEndian.Uint16(data[4:]))
	start := constants.PermutationHeaderSize + permLen
	if permLen < 2 || len(data) < start {
		return nil, formatErr(p.ID(), qerrors.ErrTruncated)
	}
	info, body := data[constants.PermutationHeaderSize:start], data[start:]

	if len(body) == 0 || len(body)%constants.PermutationBlockSize != 0 {
		return nil, formatErr(p.ID(), qerrors.ErrLengthMismatch)
	}
	n := len(body) / constants.PermutationBlockSize

	rounds := int(binary.LittleEndian.Uint16(info))
	if rounds < constants.MinPermutationRounds || rounds > constants.MaxPermutationRounds {
		return nil, formatErr(p.ID(), qerrors.ErrInvalidRounds)
	}
	if len(info) != 2+rounds*n*2 {
		return nil, formatErr(p.ID(), qerrors.ErrLengthMismatch)
	}
	if origLen >= len(body) || len(body)-origLen > constants.PermutationBlockSize {
		return nil, formatErr(p.ID(), qerrors.ErrLengthMismatch)
	}

	perms := make([][]int, rounds)
	off := 2
	for r := range perms {
		perm := make([]int, n)
		seen := make([]bool, n)
		for i := range perm {
			v := int(binary.LittleEndian.Uint16(info[off:]))
			off += 2
			if v >= n || seen[v] {
				return nil, formatErr(p.ID(), qerrors.ErrInvalidPermutation)
			}
			seen[v] = true
			perm[i] = v
		}
		perms[r] = perm
	}

	blocks := splitBlocks(body)
	tmp := make([][]byte, n)
	for r := rounds - 1; r >= 0; r-- {
		for pos, orig := range perms[r] {
			tmp[orig] = blocks[pos]
		}
		blocks, tmp = tmp, blocks
	}

	out := make([]byte, 0, len(body))
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out[:origLen], nil
}

func splitBlocks(data []byte) [][]byte {
	blocks := make([][]byte, 0, len(data)/constants.PermutationBlockSize)
	for i := 0; i < len(data); i += constants.PermutationBlockSize {
		blocks = append(blocks, data[i:i+constants.PermutationBlockSize])
	}
	return blocks
}

// PermutationReport summarizes how far blocks travel across encryptions.
type PermutationReport struct {
	Blocks           int
	Tests            int
	AverageMovement  float64
	ExpectedMovement float64 // n/3 for a uniform permutation
	MaxMovement      int
}

// Pass reports whether the average movement is within 30% of expectation.
func (r PermutationReport) Pass() bool {
	if r.ExpectedMovement == 0 {
		return false
	}
	d := r.AverageMovement - r.ExpectedMovement
	if d < 0 {
		d = -d
	}
	return d/r.ExpectedMovement < 0.3
}

// PermutationQuality shuffles nBlocks blocks under tests derived nonces and
// measures the displacement of every block.
func (p *BlockPermutation) PermutationQuality(nBlocks int, key, nonce []byte, tests int) (PermutationReport, error) {
	r := PermutationReport{Blocks: nBlocks, Tests: tests, ExpectedMovement: float64(nBlocks) / 3}
	if nBlocks < 2 || tests < 1 {
		return r, qerrors.NewValidationError(op(p.ID(), "quality"), "nBlocks", qerrors.ErrInvalidParameter)
	}

	var total, count int
	var ctr [4]byte
	for t := 0; t < tests; t++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(t))
		rounds, material := p.swapMaterial(key, concat(nonce, ctr[:]))

		// blocks[pos] holds the original index of the block now at pos.
		blocks := make([][]byte, nBlocks)
		for i := range blocks {
			blocks[i] = []byte{byte(i), byte(i >> 8)}
		}
		for round := 0; round < rounds; round++ {
			shuffle(blocks, material, round)
		}
		crypto.Zeroize(material)

		for pos, b := range blocks {
			orig := int(b[0]) | int(b[1])<<8
			d := pos - orig
			if d < 0 {
				d = -d
			}
			total += d
			count++
			if d > r.MaxMovement {
				r.MaxMovement = d
			}
		}
	}
	r.AverageMovement = float64(total) / float64(count)
	return r, nil
}
