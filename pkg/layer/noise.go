package layer

import (
	"encoding/binary"
	"slices"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// NoiseEmbedder is stage 6: keyed pseudorandom chunks are inserted at keyed
// positions to hide the exact length of the ciphertext.
//
//	[mapLen:2][map][noisy data]
//	map = origLen:4 || count:2 || count × (pos:4 || len:2)
//
// Positions refer to the input and are sorted; several chunks may share a
// position.
type NoiseEmbedder struct {
	maxRatio float64
}

// NewNoiseEmbedder returns stage 6 drawing a noise ratio between 0.1 and
// maxRatio.
func NewNoiseEmbedder(maxRatio float64) (*NoiseEmbedder, error) {
	if !(maxRatio >= constants.MinNoiseRatio && maxRatio <= constants.MaxNoiseRatio) {
		return nil, qerrors.NewValidationError("layer.noise-embedder.new", "maxRatio", qerrors.ErrInvalidParameter)
	}
	return &NoiseEmbedder{maxRatio: maxRatio}, nil
}

func (*NoiseEmbedder) ID() constants.LayerID { return constants.LayerNoiseEmbedder }
func (*NoiseEmbedder) Name() string          { return "Noise Embedding" }

// MaxRatio returns the upper bound of the noise ratio.
func (e *NoiseEmbedder) MaxRatio() float64 { return e.maxRatio }

// Insertion is one noise chunk of Len bytes inserted before input byte Pos.
type Insertion struct {
	Pos int
	Len int
}

// params returns the noise ratio and pattern seed for key and nonce.
func (e *NoiseEmbedder) params(key, nonce []byte) (float64, []byte) {
	ctx := concat([]byte(constants.TagNoiseEmbedder), nonce, []byte(constants.NoisePatternTag))
	h := crypto.HMACSHA256(key, ctx)

	frac := float64(binary.LittleEndian.Uint32(h)) / 0xFFFFFFFF
	ratio := float64(frac*(e.maxRatio-constants.MinNoiseRatio)) + constants.MinNoiseRatio

	seed := crypto.HMACSHA256(key, ctx, []byte(constants.NoiseSeedTag), h[4:8])
	return ratio, seed
}

// Ratio returns the noise ratio key and nonce select.
func (e *NoiseEmbedder) Ratio(key, nonce []byte) float64 {
	r, seed := e.params(key, nonce)
	crypto.Zeroize(seed)
	return r
}

// candidatePositions returns the sorted insertion candidates for n input bytes.
func candidatePositions(seed []byte, n int) []int {
	blocks := n/constants.NoisePatternBlockSize + 1
	positions := make([]int, 0, blocks*8)
	cur := seed
	var ctr [4]byte
	for i := 0; i < blocks; i++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(i))
		h := crypto.SHA256Concat(cur, ctr[:])
		for j := 0; j < len(h); j += 4 {
			positions = append(positions, int(binary.LittleEndian.Uint32(h[j:])%uint32(n)))
		}
		cur = h
	}
	slices.Sort(positions)
	return positions
}

// pattern lays out the noise chunks for n input bytes.
func pattern(n int, ratio float64, seed []byte) []Insertion {
	total := int(float64(n) * ratio)
	if total < constants.NoiseBlockSize {
		total = constants.NoiseBlockSize
	}

	var out []Insertion
	remaining, cur := total, 0
	for _, pos := range candidatePositions(seed, n) {
		if remaining <= 0 || cur >= n {
			break
		}
		maxChunk := min(remaining, 2*constants.NoiseBlockSize)
		minChunk := min(constants.NoiseBlockSize, remaining)

		var cs [4]byte
		k := copy(cs[:], seed[pos%len(seed):])
		copy(cs[k:], seed)
		size := int(binary.LittleEndian.Uint32(cs[:])%uint32(maxChunk-minChunk+1)) + minChunk

		out = append(out, Insertion{Pos: pos, Len: size})
		remaining -= size
		cur = pos + 1
	}
	if remaining > 0 && len(out) > 0 {
		out[len(out)-1].Len += remaining
	}
	return out
}

// noiseBytes returns total bytes of chained SHA-256 output.
func noiseBytes(seed []byte, total int) []byte {
	out := make([]byte, 0, total+32)
	cur := concat(seed, []byte(constants.NoiseDataTag))
	var ctr [4]byte
	for i := 0; len(out) < total; i++ {
		binary.LittleEndian.PutUint32(ctr[:], uint32(i))
		h := crypto.SHA256Concat(cur, ctr[:])
		out = append(out, h...)
		cur = h
	}
	return out[:total]
}

// Encrypt inserts the keyed noise pattern into data.
func (e *NoiseEmbedder) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(e.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	name := op(e.ID(), "encrypt")
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, qerrors.NewValidationError(name, "data", qerrors.ErrInputTooLarge)
	}

	ratio, seed := e.params(key, nonce)
	defer crypto.Zeroize(seed)
	chunks := pattern(len(data), ratio, seed)

	mapLen := constants.NoiseMapHeaderSize + len(chunks)*constants.NoiseMapEntrySize
	if mapLen > 0xFFFF || len(chunks) > 0xFFFF {
		return nil, qerrors.NewValidationError(name, "data", qerrors.ErrInputTooLarge)
	}
	total := 0
	for _, c := range chunks {
		if c.Len > 0xFFFF {
			return nil, qerrors.NewValidationError(name, "data", qerrors.ErrInputTooLarge)
		}
		total += c.Len
	}

	noise := noiseBytes(seed, total)
	out := make([]byte, 0, 2+mapLen+len(data)+total)
	out = binary.LittleEndian.AppendUint16(out, uint16(mapLen))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(chunks)))
	for _, c := range chunks {
		out = binary.LittleEndian.AppendUint32(out, uint32(c.Pos))
		out = binary.LittleEndian.AppendUint16(out, uint16(c.Len))
	}

	dataPos, noisePos := 0, 0
	for _, c := range chunks {
		out = append(out, data[dataPos:c.Pos]...)
		dataPos = c.Pos
		out = append(out, noise[noisePos:noisePos+c.Len]...)
		noisePos += c.Len
	}
	return append(out, data[dataPos:]...), nil
}

// NoiseMap is the parsed stage 6 map.
type NoiseMap struct {
	OriginalLength int
	Chunks         []Insertion
}

// TotalNoise returns the sum of all chunk lengths.
func (m *NoiseMap) TotalNoise() int {
	n := 0
	for _, c := range m.Chunks {
		n += c.Len
	}
	return n
}

// ParseNoise splits a stage 6 frame into its map and noisy data.
func ParseNoise(data []byte) (*NoiseMap, []byte, error) {
	id := constants.LayerNoiseEmbedder
	if len(data) < 2 {
		return nil, nil, formatErr(id, qerrors.ErrTruncated)
	}
	mapLen := int(binary.LittleEndian.Uint16(data))
	if mapLen < constants.NoiseMapHeaderSize || len(data) < 2+mapLen {
		return nil, nil, formatErr(id, qerrors.ErrTruncated)
	}
	raw, noisy := data[2:2+mapLen], data[2+mapLen:]

	m := &NoiseMap{OriginalLength: int(binary.LittleEndian.Uint32(raw))}
	count := int(binary.LittleEndian.Uint16(raw[4:]))
	if mapLen != constants.NoiseMapHeaderSize+count*constants.NoiseMapEntrySize {
		return nil, nil, formatErr(id, qerrors.ErrLengthMismatch)
	}
	m.Chunks = make([]Insertion, count)
	for i := range m.Chunks {
		off := constants.NoiseMapHeaderSize + i*constants.NoiseMapEntrySize
		m.Chunks[i] = Insertion{
			Pos: int(binary.LittleEndian.Uint32(raw[off:])),
			Len: int(binary.LittleEndian.Uint16(raw[off+4:])),
		}
	}
	return m, noisy, nil
}

// Decrypt strips the chunks recorded in the map. The key and nonce are
// validated but not otherwise needed.
func (e *NoiseEmbedder) Decrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkDecrypt(e.ID(), data, key, nonce, true); err != nil {
		return nil, err
	}
	m, noisy, err := ParseNoise(data)
	if err != nil {
		return nil, err
	}
	if m.OriginalLength > len(noisy) {
		return nil, formatErr(e.ID(), qerrors.ErrLengthMismatch)
	}

	out := make([]byte, 0, m.OriginalLength)
	dataPos, shift, lastPos := 0, 0, 0
	for _, c := range m.Chunks {
		if c.Pos < lastPos {
			return nil, formatErr(e.ID(), qerrors.ErrLengthMismatch)
		}
		lastPos = c.Pos
		start := c.Pos + shift
		end := start + c.Len
		if start < dataPos || end > len(noisy) {
			return nil, formatErr(e.ID(), qerrors.ErrLengthMismatch)
		}
		out = append(out, noisy[dataPos:start]...)
		dataPos = end
		shift += c.Len
	}
	out = append(out, noisy[dataPos:]...)

	if len(out) != m.OriginalLength {
		return nil, formatErr(e.ID(), qerrors.ErrLengthMismatch)
	}
	return out, nil
}

// NoiseStats describes the noise in a stage 6 frame.
type NoiseStats struct {
	OriginalLength int
	NoisyLength    int
	TotalNoise     int
	Ratio          float64 // TotalNoise / OriginalLength
	Insertions     int
	AverageChunk   float64
	Overhead       int // map bytes in front of the noisy data
}

// Stats parses a frame without needing the key.
func (e *NoiseEmbedder) Stats(data []byte) (*NoiseStats, error) {
	m, noisy, err := ParseNoise(data)
	if err != nil {
		return nil, err
	}
	st := &NoiseStats{
		OriginalLength: m.OriginalLength,
		NoisyLength:    len(noisy),
		TotalNoise:     m.TotalNoise(),
		Insertions:     len(m.Chunks),
		Overhead:       len(data) - len(noisy),
	}
	if st.OriginalLength > 0 {
		st.Ratio = float64(st.TotalNoise) / float64(st.OriginalLength)
	}
	if st.Insertions > 0 {
		st.AverageChunk = float64(st.TotalNoise) / float64(st.Insertions)
	}
	return st, nil
}
