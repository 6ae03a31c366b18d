package layer

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// Substitution is stage 1: a keyed bijective byte table that flattens the
// plaintext's byte frequencies before any block cipher sees it.
//
// The table is a Fisher-Yates shuffle of 0..255 driven by a SHA-256 counter
// generator over SHA-256(key || nonce || "BYTE_MASK_LAYER1").
type Substitution struct{}

// NewSubstitution returns stage 1.
func NewSubstitution() *Substitution { return &Substitution{} }

func (*Substitution) ID() constants.LayerID { return constants.LayerSubstitution }
func (*Substitution) Name() string          { return "Byte-Frequency Mask" }

// Table is a substitution table with its inverse.
type Table struct {
	Forward [constants.SubstitutionTableSize]byte
	Inverse [constants.SubstitutionTableSize]byte
}

// NewTable derives the table for key and nonce.
func NewTable(key, nonce []byte) *Table {
	seed := crypto.SHA256Concat(key, nonce, []byte(constants.TagSubstitution))
	random := counterStream(seed, constants.SubstitutionRandomBytes)

	t := &Table{}
	for i := range t.Forward {
		t.Forward[i] = byte(i)
	}
	for i := constants.SubstitutionTableSize - 1; i > 0; i-- {
		j := binary.LittleEndian.Uint32(random[i*4:]) % uint32(i+1)
		t.Forward[i], t.Forward[j] = t.Forward[j], t.Forward[i]
	}
	for i, v := range t.Forward {
		t.Inverse[v] = byte(i)
	}

	crypto.ZeroizeMultiple(seed, random)
	return t
}

// counterStream expands seed into n bytes of SHA-256(seed || LE64(counter)) blocks.
func counterStream(seed []byte, n int) []byte {
	out := make([]byte, 0, n+32)
	var ctr [8]byte
	for counter := uint64(0); len(out) < n; counter++ {
		binary.LittleEndian.PutUint64(ctr[:], counter)
		out = append(out, crypto.SHA256Concat(seed, ctr[:])...)
	}
	return out[:n]
}

// Encrypt maps every byte through the forward table.
func (s *Substitution) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(s.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	return apply(&NewTable(key, nonce).Forward, data), nil
}

// Decrypt maps every byte through the inverse table.
func (s *Substitution) Decrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkDecrypt(s.ID(), data, key, nonce, true); err != nil {
		return nil, err
	}
	return apply(&NewTable(key, nonce).Inverse, data), nil
}

func apply(table *[constants.SubstitutionTableSize]byte, data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = table[b]
	}
	return out
}

// IsPermutation reports whether the forward table is a bijection and the
// inverse table undoes it.
func (t *Table) IsPermutation() bool {
	var seen [constants.SubstitutionTableSize]bool
	for i, v := range t.Forward {
		if seen[v] || t.Inverse[v] != byte(i) {
			return false
		}
		seen[v] = true
	}
	return true
}

// Avalanche returns the fraction of output bits that change when a single
// input bit flips, averaged over all 256 inputs and all 8 bit positions.
// A random bijection scores about 0.5.
func (t *Table) Avalanche() float64 {
	changed := 0
	for bit := 0; bit < 8; bit++ {
		for i := 0; i < constants.SubstitutionTableSize; i++ {
			flipped := byte(i) ^ byte(1<<bit)
			changed += bits.OnesCount8(t.Forward[i] ^ t.Forward[flipped])
		}
	}
	return float64(changed) / float64(8*constants.SubstitutionTableSize*8)
}

// EntropyStats summarizes the byte distribution of a buffer.
type EntropyStats struct {
	Entropy     float64 // Shannon entropy in bits per byte
	MaxEntropy  float64 // best achievable for this length
	Efficiency  float64 // Entropy / MaxEntropy
	UniqueBytes int
}

// Entropy computes EntropyStats for data.
func Entropy(data []byte) EntropyStats {
	if len(data) == 0 {
		return EntropyStats{}
	}

	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	var st EntropyStats
	n := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		st.UniqueBytes++
		p := float64(c) / n
		st.Entropy -= p * math.Log2(p)
	}
	st.MaxEntropy = math.Min(8, math.Log2(n))
	if st.MaxEntropy > 0 {
		st.Efficiency = st.Entropy / st.MaxEntropy
	}
	return st
}
