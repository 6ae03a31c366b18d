package layer

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// IntegrityTag is stage 7: an outer HMAC-SHA256 tag over a small header and
// the stage 6 output.
//
//	header = version:1 (0x01) || nonceLen:1 || nonce || timestamp:8 || tagSize:1
//	output = header || payload || tag
//
// With associated data the tag input becomes
// LE32(len(ad)) || ad || header || payload, which lets the caller bind bytes
// that travel in front of the frame.
type IntegrityTag struct {
	tagSize int
	clock   Clock
}

// NewIntegrityTag returns stage 7 emitting tags of tagSize bytes (16 or 32).
func NewIntegrityTag(tagSize int, clock Clock) (*IntegrityTag, error) {
	if tagSize != constants.ShortTagSize && tagSize != constants.FullTagSize {
		return nil, qerrors.NewValidationError("layer.integrity-tag.new", "tagSize", qerrors.ErrInvalidParameter)
	}
	return &IntegrityTag{tagSize: tagSize, clock: clock}, nil
}

func (*IntegrityTag) ID() constants.LayerID { return constants.LayerIntegrityTag }
func (*IntegrityTag) Name() string          { return "Integrity Tag" }

// TagSize returns the configured tag length.
func (g *IntegrityTag) TagSize() int { return g.tagSize }

func integrityKey(key, nonce []byte) []byte {
	ctx := concat([]byte(constants.TagIntegrity), nonce, []byte(constants.IntegrityKeyTag))
	k1 := crypto.HMACSHA256(key, ctx)
	k := crypto.HMACSHA256(k1, ctx, k1[:16], []byte(constants.IntegrityFinalTag))
	crypto.Zeroize(k1)
	return k
}

func tagInput(ad []byte, parts ...[]byte) [][]byte {
	if len(ad) == 0 {
		return parts
	}
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(ad)))
	return append([][]byte{n[:], ad}, parts...)
}

// Encrypt frames data and appends the tag.
func (g *IntegrityTag) Encrypt(data, key, nonce []byte) ([]byte, error) {
	return g.EncryptWithAD(data, key, nonce, nil)
}

// EncryptWithAD frames data and appends a tag that also covers ad.
func (g *IntegrityTag) EncryptWithAD(data, key, nonce, ad []byte) ([]byte, error) {
	if err := checkEncrypt(g.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	if len(nonce) > 255 {
		return nil, qerrors.NewValidationError(op(g.ID(), "encrypt"), "nonce", qerrors.ErrInvalidNonceSize)
	}

	header := make([]byte, 0, 2+len(nonce)+9)
	header = append(header, constants.IntegrityVersion, byte(len(nonce)))
	header = append(header, nonce...)
	header = binary.LittleEndian.AppendUint64(header, uint64(g.clock.now().Unix()))
	header = append(header, byte(g.tagSize))

	k := integrityKey(key, nonce)
	defer crypto.Zeroize(k)
	tag := crypto.HMACSHA256(k, tagInput(ad, header, data)...)[:g.tagSize]

	return concat(header, data, tag), nil
}

// TagHeader is the parsed stage 7 header.
type TagHeader struct {
	Nonce     []byte
	Timestamp time.Time
	TagSize   int
	Length    int // header bytes
}

func parseTagHeader(data []byte) (*TagHeader, error) {
	id := constants.LayerIntegrityTag
	if len(data) < constants.MinIntegrityHeader {
		return nil, formatErr(id, qerrors.ErrTruncated)
	}
	if data[0] != constants.IntegrityVersion {
		return nil, formatErr(id, qerrors.ErrUnsupportedVersion)
	}
	nonceLen := int(data[1])
	if len(data) < 2+nonceLen+9 {
		return nil, formatErr(id, qerrors.ErrTruncated)
	}
	tsPos := 2 + nonceLen
	return &TagHeader{
		Nonce:     data[2:tsPos],
		Timestamp: time.Unix(int64(binary.LittleEndian.Uint64(data[tsPos:])), 0),
		TagSize:   int(data[tsPos+8]),
		Length:    tsPos + 9,
	}, nil
}

// split returns the header, payload and tag of a frame.
func (g *IntegrityTag) split(data []byte) (*TagHeader, []byte, []byte, error) {
	h, err := parseTagHeader(data)
	if err != nil {
		return nil, nil, nil, err
	}
	if h.TagSize != g.tagSize {
		return nil, nil, nil, formatErr(g.ID(), qerrors.ErrTagSizeMismatch)
	}
	tagStart := len(data) - h.TagSize
	if tagStart <= h.Length {
		return nil, nil, nil, formatErr(g.ID(), qerrors.ErrTruncated)
	}
	return h, data[h.Length:tagStart], data[tagStart:], nil
}

// Decrypt verifies the tag and returns the payload.
func (g *IntegrityTag) Decrypt(data, key []byte) ([]byte, error) {
	return g.DecryptWithAD(data, key, nil)
}

// DecryptWithAD verifies a tag produced by EncryptWithAD with the same ad.
// The tag is checked before the header fields are interpreted, so a changed
// header byte fails authentication rather than parsing.
func (g *IntegrityTag) DecryptWithAD(data, key, ad []byte) ([]byte, error) {
	if err := checkDecrypt(g.ID(), data, key, nil, false); err != nil {
		return nil, err
	}
	if len(data) < constants.MinIntegrityHeader {
		return nil, formatErr(g.ID(), qerrors.ErrTruncated)
	}
	nonceLen := int(data[1])
	headerLen := 2 + nonceLen + 9
	tagStart := len(data) - g.tagSize
	if tagStart <= headerLen {
		return nil, formatErr(g.ID(), qerrors.ErrTruncated)
	}
	if ts := int(data[headerLen-1]); ts != g.tagSize && (ts == constants.ShortTagSize || ts == constants.FullTagSize) {
		return nil, formatErr(g.ID(), qerrors.ErrTagSizeMismatch)
	}

	k := integrityKey(key, data[2:2+nonceLen])
	defer crypto.Zeroize(k)
	if !crypto.VerifyHMACSHA256(k, data[tagStart:], tagInput(ad, data[:tagStart])...) {
		return nil, qerrors.NewIntegrityError(op(g.ID(), "decrypt"), qerrors.ErrAuthenticationFailed)
	}

	_, payload, _, err := g.split(data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// Verify reports whether the tag over data checks out under key.
func (g *IntegrityTag) Verify(data, key []byte) bool {
	_, err := g.Decrypt(data, key)
	return err == nil
}

// TagMetadata describes a stage 7 frame without verifying it.
type TagMetadata struct {
	Nonce         string // hex
	NonceLength   int
	Created       time.Time
	Age           time.Duration
	TagSize       int
	HeaderSize    int
	PayloadSize   int
	TotalSize     int
	OverheadBytes int
	OverheadRatio float64
}

// Metadata parses the frame header and sizes.
func (g *IntegrityTag) Metadata(data []byte) (*TagMetadata, error) {
	h, payload, _, err := g.split(data)
	if err != nil {
		return nil, err
	}
	m := &TagMetadata{
		Nonce:         hex.EncodeToString(h.Nonce),
		NonceLength:   len(h.Nonce),
		Created:       h.Timestamp,
		Age:           g.clock.now().Sub(h.Timestamp),
		TagSize:       h.TagSize,
		HeaderSize:    h.Length,
		PayloadSize:   len(payload),
		TotalSize:     len(data),
		OverheadBytes: len(data) - len(payload),
	}
	m.OverheadRatio = float64(m.OverheadBytes) / float64(m.PayloadSize)
	return m, nil
}
