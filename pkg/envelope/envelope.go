// Package envelope wraps seven-layer packets in a JSON document for storage
// and transport.
//
// A document carries the packet base64url-encoded together with the
// metadata a receiver needs before decrypting: the profile, a fingerprint of
// the master key, and the sizes before and after encryption. The payload may
// be LZ4-compressed before encryption, and a packet may be split into
// Reed-Solomon shards for lossy channels.
//
// Every failure is returned to the caller. The package never substitutes
// the plaintext, the unencrypted input or a partially decoded payload for a
// result.
//
//	doc, err := envelope.Seal(ctx, eng, plaintext, masterKey, envelope.WithCompression(envelope.CompressionDefault))
//	data, err := doc.Marshal()
//	...
//	doc, err := envelope.Parse(data)
//	plaintext, err := envelope.Open(ctx, eng, doc, masterKey)
package envelope

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/engine"
	"github.com/sara-star-quant/sevenlayer/pkg/keyagree"
	"github.com/sara-star-quant/sevenlayer/pkg/metrics"
)

var (
	// ErrKeyMismatch indicates the master key does not match the
	// document's key fingerprint.
	ErrKeyMismatch = errors.New("envelope: master key does not match fingerprint")

	// ErrProfileMismatch indicates the document's profile disagrees with
	// the profile recorded in the packet header.
	ErrProfileMismatch = errors.New("envelope: profile does not match packet")
)

var payloadEncoding = base64.URLEncoding

// Cipher is the part of *engine.Engine the envelope needs.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext, masterKey, nonce []byte) ([]byte, error)
	Decrypt(ctx context.Context, packet, masterKey []byte) ([]byte, error)
}

// Document is the JSON form of a sealed message.
type Document struct {
	ID             string    `json:"id"`
	Version        string    `json:"version"`
	Profile        string    `json:"profile"`
	Payload        string    `json:"payload"`
	KeyFingerprint string    `json:"key_fingerprint"`
	OriginalSize   int       `json:"original_size"`
	EncryptedSize  int       `json:"encrypted_size"`
	Compressed     bool      `json:"compressed"`
	CreatedAt      time.Time `json:"created_at"`
}

type options struct {
	compress bool
	level    CompressionLevel
	clock    func() time.Time
}

// Option configures Seal.
type Option func(*options)

// WithCompression compresses the plaintext with LZ4 before encryption. The
// compressed form is kept only when it is smaller than the input.
func WithCompression(level CompressionLevel) Option {
	return func(o *options) {
		o.compress = true
		o.level = level
	}
}

// WithClock sets the source of CreatedAt.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Seal encrypts plaintext with c and wraps the packet in a Document. The
// call is traced on the process-wide tracer.
func Seal(ctx context.Context, c Cipher, plaintext, masterKey []byte, opts ...Option) (_ *Document, err error) {
	ctx, end := metrics.StartSpan(ctx, metrics.SpanEnvelopeSeal, metrics.WithInputBytes(len(plaintext)))
	defer func() { end(err) }()

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if len(plaintext) == 0 {
		return nil, qerrors.NewValidationError("envelope.seal", "plaintext", qerrors.ErrEmptyInput)
	}

	input := plaintext
	compressed := false
	if o.compress {
		packed, err := Compress(plaintext, o.level)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(plaintext) {
			input, compressed = packed, true
		}
	}

	packet, err := c.Encrypt(ctx, input, masterKey, nil)
	if err != nil {
		return nil, err
	}

	h, _, err := engine.DecodeHeader(packet)
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:             uuid.NewString(),
		Version:        constants.EnvelopeVersion,
		Profile:        h.Profile,
		Payload:        payloadEncoding.EncodeToString(packet),
		KeyFingerprint: keyagree.Fingerprint(masterKey),
		OriginalSize:   len(plaintext),
		EncryptedSize:  len(packet),
		Compressed:     compressed,
		CreatedAt:      o.clock().UTC(),
	}, nil
}

// Packet decodes and checks the document's payload without decrypting it.
func (d *Document) Packet() ([]byte, error) {
	if d.Version != constants.EnvelopeVersion {
		return nil, qerrors.NewFormatError("envelope.version", qerrors.ErrUnsupportedVersion)
	}
	packet, err := payloadEncoding.DecodeString(d.Payload)
	if err != nil {
		return nil, qerrors.NewFormatError("envelope.payload", qerrors.ErrInvalidEncoding)
	}
	if len(packet) != d.EncryptedSize {
		return nil, qerrors.NewFormatError("envelope.payload", qerrors.ErrLengthMismatch)
	}

	h, _, err := engine.DecodeHeader(packet)
	if err != nil {
		return nil, err
	}
	if h.Profile != d.Profile {
		return nil, qerrors.NewFormatError("envelope.profile", ErrProfileMismatch)
	}
	return packet, nil
}

// Open decrypts a document produced by Seal. The call is traced on the
// process-wide tracer.
func Open(ctx context.Context, c Cipher, d *Document, masterKey []byte) (_ []byte, err error) {
	ctx, end := metrics.StartSpan(ctx, metrics.SpanEnvelopeOpen)
	defer func() { end(err) }()

	if d == nil {
		return nil, qerrors.NewValidationError("envelope.open", "document", qerrors.ErrEmptyInput)
	}
	if d.KeyFingerprint != "" && d.KeyFingerprint != keyagree.Fingerprint(masterKey) {
		return nil, qerrors.NewValidationError("envelope.open", "masterKey", ErrKeyMismatch)
	}

	packet, err := d.Packet()
	if err != nil {
		return nil, err
	}
	plaintext, err := c.Decrypt(ctx, packet, masterKey)
	if err != nil {
		return nil, err
	}

	if d.Compressed {
		plaintext, err = Decompress(plaintext, d.OriginalSize)
		if err != nil {
			return nil, err
		}
	}
	if len(plaintext) != d.OriginalSize {
		return nil, qerrors.NewFormatError("envelope.original-size", qerrors.ErrLengthMismatch)
	}
	return plaintext, nil
}

// Marshal encodes the document as JSON.
func (d *Document) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Parse decodes a JSON document. It does not check the payload; Open and
// Packet do.
func Parse(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, qerrors.NewFormatError("envelope.parse", qerrors.ErrInvalidEncoding)
	}
	return &d, nil
}
