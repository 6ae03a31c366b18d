// header.go implements the system header that prefixes every packet.
//
// Wire Format:
//
//	+---------+---------+------------+---------+-----------+-------+--------------+
//	| Magic   | Version | ProfileLen | Profile | Timestamp | Nonce | Layer 7 data |
//	| 6B      | 3B      | 1B         | N bytes | 8B LE     | 32B   | Variable     |
//	+---------+---------+------------+---------+-----------+-------+--------------+
//
// Magic is the ASCII string "7LAYER". Version is ASCII, NUL padded to three
// bytes. Timestamp is unix seconds at encryption. The nonce is the operation
// nonce the layer keys were derived from.
//
// The header is not encrypted. The engine passes it to layer 7 as associated
// data, so any change to it fails authentication.

package engine

import (
	"bytes"
	"encoding/binary"
	"slices"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// Header is the parsed system header of a packet.
type Header struct {
	Version   string
	Profile   string
	Timestamp time.Time
	Nonce     []byte
}

// Size returns the encoded length of the header.
func (h *Header) Size() int {
	return HeaderSize(h.Profile)
}

// HeaderSize returns the encoded header length for a profile name.
func HeaderSize(profile string) int {
	return constants.MinSystemHeaderSize + len(profile)
}

// EncodeHeader serializes a header.
func EncodeHeader(h *Header) ([]byte, error) {
	if len(h.Version) > constants.VersionFieldSize {
		return nil, qerrors.NewValidationError("engine.EncodeHeader", "version", qerrors.ErrInvalidParameter)
	}
	if len(h.Profile) > constants.MaxProfileNameSize {
		return nil, qerrors.NewValidationError("engine.EncodeHeader", "profile", qerrors.ErrInvalidParameter)
	}
	if len(h.Nonce) != constants.NonceSize {
		return nil, qerrors.NewValidationError("engine.EncodeHeader", "nonce", qerrors.ErrInvalidNonceSize)
	}

	buf := make([]byte, h.Size())
	offset := 0

	// Magic
	copy(buf[offset:], constants.Magic)
	offset += len(constants.Magic)

	// Version (NUL padded)
	copy(buf[offset:], h.Version)
	offset += constants.VersionFieldSize

	// Profile (length-prefixed)
	buf[offset] = byte(len(h.Profile))
	offset++
	copy(buf[offset:], h.Profile)
	offset += len(h.Profile)

	// Timestamp
	binary.LittleEndian.PutUint64(buf[offset:], uint64(h.Timestamp.Unix()))
	offset += constants.TimestampSize

	// Nonce
	copy(buf[offset:], h.Nonce)

	return buf, nil
}

// DecodeHeader parses the system header at the start of data and returns it
// with its encoded length. Header fields are checked in wire order; a packet
// written by another engine version yields a ProfileMismatch once the header
// has been read completely.
func DecodeHeader(data []byte) (*Header, int, error) {
	if len(data) < len(constants.Magic) {
		return nil, 0, qerrors.NewFormatError("engine.header", qerrors.ErrTruncated)
	}
	if !bytes.Equal(data[:len(constants.Magic)], []byte(constants.Magic)) {
		return nil, 0, qerrors.NewFormatError("engine.header.magic", qerrors.ErrBadMagic)
	}
	offset := len(constants.Magic)

	// Version
	if offset+constants.VersionFieldSize > len(data) {
		return nil, 0, qerrors.NewFormatError("engine.header.version", qerrors.ErrTruncated)
	}
	version := string(bytes.TrimRight(data[offset:offset+constants.VersionFieldSize], "\x00"))
	offset += constants.VersionFieldSize

	// Profile
	if offset >= len(data) {
		return nil, 0, qerrors.NewFormatError("engine.header.profile-length", qerrors.ErrTruncated)
	}
	profileLen := int(data[offset])
	offset++
	if offset+profileLen > len(data) {
		return nil, 0, qerrors.NewFormatError("engine.header.profile", qerrors.ErrTruncated)
	}
	profile := string(data[offset : offset+profileLen])
	offset += profileLen

	// Timestamp
	if offset+constants.TimestampSize > len(data) {
		return nil, 0, qerrors.NewFormatError("engine.header.timestamp", qerrors.ErrTruncated)
	}
	ts := int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += constants.TimestampSize

	// Nonce
	if offset+constants.NonceSize > len(data) {
		return nil, 0, qerrors.NewFormatError("engine.header.nonce", qerrors.ErrTruncated)
	}
	nonce := slices.Clone(data[offset : offset+constants.NonceSize])
	offset += constants.NonceSize

	if version != constants.Version {
		return nil, 0, &qerrors.ProfileMismatch{Got: version, Want: constants.Version}
	}

	return &Header{
		Version:   version,
		Profile:   profile,
		Timestamp: time.Unix(ts, 0),
		Nonce:     nonce,
	}, offset, nil
}
