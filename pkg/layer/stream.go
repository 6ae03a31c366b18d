package layer

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// StreamCipher is stage 3: AES-256 in counter mode under a key and IV both
// derived from the layer key and nonce.
//
//	[ivLen:1 = 16][iv:16][ctLen:4][ciphertext]
type StreamCipher struct {
	chunkSize int
}

// NewStreamCipher returns stage 3.
func NewStreamCipher() *StreamCipher {
	return &StreamCipher{chunkSize: constants.StreamChunkSize}
}

func (*StreamCipher) ID() constants.LayerID { return constants.LayerStreamCipher }
func (*StreamCipher) Name() string          { return "AES-CTR Stream" }

func streamKeyIV(key, nonce []byte) (aesKey, iv []byte) {
	ctx := concat([]byte(constants.TagStreamCipher), nonce, []byte(constants.StreamKeyTag))
	inner := crypto.SHA256Concat(key, ctx)
	aesKey = crypto.SHA256Concat(inner, ctx[:16])
	crypto.Zeroize(inner)

	iv = crypto.SHA256Concat(aesKey, []byte(constants.TagStreamCipher), nonce,
		[]byte(constants.StreamIVTag))[:constants.StreamIVSize]
	return aesKey, iv
}

func (s *StreamCipher) newCTR(aesKey, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, qerrors.NewCryptoError(op(s.ID(), "ctr"), err)
	}
	return cipher.NewCTR(block, iv), nil
}

// Encrypt returns the framed ciphertext of data.
func (s *StreamCipher) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(s.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return nil, qerrors.NewValidationError(op(s.ID(), "encrypt"), "data", qerrors.ErrInputTooLarge)
	}

	aesKey, iv := streamKeyIV(key, nonce)
	defer crypto.Zeroize(aesKey)
	ctr, err := s.newCTR(aesKey, iv)
	if err != nil {
		return nil, err
	}

	out := make([]byte, constants.StreamHeaderSize+len(data))
	putStreamHeader(out, iv, len(data))
	ctr.XORKeyStream(out[constants.StreamHeaderSize:], data)
	return out, nil
}

// Decrypt reverses Encrypt using the IV carried in the framing.
func (s *StreamCipher) Decrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkDecrypt(s.ID(), data, key, nonce, true); err != nil {
		return nil, err
	}
	info, err := ParseStreamHeader(data)
	if err != nil {
		return nil, err
	}
	if info.CiphertextLength != len(data)-constants.StreamHeaderSize {
		return nil, formatErr(s.ID(), qerrors.ErrLengthMismatch)
	}

	aesKey, _ := streamKeyIV(key, nonce)
	defer crypto.Zeroize(aesKey)
	ctr, err := s.newCTR(aesKey, info.IV)
	if err != nil {
		return nil, err
	}

	out := make([]byte, info.CiphertextLength)
	ctr.XORKeyStream(out, data[constants.StreamHeaderSize:])
	return out, nil
}

func putStreamHeader(dst, iv []byte, n int) {
	dst[0] = constants.StreamIVSize
	copy(dst[1:], iv)
	binary.LittleEndian.PutUint32(dst[1+constants.StreamIVSize:], uint32(n))
}

// StreamInfo is the parsed stage 3 header.
type StreamInfo struct {
	IV               []byte
	CiphertextLength int
}

// ParseStreamHeader reads the stage 3 header at the start of data.
func ParseStreamHeader(data []byte) (*StreamInfo, error) {
	id := constants.LayerStreamCipher
	if len(data) < constants.StreamHeaderSize {
		return nil, formatErr(id, qerrors.ErrTruncated)
	}
	if data[0] != constants.StreamIVSize {
		return nil, formatErr(id, qerrors.ErrInvalidIV)
	}
	return &StreamInfo{
		IV:               append([]byte(nil), data[1:1+constants.StreamIVSize]...),
		CiphertextLength: int(binary.LittleEndian.Uint32(data[1+constants.StreamIVSize:])),
	}, nil
}

// EncryptStream reads exactly length bytes from src and writes the same
// framing Encrypt would produce, holding one chunk in memory at a time.
func (s *StreamCipher) EncryptStream(dst io.Writer, src io.Reader, key, nonce []byte, length int64) error {
	name := op(s.ID(), "encrypt-stream")
	if len(key) < constants.MinLayerKeySize {
		return qerrors.NewValidationError(name, "key", qerrors.ErrInvalidKeySize)
	}
	if len(nonce) < constants.LayerNonceSize {
		return qerrors.NewValidationError(name, "nonce", qerrors.ErrInvalidNonceSize)
	}
	if length <= 0 {
		return qerrors.NewValidationError(name, "length", qerrors.ErrEmptyInput)
	}
	if length > 0xFFFFFFFF {
		return qerrors.NewValidationError(name, "length", qerrors.ErrInputTooLarge)
	}

	aesKey, iv := streamKeyIV(key, nonce)
	defer crypto.Zeroize(aesKey)
	ctr, err := s.newCTR(aesKey, iv)
	if err != nil {
		return err
	}

	header := make([]byte, constants.StreamHeaderSize)
	putStreamHeader(header, iv, int(length))
	if _, err := dst.Write(header); err != nil {
		return fmt.Errorf("%s: write header: %w", name, err)
	}
	return s.pipe(dst, io.LimitReader(src, length), ctr, length, name)
}

// DecryptStream reverses EncryptStream.
func (s *StreamCipher) DecryptStream(dst io.Writer, src io.Reader, key, nonce []byte) error {
	name := op(s.ID(), "decrypt-stream")
	if len(key) < constants.MinLayerKeySize {
		return qerrors.NewValidationError(name, "key", qerrors.ErrInvalidKeySize)
	}
	if len(nonce) < constants.LayerNonceSize {
		return qerrors.NewValidationError(name, "nonce", qerrors.ErrInvalidNonceSize)
	}

	header := make([]byte, constants.StreamHeaderSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return qerrors.NewFormatError(name, qerrors.ErrTruncated)
	}
	info, err := ParseStreamHeader(header)
	if err != nil {
		return err
	}

	aesKey, _ := streamKeyIV(key, nonce)
	defer crypto.Zeroize(aesKey)
	ctr, err := s.newCTR(aesKey, info.IV)
	if err != nil {
		return err
	}
	return s.pipe(dst, io.LimitReader(src, int64(info.CiphertextLength)), ctr,
		int64(info.CiphertextLength), name)
}

func (s *StreamCipher) pipe(dst io.Writer, src io.Reader, ctr cipher.Stream, want int64, name string) error {
	buf := make([]byte, s.chunkSize)
	var done int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			ctr.XORKeyStream(buf[:n], buf[:n])
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("%s: write: %w", name, werr)
			}
			done += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read: %w", name, err)
		}
	}
	if done != want {
		return qerrors.NewFormatError(name, qerrors.ErrTruncated)
	}
	return nil
}
