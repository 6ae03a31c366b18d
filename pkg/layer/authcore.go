package layer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/sara-star-quant/sevenlayer/internal/constants"
	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
	"github.com/sara-star-quant/sevenlayer/pkg/crypto"
)

// AuthenticatedCore is stage 2: a Fernet token (AES-128-CBC with PKCS#7,
// HMAC-SHA256, embedded creation time) under a PBKDF2-stretched key, framed
// together with the nonce that salted the key:
//
//	[nonceLen:1][nonce][tokenLen:4][token]
//	token = base64url(0x80 || BE64 ts || iv(16) || ciphertext || hmac(32))
//
// The IV is derived from the signing key, nonce and timestamp, so the token
// is a pure function of its inputs and the clock.
type AuthenticatedCore struct {
	clock Clock
	ttl   time.Duration
}

// NewAuthenticatedCore returns stage 2. A zero ttl disables expiry checks.
func NewAuthenticatedCore(clock Clock, ttl time.Duration) *AuthenticatedCore {
	return &AuthenticatedCore{clock: clock, ttl: ttl}
}

func (*AuthenticatedCore) ID() constants.LayerID { return constants.LayerAuthenticatedCore }
func (*AuthenticatedCore) Name() string          { return "AES-Fernet" }

var tokenEncoding = base64.URLEncoding

// deriveTokenKey stretches the layer key into signing and encryption halves.
func deriveTokenKey(key, nonce []byte) ([]byte, error) {
	salt := crypto.SHA256Concat(nonce, []byte(constants.TagAuthenticatedCore), []byte(constants.AuthenticatedSaltTag))
	return crypto.PBKDF2SHA256(key, salt[:constants.AuthenticatedSaltSize],
		constants.AuthenticatedKDFIterations, constants.AuthenticatedKeySize)
}

// Encrypt seals data into a framed token.
func (a *AuthenticatedCore) Encrypt(data, key, nonce []byte) ([]byte, error) {
	if err := checkEncrypt(a.ID(), data, key, nonce); err != nil {
		return nil, err
	}
	if len(nonce) > 255 {
		return nil, qerrors.NewValidationError(op(a.ID(), "encrypt"), "nonce", qerrors.ErrInvalidNonceSize)
	}

	k, err := deriveTokenKey(key, nonce)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(k)

	token, err := sealToken(k, nonce, data, a.clock.now().Unix())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+len(nonce)+4+len(token))
	out = append(out, byte(len(nonce)))
	out = append(out, nonce...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(token)))
	return append(out, token...), nil
}

// Decrypt verifies and opens a framed token using the TTL given at
// construction.
func (a *AuthenticatedCore) Decrypt(data, key []byte) ([]byte, error) {
	return a.DecryptWithTTL(data, key, a.ttl)
}

// DecryptWithTTL verifies and opens a framed token, rejecting tokens older
// than ttl. A zero ttl accepts any age.
func (a *AuthenticatedCore) DecryptWithTTL(data, key []byte, ttl time.Duration) ([]byte, error) {
	if err := checkDecrypt(a.ID(), data, key, nil, false); err != nil {
		return nil, err
	}

	nonce, token, err := parseTokenFrame(data)
	if err != nil {
		return nil, err
	}

	k, err := deriveTokenKey(key, nonce)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(k)

	return openToken(k, token, a.clock.now(), ttl)
}

func sealToken(k, nonce, plaintext []byte, ts int64) ([]byte, error) {
	signing, encryption := k[:16], k[16:]

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	iv := crypto.HMACSHA256(signing, []byte(constants.AuthenticatedIVTag), nonce, tsBuf[:])[:constants.TokenIVSize]

	block, err := aes.NewCipher(encryption)
	if err != nil {
		return nil, qerrors.NewCryptoError("layer.authenticated-core.seal", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)

	body := make([]byte, 0, 1+8+len(iv)+len(padded)+constants.TokenMACSize)
	body = append(body, constants.TokenVersion)
	body = append(body, tsBuf[:]...)
	body = append(body, iv...)
	body = append(body, padded...)
	body = append(body, crypto.HMACSHA256(signing, body)...)

	out := make([]byte, tokenEncoding.EncodedLen(len(body)))
	tokenEncoding.Encode(out, body)
	return out, nil
}

func openToken(k, token []byte, now time.Time, ttl time.Duration) ([]byte, error) {
	const name = "layer.authenticated-core.decrypt"
	signing, encryption := k[:16], k[16:]

	raw := make([]byte, tokenEncoding.DecodedLen(len(token)))
	n, err := tokenEncoding.Decode(raw, token)
	if err != nil {
		return nil, qerrors.NewFormatError(name, qerrors.ErrInvalidEncoding)
	}
	raw = raw[:n]

	minLen := 1 + 8 + constants.TokenIVSize + aes.BlockSize + constants.TokenMACSize
	if len(raw) < minLen || (len(raw)-minLen)%aes.BlockSize != 0 {
		return nil, qerrors.NewFormatError(name, qerrors.ErrTruncated)
	}
	if raw[0] != constants.TokenVersion {
		return nil, qerrors.NewFormatError(name, qerrors.ErrUnsupportedVersion)
	}

	body, mac := raw[:len(raw)-constants.TokenMACSize], raw[len(raw)-constants.TokenMACSize:]
	if !crypto.VerifyHMACSHA256(signing, mac, body) {
		return nil, qerrors.NewIntegrityError(name, qerrors.ErrAuthenticationFailed)
	}

	if ttl > 0 {
		ts := int64(binary.BigEndian.Uint64(body[1:9]))
		created := time.Unix(ts, 0)
		if created.Add(ttl).Before(now) {
			return nil, qerrors.NewIntegrityError(name, qerrors.ErrTokenExpired)
		}
		if now.Add(constants.TokenMaxClockSkewSeconds * time.Second).Before(created) {
			return nil, qerrors.NewIntegrityError(name, qerrors.ErrTokenFromFuture)
		}
	}

	block, err := aes.NewCipher(encryption)
	if err != nil {
		return nil, qerrors.NewCryptoError(name, err)
	}
	iv := body[9 : 9+constants.TokenIVSize]
	ct := bytes.Clone(body[9+constants.TokenIVSize:])
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(ct, ct)

	plaintext, ok := pkcs7Unpad(ct, aes.BlockSize)
	if !ok {
		return nil, qerrors.NewIntegrityError(name, qerrors.ErrAuthenticationFailed)
	}
	return plaintext, nil
}

func parseTokenFrame(data []byte) (nonce, token []byte, err error) {
	id := constants.LayerAuthenticatedCore
	if len(data) < 6 {
		return nil, nil, formatErr(id, qerrors.ErrTruncated)
	}
	nonceLen := int(data[0])
	if len(data) < 1+nonceLen+4 {
		return nil, nil, formatErr(id, qerrors.ErrTruncated)
	}
	nonce = data[1 : 1+nonceLen]
	tokenLen := int(binary.LittleEndian.Uint32(data[1+nonceLen:]))
	start := 1 + nonceLen + 4
	if tokenLen != len(data)-start {
		return nil, nil, formatErr(id, qerrors.ErrLengthMismatch)
	}
	return nonce, data[start:], nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize {
		return nil, false
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, false
		}
	}
	return data[:len(data)-pad], true
}

// TokenInfo describes a framed token without decrypting it.
type TokenInfo struct {
	NonceLength int
	TokenLength int
	TotalLength int
	Created     time.Time
}

// InspectToken parses the framing and the token's timestamp.
func InspectToken(data []byte) (*TokenInfo, error) {
	nonce, token, err := parseTokenFrame(data)
	if err != nil {
		return nil, err
	}
	raw, err := tokenEncoding.DecodeString(string(token))
	if err != nil {
		return nil, formatErr(constants.LayerAuthenticatedCore, qerrors.ErrInvalidEncoding)
	}
	if len(raw) < 9 || raw[0] != constants.TokenVersion {
		return nil, formatErr(constants.LayerAuthenticatedCore, qerrors.ErrTruncated)
	}
	return &TokenInfo{
		NonceLength: len(nonce),
		TokenLength: len(token),
		TotalLength: len(data),
		Created:     time.Unix(int64(binary.BigEndian.Uint64(raw[1:9])), 0),
	}, nil
}

// VerifyToken reports whether data is a token this key can open.
func (a *AuthenticatedCore) VerifyToken(data, key []byte) bool {
	_, err := a.Decrypt(data, key)
	return err == nil
}
