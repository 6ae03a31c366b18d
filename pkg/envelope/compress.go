package envelope

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"

	qerrors "github.com/sara-star-quant/sevenlayer/internal/errors"
)

// CompressionLevel trades speed for ratio.
type CompressionLevel int

const (
	CompressionFast    CompressionLevel = iota // lz4.Fast
	CompressionDefault                         // lz4.Level4
	CompressionBest                            // lz4.Level9
)

func (l CompressionLevel) lz4Level() lz4.CompressionLevel {
	switch l {
	case CompressionFast:
		return lz4.Fast
	case CompressionBest:
		return lz4.Level9
	default:
		return lz4.Level4
	}
}

var writerPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

var readerPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// Compress returns data as an LZ4 frame.
func Compress(data []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w := writerPool.Get().(*lz4.Writer)
	defer writerPool.Put(w)

	w.Reset(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(level.lz4Level())); err != nil {
		return nil, qerrors.NewCryptoError("envelope.compress", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, qerrors.NewCryptoError("envelope.compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, qerrors.NewCryptoError("envelope.compress", err)
	}
	return buf.Bytes(), nil
}

// Decompress expands an LZ4 frame. Output beyond limit bytes is an error,
// so a forged frame cannot inflate without bound.
func Decompress(data []byte, limit int) ([]byte, error) {
	r := readerPool.Get().(*lz4.Reader)
	defer readerPool.Put(r)

	r.Reset(bytes.NewReader(data))

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, qerrors.NewFormatError("envelope.decompress", qerrors.ErrInvalidEncoding)
	}
	if n > int64(limit) {
		return nil, qerrors.NewFormatError("envelope.decompress", qerrors.ErrLengthMismatch)
	}
	return buf.Bytes(), nil
}
