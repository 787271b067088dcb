package fitdb

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how value payloads are compressed before they reach the
// store. The choice is recorded per value, so changing it never makes existing
// data unreadable.
type Compression int

const (
	NoCompression Compression = iota
	Snappy
	Zstd
	LZ4

	maxCompression = LZ4
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return NoCompression, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil)
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

func (c Compression) compress(dst, src []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return appendRaw(dst, src), nil
	case Snappy:
		return appendRaw(dst, snappy.Encode(nil, src)), nil
	case Zstd:
		enc, err := zstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(src, dst), nil
	case LZ4:
		bb := bytesBuilder{dst}
		w := lz4.NewWriter(&bb)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return bb.Buf, nil
	default:
		return nil, fmt.Errorf("unsupported compression %v", c)
	}
}

func (c Compression) decompress(src []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return src, nil
	case Snappy:
		return snappy.Decode(nil, src)
	case Zstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(src, nil)
	case LZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	default:
		return nil, fmt.Errorf("unsupported compression %v", c)
	}
}
