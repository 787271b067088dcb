package fitdb

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	"go.uber.org/zap"
)

// UpperBound returns the smallest byte string that sorts after every string
// starting with prefix. The last non-0xFF byte is incremented and the 0xFF
// bytes after it are dropped.
//
// ok is false when no finite bound exists, that is when prefix is empty or
// consists entirely of 0xFF bytes. Such a scan is unbounded above.
func UpperBound(prefix []byte) (bound []byte, ok bool) {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			bound = make([]byte, i+1)
			copy(bound, prefix[:i+1])
			bound[i]++
			return bound, true
		}
	}
	return nil, false
}

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func appendRaw(buf []byte, chunk []byte) []byte {
	buf = ensureCapacity(buf, len(buf)+len(chunk))
	return append(buf, chunk...)
}

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.Buf = append(bb.Buf, v)
	return nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

func appendVarbytes(buf []byte, v []byte) []byte {
	buf = ensureCapacity(buf, len(buf)+binary.MaxVarintLen64+len(v))
	buf = binary.AppendUvarint(buf, uint64(len(v)))
	return append(buf, v...)
}

func concatBytes(a, b []byte) []byte {
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexField(key string, b []byte) zap.Field {
	return zap.String(key, hexstr(b))
}
