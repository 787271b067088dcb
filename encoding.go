package fitdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ValueEncoding selects the serialization used for collection values.
type ValueEncoding int

const (
	MsgPack ValueEncoding = iota
	JSON

	defaultValueEncoding = MsgPack
)

func (enc ValueEncoding) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

func ParseValueEncoding(s string) (ValueEncoding, error) {
	switch strings.ToLower(s) {
	case "", "msgpack":
		return MsgPack, nil
	case "json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("unknown value encoding %q", s)
	}
}

func (enc ValueEncoding) encode(buf []byte, v any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		e.Reset(&bb)
		e.SetSortMapKeys(true)
		err := e.Encode(v)
		msgpack.PutEncoder(e)
		if err != nil {
			return nil, &EncodeError{Value: v, Err: err}
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, &EncodeError{Value: v, Err: err}
		}
		return appendRaw(buf, raw), nil
	default:
		return nil, &EncodeError{Value: v, Err: fmt.Errorf("unsupported encoding %v", enc)}
	}
}

func (enc ValueEncoding) decode(buf []byte, ptr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		err := dec.Decode(ptr)
		msgpack.PutDecoder(dec)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %T", ptr)
		}
		return nil
	case JSON:
		err := json.Unmarshal(buf, ptr)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %T", ptr)
		}
		return nil
	default:
		return dataErrf(buf, 0, nil, "unsupported encoding %v", enc)
	}
}
