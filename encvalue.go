package fitdb

import (
	"encoding/binary"
)

// Stored value layout: flags (uvarint), then the payload.
//
// Flags carry the value format version in bits 0-3, the compression method in
// bits 4-6 and the encoding in bit 7. Values are self-describing, so a
// database opened with different Options can still read old values.
type valueFlags uint64

const (
	vfVerMask          = valueFlags(0x0F)
	vfVer1             = valueFlags(1)
	vfCompressionMask  = valueFlags(0x70)
	vfCompressionShift = 4
	vfJSON             = valueFlags(0x80)

	vfSupportedMask = vfVerMask | vfCompressionMask | vfJSON
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) compression() Compression {
	return Compression((vf & vfCompressionMask) >> vfCompressionShift)
}

func (vf valueFlags) encoding() ValueEncoding {
	if vf&vfJSON != 0 {
		return JSON
	}
	return MsgPack
}

func makeValueFlags(enc ValueEncoding, comp Compression) valueFlags {
	vf := vfVer1 | valueFlags(comp)<<vfCompressionShift
	if enc == JSON {
		vf |= vfJSON
	}
	return vf
}

type valueCodec struct {
	enc  ValueEncoding
	comp Compression
}

func (c valueCodec) marshal(v any) ([]byte, error) {
	data, err := c.enc.encode(nil, v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, binary.MaxVarintLen64+len(data))
	buf = appendUvarint(buf, uint64(makeValueFlags(c.enc, c.comp)))
	buf, err = c.comp.compress(buf, data)
	if err != nil {
		return nil, &EncodeError{Value: v, Err: err}
	}
	return buf, nil
}

func (c valueCodec) unmarshal(raw []byte, ptr any) error {
	v, n := binary.Uvarint(raw)
	if n <= 0 {
		return dataErrf(raw, 0, nil, "invalid value: bad flags")
	}
	vf := valueFlags(v)
	if vf&^vfSupportedMask != 0 || vf.ver() != vfVer1 {
		return dataErrf(raw, 0, nil, "invalid value: unsupported flags %x", v)
	}
	comp := vf.compression()
	if comp > maxCompression {
		return dataErrf(raw, 0, nil, "invalid value: unknown compression %d", int(comp))
	}
	data, err := comp.decompress(raw[n:])
	if err != nil {
		return dataErrf(raw, n, err, "invalid value: %v payload", comp)
	}
	return vf.encoding().decode(data, ptr)
}
