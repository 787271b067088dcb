package fitdb

// Key is the contract for collection keys.
//
// AsKey returns the canonical byte form used as the store key; byte order is
// scan order. AsPrefix returns the fixed-length owner prefix, which must be a
// prefix of AsKey for every key sharing that owner. FromBytes rebuilds a key
// from AsKey output and must not retain raw.
type Key[K any] interface {
	comparable
	AsKey() []byte
	AsPrefix() []byte
	FromBytes(raw []byte) (K, error)
}

// Prefixer scopes a range scan to an owner. Any Key is a Prefixer, so a
// UserKey can scope a scan over keys of another type that it owns.
type Prefixer interface {
	AsPrefix() []byte
}

// Prefix is a raw owner prefix.
type Prefix []byte

func (p Prefix) AsPrefix() []byte { return p }

func decodeKey[K Key[K]](raw []byte) (K, error) {
	var zero K
	return zero.FromBytes(raw)
}
