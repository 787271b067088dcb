package fitdb

import (
	"fmt"
	"strings"
)

// Backend selects the ordered byte store underneath a DB.
type Backend int

const (
	BoltBackend Backend = iota
	LevelDBBackend
	MemoryBackend
)

func (b Backend) String() string {
	switch b {
	case BoltBackend:
		return "bolt"
	case LevelDBBackend:
		return "leveldb"
	case MemoryBackend:
		return "memory"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "", "bolt", "bbolt":
		return BoltBackend, nil
	case "leveldb", "level":
		return LevelDBBackend, nil
	case "memory", "mem":
		return MemoryBackend, nil
	default:
		return 0, fmt.Errorf("unknown backend %q", s)
	}
}

// storage represents an ordered key-value store split into named regions
// (Bolt, LevelDB, in-memory). Implementations must be safe for concurrent use.
type storage interface {
	// Region opens a named region, creating it if needed. Idempotent.
	Region(name string) (storageRegion, error)

	// Apply performs every operation of the batch atomically.
	Apply(b *writeBatch) error

	// Compact reclaims space left behind by overwrites and removals.
	Compact() error

	// Close closes the storage.
	Close() error
}

// storageRegion is a sorted collection of raw keys and opaque values.
type storageRegion interface {
	Name() string

	// Get returns a copy of the value, or nil if the key is absent.
	Get(key []byte) ([]byte, error)

	// Put stores a key-value pair, overwriting any previous value.
	Put(key, value []byte) error

	// Delete removes a key and returns a copy of the previous value, if any.
	Delete(key []byte) ([]byte, error)

	// Scan calls f for each entry within rang until f returns false.
	// k and v are only valid during the call.
	Scan(rang RawRange, f func(k, v []byte) bool) error

	// Count returns the number of keys in the region.
	Count() (int, error)

	// Stats returns storage-specific region statistics.
	// Backends that don't track allocation sizes may return zero values except Keys.
	Stats() (regionStats, error)
}

type regionStats struct {
	Keys  int
	Size  int64
	Alloc int64
}

// storageCursor iterates over a sorted region. Every method returns nil keys
// when it moves past either end.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
	Prev() (key, value []byte)
}

type batchOp struct {
	region string
	key    []byte
	value  []byte
	del    bool
}

// writeBatch collects writes to several regions that must land together.
type writeBatch struct {
	ops []batchOp
}

func (b *writeBatch) Put(reg storageRegion, key, value []byte) {
	b.ops = append(b.ops, batchOp{region: reg.Name(), key: key, value: value})
}

func (b *writeBatch) Delete(reg storageRegion, key []byte) {
	b.ops = append(b.ops, batchOp{region: reg.Name(), key: key, del: true})
}

func (b *writeBatch) Len() int {
	return len(b.ops)
}
