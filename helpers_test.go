package fitdb

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type ownerKey uint32

func (k ownerKey) AsKey() []byte    { return binary.BigEndian.AppendUint32(nil, uint32(k)) }
func (k ownerKey) AsPrefix() []byte { return k.AsKey() }

func (ownerKey) FromBytes(raw []byte) (ownerKey, error) {
	if len(raw) != 4 {
		return 0, NewDataError(raw, 0, nil, "owner key: expected 4 bytes, got %d", len(raw))
	}
	return ownerKey(binary.BigEndian.Uint32(raw)), nil
}

// itemKey is owned by an ownerKey.
type itemKey struct {
	Owner uint32
	N     uint32
}

func ik(owner, n uint32) itemKey { return itemKey{owner, n} }

func (k itemKey) AsKey() []byte {
	return binary.BigEndian.AppendUint32(binary.BigEndian.AppendUint32(nil, k.Owner), k.N)
}

func (k itemKey) AsPrefix() []byte { return ownerKey(k.Owner).AsKey() }

func (itemKey) FromBytes(raw []byte) (itemKey, error) {
	if len(raw) != 8 {
		return itemKey{}, NewDataError(raw, 0, nil, "item key: expected 8 bytes, got %d", len(raw))
	}
	return itemKey{binary.BigEndian.Uint32(raw), binary.BigEndian.Uint32(raw[4:])}, nil
}

type (
	owner struct {
		Name string `msgpack:"n" json:"n"`
	}
	item struct {
		Name string `msgpack:"n" json:"n"`
		Qty  int    `msgpack:"q" json:"q"`
	}
	note struct {
		Text string `msgpack:"t" json:"t"`
	}
	bin struct {
		Label string `msgpack:"l" json:"l"`
	}
	badValue struct {
		C chan int `msgpack:"c" json:"c"`
	}
)

var (
	testSchema = NewSchema()

	ownersRes  = AddResource[ownerKey, owner](testSchema, "owners")
	itemsRes   = AddResource[itemKey, item](testSchema, "items")
	archiveRes = AddResource[itemKey, item](testSchema, "archive")
	notesRes   = AddResource[itemKey, note](testSchema, "notes")
	binsRes    = AddResource[itemKey, bin](testSchema, "bins")

	itemOwner = AddRelationEdge(itemsRes, ownersRes)
	binOwner  = AddRelationEdge(binsRes, ownersRes)
	itemNotes = AddRelationEdge(notesRes, itemsRes)
	itemBin   = AddIndexEdge(itemsRes, binsRes)
)

var allBackends = []Backend{BoltBackend, LevelDBBackend, MemoryBackend}

func setup(t testing.TB, backend Backend, scm *Schema) *DB {
	t.Helper()
	return setupWith(t, scm, Options{Backend: backend, Logger: zaptest.NewLogger(t)})
}

func setupWith(t testing.TB, scm *Schema, opt Options) *DB {
	t.Helper()
	opt.IsTesting = true
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	path := filepath.Join(t.TempDir(), "test.db")
	t.Logf("DB: %s (%v)", path, opt.Backend)
	db := must(Open(path, scm, opt))
	t.Cleanup(func() { db.Close() })
	return db
}

// eachBackend runs f against a fresh database on every backend.
func eachBackend(t *testing.T, scm *Schema, f func(t *testing.T, db *DB)) {
	for _, b := range allBackends {
		t.Run(b.String(), func(t *testing.T) {
			f(t, setup(t, b, scm))
		})
	}
}

func openItems(db *DB) *Collection[itemKey, item] {
	return must(OpenCollection[itemKey, item](db, "items"))
}

func openOwners(db *DB) *Collection[ownerKey, owner] {
	return must(OpenCollection[ownerKey, owner](db, "owners"))
}

func openBins(db *DB) *Collection[itemKey, bin] {
	return must(OpenCollection[itemKey, bin](db, "bins"))
}

func itemKeys(p Page[itemKey]) []uint32 {
	var ns []uint32
	for _, k := range p.Items {
		ns = append(ns, k.N)
	}
	return ns
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
