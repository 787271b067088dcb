package fitdb

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DB owns the underlying ordered store. Collections, indices and relations
// opened from it share its storage handle; all of them are safe for
// concurrent use.
type DB struct {
	st      storage
	backend Backend
	path    string
	schema  *Schema
	codec   valueCodec
	logger  *zap.Logger
	sugar   *zap.SugaredLogger
	verbose bool
	archive Archiver

	openedLock sync.Mutex
	opened     map[string]any

	closed     atomic.Bool
	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

type Options struct {
	Backend     Backend
	Encoding    ValueEncoding
	Compression Compression

	// Logger receives debug logs (with Verbose) and warnings about skipped
	// entries. Defaults to a no-op logger.
	Logger  *zap.Logger
	Verbose bool

	IsTesting bool

	// Archiver, if set, sees every raw entry before a purge deletes it.
	Archiver Archiver

	// MmapSize and Timeout apply to the bolt backend.
	MmapSize int
	Timeout  time.Duration
}

// Open opens the database at path, creating it if needed, and creates the
// regions of every resource and edge declared in scm. scm may be nil for
// databases that only use OpenCollection/OpenIndex/OpenRelation directly.
// The memory backend ignores path.
func Open(path string, scm *Schema, opt Options) (*DB, error) {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", opt.Backend.String()))

	var st storage
	switch opt.Backend {
	case BoltBackend:
		s, err := openBoltStorage(path, opt)
		if err != nil {
			return nil, err
		}
		st = s
	case LevelDBBackend:
		s, err := openLevelStorage(path, opt, logger)
		if err != nil {
			return nil, err
		}
		st = s
	case MemoryBackend:
		st = newMemStorage()
	default:
		return nil, fmt.Errorf("fitdb: unsupported backend %v", opt.Backend)
	}

	if scm == nil {
		scm = NewSchema()
	}
	db := &DB{
		st:      st,
		backend: opt.Backend,
		path:    path,
		schema:  scm,
		codec:   valueCodec{enc: opt.Encoding, comp: opt.Compression},
		logger:  logger,
		sugar:   logger.Sugar(),
		verbose: opt.Verbose,
		archive: opt.Archiver,
		opened:  make(map[string]any),
	}
	scm.freeze()
	for _, name := range scm.regionNames() {
		if _, err := st.Region(name); err != nil {
			st.Close()
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) Schema() *Schema     { return db.schema }
func (db *DB) Backend() Backend    { return db.backend }
func (db *DB) Path() string        { return db.path }
func (db *DB) Logger() *zap.Logger { return db.logger }

// Compact reclaims space left behind by overwrites and removals. It is never
// run automatically.
func (db *DB) Compact() error {
	if db.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	err := db.st.Compact()
	if err != nil {
		db.logger.Error("compaction failed", zap.Error(err))
		return err
	}
	db.logger.Info("compaction finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.st.Close()
}

// Archiver receives raw entries that a purge is about to delete. A failing
// Archive call aborts the purge before the entry is deleted.
type Archiver interface {
	Archive(region string, key, value []byte) error
}

func (db *DB) archived(region string, k, v []byte) error {
	if db.archive == nil {
		return nil
	}
	if err := db.archive.Archive(region, k, v); err != nil {
		return fmt.Errorf("fitdb: archiving %s/%x: %w", region, k, err)
	}
	return nil
}

func (db *DB) logf(format string, args ...any) {
	db.sugar.Debugf(format, args...)
}

// openCached returns a cached handle of type T registered under id, or creates
// one with open. Handles registered under the same id with different type
// parameters are rejected with ErrTypeMismatch.
func openCached[T any](db *DB, id string, open func() (T, error)) (T, error) {
	var zero T
	if db.closed.Load() {
		return zero, ErrClosed
	}
	db.openedLock.Lock()
	defer db.openedLock.Unlock()
	if x, ok := db.opened[id]; ok {
		h, ok := x.(T)
		if !ok {
			return zero, fmt.Errorf("fitdb: %s: opened as %T, requested %T: %w", id, x, zero, ErrTypeMismatch)
		}
		return h, nil
	}
	h, err := open()
	if err != nil {
		return zero, err
	}
	db.opened[id] = h
	return h, nil
}

// OpenCollection opens the collection stored in the named region. Opening is
// idempotent; repeated calls return the same handle.
func OpenCollection[K Key[K], V any](db *DB, name string) (*Collection[K, V], error) {
	return openCached(db, "c:"+name, func() (*Collection[K, V], error) {
		reg, err := db.st.Region(name)
		if err != nil {
			return nil, err
		}
		return &Collection[K, V]{db: db, name: name, reg: reg}, nil
	})
}

// OpenIndex opens the index from keys of the local resource to keys of
// foreign. Its region is named "<local>/<foreign>".
func OpenIndex[K Key[K], F Key[F], FV any](db *DB, local string, foreign *Collection[F, FV]) (*Index[K, F, FV], error) {
	name := edgeName(local, foreign.Name())
	return openCached(db, "i:"+name, func() (*Index[K, F, FV], error) {
		reg, err := db.st.Region(name)
		if err != nil {
			return nil, err
		}
		return &Index[K, F, FV]{db: db, name: name, reg: reg, foreign: foreign}, nil
	})
}

// OpenRelation opens the relation between the local and foreign collections:
// the local collection itself plus the index "<local>/<foreign>".
func OpenRelation[K Key[K], V any, F Key[F], FV any](db *DB, local *Collection[K, V], foreign *Collection[F, FV]) (*Relation[K, V, F, FV], error) {
	idx, err := OpenIndex[K](db, local.Name(), foreign)
	if err != nil {
		return nil, err
	}
	return openCached(db, "r:"+idx.name, func() (*Relation[K, V, F, FV], error) {
		return &Relation[K, V, F, FV]{local: local, index: idx}, nil
	})
}

func edgeName(local, foreign string) string {
	return local + "/" + foreign
}
