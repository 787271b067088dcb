package fitdb

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

const boltCompactTxSize = 64 * 1024 * 1024

// boltStorage keeps every region in its own top-level bucket. Each region
// operation runs in its own bolt transaction; mu only guards the bdb handle,
// which Compact swaps. bdb is nil once closed, including after a failed swap.
type boltStorage struct {
	mu   sync.RWMutex
	bdb  *bbolt.DB
	path string
	bopt *bbolt.Options
}

func boltOptions(opt Options) *bbolt.Options {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.Timeout != 0 {
		bopt.Timeout = opt.Timeout
	}
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}
	return bopt
}

func openBoltStorage(path string, opt Options) (*boltStorage, error) {
	bopt := boltOptions(opt)
	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, storeErr("open", "", err)
	}
	return &boltStorage{bdb: bdb, path: path, bopt: bopt}, nil
}

func (s *boltStorage) Region(name string) (storageRegion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bdb == nil {
		return nil, storeErr("create", name, ErrClosed)
	}
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, storeErr("create", name, err)
	}
	return &boltRegion{s: s, name: name}, nil
}

func (s *boltStorage) Apply(b *writeBatch) error {
	if b.Len() == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bdb == nil {
		return storeErr("apply", "", ErrClosed)
	}
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		for _, op := range b.ops {
			buck, err := tx.CreateBucketIfNotExists(unsafeBytesFromString(op.region))
			if err != nil {
				return err
			}
			if op.del {
				err = buck.Delete(op.key)
			} else {
				err = buck.Put(op.key, op.value)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", op.region, err)
			}
		}
		return nil
	})
	return storeErr("apply", "", err)
}

// Compact copies the live data into a fresh file and swaps it in place of the
// current one. All other operations wait while it runs.
func (s *boltStorage) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bdb == nil {
		return storeErr("compact", "", ErrClosed)
	}

	tmp := s.path + ".compact"
	_ = os.Remove(tmp)
	dst, err := bbolt.Open(tmp, 0666, s.bopt)
	if err != nil {
		return storeErr("compact", "", err)
	}
	if err := bbolt.Compact(dst, s.bdb, boltCompactTxSize); err != nil {
		dst.Close()
		os.Remove(tmp)
		return storeErr("compact", "", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return storeErr("compact", "", err)
	}
	if err := s.bdb.Close(); err != nil {
		return storeErr("compact", "", err)
	}
	s.bdb = nil
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return storeErr("compact", "", errors.Join(err, s.reopen()))
	}
	return storeErr("compact", "", s.reopen())
}

// reopen opens the file at path again. On failure bdb stays nil and every
// later operation fails with ErrClosed.
func (s *boltStorage) reopen() error {
	bdb, err := bbolt.Open(s.path, 0666, s.bopt)
	if err != nil {
		return err
	}
	s.bdb = bdb
	return nil
}

func (s *boltStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bdb == nil {
		return nil
	}
	err := s.bdb.Close()
	s.bdb = nil
	return storeErr("close", "", err)
}

func (s *boltStorage) view(name string, f func(b *bbolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bdb == nil {
		return ErrClosed
	}
	return s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(unsafeBytesFromString(name))
		if b == nil {
			return fmt.Errorf("bucket %q does not exist", name)
		}
		return f(b)
	})
}

func (s *boltStorage) update(name string, f func(b *bbolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bdb == nil {
		return ErrClosed
	}
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(unsafeBytesFromString(name))
		if err != nil {
			return err
		}
		return f(b)
	})
}

type boltRegion struct {
	s    *boltStorage
	name string
}

func (r *boltRegion) Name() string { return r.name }

func (r *boltRegion) Get(key []byte) ([]byte, error) {
	var val []byte
	err := r.s.view(r.name, func(b *bbolt.Bucket) error {
		if v := b.Get(key); v != nil {
			val = slices.Clone(v)
		}
		return nil
	})
	return val, storeErr("get", r.name, err)
}

func (r *boltRegion) Put(key, value []byte) error {
	err := r.s.update(r.name, func(b *bbolt.Bucket) error {
		return b.Put(key, value)
	})
	return storeErr("put", r.name, err)
}

func (r *boltRegion) Delete(key []byte) ([]byte, error) {
	var prev []byte
	err := r.s.update(r.name, func(b *bbolt.Bucket) error {
		v := b.Get(key)
		if v == nil {
			return nil
		}
		prev = slices.Clone(v)
		return b.Delete(key)
	})
	return prev, storeErr("delete", r.name, err)
}

func (r *boltRegion) Scan(rang RawRange, f func(k, v []byte) bool) error {
	err := r.s.view(r.name, func(b *bbolt.Bucket) error {
		scanCursor(boltCursor{b.Cursor()}, rang, f)
		return nil
	})
	return storeErr("scan", r.name, err)
}

func (r *boltRegion) Count() (int, error) {
	var n int
	err := r.s.view(r.name, func(b *bbolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	return n, storeErr("count", r.name, err)
}

func (r *boltRegion) Stats() (regionStats, error) {
	var rs regionStats
	err := r.s.view(r.name, func(b *bbolt.Bucket) error {
		st := b.Stats()
		rs = regionStats{
			Keys:  st.KeyN,
			Size:  int64(st.LeafInuse + st.BranchInuse),
			Alloc: int64(st.LeafAlloc + st.BranchAlloc),
		}
		return nil
	})
	return rs, storeErr("stats", r.name, err)
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte)           { return c.c.First() }
func (c boltCursor) Last() ([]byte, []byte)            { return c.c.Last() }
func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }
func (c boltCursor) Next() ([]byte, []byte)            { return c.c.Next() }
func (c boltCursor) Prev() ([]byte, []byte)            { return c.c.Prev() }

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
