package fitdb

import (
	"bytes"
	"slices"
	"sort"
	"sync"
)

// memStorage is a transient in-memory storage intended for tests.
type memStorage struct {
	mu      sync.RWMutex
	regions map[string]*memRegion
	closed  bool
}

func newMemStorage() *memStorage {
	return &memStorage{regions: make(map[string]*memRegion)}
}

func (s *memStorage) Region(name string) (storageRegion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storeErr("create", name, ErrClosed)
	}
	return s.regionLocked(name), nil
}

func (s *memStorage) regionLocked(name string) *memRegion {
	r := s.regions[name]
	if r == nil {
		r = &memRegion{s: s, name: name}
		s.regions[name] = r
	}
	return r
}

func (s *memStorage) Apply(b *writeBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeErr("apply", "", ErrClosed)
	}
	for _, op := range b.ops {
		r := s.regionLocked(op.region)
		if op.del {
			r.deleteLocked(op.key)
		} else {
			r.putLocked(op.key, op.value)
		}
	}
	return nil
}

func (s *memStorage) Compact() error { return nil }

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.regions = nil
	return nil
}

type memKV struct {
	key   []byte
	value []byte
}

// memRegion keeps items sorted by key. Stored slices are never mutated in
// place, so a shallow clone of items is a consistent snapshot.
type memRegion struct {
	s     *memStorage
	name  string
	items []memKV
}

func (r *memRegion) Name() string { return r.name }

func (r *memRegion) find(key []byte) (idx int, ok bool) {
	items := r.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

func (r *memRegion) putLocked(key, value []byte) {
	key = slices.Clone(key)
	value = slices.Clone(value)
	i, ok := r.find(key)
	if ok {
		r.items[i].value = value
		return
	}
	r.items = slices.Insert(r.items, i, memKV{key: key, value: value})
}

func (r *memRegion) deleteLocked(key []byte) []byte {
	i, ok := r.find(key)
	if !ok {
		return nil
	}
	prev := r.items[i].value
	r.items = slices.Delete(r.items, i, i+1)
	return prev
}

func (r *memRegion) Get(key []byte) ([]byte, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.closed {
		return nil, storeErr("get", r.name, ErrClosed)
	}
	i, ok := r.find(key)
	if !ok {
		return nil, nil
	}
	return slices.Clone(r.items[i].value), nil
}

func (r *memRegion) Put(key, value []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.closed {
		return storeErr("put", r.name, ErrClosed)
	}
	r.putLocked(key, value)
	return nil
}

func (r *memRegion) Delete(key []byte) ([]byte, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.closed {
		return nil, storeErr("delete", r.name, ErrClosed)
	}
	return r.deleteLocked(key), nil
}

func (r *memRegion) snapshot() ([]memKV, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(r.items), nil
}

func (r *memRegion) Scan(rang RawRange, f func(k, v []byte) bool) error {
	items, err := r.snapshot()
	if err != nil {
		return storeErr("scan", r.name, err)
	}
	scanCursor(&memCursor{items: items, pos: -1}, rang, f)
	return nil
}

func (r *memRegion) Count() (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.closed {
		return 0, storeErr("count", r.name, ErrClosed)
	}
	return len(r.items), nil
}

func (r *memRegion) Stats() (regionStats, error) {
	items, err := r.snapshot()
	if err != nil {
		return regionStats{}, storeErr("stats", r.name, err)
	}
	var inuse int64
	for _, kv := range items {
		inuse += int64(len(kv.key) + len(kv.value))
	}
	return regionStats{Keys: len(items), Size: inuse, Alloc: inuse}, nil
}

type memCursor struct {
	items []memKV
	pos   int
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	c.pos = i
	if i < 0 || i >= len(c.items) {
		return nil, nil
	}
	kv := c.items[i]
	return kv.key, kv.value
}

func (c *memCursor) First() ([]byte, []byte) { return c.at(0) }

func (c *memCursor) Last() ([]byte, []byte) { return c.at(len(c.items) - 1) }

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i := sort.Search(len(c.items), func(i int) bool {
		return bytes.Compare(c.items[i].key, seek) >= 0
	})
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos >= len(c.items) {
		return nil, nil
	}
	return c.at(c.pos + 1)
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	return c.at(c.pos - 1)
}
