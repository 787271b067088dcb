package fitdb

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldbopt "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// levelStorage namespaces regions inside a single LevelDB keyspace. Every
// stored key is uvarint(len(name)) + name + key, so no region name can be a
// prefix of another region's keys.
type levelStorage struct {
	ldb    *leveldb.DB
	logger *zap.Logger

	// writeMu serializes writes so Delete can return the previous value.
	writeMu sync.Mutex

	regionsMu sync.Mutex
	regions   map[string]*levelRegion
}

func openLevelStorage(path string, opt Options, logger *zap.Logger) (*levelStorage, error) {
	o := &ldbopt.Options{NoSync: opt.IsTesting}

	// Open leveldb. If it doesn't exist, create it.
	ldb, err := leveldb.OpenFile(path, o)

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		logger.Warn("LevelDB corruption detected", zap.String("path", path), zap.Error(err))
		ldb, err = leveldb.RecoverFile(path, o)
		if err != nil {
			return nil, storeErr("recover", "", errors.Wrapf(err, "recovering %s", path))
		}
		logger.Warn("LevelDB recovered from corruption", zap.String("path", path))
	}
	if err != nil {
		return nil, storeErr("open", "", errors.Wrapf(err, "opening %s", path))
	}
	return &levelStorage{
		ldb:     ldb,
		logger:  logger,
		regions: make(map[string]*levelRegion),
	}, nil
}

func (s *levelStorage) Region(name string) (storageRegion, error) {
	s.regionsMu.Lock()
	defer s.regionsMu.Unlock()
	if r := s.regions[name]; r != nil {
		return r, nil
	}
	r := &levelRegion{s: s, name: name, prefix: appendVarbytes(nil, []byte(name))}
	s.regions[name] = r
	return r, nil
}

func (s *levelStorage) region(name string) *levelRegion {
	r, _ := s.Region(name)
	return r.(*levelRegion)
}

func (s *levelStorage) Apply(b *writeBatch) error {
	if b.Len() == 0 {
		return nil
	}
	var batch leveldb.Batch
	for _, op := range b.ops {
		r := s.region(op.region)
		if op.del {
			batch.Delete(r.fullKey(op.key))
		} else {
			batch.Put(r.fullKey(op.key), op.value)
		}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.ldb.Write(&batch, nil)
	return storeErr("apply", "", errors.Wrap(err, "writing batch"))
}

// Compact compacts the key range of every opened region concurrently.
func (s *levelStorage) Compact() error {
	s.regionsMu.Lock()
	regions := make([]*levelRegion, 0, len(s.regions))
	for _, r := range s.regions {
		regions = append(regions, r)
	}
	s.regionsMu.Unlock()

	var g errgroup.Group
	for _, r := range regions {
		r := r
		g.Go(func() error {
			err := s.ldb.CompactRange(r.keyRange())
			return storeErr("compact", r.name, errors.Wrapf(err, "compacting %s", r.name))
		})
	}
	return g.Wait()
}

func (s *levelStorage) Close() error {
	return storeErr("close", "", s.ldb.Close())
}

type levelRegion struct {
	s      *levelStorage
	name   string
	prefix []byte
}

func (r *levelRegion) Name() string { return r.name }

func (r *levelRegion) fullKey(key []byte) []byte {
	return concatBytes(r.prefix, key)
}

func (r *levelRegion) keyRange() util.Range {
	limit, _ := UpperBound(r.prefix)
	return util.Range{Start: r.prefix, Limit: limit}
}

func (r *levelRegion) Get(key []byte) ([]byte, error) {
	data, err := r.s.ldb.Get(r.fullKey(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr("get", r.name, err)
	}
	return data, nil
}

func (r *levelRegion) Put(key, value []byte) error {
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	return storeErr("put", r.name, r.s.ldb.Put(r.fullKey(key), value, nil))
}

func (r *levelRegion) Delete(key []byte) ([]byte, error) {
	fk := r.fullKey(key)
	r.s.writeMu.Lock()
	defer r.s.writeMu.Unlock()
	prev, err := r.s.ldb.Get(fk, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, storeErr("delete", r.name, err)
	}
	if err := r.s.ldb.Delete(fk, nil); err != nil {
		return nil, storeErr("delete", r.name, err)
	}
	return prev, nil
}

func (r *levelRegion) Scan(rang RawRange, f func(k, v []byte) bool) error {
	kr := r.keyRange()
	it := r.s.ldb.NewIterator(&kr, nil)
	defer it.Release()
	scanCursor(&levelCursor{it: it, prefix: r.prefix}, rang, f)
	return storeErr("scan", r.name, it.Error())
}

// Count walks the region; LevelDB keeps no per-range key counts.
func (r *levelRegion) Count() (int, error) {
	kr := r.keyRange()
	it := r.s.ldb.NewIterator(&kr, &ldbopt.ReadOptions{DontFillCache: true})
	defer it.Release()
	var n int
	for it.Next() {
		n++
	}
	return n, storeErr("count", r.name, it.Error())
}

func (r *levelRegion) Stats() (regionStats, error) {
	n, err := r.Count()
	if err != nil {
		return regionStats{}, err
	}
	sizes, err := r.s.ldb.SizeOf([]util.Range{r.keyRange()})
	if err != nil {
		return regionStats{}, storeErr("stats", r.name, err)
	}
	return regionStats{Keys: n, Size: sizes.Sum(), Alloc: sizes.Sum()}, nil
}

// levelCursor adapts a LevelDB iterator over one region to storageCursor,
// hiding the region prefix.
type levelCursor struct {
	it     iterator.Iterator
	prefix []byte
}

func (c *levelCursor) entry(ok bool) ([]byte, []byte) {
	if !ok {
		return nil, nil
	}
	return c.it.Key()[len(c.prefix):], c.it.Value()
}

func (c *levelCursor) First() ([]byte, []byte) { return c.entry(c.it.First()) }
func (c *levelCursor) Last() ([]byte, []byte)  { return c.entry(c.it.Last()) }
func (c *levelCursor) Next() ([]byte, []byte)  { return c.entry(c.it.Next()) }
func (c *levelCursor) Prev() ([]byte, []byte)  { return c.entry(c.it.Prev()) }

func (c *levelCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.entry(c.it.Seek(concatBytes(c.prefix, seek)))
}
