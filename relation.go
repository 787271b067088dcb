package fitdb

import (
	"go.uber.org/zap"
)

// Relation combines a local collection with an index over the same keys that
// points into a foreign collection. Every entry is written with a foreign key
// that resolves at write time, and an entry is visible only while its local
// value exists and its foreign key still resolves.
type Relation[K Key[K], V any, F Key[F], FV any] struct {
	local *Collection[K, V]
	index *Index[K, F, FV]
}

func (rel *Relation[K, V, F, FV]) Name() string { return rel.index.name }

func (rel *Relation[K, V, F, FV]) Local() *Collection[K, V] { return rel.local }

func (rel *Relation[K, V, F, FV]) Index() *Index[K, F, FV] { return rel.index }

func (rel *Relation[K, V, F, FV]) Foreign() *Collection[F, FV] { return rel.index.foreign }

func (rel *Relation[K, V, F, FV]) String() string { return "relation:" + rel.index.name }

// Get returns the local value of key if the entry is visible.
func (rel *Relation[K, V, F, FV]) Get(key K) (V, bool, error) {
	var zero V
	live, err := rel.index.ContainsKey(key)
	if err != nil || !live {
		return zero, false, err
	}
	return rel.local.Get(key)
}

func (rel *Relation[K, V, F, FV]) ContainsKey(key K) (bool, error) {
	live, err := rel.index.ContainsKey(key)
	if err != nil || !live {
		return false, err
	}
	return rel.local.containsRaw(key.AsKey())
}

// GetForeign returns the foreign key of key if it currently resolves.
func (rel *Relation[K, V, F, FV]) GetForeign(key K) (F, bool, error) {
	return rel.index.Key(key)
}

// Insert stores value under key together with its foreign key fk. Unless fk
// resolves, it fails with ErrForeignKeyConstraint and writes nothing. The
// index entry and the value are written in a single batch.
func (rel *Relation[K, V, F, FV]) Insert(key K, value V, fk F) error {
	db := rel.local.db
	kb, fb := key.AsKey(), fk.AsKey()
	data, err := db.codec.marshal(&value)
	if err != nil {
		return collErrf(rel.local.name, "", kb, err, "")
	}
	if err := rel.index.check(kb, fb); err != nil {
		return err
	}
	var b writeBatch
	b.Put(rel.index.reg, kb, fb)
	b.Put(rel.local.reg, kb, data)
	if err := db.st.Apply(&b); err != nil {
		return err
	}
	db.WriteCount.Add(1)
	if db.verbose {
		db.logf("db: PUT %s/%x => %d bytes, %s => %x", rel.local.name, kb, len(data), rel.index.name, fb)
	}
	return nil
}

// Link points key at fk without touching the local value.
func (rel *Relation[K, V, F, FV]) Link(key K, fk F) error {
	return rel.index.Insert(key, fk)
}

// Unlink removes the foreign key of key, hiding the entry without deleting its
// local value.
func (rel *Relation[K, V, F, FV]) Unlink(key K) (bool, error) {
	return rel.index.Remove(key)
}

// Remove deletes both the index entry and the local value of key and returns
// the previous local value, visible or not.
func (rel *Relation[K, V, F, FV]) Remove(key K) (prev V, found bool, err error) {
	db := rel.local.db
	kb := key.AsKey()
	raw, err := rel.local.reg.Get(kb)
	if err != nil {
		return prev, false, err
	}
	var b writeBatch
	b.Delete(rel.index.reg, kb)
	b.Delete(rel.local.reg, kb)
	if err := db.st.Apply(&b); err != nil {
		return prev, false, err
	}
	db.WriteCount.Add(1)
	if raw == nil {
		if db.verbose {
			db.logf("db: DELETE.NOOP %s/%x", rel.local.name, kb)
		}
		return prev, false, nil
	}
	if db.verbose {
		db.logf("db: DELETE %s/%x", rel.local.name, kb)
	}
	if err := db.codec.unmarshal(raw, &prev); err != nil {
		return prev, true, collErrf(rel.local.name, "", kb, err, "removed value")
	}
	return prev, true, nil
}

func (rel *Relation[K, V, F, FV]) Keys(owner Prefixer, skip, take int, reverse bool) (Page[K], error) {
	return rel.index.Keys(owner, skip, take, reverse)
}

func (rel *Relation[K, V, F, FV]) Join(fk F, skip, take int, reverse bool) (Page[K], error) {
	return rel.index.Join(fk, skip, take, reverse)
}

func (rel *Relation[K, V, F, FV]) JoinWithin(owner Prefixer, fk F, skip, take int, reverse bool) (Page[K], error) {
	return rel.index.JoinWithin(owner, fk, skip, take, reverse)
}

// PurgeOrphans physically deletes entries that can no longer become visible:
// index entries whose foreign key is gone, together with their local values,
// and local values that have no index entry at all. It returns the number of
// local keys cleaned up. It never runs implicitly.
func (rel *Relation[K, V, F, FV]) PurgeOrphans() (int, error) {
	db := rel.local.db
	var n int
	err := rel.index.purgeStale(func(kb, fkb []byte) error {
		if err := db.archived(rel.index.name, kb, fkb); err != nil {
			return err
		}
		raw, err := rel.local.reg.Get(kb)
		if err != nil {
			return err
		}
		if raw != nil {
			if err := db.archived(rel.local.name, kb, raw); err != nil {
				return err
			}
		}
		var b writeBatch
		b.Delete(rel.index.reg, kb)
		b.Delete(rel.local.reg, kb)
		if err := db.st.Apply(&b); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	err = scanChunked(rel.local.reg, RawOO(), chunkSize, func(k, v []byte) (bool, error) {
		raw, err := rel.index.reg.Get(k)
		if err != nil || raw != nil {
			return err == nil, err
		}
		if err := db.archived(rel.local.name, k, v); err != nil {
			return false, err
		}
		if _, err := rel.local.reg.Delete(k); err != nil {
			return false, err
		}
		n++
		return true, nil
	})
	if n > 0 {
		db.WriteCount.Add(uint64(n))
		db.logger.Info("purged orphaned entries", zap.String("relation", rel.index.name), zap.Int("count", n))
	}
	return n, err
}
