package fitdb

import (
	"bytes"

	"go.uber.org/zap"
)

// Index maps local keys of type K to keys of a foreign collection. An entry
// counts as present only while its foreign key resolves in the foreign
// collection; stale entries stay in the store but read as absent.
//
// Join scans the local keys under fk.AsPrefix(), so it only finds entries
// when the foreign key's prefix is also the owner prefix of the local keys.
// JoinWithin takes the owner explicitly for other layouts.
type Index[K Key[K], F Key[F], FV any] struct {
	db      *DB
	name    string
	reg     storageRegion
	foreign *Collection[F, FV]
}

func (idx *Index[K, F, FV]) Name() string { return idx.name }

func (idx *Index[K, F, FV]) Foreign() *Collection[F, FV] { return idx.foreign }

func (idx *Index[K, F, FV]) String() string { return "index:" + idx.name }

// Key returns the foreign key mapped to key if it currently resolves.
func (idx *Index[K, F, FV]) Key(key K) (F, bool, error) {
	var zero F
	kb := key.AsKey()
	raw, err := idx.reg.Get(kb)
	idx.db.ReadCount.Add(1)
	if err != nil || raw == nil {
		if idx.db.verbose && err == nil {
			idx.db.logf("db: LOOKUP_KEY.NOTFOUND %s/%x", idx.name, kb)
		}
		return zero, false, err
	}
	fk, err := decodeKey[F](raw)
	if err != nil {
		return zero, false, collErrf(idx.foreign.name, idx.name, kb, err, "foreign key")
	}
	live, err := idx.foreign.containsRaw(raw)
	if err != nil {
		return zero, false, err
	}
	if idx.db.verbose {
		if live {
			idx.db.logf("db: LOOKUP_KEY %s/%x => %x", idx.name, kb, raw)
		} else {
			idx.db.logf("db: LOOKUP_KEY.STALE %s/%x => %x", idx.name, kb, raw)
		}
	}
	if !live {
		return zero, false, nil
	}
	return fk, true, nil
}

func (idx *Index[K, F, FV]) ContainsKey(key K) (bool, error) {
	_, found, err := idx.Key(key)
	return found, err
}

// Get resolves key through to the value of the foreign collection.
func (idx *Index[K, F, FV]) Get(key K) (FV, bool, error) {
	fk, found, err := idx.Key(key)
	if err != nil || !found {
		var zero FV
		return zero, false, err
	}
	return idx.foreign.Get(fk)
}

// Insert maps key to fk. It fails with ErrForeignKeyConstraint, writing
// nothing, unless fk currently resolves in the foreign collection.
func (idx *Index[K, F, FV]) Insert(key K, fk F) error {
	kb, fb := key.AsKey(), fk.AsKey()
	if err := idx.check(kb, fb); err != nil {
		return err
	}
	if err := idx.reg.Put(kb, fb); err != nil {
		return err
	}
	idx.db.WriteCount.Add(1)
	if idx.db.verbose {
		idx.db.logf("db: LINK %s/%x => %x", idx.name, kb, fb)
	}
	return nil
}

func (idx *Index[K, F, FV]) check(kb, fb []byte) error {
	live, err := idx.foreign.containsRaw(fb)
	if err != nil {
		return err
	}
	if !live {
		return collErrf(idx.foreign.name, idx.name, kb, ErrForeignKeyConstraint, "%s/%x does not exist", idx.foreign.name, fb)
	}
	return nil
}

// Remove deletes the mapping for key. The foreign collection is not touched.
func (idx *Index[K, F, FV]) Remove(key K) (bool, error) {
	kb := key.AsKey()
	prev, err := idx.reg.Delete(kb)
	if err != nil {
		return false, err
	}
	idx.db.WriteCount.Add(1)
	if idx.db.verbose {
		if prev != nil {
			idx.db.logf("db: UNLINK %s/%x", idx.name, kb)
		} else {
			idx.db.logf("db: UNLINK.NOOP %s/%x", idx.name, kb)
		}
	}
	return prev != nil, nil
}

// Keys returns a page of local keys starting with owner.AsPrefix() whose
// foreign keys currently resolve.
func (idx *Index[K, F, FV]) Keys(owner Prefixer, skip, take int, reverse bool) (Page[K], error) {
	return idx.scan(ownerRange(owner), nil, skip, take, reverse)
}

// Join returns a page of local keys mapped to exactly fk. The scan is scoped
// to fk.AsPrefix(), so fk's owner must also own the local keys.
func (idx *Index[K, F, FV]) Join(fk F, skip, take int, reverse bool) (Page[K], error) {
	return idx.JoinWithin(fk, fk, skip, take, reverse)
}

// JoinWithin is Join scoped to the local keys of owner.
func (idx *Index[K, F, FV]) JoinWithin(owner Prefixer, fk F, skip, take int, reverse bool) (Page[K], error) {
	return idx.scan(ownerRange(owner), fk.AsKey(), skip, take, reverse)
}

// scan collects skip+take valid entries plus one lookahead entry, so that
// the page knows whether another one follows without walking the whole scope.
func (idx *Index[K, F, FV]) scan(rang RawRange, exact []byte, skip, take int, reverse bool) (Page[K], error) {
	skip, take = max(skip, 0), max(take, 0)
	page := Page[K]{Skip: skip, Take: take}
	if reverse {
		rang = rang.Reversed()
	}
	live := make(map[string]bool)
	err := scanChunked(idx.reg, rang, chunkSize, func(k, v []byte) (bool, error) {
		if exact != nil && !bytes.Equal(v, exact) {
			return true, nil
		}
		key, err := decodeKey[K](k)
		if err != nil {
			idx.skipped(k, err)
			return true, nil
		}
		ok, known := live[string(v)]
		if !known {
			if _, err := decodeKey[F](v); err != nil {
				idx.skipped(k, err)
				return true, nil
			}
			ok, err = idx.foreign.containsRaw(v)
			if err != nil {
				return false, err
			}
			live[string(v)] = ok
		}
		if !ok {
			return true, nil
		}
		if page.Total >= skip && len(page.Items) < take {
			page.Items = append(page.Items, key)
		}
		page.Total++
		return page.Total-skip <= take, nil
	})
	idx.db.ReadCount.Add(1)
	if err != nil {
		return Page[K]{}, err
	}
	if idx.db.verbose {
		idx.db.logf("db: SCAN %s skip=%d take=%d reverse=%v => %d of %d", idx.name, skip, take, reverse, len(page.Items), page.Total)
	}
	return page, nil
}

// purgeStale calls f with the raw local and foreign keys of every entry whose
// foreign key no longer resolves or cannot be decoded.
func (idx *Index[K, F, FV]) purgeStale(f func(kb, fkb []byte) error) error {
	return scanChunked(idx.reg, RawOO(), chunkSize, func(k, v []byte) (bool, error) {
		live := false
		if _, err := decodeKey[F](v); err == nil {
			live, err = idx.foreign.containsRaw(v)
			if err != nil {
				return false, err
			}
		}
		if live {
			return true, nil
		}
		return true, f(k, v)
	})
}

// PurgeStale physically deletes the entries whose foreign keys no longer
// resolve and returns how many were deleted.
func (idx *Index[K, F, FV]) PurgeStale() (int, error) {
	var n int
	err := idx.purgeStale(func(kb, fkb []byte) error {
		if err := idx.db.archived(idx.name, kb, fkb); err != nil {
			return err
		}
		if _, err := idx.reg.Delete(kb); err != nil {
			return err
		}
		n++
		return nil
	})
	if n > 0 {
		idx.db.WriteCount.Add(uint64(n))
		idx.db.logger.Info("purged stale index entries", zap.String("index", idx.name), zap.Int("count", n))
	}
	return n, err
}

func (idx *Index[K, F, FV]) skipped(k []byte, err error) {
	idx.db.logger.Warn("skipping undecodable entry", zap.String("region", idx.name), hexField("key", k), zap.Error(err))
}

// PurgeDetached deletes the entries of idx whose local key no longer exists in
// local and returns how many were deleted.
func PurgeDetached[K Key[K], V any, F Key[F], FV any](idx *Index[K, F, FV], local *Collection[K, V]) (int, error) {
	var n int
	err := scanChunked(idx.reg, RawOO(), chunkSize, func(k, v []byte) (bool, error) {
		exists, err := local.containsRaw(k)
		if err != nil || exists {
			return err == nil, err
		}
		if err := idx.db.archived(idx.name, k, v); err != nil {
			return false, err
		}
		if _, err := idx.reg.Delete(k); err != nil {
			return false, err
		}
		n++
		return true, nil
	})
	if n > 0 {
		idx.db.WriteCount.Add(uint64(n))
		idx.db.logger.Info("purged detached index entries", zap.String("index", idx.name), zap.Int("count", n))
	}
	return n, err
}
