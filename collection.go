package fitdb

import (
	"go.uber.org/zap"
)

// Collection is a named mapping from keys of type K to values of type V,
// stored in a region of the same name. At most one value exists per key.
type Collection[K Key[K], V any] struct {
	db   *DB
	name string
	reg  storageRegion
}

func (c *Collection[K, V]) Name() string { return c.name }

func (c *Collection[K, V]) DB() *DB { return c.db }

func (c *Collection[K, V]) String() string { return "collection:" + c.name }

// Get returns the value stored under key. found is false if the key was never
// written or has been removed.
func (c *Collection[K, V]) Get(key K) (value V, found bool, err error) {
	kb := key.AsKey()
	raw, err := c.reg.Get(kb)
	c.db.ReadCount.Add(1)
	if err != nil {
		return value, false, err
	}
	if raw == nil {
		if c.db.verbose {
			c.db.logf("db: GET.NOTFOUND %s/%x", c.name, kb)
		}
		return value, false, nil
	}
	if err := c.db.codec.unmarshal(raw, &value); err != nil {
		return value, false, collErrf(c.name, "", kb, err, "")
	}
	if c.db.verbose {
		c.db.logf("db: GET %s/%x => %d bytes", c.name, kb, len(raw))
	}
	return value, true, nil
}

// Insert stores value under key, overwriting any previous value. If value
// cannot be encoded, nothing is written.
func (c *Collection[K, V]) Insert(key K, value V) error {
	kb := key.AsKey()
	data, err := c.db.codec.marshal(&value)
	if err != nil {
		return collErrf(c.name, "", kb, err, "")
	}
	if err := c.reg.Put(kb, data); err != nil {
		return err
	}
	c.db.WriteCount.Add(1)
	if c.db.verbose {
		c.db.logf("db: PUT %s/%x => %d bytes", c.name, kb, len(data))
	}
	return nil
}

// Remove deletes key and returns its previous value, if any. The key is
// removed even if the previous value fails to decode.
func (c *Collection[K, V]) Remove(key K) (prev V, found bool, err error) {
	kb := key.AsKey()
	raw, err := c.reg.Delete(kb)
	if err != nil {
		return prev, false, err
	}
	c.db.WriteCount.Add(1)
	if raw == nil {
		if c.db.verbose {
			c.db.logf("db: DELETE.NOOP %s/%x", c.name, kb)
		}
		return prev, false, nil
	}
	if c.db.verbose {
		c.db.logf("db: DELETE %s/%x", c.name, kb)
	}
	if err := c.db.codec.unmarshal(raw, &prev); err != nil {
		return prev, true, collErrf(c.name, "", kb, err, "removed value")
	}
	return prev, true, nil
}

func (c *Collection[K, V]) ContainsKey(key K) (bool, error) {
	found, err := c.containsRaw(key.AsKey())
	if c.db.verbose && err == nil {
		c.db.logf("db: EXISTS.%s %s/%x", yesNo(found), c.name, key.AsKey())
	}
	return found, err
}

func (c *Collection[K, V]) containsRaw(kb []byte) (bool, error) {
	raw, err := c.reg.Get(kb)
	c.db.ReadCount.Add(1)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Count returns the number of entries as reported by the store.
func (c *Collection[K, V]) Count() (int, error) {
	return c.reg.Count()
}

// Iter returns a page of keys of the whole collection, in key order or in
// reverse.
func (c *Collection[K, V]) Iter(skip, take int, reverse bool) (Page[K], error) {
	return c.scanKeys(RawOO(), skip, take, reverse)
}

// Keys returns a page of the keys starting with owner.AsPrefix(). A nil owner
// scans the whole collection.
func (c *Collection[K, V]) Keys(owner Prefixer, skip, take int, reverse bool) (Page[K], error) {
	return c.scanKeys(ownerRange(owner), skip, take, reverse)
}

func ownerRange(owner Prefixer) RawRange {
	if owner == nil {
		return RawOO()
	}
	return RawPrefix(owner.AsPrefix())
}

func (c *Collection[K, V]) scanKeys(rang RawRange, skip, take int, reverse bool) (Page[K], error) {
	skip, take = max(skip, 0), max(take, 0)
	page := Page[K]{Skip: skip, Take: take}
	if reverse {
		rang = rang.Reversed()
	}
	err := c.reg.Scan(rang, func(k, _ []byte) bool {
		key, err := decodeKey[K](k)
		if err != nil {
			c.skipped(k, err)
			return true
		}
		if page.Total >= skip && len(page.Items) < take {
			page.Items = append(page.Items, key)
		}
		page.Total++
		return true
	})
	c.db.ReadCount.Add(1)
	if err != nil {
		return Page[K]{}, err
	}
	if c.db.verbose {
		c.db.logf("db: SCAN %s skip=%d take=%d reverse=%v => %d of %d", c.name, skip, take, reverse, len(page.Items), page.Total)
	}
	return page, nil
}

// Prev returns the nearest key before key that shares its owner prefix.
func (c *Collection[K, V]) Prev(key K) (K, bool, error) {
	kb := key.AsKey()
	rang := RawPrefix(key.AsPrefix())
	rang.Upper, rang.UpperInc = kb, false
	return c.neighbor(rang.Reversed())
}

// Next returns the nearest key after key that shares its owner prefix.
func (c *Collection[K, V]) Next(key K) (K, bool, error) {
	kb := key.AsKey()
	rang := RawPrefix(key.AsPrefix())
	rang.Lower, rang.LowerInc = kb, false
	return c.neighbor(rang)
}

func (c *Collection[K, V]) neighbor(rang RawRange) (result K, found bool, err error) {
	err = c.reg.Scan(rang, func(k, _ []byte) bool {
		key, err := decodeKey[K](k)
		if err != nil {
			c.skipped(k, err)
			return true
		}
		result, found = key, true
		return false
	})
	c.db.ReadCount.Add(1)
	return result, found, err
}

// Each calls f for every entry whose key starts with owner.AsPrefix(), until f
// returns false. Entries are read in chunks, so f may use the database.
func (c *Collection[K, V]) Each(owner Prefixer, reverse bool, f func(key K, value V) bool) error {
	rang := ownerRange(owner)
	if reverse {
		rang = rang.Reversed()
	}
	return scanChunked(c.reg, rang, chunkSize, func(k, v []byte) (bool, error) {
		key, err := decodeKey[K](k)
		if err != nil {
			c.skipped(k, err)
			return true, nil
		}
		var value V
		if err := c.db.codec.unmarshal(v, &value); err != nil {
			c.skipped(k, err)
			return true, nil
		}
		return f(key, value), nil
	})
}

// skipped reports an entry that a scan could not decode. Such entries are
// left out of pages and counts.
func (c *Collection[K, V]) skipped(k []byte, err error) {
	c.db.logger.Warn("skipping undecodable entry", zap.String("region", c.name), hexField("key", k), zap.Error(err))
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
