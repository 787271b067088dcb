package fitdb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openItemOwners(db *DB) *Relation[itemKey, item, ownerKey, owner] {
	return must(OpenRelation(db, openItems(db), openOwners(db)))
}

func TestRelationInsert(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		assert.Equal(t, "items/owners", rel.Name())
		assert.Equal(t, "relation:items/owners", rel.String())
		assert.Same(t, rel, openItemOwners(db))

		err := rel.Insert(ik(1, 1), item{Name: "tent"}, ownerKey(1))
		assert.ErrorIs(t, err, ErrForeignKeyConstraint)
		assert.Nil(t, must(rel.Local().reg.Get(ik(1, 1).AsKey())), "no value written")
		assert.Nil(t, must(rel.Index().reg.Get(ik(1, 1).AsKey())), "no index entry written")

		require.NoError(t, rel.Foreign().Insert(ownerKey(1), owner{Name: "ann"}))
		require.NoError(t, rel.Insert(ik(1, 1), item{Name: "tent"}, ownerKey(1)))

		v, found, err := rel.Get(ik(1, 1))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "tent", v.Name)

		fk, found, err := rel.GetForeign(ik(1, 1))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, ownerKey(1), fk)
		assert.True(t, must(rel.ContainsKey(ik(1, 1))))
	})
}

func TestRelationEncodeFailureWritesNothing(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		bad := must(OpenCollection[itemKey, badValue](db, "bad"))
		rel := must(OpenRelation(db, bad, openOwners(db)))
		require.NoError(t, rel.Foreign().Insert(ownerKey(1), owner{}))

		err := rel.Insert(ik(1, 1), badValue{C: make(chan int)}, ownerKey(1))
		var encErr *EncodeError
		require.ErrorAs(t, err, &encErr)
		assert.Equal(t, 0, must(rel.Index().reg.Count()))
		assert.Equal(t, 0, must(bad.Count()))
	})
}

func TestRelationOrphansAreInvisible(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		owners := rel.Foreign()
		require.NoError(t, owners.Insert(ownerKey(1), owner{}))
		require.NoError(t, rel.Insert(ik(1, 1), item{Name: "stove"}, ownerKey(1)))
		require.NoError(t, rel.Insert(ik(1, 2), item{Name: "pot"}, ownerKey(1)))

		_, _, err := owners.Remove(ownerKey(1))
		require.NoError(t, err)

		_, found, err := rel.Get(ik(1, 1))
		require.NoError(t, err)
		assert.False(t, found)
		assert.False(t, must(rel.ContainsKey(ik(1, 1))))
		_, found, _ = rel.GetForeign(ik(1, 1))
		assert.False(t, found)
		p := must(rel.Keys(ownerKey(1), 0, 10, false))
		assert.Empty(t, p.Items)

		_, found, err = rel.Local().Get(ik(1, 1))
		require.NoError(t, err)
		assert.True(t, found, "the value itself is still stored")

		require.NoError(t, owners.Insert(ownerKey(1), owner{}))
		p = must(rel.Keys(ownerKey(1), 0, 10, false))
		assert.Equal(t, []uint32{1, 2}, itemKeys(p))
	})
}

func TestRelationLinkUnlink(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		require.NoError(t, rel.Foreign().Insert(ownerKey(1), owner{}))
		require.NoError(t, rel.Foreign().Insert(ownerKey(2), owner{}))
		require.NoError(t, rel.Insert(ik(1, 1), item{}, ownerKey(1)))

		assert.True(t, must(rel.Unlink(ik(1, 1))))
		assert.False(t, must(rel.ContainsKey(ik(1, 1))))
		assert.True(t, must(rel.Local().ContainsKey(ik(1, 1))))

		assert.ErrorIs(t, rel.Link(ik(1, 1), ownerKey(3)), ErrForeignKeyConstraint)
		assert.False(t, must(rel.ContainsKey(ik(1, 1))))

		require.NoError(t, rel.Link(ik(1, 1), ownerKey(2)))
		assert.True(t, must(rel.ContainsKey(ik(1, 1))))
		p := must(rel.Join(ownerKey(2), 0, 10, false))
		assert.Empty(t, p.Items, "joins are scoped to the owner prefix of the key")
	})
}

func TestRelationTakeAll(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		require.NoError(t, rel.Foreign().Insert(ownerKey(1), owner{}))
		for n := uint32(1); n <= 4; n++ {
			require.NoError(t, rel.Insert(ik(1, n), item{}, ownerKey(1)))
		}

		p := must(rel.Keys(ownerKey(1), 1, math.MaxInt, false))
		assert.Equal(t, []uint32{2, 3, 4}, itemKeys(p))
		assert.Equal(t, 4, p.Total)
		assert.False(t, p.HasNext())

		p = must(rel.Join(ownerKey(1), 3, math.MaxInt, true))
		assert.Equal(t, []uint32{1}, itemKeys(p))

		p = must(rel.JoinWithin(nil, ownerKey(1), 0, 2, false))
		assert.Equal(t, []uint32{1, 2}, itemKeys(p))
	})
}

func TestRelationRemove(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		require.NoError(t, rel.Foreign().Insert(ownerKey(1), owner{}))
		require.NoError(t, rel.Insert(ik(1, 1), item{Name: "lamp"}, ownerKey(1)))
		_, _, err := rel.Foreign().Remove(ownerKey(1))
		require.NoError(t, err)

		prev, found, err := rel.Remove(ik(1, 1))
		require.NoError(t, err)
		assert.True(t, found, "invisible entries are removed too")
		assert.Equal(t, "lamp", prev.Name)
		assert.Equal(t, 0, must(rel.Local().Count()))
		assert.Equal(t, 0, must(rel.Index().reg.Count()))

		_, found, err = rel.Remove(ik(1, 1))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRelationPurgeOrphans(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		rel := openItemOwners(db)
		owners := rel.Foreign()
		for o := uint32(1); o <= 2; o++ {
			require.NoError(t, owners.Insert(ownerKey(o), owner{}))
			for n := uint32(1); n <= 3; n++ {
				require.NoError(t, rel.Insert(ik(o, n), item{}, ownerKey(o)))
			}
		}
		require.NoError(t, rel.Local().Insert(ik(2, 9), item{}))
		_, _, err := owners.Remove(ownerKey(1))
		require.NoError(t, err)

		assert.Equal(t, 4, must(rel.PurgeOrphans()))
		assert.Equal(t, 3, must(rel.Local().Count()))
		assert.Equal(t, 3, must(rel.Index().reg.Count()))
		p := must(rel.Keys(ownerKey(2), 0, 10, false))
		assert.Equal(t, []uint32{1, 2, 3}, itemKeys(p))

		assert.Equal(t, 0, must(rel.PurgeOrphans()))
	})
}

type archived struct {
	region string
	key    []byte
}

type recordingArchiver struct {
	entries []archived
	fail    error
}

func (a *recordingArchiver) Archive(region string, key, value []byte) error {
	if a.fail != nil {
		return a.fail
	}
	a.entries = append(a.entries, archived{region, key})
	return nil
}

func TestPurgeArchivesEntries(t *testing.T) {
	arch := &recordingArchiver{}
	db := setupWith(t, nil, Options{Backend: MemoryBackend, Archiver: arch})
	rel := openItemOwners(db)
	owners := rel.Foreign()
	require.NoError(t, owners.Insert(ownerKey(1), owner{}))
	require.NoError(t, rel.Insert(ik(1, 1), item{}, ownerKey(1)))
	require.NoError(t, rel.Local().Insert(ik(1, 2), item{}))
	_, _, err := owners.Remove(ownerKey(1))
	require.NoError(t, err)

	assert.Equal(t, 2, must(rel.PurgeOrphans()))
	assert.Equal(t, []archived{
		{"items/owners", ik(1, 1).AsKey()},
		{"items", ik(1, 1).AsKey()},
		{"items", ik(1, 2).AsKey()},
	}, arch.entries)
}

func TestPurgeStopsWhenArchiveFails(t *testing.T) {
	arch := &recordingArchiver{fail: assert.AnError}
	db := setupWith(t, nil, Options{Backend: MemoryBackend, Archiver: arch})
	idx := openItemBins(db)
	linkItems(t, idx, 2)
	_, _, err := idx.Foreign().Remove(ik(1, 100))
	require.NoError(t, err)

	n, err := idx.PurgeStale()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, must(idx.reg.Count()), "nothing deleted")
}
