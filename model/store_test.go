package model

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fitkeep/fitdb"
)

var baseTime = time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)

func setup(t *testing.T, backend fitdb.Backend) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "fit.db"), fitdb.Options{
		Backend:   backend,
		IsTesting: true,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func eachBackend(t *testing.T, f func(t *testing.T, s *Store)) {
	for _, b := range []fitdb.Backend{fitdb.BoltBackend, fitdb.LevelDBBackend, fitdb.MemoryBackend} {
		t.Run(b.String(), func(t *testing.T) {
			f(t, setup(t, b))
		})
	}
}

func activityAt(day int) Activity {
	start := TimestampOf(baseTime.AddDate(0, 0, day))
	return Activity{
		Session: Session{Sport: "running", Start: start, Duration: 1800000, Distance: 5000},
		Records: Records{Items: []Record{{Offset: 0, HeartRate: 110}, {Offset: 1000, HeartRate: 120}}},
		Laps:    Laps{Items: []Lap{{Start: start, Duration: 1800000, Distance: 5000}}},
	}
}

func importActivities(t *testing.T, s *Store, user UserKey, n int) []ActivityKey {
	t.Helper()
	var keys []ActivityKey
	for i := 0; i < n; i++ {
		k, err := s.ImportActivity(user, activityAt(i))
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys
}

func TestGearRequiresOwner(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		_, err := s.CreateUser(User{Name: "u1"})
		require.NoError(t, err)

		u2 := NewUserKey()
		_, err = s.AddGear(u2, Gear{Name: "shoes"})
		assert.ErrorIs(t, err, fitdb.ErrForeignKeyConstraint)
		assert.Equal(t, 0, count(t, s.gear.Local()))
	})
}

func TestGearDisappearsWithOwner(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, err := s.CreateUser(User{Name: "u1"})
		require.NoError(t, err)
		g1, err := s.AddGear(u1, Gear{Name: "bike", Kind: "bike"})
		require.NoError(t, err)

		g, err := s.Gear(g1)
		require.NoError(t, err)
		assert.Equal(t, "bike", g.Name)

		require.NoError(t, s.DeleteUser(u1))
		_, err = s.Gear(g1)
		assert.ErrorIs(t, err, fitdb.ErrNotFound)
		assert.ErrorIs(t, s.DeleteUser(u1), fitdb.ErrNotFound)
	})
}

func TestActivitiesPagination(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, err := s.CreateUser(User{Name: "u1"})
		require.NoError(t, err)
		u2, err := s.CreateUser(User{Name: "u2"})
		require.NoError(t, err)
		keys := importActivities(t, s, u1, 15)
		importActivities(t, s, u2, 3)

		p, err := s.Activities(u1, 10, 10, false)
		require.NoError(t, err)
		assert.Equal(t, keys[10:], p.Items)
		assert.Equal(t, 15, p.Total)
		assert.False(t, p.HasNext())
		assert.True(t, p.HasPrev())

		p, err = s.Activities(u1, 0, 3, true)
		require.NoError(t, err)
		assert.Equal(t, []ActivityKey{keys[14], keys[13], keys[12]}, p.Items)
		assert.True(t, p.HasNext())

		for i := 1; i < len(keys); i++ {
			assert.True(t, keys[i-1].Start < keys[i].Start)
		}
	})
}

func TestActivityNeighbors(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		u2, _ := s.CreateUser(User{})
		keys := importActivities(t, s, u1, 3)
		importActivities(t, s, u2, 3)

		prev, found, err := s.PrevActivity(keys[1])
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, keys[0], prev)

		next, found, err := s.NextActivity(keys[1])
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, keys[2], next)

		_, found, _ = s.NextActivity(keys[2])
		assert.False(t, found)
		_, found, _ = s.PrevActivity(keys[0])
		assert.False(t, found)
	})
}

func TestActivityFacets(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		key, err := s.ImportActivity(u1, activityAt(0))
		require.NoError(t, err)

		a, err := s.Activity(key)
		require.NoError(t, err)
		assert.Equal(t, key, a.Key)
		assert.Equal(t, activityAt(0).Session, a.Session)
		assert.Len(t, a.Records.Items, 2)
		assert.Len(t, a.Laps.Items, 1)

		require.NoError(t, s.RemoveActivity(key))
		_, err = s.Activity(key)
		assert.ErrorIs(t, err, fitdb.ErrNotFound)
		assert.ErrorIs(t, s.RemoveActivity(key), fitdb.ErrNotFound)
		assert.Equal(t, 0, count(t, s.records.Local()))
	})
}

func TestActivityMissingFacet(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		keys := importActivities(t, s, u1, 2)

		_, _, err := s.records.Local().Remove(keys[0])
		require.NoError(t, err)
		_, err = s.Activity(keys[0])
		assert.ErrorIs(t, err, fitdb.ErrNotFound)
		assert.ErrorContains(t, err, "records")

		_, _, err = s.laps.Local().Remove(keys[1])
		require.NoError(t, err)
		_, err = s.Activity(keys[1])
		assert.ErrorIs(t, err, fitdb.ErrNotFound)
		assert.ErrorContains(t, err, "laps")
	})
}

func TestImportActivityForUnknownUser(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		_, err := s.ImportActivity(NewUserKey(), activityAt(0))
		assert.ErrorIs(t, err, fitdb.ErrForeignKeyConstraint)
	})
}

func TestAssignGear(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		u2, _ := s.CreateUser(User{})
		shoes, err := s.AddGear(u1, Gear{Name: "shoes"})
		require.NoError(t, err)
		other, err := s.AddGear(u2, Gear{Name: "other"})
		require.NoError(t, err)
		keys := importActivities(t, s, u1, 4)

		require.NoError(t, s.AssignGear(keys[0], shoes))
		require.NoError(t, s.AssignGear(keys[2], shoes))
		assert.ErrorIs(t, s.AssignGear(keys[1], other), fitdb.ErrForeignKeyConstraint)
		assert.ErrorIs(t, s.AssignGear(ActivityKey{User: u1.ID, Start: 1}, shoes), fitdb.ErrForeignKeyConstraint)

		g, found, err := s.ActivityGear(keys[0])
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, shoes, g)

		p, err := s.GearActivities(shoes, 0, 10, true)
		require.NoError(t, err)
		assert.Equal(t, []ActivityKey{keys[2], keys[0]}, p.Items)

		unlinked, err := s.UnassignGear(keys[2])
		require.NoError(t, err)
		assert.True(t, unlinked)

		require.NoError(t, s.RemoveGear(shoes))
		_, found, err = s.ActivityGear(keys[0])
		require.NoError(t, err)
		assert.False(t, found, "links to removed gear read as absent")
	})
}

func TestClients(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		c1, err := s.RegisterClient(u1, Client{Name: "watch", RedirectURIs: []string{"https://example.com/cb"}})
		require.NoError(t, err)
		_, err = s.RegisterClient(u1, Client{Name: "phone"})
		require.NoError(t, err)

		c, err := s.Client(c1)
		require.NoError(t, err)
		assert.Equal(t, "watch", c.Name)
		assert.Equal(t, []string{"https://example.com/cb"}, c.RedirectURIs)

		p, err := s.UserClients(u1, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Total)

		require.NoError(t, s.RemoveClient(c1))
		assert.ErrorIs(t, s.RemoveClient(c1), fitdb.ErrNotFound)
	})
}

func TestUsers(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		created := TimestampOf(baseTime)
		u1, err := s.CreateUser(User{Name: "ann", Email: "ann@example.com", Created: created})
		require.NoError(t, err)
		require.NoError(t, s.PutUser(u1, User{Name: "ann b", Email: "ann@example.com", Created: created}))

		u, err := s.User(u1)
		require.NoError(t, err)
		assert.Equal(t, "ann b", u.Name)
		assert.Equal(t, created, u.Created)

		_, err = s.User(NewUserKey())
		assert.ErrorIs(t, err, fitdb.ErrNotFound)

		p, err := s.Users(0, 10)
		require.NoError(t, err)
		assert.Equal(t, []UserKey{u1}, p.Items)
	})
}

func TestPurgeOrphans(t *testing.T) {
	eachBackend(t, func(t *testing.T, s *Store) {
		u1, _ := s.CreateUser(User{})
		u2, _ := s.CreateUser(User{})
		for _, u := range []UserKey{u1, u2} {
			g, err := s.AddGear(u, Gear{})
			require.NoError(t, err)
			_, err = s.RegisterClient(u, Client{})
			require.NoError(t, err)
			keys := importActivities(t, s, u, 3)
			require.NoError(t, s.AssignGear(keys[1], g))
		}
		require.NoError(t, s.DeleteUser(u1))

		r, err := s.PurgeOrphans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, PurgeReport{Gear: 1, Sessions: 3, Clients: 1, Records: 3, Laps: 3, GearLinks: 1}, r)
		assert.Equal(t, 12, r.Total())

		r, err = s.PurgeOrphans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, r.Total())

		p, err := s.Activities(u2, 0, 10, false)
		require.NoError(t, err)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, 3, count(t, s.records.Local()))
	})
}

func TestPurgeOrphansCanceled(t *testing.T) {
	s := setup(t, fitdb.MemoryBackend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.PurgeOrphans(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func count[K fitdb.Key[K], V any](t *testing.T, c *fitdb.Collection[K, V]) int {
	t.Helper()
	n, err := c.Count()
	require.NoError(t, err)
	return n
}
