package model

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fitkeep/fitdb"
)

// Store is the storage API used by the web, GraphQL and auth layers.
type Store struct {
	db     *fitdb.DB
	logger *zap.Logger

	users       *fitdb.Root[UserKey, User]
	sessionsAll *fitdb.Root[ActivityKey, Session]
	gear        *fitdb.RelationRoot[GearKey, Gear, UserKey, User]
	sessions    *fitdb.RelationRoot[ActivityKey, Session, UserKey, User]
	clients     *fitdb.RelationRoot[ClientKey, Client, UserKey, User]
	records     *fitdb.RelationRoot[ActivityKey, Records, ActivityKey, Session]
	laps        *fitdb.RelationRoot[ActivityKey, Laps, ActivityKey, Session]
	sessionGear *fitdb.IndexRoot[ActivityKey, Session, GearKey, Gear]
}

func Open(path string, opt fitdb.Options) (*Store, error) {
	db, err := fitdb.Open(path, Schema, opt)
	if err != nil {
		return nil, err
	}
	s, err := newStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db *fitdb.DB) (*Store, error) {
	s := &Store{db: db, logger: db.Logger().Named("store")}
	var err error
	if s.users, err = fitdb.OpenRoot(db, Users); err != nil {
		return nil, err
	}
	if s.sessionsAll, err = fitdb.OpenRoot(db, Sessions); err != nil {
		return nil, err
	}
	if s.gear, err = fitdb.Traverse(s.users, GearOwner); err != nil {
		return nil, err
	}
	if s.sessions, err = fitdb.Traverse(s.users, ActivityOwner); err != nil {
		return nil, err
	}
	if s.clients, err = fitdb.Traverse(s.users, ClientOwner); err != nil {
		return nil, err
	}
	if s.records, err = fitdb.Traverse(s.sessionsAll, ActivityRecords); err != nil {
		return nil, err
	}
	if s.laps, err = fitdb.Traverse(s.sessionsAll, ActivityLaps); err != nil {
		return nil, err
	}
	if s.sessionGear, err = fitdb.TraverseIndex(s.sessionsAll, ActivityGear); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *fitdb.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Compact() error { return s.db.Compact() }

func (s *Store) Stats() ([]fitdb.RegionStats, error) { return s.db.Stats() }

func (s *Store) Dump(w io.Writer, f fitdb.DumpFlags) error { return s.db.Dump(w, f) }

func notFound(what string, key fmt.Stringer) error {
	return fmt.Errorf("%s %v: %w", what, key, fitdb.ErrNotFound)
}

// Users

func (s *Store) CreateUser(u User) (UserKey, error) {
	key := NewUserKey()
	return key, s.users.Insert(key, u)
}

func (s *Store) PutUser(key UserKey, u User) error {
	return s.users.Insert(key, u)
}

func (s *Store) User(key UserKey) (User, error) {
	u, found, err := s.users.Get(key)
	if err == nil && !found {
		err = notFound("user", key)
	}
	return u, err
}

func (s *Store) Users(skip, take int) (fitdb.Page[UserKey], error) {
	return s.users.Iter(skip, take, false)
}

// DeleteUser removes the user only. Everything the user owned becomes
// invisible and stays in the store until PurgeOrphans.
func (s *Store) DeleteUser(key UserKey) error {
	_, found, err := s.users.Remove(key)
	if err == nil && !found {
		err = notFound("user", key)
	}
	return err
}

// Gear

func (s *Store) AddGear(user UserKey, g Gear) (GearKey, error) {
	key := NewGearKey(user)
	return key, s.PutGear(key, g)
}

func (s *Store) PutGear(key GearKey, g Gear) error {
	return s.gear.Insert(key, g, key.Owner())
}

func (s *Store) Gear(key GearKey) (Gear, error) {
	g, found, err := s.gear.Get(key)
	if err == nil && !found {
		err = notFound("gear", key)
	}
	return g, err
}

func (s *Store) UserGear(user UserKey, skip, take int) (fitdb.Page[GearKey], error) {
	return s.gear.Keys(user, skip, take, false)
}

func (s *Store) RemoveGear(key GearKey) error {
	_, found, err := s.gear.Remove(key)
	if err == nil && !found {
		err = notFound("gear", key)
	}
	return err
}

// Activities

// ImportActivity stores the session, records and laps of an activity owned by
// user. An existing activity with the same start time is overwritten.
func (s *Store) ImportActivity(user UserKey, a Activity) (ActivityKey, error) {
	key := ActivityKey{User: user.ID, Start: a.Session.Start}
	if err := s.sessions.Insert(key, a.Session, user); err != nil {
		return key, err
	}
	if err := s.records.Insert(key, a.Records, key); err != nil {
		return key, err
	}
	if err := s.laps.Insert(key, a.Laps, key); err != nil {
		return key, err
	}
	s.logger.Debug("imported activity", zap.Stringer("key", key), zap.Int("records", len(a.Records.Items)), zap.Int("laps", len(a.Laps.Items)))
	return key, nil
}

func (s *Store) Session(key ActivityKey) (Session, error) {
	sess, found, err := s.sessions.Get(key)
	if err == nil && !found {
		err = notFound("activity", key)
	}
	return sess, err
}

// Activity loads every facet of an activity. A missing records or laps facet
// is reported as ErrNotFound.
func (s *Store) Activity(key ActivityKey) (Activity, error) {
	a := Activity{Key: key}
	var err error
	if a.Session, err = s.Session(key); err != nil {
		return a, err
	}
	records, err := fitdb.TraverseAt(s.sessions, key, ActivityRecords)
	if err != nil {
		return a, err
	}
	var found bool
	if a.Records, found, err = records.Get(key); err != nil {
		return a, err
	} else if !found {
		return a, notFound("records", key)
	}
	laps, err := fitdb.TraverseAt(s.sessions, key, ActivityLaps)
	if err != nil {
		return a, err
	}
	if a.Laps, found, err = laps.Get(key); err != nil {
		return a, err
	} else if !found {
		return a, notFound("laps", key)
	}
	return a, nil
}

// Activities lists activities of user, oldest first unless newestFirst.
func (s *Store) Activities(user UserKey, skip, take int, newestFirst bool) (fitdb.Page[ActivityKey], error) {
	return s.sessions.Keys(user, skip, take, newestFirst)
}

func (s *Store) PrevActivity(key ActivityKey) (ActivityKey, bool, error) {
	return s.sessions.Local().Prev(key)
}

func (s *Store) NextActivity(key ActivityKey) (ActivityKey, bool, error) {
	return s.sessions.Local().Next(key)
}

func (s *Store) RemoveActivity(key ActivityKey) error {
	if _, err := s.sessionGear.Remove(key); err != nil {
		return err
	}
	if _, _, err := s.records.Remove(key); err != nil {
		return err
	}
	if _, _, err := s.laps.Remove(key); err != nil {
		return err
	}
	_, found, err := s.sessions.Remove(key)
	if err == nil && !found {
		err = notFound("activity", key)
	}
	return err
}

// AssignGear links an activity to a piece of gear of the same user.
func (s *Store) AssignGear(act ActivityKey, gear GearKey) error {
	if gear.User != act.User {
		return fmt.Errorf("gear %v does not belong to the owner of activity %v: %w", gear, act, fitdb.ErrForeignKeyConstraint)
	}
	idx, err := fitdb.TraverseIndexAt(s.sessions, act, ActivityGear)
	if err != nil {
		return err
	}
	return idx.Insert(act, gear)
}

func (s *Store) UnassignGear(act ActivityKey) (bool, error) {
	return s.sessionGear.Remove(act)
}

func (s *Store) ActivityGear(act ActivityKey) (GearKey, bool, error) {
	return s.sessionGear.Key(act)
}

// GearActivities lists the activities linked to gear.
func (s *Store) GearActivities(gear GearKey, skip, take int, newestFirst bool) (fitdb.Page[ActivityKey], error) {
	return s.sessionGear.Join(gear, skip, take, newestFirst)
}

// Clients

func (s *Store) RegisterClient(user UserKey, c Client) (ClientKey, error) {
	key := NewClientKey(user)
	return key, s.PutClient(key, c)
}

func (s *Store) PutClient(key ClientKey, c Client) error {
	return s.clients.Insert(key, c, key.Owner())
}

func (s *Store) Client(key ClientKey) (Client, error) {
	c, found, err := s.clients.Get(key)
	if err == nil && !found {
		err = notFound("client", key)
	}
	return c, err
}

func (s *Store) UserClients(user UserKey, skip, take int) (fitdb.Page[ClientKey], error) {
	return s.clients.Keys(user, skip, take, false)
}

func (s *Store) RemoveClient(key ClientKey) error {
	_, found, err := s.clients.Remove(key)
	if err == nil && !found {
		err = notFound("client", key)
	}
	return err
}

// Maintenance

type PurgeReport struct {
	Gear      int
	Sessions  int
	Clients   int
	Records   int
	Laps      int
	GearLinks int
}

func (r PurgeReport) Total() int {
	return r.Gear + r.Sessions + r.Clients + r.Records + r.Laps + r.GearLinks
}

// PurgeOrphans deletes everything that became invisible after its owner was
// removed. Entries owned by users go first; the facets of activities and the
// gear links go second, since they depend on the sessions purged in the first
// phase.
func (s *Store) PurgeOrphans(ctx context.Context) (PurgeReport, error) {
	var r PurgeReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		r.Gear, err = s.gear.PurgeOrphans()
		return err
	})
	g.Go(func() (err error) {
		r.Sessions, err = s.sessions.PurgeOrphans()
		return err
	})
	g.Go(func() (err error) {
		r.Clients, err = s.clients.PurgeOrphans()
		return err
	})
	if err := g.Wait(); err != nil {
		return r, err
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if err := gctx.Err(); err != nil {
			return err
		}
		r.Records, err = s.records.PurgeOrphans()
		return err
	})
	g.Go(func() (err error) {
		r.Laps, err = s.laps.PurgeOrphans()
		return err
	})
	g.Go(func() error {
		detached, err := fitdb.PurgeDetached(s.sessionGear.Index, s.sessionsAll.Collection)
		if err != nil {
			return err
		}
		stale, err := s.sessionGear.PurgeStale()
		r.GearLinks = detached + stale
		return err
	})
	if err := g.Wait(); err != nil {
		return r, err
	}
	s.logger.Info("purged orphans", zap.Int("total", r.Total()))
	return r, nil
}
