package model

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitkeep/fitdb"
)

const (
	idLen          = len(uuid.UUID{})
	userKeyLen     = idLen
	ownedKeyLen    = idLen + idLen
	activityKeyLen = idLen + 8
)

// Timestamp is a point in time with millisecond precision, stored as Unix
// milliseconds.
type Timestamp int64

func TimestampOf(t time.Time) Timestamp { return Timestamp(t.UnixMilli()) }

func (ts Timestamp) Time() time.Time { return time.UnixMilli(int64(ts)).UTC() }

func (ts Timestamp) String() string { return ts.Time().Format(time.RFC3339Nano) }

// sortable maps ts onto uint64 preserving order, negative values included.
func (ts Timestamp) sortable() uint64 { return uint64(ts) ^ (1 << 63) }

func timestampFromSortable(v uint64) Timestamp { return Timestamp(v ^ (1 << 63)) }

// UserKey identifies a user. Users own every other resource, so a UserKey is
// also the prefix of all keys owned by that user.
type UserKey struct {
	ID uuid.UUID
}

func NewUserKey() UserKey { return UserKey{ID: uuid.New()} }

func (k UserKey) AsKey() []byte    { return k.ID[:] }
func (k UserKey) AsPrefix() []byte { return k.ID[:] }
func (k UserKey) String() string   { return k.ID.String() }

func (UserKey) FromBytes(raw []byte) (UserKey, error) {
	if len(raw) != userKeyLen {
		return UserKey{}, fitdb.NewDataError(raw, 0, nil, "user key: expected %d bytes, got %d", userKeyLen, len(raw))
	}
	var k UserKey
	copy(k.ID[:], raw)
	return k, nil
}

func appendOwned(owner, id uuid.UUID) []byte {
	buf := make([]byte, 0, ownedKeyLen)
	buf = append(buf, owner[:]...)
	return append(buf, id[:]...)
}

func parseOwned(what string, raw []byte) (owner, id uuid.UUID, err error) {
	if len(raw) != ownedKeyLen {
		return owner, id, fitdb.NewDataError(raw, 0, nil, "%s key: expected %d bytes, got %d", what, ownedKeyLen, len(raw))
	}
	copy(owner[:], raw[:idLen])
	copy(id[:], raw[idLen:])
	return owner, id, nil
}

// GearKey identifies a piece of gear of a user.
type GearKey struct {
	User uuid.UUID
	ID   uuid.UUID
}

func NewGearKey(user UserKey) GearKey { return GearKey{User: user.ID, ID: uuid.New()} }

func (k GearKey) Owner() UserKey   { return UserKey{ID: k.User} }
func (k GearKey) AsKey() []byte    { return appendOwned(k.User, k.ID) }
func (k GearKey) AsPrefix() []byte { return k.User[:] }
func (k GearKey) String() string   { return k.User.String() + "/" + k.ID.String() }

func (GearKey) FromBytes(raw []byte) (GearKey, error) {
	user, id, err := parseOwned("gear", raw)
	return GearKey{User: user, ID: id}, err
}

// ClientKey identifies an OAuth client registered by a user.
type ClientKey struct {
	User uuid.UUID
	ID   uuid.UUID
}

func NewClientKey(user UserKey) ClientKey { return ClientKey{User: user.ID, ID: uuid.New()} }

func (k ClientKey) Owner() UserKey   { return UserKey{ID: k.User} }
func (k ClientKey) AsKey() []byte    { return appendOwned(k.User, k.ID) }
func (k ClientKey) AsPrefix() []byte { return k.User[:] }
func (k ClientKey) String() string   { return k.User.String() + "/" + k.ID.String() }

func (ClientKey) FromBytes(raw []byte) (ClientKey, error) {
	user, id, err := parseOwned("client", raw)
	return ClientKey{User: user, ID: id}, err
}

// ActivityKey identifies an activity of a user by its start time. The session,
// records and laps of one activity share the key. Keys of one user sort
// chronologically.
type ActivityKey struct {
	User  uuid.UUID
	Start Timestamp
}

func (k ActivityKey) Owner() UserKey { return UserKey{ID: k.User} }

func (k ActivityKey) AsKey() []byte {
	buf := make([]byte, 0, activityKeyLen)
	buf = append(buf, k.User[:]...)
	return binary.BigEndian.AppendUint64(buf, k.Start.sortable())
}

func (k ActivityKey) AsPrefix() []byte { return k.User[:] }

func (k ActivityKey) String() string {
	return fmt.Sprintf("%s@%d", k.User, int64(k.Start))
}

func (ActivityKey) FromBytes(raw []byte) (ActivityKey, error) {
	if len(raw) != activityKeyLen {
		return ActivityKey{}, fitdb.NewDataError(raw, 0, nil, "activity key: expected %d bytes, got %d", activityKeyLen, len(raw))
	}
	var k ActivityKey
	copy(k.User[:], raw[:idLen])
	k.Start = timestampFromSortable(binary.BigEndian.Uint64(raw[idLen:]))
	return k, nil
}
