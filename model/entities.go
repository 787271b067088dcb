package model

type User struct {
	Name         string    `msgpack:"n"`
	Email        string    `msgpack:"e"`
	PasswordHash []byte    `msgpack:"pw,omitempty"`
	Created      Timestamp `msgpack:"c"`
}

type Gear struct {
	Name     string    `msgpack:"n"`
	Kind     string    `msgpack:"k"`
	Distance float64   `msgpack:"d,omitempty"`
	Retired  bool      `msgpack:"r,omitempty"`
	Created  Timestamp `msgpack:"c"`
}

// Session is the summary of an activity.
type Session struct {
	Sport        string    `msgpack:"s"`
	Start        Timestamp `msgpack:"t"`
	Duration     int64     `msgpack:"dur"`
	Distance     float64   `msgpack:"d"`
	Calories     int       `msgpack:"cal,omitempty"`
	AvgHeartRate int       `msgpack:"hr,omitempty"`
	MaxHeartRate int       `msgpack:"mhr,omitempty"`
	Ascent       float64   `msgpack:"asc,omitempty"`
}

// Record is a single sample of an activity. Offset is milliseconds since the
// start of the activity.
type Record struct {
	Offset    int64   `msgpack:"o"`
	Lat       float64 `msgpack:"la,omitempty"`
	Lon       float64 `msgpack:"lo,omitempty"`
	Altitude  float64 `msgpack:"a,omitempty"`
	HeartRate int     `msgpack:"hr,omitempty"`
	Cadence   int     `msgpack:"cad,omitempty"`
	Power     int     `msgpack:"p,omitempty"`
	Speed     float64 `msgpack:"v,omitempty"`
}

type Records struct {
	Items []Record `msgpack:"r"`
}

type Lap struct {
	Start    Timestamp `msgpack:"t"`
	Duration int64     `msgpack:"dur"`
	Distance float64   `msgpack:"d"`
}

type Laps struct {
	Items []Lap `msgpack:"l"`
}

// Client is an OAuth client registered by a user. The secret is stored as
// an opaque hash.
type Client struct {
	Name         string    `msgpack:"n"`
	SecretHash   []byte    `msgpack:"s"`
	RedirectURIs []string  `msgpack:"u"`
	Created      Timestamp `msgpack:"c"`
}

// Activity bundles the facets stored for one activity.
type Activity struct {
	Key     ActivityKey
	Session Session
	Records Records
	Laps    Laps
}
