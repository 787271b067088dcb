package fitdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStore matches every *StoreError via errors.Is.
	ErrStore = errors.New("store failure")

	// ErrNotFound reports that a lookup found no live entry.
	ErrNotFound = errors.New("not found")

	// ErrForeignKeyConstraint reports an insert, link or traversal that
	// referenced a foreign key which does not currently resolve.
	ErrForeignKeyConstraint = errors.New("foreign key constraint")

	// ErrUndeclared reports a resource or edge that is not part of the schema
	// the database was opened with.
	ErrUndeclared = errors.New("not declared in schema")

	// ErrTypeMismatch reports a region reopened with different key or value types.
	ErrTypeMismatch = errors.New("region reopened with different types")

	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database closed")
)

// StoreError wraps failures of the underlying ordered store (I/O, corruption).
type StoreError struct {
	Op     string
	Region string
	Err    error
}

func storeErr(op, region string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Region: region, Err: err}
}

func (e *StoreError) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("fitdb: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("fitdb: %s %s: %v", e.Op, e.Region, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// EncodeError is returned when a value cannot be serialized. Nothing is
// written to the store when it occurs.
type EncodeError struct {
	Value any
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("fitdb: encoding %T: %v", e.Value, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DataError describes malformed stored bytes: a key that does not decode,
// a value with a bad header, or a payload the codec rejects.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

// NewDataError builds a *DataError. Key types use it to report malformed
// input from FromBytes.
func NewDataError(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// CollectionError attaches the collection (and index, if any) and the raw key
// to an error raised while operating on it.
type CollectionError struct {
	Collection string
	Index      string
	Key        []byte
	Msg        string
	Err        error
}

func collErrf(coll, idx string, key []byte, err error, format string, args ...any) error {
	return &CollectionError{coll, idx, key, fmt.Sprintf(format, args...), err}
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

func (e *CollectionError) Error() string {
	var buf strings.Builder
	if e.Index != "" {
		buf.WriteString(e.Index)
	} else {
		buf.WriteString(e.Collection)
	}
	if e.Key != nil {
		buf.WriteByte('[')
		buf.WriteString(hexstr(e.Key))
		buf.WriteByte(']')
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
		if e.Err != nil {
			buf.WriteString(": ")
			buf.WriteString(e.Err.Error())
		}
	} else if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
