package fitdb

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpRegionHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpKeys
	DumpValues

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of every region to w. Values are
// decoded generically, so Dump works without knowing the value types.
func (db *DB) Dump(w io.Writer, f DumpFlags) error {
	if db.closed.Load() {
		return ErrClosed
	}
	for _, name := range db.regionNames() {
		if err := db.dumpRegion(w, f, name); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) dumpRegion(w io.Writer, f DumpFlags, name string) error {
	reg, err := db.st.Region(name)
	if err != nil {
		return err
	}
	s, err := reg.Stats()
	if err != nil {
		return err
	}
	if f.Contains(DumpRegionHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%s (%d keys)\n", name, s.Keys)
	}
	if f.Contains(DumpStats) {
		fmt.Fprintf(w, "%s.stats: size = %d, alloc = %d\n", name, s.Size, s.Alloc)
	}
	if !f.Contains(DumpKeys) {
		return nil
	}
	if f.Contains(DumpRegionHeaders) || f.Contains(DumpStats) {
		fmt.Fprintln(w, dumpSep2)
	}
	isEdge := strings.Contains(name, "/")
	var pos int
	return reg.Scan(RawOO(), func(k, v []byte) bool {
		pos++
		switch {
		case !f.Contains(DumpValues):
			fmt.Fprintf(w, "%s#%d: %x\n", name, pos, k)
		case isEdge:
			fmt.Fprintf(w, "%s#%d: %x => %x\n", name, pos, k, v)
		default:
			fmt.Fprintf(w, "%s#%d: %x => %s\n", name, pos, k, db.loggableValue(v))
		}
		return true
	})
}

func (db *DB) loggableValue(raw []byte) string {
	var v any
	if err := db.codec.unmarshal(raw, &v); err != nil {
		return fmt.Sprintf("<invalid: %v>", err)
	}
	b, err := json.Marshal(jsonable(v))
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// jsonable converts the map[any]any values msgpack may produce into
// map[string]any so they can be rendered as JSON.
func jsonable(v any) any {
	switch v := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[fmt.Sprint(k)] = jsonable(e)
		}
		return m
	case map[string]any:
		for k, e := range v {
			v[k] = jsonable(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = jsonable(e)
		}
		return v
	default:
		return v
	}
}
