package fitdb

import (
	"slices"
	"strings"
)

type RegionStats struct {
	Name  string
	Keys  int
	Size  int64
	Alloc int64
}

// regionNames returns the regions declared in the schema plus any opened
// directly, sorted by name.
func (db *DB) regionNames() []string {
	names := db.schema.regionNames()
	db.openedLock.Lock()
	for id := range db.opened {
		if kind, name, ok := strings.Cut(id, ":"); ok && kind != "r" {
			names = append(names, name)
		}
	}
	db.openedLock.Unlock()
	slices.Sort(names)
	return slices.Compact(names)
}

// Stats returns per-region key counts and sizes as reported by the backend.
func (db *DB) Stats() ([]RegionStats, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	var result []RegionStats
	for _, name := range db.regionNames() {
		reg, err := db.st.Region(name)
		if err != nil {
			return nil, err
		}
		s, err := reg.Stats()
		if err != nil {
			return nil, err
		}
		result = append(result, RegionStats{Name: name, Keys: s.Keys, Size: s.Size, Alloc: s.Alloc})
	}
	return result, nil
}
