package fitdb

import (
	"bytes"
	"slices"
)

// chunkSize is the number of raw entries Index and Relation scans copy out of
// the store before validating them against the foreign collection.
const chunkSize = 256

// RawRange defines a range of byte strings. The constructors use mnemonics:
// O means open, I means inclusive, E means exclusive; the first letter is for
// the lower bound, the second for the upper bound.
type RawRange struct {
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func RawOO() RawRange            { return RawRange{} }
func RawIO(l []byte) RawRange    { return RawRange{Lower: l, LowerInc: true} }
func RawEO(l []byte) RawRange    { return RawRange{Lower: l, LowerInc: false} }
func RawOI(u []byte) RawRange    { return RawRange{Upper: u, UpperInc: true} }
func RawOE(u []byte) RawRange    { return RawRange{Upper: u, UpperInc: false} }
func RawII(l, u []byte) RawRange { return RawRange{Lower: l, Upper: u, LowerInc: true, UpperInc: true} }
func RawIE(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: true, UpperInc: false}
}
func RawEI(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: false, UpperInc: true}
}
func RawEE(l, u []byte) RawRange {
	return RawRange{Lower: l, Upper: u, LowerInc: false, UpperInc: false}
}

// RawPrefix covers every key starting with p. An empty or all-0xFF prefix
// leaves the range open above.
func RawPrefix(p []byte) RawRange {
	if len(p) == 0 {
		return RawOO()
	}
	if upper, ok := UpperBound(p); ok {
		return RawIE(p, upper)
	}
	return RawIO(p)
}

func (rang RawRange) Reversed() RawRange { rang.Reverse = true; return rang }

// after narrows the range to keys strictly beyond k in scan direction.
func (rang RawRange) after(k []byte) RawRange {
	k = slices.Clone(k)
	if rang.Reverse {
		rang.Upper, rang.UpperInc = k, false
	} else {
		rang.Lower, rang.LowerInc = k, false
	}
	return rang
}

func (rang RawRange) Contains(k []byte) bool {
	if rang.Lower != nil {
		cmp := bytes.Compare(k, rang.Lower)
		if cmp < 0 || (cmp == 0 && !rang.LowerInc) {
			return false
		}
	}
	if rang.Upper != nil {
		cmp := bytes.Compare(k, rang.Upper)
		if cmp > 0 || (cmp == 0 && !rang.UpperInc) {
			return false
		}
	}
	return true
}

func (rang *RawRange) start(c storageCursor) ([]byte, []byte) {
	var k, v []byte
	if rang.Reverse {
		if rang.Upper != nil {
			k, v = c.Seek(rang.Upper)
			switch {
			case k == nil:
				k, v = c.Last()
			case rang.UpperInc && bytes.Equal(k, rang.Upper):
			default:
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
	} else {
		if rang.Lower != nil {
			k, v = c.Seek(rang.Lower)
			if k != nil && !rang.LowerInc && bytes.Equal(k, rang.Lower) {
				k, v = c.Next()
			}
		} else {
			k, v = c.First()
		}
	}
	if k != nil && rang.Contains(k) {
		return k, v
	}
	return nil, nil
}

func (rang *RawRange) next(c storageCursor) ([]byte, []byte) {
	var k, v []byte
	if rang.Reverse {
		k, v = c.Prev()
	} else {
		k, v = c.Next()
	}
	if k != nil && rang.Contains(k) {
		return k, v
	}
	return nil, nil
}

// scanCursor runs rang over c. Backends call it from their Scan methods.
func scanCursor(c storageCursor, rang RawRange, f func(k, v []byte) bool) {
	for k, v := rang.start(c); k != nil; k, v = rang.next(c) {
		if !f(k, v) {
			return
		}
	}
}

// scanChunked calls f for the entries of rang, reading at most chunk entries
// per storage scan. Entries are copied, so f may access the store.
func scanChunked(reg storageRegion, rang RawRange, chunk int, f func(k, v []byte) (bool, error)) error {
	type kv struct{ k, v []byte }
	buf := make([]kv, 0, chunk)
	for {
		buf = buf[:0]
		err := reg.Scan(rang, func(k, v []byte) bool {
			buf = append(buf, kv{slices.Clone(k), slices.Clone(v)})
			return len(buf) < chunk
		})
		if err != nil {
			return err
		}
		for _, e := range buf {
			cont, err := f(e.k, e.v)
			if err != nil || !cont {
				return err
			}
		}
		if len(buf) < chunk {
			return nil
		}
		rang = rang.after(buf[len(buf)-1].k)
	}
}

// Page is one page of a paginated scan.
//
// Total is the number of live entries in scope for Collection scans. Index
// and Relation scans stop one entry past the page, so their Total is exact
// only once the scope is exhausted and is otherwise greater than Skip+Take.
type Page[K any] struct {
	Items []K
	Skip  int
	Take  int
	Total int
}

func (p Page[K]) Len() int { return len(p.Items) }

func (p Page[K]) HasPrev() bool { return p.Skip > 0 && p.Total > 0 }

func (p Page[K]) HasNext() bool { return p.Skip+len(p.Items) < p.Total }
