package fitdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRegion(t *testing.T, db *DB, keys ...string) storageRegion {
	t.Helper()
	reg := must(db.st.Region("raw"))
	for _, k := range keys {
		require.NoError(t, reg.Put([]byte(k), []byte("v"+k)))
	}
	return reg
}

func scanAll(t *testing.T, reg storageRegion, rang RawRange) string {
	t.Helper()
	var s string
	require.NoError(t, reg.Scan(rang, func(k, v []byte) bool {
		s += fmt.Sprintf("%x ", k)
		return true
	}))
	return s
}

func TestRawRangeScan(t *testing.T) {
	tests := []struct {
		name string
		rang RawRange
		want string
	}{
		{"OO", RawOO(), "01 02 0200 03 ff ffff "},
		{"OO reverse", RawOO().Reversed(), "ffff ff 03 0200 02 01 "},
		{"IE", RawIE([]byte{2}, []byte{3}), "02 0200 "},
		{"EI", RawEI([]byte{2}, []byte{3}), "0200 03 "},
		{"EE reverse", RawEE([]byte{1}, []byte{3}).Reversed(), "0200 02 "},
		{"II reverse", RawII([]byte{2}, []byte{3}).Reversed(), "03 0200 02 "},
		{"OE reverse", RawOE([]byte{2}).Reversed(), "01 "},
		{"OI reverse past end", RawOI([]byte{0xFF, 0xFF, 0xFF}).Reversed(), "ffff ff 03 0200 02 01 "},
		{"IO", RawIO([]byte{3}), "03 ff ffff "},
		{"EO missing", RawEO([]byte{0x02, 0x01}), "03 ff ffff "},
		{"prefix", RawPrefix([]byte{2}), "02 0200 "},
		{"prefix reverse", RawPrefix([]byte{2}).Reversed(), "0200 02 "},
		{"prefix ff", RawPrefix([]byte{0xFF}), "ff ffff "},
		{"prefix ff reverse", RawPrefix([]byte{0xFF}).Reversed(), "ffff ff "},
		{"empty", RawIE([]byte{4}, []byte{5}), ""},
		{"empty reverse", RawIE([]byte{4}, []byte{5}).Reversed(), ""},
	}
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		reg := rawRegion(t, db, "\x01", "\x02", "\x02\x00", "\x03", "\xff", "\xff\xff")
		for _, tt := range tests {
			assert.Equal(t, tt.want, scanAll(t, reg, tt.rang), tt.name)
		}
	})
}

func TestRawRangeEmptyRegion(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		reg := rawRegion(t, db)
		assert.Equal(t, "", scanAll(t, reg, RawOO()))
		assert.Equal(t, "", scanAll(t, reg, RawOO().Reversed()))
		assert.Equal(t, "", scanAll(t, reg, RawPrefix([]byte{1}).Reversed()))
	})
}

func TestRawRangeStopsEarly(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		reg := rawRegion(t, db, "a", "b", "c")
		var n int
		require.NoError(t, reg.Scan(RawOO(), func(k, v []byte) bool {
			n++
			return false
		}))
		assert.Equal(t, 1, n)
	})
}

func TestRawRangeContains(t *testing.T) {
	r := RawIE([]byte("b"), []byte("d"))
	assert.False(t, r.Contains([]byte("a")))
	assert.True(t, r.Contains([]byte("b")))
	assert.True(t, r.Contains([]byte("c\xff")))
	assert.False(t, r.Contains([]byte("d")))

	r = RawEI([]byte("b"), []byte("d"))
	assert.False(t, r.Contains([]byte("b")))
	assert.True(t, r.Contains([]byte("d")))

	assert.True(t, RawOO().Contains(nil))
	assert.True(t, RawPrefix(nil).Contains([]byte{0xFF, 0xFF}))
}

func TestRawRangeAfter(t *testing.T) {
	r := RawPrefix([]byte{1}).after([]byte{1, 5})
	assert.Equal(t, []byte{1, 5}, r.Lower)
	assert.False(t, r.LowerInc)
	assert.Equal(t, []byte{2}, r.Upper)

	r = RawPrefix([]byte{1}).Reversed().after([]byte{1, 5})
	assert.Equal(t, []byte{1}, r.Lower)
	assert.Equal(t, []byte{1, 5}, r.Upper)
	assert.False(t, r.UpperInc)
}

func TestScanChunked(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		reg := rawRegion(t, db, "a", "b", "c", "d", "e")

		var got string
		require.NoError(t, scanChunked(reg, RawOO(), 2, func(k, v []byte) (bool, error) {
			got += string(k)
			// writes between chunks must not disturb the scan
			_, err := reg.Delete(k)
			return true, err
		}))
		assert.Equal(t, "abcde", got)
		assert.Equal(t, 0, must(reg.Count()))
	})
}

func TestScanChunkedReverseStop(t *testing.T) {
	eachBackend(t, nil, func(t *testing.T, db *DB) {
		reg := rawRegion(t, db, "a", "b", "c", "d", "e")

		var got string
		require.NoError(t, scanChunked(reg, RawOO().Reversed(), 2, func(k, v []byte) (bool, error) {
			got += string(k)
			return len(got) < 3, nil
		}))
		assert.Equal(t, "edc", got)

		boom := fmt.Errorf("boom")
		err := scanChunked(reg, RawOO(), 2, func(k, v []byte) (bool, error) {
			return true, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestPage(t *testing.T) {
	p := Page[int]{Items: []int{3, 4}, Skip: 2, Take: 2, Total: 7}
	assert.Equal(t, 2, p.Len())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	p = Page[int]{Items: []int{1}, Skip: 0, Take: 2, Total: 1}
	assert.False(t, p.HasPrev())
	assert.False(t, p.HasNext())

	p = Page[int]{Skip: 10, Take: 2, Total: 0}
	assert.False(t, p.HasPrev())
	assert.False(t, p.HasNext())
}
