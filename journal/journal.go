// Package journal keeps an append-only record of raw entries removed from a
// fitdb database by purge operations.
//
// A journal is a directory of segment files. Each segment starts with a
// checksummed header, followed by records:
//
//	uvarint(len(body)) body xxhash64(body)
//
// where body is
//
//	varint(unix millis) uvarint(len) region uvarint(len) key uvarint(len) value
//
// A segment is never reopened for writing; every Open starts a new one on the
// first append. A torn or corrupted record ends its segment for readers.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

var (
	ErrClosed             = errors.New("journal: closed")
	ErrUnsupportedVersion = errors.New("journal: unsupported segment version")
	errCorruptedSegment   = errors.New("journal: corrupted segment")
)

// Entry is a raw key/value pair removed from a region at Time.
type Entry struct {
	Time   time.Time
	Region string
	Key    []byte
	Value  []byte
}

type Options struct {
	FileName    string // e.g. "purged-*.fj"; * is replaced by the segment ordinal
	MaxFileSize int64  // new segment after this size
	Now         func() time.Time
	Logger      *zap.Logger
}

const DefaultMaxFileSize = 4 * 1024 * 1024

const (
	magic           = 0x314c4e524a544946 // "FITJRNL1" as little-endian uint64
	version0  uint8 = 0
	headerLen       = 24
	maxRecord       = 64 * 1024 * 1024
)

// Journal appends entries to the segment files of a directory. It is safe for
// concurrent use.
type Journal struct {
	dir         string
	prefix      string
	suffix      string
	maxFileSize int64
	now         func() time.Time
	logger      *zap.Logger

	mu     sync.Mutex
	err    error
	closed bool
	seg    uint32
	f      *os.File
	w      *bufio.Writer
	size   int64
	dirty  bool
}

func normalize(o *Options) {
	if o.FileName == "" {
		o.FileName = "*.fj"
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Open prepares dir for appending, creating it if needed. A last segment with
// a corrupted header is deleted; nothing else is rewritten.
func Open(dir string, o Options) (*Journal, error) {
	normalize(&o)
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	j := &Journal{
		dir:         dir,
		prefix:      prefix,
		suffix:      suffix,
		maxFileSize: o.MaxFileSize,
		now:         o.Now,
		logger:      o.Logger.Named("journal"),
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}

	for {
		segs, err := listSegments(dir, prefix, suffix)
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			return j, nil
		}
		last := segs[len(segs)-1]
		err = checkHeader(filepath.Join(dir, last.name), last.ordinal)
		if err == errCorruptedSegment {
			j.logger.Warn("deleting corrupted segment", zap.String("file", last.name))
			if err := os.Remove(filepath.Join(dir, last.name)); err != nil {
				return nil, fmt.Errorf("journal: failed to delete corrupted segment: %w", err)
			}
			continue
		} else if err != nil {
			return nil, err
		}
		j.seg = last.ordinal
		return j, nil
	}
}

func (j *Journal) Dir() string { return j.dir }

// Append buffers e. Entries become durable on Commit.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if j.err != nil {
		return j.err
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}

	if j.f != nil && j.size >= j.maxFileSize {
		if err := j.finishSegment(); err != nil {
			return j.fail(err)
		}
	}
	if j.f == nil {
		if err := j.startSegment(); err != nil {
			return j.fail(err)
		}
	}

	body := appendBody(nil, e)
	var hbuf [binary.MaxVarintLen64]byte
	h := binary.AppendUvarint(hbuf[:0], uint64(len(body)))
	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(body))

	for _, b := range [][]byte{h, body, sum[:]} {
		if _, err := j.w.Write(b); err != nil {
			return j.fail(err)
		}
	}
	j.size += int64(len(h) + len(body) + len(sum))
	j.dirty = true
	return nil
}

// Archive records a raw entry about to be deleted from region and commits it,
// so the entry is on disk before the caller deletes it.
func (j *Journal) Archive(region string, key, value []byte) error {
	if err := j.Append(Entry{Region: region, Key: key, Value: value}); err != nil {
		return err
	}
	return j.Commit()
}

// Commit flushes buffered entries and syncs the current segment.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	return j.fail(j.commit())
}

func (j *Journal) commit() error {
	if j.f == nil || !j.dirty {
		return nil
	}
	if err := j.w.Flush(); err != nil {
		return err
	}
	if err := j.f.Sync(); err != nil {
		return err
	}
	j.dirty = false
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.f == nil {
		return j.err
	}
	if j.err != nil {
		j.f.Close()
		j.f = nil
		return j.err
	}
	return j.finishSegment()
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}
	j.logger.Error("journal failed", zap.String("dir", j.dir), zap.Error(err))
	if j.err == nil {
		j.err = err
	}
	return err
}

func (j *Journal) startSegment() error {
	seg := j.seg + 1
	name := j.prefix + formatOrdinal(seg) + j.suffix
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return err
	}
	var hdr [headerLen]byte
	fillHeader(hdr[:], seg)
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	j.seg = seg
	j.f = f
	j.w = bufio.NewWriter(f)
	j.size = headerLen
	j.logger.Debug("started segment", zap.String("file", name))
	return nil
}

func (j *Journal) finishSegment() error {
	err := j.commit()
	if cerr := j.f.Close(); err == nil {
		err = cerr
	}
	j.f, j.w, j.size = nil, nil, 0
	return err
}

// Read calls f for every entry in dir, oldest segment first. A corrupted
// record ends its segment with a warning; the remaining segments are still
// read. Key and Value are only valid during the call.
func Read(dir string, o Options, f func(e Entry) error) error {
	normalize(&o)
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	segs, err := listSegments(dir, prefix, suffix)
	if err != nil {
		return err
	}
	logger := o.Logger.Named("journal")
	for _, s := range segs {
		err := readSegment(filepath.Join(dir, s.name), s.ordinal, f)
		if err == errCorruptedSegment {
			logger.Warn("skipping corrupted tail", zap.String("file", s.name))
			continue
		} else if err != nil {
			return err
		}
	}
	return nil
}

func readSegment(path string, ordinal uint32, fn func(e Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return errCorruptedSegment
	}
	if err := parseHeader(hdr[:], ordinal); err != nil {
		return err
	}

	var body []byte
	for {
		n, err := binary.ReadUvarint(r)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errCorruptedSegment
		}
		if n > maxRecord {
			return errCorruptedSegment
		}
		if uint64(cap(body)) < n+8 {
			body = make([]byte, n+8)
		}
		body = body[:n+8]
		if _, err := io.ReadFull(r, body); err != nil {
			return errCorruptedSegment
		}
		if xxhash.Sum64(body[:n]) != binary.LittleEndian.Uint64(body[n:]) {
			return errCorruptedSegment
		}
		e, ok := parseBody(body[:n])
		if !ok {
			return errCorruptedSegment
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func fillHeader(buf []byte, ordinal uint32) {
	binary.LittleEndian.PutUint64(buf[0:], magic)
	buf[8] = version0
	binary.LittleEndian.PutUint32(buf[12:], ordinal)
	binary.LittleEndian.PutUint64(buf[16:], xxhash.Sum64(buf[:16]))
}

func parseHeader(buf []byte, ordinal uint32) error {
	if binary.LittleEndian.Uint64(buf[0:]) != magic {
		return errCorruptedSegment
	}
	if xxhash.Sum64(buf[:16]) != binary.LittleEndian.Uint64(buf[16:]) {
		return errCorruptedSegment
	}
	if binary.LittleEndian.Uint32(buf[12:]) != ordinal {
		return errCorruptedSegment
	}
	if buf[8] > version0 {
		return ErrUnsupportedVersion
	}
	return nil
}

func checkHeader(path string, ordinal uint32) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var hdr [headerLen]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return errCorruptedSegment
	}
	return parseHeader(hdr[:], ordinal)
}

func appendBody(b []byte, e Entry) []byte {
	b = binary.AppendVarint(b, e.Time.UnixMilli())
	b = binary.AppendUvarint(b, uint64(len(e.Region)))
	b = append(b, e.Region...)
	b = binary.AppendUvarint(b, uint64(len(e.Key)))
	b = append(b, e.Key...)
	b = binary.AppendUvarint(b, uint64(len(e.Value)))
	b = append(b, e.Value...)
	return b
}

func parseBody(b []byte) (Entry, bool) {
	ms, n := binary.Varint(b)
	if n <= 0 {
		return Entry{}, false
	}
	b = b[n:]
	var parts [3][]byte
	for i := range parts {
		l, n := binary.Uvarint(b)
		if n <= 0 || uint64(len(b)-n) < l {
			return Entry{}, false
		}
		parts[i] = b[n : n+int(l)]
		b = b[n+int(l):]
	}
	if len(b) != 0 {
		return Entry{}, false
	}
	return Entry{
		Time:   time.UnixMilli(ms).UTC(),
		Region: string(parts[0]),
		Key:    parts[1],
		Value:  parts[2],
	}, true
}

type segment struct {
	name    string
	ordinal uint32
}

func listSegments(dir, prefix, suffix string) ([]segment, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var segs []segment
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) || len(name) < len(prefix)+len(suffix) {
			continue
		}
		v, err := strconv.ParseUint(name[len(prefix):len(name)-len(suffix)], 10, 32)
		if err != nil {
			continue
		}
		segs = append(segs, segment{name, uint32(v)})
	}
	sort.Slice(segs, func(a, b int) bool { return segs[a].ordinal < segs[b].ordinal })
	return segs, nil
}

func formatOrdinal(seg uint32) string {
	return fmt.Sprintf("%012d", seg)
}
