package history

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"thoreinstein.com/shist/pkg/errors"
)

// unit locates one record inside a history file.
type unit struct {
	offset int64 // start of the unit header
	length uint32
	sum    uint64
}

func (u unit) payloadOffset() int64 {
	return u.offset + unitHeaderSize
}

// lazyRecord is the per-entry decode cache. raw is immutable once read.
type lazyRecord struct {
	raw  []byte
	have fieldMask
	rec  Record
}

// LazyIndex is a read-only random-access reader over a history file. Opening
// it walks only the unit headers; record payloads are read and decoded field
// by field on first access and memoized for the index's lifetime.
//
// Every unit's checksum is verified while indexing. A unit that is
// incomplete, or that fails with no verifying unit after it, starts a tail
// that is treated as not yet written. A failing unit followed by a good one
// is indexed and surfaces as a MalformedRecordError when it is read.
type LazyIndex struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	header Header
	units  []unit
	end    int64
	cache  map[int]*lazyRecord
}

// OpenLazyIndex opens the history file at path and indexes its records.
func OpenLazyIndex(path string) (*LazyIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	header, first, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	x := &LazyIndex{
		f:      f,
		path:   path,
		header: header,
		end:    first,
		cache:  make(map[int]*lazyRecord),
	}
	if err := x.scan(); err != nil {
		f.Close()
		return nil, err
	}
	return x, nil
}

// Path returns the indexed file.
func (x *LazyIndex) Path() string {
	return x.path
}

// Header returns the session header.
func (x *LazyIndex) Header() Header {
	return x.header
}

// Len returns the number of complete records found by the scan.
func (x *LazyIndex) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.units)
}

// Refresh indexes units appended since the last scan. Already indexed
// entries and their caches are kept.
func (x *LazyIndex) Refresh() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.scan()
}

// scan walks units from x.end to the current end of file, checksumming each
// payload without decoding it. x.end only advances past units that belong
// to the index.
func (x *LazyIndex) scan() error {
	info, err := x.f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", x.path)
	}
	size := info.Size()
	off := x.end
	if size <= off {
		return nil
	}

	br := bufio.NewReaderSize(io.NewSectionReader(x.f, off, size-off), 64<<10)
	d := xxhash.New()
	good := int64(-1) // offset of a verified unit found ahead of off
	for size-off >= unitHeaderSize {
		u, err := readUnitHeader(br, off)
		if err != nil {
			return err
		}
		next := u.payloadOffset() + int64(u.length)
		if next > size {
			// Torn trailing write.
			return nil
		}
		d.Reset()
		if _, err := io.CopyN(d, br, int64(u.length)); err != nil {
			return errors.Wrapf(err, "read unit at %d", off)
		}
		if d.Sum64() != u.sum && good < next {
			if good, err = x.nextVerified(next, size); err != nil {
				return err
			}
			if good < 0 {
				return nil
			}
		}

		x.units = append(x.units, u)
		off = next
		x.end = next
	}
	return nil
}

// nextVerified follows length fields from off and returns the offset of the
// first unit whose checksum matches, or -1 when none does before size.
func (x *LazyIndex) nextVerified(off, size int64) (int64, error) {
	d := xxhash.New()
	for size-off >= unitHeaderSize {
		r := io.NewSectionReader(x.f, off, size-off)
		u, err := readUnitHeader(r, off)
		if err != nil {
			return -1, err
		}
		next := u.payloadOffset() + int64(u.length)
		if next > size {
			return -1, nil
		}
		d.Reset()
		if _, err := io.CopyN(d, r, int64(u.length)); err != nil {
			return -1, errors.Wrapf(err, "read unit at %d", off)
		}
		if d.Sum64() == u.sum {
			return off, nil
		}
		off = next
	}
	return -1, nil
}

func readUnitHeader(r io.Reader, off int64) (unit, error) {
	var hdr [unitHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return unit{}, errors.Wrapf(err, "read unit header at %d", off)
	}
	return unit{
		offset: off,
		length: binary.LittleEndian.Uint32(hdr[0:4]),
		sum:    binary.LittleEndian.Uint64(hdr[4:12]),
	}, nil
}

// load returns the cache entry for record i, reading and verifying its
// payload on first use. Callers hold x.mu.
func (x *LazyIndex) load(i int) (*lazyRecord, error) {
	if lr, ok := x.cache[i]; ok {
		return lr, nil
	}
	u := x.units[i]
	payload := make([]byte, u.length)
	if _, err := x.f.ReadAt(payload, u.payloadOffset()); err != nil {
		return nil, &errors.MalformedRecordError{Path: x.path, Offset: u.offset, Reason: "unreadable record", Cause: err}
	}
	if xxhash.Sum64(payload) != u.sum {
		return nil, errors.NewMalformedRecordError(x.path, u.offset, "record checksum mismatch")
	}
	lr := &lazyRecord{raw: payload}
	x.cache[i] = lr
	return lr, nil
}

// fields returns record i with at least the fields in want decoded.
func (x *LazyIndex) fields(i int, want fieldMask) (Record, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	j, err := normalizeIndex(i, len(x.units))
	if err != nil {
		return Record{}, err
	}
	lr, err := x.load(j)
	if err != nil {
		return Record{}, err
	}
	if missing := want &^ lr.have; missing != 0 {
		if err := decodeFields(lr.raw, missing, &lr.rec); err != nil {
			return Record{}, &errors.MalformedRecordError{Path: x.path, Offset: x.units[j].offset, Reason: "undecodable record", Cause: err}
		}
		lr.have |= missing
	}
	return lr.rec, nil
}

// Get returns record i, fully decoded. Negative indices count from the end.
func (x *LazyIndex) Get(i int) (Record, error) {
	return x.fields(i, maskAll)
}

// Input returns only the command text of record i.
func (x *LazyIndex) Input(i int) (string, error) {
	r, err := x.fields(i, maskInput)
	return r.Input, err
}

// ReturnCode returns only the return code of record i.
func (x *LazyIndex) ReturnCode(i int) (*int32, error) {
	r, err := x.fields(i, maskReturnCode)
	return r.ReturnCode, err
}

// Output returns only the captured output of record i.
func (x *LazyIndex) Output(i int) (*string, error) {
	r, err := x.fields(i, maskOutput)
	return r.Output, err
}

// Timestamps returns only the timestamps of record i.
func (x *LazyIndex) Timestamps(i int) (Span, error) {
	r, err := x.fields(i, maskTimestamps)
	return r.Span(), err
}

// Close releases the file handle.
func (x *LazyIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.f.Close()
}
