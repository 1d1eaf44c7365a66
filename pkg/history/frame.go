package history

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/cespare/xxhash/v2"

	"thoreinstein.com/shist/pkg/errors"
)

// FormatVersion is the on-disk format written by this package. Readers
// accept any file with the same major version.
const FormatVersion = "1.0.0"

const (
	fileMagic      = "SHST"
	unitHeaderSize = 12 // uint32 length + uint64 xxhash64
)

// frameUnit wraps payload as one self-delimiting unit: little-endian length,
// checksum, then the payload itself.
func frameUnit(payload []byte) []byte {
	unit := make([]byte, unitHeaderSize, unitHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(unit[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint64(unit[4:12], xxhash.Sum64(payload))
	return append(unit, payload...)
}

// checkVersion rejects files written by an incompatible major version.
func checkVersion(path, v string) error {
	got, err := semver.NewVersion(v)
	if err != nil {
		return errors.NewMalformedRecordError(path, int64(len(fileMagic)), "invalid format version "+v)
	}
	want := semver.MustParse(FormatVersion)
	if got.Major() != want.Major() {
		return errors.Newf("%s: unsupported history format %s (this build reads %d.x)", path, v, want.Major())
	}
	return nil
}

// readHeader reads the magic and header unit at the start of f and returns
// the header plus the offset of the first record unit.
func readHeader(f *os.File) (Header, int64, error) {
	path := f.Name()

	magic := make([]byte, len(fileMagic))
	if _, err := f.ReadAt(magic, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, 0, errors.NewMalformedRecordError(path, 0, "file too short for header")
		}
		return Header{}, 0, errors.Wrapf(err, "read %s", path)
	}
	if string(magic) != fileMagic {
		return Header{}, 0, errors.NewMalformedRecordError(path, 0, "not a history file (bad magic)")
	}

	off := int64(len(fileMagic))
	var hdr [unitHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], off); err != nil {
		return Header{}, 0, &errors.MalformedRecordError{Path: path, Offset: off, Reason: "truncated header unit", Cause: err}
	}
	length := binary.LittleEndian.Uint32(hdr[0:4])
	sum := binary.LittleEndian.Uint64(hdr[4:12])

	payload := make([]byte, length)
	if _, err := f.ReadAt(payload, off+unitHeaderSize); err != nil {
		return Header{}, 0, &errors.MalformedRecordError{Path: path, Offset: off, Reason: "truncated header unit", Cause: err}
	}
	if xxhash.Sum64(payload) != sum {
		return Header{}, 0, errors.NewMalformedRecordError(path, off, "header checksum mismatch")
	}

	h, err := decodeHeader(payload)
	if err != nil {
		return Header{}, 0, &errors.MalformedRecordError{Path: path, Offset: off, Reason: "undecodable header", Cause: err}
	}
	if err := checkVersion(path, h.Version); err != nil {
		return Header{}, 0, err
	}
	return h, off + unitHeaderSize + int64(length), nil
}

// ReadHeader returns the session header of the history file at path without
// indexing its records.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	h, _, err := readHeader(f)
	return h, err
}
