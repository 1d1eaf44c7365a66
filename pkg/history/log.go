package history

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"thoreinstein.com/shist/pkg/errors"
)

// DurableLog is the append-only on-disk store of one session. It is the only
// writer of its file and holds an advisory lock on it while open.
type DurableLog struct {
	path   string
	f      *os.File
	header Header
	logger *slog.Logger

	writeMu sync.Mutex // serializes appends
	count   int        // committed record units, guarded by writeMu
	size    int64      // end of the last complete unit, guarded by writeMu
	broken  error      // set when a partial unit could not be cut off

	write    func([]byte) (int, error)
	truncate func(int64) error

	flushMu sync.Mutex
	last    *FlushHandle
}

// CreateLog creates a new history file at path and durably writes header
// before returning, so the file is readable immediately.
func CreateLog(path string, header Header, logger *slog.Logger) (*DurableLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "failed to create history directory %q", dir)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create history file %q", path)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	if header.Version == "" {
		header.Version = FormatVersion
	}
	buf := append([]byte(fileMagic), frameUnit(encodeHeader(header))...)
	if _, err := f.Write(buf); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, errors.Wrapf(err, "failed to write header to %q", path)
	}
	if err := f.Sync(); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, errors.Wrapf(err, "failed to sync %q", path)
	}
	syncDirectory(dir)

	return newDurableLog(path, f, header, 0, int64(len(buf)), logger), nil
}

// OpenLog reopens an existing history file for appending. A torn trailing
// unit left by a crash is cut off first so new units follow the last
// complete one.
func OpenLog(path string, logger *slog.Logger) (*DurableLog, error) {
	x, err := OpenLazyIndex(path)
	if err != nil {
		return nil, err
	}
	header, count, end := x.Header(), x.Len(), x.end
	if err := x.Close(); err != nil {
		return nil, errors.Wrapf(err, "close index of %q", path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history file %q", path)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, errors.Wrapf(err, "stat %q", path)
	}
	if info.Size() > end {
		if logger != nil {
			logger.Warn("Discarding torn tail of history file", "path", path, "bytes", info.Size()-end)
		}
		if err := f.Truncate(end); err != nil {
			_ = unlockFile(f)
			f.Close()
			return nil, errors.Wrapf(err, "truncate torn tail of %q", path)
		}
	}

	return newDurableLog(path, f, header, count, end, logger), nil
}

func newDurableLog(path string, f *os.File, header Header, count int, size int64, logger *slog.Logger) *DurableLog {
	return &DurableLog{
		path:     path,
		f:        f,
		header:   header,
		logger:   logger,
		count:    count,
		size:     size,
		write:    f.Write,
		truncate: f.Truncate,
	}
}

// Path returns the file backing the log.
func (l *DurableLog) Path() string {
	return l.path
}

// Header returns the session header.
func (l *DurableLog) Header() Header {
	return l.header
}

// Count returns the number of records committed to the file.
func (l *DurableLog) Count() int {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.count
}

// Append synchronously writes records in order, one self-delimiting unit per
// record, and syncs the file. It returns how many units were written; on
// error the units before the failing one are on disk and any partial unit
// has been cut off. If cutting it off fails the log refuses further appends.
func (l *DurableLog) Append(records []Record) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.broken != nil {
		return 0, errors.Wrapf(l.broken, "history file %q is unusable", l.path)
	}

	written := 0
	for _, r := range records {
		unit := frameUnit(encodeRecord(r))
		n, err := l.write(unit)
		if err == nil && n != len(unit) {
			err = io.ErrShortWrite
		}
		if err != nil {
			l.count += written
			if n > 0 {
				if terr := l.truncate(l.size); terr != nil {
					l.broken = errors.Wrapf(terr, "cut partial unit at offset %d", l.size)
					if l.logger != nil {
						l.logger.Error("History file left with a partial unit", "path", l.path, "offset", l.size, "error", terr)
					}
				}
			}
			return written, errors.Wrapf(err, "append to %q", l.path)
		}
		l.size += int64(n)
		written++
	}
	l.count += written
	if err := l.f.Sync(); err != nil {
		return written, errors.Wrapf(err, "sync %q", l.path)
	}
	return written, nil
}

// Flush appends records off the caller's goroutine and returns a handle to
// wait on. With nothing to write it returns nil. Flushes on one log run one
// at a time in the order they were requested.
func (l *DurableLog) Flush(records []Record) *FlushHandle {
	if len(records) == 0 {
		return nil
	}
	return l.flush(records, nil)
}

// flush starts the background write. commit, when set, runs on the flush
// goroutine before the handle completes.
func (l *DurableLog) flush(records []Record, commit func(written int, err error)) *FlushHandle {
	h := newFlushHandle(len(records))

	l.flushMu.Lock()
	prev := l.last
	if prev.Done() {
		prev = nil
	}
	l.last = h
	l.flushMu.Unlock()

	go func() {
		var (
			written int
			err     error
		)
		if perr := prev.Wait(); perr != nil {
			// The earlier flush left records unwritten ahead of ours; writing
			// ours now would reorder the log.
			err = errors.NewFlushError(l.header.SessionID, len(records), "an earlier flush failed", perr)
		} else {
			written, err = l.Append(records)
			if err != nil {
				err = errors.NewFlushError(l.header.SessionID, len(records)-written, "write failed", err)
			}
		}

		if err != nil && l.logger != nil {
			l.logger.Error("History flush failed", "path", l.path, "records", len(records), "written", written, "error", err)
		} else if l.logger != nil {
			l.logger.Debug("History flushed", "path", l.path, "records", written)
		}

		if commit != nil {
			commit(written, err)
		}
		h.finish(written, err)
	}()

	return h
}

// Wait blocks until every flush requested so far has finished and returns
// the error of the last one.
func (l *DurableLog) Wait() error {
	l.flushMu.Lock()
	last := l.last
	l.flushMu.Unlock()
	return last.Wait()
}

// Close waits for outstanding flushes, releases the writer lock, and closes
// the file. The file itself is left on disk.
func (l *DurableLog) Close() error {
	waitErr := l.Wait()

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_ = unlockFile(l.f)
	if err := l.f.Close(); err != nil {
		return errors.Wrapf(err, "close %q", l.path)
	}
	return waitErr
}

// syncDirectory makes a newly created file's directory entry durable.
func syncDirectory(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
