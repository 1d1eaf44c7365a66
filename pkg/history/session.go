package history

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"thoreinstein.com/shist/pkg/errors"
)

// DefaultBufferSize is the number of unflushed records that triggers a
// background flush.
const DefaultBufferSize = 100

// fileExt is the extension of session history files.
const fileExt = ".shist"

// SessionOptions configures a Session.
type SessionOptions struct {
	Dir         string // Directory for session files; used when Path is empty
	Path        string // Explicit file path
	ID          string // Session id; a random UUID when empty
	Here        string // Free-form origin label stored in the header
	Control     Control
	BufferSize  int
	StoreOutput bool
	Logger      *slog.Logger
	Now         func() time.Time
}

// Session is the history of one shell instance: an in-memory buffer of
// recent records in front of a durable log file. Append never blocks on
// disk; flushes run in the background.
type Session struct {
	id         string
	log        *DurableLog
	index      *LazyIndex
	logger     *slog.Logger
	bufferSize int

	mu        sync.Mutex
	buf       *Buffer
	inflight  int // buffered records claimed by running flushes
	committed int // records on disk that this session's view covers
}

// SessionPath returns the conventional file path for session id in dir.
func SessionPath(dir, id string) string {
	return filepath.Join(dir, "session-"+id+fileExt)
}

// NewSession starts a new session and creates its log file.
func NewSession(opts SessionOptions) (*Session, error) {
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	path := opts.Path
	if path == "" {
		if opts.Dir == "" {
			return nil, errors.NewConfigError("history.dir", "no history directory or file configured")
		}
		path = SessionPath(opts.Dir, id)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	header := Header{
		Here:      opts.Here,
		Created:   timeToSeconds(now()),
		Version:   FormatVersion,
		SessionID: id,
	}
	log, err := CreateLog(path, header, opts.Logger)
	if err != nil {
		return nil, err
	}
	return newSession(id, log, opts)
}

// OpenSession resumes appending to an existing session file, for callers
// that record commands from short-lived processes. Contention with another
// writer is retried with backoff until ctx is done.
func OpenSession(ctx context.Context, path string, opts SessionOptions) (*Session, error) {
	log, err := errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func() (*DurableLog, error) {
		return OpenLog(path, opts.Logger)
	})
	if err != nil {
		return nil, err
	}
	return newSession(log.Header().SessionID, log, opts)
}

func newSession(id string, log *DurableLog, opts SessionOptions) (*Session, error) {
	index, err := OpenLazyIndex(log.Path())
	if err != nil {
		log.Close()
		return nil, err
	}

	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}

	s := &Session{
		id:         id,
		log:        log,
		index:      index,
		logger:     opts.Logger,
		bufferSize: size,
		buf:        NewBuffer(opts.Control, opts.StoreOutput),
		committed:  log.Count(),
	}
	if s.logger != nil {
		s.logger.Debug("History session opened", "session", id, "path", log.Path(), "records", s.committed)
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Path returns the session's log file.
func (s *Session) Path() string {
	return s.log.Path()
}

// Header returns the session header.
func (s *Session) Header() Header {
	return s.log.Header()
}

// Append offers r to the content filter and buffers it if admitted. When
// the unflushed part of the buffer reaches the flush threshold a background
// flush starts and its handle is returned; otherwise the result is nil.
func (s *Session) Append(r Record) *FlushHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.SessionID == "" {
		r.SessionID = s.id
	}
	if !s.buf.Append(r, s.tailLocked()) {
		if s.logger != nil {
			s.logger.Debug("History record filtered", "session", s.id, "input", r.Input)
		}
		return nil
	}
	if s.buf.Len()-s.inflight >= s.bufferSize {
		return s.flushLocked()
	}
	return nil
}

// tailLocked returns the last admitted record, looking at disk when the
// buffer is empty so duplicate suppression spans a flush.
func (s *Session) tailLocked() *Record {
	if last := s.buf.Last(); last != nil {
		return last
	}
	if s.committed == 0 {
		return nil
	}
	if err := s.refreshLocked(); err != nil {
		return nil
	}
	r, err := s.index.Get(s.committed - 1)
	if err != nil {
		return nil
	}
	return &r
}

// Flush writes every buffered record not already being written. It returns
// nil when there is nothing to write.
func (s *Session) Flush() *FlushHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Session) flushLocked() *FlushHandle {
	records := s.buf.claim(s.inflight)
	if len(records) == 0 {
		return nil
	}
	n := len(records)
	s.inflight += n
	return s.log.flush(records, func(written int, err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.buf.dropHead(written)
		s.committed += written
		s.inflight -= n
		if err != nil && s.logger != nil {
			s.logger.Warn("History records kept in memory after failed flush", "session", s.id, "pending", s.buf.Len())
		}
	})
}

// AmendLast updates the newest buffered record, e.g. to fill in a return
// code that arrives after the command text. Records already on disk or
// claimed by a running flush are immutable.
func (s *Session) AmendLast(fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.buf.Len()
	if n == 0 || n <= s.inflight {
		return errors.New("no unflushed record to amend")
	}
	s.buf.amend(n-1, fn)
	return nil
}

// Buffered returns the number of records held in memory.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// refreshLocked makes sure the lazy index covers every committed record.
func (s *Session) refreshLocked() error {
	if s.index.Len() >= s.committed {
		return nil
	}
	if err := s.index.Refresh(); err != nil {
		return err
	}
	if got := s.index.Len(); got < s.committed {
		return errors.NewMalformedRecordError(s.Path(), 0,
			fmt.Sprintf("index sees %d records, %d were committed", got, s.committed))
	}
	return nil
}

// View returns a consistent snapshot spanning disk and memory.
func (s *Session) View() (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() (*View, error) {
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return &View{disk: s.index, diskCount: s.committed, mem: s.buf.snapshot(), session: s.id}, nil
}

// liveColumn projects one field over the session's current view.
func liveColumn[T any](s *Session, get func(*View, int) (T, error)) Column[T] {
	length := func() int {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.committed + s.buf.Len()
	}
	return newColumn(length, func(i int) (T, error) {
		v, err := s.View()
		if err != nil {
			var zero T
			return zero, err
		}
		return get(v, i)
	})
}

// Inputs projects command text across disk and memory.
func (s *Session) Inputs() Column[string] {
	return liveColumn(s, (*View).input)
}

// ReturnCodes projects return codes across disk and memory.
func (s *Session) ReturnCodes() Column[*int32] {
	return liveColumn(s, (*View).returnCode)
}

// Outputs projects captured output across disk and memory.
func (s *Session) Outputs() Column[*string] {
	return liveColumn(s, (*View).output)
}

// Timestamps projects timestamps across disk and memory.
func (s *Session) Timestamps() Column[Span] {
	return liveColumn(s, (*View).timestamps)
}

// Close flushes what is buffered, waits for every flush, and releases the
// file. The file stays on disk.
func (s *Session) Close() error {
	flushErr := s.Flush().Wait()
	logErr := s.log.Close()
	idxErr := s.index.Close()

	s.mu.Lock()
	pending := s.buf.Len()
	s.mu.Unlock()

	if flushErr != nil {
		return flushErr
	}
	if logErr != nil {
		return logErr
	}
	if pending > 0 {
		return errors.NewFlushError(s.id, pending, "records left unsaved at close", nil)
	}
	if idxErr != nil {
		return errors.Wrap(idxErr, "close index")
	}
	return nil
}

// Remove deletes a closed session's file.
func (s *Session) Remove() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %q", s.Path())
	}
	return nil
}
