package history

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"thoreinstein.com/shist/pkg/errors"
)

// SessionInfo describes one session file found on disk.
type SessionInfo struct {
	ID      string
	Path    string
	Here    string
	Version string
	Created time.Time
	Size    int64
}

// Catalog lists the session files in a history directory.
type Catalog struct {
	Dir    string
	Logger *slog.Logger
}

// NewCatalog creates a catalog over dir.
func NewCatalog(dir string, logger *slog.Logger) *Catalog {
	return &Catalog{Dir: dir, Logger: logger}
}

// Sessions returns every readable session, oldest first. Only the header of
// each file is read. Files that cannot be read are skipped.
func (c *Catalog) Sessions() ([]SessionInfo, error) {
	matches, err := filepath.Glob(filepath.Join(c.Dir, "*"+fileExt))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", c.Dir)
	}

	sessions := make([]SessionInfo, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		h, err := ReadHeader(path)
		if err != nil {
			if c.Logger != nil {
				c.Logger.Debug("Skipping unreadable history file", "path", path, "error", err)
			}
			continue
		}
		id := h.SessionID
		if id == "" {
			id = strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "session-"), fileExt)
		}
		sessions = append(sessions, SessionInfo{
			ID:      id,
			Path:    path,
			Here:    h.Here,
			Version: h.Version,
			Created: secondsToTime(h.Created),
			Size:    info.Size(),
		})
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Created.Before(sessions[j].Created)
	})
	return sessions, nil
}

// Find returns the session with the given id.
func (c *Catalog) Find(id string) (SessionInfo, error) {
	sessions, err := c.Sessions()
	if err != nil {
		return SessionInfo{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return SessionInfo{}, errors.NewKeyError(id)
}

// Open returns a disk-only view of a stored session and the index backing
// it. The caller closes the index.
func (c *Catalog) Open(info SessionInfo) (*View, *LazyIndex, error) {
	x, err := OpenLazyIndex(info.Path)
	if err != nil {
		return nil, nil, err
	}
	return NewView(x, nil), x, nil
}
