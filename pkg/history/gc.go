package history

import (
	"context"
	"log/slog"
	"os"
	"time"

	"thoreinstein.com/shist/pkg/errors"
)

// Collector deletes old session files. It never touches the session named
// by keep and never a file whose writer still holds its lock.
type Collector struct {
	Catalog     *Catalog
	MaxSessions int           // keep at most this many files; 0 = no limit
	MaxAge      time.Duration // delete files older than this; 0 = no limit
	Logger      *slog.Logger
	Now         func() time.Time
}

// Sweep removes sessions beyond the limits, oldest first, and returns the
// removed paths.
func (c *Collector) Sweep(ctx context.Context, keep string) ([]string, error) {
	sessions, err := c.Catalog.Sessions()
	if err != nil {
		return nil, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	excess := 0
	if c.MaxSessions > 0 && len(sessions) > c.MaxSessions {
		excess = len(sessions) - c.MaxSessions
	}

	var removed []string
	for i, s := range sessions {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if s.ID == keep {
			continue
		}
		tooMany := i < excess
		tooOld := c.MaxAge > 0 && now().Sub(s.Created) > c.MaxAge
		if !tooMany && !tooOld {
			continue
		}

		ok, err := removeIfIdle(s.Path)
		if err != nil {
			return removed, err
		}
		if !ok {
			if c.Logger != nil {
				c.Logger.Debug("Skipping history file in use", "path", s.Path)
			}
			continue
		}
		if c.Logger != nil {
			c.Logger.Info("Removed old history session", "session", s.ID, "path", s.Path)
		}
		removed = append(removed, s.Path)
	}
	return removed, nil
}

// removeIfIdle deletes path unless another writer holds its lock.
func removeIfIdle(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		if errors.IsRetryable(err) {
			return false, nil
		}
		return false, err
	}
	defer unlockFile(f)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "remove %q", path)
	}
	return true, nil
}
