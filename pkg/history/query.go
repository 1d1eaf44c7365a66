package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ncruces/go-strftime"

	"thoreinstein.com/shist/pkg/errors"
)

// Session selectors with special meaning.
const (
	SelectCurrent = "session"
	SelectAll     = "all"
)

// DefaultDatetimeFormat renders timestamps when no format is given.
const DefaultDatetimeFormat = "%Y-%m-%d %H:%M:%S"

// Query is one structured history request, as accepted by `history show`.
type Query struct {
	Action         string   // only "show"
	Session        string   // "session", "all", a session id, or a source name
	Slices         []string // start:stop:step, integer, or fuzzy fragment
	Numerate       bool
	Reverse        bool
	StartTime      string
	EndTime        string
	DatetimeFormat string
	Timestamp      bool
}

// Result is one line of query output.
type Result struct {
	Index     int
	Session   string
	Timestamp float64
	Command   string
}

// Source loads a foreign shell's history into memory.
type Source func(ctx context.Context) ([]Record, error)

// Engine evaluates queries against the current session, the sessions stored
// on disk, and any registered foreign sources. It keeps no state between
// calls.
type Engine struct {
	Current   *Session
	CurrentID string // stored session standing in for "session" when Current is nil
	Catalog   *Catalog
	Sources   map[string]Source
	Logger    *slog.Logger
}

// IsSession reports whether name selects a session rather than a slice.
func (e *Engine) IsSession(name string) bool {
	switch name {
	case SelectCurrent, SelectAll, "*":
		return true
	}
	if _, ok := e.Sources[name]; ok {
		return true
	}
	if e.Current != nil && name == e.Current.ID() {
		return true
	}
	if e.CurrentID != "" && name == e.CurrentID {
		return true
	}
	if e.Catalog != nil {
		if _, err := e.Catalog.Find(name); err == nil {
			return true
		}
	}
	return false
}

// Match is one selected entry together with the session it came from.
type Match struct {
	Session string
	Entry
}

// Run evaluates q and returns one result per selected command.
func (e *Engine) Run(ctx context.Context, q Query) ([]Result, error) {
	matches, err := e.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			Index:     m.Index,
			Session:   m.Session,
			Timestamp: m.Record.TimestampStart,
			Command:   m.Record.Input,
		})
	}
	return results, nil
}

// Select evaluates q and returns the full matching records. Each selected
// session is sliced and time-filtered on its own; sessions are concatenated
// oldest first; Reverse flips the final order.
func (e *Engine) Select(ctx context.Context, q Query) ([]Match, error) {
	if q.Action != "" && q.Action != "show" {
		return nil, errors.Newf("unsupported history action %q", q.Action)
	}

	start, err := parseBound(q.StartTime, q.DatetimeFormat)
	if err != nil {
		return nil, errors.Wrap(err, "invalid start time")
	}
	end, err := parseBound(q.EndTime, q.DatetimeFormat)
	if err != nil {
		return nil, errors.Wrap(err, "invalid end time")
	}

	keys := make([]Key, 0, len(q.Slices))
	for _, expr := range q.Slices {
		k, err := ParseKey(expr)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	views, release, err := e.views(ctx, q.Session)
	if err != nil {
		return nil, err
	}
	defer release()

	var matches []Match
	for _, v := range views {
		entries, err := selectEntries(v, keys)
		if err != nil {
			return nil, err
		}
		for _, en := range entries {
			ts := en.Record.TimestampStart
			if start != nil && ts < *start {
				continue
			}
			if end != nil && ts > *end {
				continue
			}
			matches = append(matches, Match{Session: v.Session(), Entry: en})
		}
	}

	if q.Reverse {
		for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
			matches[i], matches[j] = matches[j], matches[i]
		}
	}
	return matches, nil
}

// selectEntries applies keys as successive filters. The first key is
// resolved against the view itself so only selected records are decoded;
// later keys narrow the previous result. Logical indices are preserved.
func selectEntries(v *View, keys []Key) ([]Entry, error) {
	if len(keys) == 0 {
		return v.Entries()
	}
	entries, err := v.Lookup(keys[0])
	if err != nil {
		return nil, err
	}
	for _, k := range keys[1:] {
		entries, err = narrow(entries, k)
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func narrow(entries []Entry, k Key) ([]Entry, error) {
	switch k.Kind {
	case KeyIndex:
		j, err := normalizeIndex(k.Index, len(entries))
		if err != nil {
			return nil, err
		}
		return entries[j : j+1], nil
	case KeyFuzzy:
		for j := len(entries) - 1; j >= 0; j-- {
			if strings.Contains(entries[j].Record.Input, k.Text) {
				return entries[j : j+1], nil
			}
		}
		return nil, errors.NewKeyError(k.Text)
	case KeyRange:
		idx, err := k.Slice.Indices(len(entries))
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, len(idx))
		for _, j := range idx {
			out = append(out, entries[j])
		}
		return out, nil
	}
	return entries, nil
}

// Open resolves a selector naming exactly one session. The returned
// release func closes whatever Open had to open.
func (e *Engine) Open(ctx context.Context, selector string) (*View, func(), error) {
	if selector == SelectAll || selector == "*" {
		return nil, func() {}, errors.Newf("%q does not name a single session", selector)
	}
	views, release, err := e.views(ctx, selector)
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return views[0], release, nil
}

type datedView struct {
	view    *View
	created float64
}

// views resolves a session selector. release closes any index opened here.
func (e *Engine) views(ctx context.Context, selector string) ([]*View, func(), error) {
	var opened []*LazyIndex
	release := func() {
		for _, x := range opened {
			_ = x.Close()
		}
	}

	switch selector {
	case "", SelectCurrent:
		if e.Current == nil {
			if e.CurrentID == "" || e.CurrentID == SelectCurrent {
				return nil, release, errors.New("no active history session")
			}
			return e.views(ctx, e.CurrentID)
		}
		v, err := e.Current.View()
		if err != nil {
			return nil, release, err
		}
		return []*View{v}, release, nil

	case SelectAll, "*":
		var dated []datedView
		seenCurrent := false
		if e.Catalog != nil {
			sessions, err := e.Catalog.Sessions()
			if err != nil {
				return nil, release, err
			}
			for _, info := range sessions {
				if err := ctx.Err(); err != nil {
					release()
					return nil, func() {}, err
				}
				if e.Current != nil && info.ID == e.Current.ID() {
					seenCurrent = true
					v, err := e.Current.View()
					if err != nil {
						return nil, release, err
					}
					dated = append(dated, datedView{v, timeToSeconds(info.Created)})
					continue
				}
				v, x, err := e.Catalog.Open(info)
				if err != nil {
					if e.Logger != nil {
						e.Logger.Warn("Skipping unreadable history session", "session", info.ID, "error", err)
					}
					continue
				}
				opened = append(opened, x)
				dated = append(dated, datedView{v, timeToSeconds(info.Created)})
			}
		}
		if e.Current != nil && !seenCurrent {
			v, err := e.Current.View()
			if err != nil {
				return nil, release, err
			}
			dated = append(dated, datedView{v, e.Current.Header().Created})
		}
		sort.SliceStable(dated, func(i, j int) bool { return dated[i].created < dated[j].created })

		views := make([]*View, 0, len(dated))
		for _, d := range dated {
			views = append(views, d.view)
		}
		return views, release, nil
	}

	if src, ok := e.Sources[selector]; ok {
		records, err := src(ctx)
		if err != nil {
			return nil, release, err
		}
		return []*View{MemoryView(selector, records)}, release, nil
	}

	if e.Current != nil && selector == e.Current.ID() {
		v, err := e.Current.View()
		if err != nil {
			return nil, release, err
		}
		return []*View{v}, release, nil
	}
	if e.Catalog == nil {
		return nil, release, errors.NewKeyError(selector)
	}
	info, err := e.Catalog.Find(selector)
	if err != nil {
		return nil, release, err
	}
	v, x, err := e.Catalog.Open(info)
	if err != nil {
		return nil, release, err
	}
	opened = append(opened, x)
	return []*View{v}, release, nil
}

// parseBound parses a time bound given as epoch seconds, with the strftime
// format, or in one of a few common layouts. Empty means unbounded.
func parseBound(text, format string) (*float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return &f, nil
	}
	t, err := ParseTime(text, format)
	if err != nil {
		return nil, err
	}
	sec := timeToSeconds(t)
	return &sec, nil
}

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses text in local time, using the strftime format when given
// and the common layouts otherwise.
func ParseTime(text, format string) (time.Time, error) {
	if format != "" {
		layout, err := strftime.Layout(format)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "invalid datetime format %q", format)
		}
		t, err := time.ParseInLocation(layout, text, time.Local)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "%q does not match %q", text, format)
		}
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized time %q (use epoch seconds, YYYY-MM-DD or YYYY-MM-DD HH:MM)", text)
}

// FormatTime renders sec with a strftime format.
func FormatTime(sec float64, format string) string {
	if format == "" {
		format = DefaultDatetimeFormat
	}
	return strftime.Format(format, secondsToTime(sec))
}

// Render writes results one per line: "idx: cmd" when numerated,
// "(time) cmd" with timestamps, "idx:(time) cmd" with both. A positive
// width truncates long lines.
func Render(w io.Writer, results []Result, q Query, width int) error {
	for _, r := range results {
		var line string
		switch {
		case q.Numerate && q.Timestamp:
			line = fmt.Sprintf("%d:(%s) %s", r.Index, FormatTime(r.Timestamp, q.DatetimeFormat), r.Command)
		case q.Numerate:
			line = fmt.Sprintf("%d: %s", r.Index, r.Command)
		case q.Timestamp:
			line = fmt.Sprintf("(%s) %s", FormatTime(r.Timestamp, q.DatetimeFormat), r.Command)
		default:
			line = r.Command
		}
		if width > 3 && utf8.RuneCountInString(line) > width {
			line = string([]rune(line)[:width-3]) + "..."
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return errors.Wrap(err, "write history")
		}
	}
	return nil
}
