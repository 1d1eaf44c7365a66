package history

import (
	"strconv"
	"strings"

	"thoreinstein.com/shist/pkg/errors"
)

// Slice is a start:stop:step selection with optional bounds, following the
// usual half-open slicing rules: negative bounds count from the end, a
// negative step walks backwards, and absent bounds cover the full range.
type Slice struct {
	Start *int
	Stop  *int
	Step  *int
}

// Full selects every element in forward order.
var Full = Slice{}

// Range returns the slice start:stop.
func Range(start, stop int) Slice {
	return Slice{Start: &start, Stop: &stop}
}

// Indices resolves the slice against a sequence of length n and returns the
// selected positions in iteration order. Bounds are clamped, never an error.
func (s Slice) Indices(n int) ([]int, error) {
	step := 1
	if s.Step != nil {
		step = *s.Step
	}
	if step == 0 {
		return nil, errors.New("slice step cannot be zero")
	}

	var start, stop int
	if step > 0 {
		start = adjustBound(s.Start, n, 0, 0, n)
		stop = adjustBound(s.Stop, n, n, 0, n)
	} else {
		start = adjustBound(s.Start, n, n-1, -1, n-1)
		stop = adjustBound(s.Stop, n, -1, -1, n-1)
	}

	var out []int
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

// adjustBound normalizes one bound: absent takes def, negative counts from
// the end, and the result is clamped to [lo, hi].
func adjustBound(b *int, n, def, lo, hi int) int {
	if b == nil {
		return def
	}
	v := *b
	if v < 0 {
		v += n
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// String renders the slice in start:stop:step form.
func (s Slice) String() string {
	part := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	out := part(s.Start) + ":" + part(s.Stop)
	if s.Step != nil {
		out += ":" + part(s.Step)
	}
	return out
}

// KeyKind distinguishes the three forms a history selector can take.
type KeyKind int

const (
	// KeyAll selects everything (the empty selector).
	KeyAll KeyKind = iota
	// KeyIndex selects one element by position.
	KeyIndex
	// KeyRange selects a start:stop:step slice.
	KeyRange
	// KeyFuzzy selects the most recent command containing a fragment.
	KeyFuzzy
)

// Key is one parsed history selector: a bare integer, a slice, or a fuzzy
// command fragment.
type Key struct {
	Kind  KeyKind
	Index int
	Slice Slice
	Text  string
}

// ParseKey parses a selector in the history grammar. The empty string
// selects everything, an integer selects one element, anything containing
// a colon with integer parts is a slice, and everything else is treated as
// a fuzzy command fragment.
func ParseKey(expr string) (Key, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return Key{Kind: KeyAll, Slice: Full}, nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return Key{Kind: KeyIndex, Index: n}, nil
	}
	if strings.Contains(trimmed, ":") {
		s, ok, err := parseSlice(trimmed)
		if err != nil {
			return Key{}, err
		}
		if ok {
			return Key{Kind: KeyRange, Slice: s}, nil
		}
	}
	return Key{Kind: KeyFuzzy, Text: expr}, nil
}

// ParseSlice parses start:stop:step text, where a bare integer i means the
// single element at i.
func ParseSlice(expr string) (Slice, error) {
	k, err := ParseKey(expr)
	if err != nil {
		return Slice{}, err
	}
	switch k.Kind {
	case KeyAll:
		return Full, nil
	case KeyRange:
		return k.Slice, nil
	case KeyIndex:
		return indexSlice(k.Index), nil
	}
	return Slice{}, errors.Newf("invalid slice %q", expr)
}

// indexSlice turns index i into the one-element slice i:i+1, which for -1
// is the open-ended -1:.
func indexSlice(i int) Slice {
	start := i
	if i == -1 {
		return Slice{Start: &start}
	}
	stop := i + 1
	return Slice{Start: &start, Stop: &stop}
}

// parseSlice returns ok=false when the text has a colon but is not an
// integer slice, so that fuzzy keys such as "git:main" survive.
func parseSlice(expr string) (Slice, bool, error) {
	parts := strings.Split(expr, ":")
	if len(parts) > 3 {
		return Slice{}, false, nil
	}
	var bounds [3]*int
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Slice{}, false, nil
		}
		bounds[i] = &n
	}
	if bounds[2] != nil && *bounds[2] == 0 {
		return Slice{}, false, errors.Newf("invalid slice %q: step cannot be zero", expr)
	}
	return Slice{Start: bounds[0], Stop: bounds[1], Step: bounds[2]}, true, nil
}

// normalizeIndex maps a possibly negative index into [0, n) or reports an
// IndexError.
func normalizeIndex(i, n int) (int, error) {
	j := i
	if j < 0 {
		j += n
	}
	if j < 0 || j >= n {
		return 0, errors.NewIndexError(i, n)
	}
	return j, nil
}
