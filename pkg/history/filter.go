package history

import (
	"sort"
	"strings"
)

// Mode is a HISTCONTROL-style admission rule.
type Mode string

const (
	// IgnoreDups rejects a command identical to the last admitted one.
	IgnoreDups Mode = "ignoredups"
	// IgnoreErr rejects a command whose return code is known and non-zero.
	IgnoreErr Mode = "ignoreerr"
)

// Control is the set of active admission modes. The zero value admits
// everything.
type Control map[Mode]bool

// ParseControl parses a comma or whitespace separated HISTCONTROL value.
// "ignoreboth" enables ignoredups; its ignorespace half concerns the shell
// and has nothing to act on here. Words naming no known mode are returned
// in ignored so callers can report them; they never fail the parse.
func ParseControl(values ...string) (c Control, ignored []string) {
	c = Control{}
	for _, v := range values {
		for _, field := range strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ' ' || r == ':' || r == '\t'
		}) {
			switch m := Mode(strings.ToLower(field)); m {
			case IgnoreDups, IgnoreErr:
				c[m] = true
			case "ignoreboth":
				c[IgnoreDups] = true
			default:
				ignored = append(ignored, field)
			}
		}
	}
	return c, ignored
}

// Has reports whether mode m is active.
func (c Control) Has(m Mode) bool {
	return c[m]
}

// String renders the modes in a stable order.
func (c Control) String() string {
	modes := make([]string, 0, len(c))
	for m, on := range c {
		if on {
			modes = append(modes, string(m))
		}
	}
	sort.Strings(modes)
	return strings.Join(modes, ",")
}

// Admit decides whether candidate enters the buffer given the most recently
// admitted record (nil when there is none). It is evaluated once, at
// admission time, on the data available then.
func (c Control) Admit(candidate Record, tail *Record) bool {
	if c.Has(IgnoreErr) && candidate.Failed() {
		return false
	}
	if c.Has(IgnoreDups) && tail != nil && tail.Input == candidate.Input {
		return false
	}
	return true
}
