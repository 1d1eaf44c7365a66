package history

import (
	"strings"

	"thoreinstein.com/shist/pkg/errors"
)

// Entry is a record together with its logical position in a view.
type Entry struct {
	Index  int
	Record Record
}

// View is one logically contiguous, time-ordered history: the first
// diskCount positions resolve through the lazy index, the rest through an
// in-memory snapshot. A View borrows both sources and owns no records.
type View struct {
	disk      *LazyIndex
	diskCount int
	mem       []Record
	session   string
}

// NewView composes a view over disk (may be nil) followed by mem.
func NewView(disk *LazyIndex, mem []Record) *View {
	v := &View{disk: disk, mem: mem}
	if disk != nil {
		v.diskCount = disk.Len()
		v.session = disk.Header().SessionID
	}
	return v
}

// MemoryView wraps records that only exist in memory, such as a foreign
// shell's history.
func MemoryView(name string, records []Record) *View {
	return &View{mem: records, session: name}
}

// Session returns the id or name of the session the view belongs to.
func (v *View) Session() string {
	return v.session
}

// Len returns diskCount plus the number of in-memory records.
func (v *View) Len() int {
	return v.diskCount + len(v.mem)
}

// DiskLen returns how many positions resolve through the file.
func (v *View) DiskLen() int {
	return v.diskCount
}

// At returns the record at logical index i. Negative indices count from
// the end of the combined sequence.
func (v *View) At(i int) (Record, error) {
	j, err := normalizeIndex(i, v.Len())
	if err != nil {
		return Record{}, err
	}
	return v.record(j)
}

func (v *View) record(j int) (Record, error) {
	if j < v.diskCount {
		return v.disk.Get(j)
	}
	return v.mem[j-v.diskCount], nil
}

// Slice returns the entries selected by s, in slice order.
func (v *View) Slice(s Slice) ([]Entry, error) {
	idx, err := s.Indices(v.Len())
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(idx))
	for _, j := range idx {
		r, err := v.record(j)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Index: j, Record: r})
	}
	return out, nil
}

// Entries returns every entry in order.
func (v *View) Entries() ([]Entry, error) {
	return v.Slice(Full)
}

// Find returns the most recent entry whose command contains fragment.
func (v *View) Find(fragment string) (Entry, error) {
	for j := v.Len() - 1; j >= 0; j-- {
		inp, err := v.input(j)
		if err != nil {
			return Entry{}, err
		}
		if strings.Contains(inp, fragment) {
			r, err := v.record(j)
			if err != nil {
				return Entry{}, err
			}
			return Entry{Index: j, Record: r}, nil
		}
	}
	return Entry{}, errors.NewKeyError(fragment)
}

// Lookup resolves a parsed key. Index and fuzzy keys yield one entry;
// slices and the empty key yield any number.
func (v *View) Lookup(k Key) ([]Entry, error) {
	switch k.Kind {
	case KeyIndex:
		j, err := normalizeIndex(k.Index, v.Len())
		if err != nil {
			return nil, err
		}
		r, err := v.record(j)
		if err != nil {
			return nil, err
		}
		return []Entry{{Index: j, Record: r}}, nil
	case KeyFuzzy:
		e, err := v.Find(k.Text)
		if err != nil {
			return nil, err
		}
		return []Entry{e}, nil
	case KeyRange:
		return v.Slice(k.Slice)
	}
	return v.Entries()
}

// Command resolves key to one command and, when words is non-nil, narrows
// it to the selected whitespace-separated words. "-1" with words "-1" is
// the last word of the last command.
func (v *View) Command(key string, words *Slice) (string, error) {
	k, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	if k.Kind != KeyIndex && k.Kind != KeyFuzzy {
		return "", errors.Newf("%q does not select a single command", key)
	}
	entries, err := v.Lookup(k)
	if err != nil {
		return "", err
	}
	cmd := entries[0].Record.Input
	if words == nil {
		return cmd, nil
	}

	fields := strings.Fields(cmd)
	idx, err := words.Indices(len(fields))
	if err != nil {
		return "", err
	}
	picked := make([]string, 0, len(idx))
	for _, i := range idx {
		picked = append(picked, fields[i])
	}
	return strings.Join(picked, " "), nil
}

func (v *View) input(j int) (string, error) {
	if j < v.diskCount {
		return v.disk.Input(j)
	}
	return v.mem[j-v.diskCount].Input, nil
}

func (v *View) returnCode(j int) (*int32, error) {
	if j < v.diskCount {
		return v.disk.ReturnCode(j)
	}
	return v.mem[j-v.diskCount].ReturnCode, nil
}

func (v *View) output(j int) (*string, error) {
	if j < v.diskCount {
		return v.disk.Output(j)
	}
	return v.mem[j-v.diskCount].Output, nil
}

func (v *View) timestamps(j int) (Span, error) {
	if j < v.diskCount {
		return v.disk.Timestamps(j)
	}
	return v.mem[j-v.diskCount].Span(), nil
}

// Inputs projects command text. The column is fixed to this view.
func (v *View) Inputs() Column[string] {
	return newColumn(v.Len, v.input)
}

// ReturnCodes projects return codes.
func (v *View) ReturnCodes() Column[*int32] {
	return newColumn(v.Len, v.returnCode)
}

// Outputs projects captured output.
func (v *View) Outputs() Column[*string] {
	return newColumn(v.Len, v.output)
}

// Timestamps projects timestamps.
func (v *View) Timestamps() Column[Span] {
	return newColumn(v.Len, v.timestamps)
}
