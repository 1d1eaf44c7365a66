package history

import (
	"slices"
)

// Buffer is the bounded, append-ordered sequence of admitted records that
// have not yet been committed to disk. It is not safe for concurrent use;
// Session guards it with its own lock.
type Buffer struct {
	records     []Record
	control     Control
	storeOutput bool
}

// NewBuffer creates an empty buffer admitting records according to control.
// When storeOutput is false, captured output is dropped on admission.
func NewBuffer(control Control, storeOutput bool) *Buffer {
	return &Buffer{control: control, storeOutput: storeOutput}
}

// Append admits r if the content filter accepts it against tail, the last
// admitted record. A nil tail means the buffer's own last record is used.
// It reports whether the record was admitted.
func (b *Buffer) Append(r Record, tail *Record) bool {
	if tail == nil && len(b.records) > 0 {
		tail = &b.records[len(b.records)-1]
	}
	if !b.control.Admit(r, tail) {
		return false
	}
	if !b.storeOutput {
		r.Output = nil
	}
	b.records = append(b.records, r)
	return true
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	return len(b.records)
}

// At returns record i. Negative indices count from the end.
func (b *Buffer) At(i int) (Record, error) {
	j, err := normalizeIndex(i, len(b.records))
	if err != nil {
		return Record{}, err
	}
	return b.records[j], nil
}

// Last returns the newest record, or nil when the buffer is empty.
func (b *Buffer) Last() *Record {
	if len(b.records) == 0 {
		return nil
	}
	r := b.records[len(b.records)-1]
	return &r
}

// Slice returns the records selected by s.
func (b *Buffer) Slice(s Slice) ([]Record, error) {
	idx, err := s.Indices(len(b.records))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		out = append(out, b.records[i])
	}
	return out, nil
}

// snapshot returns a read-only view of the current records. Later appends
// never disturb it because amend and drop copy before writing.
func (b *Buffer) snapshot() []Record {
	return b.records[:len(b.records):len(b.records)]
}

// claim returns copies of records [from, len) for serialization.
func (b *Buffer) claim(from int) []Record {
	return slices.Clone(b.records[from:])
}

// dropHead removes the first n records once they are committed to disk.
func (b *Buffer) dropHead(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.records) {
		b.records = nil
		return
	}
	b.records = slices.Clone(b.records[n:])
}

// amend applies fn to record i on a private copy of the backing array.
func (b *Buffer) amend(i int, fn func(*Record)) {
	b.records = slices.Clone(b.records)
	fn(&b.records[i])
}

// Inputs projects the command text of every buffered record.
func (b *Buffer) Inputs() Column[string] {
	return newColumn(b.Len, func(i int) (string, error) { return b.records[i].Input, nil })
}

// ReturnCodes projects return codes; nil means unknown.
func (b *Buffer) ReturnCodes() Column[*int32] {
	return newColumn(b.Len, func(i int) (*int32, error) { return b.records[i].ReturnCode, nil })
}

// Outputs projects captured output; nil means not captured.
func (b *Buffer) Outputs() Column[*string] {
	return newColumn(b.Len, func(i int) (*string, error) { return b.records[i].Output, nil })
}

// Timestamps projects start/end timestamps.
func (b *Buffer) Timestamps() Column[Span] {
	return newColumn(b.Len, func(i int) (Span, error) { return b.records[i].Span(), nil })
}
