package history

import (
	"fmt"
	"math"
	"time"

	"thoreinstein.com/shist/pkg/errors"
)

// Record is one executed shell command and its outcome. Optional fields are
// nil when unknown. A Record is treated as a value: the history stores copies
// and never mutates a record once it has been handed to a flush.
type Record struct {
	Input          string
	ReturnCode     *int32
	Output         *string
	TimestampStart float64 // seconds since the epoch
	TimestampEnd   *float64
	Cwd            *string
	SessionID      string
}

// Span is the start/end timestamp pair of a record.
type Span struct {
	Start float64
	End   *float64
}

// Int32 returns a pointer to v, for filling optional Record fields.
func Int32(v int32) *int32 { return &v }

// String returns a pointer to v, for filling optional Record fields.
func String(v string) *string { return &v }

// Float returns a pointer to v, for filling optional Record fields.
func Float(v float64) *float64 { return &v }

// Span returns the record's timestamps.
func (r Record) Span() Span {
	return Span{Start: r.TimestampStart, End: r.TimestampEnd}
}

// Started returns the start timestamp as a time.Time.
func (r Record) Started() time.Time {
	return secondsToTime(r.TimestampStart)
}

// Duration returns the wall time the command took, or zero when the end
// timestamp is unknown.
func (r Record) Duration() time.Duration {
	if r.TimestampEnd == nil || *r.TimestampEnd < r.TimestampStart {
		return 0
	}
	// Float seconds carry sub-microsecond noise; round it away.
	return time.Duration(math.Round((*r.TimestampEnd-r.TimestampStart)*1e6)) * time.Microsecond
}

// Failed reports whether the return code is known and non-zero.
func (r Record) Failed() bool {
	return r.ReturnCode != nil && *r.ReturnCode != 0
}

// RecordFromFields builds a Record from the loosely-typed key/value shape a
// shell hook produces. Recognized keys are "inp", "rtn", "out", "ts"
// (a [start] or [start, end] pair), "cwd" and "sessionid". Any other key is
// rejected so that arbitrary shapes never reach the log.
func RecordFromFields(fields map[string]any) (Record, error) {
	var r Record
	for key, value := range fields {
		switch key {
		case "inp":
			s, ok := value.(string)
			if !ok {
				return Record{}, errors.Newf("field %q: want string, got %T", key, value)
			}
			r.Input = s
		case "rtn":
			n, err := toInt32(value)
			if err != nil {
				return Record{}, errors.Wrapf(err, "field %q", key)
			}
			r.ReturnCode = &n
		case "out":
			s, ok := value.(string)
			if !ok {
				return Record{}, errors.Newf("field %q: want string, got %T", key, value)
			}
			r.Output = &s
		case "cwd":
			s, ok := value.(string)
			if !ok {
				return Record{}, errors.Newf("field %q: want string, got %T", key, value)
			}
			r.Cwd = &s
		case "sessionid":
			s, ok := value.(string)
			if !ok {
				return Record{}, errors.Newf("field %q: want string, got %T", key, value)
			}
			r.SessionID = s
		case "ts":
			if err := r.setTimestamps(value); err != nil {
				return Record{}, errors.Wrapf(err, "field %q", key)
			}
		default:
			return Record{}, errors.Newf("unrecognized record field %q", key)
		}
	}
	return r, nil
}

func (r *Record) setTimestamps(value any) error {
	var parts []any
	switch v := value.(type) {
	case []any:
		parts = v
	case []float64:
		for _, f := range v {
			parts = append(parts, f)
		}
	default:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		r.TimestampStart = f
		return nil
	}
	if len(parts) == 0 || len(parts) > 2 {
		return errors.Newf("want 1 or 2 timestamps, got %d", len(parts))
	}
	start, err := toFloat(parts[0])
	if err != nil {
		return err
	}
	r.TimestampStart = start
	if len(parts) == 2 && parts[1] != nil {
		end, err := toFloat(parts[1])
		if err != nil {
			return err
		}
		r.TimestampEnd = &end
	}
	return nil
}

func toInt32(value any) (int32, error) {
	switch v := value.(type) {
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, errors.Newf("%d overflows int32", v)
		}
		return int32(v), nil
	case int32:
		return v, nil
	case int64:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, errors.Newf("%d overflows int32", v)
		}
		return int32(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.Newf("%v is not an integer", v)
		}
		return toInt32(int64(v))
	}
	return 0, errors.Newf("want integer, got %T", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, errors.Newf("want number, got %T", value)
}

func secondsToTime(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*float64(time.Second)))
}

func timeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// String renders a short debugging form of the record.
func (r Record) String() string {
	rtn := "?"
	if r.ReturnCode != nil {
		rtn = fmt.Sprint(*r.ReturnCode)
	}
	return fmt.Sprintf("%q [rtn=%s ts=%.3f]", r.Input, rtn, r.TimestampStart)
}
