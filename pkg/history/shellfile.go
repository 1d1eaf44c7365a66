package history

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"thoreinstein.com/shist/pkg/errors"
)

// ReadBashHistory reads a bash history file. Lines of the form "#<epoch>"
// written with HISTTIMEFORMAT set give the timestamp of the next command.
func ReadBashHistory(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewSourceError("bash", path, "cannot open history file", err)
	}
	defer f.Close()

	var (
		records []Record
		ts      float64
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			if n, err := strconv.ParseInt(line[1:], 10, 64); err == nil {
				ts = float64(n)
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, Record{Input: line, TimestampStart: ts, SessionID: "bash"})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewSourceError("bash", path, "read failed", err)
	}
	return records, nil
}

// ReadZshHistory reads a zsh history file, plain or in EXTENDED_HISTORY
// form (": <start>:<elapsed>;<command>"). Commands continued with a
// trailing backslash are joined with newlines.
func ReadZshHistory(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewSourceError("zsh", path, "cannot open history file", err)
	}
	defer f.Close()

	var (
		records []Record
		pending *Record
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if pending != nil {
			pending.Input += "\n" + strings.TrimSuffix(line, "\\")
			if !strings.HasSuffix(line, "\\") {
				records = append(records, *pending)
				pending = nil
			}
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		r := parseZshLine(line)
		if strings.HasSuffix(line, "\\") {
			r.Input = strings.TrimSuffix(r.Input, "\\")
			pending = &r
			continue
		}
		records = append(records, r)
	}
	if pending != nil {
		records = append(records, *pending)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewSourceError("zsh", path, "read failed", err)
	}
	return records, nil
}

func parseZshLine(line string) Record {
	r := Record{Input: line, SessionID: "zsh"}
	if !strings.HasPrefix(line, ": ") {
		return r
	}
	meta, cmd, ok := strings.Cut(line[2:], ";")
	if !ok {
		return r
	}
	startText, elapsedText, _ := strings.Cut(meta, ":")
	start, err := strconv.ParseInt(strings.TrimSpace(startText), 10, 64)
	if err != nil {
		return r
	}
	r.Input = cmd
	r.TimestampStart = float64(start)
	if elapsed, err := strconv.ParseInt(strings.TrimSpace(elapsedText), 10, 64); err == nil {
		r.TimestampEnd = Float(float64(start + elapsed))
	}
	return r
}
