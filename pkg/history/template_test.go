package history

import (
	"strings"
	"testing"
	"time"
)

func TestFormatTimeline(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local)
	at := func(d time.Duration) float64 { return timeToSeconds(start.Add(d)) }

	records := []Record{
		{
			Input:          "git status",
			TimestampStart: at(0),
			TimestampEnd:   Float(at(100 * time.Millisecond)),
			ReturnCode:     Int32(0),
			Cwd:            String("/home/project"),
		},
		{
			Input:          "make test",
			TimestampStart: at(5 * time.Minute),
			TimestampEnd:   Float(at(5*time.Minute + 5*time.Second)),
			ReturnCode:     Int32(1),
			Cwd:            String("/home/project"),
		},
		{
			Input:          "vim notes.md",
			TimestampStart: at(26 * time.Hour),
		},
	}

	output := FormatTimeline(records, "session-1", start)

	for _, want := range []string{
		"## Command Timeline - session-1",
		"- **Total Commands:** 3",
		"### 2025-01-01",
		"### 2025-01-02",
		"git status",
		"make test",
		"[Exit: 1]",
		"❌",
		"(5.0s)",
		"(100ms)",
		"`/home/project`",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("timeline missing %q:\n%s", want, output)
		}
	}

	if strings.Index(output, "2025-01-01") > strings.Index(output, "2025-01-02") {
		t.Error("days are not in chronological order")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
