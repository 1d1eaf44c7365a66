package history

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatTimeline renders records as a markdown timeline grouped by day.
// title names the history the records came from.
func FormatTimeline(records []Record, title string, now time.Time) string {
	var timeline strings.Builder

	total := len(records)
	var successCount int
	var totalDuration time.Duration

	dayGroups := make(map[string][]Record)
	for _, r := range records {
		if !r.Failed() {
			successCount++
		}
		totalDuration += r.Duration()

		day := r.Started().Format("2006-01-02")
		dayGroups[day] = append(dayGroups[day], r)
	}

	successRate := 0.0
	if total > 0 {
		successRate = float64(successCount) / float64(total) * 100.0
	}

	timeline.WriteString(fmt.Sprintf("## Command Timeline - %s\n\n", title))
	timeline.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format("2006-01-02 15:04:05")))

	timeline.WriteString("### Summary\n")
	timeline.WriteString(fmt.Sprintf("- **Total Commands:** %d\n", total))
	timeline.WriteString(fmt.Sprintf("- **Success Rate:** %.1f%%\n", successRate))
	timeline.WriteString(fmt.Sprintf("- **Total Duration:** %s\n\n", formatDuration(totalDuration)))

	days := make([]string, 0, len(dayGroups))
	for day := range dayGroups {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		timeline.WriteString(fmt.Sprintf("### %s\n\n", day))

		for _, r := range dayGroups[day] {
			timeStr := r.Started().Format("15:04:05")

			statusIcon := "✅"
			if r.ReturnCode == nil {
				statusIcon = "•"
			} else if r.Failed() {
				statusIcon = "❌"
			}

			var durationStr string
			if d := r.Duration(); d > 0 {
				durationStr = fmt.Sprintf(" (%s)", formatDuration(d))
			}

			var exitStr string
			if r.Failed() {
				exitStr = fmt.Sprintf(" [Exit: %d]", *r.ReturnCode)
			}

			var dirStr string
			if r.Cwd != nil && *r.Cwd != "" {
				dir := *r.Cwd
				if len(dir) > 50 {
					dirStr = fmt.Sprintf(" `.../%s`", dir[len(dir)-30:])
				} else {
					dirStr = fmt.Sprintf(" `%s`", dir)
				}
			}

			timeline.WriteString(fmt.Sprintf("- %s **%s**%s%s%s: `%s`\n",
				statusIcon, timeStr, durationStr, exitStr, dirStr, r.Input))
		}

		timeline.WriteString("\n")
	}

	return timeline.String()
}

func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	remSeconds := int(seconds) % 60
	return fmt.Sprintf("%dm%ds", minutes, remSeconds)
}
