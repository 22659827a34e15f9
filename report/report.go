// Package report renders timing aggregates and free-text event lines into the
// plain-text debug report format.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/proflab/debugkit/timing"
)

// TimestampFormat is the layout used for the generation timestamp in the
// report header.
const TimestampFormat = "2006-01-02 15:04:05"

// A Report describes one debug report. Formatting is a pure function of the
// fields, so the same Report always renders to the same text.
type Report struct {
	// Title is printed in the header line.
	Title string

	// Owner identifies the session the report belongs to. Empty omits the
	// line.
	Owner string

	// GeneratedAt is the timestamp printed in the header.
	GeneratedAt time.Time

	// Timings are aggregate statistics to print in the Performance
	// section. Entries that never completed a call are omitted.
	Timings []timing.TimingStats

	// Lines are pre-formatted lines appended to the Performance section
	// after the aggregate entries, in order.
	Lines []string

	// Events are free-text event lines printed in the Events section, in
	// order.
	Events []string
}

// FormatTimingLine renders one aggregate entry the way the Performance
// section prints it.
func FormatTimingLine(s timing.TimingStats) string {
	return fmt.Sprintf("Operation: %s | Calls: %d | Avg: %.2fms",
		s.Name, s.CallCount, s.AverageMillis())
}

// Format renders the report. The output always carries a header and a footer
// marker; the Performance and Events sections appear only when they have
// content and are separated by blank lines.
func (r Report) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s ===\n", r.Title)
	if r.Owner != "" {
		fmt.Fprintf(&b, "Owner: %s\n", r.Owner)
	}
	fmt.Fprintf(&b, "Generated: %s\n\n",
		r.GeneratedAt.Format(TimestampFormat))

	perfLines := r.performanceLines()
	if len(perfLines) > 0 {
		b.WriteString("--- Performance ---\n")
		for _, line := range perfLines {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(r.Events) > 0 {
		b.WriteString("--- Events ---\n")
		for _, event := range r.Events {
			b.WriteString(event)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("=== End of Report ===\n")

	return b.String()
}

func (r Report) performanceLines() []string {
	lines := make([]string, 0, len(r.Timings)+len(r.Lines))

	for _, s := range r.Timings {
		if s.CallCount == 0 {
			continue
		}
		lines = append(lines, FormatTimingLine(s))
	}

	lines = append(lines, r.Lines...)

	return lines
}
