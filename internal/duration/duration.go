// Package duration renders elapsed times as coarse, human readable text.
package duration

import (
	"fmt"
	"strings"
	"time"

	"traceviz/internal/models"
)

// Format renders d as hours and minutes, falling back to seconds only when the
// duration is shorter than a minute. Sub-unit remainders are truncated.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	parts := make([]string, 0, 2)
	if hours > 0 {
		parts = append(parts, unit(hours, "Hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "Minute"))
	}
	if len(parts) == 0 && seconds > 0 {
		parts = append(parts, unit(seconds, "Second"))
	}
	if len(parts) == 0 {
		return "0 Seconds"
	}
	return strings.Join(parts, " and ")
}

// FormatTrace renders the total duration of a trace, or "-" while it is still running.
func FormatTrace(trace models.DurableTrace) string {
	d, ok := trace.Duration()
	if !ok {
		return "-"
	}
	return Format(d)
}

func unit(n int64, name string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, name)
	}
	return fmt.Sprintf("%d %s", n, name)
}
