// Package termview prints a trace timeline to a terminal.
package termview

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"

	"traceviz/internal/duration"
	"traceviz/internal/metrics"
	"traceviz/internal/models"
	"traceviz/internal/timeline"
)

const minTrackWidth = 10

var statusColors = map[string]*color.Color{
	models.StatusRunning:   color.New(color.FgBlue, color.Bold),
	models.StatusFailed:    color.New(color.FgRed, color.Bold),
	models.StatusCompleted: color.New(color.FgGreen, color.Bold),
	models.StatusUnknown:   color.New(color.FgHiBlack, color.Bold),
}

// Render writes the header and one track per step. width is the number of
// characters of the bar track.
func Render(w io.Writer, trace models.DurableTrace, width int) error {
	if width < minTrackWidth {
		width = minTrackWidth
	}
	layout := timeline.Build(trace)
	summary := metrics.Summarize(trace)
	status := trace.DisplayStatus()

	var b strings.Builder
	fmt.Fprintf(&b, "Durable Trace (%s)\n", trace.Name)
	fmt.Fprintf(&b, "Id: %s\n", trace.DurableExecutionID)
	fmt.Fprintf(&b, "Status: %s > Version: %d\n", statusColors[status].Sprint(status), trace.Version)
	fmt.Fprintf(&b, "Total Duration: %s\n", duration.FormatTrace(trace))
	fmt.Fprintf(&b, "Steps: %d completed, %d pending (%.2f%%)\n",
		summary.CompletedSteps, summary.PendingSteps, summary.CompletedPercent)
	fmt.Fprintf(&b, "Input Payload: %s\n\n", trace.PayloadText())

	barColor := color.New(color.FgBlue)
	for _, bar := range layout.Bars {
		fmt.Fprintf(&b, "%s  %s\n", bar.StepID, color.HiBlackString(bar.DurationText))
		fmt.Fprintf(&b, "|%s|\n", track(bar.Geometry, width, barColor))
		fmt.Fprintf(&b, "%s -> %s\n\n", bar.StartText, bar.EndText)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// track draws a bar at the geometry's offset. Portions outside the track are
// cut at the edges; a visible bar is always at least one cell wide.
func track(g models.Geometry, width int, c *color.Color) string {
	start := int(math.Floor(g.Position * float64(width) / 100))
	end := int(math.Ceil((g.Position + g.Width) * float64(width) / 100))
	if end <= start {
		end = start + 1
	}
	if start < 0 {
		start = 0
	}
	if end > width {
		end = width
	}

	cells := []rune(strings.Repeat(" ", width))
	if start >= width || end <= 0 {
		return string(cells)
	}
	return string(cells[:start]) + c.Sprint(strings.Repeat("█", end-start)) + string(cells[end:])
}
