// Package timeline converts trace timestamps into proportional bar geometry.
package timeline

import (
	"fmt"
	"time"

	"traceviz/internal/models"
)

const (
	// ProvisionalWindow is the window used when nothing in a trace has completed.
	ProvisionalWindow = 15 * time.Second
	// PendingWidth is the bar width, in percent, of a step that never completed.
	PendingWidth = 2.0

	minWindowSeconds = 1.0
)

// LatestTime returns the later of two optional timestamps. An absent value
// orders before any present one.
func LatestTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

// ComputeWindow returns the right edge of the visible window: the latest
// completion across all steps and the trace itself, or scheduledAt plus
// ProvisionalWindow when nothing has completed.
func ComputeWindow(steps []models.StepTrace, scheduledAt time.Time, completedAt *time.Time) time.Time {
	var latest *time.Time
	for i := range steps {
		latest = LatestTime(latest, steps[i].CompletedAt)
	}
	latest = LatestTime(latest, completedAt)
	if latest == nil {
		return scheduledAt.Add(ProvisionalWindow)
	}
	return *latest
}

// WindowSeconds is the window length in whole seconds, never below one.
func WindowSeconds(scheduledAt, windowEnd time.Time) float64 {
	seconds := wholeSeconds(windowEnd.Sub(scheduledAt))
	if seconds < minWindowSeconds {
		return minWindowSeconds
	}
	return seconds
}

// ComputeStepGeometry places a step inside the window. Steps outside the
// window are not clamped.
func ComputeStepGeometry(step models.StepTrace, scheduledAt, windowEnd time.Time) models.Geometry {
	window := WindowSeconds(scheduledAt, windowEnd)
	secondRate := 100 / window

	geometry := models.Geometry{
		Position: wholeSeconds(step.ScheduledAt.Sub(scheduledAt)) * 100 / window,
		Width:    PendingWidth,
	}
	if elapsed, ok := step.Duration(); ok {
		geometry.Width = wholeSeconds(elapsed) * secondRate
	}
	return geometry
}

// Build lays out every step of the trace in source order.
func Build(trace models.DurableTrace) models.TimelineLayout {
	end := ComputeWindow(trace.Steps, trace.ScheduledAt, trace.CompletedAt)
	window := WindowSeconds(trace.ScheduledAt, end)

	bars := make([]models.StepBar, 0, len(trace.Steps))
	for _, step := range trace.Steps {
		bars = append(bars, models.StepBar{
			StepID:       step.DurableStepID,
			Geometry:     ComputeStepGeometry(step, trace.ScheduledAt, end),
			Completed:    step.CompletedAt != nil,
			DurationText: stepDurationText(step),
			StartText:    step.ScheduledAtText(),
			EndText:      step.CompletedAtText(),
		})
	}

	return models.TimelineLayout{
		WindowStart:   trace.ScheduledAt,
		WindowEnd:     end,
		WindowSeconds: window,
		SecondRate:    100 / window,
		Bars:          bars,
	}
}

func stepDurationText(step models.StepTrace) string {
	elapsed, ok := step.Duration()
	if !ok {
		return "Not completed"
	}
	return fmt.Sprintf("%d seconds", int64(elapsed/time.Second))
}

func wholeSeconds(d time.Duration) float64 {
	return float64(int64(d / time.Second))
}
