package metrics

import (
	"math"

	"traceviz/internal/models"
)

// Summarize aggregates step statistics for a trace.
func Summarize(trace models.DurableTrace) models.TraceSummary {
	summary := models.TraceSummary{TotalSteps: len(trace.Steps)}
	for _, step := range trace.Steps {
		if step.CompletedAt != nil {
			summary.CompletedSteps++
		} else {
			summary.PendingSteps++
		}
		if step.OutTaskInfo != nil {
			summary.FollowUpTasks++
		}
		summary.ConsecutiveFailures += uint64(step.InTaskInfo.ConsecutiveFailures)
	}
	if summary.TotalSteps > 0 {
		percent := float64(summary.CompletedSteps) / float64(summary.TotalSteps) * 100
		summary.CompletedPercent = round2(percent)
	}
	return summary
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
