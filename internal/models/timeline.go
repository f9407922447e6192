package models

import "time"

// Geometry places a bar on a fixed-width track, in percent of the track width.
type Geometry struct {
	Position float64 `json:"position"`
	Width    float64 `json:"width"`
}

// StepBar is a single rendered row of the trace timeline.
type StepBar struct {
	StepID       string   `json:"stepId"`
	Geometry     Geometry `json:"geometry"`
	Completed    bool     `json:"completed"`
	DurationText string   `json:"durationText"`
	StartText    string   `json:"startText"`
	EndText      string   `json:"endText"`
}

// TimelineLayout is the computed window and one bar per step in source order.
type TimelineLayout struct {
	WindowStart   time.Time `json:"windowStart"`
	WindowEnd     time.Time `json:"windowEnd"`
	WindowSeconds float64   `json:"windowSeconds"`
	SecondRate    float64   `json:"secondRate"`
	Bars          []StepBar `json:"bars"`
}

// TraceSummary aggregates step statistics of a trace.
type TraceSummary struct {
	TotalSteps          int     `json:"totalSteps"`
	CompletedSteps      int     `json:"completedSteps"`
	PendingSteps        int     `json:"pendingSteps"`
	FollowUpTasks       int     `json:"followUpTasks"`
	ConsecutiveFailures uint64  `json:"consecutiveFailures"`
	CompletedPercent    float64 `json:"completedPercent"`
}
