package models

import (
	"encoding/json"
	"time"
)

// Status values reported by the workflow engine.
const (
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
	StatusUnknown   = "unknown"
)

// TaskInfo describes one scheduled unit of work attached to a step.
type TaskInfo struct {
	ID                  string     `json:"id"`
	TaskName            string     `json:"taskName"`
	ExecutionTime       time.Time  `json:"executionTime"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	ExecutionVersion    uint32     `json:"executionVersion"`
	LastFailure         *time.Time `json:"lastFailure,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
}

// StepTrace is one executed step within a trace.
type StepTrace struct {
	DurableStepID string     `json:"durableStepId"`
	Result        *string    `json:"result,omitempty"`
	ScheduledAt   time.Time  `json:"scheduledAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	InTaskInfo    TaskInfo   `json:"inTaskInfo"`
	OutTaskInfo   *TaskInfo  `json:"outTaskInfo,omitempty"`
}

// DurableTrace is a recorded run of a durable workflow.
type DurableTrace struct {
	Name               string      `json:"name"`
	DurableExecutionID string      `json:"durableExecutionId"`
	ScheduledAt        time.Time   `json:"scheduledAt"`
	CompletedAt        *time.Time  `json:"completedAt,omitempty"`
	Payload            *string     `json:"payload,omitempty"`
	Result             *string     `json:"result,omitempty"`
	IsError            *bool       `json:"isError,omitempty"`
	Status             string      `json:"status"`
	FailureReason      *string     `json:"failureReason,omitempty"`
	FailureSource      *string     `json:"failureSource,omitempty"`
	Version            uint32      `json:"version"`
	Steps              []StepTrace `json:"steps"`
}

// DisplayStatus maps the raw status onto the closed set shown to users.
func (t DurableTrace) DisplayStatus() string {
	switch t.Status {
	case StatusRunning, StatusFailed, StatusCompleted:
		return t.Status
	default:
		return StatusUnknown
	}
}

// Duration returns the elapsed time of the whole execution, if it completed.
func (t DurableTrace) Duration() (time.Duration, bool) {
	if t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(t.ScheduledAt), true
}

// Step looks up a step by its identifier.
func (t DurableTrace) Step(id string) (StepTrace, bool) {
	for _, step := range t.Steps {
		if step.DurableStepID == id {
			return step, true
		}
	}
	return StepTrace{}, false
}

// PayloadText returns the input payload or a placeholder.
func (t DurableTrace) PayloadText() string {
	if t.Payload == nil {
		return "No Payload"
	}
	return *t.Payload
}

// Duration returns how long the step took, if it completed.
func (s StepTrace) Duration() (time.Duration, bool) {
	if s.CompletedAt == nil {
		return 0, false
	}
	return s.CompletedAt.Sub(s.ScheduledAt), true
}

// ScheduledAtText formats the scheduling time as RFC 3339 in UTC.
func (s StepTrace) ScheduledAtText() string {
	return s.ScheduledAt.UTC().Format(time.RFC3339)
}

// CompletedAtText formats the completion time in UTC, or "-" while still running.
func (s StepTrace) CompletedAtText() string {
	if s.CompletedAt == nil {
		return "-"
	}
	return s.CompletedAt.UTC().Format(time.RFC3339)
}

// ResultText returns the step result, or "-" when there is none.
func (s StepTrace) ResultText() string {
	if s.Result == nil {
		return "-"
	}
	return *s.Result
}

// InTaskText pretty-prints the input task info.
func (s StepTrace) InTaskText() string {
	return prettyJSON(s.InTaskInfo)
}

// OutTaskText pretty-prints the output task info, empty when absent.
func (s StepTrace) OutTaskText() string {
	if s.OutTaskInfo == nil {
		return ""
	}
	return prettyJSON(*s.OutTaskInfo)
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
