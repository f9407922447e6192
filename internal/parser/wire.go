package parser

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"traceviz/internal/models"
)

// Wire types mirror the models with pointer fields so absent and null
// required values can be told apart from zero values.

type wireTaskInfo struct {
	ID                  *string    `json:"id"`
	TaskName            *string    `json:"taskName"`
	ExecutionTime       *time.Time `json:"executionTime"`
	ConsecutiveFailures *uint32    `json:"consecutiveFailures"`
	ExecutionVersion    *uint32    `json:"executionVersion"`
	LastFailure         *time.Time `json:"lastFailure"`
	LastSuccess         *time.Time `json:"lastSuccess"`
}

type wireStep struct {
	DurableStepID *string       `json:"durableStepId"`
	Result        *string       `json:"result"`
	ScheduledAt   *time.Time    `json:"scheduledAt"`
	CompletedAt   *time.Time    `json:"completedAt"`
	InTaskInfo    *wireTaskInfo `json:"inTaskInfo"`
	OutTaskInfo   *wireTaskInfo `json:"outTaskInfo"`
}

type wireTrace struct {
	Name               *string    `json:"name"`
	DurableExecutionID *string    `json:"durableExecutionId"`
	ScheduledAt        *time.Time `json:"scheduledAt"`
	CompletedAt        *time.Time `json:"completedAt"`
	Payload            *string    `json:"payload"`
	Result             *string    `json:"result"`
	IsError            *bool      `json:"isError"`
	Status             *string    `json:"status"`
	FailureReason      *string    `json:"failureReason"`
	FailureSource      *string    `json:"failureSource"`
	Version            *uint32    `json:"version"`
	Steps              []wireStep `json:"steps"`
}

var (
	traceFields = []string{"name", "durableExecutionId", "scheduledAt", "completedAt", "payload",
		"result", "isError", "status", "failureReason", "failureSource", "version", "steps"}
	stepFields = []string{"durableStepId", "result", "scheduledAt", "completedAt", "inTaskInfo", "outTaskInfo"}
	taskFields = []string{"id", "taskName", "executionTime", "consecutiveFailures", "executionVersion",
		"lastFailure", "lastSuccess"}
)

// checkFieldNames rejects keys that only match a known field when case is
// ignored. encoding/json folds case while decoding, trace documents do not.
// Values of the wrong shape are skipped here and reported by the decoder.
func checkFieldNames(data []byte) error {
	trace, err := checkObject(data, "", traceFields)
	if err != nil || trace == nil {
		return err
	}

	var steps []json.RawMessage
	if json.Unmarshal(trace["steps"], &steps) != nil {
		return nil
	}
	for i, raw := range steps {
		path := fmt.Sprintf("steps[%d]", i)
		step, err := checkObject(raw, path, stepFields)
		if err != nil {
			return err
		}
		for _, name := range []string{"inTaskInfo", "outTaskInfo"} {
			if _, err := checkObject(step[name], path+"."+name, taskFields); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkObject(data json.RawMessage, path string, fields []string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &obj) != nil {
		return nil, nil
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, field := range fields {
			if key != field && strings.EqualFold(key, field) {
				return nil, fmt.Errorf("unknown field %q, expected %q", joinPath(path, key), joinPath(path, field))
			}
		}
	}
	return obj, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

type missingField string

func (m missingField) Error() string {
	return fmt.Sprintf("missing required field %q", string(m))
}

func (w wireTrace) toModel() (models.DurableTrace, error) {
	switch {
	case w.Name == nil:
		return models.DurableTrace{}, missingField("name")
	case w.DurableExecutionID == nil:
		return models.DurableTrace{}, missingField("durableExecutionId")
	case w.ScheduledAt == nil:
		return models.DurableTrace{}, missingField("scheduledAt")
	case w.Status == nil:
		return models.DurableTrace{}, missingField("status")
	case w.Version == nil:
		return models.DurableTrace{}, missingField("version")
	case w.Steps == nil:
		return models.DurableTrace{}, missingField("steps")
	}

	steps := make([]models.StepTrace, 0, len(w.Steps))
	for i, raw := range w.Steps {
		step, err := raw.toModel(fmt.Sprintf("steps[%d]", i))
		if err != nil {
			return models.DurableTrace{}, err
		}
		steps = append(steps, step)
	}

	return models.DurableTrace{
		Name:               *w.Name,
		DurableExecutionID: *w.DurableExecutionID,
		ScheduledAt:        *w.ScheduledAt,
		CompletedAt:        w.CompletedAt,
		Payload:            w.Payload,
		Result:             w.Result,
		IsError:            w.IsError,
		Status:             *w.Status,
		FailureReason:      w.FailureReason,
		FailureSource:      w.FailureSource,
		Version:            *w.Version,
		Steps:              steps,
	}, nil
}

func (w wireStep) toModel(path string) (models.StepTrace, error) {
	switch {
	case w.DurableStepID == nil:
		return models.StepTrace{}, missingField(path + ".durableStepId")
	case w.ScheduledAt == nil:
		return models.StepTrace{}, missingField(path + ".scheduledAt")
	case w.InTaskInfo == nil:
		return models.StepTrace{}, missingField(path + ".inTaskInfo")
	}

	in, err := w.InTaskInfo.toModel(path + ".inTaskInfo")
	if err != nil {
		return models.StepTrace{}, err
	}
	step := models.StepTrace{
		DurableStepID: *w.DurableStepID,
		Result:        w.Result,
		ScheduledAt:   *w.ScheduledAt,
		CompletedAt:   w.CompletedAt,
		InTaskInfo:    in,
	}
	if w.OutTaskInfo != nil {
		out, err := w.OutTaskInfo.toModel(path + ".outTaskInfo")
		if err != nil {
			return models.StepTrace{}, err
		}
		step.OutTaskInfo = &out
	}
	return step, nil
}

func (w wireTaskInfo) toModel(path string) (models.TaskInfo, error) {
	switch {
	case w.ID == nil:
		return models.TaskInfo{}, missingField(path + ".id")
	case w.TaskName == nil:
		return models.TaskInfo{}, missingField(path + ".taskName")
	case w.ExecutionTime == nil:
		return models.TaskInfo{}, missingField(path + ".executionTime")
	case w.ConsecutiveFailures == nil:
		return models.TaskInfo{}, missingField(path + ".consecutiveFailures")
	case w.ExecutionVersion == nil:
		return models.TaskInfo{}, missingField(path + ".executionVersion")
	}
	return models.TaskInfo{
		ID:                  *w.ID,
		TaskName:            *w.TaskName,
		ExecutionTime:       *w.ExecutionTime,
		ConsecutiveFailures: *w.ConsecutiveFailures,
		ExecutionVersion:    *w.ExecutionVersion,
		LastFailure:         w.LastFailure,
		LastSuccess:         w.LastSuccess,
	}, nil
}
