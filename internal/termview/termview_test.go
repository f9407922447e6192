package termview

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceviz/internal/models"
)

func init() {
	color.NoColor = true
}

func TestTrack(t *testing.T) {
	c := color.New(color.FgBlue)
	assert.Equal(t, "█████     ", track(models.Geometry{Position: 0, Width: 50}, 10, c))
	assert.Equal(t, "  ███     ", track(models.Geometry{Position: 25, Width: 25}, 10, c))
	assert.Equal(t, "█         ", track(models.Geometry{Position: 0, Width: 2}, 10, c))
	assert.Equal(t, "██        ", track(models.Geometry{Position: -50, Width: 70}, 10, c))
	assert.Equal(t, "        ██", track(models.Geometry{Position: 80, Width: 80}, 10, c))
	assert.Equal(t, "          ", track(models.Geometry{Position: 150, Width: 10}, 10, c))
}

func TestRender(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	done := start.Add(10 * time.Second)
	end := start.Add(20 * time.Second)
	payload := `{"cardId":"c-1"}`
	trace := models.DurableTrace{
		Name:               "assign-card",
		DurableExecutionID: "exec-1",
		ScheduledAt:        start,
		CompletedAt:        &end,
		Payload:            &payload,
		Status:             "completed",
		Version:            4,
		Steps: []models.StepTrace{
			{DurableStepID: "reserve", ScheduledAt: start, CompletedAt: &done},
			{DurableStepID: "assign", ScheduledAt: done},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, trace, 20))
	out := buf.String()

	assert.Contains(t, out, "Durable Trace (assign-card)")
	assert.Contains(t, out, "Status: completed > Version: 4")
	assert.Contains(t, out, "Total Duration: 20 Seconds")
	assert.Contains(t, out, "Input Payload: "+payload)
	assert.Contains(t, out, "reserve  10 seconds")
	assert.Contains(t, out, "assign  Not completed")
	assert.Contains(t, out, "|"+strings.Repeat("█", 10)+strings.Repeat(" ", 10)+"|")
	assert.Contains(t, out, "2024-05-01T10:00:10Z -> -")
}
