package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/orchestrator/internal/types"
)

func TestStatusForRoleDispatched(t *testing.T) {
	env := types.Envelope{Type: types.EventRoleDispatched, Payload: map[string]any{"role": types.RoleBuilder}}
	assert.Contains(t, statusFor(env), "dispatching")
}

func TestStatusForRoleFailedClipsLongError(t *testing.T) {
	env := types.Envelope{Type: types.EventRoleFailed, Payload: types.RoleFailed{
		Role: types.RolePlanner, Error: "this is a very long adapter error message that should be clipped",
	}}
	s := statusFor(env)
	assert.Contains(t, s, "failed")
	assert.LessOrEqual(t, len([]rune(s)), 80)
}

func TestFlowLineRoleSucceeded(t *testing.T) {
	env := types.Envelope{Type: types.EventRoleSucceeded, Payload: types.RoleSucceeded{
		Role: types.RoleReviewer, AdapterID: "claude-cli", CompletedAt: time.Now(),
	}}
	line := flowLine(env)
	assert.Contains(t, line, "reviewer")
	assert.Contains(t, line, "claude-cli")
}

func TestFlowLineCircuitOpen(t *testing.T) {
	env := types.Envelope{Type: types.EventTelemetryCircuit, Payload: types.AdapterCircuitOpen{
		AdapterID: "flaky", Until: time.Now().Add(time.Minute),
	}}
	assert.Contains(t, flowLine(env), "flaky")
}

func TestClipTruncatesToWidth(t *testing.T) {
	out := clip("a very long piece of text indeed", 10)
	assert.LessOrEqual(t, len([]rune(out)), 10)
}

func TestPadRightPadsToWidth(t *testing.T) {
	out := padRight("hi", 6)
	assert.Equal(t, 6, len([]rune(out)))
}

func TestTaskRowIncludesIDAndStatus(t *testing.T) {
	task := &types.Task{ID: "t1", Title: "do a thing", Status: types.StatusDone}
	row := TaskRow(task)
	assert.Contains(t, row, "t1")
	assert.Contains(t, row, "Done")
	assert.Contains(t, row, "do a thing")
}
