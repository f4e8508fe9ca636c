package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/types"
)

type fakeDispatcher struct {
	submitted []*types.Task
	result    coordinator.InterventionResult
	found     bool
}

func (f *fakeDispatcher) Submit(task *types.Task) string {
	f.submitted = append(f.submitted, task)
	return task.ID
}

func (f *fakeDispatcher) Intervene(ctx context.Context, taskID string, cmd coordinator.InterventionCommand) (coordinator.InterventionResult, bool) {
	return f.result, f.found
}

type fakeBus struct {
	published []types.Envelope
}

func (b *fakeBus) Publish(eventType string, taskID string, payload any) uint64 {
	b.published = append(b.published, types.Envelope{Type: eventType, TaskID: taskID, Payload: payload})
	return uint64(len(b.published))
}
func (b *fakeBus) Subscribe() (<-chan types.Envelope, func()) {
	ch := make(chan types.Envelope)
	return ch, func() {}
}
func (b *fakeBus) Recent(limit int) []types.Envelope { return nil }

type fakeRegistry struct {
	byID map[string]*types.Task
}

func (f *fakeRegistry) Get(id string) *types.Task   { return f.byID[id] }
func (f *fakeRegistry) Recent(limit int) []*types.Task {
	out := make([]*types.Task, 0, len(f.byID))
	for _, t := range f.byID {
		out = append(out, t)
	}
	return out
}

func TestHandleSubmitAcceptsTaskAndReturnsID(t *testing.T) {
	d := &fakeDispatcher{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	body, _ := json.Marshal(map[string]string{"title": "do a thing"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, d.submitted, 1)
	assert.Equal(t, "do a thing", d.submitted[0].Title)

	var resp submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TaskID)
}

func TestHandleSubmitRejectsMissingTitle(t *testing.T) {
	d := &fakeDispatcher{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTaskReturns404ForUnknown(t *testing.T) {
	d := &fakeDispatcher{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleActionReturnsConflictWhenRejected(t *testing.T) {
	d := &fakeDispatcher{result: coordinator.InterventionResult{Accepted: false, ReasonCode: "invalid_state"}, found: true}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	body, _ := json.Marshal(map[string]string{"action": "pause_task"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleActionReturns404WhenTaskUnknown(t *testing.T) {
	d := &fakeDispatcher{found: false}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	body, _ := json.Marshal(map[string]string{"action": "pause_task"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/missing/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSubmitEmitsActionReceivedBeforeAcknowledged(t *testing.T) {
	d := &fakeDispatcher{}
	bus := &fakeBus{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: bus, Intervener: d}

	body, _ := json.Marshal(map[string]string{"title": "do a thing"})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Len(t, bus.published, 2)
	assert.Equal(t, types.EventActionReceived, bus.published[0].Type)
	assert.Equal(t, types.EventActionAck, bus.published[1].Type)
}

func TestHandleActionEmitsActionReceivedBeforeResult(t *testing.T) {
	d := &fakeDispatcher{result: coordinator.InterventionResult{Accepted: true}, found: true}
	bus := &fakeBus{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: bus, Intervener: d}

	body, _ := json.Marshal(map[string]string{"action": "pause_task"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/t1/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Len(t, bus.published, 2)
	assert.Equal(t, types.EventActionReceived, bus.published[0].Type)
	assert.Equal(t, types.EventActionAck, bus.published[1].Type)
}

func TestHandleActionEmitsActionRejectedWhenTaskUnknown(t *testing.T) {
	d := &fakeDispatcher{found: false}
	bus := &fakeBus{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: bus, Intervener: d}

	body, _ := json.Marshal(map[string]string{"action": "pause_task"})
	req := httptest.NewRequest(http.MethodPost, "/tasks/missing/action", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Len(t, bus.published, 2)
	assert.Equal(t, types.EventActionReceived, bus.published[0].Type)
	assert.Equal(t, types.EventActionRejected, bus.published[1].Type)
}

func TestHandleHealthz(t *testing.T) {
	d := &fakeDispatcher{}
	s := &Server{Dispatcher: d, Registry: &fakeRegistry{byID: map[string]*types.Task{}}, Bus: &fakeBus{}, Intervener: d}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
