// Package httpapi implements the external HTTP surface spec §6 names:
// submit a task, issue a human-intervention action, tail the Event Bus,
// list recently terminal tasks, and a healthz probe. Core orchestration
// logic lives entirely in internal/coordinator and internal/supervisor;
// this package is a thin adapter over the Dispatcher and Registry.
//
// Grounded on jordigilh-kubernaut's chi-router-plus-cors-middleware wiring
// (test/integration/gateway/cors_test.go): a chi.Router with cors.Handler
// mounted first, plain net/http handlers registered per route.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/types"
)

// TaskSubmitter is the minimal Dispatcher surface the /tasks endpoint needs.
type TaskSubmitter interface {
	Submit(task *types.Task) string
}

// Intervener is the minimal Dispatcher surface the /tasks/{id}/action
// endpoint needs.
type Intervener interface {
	Intervene(ctx context.Context, taskID string, cmd coordinator.InterventionCommand) (coordinator.InterventionResult, bool)
}

// EventSource exposes the Event Bus' tail/replay/publish surface. Publish
// lets the ingress handlers themselves emit the action.received echo and
// its action.acknowledged/action.rejected result (spec §5, §6, §8
// invariant #4).
type EventSource interface {
	Publish(eventType string, taskID string, payload any) uint64
	Subscribe() (<-chan types.Envelope, func())
	Recent(limit int) []types.Envelope
}

// TaskReader exposes the Registry's read surface for /tasks/{id} and
// /tasks/recent.
type TaskReader interface {
	Get(id string) *types.Task
	Recent(limit int) []*types.Task
}

// Server bundles the collaborators the HTTP handlers dispatch to.
type Server struct {
	Dispatcher TaskSubmitter
	Intervener Intervener
	Bus        EventSource
	Registry   TaskReader
}

// Router builds the chi.Router exposing spec §6's external interface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Post("/tasks", s.handleSubmit)
	r.Get("/tasks/recent", s.handleRecent)
	r.Get("/tasks/{id}", s.handleGetTask)
	r.Post("/tasks/{id}/action", s.handleAction)
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type submitResponse struct {
	TaskID string `json:"taskId"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "payload_invalid", "title is required")
		return
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.Bus.Publish(types.EventActionReceived, id, map[string]any{"action": "submit", "title": req.Title})

	now := time.Now()
	task := &types.Task{
		ID: id, Title: req.Title, Description: req.Description,
		Status: types.StatusQueued, CreatedAt: now, UpdatedAt: now,
		SubTaskIDs: make(map[string]struct{}),
	}
	taskID := s.Dispatcher.Submit(task)
	s.Bus.Publish(types.EventActionAck, taskID, map[string]any{"action": "submit"})
	writeJSON(w, http.StatusAccepted, submitResponse{TaskID: taskID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task := s.Registry.Get(id)
	if task == nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown task id")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.Registry.Recent(limit))
}

type actionRequest struct {
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Depth    int    `json:"depth,omitempty"`
}

type actionResponse struct {
	Accepted   bool   `json:"accepted"`
	ReasonCode string `json:"reasonCode,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	s.Bus.Publish(types.EventActionReceived, id, map[string]any{"action": req.Action})

	result, found := s.Intervener.Intervene(r.Context(), id, coordinator.InterventionCommand{
		Action:   coordinator.InterventionAction(req.Action),
		Reason:   req.Reason,
		Feedback: req.Feedback,
		Depth:    req.Depth,
	})
	if !found {
		s.Bus.Publish(types.EventActionRejected, id, map[string]any{"action": req.Action, "reasonCode": "not_found"})
		writeError(w, http.StatusNotFound, "not_found", "unknown or already-terminal task id")
		return
	}

	status := http.StatusOK
	if result.Accepted {
		s.Bus.Publish(types.EventActionAck, id, map[string]any{"action": req.Action})
	} else {
		status = http.StatusConflict
		s.Bus.Publish(types.EventActionRejected, id, map[string]any{
			"action": req.Action, "reasonCode": result.ReasonCode, "message": result.Message,
		})
	}
	writeJSON(w, status, actionResponse{Accepted: result.Accepted, ReasonCode: result.ReasonCode, Message: result.Message})
}

// handleEvents streams the Event Bus as newline-delimited JSON: the replay
// backlog first, then live events, until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot stream")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	ch, cancel := s.Bus.Subscribe()
	defer cancel()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(env); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
