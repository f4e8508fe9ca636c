// Package registry implements the Task Registry from spec §4.10: the
// in-memory, authoritative read-view of every task the runtime has ever
// accepted, kept current by the owning Coordinator's Update calls and
// exposed read-only to HTTP ingress, the operator CLI, and tests.
//
// Grounded on haricheung-agentic-shell's internal/tasklog.Registry: a single
// map-of-tasks behind one mutex, with the same "sole authority, idempotent
// writes, nil-safe reads" shape, adapted from a JSONL-event-log registry
// (one append-only file per task) to a full task-snapshot registry (one
// *types.Task per task, replaced wholesale on every Update).
package registry

import (
	"sort"
	"sync"

	"github.com/taskforge/orchestrator/internal/types"
)

// Registry holds the most recent snapshot of every task the runtime has
// accepted. It implements coordinator.Registry (the Update method) and adds
// the read-side operations spec §4.10/§6 name: Get, List, Children.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*types.Task
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*types.Task)}
}

// Update replaces the stored snapshot for task.ID. task is cloned before
// storage so the caller's mutable original can't alias registry state.
func (r *Registry) Update(task *types.Task) {
	if task == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[task.ID] = task.Clone()
}

// Get returns the stored snapshot for id, or nil if unknown.
func (r *Registry) Get(id string) *types.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone()
}

// List returns every known task snapshot, ordered by CreatedAt ascending
// (ties broken by ID for determinism).
func (r *Registry) List() []*types.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Task, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Children returns every known task whose ParentTaskID is parentID, in the
// same deterministic order as List.
func (r *Registry) Children(parentID string) []*types.Task {
	all := r.List()
	out := make([]*types.Task, 0)
	for _, t := range all {
		if t.ParentTaskID == parentID {
			out = append(out, t)
		}
	}
	return out
}

// Recent returns the most recently updated up-to-limit terminal tasks
// (Done or Blocked), newest first — the data backing the HTTP /recent
// endpoint (spec §6).
func (r *Registry) Recent(limit int) []*types.Task {
	all := r.List()
	terminal := make([]*types.Task, 0, len(all))
	for _, t := range all {
		if t.Status == types.StatusDone || t.Status == types.StatusBlocked {
			terminal = append(terminal, t)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].UpdatedAt.After(terminal[j].UpdatedAt)
	})
	if limit <= 0 || limit >= len(terminal) {
		return terminal
	}
	return terminal[:limit]
}

// Count returns the number of tasks currently tracked.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
