// Package blackboard implements the per-task and process-wide key/value
// stores from spec §4.2. Mutations publish BlackboardChanged events onto the
// Event Bus — this is the stigmergy substrate Coordinators use to react to
// each others' success/failure without direct messaging.
//
// Grounded on internal/roles/memory/memory.go's single-writer-goroutine
// discipline and internal/tasklog/tasklog.go's map-of-maps registry shape
// (haricheung-agentic-shell), generalized from task-scoped JSONL logging to
// a read/write key-value store with a global scope.
package blackboard

import (
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/types"
)

// Publisher is the minimal Event Bus surface the Blackboard depends on.
type Publisher interface {
	Publish(eventType string, taskID string, payload any) uint64
}

// Blackboard holds per-task scratchpads and the global stigmergy store.
type Blackboard struct {
	mu     sync.RWMutex
	tasks  map[string]map[string]string
	global map[string]string
	bus    Publisher
}

// New creates an empty Blackboard that publishes changes onto bus.
func New(bus Publisher) *Blackboard {
	return &Blackboard{
		tasks:  make(map[string]map[string]string),
		global: make(map[string]string),
		bus:    bus,
	}
}

// PutTask updates key in taskID's map and publishes a task-scoped
// BlackboardChanged event.
func (b *Blackboard) PutTask(taskID, key, value string) {
	b.mu.Lock()
	m, ok := b.tasks[taskID]
	if !ok {
		m = make(map[string]string)
		b.tasks[taskID] = m
	}
	m[key] = value
	b.mu.Unlock()

	if b.bus != nil {
		b.bus.Publish(types.EventBlackboardChange, taskID, types.BlackboardChanged{
			Scope: types.ScopeTask, TaskID: taskID, Key: key, Value: value,
		})
	}
}

// GetTask returns a copy of taskID's scratchpad. Copy semantics: the live
// map is never returned (spec §4.2 invariant).
func (b *Blackboard) GetTask(taskID string) map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src, ok := b.tasks[taskID]
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// RemoveTask deletes taskID's scratchpad. Per spec §4.2, this does not emit a
// retroactive deletion event.
func (b *Blackboard) RemoveTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tasks, taskID)
}

// PutGlobal writes a process-wide stigmergy signal and publishes a
// global-scoped BlackboardChanged event. Fire-and-forget: callers do not
// wait for subscribers to observe it.
func (b *Blackboard) PutGlobal(key, value string) {
	b.mu.Lock()
	b.global[key] = value
	b.mu.Unlock()

	if b.bus != nil {
		b.bus.Publish(types.EventBlackboardChange, "", types.BlackboardChanged{
			Scope: types.ScopeGlobal, Key: key, Value: value,
		})
	}
}

// GetGlobal returns the current value of a global key and whether it is set.
func (b *Blackboard) GetGlobal(key string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.global[key]
	return v, ok
}

// GlobalSnapshot returns a copy of the entire global store, for diagnostics
// and for Coordinators scanning for stigmergy signals by prefix.
func (b *Blackboard) GlobalSnapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.global))
	for k, v := range b.global {
		out[k] = v
	}
	return out
}

// HasGlobalPrefix reports whether any global key has the given prefix — used
// by Coordinators to detect e.g. "adapter_circuit:<id>" signals without
// knowing the exact adapter id in advance.
func (b *Blackboard) HasGlobalPrefix(prefix string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for k := range b.global {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// EntryAt builds a BlackboardEntry snapshot for diagnostics/export.
func EntryAt(scope types.BlackboardScope, taskID, key, value, writer string, at time.Time) types.BlackboardEntry {
	return types.BlackboardEntry{Scope: scope, TaskID: taskID, Key: key, Value: value, LastWriter: writer, At: at}
}
