// Package supervisor implements the Dispatcher and Supervisor from spec
// §4.9: the Dispatcher creates and supervises one Coordinator per task
// (including spawned sub-tasks), routing Event Bus traffic to the
// Coordinator it concerns; the Supervisor observes failures and quality
// concerns out-of-band and maintains the per-adapter circuit breakers.
//
// Grounded on haricheung-agentic-shell's cmd/agsh/main.go runSubtaskDispatcher
// (a bus-subscribing goroutine holding a parentTaskID -> dispatch-state map,
// fail-fast supervision of its spawned goroutines) generalized from a fixed
// executor/agentval pair into a per-task Coordinator, and its auditor's
// tap-the-bus-read-only shape for the Supervisor side.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/types"
)

// EventSource is the Event Bus surface the Dispatcher subscribes to.
type EventSource interface {
	Publisher
	Subscribe() (<-chan types.Envelope, func())
}

// entry tracks one live Coordinator and its place in the spawn tree.
type entry struct {
	coord    *coordinator.Coordinator
	parentID string
}

// Dispatcher creates a Coordinator for every top-level task submission and
// every sub-task spawned by a Coordinator's Planner output, routes role
// outcomes and retry commands onto the right Coordinator's inbox, and
// forwards a finished child's outcome to its parent (spec §4.9 "Dispatcher").
//
// A single Dispatcher holds the shared, process-wide Role Worker pools: all
// Coordinators it creates share the same Planner/Builder/Reviewer(/
// Orchestrator) Worker instances, matching spec §4.6's "worker pool (router
// of size N>=1)" — the pool, not the Coordinator, owns concurrency control.
type Dispatcher struct {
	log *slog.Logger
	bus EventSource

	depsTemplate coordinator.Dependencies // Planner/Builder/Reviewer/etc, shared
	newConfig    func() coordinator.Config

	mu       sync.Mutex
	entries  map[string]*entry
	rootCtx  context.Context
	unsub    func()
}

// New creates a Dispatcher. depsTemplate supplies every Dependencies field
// except Spawner (the Dispatcher always sets itself) and Config (supplied
// per task by newConfig, so the depth-cap override from set_subtask_depth
// can differ from the default without mutating shared state). ctx bounds
// the lifetime of every Coordinator the Dispatcher creates, including
// sub-tasks spawned after ctx's parent call returns — Spawn has no context
// parameter of its own (coordinator.SubTaskSpawner), so the Dispatcher
// supplies one root context for the whole task tree.
func New(ctx context.Context, bus EventSource, log *slog.Logger, depsTemplate coordinator.Dependencies, newConfig func() coordinator.Config) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		log:          log.With("component", "dispatcher"),
		bus:          bus,
		depsTemplate: depsTemplate,
		newConfig:    newConfig,
		entries:      make(map[string]*entry),
		rootCtx:      ctx,
	}
	ch, unsub := bus.Subscribe()
	d.unsub = unsub
	go d.route(ch)
	return d
}

// Close stops the Dispatcher's bus subscription. Coordinators already
// created keep running until their own ctx is cancelled.
func (d *Dispatcher) Close() {
	if d.unsub != nil {
		d.unsub()
	}
}

// Submit creates and starts a top-level Coordinator (depth 0) for task,
// registers it, and returns its id. The Coordinator begins GOAP dispatch
// immediately.
func (d *Dispatcher) Submit(task *types.Task) string {
	d.bus.Publish(types.EventTaskSubmitted, task.ID, task.Clone())
	d.createAndStart(task, 0, "")
	return task.ID
}

// Spawn implements coordinator.SubTaskSpawner: it builds a child Task at
// depth, starts its own Coordinator, and records the parent relationship so
// the child's terminal outcome is forwarded via SubTaskCompletedMsg or
// SubTaskFailedMsg (spec §4.9 "forwards a SubTaskCompleted/SubTaskFailed to
// the parent").
func (d *Dispatcher) Spawn(parentID string, depth int, title, description string) (string, error) {
	childID := uuid.NewString()
	now := time.Now()
	child := &types.Task{
		ID:           childID,
		Title:        title,
		Description:  description,
		Status:       types.StatusQueued,
		CreatedAt:    now,
		UpdatedAt:    now,
		ParentTaskID: parentID,
		SubTaskIDs:   make(map[string]struct{}),
	}
	d.bus.Publish(types.EventTaskSubmitted, child.ID, child.Clone())
	d.createAndStart(child, depth, parentID)
	return childID, nil
}

// createAndStart builds a Coordinator for task using the Dispatcher's shared
// dependency template, registers it, starts it, and arranges for its
// termination to be observed (fail-fast: the Dispatcher never itself
// restarts a Coordinator — retries happen inside the Coordinator/Supervisor,
// per spec §4.9's "stop-on-exception" policy applying to the Dispatcher
// layer only).
func (d *Dispatcher) createAndStart(task *types.Task, depth int, parentID string) {
	deps := d.depsTemplate
	deps.Spawner = d
	deps.Config = d.newConfig()

	c := coordinator.New(task, depth, deps)

	d.mu.Lock()
	d.entries[task.ID] = &entry{coord: c, parentID: parentID}
	d.mu.Unlock()

	c.Start(d.rootCtx)
	go d.awaitTermination(task.ID, c, parentID)
}

func (d *Dispatcher) awaitTermination(taskID string, c *coordinator.Coordinator, parentID string) {
	select {
	case <-c.Done():
	case <-d.rootCtx.Done():
		return
	}

	final := c.Task()

	d.mu.Lock()
	delete(d.entries, taskID)
	d.mu.Unlock()

	if parentID == "" {
		return
	}

	d.mu.Lock()
	parent, ok := d.entries[parentID]
	d.mu.Unlock()
	if !ok {
		d.log.Warn("parent coordinator already gone, dropping sub-task outcome", "child", taskID, "parent", parentID)
		return
	}

	if final.Status == types.StatusDone {
		parent.coord.Deliver(coordinator.SubTaskCompletedMsg(types.SubTaskCompleted{
			ParentTaskID: parentID,
			ChildTaskID:  taskID,
			Summary:      final.Summary,
		}))
		return
	}

	reason := final.Error
	if reason == "" {
		reason = fmt.Sprintf("sub-task ended in status %s", final.Status)
	}
	parent.coord.Deliver(coordinator.SubTaskFailedMsg(types.SubTaskFailed{
		ParentTaskID: parentID,
		ChildTaskID:  taskID,
		Error:        reason,
	}))
}

// route drains the Event Bus and forwards RoleSucceeded/RoleFailed outcomes
// to the Coordinator that owns the matching TaskID. Everything else on the
// bus is ignored here — the Supervisor subscribes independently for its own
// concerns.
func (d *Dispatcher) route(ch <-chan types.Envelope) {
	for env := range ch {
		switch env.Type {
		case types.EventRoleSucceeded:
			succ, ok := env.Payload.(types.RoleSucceeded)
			if !ok {
				continue
			}
			d.deliver(succ.TaskID, coordinator.RoleSucceededMsg(succ))
		case types.EventRoleFailed:
			failed, ok := env.Payload.(types.RoleFailed)
			if !ok {
				continue
			}
			d.deliver(failed.TaskID, coordinator.RoleFailedMsg(failed))
		}
	}
}

// deliver routes msg to taskID's Coordinator inbox. Unknown task ids are
// silently dropped: the Coordinator may have already reached a terminal
// state and been removed between dispatch and outcome, which is not an
// error (spec §5 "task.done and task.failed are terminal ... no further
// task-scoped events follow" — a race against that boundary is expected,
// not exceptional).
func (d *Dispatcher) deliver(taskID string, msg any) {
	d.mu.Lock()
	e, ok := d.entries[taskID]
	d.mu.Unlock()
	if !ok {
		return
	}
	e.coord.Deliver(msg)
}

// RetryRole delivers a Supervisor-issued retry command to taskID's
// Coordinator, if it is still live.
func (d *Dispatcher) RetryRole(r types.RetryRole) {
	d.deliver(r.TaskID, coordinator.RetryCommandMsg(r))
}

// Intervene forwards a synchronous human-intervention command to taskID's
// Coordinator. ok is false if no such task is currently tracked.
func (d *Dispatcher) Intervene(ctx context.Context, taskID string, cmd coordinator.InterventionCommand) (coordinator.InterventionResult, bool) {
	d.mu.Lock()
	e, ok := d.entries[taskID]
	d.mu.Unlock()
	if !ok {
		return coordinator.InterventionResult{}, false
	}
	return e.coord.RequestIntervention(ctx, cmd), true
}

// Active returns the ids of every Coordinator currently tracked.
func (d *Dispatcher) Active() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	return ids
}
