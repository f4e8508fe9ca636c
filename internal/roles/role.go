// Package roles implements the Planner, Builder, and Reviewer Role Workers
// from spec §4.6: each runs over a bounded worker pool, executes the Adapter
// Executor, scores the result with the Quality Evaluator, and applies the
// self-retry-once rule before publishing its outcome onto the Event Bus.
//
// Grounded on haricheung-agentic-shell's internal/roles package (one handler
// type per role, dispatched from a shared bus loop) — the worker pool itself
// is github.com/ygrebnov/workers, replacing the teacher's ad hoc goroutine
// fan-out with a configurable, bounded pool.
package roles

import (
	"context"
	"errors"
	"time"

	"github.com/ygrebnov/workers"

	"github.com/taskforge/orchestrator/internal/adapter"
	"github.com/taskforge/orchestrator/internal/orcherrors"
	"github.com/taskforge/orchestrator/internal/quality"
	"github.com/taskforge/orchestrator/internal/types"
)

// Publisher is the minimal Event Bus surface role workers depend on.
type Publisher interface {
	Publish(eventType string, taskID string, payload any) uint64
}

// PromptBuilder renders the adapter-facing prompt for one ExecuteRole
// request.
type PromptBuilder func(types.ExecuteRole) string

// Config controls pool sizing for one role's Worker.
type Config struct {
	// MaxWorkers bounds concurrent in-flight requests for this role. Zero
	// leaves the pool sized dynamically (github.com/ygrebnov/workers default).
	MaxWorkers uint
}

// Worker runs one role (Planner, Builder, or Reviewer) over a bounded pool.
type Worker struct {
	role     types.Role
	executor *adapter.Executor
	bus      Publisher
	prompt   PromptBuilder
	closed   adapter.CircuitChecker
	pool     workers.Workers[struct{}]
}

// New creates and starts a Worker for role, backed by its own worker pool.
// closed reports whether an adapter's circuit is currently usable; a nil
// checker treats every adapter as available.
func New(ctx context.Context, role types.Role, executor *adapter.Executor, bus Publisher, prompt PromptBuilder, closed adapter.CircuitChecker, cfg Config) *Worker {
	w := &Worker{
		role:     role,
		executor: executor,
		bus:      bus,
		prompt:   prompt,
		closed:   closed,
	}
	w.pool = workers.New[struct{}](ctx, &workers.Config{
		MaxWorkers:       cfg.MaxWorkers,
		StartImmediately: true,
	})
	return w
}

// Submit enqueues an ExecuteRole request. Processing (including any
// self-retry) happens asynchronously on the pool; outcomes are published
// onto the bus rather than returned here.
func (w *Worker) Submit(msg types.ExecuteRole) error {
	return w.pool.AddTask(func(ctx context.Context) (struct{}, error) {
		w.process(ctx, msg)
		return struct{}{}, nil
	})
}

// attempt is one Adapter Executor invocation plus its Quality Evaluator
// score.
type attempt struct {
	result     adapter.Result
	confidence float64
}

// process runs one attempt, applying the self-retry-once rule (spec §4.6):
// if confidence falls below SelfRetryThreshold and this is the first attempt
// (PriorConfidence unset), retry once against an alternative adapter and
// keep whichever of the two attempts scored higher confidence.
func (w *Worker) process(ctx context.Context, msg types.ExecuteRole) {
	first, err := w.runAttempt(ctx, msg)
	if err != nil {
		var allFailed *adapter.AllAdaptersFailed
		var adapterErrs map[string]string
		if errors.As(err, &allFailed) {
			adapterErrs = allFailed.Errors
		}
		w.bus.Publish(types.EventRoleFailed, msg.TaskID, types.RoleFailed{
			TaskID:      msg.TaskID,
			Role:        msg.Role,
			Error:       err.Error(),
			Retriable:   orcherrors.IsRetriable(err),
			FailedAt:    time.Now(),
			AdapterErrs: adapterErrs,
			AttemptID:   msg.AttemptID,
		})
		return
	}

	best := first
	if first.confidence < quality.SelfRetryThreshold && msg.PriorConfidence == nil {
		if alt := w.executor.AlternativeOf(first.result.AdapterID); alt != "" {
			retryMsg := msg
			prior := first.confidence
			retryMsg.PriorConfidence = &prior
			retryMsg.PreferredAdapter = alt
			if second, err := w.runAttempt(ctx, retryMsg); err == nil && second.confidence > best.confidence {
				best = second
			}
		}
	}

	result, confidence := best.result, best.confidence
	if confidence < quality.QualityConcernThreshold {
		w.bus.Publish(types.EventTelemetryQuality, msg.TaskID, types.QualityConcern{
			TaskID:     msg.TaskID,
			Role:       msg.Role,
			Confidence: confidence,
			Concern:    "output confidence below quality-concern threshold",
			AdapterID:  result.AdapterID,
		})
	}

	w.bus.Publish(types.EventRoleSucceeded, msg.TaskID, types.RoleSucceeded{
		TaskID:         msg.TaskID,
		Role:           msg.Role,
		Output:         result.Output,
		Confidence:     confidence,
		AdapterID:      result.AdapterID,
		CompletedAt:    time.Now(),
		AttemptID:      msg.AttemptID,
		FailedAttempts: result.FailedAttempts,
	})
}

// runAttempt executes one adapter call for msg and scores it.
func (w *Worker) runAttempt(ctx context.Context, msg types.ExecuteRole) (attempt, error) {
	result, err := w.executor.Execute(ctx, w.prompt(msg), msg.PreferredAdapter, w.closed)
	if err != nil {
		return attempt{}, err
	}
	return attempt{
		result:     result,
		confidence: quality.Evaluate(result.Output, w.role, result.AdapterID),
	}, nil
}

// GetErrors exposes the pool's internal error channel for diagnostics; role
// task functions never return an error themselves (failures are published
// onto the bus instead), so this channel is expected to stay empty in
// normal operation.
func (w *Worker) GetErrors() chan error {
	return w.pool.GetErrors()
}
