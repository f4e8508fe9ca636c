package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/blackboard"
	"github.com/taskforge/orchestrator/internal/consensus"
	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/eventbus"
	"github.com/taskforge/orchestrator/internal/types"
)

type noopRetrier struct{}

func (noopRetrier) RetryRole(types.RetryRole) {}

// wireWithSupervisor builds a Dispatcher and a Supervisor sharing one bus,
// one Blackboard, and one CircuitBreakers manager, the way cmd/orchestratord
// will. planner/builder/reviewer are built by the caller against the
// returned bus so their published events reach both the Dispatcher and the
// Supervisor.
func wireWithSupervisor(t *testing.T, buildWorkers func(bus *eventbus.Bus) (planner, builder, reviewer *autoWorker), cfg coordinator.Config) (*Dispatcher, *Supervisor, *fakeRegistry) {
	t.Helper()
	bus := eventbus.New(200, nil)
	bb := blackboard.New(bus)
	registry := newFakeRegistry()
	collector := consensus.New(nil, 0)
	breakers := NewCircuitBreakers(bus, bb, 3, 50*time.Millisecond)

	planner, builder, reviewer := buildWorkers(bus)
	deps := coordinator.Dependencies{
		Bus: bus, Blackboard: bb, Registry: registry,
		Planner: planner, Builder: builder, Reviewer: reviewer,
		Consensus:        collector,
		Catalogue:        types.DefaultActionCatalogue(),
		AdapterAvailable: func() bool { return true },
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := New(ctx, bus, nil, deps, func() coordinator.Config { return cfg })
	t.Cleanup(d.Close)

	sup := NewSupervisor(bus, breakers, d, cfg.MaxRetriesPerTask, nil)
	return d, sup, registry
}

func TestSupervisorRetriesRetriableFailureThenCoordinatorEscalatesOnCapExceeded(t *testing.T) {
	cfg := coordinator.Config{MaxRetriesPerTask: 1, DefaultMaxSubTaskDepth: 3, ReviewConsensusCount: 1}
	d, sup, registry := wireWithSupervisor(t, func(bus *eventbus.Bus) (*autoWorker, *autoWorker, *autoWorker) {
		return alwaysFailingPlanner(bus, true), approvingBuilder(bus), approvingReviewer(bus)
	}, cfg)

	task := &types.Task{ID: "doomed", Title: "root", Description: "x", SubTaskIDs: map[string]struct{}{}}
	d.Submit(task)

	final := waitForStatus(t, registry, "doomed", types.StatusBlocked, 2*time.Second)
	assert.Contains(t, final.Error, "exit 1")

	snap := sup.Snapshot()
	assert.GreaterOrEqual(t, snap.Escalations, 1)
}

func TestSupervisorDoesNotRetryNonRetriableFailure(t *testing.T) {
	cfg := coordinator.Config{MaxRetriesPerTask: 3, DefaultMaxSubTaskDepth: 3, ReviewConsensusCount: 1}
	d, _, registry := wireWithSupervisor(t, func(bus *eventbus.Bus) (*autoWorker, *autoWorker, *autoWorker) {
		return alwaysFailingPlanner(bus, false), approvingBuilder(bus), approvingReviewer(bus)
	}, cfg)

	task := &types.Task{ID: "unsupported", Title: "root", Description: "x", SubTaskIDs: map[string]struct{}{}}
	d.Submit(task)

	// A single non-retriable failure escalates immediately, well before the
	// retry cap would otherwise allow three attempts.
	waitForStatus(t, registry, "unsupported", types.StatusBlocked, time.Second)
}

func TestSupervisorOpensCircuitAfterThreeConsecutiveFailuresAcrossTasks(t *testing.T) {
	bus := eventbus.New(200, nil)
	bb := blackboard.New(bus)
	breakers := NewCircuitBreakers(bus, bb, 3, time.Minute)
	_ = NewSupervisor(bus, breakers, noopRetrier{}, 3, nil)

	ch, unsub := bus.Subscribe()
	defer unsub()

	for i := 0; i < 3; i++ {
		bus.Publish(types.EventRoleFailed, "t", types.RoleFailed{
			TaskID: "t", Role: types.RolePlanner, Retriable: true,
			AdapterErrs: map[string]string{"fail": "exit 1"},
		})
	}

	var sawOpen bool
	deadline := time.After(time.Second)
	for !sawOpen {
		select {
		case env := <-ch:
			if env.Type == types.EventTelemetryCircuit {
				if _, ok := env.Payload.(types.AdapterCircuitOpen); ok {
					sawOpen = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for AdapterCircuitOpen")
		}
	}
	assert.False(t, breakers.Closed("fail"))

	val, ok := bb.GetGlobal("adapter_circuit:fail")
	require.True(t, ok)
	assert.Contains(t, val, "state=open")
}

func TestCircuitHalfOpensAfterTimeoutThenClosesOnSuccess(t *testing.T) {
	bus := eventbus.New(200, nil)
	bb := blackboard.New(bus)
	breakers := NewCircuitBreakers(bus, bb, 2, 20*time.Millisecond)

	breakers.ReportFailure("flaky")
	breakers.ReportFailure("flaky")
	assert.False(t, breakers.Closed("flaky"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, breakers.Closed("flaky"), "should be probing half-open after the timeout elapses")

	breakers.ReportSuccess("flaky")
	assert.True(t, breakers.Closed("flaky"))

	snap := breakers.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, types.CircuitClosed, snap[0].State)
}
