// Package metrics wires the runtime's Prometheus instrumentation: per-role
// outcome counters, adapter circuit-state gauges, task lifecycle counters,
// and role-execution latency. It subscribes to the Event Bus the same way
// the Supervisor does, so instrumentation never sits on the hot dispatch
// path.
//
// Grounded on jordigilh-kubernaut's metrics test fixtures
// (test/unit/gateway/metrics/error_recovery_test.go): CounterVec/GaugeVec
// registered against an explicit *prometheus.Registry rather than the
// global default, so multiple orchestratord instances in the same test
// binary don't collide.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskforge/orchestrator/internal/types"
)

// Registry bundles the runtime's metric collectors behind one
// *prometheus.Registry, scoped per-process (tests can create their own to
// avoid global-registry collisions).
type Registry struct {
	reg *prometheus.Registry

	tasksStarted   prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	tasksEscalated prometheus.Counter

	roleOutcomes  *prometheus.CounterVec // labels: role, outcome(success|failure)
	roleLatency   *prometheus.HistogramVec // labels: role
	qualityConcerns *prometheus.CounterVec // labels: role

	circuitState *prometheus.GaugeVec // labels: adapter; value 0=closed,1=half-open,2=open
	adapterCalls *prometheus.CounterVec // labels: adapter, outcome
}

// New creates a Registry and registers every collector against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		tasksStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "tasks_started_total",
			Help: "Tasks accepted by the runtime.",
		}),
		tasksCompleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "tasks_completed_total",
			Help: "Tasks that reached Done.",
		}),
		tasksFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "tasks_failed_total",
			Help: "Tasks that reached Blocked.",
		}),
		tasksEscalated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "tasks_escalated_total",
			Help: "Fatal escalations raised by any Coordinator.",
		}),
		roleOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "role_outcomes_total",
			Help: "Role executions by role and outcome.",
		}, []string{"role", "outcome"}),
		roleLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator", Name: "role_duration_seconds",
			Help:    "Time from dispatch to RoleSucceeded/RoleFailed, by role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		qualityConcerns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "quality_concerns_total",
			Help: "QualityConcern events by role.",
		}, []string{"role"}),
		circuitState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchestrator", Name: "adapter_circuit_state",
			Help: "0=closed, 1=half-open, 2=open, by adapter.",
		}, []string{"adapter"}),
		adapterCalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator", Name: "adapter_calls_total",
			Help: "Adapter invocations by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
	}
	return m
}

// Registerer exposes the underlying registry for an HTTP /metrics handler
// (promhttp.HandlerFor(m.Registerer(), ...)).
func (m *Registry) Registerer() *prometheus.Registry { return m.reg }

// dispatchKey keys the per-(task,role) dispatch-time map passed to Observe,
// so role latency can be computed when the matching RoleSucceeded/RoleFailed
// arrives. Entries are evicted on observation; a Coordinator crash mid-flight simply leaves a
// small, bounded amount of unused state behind.
type dispatchKey struct {
	taskID string
	role   types.Role
}

// Observe feeds one Event Bus envelope into the metrics. Call this from a
// bus subscriber loop (see cmd/orchestratord), mirroring how the Supervisor
// taps the same bus independently.
func (m *Registry) Observe(env types.Envelope, dispatched map[dispatchKey]time.Time) {
	switch env.Type {
	case types.EventTaskSubmitted:
		m.tasksStarted.Inc()
	case types.EventTaskDone:
		m.tasksCompleted.Inc()
	case types.EventTaskFailed:
		m.tasksFailed.Inc()
	case types.EventTaskEscalated:
		m.tasksEscalated.Inc()
	case types.EventRoleDispatched:
		if payload, ok := env.Payload.(map[string]any); ok {
			if role, ok := payload["role"].(types.Role); ok {
				dispatched[dispatchKey{taskID: env.TaskID, role: role}] = env.At
			}
		}
	case types.EventRoleSucceeded:
		if succ, ok := env.Payload.(types.RoleSucceeded); ok {
			m.roleOutcomes.WithLabelValues(string(succ.Role), "success").Inc()
			m.adapterCalls.WithLabelValues(succ.AdapterID, "success").Inc()
			for adapterID := range succ.FailedAttempts {
				m.adapterCalls.WithLabelValues(adapterID, "failure").Inc()
			}
			m.observeLatency(dispatched, succ.TaskID, succ.Role, succ.CompletedAt)
		}
	case types.EventRoleFailed:
		if failed, ok := env.Payload.(types.RoleFailed); ok {
			m.roleOutcomes.WithLabelValues(string(failed.Role), "failure").Inc()
			for adapterID := range failed.AdapterErrs {
				m.adapterCalls.WithLabelValues(adapterID, "failure").Inc()
			}
			m.observeLatency(dispatched, failed.TaskID, failed.Role, failed.FailedAt)
		}
	case types.EventTelemetryQuality:
		if qc, ok := env.Payload.(types.QualityConcern); ok {
			m.qualityConcerns.WithLabelValues(string(qc.Role)).Inc()
		}
	case types.EventTelemetryCircuit:
		switch c := env.Payload.(type) {
		case types.AdapterCircuitOpen:
			m.circuitState.WithLabelValues(c.AdapterID).Set(2)
		case types.AdapterCircuitChanged:
			m.circuitState.WithLabelValues(c.AdapterID).Set(circuitStateValue(c.State))
		}
	}
}

func (m *Registry) observeLatency(dispatched map[dispatchKey]time.Time, taskID string, role types.Role, at time.Time) {
	key := dispatchKey{taskID: taskID, role: role}
	start, ok := dispatched[key]
	if !ok {
		return
	}
	delete(dispatched, key)
	m.roleLatency.WithLabelValues(string(role)).Observe(at.Sub(start).Seconds())
}

func circuitStateValue(s types.CircuitStateName) float64 {
	switch s {
	case types.CircuitOpen:
		return 2
	case types.CircuitHalfOpen:
		return 1
	default:
		return 0
	}
}

// NewDispatchTracker returns the map Observe needs to correlate dispatch and
// completion events; each Registry consumer owns exactly one.
func NewDispatchTracker() map[dispatchKey]time.Time {
	return make(map[dispatchKey]time.Time)
}

// Watch runs Observe over every envelope from ch until it closes, the shape
// cmd/orchestratord wires as its own independent bus subscriber.
func (m *Registry) Watch(ch <-chan types.Envelope) {
	tracker := NewDispatchTracker()
	for env := range ch {
		m.Observe(env, tracker)
	}
}
