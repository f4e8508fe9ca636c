package supervisor

import (
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/taskforge/orchestrator/internal/types"
)

// RoleRetrier is the surface the Supervisor uses to re-dispatch a role. The
// Dispatcher satisfies this via RetryRole.
type RoleRetrier interface {
	RetryRole(r types.RetryRole)
}

// QualityConcernRetryThreshold is the per-task quality-concern count that
// triggers one skip-current-adapter retry (spec §4.9).
const QualityConcernRetryThreshold = 2

// adapterMentionPattern extracts the adapter identifier from an error detail
// string that starts with "adapter <id>:" (e.g. "adapter fail: exit 1").
// Used only as the fallback when a structured per-adapter error map is not
// available on the event (spec's regex-fallback Open Question decision,
// DESIGN.md).
var adapterMentionPattern = regexp.MustCompile(`^adapter (\S+):`)

// taskState is the Supervisor's per-task bookkeeping.
type taskState struct {
	retries               int
	qualityConcerns       int
	qualityRetryInFlight  bool
}

// Supervisor implements spec §4.9's failure/quality observation: it
// subscribes to the Event Bus for RoleFailed and QualityConcern, enforces
// the per-task retry cap, issues the one-shot adapter-skip retry on
// repeated quality concerns, and feeds every adapter-id it sees in an error
// into the CircuitBreakers manager.
//
// Grounded on haricheung-agentic-shell's auditor.go: a bus-tap goroutine
// accumulating window counters and reacting to thresholds, generalized from
// boundary-violation/thrashing detection into retry-cap and circuit-breaker
// decisions.
type Supervisor struct {
	log       *slog.Logger
	bus       EventSource
	breakers  *CircuitBreakers
	retrier   RoleRetrier
	maxRetries int

	mu    sync.Mutex
	tasks map[string]*taskState

	started   int
	completed int
	failed    int
	escalations int
}

// NewSupervisor creates a Supervisor. maxRetries is the per-task retry cap
// (spec default 3, MaxRetriesPerTask).
func NewSupervisor(bus EventSource, breakers *CircuitBreakers, retrier RoleRetrier, maxRetries int, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	s := &Supervisor{
		log:        log.With("component", "supervisor"),
		bus:        bus,
		breakers:   breakers,
		retrier:    retrier,
		maxRetries: maxRetries,
		tasks:      make(map[string]*taskState),
	}
	ch, _ := bus.Subscribe()
	go s.watch(ch)
	return s
}

func (s *Supervisor) watch(ch <-chan types.Envelope) {
	for env := range ch {
		switch env.Type {
		case types.EventTaskSubmitted:
			s.mu.Lock()
			s.started++
			s.mu.Unlock()
		case types.EventTaskDone:
			s.mu.Lock()
			s.completed++
			delete(s.tasks, env.TaskID)
			s.mu.Unlock()
		case types.EventTaskEscalated:
			s.mu.Lock()
			s.escalations++
			s.mu.Unlock()
		case types.EventTaskFailed:
			s.mu.Lock()
			s.failed++
			delete(s.tasks, env.TaskID)
			s.mu.Unlock()
		case types.EventRoleSucceeded:
			if succ, ok := env.Payload.(types.RoleSucceeded); ok {
				s.observeSuccess(succ)
			}
		case types.EventRoleFailed:
			if failed, ok := env.Payload.(types.RoleFailed); ok {
				s.observeFailure(failed)
			}
		case types.EventTelemetryQuality:
			if qc, ok := env.Payload.(types.QualityConcern); ok {
				s.observeQualityConcern(qc)
			}
		}
	}
}

// observeSuccess clears the task's retry counter (the role line made
// forward progress) and reports the winning adapter plus any masked
// fallback failures to the circuit breaker manager.
func (s *Supervisor) observeSuccess(succ types.RoleSucceeded) {
	if s.breakers != nil {
		s.breakers.ReportSuccess(succ.AdapterID)
		for adapterID := range succ.FailedAttempts {
			s.breakers.ReportFailure(adapterID)
		}
	}

	s.mu.Lock()
	st := s.tasks[succ.TaskID]
	s.mu.Unlock()
	if st != nil {
		st.qualityRetryInFlight = false
	}
}

// observeFailure applies the retry cap and feeds every mentioned adapter
// into the circuit breaker manager.
func (s *Supervisor) observeFailure(failed types.RoleFailed) {
	if s.breakers != nil {
		if len(failed.AdapterErrs) > 0 {
			for adapterID := range failed.AdapterErrs {
				s.breakers.ReportFailure(adapterID)
			}
		} else if m := adapterMentionPattern.FindStringSubmatch(failed.Error); len(m) == 2 {
			s.breakers.ReportFailure(m[1])
		}
	}

	if !failed.Retriable {
		return
	}

	s.mu.Lock()
	st := s.tasks[failed.TaskID]
	if st == nil {
		st = &taskState{}
		s.tasks[failed.TaskID] = st
	}
	st.retries++
	retryAllowed := st.retries <= s.maxRetries
	s.mu.Unlock()

	if !retryAllowed {
		s.log.Info("retry cap reached, accepting Coordinator escalation", "task", failed.TaskID, "role", failed.Role)
		return
	}

	if s.retrier != nil {
		s.retrier.RetryRole(types.RetryRole{
			TaskID: failed.TaskID,
			Role:   failed.Role,
			Reason: failed.Error,
		})
	}
}

// observeQualityConcern counts per-task quality concerns and issues the
// one-shot skip-current-adapter retry once the threshold is reached,
// guarded by qualityRetryInFlight to prevent retry storms (spec §4.9).
func (s *Supervisor) observeQualityConcern(qc types.QualityConcern) {
	s.mu.Lock()
	st := s.tasks[qc.TaskID]
	if st == nil {
		st = &taskState{}
		s.tasks[qc.TaskID] = st
	}
	st.qualityConcerns++
	shouldRetry := st.qualityConcerns >= QualityConcernRetryThreshold && !st.qualityRetryInFlight
	if shouldRetry {
		st.qualityRetryInFlight = true
	}
	s.mu.Unlock()

	if shouldRetry && s.retrier != nil {
		s.retrier.RetryRole(types.RetryRole{
			TaskID:      qc.TaskID,
			Role:        qc.Role,
			SkipAdapter: qc.AdapterID,
			Reason:      "repeated quality concern",
		})
	}
}

// Snapshot is the synchronous (started, completed, failed, escalations,
// qualityConcerns) tuple spec §4.9 names, consumed by a fleet-monitor that
// warns on stalled counters across ticks.
type Snapshot struct {
	Started         int
	Completed       int
	Failed          int
	Escalations     int
	QualityConcerns int
	At              time.Time
}

// Snapshot returns the current aggregate counters.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	qc := 0
	for _, st := range s.tasks {
		qc += st.qualityConcerns
	}
	return Snapshot{
		Started:         s.started,
		Completed:       s.completed,
		Failed:          s.failed,
		Escalations:     s.escalations,
		QualityConcerns: qc,
		At:              time.Now(),
	}
}
