package supervisor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taskforge/orchestrator/internal/types"
)

// Publisher is the minimal Event Bus surface the Supervisor depends on.
type Publisher interface {
	Publish(eventType string, taskID string, payload any) uint64
}

// GlobalWriter is the Blackboard surface used for the reserved
// adapter_circuit: prefix (spec §3, §4.9).
type GlobalWriter interface {
	PutGlobal(key, value string)
}

// adapterBreaker pairs one sony/gobreaker.CircuitBreaker with the
// openedAt/expiresAt bookkeeping spec §4.9's CircuitState exposes but
// gobreaker itself does not track.
type adapterBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]

	mu        sync.Mutex
	openedAt  *time.Time
	expiresAt *time.Time
}

// CircuitBreakers maintains one gobreaker.CircuitBreaker per adapter id,
// lazily created on first report, and republishes every state transition as
// the spec's AdapterCircuitOpen/AdapterCircuitChanged telemetry plus a
// global blackboard write under the adapter_circuit: prefix. Grounded on
// jordigilh-kubernaut's circuit breaker manager (suite_test.go: one
// gobreaker.Settings per channel, ReadyToTrip on consecutive failures,
// OnStateChange feeding a metrics recorder) — here OnStateChange feeds the
// Event Bus and Blackboard instead of a metrics recorder directly, since
// spec §4.9 names the Blackboard write and telemetry event as the
// observable contract, and internal/metrics subscribes to the bus like any
// other consumer rather than being wired in here directly.
type CircuitBreakers struct {
	mu       sync.Mutex
	breakers map[string]*adapterBreaker

	bus        Publisher
	blackboard GlobalWriter
	threshold  uint32
	openFor    time.Duration
}

// NewCircuitBreakers creates a breaker manager. threshold is the
// consecutive-failure count that trips a breaker open (spec default 3);
// openFor is how long it stays open before probing half-open (spec default
// 5 minutes).
func NewCircuitBreakers(bus Publisher, blackboard GlobalWriter, threshold uint32, openFor time.Duration) *CircuitBreakers {
	if threshold == 0 {
		threshold = 3
	}
	if openFor <= 0 {
		openFor = 5 * time.Minute
	}
	return &CircuitBreakers{
		breakers:   make(map[string]*adapterBreaker),
		bus:        bus,
		blackboard: blackboard,
		threshold:  threshold,
		openFor:    openFor,
	}
}

func (c *CircuitBreakers) breakerFor(adapterID string) *adapterBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[adapterID]; ok {
		return b
	}
	ab := &adapterBreaker{}
	ab.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        adapterID,
		MaxRequests: 1,
		Timeout:     c.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.onStateChange(name, ab, to)
		},
	})
	c.breakers[adapterID] = ab
	return ab
}

func (c *CircuitBreakers) onStateChange(adapterID string, ab *adapterBreaker, to gobreaker.State) {
	now := time.Now()
	ab.mu.Lock()
	switch to {
	case gobreaker.StateOpen:
		until := now.Add(c.openFor)
		ab.openedAt = &now
		ab.expiresAt = &until
	default:
		ab.openedAt = nil
		ab.expiresAt = nil
	}
	ab.mu.Unlock()

	if to == gobreaker.StateOpen {
		until := *ab.expiresAt
		if c.bus != nil {
			c.bus.Publish(types.EventTelemetryCircuit, "", types.AdapterCircuitOpen{AdapterID: adapterID, Until: until})
		}
		if c.blackboard != nil {
			c.blackboard.PutGlobal("adapter_circuit:"+adapterID,
				fmt.Sprintf("state=open|until=%s", until.Format(time.RFC3339)))
		}
		return
	}

	state := stateName(to)
	if c.bus != nil {
		c.bus.Publish(types.EventTelemetryCircuit, "", types.AdapterCircuitChanged{AdapterID: adapterID, State: state})
	}
	if c.blackboard != nil {
		c.blackboard.PutGlobal("adapter_circuit:"+adapterID, "state="+strings.ToLower(string(state)))
	}
}

func stateName(s gobreaker.State) types.CircuitStateName {
	switch s {
	case gobreaker.StateOpen:
		return types.CircuitOpen
	case gobreaker.StateHalfOpen:
		return types.CircuitHalfOpen
	default:
		return types.CircuitClosed
	}
}

// ReportSuccess replays a successful role execution through adapterID's
// breaker, clearing its consecutive-failure count.
func (c *CircuitBreakers) ReportSuccess(adapterID string) {
	if adapterID == "" {
		return
	}
	b := c.breakerFor(adapterID)
	_, _ = b.cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
}

// ReportFailure replays a failed role execution through adapterID's breaker.
// Call sites pass the adapter that was actually used, derived from the
// RoleFailed/AllAdaptersFailed error detail (spec §4.9: "an error message
// mentions adapter id X").
func (c *CircuitBreakers) ReportFailure(adapterID string) {
	if adapterID == "" {
		return
	}
	b := c.breakerFor(adapterID)
	_, _ = b.cb.Execute(func() (struct{}, error) { return struct{}{}, errReported })
}

var errReported = fmt.Errorf("role execution failed")

// Closed implements adapter.CircuitChecker: it reports whether adapterID's
// circuit currently admits traffic (Closed or HalfOpen probing).
func (c *CircuitBreakers) Closed(adapterID string) bool {
	b := c.breakerFor(adapterID)
	return b.cb.State() != gobreaker.StateOpen
}

// Snapshot returns the externally observable state of every adapter the
// manager has a breaker for, i.e. every adapter seen in a report or a
// Closed check.
func (c *CircuitBreakers) Snapshot() []types.CircuitState {
	c.mu.Lock()
	ids := make([]string, 0, len(c.breakers))
	for id := range c.breakers {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	out := make([]types.CircuitState, 0, len(ids))
	for _, id := range ids {
		b := c.breakerFor(id)
		counts := b.cb.Counts()
		b.mu.Lock()
		cs := types.CircuitState{
			AdapterID:           id,
			State:               stateName(b.cb.State()),
			ConsecutiveFailures: int(counts.ConsecutiveFailures),
			OpenedAt:            b.openedAt,
			ExpiresAt:           b.expiresAt,
		}
		b.mu.Unlock()
		out = append(out, cs)
	}
	return out
}
