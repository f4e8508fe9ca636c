package types

// StateKey is one of the closed set of Boolean world-state keys the GOAP
// planner and the Task Coordinator reason over.
type StateKey string

const (
	KeyTaskExists            StateKey = "TaskExists"
	KeyAdapterAvailable      StateKey = "AdapterAvailable"
	KeyPlanExists            StateKey = "PlanExists"
	KeyBuildExists           StateKey = "BuildExists"
	KeyReviewPassed          StateKey = "ReviewPassed"
	KeyReviewRejected        StateKey = "ReviewRejected"
	KeyRetryLimitReached     StateKey = "RetryLimitReached"
	KeyTaskBlocked           StateKey = "TaskBlocked"
	KeySubTasksSpawned       StateKey = "SubTasksSpawned"
	KeySubTasksCompleted     StateKey = "SubTasksCompleted"
	KeyConsensusReached      StateKey = "ConsensusReached"
	KeyConsensusDisputed     StateKey = "ConsensusDisputed"
	KeyHighFailureRateDetect StateKey = "HighFailureRateDetected"
	KeySimilarTaskSucceeded  StateKey = "SimilarTaskSucceeded"
	// KeyDone is not part of spec.md's enumerated key list but is required to
	// express the GOAP goal state {status=Done} as a boolean valuation — it
	// is set only by the Finalize action's effects and is never read as a
	// precondition by any other action, so it does not change the semantics
	// of the enumerated keys.
	KeyDone StateKey = "__Done"
)

// AllKeys lists every key in a stable order, used for deterministic
// iteration (diagnostics, tests).
var AllKeys = []StateKey{
	KeyTaskExists,
	KeyAdapterAvailable,
	KeyPlanExists,
	KeyBuildExists,
	KeyReviewPassed,
	KeyReviewRejected,
	KeyRetryLimitReached,
	KeyTaskBlocked,
	KeySubTasksSpawned,
	KeySubTasksCompleted,
	KeyConsensusReached,
	KeyConsensusDisputed,
	KeyHighFailureRateDetect,
	KeySimilarTaskSucceeded,
	KeyDone,
}

// Partial is a sparse assignment over StateKey, used for action
// preconditions, action effects, and GOAP goals. A key absent from a Partial
// is "don't care"; present keys pin the key to true or false.
type Partial map[StateKey]bool

// WorldState is a total valuation of the closed StateKey set: every key not
// explicitly set is false. Every mutating method returns a new value — the
// zero value has every key false.
type WorldState struct {
	values map[StateKey]bool
}

// NewWorldState builds a WorldState from an explicit partial assignment;
// keys not mentioned, or mentioned with value false, default to false.
func NewWorldState(assignment Partial) WorldState {
	ws := WorldState{values: make(map[StateKey]bool, len(assignment))}
	for k, v := range assignment {
		if v {
			ws.values[k] = true
		}
	}
	return ws
}

// Get returns the boolean value of key k (false if unset).
func (w WorldState) Get(k StateKey) bool {
	return w.values[k]
}

// With returns a new WorldState equal to w but with k set to v.
func (w WorldState) With(k StateKey, v bool) WorldState {
	return w.Overlay(Partial{k: v})
}

// Overlay applies a partial assignment (effects) on top of w and returns the
// resulting new WorldState. Keys not mentioned in effects are unchanged.
func (w WorldState) Overlay(effects Partial) WorldState {
	next := make(map[StateKey]bool, len(w.values)+len(effects))
	for kk, vv := range w.values {
		next[kk] = vv
	}
	for kk, vv := range effects {
		if vv {
			next[kk] = true
		} else {
			delete(next, kk)
		}
	}
	return WorldState{values: next}
}

// Subsumes reports whether w agrees with goal on every key goal pins
// (present in the Partial); keys goal does not mention are unconstrained.
func (w WorldState) Subsumes(goal Partial) bool {
	for k, want := range goal {
		if w.Get(k) != want {
			return false
		}
	}
	return true
}

// UnsatisfiedCount returns the number of keys in goal whose value in w
// disagrees with goal — the admissible GOAP heuristic (spec §4.5): each
// action sets at most one such key, so this never overestimates true cost.
func (w WorldState) UnsatisfiedCount(goal Partial) int {
	n := 0
	for k, want := range goal {
		if w.Get(k) != want {
			n++
		}
	}
	return n
}

// Equal reports whether w and o agree on every key in AllKeys.
func (w WorldState) Equal(o WorldState) bool {
	for _, k := range AllKeys {
		if w.Get(k) != o.Get(k) {
			return false
		}
	}
	return true
}

// Key returns a stable string suitable for use as a map key / visited-set
// member in the GOAP search: one '0'/'1' per key in AllKeys order, so it does
// not depend on the order keys were set in.
func (w WorldState) Key() string {
	s := make([]byte, 0, 64)
	for _, k := range AllKeys {
		if w.Get(k) {
			s = append(s, '1')
		} else {
			s = append(s, '0')
		}
	}
	return string(s)
}

// Snapshot returns a copy of the underlying assignment (true-valued keys
// only) for logging/diagnostics.
func (w WorldState) Snapshot() map[StateKey]bool {
	out := make(map[StateKey]bool, len(w.values))
	for k, v := range w.values {
		out[k] = v
	}
	return out
}
