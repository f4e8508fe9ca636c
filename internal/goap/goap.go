// Package goap implements the A* planner from spec §4.5: given a current
// world state, a goal, and an action catalogue, find the cheapest sequence
// of actions that reaches a state subsuming the goal.
//
// Grounded on haricheung-agentic-shell's internal/roles/agentval gap-closing
// search loop (repeatedly pick the lowest-cost next step toward a rubric
// target) — generalized here into a textbook A* over types.WorldState with
// an admissible unsatisfied-goal-count heuristic, since no example repo in
// the pack implements a general graph search.
package goap

import (
	"container/heap"
	"math"

	"github.com/taskforge/orchestrator/internal/types"
)

// Plan is the outcome of a search: either a recommended action sequence, or
// a dead end (no sequence of available actions reaches the goal).
type Plan struct {
	RecommendedPlan []types.ActionName
	DeadEnd         bool
}

// CostOverrides lets callers bias the search away from actions that have
// recently failed or are known expensive, keyed by action name. A present
// entry multiplies the action's baseCost (spec §4.5); an absent entry is
// equivalent to a multiplier of 1.0.
type CostOverrides map[types.ActionName]float64

type node struct {
	state  types.WorldState
	gScore int
	fScore int
	path   []types.ActionName
	index  int // heap bookkeeping
}

type openSet []*node

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].fScore != s[j].fScore {
		return s[i].fScore < s[j].fScore
	}
	// Tie-break on shorter path so the planner prefers fewer actions.
	return len(s[i].path) < len(s[j].path)
}
func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index, s[j].index = i, j
}
func (s *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*s)
	*s = append(*s, n)
}
func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*s = old[:n-1]
	return item
}

// maxExpansions bounds search effort; the action catalogue and world-state
// space are both small and finite (spec §3/§4.5), so this is a generous
// backstop against a malformed catalogue rather than a tuning knob.
const maxExpansions = 10000

// Search looks for the cheapest action sequence from current to goal using
// the supplied catalogue, applying any cost overrides. Returns DeadEnd=true
// when the goal is unreachable from current via any combination of
// applicable actions.
func Search(current types.WorldState, goal types.Partial, catalogue []types.GoapAction, overrides CostOverrides) Plan {
	if current.Subsumes(goal) {
		return Plan{RecommendedPlan: []types.ActionName{}}
	}

	start := &node{state: current, gScore: 0, fScore: heuristic(current, goal)}
	open := &openSet{start}
	heap.Init(open)
	best := make(map[string]int)
	best[current.Key()] = 0

	expansions := 0
	for open.Len() > 0 && expansions < maxExpansions {
		expansions++
		cur := heap.Pop(open).(*node)

		if cur.state.Subsumes(goal) {
			return Plan{RecommendedPlan: cur.path}
		}

		for _, action := range catalogue {
			if !action.Applicable(cur.state) {
				continue
			}
			next := action.Apply(cur.state)
			multiplier := 1.0
			if overrides != nil {
				if override, ok := overrides[action.Name]; ok {
					multiplier = override
				}
			}
			cost := int(math.Round(float64(action.BaseCost) * multiplier))
			tentativeG := cur.gScore + cost

			key := next.Key()
			if prevBest, ok := best[key]; ok && prevBest <= tentativeG {
				continue
			}
			best[key] = tentativeG

			path := make([]types.ActionName, len(cur.path)+1)
			copy(path, cur.path)
			path[len(cur.path)] = action.Name

			heap.Push(open, &node{
				state:  next,
				gScore: tentativeG,
				fScore: tentativeG + heuristic(next, goal),
				path:   path,
			})
		}
	}

	return Plan{DeadEnd: true}
}

// heuristic is the count of unsatisfied goal keys, admissible since every
// action can set at most its declared effects in one step (spec §4.5).
func heuristic(s types.WorldState, goal types.Partial) int {
	return s.UnsatisfiedCount(goal)
}
