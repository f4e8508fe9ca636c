package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldStateOverlayAndSubsumes(t *testing.T) {
	ws := NewWorldState(Partial{KeyTaskExists: true})
	require.True(t, ws.Get(KeyTaskExists))
	require.False(t, ws.Get(KeyPlanExists))

	ws2 := ws.Overlay(Partial{KeyPlanExists: true})
	assert.True(t, ws2.Get(KeyTaskExists))
	assert.True(t, ws2.Get(KeyPlanExists))
	// original unaffected — overlay returns a new value.
	assert.False(t, ws.Get(KeyPlanExists))

	assert.True(t, ws2.Subsumes(Partial{KeyPlanExists: true}))
	assert.False(t, ws2.Subsumes(Partial{KeyBuildExists: true}))
	// empty goal is always subsumed.
	assert.True(t, ws2.Subsumes(Partial{}))
}

func TestWorldStateWithFalseClearsKey(t *testing.T) {
	ws := NewWorldState(Partial{KeyReviewRejected: true})
	ws = ws.With(KeyReviewRejected, false)
	assert.False(t, ws.Get(KeyReviewRejected))
	assert.True(t, ws.Subsumes(Partial{KeyReviewRejected: false}))
}

func TestWorldStateKeyIsOrderIndependent(t *testing.T) {
	a := NewWorldState(Partial{KeyTaskExists: true, KeyPlanExists: true})
	b := NewWorldState(Partial{KeyPlanExists: true, KeyTaskExists: true})
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))
}

func TestUnsatisfiedCountAdmissible(t *testing.T) {
	goal := GoalDone()
	ws := NewWorldState(Partial{KeyTaskExists: true})
	assert.Equal(t, 1, ws.UnsatisfiedCount(goal))
	done := ws.With(KeyDone, true)
	assert.Equal(t, 0, done.UnsatisfiedCount(goal))
}

func TestGoapActionApplicableAndApply(t *testing.T) {
	plan := DefaultActionCatalogue()[0]
	require.Equal(t, ActionPlan, plan.Name)

	s := NewWorldState(Partial{KeyTaskExists: true, KeyAdapterAvailable: true})
	assert.True(t, plan.Applicable(s))
	s2 := plan.Apply(s)
	assert.True(t, s2.Get(KeyPlanExists))

	// No longer applicable once PlanExists is true (precondition pins it false).
	assert.False(t, plan.Applicable(s2))
}
