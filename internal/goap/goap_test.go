package goap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/orchestrator/internal/types"
)

func TestSearchReturnsEmptyPlanWhenAlreadyAtGoal(t *testing.T) {
	state := types.NewWorldState(types.Partial{types.KeyDone: true})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	assert.False(t, plan.DeadEnd)
	assert.Empty(t, plan.RecommendedPlan)
}

func TestSearchFindsPlanBuildReviewFinalizeSequence(t *testing.T) {
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeySubTasksCompleted: true,
	})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	require.False(t, plan.DeadEnd)
	assert.Equal(t, []types.ActionName{
		types.ActionPlan, types.ActionBuild, types.ActionReview, types.ActionFinalize,
	}, plan.RecommendedPlan)
}

func TestSearchRoutesThroughReworkAfterRejection(t *testing.T) {
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeyPlanExists:        true,
		types.KeyBuildExists:       true,
		types.KeyReviewRejected:    true,
		types.KeySubTasksCompleted: true,
	})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	require.False(t, plan.DeadEnd)
	assert.Equal(t, []types.ActionName{
		types.ActionRework, types.ActionReview, types.ActionFinalize,
	}, plan.RecommendedPlan)
}

func TestSearchDeadEndWhenRetryLimitReachedAfterRejection(t *testing.T) {
	// Review was rejected and the retry limit is already hit: Rework is
	// inapplicable, nothing else can clear ReviewRejected or set
	// ReviewPassed, so Done is unreachable (spec §8 scenario 6).
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeyPlanExists:        true,
		types.KeyBuildExists:       true,
		types.KeyReviewRejected:    true,
		types.KeyRetryLimitReached: true,
		types.KeySubTasksCompleted: true,
	})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	assert.True(t, plan.DeadEnd)
	assert.Empty(t, plan.RecommendedPlan)
}

func TestSearchDeadEndWhenRetryLimitReachedBeforeAnyProgress(t *testing.T) {
	// A non-retriable Planner failure sets RetryLimitReached before any of
	// Plan/Build/Review have ever succeeded. The planner must not route back
	// through a fresh Plan attempt; nothing progresses Done, so this is a
	// dead end too.
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeyRetryLimitReached: true,
		types.KeySubTasksCompleted: true,
	})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	assert.True(t, plan.DeadEnd)
	assert.Empty(t, plan.RecommendedPlan)
}

func TestSearchWaitsForSubTasksBeforeFinalize(t *testing.T) {
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeyPlanExists:        true,
		types.KeyBuildExists:       true,
		types.KeyReviewPassed:      true,
		types.KeySubTasksSpawned:   true,
		types.KeySubTasksCompleted: false,
	})
	plan := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	require.False(t, plan.DeadEnd)
	assert.Contains(t, plan.RecommendedPlan, types.ActionWaitForSubTask)
	assert.Equal(t, types.ActionFinalize, plan.RecommendedPlan[len(plan.RecommendedPlan)-1])
}

func TestSearchCostOverrideKeepsOnlyViablePath(t *testing.T) {
	state := types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  true,
		types.KeyPlanExists:        true,
		types.KeyBuildExists:       true,
		types.KeyReviewRejected:    true,
		types.KeySubTasksCompleted: true,
	})
	cheap := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), nil)
	expensive := Search(state, types.GoalDone(), types.DefaultActionCatalogue(), CostOverrides{
		types.ActionRework: 100,
	})
	// Rework is the only action that clears ReviewRejected, so raising its
	// cost must not change the route to Done: both searches return the same
	// plan.
	assert.Equal(t, cheap.RecommendedPlan, expensive.RecommendedPlan)
}
