package types

// ActionName identifies one of the static GOAP actions in the catalogue.
type ActionName string

const (
	ActionPlan           ActionName = "Plan"
	ActionBuild          ActionName = "Build"
	ActionReview         ActionName = "Review"
	ActionRework         ActionName = "Rework"
	ActionSecondOpinion  ActionName = "SecondOpinion"
	ActionWaitForSubTask ActionName = "WaitForSubTasks"
	ActionFinalize       ActionName = "Finalize"
	ActionEscalate       ActionName = "Escalate"
)

// GoapAction is one entry in the static action catalogue: a name, its
// preconditions and effects (both partial assignments), and a non-negative
// base cost.
type GoapAction struct {
	Name          ActionName
	Preconditions Partial
	Effects       Partial
	BaseCost      int
}

// Applicable reports whether every precondition the action pins agrees with
// the current state (preconditions are "subsumed by S" per spec §4.5).
func (a GoapAction) Applicable(s WorldState) bool {
	return s.Subsumes(a.Preconditions)
}

// Apply returns the state resulting from overlaying the action's effects on
// s. The caller must have already checked Applicable.
func (a GoapAction) Apply(s WorldState) WorldState {
	return s.Overlay(a.Effects)
}

// DefaultActionCatalogue returns the static action catalogue described in
// spec §3/§4.5/§4.8's dispatch table. Callers that need to simulate a "dead
// end" scenario (spec §8 scenario 6) construct a filtered copy instead of
// mutating this slice.
func DefaultActionCatalogue() []GoapAction {
	return []GoapAction{
		{
			Name: ActionPlan,
			Preconditions: Partial{
				KeyTaskExists: true, KeyAdapterAvailable: true, KeyPlanExists: false,
				KeyRetryLimitReached: false,
			},
			Effects:  Partial{KeyPlanExists: true},
			BaseCost: 1,
		},
		{
			Name: ActionBuild,
			Preconditions: Partial{
				KeyPlanExists: true, KeyAdapterAvailable: true, KeyBuildExists: false,
				KeyRetryLimitReached: false,
			},
			Effects:  Partial{KeyBuildExists: true},
			BaseCost: 1,
		},
		{
			Name: ActionReview,
			Preconditions: Partial{
				KeyBuildExists: true, KeyAdapterAvailable: true,
				KeyReviewPassed: false, KeyReviewRejected: false,
				KeyRetryLimitReached: false,
			},
			Effects:  Partial{KeyReviewPassed: true},
			BaseCost: 1,
		},
		{
			Name: ActionRework,
			Preconditions: Partial{
				KeyReviewRejected: true, KeyAdapterAvailable: true, KeyRetryLimitReached: false,
			},
			Effects:  Partial{KeyReviewRejected: false, KeyBuildExists: true},
			BaseCost: 2,
		},
		{
			Name: ActionSecondOpinion,
			Preconditions: Partial{
				KeyConsensusDisputed: true, KeyAdapterAvailable: true, KeyRetryLimitReached: false,
			},
			Effects:  Partial{KeyConsensusDisputed: false, KeyConsensusReached: true},
			BaseCost: 2,
		},
		{
			Name:          ActionWaitForSubTask,
			Preconditions: Partial{KeySubTasksSpawned: true, KeySubTasksCompleted: false},
			Effects:       Partial{KeySubTasksCompleted: true},
			BaseCost:      1,
		},
		{
			Name: ActionFinalize,
			Preconditions: Partial{
				KeyBuildExists: true, KeyReviewPassed: true, KeySubTasksCompleted: true,
			},
			Effects:  Partial{KeyDone: true},
			BaseCost: 1,
		},
		{
			// Escalate never sets KeyDone: it resolves to Blocked, a distinct
			// terminal status from the GOAP goal {Done=true}. The Coordinator
			// dispatches it directly when the planner reports a dead end
			// (spec §4.8 step 2) rather than reaching it via a found plan.
			Name:          ActionEscalate,
			Preconditions: Partial{KeyRetryLimitReached: true},
			Effects:       Partial{KeyTaskBlocked: true},
			BaseCost:      5,
		},
	}
}

// GoalDone is the canonical GOAP goal: {status=Done}.
func GoalDone() Partial {
	return Partial{KeyDone: true}
}
