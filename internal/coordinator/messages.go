package coordinator

import "github.com/taskforge/orchestrator/internal/types"

// roleOutcome wraps whichever of RoleSucceeded/RoleFailed the Supervisor
// routed to this Coordinator for one ExecuteRole dispatch.
type roleOutcome struct {
	Succeeded *types.RoleSucceeded
	Failed    *types.RoleFailed
}

// subTaskOutcome wraps whichever of SubTaskCompleted/SubTaskFailed the
// Dispatcher routed to this Coordinator for one spawned child.
type subTaskOutcome struct {
	Completed *types.SubTaskCompleted
	Failed    *types.SubTaskFailed
}

// retryCommand is a Supervisor-issued instruction to re-dispatch the current
// role, optionally skipping an adapter (spec §4.9).
type retryCommand types.RetryRole

// InterventionAction names one human-intervention command (spec §4.8).
type InterventionAction string

const (
	ActionApproveReview   InterventionAction = "approve_review"
	ActionRejectReview    InterventionAction = "reject_review"
	ActionRequestRework   InterventionAction = "request_rework"
	ActionPauseTask       InterventionAction = "pause_task"
	ActionResumeTask      InterventionAction = "resume_task"
	ActionSetSubtaskDepth InterventionAction = "set_subtask_depth"
)

// InterventionCommand is one synchronous human-operator request.
type InterventionCommand struct {
	Action   InterventionAction
	Reason   string // required for reject_review
	Feedback string // required for request_rework
	Depth    int    // used by set_subtask_depth
}

// InterventionResult is the synchronous response to an InterventionCommand.
type InterventionResult struct {
	Accepted   bool
	ReasonCode string // "", "invalid_state", "payload_invalid", "unsupported_action"
	Message    string
}

// interventionRequest pairs a command with its reply channel for delivery
// through the Coordinator's single inbox.
type interventionRequest struct {
	Command InterventionCommand
	Reply   chan InterventionResult
}

// orchestratorDecision wraps the orchestrator role's outcome when
// orchestrator mode is enabled (spec §4.8).
type orchestratorDecision struct {
	Succeeded *types.RoleSucceeded
	Failed    *types.RoleFailed
}

// The constructors below are the only way a collaborator outside this
// package (the Dispatcher, routing bus events) can build a message for
// Deliver — the underlying message types stay unexported so Deliver's type
// switch in handle() remains the sole place that interprets them.

// RoleSucceededMsg wraps a RoleSucceeded outcome for Deliver.
func RoleSucceededMsg(succ types.RoleSucceeded) any { return roleOutcome{Succeeded: &succ} }

// RoleFailedMsg wraps a RoleFailed outcome for Deliver.
func RoleFailedMsg(failed types.RoleFailed) any { return roleOutcome{Failed: &failed} }

// SubTaskCompletedMsg wraps a SubTaskCompleted outcome for Deliver.
func SubTaskCompletedMsg(c types.SubTaskCompleted) any { return subTaskOutcome{Completed: &c} }

// SubTaskFailedMsg wraps a SubTaskFailed outcome for Deliver.
func SubTaskFailedMsg(f types.SubTaskFailed) any { return subTaskOutcome{Failed: &f} }

// RetryCommandMsg wraps a Supervisor-issued RetryRole command for Deliver.
func RetryCommandMsg(r types.RetryRole) any { return retryCommand(r) }
