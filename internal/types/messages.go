package types

import "time"

// Role identifies one of the pipeline roles a worker can execute.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleBuilder  Role = "builder"
	RoleReviewer Role = "reviewer"
)

// ExecuteRole asks a role worker to produce output for a task.
type ExecuteRole struct {
	TaskID           string
	Role             Role
	Title            string
	Description      string
	PlanOutput       string
	BuildOutput      string
	Prompt           string
	PreferredAdapter string
	PriorConfidence  *float64 // present only on a worker self-retry attempt
	ReworkFeedback   string
	AttemptID        string
}

// RoleSucceeded is the successful outcome of an ExecuteRole request.
type RoleSucceeded struct {
	TaskID      string
	Role        Role
	Output      string
	Confidence  float64
	AdapterID   string
	CompletedAt time.Time
	AttemptID   string            // echoes ExecuteRole.AttemptID, empty unless the request set one
	FailedAttempts map[string]string // earlier fallback candidates that failed before AdapterID succeeded
}

// RoleFailed is the failed outcome of an ExecuteRole request.
type RoleFailed struct {
	TaskID      string
	Role        Role
	Error       string
	Retriable   bool
	FailedAt    time.Time
	AdapterErrs map[string]string // adapter id -> error, when AllAdaptersFailed
	AttemptID   string            // echoes ExecuteRole.AttemptID, empty unless the request set one
}

// RetryRole is a command from the Supervisor telling the Coordinator to
// retry a role, optionally skipping a given adapter.
type RetryRole struct {
	TaskID      string
	Role        Role
	SkipAdapter string
	Reason      string
}

// QualityConcern is published when a role's output confidence falls below
// the concern threshold.
type QualityConcern struct {
	TaskID     string
	Role       Role
	Confidence float64
	Concern    string
	AdapterID  string
}

// SubTaskCompleted reports a child task's successful completion to its
// parent Coordinator (routed through the Dispatcher, spec §4.9).
type SubTaskCompleted struct {
	ParentTaskID string
	ChildTaskID  string
	Summary      string
}

// SubTaskFailed reports a child task's terminal failure to its parent.
type SubTaskFailed struct {
	ParentTaskID string
	ChildTaskID  string
	Error        string
}
