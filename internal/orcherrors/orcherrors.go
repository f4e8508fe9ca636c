// Package orcherrors classifies role-execution and planning failures per the
// taxonomy in spec.md §7, so the Supervisor's retriable-rule can dispatch on
// error type (errors.As) rather than string sniffing, while still carrying
// the exact wording the taxonomy names ("unsupported role", "simulated").
package orcherrors

import (
	"errors"
	"fmt"
)

// Class is one of the taxonomy classes from spec §7.
type Class string

const (
	ClassTransient             Class = "transient"
	ClassPermanent             Class = "permanent"
	ClassPlannerDeadEnd        Class = "planner_dead_end"
	ClassQualityInsufficiency  Class = "quality_insufficiency"
	ClassSubTaskFailure        Class = "sub_task_failure"
	ClassInterventionRejection Class = "intervention_rejection"
)

// RoleError wraps a role-execution failure with its taxonomy class.
type RoleError struct {
	Class   Class
	Message string
	Adapter string
}

func (e *RoleError) Error() string {
	if e.Adapter != "" {
		return fmt.Sprintf("%s: %s (adapter=%s)", e.Class, e.Message, e.Adapter)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// Retriable implements the spec §7/§4.9 retriable rule by class, not by
// message text: ClassPermanent errors (which NewUnsupportedRole and
// NewSimulated build) are non-retriable; every other class is retriable.
func (e *RoleError) Retriable() bool {
	if e.Class == ClassPermanent {
		return false
	}
	return true
}

// NewTransient builds a retriable role-execution error (adapter failure,
// non-zero exit, timeout, or AllAdaptersFailed).
func NewTransient(adapter, message string) *RoleError {
	return &RoleError{Class: ClassTransient, Message: message, Adapter: adapter}
}

// NewUnsupportedRole builds the permanent, non-retriable error for a role
// the executor has no handler for.
func NewUnsupportedRole(role string) *RoleError {
	return &RoleError{Class: ClassPermanent, Message: fmt.Sprintf("unsupported role: %s", role)}
}

// NewSimulated builds the permanent, non-retriable error used by the test
// simulated-failure toggle.
func NewSimulated(role string) *RoleError {
	return &RoleError{Class: ClassPermanent, Message: fmt.Sprintf("simulated failure for role %s", role)}
}

// ErrAllAdaptersFailed indicates every configured adapter failed in order.
type ErrAllAdaptersFailed struct {
	Errors map[string]string // adapter id -> error
}

func (e *ErrAllAdaptersFailed) Error() string {
	return fmt.Sprintf("all adapters failed: %d attempted", len(e.Errors))
}

// SubTaskFailure wraps a child task's failure as surfaced to the parent
// (spec §7: "error mentioning the child id").
type SubTaskFailure struct {
	ChildTaskID string
	Reason      string
}

func (e *SubTaskFailure) Error() string {
	return fmt.Sprintf("sub-task %s failed: %s", e.ChildTaskID, e.Reason)
}

// PlannerDeadEnd indicates the GOAP planner could not reach the goal from
// the current state with the configured action catalogue.
type PlannerDeadEnd struct{}

func (e *PlannerDeadEnd) Error() string { return "planner dead end: goal unreachable" }

// ClassOf inspects err and returns its taxonomy Class, defaulting to
// ClassTransient for unrecognized errors (spec §7: "all other role-execution
// errors are retriable").
func ClassOf(err error) Class {
	var re *RoleError
	if errors.As(err, &re) {
		return re.Class
	}
	var allFailed *ErrAllAdaptersFailed
	if errors.As(err, &allFailed) {
		return ClassTransient
	}
	var subFail *SubTaskFailure
	if errors.As(err, &subFail) {
		return ClassSubTaskFailure
	}
	var deadEnd *PlannerDeadEnd
	if errors.As(err, &deadEnd) {
		return ClassPlannerDeadEnd
	}
	return ClassTransient
}

// IsRetriable applies spec §4.9's retriable rule to any error.
func IsRetriable(err error) bool {
	return ClassOf(err) != ClassPermanent
}
