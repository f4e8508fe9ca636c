package roles

import (
	"fmt"
	"strings"

	"github.com/taskforge/orchestrator/internal/types"
)

// PlannerPrompt renders the prompt sent to the Planner role's adapter.
func PlannerPrompt(msg types.ExecuteRole) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce a step-by-step plan for the following task.\n\nTitle: %s\nDescription: %s\n", msg.Title, msg.Description)
	if msg.ReworkFeedback != "" {
		fmt.Fprintf(&b, "\nIncorporate this feedback from a prior review:\n%s\n", msg.ReworkFeedback)
	}
	return b.String()
}

// BuilderPrompt renders the prompt sent to the Builder role's adapter.
func BuilderPrompt(msg types.ExecuteRole) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement the following task per the plan below.\n\nTitle: %s\nDescription: %s\n\nPlan:\n%s\n", msg.Title, msg.Description, msg.PlanOutput)
	if msg.ReworkFeedback != "" {
		fmt.Fprintf(&b, "\nAddress this review feedback:\n%s\n", msg.ReworkFeedback)
	}
	return b.String()
}

// ReviewerPrompt renders the prompt sent to the Reviewer role's adapter.
func ReviewerPrompt(msg types.ExecuteRole) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the following build output against the task and plan. Respond with either an explicit \"ACTION: Approve\" or \"ACTION: Reject\" marker followed by your reasoning.\n\nTitle: %s\nDescription: %s\n\nPlan:\n%s\n\nBuild output:\n%s\n", msg.Title, msg.Description, msg.PlanOutput, msg.BuildOutput)
	return b.String()
}
