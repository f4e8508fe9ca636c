// Package cli renders the Event Bus as a live terminal view for taskctl and
// provides the readline-driven REPL it runs inside.
//
// Grounded on haricheung-agentic-shell's internal/ui.Display: a single
// terminal-I/O goroutine fed by a bus tap, animating a spinner and printing
// flow lines inside an ANSI box while a task is in flight. Generalized from
// that package's types.Message/role-pipeline shape to this module's
// types.Envelope/Event-Bus shape, and from a single always-on task to one
// Display per submitted task id (taskctl can watch several tasks across a
// session, the teacher's agsh only ever ran one at a time).
package cli

import (
	"fmt"

	"github.com/mattn/go-runewidth"

	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/types"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiBlue   = "\033[34m"
)

var roleEmoji = map[types.Role]string{
	types.RolePlanner:  "📐",
	types.RoleBuilder:  "⚙️ ",
	types.RoleReviewer: "🔍",
}

var eventColor = map[string]string{
	types.EventRoleDispatched:   ansiBlue,
	types.EventRoleStarted:      ansiDim + ansiBlue,
	types.EventRoleSucceeded:    ansiGreen,
	types.EventRoleFailed:       ansiRed,
	types.EventTaskDone:         ansiGreen,
	types.EventTaskFailed:       ansiRed,
	types.EventTaskEscalated:    ansiRed,
	types.EventTelemetryQuality: ansiYellow,
	types.EventTelemetryCircuit: ansiYellow,
	types.EventTaskIntervention: ansiCyan,
}

// roleLabel renders a role with its emoji, falling back to a bullet for
// roles this renderer doesn't recognize.
func roleLabel(r types.Role) string {
	emoji, ok := roleEmoji[r]
	if !ok {
		emoji = "•"
	}
	return emoji + " " + string(r)
}

// statusFor returns a spinner-line status label for env, or "" if env
// shouldn't move the status line (e.g. a blackboard change on a task the
// operator isn't watching).
func statusFor(env types.Envelope) string {
	switch env.Type {
	case types.EventTaskSubmitted:
		return "queued..."
	case types.EventRoleDispatched:
		if role, ok := roleOf(env); ok {
			return fmt.Sprintf("%s dispatching...", roleLabel(role))
		}
	case types.EventRoleStarted:
		if role, ok := roleOf(env); ok {
			return fmt.Sprintf("%s running...", roleLabel(role))
		}
	case types.EventRoleSucceeded:
		if succ, ok := env.Payload.(types.RoleSucceeded); ok {
			return fmt.Sprintf("%s done (confidence %.2f)", roleLabel(succ.Role), succ.Confidence)
		}
	case types.EventRoleFailed:
		if failed, ok := env.Payload.(types.RoleFailed); ok {
			return fmt.Sprintf("%s failed: %s", roleLabel(failed.Role), clip(failed.Error, 40))
		}
	case types.EventTelemetryQuality:
		if qc, ok := env.Payload.(types.QualityConcern); ok {
			return fmt.Sprintf("%s quality concern: %s", roleLabel(qc.Role), clip(qc.Concern, 32))
		}
	case types.EventTaskIntervention:
		return "awaiting operator review..."
	}
	return ""
}

func roleOf(env types.Envelope) (types.Role, bool) {
	switch p := env.Payload.(type) {
	case map[string]any:
		if r, ok := p["role"].(types.Role); ok {
			return r, true
		}
	case types.RoleSucceeded:
		return p.Role, true
	case types.RoleFailed:
		return p.Role, true
	}
	return "", false
}

// flowLine renders a single completed-event line printed above the spinner,
// the way the teacher's printFlow prints one arrow per message. Returns ""
// for events that only update the spinner status (role.started) or that are
// surfaced via the task-lifecycle box instead (task.done/task.failed).
func flowLine(env types.Envelope) string {
	switch env.Type {
	case types.EventRoleDispatched:
		role, _ := roleOf(env)
		return fmt.Sprintf("  ──[%sdispatch%s]──► %s", ansiBlue, ansiReset, roleLabel(role))
	case types.EventRoleSucceeded:
		succ, _ := env.Payload.(types.RoleSucceeded)
		return fmt.Sprintf("  %s ──[%ssucceeded via %s%s]──►", roleLabel(succ.Role), ansiGreen, succ.AdapterID, ansiReset)
	case types.EventRoleFailed:
		failed, _ := env.Payload.(types.RoleFailed)
		return fmt.Sprintf("  %s ──[%sfailed: %s%s]──►", roleLabel(failed.Role), ansiRed, clip(failed.Error, 50), ansiReset)
	case types.EventTelemetryQuality:
		qc, _ := env.Payload.(types.QualityConcern)
		return fmt.Sprintf("  %s%s  concern: %s%s", ansiDim, roleLabel(qc.Role), qc.Concern, ansiReset)
	case types.EventTelemetryCircuit:
		return circuitLine(env)
	case types.EventTaskIntervention:
		return fmt.Sprintf("  %s⏸ awaiting operator review%s", ansiCyan, ansiReset)
	default:
		return ""
	}
}

func circuitLine(env types.Envelope) string {
	switch c := env.Payload.(type) {
	case types.AdapterCircuitOpen:
		return fmt.Sprintf("  %s⚡ circuit open: %s (until %s)%s", ansiYellow, c.AdapterID, c.Until.Format("15:04:05"), ansiReset)
	case types.AdapterCircuitChanged:
		return fmt.Sprintf("  %s⚡ circuit %s: %s%s", ansiYellow, c.AdapterID, c.State, ansiReset)
	default:
		return ""
	}
}

// clip truncates s to width visible columns, accounting for wide runes, the
// way joeycumines-go-utilpkg's prompt/completion.go clips completion labels
// with runewidth.Truncate before they're laid out in a fixed-width column.
func clip(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// padRight right-pads s with spaces to width visible columns, for the
// status column in the operator's task table.
func padRight(s string, width int) string {
	return runewidth.FillRight(clip(s, width), width)
}

// actionLabel renders an intervention command for confirmation prompts.
func actionLabel(cmd coordinator.InterventionCommand) string {
	return fmt.Sprintf("%s%s%s", ansiBold, cmd.Action, ansiReset)
}
