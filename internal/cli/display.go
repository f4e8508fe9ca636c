package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/internal/types"
)

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// EventSource is the bus-tap surface Display needs; satisfied by
// *eventbus.Bus. Client.Subscribe takes a context and so does not satisfy
// it; its channel is passed to Display.Run directly.
type EventSource interface {
	Subscribe() (<-chan types.Envelope, func())
}

// Display renders the live progress of one task to stdout: a spinner status
// line while the task is in flight, with completed-event lines printed
// above it, framed by an ANSI box opened at task.submitted and closed at
// task.done/task.failed/task.escalated.
//
// Grounded on haricheung-agentic-shell's internal/ui.Display, generalized
// from a single always-open pipeline box tracking every bus message to one
// scoped to a single TaskID, since this runtime's bus carries many
// concurrently in-flight tasks (sub-tasks included) that a taskctl operator
// watching one task should not see interleaved.
type Display struct {
	TaskID string

	status  string
	started time.Time
	open    bool
	spinIdx int
}

// NewDisplay returns a Display scoped to taskID.
func NewDisplay(taskID string) *Display {
	return &Display{TaskID: taskID}
}

// Run consumes envelopes from ch until it closes or ctx is done, rendering
// only those for d.TaskID (plus its descendants, identified by the caller
// pre-filtering if sub-task fan-out should also be shown). It returns once
// the task reaches a terminal event or the channel/context ends.
func (d *Display) Run(ctx context.Context, ch <-chan types.Envelope) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Print("\r\033[K")
			return

		case env, ok := <-ch:
			if !ok {
				return
			}
			if env.TaskID != d.TaskID {
				continue
			}
			if env.Type == types.EventTaskSubmitted && !d.open {
				d.startBox()
			}
			fmt.Print("\r\033[K")
			if line := flowLine(env); line != "" {
				fmt.Println(line)
			}
			if s := statusFor(env); s != "" {
				d.status = s
			}
			if isTerminal(env.Type) {
				d.endBox(env.Type == types.EventTaskDone)
				return
			}

		case <-ticker.C:
			if !d.open {
				continue
			}
			frame := spinRunes[d.spinIdx%len(spinRunes)]
			d.spinIdx++
			fmt.Printf("\r\033[K%s%s%s %s", ansiCyan, string(frame), ansiReset, d.status)
		}
	}
}

func isTerminal(eventType string) bool {
	switch eventType {
	case types.EventTaskDone, types.EventTaskFailed, types.EventTaskEscalated:
		return true
	default:
		return false
	}
}

func (d *Display) startBox() {
	d.open = true
	d.started = time.Now()
	d.status = "queued..."
	fmt.Printf("\n%s┌─── task %s %s%s\n", ansiDim, d.TaskID, strings.Repeat("─", 40), ansiReset)
}

func (d *Display) endBox(success bool) {
	d.open = false
	elapsed := time.Since(d.started).Round(time.Millisecond)
	icon := "✅"
	if !success {
		icon = "❌"
	}
	fmt.Printf("\r\033[K%s└─── %s  %v %s%s\n", ansiDim, icon, elapsed, strings.Repeat("─", 35), ansiReset)
}

// TaskRow renders one summary line for a `taskctl list` table, width-aligned
// with runewidth.FillRight so unicode titles don't break column alignment.
func TaskRow(t *types.Task) string {
	status := string(t.Status)
	color := ansiDim
	switch t.Status {
	case types.StatusDone:
		color = ansiGreen
	case types.StatusBlocked:
		color = ansiRed
	case types.StatusPlanning, types.StatusBuilding, types.StatusReviewing:
		color = ansiCyan
	}
	return fmt.Sprintf("%s  %s%s%s  %s", padRight(t.ID, 36), color, padRight(status, 10), ansiReset, clip(t.Title, 48))
}
