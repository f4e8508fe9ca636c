package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
)

// REPL is taskctl's interactive mode: submit tasks, watch their live
// progress, issue intervention commands, list recent tasks.
//
// Grounded on haricheung-agentic-shell's cmd/agsh/main.go runREPL: a
// chzyer/readline loop with a history file under the user's cache dir, a
// double-Ctrl+C-to-quit idle interrupt, and a single foreground "watch"
// that can be interrupted independently of quitting the shell. Generalized
// from a REPL driving an in-process pipeline to one driving a remote
// orchestratord over Client.
type REPL struct {
	Client    *Client
	HistoryFile string
}

// Run starts the read-eval-print loop. It blocks until the operator exits
// (Ctrl+D, "exit", or a second Ctrl+C while idle) or ctx is canceled.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Println("\033[1m\033[36m⚡ taskctl\033[0m — orchestrator console  \033[2m(exit/Ctrl-D to quit | Ctrl+C stops a watch)\033[0m")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[36m>\033[0m ",
		HistoryFile:       r.HistoryFile,
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	var watchCancel context.CancelFunc
	intrCh := make(chan os.Signal, 1)
	signal.Notify(intrCh, os.Interrupt)
	defer signal.Stop(intrCh)
	go func() {
		for {
			select {
			case <-intrCh:
				if watchCancel != nil {
					watchCancel()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("\n\033[2m(Ctrl+C again or type 'exit' to quit)\033[0m")
			line2, err2 := rl.Readline()
			if err2 == readline.ErrInterrupt || strings.TrimSpace(line2) == "exit" || strings.TrimSpace(line2) == "quit" {
				return nil
			}
			line, err = line2, err2
		}
		if err != nil {
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		watchCtx, cancelWatch := context.WithCancel(ctx)
		watchCancel = cancelWatch
		r.dispatch(watchCtx, input)
		cancelWatch()
		watchCancel = nil
	}
}

func (r *REPL) dispatch(ctx context.Context, input string) {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "submit":
		r.cmdSubmit(ctx, strings.TrimSpace(strings.TrimPrefix(input, cmd)))
	case "watch":
		if len(args) < 1 {
			fmt.Println("usage: watch <taskId>")
			return
		}
		r.cmdWatch(ctx, args[0])
	case "list":
		limit := 20
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				limit = n
			}
		}
		r.cmdList(ctx, limit)
	case "get":
		if len(args) < 1 {
			fmt.Println("usage: get <taskId>")
			return
		}
		r.cmdGet(ctx, args[0])
	case "approve", "reject", "rework", "pause", "resume":
		if len(args) < 1 {
			fmt.Printf("usage: %s <taskId> [reason]\n", cmd)
			return
		}
		r.cmdAction(ctx, cmd, args[0], strings.TrimSpace(strings.Join(args[1:], " ")))
	default:
		fmt.Printf("unknown command: %s (try: submit, watch, list, get, approve, reject, rework, pause, resume)\n", cmd)
	}
}

func (r *REPL) cmdSubmit(ctx context.Context, title string) {
	if title == "" {
		fmt.Println("usage: submit <title>")
		return
	}
	id, err := r.Client.Submit(ctx, title, "")
	if err != nil {
		fmt.Printf("\033[31msubmit failed: %v\033[0m\n", err)
		return
	}
	fmt.Printf("submitted \033[1m%s\033[0m\n", id)
	r.cmdWatch(ctx, id)
}

func (r *REPL) cmdWatch(ctx context.Context, taskID string) {
	ch, cancel := r.Client.Subscribe(ctx)
	defer cancel()
	d := NewDisplay(taskID)
	d.Run(ctx, ch)
}

func (r *REPL) cmdList(ctx context.Context, limit int) {
	tasks, err := r.Client.Recent(ctx, limit)
	if err != nil {
		fmt.Printf("\033[31mlist failed: %v\033[0m\n", err)
		return
	}
	for _, t := range tasks {
		fmt.Println(TaskRow(t))
	}
}

func (r *REPL) cmdGet(ctx context.Context, taskID string) {
	task, err := r.Client.Get(ctx, taskID)
	if err != nil {
		fmt.Printf("\033[31mget failed: %v\033[0m\n", err)
		return
	}
	fmt.Println(TaskRow(task))
	if task.Summary != "" {
		fmt.Println(task.Summary)
	}
	if task.Error != "" {
		fmt.Printf("\033[31m%s\033[0m\n", task.Error)
	}
}

var actionVerbs = map[string]string{
	"approve": "approve_review",
	"reject":  "reject_review",
	"rework":  "request_rework",
	"pause":   "pause_task",
	"resume":  "resume_task",
}

func (r *REPL) cmdAction(ctx context.Context, cmd, taskID, extra string) {
	action := actionVerbs[cmd]
	req := actionRequest{Action: action}
	switch cmd {
	case "reject":
		req.Reason = extra
	case "rework":
		req.Feedback = extra
	}
	resp, err := r.Client.Action(ctx, taskID, req)
	if err != nil {
		fmt.Printf("\033[31maction failed: %v\033[0m\n", err)
		return
	}
	if !resp.Accepted {
		fmt.Printf("\033[33mrejected (%s): %s\033[0m\n", resp.ReasonCode, resp.Message)
		return
	}
	fmt.Println("\033[32maccepted\033[0m")
}
