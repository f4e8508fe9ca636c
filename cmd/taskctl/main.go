// Package main implements taskctl, the operator console for orchestratord:
// submit a task and watch it live (one-shot), or drop into an interactive
// REPL for submitting tasks, listing recent ones, and issuing
// human-intervention commands.
//
// Grounded on C360Studio-semspec's cmd/semspec/main.go one-shot/REPL split
// and haricheung-agentic-shell's cmd/agsh/main.go cache-dir/history-file
// setup, adapted to a thin HTTP client over a remote orchestratord instead
// of an in-process pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taskforge/orchestrator/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var addr string

	rootCmd := &cobra.Command{
		Use:   "taskctl [title]",
		Short: "Operator console for orchestratord",
		Long: `taskctl talks to a running orchestratord over HTTP.

Run without arguments for the interactive REPL, or provide a task title for
one-shot submit-and-watch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := cli.NewClient(addr)
			if len(args) > 0 {
				return runOneShot(cmd.Context(), client, args[0])
			}
			return runREPL(cmd.Context(), client)
		},
	}
	rootCmd.Flags().StringVar(&addr, "addr", envOr("ORC_HTTP_ADDR", "http://localhost:8080"), "orchestratord HTTP address")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runOneShot(ctx context.Context, client *cli.Client, title string) error {
	id, err := client.Submit(ctx, title, "")
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Printf("submitted \033[1m%s\033[0m\n", id)

	ch, cancel := client.Subscribe(ctx)
	defer cancel()
	cli.NewDisplay(id).Run(ctx, ch)
	return nil
}

func runREPL(ctx context.Context, client *cli.Client) error {
	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "taskctl")
	_ = os.MkdirAll(cacheDir, 0o755)

	repl := &cli.REPL{Client: client, HistoryFile: filepath.Join(cacheDir, "history")}
	return repl.Run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
