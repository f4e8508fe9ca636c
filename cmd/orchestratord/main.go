package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/taskforge/orchestrator/internal/config"
)

// Grounded on C360Studio-semspec's cmd/semspec/main.go: a cobra root
// command with --config, godotenv.Load for local .env, and
// signal.NotifyContext bounding the run.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "orchestratord",
		Short: "Multi-role task orchestration runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to orchestrator.yaml (default: discovered per internal/config.Loader)")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func runDaemon(ctx context.Context, configPath string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err == nil {
			err = cfg.Validate()
		}
	} else {
		cfg, err = config.NewLoader(log).Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start app: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down")
	app.Shutdown(10 * time.Second)
	return nil
}
