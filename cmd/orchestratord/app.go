// Package main implements orchestratord, the runtime daemon: Event Bus,
// Blackboard, Registry, Memory, Role Workers, Supervisor/Dispatcher, HTTP
// ingress, and a Prometheus metrics endpoint.
//
// Grounded on C360Studio-semspec's cmd/semspec App struct (NewApp/Start/
// Shutdown wiring every component, one field per collaborator), generalized
// from a single NATS-backed store to this runtime's Event-Bus-centric
// collaborator graph.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskforge/orchestrator/internal/adapter"
	"github.com/taskforge/orchestrator/internal/blackboard"
	"github.com/taskforge/orchestrator/internal/config"
	"github.com/taskforge/orchestrator/internal/consensus"
	"github.com/taskforge/orchestrator/internal/contextbudget"
	"github.com/taskforge/orchestrator/internal/coordinator"
	"github.com/taskforge/orchestrator/internal/eventbus"
	"github.com/taskforge/orchestrator/internal/httpapi"
	"github.com/taskforge/orchestrator/internal/memory"
	"github.com/taskforge/orchestrator/internal/metrics"
	"github.com/taskforge/orchestrator/internal/registry"
	"github.com/taskforge/orchestrator/internal/roles"
	"github.com/taskforge/orchestrator/internal/supervisor"
	"github.com/taskforge/orchestrator/internal/types"
)

// App wires every collaborator described by spec §4 into one running
// process.
type App struct {
	cfg *config.Config
	log *slog.Logger

	bus        *eventbus.Bus
	board      *blackboard.Blackboard
	reg        *registry.Registry
	mem        *memory.Store
	metrics    *metrics.Registry
	breakers   *supervisor.CircuitBreakers
	executor   *adapter.Executor
	dispatcher *supervisor.Dispatcher
	supervisorProc *supervisor.Supervisor

	httpSrv    *http.Server
	metricsSrv *http.Server
}

// NewApp constructs every collaborator but starts nothing. ctx bounds the
// lifetime of the Role Worker pools and every Coordinator the Dispatcher
// creates, including sub-tasks spawned later — cancel it to unwind the
// whole task tree.
func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	a.bus = eventbus.New(cfg.EventBufferSize, log)
	a.board = blackboard.New(a.bus)
	a.reg = registry.New()
	a.metrics = metrics.New()

	mem, err := memory.Open(cfg.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	a.mem = mem

	a.breakers = supervisor.NewCircuitBreakers(a.bus, a.board, cfg.AdapterCircuitThreshold, cfg.AdapterCircuitDuration)
	a.executor = adapter.New(cfg.AdapterConfigs(), cfg.RoleExecutionTimeout)

	closed := a.breakers.Closed
	adapterAvailable := func() bool {
		for _, ac := range cfg.AdapterConfigs() {
			if closed(ac.ID) {
				return true
			}
		}
		return false
	}

	planner := roles.New(ctx, types.RolePlanner, a.executor, a.bus, roles.PlannerPrompt, closed, roles.Config{MaxWorkers: cfg.PlannerWorkers})
	builder := roles.New(ctx, types.RoleBuilder, a.executor, a.bus, roles.BuilderPrompt, closed, roles.Config{MaxWorkers: cfg.BuilderWorkers})
	reviewer := roles.New(ctx, types.RoleReviewer, a.executor, a.bus, roles.ReviewerPrompt, closed, roles.Config{MaxWorkers: cfg.ReviewerWorkers})

	collector := consensus.New(func(msg string) { a.log.Warn("consensus", "message", msg) }, cfg.ConsensusDeadline)

	depsTemplate := coordinator.Dependencies{
		Bus:              a.bus,
		Blackboard:       a.board,
		Registry:         a.reg,
		Planner:          planner,
		Builder:          builder,
		Reviewer:         reviewer,
		Consensus:        collector,
		Catalogue:        types.DefaultActionCatalogue(),
		ContextRetriever: contextbudget.NoopRetriever{},
		BudgetAccountant: contextbudget.NewInMemoryAccountant(),
		AdapterAvailable: adapterAvailable,
		AlternativeAdapter: a.executor.AlternativeOf,
	}

	newConfig := func() coordinator.Config {
		return coordinator.Config{
			MaxRetriesPerTask:      cfg.MaxRetriesPerTask,
			DefaultMaxSubTaskDepth: cfg.DefaultMaxSubTaskDepth,
			ReviewConsensusCount:   cfg.ReviewConsensusCount,
			ConsensusStrategy:      cfg.ConsensusStrategy,
			OrchestratorMode:       cfg.OrchestratorMode,
		}
	}

	a.dispatcher = supervisor.New(ctx, a.bus, log, depsTemplate, newConfig)
	a.supervisorProc = supervisor.NewSupervisor(a.bus, a.breakers, a.dispatcher, cfg.MaxRetriesPerTask, log)

	httpServer := &httpapi.Server{
		Dispatcher: a.dispatcher,
		Intervener: a.dispatcher,
		Bus:        a.bus,
		Registry:   a.reg,
	}
	a.httpSrv = &http.Server{Addr: cfg.HTTPAddr, Handler: httpServer.Router()}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(a.metrics.Registerer(), promhttp.HandlerOpts{}))
	a.metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	return a, nil
}

// Start bootstraps memory-backed task state into the Registry, publishing
// the explicit memory.bootstrap/memory.tasks events spec §6 calls for
// ("repopulate the Registry without re-emitting events (bootstrap events
// are emitted explicitly)") rather than replaying task-lifecycle events,
// then brings up the metrics and HTTP listeners and the metrics bus tap. It
// returns immediately; the listeners run until Shutdown is called.
func (a *App) Start(ctx context.Context) error {
	tasks, err := a.mem.List(0)
	if err != nil {
		return fmt.Errorf("bootstrap memory: %w", err)
	}
	for _, t := range tasks {
		a.reg.Update(t)
	}
	a.bus.Publish(types.EventMemoryBootstrap, "", map[string]any{"count": len(tasks)})
	if len(tasks) > 0 {
		a.bus.Publish(types.EventMemoryTasks, "", tasks)
	}

	metricsCh, _ := a.bus.Subscribe()
	go a.metrics.Watch(metricsCh)

	persistCh, _ := a.bus.Subscribe()
	go a.persistSnapshots(persistCh)

	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server stopped", "error", err)
		}
	}()
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server stopped", "error", err)
		}
	}()

	a.log.Info("orchestratord started", "http", a.cfg.HTTPAddr, "metrics", a.cfg.MetricsAddr)
	return nil
}

// persistSnapshots writes the Registry's current snapshot of the task named
// by every envelope whose TaskID the Registry knows to the Memory store, so
// a restart can rebuild the Registry from it in Start.
func (a *App) persistSnapshots(ch <-chan types.Envelope) {
	for env := range ch {
		task := a.reg.Get(env.TaskID)
		if task == nil {
			continue
		}
		if err := a.mem.Write(task); err != nil {
			a.log.Warn("memory write failed", "taskId", env.TaskID, "error", err)
		}
	}
}

// Shutdown stops the HTTP/metrics listeners within timeout.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = a.httpSrv.Shutdown(ctx)
	_ = a.metricsSrv.Shutdown(ctx)
	a.dispatcher.Close()
}
