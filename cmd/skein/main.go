package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/skeinflow/skein/internal/api"
	"github.com/skeinflow/skein/internal/engine"
	"github.com/skeinflow/skein/internal/expressions"
	"github.com/skeinflow/skein/internal/logging"
	"github.com/skeinflow/skein/internal/scheduler"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/internal/streaming"
	"github.com/skeinflow/skein/internal/tools"
	"github.com/skeinflow/skein/internal/validation"
	"github.com/skeinflow/skein/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("skein exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	fsm := engine.NewRunFSM(streaming.NewPublishingAppender(st, hub))

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return err
	}
	exprEngine := expressions.NewExprEngine()
	jq := expressions.NewGoJQEngine()

	llmClient := newLLMClient(cfg)

	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		&tools.AskUserTool{},
		&tools.RequestUserHelpTool{},
		&tools.FormatResponseTool{},
		tools.NewTransformTool(jq),
		tools.NewEvaluateTool(exprEngine),
		tools.NewCreateAgentTool(st),
		tools.NewUpdateAgentTool(st),
		tools.NewCreateWorkflowTool(st),
		tools.NewUpdateWorkflowTool(st),
		tools.NewCallLLMTool(llmClient),
		tools.NewTrainModelTool(llmClient),
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	dispatcher := tools.NewDispatcher(registry, logger)
	turner := engine.NewLLMTurner(llmClient)
	runner := engine.NewRunner(st, dispatcher, turner, cel, fsm, logger)

	pool := engine.NewWorkerPool(cfg.PoolSize)
	defer pool.Shutdown()

	lifecycle := engine.NewLifecycle(st, runner, fsm, pool, logger)

	validator, err := validation.NewGraphValidator()
	if err != nil {
		return err
	}
	lifecycle.SetValidator(validator)

	// Planner tools that start nested runs need the lifecycle, which needs
	// the registry. Registered last to break the loop.
	if err := registry.Register(tools.NewExecuteWorkflowTool(lifecycle)); err != nil {
		return err
	}

	queue := engine.NewQueue(st, lifecycle, cfg.pollInterval(), logger)
	go queue.Start(ctx)

	sched := scheduler.NewScheduler(st, lifecycle, logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.MCP {
		skeinMCP := mcp.NewSkeinServer(mcp.SkeinServerDeps{
			Lifecycle: lifecycle,
			Store:     st,
			Registry:  registry,
			Logger:    logger,
		})
		notifier := mcp.NewRunNotifier(skeinMCP.MCPServer(), skeinMCP.Sessions(), logger)
		go func() {
			if err := notifier.Watch(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("run notifier stopped", "error", err)
			}
		}()
		go func() {
			if err := skeinMCP.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mcp server stopped", "error", err)
			}
		}()
		logger.Info("mcp server listening on stdio")
	}

	apiServer := api.NewServer(api.Deps{
		Store:     st,
		Lifecycle: lifecycle,
		Hub:       hub,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	lifecycle.Wait()
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(cfg Config) (store.Store, error) {
	if cfg.DBPath == "memory" {
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, err
	}
	return store.NewLibSQLStore("file:" + cfg.DBPath)
}
