package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ki-autoagent/engine/internal/agents"
	"github.com/ki-autoagent/engine/internal/checkpoint"
	"github.com/ki-autoagent/engine/internal/clientchannel"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/engine"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/mcpclient"
	"github.com/ki-autoagent/engine/internal/memory"
	"github.com/ki-autoagent/engine/internal/observability"
)

// StartCmd runs the engine and binds a websocket client channel: load
// config, build the runtime, install signal handling, serve until
// cancelled.
type StartCmd struct {
	Workspace string `short:"w" help:"Workspace directory the engine operates on." type:"path" required:""`
	Port      int    `help:"Port for the client channel and /metrics." default:"8765"`
}

func (c *StartCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.LogFile = cli.LogFile
	}

	var logOutput *os.File
	if cfg.LogFile != "" {
		f, cleanup, err := observability.OpenLogFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer cleanup()
		logOutput = f
	}
	observability.InitLogging(observability.ParseLevel(cfg.LogLevel), logOutput)

	if err := config.ValidateSecrets(cfg); err != nil {
		return fmt.Errorf("validating secrets: %w", err)
	}

	metrics := observability.NewMetrics()

	registry, err := llm.InitializeProviders(cfg, metrics)
	if err != nil {
		return fmt.Errorf("initializing LLM providers: %w", err)
	}
	defer registry.Close()

	events := engine.NewEventBus()
	defer events.Close()

	mcp := mcpclient.New(cfg, metrics, func(ev mcpclient.ProgressEvent) {
		_ = events.Publish(engine.ProgressEvent{
			Kind:    engine.EventAgentStart,
			Agent:   ev.ServerName,
			Message: ev.Message,
			Payload: map[string]any{"progress": ev.Progress, "total": ev.Total, "token": ev.Token},
		})
	})
	if err := mcp.ConnectAll(ctx); err != nil {
		slog.Warn("some MCP servers failed to connect", "error", err)
	}
	defer mcp.CloseAll()

	mem, err := memory.Open(c.Workspace)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer mem.Close()

	checkpoints, err := checkpoint.Open(c.Workspace)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer checkpoints.Close()

	deps := &agents.Deps{LLM: registry, MCP: mcp, Memory: mem, Config: cfg, Metrics: metrics}
	eng := engine.New(cfg, deps, checkpoints, events)

	if err := writePIDFile(c.Workspace); err != nil {
		slog.Warn("failed to write pid file", "error", err)
	}
	defer removePIDFile(c.Workspace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ch, err := clientchannel.UpgradeHTTP(w, r)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		session := clientchannel.NewSession(ch, eng, events)
		if err := session.Serve(ctx); err != nil {
			slog.Info("client session ended", "error", err)
		}
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(c.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	slog.Info("autoagent engine listening", "addr", srv.Addr, "workspace", c.Workspace)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return &runtimeError{cause: err}
	}
	return nil
}
