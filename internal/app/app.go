package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/engine"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/hcl"
	"github.com/specialistvlad/nodegrid/internal/queue"
)

// Streams are the process streams the App talks to. Logs and print node
// output go to Err so that Out stays machine readable.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the standard input, output and error of the process.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	streams    Streams
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	registry   *handlers.Registry
	engine     *engine.Engine
	httpServer *http.Server
}

// NewApp builds the engine, registers the modules and loads the blueprint
// files named by the config. Without modules the core modules are used.
func NewApp(ctx context.Context, streams Streams, cfg *Config, modules ...handlers.Module) (*App, error) {
	if streams.Err == nil {
		streams.Err = io.Discard
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, streams.Err)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules(streams)
	}
	reg := handlers.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	engineCfg := engine.Config{
		Queue: queue.ScalableConfig{
			Config:     queue.Config{Concurrency: cfg.Workers, ResultTTL: cfg.ResultTTL},
			NamePrefix: "worker",
		},
		ExecuteTimeout: cfg.ExecuteTimeout,
	}
	if cfg.RateLimit > 0 {
		engineCfg.Queue.RateLimit = &queue.RateLimit{Max: cfg.RateLimit, Window: cfg.RateWindow}
	}
	eng, err := engine.New(ctx, engineCfg, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	a := &App{
		streams:  streams,
		ctx:      ctx,
		logger:   logger,
		config:   cfg,
		registry: reg,
		engine:   eng,
	}
	if cfg.BlueprintPath != "" {
		if err := a.loadBlueprints(); err != nil {
			_ = eng.GracefulShutdown(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *App) loadBlueprints() error {
	bps, err := hcl.Load(a.ctx, a.config.BlueprintPath)
	if err != nil {
		return fmt.Errorf("failed to load blueprints: %w", err)
	}
	for _, bp := range bps {
		if err := a.engine.RegisterBlueprint(bp.ID, bp.Root); err != nil {
			return fmt.Errorf("invalid blueprint '%s' in %s: %w", bp.ID, bp.File, err)
		}
	}
	a.logger.Info("Blueprints loaded.", "count", len(bps), "path", a.config.BlueprintPath)
	return nil
}

// Engine returns the application's engine. This is primarily for testing.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *handlers.Registry {
	return a.registry
}
