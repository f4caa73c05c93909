package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/engine"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// shutdownTimeout bounds the engine drain when Run returns.
const shutdownTimeout = 10 * time.Second

// Run executes the configured mode and shuts the engine down afterwards.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", a.config.Mode)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, a.engine.GracefulShutdown(shutdownCtx))
		a.logger.Debug("App.Run method finished.")
	}()

	switch a.config.Mode {
	case ModeServe:
		return a.serve(ctx)
	case ModeStdio:
		a.logger.Info("Serving engine on standard streams.")
		return transport.ServeStream(ctx, a.engine.Router(), a.streams.In, a.streams.Out)
	default:
		return a.runOnce(ctx)
	}
}

func (a *App) serve(ctx context.Context) error {
	addr, err := a.startServer()
	if err != nil {
		return err
	}
	a.logger.Info("Engine is serving.", "address", addr, "blueprints", a.engine.Blueprints())
	<-ctx.Done()
	return a.closeServer()
}

// runOnce executes the selected blueprint and writes its result as JSON.
func (a *App) runOnce(ctx context.Context) error {
	id, err := a.selectBlueprint()
	if err != nil {
		return err
	}

	a.logger.Info("Starting execution.", "blueprint", id)
	res := a.engine.Execute(ctx, engine.Request{BlueprintID: id, Input: a.config.input()})

	enc := json.NewEncoder(a.streams.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("execution failed: %w", res.Error)
	}
	a.logger.Info("Execution finished.", "executionID", res.ExecutionID, "duration", res.Duration)
	return nil
}

func (a *App) selectBlueprint() (string, error) {
	if a.config.BlueprintID != "" {
		return a.config.BlueprintID, nil
	}
	ids := a.engine.Blueprints()
	switch len(ids) {
	case 0:
		return "", errors.New("no blueprints found")
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("several blueprints found, choose one with -blueprint: %s", strings.Join(ids, ", "))
	}
}
