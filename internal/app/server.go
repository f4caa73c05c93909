package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/queue"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// Handler returns the HTTP surface of the engine: the command API under
// /api, the WebSocket endpoint at /ws, /health and /metrics.
func (a *App) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		queue.NewCollector(a.engine.Queue()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := transport.NewHTTPHandler(a.ctx, a.engine.Router())
	r.HandleFunc("/health", a.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Handle("/ws", transport.WebSocketHandler(a.ctx, a.engine.Router()))
	return r
}

// healthHandler reports liveness together with the queue counters.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	m := a.engine.GetMetrics()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"activeJobs": m.Queue.ActiveJobs,
		"queueSize":  m.Queue.QueueSize,
		"blueprints": m.Blueprints,
	})
}

// startServer listens on the configured address and serves Handler in the
// background. It returns the bound address.
func (a *App) startServer() (string, error) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring HTTP server.")

	ln, err := net.Listen("tcp", a.config.Listen)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", a.config.Listen, err)
	}
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting.", "address", ln.Addr().String())
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed unexpectedly.", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}

func (a *App) closeServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		logger.Debug("HTTP server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server.")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed.", "error", err)
		return err
	}
	logger.Debug("HTTP server shut down gracefully.")
	return nil
}
