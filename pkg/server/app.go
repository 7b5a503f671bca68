package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"SentiTrader/internal/worker"
	"SentiTrader/pkg/config"
	xhttp "SentiTrader/pkg/http"
	applogger "SentiTrader/pkg/logger"
)

// App runs the operations API next to the enabled pipeline stages.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	stages     []worker.Worker
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, stages []worker.Worker) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	return &App{cfg: cfg, l: l, httpServer: httpServer, stages: stages}
}

// Stages returns the names of the stages this process runs.
func (a *App) Stages() []string {
	names := make([]string, 0, len(a.stages))
	for _, s := range a.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the HTTP server and the stages, then blocks until ctx is
// done or the listener fails. Stages are drained before the server stops.
func (a *App) RunContext(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var runErr error
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.RunAll(ctx, a.l, a.stages...)
	}()
	a.l.Info("pipeline started", applogger.Strings("stages", a.Stages()))

	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case err := <-a.serverErr():
		runErr = err
	}
	cancel()

	return a.shutdown(done, runErr)
}

func (a *App) serverErr() <-chan error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Err()
}

// shutdown gracefully stops all services.
func (a *App) shutdown(stagesDone <-chan struct{}, runErr error) error {
	a.l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	select {
	case <-stagesDone:
	case <-shutdownCtx.Done():
		a.l.Warn("stages did not stop before the shutdown timeout")
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return runErr
}
