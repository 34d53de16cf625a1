// Package app is the HTTP layer: SSE chat streaming, uploads, asset
// serving, and the model catalog, on top of the run engine.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	omniagent "github.com/rishisan99/OmniAgent"
	"github.com/rishisan99/OmniAgent/internal/config"
	"github.com/rishisan99/OmniAgent/tools/media"
)

// cleanupInterval paces the session TTL sweep.
const cleanupInterval = time.Minute

// Deps holds injected dependencies for the App.
type Deps struct {
	Engine   *omniagent.Engine
	Sessions *omniagent.SessionStore
	Assets   *media.Assets

	// Index is the per-session retrieval index, pruned when sessions
	// expire. Optional.
	Index omniagent.SessionIndex
	// Forget drops in-memory per-session lane state on expiry. Optional.
	Forget func(sessionID string)

	Logger *slog.Logger
}

// App serves the chat API for the run engine.
type App struct {
	cfg      config.Config
	engine   *omniagent.Engine
	sessions *omniagent.SessionStore
	assets   *media.Assets
	index    omniagent.SessionIndex
	forget   func(sessionID string)
	logger   *slog.Logger
}

// New creates an App.
func New(cfg config.Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = omniagent.NopLogger()
	}
	return &App{
		cfg:      cfg,
		engine:   deps.Engine,
		sessions: deps.Sessions,
		assets:   deps.Assets,
		index:    deps.Index,
		forget:   deps.Forget,
		logger:   logger,
	}
}

// Run starts the HTTP server and the session cleanup loop, and shuts both
// down when ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: a.Handler(),
	}

	go a.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	a.logger.Info("server listening", "addr", a.cfg.Server.Addr)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

// cleanupLoop sweeps expired sessions, dropping their retrieval index
// entries, lane markers, and on-disk assets.
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range a.sessions.Cleanup() {
				a.expireSession(ctx, id)
			}
		}
	}
}

func (a *App) expireSession(ctx context.Context, id string) {
	a.logger.Info("session expired", "session_id", id)
	if a.index != nil {
		if err := a.index.DeleteSession(ctx, id); err != nil {
			a.logger.Error("session index cleanup failed", "session_id", id, "err", err)
		}
	}
	if a.forget != nil {
		a.forget(id)
	}
	if a.assets != nil {
		if err := a.assets.RemoveSession(id); err != nil {
			a.logger.Error("asset cleanup failed", "session_id", id, "err", err)
		}
	}
}
