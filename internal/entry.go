// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/localnative/localnative/internal/api"
	"github.com/localnative/localnative/internal/command"
	"github.com/localnative/localnative/internal/inbox"
	"github.com/localnative/localnative/internal/notes"
	"github.com/localnative/localnative/internal/rpc"
	"github.com/localnative/localnative/internal/sse"
	"github.com/localnative/localnative/internal/store"
)

// Runtime is an opened note store with the services built on top of it.
type Runtime struct {
	Config *Config
	Logger *slog.Logger
	Store  *store.Store
	Notes  *notes.Service
	Peers  *rpc.Manager
	Engine *command.Engine
}

// Open initializes logging, opens (and migrates) the store and wires the
// command engine to the sync manager.
func Open(ctx context.Context, opts ...Option) (*Runtime, error) {
	app := &application{logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	path := cfg.Store.Path
	if path == "" {
		var err error
		if path, err = store.DefaultPath(); err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, path, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	svc := notes.New(st, notes.WithLogger(logger))
	peers := rpc.NewManager(svc, cfg.Sync.Options(logger)...)
	engine := command.NewEngine(svc, command.WithPeers(peers), command.WithLogger(logger))

	logger.Debug("Store opened", slog.String("path", path))

	return &Runtime{
		Config: cfg,
		Logger: logger,
		Store:  st,
		Notes:  svc,
		Peers:  peers,
		Engine: engine,
	}, nil
}

// Close stops the sync server, if any, and closes the store.
func (rt *Runtime) Close() error {
	rt.Peers.Close()
	return rt.Store.Close()
}

// Run opens the store and serves every enabled surface (HTTP API, peer sync
// server, inbox watcher) until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Error("close runtime", slog.String("error", err.Error()))
		}
	}()

	cfg, logger := rt.Config, rt.Logger

	logger.Info("Configuration loaded",
		slog.String("store_path", rt.Store.Path()),
		slog.Bool("http_enabled", cfg.App.HTTP.Enabled()),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("sync_serve", cfg.Sync.Serve),
		slog.String("sync_addr", cfg.Sync.Addr),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker fed by committed note writes.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	rt.Notes.OnEvent(broker.PublishNoteEvent)

	var in *inbox.Inbox
	if cfg.Inbox.Enabled {
		dir, err := inbox.NewDir(cfg.Inbox.Dir)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		in = inbox.New(dir, rt.Notes, logger)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled() {
		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newHTTPHandler(rt.Engine, cfg, broker, in),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	if cfg.Sync.Serve {
		g.Go(func() error {
			if _, port, err := net.SplitHostPort(cfg.Sync.Addr); err == nil {
				if p, err := strconv.Atoi(port); err == nil {
					logger.Info("Starting sync server",
						slog.String("address", cfg.Sync.Addr),
						slog.String("advertise", rpc.AdvertiseAddr(p)))
				}
			}
			if err := rt.Peers.Server().Run(gCtx, cfg.Sync.Addr); err != nil {
				return fmt.Errorf("sync server error: %w", err)
			}
			return nil
		})
	}

	if in != nil {
		g.Go(func() error {
			return in.Watch(gCtx, func(res inbox.Result) {
				logger.Info("inbox merged",
					slog.String("name", res.Name),
					slog.Bool("duplicate", res.Duplicate),
					slog.Int64("pulled", res.Stats.Pulled),
					slog.Int64("pushed", res.Stats.Pushed))
			})
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		cancel()

		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newHTTPHandler(engine *command.Engine, cfg *Config, broker *sse.Broker, in *inbox.Inbox) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := engine.Notes().Version(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, in))
	return r
}
