package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-learn/internal/api"
	"github.com/p-n-ai/pai-learn/internal/auth"
	"github.com/p-n-ai/pai-learn/internal/content"
	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
	"github.com/p-n-ai/pai-learn/internal/progress"
	"github.com/p-n-ai/pai-learn/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(os.Stdout, cfg.Log))
	if cfg.UsesDefaultSecret() {
		slog.Warn("signing tokens with the default JWT secret; set LEARN_AUTH_JWT_SECRET")
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Progress.Store)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type app struct {
	mux     *http.ServeMux
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires stores, caches and handlers from cfg.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	var checks []readyCheck

	var (
		store  progress.Store
		events progress.EventLogger = progress.NopEventLogger{}
	)
	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		checks = append(checks, readyCheck{name: "database", fn: db.HealthCheck})

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.close()
				return nil, err
			}
		}

		ps, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		store = ps
		events = progress.NewPostgresEventLogger(db.Pool)
		slog.Info("using postgres progress store")
	} else {
		store = progress.NewMemoryStore()
		slog.Info("using in-memory progress store")
	}

	var dc content.DifficultyCache = content.NewMemoryDifficultyCache()
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("cache close failed", "error", err)
			}
		})
		checks = append(checks, readyCheck{name: "cache", fn: c.HealthCheck})
		dc = content.NewRedisDifficultyCache(c, cfg.Cache.DifficultyTTL)
	}

	catalog, err := content.Load(cfg.Content.Path)
	if err != nil {
		slog.Warn("content not loaded, serving empty catalog", "path", cfg.Content.Path, "error", err)
		catalog = content.NewCatalog()
	}

	selector := content.NewSelector(catalog, store, dc)
	selector.SetTimeout(cfg.Progress.IOTimeout)
	reporter := report.NewReporter(store)
	reporter.SetTimeout(cfg.Progress.IOTimeout)
	hub := api.NewHub()
	orch := progress.NewOrchestrator(progress.OrchestratorConfig{
		Store:      store,
		Events:     events,
		Listeners:  []progress.Listener{selector, hub},
		IOTimeout:  cfg.Progress.IOTimeout,
		MaxRetries: cfg.Progress.MaxRetries,
	})

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Duration(cfg.Auth.AccessTokenTTL)*time.Minute)
	h, err := api.NewHandler(api.Config{
		Orchestrator: orch,
		Selector:     selector,
		Reporter:     reporter,
		Verifier:     jwt,
		Hub:          hub,
		IOTimeout:    cfg.Progress.IOTimeout,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.mux = newMux(h, checks...)
	return a, nil
}

type readyCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints and, when h is
// non-nil, the API routes.
func newMux(h *api.Handler, checks ...readyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	if h != nil {
		h.Register(mux)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for _, c := range checks {
			if err := c.fn(ctx); err != nil {
				slog.Warn("readiness check failed", "check", c.name, "error", err)
				failed[c.name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "checks": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
