package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	cshttp "github.com/codescope/codescope/internal/adapter/http"
	csnats "github.com/codescope/codescope/internal/adapter/nats"
	csotel "github.com/codescope/codescope/internal/adapter/otel"
	"github.com/codescope/codescope/internal/adapter/postgres"
	"github.com/codescope/codescope/internal/adapter/ristretto"
	"github.com/codescope/codescope/internal/config"
	"github.com/codescope/codescope/internal/logger"
	"github.com/codescope/codescope/internal/middleware"
	"github.com/codescope/codescope/internal/resilience"
	"github.com/codescope/codescope/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// OpenTelemetry. Disabled unless an OTLP endpoint is configured.
	otelShutdown, err := csotel.Init(ctx, cfg.Logging.Service, cfg.OTel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	// PostgreSQL. Startup races the database container, so connection and
	// migrations are retried with backoff.
	var pool *pgxpool.Pool
	err = resilience.Retry(ctx, cfg.Retry.Attempts, cfg.Retry.BaseDelay, func(ctx context.Context) error {
		var err error
		pool, err = postgres.NewPool(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	err = resilience.Retry(ctx, cfg.Retry.Attempts, cfg.Retry.BaseDelay, func(ctx context.Context) error {
		return postgres.RunMigrations(ctx, cfg.Postgres.DSN)
	})
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := csnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// --- Services ---
	store := postgres.NewStore(pool)

	members, err := ristretto.NewChecker(store, cfg.Cache)
	if err != nil {
		return fmt.Errorf("membership cache: %w", err)
	}
	defer members.Close()

	metrics, err := csotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	projectSvc := service.NewProjectService(store, members, log)
	projectSvc.SetInvalidator(members)
	versionSvc := service.NewVersionService(store, members, cfg.Upload.MaxContentBytes, log)
	versionSvc.SetMetrics(metrics)
	snapshotSvc := service.NewSnapshotService(store, members, cfg.Upload.MaxContentBytes, log)
	taskSvc := service.NewTaskService(store, members, queue, log)
	taskSvc.SetMetrics(metrics)
	resultSvc := service.NewResultService(store, members, log)

	// Consume worker progress and findings from NATS.
	stopSubscriber, err := taskSvc.StartResultSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("result subscriber: %w", err)
	}
	defer stopSubscriber()

	// --- HTTP ---
	handlers := cshttp.NewHandlers(projectSvc, versionSvc, snapshotSvc, taskSvc, resultSvc, cfg.Upload.MaxContentBytes)

	r := chi.NewRouter()

	r.Use(cshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(csotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cshttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.ActorID)

	r.Get("/health", healthHandler(pool, queue))

	cshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return queue.Drain()
}

// healthHandler reports liveness of the service and its dependencies.
func healthHandler(pool *pgxpool.Pool, queue *csnats.Queue) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Postgres string `json:"postgres"`
		NATS     string `json:"nats"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", Postgres: "ok", NATS: "ok"}

		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			status.Status = "degraded"
			status.Postgres = "unreachable"
		}
		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
		}

		w.Header().Set("Content-Type", "application/json")
		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
