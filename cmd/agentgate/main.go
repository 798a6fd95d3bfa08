package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	sinkfan "github.com/nexocrm/agentgate/internal/adapter/auditlog"
	aghttp "github.com/nexocrm/agentgate/internal/adapter/http"
	"github.com/nexocrm/agentgate/internal/adapter/memory"
	agnats "github.com/nexocrm/agentgate/internal/adapter/nats"
	otelx "github.com/nexocrm/agentgate/internal/adapter/otel"
	"github.com/nexocrm/agentgate/internal/adapter/postgres"
	"github.com/nexocrm/agentgate/internal/adapter/ristretto"
	"github.com/nexocrm/agentgate/internal/adapter/ws"
	"github.com/nexocrm/agentgate/internal/config"
	"github.com/nexocrm/agentgate/internal/domain/authz"
	"github.com/nexocrm/agentgate/internal/execpool"
	"github.com/nexocrm/agentgate/internal/logger"
	"github.com/nexocrm/agentgate/internal/middleware"
	"github.com/nexocrm/agentgate/internal/port/actionstore"
	"github.com/nexocrm/agentgate/internal/port/auditlog"
	"github.com/nexocrm/agentgate/internal/port/sessioncounter"
	"github.com/nexocrm/agentgate/internal/resilience"
	"github.com/nexocrm/agentgate/internal/service"
	"github.com/nexocrm/agentgate/internal/tool"
	"github.com/nexocrm/agentgate/internal/tool/crm"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		return
	}

	flags, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)

	runErr := run(cfg, cfgPath)
	if runErr != nil {
		slog.Error("fatal", "error", runErr)
	}
	logCloser.Close()
	if runErr != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, cfgPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
	)

	// --- Telemetry ---
	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdown, err := otelx.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---
	var (
		store    actionstore.Store
		sessions sessioncounter.Counter
		sinks    []auditlog.Sink
	)

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		pg := postgres.NewStore(pool)
		store = pg
		sessions = postgres.NewSessions(pg)
		sinks = append(sinks, postgres.NewAuditSink(pg))
	default:
		slog.Info("using in-memory store")
		store = memory.NewStore()
		sessions = memory.NewSessions()
		sinks = append(sinks, memory.NewAuditSink())
	}

	// --- NATS audit sink (optional, behind a circuit breaker) ---
	if cfg.NATS.URL != "" {
		breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		pub, err := agnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.StreamName, cfg.NATS.SubjectPrefix, breaker)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = pub.Close() }()
		sinks = append(sinks, pub)
		slog.Info("nats audit sink connected", "stream", cfg.NATS.StreamName)
	}

	sinks = append(sinks, sinkfan.NewSlogSink(slog.Default()))
	auditSink := sinkfan.NewMulti(slog.Default(), sinks...)

	// --- Role table ---
	var extra map[authz.Role]authz.Permission
	if cfg.Roles.Dir != "" {
		extra, err = authz.LoadFromDirectory(cfg.Roles.Dir)
		if err != nil {
			return fmt.Errorf("roles: %w", err)
		}
		slog.Info("role overrides loaded", "dir", cfg.Roles.Dir, "roles", len(extra))
	}
	table := authz.NewTable(extra)

	// --- Tools ---
	registry := tool.NewRegistry()
	crmStore := crm.NewStore()
	seedDemoData(crmStore)
	if err := crm.RegisterAll(registry, crmStore); err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// --- Services ---
	statsCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer statsCache.Close()

	hub := ws.NewHub()
	pool := execpool.New(cfg.Workflow.MaxConcurrentExecutions)

	authzSvc := service.NewAuthorizationService(table, sessions, auditSink, metrics)
	approvals := service.NewApprovalService(
		store, registry, authzSvc, auditSink, hub, pool, statsCache, metrics, slog.Default())

	// --- HTTP ---
	handlers := aghttp.NewHandlers(approvals, authzSvc, hub)

	rl := middleware.NewRateLimiter(50, 100)
	stopCleanup := rl.StartCleanup(5*time.Minute, 15*time.Minute)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(aghttp.SecurityHeaders)
	if cfg.Server.CORSOrigin != "" {
		r.Use(aghttp.CORS(cfg.Server.CORSOrigin))
	}
	r.Use(aghttp.Logger)
	r.Use(rl.Handler)
	if cfg.Telemetry.OTLPEndpoint != "" {
		r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))
	}

	aghttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	holder := config.NewHolder(cfg, cfgPath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Workflow.SweepInterval > 0 {
		sweeper := service.NewSweeper(approvals, cfg.Workflow.SweepInterval, slog.Default())
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}

	g.Go(func() error {
		return reloadOnSIGHUP(gctx, holder)
	})

	return g.Wait()
}

// reloadOnSIGHUP re-reads and revalidates the config file on SIGHUP.
// Settings that only apply at startup keep their old values until restart.
func reloadOnSIGHUP(ctx context.Context, holder *config.Holder) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			if err := holder.Reload(); err != nil {
				slog.Warn("config reload failed, keeping current config", "error", err)
				continue
			}
			slog.Info("config reloaded")
		}
	}
}

// seedDemoData loads a few CRM records so the sample tools have something
// to operate on out of the box.
func seedDemoData(s *crm.Store) {
	s.Seed(
		[]crm.Lead{
			{ID: "lead-1", Name: "Ada Nowak", Company: "Acme Corp", Status: "qualified", OwnerID: "rep-1"},
			{ID: "lead-2", Name: "Bo Lindqvist", Company: "Globex", Status: "new", OwnerID: "rep-2"},
			{ID: "lead-3", Name: "Chen Wei", Company: "Initech", Status: "contacted", OwnerID: "rep-1"},
		},
		[]crm.Deal{
			{ID: "deal-1", Name: "Acme renewal", Stage: "negotiation", Amount: 50000, OwnerID: "rep-1"},
			{ID: "deal-2", Name: "Globex expansion", Stage: "proposal", Amount: 120000, OwnerID: "rep-2"},
		},
	)
}
