package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/app"
	"github.com/DukeRupert/quotaledger/internal/billing"
	"github.com/DukeRupert/quotaledger/internal/handler"
	"github.com/DukeRupert/quotaledger/internal/jobs"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/middleware"
	"github.com/DukeRupert/quotaledger/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	rt, err := app.Open(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger.Info("database ready", "driver", cfg.DatabaseDriver)

	svc := rt.Services

	if cfg.CatalogSeedFile != "" {
		n, err := app.ImportCatalog(ctx, svc.Catalog, cfg.CatalogSeedFile)
		if err != nil {
			return fmt.Errorf("catalog import failed: %w", err)
		}
		logger.Info("tier catalog imported", "file", cfg.CatalogSeedFile, "entries", n)
	}

	queue := worker.NewSQLQueue(rt.DB)

	var billingService billing.Service
	if cfg.StripeWebhookSecret != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripePriceTiers())
	} else {
		logger.Warn("stripe webhook secret not set, webhooks are ignored")
	}

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := !cfg.IsDevelopment()

	clientIP, err := middleware.NewClientIPMiddleware(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	authFailures := middleware.NewRateLimiter(10, 15*time.Minute, logger)
	defer authFailures.Close()
	requestLimiter := middleware.NewRateLimiter(600, time.Minute, logger)
	defer requestLimiter.Close()

	tokenMw := middleware.NewAPITokenMiddleware(cfg.APITokenHash, authFailures, logger)
	limitMw := middleware.NewRateLimitMiddleware(requestLimiter, logger)
	if cfg.APITokenHash == "" {
		logger.Warn("API_TOKEN_HASH not set, /v1 is unauthenticated")
	}

	protect := middleware.Stack(tokenMw.Handler, limitMw.Limit)

	// ==========================================================================
	// Routes
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthHandler(logger, rt.HealthChecks()...))

	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	api := handler.NewAPIHandler(svc.Quota, svc.Subscriptions, svc.Cycles, svc.Catalog, cfg.MetricSet(), logger)
	api.RegisterRoutes(mux, protect)

	webhooks := handler.NewWebhookHandler(billingService, svc.Subscriptions, svc.Cycles, queue, logger)
	webhooks.RegisterRoutes(mux)

	root := middleware.Stack(
		clientIP.Handler,
		metrics.Middleware,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// ==========================================================================
	// Start
	// ==========================================================================

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.WorkerEnabled {
		if err := startWorker(gctx, g, cfg, queue, svc, logger); err != nil {
			return err
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("graceful shutdown complete")
	return nil
}

// startWorker runs the job worker and the expired-cycle sweep in g.
func startWorker(ctx context.Context, g *errgroup.Group, cfg *internal.Config, queue *worker.SQLQueue, svc *app.Services, logger *slog.Logger) error {
	wcfg := worker.DefaultConfig()
	wcfg.Concurrency = cfg.WorkerConcurrency
	wcfg.PollInterval = cfg.WorkerPollInterval
	wcfg.JobTimeout = cfg.WorkerJobTimeout
	wcfg.SweepInterval = cfg.CycleSweepInterval
	if wcfg.StaleJobThreshold <= wcfg.JobTimeout {
		wcfg.StaleJobThreshold = 2 * wcfg.JobTimeout
	}

	w, err := worker.New(queue, wcfg, logger.With("component", "worker"))
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	w.Register(jobs.NewResetBillingCycleHandler(svc.Cycles, logger))

	g.Go(func() error {
		w.Start(ctx)
		<-ctx.Done()
		w.Stop()
		return nil
	})

	if wcfg.SweepInterval > 0 {
		sweeper := worker.NewSweeper(svc.Cycles, queue, wcfg.SweepInterval, logger.With("component", "sweeper"))
		g.Go(func() error {
			return sweeper.Run(ctx)
		})
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}
