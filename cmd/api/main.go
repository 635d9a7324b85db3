// Package main is the entry point for the Hel.io webhook intake service.
//
// It loads configuration, connects the ledger database, wires the intake
// processor with its audit, metrics and notification collaborators, and then
// either serves HTTP (RUN_MODE=http) or handles API Gateway proxy events
// (RUN_MODE=lambda).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"heliogate/internal/api/handlers"
	"heliogate/internal/config"
	"heliogate/internal/core"
	"heliogate/internal/db"
	"heliogate/internal/intake"
	"heliogate/internal/metrics"
	"heliogate/internal/queue"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Region and endpoint are needed before config exists to build the SSM
	// provider, so they come straight from the environment.
	provider := config.NewSSMProvider(envOr("AWS_REGION", "us-east-1"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.LogLevel, cfg.Service)
	logger.Info("heliogate starting",
		"environment", cfg.Environment,
		"build", cfg.Build.String(),
		"gateway", cfg.Gateway.Name,
		"run_mode", cfg.RunMode,
	)
	if cfg.Gateway.WebhookSecret.IsEmpty() {
		logger.Warn("webhook secret is not configured; deliveries will be rejected")
	}

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	deps := dependencies{db: pool, pinger: pool, closers: []func() error{func() error { pool.Close(); return nil }}}
	if cfg.Observability.EnableMetrics || cfg.AWS.PaymentEventsQueueURL != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			pool.Close()
			return err
		}
		if cfg.Observability.EnableMetrics {
			deps.cloudwatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
		}
		if cfg.AWS.PaymentEventsQueueURL != "" {
			deps.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
		}
	}

	app, err := buildApp(cfg, logger, deps)
	if err != nil {
		pool.Close()
		return err
	}

	if cfg.RunMode == "lambda" {
		logger.Info("serving API Gateway proxy events")
		// lambda.Start does not return.
		lambda.Start(app.webhook.HandleAPIGateway)
		return nil
	}
	return runHTTPServer(ctx, app.server, cfg, logger)
}

// dependencies are the external resources buildApp wires together. A nil
// cloudwatch or sqs client disables that collaborator.
type dependencies struct {
	db         db.DBTX
	pinger     core.Pinger
	cloudwatch metrics.CloudWatchClient
	sqs        queue.SQSSender
	closers    []func() error
}

type application struct {
	server  *core.Server
	webhook *handlers.HelioWebhookHandler
	ledger  *db.GuardedLedger
}

// buildApp assembles the processor, handler and server with mounted routes.
func buildApp(cfg *config.Config, logger *slog.Logger, deps dependencies) (*application, error) {
	ledger := db.NewGuardedLedger(db.NewLedgerRepository(deps.db), db.BreakerSettings{
		ConsecutiveFailures: cfg.Ledger.BreakerFailures,
		Timeout:             cfg.Ledger.BreakerTimeout,
		Interval:            cfg.Ledger.BreakerInterval,
	}, logger)

	audit := intake.MultiRecorder{
		db.NewAuditRepository(deps.db, logger),
		intake.NewLogAuditRecorder(logger),
	}

	opts := []intake.Option{intake.WithLogger(logger)}
	var requestMetrics core.MetricsCollector = metrics.Nop{}
	if deps.cloudwatch != nil {
		recorder := metrics.NewCloudWatchRecorder(deps.cloudwatch, cfg.Observability.MetricNamespace, cfg.Gateway.Name, logger)
		opts = append(opts, intake.WithMetrics(recorder))
		requestMetrics = recorder
	}
	if deps.sqs != nil {
		opts = append(opts, intake.WithNotifier(queue.NewPaymentPublisher(deps.sqs, cfg.AWS.PaymentEventsQueueURL, logger)))
	}

	processor := intake.NewProcessor(intake.Config{
		GatewayName:   cfg.Gateway.Name,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Enabled:       cfg.Gateway.Enabled,
	}, ledger, audit, opts...)

	webhook := handlers.NewHelioWebhookHandler(processor, cfg.Gateway.SignatureHeader, cfg.Server.MaxBodyBytes, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = requestMetrics
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhook.RegisterRoutes)
	srv.Closers = append(srv.Closers, deps.closers...)
	if deps.pinger != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewPingProbe("database", deps.pinger))
	}
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
		ProbeName: "ledger_breaker",
		Fn: func(context.Context) error {
			if ledger.State() == gobreaker.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		},
	})
	srv.MountRoutes()

	return &application{server: srv, webhook: webhook, ledger: ledger}, nil
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", cfg.Region, err)
	}
	return awsCfg, nil
}

// runHTTPServer serves until ctx is cancelled, then drains connections.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON slog.Logger for the given log level.
// Every record carries the service name.
func newLogger(w io.Writer, level, service string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})).With("service", service)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
