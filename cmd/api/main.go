// Package main is the entry point for the subscription admin console API.
//
// It loads the configuration, seeds the in-memory store, builds the domain
// services and the HTTP server, and runs the background workers (overdue
// sweep, webhook delivery, SQS event relay) next to the listener until an
// interrupt arrives.
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"subadmin/internal/accounts"
	"subadmin/internal/analytics"
	"subadmin/internal/api/handlers"
	"subadmin/internal/audit"
	"subadmin/internal/auth"
	"subadmin/internal/billing"
	"subadmin/internal/config"
	"subadmin/internal/core"
	"subadmin/internal/events"
	"subadmin/internal/external"
	"subadmin/internal/notify"
	"subadmin/internal/queue"
	"subadmin/internal/scheduler"
	"subadmin/internal/security"
	"subadmin/internal/store"
	"subadmin/internal/telemetry"
	"subadmin/internal/types"
	"subadmin/internal/users"
)

// relayBufferSize bounds the events waiting for SQS.
const relayBufferSize = 256

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

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := config.LoadConfig(config.NewSSMProvider(region))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("subadmin API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	clients, err := newAWSClients(ctx, cfg)
	if err != nil {
		return err
	}

	a, err := buildApp(cfg, clients, clock.WallClock, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sweeper.Run(gctx) })
	g.Go(func() error { return a.webhook.Run(gctx) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}
	g.Go(func() error { return runHTTPServer(gctx, a.srv, cfg, logger) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// awsClients holds the optional AWS service clients. Nil fields mean the
// feature is disabled by configuration.
type awsClients struct {
	sqs        queue.SQSSender
	cloudwatch telemetry.CloudWatchClient
}

// newAWSClients loads the SDK configuration only when a feature needs it.
func newAWSClients(ctx context.Context, cfg *config.Config) (awsClients, error) {
	needSQS := cfg.AWS.EventsQueueURL != ""
	needCW := cfg.Observability.MetricsBackend == telemetry.BackendCloudWatch
	if !needSQS && !needCW {
		return awsClients{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return awsClients{}, fmt.Errorf("loading AWS config (region=%s): %w", cfg.AWS.Region, err)
	}

	var out awsClients
	if needSQS {
		out.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}
	if needCW {
		out.cloudwatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
	}
	return out, nil
}

// app is the assembled process: the HTTP server plus its background workers.
type app struct {
	srv     *core.Server
	store   *store.Store
	sweeper *scheduler.OverdueSweeper
	webhook *notify.Webhook
	relay   *queue.EventForwarder
}

func buildApp(cfg *config.Config, clients awsClients, clk clock.Clock, logger *slog.Logger) (*app, error) {
	opts := []store.Option{store.WithClock(clk)}
	if cfg.Mock.LatencyEnabled {
		opts = append(opts, store.WithLatency(store.DefaultLatency().Scaled(cfg.Mock.LatencyScale)))
	} else {
		opts = append(opts, store.WithLatency(store.NoLatency()))
	}
	st, err := store.NewSeeded(opts...)
	if err != nil {
		return nil, fmt.Errorf("seeding store: %w", err)
	}

	bus := events.NewBus(logger)
	revisions := events.NewRevisionTracker(bus)

	recorder, prom, err := telemetry.New(telemetry.Options{
		Backend:    cfg.Observability.MetricsBackend,
		Namespace:  cfg.Observability.MetricNamespace,
		CloudWatch: clients.cloudwatch,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating metrics recorder: %w", err)
	}

	httpClient, err := notifyHTTPClient(cfg.Notify)
	if err != nil {
		return nil, err
	}
	webhookClient := external.NewBaseClient(
		httpClient,
		"notify-webhook",
		external.DefaultBreakerSettings(),
		external.DefaultRetryPolicy(),
		cfg.Notify.UserAgent,
		external.WithLogger(logger),
	)
	webhook := notify.NewWebhook(notify.Config{
		URL:       cfg.Notify.WebhookURL,
		Secret:    cfg.Notify.WebhookSecret.Unmask(),
		Timeout:   cfg.Notify.Timeout,
		QueueSize: cfg.Notify.QueueSize,
	}, webhookClient, logger)

	auditSvc := audit.NewService(st, logger)
	userSvc := users.NewService(st, bus, logger)
	accountSvc := accounts.NewService(st, bus, logger)
	billingSvc := billing.NewService(st, bus, logger,
		billing.WithNotifier(webhook),
		billing.WithRecorder(recorder),
		billing.WithSettings(billing.Settings{
			Currency:     cfg.Billing.DefaultCurrency,
			TaxRate:      cfg.Billing.TaxRate(),
			PaymentTerms: cfg.Billing.PaymentTerms,
		}),
	)
	analyticsSvc := analytics.NewService(st)
	session := auth.NewSession(st, bus, cfg.Auth.DefaultUserID, logger)
	sweeper := scheduler.NewOverdueSweeper(billingSvc, clk, cfg.Billing.OverdueCheckInterval, logger)

	srv, err := core.NewServer(cfg, session, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = recorder
	if prom != nil {
		srv.MetricsHandler = promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{})
	}
	srv.HealthProbes = append(srv.HealthProbes,
		core.ProbeFunc{ProbeName: "store", Fn: func(context.Context) (core.Stats, error) {
			stats := core.Stats{}
			for coll, n := range st.Counts() {
				stats[string(coll)] = n
			}
			if stats[string(store.Users)] == 0 {
				return stats, errors.New("store has no users")
			}
			return stats, nil
		}},
		core.ProbeFunc{ProbeName: "bus", Fn: func(context.Context) (core.Stats, error) {
			stats := core.Stats{}
			for _, topic := range types.AllTopics {
				stats[string(topic)] = bus.SubscriberCount(topic)
			}
			if stats[string(types.TopicRequests)] == 0 {
				return stats, errors.New("no subscribers on " + string(types.TopicRequests))
			}
			return stats, nil
		}},
	)
	srv.Closers = append(srv.Closers, telemetry.ObserveBus(bus, recorder), revisions.Close)

	var relay *queue.EventForwarder
	if clients.sqs != nil {
		relay = queue.NewEventForwarder(clients.sqs, cfg.AWS, relayBufferSize, logger)
		srv.Closers = append(srv.Closers, relay.Attach(bus))
		srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{
			ProbeName: "event_relay",
			Fn: func(context.Context) (core.Stats, error) {
				stats := core.Stats{"sent": int(relay.Sent()), "dropped": int(relay.Dropped())}
				if relay.Sent() == 0 && relay.Dropped() > 0 {
					return stats, fmt.Errorf("%d events dropped, none delivered", relay.Dropped())
				}
				return stats, nil
			},
		})
	}

	guard := srv.RequirePermission
	sessionHandler := handlers.NewSessionHandler(session, srv.Validator, logger)
	userHandler := handlers.NewUserHandler(userSvc, srv.Validator, logger)
	accountHandler := handlers.NewAccountHandler(accountSvc, guard, logger)
	requestHandler := handlers.NewRequestHandler(billingSvc, srv.Validator, guard, logger)
	invoiceHandler := handlers.NewInvoiceHandler(billingSvc, guard, logger)
	auditHandler := handlers.NewAuditHandler(auditSvc, clk.Now, logger)
	opsHandler := handlers.NewOpsHandler(analyticsSvc, revisions, sweeper, guard, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		sessionHandler.RegisterRoutes,
		userHandler.RegisterRoutes,
		accountHandler.RegisterRoutes,
		requestHandler.RegisterRoutes,
		invoiceHandler.RegisterRoutes,
		auditHandler.RegisterRoutes,
		opsHandler.RegisterRoutes,
	)

	if err := srv.MountRoutes(); err != nil {
		return nil, fmt.Errorf("mounting routes: %w", err)
	}

	return &app{srv: srv, store: st, sweeper: sweeper, webhook: webhook, relay: relay}, nil
}

// notifyHTTPClient returns the webhook transport. Unless private targets are
// allowed, dialing and redirects go through the egress policy and the
// configured URL is checked up front.
func notifyHTTPClient(cfg config.NotifyConfig) (*http.Client, error) {
	if cfg.AllowPrivateTargets {
		return &http.Client{Timeout: cfg.Timeout}, nil
	}
	policy, err := security.NewPolicy(nil)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := policy.CheckURL(ctx, cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("NOTIFY_WEBHOOK_URL rejected: %w", err)
		}
	}
	return policy.Client(cfg.Timeout, cfg.MaxRedirects), nil
}

// runHTTPServer serves until ctx is cancelled, then shuts down gracefully.
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

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
