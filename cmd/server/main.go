package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/civicledger/civic-ledger/internal/config"
	"github.com/civicledger/civic-ledger/internal/database"
	"github.com/civicledger/civic-ledger/internal/dto"
	"github.com/civicledger/civic-ledger/internal/genesis"
	"github.com/civicledger/civic-ledger/internal/handlers"
	"github.com/civicledger/civic-ledger/internal/indexer"
	"github.com/civicledger/civic-ledger/internal/journal"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/logging"
	"github.com/civicledger/civic-ledger/internal/metrics"
	"github.com/civicledger/civic-ledger/internal/middleware"
	"github.com/civicledger/civic-ledger/internal/notify"
	"github.com/civicledger/civic-ledger/internal/routes"
	"github.com/civicledger/civic-ledger/internal/sequencer"
	"github.com/civicledger/civic-ledger/internal/services"
	"github.com/civicledger/civic-ledger/internal/telemetry"
)

var version = "dev"

func main() {
	cfg := config.Load()

	// Structured logging (JSON to stdout)
	logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.RequireModeration && cfg.ModerationSigningKey == "" {
		slog.Error("REQUIRE_MODERATION needs MODERATION_SIGNING_KEY")
		os.Exit(1)
	}

	ctx := context.Background()

	// Genesis grants
	grants, err := genesis.LoadFromFile(cfg.GenesisPath)
	if err != nil {
		slog.Error("failed to load genesis grants", "path", cfg.GenesisPath, "error", err)
		os.Exit(1)
	}
	slog.Info("genesis loaded", "grants", len(grants))

	// Database (read model and system logs)
	if err := database.Connect(ctx, cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.MigrateShared(); err != nil {
		slog.Error("shared migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel)}),
		pgLogHandler,
	)))

	// System log retention
	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetention, cleanupDone)

	// Tracing
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.OTelEnabled,
		Pretty:      cfg.OTelPretty,
		ServiceName: "civic-ledger",
		Version:     version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Read model
	ix := indexer.New(database.DB, cfg.ExpirationTimeout)
	if err := database.MigrateModels(ix.Models()); err != nil {
		slog.Error("indexer migration failed", "error", err)
		os.Exit(1)
	}

	// Event fan-out
	sinks := []notify.Sink{
		notify.LogSink{Logger: slog.Default()},
		ix,
		notify.NotifierSink{Label: "metrics", Notifier: m},
	}
	if cfg.RedisURL != "" {
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		sinks = append(sinks, notify.NewRedisSink(rdb, cfg.RedisChannel, cfg.SinkRetryMaxDelay))
		slog.Info("redis event sink enabled", "channel", cfg.RedisChannel)
	}
	bus := notify.NewBus(sinks, notify.WithErrorHook(func(sink string, err error) {
		m.SinkFailed(sink)
	}))

	// Ledger
	jrnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		slog.Error("failed to open journal", "path", cfg.JournalPath, "error", err)
		os.Exit(1)
	}
	engine, err := lifecycle.NewEngine(cfg.Policy(), nil, grants...)
	if err != nil {
		slog.Error("invalid ledger policy", "error", err)
		os.Exit(1)
	}
	seq := sequencer.New(engine, jrnl,
		sequencer.WithNotifier(bus),
		sequencer.WithObserver(m),
		sequencer.WithTracer(telemetry.Tracer("github.com/civicledger/civic-ledger/sequencer")),
		sequencer.WithLogger(slog.Default()),
	)
	replayed, err := seq.Start()
	if err != nil {
		if errors.Is(err, sequencer.ErrGenesisMismatch) {
			slog.Error("configured policy or genesis grants differ from the journal; restore them or start a new journal", "path", cfg.JournalPath, "error", err)
			os.Exit(1)
		}
		slog.Error("journal replay failed", "error", err)
		os.Exit(1)
	}
	head := jrnl.Head()
	slog.Info("ledger ready", "replayed", replayed, "head", head.Seq, "hash", head.Hash.String())

	// DB pool stats
	poolDone := make(chan struct{})
	go recordPoolStats(m, poolDone)

	// Services
	moderationService, err := services.NewModerationService([]byte(cfg.ModerationSigningKey))
	if err != nil {
		slog.Error("invalid MODERATION_SIGNING_KEY", "error", err)
		os.Exit(1)
	}
	ledgerService := services.NewLedgerService(seq, ix, moderationService, cfg.RequireModeration)
	validator := dto.NewValidator()

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
			Release:          version,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})
	app.Use(m.Middleware())

	// Routes
	routes.Setup(app, cfg, ledgerService, routes.Handlers{
		Reports:    handlers.NewReportHandler(ledgerService, validator),
		Roles:      handlers.NewRoleHandler(ledgerService),
		Moderation: handlers.NewModerationHandler(moderationService, validator),
		Health:     handlers.NewHealthHandler(ledgerService, jrnl),
		Policy:     handlers.NewPolicyHandler(ledgerService),
		Metrics:    m.Handler(),
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "version", version)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Ledger first so every admitted command is journaled and its events
	// queued before the bus drains.
	seq.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := bus.Close(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Error("event bus close error", "error", err)
	} else if err != nil {
		slog.Warn("event bus closed before draining", "error", err)
	}
	if err := jrnl.Close(); err != nil {
		slog.Error("journal close error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}

	close(poolDone)
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	// Close database connections
	if sqlDB, err := database.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func recordPoolStats(m *metrics.Metrics, done chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sqlDB, err := database.DB.DB()
			if err != nil {
				continue
			}
			s := sqlDB.Stats()
			m.RecordDBPoolStats(s.OpenConnections, s.InUse, s.Idle, s.WaitCount, s.WaitDuration)
		case <-done:
			return
		}
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{
		Error:   true,
		Message: message,
		Code:    errorCode(code),
	})
}

func errorCode(status int) string {
	switch {
	case status == fiber.StatusNotFound:
		return "NOT_FOUND"
	case status == fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case status >= 500:
		return "INTERNAL"
	}
	return "INVALID_REQUEST"
}
