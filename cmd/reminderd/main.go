package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adminsuite/reminderd/internal/api"
	"github.com/adminsuite/reminderd/internal/dispatch"
	"github.com/adminsuite/reminderd/internal/lockfile"
	"github.com/adminsuite/reminderd/internal/messaging"
	"github.com/adminsuite/reminderd/internal/models"
	"github.com/adminsuite/reminderd/internal/reminder"
	"github.com/adminsuite/reminderd/internal/scheduler"
	"github.com/adminsuite/reminderd/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for reminder engine state data.
	DefaultStateDir = "/var/lib/reminderd"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "reminderd.db"
)

// Config holds environment configuration.
type Config struct {
	APIAddr      string `envconfig:"API_ADDR" default:":8080"`
	DBDSN        string `envconfig:"DATABASE_URL"`
	StateDir     string `envconfig:"REMINDERD_STATE_DIR"`
	SweepCron    string `envconfig:"SWEEP_SCHEDULE" default:"* * * * *"`
	RecoveryCron string `envconfig:"RECOVERY_SCHEDULE" default:"*/5 * * * *"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	SendTimeoutSeconds int     `envconfig:"SEND_TIMEOUT_SECONDS" default:"30"`
	SendRPS            float64 `envconfig:"SEND_RPS" default:"5"`
	SendBurst          int     `envconfig:"SEND_BURST" default:"10"`

	// Twilio (sms, whatsapp, phone channels)
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `envconfig:"TWILIO_FROM_NUMBER"`

	// SMTP (email channel)
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	// SQS (push channel)
	AWSRegion    string `envconfig:"AWS_REGION"`
	PushQueueURL string `envconfig:"PUSH_QUEUE_URL"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("failed to process environment configuration", "error", err)
		os.Exit(1)
	}

	apiAddr := flag.String("api-addr", cfg.APIAddr, "API server address (overrides $API_ADDR)")
	dbDSN := flag.String("db-dsn", cfg.DBDSN, "database DSN (overrides $DATABASE_URL)")
	stateDir := flag.String("state-dir", cfg.StateDir, "state directory for SQLite data (overrides $REMINDERD_STATE_DIR)")
	sweepCron := flag.String("sweep-cron", cfg.SweepCron, "cron schedule for dispatch sweeps (overrides $SWEEP_SCHEDULE)")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	flag.Parse()

	initializeLogger(*logLevel)

	if *dbDSN == "" {
		dir := *stateDir
		if dir == "" {
			dir = DefaultStateDir
		}
		*dbDSN = dir + "/" + DefaultDBFileName
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", *dbDSN)
	}

	// Two engines sweeping the same SQLite file would race on claims, so the
	// state directory is locked before the store opens.
	if store.DetectDSNType(*dbDSN) == "sqlite3" {
		lock, err := lockfile.Acquire(filepath.Dir(*dbDSN))
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := openStore(*dbDSN)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := buildAdapterRegistry(ctx, cfg)

	dispatcher := dispatch.NewDispatcher(st, registry, reminder.EntitySource(st),
		dispatch.WithSendTimeout(time.Duration(cfg.SendTimeoutSeconds)*time.Second),
		dispatch.WithRateLimit(cfg.SendRPS, cfg.SendBurst),
	)
	dispatch.RegisterMetrics(prometheus.DefaultRegisterer)

	service := reminder.NewService(st, dispatcher)
	if err := service.SeedDefaultPolicies(); err != nil {
		slog.Error("Failed to seed default policies", "error", err)
		os.Exit(1)
	}

	// Requeue anything left in sending by a previous crash before the first
	// sweep runs.
	if err := dispatcher.RecoverStale(time.Now()); err != nil {
		slog.Error("Startup stale-claim recovery failed", "error", err)
	}

	sched := scheduler.New()
	defer sched.Stop()
	if err := sched.Register(scheduler.Job{
		Name:     "dispatch-sweep",
		Schedule: *sweepCron,
		Run:      func() { dispatcher.Tick(ctx, time.Now()) },
	}); err != nil {
		slog.Error("Failed to schedule dispatch sweep", "error", err)
		os.Exit(1)
	}
	if err := sched.Register(scheduler.Job{
		Name:     "stale-claim-recovery",
		Schedule: cfg.RecoveryCron,
		Run: func() {
			if err := dispatcher.RecoverStale(time.Now()); err != nil {
				slog.Error("Stale-claim recovery failed", "error", err)
			}
		},
	}); err != nil {
		slog.Error("Failed to schedule stale-claim recovery", "error", err)
		os.Exit(1)
	}
	sched.Start()

	server := api.NewServer(service, api.WithAddr(*apiAddr))
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}()

	slog.Info("reminderd started", "addr", *apiAddr, "sweep", *sweepCron, "channels", registry.Channels())
	if err := server.Start(); err != nil {
		slog.Error("API server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("reminderd exited")
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
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
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// openStore selects the storage backend from the DSN shape.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring Postgres store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildAdapterRegistry binds one adapter per channel. Channels without
// transport credentials fall back to the recording mock so a partially
// configured deployment still runs.
func buildAdapterRegistry(ctx context.Context, cfg Config) *messaging.Registry {
	registry := messaging.NewRegistry()
	mock := messaging.NewMockAdapter()

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		twilioCfg := messaging.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
		}
		registry.Register(models.ChannelSMS, messaging.NewTwilioSMSAdapter(twilioCfg))
		registry.Register(models.ChannelWhatsApp, messaging.NewTwilioWhatsAppAdapter(twilioCfg))
		registry.Register(models.ChannelPhone, messaging.NewTwilioVoiceAdapter(twilioCfg))
	} else {
		slog.Warn("Twilio credentials not set, sms/whatsapp/phone channels use the mock adapter")
		registry.Register(models.ChannelSMS, mock)
		registry.Register(models.ChannelWhatsApp, mock)
		registry.Register(models.ChannelPhone, mock)
	}

	if cfg.SMTPHost != "" {
		registry.Register(models.ChannelEmail, messaging.NewSMTPEmailAdapter(messaging.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}))
	} else {
		slog.Warn("SMTP host not set, email channel uses the mock adapter")
		registry.Register(models.ChannelEmail, mock)
	}

	if cfg.AWSRegion != "" && cfg.PushQueueURL != "" {
		pushAdapter, err := messaging.NewSQSPushAdapter(ctx, cfg.AWSRegion, cfg.PushQueueURL)
		if err != nil {
			slog.Error("Failed to build SQS push adapter, push channel uses the mock adapter", "error", err)
			registry.Register(models.ChannelPush, mock)
		} else {
			registry.Register(models.ChannelPush, pushAdapter)
		}
	} else {
		slog.Warn("Push queue not configured, push channel uses the mock adapter")
		registry.Register(models.ChannelPush, mock)
	}

	return registry
}
