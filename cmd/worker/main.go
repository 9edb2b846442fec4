// Package main - точка входа для фоновых процессов (Worker) движка Луз.
//
// Worker отвечает за периодические задачи:
// - Сверка ранга и прогресса миссий с одобренными заявками
// - Анонс новой ежемесячной миссии опекунам
//
// Worker работает с той же базой, что и HTTP сервер, поэтому требует
// DATABASE_URL даже в разработке.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/superheroes-club/luz-engine/config"
	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/eventhandler"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/email"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/messaging"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/postgres"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/scheduler"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/scheduler/jobs"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

func main() {
	runOnce := flag.String("run", "", "run a single job by name and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *runOnce); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runOnce string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("worker requires DATABASE_URL")
	}

	log := setupLogger(cfg).With("component", "worker")
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.Level),
	}).With(logger.String("app", cfg.App.Name), logger.Component("worker"))

	if !cfg.Scheduler.Enabled && runOnce == "" {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := postgres.NewConnection(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	uow := postgres.NewStore(conn, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS И УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	bus.Use(messaging.RecoveryMiddleware(log))
	defer func() { _ = bus.Close() }()

	renderer, err := notification.NewRenderer(cfg.App.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to compile notification templates: %w", err)
	}
	dispatcher, err := newDispatcher(ctx, cfg, uow, renderer, log)
	if err != nil {
		return err
	}
	inbox := eventhandler.NewInboxDispatcher(uow, dispatcher, renderer, log)
	notifier := eventhandler.NewNotifyGuardianHandler(uow, inbox, log, eventhandler.NotifyConfig{
		Timeout:            cfg.Notification.HandlerTimeout,
		NotifyOnSubmission: cfg.Notification.NotifyOnSubmission,
	})
	if err := notifier.Register(bus); err != nil {
		return fmt.Errorf("failed to register notifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. SCHEDULER И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	clock := shared.SystemClock{}
	sched := scheduler.New(scheduler.Config{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	})

	reconcileEvery, err := scheduler.NewEvery(cfg.Scheduler.ReconcileInterval)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_RECONCILE_INTERVAL: %w", err)
	}
	reconcile := command.NewReconcileProgressionHandler(uow, progression.NewTracker(clock), bus, 0, appLog)
	if err := sched.Register(jobs.NewReconcileProgressionJob(reconcile, cfg.Scheduler.JobTimeout, log), reconcileEvery); err != nil {
		return err
	}

	announceCron, err := scheduler.ParseCron(cfg.Scheduler.AnnounceCron, cfg.App.Location)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_ANNOUNCE_CRON: %w", err)
	}
	announce := jobs.NewAnnounceMissionJob(uow, inbox, cfg.App.Location, clock, log)
	if err := sched.Register(announce, announceCron); err != nil {
		return err
	}

	for _, job := range sched.ListJobs() {
		log.Info("job registered", "job", job.Name, "schedule", job.Schedule, "next_run", job.NextRun)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if runOnce != "" {
		result, err := sched.RunNow(ctx, runOnce)
		if err != nil {
			return fmt.Errorf("failed to run %s: %w", runOnce, err)
		}
		log.Info("job finished", "job", runOnce, "duration", result.Duration.String(), "success", result.Success())
		return nil
	}

	log.Info("worker is running", "timezone", cfg.App.Location.String())
	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler error: %w", err)
	}
	log.Info("worker stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// newDispatcher выбирает SES или журнал, если отправка писем выключена.
func newDispatcher(
	ctx context.Context,
	cfg *config.Config,
	uow store.UnitOfWorkFactory,
	renderer *notification.Renderer,
	log *slog.Logger,
) (notification.Dispatcher, error) {
	if !cfg.Notification.Enabled() || !cfg.Features.IsEnabled(config.FeatureNotifyEmail, nil) {
		return email.NewLogDispatcher(renderer, cfg.Notification.DefaultLanguage, log), nil
	}
	dispatcher, err := email.NewSESDispatcher(ctx, email.Config{
		Region:           cfg.Notification.Region,
		FromAddress:      cfg.Notification.FromAddress,
		FromName:         cfg.Notification.FromName,
		AccessKeyID:      cfg.Notification.AccessKeyID,
		SecretAccessKey:  cfg.Notification.SecretAccessKey,
		Endpoint:         cfg.Notification.Endpoint,
		ConfigurationSet: cfg.Notification.ConfigurationSet,
		DefaultLanguage:  cfg.Notification.DefaultLanguage,
		SendTimeout:      cfg.Notification.SendTimeout,
	}, eventhandler.NewGuardianDirectory(uow), renderer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create SES dispatcher: %w", err)
	}
	return dispatcher, nil
}

// setupLogger настраивает slog по уровню из конфигурации.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Observability.Level)); err != nil || cfg.App.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
