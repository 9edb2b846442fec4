// Package main - точка входа HTTP API движка очков Луз.
//
// Сервер принимает доказательства выполнения заданий, проводит их ревью,
// начисляет очки, пересчитывает ранг и прогресс миссии и обменивает очки
// на награды каталога. Все изменения баланса проходят через одну транзакцию
// вместе с записью в журнале.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/superheroes-club/luz-engine/config"
	"github.com/superheroes-club/luz-engine/internal/application/command"
	"github.com/superheroes-club/luz-engine/internal/application/eventhandler"
	"github.com/superheroes-club/luz-engine/internal/application/progression"
	"github.com/superheroes-club/luz-engine/internal/application/query"
	"github.com/superheroes-club/luz-engine/internal/domain/mission"
	"github.com/superheroes-club/luz-engine/internal/domain/notification"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/internal/domain/store"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/auth"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/email"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/external/storage"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/messaging"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/catalogcache"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/memory"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/postgres"
	"github.com/superheroes-club/luz-engine/internal/infrastructure/persistence/redis"
	httpserver "github.com/superheroes-club/luz-engine/internal/interface/http"
	"github.com/superheroes-club/luz-engine/internal/interface/http/handlers"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

func main() {
	seed := flag.Bool("seed", false, "insert the default badges and rewards before serving")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, seed bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.Level),
	}).With(logger.String("app", cfg.App.Name))

	log.Info("starting luz engine",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Location.String(),
	)

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ (PostgreSQL или память в разработке)
	// ─────────────────────────────────────────────────────────────────────────
	var uow store.UnitOfWorkFactory
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using the in-memory store; data is lost on restart")
		uow = memory.NewStore()
	} else {
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
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()

		if cfg.Database.AutoMigrate {
			migrator := postgres.NewMigrator(conn)
			if err := migrator.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			if status, err := migrator.Status(ctx); err != nil {
				log.Warn("failed to get migration status", "error", err)
			} else {
				applied := 0
				for _, m := range status {
					if m.IsApplied {
						applied++
					}
				}
				log.Info("migrations completed", "applied", applied, "total", len(status))
			}
		}

		uow = postgres.NewStore(conn, appLog)
		health.AddCheck("postgres", handlers.PingCheck(conn))
		log.Info("database connection established")
	}

	clock := shared.SystemClock{}
	if seed {
		n, err := command.NewSeedCatalogHandler(uow, clock, appLog).Handle(ctx, command.DefaultCatalog())
		if err != nil {
			return fmt.Errorf("failed to seed catalog: %w", err)
		}
		log.Info("catalog seeded", "inserted", n)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально: кеш каталога и ключи идемпотентности)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if cfg.Redis.Enabled() {
		cache, err = redis.NewCache(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			health.AddOptionalCheck("redis", handlers.PingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS И УВЕДОМЛЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.Logger = log
	bus := messaging.NewInMemoryEventBus(busConfig)
	bus.Use(messaging.RecoveryMiddleware(log))
	bus.Use(messaging.LoggingMiddleware(log))
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

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
	// 5. КАТАЛОГИ (награды и миссии)
	// ─────────────────────────────────────────────────────────────────────────
	cacheCatalog := cfg.Features.IsEnabled(config.FeatureCatalogCache, nil)

	var rewardCatalog query.RewardCatalog = query.NewStoreRewardCatalog(uow)
	if cache != nil && cacheCatalog {
		cached := redis.NewRewardCatalog(cache, rewardCatalog, cfg.Redis.CatalogTTL, appLog)
		if err := cached.Register(bus); err != nil {
			return fmt.Errorf("failed to register catalog invalidation: %w", err)
		}
		rewardCatalog = cached
	}

	var missionCatalog mission.Catalog = query.NewStoreMissionCatalog(uow)
	if cacheCatalog {
		cached, err := catalogcache.New(missionCatalog, cfg.Catalog.MissionCacheSize)
		if err != nil {
			return err
		}
		missionCatalog = cached
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАГРУЗКА ДОКАЗАТЕЛЬСТВ И АУТЕНТИФИКАЦИЯ
	// ─────────────────────────────────────────────────────────────────────────
	var proofs command.ProofStore
	switch cfg.Storage.Driver {
	case "s3":
		proofs, err = storage.NewS3Store(ctx, storage.Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create proof store: %w", err)
		}
	default:
		log.Warn("using the in-memory proof store")
		proofs = storage.NewMemoryStore()
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   cfg.Auth.Leeway,
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	ledger := progression.NewAccountLedger(clock)
	tracker := progression.NewTracker(clock)
	guardianReview := cfg.Features.IsEnabled(config.FeatureReviewGuardianAllowed, nil)

	redeem := command.NewRedeemRewardHandler(uow, ledger, bus, clock, appLog)
	if cache != nil && cfg.Features.IsEnabled(config.FeatureRedemptionIdempotency, nil) {
		redeem = redeem.WithIdempotency(redis.NewIdempotencyGuard(cache), cfg.Redis.IdempotencyTTL)
	}

	deps := httpserver.Dependencies{
		RegisterChild:      command.NewRegisterChildHandler(uow, cfg.Catalog.Archangels, shared.NewRandom(), bus, clock, appLog),
		UpdateChildProfile: command.NewUpdateChildProfileHandler(uow, clock, appLog),
		DeleteChild:        command.NewDeleteChildHandler(uow, appLog),
		CompleteInitiation: command.NewCompleteInitiationHandler(uow, ledger, cfg.Catalog.Archangels, cfg.WelcomeBonus(), bus, clock, appLog),
		UpdateSafety:       command.NewUpdateSafetySettingsHandler(uow, clock, appLog),
		ResetSafety:        command.NewResetSafetySettingsHandler(uow, clock, appLog),
		PublishMission:     command.NewPublishMissionHandler(uow, clock, appLog),
		StartMission:       command.NewStartMissionHandler(uow, tracker, appLog),
		SubmitChallenge:    command.NewSubmitChallengeHandler(uow, bus, clock, appLog),
		ReviewSubmission:   command.NewReviewSubmissionHandler(uow, ledger, tracker, bus, clock, appLog, guardianReview),
		RedeemReward:       redeem,
		AwardReward:        command.NewAwardRewardHandler(uow, bus, clock, appLog),
		UploadProof:        command.NewUploadProofHandler(proofs, cfg.Storage.MaxProofBytes, clock, appLog),
		MarkRead:           command.NewMarkNotificationReadHandler(uow, clock, appLog),
		MarkAllRead:        command.NewMarkAllNotificationsReadHandler(uow, clock, appLog),

		Children:      query.NewChildrenHandler(uow),
		Safety:        query.NewSafetySettingsHandler(uow),
		Missions:      query.NewMissionsHandler(missionCatalog, clock, cfg.App.Location),
		Progress:      query.NewProgressHandler(uow),
		Submissions:   query.NewListSubmissionsHandler(uow),
		Rewards:       query.NewRewardsHandler(uow, rewardCatalog),
		Notifications: query.NewNotificationsHandler(uow),

		Verifier:      verifier,
		HealthChecker: health,
		Logger:        appLog,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.TrustedProxies = cfg.HTTP.TrustedProxies
	httpConfig.CatalogMaxAge = cfg.HTTP.CatalogMaxAge
	httpConfig.Version = cfg.App.Version

	server, err := httpserver.NewServer(httpConfig, deps)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop HTTP server gracefully: %w", err)
		}
		return nil
	})

	log.Info("luz engine is running", "http_address", httpConfig.Address())
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
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
		log.Info("email notifications disabled, dispatching to the log")
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

// setupLogger настраивает slog: JSON в production, текст в разработке.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch {
	case cfg.App.Debug || cfg.Observability.Level == "debug":
		opts.Level = slog.LevelDebug
	case cfg.Observability.Level == "warn":
		opts.Level = slog.LevelWarn
	case cfg.Observability.Level == "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Observability.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
