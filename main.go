// Package main provides the entry point for the specialist referral admin service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/specialist-referral/app/handlers"
	"github.com/amirphl/specialist-referral/app/middleware"
	"github.com/amirphl/specialist-referral/app/router"
	"github.com/amirphl/specialist-referral/app/services"
	businessflow "github.com/amirphl/specialist-referral/business_flow"
	"github.com/amirphl/specialist-referral/config"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *zap.Logger
	reporter  services.ErrorReporter
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := services.NewLogger(cfg.Logging, "specialist-referral")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-sigChan
	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.router.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Stop background workers and release broker connections after in-flight requests finish
	for _, fn := range app.stopFuncs {
		fn()
	}
	app.reporter.Flush(cfg.Sentry.FlushTimeout)

	logger.Info("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(zap.NewStdLog(logger), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return db, nil
}

// initializeCache returns nil when the cache is disabled
func initializeCache(cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// startCacheHealthMonitor pings Redis periodically; the returned function stops it
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(monitorCtx, 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("Redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication wires repositories, flows, handlers and the router
func initializeApplication(cfg *config.ProductionConfig, logger *zap.Logger) (*Application, error) {
	var stopFuncs []func()

	reporter, err := services.InitSentry(cfg.Sentry, cfg.Deployment.Environment, cfg.Deployment.Version)
	if err != nil {
		return nil, err
	}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	healthChecks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var stagings businessflow.StagingStore
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.DefaultTTL/2, logger))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		healthChecks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		stagings = businessflow.NewRedisStagingStore(rc, cfg.Cache.RedisPrefix)
	} else {
		logger.Warn("Cache disabled; staged referrals are kept in process memory")
		stagings = businessflow.NewMemoryStagingStore()
	}

	// Repositories
	specialistRepo := repository.NewSpecialistRepository(db)
	orderRepo := repository.NewOrderRecordRepository(db)
	referralRepo := repository.NewReferralEventRepository(db)
	notificationLogRepo := repository.NewNotificationLogRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	channels, closeChannels, err := services.BuildChannels(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build notification channels: %w", err)
	}
	stopFuncs = append(stopFuncs, func() {
		if err := closeChannels(); err != nil {
			logger.Warn("Failed to close notification channels", zap.Error(err))
		}
	})

	lookup, err := services.NewOrderLookupService(cfg.Lookup, rc, cfg.Cache.RedisPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize order lookup: %w", err)
	}

	// Business flows
	resolver := businessflow.NewContactResolver(
		orderRepo,
		lookup,
		utils.NewSwitchboardSet(cfg.Referral.SwitchboardNumbers),
		cfg.Referral.CountryCode,
		logger,
	)
	dispatcher := businessflow.NewNotificationDispatcher(
		channels,
		notificationLogRepo,
		reporter,
		cfg.Notification.Source,
		logger,
	)
	store := businessflow.NewReferralStore(referralRepo, db, logger)

	workflow, err := businessflow.NewReferralWorkflowFlow(
		store,
		stagings,
		resolver,
		dispatcher,
		specialistRepo,
		auditRepo,
		businessflow.WorkflowOptions{
			StagingTTL:      cfg.Referral.StagingTTL,
			DispatchTimeout: cfg.Notification.DispatchTimeout,
			MessageTemplate: cfg.Notification.MessageTemplate,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize referral workflow: %w", err)
	}
	report := businessflow.NewReferralReportFlow(referralRepo, specialistRepo, notificationLogRepo, auditRepo, resolver, logger)

	// Handlers
	referralHandler := handlers.NewReferralAdminHandler(workflow, report, cfg.Server.RequestTimeout, logger)
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	r := router.NewFiberRouter(cfg, referralHandler, authMiddleware, healthChecks, logger)

	logger.Info("Application initialized",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
		zap.Int("channels", len(channels)),
	)

	return &Application{
		router:    r,
		config:    cfg,
		logger:    logger,
		reporter:  reporter,
		stopFuncs: stopFuncs,
	}, nil
}
