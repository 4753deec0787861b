package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"cybertrainer/internal/auth"
	"cybertrainer/internal/config"
	"cybertrainer/internal/csrf"
	"cybertrainer/internal/db"
	"cybertrainer/internal/observability"
	"cybertrainer/internal/settings"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  config.Config
	Close   func() error
}

// Build loads configuration and wires every dependency. A missing signing
// secret or database URL fails here rather than on the first request.
func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithCancel(context.Background())
	closers := make([]func() error, 0, 2)
	fail := func(err error) (*Runtime, error) {
		cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	database, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, database.Close)

	if options.RunMigrations || cfg.RunMigrationsOnStartup {
		applied, err := db.RunMigrations(ctx, database)
		if err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
		logger.Info("migrations_applied", map[string]any{"versions": applied})
	}

	settingsRepo := settings.NewRepository(database)
	sources := []settings.Source{settingsRepo}
	if cfg.SettingsFile != "" {
		fileSource, err := settings.NewFileSource(cfg.SettingsFile, logger)
		if err != nil {
			return fail(err)
		}
		if err := fileSource.Watch(ctx); err != nil {
			logger.Warn("settings_watch_failed", map[string]any{"error": err.Error()})
		}
		sources = append([]settings.Source{fileSource}, sources...)
	}
	provider := settings.NewProvider(logger, sources...)

	var csrfStore csrf.Store
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		client := redis.NewClient(redisOptions)
		closers = append(closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		csrfStore = csrf.NewRedisStore(client, cfg.CSRFTokenTTL)
	} else {
		csrfStore = csrf.NewMemoryStore(cfg.CSRFTokenTTL)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, provider)
	if err != nil {
		return fail(err)
	}

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, auth.NewBcryptHasher(bcrypt.DefaultCost), tokens, provider, logger)
	authService.WithLockWindow(cfg.LockWindow)

	if err := authService.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	}

	handler := NewHandler(Deps{
		Config:      cfg,
		Logger:      logger,
		Auth:        authService,
		Tokens:      tokens,
		CSRFStore:   csrfStore,
		Settings:    settingsRepo,
		LockCleaner: authRepo,
		Health:      database.PingContext,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		csrf.RunSweeper(ctx, csrfStore, cfg.CSRFSweepInterval, logger)
	}()

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Close: func() error {
			cancel()
			wg.Wait()
			observability.FlushSentry()

			var firstErr error
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i](); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		},
	}, nil
}

// OpenDatabase opens and pings the Postgres pool described by cfg.
func OpenDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return database, nil
}
