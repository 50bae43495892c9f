package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"studio/web/internal/cache"
	"studio/web/internal/config"
	"studio/web/internal/database"
	"studio/web/internal/handlers"
	"studio/web/internal/jobs"
	"studio/web/internal/log"
	"studio/web/internal/middleware"
	"studio/web/internal/repository"
	"studio/web/internal/security"
	"studio/web/internal/server"
	"studio/web/internal/service"
	"studio/web/internal/session"
	"studio/web/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.Migrate(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	var sessions session.Store
	sessionOpts := session.Options{TTL: cfg.Session.TTL, Sliding: cfg.Session.Sliding}
	switch cfg.Session.Backend {
	case config.SessionBackendPostgres:
		sessions = session.NewPostgresStore(dbPool, sessionOpts, nil)
	case config.SessionBackendMemory:
		logger.Warn().Msg("using in-memory session store; sessions are lost on restart")
		sessions = session.NewMemoryStore(sessionOpts, nil)
	default:
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		sessions = session.NewRedisStore(redisClient, sessionOpts)
	}

	templates, err := web.Templates()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load templates")
	}

	users := repository.NewUserRepository(dbPool)
	hasher := security.NewPasswordHasher(security.Argon2Params(cfg.Security.Argon2))
	authService := service.NewAuthService(users, sessions, hasher, logger)
	userService := service.NewUserService(users, sessions, hasher, logger)

	seedAdmin(ctx, logger, cfg.Admin, userService)

	handlerSet := handlers.NewHandlerSet(logger, authService, userService, handlers.Options{
		Environment: cfg.Environment,
		Cookie:      middleware.NewSessionCookie(cfg.Session),
		Database:    dbPool,
		Cache:       sessions,
	})
	httpServer := server.NewHTTPServer(cfg, logger, templates, authService, handlerSet)

	scheduler := jobs.NewScheduler(sessions, cfg.Session.SweepSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func seedAdmin(ctx context.Context, logger zerolog.Logger, cfg config.AdminConfig, users *service.UserService) {
	if cfg.Email == "" || cfg.Password == "" {
		return
	}
	created, err := users.EnsureAdmin(ctx, cfg.Name, cfg.Email, cfg.Password)
	if err != nil {
		logger.Error().Err(err).Msg("seed admin failed")
		return
	}
	if created {
		logger.Info().Msg("admin user created")
		return
	}
	logger.Info().Msg("admin user already exists")
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("session sweep still running at shutdown")
		}
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
