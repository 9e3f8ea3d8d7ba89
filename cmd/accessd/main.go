package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clinova/accessd/internal/access"
	"github.com/clinova/accessd/internal/app"
	"github.com/clinova/accessd/internal/audit"
	"github.com/clinova/accessd/internal/catalog"
	"github.com/clinova/accessd/internal/platform/cache"
	"github.com/clinova/accessd/internal/platform/db"
	"github.com/clinova/accessd/internal/roles"
	"github.com/clinova/accessd/internal/users"
)

// userDirectory adapts the users read model to the access package port.
type userDirectory struct {
	service *users.Service
}

func (d userDirectory) Lookup(ctx context.Context, userID int64) (access.UserRecord, error) {
	u, err := d.service.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return access.UserRecord{}, access.ErrNotFound
		}
		return access.UserRecord{}, err
	}
	return access.UserRecord{ID: u.ID, Active: u.IsActive}, nil
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, resolution cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	recorder := audit.NewAsynqRecorder(asynqClient, logger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	directory := userDirectory{service: usersService}

	catalogRepo := catalog.NewRepository(dbpool)
	catalogService := catalog.NewService(catalogRepo)

	accessRepo := access.NewRepository(dbpool)
	resolver := access.NewResolver(accessRepo, redisClient, cfg.ResolveCacheTTL, logger)
	accessService := access.NewService(accessRepo, directory, catalogService, resolver, recorder)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, catalogService, resolver, recorder)

	gate := access.Gate{Resolver: resolver, Users: directory, Logger: logger}

	catalogHandler := catalog.NewHandler(logger, catalogService, gate)
	rolesHandler := roles.NewHandler(logger, rolesService, gate)
	usersHandler := users.NewHandler(logger, usersService, gate)
	accessHandler := access.NewHandler(logger, accessService, resolver, gate)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Gate:           gate,
		CatalogHandler: catalogHandler,
		RolesHandler:   rolesHandler,
		UsersHandler:   usersHandler,
		AccessHandler:  accessHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
