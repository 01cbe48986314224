package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focuspal/backend/internal/config"
	"focuspal/backend/internal/db"
	"focuspal/backend/internal/handler"
	"focuspal/backend/internal/notify"
	"focuspal/backend/internal/observability"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/router"
	"focuspal/backend/internal/service"
	"focuspal/backend/internal/timer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.Logger().Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.Configure(os.Stdout, cfg.LogLevel)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)
	kvRepo := repository.NewKVRepository(database)
	notificationRepo := repository.NewNotificationRepository(database)

	outbox := notify.NewOutbox(notificationRepo, nil)
	dispatcher := notify.NewDispatcher(notificationRepo, nil, cfg.NotifyPollInterval)
	go dispatcher.Run(ctx)

	registry := service.NewRegistry(service.RegistryConfig{
		Backend:      kvRepo,
		Outbox:       outbox,
		History:      sessionRepo,
		TickInterval: cfg.TickInterval,
		IdleTTL:      cfg.SessionIdleTTL,
		Defaults: timer.Durations{
			FocusMinutes: cfg.DefaultFocusMinutes,
			BreakMinutes: cfg.DefaultBreakMinutes,
		},
	})
	defer registry.Close()
	go registry.Run(ctx)

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	focusService := service.NewFocusService(registry, sessionRepo, outbox, nil)

	authHandler := handler.NewAuthHandler(authService)
	focusHandler := handler.NewFocusHandler(focusService)

	engine := router.New(authService, authHandler, focusHandler, cfg.CORSOrigins)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown server", "error", err)
		}
	}()

	logger.Info("backend listening", "port", cfg.Port, "db", cfg.DBPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("run server", "error", err)
		os.Exit(1)
	}
	logger.Info("backend stopped", "sessions", registry.Len())
}
