package main

import (
	"os"

	"focuspal/backend/internal/config"
	"focuspal/backend/internal/db"
	"focuspal/backend/internal/observability"
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

	logger.Info("migrations applied successfully", "dir", cfg.MigrationsDir)
}
