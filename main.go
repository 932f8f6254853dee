package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/config"
	"github.com/calebmorris/habit-scheduler/internal/database"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/calebmorris/habit-scheduler/internal/server"
	"github.com/calebmorris/habit-scheduler/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	scheduleRepo := repository.NewScheduleRepository(db)
	entryRepo := repository.NewHabitEntryRepository(db)
	lifecycleService := services.NewLifecycleService(scheduleRepo)
	materializer := services.NewMaterializer(scheduleRepo, entryRepo, lifecycleService, cfg.Location)

	go runMaterializer(materializer, cfg)

	srv := server.New(db, cfg)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// runMaterializer drives the daily job on a fixed cadence. Repeat runs for
// the same date are harmless: creation is conditional on the
// (user, date, category) key.
func runMaterializer(materializer *services.Materializer, cfg config.Config) {
	ticker := time.NewTicker(cfg.MaterializeInterval)
	defer ticker.Stop()

	if !cfg.MaterializeOnStart {
		<-ticker.C
	}

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if _, err := materializer.MaterializeDay(ctx, time.Now()); err != nil {
			slog.Error("materialization run", "error", err)
		}
		cancel()
		<-ticker.C
	}
}
