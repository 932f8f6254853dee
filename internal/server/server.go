package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/calebmorris/habit-scheduler/internal/config"
	"github.com/calebmorris/habit-scheduler/internal/handlers"
	"github.com/calebmorris/habit-scheduler/internal/middleware"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/calebmorris/habit-scheduler/internal/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	router *chi.Mux
	config config.Config
}

func New(database *sql.DB, cfg config.Config) *Server {
	scheduleRepo := repository.NewScheduleRepository(database)
	entryRepo := repository.NewHabitEntryRepository(database)
	tokenRepo := repository.NewAPITokenRepository(database)

	lifecycleService := services.NewLifecycleService(scheduleRepo)
	scheduleService := services.NewScheduleService(scheduleRepo, lifecycleService, cfg.Location)
	materializer := services.NewMaterializer(scheduleRepo, entryRepo, lifecycleService, cfg.Location)
	calendarService := services.NewCalendarService(scheduleRepo, entryRepo, cfg.Location)

	scheduleHandler := handlers.NewScheduleHandler(scheduleService, lifecycleService, materializer, cfg.Location)
	calendarHandler := handlers.NewCalendarHandler(calendarService, scheduleService, cfg.Location)
	icalHandler := handlers.NewICalHandler(calendarService, tokenRepo, cfg.AdminAPIToken, cfg.Location)
	tokenHandler := handlers.NewTokenHandler(tokenRepo)

	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/ical", icalHandler.Feed)

	router.Group(func(r chi.Router) {
		r.Use(middleware.APITokenAuth(tokenRepo, cfg.AdminAPIToken))

		r.Post("/api/schedules", scheduleHandler.Create)
		r.Get("/api/schedules", scheduleHandler.List)
		r.Get("/api/schedules/{id}", scheduleHandler.Get)
		r.Post("/api/schedules/{id}", scheduleHandler.Update)
		r.Delete("/api/schedules/{id}", scheduleHandler.Delete)
		r.Post("/api/schedules/{id}/status", scheduleHandler.SetStatus)

		r.Get("/api/calendar", calendarHandler.Calendar)

		r.Post("/api/materialize", scheduleHandler.Materialize)

		r.Post("/api/tokens", tokenHandler.Create)
		r.Delete("/api/tokens/{id}", tokenHandler.Delete)
	})

	return &Server{
		router: router,
		config: cfg,
	}
}

func (server *Server) Start() error {
	address := ":" + server.config.Port
	slog.Info("starting server", "address", address)
	return http.ListenAndServe(address, server.router)
}

// Router exposes the configured mux for tests.
func (server *Server) Router() http.Handler {
	return server.router
}
