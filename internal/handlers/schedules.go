package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/calebmorris/habit-scheduler/internal/services"
	"github.com/go-chi/chi/v5"
)

type ScheduleHandler struct {
	scheduleService  *services.ScheduleService
	lifecycleService *services.LifecycleService
	materializer     *services.Materializer
	location         *time.Location
}

func NewScheduleHandler(
	scheduleService *services.ScheduleService,
	lifecycleService *services.LifecycleService,
	materializer *services.Materializer,
	location *time.Location,
) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService:  scheduleService,
		lifecycleService: lifecycleService,
		materializer:     materializer,
		location:         location,
	}
}

type createScheduleRequest struct {
	UserID         string          `json:"user_id"`
	AssignedByID   string          `json:"assigned_by_id"`
	Category       string          `json:"category"`
	Name           string          `json:"name"`
	TargetValue    float64         `json:"target_value"`
	Unit           string          `json:"unit"`
	RecurrenceType string          `json:"recurrence_type"`
	Recurrence     json.RawMessage `json:"recurrence,omitempty"`
	StartDate      string          `json:"start_date"`
	EndDate        *string         `json:"end_date,omitempty"`
	PreferredTime  *string         `json:"preferred_time,omitempty"`
	Instructions   string          `json:"instructions"`
	AutoCreate     *bool           `json:"auto_create,omitempty"`
}

func (handler *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var request createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	autoCreate := true
	if request.AutoCreate != nil {
		autoCreate = *request.AutoCreate
	}

	schedule := models.ScheduledHabit{
		UserID:          request.UserID,
		AssignedByID:    request.AssignedByID,
		Category:        request.Category,
		Name:            request.Name,
		TargetValue:     request.TargetValue,
		Unit:            request.Unit,
		RecurrenceType:  models.RecurrenceType(request.RecurrenceType),
		RecurrenceValue: string(request.Recurrence),
		StartDate:       request.StartDate,
		EndDate:         request.EndDate,
		PreferredTime:   request.PreferredTime,
		Instructions:    request.Instructions,
		AutoCreate:      autoCreate,
	}

	created, err := handler.scheduleService.Create(r.Context(), schedule)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type updateScheduleRequest struct {
	Name           *string         `json:"name,omitempty"`
	TargetValue    *float64        `json:"target_value,omitempty"`
	Unit           *string         `json:"unit,omitempty"`
	RecurrenceType *string         `json:"recurrence_type,omitempty"`
	Recurrence     json.RawMessage `json:"recurrence,omitempty"`
	StartDate      *string         `json:"start_date,omitempty"`
	EndDate        *string         `json:"end_date,omitempty"`
	PreferredTime  *string         `json:"preferred_time,omitempty"`
	Instructions   *string         `json:"instructions,omitempty"`
	AutoCreate     *bool           `json:"auto_create,omitempty"`
}

func (handler *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var request updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	input := services.UpdateScheduleInput{
		Name:          request.Name,
		TargetValue:   request.TargetValue,
		Unit:          request.Unit,
		StartDate:     request.StartDate,
		EndDate:       request.EndDate,
		PreferredTime: request.PreferredTime,
		Instructions:  request.Instructions,
		AutoCreate:    request.AutoCreate,
	}
	if request.RecurrenceType != nil {
		recurrenceType := models.RecurrenceType(*request.RecurrenceType)
		input.RecurrenceType = &recurrenceType
	}
	if request.Recurrence != nil {
		recurrenceValue := string(request.Recurrence)
		input.RecurrenceValue = &recurrenceValue
	}

	updated, err := handler.scheduleService.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (handler *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	schedule, err := handler.scheduleService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (handler *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.ScheduleFilter{}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := models.ScheduleStatus(status)
		filter.Status = &s
	}

	schedules, err := handler.scheduleService.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (handler *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := handler.scheduleService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (handler *ScheduleHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var request setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	schedule, err := handler.lifecycleService.SetStatus(r.Context(), chi.URLParam(r, "id"), models.ScheduleStatus(request.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

type materializeRequest struct {
	Date string `json:"date"`
}

// Materialize is the external trigger hook; the in-process ticker calls the
// same service method.
func (handler *ScheduleHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	date := time.Now()
	if r.Body != nil && r.ContentLength != 0 {
		var request materializeRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if request.Date != "" {
			parsed, err := time.ParseInLocation(models.DateLayout, request.Date, handler.location)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, expected YYYY-MM-DD"})
				return
			}
			date = parsed
		}
	}

	report, err := handler.materializer.MaterializeDay(r.Context(), date)
	if err != nil {
		slog.Error("materialization run", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "materialization failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr services.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Message})
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "schedule not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrDependencyUnavailable):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "habit log unavailable"})
	default:
		slog.Error("handling request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
