package handlers

import (
	"net/http"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/services"
)

type CalendarHandler struct {
	calendarService *services.CalendarService
	scheduleService *services.ScheduleService
	location        *time.Location
}

func NewCalendarHandler(
	calendarService *services.CalendarService,
	scheduleService *services.ScheduleService,
	location *time.Location,
) *CalendarHandler {
	return &CalendarHandler{
		calendarService: calendarService,
		scheduleService: scheduleService,
		location:        location,
	}
}

func (handler *CalendarHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	from, err := time.ParseInLocation(models.DateLayout, r.URL.Query().Get("from"), handler.location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date, expected YYYY-MM-DD"})
		return
	}
	to, err := time.ParseInLocation(models.DateLayout, r.URL.Query().Get("to"), handler.location)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date, expected YYYY-MM-DD"})
		return
	}

	ctx := r.Context()

	// Retire expired schedules before the read so the aggregation itself
	// stays side-effect-free.
	if err := handler.scheduleService.CompleteExpiredForUser(ctx, userID); err != nil {
		writeServiceError(w, err)
		return
	}

	occurrences, err := handler.calendarService.Aggregate(ctx, userID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if occurrences == nil {
		occurrences = []models.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occurrences)
}
