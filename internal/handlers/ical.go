package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/calebmorris/habit-scheduler/internal/services"
)

const (
	icalLookbehind = 30 * 24 * time.Hour
	icalLookahead  = 90 * 24 * time.Hour
)

// ICalHandler publishes a user's occurrence calendar as an iCal feed, for
// subscription from external calendar apps.
type ICalHandler struct {
	calendarService *services.CalendarService
	tokenRepo       repository.APITokenRepository
	adminToken      string
	location        *time.Location
}

func NewICalHandler(
	calendarService *services.CalendarService,
	tokenRepo repository.APITokenRepository,
	adminToken string,
	location *time.Location,
) *ICalHandler {
	return &ICalHandler{
		calendarService: calendarService,
		tokenRepo:       tokenRepo,
		adminToken:      adminToken,
		location:        location,
	}
}

func (handler *ICalHandler) Feed(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	authorized := handler.adminToken != "" && token == handler.adminToken
	if !authorized {
		tokenHash := repository.HashToken(token)
		if found, err := handler.tokenRepo.FindByTokenHash(r.Context(), tokenHash); err == nil &&
			found.Scope == "ical" &&
			(found.ExpiresAt == nil || found.ExpiresAt.After(time.Now())) {
			authorized = true
		}
	}
	if !authorized {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	now := time.Now()
	occurrences, err := handler.calendarService.Aggregate(r.Context(), userID,
		now.Add(-icalLookbehind), now.Add(icalLookahead))
	if err != nil {
		slog.Error("aggregating calendar for ical", "user_id", userID, "error", err)
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	calendar := ical.NewCalendar()
	calendar.SetMethod(ical.MethodPublish)
	calendar.SetProductId("-//habit-scheduler//habit-scheduler//EN")
	calendar.SetCalscale("GREGORIAN")
	calendar.SetXWRCalName("Habit Schedule")

	stamp := now.UTC()
	for _, occurrence := range occurrences {
		day, err := time.ParseInLocation(models.DateLayout, occurrence.Date, handler.location)
		if err != nil {
			continue
		}

		event := calendar.AddEvent(fmt.Sprintf("%s-%s@habit-scheduler", occurrence.ScheduleID, occurrence.Date))
		summary := occurrence.Name
		if occurrence.TargetValue > 0 && occurrence.Unit != "" {
			summary = fmt.Sprintf("%s (%g %s)", occurrence.Name, occurrence.TargetValue, occurrence.Unit)
		}
		if occurrence.IsCompleted {
			summary += " - done"
		}
		event.SetSummary(summary)
		if occurrence.Instructions != "" {
			event.SetDescription(occurrence.Instructions)
		}
		event.SetAllDayStartAt(day)
		event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		event.SetDtStampTime(stamp)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=habit-schedule.ics")
	if err := calendar.SerializeTo(w); err != nil {
		slog.Error("serializing ical feed", "error", err)
	}
}
