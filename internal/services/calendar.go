package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
)

// ErrDependencyUnavailable marks a failure of the habit-log store. Calendar
// reads fail outright rather than rendering occurrences as incomplete.
var ErrDependencyUnavailable = errors.New("habit log unavailable")

// CalendarService merges expanded occurrences with completion state. It is
// read-only: schedules of every status are expanded so paused and completed
// history still renders.
type CalendarService struct {
	scheduleRepo repository.ScheduleRepository
	entryRepo    repository.HabitEntryRepository
	location     *time.Location
}

func NewCalendarService(
	scheduleRepo repository.ScheduleRepository,
	entryRepo repository.HabitEntryRepository,
	location *time.Location,
) *CalendarService {
	return &CalendarService{
		scheduleRepo: scheduleRepo,
		entryRepo:    entryRepo,
		location:     location,
	}
}

func (service *CalendarService) Aggregate(ctx context.Context, userID string, from, to time.Time) ([]models.Occurrence, error) {
	fromDay := DateOnly(from, service.location)
	toDay := DateOnly(to, service.location)
	if toDay.Before(fromDay) {
		return nil, validationErrorf("calendar range end before start")
	}
	fromValue := fromDay.Format(models.DateLayout)
	toValue := toDay.Format(models.DateLayout)

	schedules, err := service.scheduleRepo.FindAll(ctx, repository.ScheduleFilter{
		UserID:       &userID,
		OverlapsFrom: &fromValue,
		OverlapsTo:   &toValue,
	})
	if err != nil {
		return nil, fmt.Errorf("loading schedules: %w", err)
	}

	entries, err := service.entryRepo.FindForUserInRange(ctx, userID, fromValue, toValue)
	if err != nil {
		return nil, fmt.Errorf("loading habit entries: %w: %v", ErrDependencyUnavailable, err)
	}
	completed := make(map[string]bool, len(entries))
	for _, entry := range entries {
		completed[entry.EntryDate+"|"+entry.Category] = true
	}

	var occurrences []models.Occurrence
	for _, schedule := range schedules {
		rule, err := scheduleRule(schedule, service.location)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", schedule.ID, err)
		}
		validFrom, validTo, err := scheduleWindow(schedule, service.location)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", schedule.ID, err)
		}

		for day := range Expand(rule, validFrom, validTo, fromDay, toDay) {
			dateValue := day.Format(models.DateLayout)
			occurrences = append(occurrences, models.Occurrence{
				ScheduleID:    schedule.ID,
				UserID:        schedule.UserID,
				Date:          dateValue,
				Name:          schedule.Name,
				Category:      schedule.Category,
				TargetValue:   schedule.TargetValue,
				Unit:          schedule.Unit,
				PreferredTime: schedule.PreferredTime,
				Instructions:  schedule.Instructions,
				AssignedByID:  schedule.AssignedByID,
				IsCompleted:   completed[dateValue+"|"+schedule.Category],
			})
		}
	}

	sort.SliceStable(occurrences, func(i, j int) bool {
		return occurrences[i].Date < occurrences[j].Date
	})

	return occurrences, nil
}
