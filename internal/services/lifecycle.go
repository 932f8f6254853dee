package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// allowedTransitions is the schedule lifecycle: active <-> paused, either may
// be cancelled, active schedules complete; completed and cancelled are
// terminal.
var allowedTransitions = map[models.ScheduleStatus]map[models.ScheduleStatus]bool{
	models.ScheduleStatusActive: {
		models.ScheduleStatusPaused:    true,
		models.ScheduleStatusCompleted: true,
		models.ScheduleStatusCancelled: true,
	},
	models.ScheduleStatusPaused: {
		models.ScheduleStatusActive:    true,
		models.ScheduleStatusCancelled: true,
	},
	models.ScheduleStatusCompleted: {},
	models.ScheduleStatusCancelled: {},
}

type LifecycleService struct {
	scheduleRepo repository.ScheduleRepository
}

func NewLifecycleService(scheduleRepo repository.ScheduleRepository) *LifecycleService {
	return &LifecycleService{scheduleRepo: scheduleRepo}
}

// SetStatus applies an explicit lifecycle change. Illegal transitions fail
// with ErrInvalidTransition and leave the schedule untouched.
func (service *LifecycleService) SetStatus(ctx context.Context, id string, next models.ScheduleStatus) (models.ScheduledHabit, error) {
	if _, known := allowedTransitions[next]; !known {
		return models.ScheduledHabit{}, fmt.Errorf("unknown status %q: %w", next, ErrInvalidTransition)
	}

	schedule, err := service.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("finding schedule: %w", err)
	}

	if !allowedTransitions[schedule.Status][next] {
		return models.ScheduledHabit{}, fmt.Errorf("cannot move schedule from %s to %s: %w", schedule.Status, next, ErrInvalidTransition)
	}

	moved, err := service.scheduleRepo.UpdateStatus(ctx, id, schedule.Status, next)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("updating status: %w", err)
	}
	if !moved {
		// The stored status changed between read and write.
		return models.ScheduledHabit{}, fmt.Errorf("schedule status changed concurrently: %w", ErrInvalidTransition)
	}

	schedule.Status = next
	return schedule, nil
}

// CompleteExpired moves an active schedule to completed once today is past
// its end date. Called lazily from read and materialization paths rather
// than by a sweeper. Dates compare lexicographically in ISO form.
func (service *LifecycleService) CompleteExpired(ctx context.Context, schedule models.ScheduledHabit, today string) (models.ScheduledHabit, error) {
	if schedule.Status != models.ScheduleStatusActive {
		return schedule, nil
	}
	if schedule.EndDate == nil || *schedule.EndDate >= today {
		return schedule, nil
	}

	moved, err := service.scheduleRepo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusActive, models.ScheduleStatusCompleted)
	if err != nil {
		return schedule, fmt.Errorf("auto-completing schedule: %w", err)
	}
	if moved {
		schedule.Status = models.ScheduleStatusCompleted
	}
	return schedule, nil
}
