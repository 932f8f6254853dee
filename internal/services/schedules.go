package services

import (
	"context"
	"fmt"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
)

// ValidationError marks a malformed schedule definition. It is surfaced
// synchronously at create/update time and never reaches the materializer.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) error {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

type ScheduleService struct {
	scheduleRepo repository.ScheduleRepository
	lifecycle    *LifecycleService
	location     *time.Location
}

func NewScheduleService(
	scheduleRepo repository.ScheduleRepository,
	lifecycle *LifecycleService,
	location *time.Location,
) *ScheduleService {
	return &ScheduleService{
		scheduleRepo: scheduleRepo,
		lifecycle:    lifecycle,
		location:     location,
	}
}

func (service *ScheduleService) Create(ctx context.Context, schedule models.ScheduledHabit) (models.ScheduledHabit, error) {
	if err := service.validate(schedule); err != nil {
		return models.ScheduledHabit{}, err
	}

	// Schedules always start active; lifecycle changes go through SetStatus.
	schedule.Status = models.ScheduleStatusActive

	created, err := service.scheduleRepo.Create(ctx, schedule)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("creating schedule: %w", err)
	}
	return created, nil
}

// UpdateScheduleInput is a partial edit. Nil fields are left unchanged.
// EndDate and PreferredTime accept an empty string to clear the value.
// Ownership fields (user, assigner, category) are not editable.
type UpdateScheduleInput struct {
	Name            *string
	TargetValue     *float64
	Unit            *string
	RecurrenceType  *models.RecurrenceType
	RecurrenceValue *string
	StartDate       *string
	EndDate         *string
	PreferredTime   *string
	Instructions    *string
	AutoCreate      *bool
}

func (service *ScheduleService) Update(ctx context.Context, id string, input UpdateScheduleInput) (models.ScheduledHabit, error) {
	schedule, err := service.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("finding schedule: %w", err)
	}

	if input.Name != nil {
		schedule.Name = *input.Name
	}
	if input.TargetValue != nil {
		schedule.TargetValue = *input.TargetValue
	}
	if input.Unit != nil {
		schedule.Unit = *input.Unit
	}
	if input.RecurrenceType != nil {
		schedule.RecurrenceType = *input.RecurrenceType
	}
	if input.RecurrenceValue != nil {
		schedule.RecurrenceValue = *input.RecurrenceValue
	}
	if input.StartDate != nil {
		schedule.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		if *input.EndDate == "" {
			schedule.EndDate = nil
		} else {
			value := *input.EndDate
			schedule.EndDate = &value
		}
	}
	if input.PreferredTime != nil {
		if *input.PreferredTime == "" {
			schedule.PreferredTime = nil
		} else {
			value := *input.PreferredTime
			schedule.PreferredTime = &value
		}
	}
	if input.Instructions != nil {
		schedule.Instructions = *input.Instructions
	}
	if input.AutoCreate != nil {
		schedule.AutoCreate = *input.AutoCreate
	}

	if err := service.validate(schedule); err != nil {
		return models.ScheduledHabit{}, err
	}

	if err := service.scheduleRepo.Update(ctx, schedule); err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("updating schedule: %w", err)
	}
	return schedule, nil
}

func (service *ScheduleService) Delete(ctx context.Context, id string) error {
	// Materialized habit entries are intentionally left in place; only the
	// template goes away.
	return service.scheduleRepo.Delete(ctx, id)
}

func (service *ScheduleService) Get(ctx context.Context, id string) (models.ScheduledHabit, error) {
	schedule, err := service.scheduleRepo.FindByID(ctx, id)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("finding schedule: %w", err)
	}
	return service.lifecycle.CompleteExpired(ctx, schedule, service.today())
}

func (service *ScheduleService) List(ctx context.Context, filter repository.ScheduleFilter) ([]models.ScheduledHabit, error) {
	schedules, err := service.scheduleRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}

	today := service.today()
	for i, schedule := range schedules {
		refreshed, err := service.lifecycle.CompleteExpired(ctx, schedule, today)
		if err != nil {
			return nil, err
		}
		schedules[i] = refreshed
	}
	return schedules, nil
}

// CompleteExpiredForUser runs lazy end-date completion over a user's active
// schedules. Read paths that bypass List (the calendar) call this first so
// expired schedules are retired even when nobody edits them.
func (service *ScheduleService) CompleteExpiredForUser(ctx context.Context, userID string) error {
	active := models.ScheduleStatusActive
	schedules, err := service.scheduleRepo.FindAll(ctx, repository.ScheduleFilter{
		UserID: &userID,
		Status: &active,
	})
	if err != nil {
		return fmt.Errorf("listing active schedules: %w", err)
	}

	today := service.today()
	for _, schedule := range schedules {
		if _, err := service.lifecycle.CompleteExpired(ctx, schedule, today); err != nil {
			return err
		}
	}
	return nil
}

func (service *ScheduleService) today() string {
	return DateOnly(time.Now(), service.location).Format(models.DateLayout)
}

func (service *ScheduleService) validate(schedule models.ScheduledHabit) error {
	if schedule.UserID == "" {
		return validationErrorf("user_id is required")
	}
	if schedule.AssignedByID == "" {
		return validationErrorf("assigned_by_id is required")
	}
	if schedule.Name == "" {
		return validationErrorf("name is required")
	}
	if schedule.Category == "" {
		return validationErrorf("category is required")
	}
	if schedule.TargetValue < 0 {
		return validationErrorf("target_value must not be negative")
	}

	startDate, err := ParseDate(schedule.StartDate, service.location)
	if err != nil {
		return validationErrorf("invalid start_date %q", schedule.StartDate)
	}
	if schedule.EndDate != nil {
		endDate, err := ParseDate(*schedule.EndDate, service.location)
		if err != nil {
			return validationErrorf("invalid end_date %q", *schedule.EndDate)
		}
		if endDate.Before(startDate) {
			return validationErrorf("end_date must not be before start_date")
		}
	}

	if schedule.PreferredTime != nil {
		if _, err := time.Parse("15:04", *schedule.PreferredTime); err != nil {
			return validationErrorf("invalid preferred_time %q, expected HH:MM", *schedule.PreferredTime)
		}
	}

	if _, err := ParseRule(schedule.RecurrenceType, schedule.RecurrenceValue, service.location); err != nil {
		return validationErrorf("invalid recurrence: %v", err)
	}

	return nil
}
