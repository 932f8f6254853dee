package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
)

const defaultScheduleTimeout = 10 * time.Second

type MaterializationResult struct {
	ScheduleID     string `json:"schedule_id"`
	UserID         string `json:"user_id"`
	Created        bool   `json:"created"`
	AlreadyExisted bool   `json:"already_existed"`
	Skipped        string `json:"skipped,omitempty"`
	Error          string `json:"error,omitempty"`
}

type MaterializationReport struct {
	Date     string                  `json:"date"`
	Created  int                     `json:"created"`
	Existing int                     `json:"existing"`
	Skipped  int                     `json:"skipped"`
	Failed   int                     `json:"failed"`
	Results  []MaterializationResult `json:"results"`
}

// Materializer turns the day's occurrences of active, auto-create schedules
// into habit-log entries, at most once per (schedule, date). Runs are safe to
// repeat and to overlap: the conditional create in the entry store is the
// only synchronization point.
type Materializer struct {
	scheduleRepo    repository.ScheduleRepository
	entryRepo       repository.HabitEntryRepository
	lifecycle       *LifecycleService
	location        *time.Location
	scheduleTimeout time.Duration
}

func NewMaterializer(
	scheduleRepo repository.ScheduleRepository,
	entryRepo repository.HabitEntryRepository,
	lifecycle *LifecycleService,
	location *time.Location,
) *Materializer {
	return &Materializer{
		scheduleRepo:    scheduleRepo,
		entryRepo:       entryRepo,
		lifecycle:       lifecycle,
		location:        location,
		scheduleTimeout: defaultScheduleTimeout,
	}
}

// MaterializeDay processes every candidate schedule for the given calendar
// date. Schedules are independent: one failure is recorded in the report and
// the run continues. The returned error covers only the candidate listing.
func (materializer *Materializer) MaterializeDay(ctx context.Context, date time.Time) (MaterializationReport, error) {
	day := DateOnly(date, materializer.location)
	dateValue := day.Format(models.DateLayout)
	report := MaterializationReport{Date: dateValue}

	active := models.ScheduleStatusActive
	autoCreate := true
	candidates, err := materializer.scheduleRepo.FindAll(ctx, repository.ScheduleFilter{
		Status:     &active,
		AutoCreate: &autoCreate,
	})
	if err != nil {
		return report, fmt.Errorf("listing candidate schedules: %w", err)
	}

	for _, candidate := range candidates {
		result := materializer.materializeSchedule(ctx, candidate.ID, day, dateValue)
		report.Results = append(report.Results, result)

		switch {
		case result.Error != "":
			report.Failed++
			slog.Error("materializing schedule",
				"schedule_id", result.ScheduleID, "date", dateValue, "error", result.Error)
		case result.Created:
			report.Created++
		case result.AlreadyExisted:
			report.Existing++
		default:
			report.Skipped++
		}
	}

	slog.Info("materialization run finished", "date", dateValue,
		"created", report.Created, "existing", report.Existing,
		"skipped", report.Skipped, "failed", report.Failed)

	return report, nil
}

func (materializer *Materializer) materializeSchedule(ctx context.Context, scheduleID string, day time.Time, dateValue string) MaterializationResult {
	ctx, cancel := context.WithTimeout(ctx, materializer.scheduleTimeout)
	defer cancel()

	result := MaterializationResult{ScheduleID: scheduleID}

	// Re-read so a pause or auto_create edit landing after the candidate
	// listing is still respected.
	schedule, err := materializer.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		result.Error = fmt.Sprintf("loading schedule: %v", err)
		return result
	}
	result.UserID = schedule.UserID

	schedule, err = materializer.lifecycle.CompleteExpired(ctx, schedule, dateValue)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	if schedule.Status != models.ScheduleStatusActive {
		result.Skipped = "status " + string(schedule.Status)
		return result
	}
	if !schedule.AutoCreate {
		result.Skipped = "auto-create disabled"
		return result
	}

	applies, err := materializer.appliesOn(schedule, day)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if !applies {
		result.Skipped = "no occurrence"
		return result
	}

	entry := models.HabitEntry{
		UserID:      schedule.UserID,
		EntryDate:   dateValue,
		Category:    schedule.Category,
		Name:        schedule.Name,
		Value:       schedule.TargetValue,
		TargetValue: schedule.TargetValue,
		Unit:        schedule.Unit,
		Notes:       schedule.Instructions,
		ScheduleID:  &schedule.ID,
	}

	_, created, err := materializer.entryRepo.CreateIfAbsent(ctx, entry)
	if err != nil {
		result.Error = fmt.Sprintf("creating habit entry: %v", err)
		return result
	}

	result.Created = created
	result.AlreadyExisted = !created
	return result
}

func (materializer *Materializer) appliesOn(schedule models.ScheduledHabit, day time.Time) (bool, error) {
	rule, err := scheduleRule(schedule, materializer.location)
	if err != nil {
		return false, err
	}
	validFrom, validTo, err := scheduleWindow(schedule, materializer.location)
	if err != nil {
		return false, err
	}

	for range Expand(rule, validFrom, validTo, day, day) {
		return true, nil
	}
	return false, nil
}
