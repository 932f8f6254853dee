package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/calebmorris/habit-scheduler/internal/services"
	"github.com/calebmorris/habit-scheduler/internal/testutil"
)

func setupMaterializer(t *testing.T) (*services.Materializer, *repository.SQLiteScheduleRepository, *repository.SQLiteHabitEntryRepository) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	scheduleRepo := repository.NewScheduleRepository(db)
	entryRepo := repository.NewHabitEntryRepository(db)
	lifecycle := services.NewLifecycleService(scheduleRepo)
	materializer := services.NewMaterializer(scheduleRepo, entryRepo, lifecycle, time.UTC)
	return materializer, scheduleRepo, entryRepo
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func TestMaterializer_CreatesEntryFromSchedule(t *testing.T) {
	materializer, scheduleRepo, entryRepo := setupMaterializer(t)
	ctx := context.Background()

	schedule := createSchedule(t, scheduleRepo, models.ScheduledHabit{
		TargetValue:  30,
		Unit:         "minutes",
		Instructions: "Easy pace",
		AutoCreate:   true,
	})

	report, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 1 || report.Failed != 0 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	entry, err := entryRepo.FindByKey(ctx, schedule.UserID, "2024-01-03", schedule.Category)
	if err != nil {
		t.Fatalf("finding entry: %v", err)
	}
	if entry.Name != schedule.Name || entry.Value != 30 || entry.TargetValue != 30 {
		t.Errorf("entry not seeded from schedule: %+v", entry)
	}
	if entry.Notes != "Easy pace" {
		t.Errorf("expected instructions copied to notes, got %q", entry.Notes)
	}
	if entry.ScheduleID == nil || *entry.ScheduleID != schedule.ID {
		t.Errorf("expected entry linked to schedule %s, got %v", schedule.ID, entry.ScheduleID)
	}
}

func TestMaterializer_RepeatRunIsIdempotent(t *testing.T) {
	materializer, scheduleRepo, entryRepo := setupMaterializer(t)
	ctx := context.Background()

	schedule := createSchedule(t, scheduleRepo, models.ScheduledHabit{AutoCreate: true})

	first, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Created != 1 {
		t.Errorf("first run: expected 1 created, got %d", first.Created)
	}
	if second.Created != 0 || second.Existing != 1 {
		t.Errorf("second run: expected 0 created / 1 existing, got %d / %d", second.Created, second.Existing)
	}

	entries, err := entryRepo.FindForUserInRange(ctx, schedule.UserID, "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 entry, got %d", len(entries))
	}
}

func TestMaterializer_ConcurrentRunsCreateOneEntry(t *testing.T) {
	materializer, scheduleRepo, entryRepo := setupMaterializer(t)
	ctx := context.Background()

	schedule := createSchedule(t, scheduleRepo, models.ScheduledHabit{AutoCreate: true})

	reports := make([]services.MaterializationReport, 2)
	var wg sync.WaitGroup
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
			if err != nil {
				t.Errorf("concurrent run: %v", err)
				return
			}
			reports[i] = report
		}()
	}
	wg.Wait()

	if created := reports[0].Created + reports[1].Created; created != 1 {
		t.Errorf("expected exactly 1 creation across runs, got %d", created)
	}

	entries, err := entryRepo.FindForUserInRange(ctx, schedule.UserID, "2024-01-01", "2024-01-31")
	if err != nil {
		t.Fatalf("listing entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly 1 entry, got %d", len(entries))
	}
}

func TestMaterializer_SkipsInactiveAndManualSchedules(t *testing.T) {
	materializer, scheduleRepo, entryRepo := setupMaterializer(t)
	ctx := context.Background()

	paused := createSchedule(t, scheduleRepo, models.ScheduledHabit{
		UserID:     "user-paused",
		Status:     models.ScheduleStatusPaused,
		AutoCreate: true,
	})
	createSchedule(t, scheduleRepo, models.ScheduledHabit{
		UserID:     "user-manual",
		AutoCreate: false,
	})
	active := createSchedule(t, scheduleRepo, models.ScheduledHabit{
		UserID:     "user-active",
		AutoCreate: true,
	})

	report, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 1 {
		t.Errorf("expected only the active auto-create schedule to materialize, got %+v", report)
	}

	if _, err := entryRepo.FindByKey(ctx, active.UserID, "2024-01-03", active.Category); err != nil {
		t.Errorf("expected entry for active schedule: %v", err)
	}
	if _, err := entryRepo.FindByKey(ctx, paused.UserID, "2024-01-03", paused.Category); err == nil {
		t.Errorf("paused schedule must not produce an entry")
	}
}

func TestMaterializer_SkipsDaysWithoutOccurrence(t *testing.T) {
	materializer, scheduleRepo, _ := setupMaterializer(t)

	// Mondays only; 2024-01-03 is a Wednesday.
	createSchedule(t, scheduleRepo, models.ScheduledHabit{
		RecurrenceType:  models.RecurrenceWeekly,
		RecurrenceValue: `{"days": [1]}`,
		AutoCreate:      true,
	})

	report, err := materializer.MaterializeDay(context.Background(), day(2024, 1, 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Errorf("expected 0 created / 1 skipped, got %+v", report)
	}
}

func TestMaterializer_CompletesExpiredSchedules(t *testing.T) {
	materializer, scheduleRepo, entryRepo := setupMaterializer(t)
	ctx := context.Background()

	endDate := "2024-01-05"
	schedule := createSchedule(t, scheduleRepo, models.ScheduledHabit{
		EndDate:    &endDate,
		AutoCreate: true,
	})

	report, err := materializer.MaterializeDay(ctx, day(2024, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Created != 0 || report.Skipped != 1 {
		t.Errorf("expected expired schedule skipped, got %+v", report)
	}

	stored, err := scheduleRepo.FindByID(ctx, schedule.ID)
	if err != nil {
		t.Fatalf("reloading schedule: %v", err)
	}
	if stored.Status != models.ScheduleStatusCompleted {
		t.Errorf("expected schedule completed, got %s", stored.Status)
	}
	if _, err := entryRepo.FindByKey(ctx, schedule.UserID, "2024-01-10", schedule.Category); err == nil {
		t.Errorf("expired schedule must not produce an entry")
	}
}

// failingEntryRepository fails creations for one user so a run can be tested
// for isolation between schedules.
type failingEntryRepository struct {
	repository.HabitEntryRepository
	failUserID string
}

func (repo *failingEntryRepository) CreateIfAbsent(ctx context.Context, entry models.HabitEntry) (models.HabitEntry, bool, error) {
	if entry.UserID == repo.failUserID {
		return models.HabitEntry{}, false, fmt.Errorf("simulated store failure")
	}
	return repo.HabitEntryRepository.CreateIfAbsent(ctx, entry)
}

func TestMaterializer_FailureDoesNotStopRun(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	scheduleRepo := repository.NewScheduleRepository(db)
	entryRepo := repository.NewHabitEntryRepository(db)
	lifecycle := services.NewLifecycleService(scheduleRepo)
	materializer := services.NewMaterializer(scheduleRepo,
		&failingEntryRepository{HabitEntryRepository: entryRepo, failUserID: "user-broken"},
		lifecycle, time.UTC)
	ctx := context.Background()

	createSchedule(t, scheduleRepo, models.ScheduledHabit{UserID: "user-broken", AutoCreate: true})
	healthy := createSchedule(t, scheduleRepo, models.ScheduledHabit{UserID: "user-healthy", AutoCreate: true})

	report, err := materializer.MaterializeDay(ctx, day(2024, 1, 3))
	if err != nil {
		t.Fatalf("run must survive individual failures: %v", err)
	}
	if report.Created != 1 || report.Failed != 1 {
		t.Errorf("expected 1 created / 1 failed, got %+v", report)
	}

	if _, err := entryRepo.FindByKey(ctx, healthy.UserID, "2024-01-03", healthy.Category); err != nil {
		t.Errorf("expected entry for healthy schedule: %v", err)
	}
}
