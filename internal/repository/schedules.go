package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/google/uuid"
)

const (
	OrderByStartDateAsc  = "start_date ASC, name ASC"
	OrderByCreatedAtDesc = "created_at DESC, name ASC"
)

type ScheduleFilter struct {
	UserID     *string
	Status     *models.ScheduleStatus
	Statuses   []models.ScheduleStatus
	AutoCreate *bool
	// OverlapsFrom/OverlapsTo (inclusive ISO dates) restrict results to
	// schedules whose validity window intersects the given range.
	OverlapsFrom *string
	OverlapsTo   *string
	OrderBy      string
}

type ScheduleRepository interface {
	FindByID(ctx context.Context, id string) (models.ScheduledHabit, error)
	FindAll(ctx context.Context, filter ScheduleFilter) ([]models.ScheduledHabit, error)
	Create(ctx context.Context, schedule models.ScheduledHabit) (models.ScheduledHabit, error)
	Update(ctx context.Context, schedule models.ScheduledHabit) error
	// UpdateStatus moves a schedule from one status to another in a single
	// statement. It reports false when the stored status no longer matches
	// from, so concurrent transitions cannot silently overwrite each other.
	UpdateStatus(ctx context.Context, id string, from, to models.ScheduleStatus) (bool, error)
	Delete(ctx context.Context, id string) error
}

type SQLiteScheduleRepository struct {
	database *sql.DB
}

func NewScheduleRepository(database *sql.DB) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{database: database}
}

const scheduleColumns = `id, user_id, assigned_by_id, category, name,
	target_value, unit, recurrence_type, recurrence_value,
	start_date, end_date, preferred_time, instructions,
	auto_create, status, created_at, updated_at`

func (repository *SQLiteScheduleRepository) FindByID(ctx context.Context, id string) (models.ScheduledHabit, error) {
	var schedule models.ScheduledHabit
	err := repository.database.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM scheduled_habits WHERE id = ?`, id,
	).Scan(
		&schedule.ID, &schedule.UserID, &schedule.AssignedByID, &schedule.Category, &schedule.Name,
		&schedule.TargetValue, &schedule.Unit, &schedule.RecurrenceType, &schedule.RecurrenceValue,
		&schedule.StartDate, &schedule.EndDate, &schedule.PreferredTime, &schedule.Instructions,
		&schedule.AutoCreate, &schedule.Status, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("finding schedule by id: %w", err)
	}
	return schedule, nil
}

func (repository *SQLiteScheduleRepository) FindAll(ctx context.Context, filter ScheduleFilter) ([]models.ScheduledHabit, error) {
	query := `SELECT ` + scheduleColumns + ` FROM scheduled_habits WHERE 1=1`

	var args []interface{}

	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += " AND status IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.AutoCreate != nil {
		query += " AND auto_create = ?"
		args = append(args, *filter.AutoCreate)
	}
	if filter.OverlapsTo != nil {
		query += " AND start_date <= ?"
		args = append(args, *filter.OverlapsTo)
	}
	if filter.OverlapsFrom != nil {
		query += " AND (end_date IS NULL OR end_date >= ?)"
		args = append(args, *filter.OverlapsFrom)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = OrderByStartDateAsc
	}
	query += " ORDER BY " + orderBy

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding schedules: %w", err)
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func (repository *SQLiteScheduleRepository) Create(ctx context.Context, schedule models.ScheduledHabit) (models.ScheduledHabit, error) {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	if schedule.Status == "" {
		schedule.Status = models.ScheduleStatusActive
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO scheduled_habits (id, user_id, assigned_by_id, category, name,
			target_value, unit, recurrence_type, recurrence_value,
			start_date, end_date, preferred_time, instructions,
			auto_create, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.UserID, schedule.AssignedByID, schedule.Category, schedule.Name,
		schedule.TargetValue, schedule.Unit, schedule.RecurrenceType, schedule.RecurrenceValue,
		schedule.StartDate, schedule.EndDate, schedule.PreferredTime, schedule.Instructions,
		schedule.AutoCreate, schedule.Status, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return models.ScheduledHabit{}, fmt.Errorf("creating schedule: %w", err)
	}
	return schedule, nil
}

func (repository *SQLiteScheduleRepository) Update(ctx context.Context, schedule models.ScheduledHabit) error {
	schedule.UpdatedAt = time.Now()
	result, err := repository.database.ExecContext(ctx,
		`UPDATE scheduled_habits SET name = ?,
			target_value = ?, unit = ?, recurrence_type = ?, recurrence_value = ?,
			start_date = ?, end_date = ?, preferred_time = ?, instructions = ?,
			auto_create = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		schedule.Name,
		schedule.TargetValue, schedule.Unit, schedule.RecurrenceType, schedule.RecurrenceValue,
		schedule.StartDate, schedule.EndDate, schedule.PreferredTime, schedule.Instructions,
		schedule.AutoCreate, schedule.Status, schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("updating schedule: %w", sql.ErrNoRows)
	}
	return nil
}

func (repository *SQLiteScheduleRepository) UpdateStatus(ctx context.Context, id string, from, to models.ScheduleStatus) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		`UPDATE scheduled_habits SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating schedule status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating schedule status: %w", err)
	}
	return affected > 0, nil
}

func (repository *SQLiteScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := repository.database.ExecContext(ctx, "DELETE FROM scheduled_habits WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deleting schedule: %w", sql.ErrNoRows)
	}
	return nil
}

func scanSchedules(rows *sql.Rows) ([]models.ScheduledHabit, error) {
	var schedules []models.ScheduledHabit
	for rows.Next() {
		var schedule models.ScheduledHabit
		if err := rows.Scan(
			&schedule.ID, &schedule.UserID, &schedule.AssignedByID, &schedule.Category, &schedule.Name,
			&schedule.TargetValue, &schedule.Unit, &schedule.RecurrenceType, &schedule.RecurrenceValue,
			&schedule.StartDate, &schedule.EndDate, &schedule.PreferredTime, &schedule.Instructions,
			&schedule.AutoCreate, &schedule.Status, &schedule.CreatedAt, &schedule.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}
