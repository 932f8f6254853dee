package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/google/uuid"
)

type HabitEntryRepository interface {
	// CreateIfAbsent inserts the entry unless one already exists for the same
	// (user, date, category) key. It reports whether a row was created and
	// returns the entry now stored under that key either way. The insert is a
	// single atomic statement, never a check followed by a write.
	CreateIfAbsent(ctx context.Context, entry models.HabitEntry) (models.HabitEntry, bool, error)
	FindByKey(ctx context.Context, userID, entryDate, category string) (models.HabitEntry, error)
	FindForUserInRange(ctx context.Context, userID, from, to string) ([]models.HabitEntry, error)
}

type SQLiteHabitEntryRepository struct {
	database *sql.DB
}

func NewHabitEntryRepository(database *sql.DB) *SQLiteHabitEntryRepository {
	return &SQLiteHabitEntryRepository{database: database}
}

const habitEntryColumns = `id, user_id, entry_date, category, name,
	value, target_value, unit, notes, schedule_id, created_at`

func (repository *SQLiteHabitEntryRepository) CreateIfAbsent(ctx context.Context, entry models.HabitEntry) (models.HabitEntry, bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now()

	result, err := repository.database.ExecContext(ctx,
		`INSERT INTO habit_entries (id, user_id, entry_date, category, name,
			value, target_value, unit, notes, schedule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entry_date, category) DO NOTHING`,
		entry.ID, entry.UserID, entry.EntryDate, entry.Category, entry.Name,
		entry.Value, entry.TargetValue, entry.Unit, entry.Notes, entry.ScheduleID, entry.CreatedAt,
	)
	if err != nil {
		return models.HabitEntry{}, false, fmt.Errorf("creating habit entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return models.HabitEntry{}, false, fmt.Errorf("creating habit entry: %w", err)
	}
	if affected > 0 {
		return entry, true, nil
	}

	existing, err := repository.FindByKey(ctx, entry.UserID, entry.EntryDate, entry.Category)
	if err != nil {
		return models.HabitEntry{}, false, fmt.Errorf("loading existing habit entry: %w", err)
	}
	return existing, false, nil
}

func (repository *SQLiteHabitEntryRepository) FindByKey(ctx context.Context, userID, entryDate, category string) (models.HabitEntry, error) {
	var entry models.HabitEntry
	err := repository.database.QueryRowContext(ctx,
		`SELECT `+habitEntryColumns+` FROM habit_entries
		WHERE user_id = ? AND entry_date = ? AND category = ?`,
		userID, entryDate, category,
	).Scan(
		&entry.ID, &entry.UserID, &entry.EntryDate, &entry.Category, &entry.Name,
		&entry.Value, &entry.TargetValue, &entry.Unit, &entry.Notes, &entry.ScheduleID, &entry.CreatedAt,
	)
	if err != nil {
		return models.HabitEntry{}, fmt.Errorf("finding habit entry: %w", err)
	}
	return entry, nil
}

func (repository *SQLiteHabitEntryRepository) FindForUserInRange(ctx context.Context, userID, from, to string) ([]models.HabitEntry, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT `+habitEntryColumns+` FROM habit_entries
		WHERE user_id = ? AND entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date ASC, category ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("finding habit entries in range: %w", err)
	}
	defer rows.Close()

	var entries []models.HabitEntry
	for rows.Next() {
		var entry models.HabitEntry
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.EntryDate, &entry.Category, &entry.Name,
			&entry.Value, &entry.TargetValue, &entry.Unit, &entry.Notes, &entry.ScheduleID, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning habit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
