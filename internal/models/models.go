package models

import "time"

// DateLayout is the canonical encoding for calendar dates in storage and APIs.
const DateLayout = "2006-01-02"

type ScheduleStatus string

const (
	ScheduleStatusActive    ScheduleStatus = "active"
	ScheduleStatusPaused    ScheduleStatus = "paused"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCancelled ScheduleStatus = "cancelled"
)

type RecurrenceType string

const (
	RecurrenceDaily  RecurrenceType = "daily"
	RecurrenceWeekly RecurrenceType = "weekly"
	RecurrenceCustom RecurrenceType = "custom"
)

// ScheduledHabit is a recurring habit assignment template. UserID, AssignedByID
// and Category are fixed at creation; edits replace the remaining fields.
type ScheduledHabit struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	AssignedByID string `json:"assigned_by_id"`

	Category    string  `json:"category"`
	Name        string  `json:"name"`
	TargetValue float64 `json:"target_value"`
	Unit        string  `json:"unit"`

	RecurrenceType  RecurrenceType `json:"recurrence_type"`
	RecurrenceValue string         `json:"recurrence_value,omitempty"`

	StartDate     string  `json:"start_date"`
	EndDate       *string `json:"end_date,omitempty"`
	PreferredTime *string `json:"preferred_time,omitempty"`
	Instructions  string  `json:"instructions,omitempty"`

	AutoCreate bool           `json:"auto_create"`
	Status     ScheduleStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HabitEntry is a concrete daily habit-log record. Entries keep living after
// their originating schedule is deleted, so ScheduleID is informational only.
type HabitEntry struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EntryDate   string    `json:"entry_date"`
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	TargetValue float64   `json:"target_value"`
	Unit        string    `json:"unit"`
	Notes       string    `json:"notes,omitempty"`
	ScheduleID  *string   `json:"schedule_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Occurrence is one calendar date a schedule applies to. It is derived on
// demand and never persisted.
type Occurrence struct {
	ScheduleID    string  `json:"schedule_id"`
	UserID        string  `json:"user_id"`
	Date          string  `json:"date"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	TargetValue   float64 `json:"target_value"`
	Unit          string  `json:"unit"`
	PreferredTime *string `json:"preferred_time,omitempty"`
	Instructions  string  `json:"instructions,omitempty"`
	AssignedByID  string  `json:"assigned_by_id"`
	IsCompleted   bool    `json:"is_completed"`
}

type APIToken struct {
	ID        string
	Name      string
	TokenHash string
	Scope     string
	ExpiresAt *time.Time
	CreatedAt time.Time
}
