package services

import (
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/calebmorris/habit-scheduler/internal/models"
)

// RecurrenceConfig is the JSON carried in a schedule's recurrence_value
// column. Weekly rules use Days (0=Sunday .. 6=Saturday), custom rules use
// Dates as explicit ISO calendar dates. Unknown fields are ignored.
type RecurrenceConfig struct {
	Days  []int    `json:"days,omitempty"`
	Dates []string `json:"dates,omitempty"`
}

// Rule is the parsed, validated form of a recurrence definition.
type Rule struct {
	Type  models.RecurrenceType
	Days  map[time.Weekday]bool
	Dates []time.Time
}

func ParseRule(recurrenceType models.RecurrenceType, recurrenceValue string, location *time.Location) (Rule, error) {
	var config RecurrenceConfig
	if recurrenceValue != "" {
		if err := json.Unmarshal([]byte(recurrenceValue), &config); err != nil {
			return Rule{}, fmt.Errorf("parsing recurrence config: %w", err)
		}
	}

	rule := Rule{Type: recurrenceType}

	switch recurrenceType {
	case models.RecurrenceDaily:
		// No configuration.

	case models.RecurrenceWeekly:
		if len(config.Days) == 0 {
			return Rule{}, fmt.Errorf("weekly recurrence requires at least one day")
		}
		rule.Days = make(map[time.Weekday]bool, len(config.Days))
		for _, day := range config.Days {
			if day < 0 || day > 6 {
				return Rule{}, fmt.Errorf("weekly recurrence day %d out of range 0..6", day)
			}
			rule.Days[time.Weekday(day)] = true
		}

	case models.RecurrenceCustom:
		if len(config.Dates) == 0 {
			return Rule{}, fmt.Errorf("custom recurrence requires at least one date")
		}
		seen := make(map[string]bool, len(config.Dates))
		for _, value := range config.Dates {
			if seen[value] {
				continue
			}
			seen[value] = true
			date, err := time.ParseInLocation(models.DateLayout, value, location)
			if err != nil {
				return Rule{}, fmt.Errorf("parsing custom recurrence date %q: %w", value, err)
			}
			rule.Dates = append(rule.Dates, date)
		}
		sort.Slice(rule.Dates, func(i, j int) bool {
			return rule.Dates[i].Before(rule.Dates[j])
		})

	default:
		return Rule{}, fmt.Errorf("unknown recurrence type %q", recurrenceType)
	}

	return rule, nil
}

// Expand yields the calendar dates on which rule applies, ascending and
// deduplicated, over the intersection of the validity window
// [validFrom, validTo] and the query window [from, to]. A nil validTo means
// the schedule is open-ended. The sequence is lazy: a wide query window
// costs nothing beyond the dates actually consumed, and nothing outside the
// intersection is ever visited.
func Expand(rule Rule, validFrom time.Time, validTo *time.Time, from, to time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		start := validFrom
		if from.After(start) {
			start = from
		}
		end := to
		if validTo != nil && validTo.Before(end) {
			end = *validTo
		}
		if end.Before(start) {
			return
		}

		switch rule.Type {
		case models.RecurrenceDaily:
			for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
				if !yield(day) {
					return
				}
			}

		case models.RecurrenceWeekly:
			for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
				if !rule.Days[day.Weekday()] {
					continue
				}
				if !yield(day) {
					return
				}
			}

		case models.RecurrenceCustom:
			// Dates are sorted and deduplicated at parse time.
			for _, day := range rule.Dates {
				if day.Before(start) {
					continue
				}
				if day.After(end) {
					return
				}
				if !yield(day) {
					return
				}
			}
		}
	}
}

// DateOnly truncates a timestamp to midnight of its calendar day in the
// given zone.
func DateOnly(t time.Time, location *time.Location) time.Time {
	year, month, day := t.In(location).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, location)
}

func ParseDate(value string, location *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation(models.DateLayout, value, location)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", value, err)
	}
	return date, nil
}

// scheduleRule parses a schedule's stored recurrence definition.
func scheduleRule(schedule models.ScheduledHabit, location *time.Location) (Rule, error) {
	return ParseRule(schedule.RecurrenceType, schedule.RecurrenceValue, location)
}

// scheduleWindow parses a schedule's validity window.
func scheduleWindow(schedule models.ScheduledHabit, location *time.Location) (time.Time, *time.Time, error) {
	validFrom, err := ParseDate(schedule.StartDate, location)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parsing start date: %w", err)
	}
	var validTo *time.Time
	if schedule.EndDate != nil {
		end, err := ParseDate(*schedule.EndDate, location)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("parsing end date: %w", err)
		}
		validTo = &end
	}
	return validFrom, validTo, nil
}
