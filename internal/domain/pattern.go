package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PatternType represents the cadence of a recurrence pattern.
type PatternType string

// Possible pattern type values
const (
	PatternTypeDaily   PatternType = "daily"
	PatternTypeWeekly  PatternType = "weekly"
	PatternTypeMonthly PatternType = "monthly"
)

// EndCondition represents how a recurrence series terminates.
type EndCondition string

// Possible end condition values
const (
	EndConditionNever            EndCondition = "never"
	EndConditionAfterOccurrences EndCondition = "after_occurrences"
	EndConditionByDate           EndCondition = "by_date"
)

// Common validation errors for RecurrencePattern
var (
	ErrEmptyPatternTaskID   = errors.New("recurrence pattern task ID cannot be empty")
	ErrInvalidPatternType   = errors.New("invalid recurrence pattern type")
	ErrInvalidInterval      = errors.New("recurrence interval must be at least 1")
	ErrInvalidDaysOfWeek    = errors.New("days of week must be a subset of 0-6 and only set for weekly patterns")
	ErrInvalidDayOfMonth    = errors.New("day of month must be 1-31 and only set for monthly patterns")
	ErrInvalidEndCondition  = errors.New("invalid recurrence end condition")
	ErrEndConditionMismatch = errors.New("exactly one end-condition field must be populated, matching the end condition")
	ErrNegativeOccurrence   = errors.New("current occurrence cannot be negative")
)

// RecurrencePattern describes how a template task repeats. Days of week use
// 0=Monday through 6=Sunday. Exactly one of OccurrenceCount and EndDate is
// populated, matching EndCondition; neither is set for EndConditionNever.
//
// A pattern is owned 1:1 by its template task and mutated exclusively by the
// instance materializer after each successful materialization. Exhausted is
// set once the end condition is met. LastEventKey records the idempotency
// key of the completion event most recently materialized and LastInstanceID
// the instance it produced, so a redelivered event re-announces the same
// outcome instead of creating a second instance.
type RecurrencePattern struct {
	ID                uuid.UUID    `json:"id"`
	TaskID            uuid.UUID    `json:"task_id"`
	PatternType       PatternType  `json:"pattern_type"`
	Interval          int          `json:"interval"`
	DaysOfWeek        []int        `json:"days_of_week,omitempty"`
	DayOfMonth        int          `json:"day_of_month,omitempty"`
	EndCondition      EndCondition `json:"end_condition"`
	OccurrenceCount   int          `json:"occurrence_count,omitempty"`
	CurrentOccurrence int          `json:"current_occurrence"`
	EndDate           *time.Time   `json:"end_date,omitempty"`
	Exhausted         bool         `json:"exhausted"`
	LastEventKey      string       `json:"last_event_key,omitempty"`
	LastInstanceID    *uuid.UUID   `json:"last_instance_id,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// NewRecurrencePattern creates a pattern for the given template task,
// starting at occurrence zero.
func NewRecurrencePattern(
	taskID uuid.UUID,
	patternType PatternType,
	interval int,
	endCondition EndCondition,
) (*RecurrencePattern, error) {
	now := time.Now().UTC()
	pattern := &RecurrencePattern{
		ID:           uuid.New(),
		TaskID:       taskID,
		PatternType:  patternType,
		Interval:     interval,
		EndCondition: endCondition,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := pattern.Validate(); err != nil {
		return nil, err
	}

	return pattern, nil
}

// Validate checks if the RecurrencePattern has valid data.
// Returns an error if any field fails validation.
func (p *RecurrencePattern) Validate() error {
	if p.TaskID == uuid.Nil {
		return ErrEmptyPatternTaskID
	}

	switch p.PatternType {
	case PatternTypeDaily, PatternTypeWeekly, PatternTypeMonthly:
	default:
		return ErrInvalidPatternType
	}

	if p.Interval < 1 {
		return ErrInvalidInterval
	}

	if len(p.DaysOfWeek) > 0 && p.PatternType != PatternTypeWeekly {
		return ErrInvalidDaysOfWeek
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return ErrInvalidDaysOfWeek
		}
	}

	if p.DayOfMonth != 0 {
		if p.PatternType != PatternTypeMonthly || p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
	}

	if p.CurrentOccurrence < 0 {
		return ErrNegativeOccurrence
	}

	switch p.EndCondition {
	case EndConditionNever:
		if p.OccurrenceCount != 0 || p.EndDate != nil {
			return ErrEndConditionMismatch
		}
	case EndConditionAfterOccurrences:
		if p.OccurrenceCount < 1 || p.EndDate != nil {
			return ErrEndConditionMismatch
		}
	case EndConditionByDate:
		if p.EndDate == nil || p.OccurrenceCount != 0 {
			return ErrEndConditionMismatch
		}
	default:
		return ErrInvalidEndCondition
	}

	return nil
}
