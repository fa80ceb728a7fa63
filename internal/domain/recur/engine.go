// Package recur implements the recurrence engine: pure date computation for
// recurring tasks, with no side effects or I/O. Given a pattern and an anchor
// date it produces the next due date, or reports that the series has ended.
package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/avelinsk/taskmill/internal/domain"
)

// ErrEndOfSeries signals that a pattern's end condition is met and no
// further occurrences exist. Callers mark the pattern exhausted instead of
// creating another instance.
var ErrEndOfSeries = errors.New("recurrence series has ended")

// NextOccurrence computes the next due date for the pattern from the given
// anchor date.
//
// The candidate date is computed per pattern type:
//   - daily: anchor + interval days.
//   - weekly: the smallest date at least one day after the anchor whose
//     weekday is in DaysOfWeek (defaulting to the anchor's weekday when
//     unset). If that date falls outside the anchor's week, an additional
//     (interval-1) whole weeks are added.
//   - monthly: the same DayOfMonth in the month interval months after the
//     anchor's month, clamped to the last day of the target month when the
//     day does not exist there (for example day 31 in February).
//
// The end condition is evaluated against the candidate after it is computed:
// a pattern ending after_occurrences returns ErrEndOfSeries once
// CurrentOccurrence+1 exceeds OccurrenceCount, and a by_date pattern returns
// ErrEndOfSeries when the candidate lands after EndDate. An EndDate that
// precedes the very first computed occurrence therefore ends the series
// immediately, with zero instances ever materialized.
//
// The returned date preserves the anchor's clock time and location. The
// computation is deterministic and strictly increasing in the anchor.
func NextOccurrence(p *domain.RecurrencePattern, from time.Time) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	var candidate time.Time
	switch p.PatternType {
	case domain.PatternTypeDaily:
		candidate = from.AddDate(0, 0, p.Interval)
	case domain.PatternTypeWeekly:
		candidate = nextWeekly(p, from)
	case domain.PatternTypeMonthly:
		candidate = nextMonthly(p, from)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported pattern type %q", domain.ErrValidation, p.PatternType)
	}

	switch p.EndCondition {
	case domain.EndConditionAfterOccurrences:
		if p.CurrentOccurrence+1 > p.OccurrenceCount {
			return time.Time{}, ErrEndOfSeries
		}
	case domain.EndConditionByDate:
		if candidate.After(*p.EndDate) {
			return time.Time{}, ErrEndOfSeries
		}
	}

	return candidate, nil
}

// weekdayIndex converts Go's Sunday-based weekday to the pattern encoding,
// where 0 is Monday and 6 is Sunday.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func nextWeekly(p *domain.RecurrencePattern, from time.Time) time.Time {
	days := p.DaysOfWeek
	if len(days) == 0 {
		days = []int{weekdayIndex(from.Weekday())}
	}

	allowed := [7]bool{}
	for _, d := range days {
		allowed[d] = true
	}

	// Scan forward from the day after the anchor for the first allowed
	// weekday. A full week always contains a match.
	candidate := from.AddDate(0, 0, 1)
	for !allowed[weekdayIndex(candidate.Weekday())] {
		candidate = candidate.AddDate(0, 0, 1)
	}

	// When the match falls in a later week than the anchor, the interval
	// applies: skip (interval-1) further whole weeks. A match within the
	// anchor's own week (e.g. Monday -> Wednesday for a Mon/Wed pattern)
	// is due as-is regardless of interval.
	daysIntoWeek := weekdayIndex(from.Weekday())
	weekEnd := from.AddDate(0, 0, 7-daysIntoWeek)
	if !candidate.Before(weekEnd) {
		candidate = candidate.AddDate(0, 0, (p.Interval-1)*7)
	}

	return candidate
}

func nextMonthly(p *domain.RecurrencePattern, from time.Time) time.Time {
	day := p.DayOfMonth
	if day == 0 {
		day = from.Day()
	}

	year, month, _ := from.Date()
	targetMonth := time.Date(year, month+time.Month(p.Interval), 1,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())

	// Day 0 of the following month is the last day of the target month.
	lastDay := time.Date(targetMonth.Year(), targetMonth.Month()+1, 0, 0, 0, 0, 0, from.Location()).Day()
	if day > lastDay {
		day = lastDay
	}

	return targetMonth.AddDate(0, 0, day-1)
}
