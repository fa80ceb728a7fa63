package recur

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelinsk/taskmill/internal/domain"
)

// date builds a UTC timestamp at 09:00 for readable test cases.
func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func pattern(t domain.PatternType, interval int) *domain.RecurrencePattern {
	return &domain.RecurrencePattern{
		ID:           uuid.New(),
		TaskID:       uuid.New(),
		PatternType:  t,
		Interval:     interval,
		EndCondition: domain.EndConditionNever,
	}
}

func TestNextOccurrenceDaily(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		interval int
		from     time.Time
		expected time.Time
	}{
		{
			name:     "every day",
			interval: 1,
			from:     date(2025, time.March, 10),
			expected: date(2025, time.March, 11),
		},
		{
			name:     "every third day",
			interval: 3,
			from:     date(2025, time.March, 10),
			expected: date(2025, time.March, 13),
		},
		{
			name:     "crosses month boundary",
			interval: 2,
			from:     date(2025, time.March, 31),
			expected: date(2025, time.April, 2),
		},
		{
			name:     "crosses year boundary",
			interval: 1,
			from:     date(2025, time.December, 31),
			expected: date(2026, time.January, 1),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := pattern(domain.PatternTypeDaily, tc.interval)

			got, err := NextOccurrence(p, tc.from)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNextOccurrenceWeekly(t *testing.T) {
	t.Parallel()

	// Days of week use 0=Monday through 6=Sunday.
	testCases := []struct {
		name       string
		interval   int
		daysOfWeek []int
		from       time.Time
		expected   time.Time
	}{
		{
			name:       "next allowed day within the same week ignores interval",
			interval:   2,
			daysOfWeek: []int{0, 2},                // Mon, Wed
			from:       date(2025, time.March, 10), // Monday
			expected:   date(2025, time.March, 12), // following Wednesday
		},
		{
			name:       "wrapping to a new week skips interval-1 weeks",
			interval:   2,
			daysOfWeek: []int{0, 2},
			from:       date(2025, time.March, 12), // Wednesday
			expected:   date(2025, time.March, 24), // Monday two weeks after
		},
		{
			name:       "unset days default to the anchor weekday",
			interval:   1,
			daysOfWeek: nil,
			from:       date(2025, time.March, 14), // Friday
			expected:   date(2025, time.March, 21), // next Friday
		},
		{
			name:       "unset days with interval honor the interval",
			interval:   3,
			daysOfWeek: nil,
			from:       date(2025, time.March, 14),
			expected:   date(2025, time.April, 4),
		},
		{
			name:       "sunday wraps into the next allowed week",
			interval:   1,
			daysOfWeek: []int{6},                   // Sunday
			from:       date(2025, time.March, 16), // Sunday
			expected:   date(2025, time.March, 23),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := pattern(domain.PatternTypeWeekly, tc.interval)
			p.DaysOfWeek = tc.daysOfWeek

			got, err := NextOccurrence(p, tc.from)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNextOccurrenceWeeklyChainsThroughExampleScenario(t *testing.T) {
	t.Parallel()

	// Completing on a Monday with a Mon/Wed every-2-weeks pattern yields the
	// following Wednesday, then the Monday two weeks after that.
	p := pattern(domain.PatternTypeWeekly, 2)
	p.DaysOfWeek = []int{0, 2}

	first, err := NextOccurrence(p, date(2025, time.March, 10))
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 12), first)

	second, err := NextOccurrence(p, first)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.March, 24), second)
}

func TestNextOccurrenceMonthly(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		interval   int
		dayOfMonth int
		from       time.Time
		expected   time.Time
	}{
		{
			name:       "same day next month",
			interval:   1,
			dayOfMonth: 15,
			from:       date(2025, time.March, 15),
			expected:   date(2025, time.April, 15),
		},
		{
			name:       "day 31 clamps to end of february",
			interval:   1,
			dayOfMonth: 31,
			from:       date(2025, time.January, 31),
			expected:   date(2025, time.February, 28),
		},
		{
			name:       "day 31 clamps to leap-year february 29",
			interval:   1,
			dayOfMonth: 31,
			from:       date(2024, time.January, 31),
			expected:   date(2024, time.February, 29),
		},
		{
			name:       "quarterly crosses year boundary",
			interval:   3,
			dayOfMonth: 10,
			from:       date(2025, time.November, 10),
			expected:   date(2026, time.February, 10),
		},
		{
			name:       "unset day of month defaults to anchor day",
			interval:   1,
			dayOfMonth: 0,
			from:       date(2025, time.March, 7),
			expected:   date(2025, time.April, 7),
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := pattern(domain.PatternTypeMonthly, tc.interval)
			p.DayOfMonth = tc.dayOfMonth

			got, err := NextOccurrence(p, tc.from)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNextOccurrenceEndConditions(t *testing.T) {
	t.Parallel()

	t.Run("never ending pattern keeps producing", func(t *testing.T) {
		t.Parallel()
		p := pattern(domain.PatternTypeDaily, 1)
		p.CurrentOccurrence = 10_000

		_, err := NextOccurrence(p, date(2025, time.March, 10))

		assert.NoError(t, err)
	})

	t.Run("after_occurrences ends exactly after the configured count", func(t *testing.T) {
		t.Parallel()
		p := pattern(domain.PatternTypeDaily, 1)
		p.EndCondition = domain.EndConditionAfterOccurrences
		p.OccurrenceCount = 3

		anchor := date(2025, time.March, 10)
		for i := 0; i < 3; i++ {
			p.CurrentOccurrence = i
			next, err := NextOccurrence(p, anchor)
			require.NoError(t, err, "occurrence %d should still be produced", i+1)
			anchor = next
		}

		p.CurrentOccurrence = 3
		_, err := NextOccurrence(p, anchor)
		assert.ErrorIs(t, err, ErrEndOfSeries)
	})

	t.Run("by_date ends when the candidate passes the end date", func(t *testing.T) {
		t.Parallel()
		end := date(2025, time.March, 12)
		p := pattern(domain.PatternTypeDaily, 1)
		p.EndCondition = domain.EndConditionByDate
		p.EndDate = &end

		next, err := NextOccurrence(p, date(2025, time.March, 11))
		require.NoError(t, err)
		assert.Equal(t, date(2025, time.March, 12), next)

		_, err = NextOccurrence(p, next)
		assert.ErrorIs(t, err, ErrEndOfSeries)
	})

	t.Run("end date before the first occurrence ends the series immediately", func(t *testing.T) {
		t.Parallel()
		end := date(2025, time.March, 1)
		p := pattern(domain.PatternTypeWeekly, 1)
		p.EndCondition = domain.EndConditionByDate
		p.EndDate = &end

		_, err := NextOccurrence(p, date(2025, time.March, 10))

		assert.ErrorIs(t, err, ErrEndOfSeries)
	})
}

func TestNextOccurrenceIsMonotonic(t *testing.T) {
	t.Parallel()

	patterns := []*domain.RecurrencePattern{
		pattern(domain.PatternTypeDaily, 1),
		pattern(domain.PatternTypeDaily, 7),
		pattern(domain.PatternTypeWeekly, 1),
		pattern(domain.PatternTypeWeekly, 4),
		pattern(domain.PatternTypeMonthly, 1),
		pattern(domain.PatternTypeMonthly, 6),
	}
	patterns[2].DaysOfWeek = []int{1, 4}
	patterns[3].DaysOfWeek = []int{0}
	patterns[4].DayOfMonth = 31
	patterns[5].DayOfMonth = 15

	for _, p := range patterns {
		anchor := date(2024, time.December, 28)
		for i := 0; i < 50; i++ {
			next, err := NextOccurrence(p, anchor)
			require.NoError(t, err)
			require.True(t, next.After(anchor),
				"pattern %s/%d produced %v not after anchor %v", p.PatternType, p.Interval, next, anchor)
			anchor = next
		}
	}
}

func TestNextOccurrenceRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	p := pattern(domain.PatternTypeDaily, 0)

	_, err := NextOccurrence(p, date(2025, time.March, 10))

	assert.ErrorIs(t, err, domain.ErrValidation)
}
