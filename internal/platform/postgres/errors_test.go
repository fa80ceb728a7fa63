package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/avelinsk/taskmill/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected error
	}{
		{
			name:     "nil error maps to nil",
			err:      nil,
			expected: nil,
		},
		{
			name:     "no rows maps to not found",
			err:      sql.ErrNoRows,
			expected: store.ErrNotFound,
		},
		{
			name:     "unique violation maps to duplicate",
			err:      &pgconn.PgError{Code: uniqueViolationCode},
			expected: store.ErrDuplicate,
		},
		{
			name:     "foreign key violation maps to invalid entity",
			err:      &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "fk_task"},
			expected: store.ErrInvalidEntity,
		},
		{
			name:     "check violation maps to invalid entity",
			err:      &pgconn.PgError{Code: checkViolationCode, ConstraintName: "chk_template_or_instance"},
			expected: store.ErrInvalidEntity,
		},
		{
			name:     "not null violation maps to invalid entity",
			err:      &pgconn.PgError{Code: notNullViolationCode, ColumnName: "user_id"},
			expected: store.ErrInvalidEntity,
		},
		{
			name:     "wrapped driver errors are unwrapped before mapping",
			err:      fmt.Errorf("query failed: %w", sql.ErrNoRows),
			expected: store.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mapped := MapError(tc.err)

			if tc.expected == nil {
				assert.NoError(t, mapped)
			} else {
				assert.ErrorIs(t, mapped, tc.expected)
			}
		})
	}
}

func TestMapErrorPassesThroughUnknownErrors(t *testing.T) {
	t.Parallel()

	original := errors.New("connection reset")

	assert.Equal(t, original, MapError(original))
}

func TestEncodeDecodeDays(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		days []int
	}{
		{name: "empty set", days: nil},
		{name: "single day", days: []int{3}},
		{name: "multiple days", days: []int{0, 2, 6}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			encoded := encodeDays(tc.days)
			decoded := decodeDays([]byte(encoded))

			assert.Equal(t, tc.days, decoded)
		})
	}
}
