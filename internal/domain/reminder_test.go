package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReminder(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	userID := uuid.New()
	remindAt := time.Now().UTC().Add(time.Hour)

	r, err := NewReminder(taskID, userID, remindAt, ChannelEmail, "corr-123")

	require.NoError(t, err)
	assert.Equal(t, DeliveryStatusPending, r.DeliveryStatus)
	assert.Equal(t, 0, r.RetryCount)
	assert.Equal(t, "corr-123", r.CorrelationID)
}

func TestReminderValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Reminder {
		return &Reminder{
			ID:             uuid.New(),
			TaskID:         uuid.New(),
			UserID:         uuid.New(),
			RemindAt:       time.Now().UTC().Add(time.Hour),
			Channel:        ChannelInApp,
			DeliveryStatus: DeliveryStatusPending,
		}
	}

	testCases := []struct {
		name    string
		mutate  func(*Reminder)
		wantErr error
	}{
		{
			name:    "valid reminder",
			mutate:  func(*Reminder) {},
			wantErr: nil,
		},
		{
			name:    "missing task ID",
			mutate:  func(r *Reminder) { r.TaskID = uuid.Nil },
			wantErr: ErrEmptyReminderTaskID,
		},
		{
			name:    "missing user ID",
			mutate:  func(r *Reminder) { r.UserID = uuid.Nil },
			wantErr: ErrEmptyReminderUserID,
		},
		{
			name:    "zero remind time",
			mutate:  func(r *Reminder) { r.RemindAt = time.Time{} },
			wantErr: ErrZeroRemindAt,
		},
		{
			name:    "unknown channel",
			mutate:  func(r *Reminder) { r.Channel = "pigeon" },
			wantErr: ErrInvalidChannel,
		},
		{
			name:    "unknown delivery status",
			mutate:  func(r *Reminder) { r.DeliveryStatus = "queued" },
			wantErr: ErrInvalidDeliveryStatus,
		},
		{
			name:    "retry count above ceiling",
			mutate:  func(r *Reminder) { r.RetryCount = MaxRetryCount + 1 },
			wantErr: ErrInvalidRetryCount,
		},
		{
			name:    "negative retry count",
			mutate:  func(r *Reminder) { r.RetryCount = -1 },
			wantErr: ErrInvalidRetryCount,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := valid()
			tc.mutate(r)

			err := r.Validate()

			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
