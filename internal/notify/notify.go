// Package notify defines the delivery boundary for reminders. Concrete
// senders (email gateways, SMS providers, in-app push) live behind the
// Sender interface; the dispatcher decides whether to retry based on the
// transient/permanent classification a sender attaches to its errors.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelinsk/taskmill/internal/domain"
)

// Sender delivers one reminder over one channel. Implementations must
// honor ctx cancellation; the dispatcher enforces a hard timeout per call.
type Sender interface {
	Send(ctx context.Context, channel domain.NotificationChannel, userID string, content string) error
}

// TransientError marks a delivery failure worth retrying, such as a
// provider timeout or a 5xx response.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is lets errors.Is match TransientError against the shared retryable
// sentinel without each caller knowing the concrete type.
func (e *TransientError) Is(target error) bool {
	return target == domain.ErrTransientDependency
}

// PermanentError marks a delivery failure that will never succeed, such as
// an invalid recipient or an unsupported channel.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func (e *PermanentError) Is(target error) bool {
	return target == domain.ErrPermanentDependency
}

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as non-retryable. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err is a retryable delivery failure.
// Unclassified errors default to transient so a misbehaving provider does
// not permanently fail reminders.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm) || errors.Is(err, domain.ErrPermanentDependency)
}
