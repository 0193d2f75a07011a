package alert

import "errors"

var (
	// ErrInvalidInput is returned for negative repeat intervals, out of range
	// timezone offsets and similar caller mistakes. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when an event ID does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDelivery wraps a notifier failure during a poll.
	ErrDelivery = errors.New("delivery failed")
)
