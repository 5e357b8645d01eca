package checkout

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart       = errors.New("cart is empty, nothing to checkout")
	ErrSessionNotFound = errors.New("checkout session not found")
	IllegalStepError   = errors.New("illegal transition of checkout step")

	// ErrPaymentPending: a gateway intent is outstanding; the session must be
	// resolved or expired before another placement attempt.
	ErrPaymentPending = errors.New("a payment attempt is already in progress")

	// ErrNoPaymentPending: a gateway resolution arrived for a session that
	// has no outstanding intent (late webhook after expiry, or replay).
	ErrNoPaymentPending = errors.New("no payment attempt is in progress")

	// ErrOrderPersist wraps pre-charge persistence failures; safe to retry.
	ErrOrderPersist = errors.New("failed to record order")

	// ErrPaymentNotRecorded is the reconciliation gap: the charge succeeded
	// but the order could not be recorded. Never auto-retried, since a blind
	// retry after a successful charge risks double-charging.
	ErrPaymentNotRecorded = errors.New("payment succeeded but order recording failed")

	// ErrPaymentFailed wraps gateway errors raised before any charge.
	ErrPaymentFailed = errors.New("payment failed")
)

// ValidationError blocks a step transition and carries the offending fields
// for the UI.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Fields, ", "))
}
