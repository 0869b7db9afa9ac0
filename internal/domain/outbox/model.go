package outbox

import (
	"errors"
	"time"
)

// Status constants for outbox entry lifecycle.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// ActionTypeDonationReceipt sends a thank-you receipt to a donor.
const ActionTypeDonationReceipt = "donation_receipt"

// DefaultMaxAttempts applies when an entry is created without one.
const DefaultMaxAttempts = 5

// Domain errors.
var (
	ErrEmptyActionType = errors.New("action type is required")
	ErrEmptyPayload    = errors.New("payload is required")
	ErrMissingCreated  = errors.New("created_at must be set")
)

// Entry is an external action waiting to be delivered or retried.
type Entry struct {
	ID              string    `json:"id"`
	ActionType      string    `json:"action_type"`
	Payload         string    `json:"payload"` // JSON
	Status          string    `json:"status"`
	Attempts        int       `json:"attempts"`
	MaxAttempts     int       `json:"max_attempts"`
	LastAttemptedAt time.Time `json:"last_attempted_at"`
	CreatedAt       time.Time `json:"created_at"`
	ExternalID      string    `json:"external_id,omitempty"` // provider message ID once delivered
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// Validate checks that the Entry has valid data and fills in MaxAttempts.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if e.ActionType == "" {
		return ErrEmptyActionType
	}
	if e.Payload == "" {
		return ErrEmptyPayload
	}
	if e.CreatedAt.IsZero() {
		return ErrMissingCreated
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// CanRetry returns true for pending, retrying or failed entries under the attempt cap.
func (e *Entry) CanRetry() bool {
	switch e.Status {
	case StatusPending, StatusRetrying, StatusFailed:
		return e.Attempts < e.MaxAttempts
	}
	return false
}

// IsTerminal returns true once the entry will not be attempted again.
func (e *Entry) IsTerminal() bool {
	return e.Status == StatusDone || e.Status == StatusAbandoned ||
		(e.Status == StatusFailed && e.Attempts >= e.MaxAttempts)
}

// DueAt returns when the next attempt may run.
func (e *Entry) DueAt(baseDelay, maxDelay time.Duration) time.Time {
	if e.Attempts == 0 {
		return e.CreatedAt
	}
	return e.LastAttemptedAt.Add(e.NextRetryDelay(baseDelay, maxDelay))
}

// MarkAttempt records an attempt at now.
// POST: Attempts incremented, status set to retrying
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// MarkSuccess marks the entry delivered.
func (e *Entry) MarkSuccess(externalID string) {
	e.Status = StatusDone
	e.ExternalID = externalID
	e.ErrorMessage = ""
}

// MarkFailed records err and moves the entry to failed once attempts are exhausted.
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}

// MarkAbandoned marks the entry as abandoned by an admin.
func (e *Entry) MarkAbandoned() {
	e.Status = StatusAbandoned
}

// NextRetryDelay is 2^attempts * baseDelay, capped at maxDelay.
func (e *Entry) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	if e.Attempts >= 30 {
		return maxDelay
	}
	delay := baseDelay * (1 << e.Attempts)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
