// Package submission orchestrates the full submission lifecycle: pre-flight
// validation, payload build, transmission, and the retry ledger.
package submission

import (
	"encoding/json"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Status is the lifecycle state of a submission transaction.
type Status string

const (
	// StatusPending is the initial state before the first transmit attempt.
	StatusPending Status = "pending"
	// StatusAccepted means the aggregator acknowledged the record.
	StatusAccepted Status = "accepted"
	// StatusRejected means the aggregator refused the record on business
	// grounds. Terminal; replaying the same payload cannot succeed.
	StatusRejected Status = "rejected"
	// StatusError means the last attempt failed for a system-level reason.
	StatusError Status = "error"
	// StatusRetrying means the transaction is queued for another attempt.
	StatusRetrying Status = "retrying"
)

// IsTerminal reports whether no further attempts will be made.
func (s Status) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Priority orders the retry queue. Visits are urgent by default since
// submission deadlines are regulatory.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Transaction is one submission attempt chain for one record version. The
// request snapshot is immutable after creation: retries replay it verbatim
// so the aggregator sees the identical payload on every attempt.
type Transaction struct {
	ID          string
	OrgID       domain.OrgID
	RecordType  domain.RecordType
	RecordID    string
	SequenceID  int64
	Status      Status
	Priority    Priority
	Attempts    int
	MaxAttempts int
	// NextRetryAt is zero unless Status is StatusRetrying.
	NextRetryAt time.Time
	LastError   string
	// ExternalID is the aggregator's transaction identifier, set on any
	// response that carried one.
	ExternalID string
	HTTPStatus int
	Request    json.RawMessage
	Response   json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExhaustedRetries reports whether the attempt budget is spent.
func (t *Transaction) ExhaustedRetries() bool {
	return t.Attempts >= t.MaxAttempts
}

// markAccepted records a successful acknowledgement.
func (t *Transaction) markAccepted(externalID string, httpStatus int, response json.RawMessage, now time.Time) {
	t.Status = StatusAccepted
	t.ExternalID = externalID
	t.HTTPStatus = httpStatus
	t.Response = response
	t.NextRetryAt = time.Time{}
	t.LastError = ""
	t.UpdatedAt = now
}

// markRejected records a terminal business rejection.
func (t *Transaction) markRejected(externalID string, httpStatus int, response json.RawMessage, now time.Time) {
	t.Status = StatusRejected
	t.ExternalID = externalID
	t.HTTPStatus = httpStatus
	t.Response = response
	t.NextRetryAt = time.Time{}
	t.UpdatedAt = now
}

// markFailed records a system-level failure, scheduling a retry when budget
// remains and a next-retry time is supplied.
func (t *Transaction) markFailed(errMsg string, httpStatus int, nextRetryAt time.Time, now time.Time) {
	t.LastError = errMsg
	t.HTTPStatus = httpStatus
	t.UpdatedAt = now
	if !nextRetryAt.IsZero() && !t.ExhaustedRetries() {
		t.Status = StatusRetrying
		t.NextRetryAt = nextRetryAt
		return
	}
	t.Status = StatusError
	t.NextRetryAt = time.Time{}
}
