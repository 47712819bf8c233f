// Package audit captures the submission engine's durable trail of
// compliance-relevant actions: sequence resets, submission outcomes, and
// retry exhaustion. Events are transport-agnostic so stores and sinks can
// fan out.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an auditable occurrence.
type Action string

const (
	ActionSequenceReset      Action = "sequence_reset"
	ActionSubmissionAccepted Action = "submission_accepted"
	ActionSubmissionRejected Action = "submission_rejected"
	ActionSubmissionErrored  Action = "submission_errored"
	ActionRetriesExhausted   Action = "submission_retries_exhausted"
	ActionSubmissionRequeued Action = "submission_requeued"
)

// Event is emitted from domain logic. Detail carries action-specific
// key/value context; keep values short and free of PHI.
type Event struct {
	Action        Action
	Timestamp     time.Time
	OrgID         string
	RecordType    string
	RecordID      string
	TransactionID string
	Actor         string
	Detail        map[string]string
}

// Store persists audit events. Implementations: in-memory (tests) and the
// PostgreSQL outbox relayed to Kafka.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// PendingEntry is an outbox row awaiting relay to the broker.
type PendingEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// Outbox is the pending-entry side of a store, consumed by the relay.
type Outbox interface {
	ListPending(ctx context.Context, limit int) ([]PendingEntry, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
}
