package sequence

import (
	"context"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Store persists per-(org, record type) counters and per-record pointers.
//
// Next must be atomic at the storage layer: an increment-and-return, never a
// read-then-write, so concurrent workers can never observe a duplicate.
type Store interface {
	// Next atomically increments and returns the counter for the tuple,
	// creating it at 1 on first use.
	Next(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error)

	// Current returns the counter without mutating it; 0 if uninitialized.
	Current(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error)

	// Reset forces the counter to value. Migration/test use only; callers go
	// through Allocator.Reset so the operation is logged and audited.
	Reset(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType, value int64) error

	// RecordSequence returns the sequence last assigned to a domain record,
	// 0 if the record has never been submitted.
	RecordSequence(ctx context.Context, recordType domain.RecordType, recordID string) (int64, error)

	// SetRecordSequence stores the sequence assigned to a domain record.
	SetRecordSequence(ctx context.Context, recordType domain.RecordType, recordID string, value int64) error
}
