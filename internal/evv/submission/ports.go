package submission

import (
	"context"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Ledger persists the transaction lifecycle. Implementations must make
// Create/Update visible to ListDue immediately; the retry worker polls.
type Ledger interface {
	Create(ctx context.Context, tx *Transaction) error
	Update(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	// ListByRecord returns the transaction history for a record, newest
	// first.
	ListByRecord(ctx context.Context, recordType domain.RecordType, recordID string) ([]*Transaction, error)
	// ListDue returns retrying transactions whose NextRetryAt is at or
	// before now, ordered by priority then NextRetryAt, capped at limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Transaction, error)
	// CountByStatus reports queue depth per record type for the given
	// status.
	CountByStatus(ctx context.Context, status Status) (map[domain.RecordType]int, error)
}
