package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/submission"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// InMemoryLedger implements submission.Ledger behind a mutex. Suitable for
// tests and single-process dev mode; production uses the PostgreSQL ledger.
type InMemoryLedger struct {
	mu           sync.Mutex
	transactions map[string]*submission.Transaction
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{transactions: make(map[string]*submission.Transaction)}
}

func (l *InMemoryLedger) Create(_ context.Context, tx *submission.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.transactions[tx.ID]; exists {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "transaction %s already exists", tx.ID)
	}
	clone := *tx
	l.transactions[tx.ID] = &clone
	return nil
}

func (l *InMemoryLedger) Update(_ context.Context, tx *submission.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.transactions[tx.ID]; !exists {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "transaction %s not found", tx.ID)
	}
	clone := *tx
	l.transactions[tx.ID] = &clone
	return nil
}

func (l *InMemoryLedger) Get(_ context.Context, id string) (*submission.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, exists := l.transactions[id]
	if !exists {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "transaction %s not found", id)
	}
	clone := *tx
	return &clone, nil
}

func (l *InMemoryLedger) ListByRecord(_ context.Context, recordType domain.RecordType, recordID string) ([]*submission.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*submission.Transaction
	for _, tx := range l.transactions {
		if tx.RecordType == recordType && tx.RecordID == recordID {
			clone := *tx
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *InMemoryLedger) ListDue(_ context.Context, now time.Time, limit int) ([]*submission.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []*submission.Transaction
	for _, tx := range l.transactions {
		if tx.Status == submission.StatusRetrying && !tx.NextRetryAt.After(now) {
			clone := *tx
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return priorityRank(due[i].Priority) < priorityRank(due[j].Priority)
		}
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (l *InMemoryLedger) CountByStatus(_ context.Context, status submission.Status) (map[domain.RecordType]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[domain.RecordType]int)
	for _, tx := range l.transactions {
		if tx.Status == status {
			counts[tx.RecordType]++
		}
	}
	return counts, nil
}

func priorityRank(p submission.Priority) int {
	switch p {
	case submission.PriorityUrgent:
		return 0
	case submission.PriorityHigh:
		return 1
	default:
		return 2
	}
}
