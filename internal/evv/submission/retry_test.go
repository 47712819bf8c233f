package submission_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/submission"
	ledgermemory "github.com/KaripeHS/serenity-sub009/internal/evv/submission/store/memory"
	"github.com/KaripeHS/serenity-sub009/internal/evv/transport"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
	auditmemory "github.com/KaripeHS/serenity-sub009/pkg/platform/audit/store/memory"
)

func retryingTransaction(id string, attempts int) *submission.Transaction {
	now := time.Now()
	return &submission.Transaction{
		ID:          id,
		OrgID:       "org-1",
		RecordType:  domain.RecordTypeVisit,
		RecordID:    "visit-" + id,
		SequenceID:  7,
		Status:      submission.StatusRetrying,
		Priority:    submission.PriorityUrgent,
		Attempts:    attempts,
		MaxAttempts: 3,
		NextRetryAt: now.Add(-time.Minute),
		Request:     json.RawMessage(`{"VisitOtherID":"K"}`),
		CreatedAt:   now.Add(-time.Hour),
		UpdatedAt:   now.Add(-time.Minute),
	}
}

func newWorker(t *testing.T, ledger submission.Ledger, client submission.Client, store *auditmemory.InMemoryStore) *submission.Worker {
	t.Helper()
	worker, err := submission.NewWorker(
		submission.DefaultWorkerConfig(),
		submission.DefaultConfig(),
		ledger,
		client,
		submission.WorkerWithAuditPublisher(audit.NewPublisher(store)),
	)
	require.NoError(t, err)
	return worker
}

func TestDrainDue_SuccessfulRetryAccepts(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()
	require.NoError(t, ledger.Create(ctx, retryingTransaction("t1", 1)))

	client := &fakeClient{respond: accepted("ext-7")}
	auditStore := auditmemory.NewInMemoryStore()
	worker := newWorker(t, ledger, client, auditStore)

	require.NoError(t, worker.DrainDue(ctx))

	tx, err := ledger.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusAccepted, tx.Status)
	assert.Equal(t, 2, tx.Attempts)
	assert.Equal(t, "ext-7", tx.ExternalID)
	assert.Equal(t, 1, client.callCount())
	assert.Contains(t, auditActions(auditStore), audit.ActionSubmissionAccepted)
}

func TestDrainDue_TransientFailureReschedules(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()
	require.NoError(t, ledger.Create(ctx, retryingTransaction("t1", 1)))

	client := &fakeClient{respond: func() (*transport.Result, error) {
		return &transport.Result{HTTPStatus: http.StatusBadGateway},
			pkgerrors.New(pkgerrors.CodeTransient, "aggregator returned 502")
	}}
	worker := newWorker(t, ledger, client, auditmemory.NewInMemoryStore())

	require.NoError(t, worker.DrainDue(ctx))

	tx, err := ledger.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusRetrying, tx.Status)
	assert.Equal(t, 2, tx.Attempts)
	assert.True(t, tx.NextRetryAt.After(time.Now()), "rescheduled into the future")
}

func TestDrainDue_ExhaustionIsAuditedAndTerminal(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()
	// Attempt 2 of 3: the next failure spends the budget.
	require.NoError(t, ledger.Create(ctx, retryingTransaction("t1", 2)))

	client := &fakeClient{respond: func() (*transport.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodeTransient, "timeout")
	}}
	auditStore := auditmemory.NewInMemoryStore()
	worker := newWorker(t, ledger, client, auditStore)

	require.NoError(t, worker.DrainDue(ctx))

	tx, err := ledger.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusError, tx.Status)
	assert.Equal(t, 3, tx.Attempts)
	assert.True(t, tx.ExhaustedRetries())
	assert.Contains(t, auditActions(auditStore), audit.ActionRetriesExhausted)
}

func TestDrainDue_SameRecordReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()

	older := retryingTransaction("t1", 1)
	older.RecordID = "visit-shared"
	older.NextRetryAt = time.Now().Add(-2 * time.Minute)
	newer := retryingTransaction("t2", 1)
	newer.RecordID = "visit-shared"
	newer.NextRetryAt = time.Now().Add(-time.Minute)
	require.NoError(t, ledger.Create(ctx, older))
	require.NoError(t, ledger.Create(ctx, newer))

	client := &fakeClient{respond: accepted("ext")}
	worker := newWorker(t, ledger, client, auditmemory.NewInMemoryStore())

	require.NoError(t, worker.DrainDue(ctx))
	assert.Equal(t, 2, client.callCount())

	for _, id := range []string{"t1", "t2"} {
		tx, err := ledger.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, submission.StatusAccepted, tx.Status)
	}
}

func TestDrainDue_FutureTransactionsUntouched(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()
	future := retryingTransaction("t1", 1)
	future.NextRetryAt = time.Now().Add(time.Hour)
	require.NoError(t, ledger.Create(ctx, future))

	client := &fakeClient{respond: accepted("ext")}
	worker := newWorker(t, ledger, client, auditmemory.NewInMemoryStore())

	require.NoError(t, worker.DrainDue(ctx))
	assert.Zero(t, client.callCount())
}

func TestRequeue_OnlyErroredTransactions(t *testing.T) {
	ctx := context.Background()
	ledger := ledgermemory.NewInMemoryLedger()

	errored := retryingTransaction("t1", 3)
	errored.Status = submission.StatusError
	errored.NextRetryAt = time.Time{}
	require.NoError(t, ledger.Create(ctx, errored))

	acceptedTx := retryingTransaction("t2", 1)
	acceptedTx.Status = submission.StatusAccepted
	require.NoError(t, ledger.Create(ctx, acceptedTx))

	auditStore := auditmemory.NewInMemoryStore()
	worker := newWorker(t, ledger, &fakeClient{respond: accepted("ext")}, auditStore)

	require.NoError(t, worker.Requeue(ctx, "t1", "ops@example.com"))
	tx, err := ledger.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusRetrying, tx.Status)
	assert.Zero(t, tx.Attempts, "requeue restores the full budget")
	assert.Contains(t, auditActions(auditStore), audit.ActionSubmissionRequeued)

	err = worker.Requeue(ctx, "t2", "ops@example.com")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))
}
