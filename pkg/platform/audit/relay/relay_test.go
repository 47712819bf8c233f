package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

type fakeOutbox struct {
	mu        sync.Mutex
	entries   []audit.PendingEntry
	published map[uuid.UUID]bool
}

func newFakeOutbox(entries ...audit.PendingEntry) *fakeOutbox {
	return &fakeOutbox{entries: entries, published: make(map[uuid.UUID]bool)}
}

func (f *fakeOutbox) ListPending(_ context.Context, limit int) ([]audit.PendingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []audit.PendingEntry
	for _, e := range f.entries {
		if f.published[e.ID] {
			continue
		}
		pending = append(pending, e)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[id] = true
	return nil
}

func (f *fakeOutbox) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func pendingEntry(aggregateID string) audit.PendingEntry {
	return audit.PendingEntry{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   "submission_accepted",
		Payload:     []byte(`{"Action":"submission_accepted"}`),
	}
}

func newTestRelay(outbox audit.Outbox, produce func(context.Context, *kgo.Record) error) *Relay {
	return &Relay{
		outbox:    outbox,
		produce:   produce,
		topic:     "audit.test",
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
}

func TestDrainOnce_PublishesAndMarks(t *testing.T) {
	outbox := newFakeOutbox(pendingEntry("visit-1"), pendingEntry("visit-2"))

	var produced []*kgo.Record
	r := newTestRelay(outbox, func(_ context.Context, rec *kgo.Record) error {
		produced = append(produced, rec)
		return nil
	})

	require.NoError(t, r.drainOnce(context.Background()))

	require.Len(t, produced, 2)
	assert.Equal(t, "audit.test", produced[0].Topic)
	assert.Equal(t, []byte("visit-1"), produced[0].Key, "records are keyed by aggregate for ordering")
	assert.JSONEq(t, `{"Action":"submission_accepted"}`, string(produced[0].Value))
	assert.Equal(t, 2, outbox.publishedCount())

	// A second pass finds nothing left to publish.
	require.NoError(t, r.drainOnce(context.Background()))
	assert.Len(t, produced, 2)
}

func TestDrainOnce_ProduceFailureLeavesEntryPending(t *testing.T) {
	outbox := newFakeOutbox(pendingEntry("visit-1"))

	r := newTestRelay(outbox, func(context.Context, *kgo.Record) error {
		return errors.New("broker unavailable")
	})

	require.Error(t, r.drainOnce(context.Background()))
	assert.Zero(t, outbox.publishedCount(), "unacked entries stay in the outbox")

	// The broker recovers and the same entry is delivered.
	r.produce = func(context.Context, *kgo.Record) error { return nil }
	require.NoError(t, r.drainOnce(context.Background()))
	assert.Equal(t, 1, outbox.publishedCount())
}

func TestDrainOnce_HonorsBatchSize(t *testing.T) {
	outbox := newFakeOutbox(pendingEntry("a"), pendingEntry("b"), pendingEntry("c"))

	var produced int
	r := newTestRelay(outbox, func(context.Context, *kgo.Record) error {
		produced++
		return nil
	})
	r.batchSize = 2

	require.NoError(t, r.drainOnce(context.Background()))
	assert.Equal(t, 2, produced)

	require.NoError(t, r.drainOnce(context.Background()))
	assert.Equal(t, 3, produced)
}
