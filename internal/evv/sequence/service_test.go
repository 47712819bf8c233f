package sequence_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/sequence"
	"github.com/KaripeHS/serenity-sub009/internal/evv/sequence/store/memory"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
	auditmem "github.com/KaripeHS/serenity-sub009/pkg/platform/audit/store/memory"
)

const testOrg = domain.OrgID("org-1")

func newAllocator(t *testing.T) (*sequence.Allocator, *auditmem.InMemoryStore) {
	t.Helper()
	auditStore := auditmem.NewInMemoryStore()
	alloc, err := sequence.New(memory.NewInMemoryStore(),
		sequence.WithAuditPublisher(audit.NewPublisher(auditStore)),
	)
	require.NoError(t, err)
	return alloc, auditStore
}

func TestAllocator_StrictlyIncreasing(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 50; i++ {
		next, err := alloc.NextSequence(ctx, testOrg, domain.RecordTypeVisit)
		require.NoError(t, err)
		assert.Greater(t, next, last)
		last = next
	}

	current, err := alloc.CurrentSequence(ctx, testOrg, domain.RecordTypeVisit)
	require.NoError(t, err)
	assert.Equal(t, last, current)
}

func TestAllocator_IndependentPerTuple(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	v, err := alloc.NextSequence(ctx, testOrg, domain.RecordTypeVisit)
	require.NoError(t, err)
	p, err := alloc.NextSequence(ctx, testOrg, domain.RecordTypePatient)
	require.NoError(t, err)
	o, err := alloc.NextSequence(ctx, domain.OrgID("org-2"), domain.RecordTypeVisit)
	require.NoError(t, err)

	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(1), p, "record types number independently")
	assert.Equal(t, int64(1), o, "organizations number independently")
}

func TestAllocator_CurrentIsZeroWhenUninitialized(t *testing.T) {
	alloc, _ := newAllocator(t)
	current, err := alloc.CurrentSequence(context.Background(), testOrg, domain.RecordTypeStaff)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current)
}

func TestAllocator_ConcurrentNextNoDuplicates(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	const goroutines = 50
	const perGoroutine = 20

	results := make(chan int64, goroutines*perGoroutine)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				next, err := alloc.NextSequence(ctx, testOrg, domain.RecordTypeVisit)
				assert.NoError(t, err)
				results <- next
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make([]int64, 0, goroutines*perGoroutine)
	for v := range results {
		seen = append(seen, v)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, v := range seen {
		require.Equal(t, int64(i+1), v, "no duplicate or skipped sequence values")
	}
}

func TestAllocator_ResetIsAudited(t *testing.T) {
	alloc, auditStore := newAllocator(t)
	ctx := context.Background()

	_, err := alloc.NextSequence(ctx, testOrg, domain.RecordTypeVisit)
	require.NoError(t, err)

	require.NoError(t, alloc.Reset(ctx, testOrg, domain.RecordTypeVisit, 0, "migration-test"))

	current, err := alloc.CurrentSequence(ctx, testOrg, domain.RecordTypeVisit)
	require.NoError(t, err)
	assert.Equal(t, int64(0), current)

	events, err := auditStore.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionSequenceReset, events[0].Action)
	assert.Equal(t, "migration-test", events[0].Actor)
	assert.Equal(t, "1", events[0].Detail["previous"])
}

func TestAllocator_ResetRejectsNegative(t *testing.T) {
	alloc, _ := newAllocator(t)
	err := alloc.Reset(context.Background(), testOrg, domain.RecordTypeVisit, -1, "test")
	assert.Error(t, err)
}

func TestAllocator_RecordSequencePointers(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	got, err := alloc.RecordSequence(ctx, domain.RecordTypePatient, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got, "unsubmitted record has no pointer")

	require.NoError(t, alloc.SetRecordSequence(ctx, domain.RecordTypePatient, "patient-1", 7))
	got, err = alloc.RecordSequence(ctx, domain.RecordTypePatient, "patient-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)

	assert.Error(t, alloc.SetRecordSequence(ctx, domain.RecordTypePatient, "patient-1", 0))
	assert.Error(t, alloc.SetRecordSequence(ctx, domain.RecordTypePatient, "", 3))
}

func TestAllocator_ValidatesTuple(t *testing.T) {
	alloc, _ := newAllocator(t)
	ctx := context.Background()

	_, err := alloc.NextSequence(ctx, "", domain.RecordTypeVisit)
	assert.Error(t, err)
	_, err = alloc.NextSequence(ctx, testOrg, domain.RecordType("invoice"))
	assert.Error(t, err)
}
