//go:build integration

package postgres

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/pkg/testutil/containers"
)

func TestStore_Integration(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := New(pg.DB)
	ctx := context.Background()

	t.Run("next is strictly increasing", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "sequence_counters"))
		var prev int64
		for i := 0; i < 10; i++ {
			next, err := store.Next(ctx, "org-1", domain.RecordTypeVisit)
			require.NoError(t, err)
			assert.Greater(t, next, prev)
			prev = next
		}
	})

	t.Run("concurrent allocations never collide", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "sequence_counters"))

		const goroutines = 20
		const perGoroutine = 10
		var (
			mu     sync.Mutex
			values []int64
			wg     sync.WaitGroup
		)
		for g := 0; g < goroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perGoroutine; i++ {
					v, err := store.Next(ctx, "org-1", domain.RecordTypePatient)
					if err != nil {
						t.Error(err)
						return
					}
					mu.Lock()
					values = append(values, v)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
		require.Len(t, values, goroutines*perGoroutine)
		for i, v := range values {
			assert.Equal(t, int64(i+1), v, "no gaps, no duplicates")
		}
	})

	t.Run("tuples are independent", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "sequence_counters"))

		v1, err := store.Next(ctx, "org-1", domain.RecordTypeVisit)
		require.NoError(t, err)
		v2, err := store.Next(ctx, "org-2", domain.RecordTypeVisit)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v1)
		assert.Equal(t, int64(1), v2)
	})

	t.Run("current reads without mutating", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "sequence_counters"))

		current, err := store.Current(ctx, "org-1", domain.RecordTypeStaff)
		require.NoError(t, err)
		assert.Zero(t, current, "uninitialized tuple reads zero")

		_, err = store.Next(ctx, "org-1", domain.RecordTypeStaff)
		require.NoError(t, err)
		current, err = store.Current(ctx, "org-1", domain.RecordTypeStaff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), current)
	})

	t.Run("reset forces the counter", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "sequence_counters"))

		require.NoError(t, store.Reset(ctx, "org-1", domain.RecordTypeVisit, 100))
		next, err := store.Next(ctx, "org-1", domain.RecordTypeVisit)
		require.NoError(t, err)
		assert.Equal(t, int64(101), next)
	})

	t.Run("record sequence pointers round-trip", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx, "record_sequences"))

		value, err := store.RecordSequence(ctx, domain.RecordTypeVisit, "visit-1")
		require.NoError(t, err)
		assert.Zero(t, value, "unsubmitted record reads zero")

		require.NoError(t, store.SetRecordSequence(ctx, domain.RecordTypeVisit, "visit-1", 42))
		value, err = store.RecordSequence(ctx, domain.RecordTypeVisit, "visit-1")
		require.NoError(t, err)
		assert.Equal(t, int64(42), value)

		require.NoError(t, store.SetRecordSequence(ctx, domain.RecordTypeVisit, "visit-1", 43))
		value, err = store.RecordSequence(ctx, domain.RecordTypeVisit, "visit-1")
		require.NoError(t, err)
		assert.Equal(t, int64(43), value, "upsert overwrites")
	})
}
