package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/pkg/platform/sentinel"
)

func TestSequencerAppliesInOrder(t *testing.T) {
	seq := NewSequencer(NewMemoryReplaySet())
	ctx := context.Background()

	var applied []string
	for _, id := range []string{"op-1", "op-2", "op-3"} {
		id := id
		err := seq.Apply(ctx, id, func() error {
			applied = append(applied, id)
			return nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"op-1", "op-2", "op-3"}, applied)
	assert.Equal(t, uint64(3), seq.Applied())
}

func TestSequencerDropsReplayedOperations(t *testing.T) {
	seq := NewSequencer(NewMemoryReplaySet())
	ctx := context.Background()

	calls := 0
	op := func() error { calls++; return nil }

	require.NoError(t, seq.Apply(ctx, "op-1", op))
	// The duplicate is swallowed, not surfaced as an error.
	require.NoError(t, seq.Apply(ctx, "op-1", op))
	require.NoError(t, seq.Apply(ctx, "op-1", op))

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), seq.Applied())
}

// A failed operation must not consume its ID: the retry carries the same ID
// and has to actually run, not vanish as a swallowed duplicate.
func TestSequencerReleasesIDAfterFailedOperation(t *testing.T) {
	seq := NewSequencer(NewMemoryReplaySet())
	ctx := context.Background()

	failing := func() error { return sentinel.ErrUnavailable }
	err := seq.Apply(ctx, "op-1", failing)
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, uint64(0), seq.Applied())

	ran := false
	require.NoError(t, seq.Apply(ctx, "op-1", func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran, "retry after a failed attempt must apply")
	assert.Equal(t, uint64(1), seq.Applied())

	// And once it has applied, the ID is spent for good.
	require.NoError(t, seq.Apply(ctx, "op-1", func() error {
		t.Fatal("applied ID must not run again")
		return nil
	}))
}

func TestSequencerSerializesConcurrentSubmissions(t *testing.T) {
	seq := NewSequencer(NewMemoryReplaySet())
	ctx := context.Background()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = seq.Apply(ctx, "op-"+string(rune('a'+n)), func() error {
				// Unsynchronized on purpose; the sequencer's lock is the
				// only thing keeping this race-free.
				counter++
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
	assert.Equal(t, uint64(workers), seq.Applied())
}

func TestSequencerRejectsCancelledContext(t *testing.T) {
	seq := NewSequencer(NewMemoryReplaySet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := seq.Apply(ctx, "op-1", func() error {
		t.Fatal("operation must not run after cancellation")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), seq.Applied())
}

func TestMemoryReplaySet(t *testing.T) {
	set := NewMemoryReplaySet()
	ctx := context.Background()

	require.NoError(t, set.MarkApplied(ctx, "op-1"))
	require.ErrorIs(t, set.MarkApplied(ctx, "op-1"), sentinel.ErrAlreadyApplied)
	require.NoError(t, set.MarkApplied(ctx, "op-2"))

	require.NoError(t, set.Forget(ctx, "op-1"))
	require.NoError(t, set.MarkApplied(ctx, "op-1"))
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(1_700_000_000)
	assert.Equal(t, int64(1_700_000_000), clock.Now())

	clock.Advance(60)
	assert.Equal(t, int64(1_700_000_060), clock.Now())

	clock.Set(1_800_000_000)
	assert.Equal(t, int64(1_800_000_000), clock.Now())
}
