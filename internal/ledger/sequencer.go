package ledger

import (
	"context"
	"errors"
	"sync"

	"consentry/pkg/platform/sentinel"
)

// Sequencer imposes the ledger's total order locally: submitted operations
// apply strictly one at a time, in whatever order they reach the lock. There
// is no in-flight state to protect, no blocking beyond the lock handoff, and
// no cancellation once an operation starts applying; a caller's only undo is
// a subsequent compensating operation.
type Sequencer struct {
	mu     sync.Mutex
	replay ReplaySet
	seq    uint64
}

// NewSequencer builds a sequencer over the given replay set.
func NewSequencer(replay ReplaySet) *Sequencer {
	return &Sequencer{replay: replay}
}

// Apply runs op under the total order. Duplicate operation IDs are dropped
// silently: resubmission, deliberate or accidental, must not corrupt state
// and must not surface as a caller-visible failure. An ID only counts as
// applied once its operation succeeds; a failed operation releases the ID so
// the caller can retry with it.
//
// The context is checked before the operation enters the order; once
// admitted, the operation runs to completion.
func (s *Sequencer) Apply(ctx context.Context, opID string, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replay.MarkApplied(ctx, opID); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyApplied) {
			return nil
		}
		return err
	}

	if err := op(); err != nil {
		// Release the ID; the operation left no state behind. If the
		// release itself fails the set is unreachable, and the retry will
		// surface that from MarkApplied rather than being dropped.
		_ = s.replay.Forget(ctx, opID)
		return err
	}

	s.seq++
	return nil
}

// Applied returns the count of operations applied so far. Diagnostic only.
func (s *Sequencer) Applied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
