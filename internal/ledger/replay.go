package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"consentry/pkg/platform/sentinel"
)

// ReplaySet records operation IDs the ordering layer has already accepted.
// Mutations are designed idempotent regardless, so replay protection is a
// cheap short-circuit and an audit-noise reducer, not a correctness
// requirement.
type ReplaySet interface {
	// MarkApplied records the ID. Returns sentinel.ErrAlreadyApplied when
	// the ID was seen before.
	MarkApplied(ctx context.Context, opID string) error

	// Forget releases an ID whose operation never applied, so a retry under
	// the same ID is admitted again.
	Forget(ctx context.Context, opID string) error
}

// MemoryReplaySet keeps seen IDs in process. Suitable for tests and
// single-instance deployments.
type MemoryReplaySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryReplaySet() *MemoryReplaySet {
	return &MemoryReplaySet{seen: make(map[string]struct{})}
}

func (s *MemoryReplaySet) MarkApplied(_ context.Context, opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[opID]; ok {
		return sentinel.ErrAlreadyApplied
	}
	s.seen[opID] = struct{}{}
	return nil
}

func (s *MemoryReplaySet) Forget(_ context.Context, opID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, opID)
	return nil
}

// RedisReplaySet shares seen IDs across instances. Entries expire after the
// retention window; a replay older than that falls through to the
// idempotent mutation path.
type RedisReplaySet struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisReplaySet wraps an existing redis client. retention bounds how
// long IDs are remembered; zero defaults to 24 hours.
func NewRedisReplaySet(client *redis.Client, retention time.Duration) *RedisReplaySet {
	if retention == 0 {
		retention = 24 * time.Hour
	}
	return &RedisReplaySet{client: client, retention: retention}
}

func (s *RedisReplaySet) MarkApplied(ctx context.Context, opID string) error {
	ok, err := s.client.SetNX(ctx, "ledger:op:"+opID, 1, s.retention).Result()
	if err != nil {
		return sentinel.ErrUnavailable
	}
	if !ok {
		return sentinel.ErrAlreadyApplied
	}
	return nil
}

func (s *RedisReplaySet) Forget(ctx context.Context, opID string) error {
	if err := s.client.Del(ctx, "ledger:op:"+opID).Err(); err != nil {
		return sentinel.ErrUnavailable
	}
	return nil
}
