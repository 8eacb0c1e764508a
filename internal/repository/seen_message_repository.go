package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "intake:seen:"

// SeenMessageRepository remembers which mailbox messages were already
// handed to the pipeline.
type SeenMessageRepository interface {
	// MarkSeen records id and reports whether this was the first sighting.
	MarkSeen(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type redisSeenMessageRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeenMessageRepository builds the Redis-backed set; keys expire after ttl.
func NewSeenMessageRepository(client *redis.Client, ttl time.Duration) SeenMessageRepository {
	return &redisSeenMessageRepository{client: client, ttl: ttl}
}

func (r *redisSeenMessageRepository) MarkSeen(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, seenKeyPrefix+id, time.Now().Unix(), r.ttl).Result()
}

func (r *redisSeenMessageRepository) Forget(ctx context.Context, id string) error {
	return r.client.Del(ctx, seenKeyPrefix+id).Err()
}

type memorySeenMessageRepository struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time
}

// NewMemorySeenMessageRepository is the single-process fallback when Redis
// is not configured.
func NewMemorySeenMessageRepository(ttl time.Duration, now func() time.Time) SeenMessageRepository {
	if now == nil {
		now = time.Now
	}
	return &memorySeenMessageRepository{ttl: ttl, now: now, seen: make(map[string]time.Time)}
}

func (r *memorySeenMessageRepository) MarkSeen(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for k, at := range r.seen {
		if r.ttl > 0 && now.Sub(at) > r.ttl {
			delete(r.seen, k)
		}
	}
	if _, ok := r.seen[id]; ok {
		return false, nil
	}
	r.seen[id] = now
	return true, nil
}

func (r *memorySeenMessageRepository) Forget(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, id)
	return nil
}
