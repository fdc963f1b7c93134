package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

// DefaultKey is the list holding the shared registry.
const DefaultKey = "trafficgen:registry"

// pickAttempts bounds retries when another generator shrinks the list
// between LLEN and LINDEX.
const pickAttempts = 3

// Registry is a traffic.Registry backed by a redis list, so several
// generators can share delete targets and the ids survive restarts.
type Registry struct {
	client   redis.UniversalClient
	key      string
	capacity int
}

var _ traffic.Registry = (*Registry)(nil)

// NewRegistry returns a registry stored under key. capacity < 1 means
// traffic.DefaultRegistryCapacity.
func NewRegistry(client redis.UniversalClient, key string, capacity int) *Registry {
	if key == "" {
		key = DefaultKey
	}
	if capacity < 1 {
		capacity = traffic.DefaultRegistryCapacity
	}
	return &Registry{client: client, key: key, capacity: capacity}
}

// Add appends id and trims the list to the newest capacity entries.
func (r *Registry) Add(ctx context.Context, id int64) error {
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.key, id)
	pipe.LTrim(ctx, r.key, int64(-r.capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add %d to %s: %w", id, r.key, err)
	}
	return nil
}

func (r *Registry) Remove(ctx context.Context, id int64) (bool, error) {
	n, err := r.client.LRem(ctx, r.key, 1, id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove %d from %s: %w", id, r.key, err)
	}
	return n > 0, nil
}

func (r *Registry) Pick(ctx context.Context, rng *rand.Rand) (int64, bool, error) {
	for attempt := 0; attempt < pickAttempts; attempt++ {
		n, err := r.client.LLen(ctx, r.key).Result()
		if err != nil {
			return 0, false, fmt.Errorf("failed to LLEN %s: %w", r.key, err)
		}
		if n == 0 {
			return 0, false, nil
		}

		raw, err := r.client.LIndex(ctx, r.key, rng.Int63n(n)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to LINDEX %s: %w", r.key, err)
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("corrupt registry entry %q: %w", raw, err)
		}
		return id, true, nil
	}
	return 0, false, nil
}

func (r *Registry) IDs(ctx context.Context) ([]int64, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to LRANGE %s: %w", r.key, err)
	}

	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt registry entry %q: %w", v, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *Registry) Len(ctx context.Context) (int, error) {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to LLEN %s: %w", r.key, err)
	}
	return int(n), nil
}

// Clear drops the whole registry.
func (r *Registry) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear %s: %w", r.key, err)
	}
	return nil
}
