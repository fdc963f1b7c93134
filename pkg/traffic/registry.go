package traffic

import (
	"context"
	"math/rand"
	"sync"
)

// DefaultRegistryCapacity bounds how many created ids are remembered.
const DefaultRegistryCapacity = 50

// Registry remembers the ids of entities the generator created and believes
// still exist on the target. Implementations evict the oldest id once
// capacity is exceeded.
type Registry interface {
	Add(ctx context.Context, id int64) error
	// Remove drops the first occurrence of id and reports whether it was present.
	Remove(ctx context.Context, id int64) (bool, error)
	// Pick returns a uniformly random id; ok is false when empty.
	Pick(ctx context.Context, rng *rand.Rand) (id int64, ok bool, err error)
	// IDs returns the ids oldest first.
	IDs(ctx context.Context) ([]int64, error)
	Len(ctx context.Context) (int, error)
}

// MemoryRegistry is a bounded FIFO of ids held in process memory.
//
// The scheduler is its only writer; the mutex exists for readers such as
// the status server.
type MemoryRegistry struct {
	mu       sync.Mutex
	capacity int
	ids      []int64
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry returns an empty registry. capacity < 1 means
// DefaultRegistryCapacity.
func NewMemoryRegistry(capacity int) *MemoryRegistry {
	if capacity < 1 {
		capacity = DefaultRegistryCapacity
	}
	return &MemoryRegistry{capacity: capacity, ids: make([]int64, 0, capacity+1)}
}

// Capacity returns the configured bound.
func (r *MemoryRegistry) Capacity() int { return r.capacity }

func (r *MemoryRegistry) Add(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = append(r.ids, id)
	if over := len(r.ids) - r.capacity; over > 0 {
		// Shift rather than reslice so the backing array does not grow forever.
		copy(r.ids, r.ids[over:])
		r.ids = r.ids[:r.capacity]
	}
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, v := range r.ids {
		if v == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRegistry) Pick(_ context.Context, rng *rand.Rand) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ids) == 0 {
		return 0, false, nil
	}
	return r.ids[rng.Intn(len(r.ids))], true, nil
}

func (r *MemoryRegistry) IDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, len(r.ids))
	copy(out, r.ids)
	return out, nil
}

func (r *MemoryRegistry) Len(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids), nil
}
