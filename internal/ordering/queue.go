package ordering

import (
	"context"
	"sync"
)

// Queue serialises work per collection: at most one batch is in flight for a given
// key. Waiters are admitted in no particular order, so fn must read current state
// rather than rely on what an earlier caller saw.
type Queue struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewQueue() *Queue {
	return &Queue{slots: make(map[string]chan struct{})}
}

func (q *Queue) slot(key string) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	slot, ok := q.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		q.slots[key] = slot
	}
	return slot
}

// Do runs fn once the key's slot is free. A caller whose context ends while waiting
// returns ctx.Err() without running fn.
func (q *Queue) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	slot := q.slot(key)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot }()
	return fn(ctx)
}
