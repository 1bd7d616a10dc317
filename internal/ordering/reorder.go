package ordering

import (
	"context"
	"fmt"
)

// Collection is the remote side of a reorder: read the whole collection and commit a
// full order as one atomic batch.
type Collection[T Item[T]] interface {
	List(ctx context.Context) ([]T, error)
	ApplyOrder(ctx context.Context, ids []string) error
}

// Outcome is the optimistic post-reorder state. Written is false when the gesture left
// every stored order untouched and no batch was sent.
type Outcome[T any] struct {
	Items   []T
	Written bool
}

type Reorderer[T Item[T]] struct {
	name       string
	collection Collection[T]
	queue      *Queue
}

// NewReorderer binds a collection to a queue slot. Reorderers sharing a queue and name
// never overlap their batches.
func NewReorderer[T Item[T]](name string, collection Collection[T], queue *Queue) *Reorderer[T] {
	return &Reorderer[T]{name: name, collection: collection, queue: queue}
}

// Move applies a drag gesture from index from to index to of the display order.
func (r *Reorderer[T]) Move(ctx context.Context, from, to int) (Outcome[T], error) {
	return r.run(ctx, func(sorted []T) ([]T, error) {
		return Move(sorted, from, to)
	})
}

// SetOrder applies a complete id sequence.
func (r *Reorderer[T]) SetOrder(ctx context.Context, ids []string) (Outcome[T], error) {
	return r.run(ctx, func(sorted []T) ([]T, error) {
		return Arrange(sorted, ids)
	})
}

func (r *Reorderer[T]) run(ctx context.Context, arrange func([]T) ([]T, error)) (Outcome[T], error) {
	var outcome Outcome[T]
	err := r.queue.Do(ctx, r.name, func(ctx context.Context) error {
		items, err := r.collection.List(ctx)
		if err != nil {
			return fmt.Errorf("list %s: %w", r.name, err)
		}
		next, err := arrange(Sort(items))
		if err != nil {
			return err
		}
		if !Changed(next) {
			outcome = Outcome[T]{Items: next}
			return nil
		}
		assigned := Assign(next)
		ids, err := IDs(assigned)
		if err != nil {
			return err
		}
		if err := r.collection.ApplyOrder(ctx, ids); err != nil {
			return fmt.Errorf("apply %s order: %w", r.name, err)
		}
		outcome = Outcome[T]{Items: assigned, Written: true}
		return nil
	})
	if err != nil {
		return Outcome[T]{}, err
	}
	return outcome, nil
}
