// Package ordering keeps a user-editable linear order over a collection through an
// integer order field that is rewritten in one atomic batch after every reorder.
package ordering

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrBadIndex       = errors.New("reorder index out of range")
	ErrNotPermutation = errors.New("order ids are not a permutation of the collection")
	ErrMissingID      = errors.New("item has no id")
)

// Item is implemented by value types that carry an optional order.
type Item[T any] interface {
	ItemID() string
	// SortOrder is the display rank, with a missing order reading as 0.
	SortOrder() int
	// HasOrder reports whether the stored order equals idx. A missing order never does.
	HasOrder(idx int) bool
	WithOrder(idx int) T
}

// Sort returns the display order: ascending by order, missing as 0, ties kept in
// fetch order.
func Sort[T Item[T]](items []T) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		return cmp.Compare(a.SortOrder(), b.SortOrder())
	})
	return sorted
}

// Move removes the item at from and reinserts it at to, returning a new slice.
func Move[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return nil, fmt.Errorf("%w: move %d -> %d in %d items", ErrBadIndex, from, to, len(items))
	}
	moved := slices.Clone(items)
	item := moved[from]
	moved = slices.Delete(moved, from, from+1)
	moved = slices.Insert(moved, to, item)
	return moved, nil
}

// Changed reports whether any item's stored order differs from its index.
func Changed[T Item[T]](items []T) bool {
	for idx, item := range items {
		if !item.HasOrder(idx) {
			return true
		}
	}
	return false
}

// Assign returns copies with order set to their zero-based index.
func Assign[T Item[T]](items []T) []T {
	assigned := make([]T, len(items))
	for idx, item := range items {
		assigned[idx] = item.WithOrder(idx)
	}
	return assigned
}

// IDs lists item ids in sequence; every item must have one.
func IDs[T Item[T]](items []T) ([]string, error) {
	ids := make([]string, len(items))
	for idx, item := range items {
		if item.ItemID() == "" {
			return nil, fmt.Errorf("%w at index %d", ErrMissingID, idx)
		}
		ids[idx] = item.ItemID()
	}
	return ids, nil
}

// Arrange puts items into the sequence given by ids, which must name every item once.
func Arrange[T Item[T]](items []T, ids []string) ([]T, error) {
	if len(ids) != len(items) {
		return nil, fmt.Errorf("%w: got %d ids for %d items", ErrNotPermutation, len(ids), len(items))
	}
	byID := make(map[string]T, len(items))
	for _, item := range items {
		byID[item.ItemID()] = item
	}
	arranged := make([]T, 0, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown or repeated id %q", ErrNotPermutation, id)
		}
		delete(byID, id)
		arranged = append(arranged, item)
	}
	return arranged, nil
}
