package ordering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbsfolio/api/internal/content"
)

type fakeCollection struct {
	mu       sync.Mutex
	items    []content.PortfolioEntry
	batches  [][]string
	applyErr error
	// applyDelay holds ApplyOrder open so overlapping reorders would be visible.
	applyDelay time.Duration
	inFlight   int
	maxFlight  int
}

func (f *fakeCollection) List(context.Context) ([]content.PortfolioEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]content.PortfolioEntry, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeCollection) ApplyOrder(_ context.Context, ids []string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.applyDelay > 0 {
		time.Sleep(f.applyDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.applyErr != nil {
		return f.applyErr
	}
	f.batches = append(f.batches, append([]string(nil), ids...))
	for i := range f.items {
		for idx, id := range ids {
			if f.items[i].ID == id {
				f.items[i].Order = intPtr(idx)
			}
		}
	}
	return nil
}

func TestReorderDragPortfolioEntryToFront(t *testing.T) {
	coll := &fakeCollection{items: entries("e0", "e1", "e2", "e3", "e4")}
	r := NewReorderer[content.PortfolioEntry](content.CollectionPortfolio, coll, NewQueue())

	outcome, err := r.Move(context.Background(), 2, 0)
	require.NoError(t, err)

	assert.True(t, outcome.Written)
	require.Len(t, coll.batches, 1)
	assert.Len(t, coll.batches[0], 5, "batch must carry exactly one update per entry")
	assert.Equal(t, []string{"e2", "e0", "e1", "e3", "e4"}, coll.batches[0])

	byID := map[string]int{}
	for _, item := range outcome.Items {
		byID[item.ID] = *item.Order
	}
	assert.Equal(t, 0, byID["e2"])
	assert.Equal(t, 1, byID["e0"])
	assert.Equal(t, 2, byID["e1"])
}

func TestReorderNoopDropSkipsWrite(t *testing.T) {
	coll := &fakeCollection{items: entries("a", "b", "c")}
	r := NewReorderer[content.PortfolioEntry]("portfolio", coll, NewQueue())

	outcome, err := r.Move(context.Background(), 1, 1)
	require.NoError(t, err)

	assert.False(t, outcome.Written)
	assert.Empty(t, coll.batches)
	assert.Equal(t, []string{"a", "b", "c"}, idsOf(t, outcome.Items))
}

func TestReorderTwiceWithSameResultDoesNotDrift(t *testing.T) {
	coll := &fakeCollection{items: entries("a", "b", "c", "d")}
	r := NewReorderer[content.PortfolioEntry]("portfolio", coll, NewQueue())
	ctx := context.Background()

	first, err := r.SetOrder(ctx, []string{"d", "c", "b", "a"})
	require.NoError(t, err)
	second, err := r.SetOrder(ctx, []string{"d", "c", "b", "a"})
	require.NoError(t, err)

	assert.True(t, first.Written)
	assert.False(t, second.Written)
	assert.Equal(t, first.Items, second.Items)
}

func TestReorderPropagatesBatchFailureWithoutRetry(t *testing.T) {
	boom := errors.New("commit failed")
	coll := &fakeCollection{items: entries("a", "b"), applyErr: boom}
	r := NewReorderer[content.PortfolioEntry]("portfolio", coll, NewQueue())

	_, err := r.Move(context.Background(), 0, 1)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, coll.batches)
}

func TestReorderSerialisesConcurrentGestures(t *testing.T) {
	coll := &fakeCollection{items: entries("a", "b", "c"), applyDelay: 20 * time.Millisecond}
	r := NewReorderer[content.PortfolioEntry]("portfolio", coll, NewQueue())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Move(context.Background(), 0, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, coll.maxFlight, "batches for one collection must never overlap")
	require.Len(t, coll.batches, 4)
	// Each queued gesture re-reads the committed order, so rotations compose.
	assert.Equal(t, []string{"b", "c", "a"}, coll.batches[0])
	assert.Equal(t, []string{"b", "c", "a"}, coll.batches[3])
}
