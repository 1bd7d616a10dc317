package contentsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/kv"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRemote struct {
	mu       sync.Mutex
	calls    int
	sections []content.Section
	err      error
	gate     chan struct{}
}

func (f *fakeRemote) ListSections(ctx context.Context) ([]content.Section, error) {
	f.mu.Lock()
	f.calls++
	sections, err, gate := f.sections, f.err, f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return sections, err
}

func (f *fakeRemote) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func sections(n int) []content.Section {
	keys := "ABCDEFGHIJKLMNOP"
	out := make([]content.Section, n)
	for i := range out {
		out[i] = content.Section{ID: string(keys[i]) + "-id", Key: string(keys[i]), Label: "Label " + string(keys[i]), Content: "<p>x</p>"}
	}
	return out
}

func seedSnapshot(t *testing.T, store kv.Store, snapshot Snapshot) {
	t.Helper()
	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), DefaultSnapshotKey, string(raw), 0))
}

func newTestLoader(remote Remote, store kv.Store, c *clock) *Loader {
	return NewLoader(remote, store, WithClock(c.now))
}

func TestLoadTwiceWithinWindowHitsRemoteOnce(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	remote := &fakeRemote{sections: sections(3)}
	loader := newTestLoader(remote, kv.NewMemoryStore(), c)

	first := loader.Load(ctx, false)
	c.t = c.t.Add(2 * time.Hour)
	second := loader.Load(ctx, false)

	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, SourceRemote, first.Source)
	assert.Equal(t, SourceCache, second.Source)
	if diff := cmp.Diff(first.Sections, second.Sections); diff != "" {
		t.Fatalf("sections differ (-first +second):\n%s", diff)
	}
}

func TestRemoteFailureWithoutSnapshotReturnsDefaults(t *testing.T) {
	remote := &fakeRemote{err: errors.New("network down")}
	loader := newTestLoader(remote, kv.NewMemoryStore(), &clock{t: time.Now()})

	result := loader.Load(context.Background(), false)

	assert.Equal(t, SourceDefaults, result.Source)
	assert.Len(t, result.Sections, 8)
	assert.True(t, result.Degraded())
	assert.ErrorContains(t, result.Err, "network down")
	if diff := cmp.Diff(content.DefaultSections(), result.Sections); diff != "" {
		t.Fatalf("defaults differ:\n%s", diff)
	}
}

func TestStaleSnapshotRefreshedFromRemote(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seedSnapshot(t, store, Snapshot{Sections: sections(8), FetchedAtEpochMs: c.t.Add(-25 * time.Hour).UnixMilli()})
	remote := &fakeRemote{sections: sections(9)}
	loader := newTestLoader(remote, store, c)

	result := loader.Load(ctx, false)
	require.NoError(t, result.Err)
	assert.Equal(t, SourceRemote, result.Source)
	assert.Len(t, result.Sections, 9)

	snapshot, ok, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, snapshot.Sections, 9)
	assert.Equal(t, c.t.UnixMilli(), snapshot.FetchedAtEpochMs)
}

func TestForceWithRemoteDownReturnsRecentSnapshot(t *testing.T) {
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seedSnapshot(t, store, Snapshot{Sections: sections(8), FetchedAtEpochMs: c.t.Add(-time.Hour).UnixMilli()})
	remote := &fakeRemote{err: errors.New("unreachable")}
	loader := newTestLoader(remote, store, c)

	result := loader.Load(context.Background(), true)

	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, SourceCache, result.Source)
	assert.Len(t, result.Sections, 8)
	assert.Error(t, result.Err)
}

func TestFreshSnapshotSkipsRemote(t *testing.T) {
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seedSnapshot(t, store, Snapshot{Sections: sections(8), FetchedAtEpochMs: c.t.Add(-time.Hour).UnixMilli()})
	remote := &fakeRemote{err: errors.New("must not be called")}
	loader := newTestLoader(remote, store, c)

	result := loader.Load(context.Background(), false)

	assert.Equal(t, 0, remote.Calls())
	assert.Equal(t, SourceCache, result.Source)
	assert.False(t, result.Degraded())
}

func TestExpiredSnapshotUsedWhenRemoteFails(t *testing.T) {
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seedSnapshot(t, store, Snapshot{Sections: sections(5), FetchedAtEpochMs: c.t.Add(-72 * time.Hour).UnixMilli()})
	loader := newTestLoader(&fakeRemote{err: errors.New("boom")}, store, c)

	result := loader.Load(context.Background(), false)

	assert.Equal(t, SourceCache, result.Source)
	assert.Len(t, result.Sections, 5)
}

func TestEmptyRemoteFallsBack(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}

	t.Run("to defaults", func(t *testing.T) {
		store := kv.NewMemoryStore()
		loader := newTestLoader(&fakeRemote{}, store, c)
		result := loader.Load(ctx, false)
		assert.Equal(t, SourceDefaults, result.Source)
		assert.ErrorIs(t, result.Err, ErrRemoteEmpty)
		_, ok, err := loader.Snapshot(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "empty remote must not overwrite the snapshot")
	})

	t.Run("to snapshot", func(t *testing.T) {
		store := kv.NewMemoryStore()
		seedSnapshot(t, store, Snapshot{Sections: sections(2), FetchedAtEpochMs: c.t.Add(-48 * time.Hour).UnixMilli()})
		loader := newTestLoader(&fakeRemote{sections: []content.Section{}}, store, c)
		result := loader.Load(ctx, true)
		assert.Equal(t, SourceCache, result.Source)
		assert.Len(t, result.Sections, 2)
		assert.ErrorIs(t, result.Err, ErrRemoteEmpty)
	})
}

func TestCorruptSnapshotTreatedAsAbsent(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), DefaultSnapshotKey, "{not json", 0))
	loader := newTestLoader(&fakeRemote{sections: sections(1)}, store, &clock{t: time.Now()})

	result := loader.Load(context.Background(), false)

	assert.Equal(t, SourceRemote, result.Source)
	assert.Len(t, result.Sections, 1)
}

type failingStore struct{ kv.Store }

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("quota exceeded")
}

func TestSnapshotWriteFailureKeepsRemoteSections(t *testing.T) {
	loader := newTestLoader(&fakeRemote{sections: sections(4)}, failingStore{kv.NewMemoryStore()}, &clock{t: time.Now()})

	result := loader.Load(context.Background(), false)

	assert.Equal(t, SourceRemote, result.Source)
	assert.Len(t, result.Sections, 4)
	assert.ErrorContains(t, result.Err, "quota exceeded")
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{sections: sections(3), gate: gate}
	loader := newTestLoader(remote, kv.NewMemoryStore(), &clock{t: time.Now()})

	var wg sync.WaitGroup
	var remoteResults atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if loader.Load(context.Background(), true).Source == SourceRemote {
				remoteResults.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return remote.Calls() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, remote.Calls(), 5)
	assert.Equal(t, int32(5), remoteResults.Load())
}

func TestResultSectionsAreIndependentCopies(t *testing.T) {
	order := 3
	remote := &fakeRemote{sections: []content.Section{{ID: "a", Key: "A", Label: "About", Order: &order}}}
	loader := newTestLoader(remote, kv.NewMemoryStore(), &clock{t: time.Now()})

	first := loader.Load(context.Background(), true)
	*first.Sections[0].Order = 99
	first.Sections[0].Label = "changed"

	assert.Equal(t, 3, order)
	assert.Equal(t, "About", remote.sections[0].Label)
}

func TestObserverSeesEveryLoad(t *testing.T) {
	var seen []Source
	loader := NewLoader(&fakeRemote{sections: sections(1)}, kv.NewMemoryStore(),
		WithObserver(func(r Result) { seen = append(seen, r.Source) }))

	loader.Load(context.Background(), false)
	loader.Load(context.Background(), false)

	assert.Equal(t, []Source{SourceRemote, SourceCache}, seen)
}

type labelRemote struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

// ListSections answers "OLD" on the first call once released and "NEW" afterwards.
func (r *labelRemote) ListSections(ctx context.Context) ([]content.Section, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()
	if n == 1 {
		<-r.release
		return []content.Section{{ID: "a", Key: "A", Label: "OLD"}}, nil
	}
	return []content.Section{{ID: "a", Key: "A", Label: "NEW"}}, nil
}

func (r *labelRemote) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSlowReadDoesNotOverwriteLaterForcedRefresh(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	remote := &labelRemote{release: make(chan struct{})}
	loader := newTestLoader(remote, kv.NewMemoryStore(), c)

	slow := make(chan Result, 1)
	go func() { slow <- loader.Load(ctx, false) }()
	require.Eventually(t, func() bool { return remote.Calls() == 1 }, time.Second, time.Millisecond)

	forced := loader.Load(ctx, true)
	require.Equal(t, "NEW", forced.Sections[0].Label)

	close(remote.release)
	late := <-slow
	assert.Equal(t, "NEW", late.Sections[0].Label)

	c.t = c.t.Add(time.Minute)
	cached := loader.Load(ctx, false)
	assert.Equal(t, SourceCache, cached.Source)
	assert.Equal(t, "NEW", cached.Sections[0].Label)
}

func TestNewerStoredSnapshotIsKept(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	store := kv.NewMemoryStore()
	seedSnapshot(t, store, Snapshot{Sections: sections(2), FetchedAtEpochMs: c.t.Add(time.Minute).UnixMilli()})
	loader := newTestLoader(&fakeRemote{sections: sections(5)}, store, c)

	result := loader.Load(ctx, true)

	assert.Len(t, result.Sections, 2)
	snapshot, ok, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, snapshot.Sections, 2)
}

func TestCancelledCallerDoesNotFailSharedRead(t *testing.T) {
	gate := make(chan struct{})
	remote := &fakeRemote{sections: sections(3), gate: gate}
	loader := newTestLoader(remote, kv.NewMemoryStore(), &clock{t: time.Now()})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan Result, 1)
	go func() { leader <- loader.Load(leaderCtx, true) }()
	require.Eventually(t, func() bool { return remote.Calls() == 1 }, time.Second, time.Millisecond)

	follower := make(chan Result, 1)
	go func() { follower <- loader.Load(context.Background(), true) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	gone := <-leader
	assert.ErrorIs(t, gone.Err, context.Canceled)
	assert.NotEmpty(t, gone.Sections)

	close(gate)
	shared := <-follower
	require.NoError(t, shared.Err)
	assert.Equal(t, SourceRemote, shared.Source)
	assert.Len(t, shared.Sections, 3)
}

func TestFetchTimeoutFallsBack(t *testing.T) {
	remote := &fakeRemote{sections: sections(3), gate: make(chan struct{})}
	loader := NewLoader(remote, kv.NewMemoryStore(), WithFetchTimeout(10*time.Millisecond))

	result := loader.Load(context.Background(), false)

	assert.Equal(t, SourceDefaults, result.Source)
	assert.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

type fakeUpstream struct {
	fakeRemote
	forced    []bool
	fetchedAt time.Time
}

func (f *fakeUpstream) FetchSections(ctx context.Context, force bool) (Fetched, error) {
	f.mu.Lock()
	f.forced = append(f.forced, force)
	f.mu.Unlock()
	sections, err := f.ListSections(ctx)
	return Fetched{Sections: sections, FetchedAt: f.fetchedAt}, err
}

func TestUpstreamRemoteGetsForceAndKeepsFetchTime(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	upstream := &fakeUpstream{fakeRemote: fakeRemote{sections: sections(2)}, fetchedAt: c.t.Add(-20 * time.Hour)}
	loader := newTestLoader(upstream, kv.NewMemoryStore(), c)

	result := loader.Load(ctx, true)
	assert.Equal(t, SourceRemote, result.Source)
	assert.Equal(t, upstream.fetchedAt.UnixMilli(), result.FetchedAt.UnixMilli())

	// The upstream copy ages out on its own schedule, not 24h from now.
	c.t = c.t.Add(5 * time.Hour)
	loader.Load(ctx, false)
	assert.Equal(t, []bool{true, false}, upstream.forced)
}

func TestUpstreamFetchTimeInFutureIsClamped(t *testing.T) {
	c := &clock{t: time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)}
	upstream := &fakeUpstream{fakeRemote: fakeRemote{sections: sections(1)}, fetchedAt: c.t.Add(time.Hour)}
	loader := newTestLoader(upstream, kv.NewMemoryStore(), c)

	result := loader.Load(context.Background(), false)

	assert.Equal(t, c.t.UnixMilli(), result.FetchedAt.UnixMilli())
}
