package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/contentsync"
	"bbsfolio/api/internal/kv"
)

type fakeAPI struct {
	mu        sync.Mutex
	source    string
	degraded  bool
	fetchedAt *time.Time
	queries   []string
	sessions  []string
	marked    []string
	status    int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, "11111111-2222-3333-4444-555555555555")
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "SERVER_ERROR", "error": "Server error"})
		return
	}
	switch {
	case r.URL.Path == "/api/sections":
		f.queries = append(f.queries, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sections":  []content.Section{{ID: "a", Key: "A", Label: "About"}},
			"source":    f.source,
			"fetchedAt": f.fetchedAt,
			"degraded":  f.degraded,
		})
	case r.URL.Path == "/api/portfolio":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entries":  []content.PortfolioEntry{{ID: "p1", Title: "One"}},
			"degraded": false,
		})
	case r.URL.Path == "/api/session/played" && r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"played": map[string]bool{"A": true}})
	case r.Method == http.MethodPut:
		f.marked = append(f.marked, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestListSections(t *testing.T) {
	api := &fakeAPI{source: "remote"}
	c := newTestClient(t, api)

	sections, err := c.ListSections(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "A", sections[0].Key)
}

func TestListSectionsRejectsServerDefaults(t *testing.T) {
	c := newTestClient(t, &fakeAPI{source: "defaults"})
	_, err := c.ListSections(context.Background())
	assert.ErrorIs(t, err, ErrDegraded)
}

func TestAPIErrorCarriesCode(t *testing.T) {
	c := newTestClient(t, &fakeAPI{status: http.StatusInternalServerError})
	_, err := c.ListPortfolio(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "SERVER_ERROR", apiErr.Code)
}

func TestSessionIDIsAdoptedAndResent(t *testing.T) {
	api := &fakeAPI{source: "remote"}
	c := newTestClient(t, api)
	ctx := context.Background()

	played, err := c.Played(ctx)
	require.NoError(t, err)
	assert.True(t, played["A"])
	require.NoError(t, c.MarkPlayed(ctx, "B"))

	assert.Equal(t, "11111111-2222-3333-4444-555555555555", c.SessionID())
	assert.Equal(t, []string{"", "11111111-2222-3333-4444-555555555555"}, api.sessions)
	assert.Equal(t, []string{"/api/session/played/B"}, api.marked)
}

func TestEndSessionWithoutSessionIsNoop(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	require.NoError(t, c.EndSession(context.Background()))
	assert.Empty(t, api.sessions)
}

func TestNewRejectsBadScheme(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
}

func TestFetchSectionsPassesForce(t *testing.T) {
	api := &fakeAPI{source: "remote"}
	c := newTestClient(t, api)
	ctx := context.Background()

	_, err := c.FetchSections(ctx, true)
	require.NoError(t, err)
	_, err = c.FetchSections(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"force=true", ""}, api.queries)
}

func TestFetchSectionsRejectsDegradedServerSnapshot(t *testing.T) {
	c := newTestClient(t, &fakeAPI{source: "cache", degraded: true})
	_, err := c.FetchSections(context.Background(), true)
	assert.ErrorIs(t, err, ErrDegraded)
}

func TestFetchSectionsKeepsServerFetchTime(t *testing.T) {
	fetchedAt := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	c := newTestClient(t, &fakeAPI{source: "cache", fetchedAt: &fetchedAt})

	fetched, err := c.FetchSections(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, fetched.FetchedAt.Equal(fetchedAt))
	assert.Len(t, fetched.Sections, 1)
}

func TestForcedLoadReachesServerAndKeepsItsAge(t *testing.T) {
	fetchedAt := time.Now().Add(-3 * time.Hour).UTC().Truncate(time.Millisecond)
	api := &fakeAPI{source: "cache", fetchedAt: &fetchedAt}
	c := newTestClient(t, api)
	loader := contentsync.NewLoader(c, kv.NewMemoryStore())

	result := loader.Load(context.Background(), true)

	require.NoError(t, result.Err)
	assert.Equal(t, []string{"force=true"}, api.queries)
	assert.True(t, result.FetchedAt.Equal(fetchedAt), "snapshot stamped %v, want %v", result.FetchedAt, fetchedAt)
}

func TestDegradedServerKeepsLocalSnapshot(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{source: "cache", degraded: true}
	c := newTestClient(t, api)
	store := kv.NewMemoryStore()
	stamp := time.Now().Add(-30 * time.Hour).UnixMilli()
	raw, err := json.Marshal(contentsync.Snapshot{Sections: []content.Section{{ID: "z", Key: "Z", Label: "Local"}}, FetchedAtEpochMs: stamp})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, contentsync.DefaultSnapshotKey, string(raw), 0))
	loader := contentsync.NewLoader(c, store)

	result := loader.Load(ctx, false)

	assert.Equal(t, contentsync.SourceCache, result.Source)
	assert.ErrorIs(t, result.Err, ErrDegraded)
	assert.Equal(t, "Local", result.Sections[0].Label)
	snapshot, ok, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stamp, snapshot.FetchedAtEpochMs)
}

func TestLocate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7","city":"Milan","country":"IT"}`))
	}))
	t.Cleanup(srv.Close)
	locator, err := NewLocator(srv.URL)
	require.NoError(t, err)

	loc, err := locator.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Milan, IT", loc.String())
}

func TestLocateFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	locator, err := NewLocator(srv.URL)
	require.NoError(t, err)

	loc, err := locator.Locate(context.Background())
	assert.Error(t, err)
	assert.Equal(t, UnknownLocation, loc.String())
}

func TestLocationString(t *testing.T) {
	cases := map[Location]string{
		{City: "Milan", Country: "IT"}: "Milan, IT",
		{City: "Milan"}:                "Milan",
		{Country: "IT"}:                "IT",
		{City: "  "}:                   UnknownLocation,
	}
	for loc, want := range cases {
		assert.Equal(t, want, loc.String())
	}
}
