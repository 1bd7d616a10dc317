package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"bbsfolio/api/internal/content"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeIndex struct {
	mu        sync.Mutex
	healthy   bool
	results   []Result
	err       error
	sections  []SectionRecord
	portfolio []PortfolioRecord
	deleted   []string
}

func (f *fakeIndex) Search(_ context.Context, _ Query) ([]Result, int, error) {
	return f.results, len(f.results), f.err
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) IndexSections(records []SectionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sections = append(f.sections, records...)
	return nil
}

func (f *fakeIndex) IndexPortfolio(records []PortfolioRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portfolio = append(f.portfolio, records...)
	return nil
}

func (f *fakeIndex) DeleteSection(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) DeletePortfolio(id string) error { return f.DeleteSection(id) }

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeIndex{healthy: true, results: []Result{{Type: ResultSection, ID: "a"}}}
	fallback := &fakeIndex{healthy: true, results: []Result{{Type: ResultPortfolio, ID: "b"}}}
	svc := NewService(primary, fallback, zaptest.NewLogger(t))

	resp := svc.Search(context.Background(), Query{Text: "about"})

	assert.Equal(t, "meilisearch", resp.Backend)
	assert.Equal(t, "a", resp.Results[0].ID)
}

func TestSearchFallsBack(t *testing.T) {
	fallback := &fakeIndex{healthy: true, results: []Result{{Type: ResultPortfolio, ID: "b"}}}

	t.Run("unhealthy primary", func(t *testing.T) {
		svc := NewService(&fakeIndex{healthy: false}, fallback, zaptest.NewLogger(t))
		resp := svc.Search(context.Background(), Query{Text: "palace"})
		assert.Equal(t, "pgfts", resp.Backend)
		assert.Equal(t, 1, resp.Total)
	})

	t.Run("primary error", func(t *testing.T) {
		svc := NewService(&fakeIndex{healthy: true, err: errors.New("boom")}, fallback, zaptest.NewLogger(t))
		resp := svc.Search(context.Background(), Query{Text: "palace"})
		assert.Equal(t, "pgfts", resp.Backend)
	})

	t.Run("nil meili", func(t *testing.T) {
		var m *Meili
		svc := NewService(m, fallback, zaptest.NewLogger(t))
		resp := svc.Search(context.Background(), Query{Text: "palace"})
		assert.Equal(t, "pgfts", resp.Backend)
	})

	t.Run("fallback error yields empty results", func(t *testing.T) {
		svc := NewService(nil, &fakeIndex{err: errors.New("db down")}, zaptest.NewLogger(t))
		resp := svc.Search(context.Background(), Query{Text: "palace"})
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
	})
}

func TestBackgroundIndexing(t *testing.T) {
	primary := &fakeIndex{healthy: true}
	svc := NewService(primary, nil, zaptest.NewLogger(t))

	svc.IndexSection(content.Section{ID: "s1", Key: "A", Label: "About", Content: "<p>Hello <b>world</b></p>"})
	svc.IndexPortfolioEntry(content.PortfolioEntry{ID: "p1", Title: "Palace"})
	svc.DeleteSection("s2")
	svc.Wait()

	require.Len(t, primary.sections, 1)
	assert.Equal(t, "Hello world", primary.sections[0].Body)
	require.Len(t, primary.portfolio, 1)
	assert.Equal(t, []string{"s2"}, primary.deleted)
}

func TestBackgroundIndexingSkippedWhenUnhealthy(t *testing.T) {
	primary := &fakeIndex{healthy: false}
	svc := NewService(primary, nil, zaptest.NewLogger(t))

	svc.IndexSection(content.Section{ID: "s1"})
	svc.ReindexAll([]content.Section{{ID: "s1"}}, nil)
	svc.Wait()

	assert.Empty(t, primary.sections)
}

func TestPrefixQuery(t *testing.T) {
	assert.Equal(t, "", prefixQuery("   "))
	assert.Equal(t, "pal:* & oak:*", prefixQuery("pal oak"))
	assert.Equal(t, "dropme:*", prefixQuery("drop&me ()"))
}
