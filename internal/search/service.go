package search

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"bbsfolio/api/internal/content"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Index
	fallback Searcher
	logger   *zap.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service. primary may be nil if Meilisearch is not configured.
func NewService(primary Index, fallback Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{primary: primary, fallback: fallback, logger: logger.Named("search")}
}

func (s *Service) primaryReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primaryReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "none"}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "pgfts"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "pgfts"}
}

// IndexSection indexes a section (fire-and-forget to Meilisearch).
func (s *Service) IndexSection(section content.Section) {
	s.background("index section", section.ID, func(idx Index) error {
		return idx.IndexSections([]SectionRecord{SectionRecordOf(section)})
	})
}

// IndexPortfolioEntry indexes a portfolio entry (fire-and-forget to Meilisearch).
func (s *Service) IndexPortfolioEntry(entry content.PortfolioEntry) {
	s.background("index portfolio entry", entry.ID, func(idx Index) error {
		return idx.IndexPortfolio([]PortfolioRecord{PortfolioRecordOf(entry)})
	})
}

// DeleteSection removes a section from the search index (fire-and-forget).
func (s *Service) DeleteSection(id string) {
	s.background("delete section", id, func(idx Index) error { return idx.DeleteSection(id) })
}

// DeletePortfolioEntry removes a portfolio entry from the search index (fire-and-forget).
func (s *Service) DeletePortfolioEntry(id string) {
	s.background("delete portfolio entry", id, func(idx Index) error { return idx.DeletePortfolio(id) })
}

func (s *Service) background(op, id string, fn func(Index) error) {
	if !s.primaryReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(s.primary); err != nil {
			s.logger.Warn(op+" failed", zap.String("id", id), zap.Error(err))
		}
	}()
}

// Wait blocks until every background index write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ReindexAll pushes every section and portfolio entry to Meilisearch.
func (s *Service) ReindexAll(sections []content.Section, entries []content.PortfolioEntry) {
	if !s.primaryReady() {
		return
	}

	if len(sections) > 0 {
		records := make([]SectionRecord, 0, len(sections))
		for _, section := range sections {
			records = append(records, SectionRecordOf(section))
		}
		if err := s.primary.IndexSections(records); err != nil {
			s.logger.Warn("reindex sections", zap.Error(err))
		}
	}
	if len(entries) > 0 {
		records := make([]PortfolioRecord, 0, len(entries))
		for _, entry := range entries {
			records = append(records, PortfolioRecordOf(entry))
		}
		if err := s.primary.IndexPortfolio(records); err != nil {
			s.logger.Warn("reindex portfolio", zap.Error(err))
		}
	}
	s.logger.Info("reindexed", zap.Int("sections", len(sections)), zap.Int("portfolio", len(entries)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
