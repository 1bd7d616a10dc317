package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/contentsync"
	"bbsfolio/api/internal/export"
	"bbsfolio/api/internal/media"
	"bbsfolio/api/internal/metrics"
	"bbsfolio/api/internal/ordering"
	"bbsfolio/api/internal/search"
)

type dataStore interface {
	ListSections(context.Context) ([]content.Section, error)
	GetSection(context.Context, string) (content.Section, error)
	CreateSection(context.Context, content.Section) (content.Section, error)
	UpdateSection(context.Context, content.Section) (content.Section, error)
	DeleteSection(context.Context, string) error
	ListPortfolio(context.Context) ([]content.PortfolioEntry, error)
	GetPortfolioEntry(context.Context, string) (content.PortfolioEntry, error)
	CreatePortfolioEntry(context.Context, content.PortfolioEntry) (content.PortfolioEntry, error)
	UpdatePortfolioEntry(context.Context, content.PortfolioEntry) (content.PortfolioEntry, error)
	DeletePortfolioEntry(context.Context, string) error
	ApplyOrder(context.Context, string, []string) error
	Ping(context.Context) error
}

type playedStore interface {
	Played(context.Context, string) (map[string]bool, error)
	MarkPlayed(context.Context, string, string) error
	End(context.Context, string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexSection(content.Section)
	IndexPortfolioEntry(content.PortfolioEntry)
	DeleteSection(string)
	DeletePortfolioEntry(string)
}

type exporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type uploader interface {
	UploadBatch(context.Context, media.Kind, []media.File) ([]string, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(context.Context) error
}

// Deps are the collaborators of a Service. Search, Uploader, Exporter and Metrics are
// optional.
type Deps struct {
	Store    dataStore
	Loader   *contentsync.Loader
	Played   playedStore
	Search   searchService
	Exporter exporter
	Uploader uploader
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Checks   []Check
	// PortfolioTitle heads exported documents.
	PortfolioTitle string
}

type Service struct {
	store     dataStore
	loader    *contentsync.Loader
	played    playedStore
	search    searchService
	exporter  exporter
	uploader  uploader
	metrics   *metrics.Metrics
	logger    *zap.Logger
	checks    []Check
	title     string
	sections  *ordering.Reorderer[content.Section]
	portfolio *ordering.Reorderer[content.PortfolioEntry]
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := ordering.NewQueue()
	s := &Service{
		store:    deps.Store,
		loader:   deps.Loader,
		played:   deps.Played,
		search:   deps.Search,
		exporter: deps.Exporter,
		uploader: deps.Uploader,
		metrics:  deps.Metrics,
		logger:   logger,
		checks:   append([]Check{{Name: "database", Ping: deps.Store.Ping}}, deps.Checks...),
		title:    deps.PortfolioTitle,
	}
	s.sections = ordering.NewReorderer[content.Section](content.CollectionSections, collection[content.Section]{
		name:  content.CollectionSections,
		list:  deps.Store.ListSections,
		store: deps.Store,
	}, queue)
	s.portfolio = ordering.NewReorderer[content.PortfolioEntry](content.CollectionPortfolio, collection[content.PortfolioEntry]{
		name:  content.CollectionPortfolio,
		list:  deps.Store.ListPortfolio,
		store: deps.Store,
	}, queue)
	return s
}

// collection adapts one table of the content store to ordering.Collection.
type collection[T ordering.Item[T]] struct {
	name  string
	list  func(context.Context) ([]T, error)
	store dataStore
}

func (c collection[T]) List(ctx context.Context) ([]T, error) {
	return c.list(ctx)
}

func (c collection[T]) ApplyOrder(ctx context.Context, ids []string) error {
	return c.store.ApplyOrder(ctx, c.name, ids)
}

// Readiness runs every check and returns the per-check error, nil when healthy.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for _, check := range s.checks {
		results[check.Name] = check.Ping(ctx)
	}
	return results
}

// Sections is the public, always-renderable section list.
func (s *Service) Sections(ctx context.Context, force bool) contentsync.Result {
	result := s.loader.Load(ctx, force)
	if result.Err != nil {
		s.logger.Warn("sections served degraded",
			zap.String("source", string(result.Source)),
			zap.Bool("force", force),
			zap.Error(result.Err))
	}
	result.Sections = ordering.Sort(result.Sections)
	return result
}

// RefreshSections forces a remote read and reports whether it reached the remote.
func (s *Service) RefreshSections(ctx context.Context) contentsync.Result {
	return s.Sections(ctx, true)
}

// PublicPortfolio lists entries in display order. A read failure degrades to an empty
// gallery.
func (s *Service) PublicPortfolio(ctx context.Context) ([]content.PortfolioEntry, bool) {
	entries, err := s.store.ListPortfolio(ctx)
	if err != nil {
		s.logger.Warn("portfolio served empty", zap.Error(err))
		return []content.PortfolioEntry{}, true
	}
	return ordering.Sort(entries), false
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, unavailable("SEARCH_UNAVAILABLE", "Search is not configured")
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, unavailable("EXPORT_UNAVAILABLE", "Export is not configured")
	}
	return s.exporter.Export(ctx, export.Request{Format: format, Title: s.title})
}

// Played returns the played-animation set of a session.
func (s *Service) Played(ctx context.Context, sessionID string) (map[string]bool, error) {
	played, err := s.played.Played(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read played set: %w", err)
	}
	return played, nil
}

func (s *Service) MarkPlayed(ctx context.Context, sessionID, key string) error {
	if err := s.played.MarkPlayed(ctx, sessionID, key); err != nil {
		if errors.Is(err, content.ErrInvalidSection) {
			return domainError(http.StatusBadRequest, "INVALID_KEY", "Section key must be a single character", nil)
		}
		return fmt.Errorf("mark played: %w", err)
	}
	return nil
}

func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	return s.played.End(ctx, sessionID)
}

// Admin: sections

func (s *Service) ListSections(ctx context.Context) ([]content.Section, error) {
	sections, err := s.store.ListSections(ctx)
	if err != nil {
		return nil, err
	}
	return ordering.Sort(sections), nil
}

func (s *Service) CreateSection(ctx context.Context, input content.Section) (content.Section, error) {
	section, err := input.Normalize()
	if err != nil {
		return content.Section{}, invalid(err)
	}
	section.ID = ""
	created, err := s.store.CreateSection(ctx, section)
	if err != nil {
		return content.Section{}, err
	}
	s.afterSectionWrite(ctx)
	if s.search != nil {
		s.search.IndexSection(created)
	}
	return created, nil
}

func (s *Service) UpdateSection(ctx context.Context, id string, input content.Section) (content.Section, error) {
	section, err := input.Normalize()
	if err != nil {
		return content.Section{}, invalid(err)
	}
	section.ID = id
	updated, err := s.store.UpdateSection(ctx, section)
	if err != nil {
		return content.Section{}, err
	}
	s.afterSectionWrite(ctx)
	if s.search != nil {
		s.search.IndexSection(updated)
	}
	return updated, nil
}

func (s *Service) DeleteSection(ctx context.Context, id string) error {
	if err := s.store.DeleteSection(ctx, id); err != nil {
		return err
	}
	s.afterSectionWrite(ctx)
	if s.search != nil {
		s.search.DeleteSection(id)
	}
	return nil
}

// ReorderInput is either a drag gesture (From, To) or a complete id sequence.
type ReorderInput struct {
	From *int     `json:"from,omitempty"`
	To   *int     `json:"to,omitempty"`
	IDs  []string `json:"ids,omitempty"`
}

func (s *Service) ReorderSections(ctx context.Context, input ReorderInput) (ordering.Outcome[content.Section], error) {
	outcome, err := reorder(ctx, s.sections, input)
	if err != nil {
		return outcome, err
	}
	s.observeReorder(content.CollectionSections, outcome.Written)
	if outcome.Written {
		s.afterSectionWrite(ctx)
	}
	return outcome, nil
}

// Admin: portfolio

func (s *Service) ListPortfolio(ctx context.Context) ([]content.PortfolioEntry, error) {
	entries, err := s.store.ListPortfolio(ctx)
	if err != nil {
		return nil, err
	}
	return ordering.Sort(entries), nil
}

func (s *Service) CreatePortfolioEntry(ctx context.Context, input content.PortfolioEntry) (content.PortfolioEntry, error) {
	entry, err := input.Normalize()
	if err != nil {
		return content.PortfolioEntry{}, invalid(err)
	}
	entry.ID = ""
	created, err := s.store.CreatePortfolioEntry(ctx, entry)
	if err != nil {
		return content.PortfolioEntry{}, err
	}
	if s.search != nil {
		s.search.IndexPortfolioEntry(created)
	}
	return created, nil
}

func (s *Service) UpdatePortfolioEntry(ctx context.Context, id string, input content.PortfolioEntry) (content.PortfolioEntry, error) {
	entry, err := input.Normalize()
	if err != nil {
		return content.PortfolioEntry{}, invalid(err)
	}
	entry.ID = id
	updated, err := s.store.UpdatePortfolioEntry(ctx, entry)
	if err != nil {
		return content.PortfolioEntry{}, err
	}
	if s.search != nil {
		s.search.IndexPortfolioEntry(updated)
	}
	return updated, nil
}

func (s *Service) DeletePortfolioEntry(ctx context.Context, id string) error {
	if err := s.store.DeletePortfolioEntry(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePortfolioEntry(id)
	}
	return nil
}

func (s *Service) ReorderPortfolio(ctx context.Context, input ReorderInput) (ordering.Outcome[content.PortfolioEntry], error) {
	outcome, err := reorder(ctx, s.portfolio, input)
	if err != nil {
		return outcome, err
	}
	s.observeReorder(content.CollectionPortfolio, outcome.Written)
	return outcome, nil
}

// Upload stores a batch of files and returns their public URLs without linking them.
func (s *Service) Upload(ctx context.Context, kind media.Kind, files []media.File) ([]string, error) {
	if s.uploader == nil {
		return nil, unavailable("UPLOADS_UNAVAILABLE", "Object storage is not configured")
	}
	if len(files) == 0 {
		return nil, domainError(http.StatusBadRequest, "NO_FILES", "No files in request", nil)
	}
	started := time.Now()
	urls, err := s.uploader.UploadBatch(ctx, kind, files)
	if s.metrics != nil {
		s.metrics.ObserveUpload(string(kind), err)
	}
	if err != nil {
		s.logger.Error("upload batch failed", zap.String("kind", string(kind)), zap.Int("files", len(files)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("upload batch stored", zap.String("kind", string(kind)), zap.Int("files", len(files)), zap.Duration("elapsed", time.Since(started)))
	return urls, nil
}

// AttachInput is one media attach request: picked files per kind plus pasted video URLs.
type AttachInput struct {
	Images    []media.File
	Videos    []media.File
	VideoURLs []string
}

// AttachMedia uploads picked files and links them, with any pasted video URLs, to an
// entry. A failed upload batch links nothing.
func (s *Service) AttachMedia(ctx context.Context, id string, input AttachInput) (content.PortfolioEntry, error) {
	entry, err := s.store.GetPortfolioEntry(ctx, id)
	if err != nil {
		return content.PortfolioEntry{}, err
	}
	draft := media.DraftOf(entry)

	for _, raw := range input.VideoURLs {
		if err := draft.AddVideoURL(raw); err != nil {
			return content.PortfolioEntry{}, invalid(err)
		}
	}
	for _, batch := range []struct {
		kind  media.Kind
		files []media.File
	}{
		{media.KindImage, input.Images},
		{media.KindVideo, input.Videos},
	} {
		if len(batch.files) == 0 {
			continue
		}
		urls, err := s.Upload(ctx, batch.kind, batch.files)
		if err != nil {
			return content.PortfolioEntry{}, err
		}
		draft.Append(batch.kind, urls...)
	}

	return s.UpdatePortfolioEntry(ctx, id, draft.Apply(entry))
}

// DetachMedia unlinks a media URL from an entry. The stored object is kept.
func (s *Service) DetachMedia(ctx context.Context, id, url string) (content.PortfolioEntry, error) {
	entry, err := s.store.GetPortfolioEntry(ctx, id)
	if err != nil {
		return content.PortfolioEntry{}, err
	}
	draft := media.DraftOf(entry)
	if !draft.RemoveAny(url) {
		return content.PortfolioEntry{}, domainError(http.StatusNotFound, "MEDIA_NOT_FOUND", "Media URL is not linked to this entry", map[string]any{"url": url})
	}
	return s.UpdatePortfolioEntry(ctx, id, draft.Apply(entry))
}

func reorder[T ordering.Item[T]](ctx context.Context, r *ordering.Reorderer[T], input ReorderInput) (ordering.Outcome[T], error) {
	switch {
	case input.IDs != nil:
		return r.SetOrder(ctx, input.IDs)
	case input.From != nil && input.To != nil:
		return r.Move(ctx, *input.From, *input.To)
	default:
		return ordering.Outcome[T]{}, domainError(http.StatusBadRequest, "INVALID_REORDER", "Provide either from/to or ids", nil)
	}
}

func (s *Service) observeReorder(collection string, written bool) {
	s.logger.Info("reorder", zap.String("collection", collection), zap.Bool("written", written))
	if s.metrics != nil {
		s.metrics.ObserveReorder(collection, written)
	}
}

// afterSectionWrite refreshes the cached snapshot so the public page sees admin edits
// without waiting for the TTL.
func (s *Service) afterSectionWrite(ctx context.Context) {
	if s.loader == nil {
		return
	}
	if result := s.loader.Load(ctx, true); result.Err != nil {
		s.logger.Warn("snapshot refresh after write failed", zap.Error(result.Err))
	}
}

