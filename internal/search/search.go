package search

import (
	"context"

	"bbsfolio/api/internal/content"
)

// ResultType identifies the collection a hit came from.
type ResultType string

const (
	ResultSection   ResultType = "section"
	ResultPortfolio ResultType = "portfolio"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Key     string     `json:"key,omitempty"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push records into a search index.
type Indexer interface {
	IndexSections(records []SectionRecord) error
	IndexPortfolio(records []PortfolioRecord) error
	DeleteSection(id string) error
	DeletePortfolio(id string) error
}

// Index is a search backend that owns its own index.
type Index interface {
	Searcher
	Indexer
}

// SectionRecord is the data we index for a section.
type SectionRecord struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Label string `json:"label"`
	Body  string `json:"body"`
}

// PortfolioRecord is the data we index for a portfolio entry.
type PortfolioRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Discipline  string `json:"discipline"`
	Client      string `json:"client"`
	Description string `json:"description"`
}

func SectionRecordOf(section content.Section) SectionRecord {
	return SectionRecord{
		ID:    section.ID,
		Key:   section.Key,
		Label: section.Label,
		Body:  content.PlainText(section.Content),
	}
}

func PortfolioRecordOf(entry content.PortfolioEntry) PortfolioRecord {
	return PortfolioRecord{
		ID:          entry.ID,
		Title:       entry.Title,
		Discipline:  entry.Discipline,
		Client:      entry.Client,
		Description: entry.Description,
	}
}
