package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/ordering"
)

// DataStore is the read side the export needs.
type DataStore interface {
	ListSections(ctx context.Context) ([]content.Section, error)
	ListPortfolio(ctx context.Context) ([]content.PortfolioEntry, error)
}

// PDFRenderer prints an HTML document.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// Service provides portfolio export functionality
type Service struct {
	store DataStore
	pdf   PDFRenderer
	now   func() time.Time
}

func NewService(store DataStore) *Service {
	return &Service{store: store, pdf: renderPDF, now: time.Now}
}

// Export renders sections and portfolio entries in display order.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	sections, err := s.store.ListSections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	entries, err := s.store.ListPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}

	title := req.Title
	if title == "" {
		title = "Portfolio"
	}
	data := TemplateData{Title: title, GeneratedAt: s.now()}
	for _, section := range ordering.Sort(sections) {
		data.Sections = append(data.Sections, TemplateSection{
			Key:         section.Key,
			Label:       section.Label,
			ContentHTML: template.HTML(section.Content),
		})
	}
	for _, entry := range ordering.Sort(entries) {
		item := TemplateEntry{
			Title:       entry.Title,
			Discipline:  entry.Discipline,
			Client:      entry.Client,
			ClientURL:   entry.ClientURL,
			Description: entry.Description,
			Images:      entry.Images,
			Videos:      entry.Videos,
		}
		data.Entries = append(data.Entries, item)
	}

	html, err := RenderPortfolioHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
