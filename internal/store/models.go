package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"bbsfolio/api/internal/content"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// tables maps a collection name to its table.
var tables = map[string]string{
	content.CollectionSections:  "sections",
	content.CollectionPortfolio: "portfolio_entries",
}

func tableFor(collection string) (string, error) {
	table, ok := tables[collection]
	if !ok {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	return table, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSection(row rowScanner) (content.Section, error) {
	var (
		section content.Section
		order   *int
	)
	if err := row.Scan(&section.ID, &section.Key, &section.Label, &section.Content, &order); err != nil {
		return content.Section{}, err
	}
	section.Order = order
	return section, nil
}

func scanPortfolioEntry(row rowScanner) (content.PortfolioEntry, error) {
	var (
		entry          content.PortfolioEntry
		images, videos []byte
		order          *int
	)
	if err := row.Scan(&entry.ID, &entry.Title, &entry.Discipline, &entry.Client, &entry.ClientURL, &entry.Description, &images, &videos, &order); err != nil {
		return content.PortfolioEntry{}, err
	}
	if err := json.Unmarshal(images, &entry.Images); err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(videos, &entry.Videos); err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("decode videos: %w", err)
	}
	entry.Order = order
	return entry, nil
}

func encodeMedia(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	return json.Marshal(urls)
}

// uniqueViolation rewrites a Postgres unique constraint error into ErrDuplicateKey.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.Detail)
	}
	return err
}
