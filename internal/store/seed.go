package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/util"
)

// Seed is the on-disk content bundle loaded by the seed command.
type Seed struct {
	Sections  []content.Section        `yaml:"sections"`
	Portfolio []content.PortfolioEntry `yaml:"portfolio"`
}

// LoadSeed reads and validates a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for i, section := range seed.Sections {
		normalized, err := section.Normalize()
		if err != nil {
			return Seed{}, fmt.Errorf("seed section %d: %w", i, err)
		}
		seed.Sections[i] = normalized
	}
	if err := content.CheckUniqueKeys(seed.Sections); err != nil {
		return Seed{}, fmt.Errorf("seed sections: %w", err)
	}
	for i, entry := range seed.Portfolio {
		normalized, err := entry.Normalize()
		if err != nil {
			return Seed{}, fmt.Errorf("seed portfolio entry %d: %w", i, err)
		}
		seed.Portfolio[i] = normalized
	}
	return seed, nil
}

// SeedStats reports what ApplySeed wrote.
type SeedStats struct {
	Deleted   int64
	Sections  int
	Portfolio int
}

// ApplySeed upserts sections by key and inserts portfolio entries. With reset, every
// existing section is removed first. Sections without an order take their position in
// the seed file.
func (s *PostgresStore) ApplySeed(ctx context.Context, seed Seed, reset bool) (SeedStats, error) {
	var stats SeedStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if reset {
		res, err := tx.ExecContext(ctx, `DELETE FROM sections`)
		if err != nil {
			return stats, fmt.Errorf("reset sections: %w", err)
		}
		stats.Deleted, _ = res.RowsAffected()
	}

	for idx, section := range seed.Sections {
		order := idx
		if section.Order != nil {
			order = *section.Order
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sections (id, key, label, content, sort_order)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (key) DO UPDATE
			SET label=EXCLUDED.label, content=EXCLUDED.content, sort_order=EXCLUDED.sort_order, updated_at=NOW()
		`, util.NewID("sec"), section.Key, section.Label, section.Content, order)
		if err != nil {
			return stats, fmt.Errorf("upsert section %s: %w", section.Key, err)
		}
		stats.Sections++
	}

	for _, entry := range seed.Portfolio {
		images, err := encodeMedia(entry.Images)
		if err != nil {
			return stats, fmt.Errorf("encode images: %w", err)
		}
		videos, err := encodeMedia(entry.Videos)
		if err != nil {
			return stats, fmt.Errorf("encode videos: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO portfolio_entries (id, title, discipline, client, client_url, description, images, videos, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9)
		`, util.NewID("pf"), entry.Title, entry.Discipline, entry.Client, entry.ClientURL, entry.Description, string(images), string(videos), entry.Order)
		if err != nil {
			return stats, fmt.Errorf("insert portfolio entry %q: %w", entry.Title, err)
		}
		stats.Portfolio++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit seed tx: %w", err)
	}
	return stats, nil
}
