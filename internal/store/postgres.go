package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const sectionColumns = `id, key, label, content, sort_order`

func (s *PostgresStore) ListSections(ctx context.Context) ([]content.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sectionColumns+`
		FROM sections
		ORDER BY COALESCE(sort_order, 0), created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	sections := make([]content.Section, 0)
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

func (s *PostgresStore) GetSection(ctx context.Context, id string) (content.Section, error) {
	section, err := scanSection(s.db.QueryRowContext(ctx, `SELECT `+sectionColumns+` FROM sections WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return content.Section{}, ErrNotFound
	}
	if err != nil {
		return content.Section{}, fmt.Errorf("get section: %w", err)
	}
	return section, nil
}

// CreateSection stores a new section and returns it with its generated id.
func (s *PostgresStore) CreateSection(ctx context.Context, section content.Section) (content.Section, error) {
	section.ID = util.NewID("sec")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, key, label, content, sort_order)
		VALUES ($1, $2, $3, $4, $5)
	`, section.ID, section.Key, section.Label, section.Content, section.Order)
	if err != nil {
		return content.Section{}, fmt.Errorf("insert section: %w", uniqueViolation(err))
	}
	return section, nil
}

// UpdateSection rewrites key, label and content. A nil order leaves the stored order alone.
func (s *PostgresStore) UpdateSection(ctx context.Context, section content.Section) (content.Section, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE sections
		SET key=$2, label=$3, content=$4, sort_order=COALESCE($5, sort_order), updated_at=NOW()
		WHERE id=$1
		RETURNING `+sectionColumns,
		section.ID, section.Key, section.Label, section.Content, section.Order)
	updated, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Section{}, ErrNotFound
	}
	if err != nil {
		return content.Section{}, fmt.Errorf("update section: %w", uniqueViolation(err))
	}
	return updated, nil
}

func (s *PostgresStore) DeleteSection(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "sections", id)
}

const portfolioColumns = `id, title, discipline, client, client_url, description, images, videos, sort_order`

func (s *PostgresStore) ListPortfolio(ctx context.Context) ([]content.PortfolioEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+portfolioColumns+`
		FROM portfolio_entries
		ORDER BY COALESCE(sort_order, 0), created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	defer rows.Close()

	entries := make([]content.PortfolioEntry, 0)
	for rows.Next() {
		entry, err := scanPortfolioEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan portfolio entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetPortfolioEntry(ctx context.Context, id string) (content.PortfolioEntry, error) {
	entry, err := scanPortfolioEntry(s.db.QueryRowContext(ctx, `SELECT `+portfolioColumns+` FROM portfolio_entries WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return content.PortfolioEntry{}, ErrNotFound
	}
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("get portfolio entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) CreatePortfolioEntry(ctx context.Context, entry content.PortfolioEntry) (content.PortfolioEntry, error) {
	images, err := encodeMedia(entry.Images)
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("encode images: %w", err)
	}
	videos, err := encodeMedia(entry.Videos)
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("encode videos: %w", err)
	}

	entry.ID = util.NewID("pf")
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO portfolio_entries (id, title, discipline, client, client_url, description, images, videos, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9)
	`, entry.ID, entry.Title, entry.Discipline, entry.Client, entry.ClientURL, entry.Description, string(images), string(videos), entry.Order)
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("insert portfolio entry: %w", err)
	}
	return entry, nil
}

// UpdatePortfolioEntry replaces every field of the entry, media lists included.
func (s *PostgresStore) UpdatePortfolioEntry(ctx context.Context, entry content.PortfolioEntry) (content.PortfolioEntry, error) {
	images, err := encodeMedia(entry.Images)
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("encode images: %w", err)
	}
	videos, err := encodeMedia(entry.Videos)
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("encode videos: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE portfolio_entries
		SET title=$2, discipline=$3, client=$4, client_url=$5, description=$6,
			images=$7::jsonb, videos=$8::jsonb, sort_order=COALESCE($9, sort_order), updated_at=NOW()
		WHERE id=$1
		RETURNING `+portfolioColumns,
		entry.ID, entry.Title, entry.Discipline, entry.Client, entry.ClientURL, entry.Description, string(images), string(videos), entry.Order)
	updated, err := scanPortfolioEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.PortfolioEntry{}, ErrNotFound
	}
	if err != nil {
		return content.PortfolioEntry{}, fmt.Errorf("update portfolio entry: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) DeletePortfolioEntry(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "portfolio_entries", id)
}

func (s *PostgresStore) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s rows affected: %w", table, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyOrder writes order = index for every id in one transaction. Either every row is
// updated or none is.
func (s *PostgresStore) ApplyOrder(ctx context.Context, collection string, ids []string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE `+table+` SET sort_order=$1, updated_at=NOW() WHERE id=$2`)
	if err != nil {
		return fmt.Errorf("prepare order update: %w", err)
	}
	defer stmt.Close()

	for idx, id := range ids {
		res, err := stmt.ExecContext(ctx, idx, id)
		if err != nil {
			return fmt.Errorf("update %s order: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s order rows affected: %w", table, err)
		}
		if affected == 0 {
			return fmt.Errorf("order %s %q: %w", table, id, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
