package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over sections and portfolio entries ranked by ts_rank, with
// ts_headline snippets. Prefix matching lets partial words hit.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	tsQuery := prefixQuery(q.Text)
	if tsQuery == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const match = "to_tsquery('english', $1)"
	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultSection {
		subQueries = append(subQueries, `
			SELECT 'section'::text AS type, s.id, s.key, s.label AS title,
				ts_headline('english', regexp_replace(coalesce(s.content, ''), '<[^>]*>', ' ', 'g'), `+match+`, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(s.fts, `+match+`) AS rank
			FROM sections s
			WHERE s.fts @@ `+match)
	}

	if q.FilterType == "" || q.FilterType == ResultPortfolio {
		subQueries = append(subQueries, `
			SELECT 'portfolio'::text AS type, p.id, ''::text AS key, p.title,
				ts_headline('english', coalesce(p.description, ''), `+match+`, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(p.fts, `+match+`) AS rank
			FROM portfolio_entries p
			WHERE p.fts @@ `+match)
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), tsQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, key, title, snippet
		FROM (%s) sub
		ORDER BY rank DESC, title
		LIMIT %d OFFSET %d`, union, limit, offset), tsQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Key, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// prefixQuery turns free text into a to_tsquery expression of AND-ed prefix terms.
// Characters with tsquery meaning are dropped.
func prefixQuery(text string) string {
	var terms []string
	for _, field := range strings.Fields(text) {
		cleaned := strings.Map(func(r rune) rune {
			switch r {
			case '&', '|', '!', '(', ')', ':', '*', '\'', '\\', '<', '>':
				return -1
			}
			return r
		}, field)
		if cleaned != "" {
			terms = append(terms, cleaned+":*")
		}
	}
	return strings.Join(terms, " & ")
}
