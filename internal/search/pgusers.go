package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgUsers implements Searcher with a case-insensitive substring scan over
// profiles. It is the fallback when Meilisearch is down or not configured.
type PgUsers struct {
	db *sql.DB
}

// NewPgUsers creates a PostgreSQL user searcher.
func NewPgUsers(db *sql.DB) *PgUsers {
	return &PgUsers{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgUsers) Healthy() bool {
	return true
}

// Search matches the query as a substring of username or display name.
func (p *PgUsers) Search(q Query) ([]UserRecord, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	limit := q.Bounded().Limit
	pattern := "%" + text + "%"

	ctx := context.Background()
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, display_name, COALESCE(avatar_url, '')
		FROM profiles
		WHERE username ILIKE $1 OR display_name ILIKE $1
		ORDER BY username
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pg user search: %w", err)
	}
	defer rows.Close()

	var results []UserRecord
	for rows.Next() {
		var r UserRecord
		if err := rows.Scan(&r.ID, &r.Username, &r.DisplayName, &r.AvatarURL); err != nil {
			return nil, 0, fmt.Errorf("pg user search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, len(results), rows.Err()
}

// LoadAllRecords returns every profile for full reindexing.
func (p *PgUsers) LoadAllRecords(ctx context.Context) ([]UserRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, display_name, COALESCE(avatar_url, '') FROM profiles
	`)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	records := make([]UserRecord, 0)
	for rows.Next() {
		var r UserRecord
		if err := rows.Scan(&r.ID, &r.Username, &r.DisplayName, &r.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
