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

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always reports true; a Postgres outage fails requests before
// search is consulted.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across entries and projects using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Entries sub-query
	if q.FilterType == "" || q.FilterType == ResultEntry {
		entryWhere := "e.fts @@ " + tsQuery
		if q.FilterProjectID != "" {
			entryWhere += fmt.Sprintf(" AND e.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		if q.FilterEntryType != "" {
			entryWhere += fmt.Sprintf(" AND e.entry_type = $%d", argN)
			args = append(args, q.FilterEntryType)
			argN++
		}
		if q.FilterColor != "" {
			entryWhere += fmt.Sprintf(" AND e.status_color = $%d", argN)
			args = append(args, q.FilterColor)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'entry'::text AS type, e.id::text, e.title,
				ts_headline('english', coalesce(e.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				e.project_id, e.entry_type, e.status_color,
				ts_rank(e.fts, %s) AS rank
			FROM entries e
			WHERE %s`, tsQuery, tsQuery, entryWhere))
	}

	// Projects sub-query; project-scoped filters exclude it entirely.
	if (q.FilterType == "" || q.FilterType == ResultProject) &&
		q.FilterProjectID == "" && q.FilterEntryType == "" && q.FilterColor == "" {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'project'::text AS type, p.project_id AS id, p.name AS title,
				''::text AS snippet,
				p.project_id, ''::text AS entry_type, ''::text AS status_color,
				ts_rank(to_tsvector('english', p.name), %s) AS rank
			FROM projects p
			WHERE to_tsvector('english', p.name) @@ %s`, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// Count query
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	// Data query
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id, entry_type, status_color
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.EntryType, &r.Color); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]EntryRecord, []ProjectRecord, error) {
	entryRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, content, project_id, entry_type, status_color
		FROM entries
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load entries: %w", err)
	}
	defer entryRows.Close()

	entries := make([]EntryRecord, 0)
	for entryRows.Next() {
		var e EntryRecord
		if err := entryRows.Scan(&e.ID, &e.Title, &e.Content, &e.ProjectID, &e.EntryType, &e.Color); err != nil {
			return nil, nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := entryRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate entries: %w", err)
	}

	projectRows, err := p.db.QueryContext(ctx, `
		SELECT project_id, name
		FROM projects
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load projects: %w", err)
	}
	defer projectRows.Close()

	projects := make([]ProjectRecord, 0)
	for projectRows.Next() {
		var pr ProjectRecord
		if err := projectRows.Scan(&pr.ID, &pr.Name); err != nil {
			return nil, nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, pr)
	}
	if err := projectRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate projects: %w", err)
	}

	return entries, projects, nil
}
