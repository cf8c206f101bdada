package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Result is one match on the public site. Slug is set only for blog
// posts; document collections are addressed by ID.
type Result struct {
	Type        string     `json:"type"`
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug,omitempty"`
	Snippet     string     `json:"snippet"`
	PublishedAt *time.Time `json:"published_at"`
	Rank        float64    `json:"-"`
}

// source describes one searchable table. Blog posts keep their text in
// "content" and carry a slug; the document collections use "body".
type source struct {
	kind    string
	table   string
	textCol string
	slug    bool
}

var sources = []source{
	{kind: "blog_post", table: "blog_posts", textCol: "content", slug: true},
	{kind: "publication", table: "publications", textCol: "body"},
	{kind: "report", table: "reports", textCol: "body"},
	{kind: "research_activity", table: "research_activities", textCol: "body"},
	{kind: "success_story", table: "success_stories", textCol: "body"},
}

// Store runs search queries against PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a search store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var searchQuery = buildSearchQuery()

// buildSearchQuery assembles one statement unioning every published
// collection, ranked by relevance. Only published rows are visible, the
// same rule the public content endpoints apply.
func buildSearchQuery() string {
	selects := make([]string, 0, len(sources))
	for _, src := range sources {
		slugExpr := "''"
		if src.slug {
			slugExpr = "slug"
		}
		selects = append(selects, fmt.Sprintf(`
			SELECT '%s' AS type, id, title, %s AS slug,
				ts_headline('english', %s, plainto_tsquery('english', $1), 'MaxWords=40, MinWords=15') AS snippet,
				published_at,
				ts_rank(to_tsvector('english', title || ' ' || %s), plainto_tsquery('english', $1)) AS rank
			FROM %s
			WHERE status = 'published'
				AND to_tsvector('english', title || ' ' || %s) @@ plainto_tsquery('english', $1)`,
			src.kind, slugExpr, src.textCol, src.textCol, src.table, src.textCol))
	}
	return "SELECT type, id, title, slug, snippet, published_at, rank FROM (" +
		strings.Join(selects, "\n			UNION ALL\n") +
		"\n		) matches ORDER BY rank DESC, published_at DESC LIMIT $2 OFFSET $3"
}

// Query returns published content matching the terms, best match first
func (s *Store) Query(ctx context.Context, terms string, limit, offset int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, searchQuery, terms, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to run search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var result Result
		if err := rows.Scan(&result.Type, &result.ID, &result.Title, &result.Slug,
			&result.Snippet, &result.PublishedAt, &result.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
