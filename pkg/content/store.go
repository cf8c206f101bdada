package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound indicates the requested content does not exist
	ErrNotFound = errors.New("content not found")
	// ErrSlugExists indicates another blog post already uses the slug
	ErrSlugExists = errors.New("slug already exists")
)

// Store persists content and version history in PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a content store backed by the given database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const blogColumns = `id, title, slug, content, excerpt, cover_image_url, author_id, department_id, status, published_at, created_at, updated_at`

// CreateBlogPost inserts a blog post
func (s *Store) CreateBlogPost(ctx context.Context, post *BlogPost) error {
	query := `
		INSERT INTO blog_posts (title, slug, content, excerpt, cover_image_url, author_id, department_id, status, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		post.Title, post.Slug, post.Content, post.Excerpt, post.CoverImageURL,
		post.AuthorID, post.DepartmentID, post.Status, post.PublishedAt,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrSlugExists
		}
		return fmt.Errorf("failed to create blog post: %w", err)
	}
	return nil
}

// GetBlogPost fetches a blog post by ID
func (s *Store) GetBlogPost(ctx context.Context, id int64) (*BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts WHERE id = $1`
	return s.scanBlogPost(s.db.QueryRowContext(ctx, query, id))
}

// GetBlogPostBySlug fetches a blog post by slug
func (s *Store) GetBlogPostBySlug(ctx context.Context, slug string) (*BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts WHERE slug = $1`
	return s.scanBlogPost(s.db.QueryRowContext(ctx, query, slug))
}

// BlogSlugExists reports whether a slug is taken, excluding the given ID
func (s *Store) BlogSlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blog_posts WHERE slug = $1 AND id <> $2`,
		slug, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check blog slug: %w", err)
	}
	return count > 0, nil
}

// ListBlogPosts returns blog posts newest first, optionally filtered by
// status
func (s *Store) ListBlogPosts(ctx context.Context, status *Status, limit, offset int64) ([]BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blog posts: %w", err)
	}
	defer rows.Close()

	var posts []BlogPost
	for rows.Next() {
		post, err := s.scanBlogPostRow(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// ListPublishedBlogPosts returns published posts newest first by
// publication time
func (s *Store) ListPublishedBlogPosts(ctx context.Context, limit, offset int64) ([]BlogPost, error) {
	query := `SELECT ` + blogColumns + ` FROM blog_posts WHERE status = $1 ORDER BY published_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, StatusPublished, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list published blog posts: %w", err)
	}
	defer rows.Close()

	var posts []BlogPost
	for rows.Next() {
		post, err := s.scanBlogPostRow(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// UpdateBlogPost persists the post and, when the content changed,
// snapshots the prior title and content as a new version in the same
// transaction. Title-only and metadata edits do not version. Returns
// the version snapshot, or nil when the content is unchanged.
func (s *Store) UpdateBlogPost(ctx context.Context, post *BlogPost, prior *BlogPost, editedBy *int64) (*Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version *Version
	if prior.Content != post.Content {
		version, err = s.insertVersion(ctx, tx, KindBlog, post.ID, prior.Title, prior.Content, editedBy)
		if err != nil {
			return nil, err
		}
	}

	query := `
		UPDATE blog_posts
		SET title = $2, slug = $3, content = $4, excerpt = $5, cover_image_url = $6,
		    department_id = $7, status = $8, published_at = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err = tx.QueryRowContext(ctx, query,
		post.ID, post.Title, post.Slug, post.Content, post.Excerpt, post.CoverImageURL,
		post.DepartmentID, post.Status, post.PublishedAt,
	).Scan(&post.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrSlugExists
		}
		return nil, fmt.Errorf("failed to update blog post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit blog post update: %w", err)
	}
	return version, nil
}

// DeleteBlogPost removes a blog post and its version history
func (s *Store) DeleteBlogPost(ctx context.Context, id int64) error {
	return s.deleteWithVersions(ctx, "blog_posts", KindBlog, id)
}

// CreateItem inserts a document-style content record
func (s *Store) CreateItem(ctx context.Context, item *Item) error {
	table, err := TableForKind(item.Kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (title, body, file_url, department_id, status, published_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`, table)

	err = s.db.QueryRowContext(ctx, query,
		item.Title, item.Body, item.FileURL, item.DepartmentID,
		item.Status, item.PublishedAt, item.CreatedBy,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", item.Kind, err)
	}
	return nil
}

const itemColumns = `id, title, body, file_url, department_id, status, published_at, created_by, created_at, updated_at`

// GetItem fetches a document-style record by kind and ID
func (s *Store) GetItem(ctx context.Context, kind Kind, id int64) (*Item, error) {
	table, err := TableForKind(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT `+itemColumns+` FROM %s WHERE id = $1`, table)

	item := &Item{Kind: kind}
	err = s.db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.Title, &item.Body, &item.FileURL, &item.DepartmentID,
		&item.Status, &item.PublishedAt, &item.CreatedBy,
		&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	return item, nil
}

// ListItems returns records of one kind newest first, optionally filtered
// by status
func (s *Store) ListItems(ctx context.Context, kind Kind, status *Status, limit, offset int64) ([]Item, error) {
	table, err := TableForKind(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT `+itemColumns+` FROM %s`, table)
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item := Item{Kind: kind}
		if err := rows.Scan(&item.ID, &item.Title, &item.Body, &item.FileURL,
			&item.DepartmentID, &item.Status, &item.PublishedAt, &item.CreatedBy,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem persists the record and, when the body changed, snapshots
// the prior title and body as a version in the same transaction.
// Title-only and metadata edits do not version.
func (s *Store) UpdateItem(ctx context.Context, item *Item, prior *Item, editedBy *int64) (*Version, error) {
	table, err := TableForKind(item.Kind)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var version *Version
	if prior.Body != item.Body {
		version, err = s.insertVersion(ctx, tx, item.Kind, item.ID, prior.Title, prior.Body, editedBy)
		if err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $2, body = $3, file_url = $4, department_id = $5,
		    status = $6, published_at = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`, table)

	err = tx.QueryRowContext(ctx, query,
		item.ID, item.Title, item.Body, item.FileURL, item.DepartmentID,
		item.Status, item.PublishedAt,
	).Scan(&item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", item.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s update: %w", item.Kind, err)
	}
	return version, nil
}

// DeleteItem removes a document-style record and its version history
func (s *Store) DeleteItem(ctx context.Context, kind Kind, id int64) error {
	table, err := TableForKind(kind)
	if err != nil {
		return err
	}
	return s.deleteWithVersions(ctx, table, kind, id)
}

// ListVersions returns an item's version history, newest first
func (s *Store) ListVersions(ctx context.Context, kind Kind, contentID int64) ([]Version, error) {
	query := `
		SELECT id, content_type, content_id, version_number, title, content, edited_by, created_at
		FROM content_versions
		WHERE content_type = $1 AND content_id = $2
		ORDER BY version_number DESC`

	rows, err := s.db.QueryContext(ctx, query, kind, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.ContentType, &v.ContentID, &v.VersionNumber,
			&v.Title, &v.Content, &v.EditedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CountPublished returns the number of published rows in a table, used
// for the published-content gauge
func (s *Store) CountPublished(ctx context.Context, kind Kind) (int64, error) {
	table := "blog_posts"
	if kind != KindBlog {
		var err error
		table, err = TableForKind(kind)
		if err != nil {
			return 0, err
		}
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE status = $1`, table),
		StatusPublished).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count published %s: %w", kind, err)
	}
	return count, nil
}

// insertVersion snapshots prior title/content with the next version
// number for the (content_type, content_id) pair. The max+1 subquery runs
// inside the update transaction, so concurrent editors cannot mint the
// same number.
func (s *Store) insertVersion(ctx context.Context, tx *sql.Tx, kind Kind, contentID int64, priorTitle, priorContent string, editedBy *int64) (*Version, error) {
	query := `
		INSERT INTO content_versions (content_type, content_id, version_number, title, content, edited_by, created_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(version_number), 0) + 1 FROM content_versions WHERE content_type = $1 AND content_id = $2),
			$3, $4, $5, NOW())
		RETURNING id, version_number, created_at`

	version := &Version{
		ContentType: kind,
		ContentID:   contentID,
		Title:       priorTitle,
		Content:     priorContent,
		EditedBy:    editedBy,
	}
	err := tx.QueryRowContext(ctx, query, kind, contentID, priorTitle, priorContent, editedBy).
		Scan(&version.ID, &version.VersionNumber, &version.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert content version: %w", err)
	}
	return version, nil
}

func (s *Store) deleteWithVersions(ctx context.Context, table string, kind Kind, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM content_versions WHERE content_type = $1 AND content_id = $2`,
		kind, id); err != nil {
		return fmt.Errorf("failed to delete version history: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanBlogPost(row rowScanner) (*BlogPost, error) {
	post, err := s.scanBlogPostRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return post, err
}

func (s *Store) scanBlogPostRow(row rowScanner) (*BlogPost, error) {
	var post BlogPost
	err := row.Scan(&post.ID, &post.Title, &post.Slug, &post.Content, &post.Excerpt,
		&post.CoverImageURL, &post.AuthorID, &post.DepartmentID, &post.Status,
		&post.PublishedAt, &post.CreatedAt, &post.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan blog post: %w", err)
	}
	return &post, nil
}
