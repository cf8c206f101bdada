package content

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateBlogPostDuplicateSlug(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO blog_posts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "blog_posts_slug_key"})

	err := store.CreateBlogPost(context.Background(), &BlogPost{
		Title: "Hello World", Slug: "hello-world", Status: StatusDraft,
	})
	assert.ErrorIs(t, err, ErrSlugExists)
}

func TestUpdateBlogPostSnapshotsPriorVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	prior := &BlogPost{ID: 7, Title: "Old Title", Slug: "old-title", Content: "old body", Status: StatusDraft}
	updated := *prior
	updated.Title = "New Title"
	updated.Content = "new body"

	editor := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO content_versions`).
		WithArgs(string(KindBlog), int64(7), "Old Title", "old body", &editor).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_number", "created_at"}).AddRow(1, 1, now))
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	version, err := store.UpdateBlogPost(context.Background(), &updated, prior, &editor)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, int64(1), version.VersionNumber)
	assert.Equal(t, "Old Title", version.Title)
	assert.Equal(t, "old body", version.Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBlogPostNoContentChangeSkipsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	prior := &BlogPost{ID: 7, Title: "Same Title", Slug: "same-title", Content: "same body", Status: StatusDraft}
	updated := *prior
	updated.Status = StatusPublished
	publishedAt := now
	updated.PublishedAt = &publishedAt

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	version, err := store.UpdateBlogPost(context.Background(), &updated, prior, nil)
	require.NoError(t, err)
	assert.Nil(t, version, "status-only change must not snapshot a version")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBlogPostTitleOnlyChangeSkipsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	prior := &BlogPost{ID: 7, Title: "Old Title", Slug: "old-title", Content: "same body", Status: StatusDraft}
	updated := *prior
	updated.Title = "New Title"

	editor := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	version, err := store.UpdateBlogPost(context.Background(), &updated, prior, &editor)
	require.NoError(t, err)
	assert.Nil(t, version, "title-only change must not snapshot a version")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBlogPostMissing(t *testing.T) {
	store, mock := newMockStore(t)

	prior := &BlogPost{ID: 99, Title: "Gone", Slug: "gone", Content: "x"}
	updated := *prior

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	mock.ExpectRollback()

	_, err := store.UpdateBlogPost(context.Background(), &updated, prior, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateItemSnapshotsVersionInSameTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	prior := &Item{ID: 4, Kind: KindReport, Title: "Q1 Report", Body: "draft text", Status: StatusDraft}
	updated := *prior
	updated.Body = "final text"

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO content_versions`).
		WithArgs(string(KindReport), int64(4), "Q1 Report", "draft text", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_number", "created_at"}).AddRow(9, 3, now))
	mock.ExpectQuery(`UPDATE reports`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	version, err := store.UpdateItem(context.Background(), &updated, prior, nil)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, int64(3), version.VersionNumber)
	assert.Equal(t, KindReport, version.ContentType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemTitleOnlyChangeSkipsVersion(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	prior := &Item{ID: 4, Kind: KindReport, Title: "Q1 Report", Body: "same text", Status: StatusDraft}
	updated := *prior
	updated.Title = "Q1 Financial Report"

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE reports`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectCommit()

	version, err := store.UpdateItem(context.Background(), &updated, prior, nil)
	require.NoError(t, err)
	assert.Nil(t, version, "title-only change must not snapshot a version")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItemRemovesVersionHistory(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM publications WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM content_versions WHERE content_type = \$1 AND content_id = \$2`).
		WithArgs(string(KindPublication), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.DeleteItem(context.Background(), KindPublication, 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItemMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM reports WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteItem(context.Background(), KindReport, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetItemUnknownKind(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.GetItem(context.Background(), Kind("page"), 1)
	assert.Error(t, err)
}

func TestListVersionsNewestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM content_versions`).
		WithArgs(string(KindBlog), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content_type", "content_id", "version_number", "title", "content", "edited_by", "created_at"}).
			AddRow(2, "blog_post", 7, 2, "Second", "b", nil, now).
			AddRow(1, "blog_post", 7, 1, "First", "a", nil, now.Add(-time.Hour)))

	versions, err := store.ListVersions(context.Background(), KindBlog, 7)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, int64(2), versions[0].VersionNumber)
	assert.Equal(t, int64(1), versions[1].VersionNumber)
}

func TestBlogSlugExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE slug = \$1 AND id <> \$2`).
		WithArgs("hello-world", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	taken, err := store.BlogSlugExists(context.Background(), "hello-world", 0)
	require.NoError(t, err)
	assert.True(t, taken)
}
