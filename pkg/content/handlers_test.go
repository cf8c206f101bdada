package content

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
	"github.com/campuscms/campuscms/pkg/rbac"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache, err := NewPublicCache(16, nil)
	require.NoError(t, err)

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	h := NewHandlers(NewStore(db), cache, nil, nil, logger)
	h.now = func() time.Time { return fixedNow }
	return h, mock
}

func editorIdentity() *auth.Identity {
	return &auth.Identity{
		UserID: 1,
		Roles:  []rbac.Role{{Name: "editor", Permissions: []rbac.Permission{rbac.Wildcard()}, IsAdmin: true}},
	}
}

func leadIdentity(departmentID int64) *auth.Identity {
	return &auth.Identity{
		UserID:       2,
		DepartmentID: &departmentID,
		Roles:        []rbac.Role{{Name: "department_lead", IsDepartmentLead: true}},
	}
}

func withIdentity(r *http.Request, identity *auth.Identity) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func blogColumnNames() []string {
	return []string{"id", "title", "slug", "content", "excerpt", "cover_image_url", "author_id", "department_id", "status", "published_at", "created_at", "updated_at"}
}

func TestCreateBlogPostDerivesUniqueSlug(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE slug = \$1`).
		WithArgs("hello-world", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE slug = \$1`).
		WithArgs("hello-world-1", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, fixedNow, fixedNow))

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"Hello, World!"}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusCreated, rec.Code)
	var post BlogPost
	decodeData(t, rec, &post)
	assert.Equal(t, "hello-world-1", post.Slug)
	assert.Equal(t, StatusDraft, post.Status)
	assert.Nil(t, post.PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBlogPostPublishSetsTimestamp(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE slug = \$1`).
		WithArgs("launch-day", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, fixedNow, fixedNow))

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"Launch Day","status":"published"}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusCreated, rec.Code)
	var post BlogPost
	decodeData(t, rec, &post)
	require.NotNil(t, post.PublishedAt)
	assert.True(t, post.PublishedAt.Equal(fixedNow))
}

func TestCreateBlogPostInvalidStatus(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"X","status":"live"}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, editorIdentity()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBlogPostOutsideLeadDepartment(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"X","department_id":9}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, leadIdentity(4)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateBlogPostPublishRequiresPermission(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"X","status":"published","department_id":4}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, leadIdentity(4)))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "blog:publish")
}

func TestUpdateBlogPostUnpublishClearsTimestamp(t *testing.T) {
	h, mock := newTestHandlers(t)
	published := fixedNow.Add(-24 * time.Hour)

	mock.ExpectQuery(`FROM blog_posts WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(blogColumnNames()).
			AddRow(7, "Launch Day", "launch-day", "body", "", "", nil, nil, "published", published, fixedNow, fixedNow))
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectCommit()

	body := `{"title":"Launch Day","content":"body","status":"draft"}`
	req := httptest.NewRequest(http.MethodPut, "/cms/blog/7", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.UpdateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusOK, rec.Code)
	var post BlogPost
	decodeData(t, rec, &post)
	assert.Nil(t, post.PublishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBlogPostContentChangeCreatesVersion(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`FROM blog_posts WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(blogColumnNames()).
			AddRow(7, "Old Title", "old-title", "old body", "", "", nil, nil, "draft", nil, fixedNow, fixedNow))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO content_versions`).
		WithArgs("blog_post", int64(7), "Old Title", "old body", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_number", "created_at"}).AddRow(1, 1, fixedNow))
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectCommit()

	body := `{"title":"Old Title","content":"new body","status":"draft"}`
	req := httptest.NewRequest(http.MethodPut, "/cms/blog/7", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.UpdateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBlogPostHandlerTitleOnlyChangeSkipsVersion(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`FROM blog_posts WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(blogColumnNames()).
			AddRow(7, "Old Title", "old-title", "same body", "", "", nil, nil, "draft", nil, fixedNow, fixedNow))
	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(fixedNow))
	mock.ExpectCommit()

	body := `{"title":"New Title","content":"same body","status":"draft"}`
	req := httptest.NewRequest(http.MethodPut, "/cms/blog/7", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"id": "7"})
	rec := httptest.NewRecorder()
	h.UpdateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItemRejectsPendingReview(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/cms/publications",
		bytes.NewBufferString(`{"title":"Paper","status":"pending_review"}`))
	rec := httptest.NewRecorder()
	h.CreateItem(KindPublication)(rec, withIdentity(req, editorIdentity()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateItemDefaultsToDraft(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`INSERT INTO success_stories`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(2, fixedNow, fixedNow))

	req := httptest.NewRequest(http.MethodPost, "/cms/success-stories",
		bytes.NewBufferString(`{"title":"Alumni Spotlight"}`))
	rec := httptest.NewRecorder()
	h.CreateItem(KindSuccessStory)(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusCreated, rec.Code)
	var item Item
	decodeData(t, rec, &item)
	assert.Equal(t, StatusDraft, item.Status)
	assert.Equal(t, KindSuccessStory, item.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBlogPostsInvalidStatusFilter(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/cms/blog?status=live", nil)
	rec := httptest.NewRecorder()
	h.ListBlogPosts(rec, withIdentity(req, editorIdentity()))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicBlogBySlugHidesUnpublished(t *testing.T) {
	h, mock := newTestHandlers(t)

	mock.ExpectQuery(`FROM blog_posts WHERE slug = \$1`).
		WithArgs("secret-draft").
		WillReturnRows(sqlmock.NewRows(blogColumnNames()).
			AddRow(7, "Secret", "secret-draft", "body", "", "", nil, nil, "draft", nil, fixedNow, fixedNow))

	req := httptest.NewRequest(http.MethodGet, "/public/blog/secret-draft", nil)
	req = mux.SetURLVars(req, map[string]string{"slug": "secret-draft"})
	rec := httptest.NewRecorder()
	h.PublicBlogBySlug(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicBlogListServedFromCacheOnSecondRequest(t *testing.T) {
	h, mock := newTestHandlers(t)
	published := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(`FROM blog_posts WHERE status = \$1`).
		WithArgs(string(StatusPublished), int64(20), int64(0)).
		WillReturnRows(sqlmock.NewRows(blogColumnNames()).
			AddRow(7, "Launch Day", "launch-day", "body", "", "", nil, nil, "published", published, fixedNow, fixedNow))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/public/blog", nil)
		rec := httptest.NewRecorder()
		h.PublicBlogList(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// A single SQL expectation covers both requests: the second is a
	// cache hit.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMutationPurgesPublicCache(t *testing.T) {
	h, mock := newTestHandlers(t)

	h.cache.Add("public:blog:list:20:0", []BlogPost{})
	require.Equal(t, 1, h.cache.Len())

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE slug = \$1`).
		WithArgs("fresh-post", int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO blog_posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(3, fixedNow, fixedNow))

	req := httptest.NewRequest(http.MethodPost, "/cms/blog",
		bytes.NewBufferString(`{"title":"Fresh Post"}`))
	rec := httptest.NewRecorder()
	h.CreateBlogPost(rec, withIdentity(req, editorIdentity()))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 0, h.cache.Len())
}
