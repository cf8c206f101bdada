package audit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/observability"
)

func newTestMiddleware(t *testing.T) (*Middleware, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewMiddleware(NewStore(db), logger), mock
}

func TestMiddlewareRecordsMutation(t *testing.T) {
	m, mock := newTestMiddleware(t)

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/cms/blog", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: 3}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddlewareSkipsReadsAndFailures(t *testing.T) {
	m, mock := newTestMiddleware(t)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	// Reads are never recorded.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cms/blog", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Denied mutations are not recorded either.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cms/blog/7", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceFromPath(t *testing.T) {
	assert.Equal(t, "blog", resourceFromPath("/cms/blog/7"))
	assert.Equal(t, "roles", resourceFromPath("/cms/roles"))
	assert.Equal(t, "logout", resourceFromPath("/auth/logout"))
	assert.Equal(t, "unknown", resourceFromPath("/"))
}

func TestResourceIDFromPath(t *testing.T) {
	assert.Equal(t, "7", resourceIDFromPath("/cms/blog/7"))
	assert.Equal(t, "5", resourceIDFromPath("/cms/roles/5/assignments"))
	assert.Equal(t, "", resourceIDFromPath("/cms/blog"))
}
