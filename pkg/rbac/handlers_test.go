package rbac

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/contextkeys"
	"github.com/campuscms/campuscms/pkg/httputil"
	"github.com/campuscms/campuscms/pkg/observability"
)

func newTestHandlers(t *testing.T) (*Handlers, sqlmock.Sqlmock, *SubjectCache) {
	t.Helper()
	store, mock := newMockStore(t)
	cache, _ := newTestCache(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	checker := NewChecker(store, cache, nil, nil, logger)
	return NewHandlers(store, checker, logger), mock, cache
}

func serveRole(h *Handlers, req *http.Request) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterRoutes(router.PathPrefix("/cms").Subrouter())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandlersListRoles(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM roles\s+ORDER BY name`).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(1, "administrator", "full access", `["*"]`, true, false, true, now, now).
			AddRow(2, "viewer", "read only", `["blog:read"]`, false, false, true, now, now))

	rec := serveRole(h, httptest.NewRequest(http.MethodGet, "/cms/roles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Empty(t, env.Error)
	roles, ok := env.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, roles, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlersGetRoleNotFound(t *testing.T) {
	h, mock, _ := newTestHandlers(t)

	mock.ExpectQuery(`FROM roles\s+WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	rec := serveRole(h, httptest.NewRequest(http.MethodGet, "/cms/roles/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "role not found", decodeEnvelope(t, rec).Error)
}

func TestHandlersCreateRole(t *testing.T) {
	h, mock, _ := newTestHandlers(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO roles`).
		WithArgs("reviewer", "reviews submissions", `["blog:read","blog:update"]`, false, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))

	body := `{"name":"reviewer","description":"reviews submissions","permissions":["blog:read","blog:update"]}`
	req := httptest.NewRequest(http.MethodPost, "/cms/roles", bytes.NewBufferString(body))
	rec := serveRole(h, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlersCreateRoleDuplicate(t *testing.T) {
	h, mock, _ := newTestHandlers(t)

	mock.ExpectQuery(`INSERT INTO roles`).
		WillReturnError(&pq.Error{Code: "23505"})

	body := `{"name":"editor","permissions":["blog:read"]}`
	rec := serveRole(h, httptest.NewRequest(http.MethodPost, "/cms/roles", bytes.NewBufferString(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "A role with this name already exists", decodeEnvelope(t, rec).Error)
}

func TestHandlersCreateRoleRejectsUnknownPermission(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	body := `{"name":"x","permissions":["blog:frobnicate"]}`
	rec := serveRole(h, httptest.NewRequest(http.MethodPost, "/cms/roles", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlersCreateRoleRejectsUnknownFields(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	body := `{"name":"x","permissions":[],"bogus":true}`
	rec := serveRole(h, httptest.NewRequest(http.MethodPost, "/cms/roles", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlersAssignRoleInvalidatesCache(t *testing.T) {
	h, mock, cache := newTestHandlers(t)
	ctx := context.Background()

	// Pre-populate the target user's cached subject.
	require.NoError(t, cache.Set(ctx, &Subject{UserID: 12}))

	mock.ExpectExec(`INSERT INTO user_roles`).
		WithArgs(int64(12), int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodPost, "/cms/roles/3/assignments",
		bytes.NewBufferString(`{"user_id":12}`))
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "1"))

	rec := serveRole(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	cached, err := cache.Get(ctx, 12)
	require.NoError(t, err)
	assert.Nil(t, cached, "assignment must drop the cached subject")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandlersRevokeRoleNotAssigned(t *testing.T) {
	h, mock, _ := newTestHandlers(t)

	mock.ExpectExec(`DELETE FROM user_roles`).
		WithArgs(int64(12), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := serveRole(h, httptest.NewRequest(http.MethodDelete, "/cms/roles/3/assignments/12", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlersListPermissions(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := serveRole(h, httptest.NewRequest(http.MethodGet, "/cms/permissions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	perms, ok := env.Data.([]interface{})
	require.True(t, ok)
	assert.Contains(t, perms, "blog:publish")
	assert.Contains(t, perms, "role:assign")
	assert.NotContains(t, perms, "*")
}
