package rbac

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/observability"
)

func newTestChecker(t *testing.T) (*Checker, sqlmock.Sqlmock, *SubjectCache) {
	t.Helper()
	store, mock := newMockStore(t)
	cache, _ := newTestCache(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewChecker(store, cache, nil, nil, logger), mock, cache
}

func expectSubjectLoad(mock sqlmock.Sqlmock, userID int64, permsJSON string) {
	now := time.Now()
	mock.ExpectQuery(`SELECT department_id FROM users WHERE id = \$1`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"department_id"}).AddRow(nil))
	mock.ExpectQuery(`FROM roles r\s+JOIN user_roles ur`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(1, "custom", "", permsJSON, false, false, false, now, now))
}

func TestCheckerCheck(t *testing.T) {
	checker, mock, _ := newTestChecker(t)
	ctx := context.Background()

	expectSubjectLoad(mock, 5, `["blog:create"]`)

	allowed, err := checker.Check(ctx, 5, Perm(ResourceBlog, ActionCreate))
	require.NoError(t, err)
	assert.True(t, allowed)

	// Second check hits the cache; no further store expectations needed.
	allowed, err = checker.Check(ctx, 5, Perm(ResourceBlog, ActionDelete))
	require.NoError(t, err)
	assert.False(t, allowed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckerSubjectCachePopulation(t *testing.T) {
	checker, mock, cache := newTestChecker(t)
	ctx := context.Background()

	expectSubjectLoad(mock, 5, `["blog:read"]`)

	_, err := checker.Subject(ctx, 5)
	require.NoError(t, err)

	cached, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.HasPermission(Perm(ResourceBlog, ActionRead)))
}

func TestCheckerWithoutCache(t *testing.T) {
	store, mock := newMockStore(t)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	checker := NewChecker(store, nil, nil, nil, logger)
	ctx := context.Background()

	// Every check goes to the store when no cache is configured.
	expectSubjectLoad(mock, 5, `["blog:read"]`)
	expectSubjectLoad(mock, 5, `["blog:read"]`)

	for i := 0; i < 2; i++ {
		allowed, err := checker.Check(ctx, 5, Perm(ResourceBlog, ActionRead))
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckerCheckDepartment(t *testing.T) {
	checker, mock, _ := newTestChecker(t)
	ctx := context.Background()
	now := time.Now()
	dept := int64(7)

	mock.ExpectQuery(`SELECT department_id FROM users WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"department_id"}).AddRow(dept))
	mock.ExpectQuery(`FROM roles r\s+JOIN user_roles ur`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(roleColumns()).
			AddRow(2, "department_lead", "", `["staff:read"]`, false, true, true, now, now))

	allowed, err := checker.CheckDepartment(ctx, 3, &dept)
	require.NoError(t, err)
	assert.True(t, allowed)

	other := int64(8)
	allowed, err = checker.CheckDepartment(ctx, 3, &other)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = checker.CheckDepartment(ctx, 3, nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckerUnknownUser(t *testing.T) {
	checker, mock, _ := newTestChecker(t)

	mock.ExpectQuery(`SELECT department_id FROM users WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := checker.Check(context.Background(), 404, Perm(ResourceBlog, ActionRead))
	assert.ErrorIs(t, err, ErrUserNotFound)
}
