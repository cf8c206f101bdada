package users

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
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

func userColumnNames() []string {
	return []string{"id", "email", "username", "first_name", "last_name", "department_id", "is_active", "external_id", "created_at", "updated_at", "last_login_at"}
}

func TestStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	dept := int64(2)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userColumnNames()).
			AddRow(7, "lead@college.edu", "lead", "Dana", "Okafor", dept, true, "oidc|abc", now, now, now))

	user, err := store.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "lead@college.edu", user.Email)
	require.NotNil(t, user.DepartmentID)
	assert.Equal(t, dept, *user.DepartmentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreEnsureFromExternal(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users .+ ON CONFLICT \(email\) DO UPDATE`).
		WithArgs("new@college.edu", "new", "Noor", "Haddad", "oidc|xyz").
		WillReturnRows(sqlmock.NewRows(userColumnNames()).
			AddRow(11, "new@college.edu", "new", "Noor", "Haddad", nil, true, "oidc|xyz", now, now, now))

	user, err := store.EnsureFromExternal(context.Background(), ExternalUser{
		ExternalID: "oidc|xyz",
		Email:      "new@college.edu",
		Username:   "new",
		FirstName:  "Noor",
		LastName:   "Haddad",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), user.ID)
	assert.True(t, user.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCountByDepartment(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE department_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := store.CountByDepartment(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestStoreUpdateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE users`).
		WillReturnError(sql.ErrNoRows)

	err := store.Update(context.Background(), &User{ID: 404})
	assert.ErrorIs(t, err, ErrNotFound)
}
