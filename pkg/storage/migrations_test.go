package storage

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)

	seen := make(map[int]bool)
	last := 0
	for _, m := range migrations {
		assert.Greater(t, m.Version, last, "versions must be strictly increasing")
		assert.False(t, seen[m.Version])
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
		seen[m.Version] = true
		last = m.Version
	}
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"version"})
	for _, m := range Migrations() {
		rows.AddRow(m.Version)
	}
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).WillReturnRows(rows)

	require.NoError(t, RunMigrations(context.Background(), db, testLogger()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	migrations := Migrations()
	pending := migrations[len(migrations)-1]

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"version"})
	for _, m := range migrations[:len(migrations)-1] {
		rows.AddRow(m.Version)
	}
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS webhook_subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(pending.Version, pending.Description).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), db, testLogger()))
	require.NoError(t, mock.ExpectationsWereMet())
}
