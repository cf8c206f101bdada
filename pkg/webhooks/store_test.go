package webhooks

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

func subscriptionColumnNames() []string {
	return []string{"id", "name", "url", "secret", "events", "is_active", "created_by", "created_at", "updated_at"}
}

func TestCreateSubscriptionPersists(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO webhook_subscriptions`).
		WithArgs("campus-app", "https://app.college.edu/hooks", "s3cret", pq.Array([]string{"blog_post.update"}), true, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, now, now))

	sub := &Subscription{
		Name:     "campus-app",
		URL:      "https://app.college.edu/hooks",
		Secret:   "s3cret",
		Events:   []string{"blog_post.update"},
		IsActive: true,
	}
	require.NoError(t, store.Create(context.Background(), sub))
	assert.Equal(t, int64(1), sub.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActiveForEventMatchesWildcard(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`FROM webhook_subscriptions\s+WHERE is_active`).
		WithArgs("blog_post.create", "*").
		WillReturnRows(sqlmock.NewRows(subscriptionColumnNames()).
			AddRow(1, "catch-all", "https://example.edu/hook", "", `{*}`, true, nil, now, now).
			AddRow(2, "blog-only", "https://example.edu/blog", "k", `{blog_post.create,blog_post.update}`, true, nil, now, now))

	subs, err := store.ListActiveForEvent(context.Background(), "blog_post.create")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, []string{"*"}, subs[0].Events)
	assert.Equal(t, []string{"blog_post.create", "blog_post.update"}, subs[1].Events)
}

func TestDeleteSubscriptionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM webhook_subscriptions WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetActiveTogglesSubscription(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE webhook_subscriptions SET is_active = \$2`).
		WithArgs(int64(4), false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetActive(context.Background(), 4, false))
	require.NoError(t, mock.ExpectationsWereMet())
}
