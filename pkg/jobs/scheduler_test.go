package jobs

import (
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscms/campuscms/pkg/audit"
	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/content"
	"github.com/campuscms/campuscms/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestCleanupSessions(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	s := NewScheduler(auth.NewSessionStore(db, time.Hour), nil, nil, nil, testLogger(), 0)
	s.cleanupSessions()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPruneAuditLogsUsesRetention(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM audit_logs WHERE created_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 10))

	s := NewScheduler(nil, audit.NewStore(db), nil, nil, testLogger(), 30*24*time.Hour)
	s.pruneAuditLogs()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshPublishedGauges(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// One count query per content kind, blog first.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blog_posts WHERE status = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	for _, table := range []string{"publications", "reports", "research_activities", "success_stories"} {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM ` + table).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	}

	s := NewScheduler(nil, nil, content.NewStore(db), metrics, testLogger(), 0)
	s.refreshPublishedGauges()

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.PublishedContentGauge.WithLabelValues("blog_post")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishedContentGauge.WithLabelValues("report")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedulerStartStop(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewScheduler(auth.NewSessionStore(db, time.Hour), audit.NewStore(db), content.NewStore(db), nil, testLogger(), 0)
	require.NoError(t, s.Start())
	s.Stop()
}
