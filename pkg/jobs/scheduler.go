// Package jobs runs the periodic maintenance work: expired session
// cleanup, audit log retention and the published-content gauges.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/campuscms/campuscms/pkg/audit"
	"github.com/campuscms/campuscms/pkg/auth"
	"github.com/campuscms/campuscms/pkg/content"
	"github.com/campuscms/campuscms/pkg/observability"
)

const defaultAuditRetention = 90 * 24 * time.Hour

// Scheduler owns the cron runner and the maintenance jobs
type Scheduler struct {
	cron           *cron.Cron
	sessions       *auth.SessionStore
	auditStore     *audit.Store
	contentStore   *content.Store
	metrics        *observability.Metrics
	logger         *observability.Logger
	auditRetention time.Duration
}

// NewScheduler creates the scheduler. auditRetention <= 0 uses 90 days;
// any store may be nil to skip its job.
func NewScheduler(sessions *auth.SessionStore, auditStore *audit.Store, contentStore *content.Store, metrics *observability.Metrics, logger *observability.Logger, auditRetention time.Duration) *Scheduler {
	if auditRetention <= 0 {
		auditRetention = defaultAuditRetention
	}
	return &Scheduler{
		cron:           cron.New(),
		sessions:       sessions,
		auditStore:     auditStore,
		contentStore:   contentStore,
		metrics:        metrics,
		logger:         logger,
		auditRetention: auditRetention,
	}
}

// Start registers the jobs and begins the cron loop
func (s *Scheduler) Start() error {
	if s.sessions != nil {
		if _, err := s.cron.AddFunc("@every 15m", s.cleanupSessions); err != nil {
			return err
		}
	}
	if s.auditStore != nil {
		if _, err := s.cron.AddFunc("@daily", s.pruneAuditLogs); err != nil {
			return err
		}
	}
	if s.contentStore != nil && s.metrics != nil {
		if _, err := s.cron.AddFunc("@every 5m", s.refreshPublishedGauges); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) cleanupSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("session cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("expired sessions removed")
	}
}

func (s *Scheduler) pruneAuditLogs() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.auditRetention)
	removed, err := s.auditStore.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Warn("audit log retention failed")
		return
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("audit logs pruned")
	}
}

func (s *Scheduler) refreshPublishedGauges() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kinds := append([]content.Kind{content.KindBlog}, content.ItemKinds...)
	for _, kind := range kinds {
		count, err := s.contentStore.CountPublished(ctx, kind)
		if err != nil {
			s.logger.WithError(err).WithField("kind", string(kind)).Warn("published content count failed")
			continue
		}
		s.metrics.PublishedContentGauge.WithLabelValues(string(kind)).Set(float64(count))
	}
}
