package rbac

import (
	"context"
	"strconv"

	"github.com/campuscms/campuscms/pkg/observability"
)

// Checker resolves subjects and answers access questions. It fronts the
// store with the Redis subject cache; if Redis is unavailable the checker
// degrades to direct store reads rather than denying access.
type Checker struct {
	store   *Store
	cache   *SubjectCache
	metrics *observability.Metrics
	meters  *observability.OTelMeters
	logger  *observability.Logger
}

// NewChecker creates a permission checker. cache, metrics and meters may
// be nil; the checker works without them.
func NewChecker(store *Store, cache *SubjectCache, metrics *observability.Metrics, meters *observability.OTelMeters, logger *observability.Logger) *Checker {
	return &Checker{
		store:   store,
		cache:   cache,
		metrics: metrics,
		meters:  meters,
		logger:  logger,
	}
}

// Subject resolves a user's authorization state, consulting the cache first
func (c *Checker) Subject(ctx context.Context, userID int64) (*Subject, error) {
	if c.cache != nil {
		subject, err := c.cache.Get(ctx, userID)
		if err != nil {
			c.logger.WithError(err).Warn("subject cache read failed, falling back to store")
		} else if subject != nil {
			if c.metrics != nil {
				c.metrics.PermissionCacheHits.Inc()
			}
			return subject, nil
		} else if c.metrics != nil {
			c.metrics.PermissionCacheMisses.Inc()
		}
	}

	subject, err := c.store.LoadSubject(ctx, userID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, subject); err != nil {
			c.logger.WithError(err).Warn("subject cache write failed")
		}
	}
	return subject, nil
}

// Check reports whether the user holds the required permission
func (c *Checker) Check(ctx context.Context, userID int64, required Permission) (bool, error) {
	subject, err := c.Subject(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := subject.HasPermission(required)
	c.record(ctx, required, allowed)
	return allowed, nil
}

// CheckDepartment reports whether the user may operate on records scoped
// to the target department. target is nil for global-scope records.
func (c *Checker) CheckDepartment(ctx context.Context, userID int64, target *int64) (bool, error) {
	subject, err := c.Subject(ctx, userID)
	if err != nil {
		return false, err
	}
	return subject.CanAccessDepartment(target), nil
}

// Invalidate drops a user's cached subject after an assignment change
func (c *Checker) Invalidate(ctx context.Context, userID int64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx, userID); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Warn("subject cache invalidation failed")
	}
}

// InvalidateAll drops all cached subjects after a role definition change
func (c *Checker) InvalidateAll(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateAll(ctx); err != nil {
		c.logger.WithError(err).Warn("subject cache purge failed")
	}
}

func (c *Checker) record(ctx context.Context, required Permission, allowed bool) {
	if c.metrics != nil {
		c.metrics.PermissionChecksTotal.WithLabelValues(required.String(), strconv.FormatBool(allowed)).Inc()
	}
	c.meters.RecordPermissionCheck(ctx, allowed)
}
