package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	subjectKeyPrefix  = "subject:"
	defaultSubjectTTL = 5 * time.Minute
)

// SubjectCache caches resolved subjects in Redis so permission checks do
// not hit PostgreSQL on every request. Entries are invalidated on role
// and assignment changes; the TTL bounds staleness if an invalidation is
// missed.
type SubjectCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubjectCache creates a subject cache with the given TTL.
// A non-positive TTL falls back to the default.
func NewSubjectCache(client *redis.Client, ttl time.Duration) *SubjectCache {
	if ttl <= 0 {
		ttl = defaultSubjectTTL
	}
	return &SubjectCache{client: client, ttl: ttl}
}

func subjectKey(userID int64) string {
	return fmt.Sprintf("%s%d", subjectKeyPrefix, userID)
}

// Get returns the cached subject or (nil, nil) on a miss
func (c *SubjectCache) Get(ctx context.Context, userID int64) (*Subject, error) {
	data, err := c.client.Get(ctx, subjectKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subject cache: %w", err)
	}

	var subject Subject
	if err := json.Unmarshal(data, &subject); err != nil {
		// Corrupt entry; treat as a miss and let the caller repopulate.
		return nil, nil
	}
	return &subject, nil
}

// Set stores a resolved subject with the configured TTL
func (c *SubjectCache) Set(ctx context.Context, subject *Subject) error {
	data, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("failed to marshal subject: %w", err)
	}
	if err := c.client.Set(ctx, subjectKey(subject.UserID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write subject cache: %w", err)
	}
	return nil
}

// Invalidate drops a single user's cached subject
func (c *SubjectCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, subjectKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subject cache: %w", err)
	}
	return nil
}

// InvalidateAll drops every cached subject. Used when a role definition
// changes, since any user could hold it.
func (c *SubjectCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, subjectKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan subject cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to purge subject cache: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
