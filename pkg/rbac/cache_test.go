package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SubjectCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSubjectCache(client, time.Minute), mr
}

func TestSubjectCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	dept := int64(3)
	subject := &Subject{
		UserID:       42,
		DepartmentID: &dept,
		Roles: []Role{
			{ID: 1, Name: "department_lead", IsDepartmentLead: true,
				Permissions: []Permission{Perm(ResourceStaff, ActionCreate)}},
		},
	}
	require.NoError(t, cache.Set(ctx, subject))

	got, err := cache.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, subject.UserID, got.UserID)
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, dept, *got.DepartmentID)
	assert.True(t, got.IsDepartmentLead())
	assert.True(t, got.HasPermission(Perm(ResourceStaff, ActionCreate)))
}

func TestSubjectCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubjectCacheExpiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &Subject{UserID: 7}))
	mr.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSubjectCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, &Subject{UserID: 1}))
	require.NoError(t, cache.Set(ctx, &Subject{UserID: 2}))

	require.NoError(t, cache.Invalidate(ctx, 1))

	got, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSubjectCacheInvalidateAll(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		require.NoError(t, cache.Set(ctx, &Subject{UserID: id}))
	}
	// Unrelated keys survive the purge.
	mr.Set("session:abc", "keep")

	require.NoError(t, cache.InvalidateAll(ctx))

	for id := int64(1); id <= 5; id++ {
		got, err := cache.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.True(t, mr.Exists("session:abc"))
}

func TestSubjectCacheCorruptEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t)

	mr.Set("subject:13", "{not json")

	got, err := cache.Get(context.Background(), 13)
	require.NoError(t, err)
	assert.Nil(t, got)
}
