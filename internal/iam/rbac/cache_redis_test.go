// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/platform/constants"
)

func newTestCache(t *testing.T) (*RedisPermissionCache, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisPermissionCache(client), server
}

func TestRedisPermissionCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	permissions := perm.Map{}
	permissions.Grant(perm.ResourceProperties, perm.ActionView)
	permissions.Grant(perm.ResourceProperties, perm.ActionEdit)
	permissions.Grant(perm.ResourceContacts, perm.ActionCommunicate)

	require.NoError(t, cache.Set(ctx, "user-1", permissions))

	loaded, hit, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, permissions.Encode(), loaded.Encode())
}

func TestRedisPermissionCache_MissOnAbsentKey(t *testing.T) {
	cache, _ := newTestCache(t)

	_, hit, err := cache.Get(context.Background(), "unknown-user")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisPermissionCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	cache, server := newTestCache(t)

	require.NoError(t, server.Set(constants.RedisPrefixPermissionMap+"user-1", "not json"))

	_, hit, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, hit)

	// Valid JSON with a malformed mask must also degrade to a miss.
	require.NoError(t, server.Set(constants.RedisPrefixPermissionMap+"user-2", `{"0p":"zz"}`))
	_, hit, err = cache.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisPermissionCache_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	cache, server := newTestCache(t)

	permissions := perm.Map{}
	permissions.Grant(perm.ResourceTasks, perm.ActionView)
	require.NoError(t, cache.Set(ctx, "user-1", permissions))

	server.FastForward(constants.PermissionCacheTTL + 1)

	_, hit, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisPermissionCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	permissions := perm.Map{}
	permissions.Grant(perm.ResourceDocuments, perm.ActionShare)
	require.NoError(t, cache.Set(ctx, "user-1", permissions))

	require.NoError(t, cache.Invalidate(ctx, "user-1"))

	_, hit, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, hit)

	// Invalidating again is a no-op.
	require.NoError(t, cache.Invalidate(ctx, "user-1"))
}
