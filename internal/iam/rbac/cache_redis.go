// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/platform/constants"
)

// RedisPermissionCache implements [Cache] on Redis.
//
// Entries are JSON objects of resourceCode to lowercase-hex mask, the same
// encoding embedded in access-token claims, keyed by user id under
// [constants.RedisPrefixPermissionMap]. Entries expire after
// [constants.PermissionCacheTTL] as a backstop for missed invalidations.
type RedisPermissionCache struct {
	client *redis.Client
}

// NewRedisPermissionCache creates a Redis-backed permission-map cache.
func NewRedisPermissionCache(client *redis.Client) *RedisPermissionCache {
	return &RedisPermissionCache{client: client}
}

// Get loads a user's cached permission map. A missing key, an expired key,
// or an undecodable payload all report a miss; only transport failures are
// returned as errors.
func (cache *RedisPermissionCache) Get(ctx context.Context, userID string) (perm.Map, bool, error) {
	payload, err := cache.client.Get(ctx, cache.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis_permission_cache_get_failed: %w", err)
	}

	var encoded map[string]string
	if err := json.Unmarshal(payload, &encoded); err != nil {
		return nil, false, nil
	}

	permissions, err := perm.DecodeMap(encoded)
	if err != nil {
		// A corrupt entry must never turn into a grant or a denial.
		return nil, false, nil
	}
	return permissions, true, nil
}

// Set stores a user's permission map with the standard TTL.
func (cache *RedisPermissionCache) Set(ctx context.Context, userID string, permissions perm.Map) error {
	payload, err := json.Marshal(permissions.Encode())
	if err != nil {
		return fmt.Errorf("redis_permission_cache_encode_failed: %w", err)
	}

	err = cache.client.Set(ctx, cache.key(userID), payload, constants.PermissionCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("redis_permission_cache_set_failed: %w", err)
	}
	return nil
}

// Invalidate drops a user's cached permission map. Idempotent.
func (cache *RedisPermissionCache) Invalidate(ctx context.Context, userID string) error {
	if err := cache.client.Del(ctx, cache.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis_permission_cache_invalidate_failed: %w", err)
	}
	return nil
}

func (cache *RedisPermissionCache) key(userID string) string {
	return constants.RedisPrefixPermissionMap + userID
}
