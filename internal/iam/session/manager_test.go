// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package session

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/sec"
)

// memoryStore is an in-memory [Store] for manager tests.
type memoryStore struct {
	sessions map[string]*Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func (store *memoryStore) Create(_ context.Context, session *Session) error {
	copied := *session
	store.sessions[session.ID] = &copied
	return nil
}

func (store *memoryStore) Find(_ context.Context, id string) (*Session, error) {
	session, ok := store.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	copied := *session
	return &copied, nil
}

func (store *memoryStore) ListActiveForUser(_ context.Context, userID string) ([]Session, error) {
	now := time.Now()
	var active []Session
	for _, session := range store.sessions {
		if session.UserID == userID && session.Live(now) {
			active = append(active, *session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

func (store *memoryStore) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	active, err := store.ListActiveForUser(ctx, userID)
	return len(active), err
}

func (store *memoryStore) Touch(_ context.Context, id string, at time.Time) error {
	if session, ok := store.sessions[id]; ok {
		session.LastActivityAt = at
	}
	return nil
}

func (store *memoryStore) Revoke(_ context.Context, id string, at time.Time) error {
	if session, ok := store.sessions[id]; ok && !session.IsRevoked {
		session.IsRevoked = true
		session.RevokedAt = &at
	}
	return nil
}

func (store *memoryStore) RevokeAllForUser(_ context.Context, userID, keepID string, at time.Time) (int, error) {
	revoked := 0
	for _, session := range store.sessions {
		if session.UserID == userID && session.ID != keepID && !session.IsRevoked {
			session.IsRevoked = true
			session.RevokedAt = &at
			revoked++
		}
	}
	return revoked, nil
}

func (store *memoryStore) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	for id, session := range store.sessions {
		if session.ExpiresAt.Before(cutoff) {
			delete(store.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (store *memoryStore) DeleteExpiredForUser(_ context.Context, userID string, cutoff time.Time) (int, error) {
	deleted := 0
	for id, session := range store.sessions {
		if session.UserID == userID && session.ExpiresAt.Before(cutoff) {
			delete(store.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTestManager(store Store) *Manager {
	return NewManager(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func laptop() sec.DeviceInfo {
	return sec.DeviceInfo{
		IP:        "203.0.113.10",
		UserAgent: "Mozilla/5.0 (Macintosh) Chrome/127.0",
		Geo:       "Lisbon, PT",
	}
}

func phone() sec.DeviceInfo {
	return sec.DeviceInfo{
		IP:        "198.51.100.7",
		UserAgent: "Mozilla/5.0 (iPhone) Safari/604.1",
		Geo:       "Lisbon, PT",
	}
}

func TestManager_CreateBindsDevice(t *testing.T) {
	manager := newTestManager(newMemoryStore())

	created, err := manager.Create(context.Background(), CreateInput{
		UserID:    "user-1",
		TenantID:  "tenant-1",
		Device:    laptop(),
		RiskScore: 12,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, laptop().DeviceHash(), created.DeviceHash)
	assert.Equal(t, laptop().IPHash(), created.IPHash)
	assert.Equal(t, 12, created.RiskScore)
	assert.WithinDuration(t, time.Now().Add(constants.RefreshTokenTTL), created.ExpiresAt, time.Minute)
}

func TestManager_CreateSweepsOwnExpiredSessions(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	require.NoError(t, store.Create(ctx, &Session{
		ID:        "stale",
		UserID:    "user-1",
		TenantID:  "tenant-1",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Create(ctx, &Session{
		ID:        "foreign-stale",
		UserID:    "user-2",
		TenantID:  "tenant-1",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	_, err := manager.Create(ctx, CreateInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Device:   laptop(),
	})
	require.NoError(t, err)

	_, err = store.Find(ctx, "stale")
	assert.Error(t, err, "own expired sessions are deleted at login")

	_, err = store.Find(ctx, "foreign-stale")
	assert.NoError(t, err, "other users' rows are the janitor's job")
}

func TestManager_CapEvictsOldestSession(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	// Seed sessions directly so creation times are strictly ordered.
	base := time.Now().Add(-time.Hour)
	ids := make([]string, 0, constants.MaxConcurrentSessions)
	for i := 0; i < constants.MaxConcurrentSessions; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		require.NoError(t, store.Create(ctx, &Session{
			ID:        id,
			UserID:    "user-1",
			TenantID:  "tenant-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}

	created, err := manager.Create(ctx, CreateInput{
		UserID:   "user-1",
		TenantID: "tenant-1",
		Device:   laptop(),
	})
	require.NoError(t, err)

	oldest, err := store.Find(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, oldest.IsRevoked, "oldest session must be evicted")

	second, err := store.Find(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, second.IsRevoked, "only the oldest is evicted")

	count, err := store.CountActiveForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, constants.MaxConcurrentSessions, count)
	assert.False(t, created.IsRevoked)
}

func TestManager_ValidateUnknownSession(t *testing.T) {
	manager := newTestManager(newMemoryStore())

	_, err := manager.Validate(context.Background(), "missing", laptop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOrExpiredSession, apperr.KindOf(err))
}

func TestManager_ValidateRevokedSession(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	created, err := manager.Create(ctx, CreateInput{UserID: "user-1", TenantID: "t1", Device: laptop()})
	require.NoError(t, err)
	require.NoError(t, manager.Revoke(ctx, created.ID))

	_, err = manager.Validate(ctx, created.ID, laptop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOrExpiredSession, apperr.KindOf(err))
}

func TestManager_ValidateExpiredSessionAutoRevokes(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	require.NoError(t, store.Create(ctx, &Session{
		ID:         "stale",
		UserID:     "user-1",
		DeviceHash: laptop().DeviceHash(),
		ExpiresAt:  time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-time.Hour),
	}))

	_, err := manager.Validate(ctx, "stale", laptop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOrExpiredSession, apperr.KindOf(err))

	stored, err := store.Find(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked, "expired sessions are revoked on sight")
}

func TestManager_ValidateDeviceMismatchBurnsSession(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	created, err := manager.Create(ctx, CreateInput{UserID: "user-1", TenantID: "t1", Device: laptop()})
	require.NoError(t, err)

	_, err = manager.Validate(ctx, created.ID, phone())
	require.Error(t, err)
	assert.Equal(t, apperr.KindDeviceMismatch, apperr.KindOf(err))

	stored, err := store.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRevoked, "binding violations revoke the session")

	// The original device cannot use it either now.
	_, err = manager.Validate(ctx, created.ID, laptop())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOrExpiredSession, apperr.KindOf(err))
}

func TestManager_ValidateTouchesActivity(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	created, err := manager.Create(ctx, CreateInput{UserID: "user-1", TenantID: "t1", Device: laptop()})
	require.NoError(t, err)

	before := created.LastActivityAt
	time.Sleep(5 * time.Millisecond)

	validated, err := manager.Validate(ctx, created.ID, laptop())
	require.NoError(t, err)
	assert.True(t, validated.LastActivityAt.After(before))
}

func TestManager_RevokeAllKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	manager := newTestManager(store)

	var keep string
	for i := 0; i < 3; i++ {
		created, err := manager.Create(ctx, CreateInput{UserID: "user-1", TenantID: "t1", Device: laptop()})
		require.NoError(t, err)
		keep = created.ID
	}

	revoked, err := manager.RevokeAll(ctx, "user-1", keep)
	require.NoError(t, err)
	assert.Equal(t, 2, revoked)

	active, err := manager.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep, active[0].ID)
}
