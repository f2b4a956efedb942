// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package security

import (
	"context"
	"errors"
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
	"github.com/propelacrm/propela/pkg/pagination"
)

// memoryStore is an in-memory [Store] for monitor tests.
type memoryStore struct {
	attempts []LoginAttempt
	events   []SecurityEvent

	failRecordAttempt bool
}

func (store *memoryStore) RecordAttempt(_ context.Context, attempt *LoginAttempt) error {
	if store.failRecordAttempt {
		return errors.New("storage down")
	}
	store.attempts = append(store.attempts, *attempt)
	return nil
}

func (store *memoryStore) CountRecentFailures(_ context.Context, email, ipHash string, since time.Time) (int, error) {
	count := 0
	for _, attempt := range store.attempts {
		if attempt.Email == email && attempt.IPHash == ipHash &&
			!attempt.Success && !attempt.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (store *memoryStore) ListRecentSuccesses(_ context.Context, userID string, limit int) ([]LoginAttempt, error) {
	var successes []LoginAttempt
	for _, attempt := range store.attempts {
		if attempt.UserID == userID && attempt.Success {
			successes = append(successes, attempt)
		}
	}
	sort.Slice(successes, func(i, j int) bool {
		return successes[i].CreatedAt.After(successes[j].CreatedAt)
	})
	if len(successes) > limit {
		successes = successes[:limit]
	}
	return successes, nil
}

func (store *memoryStore) DeleteAttemptsBefore(_ context.Context, cutoff time.Time) (int, error) {
	kept := store.attempts[:0]
	deleted := 0
	for _, attempt := range store.attempts {
		if attempt.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, attempt)
	}
	store.attempts = kept
	return deleted, nil
}

func (store *memoryStore) RecordEvent(_ context.Context, event *SecurityEvent) error {
	store.events = append(store.events, *event)
	return nil
}

func (store *memoryStore) ListEvents(_ context.Context, userID string, params pagination.Params) ([]SecurityEvent, int, error) {
	var matched []SecurityEvent
	for _, event := range store.events {
		if event.UserID == userID {
			matched = append(matched, event)
		}
	}
	return matched, len(matched), nil
}

func newTestMonitor(store Store) *Monitor {
	return NewMonitor(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func lisbonLaptop() sec.DeviceInfo {
	return sec.DeviceInfo{
		IP:        "203.0.113.10",
		UserAgent: "Mozilla/5.0 (Macintosh) Chrome/127.0",
		Geo:       "Lisbon, PT",
	}
}

func seedFailures(store *memoryStore, email string, device sec.DeviceInfo, count int, at time.Time) {
	for i := 0; i < count; i++ {
		store.attempts = append(store.attempts, LoginAttempt{
			Email:     email,
			IPHash:    device.IPHash(),
			Success:   false,
			CreatedAt: at,
		})
	}
}

func seedSuccess(store *memoryStore, userID string, device sec.DeviceInfo, at time.Time) {
	store.attempts = append(store.attempts, LoginAttempt{
		UserID:        userID,
		IPHash:        device.IPHash(),
		DeviceHash:    device.DeviceHash(),
		Geo:           device.Geo,
		BrowserFamily: device.BrowserFamily(),
		Success:       true,
		CreatedAt:     at,
	})
}

// # Lockout

func TestCheckLockout_ExactBoundary(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)
	device := lisbonLaptop()

	seedFailures(store, "agent@brokerage.test", device, constants.MaxLoginAttempts-1, time.Now())
	require.NoError(t, monitor.CheckLockout(ctx, "agent@brokerage.test", device),
		"one below the cap must still be allowed")

	seedFailures(store, "agent@brokerage.test", device, 1, time.Now())
	err := monitor.CheckLockout(ctx, "agent@brokerage.test", device)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAccountLocked, apperr.KindOf(err))
}

func TestCheckLockout_WindowElapses(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)
	device := lisbonLaptop()

	stale := time.Now().Add(-constants.LockoutWindow - time.Minute)
	seedFailures(store, "agent@brokerage.test", device, constants.MaxLoginAttempts, stale)

	assert.NoError(t, monitor.CheckLockout(ctx, "agent@brokerage.test", device),
		"failures outside the window must not count")
}

func TestCheckLockout_KeyedPerEmailAndIP(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)

	attacker := sec.DeviceInfo{IP: "198.51.100.66", UserAgent: "curl/8.0"}
	seedFailures(store, "agent@brokerage.test", attacker, constants.MaxLoginAttempts, time.Now())

	// Same email from the victim's own address stays usable.
	require.NoError(t, monitor.CheckLockout(ctx, "agent@brokerage.test", lisbonLaptop()))

	// A different email from the attacker's address also stays usable.
	require.NoError(t, monitor.CheckLockout(ctx, "other@brokerage.test", attacker))

	err := monitor.CheckLockout(ctx, "agent@brokerage.test", attacker)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAccountLocked, apperr.KindOf(err))
}

// # Pattern Detection

func TestDetectSuspicious_FirstLoginIsBaseline(t *testing.T) {
	monitor := newTestMonitor(&memoryStore{})

	suspicious, risk := monitor.DetectSuspicious(context.Background(), "user-1", "t1", lisbonLaptop())
	assert.False(t, suspicious)
	assert.Zero(t, risk)
}

func TestDetectSuspicious_SingleNovelDimensionPasses(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)

	seedSuccess(store, "user-1", lisbonLaptop(), time.Now().Add(-time.Hour))

	// Same machine, same browser, new city: a trip, not an anomaly.
	travelling := lisbonLaptop()
	travelling.Geo = "Madrid, ES"

	suspicious, risk := monitor.DetectSuspicious(ctx, "user-1", "t1", travelling)
	assert.False(t, suspicious)
	assert.Equal(t, riskPerNovelDimension, risk)
	assert.Empty(t, store.events)
}

func TestDetectSuspicious_TwoNovelDimensionsFlag(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)

	seedSuccess(store, "user-1", lisbonLaptop(), time.Now().Add(-time.Hour))

	intruder := sec.DeviceInfo{
		IP:        "192.0.2.99",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0) Firefox/130.0",
		Geo:       "Minsk, BY",
	}

	suspicious, risk := monitor.DetectSuspicious(ctx, "user-1", "t1", intruder)
	assert.True(t, suspicious)
	assert.Equal(t, 90, risk)

	require.Len(t, store.events, 1)
	event := store.events[0]
	assert.Equal(t, EventSuspiciousLogin, event.Type)
	assert.Equal(t, SeverityWarning, event.Severity)
	assert.Equal(t, "user-1", event.UserID)
	assert.NotEmpty(t, event.ID)
}

func TestDetectSuspicious_OverlapWithAnySampledLoginCounts(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}
	monitor := newTestMonitor(store)

	// History holds both the laptop and a phone on a different browser.
	phone := sec.DeviceInfo{
		IP:        "198.51.100.7",
		UserAgent: "Mozilla/5.0 (iPhone) Safari/604.1",
		Geo:       "Porto, PT",
	}
	seedSuccess(store, "user-1", lisbonLaptop(), time.Now().Add(-2*time.Hour))
	seedSuccess(store, "user-1", phone, time.Now().Add(-time.Hour))

	// Logging in again from the phone matches device, browser, and geo of
	// one sampled login each.
	suspicious, risk := monitor.DetectSuspicious(ctx, "user-1", "t1", phone)
	assert.False(t, suspicious)
	assert.Zero(t, risk)
}

// # History Bookkeeping

func TestRecordAttempt_SwallowsStorageFailure(t *testing.T) {
	store := &memoryStore{failRecordAttempt: true}
	monitor := newTestMonitor(store)

	// Must not panic or surface an error path to the caller.
	monitor.RecordAttempt(context.Background(), AttemptInput{
		Email:   "agent@brokerage.test",
		Device:  lisbonLaptop(),
		Success: true,
	})
	assert.Empty(t, store.attempts)
}

func TestRecordAttempt_PersistsHashedFingerprint(t *testing.T) {
	store := &memoryStore{}
	monitor := newTestMonitor(store)
	device := lisbonLaptop()

	monitor.RecordAttempt(context.Background(), AttemptInput{
		Email:         "agent@brokerage.test",
		UserID:        "user-1",
		Device:        device,
		Success:       false,
		FailureReason: "invalid_credentials",
	})

	require.Len(t, store.attempts, 1)
	attempt := store.attempts[0]
	assert.NotEmpty(t, attempt.ID)
	assert.Equal(t, device.IPHash(), attempt.IPHash)
	assert.NotEqual(t, device.IP, attempt.IPHash, "raw IP must not be stored")
	assert.Equal(t, device.DeviceHash(), attempt.DeviceHash)
	assert.Equal(t, "chrome", attempt.BrowserFamily)
}

func TestTrimHistory(t *testing.T) {
	store := &memoryStore{}
	monitor := newTestMonitor(store)
	device := lisbonLaptop()

	seedFailures(store, "old@brokerage.test", device, 3,
		time.Now().Add(-constants.LoginHistoryRetention-time.Hour))
	seedSuccess(store, "user-1", device, time.Now())

	deleted, err := monitor.TrimHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Len(t, store.attempts, 1)
}
