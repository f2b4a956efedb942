// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/metrics"
	"github.com/propelacrm/propela/internal/platform/sec"
	"github.com/propelacrm/propela/pkg/uuid"
)

// Manager owns the session lifecycle: creation under the concurrency cap,
// validation with device binding, and revocation.
type Manager struct {
	store Store
	log   *slog.Logger
}

// NewManager constructs a new session [Manager].
func NewManager(store Store, log *slog.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// CreateInput carries everything a new session is bound to.
type CreateInput struct {
	UserID    string
	TenantID  string
	Device    sec.DeviceInfo
	RiskScore int
}

/*
Create registers a new session for a login.

The user's already-expired sessions are deleted first, best effort. If the
user then still holds [constants.MaxConcurrentSessions] live sessions,
the oldest one (by creation time) is revoked to make room. Eviction failures
abort the login: exceeding the cap silently would defeat it.
*/
func (manager *Manager) Create(ctx context.Context, input CreateInput) (*Session, error) {
	// Expired rows never count toward the cap, so losing this sweep to an
	// error costs nothing; the janitor picks them up later.
	if _, err := manager.store.DeleteExpiredForUser(ctx, input.UserID, time.Now()); err != nil {
		manager.log.WarnContext(ctx, "session_expired_sweep_failed",
			slog.String("user_id", input.UserID),
			slog.Any("error", err),
		)
	}

	active, err := manager.store.ListActiveForUser(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("session_list_active_failed: %w", err)
	}

	now := time.Now()
	if len(active) >= constants.MaxConcurrentSessions {
		// ListActiveForUser orders oldest first.
		evictable := active[:len(active)-constants.MaxConcurrentSessions+1]
		for _, victim := range evictable {
			if err := manager.store.Revoke(ctx, victim.ID, now); err != nil {
				return nil, fmt.Errorf("session_evict_failed: %w", err)
			}
			metrics.SessionsEvicted.Inc()
			manager.log.InfoContext(ctx, "session_evicted",
				slog.String("user_id", input.UserID),
				slog.String("session_id", victim.ID),
			)
		}
	}

	session := &Session{
		ID:             uuid.New(),
		UserID:         input.UserID,
		TenantID:       input.TenantID,
		DeviceHash:     input.Device.DeviceHash(),
		IPHash:         input.Device.IPHash(),
		Geo:            input.Device.Geo,
		RiskScore:      input.RiskScore,
		ExpiresAt:      now.Add(constants.RefreshTokenTTL),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	if err := manager.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("session_create_failed: %w", err)
	}
	return session, nil
}

/*
Validate checks that a session is live and still bound to the presenting
device, then records activity on it.

Failure modes:
  - Unknown or revoked session: generic auth failure.
  - Expired session: revoked on sight, then generic auth failure.
  - Device hash mismatch: the session is revoked and the request rejected.
    Binding violations burn the session; the legitimate holder has to log
    in again.
*/
func (manager *Manager) Validate(ctx context.Context, sessionID string, device sec.DeviceInfo) (*Session, error) {
	session, err := manager.store.Find(ctx, sessionID)
	if err != nil {
		// A miss is a dead session; any other failure, storage outages
		// included, keeps its own class.
		if apperr.IsNotFound(err) {
			return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredSession)
		}
		return nil, fmt.Errorf("session_lookup_failed: %w", err)
	}

	now := time.Now()
	if session.IsRevoked {
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredSession)
	}
	if !now.Before(session.ExpiresAt) {
		if err := manager.store.Revoke(ctx, session.ID, now); err != nil {
			manager.log.WarnContext(ctx, "session_expire_revoke_failed",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		}
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredSession)
	}

	if session.DeviceHash != device.DeviceHash() {
		if err := manager.store.Revoke(ctx, session.ID, now); err != nil {
			manager.log.WarnContext(ctx, "session_binding_revoke_failed",
				slog.String("session_id", session.ID),
				slog.Any("error", err),
			)
		}
		manager.log.WarnContext(ctx, "session_device_mismatch",
			slog.String("session_id", session.ID),
			slog.String("user_id", session.UserID),
		)
		return nil, apperr.AuthFailure(apperr.KindDeviceMismatch)
	}

	// Activity tracking is best effort.
	if err := manager.store.Touch(ctx, session.ID, now); err != nil {
		manager.log.WarnContext(ctx, "session_touch_failed",
			slog.String("session_id", session.ID),
			slog.Any("error", err),
		)
	}
	session.LastActivityAt = now

	return session, nil
}

// Revoke terminates one session. Idempotent.
func (manager *Manager) Revoke(ctx context.Context, sessionID string) error {
	if err := manager.store.Revoke(ctx, sessionID, time.Now()); err != nil {
		return fmt.Errorf("session_revoke_failed: %w", err)
	}
	return nil
}

// RevokeAll terminates every live session of a user except keepID. Pass an
// empty keepID to revoke everything.
func (manager *Manager) RevokeAll(ctx context.Context, userID, keepID string) (int, error) {
	revoked, err := manager.store.RevokeAllForUser(ctx, userID, keepID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("session_revoke_all_failed: %w", err)
	}
	return revoked, nil
}

// ListActive returns the user's live sessions for the session-management UI.
func (manager *Manager) ListActive(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := manager.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("session_list_active_failed: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes long-dead sessions. Called by the janitor.
func (manager *Manager) DeleteExpired(ctx context.Context) (int, error) {
	deleted, err := manager.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("session_delete_expired_failed: %w", err)
	}
	return deleted, nil
}
