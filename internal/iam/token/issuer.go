// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/sec"
	"github.com/propelacrm/propela/pkg/uuid"
)

// refreshTokenBytes is the entropy of a raw refresh token before encoding.
const refreshTokenBytes = 32

// Issuer mints access tokens and manages the refresh-token lifecycle.
type Issuer struct {
	tokens     *sec.TokenService
	store      RefreshStore
	refreshKey []byte
	log        *slog.Logger
}

// NewIssuer constructs a token [Issuer]. refreshKey is the HMAC key used to
// hash refresh tokens for storage and lookup.
func NewIssuer(tokens *sec.TokenService, store RefreshStore, refreshKey []byte, log *slog.Logger) *Issuer {
	return &Issuer{tokens: tokens, store: store, refreshKey: refreshKey, log: log}
}

// IssueAccess signs an access token for the session with the standard
// lifetime. The claims carry everything authorization needs; middleware
// never goes back to storage for the permission map.
func (issuer *Issuer) IssueAccess(userID, sessionID string, claims sec.AuthClaims) (string, time.Time, error) {
	signed, err := issuer.tokens.Sign(userID, sessionID, claims, constants.AccessTokenTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("access_token_sign_failed: %w", err)
	}
	return signed, time.Now().Add(constants.AccessTokenTTL), nil
}

/*
IssueRefresh mints a new opaque refresh token bound to a session.

The raw token is returned exactly once and never stored; storage holds only
its keyed hash. Users hold at most [constants.MaxRefreshTokensPerUser] live
records, the oldest being revoked to make room.
*/
func (issuer *Issuer) IssueRefresh(ctx context.Context, userID, sessionID string, device sec.DeviceInfo) (string, *RefreshRecord, error) {
	if err := issuer.pruneForUser(ctx, userID); err != nil {
		return "", nil, err
	}

	raw, err := sec.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("refresh_token_generate_failed: %w", err)
	}

	now := time.Now()
	record := &RefreshRecord{
		ID:         uuid.New(),
		UserID:     userID,
		SessionID:  sessionID,
		TokenHash:  sec.HashRefreshToken(raw, issuer.refreshKey),
		IPHash:     device.IPHash(),
		DeviceHash: device.DeviceHash(),
		ExpiresAt:  now.Add(constants.RefreshTokenTTL),
		CreatedAt:  now,
	}

	if err := issuer.store.Create(ctx, record); err != nil {
		return "", nil, fmt.Errorf("refresh_token_store_failed: %w", err)
	}
	return raw, record, nil
}

/*
Redeem resolves a raw refresh token to its live record.

Unknown, revoked, and expired tokens are indistinguishable to the caller of
the API; internally a revoked-but-unexpired record is reported as
[ErrRefreshReuse], together with the record, so the caller can burn the
session family it belongs to.
*/
func (issuer *Issuer) Redeem(ctx context.Context, raw string) (*RefreshRecord, error) {
	record, err := issuer.store.FindByHash(ctx, sec.HashRefreshToken(raw, issuer.refreshKey))
	if err != nil {
		// A miss is an invalid token; any other failure, storage outages
		// included, keeps its own class.
		if apperr.IsNotFound(err) {
			return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
		}
		return nil, fmt.Errorf("refresh_token_lookup_failed: %w", err)
	}

	now := time.Now()
	if record.RevokedAt != nil {
		if now.Before(record.ExpiresAt) {
			return record, ErrRefreshReuse
		}
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
	}
	if !now.Before(record.ExpiresAt) {
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
	}

	return record, nil
}

/*
Rotate exchanges a redeemed record for a fresh raw token in one atomic
storage transaction. Losing the exchange race surfaces as
[ErrRefreshReuse].
*/
func (issuer *Issuer) Rotate(ctx context.Context, current *RefreshRecord, device sec.DeviceInfo) (string, *RefreshRecord, error) {
	raw, err := sec.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return "", nil, fmt.Errorf("refresh_token_generate_failed: %w", err)
	}

	now := time.Now()
	replacement := &RefreshRecord{
		ID:         uuid.New(),
		UserID:     current.UserID,
		SessionID:  current.SessionID,
		TokenHash:  sec.HashRefreshToken(raw, issuer.refreshKey),
		IPHash:     device.IPHash(),
		DeviceHash: device.DeviceHash(),
		ExpiresAt:  now.Add(constants.RefreshTokenTTL),
		CreatedAt:  now,
	}

	if err := issuer.store.Exchange(ctx, current.ID, replacement); err != nil {
		return "", nil, err
	}
	return raw, replacement, nil
}

// RevokeForSession revokes every live refresh token of one session.
func (issuer *Issuer) RevokeForSession(ctx context.Context, sessionID string) (int, error) {
	revoked, err := issuer.store.RevokeForSession(ctx, sessionID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("refresh_token_revoke_session_failed: %w", err)
	}
	return revoked, nil
}

// RevokeAllForUser revokes every live refresh token of a user.
func (issuer *Issuer) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	revoked, err := issuer.store.RevokeAllForUser(ctx, userID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("refresh_token_revoke_all_failed: %w", err)
	}
	return revoked, nil
}

// DeleteExpired removes long-dead records. Called by the janitor.
func (issuer *Issuer) DeleteExpired(ctx context.Context) (int, error) {
	deleted, err := issuer.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("refresh_token_delete_expired_failed: %w", err)
	}
	return deleted, nil
}

// pruneForUser enforces the per-user record cap before a new issuance.
func (issuer *Issuer) pruneForUser(ctx context.Context, userID string) error {
	active, err := issuer.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("refresh_token_list_failed: %w", err)
	}
	if len(active) < constants.MaxRefreshTokensPerUser {
		return nil
	}

	// ListActiveForUser orders oldest first.
	now := time.Now()
	victims := active[:len(active)-constants.MaxRefreshTokensPerUser+1]
	for _, victim := range victims {
		if err := issuer.store.Revoke(ctx, victim.ID, now); err != nil {
			return fmt.Errorf("refresh_token_prune_failed: %w", err)
		}
		issuer.log.InfoContext(ctx, "refresh_token_pruned",
			slog.String("user_id", userID),
			slog.String("record_id", victim.ID),
		)
	}
	return nil
}
