// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelacrm/propela/internal/iam/perm"
	"github.com/propelacrm/propela/internal/iam/security"
	"github.com/propelacrm/propela/internal/iam/session"
	"github.com/propelacrm/propela/internal/iam/token"
	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/metrics"
	"github.com/propelacrm/propela/internal/platform/sec"
	"github.com/propelacrm/propela/internal/tenant"
	"github.com/propelacrm/propela/pkg/pagination"
	"github.com/propelacrm/propela/pkg/uuid"
)

// # Token Lifetimes & Sizes

const (
	// VerificationTokenTTL is how long an email verification link stays valid.
	VerificationTokenTTL = 24 * time.Hour

	// VerificationTokenLength is the entropy of a verification token in bytes.
	VerificationTokenLength = 32
)

// protectionLevelStandard is the dpl claim value for password(+TOTP) logins.
const protectionLevelStandard = "standard"

// # Contracts & Types

// AccessResolver resolves a user's roles and effective permission map.
type AccessResolver interface {
	// PermissionMap returns the user's aggregated permission map.
	PermissionMap(ctx context.Context, userID string) (perm.Map, error)

	// RoleNames returns the names of the user's directly held roles.
	RoleNames(ctx context.Context, userID string) ([]string, error)

	// BootstrapOwner provisions a new tenant's founding role for its first user.
	BootstrapOwner(ctx context.Context, tenantID, userID string) error
}

// SessionRegistry is the session lifecycle surface the flows depend on.
type SessionRegistry interface {
	Create(ctx context.Context, input session.CreateInput) (*session.Session, error)
	Validate(ctx context.Context, sessionID string, device sec.DeviceInfo) (*session.Session, error)
	Revoke(ctx context.Context, sessionID string) error
	RevokeAll(ctx context.Context, userID, keepID string) (int, error)
	ListActive(ctx context.Context, userID string) ([]session.Session, error)
}

// TokenForge mints and redeems the credential pair.
type TokenForge interface {
	IssueAccess(userID, sessionID string, claims sec.AuthClaims) (string, time.Time, error)
	IssueRefresh(ctx context.Context, userID, sessionID string, device sec.DeviceInfo) (string, *token.RefreshRecord, error)
	Redeem(ctx context.Context, raw string) (*token.RefreshRecord, error)
	Rotate(ctx context.Context, current *token.RefreshRecord, device sec.DeviceInfo) (string, *token.RefreshRecord, error)
	RevokeForSession(ctx context.Context, sessionID string) (int, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// SecurityWatch is the monitoring surface of the login flow.
type SecurityWatch interface {
	CheckLockout(ctx context.Context, email string, device sec.DeviceInfo) error
	RecordAttempt(ctx context.Context, input security.AttemptInput)
	DetectSuspicious(ctx context.Context, userID, tenantID string, device sec.DeviceInfo) (bool, int)
	RecordEvent(ctx context.Context, event *security.SecurityEvent)
	ListEvents(ctx context.Context, userID string, params pagination.Params) ([]security.SecurityEvent, pagination.Meta, error)
}

// SecondFactorVerifier checks a user's second-factor code. The secret format
// is the verifier's concern; this package only carries it.
type SecondFactorVerifier interface {
	Verify(ctx context.Context, user *User, code string) (bool, error)
}

// TenantProvisioner creates a brokerage during self-service registration.
type TenantProvisioner interface {
	Provision(ctx context.Context, name string) (*tenant.Brokerage, error)
}

// Service implements the authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to credential
// validation, token issuance, or the refresh flow must be reviewed by the
// security team.
type Service struct {
	users        UserRepository
	verifyTokens VerificationTokenRepository
	sessions     SessionRegistry
	tokens       TokenForge
	access       AccessResolver
	monitor      SecurityWatch
	secondFactor SecondFactorVerifier
	tenants      TenantProvisioner
	log          *slog.Logger
}

// NewService constructs a new authentication [Service] with its collaborators.
func NewService(
	users UserRepository,
	verifyTokens VerificationTokenRepository,
	sessions SessionRegistry,
	tokens TokenForge,
	access AccessResolver,
	monitor SecurityWatch,
	secondFactor SecondFactorVerifier,
	tenants TenantProvisioner,
	log *slog.Logger,
) *Service {
	return &Service{
		users:        users,
		verifyTokens: verifyTokens,
		sessions:     sessions,
		tokens:       tokens,
		access:       access,
		monitor:      monitor,
		secondFactor: secondFactor,
		tenants:      tenants,
		log:          log,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a brokerage and its founder.
type RegisterInput struct {
	BrokerageName string
	Email         string
	Password      string
	FullName      string
}

/*
Register provisions a new brokerage together with its founding user.

Description: Creates the tenant, hashes the password, persists the account
in pending state, bootstraps the owner role, and stages an email
verification token. The account cannot log in until verified.

Parameters:
  - ctx: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Conflict (if the email exists) or storage errors
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {

	// Verify email uniqueness. Return a client-safe Conflict error.
	if _, err := service.users.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	brokerage, err := service.tenants.Provision(ctx, input.BrokerageName)
	if err != nil {
		return nil, err
	}

	// Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:           uuid.New(),
		TenantID:     brokerage.ID,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		FullName:     input.FullName,
		Status:       StatusPending,
	}
	if err := service.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	if err := service.access.BootstrapOwner(ctx, brokerage.ID, user.ID); err != nil {
		return nil, fmt.Errorf("auth_service_bootstrap_failed: %w", err)
	}

	// Stage the verification token as an async-ready side effect.
	verificationToken, err := sec.GenerateSecureToken(VerificationTokenLength)
	if err == nil {
		_ = service.verifyTokens.Set(ctx, verificationToken, user.ID, VerificationTokenTTL)
		// TODO: hand the verification link to the outbound mail worker once
		// the notifications service lands.
	}

	return user, nil
}

/*
VerifyEmail activates a pending account using its verification token.

Parameters:
  - ctx: context.Context
  - verificationToken: string

Returns:
  - error: NotFound for unknown tokens, or storage failures
*/
func (service *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	userID, err := service.verifyTokens.Get(ctx, verificationToken)
	if err != nil {
		return err
	}

	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	// Verification only moves pending accounts; a suspended account must
	// not reactivate itself through a stale link.
	if user.Status == StatusPending {
		if err := service.users.UpdateStatus(ctx, userID, StatusActive); err != nil {
			return fmt.Errorf("auth_service_verify_email_failed: %w", err)
		}
	}

	_ = service.verifyTokens.Delete(ctx, verificationToken)
	return nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email            string
	Password         string
	SecondFactorCode string
	Device           sec.DeviceInfo
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	SessionID             string
	Suspicious            bool
	User                  *User
}

/*
Login runs the full authentication pipeline.

Description: Checks the lockout window, validates credentials and account
state, runs the second factor when enrolled, screens the login pattern,
creates the device-bound session, and issues the credential pair. Every
rejection is recorded in the login history and surfaces as the same
generic 401.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session credentials
  - error: Generic auth failure or internal failures
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*LoginSession, error) {

	// Lockout first: a locked pair gets no credential evaluation at all.
	if err := service.monitor.CheckLockout(ctx, input.Email, input.Device); err != nil {
		if apperr.IsAuthKind(err, apperr.KindAccountLocked) {
			metrics.LoginAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		}
		return nil, err
	}

	user, err := service.users.FindByEmail(ctx, input.Email)
	if err != nil {
		// Only an actual miss is a credential failure. An outage must
		// surface as retryable, never as a rejected login.
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		service.recordFailure(ctx, input, nil, apperr.KindInvalidCredentials)
		return nil, apperr.AuthFailure(apperr.KindInvalidCredentials)
	}

	// Constant-time comparison via bcrypt.
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		service.recordFailure(ctx, input, user, apperr.KindInvalidCredentials)
		return nil, apperr.AuthFailure(apperr.KindInvalidCredentials)
	}

	if !user.CanLogin() {
		service.recordFailure(ctx, input, user, apperr.KindAccountNotActive)
		return nil, apperr.AuthFailure(apperr.KindAccountNotActive)
	}

	secondFactorUsed := false
	if user.SecondFactorEnabled {
		if input.SecondFactorCode == "" {
			// Not recorded as a failure: the password was right, the client
			// just has to re-submit with the code.
			return nil, apperr.AuthFailure(apperr.KindSecondFactorRequired)
		}
		valid, err := service.secondFactor.Verify(ctx, user, input.SecondFactorCode)
		if err != nil {
			return nil, fmt.Errorf("auth_service_second_factor_failed: %w", err)
		}
		if !valid {
			service.recordFailure(ctx, input, user, apperr.KindInvalidSecondFactor)
			return nil, apperr.AuthFailure(apperr.KindInvalidSecondFactor)
		}
		secondFactorUsed = true
	}

	// Screening observes and scores; it never blocks a valid login.
	suspicious, riskScore := service.monitor.DetectSuspicious(ctx, user.ID, user.TenantID, input.Device)

	established, err := service.sessions.Create(ctx, session.CreateInput{
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Device:    input.Device,
		RiskScore: riskScore,
	})
	if err != nil {
		return nil, err
	}

	claims, err := service.buildClaims(ctx, user, input.Device, sec.SecurityFlags{
		MFACompleted:    secondFactorUsed,
		ProtectionLevel: protectionLevelStandard,
		RiskScore:       riskScore,
	})
	if err != nil {
		return nil, err
	}

	accessToken, accessExpiresAt, err := service.tokens.IssueAccess(user.ID, established.ID, claims)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshRecord, err := service.tokens.IssueRefresh(ctx, user.ID, established.ID, input.Device)
	if err != nil {
		return nil, err
	}

	service.monitor.RecordAttempt(ctx, security.AttemptInput{
		Email:   input.Email,
		UserID:  user.ID,
		Device:  input.Device,
		Success: true,
	})
	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()

	return &LoginSession{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: refreshRecord.ExpiresAt,
		SessionID:             established.ID,
		Suspicious:            suspicious,
		User:                  user,
	}, nil
}

// recordFailure books a failed attempt and keeps the internal failure kind
// in the history while the caller returns the generic rejection.
func (service *Service) recordFailure(ctx context.Context, input LoginInput, user *User, kind apperr.AuthKind) {
	userID := ""
	if user != nil {
		userID = user.ID
	}
	service.monitor.RecordAttempt(ctx, security.AttemptInput{
		Email:         input.Email,
		UserID:        userID,
		Device:        input.Device,
		Success:       false,
		FailureReason: string(kind),
	})
	metrics.LoginAttempts.WithLabelValues(metrics.OutcomeFailure).Inc()
}

// # Session Rotation

/*
Refresh redeems a refresh token for a rotated credential pair.

Description: Resolves the token, validates the owning session against the
presenting device, re-checks the account state, and rotates atomically.
Replay of an already-rotated token burns the whole session.

Parameters:
  - ctx: context.Context
  - rawRefreshToken: string
  - device: sec.DeviceInfo

Returns:
  - *LoginSession: Rotated credentials
  - error: Generic auth failure or internal failures
*/
func (service *Service) Refresh(ctx context.Context, rawRefreshToken string, device sec.DeviceInfo) (*LoginSession, error) {
	record, err := service.tokens.Redeem(ctx, rawRefreshToken)
	if errors.Is(err, token.ErrRefreshReuse) {
		service.burnSession(ctx, record)
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeReuse).Inc()
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
	}
	if err != nil {
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	validated, err := service.sessions.Validate(ctx, record.SessionID, device)
	if err != nil {
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	user, err := service.users.FindByID(ctx, record.UserID)
	if err != nil {
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
	}
	if !user.CanLogin() {
		// The account went inactive mid-session: tear everything down.
		_, _ = service.sessions.RevokeAll(ctx, user.ID, "")
		_, _ = service.tokens.RevokeAllForUser(ctx, user.ID)
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, apperr.AuthFailure(apperr.KindAccountNotActive)
	}

	newRefreshToken, newRecord, err := service.tokens.Rotate(ctx, record, device)
	if errors.Is(err, token.ErrRefreshReuse) {
		// Lost the race against a concurrent redemption of the same token.
		service.burnSession(ctx, record)
		metrics.RefreshRotations.WithLabelValues(metrics.OutcomeReuse).Inc()
		return nil, apperr.AuthFailure(apperr.KindInvalidOrExpiredToken)
	}
	if err != nil {
		return nil, err
	}

	claims, err := service.buildClaims(ctx, user, device, sec.SecurityFlags{
		ProtectionLevel: protectionLevelStandard,
		RiskScore:       validated.RiskScore,
	})
	if err != nil {
		return nil, err
	}

	accessToken, accessExpiresAt, err := service.tokens.IssueAccess(user.ID, validated.ID, claims)
	if err != nil {
		return nil, err
	}

	metrics.RefreshRotations.WithLabelValues(metrics.OutcomeRotated).Inc()
	return &LoginSession{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          newRefreshToken,
		RefreshTokenExpiresAt: newRecord.ExpiresAt,
		SessionID:             validated.ID,
		User:                  user,
	}, nil
}

// burnSession tears down a session family after a detected replay.
func (service *Service) burnSession(ctx context.Context, record *token.RefreshRecord) {
	if record == nil {
		return
	}
	service.log.WarnContext(ctx, "refresh_token_reuse_detected",
		slog.String("user_id", record.UserID),
		slog.String("session_id", record.SessionID),
	)
	if err := service.sessions.Revoke(ctx, record.SessionID); err != nil {
		service.log.ErrorContext(ctx, "reuse_session_revoke_failed", slog.Any("error", err))
	}
	if _, err := service.tokens.RevokeForSession(ctx, record.SessionID); err != nil {
		service.log.ErrorContext(ctx, "reuse_token_revoke_failed", slog.Any("error", err))
	}
	service.monitor.RecordEvent(ctx, &security.SecurityEvent{
		UserID:   record.UserID,
		Type:     security.EventRefreshReuse,
		Severity: security.SeverityCritical,
		Details: map[string]string{
			"session_id": record.SessionID,
		},
	})
}

/*
Logout terminates the caller's session and its refresh tokens.

Description: Idempotent; logging out an already-dead session succeeds.

Parameters:
  - ctx: context.Context
  - sessionID: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(ctx context.Context, sessionID string) error {
	if err := service.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	if _, err := service.tokens.RevokeForSession(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// # Account Management

/*
ChangePassword rotates the authenticated user's password.

Description: Verifies the current password, stores the new hash, then
revokes every other session and every refresh token. A fresh refresh token
is issued for the current session so the caller stays logged in.

Parameters:
  - ctx: context.Context
  - userID, sessionID: the authenticated caller
  - currentPassword, newPassword: string
  - device: sec.DeviceInfo

Returns:
  - string: Replacement refresh token for the current session
  - error: Unauthorized or storage failures
*/
func (service *Service) ChangePassword(ctx context.Context, userID, sessionID, currentPassword, newPassword string, device sec.DeviceInfo) (string, error) {
	user, err := service.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return "", apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(newPassword)
	if err != nil {
		return "", fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}
	if err := service.users.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return "", fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Force re-login everywhere else.
	if _, err := service.sessions.RevokeAll(ctx, userID, sessionID); err != nil {
		return "", err
	}
	if _, err := service.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return "", err
	}
	replacement, _, err := service.tokens.IssueRefresh(ctx, userID, sessionID, device)
	if err != nil {
		return "", err
	}

	service.monitor.RecordEvent(ctx, &security.SecurityEvent{
		UserID:   userID,
		TenantID: user.TenantID,
		Type:     security.EventPasswordChanged,
		Severity: security.SeverityInfo,
	})

	return replacement, nil
}

// Sessions returns the caller's live sessions.
func (service *Service) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	return service.sessions.ListActive(ctx, userID)
}

// RevokeSession terminates one of the caller's own sessions.
func (service *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	active, err := service.sessions.ListActive(ctx, userID)
	if err != nil {
		return err
	}
	for _, candidate := range active {
		if candidate.ID == sessionID {
			return service.Logout(ctx, sessionID)
		}
	}
	// Someone else's session id, or an already-dead one. Not found either way.
	return apperr.NotFound("Session")
}

/*
RevokeOtherSessions terminates every session of the caller except the one
making the request.

Description: Revokes all other sessions and every refresh token, then issues
a replacement refresh token so the current session survives.

Parameters:
  - ctx: context.Context
  - userID, sessionID: the authenticated caller
  - device: sec.DeviceInfo

Returns:
  - int: Number of sessions revoked
  - string: Replacement refresh token for the current session
  - error: Storage failures
*/
func (service *Service) RevokeOtherSessions(ctx context.Context, userID, sessionID string, device sec.DeviceInfo) (int, string, error) {
	revoked, err := service.sessions.RevokeAll(ctx, userID, sessionID)
	if err != nil {
		return 0, "", err
	}
	if _, err := service.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return 0, "", err
	}
	replacement, _, err := service.tokens.IssueRefresh(ctx, userID, sessionID, device)
	if err != nil {
		return 0, "", err
	}
	return revoked, replacement, nil
}

// SecurityEvents returns a page of the caller's audit trail.
func (service *Service) SecurityEvents(ctx context.Context, userID string, params pagination.Params) ([]security.SecurityEvent, pagination.Meta, error) {
	return service.monitor.ListEvents(ctx, userID, params)
}

// # Claims Assembly

// buildClaims assembles the full token claim set from the user's current
// roles and permissions. The token is self-contained: authorization later
// reads only the claims.
func (service *Service) buildClaims(ctx context.Context, user *User, device sec.DeviceInfo, flags sec.SecurityFlags) (sec.AuthClaims, error) {
	permissions, err := service.access.PermissionMap(ctx, user.ID)
	if err != nil {
		return sec.AuthClaims{}, fmt.Errorf("auth_service_permission_map_failed: %w", err)
	}
	roles, err := service.access.RoleNames(ctx, user.ID)
	if err != nil {
		return sec.AuthClaims{}, fmt.Errorf("auth_service_role_names_failed: %w", err)
	}

	return sec.AuthClaims{
		TenantID:      user.TenantID,
		Context:       device.Context(),
		Roles:         roles,
		PermissionMap: permissions.Encode(),
		Security:      flags,
	}, nil
}
