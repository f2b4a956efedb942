// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/propelacrm/propela/internal/platform/apperr"
	"github.com/propelacrm/propela/internal/platform/constants"
	"github.com/propelacrm/propela/internal/platform/metrics"
	"github.com/propelacrm/propela/internal/platform/sec"
	"github.com/propelacrm/propela/pkg/pagination"
)

// riskPerNovelDimension is added to the risk score for every fingerprint
// dimension with no overlap in recent history.
const riskPerNovelDimension = 30

// Monitor implements the login-surface security checks.
type Monitor struct {
	store Store
	log   *slog.Logger
}

// NewMonitor constructs a security [Monitor].
func NewMonitor(store Store, log *slog.Logger) *Monitor {
	return &Monitor{store: store, log: log}
}

// # Lockout

/*
CheckLockout rejects a login attempt when the (email, ip) pair has reached
[constants.MaxLoginAttempts] failures inside [constants.LockoutWindow].

The count includes only failures; a successful login inside the window does
not reset it. Keying on the pair keeps one address from locking a victim
out globally while still stopping per-address brute force.
*/
func (monitor *Monitor) CheckLockout(ctx context.Context, email string, device sec.DeviceInfo) error {
	since := time.Now().Add(-constants.LockoutWindow)
	failures, err := monitor.store.CountRecentFailures(ctx, email, device.IPHash(), since)
	if err != nil {
		return fmt.Errorf("lockout_count_failed: %w", err)
	}

	if failures >= constants.MaxLoginAttempts {
		metrics.Lockouts.Inc()
		monitor.log.WarnContext(ctx, "login_lockout_rejected",
			slog.String("ip_hash", device.IPHash()),
			slog.Int("failures", failures),
		)
		return apperr.AuthFailure(apperr.KindAccountLocked)
	}
	return nil
}

// # History

// AttemptInput describes a login attempt to record.
type AttemptInput struct {
	Email         string
	UserID        string
	Device        sec.DeviceInfo
	Success       bool
	FailureReason string
}

// RecordAttempt appends a login attempt to the history. Recording is best
// effort: a storage failure is logged and swallowed so bookkeeping can
// never break a login that already succeeded.
func (monitor *Monitor) RecordAttempt(ctx context.Context, input AttemptInput) {
	attempt := &LoginAttempt{
		ID:            ulid.Make().String(),
		Email:         input.Email,
		UserID:        input.UserID,
		IPHash:        input.Device.IPHash(),
		DeviceHash:    input.Device.DeviceHash(),
		Geo:           input.Device.Geo,
		BrowserFamily: input.Device.BrowserFamily(),
		Success:       input.Success,
		FailureReason: input.FailureReason,
		CreatedAt:     time.Now(),
	}

	if err := monitor.store.RecordAttempt(ctx, attempt); err != nil {
		monitor.log.ErrorContext(ctx, "login_attempt_record_failed",
			slog.Bool("success", input.Success),
			slog.Any("error", err),
		)
	}
}

// # Pattern Detection

/*
DetectSuspicious compares a successful login's fingerprint against the
user's last [constants.SuspiciousLoginSampleSize] successful logins.

Three dimensions are compared independently: location, device hash, and
browser family. A dimension is novel when the current value appears in none
of the sampled logins. Two or more novel dimensions flag the login; one
alone (a trip, a browser update) does not.

The returned risk score is proportional to how many dimensions are novel.
Detection never blocks the login: with no history, or on a detector
failure, the login proceeds unflagged.
*/
func (monitor *Monitor) DetectSuspicious(ctx context.Context, userID, tenantID string, device sec.DeviceInfo) (bool, int) {
	history, err := monitor.store.ListRecentSuccesses(ctx, userID, constants.SuspiciousLoginSampleSize)
	if err != nil {
		monitor.log.ErrorContext(ctx, "suspicious_history_load_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return false, 0
	}
	if len(history) == 0 {
		// First login of the account is the baseline.
		return false, 0
	}

	novelGeo, novelDevice, novelBrowser := true, true, true
	browserFamily := device.BrowserFamily()
	for _, past := range history {
		if past.Geo == device.Geo {
			novelGeo = false
		}
		if past.DeviceHash == device.DeviceHash() {
			novelDevice = false
		}
		if past.BrowserFamily == browserFamily {
			novelBrowser = false
		}
	}

	novel := 0
	for _, isNovel := range []bool{novelGeo, novelDevice, novelBrowser} {
		if isNovel {
			novel++
		}
	}
	riskScore := novel * riskPerNovelDimension
	if riskScore > 100 {
		riskScore = 100
	}

	if novel < 2 {
		return false, riskScore
	}

	metrics.SuspiciousLogins.Inc()
	monitor.log.WarnContext(ctx, "suspicious_login_detected",
		slog.String("user_id", userID),
		slog.Bool("novel_geo", novelGeo),
		slog.Bool("novel_device", novelDevice),
		slog.Bool("novel_browser", novelBrowser),
	)
	monitor.RecordEvent(ctx, &SecurityEvent{
		UserID:   userID,
		TenantID: tenantID,
		Type:     EventSuspiciousLogin,
		Severity: SeverityWarning,
		Details: map[string]string{
			"novel_geo":     fmt.Sprint(novelGeo),
			"novel_device":  fmt.Sprint(novelDevice),
			"novel_browser": fmt.Sprint(novelBrowser),
			"geo":           device.Geo,
		},
	})

	return true, riskScore
}

// # Audit Events

// RecordEvent appends an audit event, assigning id and timestamp. Best
// effort, like [Monitor.RecordAttempt].
func (monitor *Monitor) RecordEvent(ctx context.Context, event *SecurityEvent) {
	event.ID = ulid.Make().String()
	event.CreatedAt = time.Now()

	if err := monitor.store.RecordEvent(ctx, event); err != nil {
		monitor.log.ErrorContext(ctx, "security_event_record_failed",
			slog.String("type", event.Type),
			slog.Any("error", err),
		)
	}
}

// ListEvents returns a page of a user's audit events.
func (monitor *Monitor) ListEvents(ctx context.Context, userID string, params pagination.Params) ([]SecurityEvent, pagination.Meta, error) {
	events, total, err := monitor.store.ListEvents(ctx, userID, params)
	if err != nil {
		return nil, pagination.Meta{}, fmt.Errorf("security_event_list_failed: %w", err)
	}
	return events, pagination.NewMeta(params.Page, params.Limit, total), nil
}

// TrimHistory deletes login attempts past the retention period. Called by
// the janitor.
func (monitor *Monitor) TrimHistory(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-constants.LoginHistoryRetention)
	deleted, err := monitor.store.DeleteAttemptsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("login_history_trim_failed: %w", err)
	}
	return deleted, nil
}
