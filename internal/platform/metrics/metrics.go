// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package metrics exposes the platform's Prometheus instrumentation.
//
// Collectors are package-level and registered against the default registry;
// handlers and services increment them directly. The scrape endpoint is
// mounted by the API server at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts login outcomes, labelled success / failure / locked.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propela_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// Lockouts counts lockout-window rejections.
	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propela_login_lockouts_total",
		Help: "Login attempts rejected by the lockout window.",
	})

	// SuspiciousLogins counts logins flagged by the pattern detector.
	SuspiciousLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propela_suspicious_logins_total",
		Help: "Successful logins flagged as suspicious.",
	})

	// RefreshRotations counts refresh-token redemptions, labelled
	// rotated / reuse / rejected.
	RefreshRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propela_refresh_rotations_total",
		Help: "Refresh token redemptions by outcome.",
	}, []string{"outcome"})

	// PermissionDenials counts authorization denials by resource code.
	PermissionDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propela_permission_denials_total",
		Help: "Requests denied by the permission middleware, by resource code.",
	}, []string{"resource"})

	// SessionsEvicted counts sessions evicted by the concurrency cap.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propela_sessions_evicted_total",
		Help: "Sessions evicted by the per-user concurrency cap.",
	})
)

// Outcome labels for LoginAttempts and RefreshRotations.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeLocked   = "locked"
	OutcomeRotated  = "rotated"
	OutcomeReuse    = "reuse"
	OutcomeRejected = "rejected"
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
