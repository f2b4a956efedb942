// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

/*
Package apperr defines the centralized error handling framework for Propela.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - AuthKind: Internal classification of authentication failures, logged but
    never disclosed to clients.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the canonical error type for the Propela API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause and Kind fields are for server-side logging only and are never
// sent to clients. Authentication failures in particular always surface the
// same generic message so that an attacker cannot distinguish "wrong
// password" from "unknown user" or "suspended account".
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "CONFLICT").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Kind classifies authentication failures for logs and tests. Never serialized.
	Kind AuthKind `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
	// Permission describes the denied requirement for INSUFFICIENT_PERMISSION
	// responses. Safe to disclose: it names a resource category and the
	// actions the caller lacked, never a secret.
	Permission *PermissionDetail `json:"permission,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// PermissionDetail identifies which permission requirement a request failed.
type PermissionDetail struct {
	// ResourceCode is the protected resource category key (e.g. "0p").
	ResourceCode string `json:"resource_code"`
	// Required lists the action names the caller was missing.
	Required []string `json:"required"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// # Authentication Failure Kinds

// AuthKind is the internal taxonomy of authentication failures. All kinds map
// to the same generic 401 response; the kind itself appears only in server
// logs and security events.
type AuthKind string

const (
	KindInvalidCredentials      AuthKind = "invalid_credentials"
	KindAccountLocked           AuthKind = "account_locked"
	KindAccountNotActive        AuthKind = "account_not_active"
	KindSecondFactorRequired    AuthKind = "second_factor_required"
	KindInvalidSecondFactor     AuthKind = "invalid_second_factor"
	KindInvalidOrExpiredSession AuthKind = "invalid_or_expired_session"
	KindDeviceMismatch          AuthKind = "device_mismatch"
	KindInvalidOrExpiredToken   AuthKind = "invalid_or_expired_token"
)

// genericAuthMessage is the only authentication failure text clients ever see.
const genericAuthMessage = "Invalid credentials or session"

// AuthFailure creates a 401 [AppError] carrying an internal [AuthKind].
//
// The client-visible message is always the same generic string. Use
// [KindOf] in tests and logging to recover the precise failure class.
func AuthFailure(kind AuthKind) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    genericAuthMessage,
		HTTPStatus: http.StatusUnauthorized,
		Kind:       kind,
	}
}

// KindOf extracts the [AuthKind] from err's chain. Empty if none.
func KindOf(err error) AuthKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsAuthKind reports whether err carries the given authentication failure kind.
func IsAuthKind(err error, kind AuthKind) bool {
	return KindOf(err) == kind
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] for a named resource.
//
// Example:
//
//	apperr.NotFound("Role") // Returns "Role not found"
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError].
func Unauthorized(msg string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    msg,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(msg string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    msg,
		HTTPStatus: http.StatusForbidden,
	}
}

// InsufficientPermission creates a 403 [AppError] naming the resource code
// and the action names the caller lacked. Disclosing these lets the UI
// explain the denial without leaking anything sensitive.
func InsufficientPermission(resourceCode string, required []string) *AppError {
	return &AppError{
		Code:       "INSUFFICIENT_PERMISSION",
		Message:    "You do not have permission to perform this action",
		HTTPStatus: http.StatusForbidden,
		Permission: &PermissionDetail{
			ResourceCode: resourceCode,
			Required:     required,
		},
	}
}

// Conflict creates a 409 [AppError] for duplicate or unique-constraint violations.
func Conflict(msg string) *AppError {
	return &AppError{
		Code:       "CONFLICT",
		Message:    msg,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(msg string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// RateLimited creates a 429 [AppError].
func RateLimited(retryAfterSeconds int) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("Too many requests. Try again in %ds.", retryAfterSeconds),
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// Unprocessable creates a 422 [AppError] for semantically invalid input.
func Unprocessable(msg string) *AppError {
	return &AppError{
		Code:       "UNPROCESSABLE",
		Message:    msg,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// StorageUnavailable creates a 503 [AppError] for storage outages or timeouts.
//
// This is the only error class callers may retry. It deliberately does NOT
// map to 401/403: a flaky database must never look like a denied login.
func StorageUnavailable(cause error) *AppError {
	return &AppError{
		Code:       "TEMPORARILY_UNAVAILABLE",
		Message:    "Service temporarily unavailable, please retry",
		HTTPStatus: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// ServiceUnavailable creates a 503 [AppError] for maintenance mode.
func ServiceUnavailable(msg string) *AppError {
	return &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// # Helpers

// IsAppError reports whether err (or any error in its chain) is an [*AppError].
func IsAppError(err error) bool {
	var ae *AppError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a NOT_FOUND application error.
func IsNotFound(err error) bool {
	ae := As(err)
	return ae != nil && ae.HTTPStatus == http.StatusNotFound
}

// As extracts the [*AppError] from err's chain. It returns nil if not found.
func As(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}
	return nil
}
