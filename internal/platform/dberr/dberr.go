// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/propelacrm/propela/internal/platform/apperr"
)

// Postgres SQLSTATE codes the bridge classifies.
const (
	// uniqueViolation is a unique constraint breach.
	uniqueViolation = "23505"

	// tooManyConnections means the server refused a new connection.
	tooManyConnections = "53300"

	// connectionClass prefixes class 08, connection exceptions.
	connectionClass = "08"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
//
// conflictMsg is the client-safe message used when the error is a unique
// constraint violation; it should name the colliding attribute, never the
// constraint.
func Wrap(err error, conflictMsg string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Unique violations surface as client Conflicts
	if IsUniqueViolation(err) {
		return apperr.Conflict(conflictMsg)
	}

	// 3. Outages and timeouts are the retryable class
	if IsUnavailable(err) {
		return apperr.StorageUnavailable(err)
	}

	// 4. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}

/*
Query wraps a failed store call under its log-context tag.

Outages and timeouts become [apperr.StorageUnavailable], the only error
class a caller may retry. Everything else keeps its raw chain and is mapped
to a 500 at the response boundary.

Parameters:
  - logCtx: the snake_case tag identifying the failing query
  - err: the raw driver error

Returns:
  - error: nil when err is nil
*/
func Query(logCtx string, err error) error {
	if err == nil {
		return nil
	}
	if IsUnavailable(err) {
		return apperr.StorageUnavailable(fmt.Errorf("%s: %w", logCtx, err))
	}
	return fmt.Errorf("%s: %w", logCtx, err)
}

// IsUnavailable reports whether err is a storage outage or timeout rather
// than a query-level failure: an exceeded deadline, a failed or refused
// connection, or a server shutting down.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, connectionClass) {
			return true
		}
		switch pgErr.Code {
		case tooManyConnections, "57P01", "57P02", "57P03":
			return true
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsUniqueViolation reports whether err is a Postgres unique constraint breach.
//
// Inserts that race a uniqueness check (email registration, slug
// provisioning) use this to turn the late collision into the same Conflict
// the early check would have produced.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
