// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package dberr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propelacrm/propela/internal/platform/apperr"
)

func TestIsUnavailable(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query_failed: %w", context.DeadlineExceeded), true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"no rows", pgx.ErrNoRows, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.unavailable, IsUnavailable(testCase.err))
		})
	}
}

func TestQuery_MapsOutageToRetryableClass(t *testing.T) {
	err := Query("postgres_user_scan_failed", context.DeadlineExceeded)

	appError := apperr.As(err)
	require.NotNil(t, appError)
	assert.Equal(t, http.StatusServiceUnavailable, appError.HTTPStatus)
}

func TestQuery_KeepsQueryFailuresRaw(t *testing.T) {
	cause := errors.New("syntax error")
	err := Query("postgres_user_scan_failed", cause)

	assert.False(t, apperr.IsAppError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "postgres_user_scan_failed")
}

func TestQuery_NilPassesThrough(t *testing.T) {
	assert.NoError(t, Query("postgres_anything_failed", nil))
}

func TestWrap_Classification(t *testing.T) {
	assert.True(t, apperr.IsNotFound(Wrap(pgx.ErrNoRows, "")))

	conflict := apperr.As(Wrap(&pgconn.PgError{Code: "23505"}, "Email is already registered"))
	require.NotNil(t, conflict)
	assert.Equal(t, http.StatusConflict, conflict.HTTPStatus)

	outage := apperr.As(Wrap(&pgconn.PgError{Code: "08001"}, ""))
	require.NotNil(t, outage)
	assert.Equal(t, http.StatusServiceUnavailable, outage.HTTPStatus)
}
