// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

package janitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSweeper struct {
	removed int
	err     error
	calls   int
}

func (s *stubSweeper) DeleteExpired(context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

type stubTrimmer struct {
	removed int
	err     error
	calls   int
}

func (s *stubTrimmer) TrimHistory(context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

func TestSweep_RunsAllTasks(t *testing.T) {
	sessions := &stubSweeper{removed: 3}
	tokens := &stubSweeper{removed: 2}
	history := &stubTrimmer{removed: 10}

	janitor := New(sessions, tokens, history, slog.New(slog.NewTextHandler(io.Discard, nil)))
	janitor.Sweep(context.Background())

	assert.Equal(t, 1, sessions.calls)
	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, 1, history.calls)
}

func TestSweep_FailingTaskDoesNotStopOthers(t *testing.T) {
	sessions := &stubSweeper{err: errors.New("pool exhausted")}
	tokens := &stubSweeper{}
	history := &stubTrimmer{}

	janitor := New(sessions, tokens, history, slog.New(slog.NewTextHandler(io.Discard, nil)))
	janitor.Sweep(context.Background())

	assert.Equal(t, 1, tokens.calls)
	assert.Equal(t, 1, history.calls)
}
