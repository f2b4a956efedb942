// Copyright (c) 2026 Propela. All rights reserved.
// Author: platform@propela.app

// Package janitor runs the periodic cleanup sweep over security state.
//
// Expired sessions and refresh tokens are already rejected at read time;
// the janitor only reclaims the storage they occupy, plus login history
// past its retention.
package janitor

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/propelacrm/propela/internal/platform/constants"
)

// SessionSweeper deletes sessions past their expiry.
type SessionSweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// TokenSweeper deletes refresh-token records past their expiry.
type TokenSweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// HistoryTrimmer removes login attempts past their retention.
type HistoryTrimmer interface {
	TrimHistory(ctx context.Context) (int, error)
}

// Janitor schedules and runs the cleanup sweep.
type Janitor struct {
	sessions SessionSweeper
	tokens   TokenSweeper
	history  HistoryTrimmer
	log      *slog.Logger
	cron     *cron.Cron
}

// New constructs a [Janitor]. Call [Janitor.Start] to begin sweeping.
func New(sessions SessionSweeper, tokens TokenSweeper, history HistoryTrimmer, log *slog.Logger) *Janitor {
	return &Janitor{
		sessions: sessions,
		tokens:   tokens,
		history:  history,
		log:      log,
		cron:     cron.New(),
	}
}

// Start registers the sweep on [constants.JanitorSchedule] and launches the
// scheduler in its own goroutine.
func (janitor *Janitor) Start(ctx context.Context) error {
	_, err := janitor.cron.AddFunc(constants.JanitorSchedule, func() {
		janitor.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	janitor.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (janitor *Janitor) Stop() {
	<-janitor.cron.Stop().Done()
}

// Sweep runs one cleanup pass. Each task is independent: a failing task is
// logged and the others still run.
func (janitor *Janitor) Sweep(ctx context.Context) {
	if removed, err := janitor.sessions.DeleteExpired(ctx); err != nil {
		janitor.log.ErrorContext(ctx, "janitor_sessions_failed", slog.Any("error", err))
	} else if removed > 0 {
		janitor.log.InfoContext(ctx, "janitor_sessions_swept", slog.Int("removed", removed))
	}

	if removed, err := janitor.tokens.DeleteExpired(ctx); err != nil {
		janitor.log.ErrorContext(ctx, "janitor_tokens_failed", slog.Any("error", err))
	} else if removed > 0 {
		janitor.log.InfoContext(ctx, "janitor_tokens_swept", slog.Int("removed", removed))
	}

	if removed, err := janitor.history.TrimHistory(ctx); err != nil {
		janitor.log.ErrorContext(ctx, "janitor_history_failed", slog.Any("error", err))
	} else if removed > 0 {
		janitor.log.InfoContext(ctx, "janitor_history_trimmed", slog.Int("removed", removed))
	}
}
