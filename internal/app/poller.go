package app

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/five82/mochiyoru/internal/board"
	"github.com/five82/mochiyoru/internal/state"
)

const (
	defaultPollInterval = 5 * time.Second
	maxBackoff          = 30 * time.Second
)

// Refresher is the part of *board.Board the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	Subscribed() bool
	Snapshot(sorted bool) board.State
}

// StartPoller launches a background goroutine that reconciles the board with
// the store while the live feed is not subscribed. Failures back off
// exponentially. It returns immediately; the returned channel closes when the
// goroutine exits.
func StartPoller(ctx context.Context, store *state.Store, src Refresher, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		failures := 0
		for {
			if err := refresh(ctx, store, src); err != nil {
				if ctx.Err() != nil {
					return
				}
				failures++
				logger.Warn("refresh failed", "failures", failures, "err", err)
			} else {
				failures = 0
			}

			timer := time.NewTimer(calculateBackoff(failures, interval))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return done
}

// refresh polls the store unless the live feed already delivers changes.
func refresh(ctx context.Context, store *state.Store, src Refresher) error {
	if !src.Subscribed() {
		if err := src.Refresh(ctx); err != nil {
			store.Update(nil, err)
			return err
		}
	}
	st := src.Snapshot(false)
	store.Update(&st, nil)
	return nil
}

// calculateBackoff doubles base once per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func secondsToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second
}
