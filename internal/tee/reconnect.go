package tee

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/qpnet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Run keeps the pipe connected until ctx ends, retrying failed connects
// with backoff. A disabled tee is polled at the maximum backoff delay.
func (t *Tee) Run(ctx context.Context, cfg session.BackoffConfig) {
	backoff := session.NewBackoff(cfg)
	for {
		if done := t.linkDone(); done != nil {
			select {
			case <-ctx.Done():
				return
			case <-done:
			}
			backoff.Reset()
			if !sleepCtx(ctx, cfg.InitialDelay) {
				return
			}
			continue
		}

		err := t.Connect(ctx)
		var delay time.Duration
		switch {
		case err == nil:
			backoff.Reset()
			continue
		case errors.Is(err, ErrDisabled):
			backoff.Reset()
			delay = cfg.MaxDelay
		default:
			delay = backoff.Next()
			log.Debug().Err(err).Int("attempt", backoff.Attempt()).Dur("retry_in", delay).Msg("tee.Run reconnect scheduled")
		}
		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// linkDone returns the done channel of the live link, or nil when there
// is none.
func (t *Tee) linkDone() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.link == nil || t.state != Connected {
		return nil
	}
	return t.link.stream.Done()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
