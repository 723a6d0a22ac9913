package engine

import (
	"context"
	"time"

	"github.com/wendlabs/wend/pkg/schema"
)

// backoffDelay computes the exponential backoff before re-attempt n (1-based
// over failed attempts): base * 2^(n-1), capped at the configured maximum.
func (e *Engine) backoffDelay(attempt int) time.Duration {
	delay := e.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.cfg.RetryMaxDelay {
			return e.cfg.RetryMaxDelay
		}
	}
	if delay > e.cfg.RetryMaxDelay {
		delay = e.cfg.RetryMaxDelay
	}
	return delay
}

// retryWait sleeps out a backoff delay in poll-interval chunks, re-checking
// the abort signal before and during the wait so an abort raised while a
// retry is pending is honored instead of the next attempt.
func (e *Engine) retryWait(ctx context.Context, workflowName string, delay time.Duration) (*schema.AbortSignal, *schema.WendError) {
	deadline := e.clock.Now().Add(delay)
	for {
		if e.signals != nil {
			sig, err := e.signals.Check(ctx, workflowName)
			if err != nil {
				return nil, asWendError(err, "")
			}
			if sig != nil {
				return sig, nil
			}
		}

		remaining := deadline.Sub(e.clock.Now())
		if remaining <= 0 {
			return nil, nil
		}
		chunk := remaining
		if chunk > e.cfg.PollInterval {
			chunk = e.cfg.PollInterval
		}

		select {
		case <-ctx.Done():
			return nil, cancelledRunError(ctx, "")
		case <-e.clock.After(chunk):
		}
	}
}
