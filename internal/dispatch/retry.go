package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"net/textproto"
	"time"

	"sitedigest/internal/mail"
)

// retryDelay is the wait after a failed attempt (attempt counts from 1):
// exponential from RetryBase, capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(o Options, attempt int) time.Duration {
	base := o.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := o.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	return d
}

// permanent errors are not worth retrying. SMTP 5xx replies are final;
// 4xx replies are transient.
func permanent(err error) bool {
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return true
	}
	return errors.Is(err, mail.ErrNoRecipient) ||
		errors.Is(err, mail.ErrNoContent) ||
		errors.Is(err, mail.ErrNoSender) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
