package dispatch

import (
	"context"
	"fmt"
	"time"

	"sitedigest/internal/digest"
	"sitedigest/internal/mail"
	"sitedigest/pkg/htmlx"
)

// Preview is a compiled but unsent digest.
type Preview struct {
	Message mail.Message
	Result  digest.Result
}

// Preview compiles the current queue the way Run would, without sending or
// clearing anything. A non-empty only limits it to that recipient.
func (d *Driver) Preview(ctx context.Context, now time.Time, only string) ([]Preview, error) {
	s := d.Settings()
	d.mu.RLock()
	filters := append([]SubjectFilter(nil), d.filters...)
	d.mu.RUnlock()

	snap, err := d.deps.Store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	subject := d.subject(s.Frequency, filters)
	local := now.In(s.Location)

	var out []Preview
	for _, rcpt := range snap.Recipients {
		if only != "" && rcpt != only {
			continue
		}
		res, err := d.deps.Compiler.Compile(ctx, rcpt, snap.Events[rcpt], local)
		if err != nil {
			return out, err
		}
		out = append(out, Preview{
			Message: mail.Message{
				From:    s.Options.From,
				To:      rcpt,
				Subject: subject,
				HTML:    res.Body.String(),
				Text:    htmlx.PlainText(res.Body),
			},
			Result: res,
		})
	}
	return out, nil
}
