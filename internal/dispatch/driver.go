package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"sitedigest/internal/digest"
	"sitedigest/internal/eventbus"
	"sitedigest/internal/mail"
	"sitedigest/internal/scheduler"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
	logx "sitedigest/pkg/logx"
)

// Options are the delivery settings of a Driver.
type Options struct {
	From mail.Address
	// RatePerSec limits sends; 0 disables the limit.
	RatePerSec    float64
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Settings are the parts of a Driver that may change at runtime.
type Settings struct {
	Frequency scheduler.Frequency
	// Location is the zone IsDue reads hours and weekdays in.
	Location *time.Location
	Options  Options
}

// SubjectFilter may rewrite the subject line before sending.
type SubjectFilter func(subject string, f scheduler.Frequency) string

// BeforeHook runs once per due run, after the queue was read and before
// anything is compiled.
type BeforeHook func(ctx context.Context, snap storage.Snapshot, f scheduler.Frequency)

// Deps are the collaborators of a Driver.
type Deps struct {
	Store     storage.Store
	Compiler  *digest.Compiler
	Transport mail.Transport
	Site      site.Directory
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Driver runs digest passes: check the schedule, read the queue, compile
// and send one digest per recipient, then clear what was read.
type Driver struct {
	deps Deps
	log  logx.Logger
	bus  eventbus.Bus

	run sync.Mutex

	mu       sync.RWMutex
	settings Settings
	limiter  *rate.Limiter
	filters  []SubjectFilter
	hooks    []BeforeHook
}

func New(deps Deps, s Settings) *Driver {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	d := &Driver{deps: deps, log: log.With(logx.String("comp", "dispatch")), bus: bus}
	d.Apply(s)
	return d
}

// Apply swaps the runtime settings. A run in progress keeps the settings
// it started with.
func (d *Driver) Apply(s Settings) {
	if s.Location == nil {
		s.Location = time.Local
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limiter == nil || s.Options.RatePerSec != d.settings.Options.RatePerSec {
		d.limiter = newLimiter(s.Options.RatePerSec)
	}
	d.settings = s
}

func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

func (d *Driver) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// AddSubjectFilter registers f; filters run in registration order.
func (d *Driver) AddSubjectFilter(f SubjectFilter) {
	d.mu.Lock()
	d.filters = append(d.filters, f)
	d.mu.Unlock()
}

func (d *Driver) AddBeforeHook(h BeforeHook) {
	d.mu.Lock()
	d.hooks = append(d.hooks, h)
	d.mu.Unlock()
}

type runOptions struct {
	force bool
}

type RunOption func(*runOptions)

// WithForce skips the schedule check.
func WithForce() RunOption { return func(o *runOptions) { o.force = true } }

// Run performs one pass at now.
//
// Failed sends are reported in the Report and do not stop the pass; the
// queue is cleared once after every recipient was handled. An error is
// returned only when the queue cannot be read or cleared, or ctx ends
// before every recipient was handled, in which case nothing is cleared.
func (d *Driver) Run(ctx context.Context, now time.Time, opts ...RunOption) (Report, error) {
	var ro runOptions
	for _, o := range opts {
		o(&ro)
	}
	if !d.run.TryLock() {
		d.log.Warn("digest run skipped: previous run still in progress")
		return Report{Busy: true}, nil
	}
	defer d.run.Unlock()

	d.mu.RLock()
	s := d.settings
	limiter := d.limiter
	filters := append([]SubjectFilter(nil), d.filters...)
	hooks := append([]BeforeHook(nil), d.hooks...)
	d.mu.RUnlock()

	local := now.In(s.Location)
	rep := Report{Forced: ro.force, Started: time.Now()}
	if !ro.force && !scheduler.IsDue(s.Frequency, local) {
		d.log.Debug("digest not due", logx.Time("now", local), logx.String("period", string(s.Frequency.Period)), logx.Int("hour", s.Frequency.Hour))
		return rep, nil
	}
	rep.Due = true

	snap, err := d.deps.Store.GetAll(ctx)
	if err != nil {
		return rep, fmt.Errorf("read queue: %w", err)
	}
	if snap.Empty() {
		d.log.Debug("digest queue empty")
		return rep, nil
	}
	rep.Watermark = snap.Seq
	rep.Events = snap.Len()
	rep.Subject = d.subject(s.Frequency, filters)

	d.bus.Publish(eventbus.Event{Type: eventbus.TypeRunStarted, Data: rep.Events})
	d.log.Info("digest run started", logx.Int("recipients", len(snap.Recipients)), logx.Int("events", rep.Events),
		logx.Bool("forced", ro.force), logx.String("subject", rep.Subject))

	for _, h := range hooks {
		h(ctx, snap, s.Frequency)
	}

	for _, rcpt := range snap.Recipients {
		res, err := d.deliver(ctx, rcpt, snap.Events[rcpt], local, rep.Subject, s.Options, limiter)
		if err != nil {
			rep.Took = time.Since(rep.Started)
			d.log.Warn("digest run aborted, queue kept", logx.Err(err), logx.Int("handled", len(rep.Results)))
			return rep, err
		}
		rep.Results = append(rep.Results, res)
	}
	if err := ctx.Err(); err != nil {
		rep.Took = time.Since(rep.Started)
		d.log.Warn("digest run aborted before clear, queue kept", logx.Err(err), logx.Int("handled", len(rep.Results)))
		return rep, err
	}

	if err := d.deps.Store.ClearAll(ctx, snap); err != nil {
		rep.Took = time.Since(rep.Started)
		return rep, fmt.Errorf("clear queue: %w", err)
	}
	rep.Cleared = true
	rep.Took = time.Since(rep.Started)
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeCleared, Data: snap.Seq})
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: rep})
	d.log.Info("digest run finished", logx.Int("sent", rep.Sent()), logx.Int("failed", rep.Failed()),
		logx.Int("empty", rep.Empty()), logx.Duration("took", rep.Took))
	return rep, nil
}

// deliver compiles and sends one recipient's digest. Only an abort (ctx
// done during compile or send) is returned as an error; other send failures
// are part of Result.
func (d *Driver) deliver(ctx context.Context, rcpt string, events []storage.Event, now time.Time, subject string, o Options, lim *rate.Limiter) (Result, error) {
	res := Result{Recipient: rcpt}
	c, err := d.deps.Compiler.Compile(ctx, rcpt, events, now)
	if err != nil {
		return res, err
	}
	res.Entries, res.Dropped, res.Skipped = c.Entries(), c.Dropped, c.Skipped

	if c.Empty() {
		res.Status = StatusEmpty
		d.log.Debug("digest empty, not sent", logx.String("recipient", rcpt), logx.Int("dropped", c.Dropped), logx.Int("skipped", c.Skipped))
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeEmpty, Data: eventbus.Delivery{Recipient: rcpt, Subject: subject}})
		return res, nil
	}

	msg := mail.Message{
		From:    o.From,
		To:      rcpt,
		Subject: subject,
		HTML:    c.Body.String(),
		Text:    htmlx.PlainText(c.Body),
	}
	res.Attempts, res.Err = d.send(ctx, msg, o, lim)
	if res.Err != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}
	ev := eventbus.Delivery{Recipient: rcpt, Subject: subject, Entries: res.Entries, Attempts: res.Attempts}
	if res.Err != nil {
		res.Status = StatusFailed
		ev.Error = res.Err.Error()
		d.log.Error("digest send failed", logx.String("recipient", rcpt), logx.Int("attempts", res.Attempts), logx.Err(res.Err))
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeFailed, Data: ev})
		return res, nil
	}
	res.Status = StatusSent
	d.log.Info("digest sent", logx.String("recipient", rcpt), logx.Int("entries", res.Entries), logx.Int("attempts", res.Attempts))
	d.bus.Publish(eventbus.Event{Type: eventbus.TypeSent, Data: ev})
	return res, nil
}

func (d *Driver) send(ctx context.Context, msg mail.Message, o Options, lim *rate.Limiter) (int, error) {
	maxAttempts := 1
	if o.RetryMax > 0 {
		maxAttempts = 1 + o.RetryMax
	}
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			return attempt, err
		}
		lastErr = d.deps.Transport.Send(ctx, msg)
		if lastErr == nil || permanent(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		d.log.Debug("digest send retry", logx.String("recipient", msg.To), logx.Int("attempt", attempt), logx.Err(lastErr))
		if err := sleep(ctx, retryDelay(o, attempt)); err != nil {
			return attempt, lastErr
		}
	}
	return attempt, lastErr
}

func (d *Driver) subject(f scheduler.Frequency, filters []SubjectFilter) string {
	tr := d.deps.Compiler.Translator()
	name := d.deps.Site.Info().Name
	subject := tr.T("Past Week on %s", name)
	if f.Period == scheduler.Daily {
		subject = tr.T("Today on %s", name)
	}
	for _, fn := range filters {
		subject = fn(subject, f)
	}
	return subject
}
