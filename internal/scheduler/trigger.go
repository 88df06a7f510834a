package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "sitedigest/pkg/logx"
)

// DefaultTrigger fires at the top of every hour.
const DefaultTrigger = "@hourly"

// Job is invoked on every trigger tick with the tick time in the trigger's
// location.
type Job func(ctx context.Context, now time.Time)

// Trigger calls a job on a cron schedule. It does not decide whether a
// digest is due; the job does that with IsDue.
type Trigger struct {
	mu     sync.Mutex
	log    logx.Logger
	parser cron.Parser
	job    Job

	spec string
	loc  *time.Location
	c    *cron.Cron
	ctx  context.Context
}

func NewTrigger(spec string, loc *time.Location, job Job, log logx.Logger) (*Trigger, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Trigger{
		log:    log,
		parser: cronParser,
		job:    job,
	}
	if err := t.set(spec, loc); err != nil {
		return nil, err
	}
	return t, nil
}

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeTrigger parses spec (cron, descriptor, HH:MM or duration) and
// returns it in cron syntax. An empty spec is DefaultTrigger.
func NormalizeTrigger(spec string) (string, error) {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultTrigger
	}
	ps, err := ParseSchedule(spec)
	if err != nil {
		return "", err
	}
	if _, err := cronParser.Parse(ps.CronSpec()); err != nil {
		return "", fmt.Errorf("trigger schedule %q: %w", spec, err)
	}
	return ps.CronSpec(), nil
}

func (t *Trigger) set(spec string, loc *time.Location) error {
	cs, err := NormalizeTrigger(spec)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	t.spec = cs
	t.loc = loc
	return nil
}

// Start begins firing. The job receives ctx; cancelling it does not stop
// the trigger, Stop does.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}
	t.ctx = ctx
	return t.startLocked()
}

func (t *Trigger) startLocked() error {
	c := cron.New(
		cron.WithParser(t.parser),
		cron.WithLocation(t.loc),
		cron.WithChain(cron.Recover(cronLogger{t.log}), cron.SkipIfStillRunning(cronLogger{t.log})),
	)
	ctx, job, loc := t.ctx, t.job, t.loc
	if _, err := c.AddFunc(t.spec, func() { job(ctx, time.Now().In(loc)) }); err != nil {
		return err
	}
	c.Start()
	t.c = c
	t.log.Info("trigger started", logx.String("spec", t.spec), logx.String("tz", t.loc.String()), logx.Time("next", t.nextLocked()))
	return nil
}

// Apply swaps schedule and location, restarting the cron runner if running.
func (t *Trigger) Apply(spec string, loc *time.Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	oldSpec, oldLoc := t.spec, t.loc
	if err := t.set(spec, loc); err != nil {
		return err
	}
	if t.c == nil || (oldSpec == t.spec && oldLoc.String() == t.loc.String()) {
		return nil
	}
	t.c.Stop()
	t.c = nil
	return t.startLocked()
}

// Stop halts the trigger and waits for a running job, or for ctx.
func (t *Trigger) Stop(ctx context.Context) {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	t.log.Info("trigger stopped")
}

// Next is the next fire time, or zero when stopped.
func (t *Trigger) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextLocked()
}

func (t *Trigger) nextLocked() time.Time {
	if t.c == nil {
		return time.Time{}
	}
	entries := t.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	sched, err := t.parser.Parse(t.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now().In(t.loc))
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
