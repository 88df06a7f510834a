package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"sitedigest/internal/config"
	"sitedigest/internal/digest"
	"sitedigest/internal/dispatch"
	"sitedigest/internal/event"
	"sitedigest/internal/eventbus"
	"sitedigest/internal/intake"
	"sitedigest/internal/mail"
	"sitedigest/internal/runtime/supervisor"
	"sitedigest/internal/scheduler"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	logx "sitedigest/pkg/logx"
	"sitedigest/pkg/systemd"
)

// App wires the queue, compiler, transport and dispatch driver together.
// One-shot commands use it through Driver, Store and Acceptor and then call
// Close; the daemon calls Start and Stop.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	reg       *event.Registry
	site      *site.Static
	compiler  *digest.Compiler
	transport mail.Transport
	driver    *dispatch.Driver
	acceptor  *intake.Acceptor

	siteMu   sync.Mutex
	sitePath string
	siteMod  time.Time

	trigger *scheduler.Trigger
	http    *intake.Server
	sup     *supervisor.Supervisor
}

// New loads the config at cfgPath and opens every component except the
// background services.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogging(cfg.Logging))
	log := root.With(logx.String("comp", "app"))

	a := &App{cfgm: cfgm, cfg: cfg, log: log, logs: logSvc, bus: eventbus.New(), reg: digest.NewRegistry()}
	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	sc, err := mapStorage(cfg.Storage)
	if err != nil {
		return fail(err)
	}
	if a.store, err = storage.Open(sc, root.With(logx.String("comp", "storage"))); err != nil {
		if errors.Is(err, storage.ErrDisabled) {
			err = errors.New("storage.driver none leaves nowhere to queue events")
		}
		return fail(err)
	}

	a.sitePath = cfg.Site.Directory
	f, mod, err := readSite(a.sitePath)
	if err != nil {
		return fail(err)
	}
	a.site, a.siteMod = site.NewStatic(f), mod

	tr, err := loadTranslator(cfg.Digest)
	if err != nil {
		return fail(err)
	}
	a.compiler = digest.NewCompiler(a.reg, a.site, tr, root.With(logx.String("comp", "digest")))

	mc, err := mapMail(cfg.Mail)
	if err != nil {
		return fail(err)
	}
	if a.transport, err = mail.Open(mc, root.With(logx.String("comp", "mail"))); err != nil {
		return fail(err)
	}

	ds, err := mapDispatch(cfg)
	if err != nil {
		return fail(err)
	}
	a.driver = dispatch.New(dispatch.Deps{
		Store:     a.store,
		Compiler:  a.compiler,
		Transport: a.transport,
		Site:      a.site,
		Bus:       a.bus,
		Log:       root,
	}, ds)
	a.acceptor = intake.NewAcceptor(a.store, a.known, a.bus, root.With(logx.String("comp", "intake")))
	return a, nil
}

func (a *App) Log() logx.Logger           { return a.log }
func (a *App) Config() *config.Config     { return a.cfgm.Get() }
func (a *App) Store() storage.Store       { return a.store }
func (a *App) Driver() *dispatch.Driver   { return a.driver }
func (a *App) Acceptor() *intake.Acceptor { return a.acceptor }
func (a *App) Registry() *event.Registry  { return a.reg }
func (a *App) Bus() eventbus.Bus          { return a.bus }

func (a *App) known(eventType string) bool {
	_, ok := a.reg.RendererFor(eventType)
	return ok
}

// RunOnce refreshes the site directory and performs one dispatch pass.
func (a *App) RunOnce(ctx context.Context, now time.Time, force bool) (dispatch.Report, error) {
	a.refreshSite()
	var opts []dispatch.RunOption
	if force {
		opts = append(opts, dispatch.WithForce())
	}
	return a.driver.Run(ctx, now, opts...)
}

func readSite(path string) (site.File, time.Time, error) {
	st, err := os.Stat(path)
	if err != nil {
		return site.File{}, time.Time{}, fmt.Errorf("site.directory: %w", err)
	}
	f, err := site.ReadFile(path)
	if err != nil {
		return site.File{}, time.Time{}, err
	}
	return f, st.ModTime(), nil
}

// refreshSite reloads the directory file when its path or mtime changed.
// A broken file keeps the previous data.
func (a *App) refreshSite() {
	a.siteMu.Lock()
	defer a.siteMu.Unlock()
	path := a.sitePath
	if c := a.cfgm.Get(); c != nil {
		path = c.Site.Directory
	}
	st, err := os.Stat(path)
	if err != nil {
		a.log.Warn("site directory unreadable; keeping previous", logx.String("path", path), logx.Err(err))
		return
	}
	if path == a.sitePath && st.ModTime().Equal(a.siteMod) {
		return
	}
	f, mod, err := readSite(path)
	if err != nil {
		a.log.Warn("site directory reload failed; keeping previous", logx.String("path", path), logx.Err(err))
		return
	}
	a.site.Replace(f)
	a.sitePath, a.siteMod = path, mod
	a.log.Info("site directory reloaded", logx.String("path", path), logx.Int("users", len(f.Users)),
		logx.Int("posts", len(f.Posts)), logx.Int("comments", len(f.Comments)))
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal error of a background service.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the daemon services: the trigger, config hot reload, intake
// surfaces and systemd notifications.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	_, loc, spec, err := mapSchedule(a.cfg.Digest)
	if err != nil {
		return err
	}
	a.trigger, err = scheduler.NewTrigger(spec, loc, a.tick, a.log.With(logx.String("comp", "trigger")))
	if err != nil {
		return err
	}
	if err := a.trigger.Start(a.sup.Context()); err != nil {
		return err
	}

	hc, err := mapHTTPIntake(a.cfg.Intake.HTTP)
	if err != nil {
		return err
	}
	a.http = intake.NewServer(hc, a.acceptor, a.store, a.log)
	if err := a.http.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("intake http: %w", err)
	}

	if k := a.cfg.Intake.Kafka; k.Enabled {
		kc := intake.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic, GroupID: k.GroupID}
		a.sup.GoRestart("intake.kafka", func(c context.Context) error {
			consumer, err := intake.NewConsumer(kc, a.acceptor, a.log)
			if err != nil {
				return err
			}
			return consumer.Run(c)
		}, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.watchEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", systemd.Watchdog)

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	}
	a.log.Info("app started", logx.String("trigger", spec), logx.Time("next", a.trigger.Next()))
	return nil
}

func (a *App) tick(ctx context.Context, now time.Time) {
	if _, err := a.RunOnce(ctx, now, false); err != nil {
		a.log.Error("digest run failed", logx.Err(err))
	}
}

func (a *App) watchEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if rep, ok := e.Data.(dispatch.Report); ok && e.Type == eventbus.TypeRunFinished {
				_, _ = systemd.Status(fmt.Sprintf("last digest %s: %d sent, %d failed",
					rep.Started.Format(time.RFC3339), rep.Sent(), rep.Failed()))
			}
		}
	}
}

// validate runs before a reloaded config is committed.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	_, _, spec, err := mapSchedule(cfg.Digest)
	if err != nil {
		return err
	}
	if _, err := scheduler.NormalizeTrigger(spec); err != nil {
		return fmt.Errorf("digest.trigger: %w", err)
	}
	if _, err := mapDispatch(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPIntake(cfg.Intake.HTTP); err != nil {
		return err
	}
	if _, err := loadTranslator(cfg.Digest); err != nil {
		return err
	}
	if _, err := site.ReadFile(cfg.Site.Directory); err != nil {
		return fmt.Errorf("site.directory: %w", err)
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: apply only the newest.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

// apply pushes a validated config into the running components.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	if restart := config.RequiresRestart(prev, next); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	a.logs.Apply(mapLogging(next.Logging))

	if ds, err := mapDispatch(next); err != nil {
		a.log.Warn("invalid digest/mail config; keeping previous", logx.Err(err))
	} else {
		a.driver.Apply(ds)
	}
	if _, loc, spec, err := mapSchedule(next.Digest); err == nil {
		if err := a.trigger.Apply(spec, loc); err != nil {
			a.log.Warn("invalid trigger; keeping previous", logx.Err(err))
		}
	}
	if tr, err := loadTranslator(next.Digest); err != nil {
		a.log.Warn("translation reload failed; keeping previous", logx.Err(err))
	} else {
		a.compiler.SetTranslator(tr)
	}
	a.refreshSite()
	if hc, err := mapHTTPIntake(next.Intake.HTTP); err == nil {
		if err := a.http.Reconfigure(ctx, hc); err != nil {
			a.log.Error("intake http reconfigure failed", logx.Err(err))
		}
	}
	a.log.Debug("config applied", logx.Time("next_trigger", a.trigger.Next()))
}

// Stop shuts the services down in reverse start order, each step bounded.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()
	a.sup.Cancel()

	if a.trigger != nil {
		a.step(ctx, "trigger", 5*time.Second, func(c context.Context) error { a.trigger.Stop(c); return nil })
	}
	if a.http != nil {
		a.step(ctx, "intake.http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	}
	a.step(ctx, "supervisor", 3*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	c, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	if err := fn(c); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
	}
	if took := time.Since(start); took >= 500*time.Millisecond {
		a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
	}
}

// Close releases the store, the transport and log files.
func (a *App) Close() error {
	var errs []error
	if cl, ok := a.transport.(mail.Closer); ok {
		errs = append(errs, cl.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
