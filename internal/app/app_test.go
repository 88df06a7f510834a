package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitedigest/internal/config"
	"sitedigest/internal/intake"
	"sitedigest/internal/scheduler"
)

const siteYAML = `
site:
  name: Example Blog
  home_url: https://blog.example.com
  trash_days: 30
users:
  - id: 2
    email: alice@x.com
    display_name: Alice
posts:
  - id: 10
    title: Hello
    permalink: https://blog.example.com/hello/
comments:
  - id: 42
    post_id: 10
    author: Carol
    content: Nice post
`

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	sitePath := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(sitePath, []byte(siteYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := `
logging:
  level: error
digest:
  period: weekly
  hour: 18
  day: 5
  timezone: UTC
site:
  directory: ` + sitePath + `
storage:
  driver: file
  path: ` + filepath.Join(dir, "queue") + `
mail:
  driver: pickup
  from: digest@blog.example.com
  from_name: Example Blog
  pickup:
    dir: ` + filepath.Join(dir, "outbox") + `
`
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMapSchedule(t *testing.T) {
	hour, day := 7, 9
	cases := []struct {
		name string
		in   config.DigestConfig
		want scheduler.Frequency
		spec string
	}{
		{"defaults", config.DigestConfig{StartOfWeek: 1}, scheduler.Frequency{Period: scheduler.Weekly, Hour: 18, Day: time.Monday}, "@hourly"},
		{"daily", config.DigestConfig{Period: "daily", Hour: &hour, Trigger: "*/15 * * * *"}, scheduler.Frequency{Period: scheduler.Daily, Hour: 7, Day: time.Sunday}, "*/15 * * * *"},
		{"bad day falls back", config.DigestConfig{Period: "weekly", Day: &day, StartOfWeek: 3}, scheduler.Frequency{Period: scheduler.Weekly, Hour: 18, Day: time.Wednesday}, "@hourly"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, loc, spec, err := mapSchedule(tc.in)
			if err != nil {
				t.Fatalf("mapSchedule: %v", err)
			}
			if f != tc.want || spec != tc.spec || loc == nil {
				t.Fatalf("got %+v %q, want %+v %q", f, spec, tc.want, tc.spec)
			}
		})
	}
	if _, _, _, err := mapSchedule(config.DigestConfig{Timezone: "Nowhere/Land"}); err == nil {
		t.Fatal("expected timezone error")
	}
}

func TestMapDispatchDefaults(t *testing.T) {
	cfg := &config.Config{Mail: config.MailConfig{From: " digest@x.com ", FromName: "Blog", RetryMax: 2}}
	s, err := mapDispatch(cfg)
	if err != nil {
		t.Fatalf("mapDispatch: %v", err)
	}
	o := s.Options
	if o.From.Email != "digest@x.com" || o.RetryBase != 500*time.Millisecond || o.RetryMaxDelay != 10*time.Second || o.RetryMax != 2 {
		t.Fatalf("options = %+v", o)
	}
}

func TestLoadTranslatorFromDirectory(t *testing.T) {
	dir := t.TempDir()
	cat := "language: de\nmessages:\n  \"Today on %s\": \"Heute auf %s\"\n"
	if err := os.WriteFile(filepath.Join(dir, "de.yaml"), []byte(cat), 0o600); err != nil {
		t.Fatal(err)
	}
	tr, err := loadTranslator(config.DigestConfig{Language: "de", LocalePath: dir})
	if err != nil {
		t.Fatalf("loadTranslator: %v", err)
	}
	if got := tr.T("Today on %s", "Blog"); got != "Heute auf Blog" {
		t.Fatalf("T() = %q", got)
	}
	// No catalog for fr: untranslated, not an error.
	if _, err := loadTranslator(config.DigestConfig{Language: "fr", LocalePath: dir}); err != nil {
		t.Fatalf("missing catalog: %v", err)
	}
}

func TestEnqueueAndForcedRun(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	if _, err := a.Acceptor().Accept(ctx, intake.Payload{Recipient: "alice@x.com", Type: "comment_notification", Subject: "42"}); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := a.Acceptor().Accept(ctx, intake.Payload{Recipient: "alice@x.com", Type: "nope", Subject: "1"}); err == nil {
		t.Fatal("unknown type accepted")
	}

	// Thursday: not due without force.
	thu := time.Date(2024, 3, 7, 18, 0, 0, 0, time.UTC)
	rep, err := a.RunOnce(ctx, thu, false)
	if err != nil || rep.Due {
		t.Fatalf("unforced run: %+v %v", rep, err)
	}

	rep, err = a.RunOnce(ctx, thu, true)
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if rep.Sent() != 1 || !rep.Cleared {
		t.Fatalf("report = %+v", rep)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "outbox", "*.eml"))
	if len(files) != 1 {
		t.Fatalf("outbox has %d messages", len(files))
	}
	raw, _ := os.ReadFile(files[0])
	if !strings.Contains(string(raw), "Past Week on Example Blog") {
		t.Fatalf("subject missing from message:\n%s", raw)
	}
	snap, _ := a.Store().GetAll(ctx)
	if !snap.Empty() {
		t.Fatal("queue not empty after dispatch")
	}
}

func TestRefreshSitePicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	updated := strings.Replace(siteYAML, "Example Blog", "Renamed Blog", 1)
	sitePath := filepath.Join(dir, "site.yaml")
	if err := os.WriteFile(sitePath, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(sitePath, future, future); err != nil {
		t.Fatal(err)
	}
	a.refreshSite()
	if got := a.site.Info().Name; got != "Renamed Blog" {
		t.Fatalf("site name = %q", got)
	}

	// A broken file keeps the previous data.
	if err := os.WriteFile(sitePath, []byte("site: ["), 0o600); err != nil {
		t.Fatal(err)
	}
	later := future.Add(time.Minute)
	_ = os.Chtimes(sitePath, later, later)
	a.refreshSite()
	if got := a.site.Info().Name; got != "Renamed Blog" {
		t.Fatalf("site name after broken reload = %q", got)
	}
}

func TestValidateRejectsBadTrigger(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	cfg := *a.Config()
	cfg.Digest.Trigger = "every tuesday-ish"
	if err := a.validate(context.Background(), &cfg); err == nil {
		t.Fatal("bad trigger accepted")
	}
	cfg.Digest.Trigger = "0 * * * *"
	if err := a.validate(context.Background(), &cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTIFY_SOCKET", "")
	a, err := New(writeConfig(t, dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.trigger.Next().IsZero() {
		t.Fatal("trigger not scheduled")
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}
