package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"sitedigest/internal/digest"
	"sitedigest/internal/event"
	"sitedigest/internal/eventbus"
	"sitedigest/internal/i18n"
	"sitedigest/internal/mail"
	"sitedigest/internal/scheduler"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	logx "sitedigest/pkg/logx"
)

// Friday 2024-03-08 18:00 UTC.
var dueNow = time.Date(2024, 3, 8, 18, 5, 0, 0, time.UTC)

var weeklyFriday = scheduler.Frequency{Period: scheduler.Weekly, Hour: 18, Day: time.Friday}

type fakeTransport struct {
	mu   sync.Mutex
	sent []mail.Message
	fail func(m mail.Message, attempt int) error
	hits map[string]int
}

func (f *fakeTransport) Send(ctx context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hits == nil {
		f.hits = map[string]int{}
	}
	f.hits[m.To]++
	if f.fail != nil {
		if err := f.fail(m, f.hits[m.To]); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, m)
	return nil
}

type countingStore struct {
	storage.Store
	clears int
}

func (s *countingStore) ClearAll(ctx context.Context, snap storage.Snapshot) error {
	s.clears++
	return s.Store.ClearAll(ctx, snap)
}

func testDir() *site.Static {
	return site.NewStatic(site.File{
		Site:  site.Info{Name: "Example Blog", HomeURL: "https://blog.example.com", TrashDays: 30},
		Users: []site.User{{ID: 2, Email: "alice@x.com", DisplayName: "Alice"}, {ID: 5, Email: "bob@example.com", DisplayName: "Bob"}},
		Posts: []site.Post{{ID: 10, Title: "Hello", Permalink: "https://blog.example.com/hello/"}},
		Comments: []site.Comment{
			{ID: 42, PostID: 10, Author: "Carol", AuthorEmail: "carol@example.com", Content: "Nice"},
			{ID: 43, PostID: 10, Author: "Dave", AuthorEmail: "dave@example.com", Content: "Spam?"},
		},
	})
}

type fixture struct {
	store     *countingStore
	transport *fakeTransport
	bus       eventbus.Bus
	driver    *Driver
}

func newFixture(t *testing.T, f scheduler.Frequency, o Options) *fixture {
	t.Helper()
	dir := testDir()
	fx := &fixture{
		store:     &countingStore{Store: storage.NewMemory()},
		transport: &fakeTransport{},
		bus:       eventbus.New(),
	}
	if o.From.Email == "" {
		o.From = mail.Address{Name: "Example Blog", Email: "digest@blog.example.com"}
	}
	fx.driver = New(Deps{
		Store:     fx.store,
		Compiler:  digest.NewCompiler(digest.NewRegistry(), dir, i18n.English(), logx.Nop()),
		Transport: fx.transport,
		Site:      dir,
		Bus:       fx.bus,
		Log:       logx.Nop(),
	}, Settings{Frequency: f, Location: time.UTC, Options: o})
	return fx
}

func (fx *fixture) add(t *testing.T, recipient, typ, subject string) {
	t.Helper()
	if _, err := fx.store.Add(context.Background(), storage.Event{Recipient: recipient, Type: typ, Subject: subject, OccurredAt: dueNow.Add(-time.Hour)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func (fx *fixture) queueLen(t *testing.T) int {
	t.Helper()
	snap, err := fx.store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	return snap.Len()
}

func TestRunNotDue(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

	rep, err := fx.driver.Run(context.Background(), dueNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Due || len(fx.transport.sent) != 0 || fx.store.clears != 0 || fx.queueLen(t) != 1 {
		t.Fatalf("not-due run did work: %+v", rep)
	}

	// Right hour, wrong weekday.
	rep, _ = fx.driver.Run(context.Background(), dueNow.AddDate(0, 0, 1))
	if rep.Due {
		t.Fatal("weekly digest due on the wrong day")
	}
}

func TestRunEmptyQueueDoesNotClear(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Due || rep.Cleared || fx.store.clears != 0 {
		t.Fatalf("empty queue: report=%+v clears=%d", rep, fx.store.clears)
	}
}

func TestRunAliceEndToEnd(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	fx.add(t, "alice@x.com", event.TypeCommentModeration, "43")

	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Sent() != 1 || !rep.Cleared || fx.store.clears != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(fx.transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fx.transport.sent))
	}
	m := fx.transport.sent[0]
	if m.To != "alice@x.com" || m.Subject != "Past Week on Example Blog" {
		t.Fatalf("message header: to=%q subject=%q", m.To, m.Subject)
	}
	nc, pc := strings.Index(m.HTML, "New Comments"), strings.Index(m.HTML, "Pending Comments")
	if nc < 0 || pc < 0 || nc > pc {
		t.Fatalf("sections out of order:\n%s", m.HTML)
	}
	if strings.Contains(m.HTML, "Approve") || strings.Contains(m.HTML, "Spam") || strings.Count(m.HTML, "Permalink") != 2 {
		t.Fatalf("unexpected action links:\n%s", m.HTML)
	}
	if !strings.Contains(m.Text, "Hi Alice") || strings.Contains(m.Text, "<p>") {
		t.Fatalf("text alternative = %q", m.Text)
	}
	if fx.queueLen(t) != 0 {
		t.Fatal("queue not empty after dispatch")
	}
}

func TestRunContinuesAfterSendFailure(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.transport.fail = func(m mail.Message, _ int) error {
		if m.To == "bob@example.com" {
			return errors.New("550 mailbox unavailable")
		}
		return nil
	}
	events, unsub := fx.bus.Subscribe(16)
	defer unsub()

	fx.add(t, "bob@example.com", event.TypeCommentNotification, "42")
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "43")

	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Results) != 2 || rep.Results[0].Recipient != "bob@example.com" || rep.Results[0].Status != StatusFailed {
		t.Fatalf("results = %+v", rep.Results)
	}
	if rep.Results[1].Status != StatusSent || rep.Failed() != 1 || rep.Sent() != 1 {
		t.Fatalf("results = %+v", rep.Results)
	}
	if !rep.Cleared || fx.queueLen(t) != 0 {
		t.Fatal("queue must be cleared after all sends")
	}

	var failed bool
	for len(events) > 0 {
		e := <-events
		if e.Type == eventbus.TypeFailed {
			failed = e.Data.(eventbus.Delivery).Recipient == "bob@example.com"
		}
	}
	if !failed {
		t.Fatal("digest.failed not published")
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond})
	fx.transport.fail = func(_ mail.Message, attempt int) error {
		if attempt < 3 {
			return errors.New("421 try again later")
		}
		return nil
	}
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := rep.Results[0]; r.Status != StatusSent || r.Attempts != 3 {
		t.Fatalf("result = %+v", r)
	}
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{RetryMax: 5, RetryBase: time.Millisecond})
	fx.transport.fail = func(mail.Message, int) error { return mail.ErrNoRecipient }
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

	rep, _ := fx.driver.Run(context.Background(), dueNow)
	if r := rep.Results[0]; r.Status != StatusFailed || r.Attempts != 1 || !errors.Is(r.Err, mail.ErrNoRecipient) {
		t.Fatalf("result = %+v", r)
	}
}

func TestRunSMTPReplyCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{"mailbox unavailable", fmt.Errorf("rcpt to: %w", &textproto.Error{Code: 550, Msg: "no such user"}), 1},
		{"auth rejected", fmt.Errorf("auth: %w", &textproto.Error{Code: 535, Msg: "bad credentials"}), 1},
		{"greylisted", fmt.Errorf("rcpt to: %w", &textproto.Error{Code: 451, Msg: "try later"}), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, weeklyFriday, Options{RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond})
			fx.transport.fail = func(mail.Message, int) error { return tt.err }
			fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

			rep, _ := fx.driver.Run(context.Background(), dueNow)
			if r := rep.Results[0]; r.Status != StatusFailed || r.Attempts != tt.attempts {
				t.Fatalf("result = %+v, want %d attempts", r, tt.attempts)
			}
			if fx.transport.hits["alice@x.com"] != tt.attempts {
				t.Fatalf("transport hit %d times, want %d", fx.transport.hits["alice@x.com"], tt.attempts)
			}
		})
	}
}

func TestRunEmptyDigestIsNotSent(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "999")
	fx.add(t, "alice@x.com", "unknown_type", "1")

	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := rep.Results[0]
	if r.Status != StatusEmpty || r.Dropped != 1 || r.Skipped != 1 {
		t.Fatalf("result = %+v", r)
	}
	if len(fx.transport.sent) != 0 {
		t.Fatal("empty digest was sent")
	}
	if !rep.Cleared {
		t.Fatal("queue should still be cleared")
	}
}

func TestRunForceBypassesSchedule(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

	rep, err := fx.driver.Run(context.Background(), dueNow.Add(3*time.Hour), WithForce())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Due || !rep.Forced || rep.Sent() != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestEventsQueuedDuringRunSurvive(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	fx.transport.fail = func(mail.Message, int) error {
		_, err := fx.store.Store.Add(context.Background(), storage.Event{Recipient: "alice@x.com", Type: event.TypeCommentNotification, Subject: "43"})
		return err
	}

	if _, err := fx.driver.Run(context.Background(), dueNow); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap, _ := fx.store.GetAll(context.Background())
	if evs := snap.Events["alice@x.com"]; len(evs) != 1 || evs[0].Subject != "43" {
		t.Fatalf("late event lost: %+v", snap)
	}
}

func TestSubjectFiltersAndHooks(t *testing.T) {
	fx := newFixture(t, scheduler.Frequency{Period: scheduler.Daily, Hour: 18}, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")

	var hooked int
	fx.driver.AddBeforeHook(func(_ context.Context, snap storage.Snapshot, f scheduler.Frequency) {
		hooked = snap.Len()
		if f.Period != scheduler.Daily {
			t.Errorf("hook got period %q", f.Period)
		}
	})
	fx.driver.AddSubjectFilter(func(s string, _ scheduler.Frequency) string { return "[digest] " + s })

	rep, err := fx.driver.Run(context.Background(), dueNow)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Subject != "[digest] Today on Example Blog" || fx.transport.sent[0].Subject != rep.Subject {
		t.Fatalf("subject = %q", rep.Subject)
	}
	if hooked != 1 {
		t.Fatalf("hook saw %d events, want 1", hooked)
	}
}

func TestRunSkipsWhenBusy(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.driver.run.Lock()
	rep, err := fx.driver.Run(context.Background(), dueNow)
	fx.driver.run.Unlock()
	if err != nil || !rep.Busy {
		t.Fatalf("report = %+v, err = %v", rep, err)
	}
}

func TestRunAbortKeepsQueue(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fx.driver.Run(ctx, dueNow); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if fx.store.clears != 0 || fx.queueLen(t) != 1 {
		t.Fatal("aborted run must not clear the queue")
	}
}

func TestRunCancelledDuringSendKeepsQueue(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{RetryMax: 2, RetryBase: time.Millisecond})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.transport.fail = func(mail.Message, int) error {
		cancel()
		return ctx.Err()
	}

	rep, err := fx.driver.Run(ctx, dueNow)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep.Cleared || fx.store.clears != 0 || fx.queueLen(t) != 1 {
		t.Fatalf("cancelled send cleared the queue: cleared=%v clears=%d len=%d", rep.Cleared, fx.store.clears, fx.queueLen(t))
	}
}

func TestRunCancelledAfterLastSendKeepsQueue(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.transport.fail = func(mail.Message, int) error {
		cancel()
		return nil
	}

	if _, err := fx.driver.Run(ctx, dueNow); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fx.store.clears != 0 || fx.queueLen(t) != 1 {
		t.Fatal("queue cleared after cancellation")
	}
}

func TestPreviewDoesNotSend(t *testing.T) {
	fx := newFixture(t, weeklyFriday, Options{})
	fx.add(t, "alice@x.com", event.TypeCommentNotification, "42")
	fx.add(t, "bob@example.com", event.TypeCommentNotification, "43")

	previews, err := fx.driver.Preview(context.Background(), dueNow, "bob@example.com")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(previews) != 1 || previews[0].Message.To != "bob@example.com" || previews[0].Result.Empty() {
		t.Fatalf("previews = %+v", previews)
	}
	if len(fx.transport.sent) != 0 || fx.queueLen(t) != 2 {
		t.Fatal("preview had side effects")
	}
}

func TestRetryDelayBounds(t *testing.T) {
	o := Options{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(o, attempt)
		if d < 70*time.Millisecond || d > 1300*time.Millisecond {
			t.Fatalf("retryDelay(%d) = %v out of bounds", attempt, d)
		}
	}
}
