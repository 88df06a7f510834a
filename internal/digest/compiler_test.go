package digest

import (
	"context"
	"strings"
	"testing"
	"time"

	"sitedigest/internal/event"
	"sitedigest/internal/i18n"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
	logx "sitedigest/pkg/logx"
)

var testNow = time.Date(2024, 3, 8, 18, 0, 0, 0, time.UTC)

func testSite(trashDays int) *site.Static {
	return site.NewStatic(site.File{
		Site: site.Info{Name: "Example Blog", HomeURL: "https://blog.example.com", TrashDays: trashDays},
		Users: []site.User{
			{ID: 1, Login: "admin", Email: "admin@example.com", DisplayName: "Admin", Caps: []string{site.CapEditComments}},
			{ID: 2, Login: "alice", Email: "alice@x.com", DisplayName: "Alice"},
			{ID: 3, Login: "bob", Email: "bob@example.com", DisplayName: "Bob <b>"},
		},
		Posts: []site.Post{
			{ID: 10, Title: "Hello World", Permalink: "https://blog.example.com/hello-world/"},
		},
		Comments: []site.Comment{
			{ID: 42, PostID: 10, Author: "Carol", AuthorEmail: "carol@example.com", Content: "Nice post!"},
			{ID: 43, PostID: 10, Author: "Dave", AuthorEmail: "dave@example.com", AuthorURL: "https://dave.example.com", Content: "First\n\nSecond"},
			{ID: 44, PostID: 10, Author: "<script>x</script>", AuthorEmail: "evil@example.com", Content: "<script>alert(1)</script>hi"},
			{ID: 45, PostID: 10, Kind: site.KindTrackback, Author: "Other Blog", AuthorURL: "https://other.example.com", Content: "Linked you"},
			{ID: 46, PostID: 10, Kind: site.KindPingback, Author: "Ping Blog", AuthorURL: "https://ping.example.com", Content: "Pinged"},
		},
	})
}

func newTestCompiler(dir site.Directory) *Compiler {
	return NewCompiler(NewRegistry(), dir, i18n.English(), logx.Nop())
}

func ev(typ, subject string) storage.Event {
	return storage.Event{Recipient: "alice@x.com", Type: typ, Subject: subject, OccurredAt: testNow.Add(-3 * time.Hour)}
}

func compile(t *testing.T, c *Compiler, recipient string, events ...storage.Event) Result {
	t.Helper()
	res, err := c.Compile(context.Background(), recipient, events, testNow)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return res
}

func TestCompileEmpty(t *testing.T) {
	res := compile(t, newTestCompiler(testSite(30)), "alice@x.com")
	if !res.Empty() || res.Body != "" {
		t.Fatalf("expected empty result, got %q", res.Body)
	}
}

func TestCompileSectionOrderIgnoresQueueOrder(t *testing.T) {
	res := compile(t, newTestCompiler(testSite(30)), "alice@x.com",
		ev(event.TypeNewUser, "3"),
		ev(event.TypeCommentNotification, "42"),
	)
	body := string(res.Body)
	comments := strings.Index(body, "<p><b>New Comments</b></p>")
	users := strings.Index(body, "<p><b>New User Signups</b></p>")
	if comments < 0 || users < 0 {
		t.Fatalf("missing sections in %s", body)
	}
	if comments > users {
		t.Fatalf("New Comments should precede New User Signups:\n%s", body)
	}
	if len(res.Sections) != 2 || res.Sections[0].Section != event.CommentNotification || res.Sections[1].Section != event.NewUserSignup {
		t.Fatalf("Sections = %+v", res.Sections)
	}
}

func TestCompileModerationPlurals(t *testing.T) {
	c := newTestCompiler(testSite(30))

	one := string(compile(t, c, "alice@x.com", ev(event.TypeCommentModeration, "42")).Body)
	if !strings.Contains(one, "There is 1 new comment waiting for approval.") {
		t.Fatalf("singular wording missing:\n%s", one)
	}

	two := string(compile(t, c, "alice@x.com", ev(event.TypeCommentModeration, "42"), ev(event.TypeCommentModeration, "43")).Body)
	if !strings.Contains(two, "There are 2 new comments waiting for approval.") {
		t.Fatalf("plural wording missing:\n%s", two)
	}
	if !strings.Contains(two, `Please visit the <a href="https://blog.example.com/wp-admin/edit-comments.php?comment_status=moderated">moderation panel</a>.<br />`) {
		t.Fatalf("moderation panel link missing:\n%s", two)
	}
}

func TestCompileCommentCountUsesGrouping(t *testing.T) {
	c := newTestCompiler(testSite(30))
	events := make([]storage.Event, 1200)
	for i := range events {
		events[i] = ev(event.TypeCommentNotification, "42")
	}
	body := string(compile(t, c, "alice@x.com", events...).Body)
	if !strings.Contains(body, "There were 1,200 new comments.") {
		t.Fatalf("grouped count missing: %.300s", body)
	}
}

func TestCompileDropsDeletedReferences(t *testing.T) {
	c := newTestCompiler(testSite(30))
	res := compile(t, c, "alice@x.com", ev(event.TypeCommentNotification, "999"))
	if !res.Empty() {
		t.Fatalf("expected empty body, got %s", res.Body)
	}
	if res.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", res.Dropped)
	}

	res = compile(t, c, "alice@x.com", ev(event.TypeNewUser, "999"), ev(event.TypePasswordChange, "not-a-number"))
	if !res.Empty() || res.Dropped != 2 {
		t.Fatalf("missing users: empty=%v dropped=%d", res.Empty(), res.Dropped)
	}
}

func TestCompileSkipsUnknownTypes(t *testing.T) {
	res := compile(t, newTestCompiler(testSite(30)), "alice@x.com", ev("plugin_event", "1"), ev(event.TypeNewUser, "2"))
	if res.Skipped != 1 {
		t.Fatalf("Skipped = %d, want 1", res.Skipped)
	}
	if res.Empty() {
		t.Fatal("known event should still be rendered")
	}
}

func TestCompileExternalTypeLandsInOthers(t *testing.T) {
	c := newTestCompiler(testSite(30))
	err := c.reg.Register("backup_done", func(rc *event.RenderContext, e storage.Event) htmlx.H {
		return htmlx.P(htmlx.Sprintf("Backup %s finished.", e.Subject))
	}, event.Other)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	body := string(compile(t, c, "alice@x.com", ev("backup_done", "nightly"), ev(event.TypeCoreUpdateSuccess, "6.4.2")).Body)
	others := strings.Index(body, "<p><b>Others</b></p><p>Backup nightly finished.</p>")
	core := strings.Index(body, "<p><b>Core Updates</b></p>")
	if others < 0 || core < 0 || core > others {
		t.Fatalf("unexpected layout:\n%s", body)
	}
}

func TestCompileAliceEndToEnd(t *testing.T) {
	res := compile(t, newTestCompiler(testSite(30)), "alice@x.com",
		ev(event.TypeCommentNotification, "42"),
		ev(event.TypeCommentModeration, "43"),
	)
	body := string(res.Body)

	if !strings.HasPrefix(body, "<p>Hi Alice</p><p>See what&#39;s happening on your site:</p>") &&
		!strings.HasPrefix(body, "<p>Hi Alice</p><p>See what's happening on your site:</p>") {
		t.Fatalf("unexpected salutation:\n%s", body)
	}
	if !strings.HasSuffix(body, "<p>That's it, have a nice day!</p>") {
		t.Fatalf("unexpected valediction:\n%s", body)
	}
	nc := strings.Index(body, "New Comments")
	pc := strings.Index(body, "Pending Comments")
	if nc < 0 || pc < 0 || nc > pc {
		t.Fatalf("expected New Comments before Pending Comments:\n%s", body)
	}
	if len(res.Sections) != 2 || res.Sections[0].Entries != 1 || res.Sections[1].Entries != 1 {
		t.Fatalf("Sections = %+v", res.Sections)
	}

	if n := strings.Count(body, ">Permalink</a>"); n != 2 {
		t.Fatalf("Permalink links = %d, want 2", n)
	}
	for _, action := range []string{"Approve", "Trash", "Delete", "Spam", "comment.php?action="} {
		if strings.Contains(body, action) {
			t.Fatalf("viewer without edit rights sees %q:\n%s", action, body)
		}
	}
	if !strings.Contains(body, `<a href="https://blog.example.com/hello-world/#comment-42">Permalink</a>`) {
		t.Fatalf("comment permalink missing:\n%s", body)
	}
}

func TestCommentActionsForEditors(t *testing.T) {
	tests := []struct {
		name      string
		trashDays int
		typ       string
		want      []string
		absent    []string
	}{
		{
			name: "moderation with trash", trashDays: 30, typ: event.TypeCommentModeration,
			want: []string{">Permalink</a> | <a", "action=approve&amp;c=42\">Approve</a>", "action=trash&amp;c=42\">Trash</a>", "action=spam&amp;c=42\">Spam</a>"},
			absent: []string{"Delete"},
		},
		{
			name: "notification without trash", trashDays: 0, typ: event.TypeCommentNotification,
			want:   []string{"action=delete&amp;c=42\">Delete</a>", "Spam</a>"},
			absent: []string{"Approve", "Trash"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(testSite(tt.trashDays))
			body := string(compile(t, c, "admin@example.com", ev(tt.typ, "42")).Body)
			if !strings.Contains(body, "<p>Hi Admin</p>") {
				t.Fatalf("editor not recognized:\n%s", body)
			}
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Fatalf("missing %q in:\n%s", w, body)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(body, a) {
					t.Fatalf("unexpected %q in:\n%s", a, body)
				}
			}
		})
	}
}

func TestCommentKinds(t *testing.T) {
	c := newTestCompiler(testSite(30))
	body := string(compile(t, c, "nobody@example.com",
		ev(event.TypeCommentNotification, "43"),
		ev(event.TypeCommentNotification, "45"),
		ev(event.TypeCommentNotification, "46"),
	).Body)

	for _, want := range []string{
		"<p>Hi there</p>",
		`Comment on <a href="https://blog.example.com/hello-world/">Hello World</a> 3 hours ago:<br />`,
		`Author: <a href="https://dave.example.com">Dave</a><br />`,
		`Email: <a href="mailto:dave@example.com">dave@example.com</a><br />`,
		"<p>First</p>",
		"<p>Second</p>",
		`Trackback on <a href="https://blog.example.com/hello-world/">Hello World</a> 3 hours ago:<br />`,
		`Website: <a href="https://other.example.com">Other Blog</a><br />`,
		"Excerpt: <br />",
		`Pingback on <a href="https://blog.example.com/hello-world/">Hello World</a>`,
		"There were 3 new comments.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestUserSuppliedTextIsEscaped(t *testing.T) {
	c := newTestCompiler(testSite(30))
	body := string(compile(t, c, "alice@x.com",
		ev(event.TypeCommentNotification, "44"),
		ev(event.TypePasswordChange, "3"),
	).Body)
	if strings.Contains(body, "<script>") {
		t.Fatalf("unescaped script tag:\n%s", body)
	}
	if !strings.Contains(body, "Author: &lt;script&gt;x&lt;/script&gt;") {
		t.Fatalf("author not escaped:\n%s", body)
	}
	if !strings.Contains(body, "<li>Bob &lt;b&gt; (ID: 3) 3 hours ago</li>") {
		t.Fatalf("password change entry wrong:\n%s", body)
	}
	if !strings.Contains(body, "The following user lost and changed their password:") {
		t.Fatalf("singular password summary missing:\n%s", body)
	}
}

func TestCoreUpdates(t *testing.T) {
	c := newTestCompiler(testSite(30))
	body := string(compile(t, c, "alice@x.com",
		ev(event.TypeCoreUpdateFail, "6.5"),
		ev(event.TypeCoreUpdateSuccess, "6.4.2-RC1"),
		ev(event.TypeCoreUpdateManual, "6.5.1"),
	).Body)

	for _, want := range []string{
		"<p><b>Core Updates</b></p>",
		`Please update your site at <a href="https://blog.example.com">blog.example.com</a> to WordPress 6.5. Updating is easy`,
		`<p><a href="https://blog.example.com/wp-admin/update-core.php">Update now</a></p>`,
		`has been updated automatically to WordPress 6.4.2-RC1 3 hours ago.`,
		`For more on version 6.4.2, see the <a href="https://blog.example.com/wp-admin/about.php">About WordPress</a> screen.`,
		"to WordPress 6.5.1.",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	// Core entries keep queue order within the section.
	if strings.Index(body, "WordPress 6.5.") > strings.Index(body, "6.4.2-RC1") {
		t.Fatalf("core entries reordered:\n%s", body)
	}
}

func TestCompileHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestCompiler(testSite(30)).Compile(ctx, "alice@x.com", []storage.Event{ev(event.TypeNewUser, "2")}, testNow)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestCompileTranslated(t *testing.T) {
	tr, err := i18n.New("de")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	err = tr.Add(i18n.LocaleFile{
		Messages: map[string]string{
			"Pending Comments": "Ausstehende Kommentare",
			"Hi %s":            "Hallo %s",
		},
		Plurals: map[string]map[string]string{
			"There is %d new comment waiting for approval.": {
				"one":   "Es wartet %d neuer Kommentar auf Freigabe.",
				"other": "Es warten %d neue Kommentare auf Freigabe.",
			},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	c := NewCompiler(NewRegistry(), testSite(30), tr, logx.Nop())
	body := string(compile(t, c, "alice@x.com", ev(event.TypeCommentModeration, "42"), ev(event.TypeCommentModeration, "43")).Body)
	for _, want := range []string{"<p>Hallo Alice</p>", "<b>Ausstehende Kommentare</b>", "Es warten 2 neue Kommentare auf Freigabe."} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
