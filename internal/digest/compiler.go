package digest

import (
	"context"
	"sync/atomic"
	"time"

	"sitedigest/internal/event"
	"sitedigest/internal/i18n"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
	logx "sitedigest/pkg/logx"
)

// Result is one recipient's compiled digest. An empty Body means there is
// nothing to send.
type Result struct {
	Body     htmlx.H
	Sections []SectionCount
	// Dropped counts events whose renderer produced nothing.
	Dropped int
	// Skipped counts events with no registered renderer.
	Skipped int
}

type SectionCount struct {
	Section event.Section
	Entries int
}

// Empty reports whether the digest should not be sent.
func (r Result) Empty() bool { return r.Body.IsEmpty() }

// Entries is the number of rendered entries across all sections.
func (r Result) Entries() int {
	n := 0
	for _, s := range r.Sections {
		n += s.Entries
	}
	return n
}

// Compiler turns a recipient's queued events into a digest body.
type Compiler struct {
	reg *event.Registry
	dir site.Directory
	tr  atomic.Pointer[i18n.Translator]
	log logx.Logger
}

func NewCompiler(reg *event.Registry, dir site.Directory, tr *i18n.Translator, log logx.Logger) *Compiler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if tr == nil {
		tr = i18n.English()
	}
	c := &Compiler{reg: reg, dir: dir, log: log}
	c.tr.Store(tr)
	return c
}

// SetTranslator switches the language of subsequent compilations.
func (c *Compiler) SetTranslator(tr *i18n.Translator) {
	if tr != nil {
		c.tr.Store(tr)
	}
}

func (c *Compiler) Translator() *i18n.Translator { return c.tr.Load() }

// Compile renders events for recipient. Events are grouped into sections
// listed in event.Order; within a section they keep queue order. Unknown
// event types are skipped and entries that render empty are dropped, so a
// queue holding only stale references compiles to an empty Result.
//
// The returned error is non-nil only when ctx is cancelled.
func (c *Compiler) Compile(ctx context.Context, recipient string, events []storage.Event, now time.Time) (Result, error) {
	var res Result
	if len(events) == 0 {
		return res, nil
	}

	rc := c.renderContext(recipient, now)
	grouped := make(map[event.Section][]htmlx.H, len(event.Order))
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		b, ok := c.reg.RendererFor(e.Type)
		if !ok {
			res.Skipped++
			c.log.Debug("no renderer for event type", logx.String("type", e.Type), logx.String("event_id", e.ID))
			continue
		}
		entry := b.Renderer(rc, e)
		if entry.IsEmpty() {
			res.Dropped++
			continue
		}
		s := b.Section.Normalize()
		grouped[s] = append(grouped[s], entry)
	}

	var body htmlx.H
	for _, s := range event.Order {
		entries := grouped[s]
		if len(entries) == 0 {
			continue
		}
		body += blockFor(s).render(rc, entries)
		res.Sections = append(res.Sections, SectionCount{Section: s, Entries: len(entries)})
	}
	if body.IsEmpty() {
		return res, nil
	}

	res.Body = salutation(rc) + body + htmlx.P(rc.T.H("That's it, have a nice day!"))
	return res, nil
}

func (c *Compiler) renderContext(recipient string, now time.Time) *event.RenderContext {
	rc := &event.RenderContext{
		Recipient: recipient,
		Now:       now,
		Site:      c.dir,
		T:         c.tr.Load(),
	}
	if u, ok := c.dir.UserByEmail(recipient); ok {
		rc.Viewer, rc.HasViewer = u, true
	}
	return rc
}

func salutation(rc *event.RenderContext) htmlx.H {
	hi := rc.T.H("Hi there")
	if rc.HasViewer {
		hi = rc.T.H("Hi %s", displayName(rc.Viewer))
	}
	return htmlx.P(hi) + htmlx.P(rc.T.H("See what's happening on your site:"))
}

func displayName(u site.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Login
}
