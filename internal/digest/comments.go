package digest

import (
	"time"

	"github.com/dustin/go-humanize"

	"sitedigest/internal/event"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
)

// commentRenderer renders a comment event. Moderation entries additionally
// offer an Approve action to viewers who may edit the comment.
func commentRenderer(moderation bool) event.Renderer {
	return func(rc *event.RenderContext, e storage.Event) htmlx.H {
		id, ok := e.SubjectID()
		if !ok {
			return ""
		}
		c, ok := rc.Site.Comment(id)
		if !ok {
			return ""
		}
		return commentBody(rc, c, e.OccurredAt) + htmlx.P(commentActions(rc, c, moderation))
	}
}

func commentBody(rc *event.RenderContext, c site.Comment, at time.Time) htmlx.H {
	t := rc.T
	post := htmlx.Link(site.PostTitle(rc.Site, c.PostID), site.Permalink(rc.Site, c.PostID))
	when := ago(rc, at)
	text := htmlx.Br + htmlx.Autop(c.Content)

	switch {
	case c.IsTrackback():
		return t.H("Trackback on %s %s:", post, when) + htmlx.Br +
			t.H("Website: %s", htmlx.Link(c.Author, c.AuthorURL)) + htmlx.Br +
			t.H("Excerpt: %s", text)
	case c.IsPingback():
		return t.H("Pingback on %s %s:", post, when) + htmlx.Br +
			t.H("Website: %s", htmlx.Link(c.Author, c.AuthorURL)) + htmlx.Br +
			t.H("Excerpt: %s", text)
	}

	author := t.H("Author: %s", c.Author)
	if c.AuthorURL != "" {
		author = t.H("Author: %s", htmlx.Link(c.Author, c.AuthorURL))
	}
	return t.H("Comment on %s %s:", post, when) + htmlx.Br +
		author + htmlx.Br +
		t.H("Email: %s", htmlx.Mailto(c.AuthorEmail)) + htmlx.Br +
		t.H("Comment: %s", text)
}

// commentActions lists the action links for c. Everyone gets the
// permalink; the rest need edit rights on the comment.
func commentActions(rc *event.RenderContext, c site.Comment, moderation bool) htmlx.H {
	t := rc.T
	links := []htmlx.H{htmlx.Link(t.T("Permalink"), site.CommentLink(rc.Site, c))}
	if !rc.CanEditComment(c.ID) {
		return htmlx.JoinH(" | ", links...)
	}

	info := rc.Site.Info()
	action := func(name, label string) htmlx.H {
		return htmlx.Link(t.T(label), site.CommentActionURL(info, name, c.ID))
	}
	if moderation {
		links = append(links, action("approve", "Approve"))
	}
	if info.TrashDays > 0 {
		links = append(links, action("trash", "Trash"))
	} else {
		links = append(links, action("delete", "Delete"))
	}
	links = append(links, action("spam", "Spam"))
	return htmlx.JoinH(" | ", links...)
}

// ago is the time elapsed since at, in words ("3 hours ago").
func ago(rc *event.RenderContext, at time.Time) string {
	if at.IsZero() {
		at = rc.Now
	}
	return humanize.RelTime(at, rc.Now, rc.T.T("ago"), rc.T.T("from now"))
}
