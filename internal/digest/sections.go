package digest

import (
	"sitedigest/internal/event"
	"sitedigest/internal/i18n"
	"sitedigest/internal/site"
	"sitedigest/pkg/htmlx"
)

// block renders one section of a digest around its entries.
type block struct {
	title   string
	summary func(t *i18n.Translator, n int) htmlx.H
	// list wraps entries in <ul>.
	list   bool
	footer func(rc *event.RenderContext) htmlx.H
}

var blocks = map[event.Section]block{
	event.CoreUpdate: {title: "Core Updates"},
	event.CommentNotification: {
		title: "New Comments",
		summary: func(t *i18n.Translator, n int) htmlx.H {
			return t.NH("There was %d new comment.", "There were %d new comments.", n, n)
		},
	},
	event.CommentModeration: {
		title: "Pending Comments",
		summary: func(t *i18n.Translator, n int) htmlx.H {
			return t.NH("There is %d new comment waiting for approval.", "There are %d new comments waiting for approval.", n, n)
		},
		footer: func(rc *event.RenderContext) htmlx.H {
			panel := site.AdminURL(rc.Site.Info(), "edit-comments.php?comment_status=moderated")
			return rc.T.H(`Please visit the <a href="%s">moderation panel</a>.`, panel) + htmlx.Br
		},
	},
	event.NewUserSignup: {
		title: "New User Signups",
		summary: func(t *i18n.Translator, n int) htmlx.H {
			return t.NH("The following user signed up on your site:", "The following users signed up on your site:", n)
		},
		list: true,
	},
	event.PasswordChange: {
		title: "Password Changes",
		summary: func(t *i18n.Translator, n int) htmlx.H {
			return t.NH("The following user lost and changed their password:", "The following users lost and changed their passwords:", n)
		},
		list: true,
	},
	event.Other: {title: "Others"},
}

func blockFor(s event.Section) block {
	if b, ok := blocks[s]; ok {
		return b
	}
	return blocks[event.Other]
}

func (b block) render(rc *event.RenderContext, entries []htmlx.H) htmlx.H {
	out := htmlx.P("<b>" + rc.T.H(b.title) + "</b>")
	if b.summary != nil {
		out += htmlx.P(b.summary(rc.T, len(entries)))
	}
	if b.list {
		out += htmlx.Ul(entries...)
	} else {
		out += htmlx.Concat(entries...)
	}
	if b.footer != nil {
		out += b.footer(rc)
	}
	return out
}
