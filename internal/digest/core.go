package digest

import (
	"strings"

	"sitedigest/internal/event"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
)

// renderCoreSuccess reports an automatic update to the version in Subject.
func renderCoreSuccess(rc *event.RenderContext, e storage.Event) htmlx.H {
	version := strings.TrimSpace(e.Subject)
	if version == "" {
		return ""
	}
	info := rc.Site.Info()
	home := info.HomeURL
	about, _, _ := strings.Cut(version, "-")

	return htmlx.P(rc.T.H(`Your site at <a href="%s">%s</a> has been updated automatically to WordPress %s %s.`,
		home, htmlx.StripScheme(home), version, ago(rc, e.OccurredAt))) +
		htmlx.P(rc.T.H(`For more on version %s, see the <a href="%s">About WordPress</a> screen.`,
			about, site.AdminURL(info, "about.php")))
}

// renderCoreFail asks for a manual update. It serves both failed and
// manual-required updates.
func renderCoreFail(rc *event.RenderContext, e storage.Event) htmlx.H {
	version := strings.TrimSpace(e.Subject)
	if version == "" {
		return ""
	}
	info := rc.Site.Info()
	home := info.HomeURL

	return htmlx.P(rc.T.H(`Please update your site at <a href="%s">%s</a> to WordPress %s. Updating is easy and only takes a few moments.`,
		home, htmlx.StripScheme(home), version)) +
		htmlx.P(htmlx.Link(rc.T.T("Update now"), site.NetworkAdminURL(info, "update-core.php")))
}
