package digest

import (
	"strconv"

	"sitedigest/internal/event"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
)

// renderUser lists the subject user of a signup or password change. Users
// that no longer exist render nothing.
func renderUser(rc *event.RenderContext, e storage.Event) htmlx.H {
	id, ok := e.SubjectID()
	if !ok {
		return ""
	}
	u, ok := rc.Site.UserByID(id)
	if !ok || u.ID == 0 {
		return ""
	}
	return rc.T.H("<li>%s (ID: %s) %s</li>", displayName(u), strconv.FormatInt(u.ID, 10), ago(rc, e.OccurredAt))
}
