package site

import (
	"fmt"
	"strings"
)

// AdminURL resolves path against the admin base (home_url + "/wp-admin/"
// when admin_url is unset).
func AdminURL(info Info, path string) string {
	base := strings.TrimSpace(info.AdminURL)
	if base == "" {
		base = strings.TrimRight(info.HomeURL, "/") + "/wp-admin/"
	}
	return join(base, path)
}

// NetworkAdminURL falls back to AdminURL on single-site installs.
func NetworkAdminURL(info Info, path string) string {
	base := strings.TrimSpace(info.NetworkAdminURL)
	if base == "" {
		return AdminURL(info, path)
	}
	return join(base, path)
}

// Permalink returns the post's permalink, or a ?p= link when none is stored.
func Permalink(d Directory, postID int64) string {
	if p, ok := d.Post(postID); ok && strings.TrimSpace(p.Permalink) != "" {
		return p.Permalink
	}
	return fmt.Sprintf("%s/?p=%d", strings.TrimRight(d.Info().HomeURL, "/"), postID)
}

// PostTitle returns the post title, or an empty string for unknown posts.
func PostTitle(d Directory, postID int64) string {
	if p, ok := d.Post(postID); ok {
		return p.Title
	}
	return ""
}

// CommentLink points at the comment anchor on its post.
func CommentLink(d Directory, c Comment) string {
	return fmt.Sprintf("%s#comment-%d", Permalink(d, c.PostID), c.ID)
}

// CommentActionURL is the admin URL performing action on comment id.
func CommentActionURL(info Info, action string, id int64) string {
	return AdminURL(info, fmt.Sprintf("comment.php?action=%s&c=%d", action, id))
}

func join(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
