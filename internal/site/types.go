package site

import (
	"strings"
	"time"
)

// Comment kinds. An empty kind is an ordinary comment.
const (
	KindComment   = "comment"
	KindTrackback = "trackback"
	KindPingback  = "pingback"
)

// Capabilities a user may hold.
const (
	CapEditComments = "edit_comments"
	CapModerate     = "moderate_comments"
)

type User struct {
	ID          int64    `json:"id" yaml:"id"`
	Login       string   `json:"login" yaml:"login"`
	Email       string   `json:"email" yaml:"email"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Caps        []string `json:"caps,omitempty" yaml:"caps,omitempty"`
}

// Can reports whether the user holds capability c.
func (u User) Can(c string) bool {
	for _, have := range u.Caps {
		if strings.EqualFold(have, c) {
			return true
		}
	}
	return false
}

type Post struct {
	ID        int64  `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Permalink string `json:"permalink" yaml:"permalink"`
	AuthorID  int64  `json:"author_id,omitempty" yaml:"author_id,omitempty"`
}

type Comment struct {
	ID          int64     `json:"id" yaml:"id"`
	PostID      int64     `json:"post_id" yaml:"post_id"`
	Kind        string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Author      string    `json:"author" yaml:"author"`
	AuthorEmail string    `json:"author_email,omitempty" yaml:"author_email,omitempty"`
	AuthorURL   string    `json:"author_url,omitempty" yaml:"author_url,omitempty"`
	Content     string    `json:"content" yaml:"content"`
	Date        time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// IsTrackback and IsPingback classify the comment for rendering.
func (c Comment) IsTrackback() bool { return strings.EqualFold(c.Kind, KindTrackback) }
func (c Comment) IsPingback() bool  { return strings.EqualFold(c.Kind, KindPingback) }

// Info is the static site metadata.
type Info struct {
	Name     string `json:"name" yaml:"name"`
	HomeURL  string `json:"home_url" yaml:"home_url"`
	AdminURL string `json:"admin_url,omitempty" yaml:"admin_url,omitempty"`
	// NetworkAdminURL differs from AdminURL on multisite installs.
	NetworkAdminURL string `json:"network_admin_url,omitempty" yaml:"network_admin_url,omitempty"`
	// TrashDays is how long trashed comments are kept. Zero means comments
	// are deleted immediately, so action links offer "Delete" instead of "Trash".
	TrashDays int `json:"trash_days" yaml:"trash_days"`
}

// Directory is the read-only view of the host site that renderers use.
// All methods are pure lookups; a missing record is reported with ok=false.
type Directory interface {
	Info() Info
	UserByEmail(email string) (User, bool)
	UserByID(id int64) (User, bool)
	Comment(id int64) (Comment, bool)
	Post(id int64) (Post, bool)
	// CanEditComment reports whether u may moderate comment id.
	CanEditComment(u User, id int64) bool
}
