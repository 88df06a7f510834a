package event

import (
	"time"

	"sitedigest/internal/i18n"
	"sitedigest/internal/site"
	"sitedigest/internal/storage"
	"sitedigest/pkg/htmlx"
)

// Built-in event types.
const (
	TypeCommentNotification = "comment_notification"
	TypeCommentModeration   = "comment_moderation"
	TypeNewUser             = "new_user_notification"
	TypePasswordChange      = "password_change_notification"
	TypeCoreUpdateSuccess   = "core_update_success"
	TypeCoreUpdateFail      = "core_update_fail"
	TypeCoreUpdateManual    = "core_update_manual"
)

// Section is the bucket an event is listed under in a digest.
type Section int

const (
	CoreUpdate Section = iota
	CommentNotification
	CommentModeration
	NewUserSignup
	PasswordChange
	Other
)

// Order is the fixed order sections appear in a digest, independent of the
// order events were queued.
var Order = []Section{CoreUpdate, CommentNotification, CommentModeration, NewUserSignup, PasswordChange, Other}

func (s Section) String() string {
	switch s {
	case CoreUpdate:
		return "core_update"
	case CommentNotification:
		return "comment_notification"
	case CommentModeration:
		return "comment_moderation"
	case NewUserSignup:
		return "new_user_signup"
	case PasswordChange:
		return "password_change"
	default:
		return "other"
	}
}

// Normalize maps out-of-range values to Other.
func (s Section) Normalize() Section {
	if s < CoreUpdate || s > Other {
		return Other
	}
	return s
}

// RenderContext carries everything a renderer may read for one recipient's
// digest. It is built once per recipient and never mutated by renderers.
type RenderContext struct {
	Recipient string
	// Viewer is the site user behind Recipient; HasViewer is false for
	// addresses that do not belong to a user.
	Viewer    site.User
	HasViewer bool
	Now       time.Time
	Site      site.Directory
	T         *i18n.Translator
}

// CanEditComment reports whether the viewer has edit rights on comment id.
func (rc *RenderContext) CanEditComment(id int64) bool {
	if !rc.HasViewer {
		return false
	}
	return rc.Site.CanEditComment(rc.Viewer, id)
}

// Renderer turns one queued event into an HTML fragment. An empty result
// means the entry has nothing to show (for example a deleted comment) and
// is dropped.
type Renderer func(rc *RenderContext, e storage.Event) htmlx.H
