package digest

import "sitedigest/internal/event"

// RegisterDefaults binds the built-in event types.
func RegisterDefaults(reg *event.Registry) {
	bind := func(t string, r event.Renderer, s event.Section) {
		// Only fails for empty types or nil renderers.
		if err := reg.Register(t, r, s); err != nil {
			panic(err)
		}
	}
	bind(event.TypeCommentNotification, commentRenderer(false), event.CommentNotification)
	bind(event.TypeCommentModeration, commentRenderer(true), event.CommentModeration)
	bind(event.TypeNewUser, renderUser, event.NewUserSignup)
	bind(event.TypePasswordChange, renderUser, event.PasswordChange)
	bind(event.TypeCoreUpdateSuccess, renderCoreSuccess, event.CoreUpdate)
	bind(event.TypeCoreUpdateFail, renderCoreFail, event.CoreUpdate)
	bind(event.TypeCoreUpdateManual, renderCoreFail, event.CoreUpdate)
}

// NewRegistry returns a registry with the built-in types bound.
func NewRegistry() *event.Registry {
	reg := event.NewRegistry()
	RegisterDefaults(reg)
	return reg
}
