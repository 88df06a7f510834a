// Package digest compiles queued events into one HTML digest per
// recipient.
//
// Each event type is rendered by the function bound to it in an
// event.Registry; RegisterDefaults binds the built-in comment, user and
// core-update renderers. Rendered entries are grouped into sections and
// emitted in event.Order regardless of queue order, each section with its
// title, a plural-aware summary line and any section footer.
package digest
