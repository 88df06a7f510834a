// Package dispatch runs digest passes.
//
// A pass is gated by scheduler.IsDue (unless forced), reads a snapshot of
// the queue, compiles one digest per recipient in first-queued order and
// sends the non-empty ones through a mail.Transport with rate limiting and
// retries. The snapshot is cleared once at the end whatever the send
// outcomes were; failures are reported per recipient in the Report and on
// the event bus.
package dispatch
