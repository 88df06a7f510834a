package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitedigest/internal/eventbus"
	"sitedigest/internal/storage"
	logx "sitedigest/pkg/logx"
)

// ErrUnknownType rejects events no renderer is registered for.
var ErrUnknownType = errors.New("unknown event type")

// Payload is the wire form of one queued event, shared by HTTP and Kafka.
//
//	{"recipient":"alice@example.com","type":"comment_notification","subject":"42"}
type Payload struct {
	Recipient  string     `json:"recipient"`
	Type       string     `json:"type"`
	Subject    string     `json:"subject"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// Sink receives accepted events; storage.Store satisfies it.
type Sink interface {
	Add(ctx context.Context, e storage.Event) (storage.Event, error)
}

// Acceptor validates payloads and appends them to the queue.
type Acceptor struct {
	sink  Sink
	known func(eventType string) bool
	bus   eventbus.Bus
	log   logx.Logger
}

// NewAcceptor returns an Acceptor. A nil known accepts every type; unknown
// types are then skipped when the digest is compiled.
func NewAcceptor(sink Sink, known func(string) bool, bus eventbus.Bus, log logx.Logger) *Acceptor {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Acceptor{sink: sink, known: known, bus: bus, log: log}
}

func (a *Acceptor) Accept(ctx context.Context, p Payload) (storage.Event, error) {
	typ := strings.TrimSpace(p.Type)
	if a.known != nil && typ != "" && !a.known(typ) {
		return storage.Event{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	e := storage.Event{Recipient: p.Recipient, Type: typ, Subject: p.Subject}
	if p.OccurredAt != nil {
		e.OccurredAt = *p.OccurredAt
	}
	e, err := a.sink.Add(ctx, e)
	if err != nil {
		return storage.Event{}, err
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeQueued, Data: e})
	a.log.Debug("event queued", logx.String("recipient", e.Recipient), logx.String("type", e.Type), logx.Uint64("seq", e.Seq))
	return e, nil
}

// Rejected reports whether err is the caller's fault rather than the store's.
func Rejected(err error) bool {
	return errors.Is(err, ErrUnknownType) || errors.Is(err, storage.ErrInvalidEvent)
}
