package mail

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
)

var (
	ErrNoRecipient = errors.New("mail: recipient required")
	ErrNoContent   = errors.New("mail: message has no content")
	ErrNoSender    = errors.New("mail: sender address required")
)

// Message is one outgoing digest.
type Message struct {
	From    Address
	To      string
	Subject string
	HTML    string
	// Text is the plain-text alternative. It may be empty.
	Text    string
	Headers map[string]string
}

// Address is a display name plus email address.
type Address struct {
	Name  string
	Email string
}

// String formats the address as "Name <email>", or just the email.
func (a Address) String() string {
	if strings.TrimSpace(a.Name) == "" {
		return a.Email
	}
	return (&netmail.Address{Name: a.Name, Address: a.Email}).String()
}

// Domain is the part after the last "@", lowercased.
func (a Address) Domain() string {
	if i := strings.LastIndex(a.Email, "@"); i >= 0 && i+1 < len(a.Email) {
		return strings.ToLower(a.Email[i+1:])
	}
	return ""
}

// Validate checks that m can be sent.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if _, err := netmail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrNoRecipient, m.To, err)
	}
	if strings.TrimSpace(m.From.Email) == "" {
		return ErrNoSender
	}
	if strings.TrimSpace(m.HTML) == "" && strings.TrimSpace(m.Text) == "" {
		return ErrNoContent
	}
	return nil
}

// Transport delivers a message. Implementations must be safe for
// sequential reuse; the dispatcher never calls Send concurrently.
type Transport interface {
	Send(ctx context.Context, m Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, m Message) error

func (f TransportFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }

// Closer is implemented by transports holding connections or files.
type Closer interface {
	Close() error
}
