package mail

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v3"
)

type ResendConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// ResendTransport sends through the Resend HTTP API. Resend signs outgoing
// mail itself, so no DKIM signer is applied.
type ResendTransport struct {
	client *resend.Client
}

func NewResend(cfg ResendConfig) (*ResendTransport, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("resend: api key is required")
	}
	client := resend.NewClient(cfg.APIKey)
	if cfg.BaseURL != "" {
		if err := setBaseURL(client, cfg.BaseURL); err != nil {
			return nil, err
		}
	}
	return &ResendTransport{client: client}, nil
}

func (t *ResendTransport) Send(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    m.From.String(),
		To:      []string{m.To},
		Subject: m.Subject,
		Html:    m.HTML,
		Text:    m.Text,
		Headers: m.Headers,
	}
	if _, err := t.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}

func setBaseURL(c *resend.Client, raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("resend: base url: %w", err)
	}
	c.BaseURL = u
	return nil
}
