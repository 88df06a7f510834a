package mail

import (
	"bytes"
	"fmt"
	"io"
	netmail "net/mail"
	"sort"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Compose renders m as an RFC 5322 message: multipart/alternative with a
// text/plain and a text/html part, both quoted-printable UTF-8.
func Compose(m Message, now time.Time) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	to, _ := netmail.ParseAddress(m.To)

	var h gomail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*gomail.Address{{Name: m.From.Name, Address: m.From.Email}})
	h.SetAddressList("To", []*gomail.Address{{Name: to.Name, Address: to.Address}})
	h.SetSubject(m.Subject)
	domain := m.From.Domain()
	if domain == "" {
		domain = "localhost"
	}
	h.SetMessageID(uuid.NewString() + "@" + domain)

	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Set(k, m.Headers[k])
	}

	var buf bytes.Buffer
	mw, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if m.Text != "" {
		if err := writePart(iw, "text/plain", m.Text); err != nil {
			return nil, err
		}
	}
	if m.HTML != "" {
		if err := writePart(iw, "text/html", m.HTML); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(iw *gomail.InlineWriter, contentType, body string) error {
	var ph gomail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := iw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("compose %s: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("compose %s: %w", contentType, err)
	}
	return w.Close()
}
