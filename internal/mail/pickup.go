package mail

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/google/uuid"
)

// Pickup formats.
const (
	PickupEML  = "eml"
	PickupMbox = "mbox"
)

type PickupConfig struct {
	Dir string
	// Format is eml (one file per message, default) or mbox (append to
	// <dir>/digests.mbox).
	Format string
}

// PickupTransport writes messages to disk instead of sending them, for
// local MTAs that watch a pickup directory and for previews.
type PickupTransport struct {
	cfg PickupConfig
	composer

	mu sync.Mutex
}

func NewPickup(cfg PickupConfig, signer *Signer) (*PickupTransport, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("pickup: dir is required")
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	switch cfg.Format {
	case "":
		cfg.Format = PickupEML
	case PickupEML, PickupMbox:
	default:
		return nil, fmt.Errorf("pickup: unknown format %q", cfg.Format)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &PickupTransport{cfg: cfg, composer: composer{signer: signer}}, nil
}

func (t *PickupTransport) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.raw(m)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Format == PickupMbox {
		return t.appendMbox(m, data)
	}
	return t.writeEML(data)
}

// writeEML writes to a temp name first so a watching MTA never sees a
// partial file.
func (t *PickupTransport) writeEML(data []byte) error {
	name := fmt.Sprintf("%s-%s.eml", time.Now().UTC().Format("20060102T150405"), uuid.NewString())
	tmp := filepath.Join(t.cfg.Dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(t.cfg.Dir, name))
}

func (t *PickupTransport) appendMbox(m Message, data []byte) error {
	f, err := os.OpenFile(t.MboxPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	mw := mbox.NewWriter(f)
	w, err := mw.CreateMessage(m.From.Email, time.Now())
	if err != nil {
		return fmt.Errorf("mbox: %w", err)
	}
	if _, err := w.Write(lf(data)); err != nil {
		return fmt.Errorf("mbox: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("mbox: %w", err)
	}
	return f.Sync()
}

// MboxPath is the mailbox file used by the mbox format.
func (t *PickupTransport) MboxPath() string {
	return filepath.Join(t.cfg.Dir, "digests.mbox")
}

func lf(data []byte) []byte {
	return []byte(strings.ReplaceAll(string(data), "\r\n", "\n"))
}
