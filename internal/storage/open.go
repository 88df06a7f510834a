package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "sitedigest/pkg/logx"
)

// Store is the digest queue: an append-only multi-map from recipient to the
// events queued for them.
//
// Individual events are never removed; the only removal is ClearAll, which
// drops everything a previous GetAll observed.
type Store interface {
	// Add appends an event and returns it with Seq, ID and OccurredAt filled in.
	Add(ctx context.Context, e Event) (Event, error)
	// GetAll returns an isolated copy of the whole queue.
	GetAll(ctx context.Context) (Snapshot, error)
	// ClearAll removes every event with Seq <= snap.Seq.
	ClearAll(ctx context.Context, snap Snapshot) error
	Close() error
}

// Open initializes the configured store. An empty driver selects memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// prepare validates e and fills the fields the caller may leave empty.
func prepare(e Event) (Event, error) {
	e.Recipient = strings.TrimSpace(e.Recipient)
	e.Type = strings.TrimSpace(e.Type)
	e.Subject = strings.TrimSpace(e.Subject)
	if err := e.validate(); err != nil {
		return Event{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return e, nil
}
