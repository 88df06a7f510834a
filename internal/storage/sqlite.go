package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "sitedigest/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps the queue in a single table. AUTOINCREMENT guarantees
// seq values are never reused, which the ClearAll watermark relies on.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append([]string{fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())}, pragmas...)
	}
	// A failed pragma leaves the store usable with SQLite defaults.
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.String("path", path), logx.Err(err))
		}
	}

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Add(ctx context.Context, e Event) (Event, error) {
	if s == nil || s.db == nil {
		return Event{}, ErrDisabled
	}
	e, err := prepare(e)
	if err != nil {
		return Event{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue(id, recipient, event_type, subject, occurred_at) VALUES(?,?,?,?,?)`,
		e.ID, e.Recipient, e.Type, e.Subject, e.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Event{}, err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Event{}, err
	}
	e.Seq = uint64(seq)
	return e, nil
}

func (s *sqliteStore) GetAll(ctx context.Context) (Snapshot, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, recipient, event_type, subject, occurred_at FROM queue ORDER BY seq`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e  Event
			at string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.Recipient, &e.Type, &e.Subject, &at); err != nil {
			return Snapshot{}, err
		}
		if e.OccurredAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			s.log.Warn("queue row has bad timestamp", logx.Uint64("seq", e.Seq), logx.String("occurred_at", at))
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return buildSnapshot(events), nil
}

func (s *sqliteStore) ClearAll(ctx context.Context, snap Snapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if snap.Seq == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE seq <= ?`, snap.Seq)
	return err
}
