package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "sitedigest/pkg/logx"
)

// fileStore persists the queue without a database.
//
// Files:
//   - <prefix>.queue.snapshot.json (compacted state)
//   - <prefix>.queue.journal.jsonl (append-only journal since the snapshot)
//
// Every ClearAll compacts the journal into the snapshot, so the journal only
// ever holds the adds of the current digest period.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	seq    uint64
	events []Event
	writes int
}

const (
	opAdd   = "add"
	opClear = "clear"
)

type journalRecord struct {
	Op    string `json:"op"`
	Event *Event `json:"event,omitempty"`
	Upto  uint64 `json:"upto,omitempty"`
}

type fileSnapshot struct {
	Seq    uint64  `json:"seq"`
	Events []Event `json:"events"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".queue.snapshot.json"
	journalPath := prefix + ".queue.journal.jsonl"

	st := fileSnapshot{}
	if err := loadQueueSnapshot(snapPath, &st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	skipped, err := replayQueueJournal(journalPath, &st)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("queue journal: skipped unreadable records", logx.Int("count", skipped))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		seq:          st.Seq,
		events:       st.Events,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Add(ctx context.Context, e Event) (Event, error) {
	_ = ctx
	e, err := prepare(e)
	if err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return Event{}, ErrClosed
	}
	e.Seq = s.seq + 1
	if err := s.appendLocked(journalRecord{Op: opAdd, Event: &e}); err != nil {
		return Event{}, err
	}
	s.seq = e.Seq
	s.events = append(s.events, e)
	return e, nil
}

func (s *fileStore) GetAll(ctx context.Context) (Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	cp := append([]Event(nil), s.events...)
	s.mu.Unlock()
	return buildSnapshot(cp), nil
}

func (s *fileStore) ClearAll(ctx context.Context, snap Snapshot) error {
	_ = ctx
	if snap.Seq == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := s.appendLocked(journalRecord{Op: opClear, Upto: snap.Seq}); err != nil {
		return err
	}
	s.events = clearUpto(s.events, snap.Seq)

	// The clear record is already durable; a failed compaction only leaves
	// a longer journal behind.
	if err := s.compactLocked(); err != nil {
		s.log.Warn("queue compact failed", logx.Err(err))
	}
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	return s.journal.Sync()
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(fileSnapshot{Seq: s.seq, Events: s.events}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	s.log.Debug("queue compacted", logx.Int("events", len(s.events)), logx.Int("journal_writes", s.writes))
	s.writes = 0
	return err
}

func clearUpto(events []Event, upto uint64) []Event {
	kept := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Seq > upto {
			kept = append(kept, e)
		}
	}
	return kept
}

func loadQueueSnapshot(path string, out *fileSnapshot) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

// replayQueueJournal applies journal records on top of out. Records at or
// below the snapshot's seq were already compacted and are ignored.
func replayQueueJournal(path string, out *fileSnapshot) (skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			skipped++
			continue
		}
		switch r.Op {
		case opAdd:
			if r.Event == nil || r.Event.Seq <= out.Seq {
				continue
			}
			out.Events = append(out.Events, *r.Event)
			out.Seq = r.Event.Seq
		case opClear:
			out.Events = clearUpto(out.Events, r.Upto)
		default:
			skipped++
		}
	}
	return skipped, sc.Err()
}
