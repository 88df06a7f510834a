package storage

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrDisabled     = errors.New("storage disabled")
	ErrClosed       = errors.New("storage closed")
	ErrInvalidEvent = errors.New("invalid queued event")
)

// Config configures the queue store.
//
// Driver values:
//   - "memory": process-local, lost on restart (default)
//   - "file": JSON Lines journal + snapshot
//   - "sqlite": SQLite database file
//   - "redis": sorted set on a Redis server, shared by several daemons
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisKey prefixes the queue keys; default "sitedigest:queue".
	RedisKey string
}

// Event is one queued notification for one recipient.
//
// Subject is opaque to the store: comment and user events carry a decimal
// ID, core-update events carry a version string.
type Event struct {
	Seq        uint64    `json:"seq"`
	ID         string    `json:"id"`
	Recipient  string    `json:"recipient"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SubjectID parses Subject as an integer ID.
func (e Event) SubjectID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(e.Subject), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IntSubject formats an integer ID for Event.Subject.
func IntSubject(id int64) string { return strconv.FormatInt(id, 10) }

func (e Event) validate() error {
	if strings.TrimSpace(e.Recipient) == "" {
		return fmt.Errorf("%w: recipient required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("%w: type required", ErrInvalidEvent)
	}
	return nil
}

// Snapshot is a point-in-time copy of the queue.
//
// Seq is the highest sequence number observed; ClearAll(snap) removes
// exactly the events with Seq <= snap.Seq so that events queued after the
// snapshot survive.
type Snapshot struct {
	Seq        uint64
	Recipients []string // first-insertion order
	Events     map[string][]Event
}

// Empty reports whether the snapshot holds no events.
func (s Snapshot) Empty() bool { return len(s.Recipients) == 0 }

// Len is the total number of events in the snapshot.
func (s Snapshot) Len() int {
	n := 0
	for _, evs := range s.Events {
		n += len(evs)
	}
	return n
}

// buildSnapshot groups events (in any order) by recipient in seq order.
func buildSnapshot(events []Event) Snapshot {
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	snap := Snapshot{Events: map[string][]Event{}}
	for _, e := range events {
		if _, ok := snap.Events[e.Recipient]; !ok {
			snap.Recipients = append(snap.Recipients, e.Recipient)
		}
		snap.Events[e.Recipient] = append(snap.Events[e.Recipient], e)
		if e.Seq > snap.Seq {
			snap.Seq = e.Seq
		}
	}
	return snap
}
