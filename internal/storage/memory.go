package storage

import (
	"context"
	"sync"
)

// memoryStore keeps the queue in process memory.
type memoryStore struct {
	mu     sync.Mutex
	seq    uint64
	events []Event
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return &memoryStore{} }

func (s *memoryStore) Add(ctx context.Context, e Event) (Event, error) {
	_ = ctx
	e, err := prepare(e)
	if err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, ErrClosed
	}
	s.seq++
	e.Seq = s.seq
	s.events = append(s.events, e)
	return e, nil
}

func (s *memoryStore) GetAll(ctx context.Context) (Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	cp := append([]Event(nil), s.events...)
	s.mu.Unlock()
	return buildSnapshot(cp), nil
}

func (s *memoryStore) ClearAll(ctx context.Context, snap Snapshot) error {
	_ = ctx
	if snap.Seq == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Seq > snap.Seq {
			kept = append(kept, e)
		}
	}
	// Zero the tail so cleared events can be collected.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = Event{}
	}
	s.events = kept
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
