package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps events in-process for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, e Event) error {
	normalize(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *InMemoryStore) Since(_ context.Context, from time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if e.At.Before(from) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func normalize(e *Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Count <= 0 {
		e.Count = 1
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Details == nil {
		e.Details = map[string]string{}
	}
}
