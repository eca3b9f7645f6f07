package userstore

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/mamashield/internal/lang"
)

// InMemoryStore is a simple in-process user store for local/dev use.
type InMemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	defaultLang lang.Language
}

func NewInMemoryStore(defaultLang lang.Language) *InMemoryStore {
	if defaultLang == "" {
		defaultLang = lang.English
	}
	return &InMemoryStore{
		users:       make(map[string]*User),
		defaultLang: defaultLang,
	}
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, phoneHash string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phoneHash]
	if !ok {
		u = &User{
			PhoneHash:       phoneHash,
			Language:        s.defaultLang,
			LastInteraction: time.Now().UTC(),
		}
		s.users[phoneHash] = u
	}
	return cloneUser(u), nil
}

func (s *InMemoryStore) Update(_ context.Context, phoneHash string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phoneHash]
	if !ok {
		return ErrNotFound
	}
	if patch.Language != nil {
		u.Language = *patch.Language
	}
	if patch.DueDate != nil {
		d := *patch.DueDate
		u.DueDate = &d
	}
	if patch.PregnancyWeeks != nil {
		w := *patch.PregnancyWeeks
		u.PregnancyWeeks = &w
	}
	if patch.TeaFarmWorker != nil {
		u.TeaFarmWorker = *patch.TeaFarmWorker
	}
	return nil
}

func (s *InMemoryStore) IncrementInteractions(_ context.Context, phoneHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phoneHash]
	if !ok {
		return 0, ErrNotFound
	}
	u.InteractionCount++
	return u.InteractionCount, nil
}

func (s *InMemoryStore) AppendHistory(_ context.Context, phoneHash string, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[phoneHash]
	if !ok {
		return ErrNotFound
	}
	u.History = append(u.History, HistoryEntry{Role: role, Content: content})
	if len(u.History) > HistoryLimit {
		u.History = u.History[len(u.History)-HistoryLimit:]
	}
	u.LastInteraction = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneUser(u *User) User {
	out := *u
	if u.DueDate != nil {
		d := *u.DueDate
		out.DueDate = &d
	}
	if u.PregnancyWeeks != nil {
		w := *u.PregnancyWeeks
		out.PregnancyWeeks = &w
	}
	if len(u.History) > 0 {
		out.History = make([]HistoryEntry, len(u.History))
		copy(out.History, u.History)
	}
	return out
}
