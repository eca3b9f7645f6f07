package sms

import (
	"context"
	"sync"
)

// SentMessage is one delivery recorded by the mock.
type SentMessage struct {
	Phone string
	Text  string
}

// MockSender records sends for tests and offline runs.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage

	// Err, when set, is returned by every Send without recording.
	Err error
}

func NewMockSender() *MockSender { return &MockSender{} }

func (m *MockSender) Send(_ context.Context, phone, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{Phone: phone, Text: message})
	return nil
}

// Sent returns a copy of everything delivered so far.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset clears the recorded deliveries.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
