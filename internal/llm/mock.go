package llm

import (
	"context"
	"sync"
)

const mockJSONReply = `{"response_text": "Drink clean water, eat well, and attend your ANC visits.", "risk_level": 0.2, "reason": "General advice", "recommended_action": "monitor"}`

const mockPlainReply = "Eat iron-rich vegetables like managu and rest when tired."

// Mock is a scripted Completer for tests and local runs without an API key.
type Mock struct {
	mu    sync.Mutex
	queue []Reply

	// Requests records every call in order.
	Requests []Request
}

func NewMock(replies ...Reply) *Mock {
	return &Mock{queue: append([]Reply(nil), replies...)}
}

// Enqueue appends a scripted reply returned before the defaults.
func (m *Mock) Enqueue(r Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, r)
}

func (m *Mock) Complete(_ context.Context, req Request) Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r
	}
	if req.JSONMode {
		return Reply{Text: mockJSONReply, Model: "mock"}
	}
	return Reply{Text: mockPlainReply, Model: "mock"}
}
