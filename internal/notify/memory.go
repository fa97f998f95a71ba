package notify

import (
	"context"
	"sync"
)

// MemorySender records messages instead of delivering them. Set Err to simulate failure.
type MemorySender struct {
	mu       sync.Mutex
	Err      error
	FailTo   map[string]error
	messages []Message
}

// NewMemorySender constructs an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{FailTo: map[string]error{}}
}

// Send implements Sender.
func (m *MemorySender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.FailTo[msg.To]; ok {
		return err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the delivered messages.
func (m *MemorySender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
