package session

import (
	"context"
	"sync"
)

// MockTransport implements Transport for testing. Tests feed events with
// Emit and inspect sent messages via SendCalls.
type MockTransport struct {
	ConnectFunc func(ctx context.Context) error
	SendFunc    func(ctx context.Context, jid, text string) error

	mu           sync.Mutex
	ConnectCalls int
	SendCalls    []SentMessage

	events chan Event
	once   sync.Once
}

// SentMessage records one Send call.
type SentMessage struct {
	JID  string
	Text string
}

// NewMockTransport creates a mock transport with a buffered event stream.
func NewMockTransport() *MockTransport {
	return &MockTransport{events: make(chan Event, 64)}
}

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.ConnectCalls++
	m.mu.Unlock()
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockTransport) Send(ctx context.Context, jid, text string) error {
	m.mu.Lock()
	m.SendCalls = append(m.SendCalls, SentMessage{JID: jid, Text: text})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, jid, text)
	}
	return nil
}

func (m *MockTransport) Events() <-chan Event {
	return m.events
}

func (m *MockTransport) Close() error {
	m.once.Do(func() { close(m.events) })
	return nil
}

// Emit pushes an event onto the stream.
func (m *MockTransport) Emit(ev Event) {
	m.events <- ev
}

// Sent returns a copy of the messages sent so far.
func (m *MockTransport) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.SendCalls))
	copy(out, m.SendCalls)
	return out
}

// Connects returns how many times Connect was called.
func (m *MockTransport) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConnectCalls
}
