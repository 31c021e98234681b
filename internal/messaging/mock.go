package messaging

import (
	"context"
	"sync"
)

// SentMessage records one delivery accepted by the MockAdapter.
type SentMessage struct {
	Recipient string
	Message   string
}

// MockAdapter records sends instead of delivering them. It backs channels
// with no transport configured and is used throughout the tests.
type MockAdapter struct {
	mu sync.Mutex
	// Err, when set, is returned by every Send call.
	Err  error
	sent []SentMessage
}

// NewMockAdapter creates a MockAdapter that accepts every send.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Send(ctx context.Context, recipient, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{Recipient: recipient, Message: message})
	return nil
}

// Sent returns a copy of all recorded deliveries.
func (m *MockAdapter) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
