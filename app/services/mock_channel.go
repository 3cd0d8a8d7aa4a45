package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// MockMessage represents a message captured by MockChannel
type MockMessage struct {
	Recipient string
	Message   string
	SentAt    time.Time
}

// MockChannel records messages instead of sending them. Used for local runs and tests.
type MockChannel struct {
	name string

	mu           sync.Mutex
	SentMessages []MockMessage
	// FailWith makes Send return a transport error
	FailWith string
	// RejectWith makes Send return a payload-level failure
	RejectWith string
}

// NewMockChannel creates a new mock channel
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{name: name, SentMessages: make([]MockMessage, 0)}
}

func (m *MockChannel) Name() string { return m.name }

func (m *MockChannel) Send(ctx context.Context, phone, message string) (*ChannelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != "" {
		return nil, errors.New(m.FailWith)
	}
	if m.RejectWith != "" {
		raw, _ := json.Marshal(map[string]any{"success": false, "error": m.RejectWith})
		return &ChannelResponse{Raw: raw, Failed: true, Reason: m.RejectWith}, nil
	}

	m.SentMessages = append(m.SentMessages, MockMessage{
		Recipient: phone,
		Message:   message,
		SentAt:    time.Now(),
	})
	raw, _ := json.Marshal(map[string]any{"success": true, "channel": m.name})
	return &ChannelResponse{Raw: raw}, nil
}

// GetSentMessages returns a copy of all captured messages
func (m *MockChannel) GetSentMessages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}

// ClearSentMessages clears all captured messages
func (m *MockChannel) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = make([]MockMessage, 0)
}
