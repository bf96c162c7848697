// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"sync"

	"github.com/linuxfoundation/lfx-v2-snowball-service/internal/domain/port"
)

// PublishedMessage captures one message handed to the mock publisher
type PublishedMessage struct {
	Subject string
	Message any
	Type    string
}

// MockMessagePublisher records published messages for assertions
type MockMessagePublisher struct {
	messages []PublishedMessage
	mu       sync.Mutex
}

// NewMockMessagePublisher creates a new mock message publisher
func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{}
}

// Indexer records an indexer message
func (m *MockMessagePublisher) Indexer(ctx context.Context, subject string, message any) error {
	m.record(subject, message, "indexer")
	return nil
}

// Event records an event message
func (m *MockMessagePublisher) Event(ctx context.Context, subject string, message any) error {
	m.record(subject, message, "event")
	return nil
}

func (m *MockMessagePublisher) record(subject string, message any, messageType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, PublishedMessage{Subject: subject, Message: message, Type: messageType})
}

// Messages returns a snapshot of everything published so far
func (m *MockMessagePublisher) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

// MessagesOnSubject returns published messages filtered by subject
func (m *MockMessagePublisher) MessagesOnSubject(subject string) []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PublishedMessage
	for _, msg := range m.messages {
		if msg.Subject == subject {
			out = append(out, msg)
		}
	}
	return out
}

// Reset clears recorded messages
func (m *MockMessagePublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

var _ port.MessagePublisher = (*MockMessagePublisher)(nil)
