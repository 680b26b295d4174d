package nats

import (
	"context"
	"sync"

	"github.com/brojonat/cardflow/service/payment"
)

// MockPublisher is an in-memory payment.EventPublisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	stepEvents       []*payment.StepEvent
	settlementEvents []*payment.SettlementEvent
	publishError     error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishStep records the event and returns any configured error.
func (m *MockPublisher) PublishStep(ctx context.Context, event *payment.StepEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.stepEvents = append(m.stepEvents, event)
	return nil
}

// PublishSettlement records the event and returns any configured error.
func (m *MockPublisher) PublishSettlement(ctx context.Context, event *payment.SettlementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.settlementEvents = append(m.settlementEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// StepEvents returns a copy of all recorded step events.
func (m *MockPublisher) StepEvents() []*payment.StepEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*payment.StepEvent, len(m.stepEvents))
	copy(events, m.stepEvents)
	return events
}

// SettlementEvents returns a copy of all recorded settlement events.
func (m *MockPublisher) SettlementEvents() []*payment.SettlementEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*payment.SettlementEvent, len(m.settlementEvents))
	copy(events, m.settlementEvents)
	return events
}

// StepEventsForRecord returns recorded step events for one record id.
func (m *MockPublisher) StepEventsForRecord(recordID string) []*payment.StepEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*payment.StepEvent, 0)
	for _, event := range m.stepEvents {
		if event.RecordID == recordID {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all recorded events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepEvents = nil
	m.settlementEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed reports whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
