package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
)

// MockEventHandler records the events it receives
type MockEventHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

// NewMockEventHandler creates a new mock event handler.
func NewMockEventHandler(eventTypes ...string) *MockEventHandler {
	return &MockEventHandler{eventTypes: eventTypes}
}

// EventTypes returns the event types this handler subscribes to.
func (h *MockEventHandler) EventTypes() []string {
	return h.eventTypes
}

// Handle records event and returns the configured error
func (h *MockEventHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

// Handled returns a copy of the handled events
func (h *MockEventHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]shared.DomainEvent, len(h.handled))
	copy(result, h.handled)
	return result
}

// HandledTypes returns the event types in the order they were handled
func (h *MockEventHandler) HandledTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, 0, len(h.handled))
	for _, e := range h.handled {
		types = append(types, e.EventType())
	}
	return types
}

// HandledCount returns the number of handled events.
func (h *MockEventHandler) HandledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

// SetError sets the error to return from Handle.
func (h *MockEventHandler) SetError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Reset clears all handled events.
func (h *MockEventHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = nil
	h.err = nil
}

// TestEvent is a simple domain event for testing.
type TestEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

// NewTestEvent creates a new test event.
func NewTestEvent(eventType string) *TestEvent {
	return &TestEvent{
		BaseDomainEvent: shared.BaseDomainEvent{
			ID:        uuid.New(),
			Type:      eventType,
			Timestamp: time.Now(),
			AggID:     uuid.New(),
			AggType:   "TestAggregate",
		},
		Data: "test-data",
	}
}
