package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/erp/stockengine/internal/domain/inventory"
	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/google/uuid"
)

// Envelope is the wire form of a stock event on the stream
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

type versioned interface {
	SchemaVersion() int
}

// EventSerializer encodes domain events into envelopes and decodes them back
// into their registered Go types
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates a serializer with every stock event registered
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{registry: make(map[string]reflect.Type)}
	s.Register(inventory.EventTypeBatchReceived, &inventory.BatchReceivedEvent{})
	s.Register(inventory.EventTypeStockReserved, &inventory.StockReservedEvent{})
	s.Register(inventory.EventTypeStockReleased, &inventory.StockReleasedEvent{})
	s.Register(inventory.EventTypeStockDeducted, &inventory.StockDeductedEvent{})
	s.Register(inventory.EventTypeStockAdjusted, &inventory.StockAdjustedEvent{})
	s.Register(inventory.EventTypeStockTransferred, &inventory.StockTransferredEvent{})
	s.Register(inventory.EventTypeWastageRecorded, &inventory.WastageRecordedEvent{})
	s.Register(inventory.EventTypeBatchQCChanged, &inventory.BatchQCChangedEvent{})
	s.Register(inventory.EventTypeStockBelowThreshold, &inventory.StockBelowThresholdEvent{})
	return s
}

// Register registers an event type for deserialization
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize wraps the event in an Envelope and encodes it
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	version := 1
	if v, ok := event.(versioned); ok {
		version = v.SchemaVersion()
	}
	return json.Marshal(Envelope{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		OccurredAt:    event.OccurredAt().UTC(),
		SchemaVersion: version,
		Payload:       payload,
	})
}

// Deserialize decodes an envelope into the registered event type
func (s *EventSerializer) Deserialize(data []byte) (shared.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	s.mu.RLock()
	t, ok := s.registry[env.EventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(env.Payload, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized object does not implement DomainEvent")
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}
