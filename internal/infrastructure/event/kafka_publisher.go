package event

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockengine/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the stock event writer
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// NewKafkaWriter builds a writer keyed by aggregate so that events of one
// stock row land on one partition in order
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
}

// KafkaPublisher streams committed stock events to a Kafka topic
type KafkaPublisher struct {
	writer     MessageWriter
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewKafkaPublisher creates a publisher over writer
func NewKafkaPublisher(writer MessageWriter, serializer *EventSerializer, logger *zap.Logger) *KafkaPublisher {
	if serializer == nil {
		serializer = NewEventSerializer()
	}
	return &KafkaPublisher{writer: writer, serializer: serializer, logger: logger}
}

// Publish writes all events in one batch. Trace context travels in headers.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier)+1)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := p.serializer.Serialize(e)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", e.EventType(), err)
		}
		msgHeaders := append([]kafka.Header{{Key: "event_type", Value: []byte(e.EventType())}}, headers...)
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.AggregateID().String()),
			Value:   value,
			Headers: msgHeaders,
			Time:    e.OccurredAt(),
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("Failed to publish stock events",
			zap.Int("count", len(msgs)),
			zap.String("first_event_type", events[0].EventType()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to write stock events: %w", err)
	}
	p.logger.Debug("Published stock events", zap.Int("count", len(msgs)))
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ shared.EventPublisher = (*KafkaPublisher)(nil)
