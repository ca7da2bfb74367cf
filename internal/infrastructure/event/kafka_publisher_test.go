package event

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewKafkaPublisher(writer, nil, zap.NewNop())
	first, second := newBelowThresholdEvent(t), newBelowThresholdEvent(t)

	require.NoError(t, publisher.Publish(context.Background(), first, second))

	require.Len(t, writer.msgs, 2)
	msg := writer.msgs[0]
	assert.Equal(t, first.AggregateID().String(), string(msg.Key))
	assert.Equal(t, "StockBelowThreshold", header(msg, "event_type"))

	decoded, err := NewEventSerializer().Deserialize(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, first.EventID(), decoded.EventID())

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "reserve")
	defer span.End()

	writer := &fakeWriter{}
	publisher := NewKafkaPublisher(writer, nil, zap.NewNop())
	require.NoError(t, publisher.Publish(ctx, newBelowThresholdEvent(t)))

	require.Len(t, writer.msgs, 1)
	assert.Contains(t, header(writer.msgs[0], "traceparent"), span.SpanContext().TraceID().String())
}

func TestKafkaPublisher_Errors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	publisher := NewKafkaPublisher(writer, nil, zap.NewNop())

	assert.NoError(t, publisher.Publish(context.Background()))

	err := publisher.Publish(context.Background(), newBelowThresholdEvent(t))
	assert.ErrorContains(t, err, "leader not available")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "stock-events", ClientID: "stock-engine"})
	defer w.Close()

	assert.Equal(t, "stock-events", w.Topic)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
