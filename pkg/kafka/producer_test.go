package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ariya-Dice/tansoo/pkg/logger"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
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
	return headerCarrier{headers: &msg.Headers}.Get(key)
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent("cart.updated", "sess-1", "cart", "cart-service", map[string]int{"count": 3},
		WithCorrelationID("corr-1"),
		WithMetadata("origin", "web"),
		WithMetadata("empty", ""),
	)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.JSONEq(t, `{"count":3}`, string(event.Data))
	assert.Equal(t, map[string]string{"origin": "web"}, event.Metadata)

	raw, err := event.Marshal()
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "web", decoded.Metadata["origin"])

	var payload map[string]int
	require.NoError(t, json.Unmarshal(decoded.Data, &payload))
	assert.Equal(t, 3, payload["count"])
}

func TestNewEvent_EmptyCorrelationIDIgnored(t *testing.T) {
	event, err := NewEvent("cart.updated", "sess-1", "cart", "cart-service", struct{}{}, WithCorrelationID(""))
	require.NoError(t, err)
	assert.Empty(t, event.CorrelationID)
	assert.Nil(t, event.Metadata)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("cart.updated", "sess-1", "cart", "cart-service", make(chan int))
	assert.Error(t, err)
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())

	event, err := NewEvent("cart.updated", "sess-1", "cart", "cart-service", map[string]int{"count": 1},
		WithCorrelationID("corr-9"),
		WithMetadata("session_id", "sess-1"),
	)
	require.NoError(t, err)

	before := testutil.ToFloat64(producerPublished.WithLabelValues("tansoo.cart.updated"))
	require.NoError(t, p.Publish(context.Background(), "tansoo.cart.updated", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "tansoo.cart.updated", msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))
	assert.Equal(t, "cart.updated", header(msg, "event_type"))
	assert.Equal(t, "cart-service", header(msg, "source"))
	assert.Equal(t, "corr-9", header(msg, "correlation_id"))
	assert.Equal(t, "sess-1", header(msg, "session_id"))
	assert.Equal(t, before+1, testutil.ToFloat64(producerPublished.WithLabelValues("tansoo.cart.updated")))
}

func TestProducer_PublishInjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	event, err := NewEvent("cart.cleared", "sess-2", "cart", "cart-service", struct{}{})
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "tansoo.cart.cleared", event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header(w.msgs[0], "traceparent"))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, logger.Discard())
	event, err := NewEvent("cart.updated", "sess-1", "cart", "cart-service", struct{}{})
	require.NoError(t, err)

	before := testutil.ToFloat64(producerErrors.WithLabelValues("errs"))
	err = p.Publish(context.Background(), "errs", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, before+1, testutil.ToFloat64(producerErrors.WithLabelValues("errs")))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, logger.Discard()).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "a", Value: []byte("1")}}
	c := headerCarrier{headers: &headers}

	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, "3", c.Get("b"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
