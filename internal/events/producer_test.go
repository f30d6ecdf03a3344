package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vietcart/checkout-service/internal/domain/order"
)

func testOrder() *order.Order {
	return &order.Order{
		ID:          "order-1",
		UserID:      "user-1",
		Status:      order.StatusPending,
		TotalAmount: decimal.NewFromInt(230000),
		Currency:    "VND",
		Items:       []order.Item{{ID: "item-1", OrderID: "order-1", ProductID: "p1"}},
	}
}

func TestPublish_EnqueuesEnvelope(t *testing.T) {
	p := NewProducer(Config{Brokers: []string{"localhost:9092"}}, zap.NewNop())

	p.OrderCreated(context.Background(), testOrder(), "user@example.com")

	require.Len(t, p.inbox, 1)
	m := <-p.inbox
	assert.Equal(t, TopicOrderCreated, m.Topic)
	assert.Equal(t, "order-1", string(m.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, TopicOrderCreated, env.EventType)
	assert.Equal(t, "checkout-service", env.Producer)
	assert.NotEmpty(t, env.EventID)
}

func TestPublish_DropsWhenInboxFull(t *testing.T) {
	p := NewProducer(Config{Brokers: []string{"localhost:9092"}, InboxSize: 1}, zap.NewNop())

	o := testOrder()
	p.OrderCreated(context.Background(), o, "user@example.com")
	p.OrderCancelled(context.Background(), o, "changed my mind", "user@example.com")

	assert.Len(t, p.inbox, 1)
}

func TestPublish_AfterShutdownDropsEvent(t *testing.T) {
	p := NewProducer(Config{Brokers: []string{"localhost:9092"}}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	p.WaitClosed()

	// A checkout that commits while the server is draining still reports its
	// events. The publish must quietly drop, never panic or surface an error.
	assert.NotPanics(t, func() {
		p.OrderCreated(context.Background(), testOrder(), "user@example.com")
	})
}
