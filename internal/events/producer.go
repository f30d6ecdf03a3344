package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vietcart/checkout-service/internal/domain/order"
)

const producerName = "checkout-service"

// Config holds the Kafka producer settings.
type Config struct {
	// Brokers is the Kafka bootstrap broker list.
	Brokers []string
	// InboxSize is the publish buffer capacity. When the buffer is full new
	// events are dropped (and logged) rather than blocking checkout.
	InboxSize int
}

// Producer is an asynchronous Kafka publisher for order events. Publishing
// never blocks the caller and never fails the originating operation: events
// queue into an inbox channel drained by a background writer goroutine.
type Producer struct {
	w  *kafka.Writer
	lg *zap.Logger

	// mu guards closed and the inbox send: once Run begins shutdown it
	// closes the inbox under the write lock, so a concurrent publish either
	// enqueues before the close or observes closed and drops.
	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message

	closeCh chan struct{}
}

var _ order.EventPublisher = (*Producer)(nil)

// NewProducer creates a producer for the given brokers. The message topic is
// set per event, so one writer serves all order topics.
func NewProducer(cfg Config, lg *zap.Logger) *Producer {
	size := cfg.InboxSize
	if size <= 0 {
		size = 256
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		lg:      lg,
		inbox:   make(chan kafka.Message, size),
		closeCh: make(chan struct{}),
	}
}

// Run drains the inbox until ctx is cancelled, then flushes remaining
// messages and closes the writer.
func (p *Producer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.closed = true
			close(p.inbox)
			p.mu.Unlock()
			for m := range p.inbox {
				p.write(context.Background(), m)
			}
			err := p.w.Close()
			close(p.closeCh)
			return err
		case m := <-p.inbox:
			p.write(ctx, m)
		}
	}
}

// WaitClosed blocks until Run has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.lg.Error("Write event",
			zap.String("topic", m.Topic),
			zap.ByteString("key", m.Key),
			zap.Error(err))
	}
}

// OrderCreated publishes to order.created, keyed by order id.
func (p *Producer) OrderCreated(_ context.Context, o *order.Order, userEmail string) {
	p.publish(TopicOrderCreated, o.ID, OrderCreatedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserEmail:   userEmail,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		ItemCount:   len(o.Items),
		CreatedAt:   time.Now().UTC(),
	})
}

// OrderStatusUpdated publishes to order.status.updated, keyed by order id.
func (p *Producer) OrderStatusUpdated(_ context.Context, o *order.Order, oldStatus order.Status, updatedBy string) {
	p.publish(TopicOrderStatusUpdated, o.ID, OrderStatusUpdatedPayload{
		OrderID:   o.ID,
		UserID:    o.UserID,
		OldStatus: string(oldStatus),
		NewStatus: string(o.Status),
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now().UTC(),
	})
}

// OrderCancelled publishes to order.cancelled, keyed by order id.
func (p *Producer) OrderCancelled(_ context.Context, o *order.Order, reason, userEmail string) {
	p.publish(TopicOrderCancelled, o.ID, OrderCancelledPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		UserEmail:   userEmail,
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	})
}

func (p *Producer) publish(topic, key string, payload any) {
	env := Envelope{
		EventID:    uuid.New().String(),
		EventType:  topic,
		OccurredAt: time.Now().UTC(),
		Producer:   producerName,
		Payload:    payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.lg.Error("Encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	m := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.lg.Warn("Producer stopped, dropping event",
			zap.String("topic", topic),
			zap.String("key", key))
		return
	}
	select {
	case p.inbox <- m:
	default:
		p.lg.Warn("Event inbox full, dropping event",
			zap.String("topic", topic),
			zap.String("key", key))
	}
}

// NopPublisher discards all events. Used when Kafka is not configured.
type NopPublisher struct{}

var _ order.EventPublisher = NopPublisher{}

func (NopPublisher) OrderCreated(context.Context, *order.Order, string) {}

func (NopPublisher) OrderStatusUpdated(context.Context, *order.Order, order.Status, string) {}

func (NopPublisher) OrderCancelled(context.Context, *order.Order, string, string) {}
