package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/middleware"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

var (
	_ interfaces.OrderEventPublisher = (*KafkaPublisher)(nil)
	_ interfaces.OrderEventPublisher = (*MockEventPublisher)(nil)
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeOrderCreated        EventType = "order.created"
	EventTypeOrderStatusChanged  EventType = "order.status_changed"
	EventTypeOrderPaymentUpdated EventType = "order.payment_updated"
)

// OrderEvent is the envelope written to the orders topic.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       string            `json:"order_id"`
	UserID        string            `json:"user_id"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

type statusChangedPayload struct {
	Order          *models.Order      `json:"order"`
	PreviousStatus models.OrderStatus `json:"previous_status"`
	NewStatus      models.OrderStatus `json:"new_status"`
}

type paymentUpdatedPayload struct {
	Order         *models.Order         `json:"order"`
	IsPaid        bool                  `json:"is_paid"`
	PaymentResult *models.PaymentResult `json:"payment_result,omitempty"`
}

// messageWriter is the subset of *kafka.Writer the publishers use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.LoggerV2
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.LoggerV2) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaPublisher(writer, cfg.OrdersTopic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *logging.LoggerV2) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// PublishOrderCreated publishes an order created event.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	p.logger.Debug("Publishing order created event", logging.Fields{
		"order_id": order.ID,
	})

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	event := newOrderEvent(ctx, EventTypeOrderCreated, order, data)
	event.Metadata["payment_method"] = string(order.PaymentMethod)
	return p.publish(ctx, event)
}

// PublishOrderStatusChanged publishes an order status change event.
func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previousStatus models.OrderStatus) error {
	p.logger.Debug("Publishing order status changed event", logging.Fields{
		"order_id":        order.ID,
		"previous_status": previousStatus,
		"new_status":      order.Status,
	})

	data, err := json.Marshal(statusChangedPayload{
		Order:          order,
		PreviousStatus: previousStatus,
		NewStatus:      order.Status,
	})
	if err != nil {
		return err
	}

	return p.publish(ctx, newOrderEvent(ctx, EventTypeOrderStatusChanged, order, data))
}

// PublishPaymentUpdated publishes the outcome of a gateway callback.
func (p *KafkaPublisher) PublishPaymentUpdated(ctx context.Context, order *models.Order) error {
	p.logger.Debug("Publishing payment updated event", logging.Fields{
		"order_id": order.ID,
		"is_paid":  order.IsPaid,
	})

	data, err := json.Marshal(paymentUpdatedPayload{
		Order:         order,
		IsPaid:        order.IsPaid,
		PaymentResult: order.PaymentResult,
	})
	if err != nil {
		return err
	}

	return p.publish(ctx, newOrderEvent(ctx, EventTypeOrderPaymentUpdated, order, data))
}

func newOrderEvent(ctx context.Context, eventType EventType, order *models.Order, data []byte) *OrderEvent {
	return &OrderEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Data:          data,
		Metadata:      map[string]string{"status": string(order.Status)},
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.RequestIDFrom(ctx),
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, event *OrderEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event", logging.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"order_id":   event.OrderID,
			"error":      err.Error(),
		})
		return err
	}

	p.logger.Info("Event published", logging.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"topic":      p.topic,
	})

	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// MockEventPublisher records events in memory.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []*OrderEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	m.record(EventTypeOrderCreated, order)
	return nil
}

func (m *MockEventPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previousStatus models.OrderStatus) error {
	m.record(EventTypeOrderStatusChanged, order)
	return nil
}

func (m *MockEventPublisher) PublishPaymentUpdated(ctx context.Context, order *models.Order) error {
	m.record(EventTypeOrderPaymentUpdated, order)
	return nil
}

func (m *MockEventPublisher) record(eventType EventType, order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, &OrderEvent{
		Type:    eventType,
		OrderID: order.ID,
		UserID:  order.UserID,
	})
}

// Events returns a snapshot of the recorded events.
func (m *MockEventPublisher) Events() []*OrderEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*OrderEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (m *MockEventPublisher) Count(eventType EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
