package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/middleware"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// EventType represents the type of order event.
type EventType string

const (
	EventTypeOrderCreated        EventType = "order.created"
	EventTypeOrderPaymentUpdated EventType = "order.payment_updated"
	EventTypeOrderStatusChanged  EventType = "order.status_changed"
)

// OrderEvent represents an order-related event.
type OrderEvent struct {
	ID            string            `json:"id"`
	Type          EventType         `json:"type"`
	OrderID       string            `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Publisher emits order lifecycle events.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, order *models.Order) error
	PublishPaymentUpdated(ctx context.Context, order *models.Order, previous models.PaymentStatus, source string) error
	PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes order events to Kafka.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *logging.LoggerV2
	now    func() time.Time
}

// NewKafkaPublisher creates a new Kafka-based event publisher.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logging.LoggerV2) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return newKafkaPublisher(writer, cfg.OrdersTopic, logger)
}

func newKafkaPublisher(w messageWriter, topic string, logger *logging.LoggerV2) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: logger,
		now:    time.Now,
	}
}

// PublishOrderCreated publishes an order created event.
func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	event := p.createEvent(ctx, EventTypeOrderCreated, order, data)
	return p.publish(ctx, event)
}

// PublishPaymentUpdated publishes a reconciled payment transition.
func (p *KafkaPublisher) PublishPaymentUpdated(ctx context.Context, order *models.Order, previous models.PaymentStatus, source string) error {
	payload := struct {
		PreviousPaymentStatus models.PaymentStatus `json:"previous_payment_status"`
		PaymentStatus         models.PaymentStatus `json:"payment_status"`
		Status                models.OrderStatus   `json:"status"`
		TransactionID         string               `json:"transaction_id,omitempty"`
		TotalAmount           string               `json:"total_amount"`
		Currency              string               `json:"currency"`
	}{
		PreviousPaymentStatus: previous,
		PaymentStatus:         order.PaymentStatus,
		Status:                order.Status,
		TransactionID:         order.TransactionID,
		TotalAmount:           order.TotalAmount.StringFixed(2),
		Currency:              order.Currency,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := p.createEvent(ctx, EventTypeOrderPaymentUpdated, order, data)
	event.Metadata["source"] = source
	return p.publish(ctx, event)
}

// PublishOrderStatusChanged publishes an order status change event.
func (p *KafkaPublisher) PublishOrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	payload := struct {
		PreviousStatus models.OrderStatus `json:"previous_status"`
		NewStatus      models.OrderStatus `json:"new_status"`
	}{
		PreviousStatus: previous,
		NewStatus:      order.Status,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := p.createEvent(ctx, EventTypeOrderStatusChanged, order, data)
	return p.publish(ctx, event)
}

func (p *KafkaPublisher) createEvent(ctx context.Context, eventType EventType, order *models.Order, data []byte) *OrderEvent {
	return &OrderEvent{
		ID:            "evt_" + uuid.NewString(),
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Data:          data,
		Metadata:      make(map[string]string),
		Timestamp:     p.now().UTC(),
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
	})
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaPublisher) Close() error {
	p.logger.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// NopPublisher drops every event. Used when order events are disabled.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) PublishOrderCreated(context.Context, *models.Order) error { return nil }

func (NopPublisher) PublishPaymentUpdated(context.Context, *models.Order, models.PaymentStatus, string) error {
	return nil
}

func (NopPublisher) PublishOrderStatusChanged(context.Context, *models.Order, models.OrderStatus) error {
	return nil
}

func (NopPublisher) Close() error { return nil }
