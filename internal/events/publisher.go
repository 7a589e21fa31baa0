package events

import (
	"context"
	"encoding/json"
	"time"

	"devmarket/internal/domain"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderEvent announces a committed status change.
type OrderEvent struct {
	OrderID   uuid.UUID               `json:"order_id"`
	PayerID   uuid.UUID               `json:"payer_id"`
	ProjectID uuid.UUID               `json:"project_id"`
	Amount    string                  `json:"amount"`
	Status    domain.OrderStatus      `json:"status"`
	Source    domain.TransitionSource `json:"source"`
	Reference string                  `json:"reference,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

func NewOrderEvent(o *domain.Order, source domain.TransitionSource, reference string) OrderEvent {
	return OrderEvent{
		OrderID:   o.ID,
		PayerID:   o.PayerID,
		ProjectID: o.ProjectID,
		Amount:    o.Amount.StringFixed(2),
		Status:    o.Status,
		Source:    source,
		Reference: reference,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher is best effort: the database row is the source of truth, so a
// failed publish is logged and never undoes a transition.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent)
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) Publisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}, logger)
}

func newKafkaPublisher(w messageWriter, logger *zap.Logger) *kafkaPublisher {
	return &kafkaPublisher{writer: w, logger: logger}
}

func (p *kafkaPublisher) Publish(ctx context.Context, ev OrderEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to encode order event", zap.String("order_id", ev.OrderID.String()), zap.Error(err))
		return
	}

	// keyed by order so a consumer sees one order's events in order
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID.String()),
		Value: payload,
	}); err != nil {
		p.logger.Error("Failed to publish order event to Kafka",
			zap.String("order_id", ev.OrderID.String()),
			zap.String("status", string(ev.Status)),
			zap.Error(err),
		)
	}
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

type nopPublisher struct{}

// Nop discards events; used when no broker is configured.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, OrderEvent) {}
func (nopPublisher) Close() error                      { return nil }
