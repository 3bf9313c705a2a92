package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	pkgkafka "github.com/Ariya-Dice/tansoo/pkg/kafka"
	"github.com/Ariya-Dice/tansoo/pkg/logger"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartUpdated    = "tansoo.cart.updated"
	TopicCartCleared    = "tansoo.cart.cleared"
	TopicCartCheckedOut = "tansoo.cart.checked_out"
)

const (
	AggregateTypeCart = "cart"
	SourceCartService = "cart-service"
)

// Reasons carried by cart.cleared.
const (
	ClearedByShopper  = "shopper"
	ClearedByCheckout = "checkout"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string         `json:"session_id"`
	Items     []CartItemData `json:"items"`
	Count     int            `json:"count"`
	Total     int64          `json:"total"`
}

// CartItemData is the line payload within cart events.
type CartItemData struct {
	ProductID string `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// CartCheckedOutData is the payload for a cart.checked_out event.
type CartCheckedOutData struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
	Count     int    `json:"count"`
	Total     int64  `json:"total"`
}

// Publisher emits cart domain events.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, sessionID string, snap domain.Snapshot) error
	PublishCartCleared(ctx context.Context, sessionID, reason string) error
	PublishCartCheckedOut(ctx context.Context, sessionID, orderID string, snap domain.Snapshot) error
}

// Producer publishes cart events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID string, snap domain.Snapshot) error {
	items := make([]CartItemData, len(snap.Items))
	for i, l := range snap.Items {
		items[i] = CartItemData{
			ProductID: l.Product.ID.String(),
			Variant:   l.Variant,
			Name:      l.Product.Name,
			Price:     l.Product.Price,
			Quantity:  l.Quantity,
		}
	}

	data := CartUpdatedData{
		SessionID: sessionID,
		Items:     items,
		Count:     snap.Count,
		Total:     snap.Total,
	}
	if err := p.publish(ctx, TopicCartUpdated, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("session_id", sessionID),
		slog.Int("count", snap.Count),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID, reason string) error {
	return p.publish(ctx, TopicCartCleared, sessionID, CartClearedData{SessionID: sessionID, Reason: reason},
		pkgkafka.WithMetadata("reason", reason),
	)
}

// PublishCartCheckedOut publishes a cart.checked_out event.
func (p *Producer) PublishCartCheckedOut(ctx context.Context, sessionID, orderID string, snap domain.Snapshot) error {
	return p.publish(ctx, TopicCartCheckedOut, sessionID, CartCheckedOutData{
		SessionID: sessionID,
		OrderID:   orderID,
		Count:     snap.Count,
		Total:     snap.Total,
	}, pkgkafka.WithMetadata("order_id", orderID))
}

// publish tags every event with the session id and the request's
// correlation id.
func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any, opts ...pkgkafka.Option) error {
	opts = append(opts,
		pkgkafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		pkgkafka.WithMetadata("session_id", sessionID),
	)
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeCart, SourceCartService, data, opts...)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Noop discards every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishCartUpdated(context.Context, string, domain.Snapshot) error { return nil }

func (Noop) PublishCartCleared(context.Context, string, string) error { return nil }

func (Noop) PublishCartCheckedOut(context.Context, string, string, domain.Snapshot) error {
	return nil
}
