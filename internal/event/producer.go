package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for storefront domain events.
var (
	TopicCartUpdated       = pkgkafka.Topic("cart", "updated")
	TopicCartCleared       = pkgkafka.Topic("cart", "cleared")
	TopicPurchaseFinalized = pkgkafka.Topic("purchase", "finalized")
)

// Aggregate types.
const (
	AggregateTypeCart     = "cart"
	AggregateTypePurchase = "purchase"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront-bff"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	Identity    string            `json:"identity"`
	Items       []domain.LineItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	Identity string `json:"identity"`
}

// PurchaseFinalizedData is the payload for a purchase.finalized event.
type PurchaseFinalizedData struct {
	Identity   string   `json:"identity"`
	Method     string   `json:"method"`
	Reference  string   `json:"reference,omitempty"`
	ProductIDs []string `json:"product_ids"`
	Cleared    bool     `json:"cleared"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, id domain.Identity, items []domain.LineItem) error {
	data := CartUpdatedData{
		Identity:    string(id),
		Items:       items,
		ItemCount:   domain.ItemCount(items),
		TotalAmount: domain.TotalAmount(items),
	}
	if err := p.publish(ctx, TopicCartUpdated, string(id), AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("identity", string(id)),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, id domain.Identity) error {
	if err := p.publish(ctx, TopicCartCleared, string(id), AggregateTypeCart, CartClearedData{Identity: string(id)}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event", slog.String("identity", string(id)))
	return nil
}

// PublishPurchaseFinalized publishes a purchase.finalized event.
func (p *Producer) PublishPurchaseFinalized(ctx context.Context, data PurchaseFinalizedData) error {
	if data.ProductIDs == nil {
		data.ProductIDs = []string{}
	}
	if err := p.publish(ctx, TopicPurchaseFinalized, data.Identity, AggregateTypePurchase, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published purchase.finalized event",
		slog.String("identity", data.Identity),
		slog.String("method", data.Method),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithCorrelationID(logger.CorrelationIDFromContext(ctx)).
		WithMetadata("session_id", logger.SessionIDFromContext(ctx))

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
