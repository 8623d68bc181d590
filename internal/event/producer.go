package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	pkgkafka "github.com/sinaabedii/arian-etc-sub001/pkg/kafka"
	"github.com/sinaabedii/arian-etc-sub001/pkg/logger"
)

// Resources named in topics and event envelopes.
const (
	ResourceCart     = "cart"
	ResourceWishlist = "wishlist"
)

// Topics for sync events.
var (
	TopicCartRolledBack     = pkgkafka.Topic(ResourceCart, "rolled_back")
	TopicCartReconciled     = pkgkafka.Topic(ResourceCart, "reconciled")
	TopicWishlistReconciled = pkgkafka.Topic(ResourceWishlist, "reconciled")
)

// SourceStorefrontSync identifies events originating from this service.
const SourceStorefrontSync = "storefront-sync"

// CartRolledBackData is the payload for a cart.rolled_back event.
type CartRolledBackData struct {
	Operation string `json:"operation"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
	ItemCount int    `json:"item_count"`
}

// CartReconciledData is the payload for a cart.reconciled event.
type CartReconciledData struct {
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Total     float64        `json:"total"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	ProductID  string  `json:"product_id"`
	CartItemID *int64  `json:"cart_item_id,omitempty"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// WishlistReconciledData is the payload for a wishlist.reconciled event.
type WishlistReconciledData struct {
	ProductIDs []int64 `json:"product_ids"`
	Count      int     `json:"count"`
}

// Producer publishes sync events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new sync event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartRolledBack reports that an optimistic cart change was undone.
func (p *Producer) PublishCartRolledBack(ctx context.Context, sessionID string, data CartRolledBackData) error {
	return p.publish(ctx, TopicCartRolledBack, sessionID, ResourceCart, data)
}

// PublishCartReconciled reports the cart loaded from the backend.
func (p *Producer) PublishCartReconciled(ctx context.Context, sessionID string, state domain.CartState) error {
	items := make([]CartItemData, len(state.Items))
	for i, item := range state.Items {
		items[i] = CartItemData{
			ProductID:  item.ID,
			CartItemID: item.CartItemID,
			Quantity:   item.Quantity,
			Price:      item.Price,
		}
	}
	data := CartReconciledData{
		Items:     items,
		ItemCount: state.ItemCount,
		Total:     state.Total,
	}
	return p.publish(ctx, TopicCartReconciled, sessionID, ResourceCart, data)
}

// PublishWishlistReconciled reports the wishlist loaded from the backend.
func (p *Producer) PublishWishlistReconciled(ctx context.Context, sessionID string, state domain.WishlistState) error {
	ids := make([]int64, len(state.Items))
	for i, item := range state.Items {
		ids[i] = item.ProductID
	}
	data := WishlistReconciledData{ProductIDs: ids, Count: len(ids)}
	return p.publish(ctx, TopicWishlistReconciled, sessionID, ResourceWishlist, data)
}

func (p *Producer) publish(ctx context.Context, topic, sessionID, resource string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, sessionID, resource, SourceStorefrontSync, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published sync event",
		slog.String("topic", topic),
		slog.String("session_id", sessionID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.kafka.Close()
}
