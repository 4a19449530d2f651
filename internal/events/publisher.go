package events

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"price-import-service/internal/models"
)

// Publisher wraps the go-shared events publisher for price-import events
type Publisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewPublisher creates a new price-import events publisher
func NewPublisher(logger *logrus.Logger) (*Publisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		// Default to GKE internal NATS service URL
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "price-import-service"

	publisher, err := events.NewPublisher(config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create events publisher: %w", err)
	}

	// Ensure the products stream exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.EnsureStream(ctx, events.StreamProducts, []string{"product.>"}); err != nil {
		logger.WithError(err).Warn("Failed to ensure products stream (may already exist)")
	}

	return &Publisher{
		publisher: publisher,
		logger:    logger.WithField("component", "price-import-events"),
	}, nil
}

// Close closes the NATS connection
func (p *Publisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}

// PublishPriceChanged publishes a product.price_changed event for one
// committed row
func (p *Publisher) PublishPriceChanged(ctx context.Context, product *models.Product, prevCostCents *int64, newCostCents int64, tenantID string, importID uuid.UUID) error {
	event := events.NewProductEvent("product.price_changed", tenantID)
	event.SourceID = importID.String()
	event.ProductID = product.ID.String()
	event.ProductName = product.Name
	event.SKU = product.SKU
	event.Status = string(product.Status)
	event.ChangeType = "price_changed"
	event.ChangedFields = []string{"cost_price", "price"}
	if prevCostCents != nil {
		event.OldValue = map[string]interface{}{"costCents": *prevCostCents}
	}
	event.NewValue = map[string]interface{}{"costCents": newCostCents}
	return p.publish(ctx, event)
}

// PublishImportCompleted publishes a product.import_completed event with the
// final counters of the pass
func (p *Publisher) PublishImportCompleted(ctx context.Context, imp *models.Import) error {
	event := events.NewProductEvent("product.import_completed", imp.TenantID)
	event.SourceID = imp.ID.String()
	event.ChangeType = "import_completed"
	event.NewValue = map[string]interface{}{
		"importId":    imp.ID.String(),
		"totalRows":   imp.TotalRows,
		"updatedRows": imp.UpdatedRows,
		"skippedRows": imp.SkippedRows,
	}
	return p.publish(ctx, event)
}

// PublishImportFailed publishes a product.import_failed event
func (p *Publisher) PublishImportFailed(ctx context.Context, imp *models.Import, reason string) error {
	event := events.NewProductEvent("product.import_failed", imp.TenantID)
	event.SourceID = imp.ID.String()
	event.ChangeType = "import_failed"
	event.NewValue = map[string]interface{}{
		"importId": imp.ID.String(),
		"reason":   reason,
	}
	return p.publish(ctx, event)
}

// publish is a helper that logs and publishes events asynchronously
func (p *Publisher) publish(ctx context.Context, event *events.ProductEvent) error {
	// Publish asynchronously to not block the import pipeline
	go func() {
		pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.publisher.PublishProduct(pubCtx, event); err != nil {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"tenantID":  event.TenantID,
			}).WithError(err).Error("Failed to publish import event")
		} else {
			p.logger.WithFields(logrus.Fields{
				"eventType": event.EventType,
				"tenantID":  event.TenantID,
			}).Info("Import event published successfully")
		}
	}()

	return nil
}
