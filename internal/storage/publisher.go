package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/redis/go-redis/v9"
)

const EventProductScraped = "PRODUCT_SCRAPED"

// RedisClient is the subset of the Redis API the publisher uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// StreamPublisher emits an event on a Redis stream for every product that
// survives the pipeline, so downstream consumers pick it up without polling
// the database.
type StreamPublisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

func NewStreamPublisher(client RedisClient, stream string, logger *slog.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "publisher"),
	}
}

// Save publishes a PRODUCT_SCRAPED event carrying the full product payload.
func (p *StreamPublisher) Save(ctx context.Context, product *models.ScrapedProduct) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	eventID := uuid.New().String()
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"id":              eventID,
			"event_type":      EventProductScraped,
			"source_url":      product.SourceURL,
			"source_platform": product.SourcePlatform,
			"timestamp":       fmt.Sprintf("%d", time.Now().UnixNano()),
			"data":            string(payload),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_id", eventID,
		"event_type", EventProductScraped,
		"stream", p.stream,
		"source_url", product.SourceURL)
	return nil
}

func (p *StreamPublisher) Close() error {
	return p.client.Close()
}
