package storage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/maltedev/product-scraper/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeRedis) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, args)
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestPublisherEmitsProductEvent(t *testing.T) {
	client := &fakeRedis{}
	p := NewStreamPublisher(client, "stream:scraped_products", testLogger())

	price := 19.99
	product := models.NewProduct("https://example.com/p", "generic")
	product.Title = "Published Product"
	product.Price = &price

	require.NoError(t, p.Save(context.Background(), product))
	require.Len(t, client.args, 1)

	args := client.args[0]
	assert.Equal(t, "stream:scraped_products", args.Stream)

	values, ok := args.Values.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, EventProductScraped, values["event_type"])
	assert.Equal(t, "https://example.com/p", values["source_url"])
	assert.NotEmpty(t, values["id"])

	var decoded models.ScrapedProduct
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &decoded))
	assert.Equal(t, "Published Product", decoded.Title)
	require.NotNil(t, decoded.Price)
	assert.InDelta(t, 19.99, *decoded.Price, 0.001)
}

func TestPublisherSurfacesRedisError(t *testing.T) {
	client := &fakeRedis{err: errors.New("connection refused")}
	p := NewStreamPublisher(client, "stream:scraped_products", testLogger())

	product := models.NewProduct("https://example.com/p", "generic")
	product.Title = "X"

	err := p.Save(context.Background(), product)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
