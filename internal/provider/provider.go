package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maltedev/product-scraper/internal/extract"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/platform"
)

// Source fetches structured product data without opening a browser session.
// Supports reports whether the source covers a platform; Fetch is only called
// for supported platforms.
type Source interface {
	Supports(id platform.ID) bool
	Fetch(ctx context.Context, rawURL string, id platform.ID) (*models.ScrapedProduct, error)
}

// StatusError carries the HTTP status of a failed provider response.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.Code)
}

// Client talks to a structured-data product API over HTTP.
type Client struct {
	apiKey    string
	baseURL   string
	platforms map[platform.ID]bool
	http      *http.Client
	logger    *slog.Logger
}

// NewClient builds a provider client. platforms lists the platform ids the
// configured API covers; an empty list means the provider is disabled.
func NewClient(apiKey, baseURL string, platforms []string, timeout time.Duration, logger *slog.Logger) *Client {
	supported := make(map[platform.ID]bool, len(platforms))
	for _, p := range platforms {
		supported[platform.ID(p)] = true
	}
	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		platforms: supported,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With("component", "provider"),
	}
}

func (c *Client) Supports(id platform.ID) bool {
	return c.apiKey != "" && c.baseURL != "" && c.platforms[id]
}

// providerResponse is the wire shape of a provider product payload.
type providerResponse struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Price         *float64          `json:"price"`
	OriginalPrice *float64          `json:"original_price"`
	Currency      string            `json:"currency"`
	Availability  string            `json:"availability"`
	Images        []string          `json:"images"`
	Brand         string            `json:"brand"`
	Rating        *float64          `json:"rating"`
	ReviewCount   *int              `json:"review_count"`
	Specs         map[string]string `json:"specifications"`
}

// Fetch asks the provider API for the product behind rawURL. Non-2xx
// responses and malformed payloads are errors; the caller falls back to a
// browser session.
func (c *Client) Fetch(ctx context.Context, rawURL string, id platform.ID) (*models.ScrapedProduct, error) {
	endpoint := fmt.Sprintf("%s/v1/products?url=%s&platform=%s",
		c.baseURL, url.QueryEscape(rawURL), url.QueryEscape(string(id)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, StatusError{Code: resp.StatusCode}
	}

	var payload providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if payload.Title == "" {
		return nil, fmt.Errorf("provider response missing title")
	}

	product := models.NewProduct(rawURL, string(id))
	product.Title = payload.Title
	product.Description = payload.Description
	product.Price = payload.Price
	product.OriginalPrice = payload.OriginalPrice
	product.Currency = payload.Currency
	product.Availability = payload.Availability
	product.Images = extract.SanitizeImages(payload.Images)
	product.Brand = payload.Brand
	product.Rating = payload.Rating
	product.ReviewCount = payload.ReviewCount
	for k, v := range payload.Specs {
		product.Specifications[k] = v
	}

	c.logger.Debug("provider hit", "platform", id, "url", rawURL)
	return product, nil
}
