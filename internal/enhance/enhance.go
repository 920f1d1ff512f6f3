package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/maltedev/product-scraper/internal/models"
)

// TextGenerator produces completion text for a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Enhancer rewrites a scraped product's marketing fields with generated
// copy. Enhancement is strictly best-effort: any failure leaves the product
// exactly as extracted.
type Enhancer struct {
	generator TextGenerator
	timeout   time.Duration
	logger    *slog.Logger
}

func NewEnhancer(generator TextGenerator, timeout time.Duration, logger *slog.Logger) *Enhancer {
	return &Enhancer{
		generator: generator,
		timeout:   timeout,
		logger:    logger.With("component", "enhance"),
	}
}

// enhancedFields is the JSON shape the generator is prompted to return.
type enhancedFields struct {
	Description    string   `json:"description"`
	SEOTitle       string   `json:"seo_title"`
	SEODescription string   `json:"seo_description"`
	Keywords       []string `json:"keywords"`
}

// Enhance returns the product with a rewritten description and generated SEO
// fields. On any failure the input product is returned unchanged.
func (e *Enhancer) Enhance(ctx context.Context, product *models.ScrapedProduct) *models.ScrapedProduct {
	if e == nil || e.generator == nil || product == nil {
		return product
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildPrompt(product)
	raw, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("enhancement failed, keeping original product", "url", product.SourceURL, "error", err)
		return product
	}

	fields, err := parseFields(raw)
	if err != nil {
		e.logger.Warn("enhancement returned unusable output, keeping original product", "url", product.SourceURL, "error", err)
		return product
	}

	enhanced := *product
	if fields.Description != "" {
		enhanced.Description = fields.Description
	}
	enhanced.SEOTitle = fields.SEOTitle
	enhanced.SEODescription = fields.SEODescription
	enhanced.Keywords = fields.Keywords
	return &enhanced
}

func buildPrompt(product *models.ScrapedProduct) string {
	var b strings.Builder
	b.WriteString("Rewrite the description of this e-commerce product as polished marketing copy and derive SEO fields. ")
	b.WriteString("Respond with only a JSON object with keys description, seo_title, seo_description, keywords.\n")
	fmt.Fprintf(&b, "Title: %s\n", product.Title)
	if product.Description != "" {
		desc := product.Description
		if len(desc) > 500 {
			desc = desc[:500]
		}
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	if product.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", product.Brand)
	}
	if product.Price != nil {
		fmt.Fprintf(&b, "Price: %.2f %s\n", *product.Price, product.Currency)
	}
	return b.String()
}

func parseFields(raw string) (enhancedFields, error) {
	// Generators wrap JSON in fences or prose; take the outermost object.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return enhancedFields{}, fmt.Errorf("no JSON object in output")
	}

	var fields enhancedFields
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return enhancedFields{}, fmt.Errorf("failed to parse output: %w", err)
	}
	if fields.Description == "" && fields.SEOTitle == "" && fields.SEODescription == "" && len(fields.Keywords) == 0 {
		return enhancedFields{}, fmt.Errorf("output contained no usable fields")
	}
	return fields, nil
}

// OpenAIClient is a TextGenerator backed by an OpenAI-compatible chat
// completion endpoint.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("completion returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
