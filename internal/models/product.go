package models

import (
	"time"
)

// ScrapedProduct is the normalized product record produced by the
// acquisition pipeline, regardless of which stage produced it.
type ScrapedProduct struct {
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Price          *float64          `json:"price,omitempty"`
	OriginalPrice  *float64          `json:"original_price,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Availability   string            `json:"availability,omitempty"`
	Images         []string          `json:"images,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	Rating         *float64          `json:"rating,omitempty"`
	ReviewCount    *int              `json:"review_count,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Variants       []ProductVariant  `json:"variants,omitempty"`
	SourceURL      string            `json:"source_url"`
	SourcePlatform string            `json:"source_platform"`
	ScrapedAt      time.Time         `json:"scraped_at"`

	// SEO fields populated by the optional enhancement pass.
	SEOTitle       string   `json:"seo_title,omitempty"`
	SEODescription string   `json:"seo_description,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// ProductVariant is one purchasable variation of a product (size, color).
type ProductVariant struct {
	Name  string   `json:"name"`
	Value string   `json:"value"`
	Price *float64 `json:"price,omitempty"`
}

// ResultStatus is the terminal status of a scraping operation.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
)

// ScrapingResult is the terminal, immutable outcome of a single acquire call.
type ScrapingResult struct {
	URL            string          `json:"url"`
	Status         ResultStatus    `json:"status"`
	Product        *ScrapedProduct `json:"product,omitempty"`
	Error          string          `json:"error,omitempty"`
	ScrapedAt      time.Time       `json:"scraped_at"`
	ProcessingTime time.Duration   `json:"processing_time"`
}

func NewProduct(sourceURL, platform string) *ScrapedProduct {
	return &ScrapedProduct{
		SourceURL:      sourceURL,
		SourcePlatform: platform,
		ScrapedAt:      time.Now(),
		Images:         make([]string, 0),
		Specifications: make(map[string]string),
	}
}

// Validate reports invariant violations on a success-path product.
func (p *ScrapedProduct) Validate() []string {
	var errors []string

	if p.Title == "" {
		errors = append(errors, "title is required")
	}

	if p.Price != nil && *p.Price < 0 {
		errors = append(errors, "price must be non-negative")
	}

	if p.Rating != nil && (*p.Rating < 0 || *p.Rating > 5) {
		errors = append(errors, "rating must be between 0 and 5")
	}

	for _, img := range p.Images {
		if len(img) >= 5 && img[:5] == "data:" {
			errors = append(errors, "images must not contain data URIs")
			break
		}
	}

	return errors
}
