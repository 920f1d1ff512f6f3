package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-scraper/internal/models"
	"github.com/maltedev/product-scraper/internal/platform"
)

const maxImages = 10

var (
	priceTokenRe  = regexp.MustCompile(`(?:[$€£¥₹]|USD|EUR|GBP|JPY)\s*\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?|\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?\s*(?:[$€£¥₹]|USD|EUR|GBP)`)
	ratingRe      = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(?:out of|of|von|/)\s*5`)
	bareNumberRe  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	reviewCountRe = regexp.MustCompile(`([\d.,]+)`)
	imageURLRe    = regexp.MustCompile(`https?://[^\s"'<>\\]+\.(?:jpe?g|png|webp|gif)(?:\?[^\s"'<>\\]*)?`)
)

// currencySymbols maps detected symbols/codes to ISO currency codes.
var currencySymbols = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "₹": "INR",
	"USD": "USD", "EUR": "EUR", "GBP": "GBP", "JPY": "JPY",
}

// Extract runs the platform's rule table over rendered page content and
// returns a raw candidate product. Missing fields are never an error; only a
// title that stays empty after the generic fallback marks the extraction as
// unusable (the caller checks Title).
func Extract(html string, id platform.ID, sourceURL string) (*models.ScrapedProduct, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	product := models.NewProduct(sourceURL, string(id))

	rules := RulesFor(id)
	applyRules(doc, html, rules, product)

	// Platform tables that miss the title fall back to the generic table,
	// then to the page title itself.
	if product.Title == "" {
		applyRules(doc, html, genericRules, product)
	}
	if product.Title == "" {
		product.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if product.Title == "" {
		product.Title = "Unknown Product"
	}

	return product, nil
}

func applyRules(doc *goquery.Document, html string, rules RuleSet, product *models.ScrapedProduct) {
	if product.Title == "" {
		product.Title = firstText(doc, rules.TitleSelectors)
	}
	if product.Description == "" {
		product.Description = firstText(doc, rules.DescriptionSelectors)
	}
	if product.Brand == "" {
		product.Brand = strings.TrimPrefix(firstText(doc, rules.BrandSelectors), "Brand: ")
	}
	if product.Availability == "" {
		product.Availability = firstText(doc, rules.AvailabilitySelectors)
	}

	if product.Price == nil {
		priceText := collectText(doc, rules.PriceSelectors)
		originalText := collectText(doc, rules.OriginalPriceSelectors)
		price, original, currency := ParsePrices(priceText + " " + originalText)
		product.Price = price
		product.OriginalPrice = original
		if product.Currency == "" {
			product.Currency = currency
		}
	}

	if product.Rating == nil {
		if rating, ok := ParseRating(collectText(doc, rules.RatingSelectors)); ok {
			product.Rating = &rating
		}
	}
	if product.ReviewCount == nil {
		if count, ok := parseReviewCount(firstText(doc, rules.ReviewCountSelectors)); ok {
			product.ReviewCount = &count
		}
	}

	if len(product.Images) == 0 {
		product.Images = collectImages(doc, html, rules)
	}

	if len(product.Specifications) == 0 {
		collectSpecs(doc, rules.SpecTableSelectors, product.Specifications)
	}
}

// firstText returns the first non-empty text (or content attribute for meta
// tags) among the selectors, in table order.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if content, ok := node.Attr("content"); ok && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content)
		}
		if value, ok := node.Attr("value"); ok && node.Is("input") && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

// collectText concatenates matched text for all selectors so the price parser
// can see both a current and a struck-through price at once.
func collectText(doc *goquery.Document, selectors []string) string {
	var b strings.Builder
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if content, ok := s.Attr("content"); ok {
				b.WriteString(content)
				b.WriteString(" ")
				return
			}
			b.WriteString(strings.TrimSpace(s.Text()))
			b.WriteString(" ")
		})
	}
	return b.String()
}

// ParsePrices scans text for currency-looking substrings. When several price
// values match, the lowest is treated as the current price and the highest as
// the original (struck-through) price. With a single match only the current
// price is set.
func ParsePrices(text string) (price, original *float64, currency string) {
	matches := priceTokenRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil, nil, ""
	}

	seen := make(map[float64]bool)
	var values []float64
	for _, m := range matches {
		for symbol, code := range currencySymbols {
			if strings.Contains(m, symbol) {
				currency = code
				break
			}
		}
		v, ok := parsePriceValue(m)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil, currency
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	price = &lo
	if hi > lo {
		original = &hi
	}
	return price, original, currency
}

// parsePriceValue strips currency symbols and thousands separators from one
// matched token and parses the remainder as a float.
func parsePriceValue(token string) (float64, bool) {
	raw := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			return r
		}
		return -1
	}, token)
	if raw == "" {
		return 0, false
	}

	// Decide which separator is decimal: the last one, when followed by at
	// most two digits.
	lastComma := strings.LastIndex(raw, ",")
	lastDot := strings.LastIndex(raw, ".")
	sep := lastDot
	if lastComma > lastDot {
		sep = lastComma
	}

	var cleaned string
	if sep >= 0 && len(raw)-sep-1 <= 2 {
		intPart := strings.Map(dropSeparators, raw[:sep])
		cleaned = intPart + "." + raw[sep+1:]
	} else {
		cleaned = strings.Map(dropSeparators, raw)
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func dropSeparators(r rune) rune {
	if r == ',' || r == '.' {
		return -1
	}
	return r
}

// ParseRating extracts the first "<n> out of 5" style token. Absent token
// means the field is omitted, never defaulted.
func ParseRating(text string) (float64, bool) {
	if m := ratingRe.FindStringSubmatch(text); len(m) >= 2 {
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && v >= 0 && v <= 5 {
			return v, true
		}
	}
	// Bare numeric rating nodes like <span itemprop="ratingValue">4.5</span>.
	trimmed := strings.TrimSpace(text)
	if bareNumberRe.MatchString(trimmed) && len(trimmed) <= 4 {
		v, err := strconv.ParseFloat(strings.Replace(trimmed, ",", ".", 1), 64)
		if err == nil && v >= 0 && v <= 5 {
			return v, true
		}
	}
	return 0, false
}

func parseReviewCount(text string) (int, bool) {
	m := reviewCountRe.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.NewReplacer(",", "", ".", "").Replace(m)
	v, err := strconv.Atoi(m)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// collectImages gathers image URLs from selector hits and, when the platform
// declares CDN host patterns, from raw markup. Tracking pixels, data URIs and
// detectable thumbnails are excluded; order is first-seen and the list is
// capped.
func collectImages(doc *goquery.Document, html string, rules RuleSet) []string {
	var candidates []string

	for _, sel := range rules.ImageSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"content", "src", "data-src", "data-old-hires"} {
				if v, ok := s.Attr(attr); ok && v != "" {
					candidates = append(candidates, v)
					break
				}
			}
		})
	}

	if len(rules.ImageHostPatterns) > 0 {
		for _, m := range imageURLRe.FindAllString(html, -1) {
			for _, host := range rules.ImageHostPatterns {
				if strings.Contains(m, host) {
					candidates = append(candidates, m)
					break
				}
			}
		}
	}

	return SanitizeImages(candidates)
}

// SanitizeImages drops empty entries, data URIs, non-HTTP URLs and known
// thumbnail variants, deduplicates in first-seen order and caps the list.
// Image lists from any origin, scraped or provider-supplied, go through it.
func SanitizeImages(urls []string) []string {
	seen := make(map[string]bool)
	images := make([]string, 0, maxImages)
	for _, c := range urls {
		c = strings.TrimSpace(c)
		if !keepImage(c) || seen[c] {
			continue
		}
		seen[c] = true
		images = append(images, c)
		if len(images) >= maxImages {
			break
		}
	}
	return images
}

// thumbnailMarkers flag size-suffixed variants and sprite sheets that would
// duplicate the full-resolution image.
var thumbnailMarkers = []string{
	"._SS40_", "._SS64_", "._SX38_", "._SX48_", "._US40_",
	"sprite", "thumb", "_thumbnail", "50x50", "64x64", "s-l64",
	"1x1", "pixel",
}

func keepImage(url string) bool {
	if url == "" || strings.HasPrefix(url, "data:") {
		return false
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	lower := strings.ToLower(url)
	for _, marker := range thumbnailMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return false
		}
	}
	return true
}

func collectSpecs(doc *goquery.Document, selectors []string, specs map[string]string) {
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, row *goquery.Selection) {
			key := strings.TrimSpace(row.Find("th").First().Text())
			value := strings.TrimSpace(row.Find("td").First().Text())
			if key == "" {
				cells := row.Find("td")
				if cells.Length() >= 2 {
					key = strings.TrimSpace(cells.Eq(0).Text())
					value = strings.TrimSpace(cells.Eq(1).Text())
				}
			}
			if key != "" && value != "" {
				if _, exists := specs[key]; !exists {
					specs[key] = value
				}
			}
		})
		if len(specs) > 0 {
			return
		}
	}
}
