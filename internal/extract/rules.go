package extract

import (
	"github.com/maltedev/product-scraper/internal/platform"
)

// RuleSet is the data-driven extraction table for one platform. Selectors are
// tried in order; the first non-empty match wins. Adding a platform is a data
// change here, not a new code branch.
type RuleSet struct {
	TitleSelectors         []string
	DescriptionSelectors   []string
	PriceSelectors         []string
	OriginalPriceSelectors []string
	ImageSelectors         []string
	ImageHostPatterns      []string
	BrandSelectors         []string
	AvailabilitySelectors  []string
	RatingSelectors        []string
	ReviewCountSelectors   []string
	SpecTableSelectors     []string
}

var genericRules = RuleSet{
	TitleSelectors: []string{
		"h1",
		`meta[property="og:title"]`,
		`meta[name="twitter:title"]`,
		"title",
	},
	DescriptionSelectors: []string{
		`meta[property="og:description"]`,
		`meta[name="description"]`,
		"#description",
		".product-description",
		`[itemprop="description"]`,
	},
	PriceSelectors: []string{
		`[itemprop="price"]`,
		".price",
		".product-price",
		`meta[property="product:price:amount"]`,
		`[class*="price"]`,
	},
	ImageSelectors: []string{
		`meta[property="og:image"]`,
		`img[itemprop="image"]`,
		".product-image img",
		"img",
	},
	BrandSelectors: []string{
		`[itemprop="brand"]`,
		`meta[property="product:brand"]`,
		".brand",
	},
	AvailabilitySelectors: []string{
		`[itemprop="availability"]`,
		".availability",
		".stock-status",
	},
	RatingSelectors: []string{
		`[itemprop="ratingValue"]`,
		".rating",
		`[class*="rating"]`,
	},
	ReviewCountSelectors: []string{
		`[itemprop="reviewCount"]`,
		`[class*="review-count"]`,
	},
	SpecTableSelectors: []string{
		"table.specs tr",
		".specifications tr",
	},
}

var platformRules = map[platform.ID]RuleSet{
	platform.Amazon: {
		TitleSelectors: []string{
			"#productTitle",
			"#title",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			"#productDescription",
			"#feature-bullets",
			`meta[name="description"]`,
		},
		PriceSelectors: []string{
			".a-price .a-offscreen",
			"#priceblock_dealprice",
			"#priceblock_ourprice",
			"span.a-price.a-text-price.a-size-medium.apexPriceToPay",
			".a-price-whole",
		},
		OriginalPriceSelectors: []string{
			".a-price.a-text-price .a-offscreen",
			"#listPrice",
			".priceBlockStrikePriceString",
		},
		ImageSelectors: []string{
			"#landingImage",
			"#imgTagWrapperId img",
			"#altImages img",
		},
		ImageHostPatterns: []string{
			"images-na.ssl-images-amazon.com",
			"m.media-amazon.com",
			"images-amazon.com",
		},
		BrandSelectors: []string{
			"#bylineInfo",
			"a#brand",
			`tr.po-brand td.a-span9`,
		},
		AvailabilitySelectors: []string{
			"#availability span",
			"#availability",
		},
		RatingSelectors: []string{
			"span.a-icon-alt",
			"#acrPopover",
		},
		ReviewCountSelectors: []string{
			"#acrCustomerReviewText",
		},
		SpecTableSelectors: []string{
			"#productDetails_techSpec_section_1 tr",
			"#productDetails_detailBullets_sections1 tr",
			"table.prodDetTable tr",
		},
	},
	platform.EBay: {
		TitleSelectors: []string{
			"h1.x-item-title__mainTitle",
			"h1#itemTitle",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			"#viTabs_0_is",
			".x-item-description",
			`meta[name="description"]`,
		},
		PriceSelectors: []string{
			".x-price-primary",
			"#prcIsum",
			"#mm-saleDscPrc",
		},
		OriginalPriceSelectors: []string{
			".x-additional-info__textual-display .ux-textspans--STRIKETHROUGH",
			"#orgPrc",
		},
		ImageSelectors: []string{
			".ux-image-carousel-item img",
			"#icImg",
		},
		ImageHostPatterns: []string{
			"i.ebayimg.com",
			"ebayimg.com",
		},
		BrandSelectors: []string{
			`dl.ux-labels-values--brand dd`,
			`[itemprop="brand"]`,
		},
		AvailabilitySelectors: []string{
			"#qtySubTxt",
			".d-quantity__availability",
		},
		RatingSelectors: []string{
			".ux-summary__star-rating",
			`[itemprop="ratingValue"]`,
		},
		ReviewCountSelectors: []string{
			".ux-summary__count",
		},
	},
	platform.AliExpress: {
		TitleSelectors: []string{
			"h1[data-pl='product-title']",
			".product-title-text",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			`meta[property="og:description"]`,
			"#product-description",
		},
		PriceSelectors: []string{
			".product-price-value",
			"[class*='PriceText']",
			`meta[property="og:price:amount"]`,
		},
		ImageSelectors: []string{
			".images-view-item img",
			`meta[property="og:image"]`,
		},
		ImageHostPatterns: []string{
			"ae01.alicdn.com",
			"alicdn.com",
		},
		AvailabilitySelectors: []string{
			".product-quantity-tip",
		},
		RatingSelectors: []string{
			".overview-rating-average",
		},
		ReviewCountSelectors: []string{
			".product-reviewer-reviews",
		},
	},
	platform.Etsy: {
		TitleSelectors: []string{
			"h1[data-buy-box-listing-title]",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			"#wt-content-toggle-product-details-read-more",
			`meta[property="og:description"]`,
		},
		PriceSelectors: []string{
			"[data-buy-box-region='price'] .wt-text-title-larger",
			`meta[property="og:price:amount"]`,
		},
		ImageSelectors: []string{
			".listing-page-image-carousel img",
			`meta[property="og:image"]`,
		},
		ImageHostPatterns: []string{
			"i.etsystatic.com",
			"etsystatic.com",
		},
		BrandSelectors: []string{
			".shop-name-and-title-container span",
		},
		RatingSelectors: []string{
			"input[name='rating']",
		},
	},
	platform.Walmart: {
		TitleSelectors: []string{
			"h1[itemprop='name']",
			"h1#main-title",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			".about-desc",
			`meta[name="description"]`,
		},
		PriceSelectors: []string{
			"span[itemprop='price']",
			"[data-testid='price-wrap'] span",
		},
		ImageSelectors: []string{
			"img[data-testid='hero-image']",
			`meta[property="og:image"]`,
		},
		ImageHostPatterns: []string{
			"i5.walmartimages.com",
			"walmartimages.com",
		},
		BrandSelectors: []string{
			"a[link-identifier='brandName']",
			`[itemprop="brand"]`,
		},
		AvailabilitySelectors: []string{
			"[data-testid='fulfillment-add-to-cart']",
		},
		RatingSelectors: []string{
			"span.rating-number",
		},
		ReviewCountSelectors: []string{
			"a[data-testid='item-review-section-link']",
		},
	},
	platform.Shopify: {
		TitleSelectors: []string{
			"h1.product-single__title",
			"h1.product__title",
			`meta[property="og:title"]`,
		},
		DescriptionSelectors: []string{
			".product-single__description",
			".product__description",
			`meta[property="og:description"]`,
		},
		PriceSelectors: []string{
			".product__price",
			"span.price-item--regular",
			`meta[property="og:price:amount"]`,
		},
		OriginalPriceSelectors: []string{
			"s.price-item--regular",
			".product__price--compare",
		},
		ImageSelectors: []string{
			".product__media img",
			".product-single__photo img",
			`meta[property="og:image"]`,
		},
		ImageHostPatterns: []string{
			"cdn.shopify.com",
		},
		BrandSelectors: []string{
			".product-single__vendor",
			".product__vendor",
		},
		AvailabilitySelectors: []string{
			".product-form__inventory",
		},
	},
}

// RulesFor returns the extraction table for a platform, defaulting to the
// generic table for unknown platforms.
func RulesFor(id platform.ID) RuleSet {
	if rs, ok := platformRules[id]; ok {
		return rs
	}
	return genericRules
}
