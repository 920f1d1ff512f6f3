package platform

import (
	"net/url"
	"strings"
)

// ID identifies the platform-specific extraction rule set for a URL.
type ID string

const (
	Amazon     ID = "amazon"
	EBay       ID = "ebay"
	AliExpress ID = "aliexpress"
	Etsy       ID = "etsy"
	Walmart    ID = "walmart"
	Shopify    ID = "shopify"
	Generic    ID = "generic"
)

// detectionOrder is evaluated top to bottom; the first hostname substring
// match wins, so more specific entries must precede broader ones.
var detectionOrder = []struct {
	substr string
	id     ID
}{
	{"amazon.", Amazon},
	{"ebay.", EBay},
	{"aliexpress.", AliExpress},
	{"etsy.", Etsy},
	{"walmart.", Walmart},
	{"myshopify.", Shopify},
}

// Detect maps a URL to a platform identifier. Deterministic and total: the
// same URL always yields the same platform, and unknown hosts yield Generic.
func Detect(rawURL string) ID {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Generic
	}

	host := strings.ToLower(u.Hostname())
	for _, entry := range detectionOrder {
		if strings.Contains(host, entry.substr) {
			return entry.id
		}
	}
	return Generic
}
