package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Platform tags the handler that produced a result.
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
	PlatformAmazon      Platform = "amazon"
	PlatformEbay        Platform = "ebay"
	PlatformGeneric     Platform = "generic"
	PlatformUnknown     Platform = "unknown"
)

// ParsePlatform maps a tag (case-insensitive) to a Platform.
// "custom" is accepted as the legacy name for the generic handler.
func ParsePlatform(s string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shopify":
		return PlatformShopify, true
	case "woocommerce":
		return PlatformWooCommerce, true
	case "amazon":
		return PlatformAmazon, true
	case "ebay":
		return PlatformEbay, true
	case "generic", "custom":
		return PlatformGeneric, true
	}
	return PlatformUnknown, false
}

const DefaultCurrency = "USD"

type DiscoveredProduct struct {
	Name        string           `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency"`
	ImageURL    string           `json:"image_url,omitempty"`
	URL         string           `json:"product_url"`
	Platform    Platform         `json:"platform"`
	VariantID   string           `json:"variant_id,omitempty"`
	SKU         string           `json:"sku,omitempty"`
	InStock     bool             `json:"in_stock"`
	ProductType string           `json:"product_type,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Description string           `json:"description,omitempty"`
	Extras      map[string]any   `json:"raw_data,omitempty"`
}

// NewProduct returns a product with the model defaults applied.
func NewProduct(platform Platform, name, productURL string) DiscoveredProduct {
	return DiscoveredProduct{
		Name:     name,
		URL:      productURL,
		Platform: platform,
		Currency: DefaultCurrency,
		InStock:  true,
	}
}

// SetPrice stores a copy of d. Negative amounts are treated as undeterminable.
func (p *DiscoveredProduct) SetPrice(d decimal.Decimal) {
	if d.IsNegative() {
		p.Price = nil
		return
	}
	p.Price = &d
}

// SearchText is the text the keyword filter matches against.
func (p DiscoveredProduct) SearchText() string {
	parts := make([]string, 0, 3+len(p.Tags))
	parts = append(parts, p.Name, p.ProductType)
	parts = append(parts, p.Tags...)
	parts = append(parts, p.Description)
	return strings.Join(parts, " ")
}

// Key is the identity of a product across repeated discovery of one store.
func (p DiscoveredProduct) Key() string {
	return string(p.Platform) + "|" + p.URL
}

type DiscoveryResult struct {
	Platform   Platform            `json:"platform"`
	StoreURL   string              `json:"store_url"`
	TotalFound int                 `json:"total_found"`
	Products   []DiscoveredProduct `json:"products"`
	Error      string              `json:"error,omitempty"`
}

type ExtractionStatus string

const (
	StatusSuccess ExtractionStatus = "success"
	StatusFailed  ExtractionStatus = "failed"
)

// ExtractionResult is one extraction attempt for one competitor. Values are
// never mutated after construction.
type ExtractionResult struct {
	ID           string           `json:"id"`
	CompetitorID string           `json:"competitor_id"`
	URL          string           `json:"url"`
	Platform     Platform         `json:"platform,omitempty"`
	Price        *decimal.Decimal `json:"price"`
	Currency     string           `json:"currency"`
	Status       ExtractionStatus `json:"status"`
	Error        string           `json:"error_message,omitempty"`
	Attempts     int              `json:"attempts"`
	Cached       bool             `json:"cached,omitempty"`
	ScrapedAt    time.Time        `json:"scraped_at"`
}

// NewSuccess builds a success result.
func NewSuccess(competitorID, rawURL string, platform Platform, price decimal.Decimal, currency string, attempts int, at time.Time) ExtractionResult {
	if currency == "" {
		currency = DefaultCurrency
	}
	return ExtractionResult{
		ID:           uuid.NewString(),
		CompetitorID: competitorID,
		URL:          rawURL,
		Platform:     platform,
		Price:        &price,
		Currency:     currency,
		Status:       StatusSuccess,
		Attempts:     attempts,
		ScrapedAt:    at.UTC(),
	}
}

// NewFailure builds a failed result; msg is truncated to 200 characters.
func NewFailure(competitorID, rawURL string, platform Platform, msg string, attempts int, at time.Time) ExtractionResult {
	if r := []rune(msg); len(r) > 200 {
		msg = string(r[:200])
	}
	return ExtractionResult{
		ID:           uuid.NewString(),
		CompetitorID: competitorID,
		URL:          rawURL,
		Platform:     platform,
		Currency:     DefaultCurrency,
		Status:       StatusFailed,
		Error:        msg,
		Attempts:     attempts,
		ScrapedAt:    at.UTC(),
	}
}

// AsCached returns a copy flagged as served from the period cache.
func (r ExtractionResult) AsCached() ExtractionResult {
	r.Cached = true
	return r
}
