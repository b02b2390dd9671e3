package platform

import (
	"context"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
)

// DefaultMaxFetch caps fetch-all-then-filter catalogs.
const DefaultMaxFetch = 500

type FetchOptions struct {
	Keyword string
	Limit   int
	// MaxFetch caps how many products are pulled before filtering.
	MaxFetch int
}

// Handler is a stateless strategy for one storefront family.
//
// Detect must be side-effect free and must not block past ctx. Fetch applies
// the keyword filter (or the platform's own search) before truncating to
// Limit. ExtractPrice reads the current price from a single product page.
type Handler interface {
	Platform() models.Platform
	Detect(ctx context.Context, storeURL string) (bool, error)
	Fetch(ctx context.Context, storeURL string, opts FetchOptions) ([]models.DiscoveredProduct, error)
	ExtractPrice(ctx context.Context, productURL string) (pricing.Amount, error)
}

// ProductOwner is implemented by handlers that recognize their own product
// pages from the URL alone. Marketplace detection rejects product pages, so
// extraction asks owners first.
type ProductOwner interface {
	OwnsProduct(productURL string) bool
}

// BrowserBound is implemented by handlers that render every page.
type BrowserBound interface {
	NeedsBrowser() bool
}

// NeedsBrowser reports whether h always renders in a browser.
func NeedsBrowser(h Handler) bool {
	b, ok := h.(BrowserBound)
	return ok && b.NeedsBrowser()
}

// Truncate returns at most limit products.
func Truncate(products []models.DiscoveredProduct, limit int) []models.DiscoveredProduct {
	if limit > 0 && len(products) > limit {
		return products[:limit]
	}
	return products
}

// Dedup drops repeated products by identity, keeping the first occurrence.
func Dedup(products []models.DiscoveredProduct) []models.DiscoveredProduct {
	seen := make(map[string]struct{}, len(products))
	out := products[:0:0]
	for _, p := range products {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
