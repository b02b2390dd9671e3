package woocommerce

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

// ExtractPrice looks the product up in the Store API by slug, then reads
// the WooCommerce price markup on the page itself.
func (h *Handler) ExtractPrice(ctx context.Context, productURL string) (pricing.Amount, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return pricing.Amount{}, &platform.ValidationError{Field: "url", Message: "malformed url"}
	}
	if slug := productSlug(u.Path); slug != "" {
		var items []apiProduct
		endpoint := u.Scheme + "://" + u.Host + storeEndpoint + "?slug=" + url.QueryEscape(slug)
		if err := h.fetch.JSON(ctx, endpoint, &items); err == nil && len(items) > 0 && items[0].Prices != nil {
			if a, ok := items[0].Prices.amount(); ok && a.Value.IsPositive() {
				return a, nil
			}
		}
	}

	doc, err := h.fetch.Document(ctx, productURL)
	if err != nil {
		return pricing.Amount{}, err
	}
	if a, ok := scrape.PagePrice(doc, models.DefaultCurrency, scrape.WooCommercePriceSelectors); ok {
		return a, nil
	}
	return pricing.Amount{}, platform.ParseError("woocommerce price", fmt.Errorf("no price found on %s", productURL))
}

// productSlug extracts <slug> from /product/<slug>/.
func productSlug(path string) string {
	_, rest, ok := strings.Cut(path, "/product/")
	if !ok {
		return ""
	}
	slug, _, _ := strings.Cut(rest, "/")
	return slug
}
