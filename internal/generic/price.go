package generic

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

// ExtractPrice reads a single product page: JSON-LD offers first, then the
// retailer-specific selectors chosen by hostname or page fingerprint, then
// generic conventions. The static page is tried before the rendered one.
func (h *Handler) ExtractPrice(ctx context.Context, productURL string) (pricing.Amount, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return pricing.Amount{}, &platform.ValidationError{Field: "url", Message: "malformed url"}
	}

	html, fetchErr := h.fetch.HTML(ctx, productURL)
	if fetchErr == nil {
		if a, ok := pagePrice(html, u.Hostname()); ok {
			return a, nil
		}
	}
	if h.render == nil {
		if fetchErr != nil {
			return pricing.Amount{}, fetchErr
		}
		return pricing.Amount{}, platform.ParseError("generic price", fmt.Errorf("no price found on %s", productURL))
	}

	rendered, err := h.render.Render(ctx, productURL)
	if err != nil {
		if fetchErr != nil {
			return pricing.Amount{}, fetchErr
		}
		return pricing.Amount{}, platform.FetchError("render "+productURL, err)
	}
	if a, ok := pagePrice(rendered, u.Hostname()); ok {
		return a, nil
	}
	return pricing.Amount{}, platform.ParseError("generic price", fmt.Errorf("no price found on %s", productURL))
}

func pagePrice(html, host string) (pricing.Amount, bool) {
	for _, p := range scrape.ExtractJSONLD(html) {
		if p.Price != nil && p.Price.IsPositive() {
			currency := p.Currency
			if currency == "" {
				currency = models.DefaultCurrency
			}
			return pricing.Amount{Value: *p.Price, Currency: currency}, true
		}
	}
	doc, err := scrape.Parse(html)
	if err != nil {
		return pricing.Amount{}, false
	}
	return scrape.PagePrice(doc, models.DefaultCurrency, SelectorsFor(host, doc))
}

// SelectorsFor returns the price selector candidates for a page: the
// retailer's own list (by host, then by storefront fingerprint) followed by
// the generic conventions.
func SelectorsFor(host string, doc *goquery.Document) []string {
	host = strings.ToLower(host)
	var specific []string
	switch {
	case strings.Contains(host, "amazon."):
		specific = scrape.AmazonPriceSelectors
	case strings.Contains(host, "ebay."):
		specific = scrape.EbayPriceSelectors
	case strings.Contains(host, "walmart."):
		specific = scrape.WalmartPriceSelectors
	case doc != nil:
		html, _ := doc.Html()
		lower := strings.ToLower(html)
		switch {
		case strings.Contains(lower, "cdn.shopify") || strings.Contains(lower, "shopify"):
			specific = scrape.ShopifyPriceSelectors
		case strings.Contains(lower, "woocommerce") || strings.Contains(lower, "wc-block"):
			specific = scrape.WooCommercePriceSelectors
		}
	}
	out := make([]string, 0, len(specific)+len(scrape.GenericPriceSelectors))
	out = append(out, specific...)
	return append(out, scrape.GenericPriceSelectors...)
}
