package shopify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

// ExtractPrice reads the price of a product page. /products/<handle> URLs
// go through the product JSON endpoint (honouring ?variant=); anything else,
// or a JSON miss, falls back to the rendered-price selectors.
func (h *Handler) ExtractPrice(ctx context.Context, productURL string) (pricing.Amount, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return pricing.Amount{}, &platform.ValidationError{Field: "url", Message: "malformed url"}
	}
	if handle := productHandle(u.Path); handle != "" {
		a, err := h.jsonPrice(ctx, u, handle)
		if err == nil {
			return a, nil
		}
		h.log.WithError(err).WithField("url", productURL).Debug("product JSON price unavailable")
	}

	doc, err := h.fetch.Document(ctx, productURL)
	if err != nil {
		return pricing.Amount{}, err
	}
	if a, ok := scrape.PagePrice(doc, models.DefaultCurrency, append(scrape.ShopifyPriceSelectors, "[itemprop='price']")); ok {
		return a, nil
	}
	return pricing.Amount{}, platform.ParseError("shopify price", fmt.Errorf("no price found on %s", productURL))
}

func (h *Handler) jsonPrice(ctx context.Context, u *url.URL, handle string) (pricing.Amount, error) {
	var resp struct {
		Product feedProduct `json:"product"`
	}
	endpoint := u.Scheme + "://" + u.Host + "/products/" + handle + ".json"
	if err := h.fetch.JSON(ctx, endpoint, &resp); err != nil {
		return pricing.Amount{}, err
	}

	want := u.Query().Get("variant")
	var chosen *feedVariant
	for i := range resp.Product.Variants {
		v := &resp.Product.Variants[i]
		if want != "" && strconv.FormatInt(v.ID, 10) == want {
			chosen = v
			break
		}
		if want == "" && chosen == nil {
			chosen = v
		}
	}
	if chosen == nil {
		return pricing.Amount{}, platform.ParseError("shopify product json", fmt.Errorf("variant %q not found", want))
	}
	d, err := pricing.ParseDecimal(chosen.Price)
	if err != nil || !d.IsPositive() {
		return pricing.Amount{}, platform.ParseError("shopify product json", fmt.Errorf("unusable price %q", chosen.Price))
	}
	return pricing.Amount{Value: d, Currency: models.DefaultCurrency}, nil
}

// productHandle extracts <handle> from /products/<handle> or
// /collections/<c>/products/<handle>.
func productHandle(path string) string {
	_, rest, ok := strings.Cut(path, "/products/")
	if !ok {
		return ""
	}
	handle, _, _ := strings.Cut(rest, "/")
	return strings.TrimSuffix(handle, ".json")
}
