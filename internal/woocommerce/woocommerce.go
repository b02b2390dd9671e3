// Package woocommerce discovers WooCommerce catalogs through the public
// Store API, falling back to the v3 and v2 REST product endpoints.
package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pricehawk/pricehawk-engine/internal/keyword"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

const (
	storeEndpoint = "/wp-json/wc/store/products"
	perPage       = 100
)

// Endpoints are tried in order of preference.
var Endpoints = []string{
	storeEndpoint,
	"/wp-json/wc/v3/products",
	"/wp-json/wc/v2/products",
}

type Handler struct {
	fetch   *scrape.Fetcher
	log     logrus.FieldLogger
	perPage int
}

type Option func(*Handler)

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithPerPage sets the page size requested from the API.
func WithPerPage(n int) Option {
	return func(h *Handler) {
		if n > 0 && n <= perPage {
			h.perPage = n
		}
	}
}

func New(f *scrape.Fetcher, opts ...Option) *Handler {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	h := &Handler{fetch: f, log: silent, perPage: perPage}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Platform() models.Platform { return models.PlatformWooCommerce }

// Detect reports true when any endpoint lists at least one product.
func (h *Handler) Detect(ctx context.Context, storeURL string) (bool, error) {
	base, err := platform.BaseURL(storeURL)
	if err != nil {
		return false, err
	}
	var lastErr error
	for _, ep := range Endpoints {
		var items []json.RawMessage
		if err := h.fetch.JSON(ctx, base+ep+"?per_page=1", &items); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			continue
		}
		if len(items) > 0 {
			return true, nil
		}
	}
	if lastErr != nil {
		h.log.WithError(lastErr).WithField("url", base).Debug("no WooCommerce endpoint answered")
	}
	return false, nil
}

// Fetch passes the keyword to the API's native search first. When that
// yields nothing after filtering, the catalog is read up to MaxFetch and
// filtered locally.
func (h *Handler) Fetch(ctx context.Context, storeURL string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	base, err := platform.BaseURL(storeURL)
	if err != nil {
		return nil, err
	}
	maxFetch := opts.MaxFetch
	if maxFetch <= 0 {
		maxFetch = platform.DefaultMaxFetch
	}

	endpoint, err := h.workingEndpoint(ctx, base)
	if err != nil {
		return nil, err
	}
	log := h.log.WithFields(logrus.Fields{"platform": models.PlatformWooCommerce, "url": base, "endpoint": endpoint})

	if kw := strings.TrimSpace(opts.Keyword); kw != "" {
		found, err := h.list(ctx, base, endpoint, kw, maxFetch)
		if err != nil {
			log.WithError(err).Debug("native search failed, falling back to full catalog")
		}
		if matched := keyword.Filter(found, kw); len(matched) > 0 {
			return platform.Truncate(platform.Dedup(matched), opts.Limit), nil
		}
	}

	all, err := h.list(ctx, base, endpoint, "", maxFetch)
	if err != nil && len(all) == 0 {
		return nil, err
	}
	return platform.Truncate(keyword.Filter(platform.Dedup(all), opts.Keyword), opts.Limit), nil
}

func (h *Handler) workingEndpoint(ctx context.Context, base string) (string, error) {
	var lastErr error
	for _, ep := range Endpoints {
		var items []json.RawMessage
		err := h.fetch.JSON(ctx, base+ep+"?per_page=1", &items)
		if err == nil {
			return ep, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("woocommerce: no product endpoint available: %w", lastErr)
}

// list pages through endpoint until an empty page or maxFetch products.
func (h *Handler) list(ctx context.Context, base, endpoint, search string, maxFetch int) ([]models.DiscoveredProduct, error) {
	var out []models.DiscoveredProduct
	for page := 1; len(out) < maxFetch; page++ {
		q := url.Values{}
		q.Set("per_page", fmt.Sprint(h.perPage))
		q.Set("page", fmt.Sprint(page))
		if search != "" {
			q.Set("search", search)
		}
		var items []apiProduct
		if err := h.fetch.JSON(ctx, base+endpoint+"?"+q.Encode(), &items); err != nil {
			return out, err
		}
		if len(items) == 0 {
			break
		}
		// page offsets assume a constant per_page, so the cap is applied here
		if room := maxFetch - len(out); len(items) > room {
			items = items[:room]
		}
		for _, it := range items {
			out = append(out, it.toProduct(base, endpoint == storeEndpoint))
		}
		platform.ReportProgress(ctx, "WooCommerce: %d products fetched", len(out))
	}
	return out, nil
}

type apiProduct struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Slug             string  `json:"slug"`
	Permalink        string  `json:"permalink"`
	Type             string  `json:"type"`
	SKU              string  `json:"sku"`
	Description      string  `json:"description"`
	ShortDescription string  `json:"short_description"`
	Images           []named `json:"images"`
	Categories       []named `json:"categories"`
	Tags             []named `json:"tags"`

	// Store API
	Prices    *storePrices `json:"prices"`
	IsInStock *bool        `json:"is_in_stock"`

	// REST v2/v3
	Price       json.RawMessage `json:"price"`
	InStock     *bool           `json:"in_stock"`
	StockStatus string          `json:"stock_status"`
}

type named struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

type storePrices struct {
	Price             string `json:"price"`
	RegularPrice      string `json:"regular_price"`
	SalePrice         string `json:"sale_price"`
	CurrencyCode      string `json:"currency_code"`
	CurrencyMinorUnit *int32 `json:"currency_minor_unit"`
}

func (p apiProduct) toProduct(base string, storeAPI bool) models.DiscoveredProduct {
	link := p.Permalink
	if link == "" {
		link = base + "/product/" + p.Slug
	}
	dp := models.NewProduct(models.PlatformWooCommerce, strings.TrimSpace(p.Name), link)
	if p.ID != 0 {
		dp.VariantID = fmt.Sprint(p.ID)
	}
	dp.SKU = p.SKU
	dp.ProductType = p.Type
	if len(p.Images) > 0 {
		dp.ImageURL = p.Images[0].Src
	}
	desc := p.Description
	if strings.TrimSpace(desc) == "" {
		desc = p.ShortDescription
	}
	dp.Description = scrape.PlainText(desc)
	for _, c := range append(p.Categories, p.Tags...) {
		if c.Name != "" {
			dp.Tags = append(dp.Tags, c.Name)
		}
	}
	dp.Extras = map[string]any{"slug": p.Slug}

	if storeAPI || p.Prices != nil {
		if p.Prices != nil {
			if a, ok := p.Prices.amount(); ok {
				dp.SetPrice(a.Value)
				dp.Currency = a.Currency
			}
			if p.Prices.RegularPrice != "" && p.Prices.RegularPrice != p.Prices.Price {
				dp.Extras["regular_price_minor"] = p.Prices.RegularPrice
			}
		}
		if p.IsInStock != nil {
			dp.InStock = *p.IsInStock
		}
		return dp
	}

	if d, err := pricing.ParseDecimal(strings.Trim(string(p.Price), `"`)); err == nil {
		dp.SetPrice(d)
	}
	switch {
	case p.InStock != nil:
		dp.InStock = *p.InStock
	case p.StockStatus != "":
		dp.InStock = p.StockStatus == "instock" || p.StockStatus == "onbackorder"
	}
	return dp
}

// amount normalizes a Store API price. Prices are integer minor units scaled
// by currency_minor_unit (default 2); a value that already carries a decimal
// point is taken as-is.
func (sp storePrices) amount() (pricing.Amount, bool) {
	raw := strings.TrimSpace(sp.Price)
	if raw == "" {
		return pricing.Amount{}, false
	}
	d, err := pricing.ParseDecimal(raw)
	if err != nil {
		return pricing.Amount{}, false
	}
	if !strings.Contains(raw, ".") {
		minor := int32(2)
		if sp.CurrencyMinorUnit != nil {
			minor = *sp.CurrencyMinorUnit
		}
		d = d.Shift(-minor)
	}
	currency := strings.ToUpper(sp.CurrencyCode)
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return pricing.Amount{Value: d, Currency: currency}, true
}
