// Package generic is the terminal fallback handler. It reads Schema.org
// JSON-LD first, then common storefront CSS conventions, and renders the
// page in a headless browser when the static HTML yields nothing.
package generic

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/pricehawk/pricehawk-engine/internal/browser"
	"github.com/pricehawk/pricehawk-engine/internal/keyword"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

var (
	cardSelectors = []string{
		".product",
		".product-card",
		".product-item",
		"[data-product]",
		".products .item",
		".product-list .item",
		"article.product",
		".grid-item.product",
		".collection-product",
	}
	priceSelectors = []string{
		"[itemprop='price']",
		".price",
		".product-price",
		".current-price",
		".sale-price",
		".regular-price",
		"[data-price]",
		".money",
	}
	titleSelectors = []string{
		"[itemprop='name']",
		".product-title",
		".product-name",
		"h2.title",
		"h3.title",
		".product-card__title",
		".product-item__title",
		"h1", "h2", "h3", "h4", "a",
	}
	imageSelectors = []string{
		"[itemprop='image']",
		".product-image img",
		".product-img img",
		".product-card__image img",
		"img.product-image",
		"picture img",
		"img",
	}
)

// minCards is how many matches a card selector needs before it is trusted.
const minCards = 2

type Handler struct {
	fetch  *scrape.Fetcher
	render browser.Renderer
	log    logrus.FieldLogger
}

type Option func(*Handler)

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRenderer enables the headless fallback.
func WithRenderer(r browser.Renderer) Option {
	return func(h *Handler) { h.render = r }
}

func New(f *scrape.Fetcher, opts ...Option) *Handler {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	h := &Handler{fetch: f, log: silent}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Platform() models.Platform { return models.PlatformGeneric }

// Detect always matches.
func (h *Handler) Detect(context.Context, string) (bool, error) { return true, nil }

func (h *Handler) Fetch(ctx context.Context, storeURL string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	base, err := url.Parse(storeURL)
	if err != nil {
		return nil, err
	}
	log := h.log.WithFields(logrus.Fields{"platform": models.PlatformGeneric, "url": storeURL})

	html, fetchErr := h.fetch.HTML(ctx, storeURL)
	var products []models.DiscoveredProduct
	if fetchErr == nil {
		products, err = parseProducts(html, base)
		if err != nil {
			return nil, err
		}
	}

	if len(products) == 0 && h.render != nil {
		log.WithError(fetchErr).Debug("static HTML yielded no products, rendering")
		platform.ReportProgress(ctx, "Rendering %s in headless browser...", base.Host)
		rendered, err := h.render.Render(ctx, storeURL)
		if err != nil {
			if fetchErr != nil {
				return nil, fetchErr
			}
			return nil, platform.FetchError("render "+storeURL, err)
		}
		if products, err = parseProducts(rendered, base); err != nil {
			return nil, err
		}
	} else if fetchErr != nil {
		return nil, fetchErr
	}

	products = platform.Dedup(products)
	return platform.Truncate(keyword.Filter(products, opts.Keyword), opts.Limit), nil
}

func parseProducts(html string, base *url.URL) ([]models.DiscoveredProduct, error) {
	if ld := scrape.ExtractJSONLD(html); len(ld) > 0 {
		out := make([]models.DiscoveredProduct, 0, len(ld))
		for i, p := range ld {
			if p.Name == "" {
				continue
			}
			out = append(out, fromLD(p, base, i))
		}
		if len(out) > 0 {
			return out, nil
		}
	}

	doc, err := scrape.Parse(html)
	if err != nil {
		return nil, err
	}
	for _, sel := range cardSelectors {
		cards := doc.Find(sel)
		if cards.Length() < minCards {
			continue
		}
		var out []models.DiscoveredProduct
		cards.Each(func(i int, card *goquery.Selection) {
			if p, ok := parseCard(card, base, i); ok {
				out = append(out, p)
			}
		})
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, nil
}

func fromLD(p scrape.LDProduct, base *url.URL, i int) models.DiscoveredProduct {
	link := scrape.Resolve(base, p.URL)
	if link == "" {
		link = fallbackURL(base, i)
	}
	dp := models.NewProduct(models.PlatformGeneric, p.Name, link)
	dp.SKU = p.SKU
	dp.ImageURL = scrape.Resolve(base, p.Image)
	dp.Description = p.Description
	dp.InStock = p.InStock()
	if p.Price != nil {
		dp.SetPrice(*p.Price)
	}
	if p.Currency != "" {
		dp.Currency = p.Currency
	}
	dp.Extras = map[string]any{"source": "json-ld"}
	return dp
}

func parseCard(card *goquery.Selection, base *url.URL, i int) (models.DiscoveredProduct, bool) {
	name := scrape.FirstText(card, titleSelectors...)
	if name == "" {
		return models.DiscoveredProduct{}, false
	}
	link := ""
	if goquery.NodeName(card) == "a" {
		link = card.AttrOr("href", "")
	}
	if link == "" {
		link = scrape.FirstAttr(card, []string{"a[href]"}, "href")
	}
	link = scrape.Resolve(base, link)
	if link == "" {
		link = fallbackURL(base, i)
	}

	dp := models.NewProduct(models.PlatformGeneric, name, link)
	dp.ImageURL = scrape.Resolve(base, scrape.FirstAttr(card, imageSelectors, "src", "data-src", "content"))
	if a, ok := scrape.FirstPrice(card, models.DefaultCurrency, priceSelectors...); ok {
		dp.SetPrice(a.Value)
		dp.Currency = a.Currency
	}
	text := strings.ToLower(scrape.Text(card))
	if strings.Contains(text, "sold out") || strings.Contains(text, "out of stock") {
		dp.InStock = false
	}
	dp.Extras = map[string]any{"source": "css"}
	return dp, true
}

// fallbackURL keeps cards without a link distinct within one page.
func fallbackURL(base *url.URL, i int) string {
	u := *base
	u.Fragment = "product-" + strconv.Itoa(i)
	return u.String()
}
