// Package ebay scrapes eBay store and search pages through a headless renderer.
package ebay

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/pricehawk/pricehawk-engine/internal/browser"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

const resultsPerPage = 50

var domains = map[string]string{
	"ebay.com":    "USD",
	"ebay.co.uk":  "GBP",
	"ebay.de":     "EUR",
	"ebay.fr":     "EUR",
	"ebay.it":     "EUR",
	"ebay.es":     "EUR",
	"ebay.com.au": "AUD",
	"ebay.ca":     "CAD",
}

var storePatterns = []string{"/str/", "/sch/", "/b/", "/usr/"}

var (
	cardSelectors     = []string{".s-item", ".srp-results .s-item__wrapper"}
	titleSelectors    = []string{".s-item__title", ".s-item__title span"}
	linkSelectors     = []string{".s-item__link", "a.s-item__link"}
	imageSelectors    = []string{".s-item__image-img", "img.s-item__image-img"}
	priceSelectors    = []string{".s-item__price", ".s-item__price span.POSITIVE", "[itemprop='price']"}
	shippingSelectors = []string{".s-item__shipping", ".s-item__freeXDays"}

	itemID = regexp.MustCompile(`/itm/(?:[^/]+/)?(\d+)`)
)

type Handler struct {
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

func New(r browser.Renderer, opts ...Option) *Handler {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	h := &Handler{render: r, log: silent}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Platform() models.Platform { return models.PlatformEbay }

// Detect matches eBay hosts with a store, search, browse or seller path.
func (h *Handler) Detect(_ context.Context, storeURL string) (bool, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return false, err
	}
	if site(u.Hostname()) == "" {
		return false, nil
	}
	for _, p := range storePatterns {
		if strings.Contains(u.Path, p) {
			return true, nil
		}
	}
	return false, nil
}

// OwnsProduct claims any URL on a known eBay site, product pages included.
func (h *Handler) OwnsProduct(productURL string) bool {
	u, err := url.Parse(productURL)
	return err == nil && site(u.Hostname()) != ""
}

// NeedsBrowser is always true: every page is rendered.
func (h *Handler) NeedsBrowser() bool { return true }

func site(host string) string {
	host = strings.ToLower(host)
	for d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
	}
	return ""
}

// Fetch renders listing pages with the keyword in eBay's _nkw parameter,
// paging with _pgn up to limit/50+1 pages.
func (h *Handler) Fetch(ctx context.Context, storeURL string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, err
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	currency := domains[site(u.Hostname())]

	searchURL := storeURL
	if kw := strings.TrimSpace(opts.Keyword); kw != "" {
		searchURL = scrape.SetQuery(storeURL, "_nkw", kw)
	}

	var products []models.DiscoveredProduct
	maxPages := opts.Limit/resultsPerPage + 1
	for page := 1; len(products) < opts.Limit && page <= maxPages; page++ {
		pageURL := searchURL
		if page > 1 {
			pageURL = scrape.SetQuery(searchURL, "_pgn", fmt.Sprint(page))
		}
		html, err := h.render.Render(ctx, pageURL)
		if err != nil {
			if len(products) > 0 {
				h.log.WithError(err).WithField("page", page).Warn("ebay pagination stopped early")
				break
			}
			return nil, platform.FetchError("render "+pageURL, err)
		}
		doc, err := scrape.Parse(html)
		if err != nil {
			return nil, err
		}
		found := parseResults(doc, base, currency)
		if len(found) == 0 {
			break
		}
		products = append(products, found...)
		platform.ReportProgress(ctx, "eBay: page %d, %d listings", page, len(products))
	}
	return platform.Truncate(platform.Dedup(products), opts.Limit), nil
}

func parseResults(doc *goquery.Document, base *url.URL, currency string) []models.DiscoveredProduct {
	for _, sel := range cardSelectors {
		cards := doc.Find(sel)
		if cards.Length() == 0 {
			continue
		}
		var out []models.DiscoveredProduct
		cards.Each(func(_ int, card *goquery.Selection) {
			if p, ok := parseCard(card, base, currency); ok {
				out = append(out, p)
			}
		})
		return out
	}
	return nil
}

func parseCard(card *goquery.Selection, base *url.URL, currency string) (models.DiscoveredProduct, bool) {
	name := scrape.FirstText(card, titleSelectors...)
	if name == "" || strings.EqualFold(name, "shop on ebay") {
		return models.DiscoveredProduct{}, false
	}
	href := scrape.FirstAttr(card, linkSelectors, "href")
	if href == "" {
		return models.DiscoveredProduct{}, false
	}

	p := models.NewProduct(models.PlatformEbay, name, scrape.Resolve(base, href))
	if m := itemID.FindStringSubmatch(href); m != nil {
		p.VariantID = m[1]
	}
	p.ImageURL = scrape.FirstAttr(card, imageSelectors, "src", "data-src")
	p.Currency = currency
	if a, ok := cardPrice(card, currency); ok {
		p.SetPrice(a.Value)
		p.Currency = a.Currency
	}
	p.Extras = map[string]any{"shipping": scrape.FirstText(card, shippingSelectors...)}
	return p, true
}

// cardPrice reads the listing price; "X to Y" ranges resolve to X.
func cardPrice(card *goquery.Selection, currency string) (pricing.Amount, bool) {
	for _, sel := range priceSelectors {
		text := scrape.Text(card.Find(sel).First())
		if text == "" {
			continue
		}
		if lo, _, ok := strings.Cut(text, " to "); ok {
			text = lo
		}
		if a, err := pricing.Parse(text, currency); err == nil && a.Value.IsPositive() {
			return a, true
		}
	}
	return pricing.Amount{}, false
}

// ExtractPrice renders a listing page and reads its primary price.
func (h *Handler) ExtractPrice(ctx context.Context, productURL string) (pricing.Amount, error) {
	u, err := url.Parse(productURL)
	if err != nil {
		return pricing.Amount{}, &platform.ValidationError{Field: "url", Message: "malformed url"}
	}
	html, err := h.render.Render(ctx, productURL)
	if err != nil {
		return pricing.Amount{}, platform.FetchError("render "+productURL, err)
	}
	doc, err := scrape.Parse(html)
	if err != nil {
		return pricing.Amount{}, err
	}
	currency := domains[site(u.Hostname())]
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if a, ok := scrape.PagePrice(doc, currency, scrape.EbayPriceSelectors); ok {
		return a, nil
	}
	return pricing.Amount{}, platform.ParseError("ebay price", fmt.Errorf("no price found on %s", productURL))
}
