// Package amazon scrapes Amazon store, brand and search pages through a
// headless renderer.
package amazon

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

const resultsPerPage = 20

// domains maps each marketplace to the currency its prices default to.
var domains = map[string]string{
	"amazon.com":    "USD",
	"amazon.co.uk":  "GBP",
	"amazon.de":     "EUR",
	"amazon.fr":     "EUR",
	"amazon.ca":     "CAD",
	"amazon.it":     "EUR",
	"amazon.es":     "EUR",
	"amazon.com.au": "AUD",
	"amazon.co.jp":  "JPY",
	"amazon.in":     "INR",
	"amazon.com.mx": "MXN",
	"amazon.com.br": "BRL",
}

var storePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/stores/`),
	regexp.MustCompile(`/s\?`),
	regexp.MustCompile(`/s/`),
	regexp.MustCompile(`/brand/`),
	regexp.MustCompile(`/gp/browse`),
}

var (
	cardSelectors  = []string{"[data-component-type='s-search-result']", ".s-result-item[data-asin]", ".sg-col-inner .s-widget-container"}
	titleSelectors = []string{"h2 a span", ".a-text-normal"}
	linkSelectors  = []string{"h2 a", "a.a-link-normal"}
	imageSelectors = []string{"img.s-image", ".s-product-image-container img"}
	priceSelectors = []string{".a-price .a-offscreen", ".a-price-whole", "[data-a-color='price'] .a-offscreen", ".a-color-price"}
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

func (h *Handler) Platform() models.Platform { return models.PlatformAmazon }

// Detect matches marketplace hosts with a store, brand or search path.
// Single product pages do not match.
func (h *Handler) Detect(_ context.Context, storeURL string) (bool, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return false, err
	}
	if marketplace(u.Hostname()) == "" {
		return false, nil
	}
	full := u.Path
	if u.RawQuery != "" {
		full += "?" + u.RawQuery
	}
	for _, re := range storePatterns {
		if re.MatchString(full) {
			return true, nil
		}
	}
	return false, nil
}

// OwnsProduct claims any URL on a known Amazon marketplace, product pages included.
func (h *Handler) OwnsProduct(productURL string) bool {
	u, err := url.Parse(productURL)
	return err == nil && marketplace(u.Hostname()) != ""
}

// NeedsBrowser is always true: every page is rendered.
func (h *Handler) NeedsBrowser() bool { return true }

// marketplace returns the registered domain host belongs to, or "".
func marketplace(host string) string {
	host = strings.ToLower(host)
	for d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d
		}
	}
	return ""
}

// Fetch renders result pages with the keyword in Amazon's own search
// parameter. It stops at an empty page, at limit, or after limit/20+1 pages.
func (h *Handler) Fetch(ctx context.Context, storeURL string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	u, err := url.Parse(storeURL)
	if err != nil {
		return nil, err
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	currency := domains[marketplace(u.Hostname())]

	searchURL := storeURL
	if kw := strings.TrimSpace(opts.Keyword); kw != "" {
		searchURL = scrape.SetQuery(storeURL, "k", kw)
	}

	var products []models.DiscoveredProduct
	maxPages := opts.Limit/resultsPerPage + 1
	for page := 1; len(products) < opts.Limit && page <= maxPages; page++ {
		pageURL := searchURL
		if page > 1 {
			pageURL = scrape.SetQuery(searchURL, "page", fmt.Sprint(page))
		}
		html, err := h.render.Render(ctx, pageURL)
		if err != nil {
			if len(products) > 0 {
				h.log.WithError(err).WithField("page", page).Warn("amazon pagination stopped early")
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
		platform.ReportProgress(ctx, "Amazon: page %d, %d products", page, len(products))
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
	asin := strings.TrimSpace(card.AttrOr("data-asin", ""))
	if asin == "" {
		return models.DiscoveredProduct{}, false
	}
	name := scrape.FirstText(card, titleSelectors...)
	if name == "" {
		return models.DiscoveredProduct{}, false
	}
	link := base.String() + "/dp/" + asin
	if href := scrape.FirstAttr(card, linkSelectors, "href"); href != "" {
		link = scrape.Resolve(base, href)
	}

	p := models.NewProduct(models.PlatformAmazon, name, link)
	p.VariantID = asin
	p.ImageURL = scrape.FirstAttr(card, imageSelectors, "src")
	p.Currency = currency
	if a, ok := scrape.FirstPrice(card, currency, priceSelectors...); ok {
		p.SetPrice(a.Value)
		p.Currency = a.Currency
	}
	if strings.Contains(strings.ToLower(scrape.Text(card.Find(".a-color-price").First())), "unavailable") {
		p.InStock = false
	}
	p.Extras = map[string]any{"asin": asin}
	return p, true
}

// ExtractPrice renders a product page and reads the buy-box price.
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
	currency := domains[marketplace(u.Hostname())]
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if a, ok := scrape.PagePrice(doc, currency, scrape.AmazonPriceSelectors); ok {
		return a, nil
	}
	return pricing.Amount{}, platform.ParseError("amazon price", fmt.Errorf("no price found on %s", productURL))
}
