package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
)

// Price selector candidates for single product pages, tried in order.
var (
	AmazonPriceSelectors = []string{
		".a-price .a-offscreen",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		".a-price-whole",
		"[data-a-color='price'] .a-offscreen",
	}
	EbayPriceSelectors = []string{
		".x-price-primary span",
		"#prcIsum",
		".display-price",
		"[itemprop='price']",
	}
	WalmartPriceSelectors = []string{
		"[itemprop='price']",
		".price-characteristic",
		"[data-automation='buybox-price']",
	}
	ShopifyPriceSelectors = []string{
		".price__current .money",
		".product__price .money",
		".product-price .money",
		"[data-product-price]",
		".price-item--regular",
		".price-item--sale",
		".ProductMeta__Price",
		".product-single__price",
	}
	WooCommercePriceSelectors = []string{
		".woocommerce-Price-amount bdi",
		".woocommerce-Price-amount",
		".price ins .amount",
		".price .amount",
		".summary .price",
		"p.price span.amount",
	}
	GenericPriceSelectors = []string{
		"[itemprop='price']",
		"[data-price]",
		"[data-product-price]",
		"meta[property='product:price:amount']",
		".price",
		".product-price",
		".current-price",
		".sale-price",
		".regular-price",
		"#product-price",
		".price-value",
		".amount",
	}
)

// PageCurrency reads the currency a product page declares in its meta tags.
func PageCurrency(doc *goquery.Document) string {
	for _, sel := range []string{"meta[property='product:price:currency']", "meta[property='og:price:currency']", "[itemprop='priceCurrency']"} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return ""
}

// PagePrice reads a product page's price: Open Graph product meta first, then
// the selector candidates.
func PagePrice(doc *goquery.Document, fallbackCurrency string, selectors []string) (pricing.Amount, bool) {
	if c := PageCurrency(doc); c != "" {
		fallbackCurrency = c
	}
	if a, ok := FirstPrice(doc.Selection, fallbackCurrency, "meta[property='product:price:amount']", "meta[property='og:price:amount']"); ok {
		return a, true
	}
	return FirstPrice(doc.Selection, fallbackCurrency, selectors...)
}
