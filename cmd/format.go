package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricehawk/pricehawk-engine/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printProductsTable prints products in a human-friendly card layout.
func printProductsTable(w io.Writer, res *models.DiscoveryResult) {
	fmt.Fprintf(w, "Platform: %s  |  Store: %s  |  Found: %d\n", res.Platform, res.StoreURL, res.TotalFound)
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}
	for i, p := range res.Products {
		fmt.Fprintln(w)
		name := truncate(p.Name, 80)
		if !p.InStock {
			name = "[OUT OF STOCK] " + name
		}
		fmt.Fprintf(w, " %d. %s\n", i+1, name)

		priceLine := "    Price: " + formatPrice(p.Price, p.Currency)
		if p.SKU != "" {
			priceLine += "  |  SKU: " + p.SKU
		}
		if p.VariantID != "" {
			priceLine += "  |  Variant: " + p.VariantID
		}
		fmt.Fprintln(w, priceLine)

		if p.ProductType != "" {
			fmt.Fprintf(w, "    Type: %s\n", p.ProductType)
		}
		if len(p.Tags) > 0 {
			var tags []string
			for _, t := range p.Tags {
				tags = append(tags, "["+t+"]")
			}
			fmt.Fprintf(w, "    %s\n", truncate(strings.Join(tags, " "), 100))
		}
		fmt.Fprintf(w, "    %s\n", cleanURL(p.URL))
	}
}

// printExtractionTable prints one line per extraction result.
func printExtractionTable(w io.Writer, results []models.ExtractionResult) {
	for _, r := range results {
		id := r.CompetitorID
		if id == "" {
			id = "-"
		}
		switch {
		case r.Status == models.StatusSuccess && r.Cached:
			fmt.Fprintf(w, " %-24s %-12s %s  (cached, %s)\n", truncate(id, 24), r.Platform, formatPrice(r.Price, r.Currency), r.ScrapedAt.Format("2006-01-02 15:04"))
		case r.Status == models.StatusSuccess:
			fmt.Fprintf(w, " %-24s %-12s %s  (%d attempt(s))\n", truncate(id, 24), r.Platform, formatPrice(r.Price, r.Currency), r.Attempts)
		default:
			fmt.Fprintf(w, " %-24s %-12s FAILED after %d attempt(s): %s\n", truncate(id, 24), r.Platform, r.Attempts, truncate(r.Error, 100))
		}
	}
}

// formatPrice formats an exact amount as "19.99 USD", or "n/a" when absent.
func formatPrice(p *decimal.Decimal, currency string) string {
	if p == nil {
		return "n/a"
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return p.StringFixed(2) + " " + currency
}

// cleanURL strips tracking query params (utm_*, ref, etc.) and keeps the
// ones that identify a product (variant, id).
func cleanURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for key := range q {
		if key != "variant" && key != "id" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
