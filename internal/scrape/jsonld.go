package scrape

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/pricehawk/pricehawk-engine/internal/pricing"
)

// LDProduct is a schema.org Product read from a JSON-LD block.
type LDProduct struct {
	Name         string
	URL          string
	Image        string
	Description  string
	SKU          string
	Price        *decimal.Decimal
	Currency     string
	Availability string
}

// InStock reports the offer availability; unknown availability counts as in stock.
func (p LDProduct) InStock() bool {
	a := strings.ToLower(p.Availability)
	return !strings.Contains(a, "outofstock") && !strings.Contains(a, "soldout") && !strings.Contains(a, "discontinued")
}

// ExtractJSONLD walks the document and returns every Product found in
// application/ld+json scripts, including those nested in ItemList, @graph
// and top-level arrays. Malformed blocks are skipped.
func ExtractJSONLD(htmlContent string) []LDProduct {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil
	}

	var products []LDProduct
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && isLDScript(n) && n.FirstChild != nil {
			products = append(products, parseLDBlock([]byte(n.FirstChild.Data))...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return products
}

func isLDScript(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "type" && strings.EqualFold(strings.TrimSpace(attr.Val), "application/ld+json") {
			return true
		}
	}
	return false
}

type ldNode struct {
	Type            json.RawMessage   `json:"@type"`
	Graph           []json.RawMessage `json:"@graph"`
	Name            string            `json:"name"`
	URL             string            `json:"url"`
	Image           json.RawMessage   `json:"image"`
	Description     string            `json:"description"`
	SKU             string            `json:"sku"`
	Offers          json.RawMessage   `json:"offers"`
	ItemListElement []struct {
		Item json.RawMessage `json:"item"`
	} `json:"itemListElement"`
}

type ldOffer struct {
	Price         json.RawMessage `json:"price"`
	LowPrice      json.RawMessage `json:"lowPrice"`
	PriceCurrency string          `json:"priceCurrency"`
	Availability  string          `json:"availability"`
}

func parseLDBlock(data []byte) []LDProduct {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		var out []LDProduct
		for _, it := range items {
			out = append(out, parseLDBlock(it)...)
		}
		return out
	}

	var n ldNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil
	}
	var out []LDProduct
	for _, g := range n.Graph {
		out = append(out, parseLDBlock(g)...)
	}
	switch {
	case hasType(n.Type, "Product"):
		out = append(out, n.product())
	case hasType(n.Type, "ItemList"):
		for _, el := range n.ItemListElement {
			if len(el.Item) > 0 {
				out = append(out, parseLDBlock(el.Item)...)
			}
		}
	}
	return out
}

func hasType(raw json.RawMessage, want string) bool {
	var one string
	if json.Unmarshal(raw, &one) == nil {
		return one == want
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil {
		for _, t := range many {
			if t == want {
				return true
			}
		}
	}
	return false
}

func (n ldNode) product() LDProduct {
	p := LDProduct{
		Name:        strings.TrimSpace(n.Name),
		URL:         n.URL,
		Image:       ldImage(n.Image),
		Description: n.Description,
		SKU:         n.SKU,
	}
	if offer, ok := firstOffer(n.Offers); ok {
		raw := offer.Price
		if len(raw) == 0 || string(raw) == "null" {
			raw = offer.LowPrice
		}
		if d, err := pricing.ParseDecimal(ldScalar(raw)); err == nil {
			p.Price = &d
		}
		p.Currency = strings.ToUpper(offer.PriceCurrency)
		p.Availability = offer.Availability
	}
	return p
}

func firstOffer(raw json.RawMessage) (ldOffer, bool) {
	if len(raw) == 0 {
		return ldOffer{}, false
	}
	var one ldOffer
	if json.Unmarshal(raw, &one) == nil {
		return one, true
	}
	var many []ldOffer
	if json.Unmarshal(raw, &many) == nil && len(many) > 0 {
		return many[0], true
	}
	return ldOffer{}, false
}

// ldImage accepts "url", ["url", ...] and {"url": "..."}.
func ldImage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		if len(list) > 0 {
			return ldImage(list[0])
		}
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.URL
	}
	return ""
}

// ldScalar renders a JSON number or string as plain text.
func ldScalar(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
