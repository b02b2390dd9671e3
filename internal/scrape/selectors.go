package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
)

// Text returns the collapsed text of s.
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// FirstText returns the text of the first selector that matches non-empty.
func FirstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := Text(s.Find(sel).First()); t != "" {
			return t
		}
	}
	return ""
}

// FirstAttr returns the first non-empty attribute, trying attrs in order on
// the first match of each selector.
func FirstAttr(s *goquery.Selection, selectors []string, attrs ...string) string {
	for _, sel := range selectors {
		m := s.Find(sel).First()
		if m.Length() == 0 {
			continue
		}
		for _, a := range attrs {
			if v, ok := m.Attr(a); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// FirstPrice returns the first positive price found under s. For each match
// the content and data-price attributes are read before the text.
func FirstPrice(s *goquery.Selection, fallbackCurrency string, selectors ...string) (pricing.Amount, bool) {
	for _, sel := range selectors {
		found := false
		var amount pricing.Amount
		s.Find(sel).EachWithBreak(func(_ int, m *goquery.Selection) bool {
			for _, raw := range priceCandidates(m) {
				a, err := pricing.Parse(raw, fallbackCurrency)
				if err == nil && a.Value.IsPositive() {
					amount, found = a, true
					return false
				}
			}
			return true
		})
		if found {
			return amount, true
		}
	}
	return pricing.Amount{}, false
}

func priceCandidates(m *goquery.Selection) []string {
	var out []string
	for _, a := range []string{"content", "data-price"} {
		if v, ok := m.Attr(a); ok && strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	if t := Text(m); t != "" {
		out = append(out, t)
	}
	return out
}

// Resolve makes ref absolute against base. Protocol-relative and relative
// references are supported; unparseable refs are returned unchanged.
func Resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// PlainText strips markup from an HTML fragment.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	return Text(doc.Selection)
}

// SetQuery returns rawURL with key set to value, replacing existing values.
func SetQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
