package pricing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Amount is an exact price with its ISO 4217 currency code.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// ParseError reports price text that could not be turned into an amount.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse price %q: %s", e.Input, e.Reason)
}

// symbols is checked in order, so multi-rune prefixes precede bare "$".
var symbols = []struct {
	token string
	code  string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"C$", "CAD"},
	{"AU$", "AUD"},
	{"A$", "AUD"},
	{"NZ$", "NZD"},
	{"R$", "BRL"},
	{"MX$", "MXN"},
	{"Rp", "IDR"},
	{"zł", "PLN"},
	{"$", "USD"},
	{"£", "GBP"},
	{"€", "EUR"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₦", "NGN"},
	{"₩", "KRW"},
	{"₱", "PHP"},
}

var isoCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "CAD": true, "AUD": true,
	"NZD": true, "JPY": true, "INR": true, "NGN": true, "BRL": true,
	"IDR": true, "CHF": true, "SEK": true, "NOK": true, "DKK": true,
	"MXN": true, "KRW": true, "PLN": true, "PHP": true, "SGD": true,
}

var isoPattern = regexp.MustCompile(`(?:^|[^A-Za-z])([A-Z]{3})(?:[^A-Za-z]|$)`)

// dollarCurrencies share the bare "$" symbol.
var dollarCurrencies = map[string]bool{
	"USD": true, "CAD": true, "AUD": true, "NZD": true, "MXN": true, "SGD": true,
}

// DetectCurrency returns the currency named in text, or "" when none is found.
func DetectCurrency(text string) string {
	code, _ := detectCurrency(text)
	return code
}

// detectCurrency also reports whether the match was the ambiguous bare "$".
func detectCurrency(text string) (string, bool) {
	for _, m := range isoPattern.FindAllStringSubmatch(text, -1) {
		if isoCodes[m[1]] {
			return m[1], false
		}
	}
	compact := strings.Join(strings.Fields(text), "")
	for _, s := range symbols {
		if strings.Contains(compact, s.token) {
			return s.code, s.token == "$"
		}
	}
	return "", false
}

// Parse converts price text such as "$19.99", "1.234,56 €" or "CAD 1,299"
// into an exact amount. fallbackCurrency is used when the text names none,
// or when it only shows a bare "$" and the fallback is a dollar currency;
// an empty fallback means USD.
func Parse(text, fallbackCurrency string) (Amount, error) {
	raw := text
	text = strings.TrimSpace(text)
	if text == "" {
		return Amount{}, &ParseError{Input: raw, Reason: "empty input"}
	}

	fallbackCurrency = strings.ToUpper(fallbackCurrency)
	currency, bare := detectCurrency(text)
	if currency == "" || (bare && dollarCurrencies[fallbackCurrency]) {
		currency = fallbackCurrency
	}
	if currency == "" {
		currency = "USD"
	}

	firstDigit := strings.IndexFunc(text, unicode.IsDigit)
	if firstDigit < 0 {
		return Amount{}, &ParseError{Input: raw, Reason: "no digits"}
	}
	if strings.ContainsAny(text[:firstDigit], "-−") {
		return Amount{}, &ParseError{Input: raw, Reason: "negative amount"}
	}
	// Ranges like "$10.00 - $20.00" resolve to the lower bound.
	if i := strings.IndexAny(text[firstDigit:], "-–"); i >= 0 {
		text = text[:firstDigit+i]
	}

	cleaned := normalizeSeparators(keepNumeric(text))
	if cleaned == "" {
		return Amount{}, &ParseError{Input: raw, Reason: "no digits"}
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Amount{}, &ParseError{Input: raw, Reason: err.Error()}
	}
	return Amount{Value: value, Currency: currency}, nil
}

// ParseDecimal parses a plain machine-formatted number ("19.99", "1999").
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ParseError{Input: s, Reason: "empty input"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ParseError{Input: s, Reason: err.Error()}
	}
	if d.IsNegative() {
		return decimal.Zero, &ParseError{Input: s, Reason: "negative amount"}
	}
	return d, nil
}

func keepNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		} else if r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".,")
}

// normalizeSeparators rewrites s so that "." is the only decimal separator and
// grouping separators are removed.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	if lastDot >= 0 && lastComma >= 0 {
		dec := max(lastDot, lastComma)
		return strings.NewReplacer(".", "", ",", "").Replace(s[:dec]) + "." + s[dec+1:]
	}

	last := max(lastDot, lastComma)
	if last < 0 {
		return s
	}
	sep := s[last : last+1]
	if trailing := len(s) - last - 1; trailing >= 1 && trailing <= 2 {
		return strings.ReplaceAll(s[:last], sep, "") + "." + s[last+1:]
	}
	return strings.ReplaceAll(s, sep, "")
}
