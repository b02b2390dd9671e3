// Package scrape holds the HTTP and HTML plumbing shared by the store handlers.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pricehawk/pricehawk-engine/internal/httputil"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

// Fetcher performs classified GET/POST requests. Transport failures and
// non-2xx statuses become platform.ErrFetchFailed (or ErrTimeout); bodies that
// do not decode become platform.ErrParseFailed.
type Fetcher struct {
	Client  *http.Client
	Retries int
}

func NewFetcher(client *http.Client, retries int) *Fetcher {
	if client == nil {
		client = httputil.NewHTTPClient(nil, 0)
	}
	return &Fetcher{Client: client, Retries: retries}
}

// HTML returns the page body.
func (f *Fetcher) HTML(ctx context.Context, pageURL string) (string, error) {
	body, err := httputil.Get(ctx, f.Client, pageURL, httputil.BrowserHeaders(), f.Retries)
	if err != nil {
		return "", platform.FetchError("GET "+pageURL, err)
	}
	return string(body), nil
}

// Document fetches and parses a page.
func (f *Fetcher) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	html, err := f.HTML(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return Parse(html)
}

// JSON fetches rawURL and decodes the body into v.
func (f *Fetcher) JSON(ctx context.Context, rawURL string, v any) error {
	body, err := httputil.Get(ctx, f.Client, rawURL, httputil.JSONHeaders(), f.Retries)
	if err != nil {
		return platform.FetchError("GET "+rawURL, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return platform.ParseError("decode "+rawURL, err)
	}
	return nil
}

// PostJSON posts payload and decodes the response into v.
func (f *Fetcher) PostJSON(ctx context.Context, rawURL string, payload, v any) error {
	body, err := httputil.PostJSON(ctx, f.Client, rawURL, payload, httputil.JSONHeaders(), f.Retries)
	if err != nil {
		return platform.FetchError("POST "+rawURL, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return platform.ParseError("decode "+rawURL, err)
	}
	return nil
}

// Parse builds a goquery document from HTML.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, platform.ParseError("parse HTML", err)
	}
	return doc, nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *httputil.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
