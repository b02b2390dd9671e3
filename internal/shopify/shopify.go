// Package shopify discovers Shopify catalogs through the classic
// /products.json feed, falling back to the Storefront GraphQL API.
package shopify

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pricehawk/pricehawk-engine/internal/keyword"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

const defaultPageSize = 250

// GraphQLVersions are tried in order until one answers.
var GraphQLVersions = []string{"unstable", "2024-01", "2023-10", "2023-07"}

var htmlMarkers = []string{"cdn.shopify.com", "Shopify.theme", "shopify-digital-wallet", "myshopify.com"}

type Handler struct {
	fetch    *scrape.Fetcher
	log      logrus.FieldLogger
	pageSize int
	versions []string
}

type Option func(*Handler)

// WithPageSize sets the feed and GraphQL page size (max 250).
func WithPageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 && n <= defaultPageSize {
			h.pageSize = n
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

func New(f *scrape.Fetcher, opts ...Option) *Handler {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	h := &Handler{fetch: f, log: silent, pageSize: defaultPageSize, versions: GraphQLVersions}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Platform() models.Platform { return models.PlatformShopify }

// Detect probes the products feed, then the storefront HTML for theme markers
// so stores with the feed disabled are still recognized.
func (h *Handler) Detect(ctx context.Context, storeURL string) (bool, error) {
	base, err := platform.BaseURL(storeURL)
	if err != nil {
		return false, err
	}
	var probe struct {
		Products *[]feedProduct `json:"products"`
	}
	if err := h.fetch.JSON(ctx, base+"/products.json?limit=1", &probe); err == nil && probe.Products != nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	page, err := h.fetch.HTML(ctx, base)
	if err != nil {
		return false, err
	}
	for _, m := range htmlMarkers {
		if strings.Contains(page, m) {
			return true, nil
		}
	}
	return false, nil
}

// Fetch pulls up to MaxFetch products, one entry per variant, then filters
// by keyword and truncates to Limit.
func (h *Handler) Fetch(ctx context.Context, storeURL string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	base, err := platform.BaseURL(storeURL)
	if err != nil {
		return nil, err
	}
	maxFetch := opts.MaxFetch
	if maxFetch <= 0 {
		maxFetch = platform.DefaultMaxFetch
	}
	log := h.log.WithFields(logrus.Fields{"platform": models.PlatformShopify, "url": base})

	products, feedErr := h.fetchFeed(ctx, base, maxFetch)
	if feedErr != nil || len(products) == 0 {
		log.WithError(feedErr).Debug("products feed empty or unavailable, trying storefront GraphQL")
		platform.ReportProgress(ctx, "Shopify feed unavailable, trying GraphQL...")
		gql, gqlErr := h.fetchGraphQL(ctx, base, maxFetch)
		if gqlErr != nil && len(gql) == 0 {
			if feedErr != nil {
				return nil, errors.Join(feedErr, gqlErr)
			}
			return nil, gqlErr
		}
		if len(gql) == 0 && feedErr != nil {
			return nil, feedErr
		}
		products = gql
	}

	products = platform.Dedup(products)
	return platform.Truncate(keyword.Filter(products, opts.Keyword), opts.Limit), nil
}

func productURL(base, handle, variantID string, multi bool) string {
	u := base + "/products/" + handle
	if multi && variantID != "" {
		u += "?variant=" + variantID
	}
	return u
}

func variantName(title, variant string) string {
	variant = strings.TrimSpace(variant)
	if variant == "" || variant == "Default Title" {
		return title
	}
	return title + " - " + variant
}
