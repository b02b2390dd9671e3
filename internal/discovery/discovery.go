// Package discovery is the entry point for store discovery: validate, detect
// the platform, fetch and return a normalized result.
package discovery

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

const maxErrorLen = 200

type Service struct {
	detector *platform.Detector
	policy   platform.URLPolicy
	maxFetch int
	log      logrus.FieldLogger
}

type Option func(*Service)

// WithMaxFetch caps fetch-all-then-filter catalogs.
func WithMaxFetch(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFetch = n
		}
	}
}

// WithURLPolicy replaces the public URL policy.
func WithURLPolicy(p platform.URLPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func New(d *platform.Detector, opts ...Option) *Service {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	s := &Service{detector: d, maxFetch: platform.DefaultMaxFetch, log: silent}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Discover validates the input, resolves a handler and fetches up to limit
// products matching keyword. Only a *platform.ValidationError is returned as
// an error; handler failures are reported in DiscoveryResult.Error.
func (s *Service) Discover(ctx context.Context, storeURL, keyword string, limit int) (*models.DiscoveryResult, error) {
	if _, err := s.policy.ValidateURL(storeURL); err != nil {
		return nil, err
	}
	if err := platform.ValidateQuery(keyword, limit); err != nil {
		return nil, err
	}
	storeURL = strings.TrimSpace(storeURL)

	platform.ReportProgress(ctx, "Detecting platform...")
	h := s.detector.Detect(ctx, storeURL)
	log := s.log.WithFields(logrus.Fields{"platform": h.Platform(), "url": storeURL})

	platform.ReportProgress(ctx, "Fetching products from %s store...", h.Platform())
	products, err := h.Fetch(ctx, storeURL, platform.FetchOptions{
		Keyword:  keyword,
		Limit:    limit,
		MaxFetch: s.maxFetch,
	})
	if err != nil {
		log.WithError(err).Warn("discovery failed")
		return &models.DiscoveryResult{
			Platform: h.Platform(),
			StoreURL: storeURL,
			Products: []models.DiscoveredProduct{},
			Error:    truncate(fmt.Sprintf("Failed to fetch products from %s store: %v", h.Platform(), err)),
		}, nil
	}

	products = sanitize(products, limit)
	log.WithField("found", len(products)).Info("discovery complete")
	return &models.DiscoveryResult{
		Platform:   h.Platform(),
		StoreURL:   storeURL,
		TotalFound: len(products),
		Products:   products,
	}, nil
}

// DiscoverSingleProduct returns the first product found at productURL, or
// nil when there is none.
func (s *Service) DiscoverSingleProduct(ctx context.Context, productURL string) (*models.DiscoveredProduct, error) {
	res, err := s.Discover(ctx, productURL, "", 1)
	if err != nil {
		return nil, err
	}
	if len(res.Products) == 0 {
		return nil, nil
	}
	p := res.Products[0]
	return &p, nil
}

// sanitize enforces the result invariants regardless of handler behavior:
// unique identities, no negative prices, at most limit entries.
func sanitize(products []models.DiscoveredProduct, limit int) []models.DiscoveredProduct {
	products = platform.Dedup(products)
	for i := range products {
		if products[i].Price != nil {
			products[i].SetPrice(*products[i].Price)
		}
		if products[i].Currency == "" {
			products[i].Currency = models.DefaultCurrency
		}
	}
	if products == nil {
		products = []models.DiscoveredProduct{}
	}
	return platform.Truncate(products, limit)
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxErrorLen {
		return string(r[:maxErrorLen])
	}
	return s
}

// TypeCount is one row of a product-type breakdown.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// ProductTypes groups products by product type, falling back to the first
// tag, then "Uncategorized". Rows are ordered by count, then name.
func ProductTypes(products []models.DiscoveredProduct) []TypeCount {
	counts := make(map[string]int)
	for _, p := range products {
		t := strings.TrimSpace(p.ProductType)
		if t == "" && len(p.Tags) > 0 {
			t = strings.TrimSpace(p.Tags[0])
		}
		if t == "" {
			t = "Uncategorized"
		}
		counts[t]++
	}
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
