package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
	"github.com/pricehawk/pricehawk-engine/internal/shopify"
)

type fakeHandler struct {
	platform models.Platform
	products []models.DiscoveredProduct
	err      error
	calls    atomic.Int32
	opts     platform.FetchOptions
}

func (f *fakeHandler) Platform() models.Platform { return f.platform }

func (f *fakeHandler) Detect(context.Context, string) (bool, error) {
	f.calls.Add(1)
	return true, nil
}

func (f *fakeHandler) Fetch(_ context.Context, _ string, opts platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	f.calls.Add(1)
	f.opts = opts
	return f.products, f.err
}

func (f *fakeHandler) ExtractPrice(context.Context, string) (pricing.Amount, error) {
	return pricing.Amount{}, nil
}

func newService(t *testing.T, h platform.Handler, opts ...Option) *Service {
	t.Helper()
	d, err := platform.NewDetector([]platform.Registration{{Handler: h, Priority: 100}}, platform.WithCacheTTL(0))
	require.NoError(t, err)
	return New(d, opts...)
}

func TestDiscover_RejectsBeforeNetwork(t *testing.T) {
	h := &fakeHandler{platform: models.PlatformGeneric}
	s := newService(t, h)
	ctx := context.Background()

	for _, tc := range []struct {
		url, keyword string
		limit        int
	}{
		{"http://insecure.example.com", "", 10},
		{"not a url", "", 10},
		{"https://localhost/shop", "", 10},
		{"https://shop.example", "", 0},
		{"https://shop.example", "", 251},
		{"https://shop.example", strings.Repeat("k", 201), 10},
	} {
		res, err := s.Discover(ctx, tc.url, tc.keyword, tc.limit)
		assert.Nil(t, res)
		assert.True(t, platform.IsValidation(err), "%+v: %v", tc, err)
	}
	assert.Zero(t, h.calls.Load(), "no detection or fetch on invalid input")
}

func TestDiscover_HandlerFailureIsAResult(t *testing.T) {
	h := &fakeHandler{platform: models.PlatformGeneric, err: fmt.Errorf("GET x: %w: %s", platform.ErrFetchFailed, strings.Repeat("boom ", 80))}
	res, err := newService(t, h).Discover(context.Background(), "https://shop.example", "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Products)
	assert.NotNil(t, res.Products)
	assert.Zero(t, res.TotalFound)
	assert.Equal(t, models.PlatformGeneric, res.Platform)
	assert.True(t, strings.HasPrefix(res.Error, "Failed to fetch products from generic store"))
	assert.LessOrEqual(t, len([]rune(res.Error)), 200)
}

func TestDiscover_SanitizesHandlerOutput(t *testing.T) {
	neg := decimal.RequireFromString("-3")
	pos := decimal.RequireFromString("4.25")
	h := &fakeHandler{platform: models.PlatformGeneric, products: []models.DiscoveredProduct{
		{Name: "a", URL: "https://shop.example/a", Platform: models.PlatformGeneric, Price: &neg},
		{Name: "a again", URL: "https://shop.example/a", Platform: models.PlatformGeneric},
		{Name: "b", URL: "https://shop.example/b", Platform: models.PlatformGeneric, Price: &pos, Currency: "EUR"},
		{Name: "c", URL: "https://shop.example/c", Platform: models.PlatformGeneric},
	}}
	res, err := newService(t, h, WithMaxFetch(1000)).Discover(context.Background(), "https://shop.example", "", 2)
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	assert.Equal(t, 2, res.TotalFound)
	assert.Nil(t, res.Products[0].Price)
	assert.Equal(t, "USD", res.Products[0].Currency)
	assert.Equal(t, "b", res.Products[1].Name)
	assert.Equal(t, 1000, h.opts.MaxFetch)
	for _, p := range res.Products {
		if p.Price != nil {
			assert.False(t, p.Price.IsNegative())
		}
	}
}

func TestDiscover_ShopifyEndToEnd(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products.json" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`{"products":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"products": []map[string]any{
			{"id": 1, "title": "Velvet Lipstick", "handle": "velvet", "variants": []map[string]any{{"id": 5, "title": "Default Title", "price": "21.00"}}},
			{"id": 2, "title": "Face Mist", "handle": "mist", "body_html": "<p>not a lipstick</p>", "variants": []map[string]any{{"id": 6, "price": "9.00"}}},
			{"id": 3, "title": "Eye Liner", "handle": "liner", "variants": []map[string]any{{"id": 7, "price": "7.00"}}},
		}})
	}))
	defer srv.Close()

	fetch := scrape.NewFetcher(srv.Client(), 0)
	gen := &fakeHandler{platform: models.PlatformGeneric}
	d, err := platform.NewDetector([]platform.Registration{
		{Handler: shopify.New(fetch), Priority: 1},
		{Handler: gen, Priority: 100},
	})
	require.NoError(t, err)
	s := New(d, WithURLPolicy(platform.URLPolicy{AllowPrivateHosts: true}))

	res, err := s.Discover(context.Background(), srv.URL, "lipstick", 10)
	require.NoError(t, err)
	assert.Equal(t, models.PlatformShopify, res.Platform)
	assert.Empty(t, res.Error)
	require.Len(t, res.Products, 2)
	assert.Equal(t, "Velvet Lipstick", res.Products[0].Name)
	assert.Equal(t, "Face Mist", res.Products[1].Name)
	assert.Zero(t, gen.calls.Load())

	one, err := s.DiscoverSingleProduct(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "Velvet Lipstick", one.Name)
}

func TestDiscoverSingleProduct_None(t *testing.T) {
	h := &fakeHandler{platform: models.PlatformGeneric, err: errors.New("nothing here")}
	p, err := newService(t, h).DiscoverSingleProduct(context.Background(), "https://shop.example/p/1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestProductTypes(t *testing.T) {
	rows := ProductTypes([]models.DiscoveredProduct{
		{ProductType: "Lipstick"},
		{ProductType: "Lipstick"},
		{Tags: []string{"Gloss"}},
		{},
		{ProductType: "Blush"},
	})
	assert.Equal(t, []TypeCount{
		{Type: "Lipstick", Count: 2},
		{Type: "Blush", Count: 1},
		{Type: "Gloss", Count: 1},
		{Type: "Uncategorized", Count: 1},
	}, rows)
}
