package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

func storeProduct(id int, name string) map[string]any {
	return map[string]any{
		"id":          id,
		"name":        name,
		"slug":        fmt.Sprintf("p-%d", id),
		"permalink":   fmt.Sprintf("https://shop.example/product/p-%d/", id),
		"description": "<p>Handmade</p>",
		"categories":  []map[string]any{{"name": "Candles"}},
		"is_in_stock": true,
		"prices":      map[string]any{"price": "1999", "currency_code": "EUR", "currency_minor_unit": 2},
	}
}

// storeAPI serves a paged Store API catalog. search filters by exact name.
func storeAPI(t *testing.T, items []map[string]any, searchable bool) *httptest.Server {
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != storeEndpoint {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		list := items
		if s := q.Get("search"); s != "" {
			list = nil
			if searchable {
				for _, it := range items {
					if it["name"] == s {
						list = append(list, it)
					}
				}
			}
		}
		per, _ := strconv.Atoi(q.Get("per_page"))
		page, _ := strconv.Atoi(q.Get("page"))
		if page == 0 {
			page = 1
		}
		start := min((page-1)*per, len(list))
		end := min(start+per, len(list))
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(list[start:end]))
	}))
}

func TestFetch_StoreAPIMinorUnits(t *testing.T) {
	srv := storeAPI(t, []map[string]any{storeProduct(1, "Amber Candle")}, true)
	defer srv.Close()

	h := New(scrape.NewFetcher(srv.Client(), 0))
	got, err := h.Fetch(context.Background(), srv.URL, platform.FetchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "19.99", got[0].Price.String())
	assert.Equal(t, "EUR", got[0].Currency)
	assert.Equal(t, []string{"Candles"}, got[0].Tags)
	assert.Equal(t, "Handmade", got[0].Description)
	assert.Equal(t, "1", got[0].VariantID)
}

func TestFetch_NativeSearchFirst(t *testing.T) {
	items := []map[string]any{storeProduct(1, "Amber Candle"), storeProduct(2, "Pine Soap")}
	srv := storeAPI(t, items, true)
	defer srv.Close()

	got, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL, platform.FetchOptions{Keyword: "Pine Soap", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pine Soap", got[0].Name)
}

func TestFetch_FallsBackToFullCatalog(t *testing.T) {
	items := make([]map[string]any, 0, 99)
	for i := 1; i <= 99; i++ {
		name := fmt.Sprintf("Item %d", i)
		if i == 99 {
			name = "Limited match-term edition"
		}
		items = append(items, storeProduct(i, name))
	}
	srv := storeAPI(t, items, false)
	defer srv.Close()

	h := New(scrape.NewFetcher(srv.Client(), 0), WithPerPage(20))
	got, err := h.Fetch(context.Background(), srv.URL, platform.FetchOptions{Keyword: "match-term", Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Limited match-term edition", got[0].Name)
}

func TestFetch_CapNotMultipleOfPageSize(t *testing.T) {
	items := make([]map[string]any, 0, 150)
	for i := 1; i <= 150; i++ {
		name := fmt.Sprintf("Item %d", i)
		if i == 110 {
			name = "Deep match-term edition"
		}
		items = append(items, storeProduct(i, name))
	}
	srv := storeAPI(t, items, false)
	defer srv.Close()

	h := New(scrape.NewFetcher(srv.Client(), 0))
	all, err := h.Fetch(context.Background(), srv.URL, platform.FetchOptions{Limit: platform.MaxLimit, MaxFetch: 120})
	require.NoError(t, err)
	require.Len(t, all, 120)
	seen := map[string]bool{}
	for _, p := range all {
		seen[p.VariantID] = true
	}
	assert.Len(t, seen, 120)
	assert.Equal(t, "120", all[119].VariantID)

	got, err := h.Fetch(context.Background(), srv.URL, platform.FetchOptions{Keyword: "match-term", Limit: 10, MaxFetch: 120})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Deep match-term edition", got[0].Name)
}

func TestFetch_FallsBackToRESTv3(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/products" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id":7,"name":"Wax Melt","slug":"wax-melt","price":"4.50","stock_status":"outofstock",
"categories":[{"name":"Home"}],"tags":[{"name":"gift"}],"images":[{"src":"https://shop.example/w.jpg"}]}]`))
	}))
	defer srv.Close()

	got, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL, platform.FetchOptions{Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "4.5", got[0].Price.String())
	assert.Equal(t, "USD", got[0].Currency)
	assert.False(t, got[0].InStock)
	assert.Equal(t, []string{"Home", "gift"}, got[0].Tags)
	assert.Equal(t, srv.URL+"/product/wax-melt", got[0].URL)
}

func TestFetch_NoEndpoint(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL, platform.FetchOptions{Limit: 5})
	assert.ErrorIs(t, err, platform.ErrFetchFailed)
}

func TestDetect(t *testing.T) {
	woo := storeAPI(t, []map[string]any{storeProduct(1, "Amber Candle")}, true)
	defer woo.Close()
	empty := storeAPI(t, nil, true)
	defer empty.Close()

	ok, err := New(scrape.NewFetcher(woo.Client(), 0)).Detect(context.Background(), woo.URL+"/shop/")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = New(scrape.NewFetcher(empty.Client(), 0)).Detect(context.Background(), empty.URL)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExtractPrice(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == storeEndpoint && r.URL.Query().Get("slug") == "amber":
			w.Write([]byte(`[{"id":1,"prices":{"price":"2500","currency_code":"GBP","currency_minor_unit":2}}]`))
		case r.URL.Path == "/product/legacy/":
			w.Write([]byte(`<div class="summary"><p class="price"><del><span class="woocommerce-Price-amount">$30.00</span></del>
<ins><span class="woocommerce-Price-amount"><bdi>$24.00</bdi></span></ins></p></div>`))
		case r.URL.Path == storeEndpoint:
			w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := New(scrape.NewFetcher(srv.Client(), 0))
	a, err := h.ExtractPrice(context.Background(), srv.URL+"/product/amber/")
	require.NoError(t, err)
	assert.Equal(t, "25", a.Value.String())
	assert.Equal(t, "GBP", a.Currency)

	a, err = h.ExtractPrice(context.Background(), srv.URL+"/product/legacy/")
	require.NoError(t, err)
	assert.Equal(t, "24", a.Value.String())
}

func TestStorePricesAmount(t *testing.T) {
	zero := int32(0)
	a, ok := storePrices{Price: "1500", CurrencyCode: "jpy", CurrencyMinorUnit: &zero}.amount()
	require.True(t, ok)
	assert.Equal(t, "1500", a.Value.String())
	assert.Equal(t, "JPY", a.Currency)

	a, ok = storePrices{Price: "12.75"}.amount()
	require.True(t, ok)
	assert.Equal(t, "12.75", a.Value.String())
	assert.Equal(t, "USD", a.Currency)
}
