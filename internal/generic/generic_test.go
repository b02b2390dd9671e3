package generic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/browser"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

const cssPage = `<html><body><div class="products">
<div class="product-card"><a href="/p/red-lipstick"><h3 class="product-title">Ruby Lipstick</h3></a>
  <img class="product-image" data-src="/img/ruby.jpg"><span class="price">$12.00</span></div>
<div class="product-card"><a href="/p/gloss"><h3 class="product-title">Clear Gloss</h3></a>
  <span class="price">Sold out</span></div>
<div class="product-card"><a href="/p/red-lipstick"><h3 class="product-title">Ruby Lipstick</h3></a></div>
</div></body></html>`

func serve(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
}

func TestDetectAlwaysMatches(t *testing.T) {
	ok, err := New(nil).Detect(context.Background(), "https://anything.example")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFetch_CSSCards(t *testing.T) {
	srv := serve(t, map[string]string{"/shop": cssPage})
	defer srv.Close()

	got, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL+"/shop", platform.FetchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2, "duplicate card urls collapse")

	assert.Equal(t, "Ruby Lipstick", got[0].Name)
	assert.Equal(t, srv.URL+"/p/red-lipstick", got[0].URL)
	assert.Equal(t, srv.URL+"/img/ruby.jpg", got[0].ImageURL)
	assert.Equal(t, "12", got[0].Price.String())

	assert.Nil(t, got[1].Price)
	assert.False(t, got[1].InStock)
}

func TestFetch_PrefersJSONLDAndFilters(t *testing.T) {
	page := `<html><head><script type="application/ld+json">[
{"@type":"Product","name":"Matte Lipstick","url":"/p/matte","offers":{"price":"18.00","priceCurrency":"GBP"}},
{"@type":"Product","name":"Hand Cream","url":"/p/cream","offers":{"price":"7.00","priceCurrency":"GBP"}}
]</script></head><body>` + cssPage + `</body></html>`
	srv := serve(t, map[string]string{"/": page})
	defer srv.Close()

	got, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL+"/", platform.FetchOptions{Keyword: "lipstick", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Matte Lipstick", got[0].Name)
	assert.Equal(t, "GBP", got[0].Currency)
	assert.Equal(t, "json-ld", got[0].Extras["source"])
}

func TestFetch_RendersWhenStaticIsEmpty(t *testing.T) {
	srv := serve(t, map[string]string{"/": `<html><body><div id="app"></div></body></html>`})
	defer srv.Close()

	var renders atomic.Int32
	r := browser.Func(func(context.Context, string) (string, error) {
		renders.Add(1)
		return cssPage, nil
	})
	got, err := New(scrape.NewFetcher(srv.Client(), 0), WithRenderer(r)).Fetch(context.Background(), srv.URL+"/", platform.FetchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(1), renders.Load())
}

func TestFetch_NoRendererReturnsFetchError(t *testing.T) {
	srv := serve(t, nil)
	defer srv.Close()

	_, err := New(scrape.NewFetcher(srv.Client(), 0)).Fetch(context.Background(), srv.URL+"/missing", platform.FetchOptions{Limit: 10})
	assert.ErrorIs(t, err, platform.ErrFetchFailed)
}

func TestExtractPrice(t *testing.T) {
	srv := serve(t, map[string]string{
		"/ld":   `<script type="application/ld+json">{"@type":"Product","name":"X","offers":{"price":"0"}}</script><meta property="product:price:amount" content="42.10"><meta property="product:price:currency" content="AUD">`,
		"/shop": `<link href="//cdn.shopify.com/s/files/theme.css"><span class="price-item--sale">$19.00</span><span class="price">$25.00</span>`,
		"/none": `<p>contact us for pricing</p>`,
	})
	defer srv.Close()

	h := New(scrape.NewFetcher(srv.Client(), 0))
	ctx := context.Background()

	a, err := h.ExtractPrice(ctx, srv.URL+"/ld")
	require.NoError(t, err)
	assert.Equal(t, "42.1", a.Value.String())
	assert.Equal(t, "AUD", a.Currency)

	a, err = h.ExtractPrice(ctx, srv.URL+"/shop")
	require.NoError(t, err)
	assert.Equal(t, "19", a.Value.String())

	_, err = h.ExtractPrice(ctx, srv.URL+"/none")
	assert.ErrorIs(t, err, platform.ErrParseFailed)
}

func TestSelectorsFor(t *testing.T) {
	sel := SelectorsFor("www.amazon.com", nil)
	assert.Equal(t, scrape.AmazonPriceSelectors[0], sel[0])
	assert.Equal(t, scrape.GenericPriceSelectors[len(scrape.GenericPriceSelectors)-1], sel[len(sel)-1])

	assert.Equal(t, scrape.GenericPriceSelectors, SelectorsFor("shop.example", nil))
}
