package ebay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/browser"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

const listing = `<ul class="srp-results">
<li class="s-item"><div class="s-item__title">Shop on eBay</div><a class="s-item__link" href="https://ebay.com/itm/123456"></a></li>
<li class="s-item">
  <a class="s-item__link" href="https://www.ebay.co.uk/itm/Vintage-Camera/2233445566?hash=x"><div class="s-item__title"><span>Vintage Camera</span></div></a>
  <img class="s-item__image-img" data-src="https://i.ebayimg.com/cam.jpg">
  <span class="s-item__price">£40.00 to £55.00</span>
  <span class="s-item__shipping">+£4.99 postage</span>
</li>
<li class="s-item">
  <a class="s-item__link" href="/itm/998877"><div class="s-item__title">Camera Strap</div></a>
  <span class="s-item__price">Price not shown</span>
</li>
</ul>`

func TestDetect(t *testing.T) {
	h := New(nil)
	cases := map[string]bool{
		"https://www.ebay.com/str/acmestore":          true,
		"https://www.ebay.co.uk/sch/i.html?_nkw=lamp": true,
		"https://www.ebay.de/b/Kameras/625/bn_1":      true,
		"https://www.ebay.com/usr/seller1":            true,
		"https://www.ebay.com/itm/123456":             false,
		"https://ebay.example.org/sch/i.html":         false,
	}
	for raw, want := range cases {
		got, err := h.Detect(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, raw)
	}
}

func TestOwnsProduct(t *testing.T) {
	h := New(nil)
	assert.True(t, h.OwnsProduct("https://www.ebay.com/itm/123456"))
	assert.True(t, h.OwnsProduct("https://www.ebay.de/itm/998877?var=2"))
	assert.False(t, h.OwnsProduct("https://ebay.example.org/itm/1"))
	assert.True(t, h.NeedsBrowser())
}

func TestFetch(t *testing.T) {
	var seen []string
	r := browser.Func(func(_ context.Context, u string) (string, error) {
		seen = append(seen, u)
		if len(seen) > 1 {
			return "<html></html>", nil
		}
		return listing, nil
	})

	got, err := New(r).Fetch(context.Background(), "https://www.ebay.co.uk/str/cameras", platform.FetchOptions{Keyword: "camera", Limit: 60})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{
		"https://www.ebay.co.uk/str/cameras?_nkw=camera",
		"https://www.ebay.co.uk/str/cameras?_nkw=camera&_pgn=2",
	}, seen)

	cam := got[0]
	assert.Equal(t, "Vintage Camera", cam.Name)
	assert.Equal(t, "2233445566", cam.VariantID)
	assert.Equal(t, "40", cam.Price.String(), "ranges resolve to the lower bound")
	assert.Equal(t, "GBP", cam.Currency)
	assert.Equal(t, "https://i.ebayimg.com/cam.jpg", cam.ImageURL)
	assert.Equal(t, "+£4.99 postage", cam.Extras["shipping"])

	strap := got[1]
	assert.Equal(t, "https://www.ebay.co.uk/itm/998877", strap.URL)
	assert.Equal(t, "998877", strap.VariantID)
	assert.Nil(t, strap.Price)
}

func TestExtractPrice(t *testing.T) {
	r := browser.Func(func(context.Context, string) (string, error) {
		return `<div class="x-price-primary"><span>US $129.95</span></div>`, nil
	})
	a, err := New(r).ExtractPrice(context.Background(), "https://www.ebay.com/itm/123")
	require.NoError(t, err)
	assert.Equal(t, "129.95", a.Value.String())
	assert.Equal(t, "USD", a.Currency)
}
