package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

type feedProduct struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Handle      string          `json:"handle"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Tags        json.RawMessage `json:"tags"`
	Variants    []feedVariant   `json:"variants"`
	Images      []struct {
		Src string `json:"src"`
	} `json:"images"`
}

type feedVariant struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	SKU            string  `json:"sku"`
	Available      *bool   `json:"available"`
	FeaturedImage  *struct {
		Src string `json:"src"`
	} `json:"featured_image"`
}

type feedPage struct {
	Products []feedProduct `json:"products"`
}

// fetchFeed walks /products.json page by page until an empty page or until
// maxFetch products have been read.
func (h *Handler) fetchFeed(ctx context.Context, base string, maxFetch int) ([]models.DiscoveredProduct, error) {
	var out []models.DiscoveredProduct
	fetched := 0
	for page := 1; fetched < maxFetch; page++ {
		var fp feedPage
		u := fmt.Sprintf("%s/products.json?limit=%d&page=%d", base, h.pageSize, page)
		if err := h.fetch.JSON(ctx, u, &fp); err != nil {
			if len(out) > 0 {
				h.log.WithError(err).WithField("page", page).Warn("products feed stopped early")
				return out, nil
			}
			return nil, err
		}
		if len(fp.Products) == 0 {
			break
		}
		for _, p := range fp.Products {
			if fetched >= maxFetch {
				break
			}
			fetched++
			out = append(out, feedToProducts(base, p)...)
		}
		platform.ReportProgress(ctx, "Shopify: %d products fetched", fetched)
	}
	return out, nil
}

func feedToProducts(base string, p feedProduct) []models.DiscoveredProduct {
	image := ""
	if len(p.Images) > 0 {
		image = p.Images[0].Src
	}
	tags := parseTags(p.Tags)
	desc := scrape.PlainText(p.BodyHTML)

	variants := p.Variants
	if len(variants) == 0 {
		variants = []feedVariant{{}}
	}
	multi := len(variants) > 1

	out := make([]models.DiscoveredProduct, 0, len(variants))
	for _, v := range variants {
		vid := ""
		if v.ID != 0 {
			vid = strconv.FormatInt(v.ID, 10)
		}
		dp := models.NewProduct(models.PlatformShopify, variantName(p.Title, v.Title), productURL(base, p.Handle, vid, multi))
		dp.VariantID = vid
		dp.SKU = v.SKU
		dp.ProductType = p.ProductType
		dp.Tags = tags
		dp.Description = desc
		dp.ImageURL = image
		if v.FeaturedImage != nil && v.FeaturedImage.Src != "" {
			dp.ImageURL = v.FeaturedImage.Src
		}
		if v.Available != nil {
			dp.InStock = *v.Available
		}
		if d, err := pricing.ParseDecimal(v.Price); err == nil {
			dp.SetPrice(d)
		}
		dp.Extras = map[string]any{
			"product_id": p.ID,
			"handle":     p.Handle,
		}
		if p.Vendor != "" {
			dp.Extras["vendor"] = p.Vendor
		}
		if v.CompareAtPrice != nil && *v.CompareAtPrice != "" {
			dp.Extras["compare_at_price"] = *v.CompareAtPrice
		}
		out = append(out, dp)
	}
	return out
}

// parseTags accepts both a JSON array and the comma-joined string form.
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) != nil {
		var joined string
		if json.Unmarshal(raw, &joined) != nil {
			return nil
		}
		list = strings.Split(joined, ",")
	}
	out := make([]string, 0, len(list))
	for _, t := range list {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
