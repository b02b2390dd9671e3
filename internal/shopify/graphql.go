package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/scrape"
)

const productsQuery = `query Products($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        title
        handle
        description
        productType
        tags
        vendor
        onlineStoreUrl
        featuredImage { url }
        variants(first: 100) {
          edges {
            node {
              id
              title
              sku
              availableForSale
              price { amount currencyCode }
            }
          }
        }
      }
    }
  }
}`

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data struct {
		Products struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node gqlProduct `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type gqlProduct struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Handle         string   `json:"handle"`
	Description    string   `json:"description"`
	ProductType    string   `json:"productType"`
	Tags           []string `json:"tags"`
	Vendor         string   `json:"vendor"`
	OnlineStoreURL string   `json:"onlineStoreUrl"`
	FeaturedImage  *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	Variants struct {
		Edges []struct {
			Node gqlVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type gqlVariant struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	SKU              string `json:"sku"`
	AvailableForSale bool   `json:"availableForSale"`
	Price            *struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"price"`
}

// fetchGraphQL tries each API version until one returns products.
func (h *Handler) fetchGraphQL(ctx context.Context, base string, maxFetch int) ([]models.DiscoveredProduct, error) {
	var lastErr error
	for _, v := range h.versions {
		products, err := h.graphqlVersion(ctx, base, v, maxFetch)
		if err == nil && len(products) > 0 {
			h.log.WithField("version", v).Debug("storefront GraphQL answered")
			return products, nil
		}
		if err != nil {
			lastErr = err
			h.log.WithError(err).WithField("version", v).Debug("storefront GraphQL version rejected")
		}
		if ctx.Err() != nil {
			return nil, platform.FetchError("shopify graphql", ctx.Err())
		}
	}
	return nil, lastErr
}

func (h *Handler) graphqlVersion(ctx context.Context, base, version string, maxFetch int) ([]models.DiscoveredProduct, error) {
	endpoint := fmt.Sprintf("%s/api/%s/graphql.json", base, version)
	var out []models.DiscoveredProduct
	var after *string
	fetched := 0

	for fetched < maxFetch {
		req := gqlRequest{
			Query:     productsQuery,
			Variables: map[string]any{"first": min(h.pageSize, maxFetch-fetched), "after": after},
		}
		var resp gqlResponse
		if err := h.fetch.PostJSON(ctx, endpoint, req, &resp); err != nil {
			if code := scrape.StatusCode(err); code == http.StatusForbidden || code == http.StatusNotFound {
				return nil, err
			}
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		if len(resp.Errors) > 0 {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, platform.ParseError("shopify graphql "+version, fmt.Errorf("%s", strings.Join(msgs, "; ")))
		}

		page := resp.Data.Products
		for _, e := range page.Edges {
			fetched++
			out = append(out, gqlToProducts(base, e.Node)...)
		}
		if !page.PageInfo.HasNextPage || page.PageInfo.EndCursor == "" || len(page.Edges) == 0 {
			break
		}
		cursor := page.PageInfo.EndCursor
		after = &cursor
	}
	return out, nil
}

func gqlToProducts(base string, p gqlProduct) []models.DiscoveredProduct {
	image := ""
	if p.FeaturedImage != nil {
		image = p.FeaturedImage.URL
	}
	variants := p.Variants.Edges
	multi := len(variants) > 1

	link := func(vid string) string {
		if p.OnlineStoreURL != "" {
			if multi && vid != "" {
				return p.OnlineStoreURL + "?variant=" + vid
			}
			return p.OnlineStoreURL
		}
		return productURL(base, p.Handle, vid, multi)
	}

	if len(variants) == 0 {
		dp := models.NewProduct(models.PlatformShopify, p.Title, link(""))
		fillGQL(&dp, p, image)
		return []models.DiscoveredProduct{dp}
	}

	out := make([]models.DiscoveredProduct, 0, len(variants))
	for _, e := range variants {
		v := e.Node
		vid := gidNumber(v.ID)
		dp := models.NewProduct(models.PlatformShopify, variantName(p.Title, v.Title), link(vid))
		fillGQL(&dp, p, image)
		dp.VariantID = vid
		dp.SKU = v.SKU
		dp.InStock = v.AvailableForSale
		if v.Price != nil {
			if d, err := pricing.ParseDecimal(v.Price.Amount); err == nil {
				dp.SetPrice(d)
			}
			if v.Price.CurrencyCode != "" {
				dp.Currency = v.Price.CurrencyCode
			}
		}
		out = append(out, dp)
	}
	return out
}

func fillGQL(dp *models.DiscoveredProduct, p gqlProduct, image string) {
	dp.ProductType = p.ProductType
	dp.Tags = p.Tags
	dp.Description = p.Description
	dp.ImageURL = image
	dp.Extras = map[string]any{"product_id": gidNumber(p.ID), "handle": p.Handle}
	if p.Vendor != "" {
		dp.Extras["vendor"] = p.Vendor
	}
}

// gidNumber turns "gid://shopify/ProductVariant/123" into "123".
func gidNumber(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}
