package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/discovery"
	"github.com/pricehawk/pricehawk-engine/internal/extraction"
	"github.com/pricehawk/pricehawk-engine/internal/ledger"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/pricing"
	"github.com/pricehawk/pricehawk-engine/internal/tracking"
)

type storeStub struct{}

func (storeStub) Platform() models.Platform { return models.PlatformGeneric }

func (storeStub) Detect(context.Context, string) (bool, error) { return true, nil }

func (storeStub) Fetch(_ context.Context, u string, _ platform.FetchOptions) ([]models.DiscoveredProduct, error) {
	a := models.NewProduct(models.PlatformGeneric, "Velvet Lipstick", u+"/p/1")
	a.ProductType = "Lipstick"
	a.SetPrice(decimal.RequireFromString("12.50"))
	b := models.NewProduct(models.PlatformGeneric, "Hydrating Serum", u+"/p/2")
	b.ProductType = "Skincare"
	return []models.DiscoveredProduct{a, b}, nil
}

func (storeStub) ExtractPrice(context.Context, string) (pricing.Amount, error) {
	return pricing.Amount{Value: decimal.RequireFromString("12.50"), Currency: "USD"}, nil
}

func newTestTools(t *testing.T) *tools {
	t.Helper()
	d, err := platform.NewDetector([]platform.Registration{{Handler: storeStub{}, Priority: 100}})
	require.NoError(t, err)
	dir, err := tracking.New([]tracking.Competitor{{ID: "rival-lipstick", URL: "https://rival.example/p/1"}}, platform.URLPolicy{})
	require.NoError(t, err)

	mem := ledger.NewMemory(time.Hour)
	cfg := extraction.DefaultConfig()
	cfg.DelayMax = 0
	return &tools{svc: &Services{
		Detector:  d,
		Discovery: discovery.New(d),
		Scheduler: extraction.New(d, dir, mem, cfg, extraction.WithRecorder(mem)),
		Ledger:    mem,
	}}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestDiscoverStore(t *testing.T) {
	tt := newTestTools(t)

	res, err := tt.handleDiscoverStore(context.Background(), call(map[string]any{"url": "https://rival.example", "keyword": "lipstick"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var got models.DiscoveryResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, models.PlatformGeneric, got.Platform)
	assert.Equal(t, 2, got.TotalFound, "the handler owns keyword filtering")

	res, err = tt.handleDiscoverStore(context.Background(), call(map[string]any{"url": "http://rival.example"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "https")
}

func TestProductTypes(t *testing.T) {
	tt := newTestTools(t)

	res, err := tt.handleProductTypes(context.Background(), call(map[string]any{"url": "https://rival.example"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, text(t, res), `"Lipstick"`)
	assert.Contains(t, text(t, res), `"Skincare"`)
}

func TestExtractPriceAndHistory(t *testing.T) {
	tt := newTestTools(t)
	ctx := context.Background()

	res, err := tt.handleExtractPrice(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tt.handleExtractPrice(ctx, call(map[string]any{"competitor_id": "rival-lipstick"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var got models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "12.5", got.Price.String())

	res, err = tt.handleExtractPrice(ctx, call(map[string]any{"competitor_id": "nobody"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tt.handlePriceHistory(ctx, call(map[string]any{"competitor_id": "rival-lipstick"}))
	require.NoError(t, err)
	var hist []models.ExtractionResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &hist))
	assert.Len(t, hist, 1)

	res, err = tt.handleExtractPrice(ctx, call(map[string]any{"url": "https://rival.example/p/9"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
}

func TestListPlatforms(t *testing.T) {
	tt := newTestTools(t)
	res, err := tt.handleListPlatforms(context.Background(), call(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `["generic"]`, text(t, res))
}

func TestHTTPHandler_Auth(t *testing.T) {
	srv := httptest.NewServer(newHTTPHandler(newTestTools(t).svc, "s3cret"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/mcp", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
}
