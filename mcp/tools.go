package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pricehawk/pricehawk-engine/internal/discovery"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
)

type tools struct {
	svc *Services
}

func registerTools(s *server.MCPServer, svc *Services) {
	t := &tools{svc: svc}

	// discover_store
	discoverTool := mcp.NewTool("discover_store",
		mcp.WithDescription("Detect a store's platform (Shopify, WooCommerce, Amazon, eBay or generic HTML) and list its products"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Store URL (https only)"),
		),
		mcp.WithString("keyword",
			mcp.Description("Space-separated words; a product matches if any word appears"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum products, 1-250 (default: 50)"),
		),
	)
	s.AddTool(discoverTool, t.handleDiscoverStore)

	// product_types
	typesTool := mcp.NewTool("product_types",
		mcp.WithDescription("Break down a store's catalog by product type"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Store URL (https only)"),
		),
		mcp.WithString("keyword",
			mcp.Description("Optional keyword filter"),
		),
	)
	s.AddTool(typesTool, t.handleProductTypes)

	// extract_price
	extractTool := mcp.NewTool("extract_price",
		mcp.WithDescription("Extract the current price of a product page, or of a tracked competitor by ID"),
		mcp.WithString("url",
			mcp.Description("Product page URL (https only)"),
		),
		mcp.WithString("competitor_id",
			mcp.Description("Tracked competitor ID; skips work already done this period"),
		),
	)
	s.AddTool(extractTool, t.handleExtractPrice)

	// price_history
	historyTool := mcp.NewTool("price_history",
		mcp.WithDescription("List recorded extraction results for a tracked competitor"),
		mcp.WithString("competitor_id",
			mcp.Required(),
			mcp.Description("Tracked competitor ID"),
		),
	)
	s.AddTool(historyTool, t.handlePriceHistory)

	// list_platforms
	platformsTool := mcp.NewTool("list_platforms",
		mcp.WithDescription("List supported platforms in detection order"),
	)
	s.AddTool(platformsTool, t.handleListPlatforms)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (t *tools) handleDiscoverStore(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	keyword := request.GetString("keyword", "")
	limit := request.GetInt("limit", 50)

	res, err := t.svc.Discovery.Discover(ctx, url, keyword, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (t *tools) handleProductTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	if url == "" {
		return mcp.NewToolResultError("url is required"), nil
	}

	res, err := t.svc.Discovery.Discover(ctx, url, request.GetString("keyword", ""), platform.MaxLimit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Error != "" {
		return mcp.NewToolResultError(res.Error), nil
	}
	return jsonResult(map[string]any{
		"platform": res.Platform,
		"sampled":  res.TotalFound,
		"types":    discovery.ProductTypes(res.Products),
	})
}

func (t *tools) handleExtractPrice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := request.GetString("url", "")
	id := request.GetString("competitor_id", "")
	if (url == "") == (id == "") {
		return mcp.NewToolResultError("pass exactly one of url or competitor_id"), nil
	}

	var (
		res models.ExtractionResult
		err error
	)
	if id != "" {
		res, err = t.svc.Scheduler.ExtractOne(ctx, id)
	} else {
		res, err = t.svc.Scheduler.ExtractOnce(ctx, url)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (t *tools) handlePriceHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("competitor_id", "")
	if id == "" {
		return mcp.NewToolResultError("competitor_id is required"), nil
	}
	if t.svc.Ledger == nil {
		return mcp.NewToolResultError("no ledger configured"), nil
	}

	hist, err := t.svc.Ledger.History(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history error: %v", err)), nil
	}
	if hist == nil {
		hist = []models.ExtractionResult{}
	}
	return jsonResult(hist)
}

func (t *tools) handleListPlatforms(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.svc.Detector.List())
}
