package stealth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

// RobotsChecker caches and checks robots.txt rules per origin.
type RobotsChecker struct {
	rules   *cache.Cache
	client  *http.Client
	enabled bool
}

// NewRobotsChecker creates a checker. client must not route through a
// StealthTransport that itself consults this checker.
func NewRobotsChecker(client *http.Client, enabled bool) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		rules:   cache.New(time.Hour, 10*time.Minute),
		client:  client,
		enabled: enabled,
	}
}

// IsAllowed reports whether rawURL may be fetched by userAgent. A robots.txt
// that cannot be fetched or parsed allows everything.
func (r *RobotsChecker) IsAllowed(ctx context.Context, userAgent, rawURL string) (bool, error) {
	if r == nil || !r.enabled {
		return true, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	if u.Path == "/robots.txt" {
		return true, nil
	}
	data, err := r.getRobots(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.Path), nil
}

// CrawlDelay returns the crawl delay robots.txt specifies for userAgent.
func (r *RobotsChecker) CrawlDelay(ctx context.Context, userAgent, origin string) time.Duration {
	if r == nil || !r.enabled {
		return 0
	}
	data, err := r.getRobots(ctx, origin)
	if err != nil {
		return 0
	}
	return data.FindGroup(userAgent).CrawlDelay
}

func (r *RobotsChecker) getRobots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if v, ok := r.rules.Get(origin); ok {
		return v.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	r.rules.SetDefault(origin, data)
	return data, nil
}
