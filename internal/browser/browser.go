// Package browser renders JavaScript-heavy pages with a headless Chromium
// driven by rod.
package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pricehawk/pricehawk-engine/internal/platform"
	"github.com/pricehawk/pricehawk-engine/internal/stealth"
	"golang.org/x/sync/semaphore"
)

// Renderer returns the fully rendered HTML of a page.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

type Options struct {
	// ControlURL attaches to a running browser's DevTools websocket instead
	// of launching a local one.
	ControlURL string
	// Bin overrides the Chromium binary used for local launches.
	Bin string
	// MaxPages bounds concurrently open pages.
	MaxPages int
	// SettleTimeout bounds the wait for the DOM to stop changing.
	SettleTimeout time.Duration
	Fingerprints  *stealth.FingerprintPool
}

// Pool launches one browser per render and never keeps more than
// Options.MaxPages pages open.
type Pool struct {
	opts Options
	sem  *semaphore.Weighted
}

func NewPool(opts Options) *Pool {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 15 * time.Second
	}
	if opts.Fingerprints == nil {
		opts.Fingerprints = stealth.NewFingerprintPool()
	}
	return &Pool{opts: opts, sem: semaphore.NewWeighted(int64(opts.MaxPages))}
}

func (p *Pool) Render(ctx context.Context, pageURL string) (string, error) {
	ctx, release, err := platform.AcquireBrowserSlot(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	page, cleanup, err := p.openPage(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer cleanup()

	settled := page.Timeout(p.opts.SettleTimeout)
	if err := settled.WaitLoad(); err == nil {
		_ = settled.WaitDOMStable(2*time.Second, 0.1)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("get page HTML: %w", err)
	}
	return html, nil
}

func (p *Pool) openPage(ctx context.Context, pageURL string) (*rod.Page, func(), error) {
	controlURL := p.opts.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(true).Logger(io.Discard)
		if p.opts.Bin != "" {
			l = l.Bin(p.opts.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}

	closeAll := func() {
		if l != nil {
			browser.Close()
			l.Cleanup()
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("open page: %w", err)
	}

	fp := p.opts.Fingerprints.Next()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.UserAgent,
		AcceptLanguage: fp.Headers.Get("Accept-Language"),
	}); err != nil {
		page.Close()
		closeAll()
		return nil, nil, fmt.Errorf("set user agent: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080}); err != nil {
		page.Close()
		closeAll()
		return nil, nil, fmt.Errorf("set viewport: %w", err)
	}
	if err := page.Navigate(pageURL); err != nil {
		page.Close()
		closeAll()
		return nil, nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	cleanup := func() {
		page.Close()
		closeAll()
	}
	return page, cleanup, nil
}

// Func adapts a function to a Renderer.
type Func func(ctx context.Context, pageURL string) (string, error)

func (f Func) Render(ctx context.Context, pageURL string) (string, error) { return f(ctx, pageURL) }
