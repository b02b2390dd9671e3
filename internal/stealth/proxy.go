package stealth

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
)

// ProxyProvider abstracts a proxy backend.
type ProxyProvider interface {
	Transport() http.RoundTripper
	Name() string
}

// ProxyRotator cycles through proxy providers.
type ProxyRotator struct {
	providers []ProxyProvider
	mu        sync.Mutex
	idx       int
}

// NewProxyRotator creates a rotator. It returns nil if no providers are given.
func NewProxyRotator(providers []ProxyProvider) *ProxyRotator {
	if len(providers) == 0 {
		return nil
	}
	return &ProxyRotator{providers: providers}
}

// Next returns the next provider in round-robin order.
func (p *ProxyRotator) Next() ProxyProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	provider := p.providers[p.idx%len(p.providers)]
	p.idx++
	return provider
}

// DirectProvider routes traffic without a proxy.
type DirectProvider struct {
	transport http.RoundTripper
}

// NewDirectProvider wraps base; nil means http.DefaultTransport.
func NewDirectProvider(base http.RoundTripper) *DirectProvider {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DirectProvider{transport: base}
}

func (d *DirectProvider) Transport() http.RoundTripper { return d.transport }
func (d *DirectProvider) Name() string                 { return "direct" }

// HTTPProxyProvider routes through an HTTP(S) or SOCKS5 proxy URL.
type HTTPProxyProvider struct {
	proxyURL  *url.URL
	transport http.RoundTripper
	once      sync.Once
}

// NewHTTPProxyProvider parses rawURL. Supported schemes are http, https and socks5.
func NewHTTPProxyProvider(rawURL string) (*HTTPProxyProvider, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("parse proxy %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse proxy %q: missing host", rawURL)
	}
	return &HTTPProxyProvider{proxyURL: u}, nil
}

// Name returns the proxy host; credentials are never included.
func (h *HTTPProxyProvider) Name() string { return h.proxyURL.Scheme + "://" + h.proxyURL.Host }

func (h *HTTPProxyProvider) Transport() http.RoundTripper {
	h.once.Do(func() {
		h.transport = &http.Transport{
			Proxy:             http.ProxyURL(h.proxyURL),
			DisableKeepAlives: true,
		}
	})
	return h.transport
}

// LoadProxyFile reads one proxy URL per line. Blank lines and lines starting
// with # are skipped.
func LoadProxyFile(path string) ([]ProxyProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var providers []ProxyProvider
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		p, err := NewHTTPProxyProvider(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		providers = append(providers, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return providers, nil
}
