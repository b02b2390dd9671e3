package stealth

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrBlockedByRobots is returned for URLs disallowed by the site's
// robots.txt. It is permanent for the URL and not worth retrying.
var ErrBlockedByRobots = errors.New("blocked by robots.txt")

// StealthTransport is an http.RoundTripper that applies the anti-blocking
// pipeline: Fingerprint → RobotsCheck → RateLimiter → HumanDelay → Proxy → Send.
// Every stage is optional.
type StealthTransport struct {
	Base        http.RoundTripper
	Robots      *RobotsChecker
	Fingerprint *FingerprintPool
	Proxy       *ProxyRotator
	Delay       *HumanDelay
	RateLimiter *rate.Limiter
}

func (t *StealthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	ua := req.Header.Get("User-Agent")
	if t.Fingerprint != nil {
		fp := t.Fingerprint.Next()
		ua = fp.UserAgent
		req.Header.Set("User-Agent", ua)
		for key, vals := range fp.Headers {
			if req.Header.Get(key) == "" {
				for _, v := range vals {
					req.Header.Add(key, v)
				}
			}
		}
	}

	if t.Robots != nil {
		allowed, err := t.Robots.IsAllowed(req.Context(), ua, req.URL.String())
		if err == nil && !allowed {
			return nil, fmt.Errorf("%w: %s", ErrBlockedByRobots, req.URL.Path)
		}
	}

	if t.RateLimiter != nil {
		if err := t.RateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if err := t.Delay.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}

	transport := t.Base
	if t.Proxy != nil {
		transport = t.Proxy.Next().Transport()
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}
