package stealth

import (
	"net/http"
	"strings"
	"sync"
)

// Fingerprint is a browser identity with a matching UA and headers.
type Fingerprint struct {
	UserAgent string
	Headers   http.Header
}

// FingerprintPool rotates through a set of browser fingerprints.
type FingerprintPool struct {
	fingerprints []Fingerprint
	mu           sync.Mutex
	idx          int
}

// NewFingerprintPool creates a pool from the given user agents, or from the
// built-in desktop set when none are given.
func NewFingerprintPool(userAgents ...string) *FingerprintPool {
	var fps []Fingerprint
	for _, ua := range userAgents {
		ua = strings.TrimSpace(ua)
		if ua == "" {
			continue
		}
		fps = append(fps, fingerprintFor(ua))
	}
	if len(fps) == 0 {
		fps = defaultFingerprints()
	}
	return &FingerprintPool{fingerprints: fps}
}

// Next returns the next fingerprint in round-robin order.
func (fp *FingerprintPool) Next() Fingerprint {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	f := fp.fingerprints[fp.idx%len(fp.fingerprints)]
	fp.idx++
	return f
}

// Len reports the pool size.
func (fp *FingerprintPool) Len() int { return len(fp.fingerprints) }

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:135.0) Gecko/20100101 Firefox/135.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36 Edg/133.0.0.0",
}

func defaultFingerprints() []Fingerprint {
	fps := make([]Fingerprint, 0, len(defaultUserAgents))
	for _, ua := range defaultUserAgents {
		fps = append(fps, fingerprintFor(ua))
	}
	return fps
}

func fingerprintFor(ua string) Fingerprint {
	if strings.Contains(ua, "Firefox/") {
		return Fingerprint{UserAgent: ua, Headers: firefoxHeaders()}
	}
	return Fingerprint{UserAgent: ua, Headers: chromeHeaders(chromeVersion(ua), chromePlatform(ua))}
}

func chromeVersion(ua string) string {
	_, rest, ok := strings.Cut(ua, "Chrome/")
	if !ok {
		return "133"
	}
	major, _, _ := strings.Cut(rest, ".")
	return major
}

func chromePlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Windows"
	}
}

func chromeHeaders(version, platform string) http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Sec-Ch-Ua", `"Chromium";v="`+version+`", "Not(A:Brand";v="99", "Google Chrome";v="`+version+`"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"`+platform+`"`)
	return h
}

func firefoxHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	return h
}
