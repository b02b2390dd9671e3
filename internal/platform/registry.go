package platform

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pricehawk/pricehawk-engine/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultCacheTTL     = 10 * time.Minute
)

// Registration binds a handler to its priority rank (lower is tried first).
type Registration struct {
	Handler  Handler
	Priority int
}

// Detector owns the ordered handler list for the lifetime of the process.
// It keeps no per-call state apart from the host → platform cache.
type Detector struct {
	entries    []Registration
	byPlatform map[models.Platform]Handler
	fallback   Handler
	timeout    time.Duration
	cache      *cache.Cache
	log        logrus.FieldLogger
}

type DetectorOption func(*Detector)

// WithProbeTimeout bounds each handler's Detect call.
func WithProbeTimeout(d time.Duration) DetectorOption {
	return func(dt *Detector) {
		if d > 0 {
			dt.timeout = d
		}
	}
}

// WithCacheTTL sets how long a host's detected platform is remembered.
// Zero disables the cache.
func WithCacheTTL(ttl time.Duration) DetectorOption {
	return func(dt *Detector) {
		if ttl <= 0 {
			dt.cache = nil
			return
		}
		dt.cache = cache.New(ttl, 2*ttl)
	}
}

func WithLogger(l logrus.FieldLogger) DetectorOption {
	return func(dt *Detector) {
		if l != nil {
			dt.log = l
		}
	}
}

// NewDetector sorts regs by priority. One registration must be the generic
// handler; it is the terminal fallback.
func NewDetector(regs []Registration, opts ...DetectorOption) (*Detector, error) {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	d := &Detector{
		byPlatform: make(map[models.Platform]Handler, len(regs)),
		timeout:    DefaultProbeTimeout,
		cache:      cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		log:        silent,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.entries = append([]Registration(nil), regs...)
	sort.SliceStable(d.entries, func(i, j int) bool {
		return d.entries[i].Priority < d.entries[j].Priority
	})
	for _, r := range d.entries {
		p := r.Handler.Platform()
		if _, dup := d.byPlatform[p]; dup {
			return nil, fmt.Errorf("platform %q registered twice", p)
		}
		d.byPlatform[p] = r.Handler
		if p == models.PlatformGeneric {
			d.fallback = r.Handler
		}
	}
	if d.fallback == nil {
		return nil, fmt.Errorf("platform %q must be registered as the fallback", models.PlatformGeneric)
	}
	return d, nil
}

// Detect returns the first handler, in priority order, whose probe matches.
// Probe errors, panics and timeouts count as non-matches. It never returns nil.
func (d *Detector) Detect(ctx context.Context, storeURL string) Handler {
	key := cacheKey(storeURL)
	if d.cache != nil && key != "" {
		if v, ok := d.cache.Get(key); ok {
			if h, ok := d.byPlatform[v.(models.Platform)]; ok {
				return h
			}
		}
	}

	for _, r := range d.entries {
		if ctx.Err() != nil {
			break
		}
		ok, err := d.probe(ctx, r.Handler, storeURL)
		log := d.log.WithFields(logrus.Fields{"platform": r.Handler.Platform(), "url": storeURL})
		if err != nil {
			log.WithError(err).Debug("detection probe inconclusive")
			continue
		}
		if ok {
			log.Debug("platform detected")
			d.remember(key, r.Handler.Platform())
			return r.Handler
		}
	}
	return d.fallback
}

// ForProduct returns the handler for a single product page: the first
// ProductOwner, in priority order, that claims productURL, else Detect.
func (d *Detector) ForProduct(ctx context.Context, productURL string) Handler {
	for _, r := range d.entries {
		if o, ok := r.Handler.(ProductOwner); ok && o.OwnsProduct(productURL) {
			return r.Handler
		}
	}
	return d.Detect(ctx, productURL)
}

func (d *Detector) probe(ctx context.Context, h Handler, storeURL string) (ok bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: probe panic: %v", ErrDetectionInconclusive, r)}
			}
		}()
		ok, err := h.Detect(ctx, storeURL)
		ch <- outcome{ok: ok, err: err}
	}()

	select {
	case o := <-ch:
		return o.ok, o.err
	case <-ctx.Done():
		return false, fmt.Errorf("%w: %w", ErrDetectionInconclusive, ctx.Err())
	}
}

// The generic fallback is not cached so a transiently failing probe gets
// another chance on the next call.
func (d *Detector) remember(key string, p models.Platform) {
	if d.cache != nil && key != "" && p != models.PlatformGeneric {
		d.cache.Set(key, p, cache.DefaultExpiration)
	}
}

// Get returns the handler registered for a platform tag.
func (d *Detector) Get(name string) (Handler, error) {
	p, ok := models.ParsePlatform(name)
	if !ok {
		return nil, fmt.Errorf("platform %q not registered", name)
	}
	h, ok := d.byPlatform[p]
	if !ok {
		return nil, fmt.Errorf("platform %q not registered", name)
	}
	return h, nil
}

// List returns the registered platforms in priority order.
func (d *Detector) List() []models.Platform {
	names := make([]models.Platform, 0, len(d.entries))
	for _, r := range d.entries {
		names = append(names, r.Handler.Platform())
	}
	return names
}

// cacheKey keys Amazon/eBay-style URLs by host and path shape, since
// detection there depends on more than the host.
func cacheKey(storeURL string) string {
	u, err := url.Parse(storeURL)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	seg := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]
	return host + "/" + seg
}
