package stealth

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// DelayProfile names a delay configuration.
type DelayProfile string

const (
	ProfileOff        DelayProfile = "off"
	ProfileCautious   DelayProfile = "cautious"
	ProfileNormal     DelayProfile = "normal"
	ProfileAggressive DelayProfile = "aggressive"
)

// HumanDelay adds randomized jitter between requests.
type HumanDelay struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

// NewHumanDelay creates a delay generator for the given profile.
// ProfileOff returns nil, which Wait treats as no delay.
func NewHumanDelay(profile DelayProfile) *HumanDelay {
	switch profile {
	case ProfileOff:
		return nil
	case ProfileCautious:
		return &HumanDelay{MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second}
	case ProfileAggressive:
		return &HumanDelay{MinDelay: 200 * time.Millisecond, MaxDelay: 800 * time.Millisecond}
	default:
		return &HumanDelay{MinDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
	}
}

// NewHumanDelayRange creates a delay generator with explicit bounds.
func NewHumanDelayRange(min, max time.Duration) *HumanDelay {
	if max < min {
		min, max = max, min
	}
	return &HumanDelay{MinDelay: min, MaxDelay: max}
}

// Wait sleeps for a random duration within the configured range.
func (h *HumanDelay) Wait(ctx context.Context) error {
	if h == nil || h.MaxDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(h.RequestDelay())
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestDelay returns a random delay for a single request.
func (h *HumanDelay) RequestDelay() time.Duration {
	if h == nil {
		return 0
	}
	return randomBetween(h.MinDelay, h.MaxDelay)
}

// PageBrowseDelay returns a longer delay for between-page navigation.
func (h *HumanDelay) PageBrowseDelay() time.Duration {
	if h == nil {
		return 0
	}
	return randomBetween(h.MaxDelay, h.MaxDelay*2)
}

func randomBetween(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc backed by a real timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer spaces out requests that share a key (a platform or a host) by a
// random HumanDelay interval. Distinct keys do not wait on each other.
type Pacer struct {
	delay *HumanDelay
	sleep SleepFunc
	now   func() time.Time

	mu   sync.Mutex
	next map[string]time.Time
}

// NewPacer returns a pacer. A nil sleep uses Sleep.
func NewPacer(delay *HumanDelay, sleep SleepFunc) *Pacer {
	if sleep == nil {
		sleep = Sleep
	}
	return &Pacer{delay: delay, sleep: sleep, now: time.Now, next: make(map[string]time.Time)}
}

// Wait reserves the next slot for key and blocks until it opens.
// The first request for a key never waits.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	if p == nil || p.delay == nil {
		return ctx.Err()
	}
	p.mu.Lock()
	now := p.now()
	slot, ok := p.next[key]
	if !ok || slot.Before(now) {
		slot = now
	}
	p.next[key] = slot.Add(p.delay.RequestDelay())
	p.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		return p.sleep(ctx, d)
	}
	return ctx.Err()
}
