package platform

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type slotsKey struct{}

type browserSlots struct {
	sem  *semaphore.Weighted
	held bool
}

// WithBrowserSlots returns a context in which every page render must take
// one of sem's slots.
func WithBrowserSlots(ctx context.Context, sem *semaphore.Weighted) context.Context {
	if sem == nil {
		return ctx
	}
	return context.WithValue(ctx, slotsKey{}, &browserSlots{sem: sem})
}

// AcquireBrowserSlot takes a slot from the limiter in ctx. The returned
// context marks the slot as held, so nested renders under it do not wait
// a second time. Without a limiter, or with a slot already held, it is a
// no-op.
func AcquireBrowserSlot(ctx context.Context) (context.Context, func(), error) {
	s, ok := ctx.Value(slotsKey{}).(*browserSlots)
	if !ok || s.held {
		return ctx, func() {}, nil
	}
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return ctx, func() {}, err
	}
	var once sync.Once
	held := context.WithValue(ctx, slotsKey{}, &browserSlots{sem: s.sem, held: true})
	return held, func() { once.Do(func() { s.sem.Release(1) }) }, nil
}
