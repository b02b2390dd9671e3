package platform

import (
	"context"
	"fmt"
)

// ProgressFunc receives human-readable progress messages.
type ProgressFunc func(msg string)

type progressKey struct{}

// WithProgress returns a context carrying the given progress callback.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress formats and forwards a message to the callback in ctx.
// It is a no-op when none is set (e.g. MCP mode).
func ReportProgress(ctx context.Context, format string, args ...any) {
	fn, ok := ctx.Value(progressKey{}).(ProgressFunc)
	if !ok || fn == nil {
		return
	}
	if len(args) == 0 {
		fn(format)
		return
	}
	fn(fmt.Sprintf(format, args...))
}
