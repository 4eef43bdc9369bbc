package ctxutil

import (
	"context"
	"time"
)

type key int

const keyRequestID key = iota

// DefaultDBTimeout bounds every repository call.
var DefaultDBTimeout = 5 * time.Second

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestID(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(keyRequestID).(string)
	return s, ok
}

// WithDBTimeout derives a context bounded by DefaultDBTimeout, or by what is left of the parent's deadline if shorter.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		if remain := time.Until(dl); remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
