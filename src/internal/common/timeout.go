package common

import (
	"context"
	"time"
)

// CreateContext returns a context that times out after the given duration
func CreateContext(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
