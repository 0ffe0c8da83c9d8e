package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out calls to the row store. *rate.Limiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer allows one call per interval, the first immediately. A
// non-positive interval never waits.
func NewPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Unpaced returns a Pacer that never waits.
func Unpaced() Pacer {
	return rate.NewLimiter(rate.Inf, 1)
}
