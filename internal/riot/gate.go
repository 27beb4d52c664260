package riot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate serializes upstream calls: at most one request in flight
// process-wide, with an enforced minimum delay between consecutive
// requests. The upstream quota is the binding constraint, not local CPU,
// so every call site funnels through here instead of fanning out.
type Gate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewGate(minInterval time.Duration) *Gate {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if minInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(minInterval), 1)
	}
	return &Gate{limiter: limiter}
}

// Do runs fn holding the gate. The limiter wait happens under the mutex so
// concurrent callers cannot compress the inter-call delay.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
