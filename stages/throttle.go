package stages

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pipelab/go-manifold"
)

// Throttle paces item flow through a rate limiter. Each item waits for a
// token before passing through unchanged, so a parallel stage downstream
// cannot outrun the configured rate.
//
// Conf keys:
//   - rate: allowed items per second, 10 by default
//   - burst: token bucket size, 1 by default
//
// The limiter is built from the first configuration the instance sees and is
// shared for the instance's lifetime.
type Throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

var _ manifold.Processor = (*Throttle)(nil)

// NewThrottle creates the throttle stage.
func NewThrottle() *Throttle {
	return &Throttle{}
}

// Name implements Stage interface for Throttle.
func (*Throttle) Name() string { return "throttle" }

// Kind implements Stage interface for Throttle.
func (*Throttle) Kind() manifold.Kind { return manifold.KindProcessor }

// Process implements Processor interface for Throttle.
func (t *Throttle) Process(ctx context.Context, item any, conf manifold.Conf) ([]any, error) {
	if err := t.limiterFor(conf).Wait(ctx); err != nil {
		return nil, err
	}
	return []any{item}, nil
}

func (t *Throttle) limiterFor(conf manifold.Conf) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limiter == nil {
		limit := rate.Limit(conf.GetFloat("rate", 10))
		burst := conf.GetInt("burst", 1)
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(limit, burst)
	}
	return t.limiter
}
