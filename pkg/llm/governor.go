package llm

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Governor applies a per-provider request rate so parallel chunk fan-out
// cannot burst a provider's limit. Each provider gets its own limiter;
// calls to different providers never contend.
type Governor struct {
	mu       sync.Mutex
	limiters map[Provider]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewGovernor builds a governor allowing rps requests per second with the
// given burst per provider. Non-positive rps disables limiting.
func NewGovernor(rps float64, burst int) *Governor {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Governor{
		limiters: make(map[Provider]*rate.Limiter),
		rps:      limit,
		burst:    burst,
	}
}

// Wait blocks until the provider's limiter grants a slot or the context
// ends.
func (g *Governor) Wait(ctx context.Context, p Provider) error {
	g.mu.Lock()
	lim, ok := g.limiters[p]
	if !ok {
		lim = rate.NewLimiter(g.rps, g.burst)
		g.limiters[p] = lim
	}
	g.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return eris.Wrapf(err, "governor: wait for %s", p)
	}
	return nil
}
