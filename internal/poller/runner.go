// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run polls immediately, then on every tick until ctx is done.
// One goroutine per device. No overlap. No retries.
func (p *Poller) Run(ctx context.Context) {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}
