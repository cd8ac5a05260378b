// internal/coordinator/reconnect.go
package coordinator

import (
	"context"
	"time"

	"github.com/tamzrod/kiosk-coordinator/internal/config"
	"github.com/tamzrod/kiosk-coordinator/internal/events"
)

// Reopen backoff bounds.
const (
	DefaultReconnectMin = time.Second
	DefaultReconnectMax = 30 * time.Second
)

// staleIntervals is how many missed poll intervals mark a device stale.
const staleIntervals = 3

// kickOnDisconnect wakes the keeper of a released port.
func (c *Coordinator) kickOnDisconnect(ev events.Event) {
	if ev.Kind != events.EquipmentDisconnect {
		return
	}
	kick, ok := c.kicks[ev.Port]
	if !ok {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// keepOpen reopens dev's port whenever it is found closed, doubling the
// delay after each failed attempt up to reconnectMax.
func (c *Coordinator) keepOpen(ctx context.Context, kind string, dev config.DeviceConfig) {
	log := c.log.With().Str("device", kind).Str("port", dev.Port).Logger()
	refresh := c.putter.RefreshNow
	if kind == c.weight.Device() {
		refresh = c.weight.RefreshNow
	}

	backoff := c.reconnectMin
	for {
		wait := c.reconnectMin
		if !c.ports.IsOpen(dev.Port) {
			if err := c.ports.Open(ctx, dev.Port, PortOptions(dev)); err != nil {
				if ctx.Err() != nil {
					return
				}
				wait = backoff
				log.Warn().Err(err).Dur("retry", wait).Msg("reopen failed")
				backoff *= 2
				if backoff > c.reconnectMax {
					backoff = c.reconnectMax
				}
			} else {
				backoff = c.reconnectMin
				log.Info().Msg("port reopened")
				refresh(ctx)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.kicks[dev.Port]:
			timer.Stop()
		case <-timer.C:
		}
	}
}
