// internal/coordinator/devices.go
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/kiosk-coordinator/internal/poller"
	"github.com/tamzrod/kiosk-coordinator/internal/port"
	"github.com/tamzrod/kiosk-coordinator/internal/reader"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// putterDevice joins the putter poller and its port session.
type putterDevice struct {
	poller *poller.Poller
	ports  *port.Manager
	path   string
	unitID uint8
}

func (d *putterDevice) Snapshot() registers.State { return d.poller.Snapshot() }

func (d *putterDevice) RefreshNow(ctx context.Context) registers.State {
	return d.poller.RefreshNow(ctx)
}

func (d *putterDevice) WriteRegister(ctx context.Context, addr, value uint16) error {
	_, err := d.ports.WriteSingleRegister(ctx, d.path, d.unitID, addr, value)
	return err
}

// weightScale reads the full weight vector straight from the scale.
type weightScale struct {
	reader *reader.Reader
	path   string
	unitID uint8
}

// ReadWeights returns the weight slots in address order.
// Any failed chunk fails the whole read; a partial vector is never uploaded.
func (w *weightScale) ReadWeights(ctx context.Context) ([]float64, error) {
	cat := w.reader.Catalog()
	readings, failures := w.reader.ReadManyReport(ctx, w.path, w.unitID, cat.Addresses())
	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}

	out := make([]float64, 0, registers.WeightSlots)
	for i := 1; i <= registers.WeightSlots; i++ {
		name := registers.WeightRegister(i)
		r, ok := readings[name]
		if !ok {
			return nil, fmt.Errorf("weight: %s missing", name)
		}
		out = append(out, r.Value.Float())
	}
	return out, nil
}
