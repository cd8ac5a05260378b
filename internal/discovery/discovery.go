// internal/discovery/discovery.go
package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"go.bug.st/serial/enumerator"

	"github.com/tamzrod/kiosk-coordinator/internal/port"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
	"github.com/tamzrod/kiosk-coordinator/internal/store"
)

// PortInfo describes one serial port on the host.
type PortInfo struct {
	Path         string `json:"path"`
	Product      string `json:"product,omitempty"`
	VendorID     string `json:"vendorId,omitempty"`
	ProductID    string `json:"productId,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	IsUSB        bool   `json:"isUsb"`
	Open         bool   `json:"open"`
}

// Enumerate lists host serial ports. Replaced in tests.
var Enumerate = enumerator.GetDetailedPortsList

// List enumerates the host's serial ports and marks those with a live session.
func List(isOpen func(path string) bool) ([]PortInfo, error) {
	details, err := Enumerate()
	if err != nil {
		return nil, fmt.Errorf("discovery: enumerate ports: %w", err)
	}

	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		pi := PortInfo{
			Path:         d.Name,
			Product:      d.Product,
			VendorID:     d.VID,
			ProductID:    d.PID,
			SerialNumber: d.SerialNumber,
			IsUSB:        d.IsUSB,
		}
		if isOpen != nil {
			pi.Open = isOpen(d.Name)
		}
		out = append(out, pi)
	}
	return out, nil
}

// IsPutterDevice classifies a device from its registers 24..26.
// The putter reports its wall clock there; the scale reports zeros.
func IsPutterDevice(hour, minute, second uint16) bool {
	return hour <= 23 &&
		minute <= 59 &&
		second <= 59 &&
		hour != minute &&
		minute != second &&
		second != 0
}

// Ports is the part of the session manager the probe uses.
type Ports interface {
	Open(ctx context.Context, path string, opts port.Options) error
	ReadRegisters(ctx context.Context, path string, unitID uint8, start, count uint16) ([]uint16, error)
	Close(path string) error
}

// Assigner persists which path serves which device kind.
type Assigner interface {
	PortForKind(ctx context.Context, kind string) (string, error)
	SetPortForKind(ctx context.Context, kind, path string) error
}

// Identifier probes serial ports and records their device kind.
type Identifier struct {
	ports  Ports
	store  Assigner
	opts   port.Options
	unitID uint8
	log    zerolog.Logger
}

func NewIdentifier(ports Ports, st Assigner, opts port.Options, unitID uint8, log zerolog.Logger) *Identifier {
	if unitID == 0 {
		unitID = 1
	}
	return &Identifier{
		ports:  ports,
		store:  st,
		opts:   opts,
		unitID: unitID,
		log:    log.With().Str("component", "discovery").Logger(),
	}
}

// Identify classifies path and records its kind in the store.
func (i *Identifier) Identify(ctx context.Context, path string) (string, error) {
	kind, err := i.Classify(ctx, path)
	if err != nil {
		return "", err
	}
	if err := i.store.SetPortForKind(ctx, kind, path); err != nil {
		return "", err
	}
	return kind, nil
}

// Classify opens path and reads the clock registers.
// A device that answers with a Modbus exception is not a putter.
// Transport failures return an error and no kind.
func (i *Identifier) Classify(ctx context.Context, path string) (string, error) {
	if err := i.ports.Open(ctx, path, i.opts); err != nil {
		return "", err
	}

	kind := store.KindWeight
	regs, err := i.ports.ReadRegisters(ctx, path, i.unitID, registers.ClockHourAddress, 3)
	var mbErr *modbus.ModbusError
	switch {
	case err == nil && len(regs) == 3:
		if IsPutterDevice(regs[0], regs[1], regs[2]) {
			kind = store.KindPutter
		}
	case err == nil:
		return "", fmt.Errorf("discovery: %s: short clock read (%d registers)", path, len(regs))
	case errors.As(err, &mbErr):
		i.log.Debug().Err(err).Str("port", path).Msg("clock registers refused, not a putter")
	default:
		return "", fmt.Errorf("discovery: probe %s: %w", path, err)
	}

	i.log.Info().Str("port", path).Str("kind", kind).Msg("device identified")
	return kind, nil
}

// AutoAssign probes candidate ports until both kinds are assigned.
// Ports already assigned are skipped; per-port failures are logged only.
// Probed ports that end up unassigned are closed again.
func (i *Identifier) AutoAssign(ctx context.Context, candidates []PortInfo) (map[string]string, error) {
	found := make(map[string]string, 2)
	taken := make(map[string]bool, 2)

	for _, kind := range []string{store.KindPutter, store.KindWeight} {
		p, err := i.store.PortForKind(ctx, kind)
		if err != nil {
			return nil, err
		}
		if p != "" {
			found[kind] = p
			taken[p] = true
		}
	}

	for _, c := range candidates {
		if len(found) == 2 {
			break
		}
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if taken[c.Path] {
			continue
		}

		kind, err := i.Classify(ctx, c.Path)
		if err != nil {
			i.log.Warn().Err(err).Str("port", c.Path).Msg("probe failed")
			_ = i.ports.Close(c.Path)
			continue
		}
		if _, dup := found[kind]; dup {
			i.log.Warn().Str("port", c.Path).Str("kind", kind).Str("kept", found[kind]).Msg("second device of same kind")
			_ = i.ports.Close(c.Path)
			continue
		}
		if err := i.store.SetPortForKind(ctx, kind, c.Path); err != nil {
			return found, err
		}
		found[kind] = c.Path
		taken[c.Path] = true
	}
	return found, nil
}
