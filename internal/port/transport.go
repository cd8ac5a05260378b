// internal/port/transport.go
package port

import "time"

// Options configures one serial link.
type Options struct {
	BaudRate int
	DataBits int
	Parity   string // "N", "E" or "O"
	StopBits int
	Timeout  time.Duration
}

// Defaults match the kiosk devices: 115200 8N1, 3s response timeout.
const (
	DefaultBaudRate = 115200
	DefaultTimeout  = 3 * time.Second
)

func (o Options) withDefaults() Options {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits <= 0 {
		o.DataBits = 8
	}
	if o.Parity == "" {
		o.Parity = "N"
	}
	if o.StopBits <= 0 {
		o.StopBits = 1
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Hooks are lifecycle listeners handed to the transport before it connects.
// They are never invoked for a Dial that returns an error.
type Hooks struct {
	// OnClose fires once when the link is released, deliberately or not.
	OnClose func()
	// OnError fires when a request fails because the link itself is broken.
	OnError func(err error)
}

// Conn is the narrow per-link contract the manager depends on.
// Unit id is per-handle state, not per-request: callers MUST hold the link exclusively
// from SetUnitID until the request returns.
type Conn interface {
	SetUnitID(id uint8)
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	WriteRegister(addr, value uint16) (uint16, error)
	Close() error
}

// Transport opens links.
type Transport interface {
	Dial(path string, opts Options, hooks Hooks) (Conn, error)
}
