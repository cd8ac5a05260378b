// internal/port/rtu/client.go
package rtu

import (
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/tamzrod/kiosk-coordinator/internal/port"
)

// Transport implements port.Transport over Modbus RTU.
// Framing and CRC belong to goburrow; this adapter only moves registers.
type Transport struct{}

// Dial opens the serial link at path.
func (Transport) Dial(path string, opts port.Options, hooks port.Hooks) (port.Conn, error) {
	if path == "" {
		return nil, errors.New("rtu: port path required")
	}

	h := modbus.NewRTUClientHandler(path)
	h.BaudRate = opts.BaudRate
	h.DataBits = opts.DataBits
	h.Parity = opts.Parity
	h.StopBits = opts.StopBits
	h.Timeout = opts.Timeout
	h.SlaveId = 1

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
		hooks:   hooks,
	}, nil
}

// Client is one open RTU link.
// It is NOT safe for concurrent use: SlaveId lives on the shared handler.
type Client struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
	hooks   port.Hooks

	closeOnce sync.Once
}

func (c *Client) SetUnitID(id uint8) {
	c.handler.SlaveId = id
}

func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	if qty == 0 {
		return nil, nil
	}
	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, c.fail(err)
	}
	if len(b)%2 != 0 {
		return nil, errors.New("rtu: read-registers payload not even")
	}
	return unpackRegisters(b), nil
}

func (c *Client) WriteRegister(addr, value uint16) (uint16, error) {
	b, err := c.client.WriteSingleRegister(addr, value)
	if err != nil {
		return 0, c.fail(err)
	}
	if len(b) < 2 {
		return 0, errors.New("rtu: short write-single payload")
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// Close releases the serial port and fires OnClose once.
func (c *Client) Close() error {
	err := c.handler.Close()
	c.closeOnce.Do(func() {
		if c.hooks.OnClose != nil {
			c.hooks.OnClose()
		}
	})
	return err
}

func (c *Client) fail(err error) error {
	if IsLinkFault(err) && c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
	return err
}

// IsLinkFault reports whether err means the serial link itself is gone
// (unplugged adapter, closed descriptor) rather than a slow or refusing device.
func IsLinkFault(err error) bool {
	if err == nil {
		return false
	}

	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return false
	}
	if errors.Is(err, serial.ErrTimeout) {
		return false
	}

	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EBADF)
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
