// internal/status/snapshot.go
package status

import (
	"errors"

	"github.com/goburrow/modbus"
)

// Snapshot is the current health of one device.
// It has no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16 `json:"health"`
	LastErrorCode  uint16 `json:"lastErrorCode"`
	SecondsInError uint16 `json:"secondsInError"`
}

// Observe folds one poll or transport outcome into s and reports whether it changed.
// seconds_in_error is advanced by Tick only.
func (s *Snapshot) Observe(err error) bool {
	changed := false

	if err == nil {
		// recovery / OK
		if s.Health != HealthOK {
			s.Health = HealthOK
			changed = true
		}
		if s.LastErrorCode != 0 {
			s.LastErrorCode = 0
			changed = true
		}
		if s.SecondsInError != 0 {
			s.SecondsInError = 0
			changed = true
		}
		return changed
	}

	if s.Health != HealthError {
		s.Health = HealthError
		changed = true
	}
	if code := ErrorCode(err); s.LastErrorCode != code {
		s.LastErrorCode = code
		changed = true
	}
	return changed
}

// Tick advances seconds_in_error by one while the device is not OK.
func (s *Snapshot) Tick() bool {
	if s.Health == HealthOK || s.Health == HealthDisabled {
		return false
	}
	if s.SecondsInError >= MaxSecondsInError {
		return false
	}
	s.SecondsInError++
	return true
}

// ErrorDisconnected is the error observed when a port session is released.
var ErrorDisconnected = errors.New("status: port disconnected")

// ErrorCode extracts a best-effort uint16 code from err.
// Modbus exceptions report their exception code; anything else is CodeGeneric.
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrorDisconnected) {
		return CodeDisconnected
	}

	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return uint16(mbErr.ExceptionCode)
	}

	type coder interface{ Code() uint16 }
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}

	return CodeGeneric
}
