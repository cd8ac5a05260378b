// internal/status/constants.go
package status

// Device health codes. Values are exported to metrics and MQTT and MUST NOT change.

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device error state.
const HealthError uint16 = 2

// HealthStale represents a device whose last good poll is too old.
const HealthStale uint16 = 3

// HealthDisabled represents a device with no assigned port.
const HealthDisabled uint16 = 4

// ---- ERROR CODES ----

// CodeGeneric is reported for errors that carry no device code.
const CodeGeneric uint16 = 1

// CodeDisconnected is reported after the port session was released.
const CodeDisconnected uint16 = 0xFFFF

// MaxSecondsInError caps the seconds-in-error counter.
const MaxSecondsInError uint16 = 65535

// HealthName returns a label for a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
