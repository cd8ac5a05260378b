// internal/delivery/window.go
package delivery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// Clock is a time of day at minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

// String formats as "HH:MM".
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	h, m, ok := strings.Cut(string(b), ":")
	if !ok {
		return fmt.Errorf("clock %q: want HH:MM", b)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return fmt.Errorf("clock %q: %w", b, err)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return fmt.Errorf("clock %q: %w", b, err)
	}
	v := Clock{Hour: hh, Minute: mm}
	if !v.valid() {
		return fmt.Errorf("clock %q: out of range", b)
	}
	*c = v
	return nil
}

// Window is a daily deposit window, bounds inclusive.
// Windows never span midnight: Start after End matches nothing.
type Window struct {
	Start Clock `json:"startTime"`
	End   Clock `json:"endTime"`
}

// IsZero reports the unset 00:00-00:00 window.
func (w Window) IsZero() bool { return w.Start == Clock{} && w.End == Clock{} }

// Contains reports whether t's time of day lies in w, at minute resolution.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return w.Start.minutes() <= m && m <= w.End.minutes()
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

// DoorWindows derives all windows of door n from st, in register order.
// Missing registers read as 0.
func DoorWindows(st registers.State, n int) []Window {
	out := make([]Window, registers.WindowsPerDoor)
	for w := 1; w <= registers.WindowsPerDoor; w++ {
		out[w-1] = Window{
			Start: Clock{
				Hour:   intValue(st, registers.WindowRegister(n, w, registers.FieldStartHour)),
				Minute: intValue(st, registers.WindowRegister(n, w, registers.FieldStartMinute)),
			},
			End: Clock{
				Hour:   intValue(st, registers.WindowRegister(n, w, registers.FieldEndHour)),
				Minute: intValue(st, registers.WindowRegister(n, w, registers.FieldEndMinute)),
			},
		}
	}
	return out
}

// ConfiguredWindows returns the windows of door n that are set and in range.
func ConfiguredWindows(st registers.State, n int) []Window {
	var out []Window
	for _, w := range DoorWindows(st, n) {
		if w.IsZero() || !w.Start.valid() || !w.End.valid() {
			continue
		}
		out = append(out, w)
	}
	return out
}

// DoorTimeConfig derives the windows of every door, keyed by door key.
func DoorTimeConfig(st registers.State) map[string][]Window {
	out := make(map[string][]Window, registers.DoorCount)
	for n := 1; n <= registers.DoorCount; n++ {
		out[registers.DoorKey(n)] = DoorWindows(st, n)
	}
	return out
}

// HoldDuration is extend time plus hold time of door n, absent registers count as 0.
func HoldDuration(st registers.State, n int) time.Duration {
	secs := intValue(st, registers.DoorRegister(n, registers.FieldExtendTime)) +
		intValue(st, registers.DoorRegister(n, registers.FieldHoldTime))
	return time.Duration(secs) * time.Second
}

// ParseDoorKey maps "door1".."doorN" to its 1-based index.
func ParseDoorKey(key string) (int, bool) {
	s, ok := strings.CutPrefix(key, "door")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > registers.DoorCount {
		return 0, false
	}
	return n, true
}

func intValue(st registers.State, name string) int {
	v, _ := st.Float(name)
	return int(v)
}
