// internal/registers/state.go
package registers

import (
	"sort"
	"time"
)

// State is an immutable view of the latest decoded readings, keyed by register name.
// Merge returns a new State; the receiver is never modified.
type State struct {
	readings  map[string]Reading
	updatedAt time.Time
}

// NewState copies readings into a fresh State.
func NewState(readings map[string]Reading, at time.Time) State {
	m := make(map[string]Reading, len(readings))
	for k, v := range readings {
		m[k] = v
	}
	return State{readings: m, updatedAt: at}
}

// Merge applies updates last-write-wins per name and returns the new State.
func (s State) Merge(updates map[string]Reading, at time.Time) State {
	m := make(map[string]Reading, len(s.readings)+len(updates))
	for k, v := range s.readings {
		m[k] = v
	}
	for k, v := range updates {
		m[k] = v
	}
	return State{readings: m, updatedAt: at}
}

func (s State) Get(name string) (Reading, bool) {
	r, ok := s.readings[name]
	return r, ok
}

// Float returns the numeric value of name, if present.
func (s State) Float(name string) (float64, bool) {
	r, ok := s.readings[name]
	if !ok {
		return 0, false
	}
	return r.Value.Float(), true
}

// Bool returns the boolean value of name, if present.
func (s State) Bool(name string) (bool, bool) {
	r, ok := s.readings[name]
	if !ok {
		return false, false
	}
	return r.Value.Bool(), true
}

func (s State) Len() int             { return len(s.readings) }
func (s State) UpdatedAt() time.Time { return s.updatedAt }

// Names returns the register names held, sorted.
func (s State) Names() []string {
	out := make([]string, 0, len(s.readings))
	for k := range s.readings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Readings returns a copy of the underlying map.
func (s State) Readings() map[string]Reading {
	m := make(map[string]Reading, len(s.readings))
	for k, v := range s.readings {
		m[k] = v
	}
	return m
}
