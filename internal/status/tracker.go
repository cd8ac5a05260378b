// internal/status/tracker.go
package status

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
)

// Tracker keeps one health Snapshot per device, fed from coordinator events.
// It implements events.Sink.
type Tracker struct {
	mu       sync.Mutex
	devices  map[string]*Snapshot
	byPort   map[string]string // port path -> device
	onChange func(device string, s Snapshot)
	log      zerolog.Logger

	lastState  map[string]time.Time     // device -> last stateUpdated
	staleAfter map[string]time.Duration // device -> silence tolerated while OK
	now        func() time.Time
}

func NewTracker(log zerolog.Logger) *Tracker {
	return &Tracker{
		devices: make(map[string]*Snapshot),
		byPort:  make(map[string]string),

		lastState:  make(map[string]time.Time),
		staleAfter: make(map[string]time.Duration),
		now:        time.Now,
		log:     log.With().Str("component", "status").Logger(),
	}
}

// OnChange registers a callback invoked after every snapshot change.
// It must be set before events flow.
func (t *Tracker) OnChange(fn func(device string, s Snapshot)) { t.onChange = fn }

// SetStaleAfter marks device Stale once it has been OK without a state
// update for longer than d. Zero disables the check.
func (t *Tracker) SetStaleAfter(device string, d time.Duration) {
	t.mu.Lock()
	t.staleAfter[device] = d
	t.mu.Unlock()
}

// Bind attaches device to a port path. An empty path marks it disabled.
func (t *Tracker) Bind(device, path string) {
	t.mu.Lock()
	s := t.device(device)
	for p, d := range t.byPort {
		if d == device {
			delete(t.byPort, p)
		}
	}
	if path == "" {
		s.Health = HealthDisabled
	} else {
		t.byPort[path] = device
		if s.Health == HealthDisabled {
			s.Health = HealthUnknown
		}
	}
	snap := *s
	t.mu.Unlock()

	t.changed(device, snap)
}

// Emit folds coordinator events into device health.
func (t *Tracker) Emit(ev events.Event) {
	var err error
	switch ev.Kind {
	case events.StateUpdated:
	case events.EquipmentError:
		err = ev.Err
		if err == nil {
			err = errGeneric
		}
	case events.EquipmentDisconnect:
		err = ErrorDisconnected
	default:
		return
	}

	t.mu.Lock()
	device := ev.Device
	if device == "" {
		device = t.byPort[ev.Port]
	}
	if device == "" {
		t.mu.Unlock()
		return
	}
	if ev.Kind == events.StateUpdated {
		t.lastState[device] = t.now()
	}
	s := t.device(device)
	changed := s.Observe(err)
	snap := *s
	t.mu.Unlock()

	if changed {
		t.log.Info().
			Str("device", device).
			Str("health", HealthName(snap.Health)).
			Uint16("code", snap.LastErrorCode).
			Msg("device health changed")
		t.changed(device, snap)
	}
}

// Snapshot returns the health of device.
func (t *Tracker) Snapshot(device string) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.devices[device]; ok {
		return *s
	}
	return Snapshot{}
}

// Devices returns the known device names, sorted.
func (t *Tracker) Devices() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.devices))
	for d := range t.devices {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Run ticks seconds_in_error at 1 Hz until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Tracker) tick() {
	type change struct {
		device string
		snap   Snapshot
	}
	var changes []change

	now := t.now()

	t.mu.Lock()
	for d, s := range t.devices {
		stale := false
		if limit := t.staleAfter[d]; limit > 0 && s.Health == HealthOK && now.Sub(t.lastState[d]) > limit {
			s.Health = HealthStale
			stale = true
			t.log.Warn().Str("device", d).Dur("silent", now.Sub(t.lastState[d])).Msg("device stale")
		}
		if s.Tick() || stale {
			changes = append(changes, change{d, *s})
		}
	}
	t.mu.Unlock()

	for _, c := range changes {
		t.changed(c.device, c.snap)
	}
}

func (t *Tracker) device(name string) *Snapshot {
	s, ok := t.devices[name]
	if !ok {
		s = &Snapshot{Health: HealthUnknown}
		t.devices[name] = s
	}
	return s
}

func (t *Tracker) changed(device string, s Snapshot) {
	if t.onChange != nil {
		t.onChange(device, s)
	}
}

var errGeneric = errors.New("status: equipment error")
