// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
)

func TestErrorCode(t *testing.T) {
	mb := &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}

	cases := []struct {
		err  error
		want uint16
	}{
		{nil, 0},
		{errors.New("boom"), CodeGeneric},
		{mb, 2},
		{fmt.Errorf("port x: read: %w", mb), 2},
		{ErrorDisconnected, CodeDisconnected},
	}
	for i, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("case %d: ErrorCode=%d want %d", i, got, tc.want)
		}
	}
}

func TestSnapshot_ObserveAndRecover(t *testing.T) {
	var s Snapshot

	if !s.Observe(errors.New("x")) {
		t.Fatalf("expected change on first error")
	}
	if s.Health != HealthError || s.LastErrorCode != CodeGeneric {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if s.Observe(errors.New("y")) {
		t.Fatalf("same error code should not change the snapshot")
	}

	s.Tick()
	s.Tick()
	if s.SecondsInError != 2 {
		t.Fatalf("expected 2 seconds in error, got %d", s.SecondsInError)
	}

	if !s.Observe(nil) {
		t.Fatalf("expected change on recovery")
	}
	if s != (Snapshot{Health: HealthOK}) {
		t.Fatalf("recovery did not reset: %+v", s)
	}
	if s.Tick() {
		t.Fatalf("healthy device must not tick")
	}
}

func TestSnapshot_TickSaturates(t *testing.T) {
	s := Snapshot{Health: HealthError, SecondsInError: MaxSecondsInError}
	if s.Tick() || s.SecondsInError != MaxSecondsInError {
		t.Fatalf("counter overflowed: %+v", s)
	}
}

func TestTracker_FollowsEvents(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	var changes []Snapshot
	tr.OnChange(func(device string, s Snapshot) {
		if device == "putter" {
			changes = append(changes, s)
		}
	})

	tr.Bind("putter", "/dev/ttyUSB0")
	tr.Bind("weight", "")

	tr.Emit(events.Event{Kind: events.StateUpdated, Device: "putter"})
	if got := tr.Snapshot("putter").Health; got != HealthOK {
		t.Fatalf("expected OK, got %d", got)
	}

	// port-only events resolve through the binding
	tr.Emit(events.Event{Kind: events.EquipmentDisconnect, Port: "/dev/ttyUSB0"})
	snap := tr.Snapshot("putter")
	if snap.Health != HealthError || snap.LastErrorCode != CodeDisconnected {
		t.Fatalf("unexpected snapshot after disconnect: %+v", snap)
	}

	tr.tick()
	if tr.Snapshot("putter").SecondsInError != 1 {
		t.Fatalf("expected tick while in error")
	}
	if tr.Snapshot("weight").Health != HealthDisabled {
		t.Fatalf("unbound device should be disabled")
	}

	// unrelated port is ignored
	tr.Emit(events.Event{Kind: events.EquipmentError, Port: "/dev/other", Err: errors.New("x")})
	if len(tr.Devices()) != 2 {
		t.Fatalf("unexpected devices %v", tr.Devices())
	}

	if len(changes) != 4 { // bind, ok, disconnect, tick
		t.Fatalf("expected 4 changes, got %d", len(changes))
	}
}

func TestTracker_StaleAfterSilence(t *testing.T) {
	tr := NewTracker(zerolog.Nop())
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.Bind("putter", "/dev/ttyUSB0")
	tr.SetStaleAfter("putter", 3*time.Minute)
	tr.Emit(events.Event{Kind: events.StateUpdated, Device: "putter"})

	now = now.Add(2 * time.Minute)
	tr.tick()
	if got := tr.Snapshot("putter").Health; got != HealthOK {
		t.Fatalf("expected OK within tolerance, got %s", HealthName(got))
	}

	now = now.Add(2 * time.Minute)
	tr.tick()
	if got := tr.Snapshot("putter").Health; got != HealthStale {
		t.Fatalf("expected stale after silence, got %s", HealthName(got))
	}

	tr.Emit(events.Event{Kind: events.StateUpdated, Device: "putter"})
	snap := tr.Snapshot("putter")
	if snap.Health != HealthOK || snap.SecondsInError != 0 {
		t.Fatalf("expected recovery on fresh state, got %+v", snap)
	}
}
