// internal/discovery/discovery_test.go
package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"

	"github.com/tamzrod/kiosk-coordinator/internal/port"
	"github.com/tamzrod/kiosk-coordinator/internal/store"
)

type fakePorts struct {
	clock  map[string][]uint16
	errs   map[string]error
	opened []string
	closed []string
}

func (f *fakePorts) Open(ctx context.Context, path string, opts port.Options) error {
	f.opened = append(f.opened, path)
	return nil
}

func (f *fakePorts) ReadRegisters(ctx context.Context, path string, unitID uint8, start, count uint16) ([]uint16, error) {
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.clock[path], nil
}

func (f *fakePorts) Close(path string) error {
	f.closed = append(f.closed, path)
	return nil
}

type memStore map[string]string

func (m memStore) PortForKind(ctx context.Context, kind string) (string, error) { return m[kind], nil }

func (m memStore) SetPortForKind(ctx context.Context, kind, path string) error {
	m[kind] = path
	return nil
}

func TestIsPutterDevice(t *testing.T) {
	cases := []struct {
		h, m, s uint16
		want    bool
	}{
		{14, 32, 7, true},
		{0, 0, 0, false},   // scale answers zeros
		{14, 32, 0, false}, // second == 0
		{5, 5, 7, false},   // hour == minute
		{3, 7, 7, false},   // minute == second
		{24, 10, 11, false},
		{10, 60, 11, false},
		{10, 11, 60, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsPutterDevice(tc.h, tc.m, tc.s), "%d:%d:%d", tc.h, tc.m, tc.s)
	}
}

func TestIdentify_RecordsKind(t *testing.T) {
	ports := &fakePorts{clock: map[string][]uint16{
		"/dev/a": {9, 41, 17},
		"/dev/b": {0, 0, 0},
	}}
	st := memStore{}
	id := NewIdentifier(ports, st, port.Options{}, 0, zerolog.Nop())

	kind, err := id.Identify(context.Background(), "/dev/a")
	require.NoError(t, err)
	assert.Equal(t, store.KindPutter, kind)

	kind, err = id.Identify(context.Background(), "/dev/b")
	require.NoError(t, err)
	assert.Equal(t, store.KindWeight, kind)

	assert.Equal(t, memStore{store.KindPutter: "/dev/a", store.KindWeight: "/dev/b"}, st)
}

func TestIdentify_ExceptionMeansWeight(t *testing.T) {
	ports := &fakePorts{errs: map[string]error{
		"/dev/a": &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: 2},
	}}
	id := NewIdentifier(ports, memStore{}, port.Options{}, 1, zerolog.Nop())

	kind, err := id.Identify(context.Background(), "/dev/a")
	require.NoError(t, err)
	assert.Equal(t, store.KindWeight, kind)
}

func TestIdentify_TransportErrorLeavesStore(t *testing.T) {
	ports := &fakePorts{errs: map[string]error{"/dev/a": errors.New("timeout")}}
	st := memStore{}
	id := NewIdentifier(ports, st, port.Options{}, 1, zerolog.Nop())

	_, err := id.Identify(context.Background(), "/dev/a")
	assert.Error(t, err)
	assert.Empty(t, st)
}

func TestAutoAssign(t *testing.T) {
	ports := &fakePorts{
		clock: map[string][]uint16{
			"/dev/ttyS0":   {0, 0, 0},
			"/dev/ttyUSB0": {10, 20, 30},
			"/dev/ttyUSB1": {0, 0, 0},
		},
		errs: map[string]error{"/dev/ttyACM0": errors.New("no answer")},
	}
	st := memStore{}
	id := NewIdentifier(ports, st, port.Options{}, 1, zerolog.Nop())

	got, err := id.AutoAssign(context.Background(), []PortInfo{
		{Path: "/dev/ttyACM0"},
		{Path: "/dev/ttyUSB0"},
		{Path: "/dev/ttyS0"},
		{Path: "/dev/ttyUSB1"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{store.KindPutter: "/dev/ttyUSB0", store.KindWeight: "/dev/ttyS0"}, got)
	assert.NotContains(t, ports.opened, "/dev/ttyUSB1", "stops once both kinds are found")
	assert.Contains(t, ports.closed, "/dev/ttyACM0")
}

func TestAutoAssign_KeepsExistingAssignment(t *testing.T) {
	ports := &fakePorts{clock: map[string][]uint16{
		"/dev/b": {0, 0, 0},
		"/dev/c": {0, 0, 0},
	}}
	st := memStore{store.KindPutter: "/dev/a"}
	id := NewIdentifier(ports, st, port.Options{}, 1, zerolog.Nop())

	got, err := id.AutoAssign(context.Background(), []PortInfo{{Path: "/dev/a"}, {Path: "/dev/b"}, {Path: "/dev/c"}})
	require.NoError(t, err)
	assert.Equal(t, "/dev/a", got[store.KindPutter])
	assert.Equal(t, "/dev/b", got[store.KindWeight])
	assert.NotContains(t, ports.opened, "/dev/a")
}

func TestList_MarksOpenPorts(t *testing.T) {
	orig := Enumerate
	defer func() { Enumerate = orig }()
	Enumerate = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", Product: "USB Serial"},
			nil,
			{Name: "/dev/ttyS0"},
		}, nil
	}

	got, err := List(func(p string) bool { return p == "/dev/ttyUSB0" })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Open)
	assert.Equal(t, "1a86", got[0].VendorID)
	assert.False(t, got[1].Open)

	Enumerate = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("denied") }
	_, err = List(nil)
	assert.Error(t, err)
}
