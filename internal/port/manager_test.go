// internal/port/manager_test.go
package port

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
)

// ---- fake transport ----

type callLog struct {
	mu      sync.Mutex
	calls   []string
	busy    int32
	overlap atomic.Bool
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeConn struct {
	log     *callLog
	hooks   Hooks
	delay   time.Duration
	readErr error
	unit    uint8
	closes  atomic.Int32
}

func (c *fakeConn) SetUnitID(id uint8) {
	if atomic.AddInt32(&c.log.busy, 1) > 1 {
		c.log.overlap.Store(true)
	}
	c.unit = id
	c.log.add(fmt.Sprintf("unit %d", id))
}

func (c *fakeConn) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	defer atomic.AddInt32(&c.log.busy, -1)
	time.Sleep(c.delay)
	c.log.add(fmt.Sprintf("read %d %d@%d", addr, qty, c.unit))
	if c.readErr != nil {
		if c.hooks.OnError != nil {
			c.hooks.OnError(c.readErr)
		}
		return nil, c.readErr
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = addr + uint16(i)
	}
	return out, nil
}

func (c *fakeConn) WriteRegister(addr, value uint16) (uint16, error) {
	defer atomic.AddInt32(&c.log.busy, -1)
	c.log.add(fmt.Sprintf("write %d=%d@%d", addr, value, c.unit))
	return value, nil
}

func (c *fakeConn) Close() error {
	if c.closes.Add(1) == 1 && c.hooks.OnClose != nil {
		c.hooks.OnClose()
	}
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	dials   int
	dialErr error
	log     *callLog
	delay   time.Duration
	readErr error
	last    *fakeConn
}

func (t *fakeTransport) Dial(path string, opts Options, hooks Hooks) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	c := &fakeConn{log: t.log, hooks: hooks, delay: t.delay, readErr: t.readErr}
	t.last = c
	return c, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(k events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func newTestManager(tr *fakeTransport) (*Manager, *recorder) {
	if tr.log == nil {
		tr.log = &callLog{}
	}
	rec := &recorder{}
	return NewManager(tr, rec, zerolog.Nop()), rec
}

// ---- tests ----

func TestOpen_IdempotentSingleSession(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(tr)
	ctx := context.Background()

	require.NoError(t, m.Open(ctx, "/dev/ttyUSB0", Options{}))
	require.NoError(t, m.Open(ctx, "/dev/ttyUSB0", Options{BaudRate: 9600}))

	assert.Equal(t, 1, tr.dials)
	assert.True(t, m.IsOpen("/dev/ttyUSB0"))
	assert.Equal(t, []string{"/dev/ttyUSB0"}, m.Paths())
}

func TestOpen_ConnectError(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("no such device")}
	m, rec := newTestManager(tr)

	err := m.Open(context.Background(), "/dev/ttyUSB9", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, m.IsOpen("/dev/ttyUSB9"))
	assert.Equal(t, 1, rec.count(events.EquipmentError))
}

func TestRead_PortNotOpen(t *testing.T) {
	m, _ := newTestManager(&fakeTransport{})

	_, err := m.ReadRegisters(context.Background(), "/dev/ttyUSB0", 1, 0, 4)
	assert.ErrorIs(t, err, ErrPortNotOpen)

	_, err = m.WriteSingleRegister(context.Background(), "/dev/ttyUSB0", 1, 30, 1)
	assert.ErrorIs(t, err, ErrPortNotOpen)
}

func TestReadWrite_SetsUnitBeforeRequest(t *testing.T) {
	tr := &fakeTransport{}
	m, _ := newTestManager(tr)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "p", Options{}))

	regs, err := m.ReadRegisters(ctx, "p", 3, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{10, 11}, regs)

	res, err := m.WriteSingleRegister(ctx, "p", 1, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{Address: 30, Value: 1}, res)

	assert.Equal(t, []string{"unit 3", "read 10 2@3", "unit 1", "write 30=1@1"}, tr.log.snapshot())
}

func TestConcurrentReads_NeverInterleave(t *testing.T) {
	tr := &fakeTransport{delay: 2 * time.Millisecond}
	m, _ := newTestManager(tr)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "p", Options{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(unit uint8) {
			defer wg.Done()
			regs, err := m.ReadRegisters(ctx, "p", unit, uint16(unit)*10, 1)
			assert.NoError(t, err)
			assert.Equal(t, []uint16{uint16(unit) * 10}, regs)
		}(uint8(i + 1))
	}
	wg.Wait()

	assert.False(t, tr.log.overlap.Load(), "unit-id critical sections overlapped")

	// every read must be tagged with the unit set immediately before it
	calls := tr.log.snapshot()
	require.Len(t, calls, 16)
	for i := 0; i < len(calls); i += 2 {
		var unit, unit2 int
		var addr, qty int
		_, err := fmt.Sscanf(calls[i], "unit %d", &unit)
		require.NoError(t, err)
		_, err = fmt.Sscanf(calls[i+1], "read %d %d@%d", &addr, &qty, &unit2)
		require.NoError(t, err)
		assert.Equal(t, unit, unit2)
	}
}

func TestSeparatePorts_Independent(t *testing.T) {
	trA := &fakeTransport{}
	m, _ := newTestManager(trA)
	ctx := context.Background()

	require.NoError(t, m.Open(ctx, "a", Options{}))
	require.NoError(t, m.Open(ctx, "b", Options{}))
	assert.Equal(t, 2, trA.dials)

	require.NoError(t, m.Close("a"))
	assert.False(t, m.IsOpen("a"))
	assert.True(t, m.IsOpen("b"))
}

// gatedTransport holds Dial of one path until release is closed.
type gatedTransport struct {
	slow    string
	entered chan struct{}
	release chan struct{}
	log     callLog
}

func (g *gatedTransport) Dial(path string, _ Options, hooks Hooks) (Conn, error) {
	if path == g.slow {
		close(g.entered)
		<-g.release
	}
	return &fakeConn{log: &g.log, hooks: hooks}, nil
}

func TestOpen_SlowDialDoesNotBlockOtherPaths(t *testing.T) {
	g := &gatedTransport{slow: "slow", entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(g, nil, zerolog.Nop())
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() { slowDone <- m.Open(ctx, "slow", Options{}) }()
	<-g.entered

	fastDone := make(chan error, 1)
	go func() { fastDone <- m.Open(ctx, "fast", Options{}) }()

	select {
	case err := <-fastDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("open of an independent path waited on a slow dial")
	}
	assert.True(t, m.IsOpen("fast"))
	assert.False(t, m.IsOpen("slow"))

	close(g.release)
	require.NoError(t, <-slowDone)
	assert.True(t, m.IsOpen("slow"))
	m.CloseAll()
}

func TestClose_RemovesOnceAndEmitsDisconnect(t *testing.T) {
	tr := &fakeTransport{}
	m, rec := newTestManager(tr)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "p", Options{}))

	require.NoError(t, m.Close("p"))
	require.NoError(t, m.Close("p")) // absent: no-op

	assert.False(t, m.IsOpen("p"))
	assert.Equal(t, 1, rec.count(events.EquipmentDisconnect))

	_, err := m.ReadRegisters(ctx, "p", 1, 0, 1)
	assert.ErrorIs(t, err, ErrPortNotOpen)

	// a fresh open recreates the session
	require.NoError(t, m.Open(ctx, "p", Options{}))
	assert.Equal(t, 2, tr.dials)
	assert.True(t, m.IsOpen("p"))
}

func TestLinkFault_SurfacesAndCleansUp(t *testing.T) {
	tr := &fakeTransport{readErr: errors.New("input/output error")}
	m, rec := newTestManager(tr)
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, "p", Options{}))

	_, err := m.ReadRegisters(ctx, "p", 1, 0, 1)
	require.Error(t, err)
	assert.Equal(t, 1, rec.count(events.EquipmentError))

	require.Eventually(t, func() bool {
		return !m.IsOpen("p") && rec.count(events.EquipmentDisconnect) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), tr.last.closes.Load())
}

func TestRead_CanceledContext(t *testing.T) {
	tr := &fakeTransport{}
	m, rec := newTestManager(tr)
	require.NoError(t, m.Open(context.Background(), "p", Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ReadRegisters(ctx, "p", 1, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rec.count(events.EquipmentError))
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()

	assert.Equal(t, DefaultBaudRate, o.BaudRate)
	assert.Equal(t, 8, o.DataBits)
	assert.Equal(t, "N", o.Parity)
	assert.Equal(t, 1, o.StopBits)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}
