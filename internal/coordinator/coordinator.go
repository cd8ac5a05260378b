// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/config"
	"github.com/tamzrod/kiosk-coordinator/internal/delivery"
	"github.com/tamzrod/kiosk-coordinator/internal/discovery"
	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/poller"
	"github.com/tamzrod/kiosk-coordinator/internal/port"
	"github.com/tamzrod/kiosk-coordinator/internal/reader"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
	"github.com/tamzrod/kiosk-coordinator/internal/status"
	"github.com/tamzrod/kiosk-coordinator/internal/store"
)

// LocalConfigSource supplies per-kiosk overrides.
type LocalConfigSource interface {
	LocalConfig(ctx context.Context) (store.LocalConfig, error)
}

// Deps are the collaborators built outside the coordinator.
type Deps struct {
	Transport port.Transport
	Uploader  delivery.Uploader
	Local     LocalConfigSource // optional
	Sinks     []events.Sink     // extra observers (metrics, mqtt)
	OnHealth  func(device string, s status.Snapshot)

	SequencerOptions []delivery.Option
}

// Coordinator owns the serial sessions, both device pollers and the
// delivery sequencer of one kiosk.
type Coordinator struct {
	cfg config.Config
	log zerolog.Logger

	bus     *events.Bus
	sink    events.Sink
	tracker *status.Tracker
	ports   *port.Manager
	local   LocalConfigSource

	putterReader *reader.Reader
	weightReader *reader.Reader
	putter       *poller.Poller
	weight       *poller.Poller
	seq          *delivery.Sequencer

	kicks        map[string]chan struct{} // port path -> reopen wakeup
	reconnectMin time.Duration
	reconnectMax time.Duration

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a coordinator for a normalized config with resolved ports.
func New(cfg config.Config, deps Deps, log zerolog.Logger) (*Coordinator, error) {
	if deps.Transport == nil {
		return nil, errors.New("coordinator: transport required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("coordinator: uploader required")
	}
	if cfg.Putter.Port == "" {
		return nil, errors.New("coordinator: putter port unresolved")
	}
	if cfg.Weight.Port == "" {
		return nil, errors.New("coordinator: weight port unresolved")
	}

	c := &Coordinator{
		cfg:     cfg,
		log:     log.With().Str("component", "coordinator").Logger(),
		bus:     events.NewBus(64),
		tracker: status.NewTracker(log),
		local:   deps.Local,

		kicks: map[string]chan struct{}{
			cfg.Putter.Port: make(chan struct{}, 1),
			cfg.Weight.Port: make(chan struct{}, 1),
		},
		reconnectMin: DefaultReconnectMin,
		reconnectMax: DefaultReconnectMax,
	}
	if deps.OnHealth != nil {
		c.tracker.OnChange(deps.OnHealth)
	}

	fan := events.Fanout{c.tracker, c.bus, events.SinkFunc(c.kickOnDisconnect)}
	fan = append(fan, deps.Sinks...)
	c.sink = fan

	c.ports = port.NewManager(deps.Transport, c.sink, log)
	c.putterReader = reader.New(c.ports, registers.PutterCatalog(), cfg.Reader.ChunkLimit, log)
	c.weightReader = reader.New(c.ports, registers.WeightCatalog(), cfg.Reader.ChunkLimit, log)

	var err error
	c.putter, err = poller.New(poller.Config{
		Device:    store.KindPutter,
		Path:      cfg.Putter.Port,
		UnitID:    cfg.Putter.UnitID,
		Interval:  time.Duration(cfg.Putter.Poll.IntervalMs) * time.Millisecond,
		Addresses: registers.PutterCatalog().Addresses(),
	}, c.putterReader, c.sink, log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: putter poller: %w", err)
	}

	c.weight, err = poller.New(poller.Config{
		Device:    store.KindWeight,
		Path:      cfg.Weight.Port,
		UnitID:    cfg.Weight.UnitID,
		Interval:  time.Duration(cfg.Weight.Poll.IntervalMs) * time.Millisecond,
		Addresses: registers.WeightCatalog().Addresses(),
	}, c.weightReader, c.sink, log)
	if err != nil {
		return nil, fmt.Errorf("coordinator: weight poller: %w", err)
	}

	dev := &putterDevice{poller: c.putter, ports: c.ports, path: cfg.Putter.Port, unitID: cfg.Putter.UnitID}
	scale := &weightScale{reader: c.weightReader, path: cfg.Weight.Port, unitID: cfg.Weight.UnitID}
	c.seq = delivery.New(dev, scale, deps.Uploader, c.sink, log, deps.SequencerOptions...)

	return c, nil
}

// PortOptions maps a device section onto serial line options.
func PortOptions(d config.DeviceConfig) port.Options {
	return port.Options{
		BaudRate: d.BaudRate,
		Timeout:  time.Duration(d.TimeoutMs) * time.Millisecond,
	}
}

// Start opens both ports and launches the pollers, the health ticker and
// the port keepers that reopen a released port. Starting twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return nil
	}

	for _, d := range []struct {
		kind string
		dev  config.DeviceConfig
	}{
		{store.KindPutter, c.cfg.Putter},
		{store.KindWeight, c.cfg.Weight},
	} {
		c.tracker.Bind(d.kind, d.dev.Port)
		c.tracker.SetStaleAfter(d.kind, staleIntervals*time.Duration(d.dev.Poll.IntervalMs)*time.Millisecond)
		if err := c.ports.Open(ctx, d.dev.Port, PortOptions(d.dev)); err != nil {
			c.ports.CloseAll()
			return fmt.Errorf("coordinator: open %s: %w", d.kind, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		c.tracker.Run(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.keepOpen(ctx, store.KindPutter, c.cfg.Putter)
	}()
	go func() {
		defer c.wg.Done()
		c.keepOpen(ctx, store.KindWeight, c.cfg.Weight)
	}()

	c.putter.Start(ctx)
	c.weight.Start(ctx)

	c.log.Info().
		Str("putter", c.cfg.Putter.Port).
		Str("weight", c.cfg.Weight.Port).
		Msg("coordinator started")
	return nil
}

// Shutdown stops polling and releases every port. It is safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.putter.Stop()
	c.weight.Stop()
	c.wg.Wait()
	c.ports.CloseAll()

	c.log.Info().Msg("coordinator stopped")
}

// Subscribe returns a bounded event queue for the given kinds (all when empty).
func (c *Coordinator) Subscribe(kinds ...events.Kind) *events.Subscription {
	return c.bus.Subscribe(kinds...)
}

// ---- delivery ----

// Deliver runs one deposit through the given door.
func (c *Coordinator) Deliver(ctx context.Context, doorKey string) (delivery.Receipt, error) {
	return c.seq.Deliver(ctx, doorKey)
}

// Attempt returns the in-flight delivery, if any.
func (c *Coordinator) Attempt() (delivery.Attempt, bool) { return c.seq.Current() }

func (c *Coordinator) Phase() delivery.Phase { return c.seq.Phase() }

// ---- state ----

func (c *Coordinator) PutterState() registers.State { return c.putter.Snapshot() }
func (c *Coordinator) WeightState() registers.State { return c.weight.Snapshot() }

// DoorTimeConfig returns the four windows of every door from the latest snapshot.
func (c *Coordinator) DoorTimeConfig() map[string][]delivery.Window {
	return delivery.DoorTimeConfig(c.putter.Snapshot())
}

var binNames = [...]string{"one", "two", "three", "four"}

// Bins returns the fill weight of bins one..four from the latest weight snapshot.
// Bins without a reading are absent.
func (c *Coordinator) Bins() map[string]float64 {
	st := c.weight.Snapshot()
	out := make(map[string]float64, len(binNames))
	for i, name := range binNames {
		if v, ok := st.Float(registers.WeightRegister(i + 1)); ok {
			out[name] = v
		}
	}
	return out
}

// Health returns the tracked status of device ("putter" or "weight").
func (c *Coordinator) Health(device string) status.Snapshot {
	return c.tracker.Snapshot(device)
}

// ListDevices enumerates serial ports and marks the ones held open.
func (c *Coordinator) ListDevices() ([]discovery.PortInfo, error) {
	return discovery.List(c.ports.IsOpen)
}

// ---- putter controls ----

// SetTimedEnable writes on/off to every door's timed-enable register in turn,
// then refreshes the putter snapshot.
func (c *Coordinator) SetTimedEnable(ctx context.Context, on bool) error {
	var v uint16
	if on {
		v = 1
	}

	for _, rc := range registers.PutterCatalog().FindByNamePattern(registers.FieldTimedEnable) {
		if _, err := c.ports.WriteSingleRegister(ctx, c.cfg.Putter.Port, c.cfg.Putter.UnitID, rc.Address, v); err != nil {
			return fmt.Errorf("coordinator: write %s: %w", rc.Name, err)
		}
	}

	c.putter.RefreshNow(ctx)
	c.log.Info().Bool("on", on).Msg("timed deposits updated")
	return nil
}

// ApplyAccessPolicy enables timed deposits when a user is logged in or
// anonymous deposits are allowed, and disables them otherwise.
func (c *Coordinator) ApplyAccessPolicy(ctx context.Context, userLoggedIn bool) error {
	return c.SetTimedEnable(ctx, userLoggedIn || c.canPutWithoutAuth(ctx))
}

func (c *Coordinator) canPutWithoutAuth(ctx context.Context) bool {
	allowed := c.cfg.Access.CanPutWithoutAuth
	if c.local == nil {
		return allowed
	}
	lc, err := c.local.LocalConfig(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("local config unavailable, using file setting")
		return allowed
	}
	if lc.CanPutWithoutAuth != nil {
		allowed = *lc.CanPutWithoutAuth
	}
	return allowed
}

// DoorOpenedState reads each door's open-command register directly.
// Doors whose read fails are absent from the map and reported in the error.
func (c *Coordinator) DoorOpenedState(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool, registers.DoorCount)
	var errs []error

	for n := 1; n <= registers.DoorCount; n++ {
		addr, _ := registers.DoorBaseAddress(n)
		regs, err := c.ports.ReadRegisters(ctx, c.cfg.Putter.Port, c.cfg.Putter.UnitID, addr, 1)
		if err == nil && len(regs) != 1 {
			err = fmt.Errorf("short response: %d registers", len(regs))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", registers.DoorKey(n), err))
			continue
		}
		out[registers.DoorKey(n)] = regs[0] != 0
	}
	return out, errors.Join(errs...)
}
