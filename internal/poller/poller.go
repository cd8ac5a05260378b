// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// Source abstracts the batched reader. The poller depends on addresses only.
type Source interface {
	ReadMany(ctx context.Context, path string, unitID uint8, wanted []uint16) map[string]registers.Reading
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Device    string // "putter" or "weight"
	Path      string
	UnitID    uint8
	Interval  time.Duration
	Addresses []uint16
}

// Poller refreshes one device's register state on a fixed clock and on demand.
type Poller struct {
	cfg  Config
	src  Source
	sink events.Sink
	log  zerolog.Logger
	now  func() time.Time

	state atomic.Pointer[registers.State]
	pubMu sync.Mutex // orders read-merge-swap of concurrent polls

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a poller with immutable config.
func New(cfg Config, src Source, sink events.Sink, log zerolog.Logger) (*Poller, error) {
	if cfg.Path == "" {
		return nil, errors.New("poller: port path required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("poller: at least one address required")
	}
	if src == nil {
		return nil, errors.New("poller: source required")
	}
	if sink == nil {
		sink = events.Discard
	}

	p := &Poller{
		cfg:  cfg,
		src:  src,
		sink: sink,
		log:  log.With().Str("component", "poller").Str("device", cfg.Device).Str("port", cfg.Path).Logger(),
		now:  time.Now,
	}
	empty := registers.NewState(nil, time.Time{})
	p.state.Store(&empty)
	return p, nil
}

func (p *Poller) Device() string { return p.cfg.Device }
func (p *Poller) Path() string   { return p.cfg.Path }
func (p *Poller) UnitID() uint8  { return p.cfg.UnitID }

// Snapshot returns the latest published state. Never blocks on I/O.
func (p *Poller) Snapshot() registers.State {
	return *p.state.Load()
}

// PollOnce performs exactly one read cycle and publishes what it got.
// Missing names keep their previous reading. An empty cycle publishes nothing.
func (p *Poller) PollOnce(ctx context.Context) registers.State {
	updates := p.src.ReadMany(ctx, p.cfg.Path, p.cfg.UnitID, p.cfg.Addresses)
	if len(updates) == 0 {
		p.log.Debug().Msg("poll returned no readings")
		return p.Snapshot()
	}

	p.pubMu.Lock()
	next := p.state.Load().Merge(updates, p.now())
	p.state.Store(&next)
	p.pubMu.Unlock()

	p.sink.Emit(events.Event{
		Kind:    events.StateUpdated,
		At:      next.UpdatedAt(),
		Port:    p.cfg.Path,
		Device:  p.cfg.Device,
		Payload: next,
	})
	return next
}

// RefreshNow runs an out-of-band poll without touching the schedule.
// Port exclusivity is enforced by the session manager underneath.
func (p *Poller) RefreshNow(ctx context.Context) registers.State {
	return p.PollOnce(ctx)
}

// Start launches the ticker loop bound to ctx. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("poller started")
}

// Stop cancels the schedule and waits for the loop to exit.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.log.Info().Msg("poller stopped")
}
