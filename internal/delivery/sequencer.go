// internal/delivery/sequencer.go
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
	"github.com/tamzrod/kiosk-coordinator/internal/registers"
)

// Putter is the door device as seen by the sequencer.
type Putter interface {
	Snapshot() registers.State
	RefreshNow(ctx context.Context) registers.State
	WriteRegister(ctx context.Context, addr, value uint16) error
}

// WeightSource reads the scale's current slot weights.
type WeightSource interface {
	ReadWeights(ctx context.Context) ([]float64, error)
}

// Uploader submits a deposit's weight vector.
type Uploader interface {
	UploadDeposit(ctx context.Context, weights [registers.WeightSlots]float64) (Receipt, error)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the wall clock used for window checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithTimer overrides the hold timer.
func WithTimer(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Sequencer) { s.after = after }
}

// Sequencer drives one door-capable device through deposit attempts.
// At most one attempt is in flight; there is no queue.
type Sequencer struct {
	putter  Putter
	weights WeightSource
	up      Uploader
	sink    events.Sink
	log     zerolog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	current *Attempt
}

func New(p Putter, w WeightSource, u Uploader, sink events.Sink, log zerolog.Logger, opts ...Option) *Sequencer {
	if sink == nil {
		sink = events.Discard
	}
	s := &Sequencer{
		putter:  p,
		weights: w,
		up:      u,
		sink:    sink,
		log:     log.With().Str("component", "delivery").Logger(),
		now:     time.Now,
		after:   time.After,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Current returns a copy of the in-flight attempt.
func (s *Sequencer) Current() (Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Attempt{}, false
	}
	return *s.current, true
}

// Phase returns the phase of the in-flight attempt, or PhaseIdle.
func (s *Sequencer) Phase() Phase {
	a, ok := s.Current()
	if !ok {
		return PhaseIdle
	}
	return a.Phase
}

// Deliver runs one deposit for doorKey to completion.
//
// ctx is honored only until the door-open write is issued; from then on the
// sequence runs to Idle regardless, because the door opens either way.
// Validation failures abort with ErrBinFull, ErrNotConfigured or ErrOutOfWindow
// and never write. Upload failures return ErrUploadFailed without retry.
func (s *Sequencer) Deliver(ctx context.Context, doorKey string) (Receipt, error) {
	if err := s.begin(doorKey); err != nil {
		return Receipt{}, err
	}
	defer s.finish()

	n, ok := ParseDoorKey(doorKey)
	if !ok {
		return Receipt{}, s.abort(fmt.Errorf("%w: %q", ErrUnknownDoor, doorKey))
	}
	addr, _ := registers.DoorBaseAddress(n)
	s.update(func(a *Attempt) { a.StartAddress = addr })

	// ---- Validating ----
	if err := ctx.Err(); err != nil {
		return Receipt{}, s.abort(err)
	}

	st := s.putter.Snapshot()
	if full, _ := st.Bool(registers.DoorRegister(n, registers.FieldFullAlarm)); full {
		return Receipt{}, s.abort(fmt.Errorf("%w: %s", ErrBinFull, doorKey))
	}

	windows := ConfiguredWindows(st, n)
	if len(windows) == 0 {
		return Receipt{}, s.abort(fmt.Errorf("%w: %s", ErrNotConfigured, doorKey))
	}
	now := s.now()
	if !anyContains(windows, now) {
		return Receipt{}, s.abort(fmt.Errorf("%w: %s at %s", ErrOutOfWindow, doorKey, now.Format("15:04")))
	}

	if err := ctx.Err(); err != nil {
		return Receipt{}, s.abort(err)
	}

	// past this point nothing is cancelable
	bg := context.WithoutCancel(ctx)

	if err := s.putter.WriteRegister(bg, addr, 1); err != nil {
		return Receipt{}, s.abort(fmt.Errorf("%w: %s: %w", ErrDoorOpenFailed, doorKey, err))
	}

	// ---- DoorOpen ----
	st = s.putter.RefreshNow(bg)
	hold := HoldDuration(st, n)
	s.update(func(a *Attempt) {
		a.OpenedAt = s.now()
		a.HoldDuration = hold
	})
	s.transition(PhaseDoorOpen, "")
	s.log.Info().Str("door", doorKey).Dur("hold", hold).Msg("door open")

	<-s.after(hold)

	// ---- WeightSettle ----
	s.transition(PhaseWeightSettle, "")
	raw, err := s.weights.ReadWeights(bg)
	if err != nil {
		return Receipt{}, s.fail(fmt.Errorf("%w: %w", ErrWeightFailed, err))
	}
	weights := NormalizeWeights(raw)

	// ---- Uploading ----
	s.transition(PhaseUploading, "")
	rec, err := s.up.UploadDeposit(bg, weights)
	if err != nil {
		return Receipt{}, s.fail(fmt.Errorf("%w: %w", ErrUploadFailed, err))
	}

	cur, _ := s.Current()
	s.log.Info().
		Str("attempt", cur.ID).
		Str("door", doorKey).
		Float64("weight", rec.Weight).
		Float64("score", rec.Score).
		Msg("deposit recorded")
	s.sink.Emit(events.Event{
		Kind:    events.DeliverySucceeded,
		Device:  "putter",
		DoorKey: doorKey,
		Attempt: cur.ID,
		Phase:   PhaseIdle.String(),
		Payload: rec,
	})
	return rec, nil
}

// NormalizeWeights zero-fills or truncates to the fixed upload length.
func NormalizeWeights(in []float64) [registers.WeightSlots]float64 {
	var out [registers.WeightSlots]float64
	copy(out[:], in)
	return out
}

func anyContains(ws []Window, t time.Time) bool {
	for _, w := range ws {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// begin claims the sequencer for a new attempt.
func (s *Sequencer) begin(doorKey string) error {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return ErrBusy
	}
	a := &Attempt{ID: uuid.NewString(), DoorKey: doorKey, Phase: PhaseIdle}
	s.current = a
	s.mu.Unlock()

	s.transition(PhaseValidating, "")
	return nil
}

// finish returns the sequencer to Idle.
func (s *Sequencer) finish() {
	s.transition(PhaseIdle, "")
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Sequencer) update(fn func(*Attempt)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		fn(s.current)
	}
}

// transition moves the attempt to p and notifies observers. Illegal steps are
// a programming error and are logged, not applied.
func (s *Sequencer) transition(p Phase, reason string) {
	s.mu.Lock()
	a := s.current
	if a == nil {
		s.mu.Unlock()
		return
	}
	from := a.Phase
	if !CanTransition(from, p) {
		s.mu.Unlock()
		s.log.Error().Stringer("from", from).Stringer("to", p).Msg("illegal phase transition")
		return
	}
	a.Phase = p
	id, door := a.ID, a.DoorKey
	s.mu.Unlock()

	s.sink.Emit(events.Event{
		Kind:    events.DeliveryPhaseChanged,
		Device:  "putter",
		DoorKey: door,
		Attempt: id,
		Phase:   p.String(),
		Reason:  reason,
	})
}

// abort ends a Validating attempt with a user-facing reason.
func (s *Sequencer) abort(err error) error {
	reason := Reason(err)
	s.transition(PhaseAborted, reason)

	cur, _ := s.Current()
	s.log.Warn().Err(err).Str("attempt", cur.ID).Str("door", cur.DoorKey).Msg("delivery aborted")
	s.sink.Emit(events.Event{
		Kind:    events.DeliveryAborted,
		Device:  "putter",
		DoorKey: cur.DoorKey,
		Attempt: cur.ID,
		Phase:   PhaseAborted.String(),
		Reason:  reason,
		Err:     err,
	})
	return err
}

// fail ends an attempt after the door opened. Hardware state is left as is.
func (s *Sequencer) fail(err error) error {
	cur, _ := s.Current()
	s.log.Error().Err(err).Str("attempt", cur.ID).Str("door", cur.DoorKey).Stringer("phase", cur.Phase).Msg("delivery failed")
	s.sink.Emit(events.Event{
		Kind:    events.DeliveryFailed,
		Device:  "putter",
		DoorKey: cur.DoorKey,
		Attempt: cur.ID,
		Phase:   cur.Phase.String(),
		Reason:  Reason(err),
		Err:     err,
	})
	return err
}
