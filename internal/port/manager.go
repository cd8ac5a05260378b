// internal/port/manager.go
package port

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/kiosk-coordinator/internal/events"
)

var (
	ErrPortNotOpen = errors.New("port: not open")
	ErrConnect     = errors.New("port: connect failed")
)

// WriteResult echoes a single-register write.
type WriteResult struct {
	Address uint16
	Value   uint16
}

// Manager owns one exclusive session per serial path.
// Every request against a path runs on that session's single worker,
// so unit-id-set-then-request never interleaves and requests complete in issue order.
// Different paths share nothing and run concurrently.
type Manager struct {
	transport Transport
	sink      events.Sink
	log       zerolog.Logger

	mu        sync.Mutex
	sessions  map[string]*session
	openLocks map[string]*sync.Mutex // per path, so a path is dialed at most once
}

func NewManager(tr Transport, sink events.Sink, log zerolog.Logger) *Manager {
	if sink == nil {
		sink = events.Discard
	}
	return &Manager{
		transport: tr,
		sink:      sink,
		log:       log.With().Str("component", "port").Logger(),
		sessions:  make(map[string]*session),
		openLocks: make(map[string]*sync.Mutex),
	}
}

type result struct {
	regs      []uint16
	err       error
	transport bool // err came from the link, not from queueing
}

type request struct {
	ctx   context.Context
	fn    func(Conn) ([]uint16, error)
	reply chan result
}

type session struct {
	path     string
	opts     Options
	conn     Conn
	openedAt time.Time

	reqs   chan request
	done   chan struct{} // closed once the link is released
	exited chan struct{} // closed when the worker returns

	closeOnce sync.Once
}

func (s *session) isOpen() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *session) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.reqs:
			if err := req.ctx.Err(); err != nil {
				req.reply <- result{err: err}
				continue
			}
			regs, err := req.fn(s.conn)
			req.reply <- result{regs: regs, err: err, transport: err != nil}
		}
	}
}

// Open establishes a session for path. Opening an open path is a no-op.
func (m *Manager) Open(ctx context.Context, path string, opts Options) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrConnect)
	}

	lk := m.openLock(path)
	lk.Lock()
	defer lk.Unlock()

	if s := m.lookup(path); s != nil {
		m.log.Debug().Str("port", path).Msg("port already open")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts = opts.withDefaults()
	s := &session{
		path:   path,
		opts:   opts,
		reqs:   make(chan request),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	// listeners are bound before the link comes up
	hooks := Hooks{
		OnClose: func() { m.released(s) },
		OnError: func(err error) { m.linkFault(s, err) },
	}

	conn, err := m.transport.Dial(path, opts, hooks)
	if err != nil {
		m.log.Error().Err(err).Str("port", path).Msg("connect failed")
		m.sink.Emit(events.Event{Kind: events.EquipmentError, Port: path, Err: err})
		return fmt.Errorf("%w: %s: %v", ErrConnect, path, err)
	}

	s.conn = conn
	s.openedAt = time.Now()

	m.mu.Lock()
	m.sessions[path] = s
	m.mu.Unlock()

	go s.run()

	m.log.Info().Str("port", path).Int("baud", opts.BaudRate).Msg("port open")
	return nil
}

// IsOpen reports whether path has a live session.
func (m *Manager) IsOpen(path string) bool {
	return m.lookup(path) != nil
}

// Paths returns the open paths, sorted.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.sessions))
	for p, s := range m.sessions {
		if s.isOpen() {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Close releases path. Absent or already closed paths are a no-op.
// An in-flight request is not interrupted; it fails on its own.
func (m *Manager) Close(path string) error {
	s := m.lookup(path)
	if s == nil {
		return nil
	}

	err := s.conn.Close()
	// the transport acknowledges through OnClose; released is idempotent
	m.released(s)
	if err != nil {
		m.log.Warn().Err(err).Str("port", path).Msg("close failed")
		return fmt.Errorf("port %s: close: %w", path, err)
	}
	return nil
}

// CloseAll releases every session. Failures are logged only.
func (m *Manager) CloseAll() {
	for _, p := range m.Paths() {
		_ = m.Close(p)
	}
}

// ReadRegisters reads count holding registers from device unitID on path.
func (m *Manager) ReadRegisters(ctx context.Context, path string, unitID uint8, start, count uint16) ([]uint16, error) {
	regs, err := m.do(ctx, path, func(c Conn) ([]uint16, error) {
		c.SetUnitID(unitID)
		return c.ReadHoldingRegisters(start, count)
	})
	if err != nil {
		return nil, fmt.Errorf("port %s: read unit=%d addr=%d qty=%d: %w", path, unitID, start, count, err)
	}
	return regs, nil
}

// WriteSingleRegister writes value at addr on device unitID.
func (m *Manager) WriteSingleRegister(ctx context.Context, path string, unitID uint8, addr, value uint16) (WriteResult, error) {
	regs, err := m.do(ctx, path, func(c Conn) ([]uint16, error) {
		c.SetUnitID(unitID)
		echo, err := c.WriteRegister(addr, value)
		if err != nil {
			return nil, err
		}
		return []uint16{echo}, nil
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("port %s: write unit=%d addr=%d value=%d: %w", path, unitID, addr, value, err)
	}

	res := WriteResult{Address: addr, Value: value}
	if len(regs) == 1 {
		res.Value = regs[0]
	}
	return res, nil
}

// openLock returns the mutex serializing Open for path. Different paths never share one.
func (m *Manager) openLock(path string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lk, ok := m.openLocks[path]
	if !ok {
		lk = &sync.Mutex{}
		m.openLocks[path] = lk
	}
	return lk
}

func (m *Manager) lookup(path string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[path]
	if !ok || !s.isOpen() {
		return nil
	}
	return s
}

// do queues fn on the session worker and waits for its reply.
func (m *Manager) do(ctx context.Context, path string, fn func(Conn) ([]uint16, error)) ([]uint16, error) {
	s := m.lookup(path)
	if s == nil {
		return nil, ErrPortNotOpen
	}

	req := request{ctx: ctx, fn: fn, reply: make(chan result, 1)}

	select {
	case s.reqs <- req:
	case <-s.done:
		return nil, ErrPortNotOpen
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var res result
	select {
	case res = <-req.reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.exited:
		select {
		case res = <-req.reply:
		default:
			return nil, ErrPortNotOpen
		}
	}

	if res.err != nil && res.transport {
		m.log.Error().Err(res.err).Str("port", path).Msg("transport error")
		m.sink.Emit(events.Event{Kind: events.EquipmentError, Port: path, Err: res.err})
	}
	return res.regs, res.err
}

// linkFault is the transport's error listener: a broken link is closed best-effort.
func (m *Manager) linkFault(s *session, err error) {
	m.log.Error().Err(err).Str("port", s.path).Msg("link fault, closing")
	go func() {
		if cerr := s.conn.Close(); cerr != nil {
			m.log.Warn().Err(cerr).Str("port", s.path).Msg("cleanup close failed")
		}
		m.released(s)
	}()
}

// released removes s from the registry and emits the disconnect, exactly once.
func (m *Manager) released(s *session) {
	s.closeOnce.Do(func() {
		close(s.done)

		m.mu.Lock()
		if cur, ok := m.sessions[s.path]; ok && cur == s {
			delete(m.sessions, s.path)
		}
		m.mu.Unlock()

		m.log.Info().Str("port", s.path).Dur("uptime", time.Since(s.openedAt)).Msg("port closed")
		m.sink.Emit(events.Event{Kind: events.EquipmentDisconnect, Port: s.path})
	})
}
