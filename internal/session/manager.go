package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketsync/internal/clock"

	"go.uber.org/zap"
)

var ErrRetriesExhausted = errors.New("push channel reconnect retries exhausted")

// Transport is an open push channel connection.
type Transport interface {
	ReadMessage() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }

// Failure is the notice produced when real-time mode gives up.
type Failure struct {
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts"`
	Err      error     `json:"-"`
	Message  string    `json:"message"`
}

// Hooks connect the session to the rest of the engine. Nil hooks are skipped.
type Hooks struct {
	OnMessage    func(msg []byte)
	StartPolling func()
	StopPolling  func()
	OnFailure    func(Failure)
}

type Status struct {
	State       State    `json:"state"`
	Attempts    int      `json:"attempts"`
	Desired     bool     `json:"desired"`
	LastError   string   `json:"last_error,omitempty"`
	LastFailure *Failure `json:"last_failure,omitempty"`
}

// Manager runs the push session state machine against a real transport.
// Every dial gets a generation number; results from an older generation
// are discarded.
type Manager struct {
	dialer Dialer
	policy Policy
	clock  clock.Clock
	hooks  Hooks
	logger *zap.Logger

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64
	base        context.Context
	cancelDial  context.CancelFunc
	transport   Transport
	reconnect   clock.Timer
	lastErr     error
	lastFailure *Failure
}

func NewManager(dialer Dialer, policy Policy, clk clock.Clock, hooks Hooks, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dialer: dialer,
		policy: policy,
		clock:  clk,
		hooks:  hooks,
		logger: logger,
		snap:   Snapshot{State: StateIdle},
		base:   context.Background(),
	}
}

// Enable turns real-time mode on. ctx bounds every dial made until the
// session is disabled.
func (m *Manager) Enable(ctx context.Context) {
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()
	m.dispatch(0, EventEnable, nil)
}

// Disable turns real-time mode off, cancelling the reconnect timer and any
// dial in flight and closing the transport.
func (m *Manager) Disable() {
	m.dispatch(0, EventDisable, nil)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.snap.State, Attempts: m.snap.Attempts, Desired: m.snap.Desired}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	if m.lastFailure != nil {
		f := *m.lastFailure
		st.LastFailure = &f
	}
	return st
}

// dispatch feeds ev to the state machine. gen 0 is used for caller
// driven events; any other value must match the current generation.
func (m *Manager) dispatch(gen uint64, ev Event, cause error) {
	m.mu.Lock()
	if gen != 0 && gen != m.gen {
		m.mu.Unlock()
		return
	}

	prev := m.snap
	next, effects := Transition(m.snap, ev, m.policy)
	m.snap = next
	if cause != nil {
		m.lastErr = cause
	}

	var closing Transport
	if ev == EventDropped && next.State != prev.State {
		closing, m.transport = m.transport, nil
	}

	var after []func()
	for _, eff := range effects {
		switch eff {
		case EffectDial:
			m.startDialLocked()
		case EffectScheduleReconnect:
			m.scheduleReconnectLocked()
		case EffectCancelReconnect:
			m.cancelLocked()
		case EffectCloseTransport:
			if m.transport != nil {
				closing, m.transport = m.transport, nil
			}
		case EffectStartPolling:
			if m.hooks.StartPolling != nil {
				after = append(after, m.hooks.StartPolling)
			}
		case EffectStopPolling:
			if m.hooks.StopPolling != nil {
				after = append(after, m.hooks.StopPolling)
			}
		case EffectReportFailure:
			f := m.failureLocked()
			if m.hooks.OnFailure != nil {
				after = append(after, func() { m.hooks.OnFailure(f) })
			}
		}
	}
	m.mu.Unlock()

	if next.State != prev.State {
		fields := []zap.Field{
			zap.String("from", string(prev.State)),
			zap.String("to", string(next.State)),
			zap.String("event", string(ev)),
			zap.Int("attempts", next.Attempts),
		}
		if cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		m.logger.Info("push session transition", fields...)
	}

	if closing != nil {
		if err := closing.Close(); err != nil {
			m.logger.Debug("closing push transport", zap.Error(err))
		}
	}
	for _, f := range after {
		f()
	}
}

func (m *Manager) startDialLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
	}
	m.gen++
	ctx, cancel := context.WithCancel(m.base)
	m.cancelDial = cancel
	go m.run(ctx, m.gen)
}

func (m *Manager) scheduleReconnectLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	gen := m.gen
	m.reconnect = m.clock.AfterFunc(m.policy.ReconnectDelay, func() {
		m.dispatch(gen, EventRetry, nil)
	})
}

// cancelLocked stops the reconnect timer, aborts an in-flight dial and
// invalidates every goroutine of the current generation.
func (m *Manager) cancelLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.gen++
}

func (m *Manager) failureLocked() Failure {
	err := ErrRetriesExhausted
	if m.lastErr != nil {
		err = fmt.Errorf("%w: %w", ErrRetriesExhausted, m.lastErr)
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	f := Failure{
		At:       m.clock.Now(),
		Attempts: m.snap.Attempts,
		Err:      err,
		Message:  fmt.Sprintf("real-time mode disabled after %d reconnect attempts", m.snap.Attempts),
	}
	m.lastFailure = &f
	return f
}

// run dials and then pumps messages until the transport fails.
func (m *Manager) run(ctx context.Context, gen uint64) {
	t, err := m.dialer.Dial(ctx)
	if err != nil {
		m.dispatch(gen, EventDropped, err)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.snap.State != StateConnecting {
		m.mu.Unlock()
		_ = t.Close()
		return
	}
	m.transport = t
	m.mu.Unlock()

	m.dispatch(gen, EventConnected, nil)

	for {
		msg, err := t.ReadMessage()
		if err != nil {
			m.dispatch(gen, EventDropped, err)
			return
		}
		if m.hooks.OnMessage != nil {
			m.hooks.OnMessage(msg)
		}
	}
}
