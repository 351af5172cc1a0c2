// Package session owns the push channel: a pure state machine decides
// what happens on each event and Manager carries out the effects.
package session

import "time"

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
)

type Event string

const (
	EventEnable    Event = "enable"
	EventConnected Event = "connected"
	EventDropped   Event = "dropped" // handshake failure or transport close/error
	EventRetry     Event = "retry"   // reconnect delay elapsed
	EventDisable   Event = "disable"
)

type Effect string

const (
	EffectDial              Effect = "dial"
	EffectScheduleReconnect Effect = "schedule-reconnect"
	EffectCancelReconnect   Effect = "cancel-reconnect"
	EffectCloseTransport    Effect = "close-transport"
	EffectStartPolling      Effect = "start-polling"
	EffectStopPolling       Effect = "stop-polling"
	EffectReportFailure     Effect = "report-failure"
)

type Policy struct {
	MaxRetries     int
	ReconnectDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, ReconnectDelay: 3 * time.Second}
}

// Snapshot is the state machine's complete state.
type Snapshot struct {
	State    State
	Attempts int  // reconnect attempts since the last successful connect
	Desired  bool // real-time mode is enabled
}

// Transition is pure: it returns the next snapshot and the effects the
// caller must perform, in order. Events that do not apply to the current
// state leave it unchanged with no effects.
func Transition(s Snapshot, ev Event, p Policy) (Snapshot, []Effect) {
	switch ev {
	case EventEnable:
		if s.State == StateIdle || s.State == StateFailed {
			return Snapshot{State: StateConnecting, Desired: true}, []Effect{EffectDial, EffectStartPolling}
		}

	case EventConnected:
		if s.State == StateConnecting {
			return Snapshot{State: StateConnected, Desired: s.Desired}, []Effect{EffectStartPolling}
		}

	case EventDropped:
		if s.State != StateConnecting && s.State != StateConnected {
			break
		}
		if s.Attempts < p.MaxRetries {
			return Snapshot{State: StateDisconnected, Attempts: s.Attempts, Desired: s.Desired},
				[]Effect{EffectScheduleReconnect}
		}
		return Snapshot{State: StateFailed, Attempts: s.Attempts},
			[]Effect{EffectCloseTransport, EffectStopPolling, EffectReportFailure}

	case EventRetry:
		if s.State != StateDisconnected {
			break
		}
		if !s.Desired {
			return Snapshot{State: StateIdle}, nil
		}
		return Snapshot{State: StateConnecting, Attempts: s.Attempts + 1, Desired: true}, []Effect{EffectDial}

	case EventDisable:
		return Snapshot{State: StateIdle},
			[]Effect{EffectCancelReconnect, EffectCloseTransport, EffectStopPolling}
	}
	return s, nil
}
