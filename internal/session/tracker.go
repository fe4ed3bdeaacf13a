package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/satriahrh/sandiwara/internal/protocol"
)

var (
	ErrInvalidTransition  = errors.New("session: invalid lifecycle transition")
	ErrSequenceRegression = errors.New("session: sequence number did not increase")
)

// State is a point in the connection and session lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSessionStarting
	StateStreaming
	StateFinishing
	StateFinished
	StateCanceled
	StateFailed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateSessionStarting:
		return "SessionStarting"
	case StateStreaming:
		return "Streaming"
	case StateFinishing:
		return "Finishing"
	case StateFinished:
		return "Finished"
	case StateCanceled:
		return "Canceled"
	case StateFailed:
		return "Failed"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Terminal reports whether no further session transitions happen from s without Reset.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateCanceled, StateFailed, StateClosed:
		return true
	default:
		return false
	}
}

// Tracker follows the lifecycle of one connection and the session it currently hosts.
// Transitions are driven by the events sent and received; the tracker has no timers.
//
//	Idle -> Connecting -> Connected -> SessionStarting -> Streaming -> Finishing -> Finished
//
// Canceled and Failed are reachable from every non-terminal state. Closing and Closed
// cover FinishConnection and ConnectionFinished.
type Tracker struct {
	mu      sync.Mutex
	state   State
	lastSeq int32

	// Set by ConnectionFailed; the connection cannot host another session.
	connLost bool
}

func NewTracker() *Tracker {
	return &Tracker{state: StateIdle}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) invalid(direction string, event protocol.EventType) error {
	return fmt.Errorf("%w: %s %s in state %s", ErrInvalidTransition, direction, event, t.state)
}

// OnSend records that event is about to be written.
func (t *Tracker) OnSend(event protocol.EventType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event {
	case protocol.EventStartConnection:
		if t.state != StateIdle {
			return t.invalid("send", event)
		}
		t.state = StateConnecting

	case protocol.EventStartSession:
		if t.state != StateConnected {
			return t.invalid("send", event)
		}
		t.state = StateSessionStarting
		t.lastSeq = 0

	case protocol.EventTaskRequest:
		if t.state != StateStreaming {
			return t.invalid("send", event)
		}

	case protocol.EventFinishSession:
		if t.state != StateStreaming {
			return t.invalid("send", event)
		}
		t.state = StateFinishing

	case protocol.EventCancelSession:
		switch t.state {
		case StateSessionStarting, StateStreaming, StateFinishing:
		default:
			return t.invalid("send", event)
		}

	case protocol.EventFinishConnection:
		switch t.state {
		case StateConnected, StateFinished, StateCanceled, StateFailed:
			t.state = StateClosing
		default:
			return t.invalid("send", event)
		}
	}
	return nil
}

// OnReceive records an inbound message. Error frames and failure events move the
// tracker to Failed from any non-terminal state.
func (t *Tracker) OnReceive(msg *protocol.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Type == protocol.MsgTypeError {
		if !t.state.Terminal() {
			t.state = StateFailed
		}
		return nil
	}

	if msg.HasSequence() && msg.Sequence != 0 {
		if err := t.checkSequence(msg.Sequence); err != nil {
			return err
		}
	}

	if !msg.HasEvent() {
		return nil
	}

	switch msg.Event {
	case protocol.EventConnectionStarted:
		if t.state != StateConnecting {
			return t.invalid("receive", msg.Event)
		}
		t.state = StateConnected

	case protocol.EventSessionStarted:
		if t.state != StateSessionStarting {
			return t.invalid("receive", msg.Event)
		}
		t.state = StateStreaming

	case protocol.EventSessionFinished:
		if t.state != StateStreaming && t.state != StateFinishing {
			return t.invalid("receive", msg.Event)
		}
		t.state = StateFinished

	case protocol.EventSessionCanceled:
		if t.state.Terminal() {
			return t.invalid("receive", msg.Event)
		}
		t.state = StateCanceled

	case protocol.EventConnectionFailed:
		t.connLost = true
		if !t.state.Terminal() {
			t.state = StateFailed
		}

	case protocol.EventSessionFailed:
		if !t.state.Terminal() {
			t.state = StateFailed
		}

	case protocol.EventConnectionFinished:
		t.state = StateClosed
	}
	return nil
}

func (t *Tracker) checkSequence(seq int32) error {
	n := seq
	if n < 0 {
		n = -n
	}
	if t.lastSeq != 0 && n <= t.lastSeq {
		return fmt.Errorf("%w: %d after %d", ErrSequenceRegression, seq, t.lastSeq)
	}
	t.lastSeq = n
	return nil
}

// Reset returns a tracker whose session ended to Connected so that the connection can
// host the next session. A connection that reported ConnectionFailed is never reused.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connLost {
		return fmt.Errorf("%w: reset after connection failure", ErrInvalidTransition)
	}

	switch t.state {
	case StateFinished, StateCanceled, StateFailed:
		t.state = StateConnected
		t.lastSeq = 0
		return nil
	default:
		return fmt.Errorf("%w: reset in state %s", ErrInvalidTransition, t.state)
	}
}
