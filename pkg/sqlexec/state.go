package sqlexec

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a state change the session does not allow
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the lifecycle phase of an execution session
type State string

// Session states
const (
	StateDisconnected State = "disconnected"
	StateConnected    State = "connected"
	StateExecuting    State = "executing"
	StateCommitted    State = "committed"
	StateFailed       State = "failed"
)

//nolint:gochecknoglobals // static transition table
var transitions = map[State][]State{
	StateDisconnected: {StateConnected, StateFailed},
	StateConnected:    {StateExecuting, StateCommitted, StateFailed},
	StateExecuting:    {StateExecuting, StateCommitted, StateFailed},
	StateCommitted:    {StateDisconnected},
	StateFailed:       {StateDisconnected},
}

// session tracks one executor invocation through its states
type session struct {
	state   State
	history []State
}

func newSession() *session {
	return &session{
		state:   StateDisconnected,
		history: []State{StateDisconnected},
	}
}

func (s *session) transition(to State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == to {
			if s.state != to {
				s.history = append(s.history, to)
			}

			s.state = to

			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}
