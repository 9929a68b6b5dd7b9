package session

import (
	"errors"
	"fmt"
)

// Precondition errors surfaced to the invoking text channel as-is. None of
// them mutate session state and none are retried.
var (
	ErrNoUserChannel           = errors.New("join a voice channel to use music commands")
	ErrJoinNotPermitted        = errors.New("only a play command may start a voice connection")
	ErrChannelMismatch         = errors.New("you need to be in my voice channel to do that")
	ErrInsufficientPermissions = errors.New("I need the CONNECT and SPEAK permissions in that channel")
)

// ResolveError reports a query the audio node could not turn into tracks,
// covering both NO_MATCHES and LOAD_FAILED outcomes.
type ResolveError struct {
	Query     string
	Reason    string
	NoMatches bool
}

func (e *ResolveError) Error() string {
	if e.NoMatches {
		return fmt.Sprintf("nothing found for %q", e.Query)
	}
	return fmt.Sprintf("failed to load %q: %s", e.Query, e.Reason)
}

// TransportError wraps a voice connect/move/disconnect failure. The session is
// left in its prior state when one occurs.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("voice %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
