// Package domain holds the error kinds and small value types shared by
// every component of a recording session.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors a caller can match with errors.Is.
var (
	ErrNotOnline      = errors.New("channel is not online")
	ErrEmptyPlaylist  = errors.New("hls information never contained a playlist")
	ErrStreamFinished = errors.New("stream finished")
)

// DisconnectKind classifies why the control WebSocket went away.
type DisconnectKind int

const (
	DisconnectOther DisconnectKind = iota
	DisconnectPaidProgram
	DisconnectLoginRequired
	DisconnectMultipleConnection
)

func (k DisconnectKind) String() string {
	switch k {
	case DisconnectPaidProgram:
		return "paid_program"
	case DisconnectLoginRequired:
		return "login_required"
	case DisconnectMultipleConnection:
		return "multiple_connection"
	default:
		return "server_disconnection"
	}
}

// DisconnectionError is raised by the control channel when the server
// closes the session. It is always fatal for the channel, never for
// the orchestrator: a completed stream file still gets post-processed.
type DisconnectionError struct {
	Kind DisconnectKind
	Code int
}

func (e *DisconnectionError) Error() string {
	return fmt.Sprintf("control_disconnection: %s (code %d)", e.Kind, e.Code)
}

// DisconnectKindFromCode translates the server's numeric disconnect
// code into a DisconnectKind per spec.md §4.2.
func DisconnectKindFromCode(code int) DisconnectKind {
	switch code {
	case 4101:
		return DisconnectPaidProgram
	case 4507:
		return DisconnectLoginRequired
	case 4512:
		return DisconnectMultipleConnection
	default:
		return DisconnectOther
	}
}
