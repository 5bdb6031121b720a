package channel

import (
	"context"
)

// ConnState is the transport lifecycle of a channel.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is a bidirectional event pipe bound to one credential.
//
// Delivery is at-least-once and not ordered across kinds; chunks for one
// chat id arrive in order. After a reconnect the channel resumes with new
// events only, missed events are not replayed.
type Channel interface {
	// Events delivers inbound events. It is closed after Close.
	Events() <-chan Event

	// States delivers connection lifecycle changes. It is closed after Close.
	States() <-chan ConnState

	// Send submits a user-authored message.
	Send(ctx context.Context, req SendRequest) error

	// Close tears the channel down. It is safe to call more than once.
	Close() error
}

// Factory builds a channel bound to token.
type Factory func(ctx context.Context, token string) (Channel, error)
