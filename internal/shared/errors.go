package shared

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError reports a missing, invalid or expired credential.
// The UI answers it with the login route plus a dismissible notice.
type AuthError struct {
	Status int
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	msg := "authentication failed"
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a failed snapshot, list, create or verify call.
// It becomes a transient notice and the view keeps its prior state.
type FetchError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	switch {
	case e.Detail != "":
		b.WriteString(": " + e.Detail)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Notice returns the user-facing text: the server detail when present.
func (e *FetchError) Notice() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Op + " failed"
}

// ChannelError reports a delivery or connection problem on the event channel.
// It is logged, never shown beyond a stalled status badge.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return "channel " + e.Op
	}
	return "channel " + e.Op + ": " + e.Err.Error()
}

func (e *ChannelError) Unwrap() error { return e.Err }

// ApplicationError wraps an unexpected render or logic failure caught by the
// top-level recovery boundary.
type ApplicationError struct {
	Message string
	Stack   string
}

func (e *ApplicationError) Error() string { return e.Message }

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// authSignatures are substrings that identify an authorization failure in free text.
var authSignatures = []string{"401", "403", "unauthorized", "forbidden", "not authenticated", "invalid token"}

// IsAuthFailureText reports whether text looks like an authorization failure.
func IsAuthFailureText(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range authSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
