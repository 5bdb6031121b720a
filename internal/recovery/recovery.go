// Package recovery turns unexpected panics in the UI into a recoverable
// error screen.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ashureev/ragchat/internal/shared"
)

// Boundary converts recovered panics into application errors. When the
// failure text looks like an authorization failure, it logs the user out
// before the error is shown.
type Boundary struct {
	logout func()
	logger *slog.Logger
}

// New creates a boundary that calls logout on authorization failures.
func New(logout func(), logger *slog.Logger) *Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{logout: logout, logger: logger}
}

// Capture converts a recovered value. It returns nil when v is nil.
func (b *Boundary) Capture(v any) *shared.ApplicationError {
	if v == nil {
		return nil
	}

	var msg string
	switch e := v.(type) {
	case error:
		msg = e.Error()
	case string:
		msg = e
	default:
		msg = fmt.Sprint(e)
	}
	appErr := &shared.ApplicationError{Message: msg, Stack: string(debug.Stack())}

	b.logger.Error("Recovered from panic", "error", msg, "stack", appErr.Stack)
	if shared.IsAuthFailureText(msg) && b.logout != nil {
		b.logger.Warn("Authorization failure reached recovery boundary, logging out")
		b.logout()
	}
	return appErr
}

// Guard runs fn and captures a panic from it.
func (b *Boundary) Guard(fn func()) (appErr *shared.ApplicationError) {
	defer func() {
		appErr = b.Capture(recover())
	}()
	fn()
	return nil
}
