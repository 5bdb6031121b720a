// Package session owns the credential and the lifetime of the event channel
// bound to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/ragchat/internal/channel"
	"github.com/ashureev/ragchat/internal/shared"
	"github.com/ashureev/ragchat/internal/store"
)

// State is a position in the session lifecycle.
type State int

const (
	Unauthenticated State = iota
	Verifying
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verifier checks a credential with the backend.
type Verifier interface {
	Verify(ctx context.Context, token string) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, token string) error { return f(ctx, token) }

var (
	errVerifyInProgress = errors.New("verification already in progress")
	// ErrSuperseded is returned when a logout lands while a credential is
	// being verified.
	ErrSuperseded = errors.New("session ended during verification")
)

// Boundary is the session state machine. Every entry into Authenticated
// closes any previous channel before opening a new one, and every exit
// closes it, so at most one channel is live. Safe for concurrent use.
type Boundary struct {
	verifier Verifier
	creds    store.Credentials
	factory  channel.Factory
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	token     string
	ch        channel.Channel
	listeners []func(State)
}

// New creates an unauthenticated boundary.
func New(verifier Verifier, creds store.Credentials, factory channel.Factory, logger *slog.Logger) *Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{verifier: verifier, creds: creds, factory: factory, logger: logger}
}

// Subscribe registers fn to be called after every state change. Listeners run
// on the goroutine that caused the change and must not call back into b.
func (b *Boundary) Subscribe(fn func(State)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// State returns the current lifecycle state.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Token returns the verified credential, empty unless authenticated.
func (b *Boundary) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Authenticated {
		return ""
	}
	return b.token
}

// Channel returns the live event channel, nil unless authenticated.
func (b *Boundary) Channel() channel.Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// Resume restores a stored credential at startup. With nothing stored the
// boundary stays unauthenticated and Resume returns nil. A stored credential
// the backend rejects is discarded and the failure returned.
func (b *Boundary) Resume(ctx context.Context) error {
	token, err := b.creds.Load(ctx)
	if errors.Is(err, store.ErrNoCredential) {
		b.logger.Info("No stored credential")
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	return b.authenticate(ctx, token)
}

// Login verifies token and, on success, persists it and opens the channel.
// On failure the boundary returns to unauthenticated and the error is
// returned for display.
func (b *Boundary) Login(ctx context.Context, token string) error {
	return b.authenticate(ctx, strings.TrimSpace(token))
}

// Logout discards the stored credential, closes the channel and returns to
// unauthenticated. It is safe to call in any state.
func (b *Boundary) Logout(ctx context.Context) error {
	b.mu.Lock()
	b.gen++
	prev := b.teardownLocked()
	listeners := b.transitionLocked(Unauthenticated)
	b.mu.Unlock()

	b.closeChannel(prev)
	notify(listeners, Unauthenticated)

	if err := b.creds.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	b.logger.Info("Logged out")
	return nil
}

func (b *Boundary) authenticate(ctx context.Context, token string) error {
	b.mu.Lock()
	if b.state == Verifying {
		b.mu.Unlock()
		return errVerifyInProgress
	}
	b.gen++
	gen := b.gen
	prev := b.teardownLocked()
	listeners := b.transitionLocked(Verifying)
	b.mu.Unlock()

	b.closeChannel(prev)
	notify(listeners, Verifying)

	if err := b.verify(ctx, token); err != nil {
		return b.fail(ctx, gen, err)
	}

	// Save under the lock so a concurrent Logout either runs first and wins,
	// or runs after and clears what was saved.
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		b.logger.Info("Verification superseded by logout")
		return ErrSuperseded
	}
	err := b.creds.Save(ctx, token)
	b.mu.Unlock()
	if err != nil {
		return b.fail(ctx, gen, fmt.Errorf("persist credential: %w", err))
	}

	ch, err := b.factory(ctx, token)
	if err != nil {
		return b.fail(ctx, gen, fmt.Errorf("open channel: %w", err))
	}

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		b.closeChannel(ch)
		b.logger.Info("Verification superseded by logout")
		return ErrSuperseded
	}
	b.token = token
	b.ch = ch
	listeners = b.transitionLocked(Authenticated)
	b.mu.Unlock()

	notify(listeners, Authenticated)
	b.logger.Info("Session authenticated")
	return nil
}

func (b *Boundary) verify(ctx context.Context, token string) error {
	if token == "" {
		return &shared.AuthError{Detail: "token is required"}
	}
	if err := b.verifier.Verify(ctx, token); err != nil {
		return err
	}
	return nil
}

// fail returns to unauthenticated after a failed verification. A rejected
// credential is removed from storage.
func (b *Boundary) fail(ctx context.Context, gen uint64, err error) error {
	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		b.logger.Warn("Session verification failed after logout", "error", err)
		return err
	}
	b.token = ""
	listeners := b.transitionLocked(Unauthenticated)
	b.mu.Unlock()
	notify(listeners, Unauthenticated)

	if shared.IsAuth(err) {
		if clearErr := b.creds.Clear(ctx); clearErr != nil {
			b.logger.Warn("Failed to discard rejected credential", "error", clearErr)
		}
	}
	b.logger.Warn("Session verification failed", "error", err)
	return err
}

// teardownLocked detaches the live channel and credential. The caller closes
// the returned channel after releasing the lock.
func (b *Boundary) teardownLocked() channel.Channel {
	ch := b.ch
	b.ch = nil
	b.token = ""
	return ch
}

func (b *Boundary) transitionLocked(to State) []func(State) {
	if b.state == to {
		return nil
	}
	b.logger.Debug("Session state change", "from", b.state.String(), "to", to.String())
	b.state = to
	return append(([]func(State))(nil), b.listeners...)
}

func (b *Boundary) closeChannel(ch channel.Channel) {
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		b.logger.Debug("Failed to close channel", "error", err)
	}
}

func notify(listeners []func(State), s State) {
	for _, fn := range listeners {
		fn(s)
	}
}
