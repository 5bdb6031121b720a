package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/ragchat/internal/shared"
	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

var errNotConnected = errors.New("not connected")

// WSConfig configures a websocket-backed channel.
type WSConfig struct {
	URL               string // http(s) or ws(s) URL of the event endpoint
	Token             string
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	KeepaliveInterval time.Duration
	EventBuffer       int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

func (c *WSConfig) setDefaults() {
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = 10 * c.ReconnectMin
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 20 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// WSChannel implements Channel over a websocket. A supervisor goroutine keeps
// one connection open, reconnecting with growing backoff when it drops.
type WSChannel struct {
	cfg    WSConfig
	events chan Event
	states chan ConnState
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
}

// Ensure WSChannel implements Channel.
var _ Channel = (*WSChannel)(nil)

// NewWSChannel starts a channel for cfg. It returns immediately; the first
// connection attempt happens in the background.
func NewWSChannel(cfg WSConfig) (*WSChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &shared.AuthError{Detail: "missing credential"}
	}
	endpoint, err := websocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	cfg.URL = endpoint
	cfg.setDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	c := &WSChannel{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
		states: make(chan ConnState, 16),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// NewWSFactory returns a Factory producing websocket channels for endpoint.
func NewWSFactory(base WSConfig) Factory {
	return func(_ context.Context, token string) (Channel, error) {
		cfg := base
		cfg.Token = token
		return NewWSChannel(cfg)
	}
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported channel url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Events implements Channel.
func (c *WSChannel) Events() <-chan Event { return c.events }

// States implements Channel.
func (c *WSChannel) States() <-chan ConnState { return c.states }

// Send implements Channel.
func (c *WSChannel) Send(ctx context.Context, req SendRequest) error {
	frame, err := EncodeSend(req)
	if err != nil {
		return &shared.ChannelError{Op: "send", Err: err}
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &shared.ChannelError{Op: "send", Err: errNotConnected}
	}

	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return &shared.ChannelError{Op: "send", Err: err}
	}
	c.cfg.Logger.Debug("Channel message sent", "thread_id", req.ThreadID, "content_length", len(req.Content))
	return nil
}

// Close implements Channel.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
	})
	<-c.done
	return nil
}

func (c *WSChannel) run() {
	defer close(c.done)
	defer close(c.events)
	defer close(c.states)

	backoff := c.cfg.ReconnectMin
	for {
		if c.ctx.Err() != nil {
			c.emitState(StateClosed)
			return
		}

		c.emitState(StateConnecting)
		conn, _, err := websocket.Dial(c.ctx, c.cfg.URL, &websocket.DialOptions{
			HTTPClient: c.cfg.HTTPClient,
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.cfg.Token}},
		})
		if err != nil {
			if c.ctx.Err() != nil {
				c.emitState(StateClosed)
				return
			}
			c.cfg.Logger.Warn("Channel dial failed", "error", &shared.ChannelError{Op: "dial", Err: err}, "retry_in", backoff)
			c.emitState(StateDisconnected)
			if !c.sleep(backoff) {
				c.emitState(StateClosed)
				return
			}
			backoff = min(backoff*2, c.cfg.ReconnectMax)
			continue
		}

		backoff = c.cfg.ReconnectMin
		c.setConn(conn)
		c.emitState(StateConnected)
		c.cfg.Logger.Info("Channel connected", "url", c.cfg.URL)

		err = c.serve(conn)
		c.setConn(nil)

		if c.ctx.Err() != nil {
			if closeErr := conn.Close(websocket.StatusNormalClosure, "client closed"); closeErr != nil {
				c.cfg.Logger.Debug("Failed to close websocket", "error", closeErr)
			}
			c.emitState(StateClosed)
			return
		}

		c.cfg.Logger.Warn("Channel connection lost", "error", &shared.ChannelError{Op: "read", Err: err})
		_ = conn.CloseNow()
		c.emitState(StateDisconnected)
		if !c.sleep(backoff) {
			c.emitState(StateClosed)
			return
		}
	}
}

// serve runs the reader and keepalive for one connection until either fails.
func (c *WSChannel) serve(conn *websocket.Conn) error {
	g, gctx := errgroup.WithContext(c.ctx)

	g.Go(func() error {
		return c.readLoop(gctx, conn)
	})

	g.Go(func() error {
		ticker := time.NewTicker(c.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(gctx, c.cfg.KeepaliveInterval)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil {
					return fmt.Errorf("keepalive: %w", err)
				}
			}
		}
	})

	return g.Wait()
}

func (c *WSChannel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}

		ev, err := Decode(data)
		if errors.Is(err, ErrUnknownEvent) {
			c.cfg.Logger.Debug("Ignoring channel event", "error", err)
			continue
		}
		if err != nil {
			c.cfg.Logger.Warn("Dropping channel frame", "error", &shared.ChannelError{Op: "decode", Err: err})
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *WSChannel) emitState(s ConnState) {
	select {
	case c.states <- s:
	default:
	}
}

func (c *WSChannel) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
