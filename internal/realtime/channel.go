// Package realtime keeps a push connection to the aggregation service open
// and turns new-mail notifications into cache invalidations.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mixelka/inboxsync/pkg/models"
)

// DefaultRetryDelay is the constant pause between reconnect attempts
const DefaultRetryDelay = 3 * time.Second

// ErrNotAuthenticated is returned by Connect without a session and user id
var ErrNotAuthenticated = errors.New("realtime: session is not authenticated")

// State of the channel
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedPendingRetry
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedPendingRetry:
		return "closed-pending-retry"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Identity is the session the channel is scoped to
type Identity interface {
	IsAuthenticated() bool
	UserID() string
}

// Invalidator discards cached messages in favour of a full refetch. It
// records its own failures.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Endpoint resolves the push URL for a user
type Endpoint interface {
	WebSocketURL(userID string) (string, error)
}

// NewEmailHook is called for every new_email event after invalidation
type NewEmailHook func(ctx context.Context, ev models.NewEmailEvent)

// Deps contains channel dependencies
type Deps struct {
	Identity    Identity
	Invalidator Invalidator
	Endpoint    Endpoint
	Logger      *slog.Logger
	RetryDelay  time.Duration
	Dialer      *websocket.Dialer
}

// Channel is a supervised push connection. At most one connection is live
// per Channel; after any close it redials every RetryDelay for as long as
// the identity stays authenticated.
type Channel struct {
	identity    Identity
	invalidator Invalidator
	endpoint    Endpoint
	logger      *slog.Logger
	retryDelay  time.Duration
	dialer      *websocket.Dialer

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	hooks  []NewEmailHook
}

// New creates an idle channel
func New(deps Deps) *Channel {
	delay := deps.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}

	return &Channel{
		identity:    deps.Identity,
		invalidator: deps.Invalidator,
		endpoint:    deps.Endpoint,
		logger:      deps.Logger.With("component", "realtime"),
		retryDelay:  delay,
		dialer:      dialer,
	}
}

// OnNewEmail registers a hook for new_email events
func (c *Channel) OnNewEmail(hook NewEmailHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// State returns the current connection state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether the supervising goroutine is alive
func (c *Channel) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Connect starts the supervising goroutine. It is a no-op while one is
// already running. The goroutine stops when ctx is cancelled, on
// Disconnect, or once the identity is no longer authenticated.
func (c *Channel) Connect(ctx context.Context) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.run(runCtx, cancel, done)
	return nil
}

// Disconnect closes the connection, cancels any pending retry and waits for
// the supervising goroutine to exit. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done

	c.logger.Info("Realtime channel stopped")
}

func (c *Channel) authenticated() bool {
	return c.identity.IsAuthenticated() && c.identity.UserID() != ""
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer func() {
		cancel()
		c.mu.Lock()
		c.state = StateIdle
		c.conn = nil
		c.cancel = nil
		c.done = nil
		c.mu.Unlock()
		close(done)
	}()

	for {
		if !c.authenticated() {
			c.logger.Info("Session gone, realtime channel stopping")
			return
		}

		c.setState(StateConnecting)
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("Realtime connection closed", "error", err, "retry_in", c.retryDelay)
		}

		if ctx.Err() != nil {
			return
		}

		c.setState(StateClosedPendingRetry)
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and reads until the connection drops
func (c *Channel) session(ctx context.Context) error {
	target, err := c.endpoint.WebSocketURL(c.identity.UserID())
	if err != nil {
		return fmt.Errorf("failed to resolve push URL: %w", err)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial %s (status %d): %w", target, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial %s: %w", target, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.logger.Info("Realtime channel connected", "url", target)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
		c.handle(ctx, data)
	}
}

func (c *Channel) handle(ctx context.Context, data []byte) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Debug("Ignoring malformed frame", "error", err)
		return
	}

	if ev.Type != models.EventTypeNewEmail {
		return
	}

	c.logger.Debug("New email notification")
	c.invalidator.Invalidate(ctx)

	var payload models.NewEmailEvent
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			c.logger.Debug("Malformed new_email payload", "error", err)
		}
	}

	c.mu.Lock()
	hooks := make([]NewEmailHook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, payload)
	}
}
