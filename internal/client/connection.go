// Package client implements the update-channel consumer: a connection
// state machine with capped exponential reconnection backoff, a watchdog
// for hung dials, and dispatch of protocol events to the reconciler.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/reheat-dev/reheat/internal/logging"
	"github.com/reheat-dev/reheat/internal/protocol"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Conn is one established update channel.
type Conn interface {
	// ReadMessage blocks until the next message or a channel failure.
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport dials update channels. The production implementation wraps
// a websocket; tests substitute scripted connections.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Handler receives decoded update events. Notice surfaces a message
// visibly to the developer and must tolerate repeated calls.
type Handler interface {
	FullReload()
	ComponentUpdate(event protocol.Event)
	LibraryUpdate(event protocol.Event)
	Notice(message string)
}

// ScheduleFunc runs fn after d and returns a cancel function. Injected
// so tests control time.
type ScheduleFunc func(d time.Duration, fn func()) (cancel func())

func realSchedule(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// Options configures a Connection.
type Options struct {
	URL string
	// MaxRetries bounds reconnection attempts before giving up with a
	// single persistent notice.
	MaxRetries int
	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the doubling.
	MaxDelay time.Duration
	// WatchdogGrace is how long a reconnect may sit unfinished before
	// the watchdog abandons it and schedules another attempt.
	WatchdogGrace time.Duration
}

// Connection maintains one logical update channel across physical
// reconnects. Each established channel gets a generation number; stale
// read loops from a torn-down channel are fenced out by generation so a
// reconnect never double-dispatches.
type Connection struct {
	opts      Options
	transport Transport
	handler   Handler
	schedule  ScheduleFunc
	logger    logging.Logger

	mu             sync.Mutex
	state          State
	attempts       int
	generation     uint64
	conn           Conn
	exhausted      bool
	cancelRetry    func()
	cancelWatchdog func()
}

// New creates a Connection. schedule may be nil for real timers.
func New(opts Options, transport Transport, handler Handler, schedule ScheduleFunc, logger logging.Logger) *Connection {
	if schedule == nil {
		schedule = realSchedule
	}
	return &Connection{
		opts:      opts,
		transport: transport,
		handler:   handler,
		schedule:  schedule,
		logger:    logging.OrNop(logger).WithComponent("client"),
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the initial channel. Reconnection after failures
// is automatic; Connect itself returns the first dial's error.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	dialGen := c.generation
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, c.opts.URL)
	if err != nil {
		c.logger.Warn(ctx, err, "update channel dial failed", "url", c.opts.URL)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect(ctx)
		return err
	}

	c.established(ctx, conn, dialGen)
	return nil
}

// Close tears the channel down and stops pending retries.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.generation++
	c.state = StateDisconnected
	conn := c.conn
	c.conn = nil
	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	if c.cancelWatchdog != nil {
		c.cancelWatchdog()
		c.cancelWatchdog = nil
	}
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// established promotes a successful dial. dialGen is the generation
// observed when the dial started; if the watchdog fenced that dial out
// in the meantime, the late connection is discarded.
func (c *Connection) established(ctx context.Context, conn Conn, dialGen uint64) {
	c.mu.Lock()
	if dialGen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.generation++
	gen := c.generation
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	if c.cancelWatchdog != nil {
		c.cancelWatchdog()
		c.cancelWatchdog = nil
	}
	c.mu.Unlock()

	c.logger.Info(ctx, "update channel connected", "url", c.opts.URL)
	go c.readLoop(ctx, conn, gen)
}

func (c *Connection) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			c.handleDisconnect(ctx, gen, err)
			return
		}
		c.dispatch(ctx, gen, data)
	}
}

// dispatch decodes and routes one message. Messages from a superseded
// generation are dropped.
func (c *Connection) dispatch(ctx context.Context, gen uint64, data []byte) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	event, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn(ctx, err, "undecodable update event")
		return
	}

	switch event.Kind {
	case protocol.KindFullReload:
		c.handler.FullReload()
	case protocol.KindComponentUpdate:
		c.handler.ComponentUpdate(event)
	case protocol.KindLibraryUpdate:
		c.handler.LibraryUpdate(event)
	case protocol.KindError:
		c.handler.Notice(event.Message)
	}
}

func (c *Connection) handleDisconnect(ctx context.Context, gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.conn = nil
	c.mu.Unlock()

	c.logger.Warn(ctx, cause, "update channel lost")
	c.scheduleReconnect(ctx)
}

func (c *Connection) scheduleReconnect(ctx context.Context) {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	if attempt > c.opts.MaxRetries {
		alreadyNotified := c.exhausted
		c.exhausted = true
		c.mu.Unlock()
		if !alreadyNotified {
			c.handler.Notice(fmt.Sprintf(
				"lost connection to the dev server after %d attempts; restart it and refresh",
				c.opts.MaxRetries))
		}
		return
	}
	delay := c.backoffDelay(attempt)
	c.cancelRetry = c.schedule(delay, func() { c.retry(ctx) })
	c.cancelWatchdog = c.schedule(delay+c.opts.WatchdogGrace, func() { c.watchdog(ctx) })
	c.mu.Unlock()

	c.logger.Info(ctx, "reconnect scheduled", "attempt", attempt, "delay", delay)
}

// backoffDelay doubles the base delay per attempt up to the cap.
func (c *Connection) backoffDelay(attempt int) time.Duration {
	delay := c.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.MaxDelay {
			return c.opts.MaxDelay
		}
	}
	if delay > c.opts.MaxDelay {
		return c.opts.MaxDelay
	}
	return delay
}

func (c *Connection) retry(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	dialGen := c.generation
	c.mu.Unlock()

	conn, err := c.transport.Dial(ctx, c.opts.URL)
	if err != nil {
		c.logger.Warn(ctx, err, "reconnect failed", "url", c.opts.URL)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.scheduleReconnect(ctx)
		return
	}

	c.established(ctx, conn, dialGen)
}

// watchdog abandons a reconnect that never reached Connected within the
// grace period and schedules a fresh attempt.
func (c *Connection) watchdog(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	if c.state != StateConnecting {
		// A retry is already pending.
		c.mu.Unlock()
		return
	}
	// Fence out the hung dial so a late success cannot double-connect.
	c.generation++
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Warn(ctx, nil, "reconnect stalled past grace period, retrying")
	c.scheduleReconnect(ctx)
}
