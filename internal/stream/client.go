// Package stream maintains the live vitals channel for one patient.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"aetheris-dashboard/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "disconnected"
	}
}

// ErrReconnectExhausted is reported through OnError when MaxAttempts
// consecutive reconnects have failed. The client stays disconnected until
// Connect is called again.
var ErrReconnectExhausted = errors.New("vitals stream: reconnect attempts exhausted")

// Handlers are invoked from the client's read goroutine, one at a time and in
// receipt order. They must not call Disconnect synchronously.
type Handlers struct {
	OnVitals      func(models.VitalsFrame)
	OnAlerts      func([]models.RawAlert)
	OnError       func(error)
	OnStateChange func(State)
}

type Options struct {
	BaseURL           string
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// Backoff multiplies the delay after each consecutive failure; 1 keeps it fixed.
	Backoff float64
	// MaxAttempts bounds consecutive reconnects; 0 means unbounded.
	MaxAttempts int
	Dialer      *websocket.Dialer
	Logger      *zap.Logger
}

// Client is bound to a single patient for its lifetime. To follow another
// patient, Disconnect this client and create a new one.
type Client struct {
	patientID string
	url       string
	handlers  Handlers
	opts      Options
	dialer    *websocket.Dialer
	logger    *zap.Logger

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	cancelDial  context.CancelFunc
	timer       *time.Timer
	manualClose bool
	attempts    int
	// gen changes on every Connect/Disconnect; work started under an older
	// gen is discarded.
	gen uint64

	deliverMu sync.Mutex
}

func New(patientID string, handlers Handlers, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.Backoff < 1 {
		opts.Backoff = 1
	}
	if opts.MaxReconnectDelay < opts.ReconnectDelay {
		opts.MaxReconnectDelay = opts.ReconnectDelay
	}
	dialer := opts.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = 10 * time.Second
		dialer = &d
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		patientID: patientID,
		url:       strings.TrimRight(opts.BaseURL, "/") + "/api/intraop/vitals-stream/" + url.PathEscape(patientID),
		handlers:  handlers,
		opts:      opts,
		dialer:    dialer,
		logger:    logger.Named("stream").With(zap.String("patient_id", patientID)),
	}
}

func (c *Client) URL() string { return c.url }

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel. It is a no-op while a channel is open or being
// opened; a pending reconnect is replaced by an immediate attempt.
func (c *Client) Connect() {
	c.mu.Lock()
	c.manualClose = false
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.gen++
	c.attempts = 0
	c.state = Connecting
	gen := c.gen
	c.mu.Unlock()

	go c.open(gen)
}

// Disconnect closes the channel and cancels any pending reconnect. When it
// returns no handler is running and none will run again until Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.gen++
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	wasActive := c.state != Disconnected
	c.state = Disconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if wasActive && c.handlers.OnStateChange != nil {
		c.handlers.OnStateChange(Disconnected)
	}
	c.logger.Info("Vitals stream disconnected")
}

func (c *Client) open(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.state = Disconnected
		delay, schedErr := c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		c.logger.Warn("Vitals stream dial failed", zap.Error(err), zap.Duration("retry_in", delay))
		c.emitError(gen, fmt.Errorf("dial %s: %w", c.url, err))
		if schedErr != nil {
			c.emitError(gen, schedErr)
		}
		return
	}
	c.conn = conn
	c.state = Open
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("Vitals stream connected", zap.String("url", c.url))
	c.emitState(gen, Open)
	c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if gen != c.gen {
				c.mu.Unlock()
				return
			}
			c.conn = nil
			c.state = Disconnected
			delay, schedErr := c.scheduleReconnectLocked(gen)
			c.mu.Unlock()
			conn.Close()

			c.logger.Warn("Vitals stream closed unexpectedly", zap.Error(err), zap.Duration("retry_in", delay))
			c.emitState(gen, Disconnected)
			if schedErr != nil {
				c.emitError(gen, schedErr)
			}
			return
		}
		c.route(gen, data)
	}
}

// scheduleReconnectLocked arms exactly one reconnect timer for gen.
func (c *Client) scheduleReconnectLocked(gen uint64) (time.Duration, error) {
	if c.manualClose {
		return 0, nil
	}
	if c.opts.MaxAttempts > 0 && c.attempts >= c.opts.MaxAttempts {
		return 0, ErrReconnectExhausted
	}
	delay := c.backoffDelay(c.attempts)
	c.attempts++
	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	return delay, nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	d := float64(c.opts.ReconnectDelay) * math.Pow(c.opts.Backoff, float64(attempt))
	if d > float64(c.opts.MaxReconnectDelay) {
		return c.opts.MaxReconnectDelay
	}
	return time.Duration(d)
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.manualClose {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = Connecting
	attempt := c.attempts
	c.mu.Unlock()

	c.logger.Info("Reconnecting vitals stream", zap.Int("attempt", attempt))
	c.open(gen)
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// route sniffs the "type" discriminator and hands the frame to the matching
// handler. Malformed frames are logged and dropped.
func (c *Client) route(gen uint64, data []byte) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		c.logger.Warn("Could not parse vitals stream message", zap.Error(err), zap.ByteString("raw", data))
		return
	}

	if generic == nil {
		c.logger.Warn("Dropping non-record vitals stream message", zap.ByteString("raw", data))
		return
	}

	var frameType string
	if raw, ok := generic["type"]; ok {
		if err := json.Unmarshal(raw, &frameType); err != nil {
			c.logger.Debug("Ignoring non-string frame type", zap.ByteString("type", raw), zap.Error(err))
		}
	}

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if !c.current(gen) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Vitals stream handler panicked", zap.Any("panic", r))
		}
	}()

	if frameType == models.AnomalyAlertType {
		var batch models.AnomalyBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			c.logger.Warn("Could not parse anomaly alert batch", zap.Error(err))
			return
		}
		if c.handlers.OnAlerts != nil {
			c.handlers.OnAlerts(batch.Alerts)
		}
		return
	}

	var frame models.VitalsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn("Could not parse vitals frame", zap.Error(err))
		return
	}
	if c.handlers.OnVitals != nil {
		c.handlers.OnVitals(frame)
	}
}

func (c *Client) emitState(gen uint64, st State) {
	if c.handlers.OnStateChange == nil {
		return
	}
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.current(gen) {
		c.handlers.OnStateChange(st)
	}
}

func (c *Client) emitError(gen uint64, err error) {
	if c.handlers.OnError == nil {
		return
	}
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if c.current(gen) {
		c.handlers.OnError(err)
	}
}
