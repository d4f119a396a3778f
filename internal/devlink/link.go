package devlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for device server communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the handshake.
	defaultConnectTimeout = 5 * time.Second

	// defaultRequestTimeout is the budget for one request/response pair.
	defaultRequestTimeout = 10 * time.Second

	// defaultWriteTimeout is the deadline for writing one framed request.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the fixed delay between reconnection
	// attempts after the link drops.
	defaultReconnectInterval = 5 * time.Second
)

// ConnectionState describes the link to the device server.
type ConnectionState int32

// Link connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds device link connection configuration.
type Config struct {
	// URL is the device server WebSocket URL, e.g. "ws://localhost:8000/ws".
	URL string

	// ConnectTimeout is the maximum time to wait for the handshake.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout is the default budget for one request/response pair.
	// Default: 10 seconds.
	RequestTimeout time.Duration

	// ReconnectInterval is the fixed delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	RequestsTx      uint64
	ResponsesRx     uint64
	FramesRx        uint64
	ReconnectsTotal uint64 // Successful reconnections
	ErrorsTotal     uint64
	LastActivity    time.Time
	State           string
	Connected       bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Notifier is told when the link drops so session state can be cleared.
// Implemented by the session arbiter.
type Notifier interface {
	HandleLinkDown()
}

// Commander is the request surface consumed by the gateway and the
// sequence engine. This allows mocking the link in tests.
type Commander interface {
	Send(ctx context.Context, action string, payload any) (*Response, error)
	SendWithTimeout(ctx context.Context, action string, payload any, timeout time.Duration) (*Response, error)
	IsConnected() bool
}

// Ensure Link implements Commander.
var _ Commander = (*Link)(nil)

// Link owns the single multiplexed WebSocket connection to the device
// server. All frontend traffic funnels through it: requests go out with a
// fresh correlation id, the read loop resolves responses through the
// Correlator, and unsolicited preview frames go to the Router.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//
// Auto-Reconnection:
//   - When the connection is lost, a supervisor retries at a fixed
//     interval until the link is up again or Close() is called.
//   - Retry is unbounded; the device server may be down for arbitrarily
//     long (rig power cycles) and the bridge must recover unattended.
type Link struct {
	cfg        Config
	correlator *Correlator
	router     *Router

	// Connection state
	connMu sync.RWMutex
	conn   *websocket.Conn
	state  ConnectionState

	// Serializes frame writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// Single in-flight guards
	connecting   atomic.Bool
	reconnecting atomic.Bool

	// Session notifier (optional)
	notifier   Notifier
	notifierMu sync.RWMutex

	// Diagnostic listeners for unclassified inbound messages
	listeners  []func(raw []byte)
	listenerMu sync.RWMutex

	// Shutdown coordination (closeOnce prevents double-close panics)
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	requestsTx      atomic.Uint64
	responsesRx     atomic.Uint64
	framesRx        atomic.Uint64
	reconnectsTotal atomic.Uint64
	errorsTotal     atomic.Uint64
	lastActivity    atomic.Int64 // Unix timestamp
}

// New creates a Link. The link starts Disconnected; call Connect to bring
// it up, or let the first Send do it.
//
// Parameters:
//   - cfg: Connection configuration (zero durations get defaults)
//   - correlator: Request/response correlation map
//   - router: Preview frame router
//   - logger: Optional logger (nil for silent operation)
func New(cfg Config, correlator *Correlator, router *Router, logger Logger) *Link {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	return &Link{
		cfg:        cfg,
		correlator: correlator,
		router:     router,
		done:       newCloseOnce(),
		logger:     logger,
	}
}

// Connect establishes the connection to the device server.
//
// Idempotent: returns true immediately if already connected. If another
// connection attempt is in flight, returns false without starting a second
// one (CAS guard, not a queue). On success the read loop is started.
//
// On failure the link stays Disconnected and the session notifier is told
// to clear any subscriber/sequence state.
func (l *Link) Connect(ctx context.Context) bool {
	if l.IsConnected() {
		return true
	}
	if l.isClosed() {
		return false
	}

	// Single in-flight attempt; a concurrent caller backs off.
	if !l.connecting.CompareAndSwap(false, true) {
		return false
	}
	defer l.connecting.Store(false)

	l.setState(StateConnecting)

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: l.cfg.ConnectTimeout}
	conn, httpResp, err := dialer.DialContext(dialCtx, l.cfg.URL, nil)
	if err != nil {
		if httpResp != nil {
			httpResp.Body.Close() //nolint:errcheck // Best-effort cleanup
		}
		l.errorsTotal.Add(1)
		l.setState(StateDisconnected)
		l.notifyLinkDown()
		l.logWarn("device server connection failed", "url", l.cfg.URL, "error", err)
		return false
	}

	l.connMu.Lock()
	l.conn = conn
	l.state = StateConnected
	l.connMu.Unlock()

	// Close may have raced us; do not leave a live socket behind.
	if l.isClosed() {
		conn.Close() //nolint:errcheck // Already shutting down
		return false
	}

	l.lastActivity.Store(time.Now().Unix())

	l.wg.Add(1)
	go l.readLoop(conn)

	l.logInfo("device link connected", "url", l.cfg.URL)
	return true
}

// Send sends one request and awaits its response using the default
// request timeout.
func (l *Link) Send(ctx context.Context, action string, payload any) (*Response, error) {
	return l.SendWithTimeout(ctx, action, payload, l.cfg.RequestTimeout)
}

// SendWithTimeout sends one request and awaits its response.
//
// If the link is down, one reconnect is attempted; if it stays down the
// call returns ErrNotConnected immediately rather than blocking.
//
// A device-reported failure is not an error here: the Response carries the
// device's own error text with Success=false. The returned error covers
// only local and transport failures (link down, write failure, timeout).
//
// Parameters:
//   - ctx: Context for cancellation
//   - action: Device command name
//   - payload: Command payload, marshalled to JSON (nil becomes null)
//   - timeout: Response budget (non-positive uses the default)
func (l *Link) SendWithTimeout(ctx context.Context, action string, payload any, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = l.cfg.RequestTimeout
	}

	if !l.IsConnected() && !l.Connect(ctx) {
		return nil, fmt.Errorf("%w: device server unreachable", ErrNotConnected)
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload for %q: %w", action, err)
		}
		raw = b
	}

	id := uuid.NewString()
	pending, err := l.correlator.Register(id, action, timeout)
	if err != nil {
		return nil, err
	}

	if err := l.writeRequest(Request{Action: action, Payload: raw, RequestID: id}); err != nil {
		l.correlator.Remove(id)
		l.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: writing %q: %v", ErrConnectionLost, action, err)
	}

	l.requestsTx.Add(1)
	l.lastActivity.Store(time.Now().Unix())

	return l.correlator.Await(ctx, pending)
}

// writeRequest writes one framed request to the device server.
func (l *Link) writeRequest(req Request) error {
	l.connMu.RLock()
	conn := l.conn
	l.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteJSON(req)
}

// readLoop reads inbound messages for the lifetime of one connection.
// It is the single point of truth for responses and frames.
func (l *Link) readLoop(conn *websocket.Conn) {
	defer l.wg.Done()

	for {
		select {
		case <-l.done.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if l.isClosed() {
				return // Clean shutdown
			}
			l.handleDisconnect(err)
			return
		}

		l.classify(data)
	}
}

// classify dispatches one inbound message by shape: frames go to the
// router, messages with a known correlation id resolve their pending
// request, anything else goes to the diagnostic listeners.
func (l *Link) classify(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.errorsTotal.Add(1)
		l.logWarn("dropping unparseable device message", "error", fmt.Errorf("%w: %v", ErrProtocol, err))
		return
	}

	l.lastActivity.Store(time.Now().Unix())

	if msg.Type == frameMessageType {
		l.framesRx.Add(1)
		l.router.Route(Frame{Type: frameMessageType, Frame: msg.Frame, Mimetype: msg.Mimetype})
		return
	}

	if msg.RequestID != "" {
		resp := &Response{
			Action:    msg.Action,
			Success:   msg.Success,
			Data:      msg.Data,
			Error:     msg.Error,
			RequestID: msg.RequestID,
		}
		if l.correlator.Resolve(msg.RequestID, resp) {
			l.responsesRx.Add(1)
			return
		}
		// Late or unknown id falls through to the listeners.
	}

	l.notifyListeners(data)
}

// handleDisconnect tears down the lost connection, fails every pending
// request, clears session slots, and starts the reconnect supervisor.
func (l *Link) handleDisconnect(err error) {
	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.connMu.Unlock()

	if conn != nil {
		conn.Close() //nolint:errcheck // Connection is already broken
	}

	l.errorsTotal.Add(1)
	l.logWarn("device link lost", "error", err)

	// No caller may block on a severed link.
	l.correlator.FailAll(err)

	// Stop commands are pointless here; the arbiter skips them.
	l.notifyLinkDown()

	l.wg.Add(1)
	go l.superviseReconnect()
}

// superviseReconnect retries Connect at the configured fixed interval
// until it succeeds or the link is closed. Only one supervisor runs at a
// time.
func (l *Link) superviseReconnect() {
	defer l.wg.Done()

	if !l.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer l.reconnecting.Store(false)

	for attempt := 1; ; attempt++ {
		select {
		case <-l.done.Done():
			return
		case <-time.After(l.cfg.ReconnectInterval):
		}

		l.logInfo("attempting device reconnection", "attempt", attempt)

		if l.Connect(context.Background()) {
			l.reconnectsTotal.Add(1)
			l.logInfo("device link reconnected", "total_reconnects", l.reconnectsTotal.Load())
			return
		}
	}
}

// notifyLinkDown tells the session notifier to clear its slots.
func (l *Link) notifyLinkDown() {
	l.notifierMu.RLock()
	notifier := l.notifier
	l.notifierMu.RUnlock()

	if notifier != nil {
		notifier.HandleLinkDown()
	}
}

// notifyListeners hands an unclassified message to the diagnostic
// listener list.
func (l *Link) notifyListeners(data []byte) {
	l.listenerMu.RLock()
	listeners := l.listeners
	l.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(data)
	}
}

// AddListener registers a callback for inbound messages that are neither
// frames nor responses to a pending request. Diagnostic use only.
func (l *Link) AddListener(fn func(raw []byte)) {
	l.listenerMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenerMu.Unlock()
}

// SetNotifier sets the session notifier told about link loss.
func (l *Link) SetNotifier(n Notifier) {
	l.notifierMu.Lock()
	l.notifier = n
	l.notifierMu.Unlock()
}

// SetLogger sets the logger for this link.
func (l *Link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

// IsConnected returns true if the link to the device server is up.
func (l *Link) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.state == StateConnected
}

// State returns the current connection state.
func (l *Link) State() ConnectionState {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.state
}

// setState updates the connection state without touching the socket.
func (l *Link) setState(s ConnectionState) {
	l.connMu.Lock()
	l.state = s
	l.connMu.Unlock()
}

// Stats returns current operational statistics.
func (l *Link) Stats() Stats {
	return Stats{
		RequestsTx:      l.requestsTx.Load(),
		ResponsesRx:     l.responsesRx.Load(),
		FramesRx:        l.framesRx.Load(),
		ReconnectsTotal: l.reconnectsTotal.Load(),
		ErrorsTotal:     l.errorsTotal.Load(),
		LastActivity:    time.Unix(l.lastActivity.Load(), 0),
		State:           l.State().String(),
		Connected:       l.IsConnected(),
	}
}

// HealthCheck verifies the link is up.
func (l *Link) HealthCheck(_ context.Context) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// isClosed returns true if the link has been closed.
func (l *Link) isClosed() bool {
	select {
	case <-l.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully shuts the link down.
//
// It stops the read loop and the reconnect supervisor, fails any pending
// requests, and closes the socket. Safe to call multiple times.
func (l *Link) Close() error {
	l.done.Close()

	l.connMu.Lock()
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.connMu.Unlock()

	if conn != nil {
		conn.Close() //nolint:errcheck // Shutting down
	}

	l.correlator.FailAll(errors.New("link closed"))

	l.wg.Wait()

	l.logInfo("device link closed")
	return nil
}

func (l *Link) logInfo(msg string, keysAndValues ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (l *Link) logWarn(msg string, keysAndValues ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
