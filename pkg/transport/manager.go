package transport

import (
	"context"
	"sync"
	"time"

	"github.com/eventualhq/syncengine/internal/constants"
	"github.com/eventualhq/syncengine/internal/sentinel"
	"github.com/eventualhq/syncengine/pkg/stats"
)

// State is the connection state of the manager. Exactly one manager instance
// holds the current state and transitions are serialized.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDegraded
)

// String returns the state name as surfaced in connection-state-changed events.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// BackoffDelay returns the reconnect delay for the given attempt:
// base × 2^(attempt−1). Attempt numbering starts at one.
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	return base << (attempt - 1)
}

// Logger describes a logging interface allowing to plug in external or custom loggers.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Manager owns a single realtime connection's lifecycle: connect with a
// bounded timeout, application-level heartbeat, reconnect with exponential
// backoff, and handoff to polling once the retry budget is exhausted.
//
// Reconnection failures are never surfaced as errors; they only advance the
// attempt counter and schedule the next transition. The only externally
// visible failure mode is the degraded state.
type Manager struct {
	dialer Dialer
	url    string

	connectTimeout    time.Duration
	heartbeatInterval time.Duration
	backoffBase       time.Duration
	maxReconnects     int

	recorder stats.Recorder
	logger   Logger

	onConnected   func()              // fires on every Connecting -> Connected transition
	onUpdate      func(UpdatePayload) // fires for every inbound update message
	onStateChange func(State)
	onDegraded    func() // fires when the retry budget is first exhausted
	onResumed     func() // fires when a connection is re-established after degradation

	mu          sync.Mutex
	state       State
	attempt     int
	wasDegraded bool
	started     bool
	cancel      context.CancelFunc

	connMu sync.Mutex
	conn   Conn

	onlineCh chan struct{}
	wg       sync.WaitGroup
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithHeartbeatInterval sets the ping cadence while connected.
func WithHeartbeatInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// WithBackoffBase sets the base reconnect delay.
func WithBackoffBase(d time.Duration) ManagerOption {
	return func(m *Manager) { m.backoffBase = d }
}

// WithMaxReconnects sets the retry budget before the manager degrades to polling.
func WithMaxReconnects(n int) ManagerOption {
	return func(m *Manager) { m.maxReconnects = n }
}

// WithRecorder sets the stats recorder.
func WithRecorder(recorder stats.Recorder) ManagerOption {
	return func(m *Manager) { m.recorder = recorder }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithOnConnected registers the callback fired on every successful connection,
// used to re-announce channel subscriptions.
func WithOnConnected(fn func()) ManagerOption {
	return func(m *Manager) { m.onConnected = fn }
}

// WithOnUpdate registers the callback fired for every inbound update.
func WithOnUpdate(fn func(UpdatePayload)) ManagerOption {
	return func(m *Manager) { m.onUpdate = fn }
}

// WithOnStateChange registers the callback fired on every state transition.
func WithOnStateChange(fn func(State)) ManagerOption {
	return func(m *Manager) { m.onStateChange = fn }
}

// WithOnDegraded registers the callback fired when the retry budget is
// exhausted, used to start the polling fallback.
func WithOnDegraded(fn func()) ManagerOption {
	return func(m *Manager) { m.onDegraded = fn }
}

// WithOnResumed registers the callback fired when a connection is
// re-established after degradation, used to stop the polling fallback.
func WithOnResumed(fn func()) ManagerOption {
	return func(m *Manager) { m.onResumed = fn }
}

// NewManager creates a manager for the given realtime endpoint.
func NewManager(dialer Dialer, url string, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		dialer:            dialer,
		url:               url,
		connectTimeout:    constants.DefaultConnectTimeout,
		heartbeatInterval: constants.DefaultHeartbeatInterval,
		backoffBase:       constants.DefaultBackoffBase,
		maxReconnects:     constants.DefaultMaxReconnects,
		logger:            nopLogger{},
		state:             StateDisconnected,
		onlineCh:          make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(mgr)
	}

	if mgr.recorder == nil {
		mgr.recorder = stats.NewCollector()
	}

	return mgr
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Start begins the connection lifecycle. It returns immediately; the state
// machine runs until Stop is called or the context is canceled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()

	if m.started {
		m.mu.Unlock()

		return sentinel.ErrManagerClosed
	}

	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)

	go m.run(runCtx)

	return nil
}

// Stop tears the connection down and cancels the heartbeat and any pending
// reconnect timer.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.closeConn()
	m.wg.Wait()
	m.setState(StateDisconnected)
}

// OnlineSignal notifies the manager that network connectivity was restored.
// In the degraded state this triggers one opportunistic reconnect attempt; in
// any other state it is a no-op.
func (m *Manager) OnlineSignal() {
	select {
	case m.onlineCh <- struct{}{}:
	default:
	}
}

// Send writes a message on the active connection. It fails with
// sentinel.ErrNotConnected unless the manager is connected.
func (m *Manager) Send(msg Message) error {
	if m.State() != StateConnected {
		return sentinel.ErrNotConnected
	}

	data, err := msg.Encode()
	if err != nil {
		return err
	}

	return m.write(data)
}

func (m *Manager) write(data []byte) error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.conn == nil {
		return sentinel.ErrNotConnected
	}

	return m.conn.WriteMessage(data)
}

// run drives the state machine until the context is canceled.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		m.setState(StateConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		conn, err := m.dialer.Dial(dialCtx, m.url)

		cancel()

		if err != nil {
			// A connect attempt that does not open within the window is a
			// failure like any other; route into the reconnect transition.
			if !m.scheduleRetry(ctx) {
				return
			}

			continue
		}

		m.adoptConn(conn)
		m.connected()

		m.serve(ctx, conn)

		m.dropConn()

		if ctx.Err() != nil {
			return
		}

		if !m.scheduleRetry(ctx) {
			return
		}
	}
}

// connected handles the Connecting -> Connected transition: the attempt
// counter resets and every registered channel is re-announced.
func (m *Manager) connected() {
	m.mu.Lock()
	m.attempt = 0
	resumed := m.wasDegraded
	m.wasDegraded = false
	m.mu.Unlock()

	m.setState(StateConnected)

	if resumed && m.onResumed != nil {
		m.onResumed()
	}

	if m.onConnected != nil {
		m.onConnected()
	}
}

// scheduleRetry waits out the backoff for the next attempt, or parks in the
// degraded state once the retry budget is exhausted. It returns false when
// the context was canceled.
func (m *Manager) scheduleRetry(ctx context.Context) bool {
	m.mu.Lock()
	m.attempt++
	attempt := m.attempt
	firstDegrade := attempt > m.maxReconnects && !m.wasDegraded

	if attempt > m.maxReconnects {
		m.wasDegraded = true
	}
	m.mu.Unlock()

	if attempt > m.maxReconnects {
		m.setState(StateDegraded)

		if firstDegrade && m.onDegraded != nil {
			m.onDegraded()
		}

		// No automatic retries past this point: wait for a
		// connectivity-restored signal.
		select {
		case <-ctx.Done():
			return false
		case <-m.onlineCh:
			return true
		}
	}

	m.recorder.Reconnect()
	m.setState(StateReconnecting)

	delay := BackoffDelay(m.backoffBase, attempt)
	m.logger.Printf("transport: reconnect attempt %d in %s", attempt, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// serve runs the read loop and the heartbeat for one connection. It returns
// when the connection dies or the context is canceled.
func (m *Manager) serve(ctx context.Context, conn Conn) {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	pongs := make(chan struct{}, 1)

	m.wg.Add(1)

	go m.heartbeat(hbCtx, conn, pongs)

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		inbound, err := DecodeInbound(raw)
		if err != nil {
			// One malformed message never costs the connection.
			m.recorder.ProtocolViolation()
			m.logger.Printf("transport: dropping malformed message: %v", err)

			continue
		}

		switch msg := inbound.(type) {
		case PingMessage:
			pong, encodeErr := Message{Type: TypePong}.Encode()
			if encodeErr == nil {
				_ = m.write(pong)
			}

		case PongMessage:
			select {
			case pongs <- struct{}{}:
			default:
			}

		case UpdateMessage:
			if m.onUpdate != nil {
				m.onUpdate(msg.Payload)
			}
		}
	}
}

// heartbeat sends a ping at a fixed interval and force-closes the connection
// after MaxMissedPongs consecutive unanswered pings. This bounds detection of
// half-open connections.
func (m *Manager) heartbeat(ctx context.Context, conn Conn, pongs <-chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	missedPongs := 0

	for {
		select {
		case <-ctx.Done():
			return

		case <-pongs:
			missedPongs = 0

		case <-ticker.C:
			if missedPongs >= constants.MaxMissedPongs {
				m.logger.Printf("transport: %d missed pongs, forcing reconnect", missedPongs)
				_ = conn.Close()

				return
			}

			ping, err := Message{Type: TypePing}.Encode()
			if err == nil {
				_ = m.write(ping)
			}

			missedPongs++
		}
	}
}

func (m *Manager) adoptConn(conn Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
}

func (m *Manager) dropConn() {
	m.connMu.Lock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.connMu.Unlock()
}

func (m *Manager) closeConn() {
	m.connMu.Lock()

	if m.conn != nil {
		_ = m.conn.Close()
	}

	m.connMu.Unlock()
}

// setState records a transition and notifies the state-change callback.
func (m *Manager) setState(next State) {
	m.mu.Lock()

	if m.state == next {
		m.mu.Unlock()

		return
	}

	m.state = next
	m.mu.Unlock()

	if m.onStateChange != nil {
		m.onStateChange(next)
	}
}
