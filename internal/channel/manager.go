package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"chatsyncd/internal/bus"
	chaterrors "chatsyncd/internal/errors"
)

const maxReconnectDelay = 5 * time.Second

// Conn is the subset of a websocket connection the manager uses. Narrowed
// for test injection.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens a duplex connection to the endpoint with the credential
// attached.
type Dialer func(ctx context.Context, url, token string) (Conn, error)

// DialWebsocket is the production dialer.
func DialWebsocket(ctx context.Context, url, token string) (Conn, error) {
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler processes one inbound frame. Handlers run on the read goroutine,
// so inbound frames for a connection are dispatched in arrival order.
type Handler func(*Frame)

// Manager owns the one logical realtime connection: connect and reconnect
// with backoff, typed sends, and dispatch of inbound frames to registered
// handlers. State changes surface on the bus via the embedded Machine.
type Manager struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *Machine
	logger  *zap.Logger
	dial    Dialer

	mu             sync.Mutex
	conn           Conn
	attempt        int
	reconnectTimer *time.Timer
	readCancel     context.CancelFunc
	closed         bool // explicit Disconnect; suppresses reconnection
	handlers       map[string]Handler
}

// NewManager creates a connection manager for the given endpoint.
func NewManager(url, token string, b *bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		url:      url,
		token:    token,
		bus:      b,
		machine:  NewMachine(b),
		logger:   logger,
		dial:     DialWebsocket,
		handlers: make(map[string]Handler),
	}
}

// OnFrame registers the dispatcher for a frame type. Exactly one handler per
// type; registering again replaces the previous handler.
func (m *Manager) OnFrame(frameType string, h Handler) {
	m.mu.Lock()
	m.handlers[frameType] = h
	m.mu.Unlock()
}

// State returns the current channel state.
func (m *Manager) State() State {
	return m.machine.Current()
}

// IsOpen reports whether the channel is currently open.
func (m *Manager) IsOpen() bool {
	return m.machine.Current() == Open
}

// Connect opens the channel. Idempotent: a no-op while the channel is open
// or a connection attempt is in flight. A failed dial schedules a
// reconnection and returns a ConnectError; it is never fatal.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
	return m.connect(ctx)
}

// connect is the shared dial path. Unlike Connect it honors an explicit
// Disconnect: a reconnect timer that fires late must not resurrect a
// closed channel.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	switch m.machine.Current() {
	case Open, Connecting:
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	if err := m.machine.Transition(Connecting); err != nil {
		// Lost a race with another Connect.
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.dial(ctx, m.url, m.token)
	if err != nil {
		m.logger.Warn("channel dial failed", zap.Error(err))
		m.scheduleReconnect()
		return fmt.Errorf("%w: %v", chaterrors.ErrConnect, err)
	}

	m.mu.Lock()
	if m.closed {
		// Disconnect raced the dial; drop the fresh connection.
		m.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closed")
		return nil
	}
	m.conn = conn
	m.attempt = 0
	readCtx, cancel := context.WithCancel(context.Background())
	m.readCancel = cancel
	_ = m.machine.Transition(Open)
	m.mu.Unlock()

	m.logger.Info("channel open", zap.String("url", m.url))
	go m.readLoop(readCtx, conn)
	return nil
}

// Disconnect closes the channel and cancels any pending reconnection timer.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "disconnect")
	}
	if m.machine.Current() != Closed {
		_ = m.machine.Transition(Closed)
	}
	m.logger.Info("channel disconnected")
}

// Send writes a typed frame to the channel. Returns ChannelClosed when the
// channel is not open; the caller decides whether to queue.
func (m *Manager) Send(ctx context.Context, f *Frame) error {
	m.mu.Lock()
	conn := m.conn
	open := m.machine.Current() == Open
	m.mu.Unlock()

	if !open || conn == nil {
		return chaterrors.ErrChannelClosed
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleClosed(err)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		m.logger.Warn("malformed frame dropped", zap.Error(err))
		return
	}
	m.mu.Lock()
	h := m.handlers[f.Type]
	m.mu.Unlock()
	if h == nil {
		m.logger.Warn("unknown frame type dropped", zap.String("type", f.Type))
		return
	}
	h(f)
}

// handleClosed runs when the read loop sees a connection error. Explicit
// disconnects were already transitioned; anything else schedules a reconnect.
func (m *Manager) handleClosed(err error) {
	m.mu.Lock()
	explicit := m.closed
	m.conn = nil
	m.mu.Unlock()

	if explicit {
		return
	}
	_ = m.machine.Transition(Closed)
	m.logger.Warn("channel closed unexpectedly", zap.Error(err))
	m.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer: min(5s, 1s * attempt), attempts
// uncapped. Chat delivery keeps trying until Disconnect.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.attempt++
	delay := reconnectDelay(m.attempt)
	_ = m.machine.Transition(Reconnecting)
	m.reconnectTimer = time.AfterFunc(delay, func() {
		_ = m.connect(context.Background())
	})
	m.logger.Info("reconnect scheduled",
		zap.Int("attempt", m.attempt),
		zap.Duration("delay", delay),
	)
}

func (m *Manager) stopTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func reconnectDelay(attempt int) time.Duration {
	return min(maxReconnectDelay, time.Duration(attempt)*time.Second)
}
