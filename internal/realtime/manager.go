package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"taskdeck-client/internal/resilience/retry"

	"github.com/gorilla/websocket"
)

// State is the externally visible condition of the push channel.
type State int

const (
	// StateIdle means no credential is present, or the feature is disabled.
	// No network resources are held.
	StateIdle State = iota

	// StateConnecting means a channel handshake is in flight.
	StateConnecting

	// StateOpen means the handshake was acknowledged and events flow.
	StateOpen

	// StateDegraded means the channel is not currently reliable.
	// Reconnection attempts continue underneath; a fresh Open transition
	// without host intervention is the expected recovery path.
	StateDegraded

	// StateClosed means the channel was explicitly torn down.
	StateClosed
)

// String returns a string representation of the connection state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config contains configuration for the connection manager.
type Config struct {
	// URL is the websocket endpoint, e.g. "wss://deck.example.com/realtime"
	URL string

	// Enabled gates the whole feature. When false the manager stays Idle
	// and holds no network resources.
	Enabled bool

	// DomainEvents is the set of event names forwarded to the invalidation
	// callback. Zero value means defaultDomainEvents.
	DomainEvents []string

	// HandshakeTimeout bounds the websocket upgrade. Zero means 10s.
	// The channel deliberately has no per-call timeout beyond this;
	// liveness is observed through heartbeats and the Degraded state.
	HandshakeTimeout time.Duration

	// ReconnectMin is the initial redial backoff. Zero means 1s.
	ReconnectMin time.Duration

	// ReconnectMax caps the redial backoff. Zero means 30s.
	ReconnectMax time.Duration
}

// withDefaults fills zero-value fields with defaults.
func (cfg Config) withDefaults() Config {
	if len(cfg.DomainEvents) == 0 {
		cfg.DomainEvents = defaultDomainEvents
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 1 * time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return cfg
}

// Manager supervises the push channel.
//
// The channel is owned exclusively by the Manager; the host never holds a
// direct reference to it. All errors stay internal and are reflected only
// through State().
type Manager struct {
	cfg          Config
	events       map[string]struct{}
	onInvalidate func(event string)
	dialer       *websocket.Dialer

	mu        sync.Mutex
	state     State
	token     string
	gen       int
	conn      *websocket.Conn
	cancel    context.CancelFunc
	heartbeat heartbeatTracker
}

// NewManager creates a connection manager in the Idle state.
// onInvalidate, when non-nil, is invoked once per domain-change event with
// the event name; the callback owns deciding what to refresh.
func NewManager(cfg Config, onInvalidate func(event string)) *Manager {
	cfg = cfg.withDefaults()

	events := make(map[string]struct{}, len(cfg.DomainEvents))
	for _, name := range cfg.DomainEvents {
		events[name] = struct{}{}
	}

	return &Manager{
		cfg:          cfg,
		events:       events,
		onInvalidate: onInvalidate,
		dialer:       &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		state:        StateIdle,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastHeartbeat returns the most recent heartbeat sample, if any exists.
// No sample exists until at least two heartbeat events have been received.
func (m *Manager) LastHeartbeat() (HeartbeatSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeat.last()
}

// SetCredential supplies the current bearer token. A non-empty value opens
// (or, on change, reopens) the channel; an empty value tears it down.
// The previous channel is always fully torn down before a new handshake
// starts, so a stale-credential channel can never linger.
func (m *Manager) SetCredential(token string) {
	m.mu.Lock()
	if token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token
	m.teardownLocked()

	if token == "" {
		if m.state != StateIdle {
			m.setStateLocked(StateClosed)
		}
		m.mu.Unlock()
		return
	}
	if !m.cfg.Enabled {
		m.mu.Unlock()
		return
	}

	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	go m.supervise(ctx, gen, token)
}

// Close tears the channel down deterministically: the supervisor goroutine
// is cancelled, the socket released, and no callback fires afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	if m.state != StateIdle {
		m.setStateLocked(StateClosed)
	}
}

// teardownLocked cancels the supervisor and closes the socket. Bumping the
// generation counter fences out any in-flight read loop: a superseded loop
// can no longer mutate state or deliver callbacks.
func (m *Manager) teardownLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// setStateLocked transitions the exposed state.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	slog.Info("connection state changed",
		slog.String("from", m.state.String()),
		slog.String("to", s.String()))
	m.state = s
	setConnectionState(s)
}

// transition applies a state change only if the generation still matches.
func (m *Manager) transition(gen int, s State) {
	m.mu.Lock()
	if gen == m.gen {
		m.setStateLocked(s)
	}
	m.mu.Unlock()
}

// supervise dials, reads, and redials until cancelled. A successful upgrade
// is the handshake acknowledgment; dial and read failures degrade the
// exposed state while redial attempts continue with capped backoff.
func (m *Manager) supervise(ctx context.Context, gen int, token string) {
	backoff := retry.NewBackoff(retry.ChannelRedialConfig(m.cfg.ReconnectMin, m.cfg.ReconnectMax))

	for {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		conn, resp, err := m.dialer.DialContext(ctx, m.cfg.URL, header)
		if err != nil {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
			if ctx.Err() != nil {
				return
			}
			recordReconnect("failure")
			m.transition(gen, StateDegraded)
			delay := backoff.Next()
			slog.Warn("realtime handshake failed",
				slog.String("url", m.cfg.URL),
				slog.Any("error", err),
				slog.Duration("backoff", delay))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.setStateLocked(StateOpen)
		m.mu.Unlock()

		recordReconnect("success")
		slog.Info("realtime channel open", slog.String("url", m.cfg.URL))
		backoff.Reset()

		m.readLoop(gen, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		m.transition(gen, StateDegraded)
		slog.Warn("realtime channel lost, reconnecting")
	}
}

// readLoop delivers inbound events until the socket fails or is closed.
func (m *Manager) readLoop(gen int, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		m.handleEvent(gen, env)
	}
}

// handleEvent demultiplexes one inbound event into heartbeat sampling or
// invalidation dispatch. Events are handled on the single read goroutine,
// so delivery order is receipt order.
func (m *Manager) handleEvent(gen int, env Envelope) {
	if env.Event == EventHeartbeat {
		m.mu.Lock()
		if gen != m.gen {
			m.mu.Unlock()
			return
		}
		if sample, ok := m.heartbeat.observe(time.Now()); ok {
			observeHeartbeatLatency(sample.Latency.Seconds())
		}
		m.mu.Unlock()
		return
	}

	if _, ok := m.events[env.Event]; !ok {
		return
	}

	m.mu.Lock()
	stale := gen != m.gen
	m.mu.Unlock()
	if stale || m.onInvalidate == nil {
		return
	}

	recordInvalidation(env.Event)
	m.onInvalidate(env.Event)
}
