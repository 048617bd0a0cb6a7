package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"LavTutorClient/internal/metrics"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Maximum number of queued outbound frames
	sendBufferSize = 256
)

// Handler consumes the data payload of one named event.
type Handler func(data json.RawMessage)

// Session is the single bidirectional event channel a logged-in user
// holds against the platform backend. It is opened once the user's
// identity is resolved and shared by every consuming component; inbound
// events are dispatched sequentially from one reader goroutine.
//
// The session redials on connection loss. Server-side room membership
// does not survive a reconnect, so consumers register connect hooks to
// re-establish it; hooks also run on the first connect.
type Session struct {
	socketURL string
	userID    string

	mu           sync.RWMutex
	handlers     map[string][]Handler
	connectHooks []func()
	conn         *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	redial *rate.Limiter
}

func NewSession(socketURL, userID string, redialInterval time.Duration) *Session {
	if redialInterval <= 0 {
		redialInterval = 2 * time.Second
	}
	return &Session{
		socketURL: socketURL,
		userID:    userID,
		handlers:  make(map[string][]Handler),
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		redial:    rate.NewLimiter(rate.Every(redialInterval), 1),
	}
}

// On registers a handler for a named event. Registration is expected to
// happen before Dial; the subscription lives for the whole session.
func (s *Session) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// OnConnect registers a hook that runs on every successful connect,
// including the first one.
func (s *Session) OnConnect(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectHooks = append(s.connectHooks, hook)
}

// Emit queues an outbound event. Delivery is not guaranteed: frames
// buffered at close time, or queued while the connection is down and
// the buffer fills up, are dropped.
func (s *Session) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", event, err)
	}

	select {
	case <-s.done:
		return errors.New("session closed")
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s", event)
	}
}

// Dial opens the session and starts the reconnect loop. It returns an
// error only when the first connect fails; later drops are handled by
// redialing until Close or ctx cancellation.
func (s *Session) Dial(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	metrics.RecordConnect(false)
	go s.run(ctx, conn)
	return nil
}

// Close tears the session down. No buffered events are delivered after
// close.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
}

func (s *Session) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.socketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid socket url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", s.userID)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u.Host, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

func (s *Session) run(ctx context.Context, conn *websocket.Conn) {
	for {
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.runConnectHooks()

		stop := make(chan struct{})
		go s.writePump(conn, stop)
		s.readPump(conn)
		conn.Close()
		close(stop)

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn = s.reconnect(ctx)
		if conn == nil {
			return
		}
		metrics.RecordConnect(true)
		slog.Info("Socket reconnected", "user_id", s.userID)
	}
}

func (s *Session) reconnect(ctx context.Context) *websocket.Conn {
	for {
		if err := s.redial.Wait(ctx); err != nil {
			return nil
		}
		select {
		case <-s.done:
			return nil
		default:
		}

		conn, err := s.connect(ctx)
		if err != nil {
			slog.Warn("Reconnect attempt failed", "error", err)
			continue
		}
		return conn
	}
}

func (s *Session) runConnectHooks() {
	s.mu.RLock()
	hooks := append([]func(){}, s.connectHooks...)
	s.mu.RUnlock()

	for _, hook := range hooks {
		hook()
	}
}

func (s *Session) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Socket read failed", "error", err)
			}
			return
		}
		s.dispatch(raw)
	}
}

func (s *Session) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// dispatch runs handlers sequentially so consumers never see two
// inbound events concurrently.
func (s *Session) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		slog.Warn("Dropping malformed socket frame", "error", err)
		return
	}

	s.mu.RLock()
	handlers := append([]Handler{}, s.handlers[env.Event]...)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(env.Data)
	}
}
