package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventHandler receives the raw payload of one realtime event.
type EventHandler func(payload json.RawMessage)

// ConnectionManager owns the realtime connection for one identity.
type ConnectionManager interface {
	Connect(ctx context.Context, identity Identity) error
	Disconnect()
	// OnEvent registers a handler and returns a function that removes it.
	OnEvent(eventType string, handler EventHandler) func()
	// Join subscribes to a conversation room. Rooms are re-joined after every reconnect.
	Join(conversationID string) error
	Leave(conversationID string) error
}

var ErrNotConnected = errors.New("chatclient: not connected")

const (
	wsWriteWait       = 10 * time.Second
	defaultBackoffMin = 250 * time.Millisecond
	defaultBackoffMax = 15 * time.Second
)

// WebsocketConnection is the gorilla/websocket ConnectionManager.
type WebsocketConnection struct {
	endpoint string
	dialer   *websocket.Dialer
	log      *zap.Logger

	BackoffMin time.Duration
	BackoffMax time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	identity Identity
	rooms    map[string]struct{}
	cancel   context.CancelFunc
	done     chan struct{}

	handlersMu  sync.RWMutex
	handlers    map[string]map[int]EventHandler
	nextHandler int

	writeMu sync.Mutex
}

var _ ConnectionManager = (*WebsocketConnection)(nil)

// NewWebsocketConnection targets endpoint, e.g. wss://api.example.com/v1/ws.
func NewWebsocketConnection(endpoint string, log *zap.Logger) *WebsocketConnection {
	return &WebsocketConnection{
		endpoint:   endpoint,
		dialer:     websocket.DefaultDialer,
		log:        log,
		BackoffMin: defaultBackoffMin,
		BackoffMax: defaultBackoffMax,
		rooms:      make(map[string]struct{}),
		handlers:   make(map[string]map[int]EventHandler),
	}
}

func (w *WebsocketConnection) dial(ctx context.Context, identity Identity) (*websocket.Conn, error) {
	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", identity.Token)
	u.RawQuery = q.Encode()
	conn, _, err := w.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// Connect dials for identity. Connecting as the current identity is a no-op; a different
// identity drops the old connection and its rooms first.
func (w *WebsocketConnection) Connect(ctx context.Context, identity Identity) error {
	w.mu.Lock()
	if w.conn != nil && w.identity == identity {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()
	w.Disconnect()

	conn, err := w.dial(ctx, identity)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.conn = conn
	w.identity = identity
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	rooms := w.roomList()
	w.mu.Unlock()

	w.joinAll(conn, rooms)
	go w.run(runCtx, conn, done)
	return nil
}

// Disconnect closes the connection, stops reconnecting and forgets all rooms.
func (w *WebsocketConnection) Disconnect() {
	w.mu.Lock()
	cancel, conn, done := w.cancel, w.conn, w.done
	if cancel == nil {
		w.mu.Unlock()
		return
	}
	w.cancel, w.conn, w.done = nil, nil, nil
	w.identity = Identity{}
	w.rooms = make(map[string]struct{})
	// Cancel before unlocking: reconnect installs a conn only under w.mu with a live ctx.
	cancel()
	w.mu.Unlock()

	if conn != nil {
		w.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		w.writeMu.Unlock()
		_ = conn.Close()
	}
	<-done
}

func (w *WebsocketConnection) OnEvent(eventType string, handler EventHandler) func() {
	w.handlersMu.Lock()
	defer w.handlersMu.Unlock()
	if w.handlers[eventType] == nil {
		w.handlers[eventType] = make(map[int]EventHandler)
	}
	id := w.nextHandler
	w.nextHandler++
	w.handlers[eventType][id] = handler
	return func() {
		w.handlersMu.Lock()
		defer w.handlersMu.Unlock()
		delete(w.handlers[eventType], id)
	}
}

func (w *WebsocketConnection) emit(eventType string, payload json.RawMessage) {
	w.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(w.handlers[eventType]))
	for _, h := range w.handlers[eventType] {
		handlers = append(handlers, h)
	}
	w.handlersMu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
}

// Join records the room and sends chat:join when connected. Before Connect the room is
// joined as soon as the connection comes up.
func (w *WebsocketConnection) Join(conversationID string) error {
	w.mu.Lock()
	w.rooms[conversationID] = struct{}{}
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return w.send(conn, EventJoin, roomPayload{ConversationID: conversationID})
}

func (w *WebsocketConnection) Leave(conversationID string) error {
	w.mu.Lock()
	delete(w.rooms, conversationID)
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return w.send(conn, EventLeave, roomPayload{ConversationID: conversationID})
}

func (w *WebsocketConnection) roomList() []string {
	rooms := make([]string, 0, len(w.rooms))
	for id := range w.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (w *WebsocketConnection) joinAll(conn *websocket.Conn, rooms []string) {
	for _, id := range rooms {
		if err := w.send(conn, EventJoin, roomPayload{ConversationID: id}); err != nil {
			w.log.Debug("re-join failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
}

func (w *WebsocketConnection) send(conn *websocket.Conn, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(envelope{Type: eventType, Payload: raw})
}

// run reads until the connection drops, then re-dials with exponential backoff.
func (w *WebsocketConnection) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		w.readLoop(conn)
		if ctx.Err() != nil {
			return
		}

		next, ok := w.reconnect(ctx)
		if !ok {
			return
		}
		conn = next
		w.emit(EventReconnected, nil)
	}
}

func (w *WebsocketConnection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.log.Debug("ignoring malformed frame", zap.Error(err))
			continue
		}
		w.emit(env.Type, env.Payload)
	}
}

func (w *WebsocketConnection) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	delay := w.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(delay):
		}

		w.mu.Lock()
		identity := w.identity
		w.mu.Unlock()

		conn, err := w.dial(ctx, identity)
		if err == nil {
			w.mu.Lock()
			if ctx.Err() != nil {
				w.mu.Unlock()
				_ = conn.Close()
				return nil, false
			}
			w.conn = conn
			rooms := w.roomList()
			w.mu.Unlock()
			w.joinAll(conn, rooms)
			return conn, true
		}
		w.log.Debug("websocket reconnect failed", zap.Duration("retry_in", delay), zap.Error(err))
		delay *= 2
		if delay > w.BackoffMax {
			delay = w.BackoffMax
		}
	}
}
