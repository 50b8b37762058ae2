package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Authorizer decides whether a session may join a conversation room.
type Authorizer interface {
	CanAccess(ctx context.Context, conversationID utils.SixID, session models.Session) error
}

// ClientConfig tunes a single websocket connection.
type ClientConfig struct {
	SendBuffer   int
	InboundRate  float64 // frames per second
	InboundBurst int
	PingInterval time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 10
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

const (
	writeWait     = 10 * time.Second
	maxFrameSize  = 8 * 1024
	authorizeWait = 5 * time.Second
)

// Client is one websocket connection of a user. A user with several tabs has several clients.
type Client struct {
	id        string
	session   models.Session
	conn      *websocket.Conn
	hub       *Hub
	auth      Authorizer
	cfg       ClientConfig
	limiter   *rate.Limiter
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *zap.Logger
}

func NewClient(conn *websocket.Conn, session models.Session, hub *Hub, auth Authorizer, cfg ClientConfig, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Client{
		id:      id,
		session: session,
		conn:    conn,
		hub:     hub,
		auth:    auth,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.InboundRate), cfg.InboundBurst),
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		log:     log.With(zap.String("connection_id", id), zap.String("user_id", session.UserID.String())),
	}
}

func (c *Client) ID() string              { return c.id }
func (c *Client) UserID() utils.SixID     { return c.session.UserID }
func (c *Client) Session() models.Session { return c.session }

// Close stops the write pump, which closes the socket. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Run registers the client and pumps frames until the connection ends.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	c.log.Debug("websocket connected")
	go c.writePump()
	c.readPump(ctx)
	c.log.Debug("websocket disconnected")
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		_ = c.conn.Close()
	}()

	pongWait := 2 * c.cfg.PingInterval
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.sendError(nil, "rate limit exceeded")
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError(nil, "invalid frame")
			continue
		}
		c.handle(ctx, env)
	}
}

func (c *Client) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case EventJoin:
		var p RoomPayload
		if err := env.Decode(&p); err != nil || p.ConversationID.IsZero() {
			c.sendError(nil, "conversationId is required")
			return
		}
		authCtx, cancel := context.WithTimeout(ctx, authorizeWait)
		err := c.auth.CanAccess(authCtx, p.ConversationID, c.session)
		cancel()
		if err != nil {
			c.sendError(&p.ConversationID, joinErrorMessage(err))
			return
		}
		c.hub.Join(c, p.ConversationID)
		c.reply(EventJoined, p)
	case EventLeave:
		var p RoomPayload
		if err := env.Decode(&p); err != nil || p.ConversationID.IsZero() {
			c.sendError(nil, "conversationId is required")
			return
		}
		c.hub.Leave(c, p.ConversationID)
	default:
		c.sendError(nil, "unknown event "+env.Type)
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return "conversation not found"
	default:
		return "could not join conversation"
	}
}

func (c *Client) reply(eventType string, payload any) {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		c.log.Error("failed to encode reply", zap.Error(err))
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		c.log.Error("failed to encode reply", zap.Error(err))
		return
	}
	if !c.enqueue(frame) {
		c.log.Debug("dropped reply to full send buffer", zap.String("type", eventType))
	}
}

func (c *Client) sendError(conversationID *utils.SixID, message string) {
	c.reply(EventError, ErrorPayload{ConversationID: conversationID, Error: message})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
