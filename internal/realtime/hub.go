package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Hub keeps the room table of this process: which connections listen to which
// conversation. Membership lives only as long as the connection.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[utils.SixID]map[*Client]struct{}
	joined map[*Client]map[utils.SixID]struct{}
	users  map[utils.SixID]map[*Client]struct{}
	log    *zap.Logger
}

var _ services.IEventPublisher = (*Hub)(nil)

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:  map[utils.SixID]map[*Client]struct{}{},
		joined: map[*Client]map[utils.SixID]struct{}{},
		users:  map[utils.SixID]map[*Client]struct{}{},
		log:    log,
	}
}

// Register tracks a new connection. It has no rooms until it joins one.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.joined[c]; ok {
		return
	}
	h.joined[c] = map[utils.SixID]struct{}{}
	if h.users[c.UserID()] == nil {
		h.users[c.UserID()] = map[*Client]struct{}{}
	}
	h.users[c.UserID()][c] = struct{}{}
}

// Unregister removes the connection from every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.joined[c]
	if !ok {
		return
	}
	for room := range rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.joined, c)
	if conns := h.users[c.UserID()]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.UserID())
		}
	}
}

// Join adds the connection to a room. Joining twice is a no-op; the result reports
// whether membership changed.
func (h *Hub) Join(c *Client, room utils.SixID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rooms, ok := h.joined[c]
	if !ok {
		return false
	}
	if _, already := rooms[room]; already {
		return false
	}
	rooms[room] = struct{}{}
	if h.rooms[room] == nil {
		h.rooms[room] = map[*Client]struct{}{}
	}
	h.rooms[room][c] = struct{}{}
	return true
}

func (h *Hub) Leave(c *Client, room utils.SixID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
	}
	h.removeFromRoom(c, room)
}

// removeFromRoom expects h.mu to be held.
func (h *Hub) removeFromRoom(c *Client, room utils.SixID) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room utils.SixID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// UserConnections returns the number of live connections of a user.
func (h *Hub) UserConnections(userID utils.SixID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Broadcast queues frame on every connection in the room and returns how many accepted it.
// A connection whose send buffer is full is disconnected rather than waited on.
func (h *Hub) Broadcast(room utils.SixID, frame []byte) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*Client
	for _, c := range members {
		if c.enqueue(frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.log.Warn("dropping slow websocket consumer",
			zap.String("connection_id", c.ID()),
			zap.String("user_id", c.UserID().String()),
			zap.String("conversation_id", room.String()))
		h.Unregister(c)
		c.Close()
	}
	return delivered
}

// BroadcastEnvelope encodes env once and fans it out to the room.
func (h *Hub) BroadcastEnvelope(room utils.SixID, env Envelope) (int, error) {
	frame, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("%w: encode %s: %v", services.ErrTransport, env.Type, err)
	}
	return h.Broadcast(room, frame), nil
}

// PublishMessageNew delivers message:new to local subscribers of the conversation.
func (h *Hub) PublishMessageNew(_ context.Context, conv *models.Conversation, msg *models.Message) error {
	env, err := messageNewEnvelope(conv, msg)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrTransport, err)
	}
	_, err = h.BroadcastEnvelope(conv.ID, env)
	return err
}

// PublishRead delivers chat:read to local subscribers of the conversation.
func (h *Hub) PublishRead(_ context.Context, conv *models.Conversation, userID utils.SixID) error {
	env, err := readEnvelope(conv, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrTransport, err)
	}
	_, err = h.BroadcastEnvelope(conv.ID, env)
	return err
}
