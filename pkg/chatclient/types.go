// Package chatclient is the client delivery layer for enquiry chat. It keeps a local
// view of conversations consistent with the server by combining a baseline REST
// snapshot, realtime pushes deduplicated by message id, and a reconciliation poll.
// Unread counts are only ever taken from server-provided maps.
package chatclient

import (
	"encoding/json"
	"time"
)

// Realtime event names, matching the gateway.
const (
	EventJoin       = "chat:join"
	EventLeave      = "chat:leave"
	EventJoined     = "chat:joined"
	EventMessageNew = "message:new"
	EventRead       = "chat:read"
	EventError      = "error"

	// EventReconnected is emitted locally after the connection manager re-dials.
	// Pushes may have been missed while disconnected.
	EventReconnected = "client:reconnected"
)

// Identity is who the client acts as. Token is the bearer JWT.
type Identity struct {
	UserID string
	Token  string
}

type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation is both the full conversation and its inbox summary.
type Conversation struct {
	ID                string         `json:"id"`
	PropertyID        *string        `json:"property_id"`
	Participants      []string       `json:"participants"`
	UnreadCountByUser map[string]int `json:"unread_count_by_user"`
	LastMessageAt     time.Time      `json:"last_message_at"`
	Contact           *Contact       `json:"contact,omitempty"`
	CreatedBy         string         `json:"created_by"`
}

// SendResult is the server's answer to a message write.
type SendResult struct {
	Conversation *Conversation `json:"conversation"`
	Message      *Message      `json:"message"`
	Created      bool          `json:"created"`
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type roomPayload struct {
	ConversationID string `json:"conversationId"`
}

// MessageNewEvent is the payload of message:new.
type MessageNewEvent struct {
	ConversationID    string         `json:"conversationId"`
	Message           Message        `json:"message"`
	UnreadCountByUser map[string]int `json:"unreadCountByUser"`
}

// ReadEvent is the payload of chat:read.
type ReadEvent struct {
	ConversationID    string         `json:"conversationId"`
	UserID            string         `json:"userId"`
	UnreadCountByUser map[string]int `json:"unreadCountByUser"`
}

// ErrorEvent is the payload of an error frame.
type ErrorEvent struct {
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error"`
}

func cloneCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
