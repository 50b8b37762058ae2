package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Wire event names.
const (
	EventJoin       = "chat:join"
	EventLeave      = "chat:leave"
	EventJoined     = "chat:joined"
	EventMessageNew = "message:new"
	EventRead       = "chat:read"
	EventError      = "error"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomPayload is the body of chat:join, chat:leave and chat:joined.
type RoomPayload struct {
	ConversationID utils.SixID `json:"conversationId"`
}

type MessageNewPayload struct {
	ConversationID    utils.SixID         `json:"conversationId"`
	Message           *models.Message     `json:"message"`
	UnreadCountByUser models.UnreadCounts `json:"unreadCountByUser"`
}

type ReadPayload struct {
	ConversationID    utils.SixID         `json:"conversationId"`
	UserID            utils.SixID         `json:"userId"`
	UnreadCountByUser models.UnreadCounts `json:"unreadCountByUser"`
}

type ErrorPayload struct {
	ConversationID *utils.SixID `json:"conversationId,omitempty"`
	Error          string       `json:"error"`
}

// NewEnvelope encodes payload under the given event type.
func NewEnvelope(eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

func messageNewEnvelope(conv *models.Conversation, msg *models.Message) (Envelope, error) {
	return NewEnvelope(EventMessageNew, MessageNewPayload{
		ConversationID:    conv.ID,
		Message:           msg,
		UnreadCountByUser: conv.UnreadCountByUser,
	})
}

func readEnvelope(conv *models.Conversation, userID utils.SixID) (Envelope, error) {
	return NewEnvelope(EventRead, ReadPayload{
		ConversationID:    conv.ID,
		UserID:            userID,
		UnreadCountByUser: conv.UnreadCountByUser,
	})
}
