package models

import (
	"time"

	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Message is one entry in a conversation's append-only log. Only ReadBy ever changes.
type Message struct {
	Base           `bson:",inline"`
	ConversationID utils.SixID   `bson:"conversation_id" json:"conversation_id"`
	SenderID       utils.SixID   `bson:"sender_id" json:"sender_id"`
	Text           string        `bson:"text" json:"text"`
	ReadBy         []utils.SixID `bson:"read_by" json:"read_by"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
}

// IsReadBy reports whether userID has acknowledged the message.
func (m *Message) IsReadBy(userID utils.SixID) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
