package models

import (
	"time"

	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// DirectMessage is the legacy owner-to-user message record. The chat core reads it only
// to surface it in the inbox next to enquiries; it has no unread counters or rooms.
type DirectMessage struct {
	Base        `bson:",inline"`
	SenderID    utils.SixID  `bson:"sender_id" json:"sender_id"`
	RecipientID utils.SixID  `bson:"recipient_id" json:"recipient_id"`
	PropertyID  *utils.SixID `bson:"property_id,omitempty" json:"property_id,omitempty"`
	Subject     string       `bson:"subject,omitempty" json:"subject,omitempty"`
	Body        string       `bson:"body" json:"body"`
	Read        bool         `bson:"read" json:"read"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
}
