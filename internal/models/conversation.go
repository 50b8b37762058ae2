package models

import (
	"time"

	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// ContactInfo is the initiator's declared contact details, captured once at creation.
type ContactInfo struct {
	Name  string `bson:"name,omitempty" json:"name,omitempty"`
	Email string `bson:"email,omitempty" json:"email,omitempty"`
	Phone string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// UnreadCounts maps a user's SixID string to the number of messages they have not read.
// It is the only source of unread state and is never derived from message read sets.
type UnreadCounts map[string]int

// For returns the counter for a user, zero when absent.
func (u UnreadCounts) For(userID utils.SixID) int {
	return u[userID.String()]
}

// Clone returns an independent copy.
func (u UnreadCounts) Clone() UnreadCounts {
	out := make(UnreadCounts, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Conversation is an enquiry thread between an initiating user and staff, optionally
// about one property. At most one exists per (PropertyID, CreatedBy).
type Conversation struct {
	Base              `bson:",inline"`
	PropertyID        *utils.SixID  `bson:"property_id" json:"property_id"`
	Participants      []utils.SixID `bson:"participants" json:"participants"`
	UnreadCountByUser UnreadCounts  `bson:"unread_count_by_user" json:"unread_count_by_user"`
	LastMessageAt     time.Time     `bson:"last_message_at" json:"last_message_at"`
	Contact           *ContactInfo  `bson:"contact,omitempty" json:"contact,omitempty"`
	CreatedBy         utils.SixID   `bson:"created_by" json:"created_by"`
	CreatedAt         time.Time     `bson:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID is in the participant set.
func (c *Conversation) HasParticipant(userID utils.SixID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ConversationSummary is the inbox projection of a conversation; it carries no message bodies.
type ConversationSummary struct {
	ID                utils.SixID   `bson:"_id" json:"id"`
	PropertyID        *utils.SixID  `bson:"property_id" json:"property_id"`
	Participants      []utils.SixID `bson:"participants" json:"participants"`
	UnreadCountByUser UnreadCounts  `bson:"unread_count_by_user" json:"unread_count_by_user"`
	LastMessageAt     time.Time     `bson:"last_message_at" json:"last_message_at"`
	Contact           *ContactInfo  `bson:"contact,omitempty" json:"contact,omitempty"`
	CreatedBy         utils.SixID   `bson:"created_by" json:"created_by"`
}

// Summary projects the conversation for inbox lists.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:                c.ID,
		PropertyID:        c.PropertyID,
		Participants:      c.Participants,
		UnreadCountByUser: c.UnreadCountByUser,
		LastMessageAt:     c.LastMessageAt,
		Contact:           c.Contact,
		CreatedBy:         c.CreatedBy,
	}
}
