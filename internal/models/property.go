package models

import (
	"time"

	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Property is the listing an enquiry can be attached to. Only the fields the chat
// core needs for validation and notifications are mapped.
type Property struct {
	Base      `bson:",inline"`
	OwnerID   utils.SixID `bson:"owner_id" json:"owner_id"`
	Title     string      `bson:"title" json:"title"`
	City      string      `bson:"city,omitempty" json:"city,omitempty"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
	Deleted   bool        `bson:"deleted" json:"-"`
}
