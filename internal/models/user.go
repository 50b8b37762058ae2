package models

import (
	"time"

	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// Role is the user's position in the application.
type Role string

const (
	RoleUser      Role = "user"
	RoleAgent     Role = "agent"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
)

// StaffRoles lists the roles that may join any conversation.
var StaffRoles = []Role{RoleAdmin, RoleAssistant}

// IsStaff reports whether the role is admin or assistant.
func (r Role) IsStaff() bool {
	for _, s := range StaffRoles {
		if r == s {
			return true
		}
	}
	return false
}

// User is the directory entry for an account. Issuance and profile editing live elsewhere;
// the chat core only reads it.
type User struct {
	Base      `bson:",inline"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role      Role      `bson:"role" json:"role"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	Deleted   bool      `bson:"deleted" json:"-"` // Soft delete flag
}

// Session is the acting identity resolved by the auth layer for one request or connection.
type Session struct {
	UserID utils.SixID
	Role   Role
}

// IsStaff reports whether the session belongs to staff.
func (s Session) IsStaff() bool {
	return s.Role.IsStaff()
}
