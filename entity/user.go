package entity

import (
	"net/http"
	"time"

	"slotbook/lib/validate"
)

// Role controls a staff member's access level.
// Hierarchy: RoleNone < RolePending < RoleStaff < RoleAdmin.
// Only staff and admins may edit availability or manage invites.
type Role string

const (
	RoleNone    Role = ""        // unregistered or revoked
	RolePending Role = "pending" // registered via the bot, awaiting admin approval
	RoleStaff   Role = "staff"   // may manage slots and invites, receives notifications
	RoleAdmin   Role = "admin"   // full access, can manage other staff
)

// User represents a staff member: an API caller (Token-based auth) and,
// optionally, a Telegram bot subscriber. Telegram fields are populated
// during bot registration (/start command).
type User struct {
	Username         string    `json:"username" bson:"username" validate:"required"`
	Name             string    `json:"name" bson:"name" validate:"omitempty"`
	Email            string    `json:"email" bson:"email" validate:"omitempty"`
	Token            string    `json:"token" bson:"token" validate:"required,min=1"`
	Role             Role      `json:"role" bson:"role"`
	TelegramId       int64     `json:"telegram_id" bson:"telegram_id" validate:"omitempty"`
	TelegramUsername string    `json:"telegram_username" bson:"telegram_username"`
	TelegramEnabled  bool      `json:"telegram_enabled" bson:"telegram_enabled" validate:"omitempty"`
	LogLevel         int       `json:"log_level" bson:"log_level" validate:"omitempty"`
	Topics           []string  `json:"topics" bson:"topics"`
	RegisteredAt     time.Time `json:"registered_at" bson:"registered_at"`
}

func (u *User) Bind(_ *http.Request) error {
	return validate.Struct(u)
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) IsApproved() bool {
	return u.Role == RoleStaff || u.Role == RoleAdmin
}

func (u *User) IsPending() bool {
	return u.Role == RolePending
}

// HasTopic checks if the user is subscribed to a given notification topic.
// Convention: empty Topics = subscribed to all.
// The sentinel value "none" means unsubscribed from everything.
func (u *User) HasTopic(topic string) bool {
	if len(u.Topics) == 0 {
		return true
	}
	for _, t := range u.Topics {
		if t == "none" {
			return false
		}
		if t == topic {
			return true
		}
	}
	return false
}
