package auth

import (
	"fmt"

	"slotbook/entity"
)

type Database interface {
	GetUser(token string) (*entity.User, error)
}

// Auth resolves API tokens to staff users and answers authorization
// questions for the scheduling core. It is injected into the core rather
// than read from ambient state, so tests can substitute their own policy.
type Auth struct {
	db Database
}

func New(db Database) *Auth {
	return &Auth{db: db}
}

func (a Auth) UserByToken(token string) (*entity.User, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database not connected")
	}
	return a.db.GetUser(token)
}

// CanManageSchedule reports whether the caller may edit availability and
// manage invites. Approved staff and admins qualify.
func (a Auth) CanManageSchedule(user *entity.User) bool {
	if user == nil {
		return false
	}
	return user.IsApproved()
}
