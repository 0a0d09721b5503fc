package entity

import "errors"

// Store-level errors. The database layer returns these so callers can tell
// a lost claim race from a slot that never existed.
var (
	ErrSlotNotFound   = errors.New("slot not found")
	ErrSlotTaken      = errors.New("slot already booked")
	ErrInviteNotFound = errors.New("invite not found")
)
