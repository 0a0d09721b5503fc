package entity

import "time"

// EventKind identifies a slot or invite mutation.
type EventKind string

const (
	EventSlotCreated     EventKind = "slot_created"
	EventSlotDeleted     EventKind = "slot_deleted"
	EventSlotClaimed     EventKind = "slot_claimed"
	EventInviteCreated   EventKind = "invite_created"
	EventInviteCancelled EventKind = "invite_cancelled"
	EventInviteExpired   EventKind = "invite_expired"
)

// Event is emitted to registered listeners on every store mutation.
// Listeners decide the transport (Telegram push, polling caches, etc.);
// the core only promises the notification.
type Event struct {
	Kind   EventKind `json:"kind"`
	SlotId string    `json:"slot_id,omitempty"`
	Token  string    `json:"token,omitempty"`
	Booker string    `json:"booker,omitempty"`
	At     time.Time `json:"at"`
}

// Topic maps the event onto a bot notification topic.
func (e Event) Topic() string {
	switch e.Kind {
	case EventSlotClaimed:
		return TopicBooking
	case EventInviteCreated, EventInviteCancelled, EventInviteExpired:
		return TopicInvite
	default:
		return TopicSchedule
	}
}
