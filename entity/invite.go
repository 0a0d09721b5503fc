package entity

import (
	"net/http"
	"time"

	"slotbook/lib/validate"
)

// InviteStatus is the lifecycle state of an invite. Single-use invites move
// pending -> booked | cancelled | expired, all terminal. Multi-use invites
// only ever leave pending through cancellation or expiry: "booked" would be
// meaningless when many applicants book through the same token.
type InviteStatus string

const (
	StatusPending   InviteStatus = "pending"
	StatusBooked    InviteStatus = "booked"
	StatusCancelled InviteStatus = "cancelled"
	StatusExpired   InviteStatus = "expired"
)

// Invite is a bearer capability granting an applicant the right to view
// availability and claim a slot. The token string is the primary key.
type Invite struct {
	Token          string       `json:"token" bson:"_id"`
	ApplicantName  string       `json:"applicant_name,omitempty" bson:"applicant_name,omitempty"`
	ApplicantEmail string       `json:"applicant_email,omitempty" bson:"applicant_email,omitempty"`
	MultiUse       bool         `json:"multi_use" bson:"multi_use"`
	Note           string       `json:"note,omitempty" bson:"note,omitempty"`
	Status         InviteStatus `json:"status" bson:"status"`
	BookedSlotId   string       `json:"booked_slot_id,omitempty" bson:"booked_slot_id,omitempty"`
	ExpiresAt      time.Time    `json:"expires_at" bson:"expires_at"`
	CreatedBy      string       `json:"created_by" bson:"created_by"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
}

// ExpiredAt reports whether the invite has passed its expiry at the given
// instant, either by the recorded status or by the clock. Expiry is written
// back lazily on the next read, so the clock check matters.
func (i *Invite) ExpiredAt(now time.Time) bool {
	if i.Status == StatusExpired || i.Status == StatusCancelled {
		return true
	}
	return now.After(i.ExpiresAt)
}

// Consumed reports whether a single-use invite has already been spent.
func (i *Invite) Consumed() bool {
	return !i.MultiUse && i.Status == StatusBooked
}

// EffectiveStatus is the status with clock-based expiry applied, for staff
// listings where the lazy expiry write may not have happened yet.
func (i *Invite) EffectiveStatus(now time.Time) InviteStatus {
	if i.Status == StatusPending && now.After(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}

// InvitePatch is a partial status update applied by the booking protocol.
// Zero fields are left untouched.
type InvitePatch struct {
	Status       InviteStatus
	BookedSlotId string
}

// InviteSpec is the staff request to mint a new invite. Applicant identity is
// required for single-use invites and absent for multi-use ones.
type InviteSpec struct {
	ApplicantName  string    `json:"applicant_name" validate:"required_if=MultiUse false"`
	ApplicantEmail string    `json:"applicant_email" validate:"required_if=MultiUse false,omitempty,email"`
	MultiUse       bool      `json:"multi_use"`
	Note           string    `json:"note"`
	ExpiresAt      time.Time `json:"expires_at" validate:"required"`
}

func (s *InviteSpec) Bind(_ *http.Request) error {
	return validate.Struct(s)
}
