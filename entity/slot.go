package entity

import (
	"net/http"
	"time"

	"slotbook/lib/validate"
)

// Slot is a single bookable unit of time. The authoring tools work in
// 15-minute units by convention; the store does not enforce the granularity.
//
// BookedBy is the single source of truth for "claimed": a slot with a
// non-empty BookedBy must never be touched by availability editing and
// must never be claimed again, whatever Available says.
type Slot struct {
	Id              string    `json:"id" bson:"_id"`
	Datetime        time.Time `json:"datetime" bson:"datetime"`
	DurationMinutes int       `json:"duration_minutes" bson:"duration_minutes"`
	Location        string    `json:"location,omitempty" bson:"location,omitempty"`
	Available       bool      `json:"available" bson:"available"`
	BookedBy        string    `json:"booked_by,omitempty" bson:"booked_by,omitempty"`
	BookerName      string    `json:"booker_name,omitempty" bson:"booker_name,omitempty"`
	BookerEmail     string    `json:"booker_email,omitempty" bson:"booker_email,omitempty"`
}

func (s *Slot) Booked() bool {
	return s.BookedBy != ""
}

// SlotSpec is the staff request to publish a single slot.
type SlotSpec struct {
	Datetime        time.Time `json:"datetime" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1"`
	Location        string    `json:"location"`
}

func (s *SlotSpec) Bind(_ *http.Request) error {
	return validate.Struct(s)
}

// ClaimRequest is the applicant's booking submission for one slot.
type ClaimRequest struct {
	SlotId string `json:"slot_id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

func (c *ClaimRequest) Bind(_ *http.Request) error {
	return validate.Struct(c)
}
