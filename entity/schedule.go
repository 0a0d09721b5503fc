package entity

import (
	"net/http"
	"time"

	"slotbook/lib/validate"
)

// Bulk availability requests. Dates are calendar days in the organization's
// configured zone; week_start may point anywhere inside the displayed week,
// the editor snaps it to Monday.

type ToggleUnitRequest struct {
	Datetime time.Time `json:"datetime" validate:"required"`
}

func (t *ToggleUnitRequest) Bind(_ *http.Request) error {
	return validate.Struct(t)
}

type ToggleHourRequest struct {
	Date string `json:"date" validate:"required"`
	Hour int    `json:"hour" validate:"gte=0,lte=23"`
}

func (t *ToggleHourRequest) Bind(_ *http.Request) error {
	return validate.Struct(t)
}

type ToggleDayRequest struct {
	Date string `json:"date" validate:"required"`
}

func (t *ToggleDayRequest) Bind(_ *http.Request) error {
	return validate.Struct(t)
}

type WeekHourRequest struct {
	WeekStart string `json:"week_start" validate:"required"`
	Hour      int    `json:"hour" validate:"gte=0,lte=23"`
}

func (t *WeekHourRequest) Bind(_ *http.Request) error {
	return validate.Struct(t)
}

type PresetRequest struct {
	WeekStart string `json:"week_start" validate:"required"`
	StartHour int    `json:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int    `json:"end_hour" validate:"gte=1,lte=24,gtfield=StartHour"`
}

func (t *PresetRequest) Bind(_ *http.Request) error {
	return validate.Struct(t)
}
