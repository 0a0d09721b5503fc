// Package availability translates coarse staff intent ("open Tuesday
// morning") into sets of 15-minute slot records.
//
// Every operation is an idempotent fill-vs-clear toggle over a target range:
// if any unbooked capacity exists in the range it is removed, otherwise full
// capacity is created. Booked units are never deleted and never recreated,
// and each delete re-checks the booked state at the store rather than
// trusting the snapshot read at classification time.
package availability

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"slotbook/entity"
	"slotbook/lib/clock"
	"slotbook/lib/sl"
)

type SlotStore interface {
	ListSlots() ([]*entity.Slot, error)
	CreateSlot(slot *entity.Slot) error
	DeleteSlotIfUnbooked(id string) (bool, error)
}

// Config describes the organization's calendar zone and editing window.
type Config struct {
	Location     *time.Location
	DayStartHour int
	DayEndHour   int
	UnitMinutes  int
	SlotLocation string
}

// Change reports how many units an operation created or deleted.
type Change struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
}

type Editor struct {
	db     SlotStore
	conf   Config
	log    *slog.Logger
	now    func() time.Time
	notify func(entity.Event)
}

func New(db SlotStore, conf Config, log *slog.Logger) *Editor {
	if conf.Location == nil {
		conf.Location = time.UTC
	}
	if conf.UnitMinutes <= 0 {
		conf.UnitMinutes = 15
	}
	if conf.DayEndHour <= conf.DayStartHour {
		conf.DayStartHour = 9
		conf.DayEndHour = 18
	}
	return &Editor{
		db:   db,
		conf: conf,
		log:  log.With(sl.Module("availability")),
		now:  time.Now,
	}
}

// SetClock replaces the time source; tests pin it.
func (e *Editor) SetClock(now func() time.Time) {
	e.now = now
}

// SetNotify registers the mutation listener called for every unit
// created or deleted.
func (e *Editor) SetNotify(notify func(entity.Event)) {
	e.notify = notify
}

// Location is the organization's single calendar zone.
func (e *Editor) Location() *time.Location {
	return e.conf.Location
}

// ToggleUnit creates the single unit if absent, deletes it if present and
// unbooked, and leaves a booked unit untouched.
func (e *Editor) ToggleUnit(at time.Time) (Change, error) {
	return e.toggle([]time.Time{at.Truncate(time.Minute)}, true)
}

// ToggleHour fills or clears the quarter-units within one hour. A booked
// unit freezes the whole hour: the toggle is a no-op, not a partial edit.
func (e *Editor) ToggleHour(day time.Time, hour int) (Change, error) {
	return e.toggle(e.hourUnits(day, hour), true)
}

// ToggleDay fills or clears the configured open hours of one day, skipping
// booked units.
func (e *Editor) ToggleDay(day time.Time) (Change, error) {
	var instants []time.Time
	for hour := e.conf.DayStartHour; hour < e.conf.DayEndHour; hour++ {
		instants = append(instants, e.hourUnits(day, hour)...)
	}
	return e.toggle(instants, false)
}

// ToggleHourAcrossWeek fills or clears one hour-of-day across the displayed
// week, restricted to future instants. Units for elapsed days or hours are
// never created or touched.
func (e *Editor) ToggleHourAcrossWeek(weekStart time.Time, hour int) (Change, error) {
	week := clock.StartOfWeek(weekStart.In(e.conf.Location))
	now := e.now()
	var instants []time.Time
	for d := 0; d < 7; d++ {
		for _, at := range e.hourUnits(week.AddDate(0, 0, d), hour) {
			if at.After(now) {
				instants = append(instants, at)
			}
		}
	}
	return e.toggle(instants, false)
}

// ApplyPreset invokes the single-hour toggle for every day of the displayed
// week and every hour in [startHour, endHour), skipping hours whose start
// instant has already passed.
func (e *Editor) ApplyPreset(weekStart time.Time, startHour, endHour int) (Change, error) {
	if startHour >= endHour {
		return Change{}, fmt.Errorf("empty preset range: %d..%d", startHour, endHour)
	}
	week := clock.StartOfWeek(weekStart.In(e.conf.Location))
	now := e.now()

	var total Change
	for d := 0; d < 7; d++ {
		day := week.AddDate(0, 0, d)
		for hour := startHour; hour < endHour; hour++ {
			if !clock.AtHour(day, hour).After(now) {
				continue
			}
			change, err := e.ToggleHour(day, hour)
			if err != nil {
				return total, err
			}
			total.Created += change.Created
			total.Deleted += change.Deleted
		}
	}
	e.log.With(
		slog.Int("created", total.Created),
		slog.Int("deleted", total.Deleted),
	).Debug("preset applied")
	return total, nil
}

func (e *Editor) hourUnits(day time.Time, hour int) []time.Time {
	start := clock.AtHour(day.In(e.conf.Location), hour)
	units := make([]time.Time, 0, 60/e.conf.UnitMinutes)
	for m := 0; m < 60; m += e.conf.UnitMinutes {
		units = append(units, start.Add(time.Duration(m)*time.Minute))
	}
	return units
}

// toggle applies the fill-vs-clear policy over the given instants.
// With frozenWhenBooked the whole range becomes a no-op as soon as one unit
// in it is booked (hour semantics); otherwise booked units are skipped and
// the rest of the range is still filled or cleared (day/week semantics).
func (e *Editor) toggle(instants []time.Time, frozenWhenBooked bool) (Change, error) {
	var change Change
	if len(instants) == 0 {
		return change, nil
	}

	slots, err := e.db.ListSlots()
	if err != nil {
		return change, fmt.Errorf("listing slots: %w", err)
	}
	byTime := make(map[int64]*entity.Slot, len(slots))
	for _, s := range slots {
		byTime[unitKey(s.Datetime)] = s
	}

	var unbooked []*entity.Slot
	occupied := make(map[int64]bool, len(instants))
	anyBooked := false
	for _, at := range instants {
		s, ok := byTime[unitKey(at)]
		if !ok {
			continue
		}
		occupied[unitKey(at)] = true
		if s.Booked() {
			anyBooked = true
		} else {
			unbooked = append(unbooked, s)
		}
	}
	if anyBooked && frozenWhenBooked {
		return change, nil
	}

	if len(unbooked) > 0 {
		// Any unbooked capacity in the range: clear it. The conditional
		// delete re-checks the booked state, so an applicant claiming
		// mid-edit keeps their slot.
		for _, s := range unbooked {
			deleted, err := e.db.DeleteSlotIfUnbooked(s.Id)
			if err != nil {
				return change, fmt.Errorf("deleting slot %s: %w", s.Id, err)
			}
			if !deleted {
				continue
			}
			change.Deleted++
			e.emit(entity.Event{Kind: entity.EventSlotDeleted, SlotId: s.Id, At: e.now()})
		}
		return change, nil
	}

	// No unbooked capacity: create it, skipping occupied (booked) instants.
	for _, at := range instants {
		if occupied[unitKey(at)] {
			continue
		}
		slot := &entity.Slot{
			Id:              uuid.New().String(),
			Datetime:        at,
			DurationMinutes: e.conf.UnitMinutes,
			Location:        e.conf.SlotLocation,
			Available:       true,
		}
		if err := e.db.CreateSlot(slot); err != nil {
			return change, fmt.Errorf("creating slot at %s: %w", at, err)
		}
		change.Created++
		e.emit(entity.Event{Kind: entity.EventSlotCreated, SlotId: slot.Id, At: e.now()})
	}
	return change, nil
}

func (e *Editor) emit(event entity.Event) {
	if e.notify != nil {
		e.notify(event)
	}
}

func unitKey(t time.Time) int64 {
	return t.Truncate(time.Minute).Unix()
}
