// Package core implements the booking protocol and the staff-facing
// scheduling operations. It owns the invite state machine; the atomic
// slot claim itself lives in the store, which is the single serialization
// point for concurrent bookings.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotbook/entity"
	"slotbook/impl/availability"
	"slotbook/lib/sl"
	"slotbook/lib/token"
)

// Domain conditions reported to the booking page. Each maps to a distinct
// UI state, so they are never collapsed into a generic error.
var (
	// ErrNotFound covers structurally invalid tokens and unknown tokens.
	ErrNotFound = errors.New("invite not found")
	// ErrExpired covers clock-based expiry as well as cancellation.
	ErrExpired = errors.New("invite expired")
	// ErrAlreadyBooked means a single-use invite has been consumed.
	ErrAlreadyBooked = errors.New("invite already used")
	// ErrForbidden means the caller may not manage the schedule.
	ErrForbidden = errors.New("schedule management not allowed")
)

type Database interface {
	ListSlots() ([]*entity.Slot, error)
	GetSlot(id string) (*entity.Slot, error)
	CreateSlot(slot *entity.Slot) error
	DeleteSlotIfUnbooked(id string) (bool, error)
	ClaimSlot(id, token, name, email string) (*entity.Slot, error)
	CreateInvite(invite *entity.Invite) error
	GetInvite(token string) (*entity.Invite, error)
	UpdateInviteStatus(token string, patch entity.InvitePatch) error
	ListInvites() ([]*entity.Invite, error)
}

// AuthService is the externally-injected authorization capability. The core
// never reads ambient auth state; every staff operation asks this service.
type AuthService interface {
	UserByToken(token string) (*entity.User, error)
	CanManageSchedule(user *entity.User) bool
}

type Core struct {
	db     Database
	editor *availability.Editor
	auth   AuthService
	log    *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []func(entity.Event)
}

func New(db Database, editor *availability.Editor, log *slog.Logger) *Core {
	if db == nil {
		panic("database is nil")
	}
	c := &Core{
		db:     db,
		editor: editor,
		log:    log.With(sl.Module("core")),
		now:    time.Now,
	}
	if editor != nil {
		editor.SetNotify(c.emit)
	}
	return c
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

// SetClock replaces the time source; tests pin it.
func (c *Core) SetClock(now func() time.Time) {
	c.now = now
}

// Subscribe registers a listener notified on every slot or invite mutation.
// Listeners must not block; slow consumers should buffer on their side.
func (c *Core) Subscribe(fn func(entity.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Core) emit(event entity.Event) {
	c.mu.RLock()
	listeners := make([]func(entity.Event), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(event)
	}
}

// AuthenticateByToken resolves a staff API token; used by the HTTP
// authentication middleware.
func (c *Core) AuthenticateByToken(tok string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth service not connected")
	}
	return c.auth.UserByToken(tok)
}

func (c *Core) authorize(user *entity.User) error {
	if c.auth == nil || !c.auth.CanManageSchedule(user) {
		return ErrForbidden
	}
	return nil
}

// --- Booking protocol ---

// Resolution is what the booking page renders for a valid invite.
type Resolution struct {
	Invite        *entity.Invite `json:"invite"`
	EligibleSlots []*entity.Slot `json:"eligible_slots"`
}

// ResolveInvite validates a presented token and returns the invite with the
// slots it may still claim. On ErrAlreadyBooked the resolution is returned
// alongside the error so the caller can show who holds the booking.
//
// Expiry is lazy: it is discovered and persisted here, on read, not by a
// background sweep. An invite that is never read again keeps its stale
// pending status in storage; resolution always re-checks the clock, so the
// staleness is invisible to applicants.
func (c *Core) ResolveInvite(tok string) (*Resolution, error) {
	if !token.IsValidShape(tok) {
		return nil, ErrNotFound
	}
	invite, err := c.db.GetInvite(tok)
	if errors.Is(err, entity.ErrInviteNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading invite: %w", err)
	}

	now := c.now()
	if invite.Status == entity.StatusCancelled || invite.Status == entity.StatusExpired {
		return nil, ErrExpired
	}
	if now.After(invite.ExpiresAt) {
		if err := c.db.UpdateInviteStatus(tok, entity.InvitePatch{Status: entity.StatusExpired}); err != nil {
			c.log.With(sl.Secret("token", tok)).Error("recording lazy expiry", sl.Err(err))
		} else {
			invite.Status = entity.StatusExpired
			c.emit(entity.Event{Kind: entity.EventInviteExpired, Token: tok, At: now})
		}
		return nil, ErrExpired
	}
	if invite.Consumed() {
		return &Resolution{Invite: invite}, ErrAlreadyBooked
	}

	slots, err := c.db.ListSlots()
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	eligible := make([]*entity.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available && !s.Booked() && s.Datetime.After(now) {
			eligible = append(eligible, s)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Datetime.Before(eligible[j].Datetime)
	})
	return &Resolution{Invite: invite, EligibleSlots: eligible}, nil
}

// Claim books a slot for the applicant holding the token. The invite is
// fully re-resolved first, so a stale resolution from minutes earlier
// cannot bypass expiry, cancellation or the single-use check. The slot
// claim is a conditional write in the store: of any number of concurrent
// claims for one slot exactly one succeeds, the rest get ErrSlotTaken.
func (c *Core) Claim(tok, slotId, name, email string) (*entity.Slot, error) {
	resolution, err := c.ResolveInvite(tok)
	if err != nil {
		return nil, err
	}
	invite := resolution.Invite

	slot, err := c.db.ClaimSlot(slotId, tok, name, email)
	if err != nil {
		return nil, err
	}

	if !invite.MultiUse {
		patch := entity.InvitePatch{Status: entity.StatusBooked, BookedSlotId: slot.Id}
		if err := c.db.UpdateInviteStatus(tok, patch); err != nil {
			// The slot is claimed; the booking stands even if the status
			// write fails. Logged as a fault, retried on next resolution.
			c.log.With(sl.Secret("token", tok)).Error("recording booked status", sl.Err(err))
		}
	}
	c.emit(entity.Event{
		Kind:   entity.EventSlotClaimed,
		SlotId: slot.Id,
		Token:  tok,
		Booker: name,
		At:     c.now(),
	})
	c.log.With(
		sl.Secret("token", tok),
		slog.String("slot_id", slot.Id),
	).Info("slot claimed")
	return slot, nil
}

// --- Staff: slots ---

func (c *Core) ListSlots(user *entity.User) ([]*entity.Slot, error) {
	if err := c.authorize(user); err != nil {
		return nil, err
	}
	return c.db.ListSlots()
}

func (c *Core) CreateSlot(user *entity.User, spec *entity.SlotSpec) (*entity.Slot, error) {
	if err := c.authorize(user); err != nil {
		return nil, err
	}
	slot := &entity.Slot{
		Id:              uuid.New().String(),
		Datetime:        spec.Datetime.Truncate(time.Minute),
		DurationMinutes: spec.DurationMinutes,
		Location:        spec.Location,
		Available:       true,
	}
	if err := c.db.CreateSlot(slot); err != nil {
		return nil, fmt.Errorf("creating slot: %w", err)
	}
	c.emit(entity.Event{Kind: entity.EventSlotCreated, SlotId: slot.Id, At: c.now()})
	return slot, nil
}

// DeleteSlot removes an unbooked slot. Absent slots are a silent no-op;
// booked slots are never deleted, the conditional write refuses them.
func (c *Core) DeleteSlot(user *entity.User, id string) error {
	if err := c.authorize(user); err != nil {
		return err
	}
	deleted, err := c.db.DeleteSlotIfUnbooked(id)
	if err != nil {
		return fmt.Errorf("deleting slot: %w", err)
	}
	if deleted {
		c.emit(entity.Event{Kind: entity.EventSlotDeleted, SlotId: id, At: c.now()})
	}
	return nil
}

// --- Staff: invites ---

func (c *Core) CreateInvite(user *entity.User, spec *entity.InviteSpec) (*entity.Invite, error) {
	if err := c.authorize(user); err != nil {
		return nil, err
	}
	invite := &entity.Invite{
		Token:          token.Generate(token.DefaultLength),
		ApplicantName:  spec.ApplicantName,
		ApplicantEmail: spec.ApplicantEmail,
		MultiUse:       spec.MultiUse,
		Note:           spec.Note,
		Status:         entity.StatusPending,
		ExpiresAt:      spec.ExpiresAt,
		CreatedBy:      user.Username,
		CreatedAt:      c.now(),
	}
	if invite.MultiUse {
		invite.ApplicantName = ""
		invite.ApplicantEmail = ""
	}
	if err := c.db.CreateInvite(invite); err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	c.emit(entity.Event{Kind: entity.EventInviteCreated, Token: invite.Token, At: c.now()})
	return invite, nil
}

// CancelInvite moves a pending invite to cancelled. Cancelling an invite
// that already reached a terminal state is idempotent, except booked:
// a consumed single-use invite stays booked.
func (c *Core) CancelInvite(user *entity.User, tok string) (*entity.Invite, error) {
	if err := c.authorize(user); err != nil {
		return nil, err
	}
	invite, err := c.db.GetInvite(tok)
	if errors.Is(err, entity.ErrInviteNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading invite: %w", err)
	}
	switch invite.Status {
	case entity.StatusBooked:
		return nil, ErrAlreadyBooked
	case entity.StatusCancelled, entity.StatusExpired:
		return invite, nil
	}
	if err := c.db.UpdateInviteStatus(tok, entity.InvitePatch{Status: entity.StatusCancelled}); err != nil {
		return nil, fmt.Errorf("cancelling invite: %w", err)
	}
	invite.Status = entity.StatusCancelled
	c.emit(entity.Event{Kind: entity.EventInviteCancelled, Token: tok, At: c.now()})
	return invite, nil
}

// ListInvites returns all invites with clock-based expiry applied to the
// reported status, so staff views do not show stale pending rows that the
// lazy expiry write has not reached yet.
func (c *Core) ListInvites(user *entity.User) ([]*entity.Invite, error) {
	if err := c.authorize(user); err != nil {
		return nil, err
	}
	invites, err := c.db.ListInvites()
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]*entity.Invite, 0, len(invites))
	for _, inv := range invites {
		view := *inv
		view.Status = inv.EffectiveStatus(now)
		out = append(out, &view)
	}
	return out, nil
}

// --- Staff: availability editing ---

// ScheduleLocation is the organization's calendar zone, used by handlers
// to parse date parameters.
func (c *Core) ScheduleLocation() *time.Location {
	if c.editor == nil {
		return time.UTC
	}
	return c.editor.Location()
}

func (c *Core) ToggleUnit(user *entity.User, at time.Time) (availability.Change, error) {
	if err := c.authorize(user); err != nil {
		return availability.Change{}, err
	}
	return c.editor.ToggleUnit(at)
}

func (c *Core) ToggleHour(user *entity.User, day time.Time, hour int) (availability.Change, error) {
	if err := c.authorize(user); err != nil {
		return availability.Change{}, err
	}
	return c.editor.ToggleHour(day, hour)
}

func (c *Core) ToggleDay(user *entity.User, day time.Time) (availability.Change, error) {
	if err := c.authorize(user); err != nil {
		return availability.Change{}, err
	}
	return c.editor.ToggleDay(day)
}

func (c *Core) ToggleHourAcrossWeek(user *entity.User, weekStart time.Time, hour int) (availability.Change, error) {
	if err := c.authorize(user); err != nil {
		return availability.Change{}, err
	}
	return c.editor.ToggleHourAcrossWeek(weekStart, hour)
}

func (c *Core) ApplyPreset(user *entity.User, weekStart time.Time, startHour, endHour int) (availability.Change, error) {
	if err := c.authorize(user); err != nil {
		return availability.Change{}, err
	}
	return c.editor.ApplyPreset(weekStart, startHour, endHour)
}
