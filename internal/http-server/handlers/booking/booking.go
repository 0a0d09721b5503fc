// Package booking serves the public booking page: resolving an invite token
// and claiming a slot. Every domain refusal maps to a distinct machine code,
// because each one implies a different next action for the applicant.
package booking

import (
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"log/slog"
	"net/http"
	"slotbook/entity"
	"slotbook/impl/core"
	"slotbook/lib/api/response"
	"slotbook/lib/sl"
)

type Core interface {
	ResolveInvite(token string) (*core.Resolution, error)
	Claim(token, slotId, name, email string) (*entity.Slot, error)
}

func Resolve(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.booking")

		tok := chi.URLParam(r, "token")
		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Secret("token", tok),
		)

		resolution, err := handler.ResolveInvite(tok)
		if err != nil {
			renderRefusal(w, r, logger, err, resolution)
			return
		}
		logger.With(
			slog.Int("eligible", len(resolution.EligibleSlots)),
		).Debug("invite resolved")

		render.JSON(w, r, response.Ok(resolution))
	}
}

func Claim(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.booking")

		tok := chi.URLParam(r, "token")
		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Secret("token", tok),
		)

		var claim entity.ClaimRequest
		if err := render.Bind(r, &claim); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Fail("invalid_request", fmt.Sprintf("Invalid request: %v", err), nil))
			return
		}
		logger = logger.With(slog.String("slot_id", claim.SlotId))

		slot, err := handler.Claim(tok, claim.SlotId, claim.Name, claim.Email)
		if err != nil {
			renderRefusal(w, r, logger, err, nil)
			return
		}
		logger.Info("booking confirmed")

		render.JSON(w, r, response.Ok(slot))
	}
}

// renderRefusal maps domain conditions to their machine codes and HTTP
// statuses. Only unrecognized errors are storage faults: those get logged
// and surfaced as a generic retryable failure.
func renderRefusal(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, resolution *core.Resolution) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, 404)
		render.JSON(w, r, response.Fail("not_found", "This booking link is not valid", nil))
	case errors.Is(err, core.ErrExpired):
		render.Status(r, 410)
		render.JSON(w, r, response.Fail("expired", "This booking link has expired", nil))
	case errors.Is(err, core.ErrAlreadyBooked):
		var invite *entity.Invite
		if resolution != nil {
			invite = resolution.Invite
		}
		render.Status(r, 409)
		render.JSON(w, r, response.Fail("already_booked", "An interview is already scheduled through this link", invite))
	case errors.Is(err, entity.ErrSlotNotFound):
		render.Status(r, 404)
		render.JSON(w, r, response.Fail("missing_slot", "This slot does not exist", nil))
	case errors.Is(err, entity.ErrSlotTaken):
		render.Status(r, 409)
		render.JSON(w, r, response.Fail("slot_taken", "This slot is no longer available, please pick another", nil))
	default:
		logger.Error("booking request", sl.Err(err))
		render.Status(r, 500)
		render.JSON(w, r, response.Error("Something went wrong, please try again"))
	}
}
