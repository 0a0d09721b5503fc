package invites

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
	"slotbook/lib/api/cont"
	"slotbook/lib/api/response"
	"slotbook/lib/sl"
)

type Core interface {
	ListInvites(user *entity.User) ([]*entity.Invite, error)
	CreateInvite(user *entity.User, spec *entity.InviteSpec) (*entity.Invite, error)
	CancelInvite(user *entity.User, token string) (*entity.Invite, error)
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		user := cont.GetUser(r.Context())
		invites, err := handler.ListInvites(user)
		if err != nil {
			refuse(w, r, logger, err, "listing invites")
			return
		}
		logger.With(slog.Int("count", len(invites))).Debug("invites listed")

		render.JSON(w, r, response.Ok(invites))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var spec entity.InviteSpec
		if err := render.Bind(r, &spec); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Fail("invalid_request", fmt.Sprintf("Invalid request: %v", err), nil))
			return
		}

		user := cont.GetUser(r.Context())
		invite, err := handler.CreateInvite(user, &spec)
		if err != nil {
			refuse(w, r, logger, err, "creating invite")
			return
		}
		logger.With(
			sl.Secret("token", invite.Token),
			slog.Bool("multi_use", invite.MultiUse),
		).Info("invite created")

		render.JSON(w, r, response.Ok(invite))
	}
}

func Cancel(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		tok := chi.URLParam(r, "token")
		logger = logger.With(sl.Secret("token", tok))

		user := cont.GetUser(r.Context())
		invite, err := handler.CancelInvite(user, tok)
		if err != nil {
			switch {
			case errors.Is(err, core.ErrNotFound):
				render.Status(r, 404)
				render.JSON(w, r, response.Fail("not_found", "Invite not found", nil))
			case errors.Is(err, core.ErrAlreadyBooked):
				render.Status(r, 409)
				render.JSON(w, r, response.Fail("already_booked", "A booked invite cannot be cancelled", nil))
			default:
				refuse(w, r, logger, err, "cancelling invite")
			}
			return
		}
		logger.Info("invite cancelled")

		render.JSON(w, r, response.Ok(invite))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.invites"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func refuse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, action string) {
	if errors.Is(err, core.ErrForbidden) {
		render.Status(r, 403)
		render.JSON(w, r, response.Error("Schedule management not allowed"))
		return
	}
	logger.Error(action, sl.Err(err))
	render.Status(r, 500)
	render.JSON(w, r, response.Error("Something went wrong, please try again"))
}
