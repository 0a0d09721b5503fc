package slots

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
	ListSlots(user *entity.User) ([]*entity.Slot, error)
	CreateSlot(user *entity.User, spec *entity.SlotSpec) (*entity.Slot, error)
	DeleteSlot(user *entity.User, id string) error
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		user := cont.GetUser(r.Context())
		slots, err := handler.ListSlots(user)
		if err != nil {
			refuse(w, r, logger, err, "listing slots")
			return
		}
		logger.With(slog.Int("count", len(slots))).Debug("slots listed")

		render.JSON(w, r, response.Ok(slots))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var spec entity.SlotSpec
		if err := render.Bind(r, &spec); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Fail("invalid_request", fmt.Sprintf("Invalid request: %v", err), nil))
			return
		}

		user := cont.GetUser(r.Context())
		slot, err := handler.CreateSlot(user, &spec)
		if err != nil {
			refuse(w, r, logger, err, "creating slot")
			return
		}
		logger.With(slog.String("slot_id", slot.Id)).Info("slot created")

		render.JSON(w, r, response.Ok(slot))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		id := chi.URLParam(r, "id")
		user := cont.GetUser(r.Context())
		if err := handler.DeleteSlot(user, id); err != nil {
			refuse(w, r, logger, err, "deleting slot")
			return
		}
		logger.With(slog.String("slot_id", id)).Info("slot deleted")

		render.JSON(w, r, response.Ok(nil))
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.slots"),
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
