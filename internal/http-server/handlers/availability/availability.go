// Package availability exposes the bulk slot-authoring toggles to staff.
// Dates arrive as calendar days and are interpreted in the organization's
// configured zone.
package availability

import (
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"log/slog"
	"net/http"
	"slotbook/entity"
	"slotbook/impl/availability"
	"slotbook/impl/core"
	"slotbook/lib/api/cont"
	"slotbook/lib/api/response"
	"slotbook/lib/clock"
	"slotbook/lib/sl"
	"time"
)

type Core interface {
	ScheduleLocation() *time.Location
	ToggleUnit(user *entity.User, at time.Time) (availability.Change, error)
	ToggleHour(user *entity.User, day time.Time, hour int) (availability.Change, error)
	ToggleDay(user *entity.User, day time.Time) (availability.Change, error)
	ToggleHourAcrossWeek(user *entity.User, weekStart time.Time, hour int) (availability.Change, error)
	ApplyPreset(user *entity.User, weekStart time.Time, startHour, endHour int) (availability.Change, error)
}

func Unit(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.ToggleUnitRequest
		if err := render.Bind(r, &req); err != nil {
			badRequest(w, r, logger, err)
			return
		}

		user := cont.GetUser(r.Context())
		change, err := handler.ToggleUnit(user, req.Datetime)
		if err != nil {
			refuse(w, r, logger, err)
			return
		}
		renderChange(w, r, logger, "unit toggled", change)
	}
}

func Hour(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.ToggleHourRequest
		if err := render.Bind(r, &req); err != nil {
			badRequest(w, r, logger, err)
			return
		}
		day, err := clock.ParseDate(req.Date, handler.ScheduleLocation())
		if err != nil {
			badRequest(w, r, logger, err)
			return
		}

		user := cont.GetUser(r.Context())
		change, err := handler.ToggleHour(user, day, req.Hour)
		if err != nil {
			refuse(w, r, logger, err)
			return
		}
		renderChange(w, r, logger, "hour toggled", change)
	}
}

func Day(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.ToggleDayRequest
		if err := render.Bind(r, &req); err != nil {
			badRequest(w, r, logger, err)
			return
		}
		day, err := clock.ParseDate(req.Date, handler.ScheduleLocation())
		if err != nil {
			badRequest(w, r, logger, err)
			return
		}

		user := cont.GetUser(r.Context())
		change, err := handler.ToggleDay(user, day)
		if err != nil {
			refuse(w, r, logger, err)
			return
		}
		renderChange(w, r, logger, "day toggled", change)
	}
}

func WeekHour(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.WeekHourRequest
		if err := render.Bind(r, &req); err != nil {
			badRequest(w, r, logger, err)
			return
		}
		week, err := clock.ParseDate(req.WeekStart, handler.ScheduleLocation())
		if err != nil {
			badRequest(w, r, logger, err)
			return
		}

		user := cont.GetUser(r.Context())
		change, err := handler.ToggleHourAcrossWeek(user, week, req.Hour)
		if err != nil {
			refuse(w, r, logger, err)
			return
		}
		renderChange(w, r, logger, "week hour toggled", change)
	}
}

func Preset(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		var req entity.PresetRequest
		if err := render.Bind(r, &req); err != nil {
			badRequest(w, r, logger, err)
			return
		}
		week, err := clock.ParseDate(req.WeekStart, handler.ScheduleLocation())
		if err != nil {
			badRequest(w, r, logger, err)
			return
		}

		user := cont.GetUser(r.Context())
		change, err := handler.ApplyPreset(user, week, req.StartHour, req.EndHour)
		if err != nil {
			refuse(w, r, logger, err)
			return
		}
		renderChange(w, r, logger, "preset applied", change)
	}
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.availability"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

func badRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	logger.Debug("bind request", sl.Err(err))
	render.Status(r, 400)
	render.JSON(w, r, response.Fail("invalid_request", fmt.Sprintf("Invalid request: %v", err), nil))
}

func refuse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if errors.Is(err, core.ErrForbidden) {
		render.Status(r, 403)
		render.JSON(w, r, response.Error("Schedule management not allowed"))
		return
	}
	logger.Error("editing availability", sl.Err(err))
	render.Status(r, 500)
	render.JSON(w, r, response.Error("Something went wrong, please try again"))
}

func renderChange(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, change availability.Change) {
	logger.With(
		slog.Int("created", change.Created),
		slog.Int("deleted", change.Deleted),
	).Info(msg)
	render.JSON(w, r, response.Ok(change))
}
